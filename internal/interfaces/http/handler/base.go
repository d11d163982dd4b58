// Package handler 提供 HTTP 请求处理器
package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"convoform-api/internal/interfaces/http/dto"
	apperrors "convoform-api/pkg/errors"
	"convoform-api/pkg/logger"
)

// respondError 将应用错误映射为 HTTP 错误响应；
// 未识别的错误记日志并返回 500
func respondError(c *gin.Context, err error, fallback string) {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		dto.ErrorWithDetail(c, appErr.HTTPStatus, appErr.Message, appErr.Detail)
		return
	}
	logger.Error(c.Request.Context(), fallback, err, "path", c.Request.URL.Path)
	dto.InternalError(c, fallback)
}

// organizationID 从认证中间件取组织 ID
func organizationID(c *gin.Context) string {
	return c.GetString("organization_id")
}
