// Package router 提供 HTTP 路由配置
package router

import (
	"convoform-api/internal/config"
	"convoform-api/internal/interfaces/http/handler"
	"convoform-api/internal/interfaces/http/middleware"

	"github.com/gin-gonic/gin"
)

// RegisterV1Routes 注册 v1 版本路由。
// 表单管理端点需要所有者 JWT；作答端点对外公开，
// 会话 ID 本身即访问凭证（不可枚举的 UUID）。
func RegisterV1Routes(
	v1 *gin.RouterGroup,
	cfg *config.Config,
	formHandler *handler.FormHandler,
	conversationHandler *handler.ConversationHandler,
) {
	auth := middleware.Auth(middleware.AuthConfig{
		Secret:  cfg.Security.JWT.Secret,
		Issuer:  cfg.Security.JWT.Issuer,
		Enabled: cfg.Security.JWT.Enabled,
	})

	// 表单管理（所有者）
	forms := v1.Group("/forms")
	{
		forms.POST("", auth, formHandler.CreateForm)
		forms.GET("", auth, formHandler.ListForms)
		forms.GET("/:fid", auth, formHandler.GetForm)
		forms.PUT("/:fid", auth, formHandler.UpdateForm)
		forms.DELETE("/:fid", auth, formHandler.DeleteForm)

		// 表单下的会话
		forms.POST("/:fid/conversations", conversationHandler.StartConversation)
		forms.GET("/:fid/conversations", auth, conversationHandler.ListConversations)
	}

	// 会话（作答端点公开；读取需要所有者）
	conversations := v1.Group("/conversations")
	{
		conversations.GET("/:cid", auth, conversationHandler.GetConversation)
		conversations.POST("/:cid/turns", conversationHandler.ProcessTurn)
		conversations.POST("/:cid/back", conversationHandler.GoBack)
	}
}
