// Package handler 提供 HTTP 请求处理器
package handler

import (
	"github.com/gin-gonic/gin"

	formapp "convoform-api/internal/application/form"
	"convoform-api/internal/interfaces/http/dto"
)

// FormHandler 表单处理器
type FormHandler struct {
	forms *formapp.Service
}

// NewFormHandler 创建表单处理器
func NewFormHandler(forms *formapp.Service) *FormHandler {
	return &FormHandler{forms: forms}
}

// CreateForm 创建表单
// @Summary 创建表单
// @Tags Forms
// @Accept json
// @Produce json
// @Param body body dto.CreateFormRequest true "表单定义"
// @Success 201 {object} dto.Response[dto.FormResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Router /v1/forms [post]
func (h *FormHandler) CreateForm(c *gin.Context) {
	var req dto.CreateFormRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	in := &formapp.CreateInput{
		Name:        req.Name,
		Overview:    req.Overview,
		WelcomeText: req.WelcomeText,
		Fields:      toFieldInputs(req.Fields),
	}
	f, err := h.forms.Create(c.Request.Context(), organizationID(c), in)
	if err != nil {
		respondError(c, err, "failed to create form")
		return
	}
	dto.Created(c, dto.NewFormResponse(f))
}

// GetForm 读取表单
// @Summary 读取表单
// @Tags Forms
// @Produce json
// @Param fid path string true "表单 ID"
// @Success 200 {object} dto.Response[dto.FormResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/forms/{fid} [get]
func (h *FormHandler) GetForm(c *gin.Context) {
	f, err := h.forms.Get(c.Request.Context(), c.Param("fid"))
	if err != nil {
		respondError(c, err, "failed to get form")
		return
	}
	dto.Success(c, dto.NewFormResponse(f))
}

// UpdateForm 更新表单
// @Summary 更新表单
// @Tags Forms
// @Accept json
// @Produce json
// @Param fid path string true "表单 ID"
// @Param body body dto.UpdateFormRequest true "变更内容"
// @Success 200 {object} dto.Response[dto.FormResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/forms/{fid} [put]
func (h *FormHandler) UpdateForm(c *gin.Context) {
	var req dto.UpdateFormRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	in := &formapp.UpdateInput{
		Name:        req.Name,
		Overview:    req.Overview,
		WelcomeText: req.WelcomeText,
		IsPublished: req.IsPublished,
	}
	if req.Fields != nil {
		in.Fields = toFieldInputs(req.Fields)
	}

	f, err := h.forms.Update(c.Request.Context(), organizationID(c), c.Param("fid"), in)
	if err != nil {
		respondError(c, err, "failed to update form")
		return
	}
	dto.Success(c, dto.NewFormResponse(f))
}

// DeleteForm 删除表单
// @Summary 删除表单
// @Tags Forms
// @Param fid path string true "表单 ID"
// @Success 204
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/forms/{fid} [delete]
func (h *FormHandler) DeleteForm(c *gin.Context) {
	if err := h.forms.Delete(c.Request.Context(), organizationID(c), c.Param("fid")); err != nil {
		respondError(c, err, "failed to delete form")
		return
	}
	dto.NoContent(c)
}

// ListForms 分页列出当前组织的表单
// @Summary 表单列表
// @Tags Forms
// @Produce json
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页条数" default(20)
// @Success 200 {object} dto.Response[[]dto.FormResponse]
// @Router /v1/forms [get]
func (h *FormHandler) ListForms(c *gin.Context) {
	pagination := dto.BindPage(c)
	result, err := h.forms.List(c.Request.Context(), organizationID(c), pagination)
	if err != nil {
		respondError(c, err, "failed to list forms")
		return
	}
	meta := dto.NewPageMeta(pagination.Page, pagination.PageSize, int(result.Total))
	dto.SuccessWithPage(c, dto.NewFormResponses(result.Items), meta)
}

func toFieldInputs(fields []dto.FieldRequest) []formapp.FieldInput {
	out := make([]formapp.FieldInput, 0, len(fields))
	for _, f := range fields {
		out = append(out, formapp.FieldInput{
			FieldName:          f.FieldName,
			FieldDescription:   f.FieldDescription,
			FieldConfiguration: f.FieldConfiguration,
		})
	}
	return out
}
