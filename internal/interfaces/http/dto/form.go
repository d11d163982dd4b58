// Package dto 提供 HTTP 层数据传输对象
package dto

import (
	"convoform-api/internal/domain/entity"
)

// FieldRequest 表单字段定义
type FieldRequest struct {
	FieldName          string                    `json:"field_name" binding:"required"`
	FieldDescription   string                    `json:"field_description"`
	FieldConfiguration entity.FieldConfiguration `json:"field_configuration" binding:"required"`
}

// CreateFormRequest 创建表单请求
type CreateFormRequest struct {
	Name        string         `json:"name" binding:"required"`
	Overview    string         `json:"overview"`
	WelcomeText string         `json:"welcome_text"`
	Fields      []FieldRequest `json:"fields"`
}

// UpdateFormRequest 更新表单请求；指针字段为 nil 表示不修改
type UpdateFormRequest struct {
	Name        *string        `json:"name"`
	Overview    *string        `json:"overview"`
	WelcomeText *string        `json:"welcome_text"`
	IsPublished *bool          `json:"is_published"`
	Fields      []FieldRequest `json:"fields"`
}

// FormResponse 表单响应
type FormResponse struct {
	ID             string          `json:"id"`
	OrganizationID string          `json:"organization_id"`
	Name           string          `json:"name"`
	Overview       string          `json:"overview"`
	WelcomeText    string          `json:"welcome_text,omitempty"`
	IsPublished    bool            `json:"is_published"`
	Fields         []FieldResponse `json:"fields"`
	CreatedAt      string          `json:"created_at"`
	UpdatedAt      string          `json:"updated_at"`
}

// FieldResponse 字段响应
type FieldResponse struct {
	ID                 string                    `json:"id"`
	OrderIndex         int                       `json:"order_index"`
	FieldName          string                    `json:"field_name"`
	FieldDescription   string                    `json:"field_description"`
	FieldConfiguration entity.FieldConfiguration `json:"field_configuration"`
}

// NewFormResponse 由实体构造响应
func NewFormResponse(f *entity.Form) *FormResponse {
	fields := make([]FieldResponse, 0, len(f.Fields))
	for _, ff := range f.Fields {
		fields = append(fields, FieldResponse{
			ID:                 ff.ID,
			OrderIndex:         ff.OrderIndex,
			FieldName:          ff.FieldName,
			FieldDescription:   ff.FieldDescription,
			FieldConfiguration: ff.FieldConfiguration,
		})
	}
	return &FormResponse{
		ID:             f.ID,
		OrganizationID: f.OrganizationID,
		Name:           f.Name,
		Overview:       f.Overview,
		WelcomeText:    f.WelcomeText,
		IsPublished:    f.IsPublished,
		Fields:         fields,
		CreatedAt:      f.CreatedAt.Format(timeLayout),
		UpdatedAt:      f.UpdatedAt.Format(timeLayout),
	}
}

// NewFormResponses 批量构造
func NewFormResponses(forms []*entity.Form) []*FormResponse {
	out := make([]*FormResponse, 0, len(forms))
	for _, f := range forms {
		out = append(out, NewFormResponse(f))
	}
	return out
}

const timeLayout = "2006-01-02T15:04:05Z07:00"
