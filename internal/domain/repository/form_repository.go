// Package repository 定义数据访问层接口
package repository

import (
	"context"

	"convoform-api/internal/domain/entity"
)

type FormRepository interface {
	Create(ctx context.Context, form *entity.Form) error
	// GetByID 返回表单及其按 OrderIndex 排序的字段；未找到返回 (nil, nil)
	GetByID(ctx context.Context, id string) (*entity.Form, error)
	Update(ctx context.Context, form *entity.Form) error
	Delete(ctx context.Context, id string) error
	ListByOrganization(ctx context.Context, organizationID string, pagination Pagination) (*PagedResult[*entity.Form], error)
}
