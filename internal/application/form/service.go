// Package form 实现表单定义的应用服务
package form

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"convoform-api/internal/domain/entity"
	"convoform-api/internal/domain/repository"
	"convoform-api/internal/infrastructure/persistence/redis"
	apperrors "convoform-api/pkg/errors"
	"convoform-api/pkg/logger"
)

const formCacheTTL = 5 * time.Minute

// FieldInput 创建/更新表单时的单个字段定义
type FieldInput struct {
	FieldName          string                    `json:"field_name"`
	FieldDescription   string                    `json:"field_description"`
	FieldConfiguration entity.FieldConfiguration `json:"field_configuration"`
}

// CreateInput 创建表单的入参
type CreateInput struct {
	Name        string       `json:"name"`
	Overview    string       `json:"overview"`
	WelcomeText string       `json:"welcome_text"`
	Fields      []FieldInput `json:"fields"`
}

// UpdateInput 更新表单的入参；Fields 为 nil 时保持原字段不变
type UpdateInput struct {
	Name        *string      `json:"name"`
	Overview    *string      `json:"overview"`
	WelcomeText *string      `json:"welcome_text"`
	IsPublished *bool        `json:"is_published"`
	Fields      []FieldInput `json:"fields"`
}

// Service 表单应用服务
type Service struct {
	forms repository.FormRepository
	tx    repository.Transactor
	cache *redis.Cache
}

func NewService(forms repository.FormRepository, tx repository.Transactor, cache *redis.Cache) *Service {
	return &Service{forms: forms, tx: tx, cache: cache}
}

// Create 创建表单及其字段
func (s *Service) Create(ctx context.Context, organizationID string, in *CreateInput) (*entity.Form, error) {
	if in == nil || strings.TrimSpace(in.Name) == "" {
		return nil, apperrors.ErrInvalidParam.WithDetail("name is required")
	}
	fields, err := buildFields(in.Fields)
	if err != nil {
		return nil, err
	}

	f := entity.NewForm(organizationID, strings.TrimSpace(in.Name), strings.TrimSpace(in.Overview))
	f.WelcomeText = strings.TrimSpace(in.WelcomeText)
	f.Fields = fields

	if err := s.forms.Create(ctx, f); err != nil {
		return nil, err
	}
	logger.Info(ctx, "form created", "form_id", f.ID, "organization_id", organizationID, "field_count", len(fields))
	return f, nil
}

// Get 读取表单，经 redis 缓存（singleflight 防击穿）
func (s *Service) Get(ctx context.Context, id string) (*entity.Form, error) {
	if s.cache == nil {
		return s.getFromRepo(ctx, id)
	}

	data, err := s.cache.GetOrLoadSafe(ctx, redis.BuildFormCacheKey(id), formCacheTTL, func() (interface{}, error) {
		return s.getFromRepo(ctx, id)
	})
	if err != nil {
		return nil, err
	}

	var f entity.Form
	if err := json.Unmarshal(data, &f); err != nil {
		// 缓存内容损坏时回源
		logger.Warn(ctx, "corrupt form cache entry, reloading", "form_id", id, "error", err.Error())
		return s.getFromRepo(ctx, id)
	}
	return &f, nil
}

func (s *Service) getFromRepo(ctx context.Context, id string) (*entity.Form, error) {
	f, err := s.forms.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, apperrors.ErrFormNotFound
	}
	return f, nil
}

// Update 更新表单；Fields 非 nil 时整体替换字段并重排顺序
func (s *Service) Update(ctx context.Context, organizationID, id string, in *UpdateInput) (*entity.Form, error) {
	if in == nil {
		return nil, apperrors.ErrInvalidParam
	}

	f, err := s.getFromRepo(ctx, id)
	if err != nil {
		return nil, err
	}
	if f.OrganizationID != organizationID {
		return nil, apperrors.ErrForbidden
	}

	if in.Name != nil {
		if strings.TrimSpace(*in.Name) == "" {
			return nil, apperrors.ErrInvalidParam.WithDetail("name cannot be empty")
		}
		f.Name = strings.TrimSpace(*in.Name)
	}
	if in.Overview != nil {
		f.Overview = strings.TrimSpace(*in.Overview)
	}
	if in.WelcomeText != nil {
		f.WelcomeText = strings.TrimSpace(*in.WelcomeText)
	}
	if in.IsPublished != nil {
		f.IsPublished = *in.IsPublished
	}
	if in.Fields != nil {
		fields, err := buildFields(in.Fields)
		if err != nil {
			return nil, err
		}
		for i := range fields {
			fields[i].FormID = f.ID
		}
		f.Fields = fields
	}
	f.UpdatedAt = time.Now()

	if err := s.forms.Update(ctx, f); err != nil {
		return nil, err
	}
	s.invalidate(ctx, id)
	return f, nil
}

// Delete 删除表单
func (s *Service) Delete(ctx context.Context, organizationID, id string) error {
	f, err := s.getFromRepo(ctx, id)
	if err != nil {
		return err
	}
	if f.OrganizationID != organizationID {
		return apperrors.ErrForbidden
	}
	if err := s.forms.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, id)
	return nil
}

// List 按组织分页列出表单
func (s *Service) List(ctx context.Context, organizationID string, pagination repository.Pagination) (*repository.PagedResult[*entity.Form], error) {
	return s.forms.ListByOrganization(ctx, organizationID, pagination)
}

func (s *Service) invalidate(ctx context.Context, formID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, redis.BuildFormCacheKey(formID)); err != nil {
		logger.Warn(ctx, "failed to invalidate form cache", "form_id", formID, "error", err.Error())
	}
}

// buildFields 校验并编号字段定义
func buildFields(inputs []FieldInput) ([]entity.FormField, error) {
	fields := make([]entity.FormField, 0, len(inputs))
	seen := make(map[string]struct{}, len(inputs))
	for i, in := range inputs {
		name := strings.TrimSpace(in.FieldName)
		if name == "" {
			return nil, apperrors.ErrInvalidParam.WithDetail("field name is required")
		}
		if _, dup := seen[name]; dup {
			return nil, apperrors.ErrInvalidParam.WithDetail("duplicate field name: " + name)
		}
		seen[name] = struct{}{}
		if err := in.FieldConfiguration.Validate(); err != nil {
			return nil, apperrors.ErrInvalidParam.WithDetail(err.Error())
		}
		fields = append(fields, entity.FormField{
			OrderIndex:         i,
			FieldName:          name,
			FieldDescription:   strings.TrimSpace(in.FieldDescription),
			FieldConfiguration: in.FieldConfiguration,
		})
	}
	return fields, nil
}
