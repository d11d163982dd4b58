// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"convoform-api/internal/domain/entity"
	"convoform-api/internal/domain/repository"
)

type FormRepository struct {
	client *Client
}

func NewFormRepository(client *Client) *FormRepository {
	return &FormRepository{client: client}
}

func (r *FormRepository) Create(ctx context.Context, form *entity.Form) error {
	ctx, span := tracer.Start(ctx, "postgres.FormRepository.Create")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Create(form).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create form: %w", err)
	}
	return nil
}

func (r *FormRepository) GetByID(ctx context.Context, id string) (*entity.Form, error) {
	ctx, span := tracer.Start(ctx, "postgres.FormRepository.GetByID")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var form entity.Form
	err := db.Preload("Fields", func(db *gorm.DB) *gorm.DB {
		return db.Order("order_index ASC")
	}).First(&form, "id = ?", id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get form: %w", err)
	}
	return &form, nil
}

func (r *FormRepository) Update(ctx context.Context, form *entity.Form) error {
	ctx, span := tracer.Start(ctx, "postgres.FormRepository.Update")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Save(form).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to update form: %w", err)
	}
	return nil
}

func (r *FormRepository) Delete(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "postgres.FormRepository.Delete")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Where("form_id = ?", id).Delete(&entity.FormField{}).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete form fields: %w", err)
	}
	if err := db.Delete(&entity.Form{}, "id = ?", id).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete form: %w", err)
	}
	return nil
}

func (r *FormRepository) ListByOrganization(ctx context.Context, organizationID string, pagination repository.Pagination) (*repository.PagedResult[*entity.Form], error) {
	ctx, span := tracer.Start(ctx, "postgres.FormRepository.ListByOrganization")
	defer span.End()

	db := getDB(ctx, r.client.db)
	query := db.Model(&entity.Form{}).Where("organization_id = ?", organizationID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to count forms: %w", err)
	}

	var forms []*entity.Form
	if err := query.Order("created_at DESC").
		Offset(pagination.Offset()).
		Limit(pagination.Limit()).
		Find(&forms).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list forms: %w", err)
	}

	return repository.NewPagedResult(forms, total, pagination), nil
}
