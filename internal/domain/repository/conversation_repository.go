// Package repository 定义数据访问层接口
package repository

import (
	"context"

	"convoform-api/internal/domain/entity"
)

type ConversationRepository interface {
	Create(ctx context.Context, conversation *entity.Conversation) error
	// GetByID 未找到返回 (nil, nil)
	GetByID(ctx context.Context, id string) (*entity.Conversation, error)
	// GetByIDForUpdate 行级锁读取，用于对同一会话的变更串行化
	GetByIDForUpdate(ctx context.Context, id string) (*entity.Conversation, error)
	Update(ctx context.Context, conversation *entity.Conversation) error
	ListByForm(ctx context.Context, formID string, pagination Pagination) (*PagedResult[*entity.Conversation], error)
	// MarkProgress 设置 isInProgress 标记；由实时广播层调用，尽力而为
	MarkProgress(ctx context.Context, id string, inProgress bool) error
}
