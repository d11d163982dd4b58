// Package conversation 实现会话应用服务：
// 加载/创建会话，驱动编排引擎，并把引擎的快照回调
// 接到持久化与实时广播上。
package conversation

import (
	"context"

	"convoform-api/internal/application/engine"
	formapp "convoform-api/internal/application/form"
	"convoform-api/internal/application/realtime"
	"convoform-api/internal/domain/entity"
	"convoform-api/internal/domain/repository"
	apperrors "convoform-api/pkg/errors"
	"convoform-api/pkg/logger"
	"convoform-api/pkg/tracer"
)

// Service 会话应用服务。
// 同一会话的并发轮次通过行锁串行化：每次编排都在
// GetByIDForUpdate 的事务内完成。
type Service struct {
	conversations repository.ConversationRepository
	forms         *formapp.Service
	tx            repository.Transactor
	hub           *realtime.Hub

	extractor  engine.Extractor
	question   engine.QuestionStreamer
	summarizer engine.Summarizer
}

func NewService(
	conversations repository.ConversationRepository,
	forms *formapp.Service,
	tx repository.Transactor,
	hub *realtime.Hub,
	extractor engine.Extractor,
	question engine.QuestionStreamer,
	summarizer engine.Summarizer,
) *Service {
	return &Service{
		conversations: conversations,
		forms:         forms,
		tx:            tx,
		hub:           hub,
		extractor:     extractor,
		question:      question,
		summarizer:    summarizer,
	}
}

// orchestratorFor 构造绑定到该会话的编排器。
// 快照回调负责持久化与广播：引擎保证每次成功编排恰好触发一次，
// 且总在调用方拿到流之前。
func (s *Service) orchestratorFor() *engine.Orchestrator {
	return engine.NewOrchestrator(s.extractor, s.question, s.summarizer,
		engine.WithOnUpdate(func(ctx context.Context, conv *entity.Conversation) {
			if err := s.conversations.Update(ctx, conv); err != nil {
				logger.Error(ctx, "failed to persist conversation snapshot", err, "conversation_id", conv.ID)
			}
			if s.hub != nil {
				s.hub.NotifyConversationUpdated(ctx, conv.OrganizationID, conv.FormID, conv.ID, conv)
			}
		}),
	)
}

// Start 依据表单创建新会话并流式提出第一个问题
func (s *Service) Start(ctx context.Context, formID string) (*entity.Conversation, *engine.TurnStream, error) {
	f, err := s.forms.Get(ctx, formID)
	if err != nil {
		return nil, nil, err
	}
	if !f.IsPublished {
		return nil, nil, apperrors.ErrFormNotFound.WithDetail("form is not published")
	}
	if len(f.Fields) == 0 {
		return nil, nil, apperrors.ErrEmptyFieldLedger
	}

	conv := entity.NewConversationFromForm(f)
	if err := s.conversations.Create(ctx, conv); err != nil {
		return nil, nil, err
	}
	tracer.AnnotateConversation(ctx, conv.ID, conv.FormID)

	ts, err := s.orchestratorFor().Initialize(ctx, conv)
	if err != nil {
		return nil, nil, err
	}

	if s.hub != nil {
		s.hub.NotifyConversationStarted(ctx, conv.OrganizationID, conv.FormID, conv.ID)
	}
	logger.Info(ctx, "conversation started", "conversation_id", conv.ID, "form_id", formID)
	return conv, ts, nil
}

// Get 读取会话
func (s *Service) Get(ctx context.Context, id string) (*entity.Conversation, error) {
	conv, err := s.conversations.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, apperrors.ErrConversationNotFound
	}
	return conv, nil
}

// ListByForm 分页列出表单下的会话
func (s *Service) ListByForm(ctx context.Context, formID string, pagination repository.Pagination) (*repository.PagedResult[*entity.Conversation], error) {
	return s.conversations.ListByForm(ctx, formID, pagination)
}

// ProcessTurn 处理一条回答，currentFieldID 指明该回答针对的字段。
// 整个编排在行锁事务内执行，返回的流在事务提交后由调用方消费。
func (s *Service) ProcessTurn(ctx context.Context, conversationID, answerText, currentFieldID string) (*entity.Conversation, *engine.TurnStream, error) {
	var (
		conv *entity.Conversation
		ts   *engine.TurnStream
	)
	err := s.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		c, err := s.conversations.GetByIDForUpdate(txCtx, conversationID)
		if err != nil {
			return err
		}
		if c == nil {
			return apperrors.ErrConversationNotFound
		}
		tracer.AnnotateConversation(txCtx, c.ID, c.FormID)
		ts, err = s.orchestratorFor().Process(txCtx, c, answerText, currentFieldID)
		if err != nil {
			return err
		}
		conv = c
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return conv, ts, nil
}

// GoBack 返回上一题：弹出最近的一问一答，返回被弹出的回答原文。
// 记录不足两条时不做变更，回答原文为空串。
func (s *Service) GoBack(ctx context.Context, conversationID string) (*entity.Conversation, string, error) {
	var (
		conv           *entity.Conversation
		previousAnswer string
	)
	err := s.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		c, err := s.conversations.GetByIDForUpdate(txCtx, conversationID)
		if err != nil {
			return err
		}
		if c == nil {
			return apperrors.ErrConversationNotFound
		}
		tracer.AnnotateConversation(txCtx, c.ID, c.FormID)
		previousAnswer, err = s.orchestratorFor().GoToPreviousQuestion(txCtx, c)
		if err != nil {
			return err
		}
		conv = c
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	return conv, previousAnswer, nil
}

// RecordAssistantReply 将排空后的助手消息写回会话记录并保存。
// 由接口层在流消费完毕后调用。
func (s *Service) RecordAssistantReply(ctx context.Context, conversationID, fieldName, content string) error {
	return s.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		conv, err := s.conversations.GetByIDForUpdate(txCtx, conversationID)
		if err != nil {
			return err
		}
		if conv == nil {
			return apperrors.ErrConversationNotFound
		}
		engine.AppendAssistantReply(conv, fieldName, content)
		return s.conversations.Update(txCtx, conv)
	})
}
