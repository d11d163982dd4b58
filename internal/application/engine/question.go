package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	"convoform-api/internal/domain/entity"
	einoobs "convoform-api/internal/observability/eino"
	workflowport "convoform-api/internal/workflow/port"
	workflowprompt "convoform-api/internal/workflow/prompt"
	apperrors "convoform-api/pkg/errors"
)

// EinoQuestionStreamer 基于 ChatModel 的提问生成器，输出 token 流
type EinoQuestionStreamer struct {
	factory  workflowport.ChatModelFactory
	provider string
}

func NewEinoQuestionStreamer(factory workflowport.ChatModelFactory, provider string) *EinoQuestionStreamer {
	return &EinoQuestionStreamer{factory: factory, provider: provider}
}

// StreamQuestion 返回 Eino StreamReader；调用方负责 Close()。
// 约定：流可能在最后返回一个 Content 为空但包含 Usage 的消息，用于 Token 统计。
func (q *EinoQuestionStreamer) StreamQuestion(ctx context.Context, conv *entity.Conversation, field *entity.CollectedField, extractionNote string) (*schema.StreamReader[*schema.Message], error) {
	if q == nil || q.factory == nil {
		return nil, fmt.Errorf("llm factory not configured")
	}
	if conv == nil || field == nil {
		return nil, fmt.Errorf("conversation or field is nil")
	}

	ctx = einoobs.WithStage(ctx, "question_generation")
	ctx = einoobs.WithProvider(ctx, q.provider)

	chatModel, err := q.factory.Get(ctx, q.provider)
	if err != nil {
		return nil, apperrors.ErrLLMCallFailed.WithError(err)
	}

	tpl, err := promptRegistry.ChatTemplate(workflowprompt.PromptQuestionGenV1)
	if err != nil {
		return nil, err
	}

	note := ""
	if strings.TrimSpace(extractionNote) != "" {
		note = "The previous answer could not be used: " + strings.TrimSpace(extractionNote) + ". Acknowledge this briefly and rephrase."
	}

	msgs, err := tpl.Format(ctx, map[string]any{
		"form_overview":     strings.TrimSpace(conv.FormOverview),
		"transcript":        transcriptBlock(conv.Transcript),
		"answered_fields":   answeredFieldsBlock(conv.CollectedData),
		"field_name":        field.FieldName,
		"field_description": field.FieldDescription,
		"field_kind":        string(field.FieldConfiguration.Kind),
		"field_constraints": fieldConstraintsBlock(field.FieldConfiguration),
		"extraction_note":   note,
	})
	if err != nil {
		return nil, err
	}

	stream, err := chatModel.Stream(ctx, msgs)
	if err != nil {
		return nil, apperrors.ErrLLMCallFailed.WithError(err)
	}
	return stream, nil
}
