package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openaiopts "github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"convoform-api/internal/domain/entity"
	einoobs "convoform-api/internal/observability/eino"
	wfnode "convoform-api/internal/workflow/node"
	workflowport "convoform-api/internal/workflow/port"
	workflowprompt "convoform-api/internal/workflow/prompt"
	apperrors "convoform-api/pkg/errors"
	"convoform-api/pkg/logger"
)

// EinoSummarizer 会话完成时生成命名摘要与结束语
type EinoSummarizer struct {
	factory  workflowport.ChatModelFactory
	provider string
}

func NewEinoSummarizer(factory workflowport.ChatModelFactory, provider string) *EinoSummarizer {
	return &EinoSummarizer{factory: factory, provider: provider}
}

func (s *EinoSummarizer) Summarize(ctx context.Context, conv *entity.Conversation) (*Summary, error) {
	if s == nil || s.factory == nil {
		return nil, fmt.Errorf("llm factory not configured")
	}
	if conv == nil {
		return nil, fmt.Errorf("conversation is nil")
	}

	ctx = einoobs.WithStage(ctx, "conversation_summary")
	ctx = einoobs.WithProvider(ctx, s.provider)

	chatModel, err := s.factory.Get(ctx, s.provider)
	if err != nil {
		return nil, apperrors.ErrLLMCallFailed.WithError(err)
	}

	tpl, err := promptRegistry.ChatTemplate(workflowprompt.PromptCompletionSummaryV1)
	if err != nil {
		return nil, err
	}
	msgs, err := tpl.Format(ctx, map[string]any{
		"form_overview":  strings.TrimSpace(conv.FormOverview),
		"collected_data": collectedDataBlock(conv.CollectedData),
	})
	if err != nil {
		return nil, err
	}

	outMsg, err := chatModel.Generate(ctx, msgs, summaryModelOptions(true)...)
	if err != nil && wfnode.IsResponseFormatUnsupportedError(err) {
		logger.Warn(ctx, "llm json_schema not supported, fallback to prompt-only",
			"provider", s.provider,
			"error", err.Error(),
		)
		outMsg, err = chatModel.Generate(ctx, msgs, summaryModelOptions(false)...)
	}
	if err != nil {
		return nil, apperrors.ErrLLMCallFailed.WithError(err)
	}
	if outMsg == nil || strings.TrimSpace(outMsg.Content) == "" {
		return nil, apperrors.ErrLLMCallFailed.WithDetail("empty llm response")
	}

	var summary Summary
	if err := json.Unmarshal([]byte(wfnode.ExtractJSONObject(outMsg.Content)), &summary); err != nil {
		return nil, apperrors.ErrLLMCallFailed.WithError(err)
	}
	summary.Name = strings.TrimSpace(summary.Name)
	summary.Reasoning = strings.TrimSpace(summary.Reasoning)
	if summary.Name == "" {
		return nil, apperrors.ErrLLMCallFailed.WithDetail("empty summary name")
	}
	return &summary, nil
}

// StreamEnding 返回结束语 token 流；调用方负责 Close()。
func (s *EinoSummarizer) StreamEnding(ctx context.Context, conv *entity.Conversation) (*schema.StreamReader[*schema.Message], error) {
	if s == nil || s.factory == nil {
		return nil, fmt.Errorf("llm factory not configured")
	}
	if conv == nil {
		return nil, fmt.Errorf("conversation is nil")
	}

	ctx = einoobs.WithStage(ctx, "ending_message")
	ctx = einoobs.WithProvider(ctx, s.provider)

	chatModel, err := s.factory.Get(ctx, s.provider)
	if err != nil {
		return nil, apperrors.ErrLLMCallFailed.WithError(err)
	}

	tpl, err := promptRegistry.ChatTemplate(workflowprompt.PromptEndingMessageV1)
	if err != nil {
		return nil, err
	}
	msgs, err := tpl.Format(ctx, map[string]any{
		"form_overview":  strings.TrimSpace(conv.FormOverview),
		"collected_data": collectedDataBlock(conv.CollectedData),
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

func summaryModelOptions(enableSchema bool) []model.Option {
	opts := make([]model.Option, 0, 1)
	if enableSchema {
		opts = append(opts, openaiopts.WithExtraFields(map[string]any{
			"response_format": map[string]any{
				"type": "json_schema",
				"json_schema": map[string]any{
					"name":   "conversation_summary",
					"strict": false,
					"schema": map[string]any{
						"type":                 "object",
						"additionalProperties": false,
						"required":             []any{"name", "reasoning"},
						"properties": map[string]any{
							"name":      map[string]any{"type": "string"},
							"reasoning": map[string]any{"type": "string"},
						},
					},
				},
			},
		}))
	}
	return opts
}
