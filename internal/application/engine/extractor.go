package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	openaiopts "github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"

	"convoform-api/internal/domain/entity"
	einoobs "convoform-api/internal/observability/eino"
	wfnode "convoform-api/internal/workflow/node"
	workflowport "convoform-api/internal/workflow/port"
	workflowprompt "convoform-api/internal/workflow/prompt"
	apperrors "convoform-api/pkg/errors"
	"convoform-api/pkg/logger"
)

var promptRegistry = workflowprompt.NewRegistry()

// EinoExtractor 基于 ChatModel 的答案抽取器。
// 优先走 json_schema 结构化输出，provider 不支持时退化为纯 prompt 约束。
type EinoExtractor struct {
	factory  workflowport.ChatModelFactory
	provider string
}

func NewEinoExtractor(factory workflowport.ChatModelFactory, provider string) *EinoExtractor {
	return &EinoExtractor{factory: factory, provider: provider}
}

// extractResultJSON 模型输出的原始 JSON 形状
type extractResultJSON struct {
	IsAnswerExtracted bool   `json:"isAnswerExtracted"`
	ExtractedAnswer   string `json:"extractedAnswer"`
	ReasonForFailure  string `json:"reasonForFailure"`
	OtherFieldsData   []struct {
		FieldName  string `json:"fieldName"`
		FieldValue string `json:"fieldValue"`
	} `json:"otherFieldsData"`
}

func (e *EinoExtractor) ExtractAnswer(ctx context.Context, conv *entity.Conversation, field *entity.CollectedField, answerText string) (*ExtractionOutcome, error) {
	if e == nil || e.factory == nil {
		return nil, fmt.Errorf("llm factory not configured")
	}
	if conv == nil || field == nil {
		return nil, fmt.Errorf("conversation or field is nil")
	}

	ctx = einoobs.WithStage(ctx, "answer_extraction")
	ctx = einoobs.WithProvider(ctx, e.provider)

	chatModel, err := e.factory.Get(ctx, e.provider)
	if err != nil {
		return nil, apperrors.ErrLLMCallFailed.WithError(err)
	}

	tpl, err := promptRegistry.ChatTemplate(workflowprompt.PromptAnswerExtractV1)
	if err != nil {
		return nil, err
	}
	msgs, err := tpl.Format(ctx, map[string]any{
		"field_name":        field.FieldName,
		"field_description": field.FieldDescription,
		"field_kind":        string(field.FieldConfiguration.Kind),
		"field_constraints": fieldConstraintsBlock(field.FieldConfiguration),
		"all_fields":        allFieldsBlock(conv.CollectedData),
		"question":          lastQuestionFor(conv.Transcript, field.FieldName),
		"answer_text":       strings.TrimSpace(answerText),
	})
	if err != nil {
		return nil, err
	}

	outMsg, err := chatModel.Generate(ctx, msgs, extractModelOptions(true)...)
	if err != nil && wfnode.IsResponseFormatUnsupportedError(err) {
		logger.Warn(ctx, "llm json_schema not supported, fallback to prompt-only",
			"provider", e.provider,
			"error", err.Error(),
		)
		outMsg, err = chatModel.Generate(ctx, msgs, extractModelOptions(false)...)
	}
	if err != nil {
		return nil, apperrors.ErrLLMCallFailed.WithError(err)
	}
	if outMsg == nil || strings.TrimSpace(outMsg.Content) == "" {
		return nil, apperrors.ErrLLMCallFailed.WithDetail("empty llm response")
	}

	var raw extractResultJSON
	if err := json.Unmarshal([]byte(wfnode.ExtractJSONObject(outMsg.Content)), &raw); err != nil {
		// 解析不了就按抽取失败处理，让编排器重新提问，而不是让整轮失败
		logger.Warn(ctx, "unparseable extraction response, treating as not extracted",
			"field", field.FieldName,
			"error", err.Error(),
		)
		return &ExtractionOutcome{
			IsAnswerExtracted: false,
			ReasonForFailure:  "the answer could not be understood",
		}, nil
	}

	outcome := &ExtractionOutcome{
		IsAnswerExtracted: raw.IsAnswerExtracted,
		ExtractedAnswer:   strings.TrimSpace(raw.ExtractedAnswer),
		ReasonForFailure:  strings.TrimSpace(raw.ReasonForFailure),
	}
	for _, other := range raw.OtherFieldsData {
		name := strings.TrimSpace(other.FieldName)
		value := strings.TrimSpace(other.FieldValue)
		if name == "" || value == "" || name == field.FieldName {
			continue
		}
		if outcome.OtherAnswers == nil {
			outcome.OtherAnswers = make(map[string]string)
		}
		outcome.OtherAnswers[name] = value
	}

	if outcome.IsAnswerExtracted && outcome.ExtractedAnswer == "" {
		outcome.IsAnswerExtracted = false
		outcome.ReasonForFailure = "no usable answer was given"
	}

	// 模型声称抽取成功也要按字段类型复核，失败则降级为重新提问
	if outcome.IsAnswerExtracted {
		if reason := validateAnswer(field.FieldConfiguration, outcome.ExtractedAnswer); reason != "" {
			outcome.IsAnswerExtracted = false
			outcome.ExtractedAnswer = ""
			outcome.ReasonForFailure = reason
		}
	}
	return outcome, nil
}

// validateAnswer 按字段类型复核答案，返回空串表示合法
func validateAnswer(cfg entity.FieldConfiguration, answer string) string {
	switch cfg.Kind {
	case entity.FieldKindMultipleChoice:
		if cfg.MultipleChoice == nil {
			return ""
		}
		if slices.Contains(cfg.MultipleChoice.Options, answer) {
			return ""
		}
		if cfg.MultipleChoice.AllowOther {
			return ""
		}
		return "the answer is not one of the allowed options"
	case entity.FieldKindDatePicker:
		if _, err := time.Parse("2006-01-02", answer); err != nil {
			return "the answer is not a recognizable date"
		}
		return ""
	case entity.FieldKindRating:
		n, err := strconv.Atoi(answer)
		if err != nil {
			return "the answer is not a whole number"
		}
		if cfg.Rating != nil && (n < 1 || n > cfg.Rating.MaxRating) {
			return fmt.Sprintf("the rating must be between 1 and %d", cfg.Rating.MaxRating)
		}
		return ""
	default:
		return ""
	}
}

func extractModelOptions(enableSchema bool) []model.Option {
	opts := make([]model.Option, 0, 2)
	if enableSchema {
		opts = append(opts, openaiopts.WithExtraFields(map[string]any{
			"response_format": map[string]any{
				"type": "json_schema",
				"json_schema": map[string]any{
					"name":   "answer_extraction",
					"strict": false,
					"schema": extractJSONSchema(),
				},
			},
		}))
	}
	return opts
}

func extractJSONSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []any{"isAnswerExtracted"},
		"properties": map[string]any{
			"isAnswerExtracted": map[string]any{"type": "boolean"},
			"extractedAnswer":   map[string]any{"type": "string"},
			"reasonForFailure":  map[string]any{"type": "string"},
			"otherFieldsData": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":                 "object",
					"additionalProperties": false,
					"required":             []any{"fieldName", "fieldValue"},
					"properties": map[string]any{
						"fieldName":  map[string]any{"type": "string"},
						"fieldValue": map[string]any{"type": "string"},
					},
				},
			},
		},
	}
}
