// Package engine 实现会话编排引擎：驱动一次表单作答会话的
// 提问、答案抽取、完成判定与返回上一题。
//
// 引擎本身无持久化状态，所有变更落在传入的 *entity.Conversation 上；
// 调用方负责加载（含行锁）与保存。
package engine

import (
	"context"

	"github.com/cloudwego/eino/schema"

	"convoform-api/internal/domain/entity"
)

// ExtractionOutcome 一次答案抽取的结果。
// OtherAnswers 是回答者顺带给出的其它字段答案（字段名 -> 答案），
// 只会填入尚为空的槽位。
type ExtractionOutcome struct {
	IsAnswerExtracted bool
	ExtractedAnswer   string
	ReasonForFailure  string
	OtherAnswers      map[string]string
}

// Extractor 从自由文本回复中抽取当前字段的结构化答案
type Extractor interface {
	ExtractAnswer(ctx context.Context, conv *entity.Conversation, field *entity.CollectedField, answerText string) (*ExtractionOutcome, error)
}

// QuestionStreamer 为指定字段生成下一条提问消息的 token 流。
// extractionNote 非空时表示上一次抽取失败，提问应承认并换一种问法。
// 调用方负责 Close 返回的流。
type QuestionStreamer interface {
	StreamQuestion(ctx context.Context, conv *entity.Conversation, field *entity.CollectedField, extractionNote string) (*schema.StreamReader[*schema.Message], error)
}

// Summary 会话完成后的摘要
type Summary struct {
	Name      string `json:"name"`
	Reasoning string `json:"reasoning"`
}

// Summarizer 在会话完成时生成摘要与结束语
type Summarizer interface {
	Summarize(ctx context.Context, conv *entity.Conversation) (*Summary, error)
	StreamEnding(ctx context.Context, conv *entity.Conversation) (*schema.StreamReader[*schema.Message], error)
}
