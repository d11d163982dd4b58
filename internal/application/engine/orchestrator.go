package engine

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"

	"convoform-api/internal/domain/entity"
	apperrors "convoform-api/pkg/errors"
	"convoform-api/pkg/logger"
	"convoform-api/pkg/metrics"
)

// Decision 本轮编排的走向
type Decision string

const (
	// DecisionAsk 提问下一个未回答字段
	DecisionAsk Decision = "ask"
	// DecisionReask 抽取失败，针对当前字段换一种问法重新提问
	DecisionReask Decision = "reask"
	// DecisionComplete 全部字段已回答，流式输出结束语
	DecisionComplete Decision = "complete"
)

// TurnStream 一轮编排的结果：决策 + 助手消息的 token 流。
// 流由调用方消费并 Close；Drain 是读完整流的便捷方式。
type TurnStream struct {
	Decision  Decision
	FieldName string
	Stream    *schema.StreamReader[*schema.Message]
}

// Drain 读完底层流并拼接为完整文本，总是 Close 流。
// 流中 Content 为空的尾消息（仅携带 Usage）会被跳过。
func (ts *TurnStream) Drain() (string, error) {
	if ts == nil || ts.Stream == nil {
		return "", nil
	}
	defer ts.Stream.Close()

	var b strings.Builder
	for {
		msg, err := ts.Stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return b.String(), nil
			}
			return b.String(), err
		}
		if msg != nil {
			b.WriteString(msg.Content)
		}
	}
}

// UpdateFunc 会话快照回调。
// 每次成功的编排调用中，所有台账/记录变更落定后、返回流给调用方之前，
// 恰好触发一次；广播与持久化都挂在这里。
type UpdateFunc func(ctx context.Context, conv *entity.Conversation)

// Orchestrator 会话编排器。
// 无内部状态，同一 *entity.Conversation 的并发调用由调用方通过
// 行锁串行化；不同会话之间天然并行。
type Orchestrator struct {
	extractor  Extractor
	question   QuestionStreamer
	summarizer Summarizer
	onUpdate   UpdateFunc
}

// Option 编排器可选项
type Option func(*Orchestrator)

// WithOnUpdate 注册会话快照回调
func WithOnUpdate(fn UpdateFunc) Option {
	return func(o *Orchestrator) {
		o.onUpdate = fn
	}
}

func NewOrchestrator(extractor Extractor, question QuestionStreamer, summarizer Summarizer, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		extractor:  extractor,
		question:   question,
		summarizer: summarizer,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) fireUpdate(ctx context.Context, conv *entity.Conversation) {
	if o.onUpdate != nil {
		o.onUpdate(ctx, conv)
	}
}

// Initialize 开始一次会话并流式提出第一个问题。
// 空台账返回 ErrEmptyFieldLedger；已结束的会话返回 ErrConversationFinished。
// 进行中标记归实时层所有，编排器不写它。
func (o *Orchestrator) Initialize(ctx context.Context, conv *entity.Conversation) (*TurnStream, error) {
	if conv == nil {
		return nil, apperrors.ErrConversationNotFound
	}
	if conv.Finished() {
		return nil, apperrors.ErrConversationFinished
	}
	if len(conv.CollectedData) == 0 {
		return nil, apperrors.ErrEmptyFieldLedger
	}

	next, _, ok := NextEmpty(conv.CollectedData)
	if !ok {
		// 台账已满但未标记结束：直接收尾
		return o.complete(ctx, conv)
	}

	conv.UpdatedAt = time.Now()
	o.fireUpdate(ctx, conv)

	stream, err := o.question.StreamQuestion(ctx, conv, next, "")
	if err != nil {
		return nil, err
	}
	return &TurnStream{Decision: DecisionAsk, FieldName: next.FieldName, Stream: stream}, nil
}

// Process 处理回答者的一条消息：
// 追加 user 记录，针对 currentFieldID 指定的字段抽取答案，
// 按结果推进状态机，触发一次快照回调，然后返回下一条助手消息的流。
func (o *Orchestrator) Process(ctx context.Context, conv *entity.Conversation, answerText, currentFieldID string) (*TurnStream, error) {
	started := time.Now()
	ts, err := o.process(ctx, conv, answerText, currentFieldID)

	outcome := "error"
	if err == nil && ts != nil {
		switch {
		case ts.Stream == nil:
			outcome = "duplicate"
		case ts.Decision == DecisionReask:
			outcome = "reask"
		case ts.Decision == DecisionComplete:
			outcome = "completed"
		default:
			outcome = "extracted"
		}
	}
	metrics.ConversationTurnsTotal.WithLabelValues(outcome).Inc()
	metrics.ConversationTurnDuration.WithLabelValues(outcome).Observe(time.Since(started).Seconds())
	return ts, err
}

func (o *Orchestrator) process(ctx context.Context, conv *entity.Conversation, answerText, currentFieldID string) (*TurnStream, error) {
	if conv == nil {
		return nil, apperrors.ErrConversationNotFound
	}
	if conv.Finished() {
		return nil, apperrors.ErrConversationFinished
	}
	if len(conv.CollectedData) == 0 {
		return nil, apperrors.ErrEmptyFieldLedger
	}

	current, ok := FieldByID(conv.CollectedData, currentFieldID)
	if !ok {
		return nil, apperrors.ErrFieldNotFound.WithDetail(currentFieldID)
	}
	if current.Answered() {
		// 重复提交（双击竞态）：会话已经推进过了，不做任何变更，
		// 返回当前状态即可，答案绝不能落到别的字段上。
		if next, _, ok := NextEmpty(conv.CollectedData); ok {
			return &TurnStream{Decision: DecisionAsk, FieldName: next.FieldName}, nil
		}
		return &TurnStream{Decision: DecisionComplete}, nil
	}

	conv.Transcript = append(conv.Transcript, entity.Turn{
		Role:      entity.RoleUser,
		Content:   strings.TrimSpace(answerText),
		FieldName: current.FieldName,
	})

	outcome, err := o.extractor.ExtractAnswer(ctx, conv, current, answerText)
	if err != nil {
		return nil, err
	}

	if !outcome.IsAnswerExtracted {
		// 抽取失败：记录保留用户消息，台账不动，针对同一字段重新提问
		conv.UpdatedAt = time.Now()
		o.fireUpdate(ctx, conv)

		stream, err := o.question.StreamQuestion(ctx, conv, current, outcome.ReasonForFailure)
		if err != nil {
			return nil, err
		}
		return &TurnStream{Decision: DecisionReask, FieldName: current.FieldName, Stream: stream}, nil
	}

	if err := SetValue(conv.CollectedData, current.FieldName, outcome.ExtractedAnswer); err != nil {
		return nil, err
	}
	for name, value := range outcome.OtherAnswers {
		SetOpportunistic(conv.CollectedData, name, value)
	}

	if IsComplete(conv.CollectedData) {
		return o.complete(ctx, conv)
	}

	next, _, _ := NextEmpty(conv.CollectedData)
	conv.UpdatedAt = time.Now()
	o.fireUpdate(ctx, conv)

	stream, err := o.question.StreamQuestion(ctx, conv, next, "")
	if err != nil {
		return nil, err
	}
	return &TurnStream{Decision: DecisionAsk, FieldName: next.FieldName, Stream: stream}, nil
}

// complete 收尾：生成摘要命名、标记结束、触发快照回调并流式输出结束语。
// 摘要失败不阻断收尾，保留原会话名。
func (o *Orchestrator) complete(ctx context.Context, conv *entity.Conversation) (*TurnStream, error) {
	if summary, err := o.summarizer.Summarize(ctx, conv); err != nil {
		logger.Warn(ctx, "conversation summary failed, keeping default name",
			"conversation_id", conv.ID,
			"error", err.Error(),
		)
	} else {
		conv.Name = summary.Name
		conv.MetaData = mergeMetaData(conv.MetaData, "summary_reasoning", summary.Reasoning)
	}

	now := time.Now()
	conv.FinishedAt = &now
	conv.UpdatedAt = now
	o.fireUpdate(ctx, conv)
	metrics.ConversationsCompletedTotal.Inc()

	stream, err := o.summarizer.StreamEnding(ctx, conv)
	if err != nil {
		return nil, err
	}
	return &TurnStream{Decision: DecisionComplete, Stream: stream}, nil
}

// GoToPreviousQuestion 返回上一题：从记录末尾弹出最近一条助手消息
// 与最近一条用户消息，把对应字段的值清回未回答，并返回被弹出的回答
// 原文供调用方回填输入框。记录不足两条时不做任何变更，返回空串。
func (o *Orchestrator) GoToPreviousQuestion(ctx context.Context, conv *entity.Conversation) (string, error) {
	if conv == nil {
		return "", apperrors.ErrConversationNotFound
	}
	if conv.Finished() {
		return "", apperrors.ErrConversationFinished
	}
	if len(conv.Transcript) < 2 {
		return "", nil
	}

	assistantIdx := lastTurnIndex(conv.Transcript, entity.RoleAssistant)
	userIdx := lastTurnIndex(conv.Transcript, entity.RoleUser)
	if assistantIdx < 0 || userIdx < 0 {
		return "", nil
	}

	popped := conv.Transcript[userIdx]
	conv.Transcript = removeTurns(conv.Transcript, assistantIdx, userIdx)
	if popped.FieldName != "" {
		ClearValue(conv.CollectedData, popped.FieldName)
	}
	conv.UpdatedAt = time.Now()
	o.fireUpdate(ctx, conv)

	return popped.Content, nil
}

// AppendAssistantReply 将流排空后的助手消息写回记录。
// 由调用方在消费完 TurnStream 后调用并负责保存。
func AppendAssistantReply(conv *entity.Conversation, fieldName, content string) {
	if conv == nil || strings.TrimSpace(content) == "" {
		return
	}
	conv.Transcript = append(conv.Transcript, entity.Turn{
		Role:      entity.RoleAssistant,
		Content:   strings.TrimSpace(content),
		FieldName: fieldName,
	})
	conv.UpdatedAt = time.Now()
}

func lastTurnIndex(t entity.Transcript, role entity.Role) int {
	for i := len(t) - 1; i >= 0; i-- {
		if t[i].Role == role {
			return i
		}
	}
	return -1
}

// removeTurns 移除记录中下标 i、j 两条消息，保持其余顺序不变
func removeTurns(t entity.Transcript, i, j int) entity.Transcript {
	if i < j {
		i, j = j, i
	}
	out := make(entity.Transcript, 0, len(t)-2)
	out = append(out, t[:j]...)
	out = append(out, t[j+1:i]...)
	return append(out, t[i+1:]...)
}

func mergeMetaData(meta json.RawMessage, key, value string) json.RawMessage {
	m := map[string]any{}
	if len(meta) > 0 {
		_ = json.Unmarshal(meta, &m)
	}
	m[key] = value
	out, err := json.Marshal(m)
	if err != nil {
		return meta
	}
	return out
}
