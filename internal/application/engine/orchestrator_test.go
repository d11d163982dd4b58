package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"

	"convoform-api/internal/domain/entity"
	apperrors "convoform-api/pkg/errors"
)

func textStream(text string) *schema.StreamReader[*schema.Message] {
	return schema.StreamReaderFromArray([]*schema.Message{
		{Role: schema.Assistant, Content: text},
	})
}

// echoExtractor 总是抽取成功，答案即用户原文
type echoExtractor struct{}

func (echoExtractor) ExtractAnswer(_ context.Context, _ *entity.Conversation, _ *entity.CollectedField, answerText string) (*ExtractionOutcome, error) {
	return &ExtractionOutcome{
		IsAnswerExtracted: true,
		ExtractedAnswer:   strings.TrimSpace(answerText),
	}, nil
}

// scriptedExtractor 按脚本依次返回抽取结果
type scriptedExtractor struct {
	outcomes []*ExtractionOutcome
	calls    int
}

func (s *scriptedExtractor) ExtractAnswer(context.Context, *entity.Conversation, *entity.CollectedField, string) (*ExtractionOutcome, error) {
	if s.calls >= len(s.outcomes) {
		return nil, fmt.Errorf("unexpected extractor call %d", s.calls)
	}
	out := s.outcomes[s.calls]
	s.calls++
	return out, nil
}

// questionRecorder 记录每次提问针对的字段与失败说明
type questionRecorder struct {
	fields []string
	notes  []string
}

func (q *questionRecorder) StreamQuestion(_ context.Context, _ *entity.Conversation, field *entity.CollectedField, note string) (*schema.StreamReader[*schema.Message], error) {
	q.fields = append(q.fields, field.FieldName)
	q.notes = append(q.notes, note)
	return textStream("请问您的" + field.FieldName + "是？"), nil
}

type stubSummarizer struct {
	summary    *Summary
	summaryErr error
}

func (s *stubSummarizer) Summarize(context.Context, *entity.Conversation) (*Summary, error) {
	if s.summaryErr != nil {
		return nil, s.summaryErr
	}
	if s.summary != nil {
		return s.summary, nil
	}
	return &Summary{Name: "测试会话", Reasoning: "stub"}, nil
}

func (s *stubSummarizer) StreamEnding(context.Context, *entity.Conversation) (*schema.StreamReader[*schema.Message], error) {
	return textStream("感谢您完成本次表单。"), nil
}

// updateRecorder 记录快照回调触发次数
type updateRecorder struct {
	count int
}

func (u *updateRecorder) fn(_ context.Context, _ *entity.Conversation) {
	u.count++
}

func testConversation(fieldNames ...string) *entity.Conversation {
	fields := make(entity.CollectedFields, 0, len(fieldNames))
	for i, name := range fieldNames {
		fields = append(fields, entity.CollectedField{
			ID:                 fmt.Sprintf("field-%d", i),
			FieldName:          name,
			FieldDescription:   name,
			FieldConfiguration: entity.FieldConfiguration{Kind: entity.FieldKindText},
		})
	}
	return &entity.Conversation{
		ID:            "conv-1",
		FormID:        "form-1",
		Name:          "New Conversation",
		FormOverview:  "收集联系方式的测试表单",
		Transcript:    entity.Transcript{},
		CollectedData: fields,
	}
}

func mustDrain(t *testing.T, ts *TurnStream) string {
	t.Helper()
	text, err := ts.Drain()
	if err != nil {
		t.Fatalf("读取流失败: %v", err)
	}
	return text
}

func TestInitializeAsksFirstQuestion(t *testing.T) {
	ctx := context.Background()
	questions := &questionRecorder{}
	updates := &updateRecorder{}
	o := NewOrchestrator(echoExtractor{}, questions, &stubSummarizer{}, WithOnUpdate(updates.fn))

	conv := testConversation("姓名", "邮箱")
	ts, err := o.Initialize(ctx, conv)
	if err != nil {
		t.Fatalf("初始化失败: %v", err)
	}

	if ts.Decision != DecisionAsk || ts.FieldName != "姓名" {
		t.Errorf("期望提问第一个字段 姓名，实际为 %s/%s", ts.Decision, ts.FieldName)
	}
	if conv.IsInProgress {
		t.Error("进行中标记归实时层所有，编排器不应写它")
	}
	if updates.count != 1 {
		t.Errorf("快照回调应恰好触发一次，实际为 %d", updates.count)
	}
	if text := mustDrain(t, ts); !strings.Contains(text, "姓名") {
		t.Errorf("问题应针对 姓名 字段，实际为 %q", text)
	}
}

func TestInitializeGuards(t *testing.T) {
	ctx := context.Background()
	o := NewOrchestrator(echoExtractor{}, &questionRecorder{}, &stubSummarizer{})

	if _, err := o.Initialize(ctx, nil); !errors.Is(err, apperrors.ErrConversationNotFound) {
		t.Errorf("nil 会话应返回 ErrConversationNotFound，实际为 %v", err)
	}

	empty := testConversation()
	if _, err := o.Initialize(ctx, empty); !errors.Is(err, apperrors.ErrEmptyFieldLedger) {
		t.Errorf("空台账应返回 ErrEmptyFieldLedger，实际为 %v", err)
	}

	finished := testConversation("姓名")
	finished.FinishedAt = &finished.CreatedAt
	if _, err := o.Initialize(ctx, finished); !errors.Is(err, apperrors.ErrConversationFinished) {
		t.Errorf("已结束会话应返回 ErrConversationFinished，实际为 %v", err)
	}
	if _, err := o.Process(ctx, finished, "你好", "field-0"); !errors.Is(err, apperrors.ErrConversationFinished) {
		t.Errorf("已结束会话的 Process 应返回 ErrConversationFinished，实际为 %v", err)
	}
	if _, err := o.GoToPreviousQuestion(ctx, finished); !errors.Is(err, apperrors.ErrConversationFinished) {
		t.Errorf("已结束会话的回退应返回 ErrConversationFinished，实际为 %v", err)
	}
}

// 两字段表单的完整走查：提问、回答、推进、完成
func TestTwoFieldConversationFlow(t *testing.T) {
	ctx := context.Background()
	questions := &questionRecorder{}
	updates := &updateRecorder{}
	o := NewOrchestrator(echoExtractor{}, questions, &stubSummarizer{summary: &Summary{Name: "张三的反馈", Reasoning: "包含姓名与邮箱"}}, WithOnUpdate(updates.fn))

	conv := testConversation("姓名", "邮箱")

	ts, err := o.Initialize(ctx, conv)
	if err != nil {
		t.Fatalf("初始化失败: %v", err)
	}
	AppendAssistantReply(conv, ts.FieldName, mustDrain(t, ts))

	// 第一轮：回答姓名
	ts, err = o.Process(ctx, conv, "我叫张三", "field-0")
	if err != nil {
		t.Fatalf("第一轮失败: %v", err)
	}
	if ts.Decision != DecisionAsk || ts.FieldName != "邮箱" {
		t.Fatalf("期望继续提问 邮箱，实际为 %s/%s", ts.Decision, ts.FieldName)
	}
	if conv.CollectedData[0].FieldValue == nil || *conv.CollectedData[0].FieldValue != "我叫张三" {
		t.Error("第一轮后 姓名 字段应已回答")
	}
	AppendAssistantReply(conv, ts.FieldName, mustDrain(t, ts))

	// 第二轮：回答邮箱，触发完成。
	// 进行中标记由实时层先行写入，编排器收尾时不得动它。
	conv.IsInProgress = true
	ts, err = o.Process(ctx, conv, "zhangsan@example.com", "field-1")
	if err != nil {
		t.Fatalf("第二轮失败: %v", err)
	}
	if ts.Decision != DecisionComplete {
		t.Fatalf("全部回答后应进入完成，实际为 %s", ts.Decision)
	}
	if !conv.Finished() {
		t.Error("完成后 FinishedAt 应已设置")
	}
	if !conv.IsInProgress {
		t.Error("进行中标记归实时层所有，收尾不应把它清掉")
	}
	if conv.Name != "张三的反馈" {
		t.Errorf("完成后会话名应来自摘要，实际为 %s", conv.Name)
	}
	if text := mustDrain(t, ts); text == "" {
		t.Error("结束语不应为空")
	}

	// 三次成功编排（初始化 + 两轮），每次恰好一次快照回调
	if updates.count != 3 {
		t.Errorf("期望快照回调触发 3 次，实际为 %d", updates.count)
	}
	// 记录顺序：user/assistant 交替且带字段标记
	if len(conv.Transcript) < 4 {
		t.Fatalf("记录条数不足: %d", len(conv.Transcript))
	}
	if conv.Transcript[1].Role != entity.RoleUser || conv.Transcript[1].FieldName != "姓名" {
		t.Errorf("用户消息应标记所回答的字段，实际为 %+v", conv.Transcript[1])
	}
}

func TestProcessExtractionFailureReasks(t *testing.T) {
	ctx := context.Background()
	questions := &questionRecorder{}
	updates := &updateRecorder{}
	extractor := &scriptedExtractor{outcomes: []*ExtractionOutcome{
		{IsAnswerExtracted: false, ReasonForFailure: "回答与邮箱无关"},
		{IsAnswerExtracted: true, ExtractedAnswer: "a@b.com"},
	}}
	o := NewOrchestrator(extractor, questions, &stubSummarizer{}, WithOnUpdate(updates.fn))

	conv := testConversation("邮箱")

	ts, err := o.Process(ctx, conv, "今天天气不错", "field-0")
	if err != nil {
		t.Fatalf("抽取失败不应使整轮失败: %v", err)
	}
	if ts.Decision != DecisionReask || ts.FieldName != "邮箱" {
		t.Fatalf("期望针对同一字段重新提问，实际为 %s/%s", ts.Decision, ts.FieldName)
	}
	if conv.CollectedData[0].FieldValue != nil {
		t.Error("抽取失败时台账不应有任何写入")
	}
	if len(conv.Transcript) != 1 || conv.Transcript[0].Content != "今天天气不错" {
		t.Error("失败的用户消息也应保留在记录中")
	}
	if questions.notes[0] == "" {
		t.Error("重新提问应携带失败说明")
	}
	mustDrain(t, ts)

	// 重试成功后正常完成
	ts, err = o.Process(ctx, conv, "a@b.com", "field-0")
	if err != nil {
		t.Fatalf("重试失败: %v", err)
	}
	if ts.Decision != DecisionComplete {
		t.Errorf("唯一字段回答后应完成，实际为 %s", ts.Decision)
	}
	mustDrain(t, ts)

	if updates.count != 2 {
		t.Errorf("两次编排应各触发一次快照回调，实际为 %d", updates.count)
	}
}

func TestProcessOpportunisticAnswers(t *testing.T) {
	ctx := context.Background()
	questions := &questionRecorder{}
	extractor := &scriptedExtractor{outcomes: []*ExtractionOutcome{
		{
			IsAnswerExtracted: true,
			ExtractedAnswer:   "张三",
			OtherAnswers:      map[string]string{"邮箱": "zhangsan@example.com"},
		},
	}}
	o := NewOrchestrator(extractor, questions, &stubSummarizer{})

	conv := testConversation("姓名", "邮箱", "城市")

	ts, err := o.Process(ctx, conv, "我叫张三，邮箱 zhangsan@example.com", "field-0")
	if err != nil {
		t.Fatalf("处理失败: %v", err)
	}
	// 邮箱被顺带填入，下一问应跳到 城市
	if ts.Decision != DecisionAsk || ts.FieldName != "城市" {
		t.Fatalf("期望跳过已顺带回答的字段，实际为 %s/%s", ts.Decision, ts.FieldName)
	}
	if conv.CollectedData[1].FieldValue == nil || *conv.CollectedData[1].FieldValue != "zhangsan@example.com" {
		t.Error("顺带答案应已写入 邮箱 字段")
	}
	mustDrain(t, ts)
}

func TestProcessDuplicateSubmissionIsNoOp(t *testing.T) {
	ctx := context.Background()
	questions := &questionRecorder{}
	updates := &updateRecorder{}
	o := NewOrchestrator(echoExtractor{}, questions, &stubSummarizer{}, WithOnUpdate(updates.fn))

	conv := testConversation("姓名", "邮箱")
	ts, err := o.Initialize(ctx, conv)
	if err != nil {
		t.Fatalf("初始化失败: %v", err)
	}
	AppendAssistantReply(conv, ts.FieldName, mustDrain(t, ts))

	ts, err = o.Process(ctx, conv, "张三", "field-0")
	if err != nil {
		t.Fatalf("第一轮失败: %v", err)
	}
	AppendAssistantReply(conv, ts.FieldName, mustDrain(t, ts))

	turnsBefore := len(conv.Transcript)
	updatesBefore := updates.count

	// 双击竞态：同一字段的回答再次提交。
	// 会话已经推进到 邮箱，这条重复回答绝不能写进 邮箱。
	ts, err = o.Process(ctx, conv, "张三", "field-0")
	if err != nil {
		t.Fatalf("重复提交不应报错: %v", err)
	}
	if ts.Decision != DecisionAsk || ts.FieldName != "邮箱" {
		t.Errorf("重复提交应原样返回当前状态，实际为 %s/%s", ts.Decision, ts.FieldName)
	}
	if ts.Stream != nil {
		t.Error("重复提交不应产生新的助手消息流")
	}
	if conv.CollectedData[1].FieldValue != nil {
		t.Errorf("重复提交的答案落到了下一个字段上: %q", *conv.CollectedData[1].FieldValue)
	}
	if *conv.CollectedData[0].FieldValue != "张三" {
		t.Error("已有答案不应被重复提交改动")
	}
	if len(conv.Transcript) != turnsBefore {
		t.Errorf("重复提交不应追加记录，%d -> %d", turnsBefore, len(conv.Transcript))
	}
	if updates.count != updatesBefore {
		t.Errorf("重复提交不应触发快照回调，实际新增 %d 次", updates.count-updatesBefore)
	}

	// 指向不存在字段的提交是调用方错误
	if _, err := o.Process(ctx, conv, "张三", "field-99"); !errors.Is(err, apperrors.ErrFieldNotFound) {
		t.Errorf("未知字段应返回 ErrFieldNotFound，实际为 %v", err)
	}
}

func TestSummaryFailureDoesNotBlockCompletion(t *testing.T) {
	ctx := context.Background()
	o := NewOrchestrator(echoExtractor{}, &questionRecorder{}, &stubSummarizer{summaryErr: errors.New("llm unavailable")})

	conv := testConversation("姓名")
	ts, err := o.Process(ctx, conv, "张三", "field-0")
	if err != nil {
		t.Fatalf("摘要失败不应阻断收尾: %v", err)
	}
	if ts.Decision != DecisionComplete {
		t.Fatalf("期望完成，实际为 %s", ts.Decision)
	}
	if conv.Name != "New Conversation" {
		t.Errorf("摘要失败时应保留原会话名，实际为 %s", conv.Name)
	}
	if !conv.Finished() {
		t.Error("摘要失败时会话仍应结束")
	}
	mustDrain(t, ts)
}

func TestGoBackReturnsPreviousAnswer(t *testing.T) {
	ctx := context.Background()
	questions := &questionRecorder{}
	updates := &updateRecorder{}
	o := NewOrchestrator(echoExtractor{}, questions, &stubSummarizer{}, WithOnUpdate(updates.fn))

	conv := testConversation("姓名", "邮箱")

	ts, err := o.Initialize(ctx, conv)
	if err != nil {
		t.Fatalf("初始化失败: %v", err)
	}
	AppendAssistantReply(conv, ts.FieldName, mustDrain(t, ts))

	ts, err = o.Process(ctx, conv, "张三", "field-0")
	if err != nil {
		t.Fatalf("第一轮失败: %v", err)
	}
	AppendAssistantReply(conv, ts.FieldName, mustDrain(t, ts))
	turnsBeforeBack := len(conv.Transcript)
	updatesBeforeBack := updates.count

	// 回退：弹出最近的一问一答，返回被弹出的回答原文
	previousAnswer, err := o.GoToPreviousQuestion(ctx, conv)
	if err != nil {
		t.Fatalf("回退失败: %v", err)
	}
	if previousAnswer != "张三" {
		t.Errorf("回退应返回被弹出的回答原文，实际为 %q", previousAnswer)
	}
	if conv.CollectedData[0].FieldValue != nil {
		t.Error("回退后 姓名 字段应已清空")
	}
	if got := len(conv.Transcript); got != turnsBeforeBack-2 {
		t.Errorf("回退应弹出两条记录，%d -> %d", turnsBeforeBack, got)
	}
	// 姓名 的原始提问保留在记录末尾，等待重新作答
	last := conv.Transcript[len(conv.Transcript)-1]
	if last.Role != entity.RoleAssistant || last.FieldName != "姓名" {
		t.Errorf("回退后记录末尾应是 姓名 的提问，实际为 %+v", last)
	}
	if updates.count != updatesBeforeBack+1 {
		t.Errorf("回退应恰好触发一次快照回调，实际为 %d", updates.count-updatesBeforeBack)
	}

	// 往返：重新回答后状态与记录应与首次推进一致
	ts, err = o.Process(ctx, conv, "李四", "field-0")
	if err != nil {
		t.Fatalf("重新回答失败: %v", err)
	}
	if ts.Decision != DecisionAsk || ts.FieldName != "邮箱" {
		t.Fatalf("重新回答后应继续提问 邮箱，实际为 %s/%s", ts.Decision, ts.FieldName)
	}
	if *conv.CollectedData[0].FieldValue != "李四" {
		t.Error("重新回答应写入新答案")
	}
	mustDrain(t, ts)
}

func TestGoBackOnShortTranscriptIsNoOp(t *testing.T) {
	ctx := context.Background()
	questions := &questionRecorder{}
	updates := &updateRecorder{}
	o := NewOrchestrator(echoExtractor{}, questions, &stubSummarizer{}, WithOnUpdate(updates.fn))

	conv := testConversation("姓名", "邮箱")

	// 空记录：没有可回退的内容
	for i := 0; i < 3; i++ {
		previousAnswer, err := o.GoToPreviousQuestion(ctx, conv)
		if err != nil {
			t.Fatalf("第 %d 次回退失败: %v", i+1, err)
		}
		if previousAnswer != "" {
			t.Errorf("无可回退轮次时应返回空串，实际为 %q", previousAnswer)
		}
	}

	// 只有第一条提问：同样是无变更的空操作
	ts, err := o.Initialize(ctx, conv)
	if err != nil {
		t.Fatalf("初始化失败: %v", err)
	}
	AppendAssistantReply(conv, ts.FieldName, mustDrain(t, ts))
	updatesBefore := updates.count

	previousAnswer, err := o.GoToPreviousQuestion(ctx, conv)
	if err != nil {
		t.Fatalf("回退失败: %v", err)
	}
	if previousAnswer != "" {
		t.Errorf("第一题上回退应返回空串，实际为 %q", previousAnswer)
	}
	if updates.count != updatesBefore {
		t.Errorf("空操作不应触发快照回调，实际新增 %d 次", updates.count-updatesBefore)
	}
	if len(conv.Transcript) != 1 {
		t.Errorf("空操作不应改动记录，实际为 %d 条", len(conv.Transcript))
	}
}

func TestGoBackAfterReask(t *testing.T) {
	ctx := context.Background()
	questions := &questionRecorder{}
	extractor := &scriptedExtractor{outcomes: []*ExtractionOutcome{
		{IsAnswerExtracted: false, ReasonForFailure: "回答与姓名无关"},
	}}
	o := NewOrchestrator(extractor, questions, &stubSummarizer{})

	conv := testConversation("姓名", "邮箱")
	ts, err := o.Initialize(ctx, conv)
	if err != nil {
		t.Fatalf("初始化失败: %v", err)
	}
	AppendAssistantReply(conv, ts.FieldName, mustDrain(t, ts))

	// 抽取失败后的重问：记录为 [问, 无关回答, 重问]
	ts, err = o.Process(ctx, conv, "今天天气不错", "field-0")
	if err != nil {
		t.Fatalf("作答失败: %v", err)
	}
	if ts.Decision != DecisionReask {
		t.Fatalf("期望重新提问，实际为 %s", ts.Decision)
	}
	AppendAssistantReply(conv, ts.FieldName, mustDrain(t, ts))

	// 回退弹出重问与无关回答，返回那条没答上的原文
	previousAnswer, err := o.GoToPreviousQuestion(ctx, conv)
	if err != nil {
		t.Fatalf("回退失败: %v", err)
	}
	if previousAnswer != "今天天气不错" {
		t.Errorf("回退应返回被弹出的回答原文，实际为 %q", previousAnswer)
	}
	if len(conv.Transcript) != 1 {
		t.Errorf("回退后应只剩最初的提问，实际为 %d 条", len(conv.Transcript))
	}
	if conv.CollectedData[0].FieldValue != nil {
		t.Error("姓名 字段应保持未回答")
	}
}

func TestTurnStreamDrain(t *testing.T) {
	ts := &TurnStream{
		Decision: DecisionAsk,
		Stream: schema.StreamReaderFromArray([]*schema.Message{
			{Role: schema.Assistant, Content: "请问"},
			{Role: schema.Assistant, Content: "您的姓名？"},
		}),
	}
	text, err := ts.Drain()
	if err != nil {
		t.Fatalf("读取流失败: %v", err)
	}
	if text != "请问您的姓名？" {
		t.Errorf("期望拼接出完整文本，实际为 %q", text)
	}

	// nil 流可安全 Drain
	var empty *TurnStream
	if text, err := empty.Drain(); err != nil || text != "" {
		t.Errorf("nil 流应返回空串: %q, %v", text, err)
	}
}
