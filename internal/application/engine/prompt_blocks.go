package engine

import (
	"fmt"
	"strings"

	"convoform-api/internal/domain/entity"
)

// transcriptBlock 将对话记录渲染为 prompt 文本，空记录返回占位
func transcriptBlock(t entity.Transcript) string {
	if len(t) == 0 {
		return "(no messages yet)"
	}
	var b strings.Builder
	for _, turn := range t {
		b.WriteString(string(turn.Role))
		b.WriteString(": ")
		b.WriteString(strings.TrimSpace(turn.Content))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// answeredFieldsBlock 渲染已回答字段及其答案
func answeredFieldsBlock(fields entity.CollectedFields) string {
	var b strings.Builder
	for _, f := range fields {
		if !f.Answered() {
			continue
		}
		fmt.Fprintf(&b, "- %s: %s\n", f.FieldName, *f.FieldValue)
	}
	if b.Len() == 0 {
		return "(none)"
	}
	return strings.TrimRight(b.String(), "\n")
}

// allFieldsBlock 渲染全部字段定义，供抽取器识别顺带答案
func allFieldsBlock(fields entity.CollectedFields) string {
	var b strings.Builder
	for _, f := range fields {
		status := "unanswered"
		if f.Answered() {
			status = "answered"
		}
		fmt.Fprintf(&b, "- %s (%s, %s): %s\n", f.FieldName, f.FieldConfiguration.Kind, status, f.FieldDescription)
	}
	return strings.TrimRight(b.String(), "\n")
}

// collectedDataBlock 渲染全部字段答案，供摘要与结束语使用
func collectedDataBlock(fields entity.CollectedFields) string {
	var b strings.Builder
	for _, f := range fields {
		value := "(unanswered)"
		if f.Answered() {
			value = *f.FieldValue
		}
		fmt.Fprintf(&b, "- %s: %s\n", f.FieldName, value)
	}
	return strings.TrimRight(b.String(), "\n")
}

// fieldConstraintsBlock 按字段类型渲染取值约束，无约束返回空串
func fieldConstraintsBlock(cfg entity.FieldConfiguration) string {
	switch cfg.Kind {
	case entity.FieldKindMultipleChoice:
		if cfg.MultipleChoice == nil {
			return ""
		}
		s := "- allowed options: " + strings.Join(cfg.MultipleChoice.Options, ", ")
		if cfg.MultipleChoice.AllowOther {
			s += "\n- a free-text answer outside the options is also acceptable"
		}
		return s
	case entity.FieldKindDatePicker:
		if cfg.DatePicker == nil {
			return "- the answer must be a date"
		}
		var parts []string
		parts = append(parts, "- the answer must be a date")
		if cfg.DatePicker.MinDate != "" {
			parts = append(parts, "- earliest allowed date: "+cfg.DatePicker.MinDate)
		}
		if cfg.DatePicker.MaxDate != "" {
			parts = append(parts, "- latest allowed date: "+cfg.DatePicker.MaxDate)
		}
		return strings.Join(parts, "\n")
	case entity.FieldKindRating:
		if cfg.Rating == nil {
			return ""
		}
		return fmt.Sprintf("- the answer must be an integer rating from 1 to %d", cfg.Rating.MaxRating)
	default:
		return ""
	}
}

// lastQuestionFor 返回对话记录中针对指定字段的最后一条提问内容
func lastQuestionFor(t entity.Transcript, fieldName string) string {
	for i := len(t) - 1; i >= 0; i-- {
		if t[i].Role == entity.RoleAssistant && t[i].FieldName == fieldName {
			return t[i].Content
		}
	}
	return ""
}
