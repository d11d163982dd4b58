package engine

import (
	"strings"
	"testing"

	"convoform-api/internal/domain/entity"
)

func TestValidateAnswer(t *testing.T) {
	tests := []struct {
		name       string
		cfg        entity.FieldConfiguration
		answer     string
		wantReason bool
	}{
		{
			name:   "文本字段不做复核",
			cfg:    entity.FieldConfiguration{Kind: entity.FieldKindText},
			answer: "随意内容",
		},
		{
			name: "选择题命中选项",
			cfg: entity.FieldConfiguration{
				Kind:           entity.FieldKindMultipleChoice,
				MultipleChoice: &entity.MultipleChoiceOptions{Options: []string{"红", "绿", "蓝"}},
			},
			answer: "绿",
		},
		{
			name: "选择题未命中且不允许其它",
			cfg: entity.FieldConfiguration{
				Kind:           entity.FieldKindMultipleChoice,
				MultipleChoice: &entity.MultipleChoiceOptions{Options: []string{"红", "绿", "蓝"}},
			},
			answer:     "紫",
			wantReason: true,
		},
		{
			name: "选择题未命中但允许其它",
			cfg: entity.FieldConfiguration{
				Kind:           entity.FieldKindMultipleChoice,
				MultipleChoice: &entity.MultipleChoiceOptions{Options: []string{"红"}, AllowOther: true},
			},
			answer: "紫",
		},
		{
			name:   "日期格式合法",
			cfg:    entity.FieldConfiguration{Kind: entity.FieldKindDatePicker},
			answer: "2026-08-30",
		},
		{
			name:       "日期格式不合法",
			cfg:        entity.FieldConfiguration{Kind: entity.FieldKindDatePicker},
			answer:     "下周三",
			wantReason: true,
		},
		{
			name: "评分在范围内",
			cfg: entity.FieldConfiguration{
				Kind:   entity.FieldKindRating,
				Rating: &entity.RatingOptions{MaxRating: 5},
			},
			answer: "4",
		},
		{
			name: "评分超出范围",
			cfg: entity.FieldConfiguration{
				Kind:   entity.FieldKindRating,
				Rating: &entity.RatingOptions{MaxRating: 5},
			},
			answer:     "9",
			wantReason: true,
		},
		{
			name: "评分不是整数",
			cfg: entity.FieldConfiguration{
				Kind:   entity.FieldKindRating,
				Rating: &entity.RatingOptions{MaxRating: 5},
			},
			answer:     "很好",
			wantReason: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reason := validateAnswer(tt.cfg, tt.answer)
			if tt.wantReason && reason == "" {
				t.Error("期望复核失败并返回原因")
			}
			if !tt.wantReason && reason != "" {
				t.Errorf("期望复核通过，实际原因: %s", reason)
			}
		})
	}
}

func TestFieldConstraintsBlock(t *testing.T) {
	cfg := entity.FieldConfiguration{
		Kind:           entity.FieldKindMultipleChoice,
		MultipleChoice: &entity.MultipleChoiceOptions{Options: []string{"是", "否"}},
	}
	block := fieldConstraintsBlock(cfg)
	if !strings.Contains(block, "是") || !strings.Contains(block, "否") {
		t.Errorf("约束说明应列出全部选项，实际为 %q", block)
	}
}
