package form

import (
	"errors"
	"testing"

	"convoform-api/internal/domain/entity"
	apperrors "convoform-api/pkg/errors"
)

func TestBuildFields(t *testing.T) {
	textCfg := entity.FieldConfiguration{Kind: entity.FieldKindText}

	t.Run("按输入顺序编号", func(t *testing.T) {
		fields, err := buildFields([]FieldInput{
			{FieldName: "姓名", FieldConfiguration: textCfg},
			{FieldName: "邮箱", FieldConfiguration: textCfg},
		})
		if err != nil {
			t.Fatalf("构建字段失败: %v", err)
		}
		if fields[0].OrderIndex != 0 || fields[1].OrderIndex != 1 {
			t.Errorf("字段应按输入顺序编号: %d, %d", fields[0].OrderIndex, fields[1].OrderIndex)
		}
	})

	t.Run("字段名去首尾空白", func(t *testing.T) {
		fields, err := buildFields([]FieldInput{{FieldName: "  姓名  ", FieldConfiguration: textCfg}})
		if err != nil {
			t.Fatalf("构建字段失败: %v", err)
		}
		if fields[0].FieldName != "姓名" {
			t.Errorf("字段名应去空白，实际为 %q", fields[0].FieldName)
		}
	})

	t.Run("空字段名拒绝", func(t *testing.T) {
		_, err := buildFields([]FieldInput{{FieldName: "   ", FieldConfiguration: textCfg}})
		if !errors.Is(err, apperrors.ErrInvalidParam) {
			t.Errorf("空字段名应返回 ErrInvalidParam，实际为 %v", err)
		}
	})

	t.Run("重复字段名拒绝", func(t *testing.T) {
		_, err := buildFields([]FieldInput{
			{FieldName: "姓名", FieldConfiguration: textCfg},
			{FieldName: "姓名", FieldConfiguration: textCfg},
		})
		if !errors.Is(err, apperrors.ErrInvalidParam) {
			t.Errorf("重复字段名应返回 ErrInvalidParam，实际为 %v", err)
		}
	})

	t.Run("非法字段配置拒绝", func(t *testing.T) {
		_, err := buildFields([]FieldInput{{
			FieldName: "颜色",
			FieldConfiguration: entity.FieldConfiguration{
				Kind:           entity.FieldKindMultipleChoice,
				MultipleChoice: &entity.MultipleChoiceOptions{},
			},
		}})
		if !errors.Is(err, apperrors.ErrInvalidParam) {
			t.Errorf("缺少选项的选择题应返回 ErrInvalidParam，实际为 %v", err)
		}
	})
}
