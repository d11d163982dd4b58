package engine

import (
	"errors"
	"testing"

	"convoform-api/internal/domain/entity"
	apperrors "convoform-api/pkg/errors"
)

func ledgerOf(names ...string) entity.CollectedFields {
	fields := make(entity.CollectedFields, 0, len(names))
	for _, name := range names {
		fields = append(fields, entity.CollectedField{
			ID:                 "id-" + name,
			FieldName:          name,
			FieldDescription:   name,
			FieldConfiguration: entity.FieldConfiguration{Kind: entity.FieldKindText},
		})
	}
	return fields
}

func TestNextEmptyFollowsLedgerOrder(t *testing.T) {
	fields := ledgerOf("name", "email", "age")

	field, idx, ok := NextEmpty(fields)
	if !ok || field.FieldName != "name" || idx != 0 {
		t.Fatalf("期望第一个未回答字段为 name(0)，实际为 %v(%d)", field, idx)
	}

	if err := SetValue(fields, "name", "张三"); err != nil {
		t.Fatalf("写入答案失败: %v", err)
	}
	field, idx, ok = NextEmpty(fields)
	if !ok || field.FieldName != "email" || idx != 1 {
		t.Fatalf("期望下一个未回答字段为 email(1)，实际为 %v(%d)", field, idx)
	}
}

func TestNextEmptyFullLedger(t *testing.T) {
	fields := ledgerOf("name")
	if err := SetValue(fields, "name", "张三"); err != nil {
		t.Fatalf("写入答案失败: %v", err)
	}
	if _, _, ok := NextEmpty(fields); ok {
		t.Error("台账已满时不应再有未回答字段")
	}
}

func TestIsComplete(t *testing.T) {
	// 空台账永远不算完成
	if IsComplete(entity.CollectedFields{}) {
		t.Error("空台账不应视为完成")
	}

	fields := ledgerOf("name", "email")
	if IsComplete(fields) {
		t.Error("有未回答字段时不应视为完成")
	}

	if err := SetValue(fields, "name", "张三"); err != nil {
		t.Fatalf("写入答案失败: %v", err)
	}
	if IsComplete(fields) {
		t.Error("部分回答不应视为完成")
	}

	if err := SetValue(fields, "email", "zhangsan@example.com"); err != nil {
		t.Fatalf("写入答案失败: %v", err)
	}
	if !IsComplete(fields) {
		t.Error("全部回答后应视为完成")
	}
}

func TestSetValueMonotonic(t *testing.T) {
	fields := ledgerOf("name")

	if err := SetValue(fields, "name", "张三"); err != nil {
		t.Fatalf("首次写入失败: %v", err)
	}

	// 已有答案的字段拒绝覆盖
	err := SetValue(fields, "name", "李四")
	if err == nil {
		t.Fatal("覆盖已回答字段应返回错误")
	}
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) || appErr.Code != apperrors.CodeFieldAlreadyFilled {
		t.Errorf("期望错误码 %s，实际为 %v", apperrors.CodeFieldAlreadyFilled, err)
	}
	if got := *fields[0].FieldValue; got != "张三" {
		t.Errorf("原答案不应被覆盖，实际为 %s", got)
	}
}

func TestSetValueUnknownField(t *testing.T) {
	fields := ledgerOf("name")
	if err := SetValue(fields, "missing", "x"); !errors.Is(err, apperrors.ErrFieldNotFound) {
		t.Errorf("未知字段应返回 ErrFieldNotFound，实际为 %v", err)
	}
}

func TestSetOpportunistic(t *testing.T) {
	fields := ledgerOf("name", "email")
	if err := SetValue(fields, "email", "a@b.com"); err != nil {
		t.Fatalf("写入答案失败: %v", err)
	}

	// 已回答字段静默跳过，未知字段静默忽略
	SetOpportunistic(fields, "email", "other@b.com")
	SetOpportunistic(fields, "missing", "x")
	SetOpportunistic(fields, "name", "张三")

	if got := *fields[1].FieldValue; got != "a@b.com" {
		t.Errorf("顺带答案不应覆盖已有答案，实际为 %s", got)
	}
	if fields[0].FieldValue == nil || *fields[0].FieldValue != "张三" {
		t.Error("顺带答案应填入空槽位")
	}
}

func TestClearValue(t *testing.T) {
	fields := ledgerOf("name", "email", "age")
	if err := SetValue(fields, "name", "张三"); err != nil {
		t.Fatalf("写入答案失败: %v", err)
	}
	if err := SetValue(fields, "email", "a@b.com"); err != nil {
		t.Fatalf("写入答案失败: %v", err)
	}

	ClearValue(fields, "email")
	if fields[1].FieldValue != nil {
		t.Error("清空后字段值应为 nil")
	}
	if fields[0].FieldValue == nil {
		t.Error("清空不应波及其它字段")
	}

	// 清空后 email 重新成为第一个空位
	next, idx, ok := NextEmpty(fields)
	if !ok || idx != 1 || next.FieldName != "email" {
		t.Fatalf("期望下一空位为 email(1)，实际为 %v (%d)", next, idx)
	}

	// 清空未知字段是无害的空操作
	ClearValue(fields, "missing")
}
