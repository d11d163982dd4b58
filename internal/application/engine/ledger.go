package engine

import (
	apperrors "convoform-api/pkg/errors"

	"convoform-api/internal/domain/entity"
)

// NextEmpty 返回台账中第一个未回答字段及其下标。
// 台账顺序即提问顺序；全部已回答时 ok 为 false。
func NextEmpty(fields entity.CollectedFields) (*entity.CollectedField, int, bool) {
	for i := range fields {
		if !fields[i].Answered() {
			return &fields[i], i, true
		}
	}
	return nil, -1, false
}

// FieldByID 按字段 ID 查找台账槽位
func FieldByID(fields entity.CollectedFields, id string) (*entity.CollectedField, bool) {
	for i := range fields {
		if fields[i].ID == id {
			return &fields[i], true
		}
	}
	return nil, false
}

// IsComplete 台账是否全部已回答。空台账视为未完成。
func IsComplete(fields entity.CollectedFields) bool {
	if len(fields) == 0 {
		return false
	}
	for i := range fields {
		if !fields[i].Answered() {
			return false
		}
	}
	return true
}

// SetValue 为指定字段写入答案。
// 字段不存在返回 ErrFieldNotFound；已有答案返回 CodeFieldAlreadyFilled，
// 答案只能单调填入，清除只允许走返回上一题。
func SetValue(fields entity.CollectedFields, fieldName, value string) error {
	for i := range fields {
		if fields[i].FieldName != fieldName {
			continue
		}
		if fields[i].Answered() {
			return apperrors.New(apperrors.CodeFieldAlreadyFilled, "field already has an answer").WithDetail(fieldName)
		}
		v := value
		fields[i].FieldValue = &v
		return nil
	}
	return apperrors.ErrFieldNotFound.WithDetail(fieldName)
}

// SetOpportunistic 尽力填入顺带答案：字段不存在或已有答案时静默跳过。
func SetOpportunistic(fields entity.CollectedFields, fieldName, value string) {
	for i := range fields {
		if fields[i].FieldName != fieldName {
			continue
		}
		if !fields[i].Answered() {
			v := value
			fields[i].FieldValue = &v
		}
		return
	}
}

// ClearValue 清空指定字段的答案（返回上一题使用）
func ClearValue(fields entity.CollectedFields, fieldName string) {
	for i := range fields {
		if fields[i].FieldName == fieldName {
			fields[i].FieldValue = nil
			return
		}
	}
}
