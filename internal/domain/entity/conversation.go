// Package entity 定义领域实体
package entity

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Role 对话角色
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn 对话记录中的一条消息。
// assistant 消息带 FieldName，标记该问题针对哪个字段；
// 这是“返回上一题”能够定位问答对的依据。
type Turn struct {
	Role      Role   `json:"role"`
	Content   string `json:"content"`
	FieldName string `json:"field_name,omitempty"`
}

// Transcript 有序、只追加的对话记录
type Transcript []Turn

// Value 实现 driver.Valuer，存储为 jsonb
func (t Transcript) Value() (driver.Value, error) {
	if t == nil {
		return json.Marshal(Transcript{})
	}
	return json.Marshal(t)
}

// Scan 实现 sql.Scanner
func (t *Transcript) Scan(value interface{}) error {
	return scanJSON(value, t)
}

// CollectedField 会话内的一个问答槽位及其（可空）答案。
// 从 FormField 复制而来，归属单个会话，彼此互不共享。
type CollectedField struct {
	ID                 string             `json:"id"`
	FieldName          string             `json:"field_name"`
	FieldDescription   string             `json:"field_description"`
	FieldConfiguration FieldConfiguration `json:"field_configuration"`
	FieldValue         *string            `json:"field_value"`
}

// Answered 字段是否已有答案
func (f CollectedField) Answered() bool {
	return f.FieldValue != nil
}

// CollectedFields 会话的字段台账，顺序即提问顺序
type CollectedFields []CollectedField

// Value 实现 driver.Valuer，存储为 jsonb
func (f CollectedFields) Value() (driver.Value, error) {
	if f == nil {
		return json.Marshal(CollectedFields{})
	}
	return json.Marshal(f)
}

// Scan 实现 sql.Scanner
func (f *CollectedFields) Scan(value interface{}) error {
	return scanJSON(value, f)
}

// Conversation 一次表单作答会话
type Conversation struct {
	ID             string          `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	FormID         string          `json:"form_id" gorm:"type:uuid;index;not null"`
	OrganizationID string          `json:"organization_id" gorm:"type:uuid;index;not null"`
	Name           string          `json:"name" gorm:"type:varchar(256);not null"`
	FormOverview   string          `json:"form_overview" gorm:"type:text;not null"`
	Transcript     Transcript      `json:"transcript" gorm:"type:jsonb;not null"`
	CollectedData  CollectedFields `json:"collected_data" gorm:"type:jsonb;not null"`
	IsInProgress   bool            `json:"is_in_progress" gorm:"not null;default:false"`
	FinishedAt     *time.Time      `json:"finished_at,omitempty"`
	MetaData       json.RawMessage `json:"meta_data,omitempty" gorm:"type:jsonb"`
	CreatedAt      time.Time       `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt      time.Time       `json:"updated_at" gorm:"autoUpdateTime"`
}

func (Conversation) TableName() string {
	return "conversations"
}

// Finished 会话是否已结束
func (c *Conversation) Finished() bool {
	return c.FinishedAt != nil
}

// NewConversationFromForm 依据表单定义创建空会话（所有字段值为空）
func NewConversationFromForm(form *Form) *Conversation {
	fields := make(CollectedFields, 0, len(form.Fields))
	for _, ff := range form.Fields {
		fields = append(fields, CollectedField{
			ID:                 ff.ID,
			FieldName:          ff.FieldName,
			FieldDescription:   ff.FieldDescription,
			FieldConfiguration: ff.FieldConfiguration,
		})
	}

	now := time.Now()
	return &Conversation{
		FormID:         form.ID,
		OrganizationID: form.OrganizationID,
		Name:           "New Conversation",
		FormOverview:   form.Overview,
		Transcript:     Transcript{},
		CollectedData:  fields,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// scanJSON 从 jsonb 列反序列化
func scanJSON(value interface{}, dest interface{}) error {
	if value == nil {
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		if s, ok := value.(string); ok {
			bytes = []byte(s)
		} else {
			return fmt.Errorf("unsupported jsonb column type %T", value)
		}
	}
	return json.Unmarshal(bytes, dest)
}
