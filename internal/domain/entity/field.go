// Package entity 定义领域实体
package entity

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// FieldKind 字段输入类型
type FieldKind string

const (
	FieldKindText           FieldKind = "text"
	FieldKindMultipleChoice FieldKind = "multipleChoice"
	FieldKindDatePicker     FieldKind = "datePicker"
	FieldKindRating         FieldKind = "rating"
)

// TextOptions 文本输入选项
type TextOptions struct {
	Placeholder string `json:"placeholder,omitempty"`
	Paragraph   bool   `json:"paragraph,omitempty"`
}

// MultipleChoiceOptions 多选一输入选项
type MultipleChoiceOptions struct {
	Options     []string `json:"options"`
	AllowOther  bool     `json:"allow_other,omitempty"`
	AllowMulti  bool     `json:"allow_multi,omitempty"`
	Randomize   bool     `json:"randomize,omitempty"`
	OtherPrompt string   `json:"other_prompt,omitempty"`
}

// DatePickerOptions 日期输入选项
type DatePickerOptions struct {
	MinDate string `json:"min_date,omitempty"`
	MaxDate string `json:"max_date,omitempty"`
	Format  string `json:"format,omitempty"`
}

// RatingOptions 评分输入选项
type RatingOptions struct {
	MaxRating int    `json:"max_rating"`
	LowLabel  string `json:"low_label,omitempty"`
	HighLabel string `json:"high_label,omitempty"`
}

// FieldConfiguration 封闭的字段配置变体。
// Kind 决定哪个 options 指针非空；Extractor 和 QuestionGenerator
// 据此做穷举匹配，而不是探测松散属性。
type FieldConfiguration struct {
	Kind           FieldKind              `json:"kind"`
	Text           *TextOptions           `json:"text,omitempty"`
	MultipleChoice *MultipleChoiceOptions `json:"multiple_choice,omitempty"`
	DatePicker     *DatePickerOptions     `json:"date_picker,omitempty"`
	Rating         *RatingOptions         `json:"rating,omitempty"`
}

// Validate 校验 Kind 与 options 指针的一致性
func (c FieldConfiguration) Validate() error {
	switch c.Kind {
	case FieldKindText:
		return nil
	case FieldKindMultipleChoice:
		if c.MultipleChoice == nil || len(c.MultipleChoice.Options) == 0 {
			return fmt.Errorf("multipleChoice field requires options")
		}
		return nil
	case FieldKindDatePicker:
		return nil
	case FieldKindRating:
		if c.Rating == nil || c.Rating.MaxRating <= 0 {
			return fmt.Errorf("rating field requires a positive max_rating")
		}
		return nil
	default:
		return fmt.Errorf("unknown field kind: %s", c.Kind)
	}
}

// Value 实现 driver.Valuer，存储为 jsonb
func (c FieldConfiguration) Value() (driver.Value, error) {
	return json.Marshal(c)
}

// Scan 实现 sql.Scanner
func (c *FieldConfiguration) Scan(value interface{}) error {
	if value == nil {
		*c = FieldConfiguration{Kind: FieldKindText}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		if s, ok := value.(string); ok {
			bytes = []byte(s)
		} else {
			return fmt.Errorf("unsupported field configuration column type %T", value)
		}
	}
	return json.Unmarshal(bytes, c)
}

// FormField 表单字段定义（问卷的一个问答槽位）
type FormField struct {
	ID                 string             `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	FormID             string             `json:"form_id" gorm:"type:uuid;index;not null"`
	OrderIndex         int                `json:"order_index" gorm:"not null;default:0"`
	FieldName          string             `json:"field_name" gorm:"type:varchar(128);not null"`
	FieldDescription   string             `json:"field_description" gorm:"type:text;not null"`
	FieldConfiguration FieldConfiguration `json:"field_configuration" gorm:"type:jsonb;not null"`
	CreatedAt          time.Time          `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt          time.Time          `json:"updated_at" gorm:"autoUpdateTime"`
}

func (FormField) TableName() string {
	return "form_fields"
}
