// Package entity 定义领域实体
package entity

import (
	"time"
)

// Form 表单定义，字段按 OrderIndex 升序构成提问顺序
type Form struct {
	ID             string      `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	OrganizationID string      `json:"organization_id" gorm:"type:uuid;index;not null"`
	Name           string      `json:"name" gorm:"type:varchar(256);not null"`
	Overview       string      `json:"overview" gorm:"type:text;not null"`
	WelcomeText    string      `json:"welcome_text" gorm:"type:text"`
	IsPublished    bool        `json:"is_published" gorm:"not null;default:false"`
	Fields         []FormField `json:"fields" gorm:"foreignKey:FormID;references:ID"`
	CreatedAt      time.Time   `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt      time.Time   `json:"updated_at" gorm:"autoUpdateTime"`
}

func (Form) TableName() string {
	return "forms"
}

// NewForm 创建表单
func NewForm(organizationID, name, overview string) *Form {
	now := time.Now()
	return &Form{
		OrganizationID: organizationID,
		Name:           name,
		Overview:       overview,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}
