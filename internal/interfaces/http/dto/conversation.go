// Package dto 提供 HTTP 层数据传输对象
package dto

import (
	"convoform-api/internal/domain/entity"
)

// ProcessTurnRequest 作答轮次请求。
// current_field_id 指明该回答针对的字段；若该字段已有答案
// （双击或重试造成的重复提交），服务端原样返回当前状态而不做变更。
type ProcessTurnRequest struct {
	Answer         string `json:"answer" binding:"required"`
	CurrentFieldID string `json:"current_field_id" binding:"required"`
}

// GoBackResponse 返回上一题响应。
// previous_answer 为被弹出的回答原文，供前端回填输入框；
// 无可回退轮次时为空串。
type GoBackResponse struct {
	PreviousAnswer string                `json:"previous_answer"`
	Conversation   *ConversationResponse `json:"conversation"`
}

// TurnResponse 对话记录中的一条消息
type TurnResponse struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	FieldName string `json:"field_name,omitempty"`
}

// CollectedFieldResponse 台账中的一个槽位
type CollectedFieldResponse struct {
	ID                 string                    `json:"id"`
	FieldName          string                    `json:"field_name"`
	FieldDescription   string                    `json:"field_description"`
	FieldConfiguration entity.FieldConfiguration `json:"field_configuration"`
	FieldValue         *string                   `json:"field_value"`
}

// ConversationResponse 会话响应
type ConversationResponse struct {
	ID             string                   `json:"id"`
	FormID         string                   `json:"form_id"`
	OrganizationID string                   `json:"organization_id"`
	Name           string                   `json:"name"`
	Transcript     []TurnResponse           `json:"transcript"`
	CollectedData  []CollectedFieldResponse `json:"collected_data"`
	IsInProgress   bool                     `json:"is_in_progress"`
	IsFinished     bool                     `json:"is_finished"`
	FinishedAt     *string                  `json:"finished_at,omitempty"`
	CreatedAt      string                   `json:"created_at"`
	UpdatedAt      string                   `json:"updated_at"`
}

// NewConversationResponse 由实体构造响应
func NewConversationResponse(conv *entity.Conversation) *ConversationResponse {
	transcript := make([]TurnResponse, 0, len(conv.Transcript))
	for _, t := range conv.Transcript {
		transcript = append(transcript, TurnResponse{
			Role:      string(t.Role),
			Content:   t.Content,
			FieldName: t.FieldName,
		})
	}

	fields := make([]CollectedFieldResponse, 0, len(conv.CollectedData))
	for _, f := range conv.CollectedData {
		fields = append(fields, CollectedFieldResponse{
			ID:                 f.ID,
			FieldName:          f.FieldName,
			FieldDescription:   f.FieldDescription,
			FieldConfiguration: f.FieldConfiguration,
			FieldValue:         f.FieldValue,
		})
	}

	var finishedAt *string
	if conv.FinishedAt != nil {
		s := conv.FinishedAt.Format(timeLayout)
		finishedAt = &s
	}

	return &ConversationResponse{
		ID:             conv.ID,
		FormID:         conv.FormID,
		OrganizationID: conv.OrganizationID,
		Name:           conv.Name,
		Transcript:     transcript,
		CollectedData:  fields,
		IsInProgress:   conv.IsInProgress,
		IsFinished:     conv.Finished(),
		FinishedAt:     finishedAt,
		CreatedAt:      conv.CreatedAt.Format(timeLayout),
		UpdatedAt:      conv.UpdatedAt.Format(timeLayout),
	}
}

// NewConversationResponses 批量构造
func NewConversationResponses(convs []*entity.Conversation) []*ConversationResponse {
	out := make([]*ConversationResponse, 0, len(convs))
	for _, c := range convs {
		out = append(out, NewConversationResponse(c))
	}
	return out
}
