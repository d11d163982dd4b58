// Package realtime 实现基于房间的事件广播：
// 表单后台订阅 form:{id} 房间，作答页订阅 conversation:{id} 房间，
// 会话生命周期事件按房间扇出，投递为尽力而为。
package realtime

import "encoding/json"

// 事件类型，入站与出站共用同一套词汇
const (
	EventConversationStarted = "conversation:started"
	EventConversationUpdated = "conversation:updated"
	EventConversationStopped = "conversation:stopped"
)

// 仅入站的房间订阅消息类型
const (
	MessageJoinRoomForm         = "join-room-form"
	MessageJoinRoomConversation = "join-room-conversation"
)

// InboundMessage 客户端发来的控制消息。
// 无法解析或类型未知的消息会被静默忽略。
type InboundMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// MessageData 入站消息负载，按消息类型取用其中的字段
type MessageData struct {
	FormID         string `json:"formId"`
	ConversationID string `json:"conversationId"`
}

// Event 广播给房间成员的出站事件。
// 观察者收到后自行回源拉取最新快照，负载只是便利信息。
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// FormRoom 表单后台房间名
func FormRoom(formID string) string {
	return "form:" + formID
}

// ConversationRoom 单个会话的房间名
func ConversationRoom(conversationID string) string {
	return "conversation:" + conversationID
}
