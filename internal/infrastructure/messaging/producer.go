// Package messaging 提供会话生命周期事件的发布实现。
// 事件写入 Redis Stream，由外部分析消费方读取；本服务只做生产端。
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("messaging")

// EventType 会话生命周期事件类型
type EventType string

const (
	EventConversationStarted   EventType = "conversation:started"
	EventConversationUpdated   EventType = "conversation:updated"
	EventConversationStopped   EventType = "conversation:stopped"
	EventConversationCompleted EventType = "conversation:completed"
)

// ConversationEvent 会话生命周期事件
type ConversationEvent struct {
	ID             string          `json:"id"`
	Type           EventType       `json:"type"`
	OrganizationID string          `json:"organization_id"`
	FormID         string          `json:"form_id"`
	ConversationID string          `json:"conversation_id"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// NewConversationEvent 创建事件
func NewConversationEvent(eventType EventType, organizationID, formID, conversationID string) *ConversationEvent {
	return &ConversationEvent{
		ID:             uuid.New().String(),
		Type:           eventType,
		OrganizationID: organizationID,
		FormID:         formID,
		ConversationID: conversationID,
		CreatedAt:      time.Now(),
	}
}

// Producer 事件生产者
type Producer struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewProducer 创建事件生产者
func NewProducer(client *redis.Client, stream string, maxLen int64) *Producer {
	if stream == "" {
		stream = "convoform:conversation-events"
	}
	if maxLen <= 0 {
		maxLen = 10000
	}
	return &Producer{
		client: client,
		stream: stream,
		maxLen: maxLen,
	}
}

// Publish 发布事件到流
func (p *Producer) Publish(ctx context.Context, event *ConversationEvent) (string, error) {
	ctx, span := tracer.Start(ctx, "producer.Publish",
		trace.WithAttributes(
			attribute.String("stream", p.stream),
			attribute.String("event.id", event.ID),
			attribute.String("event.type", string(event.Type)),
		))
	defer span.End()

	data, err := json.Marshal(event)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to marshal event: %w", err)
	}

	result, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"data": string(data),
		},
	}).Result()
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to publish event: %w", err)
	}

	span.SetAttributes(attribute.String("stream.message_id", result))
	return result, nil
}
