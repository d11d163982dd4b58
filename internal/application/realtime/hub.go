package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"convoform-api/internal/infrastructure/messaging"
	"convoform-api/pkg/logger"
	"convoform-api/pkg/metrics"
)

// ProgressStore 会话进行中标记的持久化端口。
// 写入是尽力而为：失败只记日志，绝不影响广播。
type ProgressStore interface {
	MarkProgress(ctx context.Context, conversationID string, inProgress bool) error
}

// Hub 房间注册表与广播中枢。
// 所有房间操作在互斥锁内完成；向连接的投递走带缓冲的
// 出站通道，慢消费者会被丢帧而不是阻塞广播方。
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*Connection]struct{}

	progress ProgressStore
	producer *messaging.Producer
}

func NewHub(progress ProgressStore, producer *messaging.Producer) *Hub {
	return &Hub{
		rooms:    make(map[string]map[*Connection]struct{}),
		progress: progress,
		producer: producer,
	}
}

// Join 将连接加入房间，重复加入是幂等的
func (h *Hub) Join(conn *Connection, room string) {
	if conn == nil || room == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Connection]struct{})
		h.rooms[room] = members
	}
	members[conn] = struct{}{}
	conn.joined[room] = struct{}{}
}

// Leave 将连接移出房间，空房间随之删除
func (h *Hub) Leave(conn *Connection, room string) {
	if conn == nil || room == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(conn, room)
}

func (h *Hub) leaveLocked(conn *Connection, room string) {
	members, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(members, conn)
	delete(conn.joined, room)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

// Broadcast 向房间内全部成员投递事件。
// 序列化失败或房间为空都不算错误；投递不保证到达。
func (h *Hub) Broadcast(ctx context.Context, room string, event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		logger.Error(ctx, "failed to marshal realtime event", err, "type", event.Type)
		return
	}

	h.mu.RLock()
	members := make([]*Connection, 0, len(h.rooms[room]))
	for conn := range h.rooms[room] {
		members = append(members, conn)
	}
	h.mu.RUnlock()

	for _, conn := range members {
		conn.enqueue(data)
	}

	metrics.RealtimeEventsTotal.WithLabelValues(event.Type).Inc()
	metrics.RealtimeBroadcastFanout.WithLabelValues(event.Type).Observe(float64(len(members)))
}

// NotifyConversationStarted 向表单房间广播会话开始，并尽力持久化进行中标记
func (h *Hub) NotifyConversationStarted(ctx context.Context, organizationID, formID, conversationID string) {
	h.Broadcast(ctx, FormRoom(formID), Event{
		Type: EventConversationStarted,
		Data: map[string]string{"conversation_id": conversationID, "form_id": formID},
	})
	h.markProgress(ctx, conversationID, true)
	h.publishEvent(ctx, messaging.EventConversationStarted, organizationID, formID, conversationID)
}

// NotifyConversationUpdated 向表单房间与会话房间广播会话快照变更
func (h *Hub) NotifyConversationUpdated(ctx context.Context, organizationID, formID, conversationID string, snapshot any) {
	event := Event{Type: EventConversationUpdated, Data: snapshot}
	h.Broadcast(ctx, FormRoom(formID), event)
	h.Broadcast(ctx, ConversationRoom(conversationID), event)
	h.publishEvent(ctx, messaging.EventConversationUpdated, organizationID, formID, conversationID)
}

// NotifyConversationStopped 向两个房间广播会话停止，再尽力清除进行中标记。
// 持久化在扇出之后，存储慢或出错都不拖延广播。
func (h *Hub) NotifyConversationStopped(ctx context.Context, organizationID, formID, conversationID string) {
	event := Event{
		Type: EventConversationStopped,
		Data: map[string]string{"conversation_id": conversationID, "form_id": formID},
	}
	h.Broadcast(ctx, FormRoom(formID), event)
	h.Broadcast(ctx, ConversationRoom(conversationID), event)
	h.markProgress(ctx, conversationID, false)
	h.publishEvent(ctx, messaging.EventConversationStopped, organizationID, formID, conversationID)
}

// clientStarted 作答端上报会话开始：记下连接的活跃会话，
// 尽力持久化进行中标记，再向表单房间广播。
func (h *Hub) clientStarted(ctx context.Context, conn *Connection, conversationID, formID string) {
	h.mu.Lock()
	conn.activeConversationID = conversationID
	conn.activeFormID = formID
	h.mu.Unlock()

	h.NotifyConversationStarted(ctx, "", formID, conversationID)
}

// clientUpdated 作答端上报快照变更：先把连接补进两个房间，再双房间广播
func (h *Hub) clientUpdated(ctx context.Context, conn *Connection, conversationID, formID string) {
	h.Join(conn, FormRoom(formID))
	h.Join(conn, ConversationRoom(conversationID))

	h.NotifyConversationUpdated(ctx, "", formID, conversationID,
		map[string]string{"conversation_id": conversationID, "form_id": formID})
}

// clientStopped 作答端上报会话结束，连接不再有活跃会话
func (h *Hub) clientStopped(ctx context.Context, conn *Connection, conversationID, formID string) {
	h.mu.Lock()
	if conn.activeConversationID == conversationID {
		conn.activeConversationID = ""
		conn.activeFormID = ""
	}
	h.mu.Unlock()

	h.NotifyConversationStopped(ctx, "", formID, conversationID)
}

// disconnect 连接关闭时调用：退出全部房间；若连接仍有活跃会话，
// 视同收到一条显式的 conversation:stopped，避免标记永远卡在进行中。
func (h *Hub) disconnect(ctx context.Context, conn *Connection) {
	h.mu.Lock()
	for room := range conn.joined {
		h.leaveLocked(conn, room)
	}
	conversationID, formID := conn.activeConversationID, conn.activeFormID
	conn.activeConversationID = ""
	conn.activeFormID = ""
	h.mu.Unlock()

	if conversationID != "" && formID != "" {
		h.NotifyConversationStopped(ctx, "", formID, conversationID)
	}
}

func (h *Hub) markProgress(ctx context.Context, conversationID string, inProgress bool) {
	if h.progress == nil {
		return
	}
	if err := h.progress.MarkProgress(ctx, conversationID, inProgress); err != nil {
		logger.Warn(ctx, "failed to persist conversation progress flag",
			"conversation_id", conversationID,
			"in_progress", inProgress,
			"error", err.Error(),
		)
	}
}

func (h *Hub) publishEvent(ctx context.Context, eventType messaging.EventType, organizationID, formID, conversationID string) {
	if h.producer == nil {
		return
	}
	if _, err := h.producer.Publish(ctx, messaging.NewConversationEvent(eventType, organizationID, formID, conversationID)); err != nil {
		logger.Warn(ctx, "failed to publish conversation event to stream",
			"conversation_id", conversationID,
			"event_type", string(eventType),
			"error", err.Error(),
		)
	}
}

// RoomSize 房间当前成员数，测试与健康检查使用
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}
