package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"convoform-api/internal/config"
	"convoform-api/pkg/logger"
	"convoform-api/pkg/metrics"
)

// Connection 单个 WebSocket 连接。
// readPump 处理入站控制消息，writePump 负责出站投递与心跳。
// joined 与 active* 由 Hub 的锁保护；activeConversationID/activeFormID
// 记录该连接正在作答的会话，断开时据此补发 conversation:stopped。
type Connection struct {
	hub *Hub
	ws  *websocket.Conn
	cfg config.RealtimeConfig

	// sendMu 保护 closed 与 send 的关闭：广播方与连接自身的
	// 关闭路径跑在不同 goroutine 上，enqueue 与 close 必须同锁，
	// 否则存在向已关闭通道发送的竞态。
	sendMu sync.Mutex
	closed bool
	send   chan []byte

	joined map[string]struct{}

	activeConversationID string
	activeFormID         string
}

func NewConnection(hub *Hub, ws *websocket.Conn, cfg config.RealtimeConfig) *Connection {
	return &Connection{
		hub:    hub,
		ws:     ws,
		cfg:    cfg,
		send:   make(chan []byte, cfg.WriteBufferSize),
		joined: make(map[string]struct{}),
	}
}

// enqueue 非阻塞投递：出站缓冲已满时丢帧，慢消费者不拖垮广播；
// 连接已关闭时静默丢弃，广播到将死连接只是空操作。
func (c *Connection) enqueue(data []byte) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// close 幂等地关闭出站通道，writePump 随之退出
func (c *Connection) close() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// Serve 启动读写泵并阻塞到连接关闭
func (c *Connection) Serve(ctx context.Context) {
	metrics.RealtimeConnectionsActive.Inc()
	defer metrics.RealtimeConnectionsActive.Dec()

	go c.writePump(ctx)
	c.readPump(ctx)
}

func (c *Connection) readPump(ctx context.Context) {
	defer func() {
		c.hub.disconnect(ctx, c)
		c.close()
		_ = c.ws.Close()
	}()

	c.ws.SetReadLimit(c.cfg.MaxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
	})

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug(ctx, "websocket closed unexpectedly", "error", err.Error())
			}
			return
		}
		c.handleMessage(ctx, raw)
	}
}

// handleMessage 处理一条入站控制消息；无法解析的消息静默忽略
func (c *Connection) handleMessage(ctx context.Context, raw []byte) {
	var msg InboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return
	}

	var data MessageData
	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			return
		}
	}

	switch msg.Type {
	case MessageJoinRoomForm:
		if data.FormID == "" {
			return
		}
		c.hub.Join(c, FormRoom(data.FormID))
	case MessageJoinRoomConversation:
		if data.ConversationID == "" {
			return
		}
		c.hub.Join(c, ConversationRoom(data.ConversationID))
	case EventConversationStarted:
		if data.ConversationID == "" || data.FormID == "" {
			return
		}
		c.hub.clientStarted(ctx, c, data.ConversationID, data.FormID)
	case EventConversationUpdated:
		if data.ConversationID == "" || data.FormID == "" {
			return
		}
		c.hub.clientUpdated(ctx, c, data.ConversationID, data.FormID)
	case EventConversationStopped:
		if data.ConversationID == "" || data.FormID == "" {
			return
		}
		c.hub.clientStopped(ctx, c, data.ConversationID, data.FormID)
	default:
	}
}

func (c *Connection) writePump(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = c.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
