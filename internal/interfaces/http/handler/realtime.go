// Package handler 提供 HTTP 请求处理器
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"convoform-api/internal/application/realtime"
	"convoform-api/internal/config"
	"convoform-api/pkg/logger"
)

// RealtimeHandler WebSocket 升级入口
type RealtimeHandler struct {
	hub      *realtime.Hub
	cfg      config.RealtimeConfig
	upgrader websocket.Upgrader
}

// NewRealtimeHandler 创建实时连接处理器
func NewRealtimeHandler(hub *realtime.Hub, cfg config.RealtimeConfig) *RealtimeHandler {
	return &RealtimeHandler{
		hub: hub,
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// 浏览器来源校验交给 CORS 层，作答页是公开的
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Serve 将 HTTP 连接升级为 WebSocket 并接入广播中枢
// @Summary 实时事件通道
// @Description 升级为 WebSocket，通过 join-room-form / join-room-conversation 订阅房间，作答端上报 conversation:* 生命周期事件
// @Tags Realtime
// @Success 101 "Switching Protocols"
// @Router /ws [get]
func (h *RealtimeHandler) Serve(c *gin.Context) {
	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn(c.Request.Context(), "websocket upgrade failed", "error", err.Error())
		return
	}

	conn := realtime.NewConnection(h.hub, ws, h.cfg)
	conn.Serve(c.Request.Context())
}
