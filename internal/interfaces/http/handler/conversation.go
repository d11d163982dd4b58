// Package handler 提供 HTTP 请求处理器
package handler

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/gin-gonic/gin"

	convapp "convoform-api/internal/application/conversation"
	"convoform-api/internal/application/engine"
	"convoform-api/internal/domain/entity"
	"convoform-api/internal/interfaces/http/dto"
	"convoform-api/pkg/logger"
)

// ConversationHandler 会话处理器。
// 开始会话与作答轮次以 SSE 返回助手消息的 token 流，
// 返回上一题是普通 JSON 接口。
type ConversationHandler struct {
	conversations *convapp.Service
}

// NewConversationHandler 创建会话处理器
func NewConversationHandler(conversations *convapp.Service) *ConversationHandler {
	return &ConversationHandler{conversations: conversations}
}

// StartConversation 开始一次会话并流式提出第一个问题
// @Summary 开始会话
// @Description 依据表单创建会话，SSE 流式返回第一条提问
// @Tags Conversations
// @Produce text/event-stream
// @Param fid path string true "表单 ID"
// @Success 200 "SSE stream"
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/forms/{fid}/conversations [post]
func (h *ConversationHandler) StartConversation(c *gin.Context) {
	conv, ts, err := h.conversations.Start(c.Request.Context(), c.Param("fid"))
	if err != nil {
		respondError(c, err, "failed to start conversation")
		return
	}
	h.streamTurn(c, conv, ts)
}

// ProcessTurn 处理一条回答并流式返回下一条助手消息
// @Summary 作答轮次
// @Description 提交回答，SSE 流式返回下一条提问或结束语
// @Tags Conversations
// @Accept json
// @Produce text/event-stream
// @Param cid path string true "会话 ID"
// @Param body body dto.ProcessTurnRequest true "回答内容"
// @Success 200 "SSE stream"
// @Failure 404 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse
// @Router /v1/conversations/{cid}/turns [post]
func (h *ConversationHandler) ProcessTurn(c *gin.Context) {
	var req dto.ProcessTurnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	conv, ts, err := h.conversations.ProcessTurn(c.Request.Context(), c.Param("cid"), req.Answer, req.CurrentFieldID)
	if err != nil {
		respondError(c, err, "failed to process turn")
		return
	}
	h.streamTurn(c, conv, ts)
}

// GoBack 返回上一题
// @Summary 返回上一题
// @Description 弹出最近的一问一答并清空对应字段，返回被弹出的回答原文供回填
// @Tags Conversations
// @Produce json
// @Param cid path string true "会话 ID"
// @Success 200 {object} dto.Response[dto.GoBackResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse
// @Router /v1/conversations/{cid}/back [post]
func (h *ConversationHandler) GoBack(c *gin.Context) {
	conv, previousAnswer, err := h.conversations.GoBack(c.Request.Context(), c.Param("cid"))
	if err != nil {
		respondError(c, err, "failed to go back")
		return
	}
	dto.Success(c, &dto.GoBackResponse{
		PreviousAnswer: previousAnswer,
		Conversation:   dto.NewConversationResponse(conv),
	})
}

// GetConversation 读取会话
// @Summary 读取会话
// @Tags Conversations
// @Produce json
// @Param cid path string true "会话 ID"
// @Success 200 {object} dto.Response[dto.ConversationResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/conversations/{cid} [get]
func (h *ConversationHandler) GetConversation(c *gin.Context) {
	conv, err := h.conversations.Get(c.Request.Context(), c.Param("cid"))
	if err != nil {
		respondError(c, err, "failed to get conversation")
		return
	}
	dto.Success(c, dto.NewConversationResponse(conv))
}

// ListConversations 分页列出表单下的会话
// @Summary 会话列表
// @Tags Conversations
// @Produce json
// @Param fid path string true "表单 ID"
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页条数" default(20)
// @Success 200 {object} dto.Response[[]dto.ConversationResponse]
// @Router /v1/forms/{fid}/conversations [get]
func (h *ConversationHandler) ListConversations(c *gin.Context) {
	pagination := dto.BindPage(c)
	result, err := h.conversations.ListByForm(c.Request.Context(), c.Param("fid"), pagination)
	if err != nil {
		respondError(c, err, "failed to list conversations")
		return
	}
	meta := dto.NewPageMeta(pagination.Page, pagination.PageSize, int(result.Total))
	dto.SuccessWithPage(c, dto.NewConversationResponses(result.Items), meta)
}

// streamTurn 以 SSE 输出一轮编排结果：
// 先发会话元信息，再逐块转发 token，排空后把完整助手消息写回记录。
func (h *ConversationHandler) streamTurn(c *gin.Context, conv *entity.Conversation, ts *engine.TurnStream) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	c.SSEvent("metadata", gin.H{
		"conversation_id":             conv.ID,
		"form_id":                     conv.FormID,
		"decision":                    string(ts.Decision),
		"field_name":                  ts.FieldName,
		"is_form_submission_finished": conv.Finished(),
	})

	// 重复提交的空轮次只有元信息，没有助手消息可流
	if ts.Stream == nil {
		return
	}

	var (
		full   strings.Builder
		failed bool
		index  int
	)
	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		default:
		}

		msg, err := ts.Stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return false
			}
			failed = true
			c.SSEvent("error", gin.H{"message": err.Error()})
			return false
		}
		if msg == nil || msg.Content == "" {
			// 尾消息可能只携带 Usage
			return true
		}
		full.WriteString(msg.Content)
		c.SSEvent("content", gin.H{
			"chunk": msg.Content,
			"index": index,
		})
		index++
		return true
	})
	ts.Stream.Close()

	// 客户端断开时也要把已生成的部分写回记录
	if text := strings.TrimSpace(full.String()); text != "" && !failed {
		ctx := context.WithoutCancel(c.Request.Context())
		if err := h.conversations.RecordAssistantReply(ctx, conv.ID, ts.FieldName, text); err != nil {
			logger.Error(ctx, "failed to record assistant reply", err, "conversation_id", conv.ID)
		}
	}
}
