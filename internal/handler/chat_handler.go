package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ashwinyue/next-chat/internal/service"
	"github.com/ashwinyue/next-chat/internal/service/event"
)

// ChatHandler 聊天处理器
type ChatHandler struct {
	svc *service.Services
	log *zap.Logger
}

// NewChatHandler 创建聊天处理器
func NewChatHandler(svc *service.Services, log *zap.Logger) *ChatHandler {
	return &ChatHandler{svc: svc, log: log.Named("chat_handler")}
}

// SendMessageRequest 发送消息请求
type SendMessageRequest struct {
	Message string `json:"message"`
}

// CreateSession 创建会话
// POST /api/chats
func (h *ChatHandler) CreateSession(c *gin.Context) {
	sess, err := h.svc.Chat.CreateSession(c.Request.Context())
	if err != nil {
		Error(c, err, "Failed to create chat session")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"sessionId": sess.ID})
}

// ListSessions 列出会话
// GET /api/getAllChats
func (h *ChatHandler) ListSessions(c *gin.Context) {
	sessions, err := h.svc.Chat.ListSessions(c.Request.Context())
	if err != nil {
		Error(c, err, "Failed to fetch chats")
		return
	}
	c.JSON(http.StatusOK, sessions)
}

// GetHistory 获取会话消息
// GET /api/chats/:sessionId
func (h *ChatHandler) GetHistory(c *gin.Context) {
	messages, err := h.svc.Chat.GetHistory(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		Error(c, err, "Failed to fetch chat history")
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

// SendMessage 发送消息，以 SSE 流式返回回复
// POST /api/chats/:sessionId/message
//
// 校验失败与会话不存在在写出任何事件前返回普通 JSON 错误；
// 流开始后的失败以 {error} 事件告知。
func (h *ChatHandler) SendMessage(c *gin.Context) {
	sessionID := c.Param("sessionId")

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid request body")
		return
	}

	sw := &sseWriter{c: c}
	err := h.svc.Relay.Send(c.Request.Context(), sessionID, req.Message, sw.emit)
	if err == nil {
		return
	}
	if sw.started {
		h.log.Warn("stream ended with error", zap.String("session_id", sessionID), zap.Error(err))
		return
	}
	Error(c, err, "Failed to send message")
}

// StopStream 中止会话当前的回复
// POST /api/chats/:sessionId/stop
func (h *ChatHandler) StopStream(c *gin.Context) {
	stopped := h.svc.Relay.Stop(c.Param("sessionId"))
	c.JSON(http.StatusOK, gin.H{"stopped": stopped})
}

// DeleteSession 删除会话
// DELETE /api/chats/:sessionId
func (h *ChatHandler) DeleteSession(c *gin.Context) {
	sessionID := c.Param("sessionId")
	if err := h.svc.Chat.DeleteSession(c.Request.Context(), sessionID); err != nil {
		Error(c, err, "Failed to delete chat session")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":   "Chat session deleted successfully",
		"deletedId": sessionID,
	})
}

// sseWriter 在第一个事件到来时才切换为 event-stream 响应
type sseWriter struct {
	c       *gin.Context
	enc     *event.Encoder
	started bool
}

func (w *sseWriter) emit(e event.Event) error {
	if !w.started {
		w.started = true
		header := w.c.Writer.Header()
		header.Set("Content-Type", "text/event-stream")
		header.Set("Cache-Control", "no-cache")
		header.Set("Connection", "keep-alive")
		header.Set("X-Accel-Buffering", "no")
		w.c.Status(http.StatusOK)
		w.enc = event.NewEncoder(w.c.Writer)
	}
	if err := w.c.Request.Context().Err(); err != nil {
		return err
	}
	return w.enc.Encode(e)
}
