package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ashwinyue/next-chat/internal/service/chat"
	"github.com/ashwinyue/next-chat/internal/service/relay"
)

// ErrorResponse 错误响应
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

const msgSessionNotFound = "Chat session not found"

// BadRequest 400 错误响应
func BadRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}

// NotFound 404 错误响应
func NotFound(c *gin.Context, msg string) {
	c.JSON(http.StatusNotFound, ErrorResponse{Error: msg})
}

// InternalServerError 500 错误响应
func InternalServerError(c *gin.Context, msg string, err error) {
	resp := ErrorResponse{Error: msg}
	if err != nil {
		resp.Message = err.Error()
	}
	c.JSON(http.StatusInternalServerError, resp)
}

// Error 根据错误类型返回相应的错误响应
// fallback 为 500 时返回给客户端的描述
func Error(c *gin.Context, err error, fallback string) {
	switch {
	case err == nil:
		return
	case errors.Is(err, relay.ErrValidation):
		BadRequest(c, validationMessage(err))
	case errors.Is(err, chat.ErrInvalidSessionID):
		BadRequest(c, "Session ID is required")
	case errors.Is(err, relay.ErrSessionNotFound), errors.Is(err, chat.ErrSessionNotFound):
		NotFound(c, msgSessionNotFound)
	default:
		_ = c.Error(err)
		InternalServerError(c, fallback, err)
	}
}

func validationMessage(err error) string {
	switch {
	case errors.Is(err, relay.ErrEmptyMessage):
		return "Message cannot be empty"
	case errors.Is(err, relay.ErrMessageTooLong):
		return "Message exceeds the word limit"
	default:
		return err.Error()
	}
}
