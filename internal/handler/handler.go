package handler

import (
	"go.uber.org/zap"

	"github.com/ashwinyue/next-chat/internal/service"
)

// Handlers 处理器集合
type Handlers struct {
	Chat   *ChatHandler
	System *SystemHandler
}

// NewHandlers 创建所有处理器
// pinger 用于健康检查，可为 nil
func NewHandlers(svc *service.Services, pinger Pinger, log *zap.Logger) *Handlers {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handlers{
		Chat:   NewChatHandler(svc, log),
		System: NewSystemHandler(pinger),
	}
}
