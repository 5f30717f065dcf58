// Package repository 定义数据访问接口
// 接口抽象使依赖注入和单元测试成为可能
package repository

import (
	"context"
	"errors"

	"github.com/ashwinyue/next-chat/internal/model"
)

// ErrNotFound 记录不存在
var ErrNotFound = errors.New("record not found")

// ErrInvalidRole 消息角色不是 User 或 AI
var ErrInvalidRole = errors.New("invalid message role")

// ========== ChatRepository 接口 ==========

// ChatRepository 聊天会话数据访问接口
// 接口定义使 Service 层可以轻松 mock 进行单元测试
type ChatRepository interface {
	CreateSession(ctx context.Context, session *model.ChatSession) error
	GetSessionByID(ctx context.Context, id string) (*model.ChatSession, error)
	SaveSession(ctx context.Context, session *model.ChatSession) error
	ListSessions(ctx context.Context) ([]*model.ChatSession, error)
	DeleteSession(ctx context.Context, id string) (bool, error)
}

// 确保 chatRepository 实现了接口
var _ ChatRepository = (*chatRepository)(nil)
