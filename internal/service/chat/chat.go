// Package chat 管理聊天会话的生命周期
package chat

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ashwinyue/next-chat/internal/model"
	"github.com/ashwinyue/next-chat/internal/repository"
	"github.com/ashwinyue/next-chat/internal/service/conversation"
	"github.com/ashwinyue/next-chat/internal/service/session"
)

var (
	// ErrSessionNotFound 会话不存在
	ErrSessionNotFound = errors.New("chat session not found")
	// ErrInvalidSessionID 会话 ID 为空
	ErrInvalidSessionID = errors.New("session id is required")
)

// Service 会话管理服务
type Service struct {
	repo         repository.ChatRepository
	cache        *conversation.Cache
	locker       session.Locker
	streams      *session.StreamRegistry
	logger       *zap.Logger
	defaultTitle string
}

// NewService 创建会话管理服务
func NewService(
	repo repository.ChatRepository,
	cache *conversation.Cache,
	locker session.Locker,
	streams *session.StreamRegistry,
	logger *zap.Logger,
	defaultTitle string,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:         repo,
		cache:        cache,
		locker:       locker,
		streams:      streams,
		logger:       logger.Named("chat"),
		defaultTitle: defaultTitle,
	}
}

// CreateSession 创建空会话并预先缓存一个空句柄
func (s *Service) CreateSession(ctx context.Context) (*model.ChatSession, error) {
	sess := &model.ChatSession{
		Title:    s.defaultTitle,
		Messages: []model.ChatMessage{},
	}
	if err := s.repo.CreateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	s.cache.NewEmpty(sess.ID)

	s.logger.Info("session created", zap.String("session_id", sess.ID))
	return sess, nil
}

// ListSessions 列出全部会话，最近更新的在前
func (s *Service) ListSessions(ctx context.Context) ([]*model.ChatSession, error) {
	sessions, err := s.repo.ListSessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	for _, sess := range sessions {
		if sess.Messages == nil {
			sess.Messages = []model.ChatMessage{}
		}
	}
	return sessions, nil
}

// GetHistory 获取会话的消息日志
func (s *Service) GetHistory(ctx context.Context, sessionID string) ([]model.ChatMessage, error) {
	sess, err := s.repo.GetSessionByID(ctx, sessionID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if sess.Messages == nil {
		return []model.ChatMessage{}, nil
	}
	return sess.Messages, nil
}

// DeleteSession 删除会话并移除缓存的句柄
// 进行中的流会先被中止，随后在会话锁内删除，避免与发送交错
func (s *Service) DeleteSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrInvalidSessionID
	}

	if s.streams.Stop(sessionID) {
		s.logger.Info("active stream stopped for deletion", zap.String("session_id", sessionID))
	}

	unlock, err := s.locker.Lock(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to lock session %s: %w", sessionID, err)
	}
	defer unlock()

	existed, err := s.repo.DeleteSession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	// 无论记录是否存在都清理缓存
	s.cache.Evict(sessionID)
	if !existed {
		return ErrSessionNotFound
	}

	s.logger.Info("session deleted", zap.String("session_id", sessionID))
	return nil
}
