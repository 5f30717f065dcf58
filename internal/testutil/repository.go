package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ashwinyue/next-chat/internal/model"
	"github.com/ashwinyue/next-chat/internal/repository"
)

// MemoryChatRepository 内存版 ChatRepository
// 读写都做深拷贝，调用方对返回值的修改不会影响已存储的数据
type MemoryChatRepository struct {
	mu       sync.Mutex
	sessions map[string]*model.ChatSession

	// 注入错误
	CreateErr error
	GetErr    error
	SaveErr   error
	ListErr   error
	DeleteErr error

	saves int
}

var _ repository.ChatRepository = (*MemoryChatRepository)(nil)

// NewMemoryChatRepository 创建内存仓库
func NewMemoryChatRepository() *MemoryChatRepository {
	return &MemoryChatRepository{sessions: make(map[string]*model.ChatSession)}
}

func (r *MemoryChatRepository) CreateSession(ctx context.Context, session *model.ChatSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.CreateErr != nil {
		return r.CreateErr
	}
	if session.ID == "" {
		session.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	session.CreatedAt = now
	session.UpdatedAt = now
	r.sessions[session.ID] = cloneSession(session)
	return nil
}

func (r *MemoryChatRepository) GetSessionByID(ctx context.Context, id string) (*model.ChatSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.GetErr != nil {
		return nil, r.GetErr
	}
	s, ok := r.sessions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneSession(s), nil
}

// SaveSession 与数据库实现一致：更新标题，只追加新增的消息
func (r *MemoryChatRepository) SaveSession(ctx context.Context, session *model.ChatSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.SaveErr != nil {
		return r.SaveErr
	}
	stored, ok := r.sessions[session.ID]
	if !ok {
		return repository.ErrNotFound
	}
	stored.Title = session.Title
	stored.UpdatedAt = time.Now().UTC()
	for i := len(stored.Messages); i < len(session.Messages); i++ {
		msg := session.Messages[i]
		msg.SessionID = session.ID
		msg.Seq = i
		if msg.ID == "" {
			msg.ID = uuid.New().String()
		}
		stored.Messages = append(stored.Messages, msg)
	}
	r.saves++
	return nil
}

func (r *MemoryChatRepository) ListSessions(ctx context.Context) ([]*model.ChatSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ListErr != nil {
		return nil, r.ListErr
	}
	out := make([]*model.ChatSession, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, cloneSession(s))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func (r *MemoryChatRepository) DeleteSession(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.DeleteErr != nil {
		return false, r.DeleteErr
	}
	if _, ok := r.sessions[id]; !ok {
		return false, nil
	}
	delete(r.sessions, id)
	return true, nil
}

// Saves 返回 SaveSession 成功次数
func (r *MemoryChatRepository) Saves() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saves
}

// Messages 返回已存储的消息日志，会话不存在时返回 nil
func (r *MemoryChatRepository) Messages(id string) []model.ChatMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil
	}
	return append([]model.ChatMessage(nil), s.Messages...)
}

func cloneSession(s *model.ChatSession) *model.ChatSession {
	c := *s
	c.Messages = append([]model.ChatMessage(nil), s.Messages...)
	return &c
}
