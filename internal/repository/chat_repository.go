package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ashwinyue/next-chat/internal/model"
)

// chatRepository 聊天数据访问
type chatRepository struct {
	db *gorm.DB
}

// NewChatRepository 创建聊天仓库
func NewChatRepository(db *gorm.DB) ChatRepository {
	return &chatRepository{db: db}
}

// CreateSession 创建会话，ID 由仓库生成
func (r *chatRepository) CreateSession(ctx context.Context, session *model.ChatSession) error {
	session.ID = uuid.New().String()
	for i := range session.Messages {
		prepareMessage(session, i)
	}
	return r.db.WithContext(ctx).Create(session).Error
}

// GetSessionByID 获取会话（含按顺序排列的消息）
func (r *chatRepository) GetSessionByID(ctx context.Context, id string) (*model.ChatSession, error) {
	var session model.ChatSession
	err := r.db.WithContext(ctx).
		Preload("Messages", orderBySeq).
		Where("id = ?", id).
		First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &session, nil
}

// SaveSession 保存会话
// 更新标题与更新时间，并插入尚未落库的新消息（Seq 大于已存数量的部分）
func (r *chatRepository) SaveSession(ctx context.Context, session *model.ChatSession) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		session.UpdatedAt = time.Now()
		res := tx.Model(&model.ChatSession{ID: session.ID}).
			Select("Title", "UpdatedAt").
			Updates(model.ChatSession{Title: session.Title, UpdatedAt: session.UpdatedAt})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}

		var stored int64
		if err := tx.Model(&model.ChatMessage{}).Where("session_id = ?", session.ID).Count(&stored).Error; err != nil {
			return err
		}
		if int(stored) >= len(session.Messages) {
			return nil
		}

		pending := make([]*model.ChatMessage, 0, len(session.Messages)-int(stored))
		for i := int(stored); i < len(session.Messages); i++ {
			if role := session.Messages[i].Role; !role.Valid() {
				return fmt.Errorf("%w: %q at position %d", ErrInvalidRole, role, i)
			}
			prepareMessage(session, i)
			pending = append(pending, &session.Messages[i])
		}
		return tx.Create(pending).Error
	})
}

// ListSessions 列出全部会话，最近更新的在前
func (r *chatRepository) ListSessions(ctx context.Context) ([]*model.ChatSession, error) {
	var sessions []*model.ChatSession
	err := r.db.WithContext(ctx).
		Preload("Messages", orderBySeq).
		Order("updated_at DESC").
		Find(&sessions).Error
	return sessions, err
}

// DeleteSession 删除会话及其消息，返回是否存在
func (r *chatRepository) DeleteSession(ctx context.Context, id string) (bool, error) {
	var deleted bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&model.ChatMessage{}, "session_id = ?", id).Error; err != nil {
			return err
		}
		res := tx.Delete(&model.ChatSession{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		deleted = res.RowsAffected > 0
		return nil
	})
	return deleted, err
}

func orderBySeq(db *gorm.DB) *gorm.DB {
	return db.Order("seq ASC")
}

func prepareMessage(session *model.ChatSession, i int) {
	msg := &session.Messages[i]
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	msg.SessionID = session.ID
	msg.Seq = i
}
