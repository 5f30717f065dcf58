package model

import "time"

// Role 消息角色
type Role string

const (
	// RoleUser 用户消息
	RoleUser Role = "User"
	// RoleAI 模型回复
	RoleAI Role = "AI"
)

// Valid 是否为合法角色
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAI
}

// ChatSession 聊天会话
// JSON 字段名沿用前端读取的文档结构（_id、createdAt 等）
type ChatSession struct {
	ID        string        `gorm:"primaryKey;size:36" json:"_id"`
	Title     string        `gorm:"size:255" json:"title"`
	CreatedAt time.Time     `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time     `gorm:"autoUpdateTime;index" json:"updatedAt"`
	Messages  []ChatMessage `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE" json:"messages"`
}

// ChatMessage 聊天消息
// Seq 为消息在会话中的位置，只追加不修改
type ChatMessage struct {
	ID        string    `gorm:"primaryKey;size:36" json:"-"`
	SessionID string    `gorm:"uniqueIndex:idx_session_seq;size:36" json:"-"`
	Seq       int       `gorm:"uniqueIndex:idx_session_seq" json:"-"`
	Role      Role      `gorm:"size:8" json:"role"`
	Content   string    `gorm:"type:text" json:"content"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName 指定表名
func (ChatSession) TableName() string {
	return "chat_sessions"
}

func (ChatMessage) TableName() string {
	return "chat_messages"
}

// AppendMessage 在日志末尾追加一条消息
func (s *ChatSession) AppendMessage(role Role, content string) *ChatMessage {
	s.Messages = append(s.Messages, ChatMessage{
		SessionID: s.ID,
		Seq:       len(s.Messages),
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	})
	return &s.Messages[len(s.Messages)-1]
}
