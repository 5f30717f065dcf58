// Package session 提供会话级的并发协调：发送互斥与活跃流控制
package session

import (
	"context"
	"sync"
	"time"
)

// ActiveStream 活跃流
type ActiveStream struct {
	SessionID  string
	CancelFunc context.CancelFunc
	CreatedAt  time.Time
}

// StreamRegistry 活跃流登记表
// 会话锁保证每个会话同一时刻最多一个活跃流
type StreamRegistry struct {
	mu      sync.Mutex
	streams map[string]*ActiveStream
}

// NewStreamRegistry 创建登记表
func NewStreamRegistry() *StreamRegistry {
	return &StreamRegistry{streams: make(map[string]*ActiveStream)}
}

// Register 注册活跃流，返回的函数用于注销
func (r *StreamRegistry) Register(sessionID string, cancel context.CancelFunc) func() {
	stream := &ActiveStream{
		SessionID:  sessionID,
		CancelFunc: cancel,
		CreatedAt:  time.Now(),
	}

	r.mu.Lock()
	r.streams[sessionID] = stream
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.streams[sessionID] == stream {
			delete(r.streams, sessionID)
		}
	}
}

// Stop 停止会话的活跃流，返回是否存在
func (r *StreamRegistry) Stop(sessionID string) bool {
	r.mu.Lock()
	stream, ok := r.streams[sessionID]
	if ok {
		delete(r.streams, sessionID)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}
	if stream.CancelFunc != nil {
		stream.CancelFunc()
	}
	return true
}

// Active 判断会话是否有活跃流
func (r *StreamRegistry) Active(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.streams[sessionID]
	return ok
}
