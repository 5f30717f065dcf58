// Package chat 提供 Chat 服务单元测试
package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashwinyue/next-chat/internal/model"
	"github.com/ashwinyue/next-chat/internal/service/conversation"
	"github.com/ashwinyue/next-chat/internal/service/event"
	"github.com/ashwinyue/next-chat/internal/service/relay"
	"github.com/ashwinyue/next-chat/internal/service/session"
	"github.com/ashwinyue/next-chat/internal/testutil"
)

type testEnv struct {
	repo  *testutil.MemoryChatRepository
	model *testutil.FakeChatModel
	cache *conversation.Cache
	svc   *Service
	relay *relay.Relay
}

func newTestEnv() *testEnv {
	repo := testutil.NewMemoryChatRepository()
	cm := &testutil.FakeChatModel{Chunks: []string{"Hi", " there"}}
	cache := conversation.NewCache(conversation.NewFactory(cm, ""), nil)
	locker := session.NewLocalLocker()
	streams := session.NewStreamRegistry()

	return &testEnv{
		repo:  repo,
		model: cm,
		cache: cache,
		svc:   NewService(repo, cache, locker, streams, nil, "New Chat"),
		relay: relay.New(repo, cache, locker, streams, nil, nil, relay.Options{
			MaxWords:          500,
			TitleWords:        6,
			DefaultTitle:      "New Chat",
			MaxStreamDuration: 5 * time.Second,
		}),
	}
}

func discard(event.Event) error { return nil }

// ========== CreateSession 测试 ==========

func TestService_CreateSession(t *testing.T) {
	env := newTestEnv()

	sess, err := env.svc.CreateSession(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, sess.ID)
	assert.Equal(t, "New Chat", sess.Title)
	assert.NotNil(t, sess.Messages)

	h, ok := env.cache.Get(sess.ID)
	require.True(t, ok, "empty handle should be cached eagerly")
	assert.Empty(t, h.History())
}

func TestService_CreateSession_Error(t *testing.T) {
	env := newTestEnv()
	env.repo.CreateErr = errors.New("db down")

	_, err := env.svc.CreateSession(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 0, env.cache.Len())
}

// ========== ListSessions 测试 ==========

func TestService_ListSessions(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	sessions, err := env.svc.ListSessions(ctx)
	require.NoError(t, err)
	assert.Empty(t, sessions)

	first, err := env.svc.CreateSession(ctx)
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	second, err := env.svc.CreateSession(ctx)
	require.NoError(t, err)

	sessions, err = env.svc.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, second.ID, sessions[0].ID)
	assert.Equal(t, first.ID, sessions[1].ID)
	assert.NotNil(t, sessions[0].Messages)
}

func TestService_ListSessions_Error(t *testing.T) {
	env := newTestEnv()
	env.repo.ListErr = errors.New("db down")

	_, err := env.svc.ListSessions(context.Background())
	assert.Error(t, err)
}

// ========== GetHistory 测试 ==========

func TestService_GetHistory(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	sess, err := env.svc.CreateSession(ctx)
	require.NoError(t, err)

	history, err := env.svc.GetHistory(ctx, sess.ID)
	require.NoError(t, err)
	assert.NotNil(t, history)
	assert.Empty(t, history)

	require.NoError(t, env.relay.Send(ctx, sess.ID, "hello", discard))

	history, err = env.svc.GetHistory(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, model.RoleUser, history[0].Role)
	assert.Equal(t, "hello", history[0].Content)
	assert.Equal(t, model.RoleAI, history[1].Role)
	assert.Equal(t, "Hi there", history[1].Content)
}

func TestService_GetHistory_NotFound(t *testing.T) {
	env := newTestEnv()

	_, err := env.svc.GetHistory(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

// ========== DeleteSession 测试 ==========

func TestService_DeleteSession(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	sess, err := env.svc.CreateSession(ctx)
	require.NoError(t, err)
	require.NoError(t, env.relay.Send(ctx, sess.ID, "hello", discard))

	require.NoError(t, env.svc.DeleteSession(ctx, sess.ID))

	_, ok := env.cache.Get(sess.ID)
	assert.False(t, ok)
	assert.Nil(t, env.repo.Messages(sess.ID))

	// 删除后发送必须报不存在，不能悄悄重建句柄
	err = env.relay.Send(ctx, sess.ID, "are you there?", discard)
	assert.ErrorIs(t, err, relay.ErrSessionNotFound)
	_, ok = env.cache.Get(sess.ID)
	assert.False(t, ok)
	assert.Equal(t, 1, env.model.Calls())
}

func TestService_DeleteSession_Errors(t *testing.T) {
	tests := []struct {
		name      string
		sessionID string
		repoErr   error
		wantErr   error
	}{
		{name: "empty id", sessionID: "", wantErr: ErrInvalidSessionID},
		{name: "unknown id", sessionID: "missing", wantErr: ErrSessionNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv()
			err := env.svc.DeleteSession(context.Background(), tt.sessionID)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestService_DeleteSession_RepoError(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	sess, err := env.svc.CreateSession(ctx)
	require.NoError(t, err)
	env.repo.DeleteErr = errors.New("db down")

	err = env.svc.DeleteSession(ctx, sess.ID)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSessionNotFound)

	// 删除失败时保留句柄
	_, ok := env.cache.Get(sess.ID)
	assert.True(t, ok)
}

func TestService_DeleteSession_StopsActiveStream(t *testing.T) {
	env := newTestEnv()
	env.model.Step = make(chan struct{}, 1)
	env.model.Step <- struct{}{}
	ctx := context.Background()

	sess, err := env.svc.CreateSession(ctx)
	require.NoError(t, err)

	first := make(chan struct{})
	sendErr := make(chan error, 1)
	go func() {
		var once bool
		sendErr <- env.relay.Send(ctx, sess.ID, "hello", func(e event.Event) error {
			if !once && e.Type == event.EventChunk {
				once = true
				close(first)
			}
			return nil
		})
	}()

	<-first
	require.NoError(t, env.svc.DeleteSession(ctx, sess.ID))
	assert.ErrorIs(t, <-sendErr, relay.ErrStreamFailed)
	assert.Nil(t, env.repo.Messages(sess.ID))
}
