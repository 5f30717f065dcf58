package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashwinyue/next-chat/internal/config"
	"github.com/ashwinyue/next-chat/internal/repository"
	"github.com/ashwinyue/next-chat/internal/service/event"
	"github.com/ashwinyue/next-chat/internal/testutil"
)

func testConfig() *config.Config {
	return &config.Config{
		AI: config.AIConfig{
			Provider:    "gemini",
			Temperature: 0.7,
			Gemini: config.ProviderConfig{
				APIKey:  "test-key",
				BaseURL: "https://generativelanguage.googleapis.com/v1beta/openai/",
				Model:   "gemini-2.5-flash",
				Timeout: 5,
			},
		},
		Chat: config.ChatConfig{
			MaxWords:          500,
			TitleWords:        6,
			DefaultTitle:      "New Chat",
			MaxStreamDuration: 5 * time.Second,
			LockTTL:           time.Minute,
		},
	}
}

// completionServer 模拟 OpenAI 兼容的流式补全接口
func completionServer(t *testing.T, pieces ...string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"), r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), `"stream":true`)
		assert.Contains(t, string(body), `"gemini-2.5-flash"`)

		w.Header().Set("Content-Type", "text/event-stream")
		for i, p := range pieces {
			finish := "null"
			if i == len(pieces)-1 {
				finish = `"stop"`
			}
			fmt.Fprintf(w, "data: {\"id\":\"c1\",\"object\":\"chat.completion.chunk\",\"created\":1,\"model\":\"gemini-2.5-flash\","+
				"\"choices\":[{\"index\":0,\"delta\":{\"role\":\"assistant\",\"content\":%q},\"finish_reason\":%s}]}\n\n", p, finish)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
}

func TestNewChatModel_StreamsThroughCompatibleEndpoint(t *testing.T) {
	ts := completionServer(t, "Hel", "lo")
	defer ts.Close()

	cfg := testConfig()
	cm, err := newChatModel(context.Background(), &cfg.AI, testutil.NewTestClient(ts))
	require.NoError(t, err)

	sr, err := cm.Stream(context.Background(), []*schema.Message{schema.UserMessage("hi")})
	require.NoError(t, err)
	defer sr.Close()

	var b strings.Builder
	for {
		msg, err := sr.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		b.WriteString(msg.Content)
	}
	assert.Equal(t, "Hello", b.String())
}

func TestNewChatModel_ProviderErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.AIConfig)
	}{
		{name: "unsupported provider", mutate: func(c *config.AIConfig) { c.Provider = "anthropic" }},
		{name: "missing api key", mutate: func(c *config.AIConfig) { c.Gemini.APIKey = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg.AI)
			_, err := newChatModel(context.Background(), &cfg.AI, nil)
			assert.Error(t, err)
		})
	}
}

func TestNewServices_EndToEnd(t *testing.T) {
	ts := completionServer(t, "**Hi**", " there")
	defer ts.Close()

	repo := testutil.NewMemoryChatRepository()
	svcs, err := NewServices(context.Background(), testConfig(), Deps{
		Repos:      &repository.Repositories{Chat: repo},
		HTTPClient: testutil.NewTestClient(ts),
	})
	require.NoError(t, err)
	ctx := context.Background()

	sess, err := svcs.Chat.CreateSession(ctx)
	require.NoError(t, err)

	var events []event.Event
	err = svcs.Relay.Send(ctx, sess.ID, "hello", func(e event.Event) error {
		events = append(events, e)
		return nil
	})
	require.NoError(t, err)

	require.NotEmpty(t, events)
	assert.Equal(t, event.Done("Hi there"), events[len(events)-1])

	history, err := svcs.Chat.GetHistory(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "Hi there", history[1].Content)
}
