package service

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ashwinyue/next-chat/internal/config"
	"github.com/ashwinyue/next-chat/internal/metrics"
	"github.com/ashwinyue/next-chat/internal/repository"
	"github.com/ashwinyue/next-chat/internal/service/callback"
	"github.com/ashwinyue/next-chat/internal/service/chat"
	"github.com/ashwinyue/next-chat/internal/service/conversation"
	"github.com/ashwinyue/next-chat/internal/service/relay"
	"github.com/ashwinyue/next-chat/internal/service/session"
)

// Services 服务集合
type Services struct {
	Chat  *chat.Service
	Relay *relay.Relay

	// 进程内状态
	Cache   *conversation.Cache
	Streams *session.StreamRegistry
	Locker  session.Locker

	ChatModel model.BaseChatModel
	Metrics   *metrics.Metrics
	Config    *config.Config
}

// Deps 外部依赖
type Deps struct {
	Repos   *repository.Repositories
	Redis   *redis.Client // 为 nil 时使用进程内会话锁
	Metrics *metrics.Metrics
	Logger  *zap.Logger

	// ChatModel 非空时直接使用，否则按配置创建
	ChatModel  model.BaseChatModel
	HTTPClient *http.Client
}

// NewServices 创建所有服务
func NewServices(ctx context.Context, cfg *config.Config, deps Deps) (*Services, error) {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	cm := deps.ChatModel
	if cm == nil {
		var err error
		if cm, err = newChatModel(ctx, &cfg.AI, deps.HTTPClient); err != nil {
			return nil, fmt.Errorf("failed to create chat model: %w", err)
		}
	}

	var locker session.Locker = session.NewLocalLocker()
	if deps.Redis != nil {
		locker = session.NewRedisLocker(deps.Redis, cfg.Chat.LockTTL)
		log.Info("using redis session lock", zap.Duration("ttl", cfg.Chat.LockTTL))
	}

	factory := conversation.NewFactory(cm, cfg.AI.SystemPrompt, callback.NewLogger(log, cfg.App.Debug))
	cache := conversation.NewCache(factory, deps.Metrics)
	streams := session.NewStreamRegistry()

	return &Services{
		Chat:  chat.NewService(deps.Repos.Chat, cache, locker, streams, log, cfg.Chat.DefaultTitle),
		Relay: relay.New(deps.Repos.Chat, cache, locker, streams, deps.Metrics, log, relay.OptionsFromConfig(cfg.Chat)),

		Cache:   cache,
		Streams: streams,
		Locker:  locker,

		ChatModel: cm,
		Metrics:   deps.Metrics,
		Config:    cfg,
	}, nil
}

// newChatModel 创建 ChatModel
// Gemini、OpenAI、DeepSeek 都通过 OpenAI 兼容接口访问
func newChatModel(ctx context.Context, cfg *config.AIConfig, httpClient *http.Client) (model.BaseChatModel, error) {
	p, err := cfg.Active()
	if err != nil {
		return nil, err
	}

	temperature := cfg.Temperature
	mc := &openai.ChatModelConfig{
		APIKey:      p.APIKey,
		BaseURL:     p.BaseURL,
		Model:       p.Model,
		Temperature: &temperature,
		Timeout:     time.Duration(p.Timeout) * time.Second,
	}
	if httpClient != nil {
		mc.HTTPClient = httpClient
	}
	return openai.NewChatModel(ctx, mc)
}
