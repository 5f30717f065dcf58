// Package relay 实现消息发送的流式中继
//
// 一次发送：校验 → 加会话锁 → 加载会话 → 解析模型句柄 → 逐片转发 → 成功后一次性持久化。
// 中继只产生 event.Event，HTTP/SSE 细节由调用方的 Emitter 负责。
package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/ashwinyue/next-chat/internal/config"
	"github.com/ashwinyue/next-chat/internal/metrics"
	"github.com/ashwinyue/next-chat/internal/model"
	"github.com/ashwinyue/next-chat/internal/repository"
	"github.com/ashwinyue/next-chat/internal/service/conversation"
	"github.com/ashwinyue/next-chat/internal/service/event"
	"github.com/ashwinyue/next-chat/internal/service/session"
)

var (
	// ErrSessionNotFound 会话不存在
	ErrSessionNotFound = errors.New("chat session not found")
	// ErrStreamFailed 流已开始后失败，错误已通过事件告知客户端
	ErrStreamFailed = errors.New("stream failed")
	errClientGone   = errors.New("client disconnected")
)

// 失败事件中返回给客户端的文案
const (
	reasonUpstream = "Failed to get AI response"
	reasonTimeout  = "AI response timed out"
	reasonStopped  = "Response stopped"
	reasonSave     = "Failed to save chat"
)

// Options 发送流程参数
type Options struct {
	MaxWords          int
	TitleWords        int
	DefaultTitle      string
	MaxStreamDuration time.Duration
}

// OptionsFromConfig 从配置构造参数
func OptionsFromConfig(cfg config.ChatConfig) Options {
	return Options{
		MaxWords:          cfg.MaxWords,
		TitleWords:        cfg.TitleWords,
		DefaultTitle:      cfg.DefaultTitle,
		MaxStreamDuration: cfg.MaxStreamDuration,
	}
}

// Relay 流式中继
type Relay struct {
	repo    repository.ChatRepository
	cache   *conversation.Cache
	locker  session.Locker
	streams *session.StreamRegistry
	metrics *metrics.Metrics
	logger  *zap.Logger
	opts    Options
}

// New 创建中继
func New(
	repo repository.ChatRepository,
	cache *conversation.Cache,
	locker session.Locker,
	streams *session.StreamRegistry,
	m *metrics.Metrics,
	logger *zap.Logger,
	opts Options,
) *Relay {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Relay{
		repo:    repo,
		cache:   cache,
		locker:  locker,
		streams: streams,
		metrics: m,
		logger:  logger.Named("relay"),
		opts:    opts,
	}
}

// Validate 按配置的字数上限校验
func (r *Relay) Validate(rawText string) error {
	return Validate(rawText, r.opts.MaxWords)
}

// Stop 中止会话当前的流
func (r *Relay) Stop(sessionID string) bool {
	return r.streams.Stop(sessionID)
}

// Send 发送一条用户消息并把模型回复逐片交给 emit
//
// 校验失败、会话不存在等错误在任何事件之前直接返回；
// 流打开之后的错误通过 Failed 事件告知，并返回包装了 ErrStreamFailed 的错误。
// sessionID 为空时先持久化一个空会话再继续。
func (r *Relay) Send(ctx context.Context, sessionID, rawText string, emit event.Emitter) error {
	if err := r.Validate(rawText); err != nil {
		return err
	}

	var sess *model.ChatSession
	if sessionID == "" {
		created, err := r.createSession(ctx)
		if err != nil {
			return err
		}
		sess, sessionID = created, created.ID
	}

	unlock, err := r.locker.Lock(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to lock session %s: %w", sessionID, err)
	}
	defer unlock()

	if sess == nil {
		if sess, err = r.loadSession(ctx, sessionID); err != nil {
			return err
		}
	}

	// 句柄种子是追加本轮用户消息之前的日志
	handle, rehydrated := r.cache.Resolve(sessionID, sess.Messages)
	if rehydrated {
		r.logger.Debug("conversation handle rehydrated",
			zap.String("session_id", sessionID),
			zap.Int("messages", len(sess.Messages)))
	}

	sess.AppendMessage(model.RoleUser, rawText)
	if len(sess.Messages) == 1 {
		sess.Title = DeriveTitle(rawText, r.opts.TitleWords)
	}

	streamCtx, cancel := context.WithTimeout(ctx, r.opts.MaxStreamDuration)
	defer cancel()
	defer r.streams.Register(sessionID, cancel)()

	start := time.Now()
	r.metrics.StreamStarted()

	reply, err := r.stream(streamCtx, handle, rawText, emit)
	if err != nil {
		status, reason := r.classify(ctx, streamCtx, err)
		r.metrics.StreamFinished(status, time.Since(start))
		r.fail(emit, reason)
		r.logger.Warn("stream aborted",
			zap.String("session_id", sessionID),
			zap.String("status", status),
			zap.Error(err))
		return fmt.Errorf("%w: %w", ErrStreamFailed, err)
	}

	sess.AppendMessage(model.RoleAI, reply)
	// 回复已完整收到，客户端断开不应影响落库
	if err := r.repo.SaveSession(context.WithoutCancel(ctx), sess); err != nil {
		r.metrics.StreamFinished(metrics.StatusFailed, time.Since(start))
		r.fail(emit, reasonSave)
		r.logger.Error("failed to save session", zap.String("session_id", sessionID), zap.Error(err))
		return fmt.Errorf("%w: failed to save session: %w", ErrStreamFailed, err)
	}
	handle.Commit(rawText, reply)
	r.metrics.StreamFinished(metrics.StatusDone, time.Since(start))

	if err := emit(event.Done(reply)); err != nil {
		r.logger.Info("client gone before done event", zap.String("session_id", sessionID), zap.Error(err))
	}
	return nil
}

// stream 打开模型流并逐片转发，返回拼接后的完整回复
// 每个分片在 emit 返回之后才读取下一个
func (r *Relay) stream(ctx context.Context, h *conversation.Handle, rawText string, emit event.Emitter) (string, error) {
	sr, err := h.Stream(ctx, rawText)
	if err != nil {
		return "", err
	}
	defer sr.Close()

	var full strings.Builder
	for {
		msg, err := sr.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}

		cleaned := StripMarkdown(chunkText(msg), AtLineStart(full.String()))
		if cleaned == "" {
			continue
		}
		full.WriteString(cleaned)
		if err := emit(event.Chunk(cleaned)); err != nil {
			return "", fmt.Errorf("%w: %w", errClientGone, err)
		}
		r.metrics.ChunkRelayed()
	}

	// 流正常结束但期间被取消时不落库
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return full.String(), nil
}

func (r *Relay) classify(parent, streamCtx context.Context, err error) (status, reason string) {
	switch {
	case errors.Is(err, errClientGone), parent.Err() != nil:
		return metrics.StatusCanceled, reasonStopped
	case errors.Is(streamCtx.Err(), context.DeadlineExceeded):
		return metrics.StatusFailed, reasonTimeout
	case errors.Is(streamCtx.Err(), context.Canceled):
		return metrics.StatusCanceled, reasonStopped
	default:
		return metrics.StatusFailed, reasonUpstream
	}
}

// fail 尽力发送失败事件，客户端可能已经断开
func (r *Relay) fail(emit event.Emitter, reason string) {
	_ = emit(event.Failed(reason))
}

func (r *Relay) createSession(ctx context.Context) (*model.ChatSession, error) {
	sess := &model.ChatSession{Title: r.opts.DefaultTitle}
	if err := r.repo.CreateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return sess, nil
}

func (r *Relay) loadSession(ctx context.Context, sessionID string) (*model.ChatSession, error) {
	sess, err := r.repo.GetSessionByID(ctx, sessionID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return sess, nil
}

func chunkText(msg *schema.Message) string {
	if msg == nil {
		return ""
	}
	return msg.Content
}
