// Package callback 提供 Eino Callback 日志支持
package callback

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"
)

// Logger 日志回调处理器
// 实现 callbacks.Handler 接口，记录模型调用的耗时、token 用量与错误
type Logger struct {
	log         *zap.Logger
	EnableDebug bool // 是否输出请求细节
}

var _ callbacks.Handler = (*Logger)(nil)

type startKey struct{}

// NewLogger 创建日志回调处理器
func NewLogger(log *zap.Logger, enableDebug bool) *Logger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Logger{log: log.Named("eino"), EnableDebug: enableDebug}
}

// OnStart 组件执行开始时调用
func (l *Logger) OnStart(ctx context.Context, info *callbacks.RunInfo, input callbacks.CallbackInput) context.Context {
	if l.EnableDebug {
		fields := runFields(info)
		if in := model.ConvCallbackInput(input); in != nil {
			fields = append(fields, zap.Int("messages", len(in.Messages)))
			if in.Config != nil {
				fields = append(fields, zap.String("model", in.Config.Model))
			}
		}
		l.log.Debug("component started", fields...)
	}
	return context.WithValue(ctx, startKey{}, time.Now())
}

// OnEnd 组件执行成功结束时调用
func (l *Logger) OnEnd(ctx context.Context, info *callbacks.RunInfo, output callbacks.CallbackOutput) context.Context {
	fields := append(runFields(info), elapsed(ctx))
	if out := model.ConvCallbackOutput(output); out != nil {
		fields = append(fields, usageFields(out.TokenUsage)...)
	}
	l.log.Info("component finished", fields...)
	return ctx
}

// OnError 组件执行出错时调用
func (l *Logger) OnError(ctx context.Context, info *callbacks.RunInfo, err error) context.Context {
	fields := append(runFields(info), elapsed(ctx), zap.Error(err))
	if errors.Is(err, context.Canceled) {
		l.log.Info("component canceled", fields...)
		return ctx
	}
	l.log.Warn("component failed", fields...)
	return ctx
}

// OnStartWithStreamInput 流式输入开始时调用
// 回调拿到的是流的副本，不读取也必须关闭
func (l *Logger) OnStartWithStreamInput(ctx context.Context, info *callbacks.RunInfo, input *schema.StreamReader[callbacks.CallbackInput]) context.Context {
	input.Close()
	if l.EnableDebug {
		l.log.Debug("component stream input started", runFields(info)...)
	}
	return context.WithValue(ctx, startKey{}, time.Now())
}

// OnEndWithStreamOutput 流式输出结束时调用
// 在后台读完副本流，最后一帧通常带有 token 用量
func (l *Logger) OnEndWithStreamOutput(ctx context.Context, info *callbacks.RunInfo, output *schema.StreamReader[callbacks.CallbackOutput]) context.Context {
	go func() {
		defer output.Close()

		var (
			usage  *model.TokenUsage
			frames int
		)
		for {
			frame, err := output.Recv()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				l.OnError(ctx, info, err)
				return
			}
			frames++
			if out := model.ConvCallbackOutput(frame); out != nil && out.TokenUsage != nil {
				usage = out.TokenUsage
			}
		}

		fields := append(runFields(info), elapsed(ctx), zap.Int("frames", frames))
		l.log.Info("component stream finished", append(fields, usageFields(usage)...)...)
	}()
	return ctx
}

func runFields(info *callbacks.RunInfo) []zap.Field {
	if info == nil {
		return nil
	}
	return []zap.Field{
		zap.String("name", info.Name),
		zap.String("type", info.Type),
		zap.String("component", string(info.Component)),
	}
}

func elapsed(ctx context.Context) zap.Field {
	if start, ok := ctx.Value(startKey{}).(time.Time); ok {
		return zap.Duration("elapsed", time.Since(start))
	}
	return zap.Skip()
}

func usageFields(u *model.TokenUsage) []zap.Field {
	if u == nil {
		return nil
	}
	return []zap.Field{
		zap.Int("prompt_tokens", u.PromptTokens),
		zap.Int("completion_tokens", u.CompletionTokens),
		zap.Int("total_tokens", u.TotalTokens),
	}
}
