package callback

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newObserved(debug bool) (*Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return NewLogger(zap.New(core), debug), logs
}

var runInfo = &callbacks.RunInfo{Name: "chat", Type: "OpenAI", Component: components.ComponentOfChatModel}

func TestLogger_StartEnd(t *testing.T) {
	l, logs := newObserved(true)

	ctx := l.OnStart(context.Background(), runInfo, &model.CallbackInput{
		Messages: []*schema.Message{schema.UserMessage("hi")},
		Config:   &model.Config{Model: "gemini-2.5-flash"},
	})
	l.OnEnd(ctx, runInfo, &model.CallbackOutput{
		Message:    schema.AssistantMessage("hello", nil),
		TokenUsage: &model.TokenUsage{PromptTokens: 3, CompletionTokens: 2, TotalTokens: 5},
	})

	started := logs.FilterMessage("component started").All()
	require.Len(t, started, 1)
	assert.Equal(t, "gemini-2.5-flash", started[0].ContextMap()["model"])

	finished := logs.FilterMessage("component finished").All()
	require.Len(t, finished, 1)
	fields := finished[0].ContextMap()
	assert.EqualValues(t, 5, fields["total_tokens"])
	assert.Contains(t, fields, "elapsed")
}

func TestLogger_StartWithoutDebug(t *testing.T) {
	l, logs := newObserved(false)

	l.OnStart(context.Background(), runInfo, &model.CallbackInput{})
	assert.Equal(t, 0, logs.FilterMessage("component started").Len())
}

func TestLogger_Error(t *testing.T) {
	l, logs := newObserved(false)

	l.OnError(context.Background(), runInfo, errors.New("429 too many requests"))
	l.OnError(context.Background(), runInfo, context.Canceled)

	failed := logs.FilterMessage("component failed").All()
	require.Len(t, failed, 1)
	assert.Equal(t, zapcore.WarnLevel, failed[0].Level)
	assert.Equal(t, 1, logs.FilterMessage("component canceled").Len())
}

func TestLogger_StreamOutputDrained(t *testing.T) {
	l, logs := newObserved(false)

	sr := schema.StreamReaderFromArray([]callbacks.CallbackOutput{
		&model.CallbackOutput{Message: schema.AssistantMessage("Hel", nil)},
		&model.CallbackOutput{Message: schema.AssistantMessage("lo", nil)},
		&model.CallbackOutput{TokenUsage: &model.TokenUsage{TotalTokens: 9}},
	})
	l.OnEndWithStreamOutput(context.Background(), runInfo, sr)

	require.Eventually(t, func() bool {
		return logs.FilterMessage("component stream finished").Len() == 1
	}, time.Second, 5*time.Millisecond)

	fields := logs.FilterMessage("component stream finished").All()[0].ContextMap()
	assert.EqualValues(t, 3, fields["frames"])
	assert.EqualValues(t, 9, fields["total_tokens"])
}

func TestLogger_StreamInputRecordsStart(t *testing.T) {
	l, logs := newObserved(true)

	sr := schema.StreamReaderFromArray([]callbacks.CallbackInput{&model.CallbackInput{}})
	ctx := l.OnStartWithStreamInput(context.Background(), runInfo, sr)
	l.OnEnd(ctx, runInfo, &model.CallbackOutput{})

	assert.Equal(t, 1, logs.FilterMessage("component stream input started").Len())
	finished := logs.FilterMessage("component finished").All()
	require.Len(t, finished, 1)
	assert.Contains(t, finished[0].ContextMap(), "elapsed")
}
