package testutil

import (
	"context"
	"strings"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// FakeChatModel 可编排的流式模型
// 按顺序吐出 Chunks；设置 Err 时在全部分片之后返回该错误
type FakeChatModel struct {
	Chunks  []string
	Err     error
	OpenErr error

	// Step 非空时每个分片发送前都要从中取一个值，用于控制节奏
	Step chan struct{}

	mu     sync.Mutex
	inputs [][]*schema.Message
}

var _ model.BaseChatModel = (*FakeChatModel)(nil)

// Generate 实现非流式调用
func (m *FakeChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	m.record(input)
	if m.OpenErr != nil {
		return nil, m.OpenErr
	}
	if m.Err != nil {
		return nil, m.Err
	}
	return schema.AssistantMessage(strings.Join(m.Chunks, ""), nil), nil
}

// Stream 实现流式调用
func (m *FakeChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	m.record(input)
	if m.OpenErr != nil {
		return nil, m.OpenErr
	}

	sr, sw := schema.Pipe[*schema.Message](len(m.Chunks) + 1)
	go func() {
		defer sw.Close()
		for _, c := range m.Chunks {
			if m.Step != nil {
				select {
				case <-m.Step:
				case <-ctx.Done():
					sw.Send(nil, ctx.Err())
					return
				}
			}
			if ctx.Err() != nil {
				sw.Send(nil, ctx.Err())
				return
			}
			if closed := sw.Send(&schema.Message{Role: schema.Assistant, Content: c}, nil); closed {
				return
			}
		}
		if m.Err != nil {
			sw.Send(nil, m.Err)
		}
	}()
	return sr, nil
}

// Calls 返回调用次数
func (m *FakeChatModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.inputs)
}

// LastInput 返回最近一次调用的输入
func (m *FakeChatModel) LastInput() []*schema.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.inputs) == 0 {
		return nil
	}
	return m.inputs[len(m.inputs)-1]
}

func (m *FakeChatModel) record(input []*schema.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inputs = append(m.inputs, append([]*schema.Message(nil), input...))
}

// Words 生成 n 个单词组成的文本
func Words(n int) string {
	words := make([]string, n)
	for i := range words {
		words[i] = "word"
	}
	return strings.Join(words, " ")
}
