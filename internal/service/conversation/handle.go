// Package conversation 管理与模型之间的会话句柄
//
// 句柄只存在于进程内存中，可随时由数据库里的消息日志重放得到，
// 因此缓存丢失（重启、删除）不影响正确性。
package conversation

import (
	"context"
	"fmt"
	"sync"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	chatmodel "github.com/ashwinyue/next-chat/internal/model"
)

// Handle 模型会话句柄，持有多轮上下文
type Handle struct {
	mu       sync.Mutex
	model    model.BaseChatModel
	handlers []callbacks.Handler
	system   *schema.Message
	history  []*schema.Message
}

// History 返回历史消息副本（不含系统提示词）
func (h *Handle) History() []*schema.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*schema.Message(nil), h.history...)
}

// Stream 以流式方式发送一轮用户消息
// 句柄历史只在 Commit 时推进，失败的轮次不会留在上下文中
func (h *Handle) Stream(ctx context.Context, text string) (*schema.StreamReader[*schema.Message], error) {
	h.mu.Lock()
	input := make([]*schema.Message, 0, len(h.history)+2)
	if h.system != nil {
		input = append(input, h.system)
	}
	input = append(input, h.history...)
	h.mu.Unlock()

	input = append(input, schema.UserMessage(text))

	if len(h.handlers) > 0 {
		ctx = callbacks.InitCallbacks(ctx, &callbacks.RunInfo{
			Name:      "conversation",
			Component: components.ComponentOfChatModel,
		}, h.handlers...)
	}
	sr, err := h.model.Stream(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to open model stream: %w", err)
	}
	return sr, nil
}

// Commit 记录一轮完成的对话
func (h *Handle) Commit(userText, reply string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.history = append(h.history,
		schema.UserMessage(userText),
		schema.AssistantMessage(reply, nil),
	)
}

// ReplayHistory 将持久化的消息日志映射为模型历史
// User→user，AI→assistant（Gemini 称之为 model），保持原有顺序
func ReplayHistory(messages []chatmodel.ChatMessage) []*schema.Message {
	out := make([]*schema.Message, 0, len(messages))
	for _, msg := range messages {
		out = append(out, &schema.Message{
			Role:    roleToSchema(msg.Role),
			Content: msg.Content,
		})
	}
	return out
}

// roleToSchema 将存储角色转换为 schema.RoleType
func roleToSchema(role chatmodel.Role) schema.RoleType {
	switch role {
	case chatmodel.RoleAI:
		return schema.Assistant
	default:
		return schema.User
	}
}

// Factory 句柄工厂
type Factory struct {
	model        model.BaseChatModel
	systemPrompt string
	handlers     []callbacks.Handler
}

// NewFactory 创建句柄工厂，handlers 会挂到每次模型调用上
func NewFactory(cm model.BaseChatModel, systemPrompt string, handlers ...callbacks.Handler) *Factory {
	return &Factory{model: cm, systemPrompt: systemPrompt, handlers: handlers}
}

// New 以给定历史创建新句柄
func (f *Factory) New(seed []*schema.Message) *Handle {
	h := &Handle{
		model:    f.model,
		handlers: f.handlers,
		history:  append([]*schema.Message(nil), seed...),
	}
	if f.systemPrompt != "" {
		h.system = schema.SystemMessage(f.systemPrompt)
	}
	return h
}
