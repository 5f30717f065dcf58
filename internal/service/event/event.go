// Package event 定义流式回复的事件类型及其 SSE 编解码
//
// 中继逻辑只产生 Event，不关心传输；Encoder 负责把事件写成
// `data: <json>\n\n` 帧，Decoder 是对应的客户端解析器。
package event

import (
	"encoding/json"
	"errors"
)

// EventType 事件类型
type EventType string

const (
	// EventChunk 增量分片
	EventChunk EventType = "chunk"
	// EventDone 成功结束，携带完整回复
	EventDone EventType = "done"
	// EventError 失败结束
	EventError EventType = "error"
)

// Event 中继产生的单个事件
type Event struct {
	Type EventType
	Text string
}

// Chunk 构造分片事件
func Chunk(text string) Event { return Event{Type: EventChunk, Text: text} }

// Done 构造完成事件
func Done(message string) Event { return Event{Type: EventDone, Text: message} }

// Failed 构造失败事件
func Failed(reason string) Event { return Event{Type: EventError, Text: reason} }

// Terminal 是否为终止事件
func (e Event) Terminal() bool {
	return e.Type == EventDone || e.Type == EventError
}

// Emitter 事件接收方，返回错误表示下游已不可写（如客户端断开）
type Emitter func(Event) error

// payload 线上 JSON 结构，三种形态：{chunk}、{done,message}、{error}
type payload struct {
	Chunk   *string `json:"chunk,omitempty"`
	Done    bool    `json:"done,omitempty"`
	Message *string `json:"message,omitempty"`
	Error   *string `json:"error,omitempty"`
}

var errUnknownPayload = errors.New("unrecognized event payload")

// MarshalJSON 输出线上格式
func (e Event) MarshalJSON() ([]byte, error) {
	text := e.Text
	var p payload
	switch e.Type {
	case EventChunk:
		p.Chunk = &text
	case EventDone:
		p.Done = true
		p.Message = &text
	case EventError:
		p.Error = &text
	default:
		return nil, errUnknownPayload
	}
	return json.Marshal(p)
}

// UnmarshalJSON 解析线上格式
func (e *Event) UnmarshalJSON(data []byte) error {
	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	switch {
	case p.Error != nil:
		*e = Failed(*p.Error)
	case p.Done:
		msg := ""
		if p.Message != nil {
			msg = *p.Message
		}
		*e = Done(msg)
	case p.Chunk != nil:
		*e = Chunk(*p.Chunk)
	default:
		return errUnknownPayload
	}
	return nil
}
