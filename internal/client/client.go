// Package client 是聊天服务的 HTTP 客户端，供命令行使用
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/ashwinyue/next-chat/internal/service/event"
)

// ErrIncompleteStream 流在终止事件之前断开
var ErrIncompleteStream = errors.New("stream ended without a terminal event")

// APIError 非 2xx 响应
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// StreamError 服务端通过 {error} 事件报告的失败
type StreamError struct {
	Reason  string
	Partial string // 失败前已收到的分片
}

func (e *StreamError) Error() string {
	return "stream failed: " + e.Reason
}

// Client 聊天服务客户端
type Client struct {
	baseURL string
	http    *http.Client
}

// New 创建客户端
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// CreateSession 创建会话，返回会话 ID
func (c *Client) CreateSession(ctx context.Context) (string, error) {
	resp, err := c.do(ctx, http.MethodPost, "/api/chats", nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var body struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	return body.SessionID, nil
}

// Send 发送消息，每收到一个分片调用一次 onChunk，返回完整回复
func (c *Client) Send(ctx context.Context, sessionID, message string, onChunk func(string)) (string, error) {
	payload, err := json.Marshal(map[string]string{"message": message})
	if err != nil {
		return "", err
	}

	resp, err := c.do(ctx, http.MethodPost, "/api/chats/"+url.PathEscape(sessionID)+"/message", payload)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	text, terminal, err := event.Collect(resp.Body, onChunk)
	if err != nil {
		return text, fmt.Errorf("failed to read stream: %w", err)
	}
	switch {
	case terminal == nil:
		return text, ErrIncompleteStream
	case terminal.Type == event.EventError:
		return text, &StreamError{Reason: terminal.Text, Partial: text}
	default:
		return terminal.Text, nil
	}
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return nil, &APIError{Status: resp.StatusCode, Message: e.Error}
	}
	return resp, nil
}
