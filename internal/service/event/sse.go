package event

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

const dataPrefix = "data: "

// Encoder 将事件写为 SSE 帧，每帧写完立即 flush
type Encoder struct {
	w       io.Writer
	flusher http.Flusher
}

// NewEncoder 创建编码器；w 实现 http.Flusher 时自动 flush
func NewEncoder(w io.Writer) *Encoder {
	f, _ := w.(http.Flusher)
	return &Encoder{w: w, flusher: f}
}

// Encode 写出一个事件
func (e *Encoder) Encode(evt Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(e.w, "%s%s\n\n", dataPrefix, data); err != nil {
		return err
	}
	if e.flusher != nil {
		e.flusher.Flush()
	}
	return nil
}

// Decoder 解析 SSE 流
// 不以 "data: " 开头的行被忽略，无法解析的 JSON 被跳过
type Decoder struct {
	scanner *bufio.Scanner
}

// NewDecoder 创建解码器
func NewDecoder(r io.Reader) *Decoder {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	return &Decoder{scanner: s}
}

// Next 返回下一个事件，流结束时返回 io.EOF
func (d *Decoder) Next() (Event, error) {
	for d.scanner.Scan() {
		line := d.scanner.Bytes()
		if !bytes.HasPrefix(line, []byte(dataPrefix)) {
			continue
		}
		var evt Event
		if err := json.Unmarshal(line[len(dataPrefix):], &evt); err != nil {
			continue
		}
		return evt, nil
	}
	if err := d.scanner.Err(); err != nil {
		return Event{}, err
	}
	return Event{}, io.EOF
}

// Collect 读取至终止事件或流结束，返回分片拼接结果与终止事件
// 流在终止事件之前结束时 terminal 为 nil
func Collect(r io.Reader, onChunk func(string)) (text string, terminal *Event, err error) {
	d := NewDecoder(r)
	var buf bytes.Buffer
	for {
		evt, err := d.Next()
		if errors.Is(err, io.EOF) {
			return buf.String(), nil, nil
		}
		if err != nil {
			return buf.String(), nil, err
		}
		if evt.Terminal() {
			return buf.String(), &evt, nil
		}
		buf.WriteString(evt.Text)
		if onChunk != nil {
			onChunk(evt.Text)
		}
	}
}
