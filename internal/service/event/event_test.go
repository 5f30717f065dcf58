package event

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ========== Event 编码测试 ==========

func TestEvent_MarshalJSON(t *testing.T) {
	tests := []struct {
		name     string
		event    Event
		expected string
	}{
		{name: "chunk", event: Chunk("Hel"), expected: `{"chunk":"Hel"}`},
		{name: "empty chunk", event: Chunk(""), expected: `{"chunk":""}`},
		{name: "done", event: Done("Hello"), expected: `{"done":true,"message":"Hello"}`},
		{name: "error", event: Failed("boom"), expected: `{"error":"boom"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.event)
			require.NoError(t, err)
			assert.JSONEq(t, tt.expected, string(data))
		})
	}
}

func TestEvent_MarshalUnknownType(t *testing.T) {
	_, err := json.Marshal(Event{Type: "bogus"})
	assert.Error(t, err)
}

func TestEvent_Terminal(t *testing.T) {
	assert.False(t, Chunk("x").Terminal())
	assert.True(t, Done("x").Terminal())
	assert.True(t, Failed("x").Terminal())
}

// ========== Encoder 测试 ==========

func TestEncoder_FramesAndFlushes(t *testing.T) {
	rec := httptest.NewRecorder()
	enc := NewEncoder(rec)

	require.NoError(t, enc.Encode(Chunk("a")))
	require.NoError(t, enc.Encode(Done("a")))

	assert.Equal(t, "data: {\"chunk\":\"a\"}\n\ndata: {\"done\":true,\"message\":\"a\"}\n\n", rec.Body.String())
	assert.True(t, rec.Flushed)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }

func TestEncoder_WriteError(t *testing.T) {
	err := NewEncoder(failingWriter{}).Encode(Chunk("x"))
	assert.EqualError(t, err, "broken pipe")
}

// ========== Decoder 测试 ==========

func TestDecoder_SkipsNoiseAndMalformed(t *testing.T) {
	stream := strings.Join([]string{
		": keepalive",
		"event: message",
		`data: {"chunk":"Hel"}`,
		"",
		`data: {not json`,
		"",
		`data: {"unexpected":1}`,
		"",
		`data: {"chunk":"lo"}`,
		"",
		`data: {"done":true,"message":"Hello"}`,
		"",
	}, "\n")

	d := NewDecoder(strings.NewReader(stream))

	var got []Event
	for {
		evt, err := d.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		got = append(got, evt)
	}

	assert.Equal(t, []Event{Chunk("Hel"), Chunk("lo"), Done("Hello")}, got)
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	chunks := []string{"line one\n", "with \"quotes\"", " and unicode ✓"}
	for _, c := range chunks {
		require.NoError(t, enc.Encode(Chunk(c)))
	}
	require.NoError(t, enc.Encode(Done(strings.Join(chunks, ""))))

	var seen []string
	text, terminal, err := Collect(&buf, func(s string) { seen = append(seen, s) })
	require.NoError(t, err)
	require.NotNil(t, terminal)

	assert.Equal(t, chunks, seen)
	assert.Equal(t, EventDone, terminal.Type)
	assert.Equal(t, text, terminal.Text)
}

func TestCollect_ErrorTerminal(t *testing.T) {
	stream := "data: {\"chunk\":\"par\"}\n\ndata: {\"error\":\"upstream failed\"}\n\n"

	text, terminal, err := Collect(strings.NewReader(stream), nil)
	require.NoError(t, err)
	require.NotNil(t, terminal)
	assert.Equal(t, "par", text)
	assert.Equal(t, Failed("upstream failed"), *terminal)
}

func TestCollect_NoTerminal(t *testing.T) {
	text, terminal, err := Collect(strings.NewReader("data: {\"chunk\":\"x\"}\n\n"), nil)
	require.NoError(t, err)
	assert.Nil(t, terminal)
	assert.Equal(t, "x", text)
}
