package stream

import (
	"encoding/json"
	"testing"

	"claude-relay/internal/protocol"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify_StatusLine(t *testing.T) {
	c := Classify("✻ Toggling… (23s · ⚒ 783 tokens · esc to interrupt)")

	st, ok := c.Event.(protocol.StatusUpdate)
	require.True(t, ok, "expected StatusUpdate, got %T", c.Event)
	assert.Equal(t, 783, st.Tokens)
	assert.Equal(t, "Toggling", st.Message)
	assert.Equal(t, 23, st.Elapsed)
	assert.True(t, st.CanInterrupt)
	assert.Nil(t, c.Payload)
}

func TestClassify_StatusDefaults(t *testing.T) {
	c := Classify("esc to interrupt")
	st, ok := c.Event.(protocol.StatusUpdate)
	require.True(t, ok)
	assert.Equal(t, "Working", st.Message)
	assert.Equal(t, 0, st.Tokens)
	assert.True(t, st.CanInterrupt)

	c = Classify("used 120 tokens so far")
	st, ok = c.Event.(protocol.StatusUpdate)
	require.True(t, ok)
	assert.False(t, st.CanInterrupt)
	assert.Equal(t, 0, st.Tokens)
}

func TestClassify_StatusWithANSI(t *testing.T) {
	c := Classify("\x1b[38;5;174m✶\x1b[39m \x1b[1mPondering\x1b[22m… (4s · ⚒ 12 tokens)")
	st, ok := c.Event.(protocol.StatusUpdate)
	require.True(t, ok)
	assert.Equal(t, "Pondering", st.Message)
	assert.Equal(t, 12, st.Tokens)
}

func TestClassify_RawOutput(t *testing.T) {
	c := Classify("Hello from the CLI")
	raw, ok := c.Event.(protocol.RawOutput)
	require.True(t, ok)
	assert.Equal(t, "Hello from the CLI", raw.Text)
	assert.Empty(t, c.SessionID)
}

func TestClassify_JSONWithSessionID(t *testing.T) {
	line := `{"session_id":"sess-1","message":{"role":"assistant","content":"hi"}}`
	c := Classify(line)

	resp, ok := c.Event.(protocol.StructuredResponse)
	require.True(t, ok, "expected StructuredResponse, got %T", c.Event)
	assert.JSONEq(t, line, string(resp.Data))
	assert.Equal(t, "sess-1", c.SessionID)

	msg, ok := c.Payload.(MessagePayload)
	require.True(t, ok, "expected MessagePayload, got %T", c.Payload)
	assert.Equal(t, "assistant", msg.Role)
}

func TestClassify_JSONStatus(t *testing.T) {
	tests := []struct {
		name string
		line string
		want protocol.StatusUpdate
	}{
		{
			name: "status type",
			line: `{"type":"status","message":"Reading files","tokens":42,"can_interrupt":true}`,
			want: protocol.StatusUpdate{Message: "Reading files", Tokens: 42, CanInterrupt: true},
		},
		{
			name: "progress type",
			line: `{"type":"progress","message":"Compacting"}`,
			want: protocol.StatusUpdate{Message: "Compacting"},
		},
		{
			name: "system status subtype",
			line: `{"type":"system","subtype":"status","status":"compacting","session_id":"s1"}`,
			want: protocol.StatusUpdate{Message: "compacting"},
		},
		{
			name: "token string",
			line: `{"type":"status","tokens":"17"}`,
			want: protocol.StatusUpdate{Message: "Working", Tokens: 17},
		},
		{
			name: "bad token value",
			line: `{"type":"status","tokens":"many"}`,
			want: protocol.StatusUpdate{Message: "Working"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Classify(tt.line)
			assert.Equal(t, tt.want, c.Event)
		})
	}
}

func TestClassify_JSONSystemStatusCarriesSessionID(t *testing.T) {
	c := Classify(`{"type":"system","subtype":"status","status":"compacting","session_id":"s1"}`)
	assert.Equal(t, "s1", c.SessionID)
}

func TestClassify_NonObjectJSON(t *testing.T) {
	c := Classify(`42`)
	resp, ok := c.Event.(protocol.StructuredResponse)
	require.True(t, ok)
	assert.Equal(t, json.RawMessage(`42`), resp.Data)
	_, ok = c.Payload.(Unknown)
	assert.True(t, ok)
}

func TestClassify_MalformedJSONFallsThrough(t *testing.T) {
	c := Classify(`{"type":"assistant",`)
	_, ok := c.Event.(protocol.RawOutput)
	assert.True(t, ok, "expected RawOutput, got %T", c.Event)
}

func TestClassifyPartial(t *testing.T) {
	tests := []struct {
		name     string
		buffered string
		want     protocol.Event
	}{
		{"empty", "", nil},
		{"whitespace", "   ", nil},
		{"question", "Do you want to proceed? ", protocol.InteractivePrompt{Raw: "Do you want to proceed? "}},
		{"arrow", "❯ ", protocol.InteractivePrompt{Raw: "❯ "}},
		{"gt", "> ", protocol.InteractivePrompt{Raw: "> "}},
		{"numbered option", "1. Yes", protocol.InteractivePrompt{Raw: "1. Yes"}},
		{"status", "✻ Thinking… (3s · ⚒ 10 tokens)", protocol.StatusUpdate{Message: "Thinking", Tokens: 10, Elapsed: 3}},
		{"plain text", "partial output", nil},
		{"json fragment", `{"type":"assistant","message":{"content":"what? > `, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyPartial(tt.buffered))
		})
	}
}

func TestStripANSI(t *testing.T) {
	assert.Equal(t, "plain", StripANSI("plain"))
	assert.Equal(t, "red text", StripANSI("\x1b[31mred\x1b[0m text"))
	assert.Equal(t, "title", StripANSI("\x1b]0;window\x07title"))
}
