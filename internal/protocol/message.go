package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// Message is the envelope for client → server WebSocket messages.
type Message struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// Client → Server message types.
const (
	TypeClaudeCommand = "claude-command"
	TypeClaudeInput   = "claude-input"
	TypeAbortSession  = "abort-session"
	TypeSummaryEdit   = "summary-edit"
	TypeSummaryUnlock = "summary-unlock"
)

// Server → Client reply types that are not CLI events.
const (
	TypeSessionAborted = "session-aborted"
	TypeError          = "error"
)

// Error codes.
const (
	ErrSessionNotFound = "SESSION_NOT_FOUND"
	ErrInvalidMessage  = "INVALID_MESSAGE"
	ErrSpawnFailed     = "SPAWN_FAILED"
	ErrSummaryFailed   = "SUMMARY_FAILED"
)

// Client → Server payloads.

type ToolsSettings struct {
	AllowedTools    []string `json:"allowedTools"`
	DisallowedTools []string `json:"disallowedTools"`
	SkipPermissions bool     `json:"skipPermissions"`
}

type CommandOptions struct {
	SessionID     string        `json:"sessionId"`
	Resume        bool          `json:"resume"`
	Cwd           string        `json:"cwd"`
	ProjectName   string        `json:"projectName"`
	ToolsSettings ToolsSettings `json:"toolsSettings"`
}

type CommandPayload struct {
	Command string         `json:"command"`
	Options CommandOptions `json:"options"`
}

type InputPayload struct {
	SessionID string `json:"sessionId"`
	Input     string `json:"input"`
}

type SessionIDPayload struct {
	SessionID string `json:"sessionId"`
}

type SummaryEditPayload struct {
	ProjectName string `json:"projectName"`
	SessionID   string `json:"sessionId"`
	Summary     string `json:"summary"`
}

// Server → Client replies.

type ErrorReply struct {
	Type      string    `json:"type"`
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

type AbortReply struct {
	Type      string    `json:"type"`
	SessionID string    `json:"sessionId"`
	Success   bool      `json:"success"`
	Timestamp time.Time `json:"timestamp"`
}

// NewErrorMessage encodes an error reply ready to send to the client.
func NewErrorMessage(code, message string) ([]byte, error) {
	data, err := json.Marshal(ErrorReply{
		Type:      TypeError,
		Code:      code,
		Message:   message,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal error reply: %w", err)
	}
	return data, nil
}

// NewAbortMessage encodes the result of an abort request.
func NewAbortMessage(sessionID string, success bool) ([]byte, error) {
	data, err := json.Marshal(AbortReply{
		Type:      TypeSessionAborted,
		SessionID: sessionID,
		Success:   success,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal abort reply: %w", err)
	}
	return data, nil
}
