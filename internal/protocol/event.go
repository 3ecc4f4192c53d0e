package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// Server → client event types.
const (
	TypeSessionCreated    = "session-created"
	TypeClaudeResponse    = "claude-response"
	TypeClaudeStatus      = "claude-status"
	TypeInteractivePrompt = "claude-interactive-prompt"
	TypeClaudeOutput      = "claude-output"
	TypeClaudeError       = "claude-error"
	TypeClaudeComplete    = "claude-complete"
	TypeSummaryUpdated    = "session-summary-updated"
	TypeProjectsUpdated   = "projects_updated"
)

// Event is one normalized unit of CLI output or one lifecycle transition.
// The concrete types below are the only implementations.
type Event interface {
	Type() string
	event()
}

// SessionCreated reports the session id the CLI assigned to a new conversation.
type SessionCreated struct {
	SessionID string
}

// StructuredResponse forwards a JSON payload from the CLI verbatim.
type StructuredResponse struct {
	Data json.RawMessage
}

// StatusUpdate is progress chrome: spinner lines and status payloads.
type StatusUpdate struct {
	Message      string `json:"message"`
	Tokens       int    `json:"tokens"`
	Elapsed      int    `json:"elapsed,omitempty"`
	CanInterrupt bool   `json:"can_interrupt"`
}

// InteractivePrompt is unterminated output that looks like it awaits user input.
type InteractivePrompt struct {
	Raw string
}

// RawOutput is a plain text line passed through unchanged.
type RawOutput struct {
	Text string
}

// ErrorOutput is stderr text or a process-level failure.
type ErrorOutput struct {
	Text string
}

// Completed is emitted once when the subprocess exits.
type Completed struct {
	ExitCode     int
	IsNewSession bool
}

// SummaryUpdated is emitted after a regenerated summary has been persisted.
type SummaryUpdated struct {
	ProjectName string
	SessionID   string
	Summary     string
}

// ProjectsUpdated is emitted when a session transcript changes on disk.
type ProjectsUpdated struct {
	ProjectName string
	SessionID   string
}

func (SessionCreated) Type() string     { return TypeSessionCreated }
func (StructuredResponse) Type() string { return TypeClaudeResponse }
func (StatusUpdate) Type() string       { return TypeClaudeStatus }
func (InteractivePrompt) Type() string  { return TypeInteractivePrompt }
func (RawOutput) Type() string          { return TypeClaudeOutput }
func (ErrorOutput) Type() string        { return TypeClaudeError }
func (Completed) Type() string          { return TypeClaudeComplete }
func (SummaryUpdated) Type() string     { return TypeSummaryUpdated }
func (ProjectsUpdated) Type() string    { return TypeProjectsUpdated }

func (SessionCreated) event()     {}
func (StructuredResponse) event() {}
func (StatusUpdate) event()       {}
func (InteractivePrompt) event()  {}
func (RawOutput) event()          {}
func (ErrorOutput) event()        {}
func (Completed) event()          {}
func (SummaryUpdated) event()     {}
func (ProjectsUpdated) event()    {}

// WireEvent is the JSON shape sent to browser clients.
type WireEvent struct {
	Type         string          `json:"type"`
	SessionID    string          `json:"sessionId,omitempty"`
	ProjectName  string          `json:"projectName,omitempty"`
	Data         json.RawMessage `json:"data,omitempty"`
	Error        string          `json:"error,omitempty"`
	ExitCode     *int            `json:"exitCode,omitempty"`
	IsNewSession *bool           `json:"isNewSession,omitempty"`
	Summary      string          `json:"summary,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
}

// ToWire converts ev into its wire form. key is the registry key of the
// process that produced the event and is used as the routing session id
// unless the event carries its own.
func ToWire(key string, ev Event) (*WireEvent, error) {
	w := &WireEvent{
		Type:      ev.Type(),
		SessionID: key,
		Timestamp: time.Now().UTC(),
	}

	switch e := ev.(type) {
	case SessionCreated:
		w.SessionID = e.SessionID
	case StructuredResponse:
		w.Data = e.Data
	case StatusUpdate:
		data, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("marshal status: %w", err)
		}
		w.Data = data
	case InteractivePrompt:
		data, err := json.Marshal(e.Raw)
		if err != nil {
			return nil, fmt.Errorf("marshal prompt: %w", err)
		}
		w.Data = data
	case RawOutput:
		data, err := json.Marshal(e.Text)
		if err != nil {
			return nil, fmt.Errorf("marshal output: %w", err)
		}
		w.Data = data
	case ErrorOutput:
		w.Error = e.Text
	case Completed:
		code, isNew := e.ExitCode, e.IsNewSession
		w.ExitCode = &code
		w.IsNewSession = &isNew
	case SummaryUpdated:
		w.SessionID = e.SessionID
		w.ProjectName = e.ProjectName
		w.Summary = e.Summary
	case ProjectsUpdated:
		w.SessionID = e.SessionID
		w.ProjectName = e.ProjectName
	default:
		return nil, fmt.Errorf("unknown event type %T", ev)
	}

	return w, nil
}

// Encode marshals ev into a wire frame ready to write to a WebSocket.
func Encode(key string, ev Event) ([]byte, error) {
	w, err := ToWire(key, ev)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", w.Type, err)
	}
	return data, nil
}
