package transcript

import (
	"encoding/json"
	"strings"
	"time"
)

const (
	typeSummary   = "summary"
	typeUser      = "user"
	typeAssistant = "assistant"

	roleUser = "user"
)

// line is the subset of a transcript record this package reads.
type line struct {
	Type       string          `json:"type"`
	UUID       string          `json:"uuid"`
	ParentUUID string          `json:"parentUuid"`
	SessionID  string          `json:"sessionId"`
	Cwd        string          `json:"cwd"`
	Timestamp  string          `json:"timestamp"`
	IsMeta     bool            `json:"isMeta"`
	Message    json.RawMessage `json:"message"`

	Summary  string `json:"summary"`
	LeafUUID string `json:"leafUuid"`
}

type summaryLine struct {
	Type     string `json:"type"`
	Summary  string `json:"summary"`
	LeafUUID string `json:"leafUuid"`
}

type messageBody struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// message converts a user or assistant record into a Message. Records
// without text (tool results, meta lines) are skipped.
func (l *line) message() (Message, bool) {
	if l.IsMeta || (l.Type != typeUser && l.Type != typeAssistant) || len(l.Message) == 0 {
		return Message{}, false
	}

	var body messageBody
	if err := json.Unmarshal(l.Message, &body); err != nil {
		return Message{}, false
	}
	text := strings.TrimSpace(contentText(body.Content))
	if text == "" {
		return Message{}, false
	}

	role := body.Role
	if role == "" {
		role = l.Type
	}
	ts, _ := time.Parse(time.RFC3339Nano, l.Timestamp)

	return Message{
		UUID:       l.UUID,
		ParentUUID: l.ParentUUID,
		SessionID:  l.SessionID,
		Role:       role,
		Text:       text,
		Cwd:        l.Cwd,
		Timestamp:  ts.UTC(),
	}, true
}

// contentText flattens a string or an array of content blocks.
func contentText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var blocks []contentBlock
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return ""
	}
	var parts []string
	for _, b := range blocks {
		if b.Type == "text" && b.Text != "" {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n")
}
