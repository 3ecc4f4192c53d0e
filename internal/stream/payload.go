package stream

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
)

// ErrNotJSON is returned by Decode for lines that are not a JSON value.
var ErrNotJSON = errors.New("line is not JSON")

// Payload is one JSON line emitted by the CLI in stream-json mode. The
// concrete type depends on the line's "type" and "subtype" fields; lines that
// match no known shape decode to Unknown. Every variant keeps the original
// bytes so they can be forwarded verbatim.
type Payload interface {
	Raw() json.RawMessage
	SessionID() string
}

type base struct {
	raw       json.RawMessage
	sessionID string
}

func (b base) Raw() json.RawMessage { return b.raw }
func (b base) SessionID() string    { return b.sessionID }

// SystemInit is the first event of a stream-json run.
type SystemInit struct {
	base
	Model string
	Cwd   string
	Tools []string
}

// StatusPayload is a structured progress event.
type StatusPayload struct {
	base
	Message      string
	Tokens       int
	CanInterrupt bool
}

// MessagePayload carries a conversation message (assistant or user turn).
type MessagePayload struct {
	base
	Kind    string
	Role    string
	Content json.RawMessage
}

// ResultPayload is the final event of a turn.
type ResultPayload struct {
	base
	Subtype string
	IsError bool
	Result  string
	CostUSD float64
}

// Unknown is any other JSON value.
type Unknown struct {
	base
}

// envelope is the union of fields the known payload shapes use. Fields whose
// JSON type differs between shapes are kept raw.
type envelope struct {
	Type         string          `json:"type"`
	Subtype      string          `json:"subtype"`
	SessionID    string          `json:"session_id"`
	Message      json.RawMessage `json:"message"`
	Status       json.RawMessage `json:"status"`
	Tokens       json.RawMessage `json:"tokens"`
	CanInterrupt bool            `json:"can_interrupt"`
	Model        string          `json:"model"`
	Cwd          string          `json:"cwd"`
	Tools        []string        `json:"tools"`
	IsError      bool            `json:"is_error"`
	Result       string          `json:"result"`
	Cost         float64         `json:"total_cost_usd"`
}

type messageBody struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// Decode parses a single line. It returns ErrNotJSON when the line is not a
// valid JSON value; any valid JSON value decodes to some Payload.
func Decode(line []byte) (Payload, error) {
	trimmed := bytes.TrimSpace(line)
	if len(trimmed) == 0 || !json.Valid(trimmed) {
		return nil, ErrNotJSON
	}

	raw := make(json.RawMessage, len(trimmed))
	copy(raw, trimmed)

	var env envelope
	if trimmed[0] != '{' || json.Unmarshal(trimmed, &env) != nil {
		return Unknown{base{raw: raw}}, nil
	}

	b := base{raw: raw, sessionID: env.SessionID}

	switch {
	case env.Type == "system" && env.Subtype == "init":
		return SystemInit{base: b, Model: env.Model, Cwd: env.Cwd, Tools: env.Tools}, nil

	case env.Type == "status" || env.Type == "progress" ||
		(env.Type == "system" && env.Subtype == "status"):
		msg := stringField(env.Message)
		if msg == "" {
			msg = stringField(env.Status)
		}
		return StatusPayload{
			base:         b,
			Message:      msg,
			Tokens:       intField(env.Tokens),
			CanInterrupt: env.CanInterrupt,
		}, nil

	case env.Type == "result":
		return ResultPayload{
			base:    b,
			Subtype: env.Subtype,
			IsError: env.IsError,
			Result:  env.Result,
			CostUSD: env.Cost,
		}, nil
	}

	if m := bytes.TrimSpace(env.Message); len(m) > 0 && m[0] == '{' {
		var body messageBody
		if json.Unmarshal(m, &body) == nil {
			return MessagePayload{base: b, Kind: env.Type, Role: body.Role, Content: body.Content}, nil
		}
	}

	return Unknown{b}, nil
}

// stringField returns raw as a string if it holds a JSON string.
func stringField(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return s
}

// intField reads a non-negative integer from a JSON number or numeric string.
// Anything else yields 0.
func intField(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}
	var f float64
	if json.Unmarshal(raw, &f) == nil {
		if f < 0 {
			return 0
		}
		return int(f)
	}
	n, err := strconv.Atoi(strings.TrimSpace(stringField(raw)))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
