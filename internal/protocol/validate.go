package protocol

import (
	"encoding/json"
	"fmt"
)

// validClientTypes is the set of allowed client→server message types.
var validClientTypes = map[string]bool{
	TypeClaudeCommand: true,
	TypeClaudeInput:   true,
	TypeAbortSession:  true,
	TypeSummaryEdit:   true,
	TypeSummaryUnlock: true,
}

// ValidateClientMessage validates a raw JSON message from a client.
// Returns the parsed Message and any validation error.
func ValidateClientMessage(raw []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	if msg.Type == "" {
		return nil, fmt.Errorf("missing 'type' field")
	}

	if !validClientTypes[msg.Type] {
		return nil, fmt.Errorf("unknown message type: %s", msg.Type)
	}

	if msg.Payload == nil {
		return nil, fmt.Errorf("missing 'payload' field")
	}

	// Validate required payload fields per type.
	switch msg.Type {
	case TypeClaudeCommand:
		var p CommandPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return nil, fmt.Errorf("invalid payload for %s: %w", msg.Type, err)
		}
		if p.Options.Cwd == "" {
			return nil, fmt.Errorf("missing required field 'options.cwd' in %s payload", msg.Type)
		}
		if p.Options.Resume && p.Options.SessionID == "" {
			return nil, fmt.Errorf("'options.resume' requires 'options.sessionId' in %s payload", msg.Type)
		}

	case TypeClaudeInput:
		var p InputPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return nil, fmt.Errorf("invalid payload for %s: %w", msg.Type, err)
		}
		if p.SessionID == "" {
			return nil, fmt.Errorf("missing required field 'sessionId' in %s payload", msg.Type)
		}
		if p.Input == "" {
			return nil, fmt.Errorf("missing required field 'input' in %s payload", msg.Type)
		}

	case TypeAbortSession, TypeSummaryUnlock:
		var p SessionIDPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return nil, fmt.Errorf("invalid payload for %s: %w", msg.Type, err)
		}
		if p.SessionID == "" {
			return nil, fmt.Errorf("missing required field 'sessionId' in %s payload", msg.Type)
		}

	case TypeSummaryEdit:
		var p SummaryEditPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return nil, fmt.Errorf("invalid payload for %s: %w", msg.Type, err)
		}
		if p.ProjectName == "" {
			return nil, fmt.Errorf("missing required field 'projectName' in %s payload", msg.Type)
		}
		if p.SessionID == "" {
			return nil, fmt.Errorf("missing required field 'sessionId' in %s payload", msg.Type)
		}
		if p.Summary == "" {
			return nil, fmt.Errorf("missing required field 'summary' in %s payload", msg.Type)
		}
	}

	return &msg, nil
}
