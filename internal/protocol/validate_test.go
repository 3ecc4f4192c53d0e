package protocol

import (
	"encoding/json"
	"testing"
	"time"
)

func clientMessage(t *testing.T, msgType string, payload interface{}) []byte {
	t.Helper()
	msg := map[string]interface{}{
		"type":      msgType,
		"payload":   payload,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

func TestValidateClientMessage_ValidCommand(t *testing.T) {
	data := clientMessage(t, TypeClaudeCommand, map[string]interface{}{
		"command": "hello",
		"options": map[string]interface{}{
			"cwd": "/tmp/project",
			"toolsSettings": map[string]interface{}{
				"allowedTools":    []string{"Read"},
				"skipPermissions": false,
			},
		},
	})

	result, err := ValidateClientMessage(data)
	if err != nil {
		t.Fatalf("expected valid message, got error: %v", err)
	}
	if result.Type != TypeClaudeCommand {
		t.Errorf("expected type %s, got %s", TypeClaudeCommand, result.Type)
	}

	var p CommandPayload
	if err := json.Unmarshal(result.Payload, &p); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if len(p.Options.ToolsSettings.AllowedTools) != 1 || p.Options.ToolsSettings.AllowedTools[0] != "Read" {
		t.Errorf("unexpected allowed tools: %v", p.Options.ToolsSettings.AllowedTools)
	}
}

func TestValidateClientMessage_InteractiveCommandWithoutText(t *testing.T) {
	data := clientMessage(t, TypeClaudeCommand, map[string]interface{}{
		"options": map[string]interface{}{"cwd": "/tmp/project"},
	})
	if _, err := ValidateClientMessage(data); err != nil {
		t.Fatalf("expected valid message, got error: %v", err)
	}
}

func TestValidateClientMessage_CommandMissingCwd(t *testing.T) {
	data := clientMessage(t, TypeClaudeCommand, map[string]interface{}{
		"command": "hello",
		"options": map[string]interface{}{},
	})
	if _, err := ValidateClientMessage(data); err == nil {
		t.Fatal("expected error for missing cwd")
	}
}

func TestValidateClientMessage_ResumeWithoutSessionID(t *testing.T) {
	data := clientMessage(t, TypeClaudeCommand, map[string]interface{}{
		"command": "hello",
		"options": map[string]interface{}{"cwd": "/tmp", "resume": true},
	})
	if _, err := ValidateClientMessage(data); err == nil {
		t.Fatal("expected error for resume without sessionId")
	}
}

func TestValidateClientMessage_InvalidJSON(t *testing.T) {
	_, err := ValidateClientMessage([]byte("not json"))
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestValidateClientMessage_MissingType(t *testing.T) {
	data, _ := json.Marshal(map[string]interface{}{"payload": map[string]interface{}{}})
	if _, err := ValidateClientMessage(data); err == nil {
		t.Fatal("expected error for missing type")
	}
}

func TestValidateClientMessage_UnknownType(t *testing.T) {
	data := clientMessage(t, "unknown.action", map[string]interface{}{})
	if _, err := ValidateClientMessage(data); err == nil {
		t.Fatal("expected error for unknown type")
	}
}

func TestValidateClientMessage_MissingPayload(t *testing.T) {
	data := []byte(`{"type":"abort-session","timestamp":"2024-01-01T00:00:00.000Z"}`)
	if _, err := ValidateClientMessage(data); err == nil {
		t.Fatal("expected error for missing payload")
	}
}

func TestValidateClientMessage_Input(t *testing.T) {
	valid := clientMessage(t, TypeClaudeInput, map[string]interface{}{"sessionId": "abc", "input": "y"})
	if _, err := ValidateClientMessage(valid); err != nil {
		t.Fatalf("expected valid message, got error: %v", err)
	}

	missing := clientMessage(t, TypeClaudeInput, map[string]interface{}{"sessionId": "abc"})
	if _, err := ValidateClientMessage(missing); err == nil {
		t.Fatal("expected error for missing input")
	}
}

func TestValidateClientMessage_AbortAndUnlock(t *testing.T) {
	for _, typ := range []string{TypeAbortSession, TypeSummaryUnlock} {
		valid := clientMessage(t, typ, map[string]interface{}{"sessionId": "abc"})
		if _, err := ValidateClientMessage(valid); err != nil {
			t.Errorf("%s: expected valid message, got error: %v", typ, err)
		}

		invalid := clientMessage(t, typ, map[string]interface{}{})
		if _, err := ValidateClientMessage(invalid); err == nil {
			t.Errorf("%s: expected error for missing sessionId", typ)
		}
	}
}

func TestValidateClientMessage_SummaryEdit(t *testing.T) {
	valid := clientMessage(t, TypeSummaryEdit, map[string]interface{}{
		"projectName": "-tmp-project",
		"sessionId":   "abc",
		"summary":     "Fix login bug",
	})
	if _, err := ValidateClientMessage(valid); err != nil {
		t.Fatalf("expected valid message, got error: %v", err)
	}

	noSummary := clientMessage(t, TypeSummaryEdit, map[string]interface{}{
		"projectName": "-tmp-project",
		"sessionId":   "abc",
	})
	if _, err := ValidateClientMessage(noSummary); err == nil {
		t.Fatal("expected error for missing summary")
	}
}

func TestNewErrorMessage(t *testing.T) {
	data, err := NewErrorMessage(ErrSessionNotFound, "session xyz not found")
	if err != nil {
		t.Fatalf("NewErrorMessage failed: %v", err)
	}

	var p ErrorReply
	if err := json.Unmarshal(data, &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if p.Type != TypeError {
		t.Errorf("expected type %s, got %s", TypeError, p.Type)
	}
	if p.Code != ErrSessionNotFound {
		t.Errorf("expected code %s, got %s", ErrSessionNotFound, p.Code)
	}
}

func TestNewAbortMessage(t *testing.T) {
	data, err := NewAbortMessage("abc", true)
	if err != nil {
		t.Fatalf("NewAbortMessage failed: %v", err)
	}

	var p AbortReply
	json.Unmarshal(data, &p)
	if p.Type != TypeSessionAborted || p.SessionID != "abc" || !p.Success {
		t.Errorf("unexpected reply: %+v", p)
	}
}
