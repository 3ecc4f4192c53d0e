// Package stream turns raw Claude CLI output into normalized events.
//
// The CLI interleaves stream-json events with terminal chrome (spinners,
// y/n prompts) without consistent framing. LineBuffer recovers line
// boundaries; Classify handles complete lines and ClassifyPartial looks at the
// still-unterminated tail so prompts waiting for input surface before a
// newline arrives.
package stream

import (
	"regexp"
	"strconv"
	"strings"

	"claude-relay/internal/protocol"
)

// progressGlyphs are the spinner frames the CLI draws in front of status text.
const progressGlyphs = "·✢✳✶✻✽"

const defaultStatusLabel = "Working"

var (
	tokenPattern   = regexp.MustCompile(`⚒\s*(\d+)\s*tokens`)
	labelPattern   = regexp.MustCompile(`[` + progressGlyphs + `]\s*(\p{L}+)`)
	elapsedPattern = regexp.MustCompile(`\((\d+)s\b`)
	optionPattern  = regexp.MustCompile(`(?m)^\s*(?:❯\s*)?\d+\.\s+\S`)
	ansiPattern    = regexp.MustCompile(`\x1b\[[0-?]*[ -/]*[@-~]|\x1b\][^\x07\x1b]*(?:\x07|\x1b\\)`)
)

// Classified is the result of classifying one complete line.
type Classified struct {
	Event protocol.Event

	// Payload is the decoded JSON payload, nil for text lines.
	Payload Payload

	// SessionID is the session_id reported by a JSON payload, if any.
	SessionID string
}

// Classify classifies one complete line. JSON is tried first; text falls
// through to the status heuristic and finally to raw output.
func Classify(line string) Classified {
	if p, err := Decode([]byte(line)); err == nil {
		return Classified{Event: eventFor(p), Payload: p, SessionID: p.SessionID()}
	}

	if text := StripANSI(line); IsStatusLine(text) {
		return Classified{Event: ParseStatus(text)}
	}
	return Classified{Event: protocol.RawOutput{Text: line}}
}

// ClassifyPartial inspects the unterminated tail of the output. It returns
// nil when there is nothing to report yet.
func ClassifyPartial(buffered string) protocol.Event {
	text := strings.TrimSpace(StripANSI(buffered))
	if text == "" {
		return nil
	}
	// Start of a JSON frame that has not been terminated yet.
	if text[0] == '{' || text[0] == '[' {
		return nil
	}

	if isPrompt(text) {
		return protocol.InteractivePrompt{Raw: buffered}
	}
	if IsStatusLine(text) {
		return ParseStatus(text)
	}
	return nil
}

// IsStatusLine reports whether text looks like spinner/status chrome.
func IsStatusLine(text string) bool {
	return strings.ContainsAny(text, progressGlyphs) ||
		strings.Contains(text, "tokens") ||
		strings.Contains(text, "esc to interrupt")
}

// ParseStatus extracts the status fields from a status line.
func ParseStatus(text string) protocol.StatusUpdate {
	st := protocol.StatusUpdate{
		Message:      defaultStatusLabel,
		CanInterrupt: strings.Contains(text, "esc to interrupt"),
	}
	if m := labelPattern.FindStringSubmatch(text); m != nil {
		st.Message = m[1]
	}
	if m := tokenPattern.FindStringSubmatch(text); m != nil {
		st.Tokens = atoi(m[1])
	}
	if m := elapsedPattern.FindStringSubmatch(text); m != nil {
		st.Elapsed = atoi(m[1])
	}
	return st
}

// StripANSI removes CSI and OSC escape sequences.
func StripANSI(s string) string {
	if !strings.Contains(s, "\x1b") {
		return s
	}
	return ansiPattern.ReplaceAllString(s, "")
}

func isPrompt(text string) bool {
	return strings.ContainsAny(text, "?❯>") || optionPattern.MatchString(text)
}

func eventFor(p Payload) protocol.Event {
	if st, ok := p.(StatusPayload); ok {
		msg := st.Message
		if msg == "" {
			msg = defaultStatusLabel
		}
		return protocol.StatusUpdate{
			Message:      msg,
			Tokens:       st.Tokens,
			CanInterrupt: st.CanInterrupt,
		}
	}
	return protocol.StructuredResponse{Data: p.Raw()}
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
