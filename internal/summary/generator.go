package summary

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"unicode/utf8"

	"claude-relay/internal/transcript"
)

const (
	maxSummaryRunes   = 80
	maxPromptMsgRunes = 500
)

// FirstPrompt titles a conversation with its first user message.
type FirstPrompt struct{}

// Generate implements Generator.
func (FirstPrompt) Generate(_ context.Context, msgs []transcript.Message) (string, error) {
	for _, m := range msgs {
		if m.Role == "user" {
			if s := clean(m.Text, maxSummaryRunes); s != "" {
				return s, nil
			}
		}
	}
	return transcript.DefaultSummary, nil
}

// CLI asks the Claude CLI for a title in print mode.
type CLI struct {
	Binary string
	Model  string
	Env    []string
}

type cliResult struct {
	Type    string `json:"type"`
	IsError bool   `json:"is_error"`
	Result  string `json:"result"`
}

// Generate implements Generator.
func (c CLI) Generate(ctx context.Context, msgs []transcript.Message) (string, error) {
	binary := c.Binary
	if binary == "" {
		binary = "claude"
	}
	args := []string{"--print", buildPrompt(msgs), "--output-format", "json"}
	if c.Model != "" {
		args = append(args, "--model", c.Model)
	}

	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Env = append(cmd.Environ(), c.Env...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("run %s: %w: %s", binary, err, strings.TrimSpace(stderr.String()))
	}

	var res cliResult
	if err := json.Unmarshal(bytes.TrimSpace(out), &res); err != nil {
		return "", fmt.Errorf("decode cli result: %w", err)
	}
	if res.IsError {
		return "", fmt.Errorf("cli reported error: %s", res.Result)
	}
	return clean(strings.Trim(res.Result, "\"'` "), maxSummaryRunes), nil
}

func buildPrompt(msgs []transcript.Message) string {
	var b strings.Builder
	b.WriteString("Write a title of at most 8 words for the conversation below. ")
	b.WriteString("Reply with the title only, no quotes or punctuation at the end.\n\n")
	for _, m := range msgs {
		role := "User"
		if m.Role == "assistant" {
			role = "Assistant"
		}
		fmt.Fprintf(&b, "%s: %s\n", role, clean(m.Text, maxPromptMsgRunes))
	}
	return b.String()
}

// clean collapses whitespace and truncates to max runes.
func clean(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:max-1])) + "…"
}
