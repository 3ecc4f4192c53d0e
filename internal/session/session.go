package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// State represents the lifecycle state of a supervised process.
type State string

const (
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateExited   State = "exited"
)

const placeholderPrefix = "new-session-"

var (
	// ErrNotFound is returned when no live process is registered under a key.
	ErrNotFound = errors.New("session not found")

	// ErrStdinClosed is returned when writing to a one-shot (print mode) process.
	ErrStdinClosed = errors.New("stdin closed")

	// ErrAborted is returned by Start when the process was aborted before the
	// binary was launched.
	ErrAborted = errors.New("aborted before start")
)

// ExitError reports a non-zero exit of the CLI.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("claude exited with code %d", e.Code)
}

// SpawnOptions configures one CLI invocation.
type SpawnOptions struct {
	// SessionID resumes an existing conversation when set.
	SessionID string
	Resume    bool
	Cwd       string

	// ProjectName is the transcript directory name. Derived from Cwd when empty.
	ProjectName string

	AllowedTools    []string
	DisallowedTools []string
	SkipPermissions bool
}

// Info is a JSON-friendly snapshot of a live process.
type Info struct {
	Key         string    `json:"key"`
	SessionID   string    `json:"sessionId,omitempty"`
	ProjectName string    `json:"projectName"`
	Cwd         string    `json:"cwd"`
	PID         int       `json:"pid"`
	State       State     `json:"state"`
	Interactive bool      `json:"interactive"`
	StartedAt   time.Time `json:"startedAt"`
}

// NewPlaceholderKey returns a unique registry key for a conversation whose
// real session id is not known yet.
func NewPlaceholderKey() string {
	return placeholderPrefix + uuid.NewString()
}
