// Package transcript reads and annotates the JSONL session transcripts the
// Claude CLI keeps under ~/.claude/projects/<encoded-cwd>/<session-id>.jsonl.
//
// The format has no stability contract, so decoding is defensive: unknown
// fields are ignored and malformed lines are skipped.
package transcript

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultSummary is shown for sessions that have no summary yet.
const DefaultSummary = "New Session"

const fileExt = ".jsonl"

// ErrSessionNotFound is returned when a session transcript does not exist.
var ErrSessionNotFound = errors.New("session transcript not found")

// Message is one user or assistant turn.
type Message struct {
	UUID       string    `json:"uuid"`
	ParentUUID string    `json:"parentUuid,omitempty"`
	SessionID  string    `json:"sessionId"`
	Role       string    `json:"role"`
	Text       string    `json:"text"`
	Cwd        string    `json:"cwd,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Session describes one transcript file.
type Session struct {
	ID           string    `json:"id"`
	Summary      string    `json:"summary"`
	FirstPrompt  string    `json:"firstPrompt,omitempty"`
	MessageCount int       `json:"messageCount"`
	Cwd          string    `json:"cwd,omitempty"`
	LastActivity time.Time `json:"lastActivity"`
}

// SessionPage is one page of sessions, newest first.
type SessionPage struct {
	Sessions []Session `json:"sessions"`
	Total    int       `json:"total"`
	HasMore  bool      `json:"hasMore"`
}

// ProjectName encodes a working directory the way the CLI names its project
// directories: path separators and dots become dashes.
func ProjectName(cwd string) string {
	return strings.NewReplacer("/", "-", ".", "-").Replace(filepath.ToSlash(cwd))
}

// DefaultRoot returns ~/.claude/projects.
func DefaultRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".claude", "projects")
}

// Repository reads transcripts below a projects root directory.
type Repository struct {
	root string
}

// NewRepository creates a repository rooted at root, or DefaultRoot when empty.
func NewRepository(root string) *Repository {
	if root == "" {
		root = DefaultRoot()
	}
	return &Repository{root: root}
}

// Root returns the projects root directory.
func (r *Repository) Root() string { return r.root }

// ProjectDir returns the directory holding a project's transcripts.
func (r *Repository) ProjectDir(project string) string {
	return filepath.Join(r.root, filepath.Base(project))
}

// SessionPath returns the transcript path of a session.
func (r *Repository) SessionPath(project, sessionID string) string {
	return filepath.Join(r.ProjectDir(project), filepath.Base(sessionID)+fileExt)
}

// ListSessions returns a page of a project's sessions ordered by last
// activity. A limit of 0 returns every session from offset on. A project
// without a directory has no sessions.
func (r *Repository) ListSessions(ctx context.Context, project string, limit, offset int) (SessionPage, error) {
	entries, err := os.ReadDir(r.ProjectDir(project))
	if errors.Is(err, os.ErrNotExist) {
		return SessionPage{Sessions: []Session{}}, nil
	}
	if err != nil {
		return SessionPage{}, fmt.Errorf("read project %s: %w", project, err)
	}

	var sessions []Session
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return SessionPage{}, err
		}
		if e.IsDir() || !strings.HasSuffix(e.Name(), fileExt) {
			continue
		}
		id := strings.TrimSuffix(e.Name(), fileExt)
		s, err := r.readSession(project, id)
		if errors.Is(err, ErrSessionNotFound) {
			// Removed since ReadDir.
			continue
		}
		if err != nil {
			return SessionPage{}, err
		}
		if s.MessageCount == 0 {
			continue
		}
		sessions = append(sessions, s)
	}

	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].LastActivity.After(sessions[j].LastActivity)
	})

	page := SessionPage{Total: len(sessions), Sessions: []Session{}}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(sessions) {
		return page, nil
	}
	end := len(sessions)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	page.Sessions = sessions[offset:end]
	page.HasMore = end < len(sessions)
	return page, nil
}

// Session returns the metadata of one session.
func (r *Repository) Session(ctx context.Context, project, sessionID string) (Session, error) {
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}
	return r.readSession(project, sessionID)
}

// Messages returns the user and assistant messages of a session in file order.
func (r *Repository) Messages(ctx context.Context, project, sessionID string) ([]Message, error) {
	var msgs []Message
	err := r.scan(ctx, project, sessionID, func(l *line) {
		if m, ok := l.message(); ok {
			msgs = append(msgs, m)
		}
	})
	return msgs, err
}

// AppendSummary appends a summary record to the session transcript, linked to
// its latest message the way the CLI links its own summaries.
func (r *Repository) AppendSummary(ctx context.Context, project, sessionID, summary string) error {
	var leaf string
	err := r.scan(ctx, project, sessionID, func(l *line) {
		if l.UUID != "" {
			leaf = l.UUID
		}
	})
	if err != nil {
		return err
	}
	if leaf == "" {
		leaf = uuid.NewString()
	}

	f, err := os.OpenFile(r.SessionPath(project, sessionID), os.O_WRONLY|os.O_APPEND, 0)
	if err != nil {
		return fmt.Errorf("open transcript: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(summaryLine{Type: typeSummary, Summary: summary, LeafUUID: leaf}); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}

func (r *Repository) readSession(project, sessionID string) (Session, error) {
	s := Session{ID: sessionID, Summary: DefaultSummary}
	err := r.scan(context.Background(), project, sessionID, func(l *line) {
		if l.Type == typeSummary && strings.TrimSpace(l.Summary) != "" {
			s.Summary = l.Summary
			return
		}
		m, ok := l.message()
		if !ok {
			return
		}
		s.MessageCount++
		if s.FirstPrompt == "" && m.Role == roleUser {
			s.FirstPrompt = m.Text
		}
		if s.Cwd == "" {
			s.Cwd = m.Cwd
		}
		if m.Timestamp.After(s.LastActivity) {
			s.LastActivity = m.Timestamp
		}
	})
	if err != nil {
		return Session{}, err
	}
	if s.LastActivity.IsZero() {
		if info, err := os.Stat(r.SessionPath(project, sessionID)); err == nil {
			s.LastActivity = info.ModTime().UTC()
		}
	}
	return s, nil
}

// scan decodes every line of a transcript. Malformed lines are skipped.
func (r *Repository) scan(ctx context.Context, project, sessionID string, fn func(*line)) error {
	f, err := os.Open(r.SessionPath(project, sessionID))
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%s/%s: %w", project, sessionID, ErrSessionNotFound)
	}
	if err != nil {
		return fmt.Errorf("open transcript: %w", err)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		raw, readErr := br.ReadBytes('\n')
		if raw = bytes.TrimSpace(raw); len(raw) > 0 {
			var l line
			if json.Unmarshal(raw, &l) == nil {
				fn(&l)
			}
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return fmt.Errorf("read transcript: %w", readErr)
		}
	}
}
