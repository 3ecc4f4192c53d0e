package summary

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"claude-relay/internal/protocol"
	"claude-relay/internal/transcript"
)

type fakeRepo struct {
	mu       sync.Mutex
	summary  string
	msgs     []transcript.Message
	saved    []string
	listErr  error
	sessions []string
}

func (r *fakeRepo) ListSessions(_ context.Context, _ string, _, _ int) (transcript.SessionPage, error) {
	if r.listErr != nil {
		return transcript.SessionPage{}, r.listErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	page := transcript.SessionPage{}
	for _, id := range r.sessions {
		page.Sessions = append(page.Sessions, transcript.Session{ID: id, Summary: r.summary})
	}
	page.Total = len(page.Sessions)
	return page, nil
}

func (r *fakeRepo) Messages(_ context.Context, _, _ string) ([]transcript.Message, error) {
	return r.msgs, nil
}

func (r *fakeRepo) SaveSummary(_ context.Context, _, _, summary string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saved = append(r.saved, summary)
	r.summary = summary
	return nil
}

type recordingGen struct {
	got  []transcript.Message
	text string
	err  error
}

func (g *recordingGen) Generate(_ context.Context, msgs []transcript.Message) (string, error) {
	g.got = msgs
	return g.text, g.err
}

type emitLog struct {
	mu     sync.Mutex
	keys   []string
	events []protocol.Event
}

func (e *emitLog) Emit(key string, ev protocol.Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.keys = append(e.keys, key)
	e.events = append(e.events, ev)
	return nil
}

func messages(n int) []transcript.Message {
	msgs := make([]transcript.Message, n)
	for i := range msgs {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		msgs[i] = transcript.Message{UUID: fmt.Sprintf("m%d", i), Role: role, Text: fmt.Sprintf("message %d", i)}
	}
	return msgs
}

func TestRegenerate_CadenceUsesRecentMessages(t *testing.T) {
	repo := &fakeRepo{sessions: []string{"sid"}, summary: "Old title", msgs: messages(25)}
	gen := &recordingGen{text: "New title"}
	emitter := &emitLog{}
	r := NewRegenerator(repo, gen, emitter, RegeneratorOptions{})

	outcome, err := r.Regenerate(context.Background(), Job{Project: "proj", SessionID: "sid", Mode: ModeCadence})
	require.NoError(t, err)
	assert.Equal(t, OutcomeUpdated, outcome)

	require.Len(t, gen.got, 10)
	assert.Equal(t, "m15", gen.got[0].UUID)
	assert.Equal(t, []string{"New title"}, repo.saved)

	require.Len(t, emitter.events, 1)
	assert.Equal(t, "sid", emitter.keys[0])
	assert.Equal(t, protocol.SummaryUpdated{ProjectName: "proj", SessionID: "sid", Summary: "New title"}, emitter.events[0])
}

func TestRegenerate_InitialUsesFullHistory(t *testing.T) {
	repo := &fakeRepo{sessions: []string{"sid"}, summary: transcript.DefaultSummary, msgs: messages(25)}
	gen := &recordingGen{text: "Title"}
	r := NewRegenerator(repo, gen, nil, RegeneratorOptions{})

	outcome, err := r.Regenerate(context.Background(), Job{Project: "proj", SessionID: "sid", Mode: ModeInitial})
	require.NoError(t, err)
	assert.Equal(t, OutcomeUpdated, outcome)
	assert.Len(t, gen.got, 25)
}

func TestRegenerate_InitialSkipsExistingSummary(t *testing.T) {
	repo := &fakeRepo{sessions: []string{"sid"}, summary: "Hand written", msgs: messages(2)}
	gen := &recordingGen{text: "Title"}
	r := NewRegenerator(repo, gen, nil, RegeneratorOptions{})

	outcome, err := r.Regenerate(context.Background(), Job{Project: "proj", SessionID: "sid", Mode: ModeInitial})
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkippedExisting, outcome)
	assert.Nil(t, gen.got)
	assert.Empty(t, repo.saved)
}

func TestRegenerate_SuppressedByManualEdit(t *testing.T) {
	repo := &fakeRepo{sessions: []string{"sid"}, msgs: messages(3)}
	emitter := &emitLog{}
	r := NewRegenerator(repo, &recordingGen{text: "Title"}, emitter, RegeneratorOptions{})

	job := Job{Project: "proj", SessionID: "sid", Mode: ModeCadence, Suppressed: func() bool { return true }}
	outcome, err := r.Regenerate(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuppressed, outcome)
	assert.Empty(t, repo.saved)
	assert.Empty(t, emitter.events)
}

func TestRegenerate_Errors(t *testing.T) {
	t.Run("unknown session", func(t *testing.T) {
		r := NewRegenerator(&fakeRepo{}, &recordingGen{text: "x"}, nil, RegeneratorOptions{})
		_, err := r.Regenerate(context.Background(), Job{Project: "proj", SessionID: "sid"})
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})

	t.Run("generator failure", func(t *testing.T) {
		boom := errors.New("boom")
		repo := &fakeRepo{sessions: []string{"sid"}, msgs: messages(1)}
		r := NewRegenerator(repo, &recordingGen{err: boom}, nil, RegeneratorOptions{})
		_, err := r.Regenerate(context.Background(), Job{Project: "proj", SessionID: "sid"})
		assert.ErrorIs(t, err, boom)
		assert.Empty(t, repo.saved)
	})

	t.Run("empty conversation", func(t *testing.T) {
		repo := &fakeRepo{sessions: []string{"sid"}}
		r := NewRegenerator(repo, &recordingGen{text: "x"}, nil, RegeneratorOptions{})
		outcome, err := r.Regenerate(context.Background(), Job{Project: "proj", SessionID: "sid"})
		require.NoError(t, err)
		assert.Equal(t, OutcomeSkippedEmpty, outcome)
	})
}

func TestRegenerate_RunLogsErrors(t *testing.T) {
	repo := &fakeRepo{listErr: errors.New("disk gone")}
	r := NewRegenerator(repo, FirstPrompt{}, nil, RegeneratorOptions{})
	r.Run(context.Background(), Job{Project: "proj", SessionID: "sid"})
}

func TestFirstPrompt(t *testing.T) {
	msgs := []transcript.Message{
		{Role: "assistant", Text: "hello"},
		{Role: "user", Text: "  fix\nthe   login bug  "},
	}
	got, err := FirstPrompt{}.Generate(context.Background(), msgs)
	require.NoError(t, err)
	assert.Equal(t, "fix the login bug", got)

	got, err = FirstPrompt{}.Generate(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, transcript.DefaultSummary, got)
}

func TestClean_Truncates(t *testing.T) {
	long := ""
	for i := 0; i < 100; i++ {
		long += "é"
	}
	got := clean(long, 10)
	assert.Equal(t, 10, len([]rune(got)))
	assert.Equal(t, '…', []rune(got)[9])
}

func TestCLIGenerator(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported")
	}
	path := filepath.Join(t.TempDir(), "claude")
	script := "#!/bin/sh\n" +
		`case "$*" in *"User: fix the bug"*) ;; *) echo "missing prompt" >&2; exit 1;; esac` + "\n" +
		`printf '%s\n' '{"type":"result","subtype":"success","is_error":false,"result":"\"Fix login bug\""}'` + "\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))

	gen := CLI{Binary: path}
	got, err := gen.Generate(context.Background(), []transcript.Message{{Role: "user", Text: "fix the bug"}})
	require.NoError(t, err)
	assert.Equal(t, "Fix login bug", got)
}

func TestCLIGenerator_Failure(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported")
	}
	path := filepath.Join(t.TempDir(), "claude")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\necho nope >&2\nexit 2\n"), 0o755))

	_, err := CLI{Binary: path}.Generate(context.Background(), []transcript.Message{{Role: "user", Text: "x"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope")
}
