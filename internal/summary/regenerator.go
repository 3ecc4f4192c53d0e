package summary

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"claude-relay/internal/protocol"
	"claude-relay/internal/transcript"
)

// DefaultRecentMessages is how many trailing messages a cadence regeneration reads.
const DefaultRecentMessages = 10

// ErrSessionNotFound is returned when the project has no such session.
var ErrSessionNotFound = errors.New("session not found")

// Repository is the session store regeneration reads from and writes to.
type Repository interface {
	ListSessions(ctx context.Context, project string, limit, offset int) (transcript.SessionPage, error)
	Messages(ctx context.Context, project, sessionID string) ([]transcript.Message, error)
	SaveSummary(ctx context.Context, project, sessionID, summary string) error
}

// Generator turns a conversation into a short title.
type Generator interface {
	Generate(ctx context.Context, msgs []transcript.Message) (string, error)
}

// Emitter receives summary notifications.
type Emitter interface {
	Emit(key string, ev protocol.Event) error
}

// Outcome reports what a regeneration did.
type Outcome int

const (
	OutcomeUpdated Outcome = iota
	OutcomeSkippedExisting
	OutcomeSkippedEmpty
	OutcomeSuppressed
)

var outcomeNames = map[Outcome]string{
	OutcomeUpdated:         "updated",
	OutcomeSkippedExisting: "skipped-existing",
	OutcomeSkippedEmpty:    "skipped-empty",
	OutcomeSuppressed:      "suppressed",
}

func (o Outcome) String() string { return outcomeNames[o] }

// Regenerator rebuilds session summaries. Concurrent regenerations of the
// same session share one run.
type Regenerator struct {
	repo           Repository
	gen            Generator
	emitter        Emitter
	recentMessages int
	logger         *slog.Logger

	group singleflight.Group
}

// RegeneratorOptions configures a Regenerator.
type RegeneratorOptions struct {
	RecentMessages int
	Logger         *slog.Logger
}

// NewRegenerator creates a regenerator. emitter may be nil.
func NewRegenerator(repo Repository, gen Generator, emitter Emitter, opts RegeneratorOptions) *Regenerator {
	if opts.RecentMessages <= 0 {
		opts.RecentMessages = DefaultRecentMessages
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Regenerator{
		repo:           repo,
		gen:            gen,
		emitter:        emitter,
		recentMessages: opts.RecentMessages,
		logger:         opts.Logger.With("component", "summary"),
	}
}

// Run is a Task that logs failures instead of returning them.
func (r *Regenerator) Run(ctx context.Context, job Job) {
	outcome, err := r.Regenerate(ctx, job)
	if err != nil {
		r.logger.Error("summary regeneration failed",
			"project", job.Project,
			"session", job.SessionID,
			"mode", job.Mode.String(),
			"error", err,
		)
		return
	}
	r.logger.Info("summary regeneration finished",
		"session", job.SessionID,
		"mode", job.Mode.String(),
		"outcome", outcome.String(),
	)
}

// Regenerate rebuilds the summary of one session.
func (r *Regenerator) Regenerate(ctx context.Context, job Job) (Outcome, error) {
	key := job.Project + "/" + job.SessionID
	v, err, _ := r.group.Do(key, func() (interface{}, error) {
		return r.regenerate(ctx, job)
	})
	if err != nil {
		return 0, err
	}
	return v.(Outcome), nil
}

func (r *Regenerator) regenerate(ctx context.Context, job Job) (Outcome, error) {
	current, err := r.currentSummary(ctx, job.Project, job.SessionID)
	if err != nil {
		return 0, err
	}
	if job.Mode == ModeInitial && current != "" && current != transcript.DefaultSummary {
		return OutcomeSkippedExisting, nil
	}

	msgs, err := r.repo.Messages(ctx, job.Project, job.SessionID)
	if err != nil {
		return 0, fmt.Errorf("load messages: %w", err)
	}
	if job.Mode == ModeCadence && len(msgs) > r.recentMessages {
		msgs = msgs[len(msgs)-r.recentMessages:]
	}
	if len(msgs) == 0 {
		return OutcomeSkippedEmpty, nil
	}

	text, err := r.gen.Generate(ctx, msgs)
	if err != nil {
		return 0, fmt.Errorf("generate summary: %w", err)
	}
	if text == "" || text == transcript.DefaultSummary {
		return OutcomeSkippedEmpty, nil
	}

	if job.Suppressed != nil && job.Suppressed() {
		return OutcomeSuppressed, nil
	}

	if err := r.repo.SaveSummary(ctx, job.Project, job.SessionID, text); err != nil {
		return 0, fmt.Errorf("save summary: %w", err)
	}

	if r.emitter != nil {
		ev := protocol.SummaryUpdated{ProjectName: job.Project, SessionID: job.SessionID, Summary: text}
		if err := r.emitter.Emit(job.SessionID, ev); err != nil {
			r.logger.Warn("emit summary failed", "session", job.SessionID, "error", err)
		}
	}
	return OutcomeUpdated, nil
}

func (r *Regenerator) currentSummary(ctx context.Context, project, sessionID string) (string, error) {
	page, err := r.repo.ListSessions(ctx, project, 0, 0)
	if err != nil {
		return "", fmt.Errorf("list sessions: %w", err)
	}
	for _, s := range page.Sessions {
		if s.ID == sessionID {
			return s.Summary, nil
		}
	}
	return "", fmt.Errorf("%s/%s: %w", project, sessionID, ErrSessionNotFound)
}
