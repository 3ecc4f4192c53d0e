package store

import (
	"context"
	"fmt"
	"log/slog"

	"claude-relay/internal/transcript"
)

// Repository serves sessions and messages from the CLI transcripts and keeps
// summaries in the index, optionally mirroring them into the transcript so
// the CLI's own session picker sees them.
type Repository struct {
	store           *Store
	transcripts     *transcript.Repository
	writeTranscript bool
	logger          *slog.Logger
}

// NewRepository combines the summary index with a transcript reader.
func NewRepository(st *Store, tr *transcript.Repository, writeTranscript bool, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		store:           st,
		transcripts:     tr,
		writeTranscript: writeTranscript,
		logger:          logger.With("component", "repository"),
	}
}

// ListSessions returns a page of sessions with indexed summaries applied.
func (r *Repository) ListSessions(ctx context.Context, project string, limit, offset int) (transcript.SessionPage, error) {
	page, err := r.transcripts.ListSessions(ctx, project, limit, offset)
	if err != nil {
		return transcript.SessionPage{}, err
	}
	if len(page.Sessions) == 0 {
		return page, nil
	}

	indexed, err := r.store.ProjectSummaries(ctx, project)
	if err != nil {
		return transcript.SessionPage{}, err
	}
	for i := range page.Sessions {
		if sum, ok := indexed[page.Sessions[i].ID]; ok && sum.Summary != "" {
			page.Sessions[i].Summary = sum.Summary
		}
	}
	return page, nil
}

// Messages returns the messages of a session.
func (r *Repository) Messages(ctx context.Context, project, sessionID string) ([]transcript.Message, error) {
	return r.transcripts.Messages(ctx, project, sessionID)
}

// SaveSummary stores a generated summary.
func (r *Repository) SaveSummary(ctx context.Context, project, sessionID, summary string) error {
	return r.save(ctx, project, sessionID, summary, SourceGenerated)
}

// SaveManualSummary stores a summary written by a user.
func (r *Repository) SaveManualSummary(ctx context.Context, project, sessionID, summary string) error {
	return r.save(ctx, project, sessionID, summary, SourceManual)
}

// ResetSummary drops the indexed summary so the transcript's own summary,
// or the default, shows again.
func (r *Repository) ResetSummary(ctx context.Context, project, sessionID string) error {
	return r.store.DeleteSummary(ctx, project, sessionID)
}

func (r *Repository) save(ctx context.Context, project, sessionID, summary string, source Source) error {
	err := r.store.PutSummary(ctx, Summary{
		Project:   project,
		SessionID: sessionID,
		Summary:   summary,
		Source:    source,
	})
	if err != nil {
		return err
	}

	if !r.writeTranscript {
		return nil
	}
	if err := r.transcripts.AppendSummary(ctx, project, sessionID, summary); err != nil {
		return fmt.Errorf("mirror summary to transcript: %w", err)
	}
	r.logger.Debug("summary saved", "project", project, "session", sessionID, "source", source)
	return nil
}
