package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Source records who wrote a summary.
type Source string

const (
	SourceGenerated Source = "generated"
	SourceManual    Source = "manual"
)

// Summary is one indexed session summary.
type Summary struct {
	Project   string
	SessionID string
	Summary   string
	Source    Source
	UpdatedAt time.Time
}

// PutSummary inserts or replaces the summary of a session.
func (s *Store) PutSummary(ctx context.Context, sum Summary) error {
	if sum.Source == "" {
		sum.Source = SourceGenerated
	}
	if sum.UpdatedAt.IsZero() {
		sum.UpdatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO summaries (project, session_id, summary, source, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(project, session_id) DO UPDATE SET
			summary = excluded.summary, source = excluded.source, updated_at = excluded.updated_at`,
		sum.Project, sum.SessionID, sum.Summary, string(sum.Source), sum.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("put summary %s/%s: %w", sum.Project, sum.SessionID, err)
	}
	return nil
}

// GetSummary returns the summary of a session and whether one exists.
func (s *Store) GetSummary(ctx context.Context, project, sessionID string) (Summary, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT summary, source, updated_at FROM summaries WHERE project = ? AND session_id = ?`,
		project, sessionID,
	)
	sum := Summary{Project: project, SessionID: sessionID}
	var source, updated string
	err := row.Scan(&sum.Summary, &source, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return Summary{}, false, nil
	}
	if err != nil {
		return Summary{}, false, fmt.Errorf("get summary %s/%s: %w", project, sessionID, err)
	}
	sum.Source = Source(source)
	sum.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
	return sum, true, nil
}

// ProjectSummaries returns every indexed summary of a project keyed by session id.
func (s *Store) ProjectSummaries(ctx context.Context, project string) (map[string]Summary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, summary, source, updated_at FROM summaries WHERE project = ?`,
		project,
	)
	if err != nil {
		return nil, fmt.Errorf("list summaries %s: %w", project, err)
	}
	defer rows.Close()

	result := make(map[string]Summary)
	for rows.Next() {
		sum := Summary{Project: project}
		var source, updated string
		if err := rows.Scan(&sum.SessionID, &sum.Summary, &source, &updated); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		sum.Source = Source(source)
		sum.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
		result[sum.SessionID] = sum
	}
	return result, rows.Err()
}

// DeleteSummary removes the summary of a session.
func (s *Store) DeleteSummary(ctx context.Context, project, sessionID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM summaries WHERE project = ? AND session_id = ?`, project, sessionID)
	if err != nil {
		return fmt.Errorf("delete summary %s/%s: %w", project, sessionID, err)
	}
	return nil
}
