// Package store persists a task-run audit log in PostgreSQL. Persistence is
// optional: a nil *Store is valid and turns every write into a no-op, so the
// service runs unchanged without a database.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taskforge/pagesmith/internal/models"
)

// ErrDisabled is returned by queries when no database is configured.
var ErrDisabled = errors.New("task store is disabled")

// Run statuses.
const (
	StatusAccepted  = "accepted"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// TaskRun is one recorded task execution.
type TaskRun struct {
	RunID      string     `json:"run_id"`
	TaskName   string     `json:"task"`
	Round      int        `json:"round"`
	Nonce      string     `json:"nonce"`
	Status     string     `json:"status"`
	RepoURL    *string    `json:"repo_url,omitempty"`
	CommitSHA  *string    `json:"commit_sha,omitempty"`
	PagesURL   *string    `json:"pages_url,omitempty"`
	Error      *string    `json:"error,omitempty"`
	AcceptedAt time.Time  `json:"accepted_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Store records task runs.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to PostgreSQL and ensures the task_runs table exists.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping checks database connectivity for readiness probes.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return nil
	}
	return s.pool.Ping(ctx)
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS task_runs (
			run_id      UUID PRIMARY KEY,
			task_name   TEXT NOT NULL,
			round       INT NOT NULL,
			nonce       TEXT NOT NULL,
			status      TEXT NOT NULL,
			repo_url    TEXT,
			commit_sha  TEXT,
			pages_url   TEXT,
			error       TEXT,
			accepted_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			finished_at TIMESTAMPTZ
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to ensure task_runs schema: %w", err)
	}
	return nil
}

// RecordAccepted inserts a new run in the accepted state.
func (s *Store) RecordAccepted(ctx context.Context, runID string, task *models.Task) error {
	if s == nil || s.pool == nil {
		return nil
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO task_runs (run_id, task_name, round, nonce, status)
		 VALUES ($1, $2, $3, $4, $5)`,
		runID, task.Name, task.Round, task.Nonce, StatusAccepted,
	)
	if err != nil {
		return fmt.Errorf("failed to record task run: %w", err)
	}
	return nil
}

// RecordCompleted marks a run completed and stores its result.
func (s *Store) RecordCompleted(ctx context.Context, runID string, result *models.TaskResult) error {
	if s == nil || s.pool == nil {
		return nil
	}
	_, err := s.pool.Exec(ctx,
		`UPDATE task_runs
		 SET status = $1, repo_url = $2, commit_sha = $3, pages_url = $4, finished_at = NOW()
		 WHERE run_id = $5`,
		StatusCompleted, result.RepoURL, result.CommitSHA, result.PagesURL, runID,
	)
	if err != nil {
		return fmt.Errorf("failed to record task completion: %w", err)
	}
	return nil
}

// RecordFailed marks a run failed with its error message.
func (s *Store) RecordFailed(ctx context.Context, runID string, taskErr error) error {
	if s == nil || s.pool == nil {
		return nil
	}
	_, err := s.pool.Exec(ctx,
		`UPDATE task_runs
		 SET status = $1, error = $2, finished_at = NOW()
		 WHERE run_id = $3`,
		StatusFailed, taskErr.Error(), runID,
	)
	if err != nil {
		return fmt.Errorf("failed to record task failure: %w", err)
	}
	return nil
}

// ListRuns returns the most recent task runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]*TaskRun, error) {
	if s == nil || s.pool == nil {
		return nil, ErrDisabled
	}

	rows, err := s.pool.Query(ctx, `
		SELECT run_id, task_name, round, nonce, status,
		       repo_url, commit_sha, pages_url, error, accepted_at, finished_at
		FROM task_runs
		ORDER BY accepted_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query task runs: %w", err)
	}
	defer rows.Close()

	var runs []*TaskRun
	for rows.Next() {
		var run TaskRun
		err := rows.Scan(
			&run.RunID,
			&run.TaskName,
			&run.Round,
			&run.Nonce,
			&run.Status,
			&run.RepoURL,
			&run.CommitSHA,
			&run.PagesURL,
			&run.Error,
			&run.AcceptedAt,
			&run.FinishedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task run: %w", err)
		}
		runs = append(runs, &run)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task runs: %w", err)
	}

	return runs, nil
}
