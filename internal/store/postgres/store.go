// Package postgres provides the durable, Postgres-backed JobStore.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pagesnap/pagesnap/internal/capture"
)

// Schema creates the jobs table. Status transitions are enforced by the
// conditional UPDATEs below, not by triggers.
const Schema = `
CREATE TABLE IF NOT EXISTS capture_jobs (
	id             TEXT PRIMARY KEY,
	owner_id       TEXT NOT NULL,
	seed_url       TEXT NOT NULL,
	devices        JSONB NOT NULL,
	page_budget    INT NOT NULL,
	exclude_popups BOOLEAN NOT NULL,
	status         TEXT NOT NULL,
	progress       INT NOT NULL DEFAULT 0,
	error_text     TEXT NOT NULL DEFAULT '',
	page_count     INT NOT NULL DEFAULT 0,
	file_mapping   JSONB,
	download_count INT NOT NULL DEFAULT 0,
	submitted_at   TIMESTAMPTZ NOT NULL,
	expires_at     TIMESTAMPTZ NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS capture_jobs_expires_at_idx ON capture_jobs (expires_at);
`

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Store implements capture.JobStore on Postgres. Conditional UPDATEs keyed
// on the current status give the one-way transition and terminal-wins
// guarantees under concurrent writers.
type Store struct {
	pool pgxPool
}

// New connects a pool and returns a Store.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

// NewWithPool constructs a Store from an existing pool (primarily for tests).
func NewWithPool(pool pgxPool) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: pool}, nil
}

// EnsureSchema creates the table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Close releases the pool.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Create inserts a new job row.
func (s *Store) Create(ctx context.Context, job capture.Job) error {
	devices, err := json.Marshal(job.Devices)
	if err != nil {
		return fmt.Errorf("marshal devices: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO capture_jobs (
	id, owner_id, seed_url, devices, page_budget, exclude_popups,
	status, progress, error_text, page_count, download_count,
	submitted_at, expires_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, '', 0, 0, $9, $10, $9)`,
		job.ID, job.OwnerID, job.SeedURL, devices, job.PageBudget, job.ExcludePopups,
		string(job.Status), job.Progress, job.Submitted, job.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// Get reads one job row.
func (s *Store) Get(ctx context.Context, jobID string) (capture.Job, error) {
	row := s.pool.QueryRow(ctx, `
SELECT id, owner_id, seed_url, devices, page_budget, exclude_popups,
	status, progress, error_text, page_count, file_mapping, download_count,
	submitted_at, expires_at
FROM capture_jobs WHERE id = $1`, jobID)
	return scanJob(row)
}

func scanJob(row pgx.Row) (capture.Job, error) {
	var (
		job         capture.Job
		status      string
		devicesJSON []byte
		mappingJSON []byte
	)
	err := row.Scan(
		&job.ID, &job.OwnerID, &job.SeedURL, &devicesJSON, &job.PageBudget,
		&job.ExcludePopups, &status, &job.Progress, &job.ErrorText,
		&job.PageCount, &mappingJSON, &job.DownloadCount,
		&job.Submitted, &job.ExpiresAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return capture.Job{}, capture.ErrJobNotFound
	}
	if err != nil {
		return capture.Job{}, fmt.Errorf("scan job: %w", err)
	}
	job.Status = capture.JobStatus(status)
	if len(devicesJSON) > 0 {
		if err := json.Unmarshal(devicesJSON, &job.Devices); err != nil {
			return capture.Job{}, fmt.Errorf("unmarshal devices: %w", err)
		}
	}
	if len(mappingJSON) > 0 {
		if err := json.Unmarshal(mappingJSON, &job.FileMapping); err != nil {
			return capture.Job{}, fmt.Errorf("unmarshal file mapping: %w", err)
		}
	}
	return job, nil
}

// SetProgress persists a progress percentage. The WHERE clause makes a late
// update against a terminal job, or a regression, affect zero rows, which is
// deliberately not an error.
func (s *Store) SetProgress(ctx context.Context, jobID string, percent int) error {
	if percent > 100 {
		percent = 100
	}
	_, err := s.pool.Exec(ctx, `
UPDATE capture_jobs SET progress = $2, updated_at = now()
WHERE id = $1 AND status = $3 AND progress <= $2`,
		jobID, percent, string(capture.JobStatusProcessing),
	)
	if err != nil {
		return fmt.Errorf("set progress: %w", err)
	}
	return nil
}

// SetPageCount records the discovered page count while processing.
func (s *Store) SetPageCount(ctx context.Context, jobID string, pages int) error {
	_, err := s.pool.Exec(ctx, `
UPDATE capture_jobs SET page_count = $2, updated_at = now()
WHERE id = $1 AND status = $3`,
		jobID, pages, string(capture.JobStatusProcessing),
	)
	if err != nil {
		return fmt.Errorf("set page count: %w", err)
	}
	return nil
}

// Complete transitions processing -> completed with the final file mapping.
func (s *Store) Complete(ctx context.Context, jobID string, mapping []capture.FileEntry) error {
	mappingJSON, err := json.Marshal(mapping)
	if err != nil {
		return fmt.Errorf("marshal file mapping: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
UPDATE capture_jobs SET status = $2, progress = 100, file_mapping = $3, updated_at = now()
WHERE id = $1 AND status = $4`,
		jobID, string(capture.JobStatusCompleted), mappingJSON, string(capture.JobStatusProcessing),
	)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errors.New("job is not processing")
	}
	return nil
}

// Fail transitions processing -> error. Zero affected rows means the job was
// already terminal, which is tolerated.
func (s *Store) Fail(ctx context.Context, jobID string, message string) error {
	_, err := s.pool.Exec(ctx, `
UPDATE capture_jobs SET status = $2, error_text = $3, updated_at = now()
WHERE id = $1 AND status = $4`,
		jobID, string(capture.JobStatusError), message, string(capture.JobStatusProcessing),
	)
	if err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	return nil
}

// RequestCancel transitions processing -> cancelled.
func (s *Store) RequestCancel(ctx context.Context, jobID string) error {
	tag, err := s.pool.Exec(ctx, `
UPDATE capture_jobs SET status = $2, updated_at = now()
WHERE id = $1 AND status = $3`,
		jobID, string(capture.JobStatusCancelled), string(capture.JobStatusProcessing),
	)
	if err != nil {
		return fmt.Errorf("cancel job: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	if _, err := s.Get(ctx, jobID); err != nil {
		return err
	}
	return capture.ErrNotCancellable
}

// IncrementDownloads bumps the download counter.
func (s *Store) IncrementDownloads(ctx context.Context, jobID string) error {
	tag, err := s.pool.Exec(ctx, `
UPDATE capture_jobs SET download_count = download_count + 1, updated_at = now()
WHERE id = $1`, jobID)
	if err != nil {
		return fmt.Errorf("increment downloads: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return capture.ErrJobNotFound
	}
	return nil
}

// ListExpired returns jobs whose retention window has passed.
func (s *Store) ListExpired(ctx context.Context, now time.Time) ([]capture.Job, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, owner_id, seed_url, devices, page_budget, exclude_popups,
	status, progress, error_text, page_count, file_mapping, download_count,
	submitted_at, expires_at
FROM capture_jobs WHERE expires_at < $1`, now)
	if err != nil {
		return nil, fmt.Errorf("list expired: %w", err)
	}
	defer rows.Close()

	var out []capture.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expired jobs: %w", err)
	}
	return out, nil
}

// Delete removes a job row.
func (s *Store) Delete(ctx context.Context, jobID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM capture_jobs WHERE id = $1`, jobID)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return capture.ErrJobNotFound
	}
	return nil
}
