// Package postgres provides the Postgres-backed ContentStore.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JezreelBuenconsejo/web-scraper/internal/scrape"
)

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

// Store implements scrape.ContentStore on a pgx connection pool.
type Store struct {
	pool pgxPool
}

// New creates a Store from config, establishing the pool.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database dsn is required")
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

// NewWithPool constructs a Store from an existing pool (primarily for testing).
func NewWithPool(pool pgxPool) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the two tables when they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS jobs (
	id TEXT PRIMARY KEY,
	type TEXT NOT NULL,
	parameters JSONB NOT NULL DEFAULT '{}',
	status TEXT NOT NULL,
	started_at TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ,
	error_message TEXT NOT NULL DEFAULT '',
	result_summary JSONB
);
CREATE TABLE IF NOT EXISTS records (
	id BIGSERIAL PRIMARY KEY,
	source TEXT NOT NULL,
	source_url TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	body_content TEXT NOT NULL,
	raw_payload TEXT NOT NULL,
	scraped_at TIMESTAMPTZ NOT NULL,
	metadata JSONB
);
CREATE INDEX IF NOT EXISTS records_source_scraped_at_idx ON records (source, scraped_at DESC);
`
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// CreateJob inserts the job row unless one with the same ID exists, then
// returns the stored row. The bool comes from the insert's row count, not
// from comparing fields: TIMESTAMPTZ rounds started_at to microseconds, so
// the stored row never compares equal to the input.
func (s *Store) CreateJob(ctx context.Context, job scrape.Job) (scrape.Job, bool, error) {
	params, err := json.Marshal(job.Parameters)
	if err != nil {
		return scrape.Job{}, false, fmt.Errorf("marshal parameters: %w", err)
	}
	query := `
		INSERT INTO jobs (id, type, parameters, status, started_at, error_message)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING;
	`
	tag, err := s.pool.Exec(ctx, query,
		job.ID, job.Type, params, job.Status, job.StartedAt, job.ErrorMessage,
	)
	if err != nil {
		return scrape.Job{}, false, fmt.Errorf("insert job: %w", err)
	}
	stored, err := s.GetJob(ctx, job.ID)
	if err != nil {
		return scrape.Job{}, false, err
	}
	return stored, tag.RowsAffected() == 1, nil
}

// UpdateJob applies only the fields set on the update.
func (s *Store) UpdateJob(ctx context.Context, jobID string, update scrape.JobUpdate) error {
	var (
		sets []string
		args []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if update.Status != nil {
		sets = append(sets, "status = "+arg(*update.Status))
	}
	if update.CompletedAt != nil {
		sets = append(sets, "completed_at = "+arg(*update.CompletedAt))
	}
	if update.ErrorMessage != nil {
		sets = append(sets, "error_message = "+arg(*update.ErrorMessage))
	}
	if update.Summary != nil {
		summary, err := json.Marshal(update.Summary)
		if err != nil {
			return fmt.Errorf("marshal summary: %w", err)
		}
		sets = append(sets, "result_summary = "+arg(summary))
	}
	if len(sets) == 0 {
		return nil
	}

	query := fmt.Sprintf("UPDATE jobs SET %s WHERE id = %s;", strings.Join(sets, ", "), arg(jobID))
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return scrape.ErrNotFound
	}
	return nil
}

// GetJob fetches a job row by ID.
func (s *Store) GetJob(ctx context.Context, jobID string) (scrape.Job, error) {
	query := `
		SELECT id, type, parameters, status, started_at, completed_at, error_message, result_summary
		FROM jobs
		WHERE id = $1;
	`
	return scanJob(s.pool.QueryRow(ctx, query, jobID))
}

// ListJobs returns jobs newest-first, optionally filtered by status.
func (s *Store) ListJobs(ctx context.Context, status *scrape.JobStatus, limit, offset int) ([]scrape.Job, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, type, parameters, status, started_at, completed_at, error_message, result_summary
		FROM jobs
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY started_at DESC
		LIMIT $2 OFFSET $3;
	`
	rows, err := s.pool.Query(ctx, query, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []scrape.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// CountJobsByStatus aggregates job counts per status.
func (s *Store) CountJobsByStatus(ctx context.Context) (map[scrape.JobStatus]int64, error) {
	rows, err := s.pool.Query(ctx, `SELECT status, COUNT(*) FROM jobs GROUP BY status;`)
	if err != nil {
		return nil, fmt.Errorf("count jobs: %w", err)
	}
	defer rows.Close()

	counts := make(map[scrape.JobStatus]int64)
	for rows.Next() {
		var (
			status scrape.JobStatus
			n      int64
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan job count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// SaveRecord appends a normalized record row and returns its ID.
func (s *Store) SaveRecord(ctx context.Context, record scrape.Record) (int64, error) {
	metadata, err := json.Marshal(record.Metadata)
	if err != nil {
		return 0, fmt.Errorf("marshal metadata: %w", err)
	}
	query := `
		INSERT INTO records (source, source_url, title, body_content, raw_payload, scraped_at, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id;
	`
	var id int64
	if err := s.pool.QueryRow(ctx, query,
		record.Source, record.SourceURL, record.Title, record.Body,
		record.RawPayload, record.ScrapedAt, metadata,
	).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert record: %w", err)
	}
	return id, nil
}

// ListRecords returns records newest-first matching the query filters.
func (s *Store) ListRecords(ctx context.Context, query scrape.RecordQuery) ([]scrape.Record, error) {
	limit := query.Limit
	if limit <= 0 {
		limit = 50
	}
	var since *time.Time
	if !query.Since.IsZero() {
		since = &query.Since
	}
	var source, search *string
	if query.Source != "" {
		source = &query.Source
	}
	if query.Search != "" {
		pattern := "%" + query.Search + "%"
		search = &pattern
	}

	sql := `
		SELECT id, source, source_url, title, body_content, raw_payload, scraped_at, metadata
		FROM records
		WHERE ($1::text IS NULL OR source = $1)
		  AND ($2::timestamptz IS NULL OR scraped_at >= $2)
		  AND ($3::text IS NULL OR title ILIKE $3 OR body_content ILIKE $3)
		ORDER BY scraped_at DESC
		LIMIT $4 OFFSET $5;
	`
	rows, err := s.pool.Query(ctx, sql, source, since, search, limit, query.Offset)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var records []scrape.Record
	for rows.Next() {
		var (
			rec      scrape.Record
			metadata []byte
		)
		if err := rows.Scan(
			&rec.ID, &rec.Source, &rec.SourceURL, &rec.Title,
			&rec.Body, &rec.RawPayload, &rec.ScrapedAt, &metadata,
		); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &rec.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal metadata: %w", err)
			}
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func scanJob(row pgx.Row) (scrape.Job, error) {
	var (
		job     scrape.Job
		params  []byte
		summary []byte
	)
	err := row.Scan(
		&job.ID, &job.Type, &params, &job.Status,
		&job.StartedAt, &job.CompletedAt, &job.ErrorMessage, &summary,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return scrape.Job{}, scrape.ErrNotFound
		}
		return scrape.Job{}, fmt.Errorf("scan job: %w", err)
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &job.Parameters); err != nil {
			return scrape.Job{}, fmt.Errorf("unmarshal parameters: %w", err)
		}
	}
	if len(summary) > 0 {
		job.Summary = &scrape.ResultSummary{}
		if err := json.Unmarshal(summary, job.Summary); err != nil {
			return scrape.Job{}, fmt.Errorf("unmarshal summary: %w", err)
		}
	}
	return job, nil
}
