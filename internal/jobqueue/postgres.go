package jobqueue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/otaviobraga/registry-harvester/internal/scraper"
)

// PgxIface is the slice of pgxpool.Pool the provider uses; pgxmock
// implements it for tests.
type PgxIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresProvider stores the queue directly in Postgres, for deployments
// that skip the REST layer.
type PostgresProvider struct {
	db PgxIface
}

// NewPostgres connects a provider to the database at dsn.
func NewPostgres(ctx context.Context, dsn string) (*PostgresProvider, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	return &PostgresProvider{db: pool}, nil
}

// NewPostgresWithDB wraps an existing connection, used by tests.
func NewPostgresWithDB(db PgxIface) *PostgresProvider {
	return &PostgresProvider{db: db}
}

// Close releases the pool when the provider owns one.
func (p *PostgresProvider) Close() {
	if pool, ok := p.db.(*pgxpool.Pool); ok {
		pool.Close()
	}
}

// FetchPending returns claimable jobs, priority rows first.
func (p *PostgresProvider) FetchPending(ctx context.Context, limit int) ([]Job, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, priority FROM jobs
		WHERE status = $1
		ORDER BY priority DESC, created_at ASC
		LIMIT $2;
	`
	rows, err := p.db.Query(ctx, query, StatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pending jobs: %w", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		var j Job
		if err := rows.Scan(&j.ID, &j.Priority); err != nil {
			return nil, fmt.Errorf("failed to scan job row: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read job rows: %w", err)
	}
	if len(jobs) == 0 {
		return nil, ErrNoPendingJobs
	}
	return jobs, nil
}

// Claim marks jobs as processing under the worker tag.
func (p *PostgresProvider) Claim(ctx context.Context, jobs []Job, workerTag string) error {
	if len(jobs) == 0 {
		return nil
	}
	query := `
		UPDATE jobs SET status = $1, processing_by = $2, claimed_at = $3
		WHERE id = ANY($4);
	`
	_, err := p.db.Exec(ctx, query, StatusProcessing, workerTag, time.Now().UTC(), JobIDs(jobs))
	if err != nil {
		return fmt.Errorf("failed to claim jobs: %w", err)
	}
	return nil
}

// MarkSuccess flags jobs as done.
func (p *PostgresProvider) MarkSuccess(ctx context.Context, jobs []Job) error {
	return p.setStatus(ctx, jobs, StatusSuccess)
}

// MarkError flags jobs as failed.
func (p *PostgresProvider) MarkError(ctx context.Context, jobs []Job) error {
	return p.setStatus(ctx, jobs, StatusError)
}

func (p *PostgresProvider) setStatus(ctx context.Context, jobs []Job, status string) error {
	if len(jobs) == 0 {
		return nil
	}
	query := `UPDATE jobs SET status = $1 WHERE id = ANY($2);`
	if _, err := p.db.Exec(ctx, query, status, JobIDs(jobs)); err != nil {
		return fmt.Errorf("failed to set job status: %w", err)
	}
	return nil
}

// UpsertResults writes outcomes idempotently keyed on job id.
func (p *PostgresProvider) UpsertResults(ctx context.Context, outcomes []scraper.Outcome) error {
	query := `
		INSERT INTO results (job_id, success, record, message, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (job_id) DO UPDATE
		SET success = EXCLUDED.success,
		    record = EXCLUDED.record,
		    message = EXCLUDED.message,
		    updated_at = EXCLUDED.updated_at;
	`
	now := time.Now().UTC()
	for _, o := range outcomes {
		var rec scraper.Record
		if o.Record != nil {
			rec = *o.Record
		}
		if _, err := p.db.Exec(ctx, query, o.JobID, o.Success, rec, o.Err, now); err != nil {
			return fmt.Errorf("failed to upsert result for job %s: %w", o.JobID, err)
		}
	}
	return nil
}

// Results returns the most recently updated rows.
func (p *PostgresProvider) Results(ctx context.Context, limit int) ([]StoredResult, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT job_id, success, record, message, updated_at FROM results
		ORDER BY updated_at DESC
		LIMIT $1;
	`
	rows, err := p.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch results: %w", err)
	}
	defer rows.Close()

	var out []StoredResult
	for rows.Next() {
		var r StoredResult
		if err := rows.Scan(&r.JobID, &r.Success, &r.Record, &r.Message, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan result row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read result rows: %w", err)
	}
	return out, nil
}

// CreateBatch opens a progress row for a run.
func (p *PostgresProvider) CreateBatch(ctx context.Context, total int) (string, error) {
	id := uuid.New()
	query := `INSERT INTO batches (id, total, started_at) VALUES ($1, $2, $3);`
	if _, err := p.db.Exec(ctx, query, id, total, time.Now().UTC()); err != nil {
		return "", fmt.Errorf("failed to create batch: %w", err)
	}
	return id.String(), nil
}

// UpdateBatchProgress records running counters for the batch.
func (p *PostgresProvider) UpdateBatchProgress(ctx context.Context, batchID string, processed, succeeded, failed int) error {
	query := `
		UPDATE batches SET processed = $1, succeeded = $2, failed = $3
		WHERE id = $4;
	`
	if _, err := p.db.Exec(ctx, query, processed, succeeded, failed, batchID); err != nil {
		return fmt.Errorf("failed to update batch %s: %w", batchID, err)
	}
	return nil
}

// CompleteBatch stamps the batch as finished.
func (p *PostgresProvider) CompleteBatch(ctx context.Context, batchID string) error {
	query := `UPDATE batches SET completed_at = $1 WHERE id = $2;`
	if _, err := p.db.Exec(ctx, query, time.Now().UTC(), batchID); err != nil {
		return fmt.Errorf("failed to complete batch %s: %w", batchID, err)
	}
	return nil
}
