// Package jobqueue defines the durable job lifecycle contract. The engine
// never touches storage directly; a run claims jobs up front, processes
// them, and reports terminal states back through one of the providers here.
//
// Semantics are at-least-once: a job claimed by a crashed worker can be
// reclaimed later, so downstream writes go through idempotent upserts.
package jobqueue

import (
	"context"
	"errors"
	"time"

	"github.com/otaviobraga/registry-harvester/internal/scraper"
)

// Job statuses as stored in the queue tables.
const (
	StatusPending    = "pending"
	StatusProcessing = "p"
	StatusSuccess    = "s"
	StatusError      = "e"
)

// ErrNoPendingJobs signals an empty queue; callers treat it as a normal
// end-of-work condition.
var ErrNoPendingJobs = errors.New("no pending jobs")

// Job is one claimable unit of work. Priority jobs come from a separate
// table and are always drained first; the flag travels with the id so
// status updates land on the right table.
type Job struct {
	ID       string `json:"id"`
	Priority bool   `json:"-"`
}

// StoredResult is one persisted extraction result.
type StoredResult struct {
	JobID     string         `json:"job_id"`
	Success   bool           `json:"success"`
	Record    scraper.Record `json:"record"`
	Message   string         `json:"message,omitempty"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Provider is the narrow claim/report contract over the durable queue.
type Provider interface {
	// FetchPending returns up to limit claimable jobs, priority first.
	FetchPending(ctx context.Context, limit int) ([]Job, error)
	// Claim marks the jobs as processing under the worker tag. Idempotent:
	// reclaiming already-claimed jobs is a no-op, not an error.
	Claim(ctx context.Context, jobs []Job, workerTag string) error
	// MarkSuccess flags the jobs as successfully processed.
	MarkSuccess(ctx context.Context, jobs []Job) error
	// MarkError flags the jobs as failed, eligible for resubmission.
	MarkError(ctx context.Context, jobs []Job) error
	// UpsertResults persists extraction outcomes, overwriting earlier
	// rows for the same job id.
	UpsertResults(ctx context.Context, outcomes []scraper.Outcome) error
	// Results returns the most recent persisted results.
	Results(ctx context.Context, limit int) ([]StoredResult, error)

	// CreateBatch opens a progress row for a run of the given size.
	CreateBatch(ctx context.Context, total int) (string, error)
	// UpdateBatchProgress records running counts for a batch.
	UpdateBatchProgress(ctx context.Context, batchID string, processed, succeeded, failed int) error
	// CompleteBatch closes the batch row.
	CompleteBatch(ctx context.Context, batchID string) error
}

// JobIDs extracts the ids from a job slice, preserving order.
func JobIDs(jobs []Job) []string {
	ids := make([]string, len(jobs))
	for i, j := range jobs {
		ids[i] = j.ID
	}
	return ids
}

// SplitByPriority partitions jobs into priority and regular groups,
// preserving relative order within each group.
func SplitByPriority(jobs []Job) (priority, regular []Job) {
	for _, j := range jobs {
		if j.Priority {
			priority = append(priority, j)
		} else {
			regular = append(regular, j)
		}
	}
	return priority, regular
}
