package jobqueue

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/otaviobraga/registry-harvester/internal/scraper"
)

// MemoryProvider is an in-process queue for tests and dry runs.
type MemoryProvider struct {
	mu      sync.Mutex
	jobs    map[string]*memJob
	order   []string
	results map[string]memResult
	seq     uint64
	batches map[string]*memBatch
}

// memResult keeps the write sequence so Results can order rows even when
// UpdatedAt stamps collide within one upsert batch.
type memResult struct {
	row StoredResult
	seq uint64
}

type memJob struct {
	status      string
	priority    bool
	processedBy string
}

type memBatch struct {
	total       int
	processed   int
	succeeded   int
	failed      int
	completedAt time.Time
}

// NewMemory builds an empty in-process queue.
func NewMemory() *MemoryProvider {
	return &MemoryProvider{
		jobs:    map[string]*memJob{},
		results: map[string]memResult{},
		batches: map[string]*memBatch{},
	}
}

// Add enqueues pending jobs. Priority jobs are drained first on fetch.
func (m *MemoryProvider) Add(ids []string, priority bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		if _, exists := m.jobs[id]; exists {
			continue
		}
		m.jobs[id] = &memJob{status: StatusPending, priority: priority}
		m.order = append(m.order, id)
	}
}

// FetchPending returns pending jobs, priority entries first.
func (m *MemoryProvider) FetchPending(_ context.Context, limit int) ([]Job, error) {
	if limit <= 0 {
		limit = 50
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Job
	for _, wantPriority := range []bool{true, false} {
		for _, id := range m.order {
			if len(out) >= limit {
				break
			}
			j := m.jobs[id]
			if j.status == StatusPending && j.priority == wantPriority {
				out = append(out, Job{ID: id, Priority: j.priority})
			}
		}
	}
	if len(out) == 0 {
		return nil, ErrNoPendingJobs
	}
	return out, nil
}

// Claim marks jobs as processing. Reclaiming is a no-op, and ids the queue
// has never seen are registered on the fly so ad-hoc submissions work.
func (m *MemoryProvider) Claim(_ context.Context, jobs []Job, workerTag string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, job := range jobs {
		j, ok := m.jobs[job.ID]
		if !ok {
			j = &memJob{priority: job.Priority}
			m.jobs[job.ID] = j
			m.order = append(m.order, job.ID)
		}
		j.status = StatusProcessing
		j.processedBy = workerTag
	}
	return nil
}

// MarkSuccess flags jobs as done.
func (m *MemoryProvider) MarkSuccess(_ context.Context, jobs []Job) error {
	return m.setStatus(jobs, StatusSuccess)
}

// MarkError flags jobs as failed.
func (m *MemoryProvider) MarkError(_ context.Context, jobs []Job) error {
	return m.setStatus(jobs, StatusError)
}

func (m *MemoryProvider) setStatus(jobs []Job, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, job := range jobs {
		j, ok := m.jobs[job.ID]
		if !ok {
			return fmt.Errorf("mark: unknown job %s", job.ID)
		}
		j.status = status
	}
	return nil
}

// UpsertResults overwrites earlier rows for the same job id.
func (m *MemoryProvider) UpsertResults(_ context.Context, outcomes []scraper.Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	for _, o := range outcomes {
		row := StoredResult{
			JobID:     o.JobID,
			Success:   o.Success,
			Message:   o.Err,
			UpdatedAt: now,
		}
		if o.Record != nil {
			row.Record = *o.Record
		}
		m.seq++
		m.results[o.JobID] = memResult{row: row, seq: m.seq}
	}
	return nil
}

// Results returns persisted rows, most recent first, bounded by limit.
func (m *MemoryProvider) Results(_ context.Context, limit int) ([]StoredResult, error) {
	if limit <= 0 {
		limit = 100
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := make([]memResult, 0, len(m.results))
	for _, r := range m.results {
		rows = append(rows, r)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq > rows[j].seq })
	if len(rows) > limit {
		rows = rows[:limit]
	}
	out := make([]StoredResult, len(rows))
	for i, r := range rows {
		out[i] = r.row
	}
	return out, nil
}

// CreateBatch opens a progress row.
func (m *MemoryProvider) CreateBatch(_ context.Context, total int) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.NewString()
	m.batches[id] = &memBatch{total: total}
	return id, nil
}

// UpdateBatchProgress records running counters.
func (m *MemoryProvider) UpdateBatchProgress(_ context.Context, batchID string, processed, succeeded, failed int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.batches[batchID]
	if !ok {
		return fmt.Errorf("update batch: unknown batch %s", batchID)
	}
	b.processed = processed
	b.succeeded = succeeded
	b.failed = failed
	return nil
}

// CompleteBatch stamps the batch as finished.
func (m *MemoryProvider) CompleteBatch(_ context.Context, batchID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.batches[batchID]
	if !ok {
		return fmt.Errorf("complete batch: unknown batch %s", batchID)
	}
	b.completedAt = time.Now().UTC()
	return nil
}

// Status reports a job's current queue status, for tests and diagnostics.
func (m *MemoryProvider) Status(id string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return "", false
	}
	return j.status, true
}
