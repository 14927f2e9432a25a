package jobqueue

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/otaviobraga/registry-harvester/internal/scraper"
)

// RESTConfig points the client at a PostgREST-style API.
type RESTConfig struct {
	BaseURL string
	APIKey  string
	// PriorityTable is drained before Table on every fetch.
	PriorityTable string
	Table         string
	ResultsTable  string
	BatchTable    string
	Timeout       time.Duration
}

// RESTProvider talks to the queue over a PostgREST-style HTTP API.
type RESTProvider struct {
	cfg    RESTConfig
	client *resty.Client
	logger *zap.Logger
}

// NewREST builds a REST-backed queue provider.
func NewREST(cfg RESTConfig, logger *zap.Logger) *RESTProvider {
	if cfg.PriorityTable == "" {
		cfg.PriorityTable = "jobs_priority"
	}
	if cfg.Table == "" {
		cfg.Table = "jobs"
	}
	if cfg.ResultsTable == "" {
		cfg.ResultsTable = "results"
	}
	if cfg.BatchTable == "" {
		cfg.BatchTable = "batches"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client := resty.New()
	client.SetBaseURL(cfg.BaseURL)
	client.SetTimeout(cfg.Timeout)
	client.SetHeader("Content-Type", "application/json")
	if cfg.APIKey != "" {
		client.SetHeader("apikey", cfg.APIKey)
		client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	}

	return &RESTProvider{cfg: cfg, client: client, logger: logger}
}

type jobRow struct {
	ID string `json:"id"`
}

// FetchPending drains the priority table first, then tops up from the
// regular table.
func (p *RESTProvider) FetchPending(ctx context.Context, limit int) ([]Job, error) {
	if limit <= 0 {
		limit = 50
	}

	jobs := make([]Job, 0, limit)
	priority, err := p.fetchTable(ctx, p.cfg.PriorityTable, limit)
	if err != nil {
		return nil, err
	}
	for _, row := range priority {
		jobs = append(jobs, Job{ID: row.ID, Priority: true})
	}

	if remaining := limit - len(jobs); remaining > 0 {
		regular, err := p.fetchTable(ctx, p.cfg.Table, remaining)
		if err != nil {
			return nil, err
		}
		for _, row := range regular {
			jobs = append(jobs, Job{ID: row.ID})
		}
	}

	if len(jobs) == 0 {
		return nil, ErrNoPendingJobs
	}
	p.logger.Debug("fetched pending jobs",
		zap.Int("count", len(jobs)),
		zap.Int("limit", limit),
	)
	return jobs, nil
}

func (p *RESTProvider) fetchTable(ctx context.Context, table string, limit int) ([]jobRow, error) {
	var rows []jobRow
	resp, err := p.client.R().
		SetContext(ctx).
		SetQueryParam("status", "eq."+StatusPending).
		SetQueryParam("order", "created_at.asc").
		SetQueryParam("limit", fmt.Sprintf("%d", limit)).
		SetQueryParam("select", "id").
		SetResult(&rows).
		Get("/" + table)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", table, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetch %s: status %d: %s", table, resp.StatusCode(), resp.String())
	}
	return rows, nil
}

// Claim marks jobs as processing under the worker tag, split per table.
func (p *RESTProvider) Claim(ctx context.Context, jobs []Job, workerTag string) error {
	return p.setStatus(ctx, jobs, map[string]any{
		"status":        StatusProcessing,
		"processing_by": workerTag,
	})
}

// MarkSuccess flags jobs as done.
func (p *RESTProvider) MarkSuccess(ctx context.Context, jobs []Job) error {
	return p.setStatus(ctx, jobs, map[string]any{"status": StatusSuccess})
}

// MarkError flags jobs as failed.
func (p *RESTProvider) MarkError(ctx context.Context, jobs []Job) error {
	return p.setStatus(ctx, jobs, map[string]any{"status": StatusError})
}

func (p *RESTProvider) setStatus(ctx context.Context, jobs []Job, patch map[string]any) error {
	priority, regular := SplitByPriority(jobs)
	if err := p.patchTable(ctx, p.cfg.PriorityTable, priority, patch); err != nil {
		return err
	}
	return p.patchTable(ctx, p.cfg.Table, regular, patch)
}

func (p *RESTProvider) patchTable(ctx context.Context, table string, jobs []Job, patch map[string]any) error {
	if len(jobs) == 0 {
		return nil
	}
	resp, err := p.client.R().
		SetContext(ctx).
		SetQueryParam("id", "in.("+strings.Join(JobIDs(jobs), ",")+")").
		SetBody(patch).
		Patch("/" + table)
	if err != nil {
		return fmt.Errorf("patch %s: %w", table, err)
	}
	if resp.IsError() {
		return fmt.Errorf("patch %s: status %d: %s", table, resp.StatusCode(), resp.String())
	}
	return nil
}

type resultRow struct {
	JobID     string         `json:"job_id"`
	Success   bool           `json:"success"`
	Record    scraper.Record `json:"record"`
	Message   string         `json:"message,omitempty"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// UpsertResults writes outcomes with merge-duplicates semantics so a
// reprocessed job overwrites its earlier row instead of conflicting.
func (p *RESTProvider) UpsertResults(ctx context.Context, outcomes []scraper.Outcome) error {
	if len(outcomes) == 0 {
		return nil
	}
	rows := make([]resultRow, len(outcomes))
	now := time.Now().UTC()
	for i, o := range outcomes {
		row := resultRow{
			JobID:     o.JobID,
			Success:   o.Success,
			Message:   o.Err,
			UpdatedAt: now,
		}
		if o.Record != nil {
			row.Record = *o.Record
		}
		rows[i] = row
	}

	resp, err := p.client.R().
		SetContext(ctx).
		SetHeader("Prefer", "resolution=merge-duplicates").
		SetBody(rows).
		Post("/" + p.cfg.ResultsTable)
	if err != nil {
		return fmt.Errorf("upsert results: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("upsert results: status %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

// Results returns the most recently updated persisted results.
func (p *RESTProvider) Results(ctx context.Context, limit int) ([]StoredResult, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []StoredResult
	resp, err := p.client.R().
		SetContext(ctx).
		SetQueryParam("order", "updated_at.desc").
		SetQueryParam("limit", fmt.Sprintf("%d", limit)).
		SetResult(&rows).
		Get("/" + p.cfg.ResultsTable)
	if err != nil {
		return nil, fmt.Errorf("fetch results: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetch results: status %d: %s", resp.StatusCode(), resp.String())
	}
	return rows, nil
}

type batchRow struct {
	ID string `json:"id"`
}

// CreateBatch opens a progress row and returns its id.
func (p *RESTProvider) CreateBatch(ctx context.Context, total int) (string, error) {
	body := map[string]any{
		"id":         uuid.NewString(),
		"total":      total,
		"started_at": time.Now().UTC(),
	}
	var created []batchRow
	resp, err := p.client.R().
		SetContext(ctx).
		SetHeader("Prefer", "return=representation").
		SetBody(body).
		SetResult(&created).
		Post("/" + p.cfg.BatchTable)
	if err != nil {
		return "", fmt.Errorf("create batch: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("create batch: status %d: %s", resp.StatusCode(), resp.String())
	}
	if len(created) == 0 {
		return "", fmt.Errorf("create batch: empty response")
	}
	return created[0].ID, nil
}

// UpdateBatchProgress records running counters for the batch.
func (p *RESTProvider) UpdateBatchProgress(ctx context.Context, batchID string, processed, succeeded, failed int) error {
	resp, err := p.client.R().
		SetContext(ctx).
		SetQueryParam("id", "eq."+batchID).
		SetBody(map[string]any{
			"processed": processed,
			"succeeded": succeeded,
			"failed":    failed,
		}).
		Patch("/" + p.cfg.BatchTable)
	if err != nil {
		return fmt.Errorf("update batch %s: %w", batchID, err)
	}
	if resp.IsError() {
		return fmt.Errorf("update batch %s: status %d: %s", batchID, resp.StatusCode(), resp.String())
	}
	return nil
}

// CompleteBatch stamps the batch as finished.
func (p *RESTProvider) CompleteBatch(ctx context.Context, batchID string) error {
	resp, err := p.client.R().
		SetContext(ctx).
		SetQueryParam("id", "eq."+batchID).
		SetBody(map[string]any{"completed_at": time.Now().UTC()}).
		Patch("/" + p.cfg.BatchTable)
	if err != nil {
		return fmt.Errorf("complete batch %s: %w", batchID, err)
	}
	if resp.IsError() {
		return fmt.Errorf("complete batch %s: status %d: %s", batchID, resp.StatusCode(), resp.String())
	}
	return nil
}
