// Package report aggregates run statistics: success and failure counts,
// throughput, and timing, both for the end-of-run summary and for the
// status server's live snapshot.
package report

import (
	"fmt"
	"sync"
	"time"

	"github.com/otaviobraga/registry-harvester/internal/scraper"
)

// Report is a point-in-time view of a run.
type Report struct {
	Total      int        `json:"total"`
	Processed  int        `json:"processed"`
	Succeeded  int        `json:"succeeded"`
	Failed     int        `json:"failed"`
	Empty      int        `json:"empty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	// JobsPerHour is throughput measured over the elapsed run time.
	JobsPerHour float64 `json:"jobs_per_hour"`
}

// Tracker accumulates outcomes as a run progresses. Safe for concurrent
// observers: the progress callback writes while the status server reads.
type Tracker struct {
	mu     sync.Mutex
	active bool
	report Report
	now    func() time.Time
}

// NewTracker builds an idle tracker.
func NewTracker() *Tracker {
	return &Tracker{now: time.Now}
}

// Start opens a run of the given size, resetting any previous report.
func (t *Tracker) Start(total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.active = true
	t.report = Report{
		Total:     total,
		StartedAt: t.now().UTC(),
	}
}

// Observe folds one outcome into the running counts.
func (t *Tracker) Observe(o scraper.Outcome) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.report.Processed++
	if o.Success {
		t.report.Succeeded++
		if o.Record == nil {
			t.report.Empty++
		}
	} else {
		t.report.Failed++
	}
}

// Finish closes the run.
func (t *Tracker) Finish() {
	t.mu.Lock()
	defer t.mu.Unlock()
	finished := t.now().UTC()
	t.report.FinishedAt = &finished
	t.active = false
}

// Snapshot returns the current report and whether a run has been started.
func (t *Tracker) Snapshot() (Report, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.report.StartedAt.IsZero() {
		return Report{}, false
	}
	r := t.report
	end := t.now().UTC()
	if r.FinishedAt != nil {
		end = *r.FinishedAt
		finished := *r.FinishedAt
		r.FinishedAt = &finished
	}
	if elapsed := end.Sub(r.StartedAt); elapsed > 0 {
		r.JobsPerHour = float64(r.Processed) / elapsed.Hours()
	}
	return r, true
}

// Active reports whether a run is in flight.
func (t *Tracker) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

// Summary renders the human-readable end-of-run line.
func (t *Tracker) Summary() string {
	r, ok := t.Snapshot()
	if !ok {
		return "no run recorded"
	}
	return fmt.Sprintf("processed %d/%d jobs: %d succeeded (%d empty), %d failed, %.1f jobs/hour",
		r.Processed, r.Total, r.Succeeded, r.Empty, r.Failed, r.JobsPerHour)
}
