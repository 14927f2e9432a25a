package scraper

import (
	"context"
	"errors"
	"time"
)

// Record holds the typed fields extracted from one registry detail page.
type Record struct {
	CadastralNumber string `json:"cadastral_number,omitempty"`
	OwnerName       string `json:"owner_name,omitempty"`
	BuyerName       string `json:"buyer_name,omitempty"`
	Street          string `json:"street,omitempty"`
	Number          string `json:"number,omitempty"`
	Complement      string `json:"complement,omitempty"`
	District        string `json:"district,omitempty"`
	PostalCode      string `json:"postal_code,omitempty"`
}

// Outcome is the terminal result of processing one job. It is produced once
// and never mutated; persistence is the caller's responsibility.
type Outcome struct {
	JobID   string  `json:"job_id"`
	Success bool    `json:"success"`
	Record  *Record `json:"record,omitempty"`
	Err     string  `json:"error,omitempty"`
}

// ProgressFunc is invoked synchronously once per completed job with the
// running completed count and the run total. It must not block for long;
// durable writes belong on the caller's side of the callback.
type ProgressFunc func(outcome Outcome, completed, total int)

// Config carries the engine knobs loaded from configuration.
type Config struct {
	// PoolSize is the number of concurrent browser sessions (>= 1).
	PoolSize int
	// RatePerHour caps job starts across the whole run. Zero disables the
	// uniform extra delay; jitter and staggering still apply.
	RatePerHour int
}

// Error taxonomy shared across the engine and its collaborators.
var (
	// ErrSessionStart means the browser pool could not be constructed.
	// It is the only error fatal to a whole run.
	ErrSessionStart = errors.New("session start failed")

	// ErrTargetUnreachable means the reachability machine exhausted its
	// navigation attempts without landing on the required page.
	ErrTargetUnreachable = errors.New("target page unreachable")

	// ErrMalformedPage means the page loaded but the expected structural
	// markers are absent, usually a sign the site is blocking us.
	ErrMalformedPage = errors.New("malformed page")

	// ErrNoData is not a failure: the site reported zero results for the
	// job. Callers map it to a successful Outcome without a Record.
	ErrNoData = errors.New("no data for job")
)

// Clock returns the current time; injectable for tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// JobScraper performs the per-job work on a given pool slot: navigate the
// slot's session to the record and extract it. Implementations live with the
// per-site glue; the engine only sees this contract.
type JobScraper interface {
	Scrape(ctx context.Context, slot int, jobID string) (Record, error)
}
