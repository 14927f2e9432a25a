package scraper

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Engine runs a batch of job ids through a fixed-size session pool, one
// chunk at a time. Inside a chunk every job runs concurrently on its own
// slot; chunks never overlap.
type Engine struct {
	cfg     Config
	scraper JobScraper
	tracker *FailureTracker
	logger  *zap.Logger
	limiter *rate.Limiter

	// Injectable pacing hooks; tests replace them to run instantly.
	sleep      func(ctx context.Context, d time.Duration) error
	stagger    func(slot int) time.Duration
	chunkPause func() time.Duration
	jobDelay   func() time.Duration
}

// NewEngine wires an engine over the given scraper and failure tracker.
func NewEngine(cfg Config, scraper JobScraper, tracker *FailureTracker, logger *zap.Logger) *Engine {
	if cfg.PoolSize < 1 {
		cfg.PoolSize = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		cfg:     cfg,
		scraper: scraper,
		tracker: tracker,
		logger:  logger,
		sleep:   Wait,
		stagger: staggerDelay,
		chunkPause: func() time.Duration {
			return 8*time.Second + time.Duration(rand.Int63n(int64(4*time.Second)))
		},
		jobDelay: func() time.Duration {
			return Sample(RandomKind())
		},
	}
	if cfg.RatePerHour > 0 {
		e.limiter = rate.NewLimiter(rate.Every(time.Hour/time.Duration(cfg.RatePerHour)), 1)
	}
	return e
}

// staggerDelay spreads the starts within a chunk so sessions never hit the
// site in lockstep. Slot 0 starts immediately; later slots wait longer the
// higher their index.
func staggerDelay(slot int) time.Duration {
	if slot <= 0 {
		return 0
	}
	min := 6*time.Second + time.Duration(slot)*2*time.Second
	max := 12*time.Second + time.Duration(slot)*3*time.Second
	return min + time.Duration(rand.Int63n(int64(max-min)))
}

type slotResult struct {
	jobID string
	rec   Record
	err   error
}

// Run processes jobIDs in chunks of PoolSize and returns one Outcome per
// job. Outcomes are appended in completion order, not submission order.
// onResult, when non-nil, fires synchronously after each job settles.
//
// A cancelled context stops the run between jobs; outcomes already produced
// are returned alongside the context error.
func (e *Engine) Run(ctx context.Context, jobIDs []string, onResult ProgressFunc) ([]Outcome, error) {
	total := len(jobIDs)
	outcomes := make([]Outcome, 0, total)
	if total == 0 {
		return outcomes, nil
	}

	e.logger.Info("run starting",
		zap.Int("jobs", total),
		zap.Int("pool_size", e.cfg.PoolSize),
	)

	completed := 0
	for start := 0; start < total; start += e.cfg.PoolSize {
		end := start + e.cfg.PoolSize
		if end > total {
			end = total
		}
		chunk := jobIDs[start:end]

		if e.tracker != nil {
			if e.tracker.ShouldCooldown() {
				CooldownsEntered.Inc()
			}
			if err := e.tracker.ApplyCooldownIfNeeded(ctx); err != nil {
				return outcomes, err
			}
		}

		results := make(chan slotResult, len(chunk))
		for slot, jobID := range chunk {
			go e.runJob(ctx, slot, jobID, results)
		}

		for range chunk {
			res := <-results
			outcome := e.settle(res)
			outcomes = append(outcomes, outcome)
			completed++
			if onResult != nil {
				onResult(outcome, completed, total)
			}
		}

		if err := ctx.Err(); err != nil {
			return outcomes, err
		}

		if end < total {
			if err := e.sleep(ctx, e.chunkPause()); err != nil {
				return outcomes, err
			}
		}
	}

	e.logger.Info("run complete",
		zap.Int("jobs", total),
		zap.Int("succeeded", countSuccesses(outcomes)),
	)
	return outcomes, nil
}

func (e *Engine) runJob(ctx context.Context, slot int, jobID string, results chan<- slotResult) {
	if err := e.sleep(ctx, e.stagger(slot)); err != nil {
		results <- slotResult{jobID: jobID, err: err}
		return
	}
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			results <- slotResult{jobID: jobID, err: err}
			return
		}
	}
	if err := e.sleep(ctx, e.jobDelay()); err != nil {
		results <- slotResult{jobID: jobID, err: err}
		return
	}

	began := time.Now()
	rec, err := e.scraper.Scrape(ctx, slot, jobID)
	JobDuration.Observe(time.Since(began).Seconds())
	results <- slotResult{jobID: jobID, rec: rec, err: err}
}

// settle folds a slot result into an Outcome and updates the shared failure
// window. ErrNoData counts as success: the site answered, there is simply
// nothing to extract.
func (e *Engine) settle(res slotResult) Outcome {
	switch {
	case res.err == nil:
		if e.tracker != nil {
			e.tracker.RecordSuccess()
		}
		JobsSucceeded.Inc()
		rec := res.rec
		return Outcome{JobID: res.jobID, Success: true, Record: &rec}

	case errors.Is(res.err, ErrNoData):
		if e.tracker != nil {
			e.tracker.RecordSuccess()
		}
		JobsSucceeded.Inc()
		JobsEmpty.Inc()
		e.logger.Info("job has no data", zap.String("job_id", res.jobID))
		return Outcome{JobID: res.jobID, Success: true}

	default:
		if e.tracker != nil {
			e.tracker.RecordFailure()
		}
		JobsFailed.Inc()
		e.logger.Warn("job failed",
			zap.String("job_id", res.jobID),
			zap.Error(res.err),
		)
		return Outcome{JobID: res.jobID, Success: false, Err: res.err.Error()}
	}
}

func countSuccesses(outcomes []Outcome) int {
	n := 0
	for _, o := range outcomes {
		if o.Success {
			n++
		}
	}
	return n
}
