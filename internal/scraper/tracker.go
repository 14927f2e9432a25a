package scraper

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// TrackerConfig tunes the failure window and the cooldown it triggers.
type TrackerConfig struct {
	// Window is how far back failures count toward the threshold.
	Window time.Duration
	// Threshold is the number of in-window failures that triggers a cooldown.
	Threshold int
	// Cooldown is the fixed pause applied once triggered.
	Cooldown time.Duration
	// ProgressEvery controls how often the cooldown logs remaining time.
	ProgressEvery time.Duration
}

// DefaultTrackerConfig treats any 2 failures within 10 minutes as systemic
// blocking and backs off globally for 20 minutes.
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		Window:        600 * time.Second,
		Threshold:     2,
		Cooldown:      1200 * time.Second,
		ProgressEvery: 120 * time.Second,
	}
}

// FailureTracker is the one piece of state shared across concurrent job
// tasks. Every read-modify-write happens under the mutex.
type FailureTracker struct {
	mu          sync.Mutex
	cfg         TrackerConfig
	window      []time.Time
	lifetime    int
	coolingDown bool

	clock Clock
	sleep func(ctx context.Context, d time.Duration) error

	logger *zap.Logger
}

// NewFailureTracker builds a tracker with the given config. A zero-value
// field falls back to the default policy.
func NewFailureTracker(cfg TrackerConfig, logger *zap.Logger) *FailureTracker {
	def := DefaultTrackerConfig()
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}
	if cfg.ProgressEvery <= 0 {
		cfg.ProgressEvery = def.ProgressEvery
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FailureTracker{
		cfg:    cfg,
		clock:  systemClock{},
		sleep:  Wait,
		logger: logger,
	}
}

// RecordFailure appends the current timestamp to the rolling window.
func (t *FailureTracker) RecordFailure() {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.clock.Now()
	t.window = append(t.window, now)
	t.lifetime++
	t.pruneLocked(now)
	t.logger.Warn("failure recorded",
		zap.Int("lifetime_failures", t.lifetime),
		zap.Int("recent_failures", len(t.window)),
	)
}

// RecordSuccess hard-resets the tracker. It is idempotent: repeated calls
// with no intervening failure keep the window empty.
func (t *FailureTracker) RecordSuccess() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.lifetime > 0 {
		t.logger.Info("success after failures, resetting window",
			zap.Int("lifetime_failures", t.lifetime))
	}
	t.window = nil
	t.lifetime = 0
	t.coolingDown = false
}

// ShouldCooldown prunes the window and reports whether the threshold holds.
func (t *FailureTracker) ShouldCooldown() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pruneLocked(t.clock.Now())
	return len(t.window) >= t.cfg.Threshold
}

// ApplyCooldownIfNeeded suspends the caller for the full cooldown period if
// the threshold holds, logging coarse progress. The window is cleared
// unconditionally when the pause ends, regardless of failures recorded while
// paused; the penalty is fixed, not accumulating.
func (t *FailureTracker) ApplyCooldownIfNeeded(ctx context.Context) error {
	if !t.ShouldCooldown() {
		return nil
	}

	t.mu.Lock()
	t.coolingDown = true
	cooldown := t.cfg.Cooldown
	tick := t.cfg.ProgressEvery
	t.mu.Unlock()

	t.logger.Warn("failure threshold reached, entering cooldown",
		zap.Duration("cooldown", cooldown))

	for elapsed := time.Duration(0); elapsed < cooldown; elapsed += tick {
		step := tick
		if remaining := cooldown - elapsed; remaining < step {
			step = remaining
		}
		if err := t.sleep(ctx, step); err != nil {
			t.endCooldown()
			return err
		}
		if left := cooldown - elapsed - step; left > 0 {
			t.logger.Info("cooldown in progress", zap.Duration("remaining", left))
		}
	}

	t.logger.Info("cooldown complete, resuming")
	t.endCooldown()
	return nil
}

// CoolingDown reports whether a cooldown pause is currently in effect.
func (t *FailureTracker) CoolingDown() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.coolingDown
}

func (t *FailureTracker) endCooldown() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.window = nil
	t.coolingDown = false
}

// pruneLocked drops window entries older than the configured window.
// Callers must hold the mutex.
func (t *FailureTracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-t.cfg.Window)
	kept := t.window[:0]
	for _, ts := range t.window {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	t.window = kept
}
