package scraper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubScraper struct {
	mu    sync.Mutex
	errs  map[string]error
	calls []string
	slots []int
}

func (s *stubScraper) Scrape(_ context.Context, slot int, jobID string) (Record, error) {
	s.mu.Lock()
	s.calls = append(s.calls, jobID)
	s.slots = append(s.slots, slot)
	err := s.errs[jobID]
	s.mu.Unlock()
	if err != nil {
		return Record{}, err
	}
	return Record{CadastralNumber: jobID, OwnerName: "owner of " + jobID}, nil
}

func newTestEngine(cfg Config, scraper JobScraper, tracker *FailureTracker) *Engine {
	e := NewEngine(cfg, scraper, tracker, zap.NewNop())
	e.sleep = func(context.Context, time.Duration) error { return nil }
	e.stagger = func(int) time.Duration { return 0 }
	e.chunkPause = func() time.Duration { return 0 }
	e.jobDelay = func() time.Duration { return 0 }
	return e
}

func jobIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("%011d", i+1)
	}
	return ids
}

func outcomeSet(outcomes []Outcome) map[string]Outcome {
	m := make(map[string]Outcome, len(outcomes))
	for _, o := range outcomes {
		m[o.JobID] = o
	}
	return m
}

func TestRunAllSucceed(t *testing.T) {
	ids := jobIDs(7)
	stub := &stubScraper{}
	e := newTestEngine(Config{PoolSize: 3}, stub, nil)

	outcomes, err := e.Run(context.Background(), ids, nil)
	require.NoError(t, err)
	require.Len(t, outcomes, len(ids))

	byID := outcomeSet(outcomes)
	for _, id := range ids {
		o, ok := byID[id]
		require.True(t, ok, "missing outcome for %s", id)
		assert.True(t, o.Success)
		require.NotNil(t, o.Record)
		assert.Equal(t, id, o.Record.CadastralNumber)
	}
}

func TestRunMixedFailures(t *testing.T) {
	ids := jobIDs(5)
	stub := &stubScraper{errs: map[string]error{
		ids[1]: ErrTargetUnreachable,
		ids[3]: ErrMalformedPage,
	}}
	e := newTestEngine(Config{PoolSize: 2}, stub, nil)

	outcomes, err := e.Run(context.Background(), ids, nil)
	require.NoError(t, err)
	require.Len(t, outcomes, len(ids))

	byID := outcomeSet(outcomes)
	assert.False(t, byID[ids[1]].Success)
	assert.Contains(t, byID[ids[1]].Err, "unreachable")
	assert.False(t, byID[ids[3]].Success)
	assert.True(t, byID[ids[0]].Success)
	assert.True(t, byID[ids[2]].Success)
	assert.True(t, byID[ids[4]].Success)
}

func TestRunNoDataIsSuccessWithoutRecord(t *testing.T) {
	stub := &stubScraper{errs: map[string]error{"00000000001": ErrNoData}}
	e := newTestEngine(Config{PoolSize: 1}, stub, nil)

	outcomes, err := e.Run(context.Background(), []string{"00000000001"}, nil)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].Success)
	assert.Nil(t, outcomes[0].Record)
	assert.Empty(t, outcomes[0].Err)
}

func TestRunChunksNeverExceedPoolSize(t *testing.T) {
	ids := jobIDs(10)
	stub := &stubScraper{}
	e := newTestEngine(Config{PoolSize: 4}, stub, nil)

	_, err := e.Run(context.Background(), ids, nil)
	require.NoError(t, err)

	// Slots are chunk-local indices, so none may reach the pool size.
	for _, slot := range stub.slots {
		assert.Less(t, slot, 4)
	}
	assert.Len(t, stub.calls, 10)
}

func TestRunProgressCallbackOrder(t *testing.T) {
	ids := jobIDs(4)
	stub := &stubScraper{errs: map[string]error{ids[2]: ErrMalformedPage}}
	e := newTestEngine(Config{PoolSize: 2}, stub, nil)

	var gotCompleted []int
	var gotTotals []int
	outcomes, err := e.Run(context.Background(), ids, func(_ Outcome, completed, total int) {
		gotCompleted = append(gotCompleted, completed)
		gotTotals = append(gotTotals, total)
	})
	require.NoError(t, err)
	require.Len(t, outcomes, 4)
	assert.Equal(t, []int{1, 2, 3, 4}, gotCompleted)
	assert.Equal(t, []int{4, 4, 4, 4}, gotTotals)
}

func TestRunAppliesCooldownBetweenChunks(t *testing.T) {
	ids := jobIDs(4)
	stub := &stubScraper{errs: map[string]error{
		ids[0]: ErrTargetUnreachable,
		ids[1]: ErrTargetUnreachable,
	}}

	tracker := NewFailureTracker(TrackerConfig{}, zap.NewNop())
	var trackerSlept time.Duration
	tracker.sleep = func(_ context.Context, d time.Duration) error {
		trackerSlept += d
		return nil
	}

	e := newTestEngine(Config{PoolSize: 2}, stub, tracker)
	outcomes, err := e.Run(context.Background(), ids, nil)
	require.NoError(t, err)
	require.Len(t, outcomes, 4)

	// Both first-chunk jobs failed, so the second chunk waited out the
	// full penalty before starting.
	assert.Equal(t, 1200*time.Second, trackerSlept)
}

func TestRunSuccessClearsFailureWindow(t *testing.T) {
	ids := jobIDs(3)
	stub := &stubScraper{errs: map[string]error{ids[0]: ErrTargetUnreachable}}

	tracker := NewFailureTracker(TrackerConfig{}, zap.NewNop())
	var trackerSlept time.Duration
	tracker.sleep = func(_ context.Context, d time.Duration) error {
		trackerSlept += d
		return nil
	}

	// Pool of 1 processes jobs strictly in order: fail, success, success.
	e := newTestEngine(Config{PoolSize: 1}, stub, tracker)
	outcomes, err := e.Run(context.Background(), ids, nil)
	require.NoError(t, err)
	require.Len(t, outcomes, 3)
	assert.Zero(t, trackerSlept)
}

func TestRunPausesBetweenChunksOnly(t *testing.T) {
	ids := jobIDs(5)
	e := newTestEngine(Config{PoolSize: 2}, &stubScraper{}, nil)

	pauses := 0
	e.chunkPause = func() time.Duration {
		pauses++
		return 0
	}

	outcomes, err := e.Run(context.Background(), ids, nil)
	require.NoError(t, err)
	require.Len(t, outcomes, 5)
	// Chunks of [2,2,1]: a pause after the first two chunks, none after
	// the last.
	assert.Equal(t, 2, pauses)
}

func TestRunEmptyJobList(t *testing.T) {
	e := newTestEngine(Config{PoolSize: 3}, &stubScraper{}, nil)
	outcomes, err := e.Run(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Empty(t, outcomes)
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	ids := jobIDs(6)
	stub := &stubScraper{}
	e := newTestEngine(Config{PoolSize: 2}, stub, nil)

	ctx, cancel := context.WithCancel(context.Background())
	var once sync.Once
	_, err := e.Run(ctx, ids, func(Outcome, int, int) {
		once.Do(cancel)
	})
	assert.ErrorIs(t, err, context.Canceled)
	// The first chunk still settles in full; later chunks never start.
	assert.Len(t, stub.calls, 2)
}

func TestNewEngineClampsPoolSize(t *testing.T) {
	e := NewEngine(Config{PoolSize: 0}, &stubScraper{}, nil, nil)
	assert.Equal(t, 1, e.cfg.PoolSize)
	assert.Nil(t, e.limiter)
}

func TestNewEngineLimiterEnabledByRate(t *testing.T) {
	e := NewEngine(Config{PoolSize: 2, RatePerHour: 60}, &stubScraper{}, nil, nil)
	require.NotNil(t, e.limiter)
}

func TestSettleWrappedNoData(t *testing.T) {
	e := newTestEngine(Config{PoolSize: 1}, &stubScraper{}, nil)
	o := e.settle(slotResult{jobID: "x", err: fmt.Errorf("lookup: %w", ErrNoData)})
	assert.True(t, o.Success)
	assert.Nil(t, o.Record)
}

func TestSettleUnknownError(t *testing.T) {
	e := newTestEngine(Config{PoolSize: 1}, &stubScraper{}, nil)
	o := e.settle(slotResult{jobID: "x", err: errors.New("boom")})
	assert.False(t, o.Success)
	assert.Equal(t, "boom", o.Err)
}
