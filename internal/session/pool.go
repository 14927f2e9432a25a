package session

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/otaviobraga/registry-harvester/internal/scraper"
)

// defaultUserAgents is the identity rotation list. Sessions pick from it
// round-robin by slot index so no two slots present the same browser.
var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/118.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
}

// Pool is a fixed arena of sessions, one per concurrency slot. Slot i is
// statically bound to the i-th concurrently running job of a chunk.
type Pool struct {
	sessions []*Session
	logger   *zap.Logger
}

// NewPool starts size sessions. A failure starting any of them tears down
// the ones already started and aborts the whole run.
func NewPool(ctx context.Context, size int, cfg Config, logger *zap.Logger) (*Pool, error) {
	if size < 1 {
		return nil, fmt.Errorf("%w: pool size %d", scraper.ErrSessionStart, size)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	pool := &Pool{
		sessions: make([]*Session, 0, size),
		logger:   logger,
	}
	for i := 0; i < size; i++ {
		sessionCfg := cfg
		if sessionCfg.UserAgent == "" {
			sessionCfg.UserAgent = UserAgentForSlot(i)
		}
		s, err := New(ctx, sessionCfg, logger.With(zap.Int("slot", i)))
		if err != nil {
			pool.Shutdown()
			return nil, fmt.Errorf("%w: slot %d: %v", scraper.ErrSessionStart, i, err)
		}
		pool.sessions = append(pool.sessions, s)
		logger.Info("session started",
			zap.Int("slot", i),
			zap.String("user_agent", sessionCfg.UserAgent),
		)
	}
	return pool, nil
}

// UserAgentForSlot returns the rotating identity assigned to a slot.
func UserAgentForSlot(slot int) string {
	if slot < 0 {
		slot = 0
	}
	return defaultUserAgents[slot%len(defaultUserAgents)]
}

// Session returns the session owned by the slot.
func (p *Pool) Session(slot int) *Session {
	return p.sessions[slot]
}

// Size returns the number of live sessions.
func (p *Pool) Size() int {
	return len(p.sessions)
}

// Shutdown closes every session, tolerating individual close failures.
func (p *Pool) Shutdown() {
	for i, s := range p.sessions {
		if s == nil {
			continue
		}
		s.Close()
		p.logger.Debug("session closed", zap.Int("slot", i))
	}
	p.sessions = nil
}
