// Package nav drives a browser session from whatever page it currently
// shows to a required target page. Registry portals intermittently serve
// broken menu links and soft error pages, so a single selector is not
// enough: the navigator tries independent fallback strategies in priority
// order, detects soft errors, backtracks, and gives up after a bounded
// number of attempts.
package nav

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/otaviobraga/registry-harvester/internal/scraper"
)

// Driver is the slice of browser capability the navigator needs. The
// session package implements it over a live Chrome tab.
type Driver interface {
	// Location returns the current page URL.
	Location(ctx context.Context) (string, error)
	// Content returns the serialized DOM of the current page.
	Content(ctx context.Context) (string, error)
	// Back navigates one step back in session history.
	Back(ctx context.Context) error
	// Click activates the first element matching the CSS selector.
	// Returns false without error when no such element exists.
	Click(ctx context.Context, selector string) (bool, error)
	// ClickText activates the first link whose visible text matches.
	// Returns false without error when no such link exists.
	ClickText(ctx context.Context, text string) (bool, error)
}

// Target identifies the page the navigator must land on.
type Target struct {
	// Name labels the target in logs and error messages.
	Name string
	// Match reports whether the current page is the target.
	Match func(location, content string) bool
	// SoftError recognizes pages that loaded fine at the transport level
	// but semantically mean "not found" or "broken". Optional.
	SoftError func(content string) bool
}

// Strategy is one independent way of reaching a target from elsewhere in
// the site. Attempt reports whether it actually activated navigation.
type Strategy interface {
	Name() string
	Attempt(ctx context.Context, d Driver) (bool, error)
}

// Navigator holds the target plus its ordered fallback strategies.
type Navigator struct {
	target      Target
	strategies  []Strategy
	maxAttempts int
	settle      func(ctx context.Context) error
	logger      *zap.Logger
}

// New builds a navigator for the target with the given strategies, tried
// in the order supplied.
func New(target Target, strategies []Strategy, logger *zap.Logger) *Navigator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Navigator{
		target:      target,
		strategies:  strategies,
		maxAttempts: 4,
		settle: func(ctx context.Context) error {
			return scraper.Wait(ctx, scraper.Sample(scraper.KindQuick))
		},
		logger: logger,
	}
}

// Reach walks the session to the target page. Each attempt first checks
// whether the session is already there; a soft error backtracks one step;
// anything else fires the first strategy that activates. Exhausting the
// attempt bound returns an error wrapping scraper.ErrTargetUnreachable.
func (n *Navigator) Reach(ctx context.Context, d Driver) error {
	for attempt := 1; attempt <= n.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		onTarget, softErr, err := n.check(ctx, d)
		if err != nil {
			n.logger.Warn("page check failed",
				zap.String("target", n.target.Name),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			if serr := n.settle(ctx); serr != nil {
				return serr
			}
			continue
		}
		if onTarget {
			n.logger.Debug("on target page",
				zap.String("target", n.target.Name),
				zap.Int("attempt", attempt),
			)
			return nil
		}
		if softErr {
			n.logger.Warn("soft error page, backtracking",
				zap.String("target", n.target.Name),
				zap.Int("attempt", attempt),
			)
			if err := d.Back(ctx); err != nil {
				n.logger.Warn("backtrack failed", zap.Error(err))
			}
			if err := n.settle(ctx); err != nil {
				return err
			}
			continue
		}

		n.navigate(ctx, d, attempt)
		if err := n.settle(ctx); err != nil {
			return err
		}
	}
	return fmt.Errorf("%w: %s after %d attempts",
		scraper.ErrTargetUnreachable, n.target.Name, n.maxAttempts)
}

// check classifies the current page: on target, soft error, or elsewhere.
func (n *Navigator) check(ctx context.Context, d Driver) (onTarget, softErr bool, err error) {
	loc, err := d.Location(ctx)
	if err != nil {
		return false, false, fmt.Errorf("read location: %w", err)
	}
	content, err := d.Content(ctx)
	if err != nil {
		return false, false, fmt.Errorf("read content: %w", err)
	}
	if n.target.Match(loc, content) {
		return true, false, nil
	}
	if n.target.SoftError != nil && n.target.SoftError(content) {
		return false, true, nil
	}
	return false, false, nil
}

// navigate fires strategies in priority order until one activates. A
// strategy error is logged and the next one tried; activation failures are
// resolved by the re-check on the following attempt.
func (n *Navigator) navigate(ctx context.Context, d Driver, attempt int) {
	for _, s := range n.strategies {
		activated, err := s.Attempt(ctx, d)
		if err != nil {
			n.logger.Debug("strategy errored",
				zap.String("strategy", s.Name()),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			continue
		}
		if activated {
			n.logger.Debug("strategy activated",
				zap.String("strategy", s.Name()),
				zap.String("target", n.target.Name),
				zap.Int("attempt", attempt),
			)
			return
		}
	}
	n.logger.Warn("no navigation strategy activated",
		zap.String("target", n.target.Name),
		zap.Int("attempt", attempt),
	)
}

// WithSettle overrides the inter-action pause. Used by tests.
func (n *Navigator) WithSettle(f func(ctx context.Context) error) *Navigator {
	n.settle = f
	return n
}

// WithMaxAttempts overrides the attempt bound.
func (n *Navigator) WithMaxAttempts(max int) *Navigator {
	if max > 0 {
		n.maxAttempts = max
	}
	return n
}
