// Package session manages headless Chrome tabs via chromedp. Each session
// owns its own browser process so a crash in one slot never takes down the
// others.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// Config controls browser startup and per-step behavior.
type Config struct {
	Headless bool
	// StepTimeout bounds every browser round-trip so a hung page surfaces
	// as a job failure instead of stalling its slot.
	StepTimeout time.Duration
	UserAgent   string
}

// stealthScript hides the most common automation tells before any page
// script runs.
const stealthScript = `
Object.defineProperty(navigator, 'webdriver', { get: () => undefined });
Object.defineProperty(navigator, 'languages', { get: () => ['pt-BR', 'pt', 'en'] });
Object.defineProperty(navigator, 'plugins', { get: () => [1, 2, 3, 4, 5] });
window.chrome = window.chrome || { runtime: {} };
`

// Session is one live browser connection. It is exclusively owned by one
// concurrency slot and never shared.
type Session struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	stepTimeout time.Duration
	logger      *zap.Logger
}

// New starts a browser process and opens a tab. The caller must Close the
// session when done.
func New(parent context.Context, cfg Config, logger *zap.Logger) (*Session, error) {
	if cfg.StepTimeout <= 0 {
		cfg.StepTimeout = 45 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.WindowSize(1920, 1080),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(parent, opts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	s := &Session{
		ctx:         tabCtx,
		cancel:      tabCancel,
		allocCancel: allocCancel,
		stepTimeout: cfg.StepTimeout,
		logger:      logger,
	}

	setup := []chromedp.Action{
		chromedp.ActionFunc(func(ctx context.Context) error {
			if err := network.Enable().Do(ctx); err != nil {
				return fmt.Errorf("enable network domain: %w", err)
			}
			if _, err := page.AddScriptToEvaluateOnNewDocument(stealthScript).Do(ctx); err != nil {
				return fmt.Errorf("install stealth script: %w", err)
			}
			if cfg.UserAgent != "" {
				if err := emulation.SetUserAgentOverride(cfg.UserAgent).Do(ctx); err != nil {
					return fmt.Errorf("set user-agent: %w", err)
				}
			}
			return nil
		}),
	}
	if err := chromedp.Run(tabCtx, setup...); err != nil {
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("start browser: %w", err)
	}
	return s, nil
}

// Close tears down the tab and its browser process.
func (s *Session) Close() {
	s.cancel()
	s.allocCancel()
}

// run executes actions against the tab under the step timeout.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	stepCtx, cancel := context.WithTimeout(s.ctx, s.stepTimeout)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- chromedp.Run(stepCtx, actions...) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		cancel()
		<-done
		return ctx.Err()
	}
}

// Navigate loads the URL and waits for the body to be ready.
func (s *Session) Navigate(ctx context.Context, url string) error {
	err := s.run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

// Location returns the tab's current URL.
func (s *Session) Location(ctx context.Context) (string, error) {
	var loc string
	if err := s.run(ctx, chromedp.Location(&loc)); err != nil {
		return "", fmt.Errorf("read location: %w", err)
	}
	return loc, nil
}

// Content returns the serialized DOM of the current page.
func (s *Session) Content(ctx context.Context) (string, error) {
	var html string
	if err := s.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("read content: %w", err)
	}
	return html, nil
}

// Back navigates one step back in session history.
func (s *Session) Back(ctx context.Context) error {
	if err := s.run(ctx, chromedp.NavigateBack()); err != nil {
		return fmt.Errorf("navigate back: %w", err)
	}
	return nil
}

// Click activates the first element matching the selector. It reports false
// without error when no such element exists, so callers can fall through to
// another strategy instead of waiting out a timeout.
func (s *Session) Click(ctx context.Context, selector string) (bool, error) {
	script := fmt.Sprintf(
		`(() => { const el = document.querySelector(%q); if (!el) return false; el.click(); return true; })()`,
		selector,
	)
	var clicked bool
	if err := s.run(ctx, chromedp.Evaluate(script, &clicked)); err != nil {
		return false, fmt.Errorf("click %s: %w", selector, err)
	}
	return clicked, nil
}

// ClickText activates the first anchor or button whose trimmed visible text
// equals the given text.
func (s *Session) ClickText(ctx context.Context, text string) (bool, error) {
	script := fmt.Sprintf(
		`(() => {
			const els = document.querySelectorAll('a, button, span');
			for (const el of els) {
				if (el.textContent.trim() === %q) { el.click(); return true; }
			}
			return false;
		})()`,
		text,
	)
	var clicked bool
	if err := s.run(ctx, chromedp.Evaluate(script, &clicked)); err != nil {
		return false, fmt.Errorf("click text %q: %w", text, err)
	}
	return clicked, nil
}

// Fill clears the input matched by selector and types text into it one rune
// at a time, pausing perKey between keystrokes so the input events pace
// like a person typing.
func (s *Session) Fill(ctx context.Context, selector, text string, perKey time.Duration) error {
	actions := []chromedp.Action{
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Clear(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery),
	}
	for _, r := range text {
		actions = append(actions,
			chromedp.SendKeys(selector, string(r), chromedp.ByQuery),
		)
		if perKey > 0 {
			actions = append(actions, chromedp.Sleep(perKey))
		}
	}
	if err := s.run(ctx, actions...); err != nil {
		return fmt.Errorf("fill %s: %w", selector, err)
	}
	return nil
}

// Eval runs a script in the page and decodes its result into out. Pass nil
// to discard the result.
func (s *Session) Eval(ctx context.Context, script string, out any) error {
	var action chromedp.Action
	if out == nil {
		action = chromedp.Evaluate(script, nil)
	} else {
		action = chromedp.Evaluate(script, out)
	}
	if err := s.run(ctx, action); err != nil {
		return fmt.Errorf("evaluate script: %w", err)
	}
	return nil
}

// WaitVisible blocks until the selector is visible or the step timeout
// expires.
func (s *Session) WaitVisible(ctx context.Context, selector string) error {
	if err := s.run(ctx, chromedp.WaitVisible(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("wait for %s: %w", selector, err)
	}
	return nil
}

// SubmitForm dispatches a submit on the form matched by selector.
func (s *Session) SubmitForm(ctx context.Context, selector string) error {
	script := fmt.Sprintf(
		`(() => { const f = document.querySelector(%q); if (!f) return false; f.submit ? f.submit() : f.click(); return true; })()`,
		selector,
	)
	var ok bool
	if err := s.run(ctx, chromedp.Evaluate(script, &ok)); err != nil {
		return fmt.Errorf("submit %s: %w", selector, err)
	}
	if !ok {
		return fmt.Errorf("submit %s: element not found", selector)
	}
	return nil
}
