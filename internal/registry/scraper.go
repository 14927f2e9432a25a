// Package registry drives a municipal property-registry portal: reaching
// the search page, submitting cadastral numbers, and extracting the typed
// record from the detail page.
package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/otaviobraga/registry-harvester/internal/captcha"
	"github.com/otaviobraga/registry-harvester/internal/nav"
	"github.com/otaviobraga/registry-harvester/internal/scraper"
)

// Browser is the per-slot session capability the driver needs. The session
// package's Session satisfies it.
type Browser interface {
	nav.Driver
	Navigate(ctx context.Context, url string) error
	Fill(ctx context.Context, selector, text string, perKey time.Duration) error
	Eval(ctx context.Context, script string, out any) error
	SubmitForm(ctx context.Context, selector string) error
	WaitVisible(ctx context.Context, selector string) error
}

// SessionFunc resolves the browser bound to a concurrency slot.
type SessionFunc func(slot int) Browser

// CaptchaSolver turns a challenge found on the page into a response token.
type CaptchaSolver interface {
	Solve(ctx context.Context, siteKey, pageURL string) (string, error)
}

// Config carries the portal entry point and pacing knobs.
type Config struct {
	PortalURL string
	// KeyDelay paces keystrokes when filling form inputs.
	KeyDelay time.Duration
	// MaxPages bounds address-search pagination.
	MaxPages int
}

// The cadastral search form splits the 11-digit id across four inputs.
var idInputs = []struct {
	selector string
	from, to int
}{
	{"#txtSetor", 0, 3},
	{"#txtQuadra", 3, 6},
	{"#txtLote", 6, 10},
	{"#txtDigito", 10, 11},
}

const (
	searchFormSelector   = "form#frmConsulta"
	searchButtonSelector = "#btnPesquisar"
	streetInputSelector  = "#txtEnderecoBusca"
	nextPageSelector     = "a#lnkProxima"
)

// Scraper implements the per-job work over one portal.
type Scraper struct {
	cfg      Config
	sessions SessionFunc
	nav      *nav.Navigator
	captcha  CaptchaSolver
	settle   func(ctx context.Context) error
	logger   *zap.Logger
}

// New builds a portal driver. Sessions are resolved per slot at scrape time.
func New(cfg Config, sessions SessionFunc, logger *zap.Logger) *Scraper {
	if cfg.KeyDelay <= 0 {
		cfg.KeyDelay = 120 * time.Millisecond
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scraper{
		cfg:      cfg,
		sessions: sessions,
		nav:      nav.New(searchTarget(), searchStrategies(), logger),
		settle: func(ctx context.Context) error {
			return scraper.Wait(ctx, scraper.Sample(scraper.KindQuick))
		},
		logger: logger,
	}
}

// WithCaptcha enables challenge solving before form submission.
func (s *Scraper) WithCaptcha(solver CaptchaSolver) *Scraper {
	s.captcha = solver
	return s
}

// searchTarget recognizes the cadastral search page.
func searchTarget() nav.Target {
	return nav.Target{
		Name: "cadastral-search",
		Match: func(location, content string) bool {
			return containsFold(location, "consulta") || containsFold(content, "frmConsulta")
		},
		SoftError: func(content string) bool {
			return containsFold(content, "página não encontrada") ||
				containsFold(content, "page not found") ||
				containsFold(content, "erro 404")
		},
	}
}

// searchStrategies lists the independent ways of reaching the search page,
// most reliable first.
func searchStrategies() []nav.Strategy {
	return []nav.Strategy{
		nav.Breadcrumb("#breadcrumb a[href*='consulta']"),
		nav.MenuLink("Consulta de Imóveis"),
		nav.DirectLink("/consulta/imovel.aspx"),
		nav.LabelledElement("span#lblConsultaImovel"),
		nav.SecondaryMenu(
			nav.Step{Selector: "#menuServicos"},
			nav.Step{Text: "Imóveis"},
		),
	}
}

// Scrape processes one cadastral number on the given slot: reach the search
// page, submit the id, extract the detail record.
func (s *Scraper) Scrape(ctx context.Context, slot int, jobID string) (scraper.Record, error) {
	if err := ValidateJobID(jobID); err != nil {
		return scraper.Record{}, err
	}
	b := s.sessions(slot)

	if err := b.Navigate(ctx, s.cfg.PortalURL); err != nil {
		return scraper.Record{}, err
	}
	s.dismissConsent(ctx, b)

	if err := s.nav.Reach(ctx, b); err != nil {
		return scraper.Record{}, err
	}

	if err := s.submitID(ctx, b, jobID); err != nil {
		return scraper.Record{}, err
	}

	content, err := b.Content(ctx)
	if err != nil {
		return scraper.Record{}, err
	}
	rec, err := ExtractRecord(content)
	if err != nil {
		return scraper.Record{}, fmt.Errorf("job %s: %w", jobID, err)
	}
	s.logger.Debug("record extracted",
		zap.Int("slot", slot),
		zap.String("job_id", jobID),
	)
	return rec, nil
}

// submitID types the id into the four split inputs and fires the search.
func (s *Scraper) submitID(ctx context.Context, b Browser, jobID string) error {
	for _, in := range idInputs {
		if err := b.Fill(ctx, in.selector, jobID[in.from:in.to], s.cfg.KeyDelay); err != nil {
			return err
		}
	}
	if err := s.settle(ctx); err != nil {
		return err
	}
	return s.submitSearch(ctx, b)
}

// submitSearch solves any challenge on the form, fires the search, and
// waits for the results to settle.
func (s *Scraper) submitSearch(ctx context.Context, b Browser) error {
	if err := s.solveChallenge(ctx, b); err != nil {
		return err
	}
	clicked, err := b.Click(ctx, searchButtonSelector)
	if err != nil {
		return err
	}
	if !clicked {
		if err := b.SubmitForm(ctx, searchFormSelector); err != nil {
			return err
		}
	}
	return s.settle(ctx)
}

// solveChallenge looks for a challenge widget on the current page and, when
// a solver is configured, injects the response token before submission.
func (s *Scraper) solveChallenge(ctx context.Context, b Browser) error {
	if s.captcha == nil {
		return nil
	}
	content, err := b.Content(ctx)
	if err != nil {
		return err
	}
	siteKey, found := captcha.ExtractSiteKey(content)
	if !found {
		return nil
	}
	location, err := b.Location(ctx)
	if err != nil {
		return err
	}
	token, err := s.captcha.Solve(ctx, siteKey, location)
	if err != nil {
		return fmt.Errorf("solve challenge: %w", err)
	}
	script := fmt.Sprintf(
		`(() => { const el = document.getElementById('g-recaptcha-response'); if (!el) return false; el.innerHTML = %q; return true; })()`,
		token,
	)
	var injected bool
	if err := b.Eval(ctx, script, &injected); err != nil {
		return fmt.Errorf("inject challenge token: %w", err)
	}
	if !injected {
		return fmt.Errorf("challenge response field missing")
	}
	s.logger.Info("challenge solved", zap.String("site_key", siteKey))
	return nil
}

// LookupAddress runs an address search on the given slot and walks every
// result page, bounded by MaxPages.
func (s *Scraper) LookupAddress(ctx context.Context, slot int, street string) ([]AddressRow, error) {
	if street == "" {
		return nil, fmt.Errorf("empty street query")
	}
	b := s.sessions(slot)

	if err := b.Navigate(ctx, s.cfg.PortalURL); err != nil {
		return nil, err
	}
	s.dismissConsent(ctx, b)

	if err := s.nav.Reach(ctx, b); err != nil {
		return nil, err
	}
	if err := b.Fill(ctx, streetInputSelector, street, s.cfg.KeyDelay); err != nil {
		return nil, err
	}
	if err := s.submitSearch(ctx, b); err != nil {
		return nil, err
	}

	var all []AddressRow
	for page := 1; page <= s.cfg.MaxPages; page++ {
		content, err := b.Content(ctx)
		if err != nil {
			return all, err
		}
		rows, err := ExtractRows(content)
		if err != nil {
			// A zero-results page is a valid outcome, not a failure.
			if errors.Is(err, scraper.ErrNoData) {
				break
			}
			return all, fmt.Errorf("page %d: %w", page, err)
		}
		all = append(all, rows...)

		if !HasNextPage(content) {
			break
		}
		clicked, err := b.Click(ctx, nextPageSelector)
		if err != nil || !clicked {
			break
		}
		if err := s.settle(ctx); err != nil {
			return all, err
		}
	}
	s.logger.Info("address lookup complete",
		zap.String("street", street),
		zap.Int("rows", len(all)),
	)
	return all, nil
}

// consentScripts are tried in order; portals vary the banner markup across
// deployments.
var consentScripts = []string{
	`(() => { const b = document.querySelector('#btnAceitarCookies'); if (b) { b.click(); return true; } return false; })()`,
	`(() => { const b = document.querySelector('button.cookie-accept'); if (b) { b.click(); return true; } return false; })()`,
	`(() => { for (const b of document.querySelectorAll('button')) { if (b.textContent.trim().toLowerCase() === 'aceitar') { b.click(); return true; } } return false; })()`,
}

// dismissConsent tries to close the cookie banner. Failures are ignored:
// the banner does not block form interaction on every deployment.
func (s *Scraper) dismissConsent(ctx context.Context, b Browser) {
	for _, script := range consentScripts {
		var dismissed bool
		if err := b.Eval(ctx, script, &dismissed); err != nil {
			continue
		}
		if dismissed {
			s.logger.Debug("consent banner dismissed")
			return
		}
	}
}

// ValidateJobID requires an 11-digit cadastral number.
func ValidateJobID(id string) error {
	if len(id) != 11 {
		return fmt.Errorf("job id %q: want 11 digits, got %d", id, len(id))
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return fmt.Errorf("job id %q: non-digit character", id)
		}
	}
	return nil
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
