// Package captcha wraps a solve-as-a-service API: submit a challenge, poll
// until a worker produces the token, inject the token into the page.
package captcha

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/otaviobraga/registry-harvester/internal/scraper"
)

// ErrUnsolvable means the service gave up on the challenge.
var ErrUnsolvable = errors.New("captcha unsolvable")

// Config points the solver at the service.
type Config struct {
	BaseURL string
	APIKey  string
	// PollInterval paces the result polling loop.
	PollInterval time.Duration
	// MaxWait bounds the whole solve.
	MaxWait time.Duration
}

// Solver submits reCAPTCHA challenges and polls for tokens.
type Solver struct {
	cfg    Config
	client *resty.Client
	sleep  func(ctx context.Context, d time.Duration) error
	logger *zap.Logger
}

// New builds a solver client.
func New(cfg Config, logger *zap.Logger) *Solver {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://2captcha.com"
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = 180 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client := resty.New()
	client.SetBaseURL(cfg.BaseURL)
	client.SetTimeout(30 * time.Second)
	return &Solver{cfg: cfg, client: client, sleep: scraper.Wait, logger: logger}
}

type apiResponse struct {
	Status  int    `json:"status"`
	Request string `json:"request"`
}

// Solve submits the site key and polls until the service returns a token.
func (s *Solver) Solve(ctx context.Context, siteKey, pageURL string) (string, error) {
	id, err := s.submit(ctx, siteKey, pageURL)
	if err != nil {
		return "", err
	}
	s.logger.Info("captcha submitted", zap.String("challenge_id", id))

	deadline := time.Now().Add(s.cfg.MaxWait)
	for time.Now().Before(deadline) {
		if err := s.sleep(ctx, s.cfg.PollInterval); err != nil {
			return "", err
		}
		token, ready, err := s.poll(ctx, id)
		if err != nil {
			return "", err
		}
		if ready {
			return token, nil
		}
	}
	return "", fmt.Errorf("captcha solve timed out after %s", s.cfg.MaxWait)
}

func (s *Solver) submit(ctx context.Context, siteKey, pageURL string) (string, error) {
	var out apiResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"key":       s.cfg.APIKey,
			"method":    "userrecaptcha",
			"googlekey": siteKey,
			"pageurl":   pageURL,
			"json":      "1",
		}).
		SetResult(&out).
		Post("/in.php")
	if err != nil {
		return "", fmt.Errorf("submit captcha: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("submit captcha: status %d", resp.StatusCode())
	}
	if out.Status != 1 {
		return "", fmt.Errorf("submit captcha rejected: %s", out.Request)
	}
	return out.Request, nil
}

func (s *Solver) poll(ctx context.Context, id string) (token string, ready bool, err error) {
	var out apiResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"key":    s.cfg.APIKey,
			"action": "get",
			"id":     id,
			"json":   "1",
		}).
		SetResult(&out).
		Get("/res.php")
	if err != nil {
		return "", false, fmt.Errorf("poll captcha: %w", err)
	}
	if resp.IsError() {
		return "", false, fmt.Errorf("poll captcha: status %d", resp.StatusCode())
	}
	if out.Status == 1 {
		return out.Request, true, nil
	}
	switch out.Request {
	case "CAPCHA_NOT_READY":
		return "", false, nil
	case "ERROR_CAPTCHA_UNSOLVABLE":
		return "", false, ErrUnsolvable
	default:
		return "", false, fmt.Errorf("poll captcha: %s", out.Request)
	}
}

// ExtractSiteKey pulls the reCAPTCHA site key out of page content.
func ExtractSiteKey(content string) (string, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return "", false
	}
	key, ok := doc.Find("div.g-recaptcha").Attr("data-sitekey")
	if !ok || key == "" {
		key, ok = doc.Find("[data-sitekey]").Attr("data-sitekey")
	}
	return key, ok && key != ""
}
