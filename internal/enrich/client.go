// Package enrich wraps a third-party identity lookup API used to attach
// person data to extracted owner names.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// ErrDisabled means the client shut itself off after the upstream service
// started returning garbage; callers skip enrichment for the rest of the run.
var ErrDisabled = errors.New("enrichment disabled")

// ErrBadDocument means the document id cannot be queried.
var ErrBadDocument = errors.New("invalid document id")

// Person is the enrichment payload for one document id.
type Person struct {
	Document string `json:"document"`
	Name     string `json:"name"`
	Mother   string `json:"mother,omitempty"`
	Birth    string `json:"birth,omitempty"`
}

// Config points the client at the lookup service.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client queries the lookup service. It trips a breaker permanently for
// the process lifetime when the service responds with HTML instead of JSON,
// which is how this upstream signals an expired contract.
type Client struct {
	client   *resty.Client
	disabled atomic.Bool
	logger   *zap.Logger
}

// New builds an enrichment client.
func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client := resty.New()
	client.SetBaseURL(cfg.BaseURL)
	client.SetTimeout(cfg.Timeout)
	if cfg.APIKey != "" {
		client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	}
	return &Client{client: client, logger: logger}
}

// Lookup fetches person data for a document id.
func (c *Client) Lookup(ctx context.Context, document string) (Person, error) {
	if c.disabled.Load() {
		return Person{}, ErrDisabled
	}
	doc, err := SanitizeDocument(document)
	if err != nil {
		return Person{}, err
	}

	var person Person
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("document", doc).
		SetResult(&person).
		Get("/v1/person")
	if err != nil {
		return Person{}, fmt.Errorf("enrichment lookup: %w", err)
	}
	if isHTML(resp) {
		c.disabled.Store(true)
		c.logger.Warn("enrichment service returned html, disabling for this run")
		return Person{}, ErrDisabled
	}
	if resp.IsError() {
		return Person{}, fmt.Errorf("enrichment lookup: status %d", resp.StatusCode())
	}
	return person, nil
}

// Disabled reports whether the breaker has tripped.
func (c *Client) Disabled() bool {
	return c.disabled.Load()
}

func isHTML(resp *resty.Response) bool {
	ct := resp.Header().Get("Content-Type")
	if strings.Contains(ct, "text/html") {
		return true
	}
	body := strings.TrimSpace(resp.String())
	return strings.HasPrefix(body, "<!DOCTYPE") || strings.HasPrefix(body, "<html")
}

// SanitizeDocument normalizes a person document id: strips punctuation,
// rejects masked ids (registry pages redact digits with X), and left-pads
// to the canonical 11 digits.
func SanitizeDocument(document string) (string, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case '.', '-', '/', ' ':
			return -1
		}
		return r
	}, document)

	if cleaned == "" {
		return "", fmt.Errorf("%w: empty", ErrBadDocument)
	}
	if strings.ContainsAny(cleaned, "xX*") {
		return "", fmt.Errorf("%w: masked id %q", ErrBadDocument, document)
	}
	for _, r := range cleaned {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("%w: non-digit in %q", ErrBadDocument, document)
		}
	}
	if len(cleaned) > 11 {
		return "", fmt.Errorf("%w: too long %q", ErrBadDocument, document)
	}
	for len(cleaned) < 11 {
		cleaned = "0" + cleaned
	}
	return cleaned, nil
}
