package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/FranksOps/sift/internal/bypass"
	"github.com/FranksOps/sift/internal/extract"
	"github.com/FranksOps/sift/internal/identity"
	"github.com/FranksOps/sift/internal/scraper"
	"github.com/FranksOps/sift/internal/serp"
	"github.com/FranksOps/sift/internal/storage"
	"github.com/FranksOps/sift/pkg/ratelimit"
)

// StrategyHTTP is the name the plain-HTTP strategy records attempts under.
const StrategyHTTP = "http"

// DefaultHTTPPacing is the pause before a plain fetch.
var DefaultHTTPPacing = ratelimit.Between(0, 500*time.Millisecond)

// Fetcher performs one plain-HTTP fetch. *scraper.Fetcher implements it.
type Fetcher interface {
	Fetch(ctx context.Context, url string, id identity.Identity) (*scraper.Response, error)
}

var _ Fetcher = (*scraper.Fetcher)(nil)

// HTTPConfig configures an HTTPStrategy. Zero values take the defaults.
type HTTPConfig struct {
	Fetcher    Fetcher
	Identities identity.Source
	Extractor  *extract.Extractor
	Engine     serp.Engine
	Pacing     ratelimit.Range
	Pacer      *ratelimit.Pacer
	Recorder   *Recorder
	Logger     *slog.Logger
}

// HTTPStrategy fetches the engine's script-free endpoint without a browser.
// It is cheap and usually blocked first, so it runs before the browser.
type HTTPStrategy struct {
	cfg HTTPConfig
}

var _ Strategy = (*HTTPStrategy)(nil)

// NewHTTPStrategy builds an HTTPStrategy. A Fetcher is required.
func NewHTTPStrategy(cfg HTTPConfig) (*HTTPStrategy, error) {
	if cfg.Fetcher == nil {
		return nil, errors.New("retrieval: http strategy needs a fetcher")
	}
	if cfg.Engine.Domain == "" {
		cfg.Engine = serp.DuckDuckGo()
	}
	if cfg.Identities == nil {
		cfg.Identities = identity.NewRotator(identity.Config{})
	}
	if cfg.Extractor == nil {
		cfg.Extractor = extract.New(extract.Config{Engine: cfg.Engine, Logger: cfg.Logger})
	}
	if cfg.Pacing == (ratelimit.Range{}) {
		cfg.Pacing = DefaultHTTPPacing
	}
	if cfg.Pacer == nil {
		cfg.Pacer = ratelimit.NewPacer()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &HTTPStrategy{cfg: cfg}, nil
}

func (h *HTTPStrategy) Name() string { return StrategyHTTP }

// Retrieve fetches and extracts one results page.
func (h *HTTPStrategy) Retrieve(ctx context.Context, query string, max int) ([]serp.Result, error) {
	if _, err := h.cfg.Pacer.Pause(ctx, h.cfg.Pacing); err != nil {
		return nil, err
	}

	id := h.cfg.Identities.Next(identity.Browser)
	target := h.cfg.Engine.URL(h.cfg.Engine.HTMLEndpoint, query)
	attempt := &storage.Attempt{
		Query:     query,
		Strategy:  StrategyHTTP,
		Endpoint:  target,
		UserAgent: id.UserAgent,
		Category:  string(id.Category),
	}

	resp, err := h.cfg.Fetcher.Fetch(ctx, target, id)
	if err != nil {
		attempt.Error = err.Error()
		h.cfg.Recorder.Record(ctx, attempt)
		return nil, fmt.Errorf("retrieval: http fetch: %w", err)
	}
	attempt.StatusCode = resp.StatusCode
	attempt.Duration = resp.Duration

	if resp.Failed() {
		attempt.Error = resp.Error
		h.cfg.Recorder.Record(ctx, attempt)
		return nil, fmt.Errorf("retrieval: http fetch: %s", resp.Error)
	}

	html := string(resp.Body)
	h.cfg.Recorder.Dump(html)

	if resp.Verdict.Detected {
		attempt.Signal = string(bypass.Blocked)
		attempt.DetectionSrc = resp.Verdict.Source
		h.cfg.Recorder.Record(ctx, attempt)
		return nil, fmt.Errorf("%w (%s, status %d)", ErrBlocked, resp.Verdict.Source, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		attempt.Error = fmt.Sprintf("unexpected status %d", resp.StatusCode)
		h.cfg.Recorder.Record(ctx, attempt)
		return nil, fmt.Errorf("retrieval: http fetch: %s", attempt.Error)
	}

	results := h.cfg.Extractor.Extract(html, max)
	attempt.Signal = string(signalFor(html, results))
	attempt.ResultCount = len(results)
	h.cfg.Recorder.Record(ctx, attempt)

	if len(results) == 0 {
		return nil, ErrNoResults
	}
	return results, nil
}

// signalFor labels a page that passed the block checks.
func signalFor(html string, results []serp.Result) bypass.Signal {
	if len(results) == 0 && len(html) == 0 {
		return bypass.Empty
	}
	return bypass.Usable
}
