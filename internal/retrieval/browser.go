package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/FranksOps/sift/internal/browser"
	"github.com/FranksOps/sift/internal/bypass"
	"github.com/FranksOps/sift/internal/extract"
	"github.com/FranksOps/sift/internal/identity"
	"github.com/FranksOps/sift/internal/serp"
	"github.com/FranksOps/sift/internal/storage"
	"github.com/FranksOps/sift/pkg/ratelimit"
)

// StrategyBrowser is the name the browser strategy records attempts under.
const StrategyBrowser = "browser"

const defaultCandidateLinks = 8

// DefaultBrowserPacing is the pause before each endpoint is loaded.
var DefaultBrowserPacing = ratelimit.Between(2*time.Second, 5*time.Second)

// Sessions hands out browser sessions. *browser.Pool implements it.
type Sessions interface {
	Acquire(ctx context.Context, id identity.Identity) (*browser.Session, error)
	Release(s *browser.Session)
}

var _ Sessions = (*browser.Pool)(nil)

// BrowserConfig configures a BrowserStrategy. Zero values take the defaults.
type BrowserConfig struct {
	Sessions  Sessions
	Navigator *browser.Navigator
	// Humanizer, if nil, skips the attended-visitor simulation.
	Humanizer  *browser.Humanizer
	Extractor  *extract.Extractor
	Engine     serp.Engine
	Identities identity.Source
	// State receives the session state after a successful search.
	State *browser.StateStore
	// StartCategory is the identity category for the first endpoint.
	StartCategory  identity.Category
	Pacing         ratelimit.Range
	CandidateLinks int
	Pacer          *ratelimit.Pacer
	Recorder       *Recorder
	Logger         *slog.Logger
}

// BrowserStrategy loads each endpoint in a fresh stealth session until one
// yields results. A block on one endpoint flips the identity category for
// the next.
type BrowserStrategy struct {
	cfg BrowserConfig
}

var _ Strategy = (*BrowserStrategy)(nil)

// NewBrowserStrategy builds a BrowserStrategy. Sessions are required.
func NewBrowserStrategy(cfg BrowserConfig) (*BrowserStrategy, error) {
	if cfg.Sessions == nil {
		return nil, errors.New("retrieval: browser strategy needs a session pool")
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
	if cfg.Pacer == nil {
		cfg.Pacer = ratelimit.NewPacer()
	}
	if cfg.Navigator == nil {
		cfg.Navigator = browser.NewNavigator(browser.NavigatorConfig{Pacer: cfg.Pacer, Logger: cfg.Logger})
	}
	if cfg.StartCategory == "" {
		cfg.StartCategory = identity.Crawler
	}
	if cfg.Pacing == (ratelimit.Range{}) {
		cfg.Pacing = DefaultBrowserPacing
	}
	if cfg.CandidateLinks <= 0 {
		cfg.CandidateLinks = defaultCandidateLinks
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &BrowserStrategy{cfg: cfg}, nil
}

func (b *BrowserStrategy) Name() string { return StrategyBrowser }

// Retrieve walks the endpoints in order. Only a failure to get a session at
// all ends the walk early.
func (b *BrowserStrategy) Retrieve(ctx context.Context, query string, max int) ([]serp.Result, error) {
	category := b.cfg.StartCategory
	lastErr := ErrNoResults

	for _, tmpl := range b.cfg.Engine.Endpoints {
		if _, err := b.cfg.Pacer.Pause(ctx, b.cfg.Pacing); err != nil {
			return nil, err
		}

		target := b.cfg.Engine.URL(tmpl, query)
		id := b.cfg.Identities.Next(category)
		attempt := &storage.Attempt{
			Query:     query,
			Strategy:  StrategyBrowser,
			Endpoint:  target,
			UserAgent: id.UserAgent,
			Category:  string(id.Category),
		}
		start := time.Now()

		sess, err := b.cfg.Sessions.Acquire(ctx, id)
		if err != nil {
			attempt.Error = err.Error()
			attempt.Duration = time.Since(start)
			b.cfg.Recorder.Record(ctx, attempt)
			return nil, fmt.Errorf("retrieval: acquire session: %w", err)
		}

		results, err := b.load(ctx, sess, target, max, attempt)
		b.cfg.Sessions.Release(sess)
		attempt.Duration = time.Since(start)
		b.cfg.Recorder.Record(ctx, attempt)

		switch {
		case errors.Is(err, ErrBlocked):
			b.cfg.Logger.Info("endpoint blocked, rotating identity category",
				slog.String("query", query),
				slog.String("endpoint", target),
				slog.String("category", string(category)),
			)
			category = category.Other()
			lastErr = err
		case err != nil:
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			b.cfg.Logger.Warn("endpoint failed", slog.String("query", query), slog.String("endpoint", target), slog.String("error", err.Error()))
			lastErr = err
		case len(results) > 0:
			return results, nil
		}
	}
	return nil, lastErr
}

// load runs one endpoint in sess and fills in attempt.
func (b *BrowserStrategy) load(ctx context.Context, sess *browser.Session, target string, max int, attempt *storage.Attempt) ([]serp.Result, error) {
	nav, err := b.cfg.Navigator.Navigate(ctx, sess.Page, target)
	if err != nil {
		attempt.Error = err.Error()
		return nil, fmt.Errorf("retrieval: navigate %s: %w", target, err)
	}
	b.cfg.Recorder.Dump(nav.HTML)

	if nav.Blocked() {
		attempt.Signal = string(bypass.Blocked)
		attempt.DetectionSrc = bypass.SourceBlockPage
		return nil, fmt.Errorf("%w (%q)", ErrBlocked, nav.Phrase)
	}

	if b.cfg.Humanizer != nil {
		links := b.cfg.Extractor.CandidateLinks(nav.HTML, b.cfg.CandidateLinks)
		b.cfg.Humanizer.Humanize(ctx, sess.Page, links)
	}

	// Extract from the classified results page: a click-through that failed
	// to come back leaves another site in the tab.
	results := b.cfg.Extractor.Extract(nav.HTML, max)
	attempt.Signal = string(signalFor(nav.HTML, results))
	attempt.ResultCount = len(results)
	if len(results) == 0 {
		return nil, ErrNoResults
	}

	if err := sess.SaveState(ctx, b.cfg.State); err != nil {
		b.cfg.Logger.Warn("failed to persist session state", slog.String("session", sess.ID), slog.String("error", err.Error()))
	}
	return results, nil
}
