// Package pipeline is the query service in front of retrieval: it validates
// and normalizes the request, consults the result cache and only then asks the
// provider to go to the network.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/FranksOps/sift/internal/cache"
	"github.com/FranksOps/sift/internal/metrics"
	"github.com/FranksOps/sift/internal/serp"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultResults    = 10
	DefaultMaxResults = 30
	// DefaultConcurrency bounds SearchBatch. Each search may hold a browser
	// session, so this stays small.
	DefaultConcurrency = 2
)

// ErrNoProvider is returned by New when no provider is configured.
var ErrNoProvider = errors.New("pipeline: provider is nil")

// Config wires a Service.
type Config struct {
	Provider serp.Provider
	// Cache defaults to an in-memory store with cache.DefaultTTL.
	Cache          cache.Store
	DefaultResults int
	MaxResults     int
	Concurrency    int
	Now            func() time.Time
	Logger         *slog.Logger
}

// Response is the answer to one query.
type Response struct {
	Query      string        `json:"query"`
	Results    []serp.Result `json:"results"`
	Count      int           `json:"count"`
	Cached     bool          `json:"cached"`
	SearchTime float64       `json:"search_time"` // seconds
	Timestamp  time.Time     `json:"timestamp"`
}

// Service answers search queries.
type Service struct {
	provider    serp.Provider
	cache       cache.Store
	defaultN    int
	maxN        int
	concurrency int
	now         func() time.Time
	logger      *slog.Logger
}

// New builds a Service from cfg.
func New(cfg Config) (*Service, error) {
	if cfg.Provider == nil {
		return nil, ErrNoProvider
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = DefaultMaxResults
	}
	if cfg.DefaultResults <= 0 {
		cfg.DefaultResults = DefaultResults
	}
	if cfg.DefaultResults > cfg.MaxResults {
		cfg.DefaultResults = cfg.MaxResults
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Cache == nil {
		cfg.Cache = cache.NewMemory(cache.DefaultTTL, cfg.Now)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Service{
		provider:    cfg.Provider,
		cache:       cfg.Cache,
		defaultN:    cfg.DefaultResults,
		maxN:        cfg.MaxResults,
		concurrency: cfg.Concurrency,
		now:         cfg.Now,
		logger:      cfg.Logger,
	}, nil
}

// Clamp maps a requested result count onto [1, MaxResults]; zero or negative
// means the default.
func (s *Service) Clamp(max int) int {
	if max <= 0 {
		return s.defaultN
	}
	if max > s.maxN {
		return s.maxN
	}
	return max
}

// CacheLen reports the number of cached queries.
func (s *Service) CacheLen(ctx context.Context) int {
	return s.cache.Len(ctx)
}

// Search returns up to max results for query. A blank query is the only error;
// a retrieval that finds nothing is an empty, successful response.
func (s *Service) Search(ctx context.Context, query string, max int) (*Response, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, serp.ErrEmptyQuery
	}
	max = s.Clamp(max)
	start := s.now()
	key := cache.Key(query)

	if e, ok := s.cache.Get(ctx, key); ok && e.Covers(max) {
		results := e.Results
		if len(results) > max {
			results = results[:max]
		}
		metrics.SearchesTotal.WithLabelValues("cache_hit").Inc()
		s.logger.Debug("cache hit", slog.String("query", query), slog.Int("results", len(results)))
		return s.respond(query, results, true, start), nil
	}

	results, err := s.provider.Search(ctx, query, max)
	if err != nil {
		// Providers report failure as an empty list; an error here still
		// degrades to "nothing found" for the caller.
		s.logger.Warn("provider failed", slog.String("query", query), slog.String("error", err.Error()))
		results = nil
	}
	if results == nil {
		results = []serp.Result{}
	}
	if len(results) > max {
		results = results[:max]
	}

	if len(results) == 0 {
		metrics.SearchesTotal.WithLabelValues("empty").Inc()
		return s.respond(query, results, false, start), nil
	}

	metrics.SearchesTotal.WithLabelValues("results").Inc()
	if err := s.cache.Set(ctx, key, cache.Entry{Query: query, Results: results, Limit: max}); err != nil {
		s.logger.Warn("cache store failed", slog.String("query", query), slog.String("error", err.Error()))
	}
	return s.respond(query, results, false, start), nil
}

func (s *Service) respond(query string, results []serp.Result, cached bool, start time.Time) *Response {
	now := s.now()
	return &Response{
		Query:      query,
		Results:    results,
		Count:      len(results),
		Cached:     cached,
		SearchTime: now.Sub(start).Seconds(),
		Timestamp:  now.UTC(),
	}
}

// SearchBatch runs Search for every distinct non-blank query with bounded
// concurrency and returns responses in input order. Duplicate and blank
// queries get nil entries.
func (s *Service) SearchBatch(ctx context.Context, queries []string, max int) ([]*Response, error) {
	out := make([]*Response, len(queries))
	seen := make(map[string]struct{}, len(queries))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for i, q := range queries {
		key := cache.Key(q)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			resp, err := s.Search(gCtx, q, max)
			if err != nil {
				return fmt.Errorf("pipeline: search %q: %w", q, err)
			}
			out[i] = resp
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return out, err
	}
	return out, nil
}
