// Package retrieval runs the search strategies in order and turns their
// failures into an empty result set. Blocks, timeouts and markup drift are
// normal here; a caller only ever sees results or nothing.
package retrieval

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/FranksOps/sift/internal/serp"
)

var (
	// ErrBlocked means the engine served a block or challenge page.
	ErrBlocked = errors.New("retrieval: blocked by engine")
	// ErrNoResults means a page loaded but nothing could be extracted.
	ErrNoResults = errors.New("retrieval: no results extracted")
)

// Strategy is one way of getting a results page.
type Strategy interface {
	Name() string
	Retrieve(ctx context.Context, query string, max int) ([]serp.Result, error)
}

// Orchestrator tries each strategy once, in order, and returns the first
// non-empty result set.
type Orchestrator struct {
	strategies []Strategy
	logger     *slog.Logger
}

var _ serp.Provider = (*Orchestrator)(nil)

// NewOrchestrator returns an Orchestrator over strategies.
func NewOrchestrator(logger *slog.Logger, strategies ...Strategy) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{strategies: strategies, logger: logger}
}

// Strategies returns the configured strategy names in order.
func (o *Orchestrator) Strategies() []string {
	names := make([]string, 0, len(o.strategies))
	for _, s := range o.strategies {
		names = append(names, s.Name())
	}
	return names
}

// Search implements serp.Provider. The error is always nil; when every
// strategy fails the result is an empty, non-nil slice.
func (o *Orchestrator) Search(ctx context.Context, query string, max int) ([]serp.Result, error) {
	start := time.Now()
	for _, s := range o.strategies {
		if ctx.Err() != nil {
			o.logger.Warn("search abandoned", slog.String("query", query), slog.String("error", ctx.Err().Error()))
			break
		}

		results, err := s.Retrieve(ctx, query, max)
		if err != nil {
			o.logger.Warn("strategy failed",
				slog.String("query", query),
				slog.String("strategy", s.Name()),
				slog.String("error", err.Error()),
			)
			continue
		}
		if len(results) == 0 {
			o.logger.Info("strategy returned no results", slog.String("query", query), slog.String("strategy", s.Name()))
			continue
		}

		if max > 0 && len(results) > max {
			results = results[:max]
		}
		o.logger.Info("search succeeded",
			slog.String("query", query),
			slog.String("strategy", s.Name()),
			slog.Int("results", len(results)),
			slog.Duration("duration", time.Since(start)),
		)
		return results, nil
	}

	o.logger.Warn("all strategies exhausted", slog.String("query", query), slog.Duration("duration", time.Since(start)))
	return []serp.Result{}, nil
}
