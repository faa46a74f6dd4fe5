// Package metrics exposes sift's Prometheus collectors.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/FranksOps/sift/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	AttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sift_retrieval_attempts_total",
			Help: "Total number of retrieval attempts by strategy and outcome",
		},
		[]string{"strategy", "status", "signal", "detection_src"},
	)

	AttemptDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sift_retrieval_attempt_duration_seconds",
			Help:    "Duration of retrieval attempts in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"strategy"},
	)

	ResultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sift_results_extracted_total",
			Help: "Total search results extracted across all attempts",
		},
		[]string{"strategy"},
	)

	SearchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sift_searches_total",
			Help: "Total search requests by outcome (cache_hit, results, empty)",
		},
		[]string{"outcome"},
	)

	ClassificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sift_classifications_total",
			Help: "Total text classifications by primary state",
		},
		[]string{"state"},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sift_http_requests_total",
			Help: "Total API requests by route and status code",
		},
		[]string{"route", "code"},
	)

	BrowserLaunches = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sift_browser_launches_total",
			Help: "Total number of browser processes launched",
		},
	)

	ProxyFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sift_proxy_failures_total",
			Help: "Total number of proxy failures during fetches",
		},
		[]string{"proxy_url"},
	)
)

// RecordAttempt updates the attempt metrics from a stored attempt.
func RecordAttempt(a *storage.Attempt) {
	if a == nil {
		return
	}

	statusStr := strconv.Itoa(a.StatusCode)
	if a.Error != "" {
		statusStr = "error"
	}

	AttemptsTotal.WithLabelValues(a.Strategy, statusStr, a.Signal, a.DetectionSrc).Inc()
	AttemptDuration.WithLabelValues(a.Strategy).Observe(a.Duration.Seconds())
	ResultsTotal.WithLabelValues(a.Strategy).Add(float64(a.ResultCount))
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Server encapsulates an HTTP server for Prometheus metrics.
type Server struct {
	srv *http.Server
}

// Start begins listening on the specified port and exposes /metrics.
func Start(port int, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		// Suppress the error from intentional shutdown
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", slog.String("error", err.Error()))
		}
	}()

	return &Server{srv: srv}
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	if s == nil || s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
