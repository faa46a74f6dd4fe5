// Package server exposes search and text classification over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/FranksOps/sift/internal/analyzer"
	"github.com/FranksOps/sift/internal/metrics"
	"github.com/FranksOps/sift/internal/pipeline"
	"github.com/FranksOps/sift/internal/serp"
	"github.com/FranksOps/sift/pkg/proxy"
)

const (
	DefaultAddr            = ":8080"
	DefaultUnhealthyErrors = 10
	DefaultShutdownTimeout = 10 * time.Second
)

// ErrNoSearcher is returned by New without a Searcher.
var ErrNoSearcher = errors.New("server: searcher is nil")

// Searcher answers queries. *pipeline.Service is the production implementation.
type Searcher interface {
	Search(ctx context.Context, query string, max int) (*pipeline.Response, error)
	CacheLen(ctx context.Context) int
}

var _ Searcher = (*pipeline.Service)(nil)

// Config wires a Server.
type Config struct {
	Addr     string
	Searcher Searcher
	// Classify defaults to analyzer.Classify.
	Classify func(text string) analyzer.Assessment
	// Strategies and Endpoints are reported by /status.
	Strategies []string
	Endpoints  []string
	// Proxies, if set, has its health reported by /status.
	Proxies *proxy.Pool
	// UnhealthyErrors is the error count above which /health reports 503.
	UnhealthyErrors int
	// ServeMetrics mounts the Prometheus handler at /metrics.
	ServeMetrics    bool
	ShutdownTimeout time.Duration
	Now             func() time.Time
	Logger          *slog.Logger
}

// Stats counts requests since start.
type Stats struct {
	SearchRequests         int64 `json:"search_requests"`
	ClassificationRequests int64 `json:"classification_requests"`
	Errors                 int64 `json:"errors"`
}

// Server is the HTTP front-end.
type Server struct {
	cfg    Config
	logger *slog.Logger
	start  time.Time
	srv    *http.Server

	searches        atomic.Int64
	classifications atomic.Int64
	failures        atomic.Int64
}

// New builds a Server. Nothing listens until Run.
func New(cfg Config) (*Server, error) {
	if cfg.Searcher == nil {
		return nil, ErrNoSearcher
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.Classify == nil {
		cfg.Classify = analyzer.Classify
	}
	if cfg.UnhealthyErrors <= 0 {
		cfg.UnhealthyErrors = DefaultUnhealthyErrors
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Server{cfg: cfg, logger: cfg.Logger, start: cfg.Now()}
	s.srv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s, nil
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /search", s.handleSearch)
	mux.HandleFunc("GET /classify", s.handleClassify)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /api/docs", s.handleDocs)
	mux.HandleFunc("GET /{$}", s.handleDocs)
	if s.cfg.ServeMetrics {
		mux.Handle("GET /metrics", metrics.Handler())
	}
	mux.HandleFunc("/", s.handleNotFound)
	return s.logRequests(mux)
}

// Stats returns the current counters.
func (s *Server) Stats() Stats {
	return Stats{
		SearchRequests:         s.searches.Load(),
		ClassificationRequests: s.classifications.Load(),
		Errors:                 s.failures.Load(),
	}
}

// Healthy reports whether the error count is within the threshold.
func (s *Server) Healthy() bool {
	return s.failures.Load() <= int64(s.cfg.UnhealthyErrors)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("server listening", slog.String("addr", s.cfg.Addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: listen %s: %w", s.cfg.Addr, err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: shutdown: %w", err)
		}
		s.logger.Info("server stopped")
		return nil
	})

	return g.Wait()
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		s.fail(w, http.StatusBadRequest, "Missing query parameter", "Use: /search?q=your search query")
		return
	}
	max, _ := strconv.Atoi(r.URL.Query().Get("max"))

	// A client that hangs up must not abort a browser session halfway; every
	// step below carries its own timeout.
	resp, err := s.cfg.Searcher.Search(context.WithoutCancel(r.Context()), query, max)
	if err != nil {
		if errors.Is(err, serp.ErrEmptyQuery) {
			s.fail(w, http.StatusBadRequest, "Missing query parameter", "Use: /search?q=your search query")
			return
		}
		s.logger.Error("search failed", slog.String("query", query), slog.String("error", err.Error()))
		s.fail(w, http.StatusInternalServerError, "Search failed", "Try a different query or check logs")
		return
	}

	s.searches.Add(1)
	writeJSON(w, http.StatusOK, resp)
}

type classifyMetadata struct {
	TextLength         int       `json:"text_length"`
	ClassificationTime float64   `json:"classification_time"` // seconds
	Timestamp          time.Time `json:"timestamp"`
}

type classifyResponse struct {
	analyzer.Assessment
	Metadata classifyMetadata `json:"metadata"`
}

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	text := strings.TrimSpace(r.URL.Query().Get("text"))
	if text == "" {
		s.fail(w, http.StatusBadRequest, "Missing text parameter", "Use: /classify?text=your text to analyze")
		return
	}

	start := s.cfg.Now()
	a := s.cfg.Classify(text)
	now := s.cfg.Now()

	s.classifications.Add(1)
	metrics.ClassificationsTotal.WithLabelValues(a.PrimaryState).Inc()
	writeJSON(w, http.StatusOK, classifyResponse{
		Assessment: a,
		Metadata: classifyMetadata{
			TextLength:         len([]rune(text)),
			ClassificationTime: now.Sub(start).Seconds(),
			Timestamp:          now.UTC(),
		},
	})
}

func (s *Server) status() string {
	if s.Healthy() {
		return "healthy"
	}
	return "unhealthy"
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	code := http.StatusOK
	if !s.Healthy() {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":    s.status(),
		"timestamp": s.cfg.Now().UTC(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	uptime := s.cfg.Now().Sub(s.start)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         s.status(),
		"uptime_seconds": uptime.Seconds(),
		"uptime_human":   uptime.Truncate(time.Second).String(),
		"statistics":     s.Stats(),
		"cache_entries":  s.cfg.Searcher.CacheLen(r.Context()),
		"strategies":     nonNil(s.cfg.Strategies),
		"endpoints":      nonNil(s.cfg.Endpoints),
		"proxies":        s.cfg.Proxies.Stats(),
		"api":            routes,
	})
}

type route struct {
	Method      string            `json:"method"`
	Description string            `json:"description"`
	Parameters  map[string]string `json:"parameters,omitempty"`
	Response    map[string]string `json:"response,omitempty"`
}

var routes = map[string]route{
	"/search": {
		Method:      http.MethodGet,
		Description: "Search DuckDuckGo for web results",
		Parameters:  map[string]string{"q": "Search query (required)", "max": "Maximum results (optional)"},
		Response: map[string]string{
			"query":       "original search query",
			"results":     "array of {title, url, snippet}",
			"count":       "number of results",
			"search_time": "search duration in seconds",
		},
	},
	"/classify": {
		Method:      http.MethodGet,
		Description: "Analyze text for psychological and emotional content",
		Parameters:  map[string]string{"text": "Text to analyze (required)"},
		Response: map[string]string{
			"primary_state":          "psychological state",
			"confidence":             "confidence score (0-1)",
			"tool":                   "recommended tool",
			"psychological_profile":  "valence, arousal, engagement and regulation",
			"emotion_percentages":    "emotion analysis with percentages",
			"psychological_insights": "human-readable insights",
		},
	},
	"/status":   {Method: http.MethodGet, Description: "System status and statistics"},
	"/health":   {Method: http.MethodGet, Description: "Liveness check; 503 when unhealthy"},
	"/api/docs": {Method: http.MethodGet, Description: "This document"},
}

var available = []string{"/search", "/classify", "/status", "/health", "/api/docs", "/metrics"}

func (s *Server) handleDocs(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":        "sift",
		"description": "DuckDuckGo search retrieval with psychological text classification",
		"endpoints":   routes,
	})
}

func (s *Server) handleNotFound(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]any{
		"error":               "Endpoint not found",
		"available_endpoints": available,
		"suggestion":          "Check /api/docs for API documentation",
	})
}

// fail counts the error and writes the JSON error body.
func (s *Server) fail(w http.ResponseWriter, code int, msg, suggestion string) {
	s.failures.Add(1)
	writeJSON(w, code, map[string]string{"error": msg, "suggestion": suggestion})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		label := r.URL.Path
		if _, known := routes[label]; !known && label != "/metrics" {
			label = "other"
		}
		metrics.HTTPRequests.WithLabelValues(label, strconv.Itoa(sw.code)).Inc()
		s.logger.Debug("request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", sw.code),
			slog.Duration("duration", time.Since(start)),
		)
	})
}
