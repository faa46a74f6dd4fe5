// Package scraper performs single plain-HTTP fetches of results pages with a
// rotated identity, a matching TLS fingerprint and optional proxy rotation.
package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/FranksOps/sift/internal/bypass"
	"github.com/FranksOps/sift/internal/fingerprint"
	"github.com/FranksOps/sift/internal/identity"
	"github.com/FranksOps/sift/internal/metrics"
	"github.com/FranksOps/sift/pkg/httpclient"
	"github.com/FranksOps/sift/pkg/proxy"
	"github.com/FranksOps/sift/pkg/ratelimit"
	"github.com/google/uuid"
)

type contextKey string

const proxyKey contextKey = "proxy_url"

// FetchConfig configures a Fetcher.
type FetchConfig struct {
	Timeout      time.Duration
	MaxRedirects int
	UseCookieJar bool
	ProxyPool    *proxy.Pool
	// Fingerprint pins a TLS profile. Empty or "auto" matches each request's
	// User-Agent.
	Fingerprint fingerprint.Profile
	Limiter     *ratelimit.Limiter
	// Detectors classify the response. Nil means bypass.DefaultDetectors().
	Detectors          []bypass.Detector
	MaxBodyBytes       int64
	InsecureSkipVerify bool
	Logger             *slog.Logger
}

// Response is the outcome of one fetch. Transport failures are reported in
// Error rather than as a Go error, so the caller can still record the attempt.
type Response struct {
	ID         string
	URL        string
	UserAgent  string
	Proxy      string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
	Verdict    bypass.Verdict
	CreatedAt  time.Time
	Error      string
}

// Failed reports whether the fetch produced no usable response.
func (r *Response) Failed() bool {
	return r.Error != "" || r.StatusCode == 0
}

// Fetcher performs single URL fetches.
type Fetcher struct {
	config FetchConfig
	client *httpclient.Client
	logger *slog.Logger
}

// NewFetcher initializes a new Fetcher with the given configuration.
// By holding a single client across requests, cookie jars (if configured)
// persist for the lifetime of the Fetcher.
func NewFetcher(cfg FetchConfig) (*Fetcher, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.Detectors == nil {
		cfg.Detectors = bypass.DefaultDetectors()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	// The proxy for each request travels in its context, so one transport set
	// can rotate proxies per request without being rebuilt.
	proxyFunc := func(req *http.Request) (*url.URL, error) {
		if u, ok := req.Context().Value(proxyKey).(*url.URL); ok && u != nil {
			return u, nil
		}
		return http.ProxyFromEnvironment(req)
	}

	transport, err := fingerprint.NewSet(cfg.Fingerprint, fingerprint.Options{
		Proxy:              proxyFunc,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	})
	if err != nil {
		return nil, fmt.Errorf("scraper: setup transport: %w", err)
	}

	client, err := httpclient.New(httpclient.Config{
		Timeout:      cfg.Timeout,
		MaxRedirects: cfg.MaxRedirects,
		UseCookieJar: cfg.UseCookieJar,
		Transport:    transport,
		MaxBodyBytes: cfg.MaxBodyBytes,
	})
	if err != nil {
		return nil, fmt.Errorf("scraper: create client: %w", err)
	}

	return &Fetcher{config: cfg, client: client, logger: cfg.Logger}, nil
}

// Fetch executes a GET request to targetURL presenting id, and classifies the
// response with the configured detectors.
func (f *Fetcher) Fetch(ctx context.Context, targetURL string, id identity.Identity) (*Response, error) {
	res := &Response{
		ID:        uuid.New().String(),
		URL:       targetURL,
		UserAgent: id.UserAgent,
		CreatedAt: time.Now().UTC(),
	}

	if err := f.config.Limiter.Wait(ctx); err != nil {
		res.Error = fmt.Sprintf("rate limiter failed: %v", err)
		return res, nil
	}

	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		res.Error = fmt.Sprintf("failed to create request: %v", err)
		res.Duration = time.Since(start)
		return res, nil
	}
	req.Header = id.Headers()

	activeProxy := f.config.ProxyPool.Next()
	if activeProxy != nil {
		res.Proxy = activeProxy.Redacted()
		req = req.WithContext(context.WithValue(req.Context(), proxyKey, activeProxy))
	}

	resp, err := f.client.Do(req.Context(), req)
	if err != nil {
		if activeProxy != nil {
			_ = f.config.ProxyPool.MarkFailure(activeProxy)
			metrics.ProxyFailures.WithLabelValues(activeProxy.Redacted()).Inc()
		}
		res.Error = fmt.Sprintf("request failed: %v", err)
		res.Duration = time.Since(start)
		f.logger.Debug("fetch failed", slog.String("url", targetURL), slog.String("error", err.Error()))
		return res, nil
	}

	if activeProxy != nil {
		_ = f.config.ProxyPool.MarkSuccess(activeProxy)
	}

	body, err := f.client.ReadBody(resp)
	if err != nil {
		res.Error = fmt.Sprintf("failed to read body: %v", err)
	}

	res.StatusCode = resp.StatusCode
	res.Headers = resp.Header
	res.Body = body
	res.Duration = time.Since(start)
	res.Verdict = bypass.Analyze(&bypass.Evidence{
		StatusCode: res.StatusCode,
		Headers:    res.Headers,
		Body:       res.Body,
	}, f.config.Detectors)

	f.logger.Debug("fetched",
		slog.String("url", targetURL),
		slog.Int("status", res.StatusCode),
		slog.Int("bytes", len(body)),
		slog.Bool("detected", res.Verdict.Detected),
		slog.String("detection_src", res.Verdict.Source),
		slog.Duration("duration", res.Duration),
	)

	return res, nil
}
