package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"time"
)

// DefaultMaxBodyBytes caps how much of a results page is read. Result pages
// are a few hundred KB; anything larger is not a page we can extract from.
const DefaultMaxBodyBytes = 4 << 20

// ErrNilContext is returned by Do when called without a context.
var ErrNilContext = errors.New("httpclient: context cannot be nil")

// Config tunes a Client.
type Config struct {
	Timeout time.Duration
	// MaxRedirects bounds redirect chains. Negative disables following.
	MaxRedirects int
	UseCookieJar bool
	// Transport carries proxy selection and the TLS fingerprint. Nil means
	// http.DefaultTransport.
	Transport http.RoundTripper
	// DefaultHeaders are set on every request that does not already carry them.
	DefaultHeaders http.Header
	// MaxBodyBytes limits ReadBody. Zero means DefaultMaxBodyBytes.
	MaxBodyBytes int64
}

// Client is an http.Client that stamps default headers on every request and
// bounds how much of a body it reads.
type Client struct {
	*http.Client
	headers http.Header
	maxBody int64
}

// New creates a new HTTP client based on the provided configuration.
func New(cfg Config) (*Client, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}

	c := &http.Client{
		Timeout:   cfg.Timeout,
		Transport: cfg.Transport,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			switch {
			case cfg.MaxRedirects < 0:
				return http.ErrUseLastResponse
			case len(via) >= cfg.MaxRedirects:
				return fmt.Errorf("httpclient: stopped after %d redirects", cfg.MaxRedirects)
			}
			return nil
		},
	}

	if cfg.UseCookieJar {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("httpclient: cookie jar: %w", err)
		}
		c.Jar = jar
	}

	return &Client{Client: c, headers: cfg.DefaultHeaders.Clone(), maxBody: cfg.MaxBodyBytes}, nil
}

// Do sends a copy of req bound to ctx. Headers already on req take precedence
// over the defaults.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}

	out := req.Clone(ctx)
	for k, vals := range c.headers {
		if out.Header.Get(k) == "" {
			out.Header[http.CanonicalHeaderKey(k)] = append([]string(nil), vals...)
		}
	}

	resp, err := c.Client.Do(out)
	if err != nil {
		return nil, fmt.Errorf("httpclient: %w", err)
	}
	return resp, nil
}

// ReadBody reads at most the configured body limit from resp and closes it.
func (c *Client) ReadBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody))
	if err != nil {
		return body, fmt.Errorf("httpclient: read body: %w", err)
	}
	return body, nil
}
