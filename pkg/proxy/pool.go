// Package proxy rotates egress through a list of proxies and benches the ones
// that keep failing.
package proxy

import (
	"bufio"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"
)

var (
	// ErrNilProxy is returned when a nil URL is reported.
	ErrNilProxy = errors.New("proxy: url cannot be nil")
	// ErrNotFound is returned when a reported URL is not in the pool.
	ErrNotFound = errors.New("proxy: not found in pool")
)

const (
	DefaultMaxFailures = 3
	DefaultCooldown    = 5 * time.Minute
)

// Config tunes a Pool. Zero values select the defaults.
type Config struct {
	// MaxFailures is the net failure count that benches a proxy.
	MaxFailures int `mapstructure:"max_failures"`
	// Cooldown is how long a benched proxy sits out.
	Cooldown time.Duration `mapstructure:"cooldown"`
	// Now overrides the clock, for tests.
	Now func() time.Time `mapstructure:"-"`
}

// Stats is a point-in-time health summary of the pool.
type Stats struct {
	Total    int `json:"total"`
	Healthy  int `json:"healthy"`
	Disabled int `json:"disabled"`
}

type member struct {
	url      *url.URL
	failures int
	benched  time.Time // zero when in rotation
}

func (m *member) usable(now time.Time) bool {
	return m.benched.IsZero() || now.After(m.benched)
}

// Pool hands out proxies round-robin. A nil *Pool is valid and never yields
// a proxy.
type Pool struct {
	cfg Config

	mu      sync.Mutex
	members []*member
	byURL   map[string]*member
	next    int
}

// NewPool returns an empty pool.
func NewPool(cfg Config) *Pool {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = DefaultMaxFailures
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Pool{cfg: cfg, byURL: make(map[string]*member)}
}

// LoadFile adds one proxy per line of path. Blank lines and lines starting
// with '#' are skipped.
func (p *Pool) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("proxy: open %s: %w", path, err)
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" && !strings.HasPrefix(line, "#") {
			lines = append(lines, line)
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("proxy: read %s: %w", path, err)
	}
	return p.Add(lines...)
}

// Add appends proxies to the rotation. A missing scheme defaults to http and
// duplicates are ignored.
func (p *Pool) Add(raw ...string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, s := range raw {
		if !strings.Contains(s, "://") {
			s = "http://" + s
		}
		u, err := url.Parse(s)
		if err != nil {
			return fmt.Errorf("proxy: parse %q: %w", s, err)
		}
		key := u.String()
		if _, dup := p.byURL[key]; dup {
			continue
		}
		m := &member{url: u}
		p.byURL[key] = m
		p.members = append(p.members, m)
	}
	return nil
}

// Len returns the number of proxies, benched or not.
func (p *Pool) Len() int {
	if p == nil {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.members)
}

// Next returns the next usable proxy, or nil when the pool is empty or every
// proxy is benched. A proxy whose cooldown has elapsed rejoins with a clean
// record.
func (p *Pool) Next() *url.URL {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.cfg.Now()
	for range p.members {
		m := p.members[p.next]
		p.next = (p.next + 1) % len(p.members)
		if !m.usable(now) {
			continue
		}
		if !m.benched.IsZero() {
			m.benched, m.failures = time.Time{}, 0
		}
		return m.url
	}
	return nil
}

// MarkSuccess forgives one prior failure of u.
func (p *Pool) MarkSuccess(u *url.URL) error {
	return p.report(u, func(m *member) {
		if m.failures > 0 {
			m.failures--
		}
	})
}

// MarkFailure counts a failure against u and benches it for the cooldown once
// the net count reaches MaxFailures.
func (p *Pool) MarkFailure(u *url.URL) error {
	return p.report(u, func(m *member) {
		m.failures++
		if m.failures >= p.cfg.MaxFailures {
			m.benched = p.cfg.Now().Add(p.cfg.Cooldown)
		}
	})
}

func (p *Pool) report(u *url.URL, apply func(*member)) error {
	if u == nil {
		return ErrNilProxy
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	m, ok := p.byURL[u.String()]
	if !ok {
		return ErrNotFound
	}
	apply(m)
	return nil
}

// Stats reports how many proxies are usable right now.
func (p *Pool) Stats() Stats {
	if p == nil {
		return Stats{}
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.cfg.Now()
	s := Stats{Total: len(p.members)}
	for _, m := range p.members {
		if m.usable(now) {
			s.Healthy++
		} else {
			s.Disabled++
		}
	}
	return s
}

// BrowserFlag formats u for Chrome's --proxy-server switch, which accepts
// scheme://host:port and rejects embedded credentials.
func BrowserFlag(u *url.URL) string {
	if u == nil {
		return ""
	}
	scheme := u.Scheme
	if scheme == "" {
		scheme = "http"
	}
	return scheme + "://" + u.Host
}
