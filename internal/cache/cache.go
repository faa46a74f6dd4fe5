// Package cache keeps recent search results so repeat queries inside the
// freshness window skip the navigate/extract path.
package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/FranksOps/sift/internal/serp"
)

// DefaultTTL is the freshness window for cached results.
const DefaultTTL = 10 * time.Minute

// ErrEmptyResults is returned by Set for an empty result list. Caching an
// empty list would serve a failed retrieval as a genuine "nothing found".
var ErrEmptyResults = errors.New("cache: refusing to store empty results")

// Entry is one cached query.
type Entry struct {
	Query    string        `json:"query"`
	Results  []serp.Result `json:"results"`
	Limit    int           `json:"limit"`
	StoredAt time.Time     `json:"stored_at"`
}

// Covers reports whether the entry can answer a request for limit results.
// An entry fetched with a smaller limit may be missing results the caller wants.
func (e Entry) Covers(limit int) bool {
	return e.Limit >= limit || len(e.Results) < e.Limit
}

// Store is a query-keyed result cache.
type Store interface {
	Get(ctx context.Context, key string) (Entry, bool)
	Set(ctx context.Context, key string, e Entry) error
	Len(ctx context.Context) int
}

// Key normalizes a query into a cache key.
func Key(query string) string {
	return strings.ToLower(strings.Join(strings.Fields(query), " "))
}

// Memory is an in-process Store. Expired entries are dropped when read.
type Memory struct {
	mu      sync.Mutex
	entries map[string]Entry
	ttl     time.Duration
	now     func() time.Time
}

var _ Store = (*Memory)(nil)

// NewMemory returns a Memory store. A zero ttl uses DefaultTTL; a nil clock
// uses time.Now.
func NewMemory(ttl time.Duration, now func() time.Time) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if now == nil {
		now = time.Now
	}
	return &Memory{entries: make(map[string]Entry), ttl: ttl, now: now}
}

// Get returns the entry for key if it is still fresh.
func (m *Memory) Get(_ context.Context, key string) (Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return Entry{}, false
	}
	if m.now().Sub(e.StoredAt) > m.ttl {
		delete(m.entries, key)
		return Entry{}, false
	}
	return e, true
}

// Set stores e under key, stamping StoredAt.
func (m *Memory) Set(_ context.Context, key string, e Entry) error {
	if len(e.Results) == 0 {
		return ErrEmptyResults
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	e.Results = append([]serp.Result(nil), e.Results...)
	e.StoredAt = m.now()
	m.entries[key] = e
	return nil
}

// Len returns the number of stored entries, including ones that have expired
// but not yet been read.
func (m *Memory) Len(_ context.Context) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
