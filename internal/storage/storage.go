package storage

import (
	"context"
	"sort"
	"time"
)

// Attempt records one retrieval attempt: a single strategy against a single
// endpoint for a single query.
type Attempt struct {
	ID           string        `json:"id"`
	Query        string        `json:"query"`
	Strategy     string        `json:"strategy"`
	Endpoint     string        `json:"endpoint"`
	UserAgent    string        `json:"user_agent"`
	Category     string        `json:"category"`
	StatusCode   int           `json:"status_code"`
	Signal       string        `json:"signal"`        // "blocked", "empty" or "usable"
	DetectionSrc string        `json:"detection_src"` // e.g. "BlockPage", "Cloudflare"
	ResultCount  int           `json:"result_count"`
	Duration     time.Duration `json:"duration"`
	CreatedAt    time.Time     `json:"created_at"`
	Error        string        `json:"error"` // non-empty if the attempt failed before classification
}

// Blocked reports whether the engine withheld results from this attempt.
func (a *Attempt) Blocked() bool {
	return a.Signal == "blocked"
}

// Succeeded reports whether the attempt produced results.
func (a *Attempt) Succeeded() bool {
	return a.Error == "" && a.ResultCount > 0
}

// Filter allows querying for specific Attempts.
type Filter struct {
	Query    string
	Strategy string
	Blocked  *bool
	Since    *time.Time
	Limit    int
	Offset   int
}

// Matches reports whether a satisfies the non-paging parts of f. File-backed
// stores filter in memory with it.
func (f Filter) Matches(a *Attempt) bool {
	if f.Query != "" && a.Query != f.Query {
		return false
	}
	if f.Strategy != "" && a.Strategy != f.Strategy {
		return false
	}
	if f.Blocked != nil && a.Blocked() != *f.Blocked {
		return false
	}
	if f.Since != nil && a.CreatedAt.Before(*f.Since) {
		return false
	}
	return true
}

// Page orders attempts newest first and applies Offset and Limit.
func (f Filter) Page(attempts []*Attempt) []*Attempt {
	sort.SliceStable(attempts, func(i, j int) bool {
		return attempts[i].CreatedAt.After(attempts[j].CreatedAt)
	})
	if f.Offset > 0 {
		if f.Offset >= len(attempts) {
			return []*Attempt{}
		}
		attempts = attempts[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(attempts) {
		attempts = attempts[:f.Limit]
	}
	return attempts
}

// Backend defines the interface for storing and querying attempts.
type Backend interface {
	Save(ctx context.Context, attempt *Attempt) error
	Query(ctx context.Context, filter Filter) ([]*Attempt, error)
	Close() error
}
