package serp

import (
	"context"
	"errors"
)

// ErrEmptyQuery is returned when a query is blank after trimming.
var ErrEmptyQuery = errors.New("serp: empty query")

// Result is one organic search result in page presentation order.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Provider abstracts a search backend that returns up to limit results for a
// query. Implementations report "nothing found" as an empty slice, not an error.
type Provider interface {
	Search(ctx context.Context, query string, limit int) ([]Result, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, query string, limit int) ([]Result, error)

// Search calls f.
func (f ProviderFunc) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	return f(ctx, query, limit)
}
