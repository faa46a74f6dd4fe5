package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/FranksOps/sift/internal/storage"
)

func TestSQLiteBackend(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "sift.db")
	b, err := New(dsn)
	if err != nil {
		t.Fatalf("Failed to create SQLite backend: %v", err)
	}
	defer b.Close()

	ctx := context.Background()
	now := time.Now().UTC()

	a := &storage.Attempt{
		ID:           "test1234",
		Query:        "python programming",
		Strategy:     "http",
		Endpoint:     "https://html.duckduckgo.com/html/?q=python+programming",
		UserAgent:    "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)",
		Category:     "crawler",
		StatusCode:   202,
		Signal:       "blocked",
		DetectionSrc: "BlockPage",
		Duration:     50 * time.Millisecond,
		CreatedAt:    now,
	}

	if err := b.Save(ctx, a); err != nil {
		t.Fatalf("Failed to save attempt: %v", err)
	}

	results, err := b.Query(ctx, storage.Filter{Query: "python programming"})
	if err != nil {
		t.Fatalf("Failed to query attempts: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("Expected 1 attempt, got %d", len(results))
	}

	got := results[0]
	if got.ID != a.ID {
		t.Errorf("Expected ID %s, got %s", a.ID, got.ID)
	}
	if got.Endpoint != a.Endpoint {
		t.Errorf("Expected Endpoint %s, got %s", a.Endpoint, got.Endpoint)
	}
	if got.StatusCode != a.StatusCode {
		t.Errorf("Expected StatusCode %d, got %d", a.StatusCode, got.StatusCode)
	}
	if got.Signal != a.Signal || got.DetectionSrc != a.DetectionSrc {
		t.Errorf("Expected %s/%s, got %s/%s", a.Signal, a.DetectionSrc, got.Signal, got.DetectionSrc)
	}
	if got.Duration.Milliseconds() != a.Duration.Milliseconds() {
		t.Errorf("Expected Duration %v, got %v", a.Duration, got.Duration)
	}
	if got.CreatedAt.Unix() != a.CreatedAt.Unix() {
		t.Errorf("Expected CreatedAt %v, got %v", a.CreatedAt, got.CreatedAt)
	}

	past := now.Add(-1 * time.Hour)
	resultsSince, err := b.Query(ctx, storage.Filter{Since: &past})
	if err != nil {
		t.Fatalf("Failed to query attempts with Since: %v", err)
	}
	if len(resultsSince) != 1 {
		t.Fatalf("Expected 1 attempt, got %d", len(resultsSince))
	}

	boolTrue, boolFalse := true, false
	blocked, err := b.Query(ctx, storage.Filter{Blocked: &boolTrue})
	if err != nil {
		t.Fatalf("Failed to query blocked attempts: %v", err)
	}
	if len(blocked) != 1 {
		t.Fatalf("Expected 1 blocked attempt, got %d", len(blocked))
	}
	notBlocked, err := b.Query(ctx, storage.Filter{Blocked: &boolFalse})
	if err != nil {
		t.Fatalf("Failed to query unblocked attempts: %v", err)
	}
	if len(notBlocked) != 0 {
		t.Fatalf("Expected 0 attempts, got %d", len(notBlocked))
	}
}

func TestSQLiteBackend_Paging(t *testing.T) {
	b, err := New(filepath.Join(t.TempDir(), "paging.db"))
	if err != nil {
		t.Fatalf("Failed to create SQLite backend: %v", err)
	}
	defer b.Close()

	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		err := b.Save(ctx, &storage.Attempt{
			ID:        fmt.Sprintf("a%d", i),
			Query:     "q",
			Strategy:  "browser",
			Signal:    "usable",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
	}

	page, err := b.Query(ctx, storage.Filter{Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(page) != 2 || page[0].ID != "a3" || page[1].ID != "a2" {
		t.Errorf("unexpected page %v", ids(page))
	}

	rest, err := b.Query(ctx, storage.Filter{Offset: 3})
	if err != nil {
		t.Fatalf("offset-only query: %v", err)
	}
	if len(rest) != 2 {
		t.Errorf("expected 2 attempts after offset 3, got %d", len(rest))
	}
}

func ids(attempts []*storage.Attempt) []string {
	out := make([]string, 0, len(attempts))
	for _, a := range attempts {
		out = append(out, a.ID)
	}
	return out
}
