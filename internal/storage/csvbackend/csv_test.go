package csvbackend

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/FranksOps/sift/internal/storage"
)

func TestCSVBackend(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "sift.csv")

	b, err := New(filePath)
	if err != nil {
		t.Fatalf("Failed to create CSV backend: %v", err)
	}
	defer b.Close()

	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	a1 := &storage.Attempt{
		ID:          "csv1",
		Query:       "python, programming", // comma must survive quoting
		Strategy:    "http",
		Endpoint:    "https://lite.duckduckgo.com/lite/?q=python%2C+programming",
		UserAgent:   "Mozilla/5.0 (compatible; bingbot/2.0)",
		Category:    "crawler",
		StatusCode:  200,
		Signal:      "usable",
		ResultCount: 8,
		Duration:    10 * time.Millisecond,
		CreatedAt:   now.Add(-2 * time.Hour),
	}
	a2 := &storage.Attempt{
		ID:           "csv2",
		Query:        "golang",
		Strategy:     "http",
		Endpoint:     "https://html.duckduckgo.com/html/?q=golang",
		StatusCode:   403,
		Signal:       "blocked",
		DetectionSrc: "Cloudflare",
		Duration:     20 * time.Millisecond,
		CreatedAt:    now.Add(-1 * time.Hour),
		Error:        "",
	}

	if err := b.Save(ctx, a1); err != nil {
		t.Fatalf("Failed to save attempt 1: %v", err)
	}
	if err := b.Save(ctx, a2); err != nil {
		t.Fatalf("Failed to save attempt 2: %v", err)
	}

	byQuery, err := b.Query(ctx, storage.Filter{Query: "python, programming"})
	if err != nil {
		t.Fatalf("Failed to query by Query: %v", err)
	}
	if len(byQuery) != 1 {
		t.Fatalf("Expected 1 result for query filter, got %d", len(byQuery))
	}
	got := byQuery[0]
	if got.ID != "csv1" || got.ResultCount != 8 || got.Category != "crawler" {
		t.Errorf("unexpected round-trip %+v", got)
	}

	boolTrue, boolFalse := true, false
	blocked, err := b.Query(ctx, storage.Filter{Blocked: &boolTrue})
	if err != nil {
		t.Fatalf("Failed to query by Blocked: %v", err)
	}
	if len(blocked) != 1 || blocked[0].DetectionSrc != "Cloudflare" {
		t.Fatalf("Expected 1 Cloudflare-blocked attempt, got %d", len(blocked))
	}
	notBlocked, err := b.Query(ctx, storage.Filter{Blocked: &boolFalse})
	if err != nil {
		t.Fatalf("Failed to query by Blocked=false: %v", err)
	}
	if len(notBlocked) != 1 {
		t.Fatalf("Expected 1 unblocked attempt, got %d", len(notBlocked))
	}

	past := now.Add(-90 * time.Minute)
	since, err := b.Query(ctx, storage.Filter{Since: &past})
	if err != nil {
		t.Fatalf("Failed to query by Since: %v", err)
	}
	if len(since) != 1 || since[0].ID != "csv2" {
		t.Fatalf("Expected csv2 for Since filter, got %d results", len(since))
	}

	all, err := b.Query(ctx, storage.Filter{})
	if err != nil {
		t.Fatalf("Failed to query all: %v", err)
	}
	if len(all) != 2 || all[0].ID != "csv2" {
		t.Fatalf("Expected csv2 first of 2, got %d results", len(all))
	}

	limited, err := b.Query(ctx, storage.Filter{Limit: 1})
	if err != nil {
		t.Fatalf("Failed to query limit: %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("Expected 1 result, got %d", len(limited))
	}

	offset, err := b.Query(ctx, storage.Filter{Offset: 1})
	if err != nil {
		t.Fatalf("Failed to query offset: %v", err)
	}
	if len(offset) != 1 || offset[0].ID != "csv1" {
		t.Errorf("Expected csv1 for offset 1, got %d results", len(offset))
	}
}

func TestCSVBackend_ReopenKeepsSingleHeader(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "reopen.csv")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		b, err := New(filePath)
		if err != nil {
			t.Fatalf("open %d: %v", i, err)
		}
		if err := b.Save(ctx, &storage.Attempt{ID: "x", CreatedAt: time.Now()}); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
		b.Close()
	}

	raw, err := os.ReadFile(filePath)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if n := strings.Count(string(raw), "id,query,strategy"); n != 1 {
		t.Errorf("expected exactly one header row, got %d", n)
	}
}
