package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/FranksOps/sift/internal/analyzer"
	"github.com/FranksOps/sift/internal/pipeline"
	"github.com/FranksOps/sift/internal/serp"
	"github.com/FranksOps/sift/pkg/proxy"
)

type stubSearcher struct {
	mu      sync.Mutex
	queries []string
	maxes   []int
	ctxErr  error
	err     error
}

func (s *stubSearcher) Search(ctx context.Context, query string, max int) (*pipeline.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, query)
	s.maxes = append(s.maxes, max)
	s.ctxErr = ctx.Err()
	if s.err != nil {
		return nil, s.err
	}
	results := []serp.Result{{Title: "Welcome to Python.org", URL: "https://www.python.org/", Snippet: "The official home."}}
	return &pipeline.Response{Query: query, Results: results, Count: len(results), SearchTime: 0.25}, nil
}

func (s *stubSearcher) CacheLen(context.Context) int { return 3 }

func newTestServer(t *testing.T, searcher Searcher) (*Server, *httptest.Server) {
	t.Helper()
	s, err := New(Config{
		Searcher:   searcher,
		Strategies: []string{"http", "browser"},
		Endpoints:  []string{"https://html.duckduckgo.com/html/?q={query}"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func get(t *testing.T, url string) (int, map[string]any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected JSON content type, got %q", ct)
	}
	body, _ := io.ReadAll(resp.Body)
	var out map[string]any
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("invalid JSON %q: %v", body, err)
	}
	return resp.StatusCode, out
}

func TestNew_RequiresSearcher(t *testing.T) {
	if _, err := New(Config{}); !errors.Is(err, ErrNoSearcher) {
		t.Errorf("expected ErrNoSearcher, got %v", err)
	}
}

func TestSearch(t *testing.T) {
	stub := &stubSearcher{}
	s, ts := newTestServer(t, stub)

	code, body := get(t, ts.URL+"/search?q=python+programming&max=5")
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if body["query"] != "python programming" || body["count"] != float64(1) {
		t.Errorf("unexpected body %v", body)
	}
	results, _ := body["results"].([]any)
	if len(results) != 1 {
		t.Fatalf("expected one result, got %v", body["results"])
	}
	first := results[0].(map[string]any)
	if first["url"] != "https://www.python.org/" || first["title"] == "" {
		t.Errorf("unexpected result %v", first)
	}
	if stub.maxes[0] != 5 {
		t.Errorf("expected max 5 forwarded, got %d", stub.maxes[0])
	}
	if s.Stats().SearchRequests != 1 {
		t.Errorf("expected one counted search, got %+v", s.Stats())
	}
}

func TestSearch_MissingQuery(t *testing.T) {
	stub := &stubSearcher{}
	s, ts := newTestServer(t, stub)

	for _, path := range []string{"/search", "/search?q=", "/search?q=%20%20"} {
		code, body := get(t, ts.URL+path)
		if code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", path, code)
		}
		if body["error"] == "" {
			t.Errorf("%s: expected error message", path)
		}
	}
	if len(stub.queries) != 0 {
		t.Errorf("searcher must not be called for blank queries")
	}
	if s.Stats().Errors != 3 {
		t.Errorf("expected 3 errors counted, got %d", s.Stats().Errors)
	}
}

func TestSearch_InvalidMaxUsesDefault(t *testing.T) {
	stub := &stubSearcher{}
	_, ts := newTestServer(t, stub)
	get(t, ts.URL+"/search?q=go&max=lots")
	if stub.maxes[0] != 0 {
		t.Errorf("expected 0 (default) for unparsable max, got %d", stub.maxes[0])
	}
}

func TestSearch_SearcherError(t *testing.T) {
	_, ts := newTestServer(t, &stubSearcher{err: errors.New("boom")})
	code, _ := get(t, ts.URL+"/search?q=go")
	if code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", code)
	}
}

func TestSearch_DetachedFromClient(t *testing.T) {
	stub := &stubSearcher{}
	s, _ := newTestServer(t, stub)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodGet, "/search?q=go", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if stub.ctxErr != nil {
		t.Errorf("search context should not inherit client cancellation, got %v", stub.ctxErr)
	}
}

func TestClassify(t *testing.T) {
	s, ts := newTestServer(t, &stubSearcher{})

	code, body := get(t, ts.URL+"/classify?text=I+am+so+happy+today!!!")
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	want := analyzer.Classify("I am so happy today!!!")
	if body["primary_state"] != want.PrimaryState || body["tool"] != want.Tool {
		t.Errorf("expected %s/%s, got %v/%v", want.PrimaryState, want.Tool, body["primary_state"], body["tool"])
	}
	meta, ok := body["metadata"].(map[string]any)
	if !ok || meta["text_length"] != float64(len("I am so happy today!!!")) {
		t.Errorf("unexpected metadata %v", body["metadata"])
	}
	if _, ok := body["psychological_profile"]; !ok {
		t.Errorf("expected profile in response")
	}
	if s.Stats().ClassificationRequests != 1 {
		t.Errorf("expected one classification counted")
	}
}

func TestClassify_MissingText(t *testing.T) {
	_, ts := newTestServer(t, &stubSearcher{})
	code, body := get(t, ts.URL+"/classify")
	if code != http.StatusBadRequest || !strings.Contains(body["error"].(string), "text") {
		t.Errorf("expected 400 about missing text, got %d %v", code, body)
	}
}

func TestHealth(t *testing.T) {
	s, ts := newTestServer(t, &stubSearcher{})

	code, body := get(t, ts.URL+"/health")
	if code != http.StatusOK || body["status"] != "healthy" {
		t.Errorf("expected healthy, got %d %v", code, body)
	}

	for i := 0; i < DefaultUnhealthyErrors; i++ {
		get(t, ts.URL+"/search")
	}
	if code, _ := get(t, ts.URL+"/health"); code != http.StatusOK {
		t.Errorf("exactly %d errors is still healthy, got %d", DefaultUnhealthyErrors, code)
	}

	get(t, ts.URL+"/search")
	code, body = get(t, ts.URL+"/health")
	if code != http.StatusServiceUnavailable || body["status"] != "unhealthy" {
		t.Errorf("expected 503 unhealthy, got %d %v", code, body)
	}
	if s.Healthy() {
		t.Errorf("Healthy should agree with /health")
	}
}

func TestStatus(t *testing.T) {
	_, ts := newTestServer(t, &stubSearcher{})
	get(t, ts.URL+"/search?q=go")

	code, body := get(t, ts.URL+"/status")
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	stats := body["statistics"].(map[string]any)
	if stats["search_requests"] != float64(1) {
		t.Errorf("unexpected statistics %v", stats)
	}
	if body["cache_entries"] != float64(3) {
		t.Errorf("expected cache_entries 3, got %v", body["cache_entries"])
	}
	if s, _ := body["strategies"].([]any); len(s) != 2 {
		t.Errorf("unexpected strategies %v", body["strategies"])
	}
	if _, ok := body["uptime_human"].(string); !ok {
		t.Errorf("expected uptime_human string")
	}
	if p, _ := body["proxies"].(map[string]any); p["total"] != float64(0) {
		t.Errorf("expected empty proxy stats without a pool, got %v", body["proxies"])
	}
}

func TestStatus_Proxies(t *testing.T) {
	pool := proxy.NewPool(proxy.Config{})
	if err := pool.Add("127.0.0.1:3128", "127.0.0.1:3129"); err != nil {
		t.Fatal(err)
	}
	s, err := New(Config{Searcher: &stubSearcher{}, Proxies: pool})
	if err != nil {
		t.Fatal(err)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	var body struct {
		Proxies proxy.Stats `json:"proxies"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Proxies.Total != 2 || body.Proxies.Healthy != 2 {
		t.Errorf("unexpected proxy stats %+v", body.Proxies)
	}
}

func TestDocsAndNotFound(t *testing.T) {
	_, ts := newTestServer(t, &stubSearcher{})

	code, body := get(t, ts.URL+"/api/docs")
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	eps := body["endpoints"].(map[string]any)
	if _, ok := eps["/search"]; !ok {
		t.Errorf("docs should describe /search")
	}

	code, body = get(t, ts.URL+"/nope")
	if code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", code)
	}
	if list, _ := body["available_endpoints"].([]any); len(list) == 0 {
		t.Errorf("expected available endpoints in 404 body")
	}
}

func TestMetricsMount(t *testing.T) {
	s, err := New(Config{Searcher: &stubSearcher{}, ServeMetrics: true})
	if err != nil {
		t.Fatal(err)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "sift_") {
		t.Errorf("expected prometheus output, got %d", rec.Code)
	}
}

func TestRun_ShutsDownOnCancel(t *testing.T) {
	s, err := New(Config{Searcher: &stubSearcher{}, Addr: "127.0.0.1:0"})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
