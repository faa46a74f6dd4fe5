package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/FranksOps/sift/internal/storage"
)

func scrape(t *testing.T) string {
	t.Helper()
	ts := httptest.NewServer(Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL)
	if err != nil {
		t.Fatalf("failed to fetch metrics: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}
	return string(body)
}

func TestRecordAttempt(t *testing.T) {
	RecordAttempt(&storage.Attempt{
		Strategy:    "recorded",
		StatusCode:  200,
		Signal:      "usable",
		ResultCount: 7,
		Duration:    time.Second,
	})
	RecordAttempt(nil)

	output := scrape(t)
	if !strings.Contains(output, `sift_results_extracted_total{strategy="recorded"} 7`) {
		t.Errorf("expected 7 extracted results for strategy, got:\n%s", output)
	}
	if !strings.Contains(output, `sift_retrieval_attempts_total{detection_src="",signal="usable",status="200",strategy="recorded"} 1`) {
		t.Errorf("expected one usable attempt recorded")
	}
}

func TestHandler(t *testing.T) {
	RecordAttempt(&storage.Attempt{
		Strategy:     "browser",
		Signal:       "blocked",
		DetectionSrc: "BlockPage",
		Duration:     3 * time.Second,
	})
	SearchesTotal.WithLabelValues("empty").Inc()

	output := scrape(t)

	if !strings.Contains(output, `sift_retrieval_attempts_total{detection_src="BlockPage",signal="blocked",status="0",strategy="browser"}`) {
		t.Errorf("expected blocked browser attempt in output")
	}
	if !strings.Contains(output, "sift_retrieval_attempt_duration_seconds_bucket") {
		t.Errorf("expected sift_retrieval_attempt_duration_seconds metric")
	}
	if !strings.Contains(output, `sift_searches_total{outcome="empty"}`) {
		t.Errorf("expected sift_searches_total metric")
	}
}

func TestServer_StartStop(t *testing.T) {
	srv := Start(0, nil)
	if err := srv.Stop(context.Background()); err != nil {
		t.Errorf("unexpected stop error: %v", err)
	}
	var nilSrv *Server
	if err := nilSrv.Stop(context.Background()); err != nil {
		t.Errorf("nil server stop should be a no-op, got %v", err)
	}
}
