package retrieval

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/FranksOps/sift/internal/metrics"
	"github.com/FranksOps/sift/internal/storage"
)

// Recorder keeps the audit trail of attempts. A nil Recorder records only
// metrics.
type Recorder struct {
	// Backend, if set, receives one row per attempt.
	Backend storage.Backend
	// DumpPath, if set, is overwritten with the raw HTML of every page
	// loaded, for inspecting markup drift.
	DumpPath string
	Logger   *slog.Logger
}

func (r *Recorder) logger() *slog.Logger {
	if r == nil || r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}

// Record stamps a and forwards it to metrics and the backend. Storage
// failures are logged; auditing never fails a search.
func (r *Recorder) Record(ctx context.Context, a *storage.Attempt) {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	metrics.RecordAttempt(a)

	r.logger().Debug("attempt",
		slog.String("query", a.Query),
		slog.String("strategy", a.Strategy),
		slog.String("endpoint", a.Endpoint),
		slog.String("signal", a.Signal),
		slog.Int("results", a.ResultCount),
		slog.Duration("duration", a.Duration),
		slog.String("error", a.Error),
	)

	if r == nil || r.Backend == nil {
		return
	}
	if err := r.Backend.Save(context.WithoutCancel(ctx), a); err != nil {
		r.logger().Warn("failed to save attempt", slog.String("id", a.ID), slog.String("error", err.Error()))
	}
}

// Dump writes html to DumpPath when dumping is enabled.
func (r *Recorder) Dump(html string) {
	if r == nil || r.DumpPath == "" {
		return
	}
	if err := os.WriteFile(r.DumpPath, []byte(html), 0o644); err != nil {
		r.logger().Warn("failed to write debug dump", slog.String("path", r.DumpPath), slog.String("error", err.Error()))
	}
}
