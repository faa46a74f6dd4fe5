package csvbackend

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/FranksOps/sift/internal/storage"
)

// ensure csvBackend implements storage.Backend
var _ storage.Backend = (*csvBackend)(nil)

type csvBackend struct {
	mu   sync.Mutex
	file *os.File
}

// headers defines the CSV column order
var headers = []string{
	"id",
	"query",
	"strategy",
	"endpoint",
	"user_agent",
	"category",
	"status_code",
	"signal",
	"detection_src",
	"result_count",
	"duration_ms",
	"created_at",
	"error",
}

// New creates a new CSV-backed storage.Backend. The header row is written
// when the file is new.
func New(filePath string) (storage.Backend, error) {
	f, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("csvbackend: open %s: %w", filePath, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("csvbackend: stat %s: %w", filePath, err)
	}

	if info.Size() == 0 {
		w := csv.NewWriter(f)
		if err := w.Write(headers); err != nil {
			f.Close()
			return nil, fmt.Errorf("csvbackend: write header: %w", err)
		}
		w.Flush()
		if err := w.Error(); err != nil {
			f.Close()
			return nil, fmt.Errorf("csvbackend: write header: %w", err)
		}
	}

	return &csvBackend{file: f}, nil
}

func (b *csvBackend) Save(ctx context.Context, a *storage.Attempt) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	record := []string{
		a.ID,
		a.Query,
		a.Strategy,
		a.Endpoint,
		a.UserAgent,
		a.Category,
		strconv.Itoa(a.StatusCode),
		a.Signal,
		a.DetectionSrc,
		strconv.Itoa(a.ResultCount),
		strconv.FormatInt(a.Duration.Milliseconds(), 10),
		a.CreatedAt.Format(time.RFC3339Nano),
		a.Error,
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.file.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("csvbackend: seek: %w", err)
	}

	w := csv.NewWriter(b.file)
	if err := w.Write(record); err != nil {
		return fmt.Errorf("csvbackend: write attempt %s: %w", a.ID, err)
	}
	w.Flush()

	if err := w.Error(); err != nil {
		return fmt.Errorf("csvbackend: flush attempt %s: %w", a.ID, err)
	}

	return nil
}

func (b *csvBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.Attempt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("csvbackend: seek: %w", err)
	}
	defer func() {
		// Restore pointer to end for writing
		_, _ = b.file.Seek(0, io.SeekEnd)
	}()

	r := csv.NewReader(b.file)
	r.FieldsPerRecord = -1

	if _, err := r.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return []*storage.Attempt{}, nil
		}
		return nil, fmt.Errorf("csvbackend: read header: %w", err)
	}

	var matched []*storage.Attempt
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csvbackend: read row: %w", err)
		}

		if len(record) != len(headers) {
			continue // skip malformed rows
		}

		a := parseRecord(record)
		if filter.Matches(a) {
			matched = append(matched, a)
		}
	}

	return filter.Page(matched), nil
}

func parseRecord(record []string) *storage.Attempt {
	statusCode, _ := strconv.Atoi(record[6])
	resultCount, _ := strconv.Atoi(record[9])
	durationMs, _ := strconv.ParseInt(record[10], 10, 64)
	createdAt, _ := time.Parse(time.RFC3339Nano, record[11])

	return &storage.Attempt{
		ID:           record[0],
		Query:        record[1],
		Strategy:     record[2],
		Endpoint:     record[3],
		UserAgent:    record[4],
		Category:     record[5],
		StatusCode:   statusCode,
		Signal:       record[7],
		DetectionSrc: record[8],
		ResultCount:  resultCount,
		Duration:     time.Duration(durationMs) * time.Millisecond,
		CreatedAt:    createdAt,
		Error:        record[12],
	}
}

func (b *csvBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.file.Close()
}
