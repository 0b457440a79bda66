package metrics

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"taskrun/internal/executor"
	"taskrun/internal/queue"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestRecorderCountsRun(t *testing.T) {
	t.Parallel()

	rec := NewRecorder()
	q := queue.New[string](queue.Options{Concurrency: 2, Retries: 2, RetryDelay: time.Millisecond}, discardLogger())
	Attach(rec, q)

	ok := func(ctx context.Context) (string, error) { return "ok", nil }
	boom := func(ctx context.Context) (string, error) { return "", errors.New("boom") }

	for _, task := range []executor.Task[string]{ok, boom, ok} {
		if _, err := q.Add(task, queue.Meta{}); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	if _, err := q.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := testutil.ToFloat64(rec.tasksTotal.WithLabelValues("success")); got != 2 {
		t.Fatalf("success count = %v, want 2", got)
	}
	if got := testutil.ToFloat64(rec.tasksTotal.WithLabelValues("failure")); got != 1 {
		t.Fatalf("failure count = %v, want 1", got)
	}
	// The failing task exhausts 1+2 attempts, so 2 re-attempts.
	if got := testutil.ToFloat64(rec.retriesTotal); got != 2 {
		t.Fatalf("retries = %v, want 2", got)
	}
	if got := testutil.ToFloat64(rec.runsTotal); got != 1 {
		t.Fatalf("runs = %v, want 1", got)
	}
	if got := testutil.ToFloat64(rec.tasksRunning); got != 0 {
		t.Fatalf("running gauge = %v, want 0 after completion", got)
	}
}

func TestRecorderTimeoutOutcome(t *testing.T) {
	t.Parallel()

	rec := NewRecorder()
	q := queue.New[string](queue.Options{Concurrency: 1, Timeout: 10 * time.Millisecond}, discardLogger())
	Attach(rec, q)

	slow := func(ctx context.Context) (string, error) {
		select {
		case <-time.After(time.Second):
			return "late", nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if _, err := q.Add(slow, queue.Meta{}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := q.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := testutil.ToFloat64(rec.tasksTotal.WithLabelValues("timeout")); got != 1 {
		t.Fatalf("timeout count = %v, want 1", got)
	}
	if got := testutil.ToFloat64(rec.batchesTotal); got != 1 {
		t.Fatalf("batches = %v, want 1", got)
	}
}

func TestHandlerServesRegistry(t *testing.T) {
	t.Parallel()
	rec := NewRecorder()
	if rec.Handler() == nil {
		t.Fatal("Handler returned nil")
	}
}
