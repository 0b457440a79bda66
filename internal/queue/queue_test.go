package queue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"taskrun/internal/executor"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func ok(v string) executor.Task[string] {
	return func(ctx context.Context) (string, error) { return v, nil }
}

func fail(msg string) executor.Task[string] {
	return func(ctx context.Context) (string, error) { return "", errors.New(msg) }
}

func TestRunEmptyQueue(t *testing.T) {
	t.Parallel()
	q := New[string](Options{Concurrency: 2}, discardLogger())

	var completed bool
	q.On(EventComplete, func(Event) { completed = true })

	res, err := q.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res) != 0 {
		t.Fatalf("got %d results, want 0", len(res))
	}
	if !completed {
		t.Fatal("complete event not emitted")
	}
	if st := q.Status(); st.State != Completed {
		t.Fatalf("state = %v, want completed", st.State)
	}
}

func TestResultsMapToSubmissionIndex(t *testing.T) {
	t.Parallel()
	q := New[string](Options{Concurrency: 4, Priority: true}, discardLogger())

	for i := 0; i < 10; i++ {
		v := fmt.Sprintf("v%d", i)
		// Reverse priorities so dispatch order inverts submission order.
		if _, err := q.Add(ok(v), Meta{Priority: 10 - i}); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	res, err := q.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for i, r := range res {
		if want := fmt.Sprintf("v%d", i); r.Value != want {
			t.Fatalf("results[%d] = %q, want %q", i, r.Value, want)
		}
		if r.Index != i {
			t.Fatalf("results[%d].Index = %d", i, r.Index)
		}
	}
}

func TestPriorityDispatchOrder(t *testing.T) {
	t.Parallel()
	q := New[string](Options{Concurrency: 1, Priority: true}, discardLogger())

	var mu sync.Mutex
	var started []int

	prios := []int{1, 10, 5, 10, 1}
	for i, p := range prios {
		i := i
		if _, err := q.Add(func(ctx context.Context) (string, error) {
			mu.Lock()
			started = append(started, i)
			mu.Unlock()
			return "", nil
		}, Meta{Priority: p}); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	if _, err := q.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []int{1, 3, 2, 0, 4} // both 10s first (insertion order), then 5, then the 1s
	if len(started) != len(want) {
		t.Fatalf("started %v, want %v", started, want)
	}
	for i := range want {
		if started[i] != want[i] {
			t.Fatalf("start order = %v, want %v", started, want)
		}
	}
}

func TestBatching(t *testing.T) {
	t.Parallel()
	q := New[string](Options{Concurrency: 2, BatchSize: 3}, discardLogger())
	for i := 0; i < 8; i++ {
		if _, err := q.Add(ok("x"), Meta{}); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	var starts, completes []int
	q.On(EventBatchStart, func(e Event) {
		d := e.Data.(BatchStartData)
		starts = append(starts, d.Size)
	})
	q.On(EventBatchComplete, func(e Event) {
		d := e.Data.(BatchCompleteData[string])
		completes = append(completes, len(d.Results))
	})

	res, err := q.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res) != 8 {
		t.Fatalf("got %d results, want 8", len(res))
	}
	wantSizes := []int{3, 3, 2}
	if len(starts) != 3 || len(completes) != 3 {
		t.Fatalf("batchStart fired %d times, batchComplete %d, want 3/3", len(starts), len(completes))
	}
	for i, w := range wantSizes {
		if starts[i] != w || completes[i] != w {
			t.Fatalf("batch sizes start=%v complete=%v, want %v", starts, completes, wantSizes)
		}
	}
}

func TestStopOnError(t *testing.T) {
	t.Parallel()
	q := New[string](Options{Concurrency: 1, BatchSize: 2, StopOnError: true}, discardLogger())

	ran := make([]bool, 6)
	for i := 0; i < 6; i++ {
		i := i
		body := func(ctx context.Context) (string, error) {
			ran[i] = true
			if i == 1 {
				return "", errors.New("bad")
			}
			return "ok", nil
		}
		if _, err := q.Add(body, Meta{}); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	var stopEvents int
	q.On(EventStop, func(Event) { stopEvents++ })

	res, err := q.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !ran[0] || !ran[1] {
		t.Fatal("first batch did not run")
	}
	for i := 2; i < 6; i++ {
		if ran[i] {
			t.Fatalf("task %d ran after stopOnError", i)
		}
		if res[i].Attempts != 0 {
			t.Fatalf("results[%d].Attempts = %d, want 0", i, res[i].Attempts)
		}
	}
	if st := q.Status(); st.State != Stopped {
		t.Fatalf("state = %v, want stopped", st.State)
	}
	if stopEvents != 1 {
		t.Fatalf("stop emitted %d times, want 1", stopEvents)
	}
	if _, err := q.Add(ok("x"), Meta{}); !errors.Is(err, ErrStopped) {
		t.Fatalf("Add after stop = %v, want ErrStopped", err)
	}
	if _, err := q.Run(context.Background()); !errors.Is(err, ErrStopped) {
		t.Fatalf("Run after stop = %v, want ErrStopped", err)
	}
}

func TestPauseOnErrorAndResume(t *testing.T) {
	t.Parallel()
	q := New[string](Options{Concurrency: 1, BatchSize: 1, PauseOnError: true}, discardLogger())

	if _, err := q.Add(fail("boom"), Meta{}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := q.Add(ok("second"), Meta{}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	var paused, resumed int
	q.On(EventPause, func(Event) { paused++ })
	q.On(EventResume, func(Event) { resumed++ })

	type runOut struct {
		res []executor.Result[string]
		err error
	}
	done := make(chan runOut, 1)
	go func() {
		res, err := q.Run(context.Background())
		done <- runOut{res, err}
	}()

	waitFor(t, func() bool { return q.Status().Paused })

	// Mutations are rejected while the run is blocked.
	if _, err := q.Add(ok("x"), Meta{}); !errors.Is(err, ErrBusy) {
		t.Fatalf("Add while paused = %v, want ErrBusy", err)
	}
	if err := q.Clear(); !errors.Is(err, ErrBusy) {
		t.Fatalf("Clear while paused = %v, want ErrBusy", err)
	}

	q.Resume()

	out := <-done
	if out.err != nil {
		t.Fatalf("Run: %v", out.err)
	}
	if out.res[0].OK || !out.res[1].OK {
		t.Fatalf("results = %+v, want [failure, success]", out.res)
	}
	if paused != 1 || resumed != 1 {
		t.Fatalf("pause/resume events = %d/%d, want 1/1", paused, resumed)
	}
	if st := q.Status(); st.State != Completed {
		t.Fatalf("state = %v, want completed", st.State)
	}
}

func TestStopDuringFinalBatch(t *testing.T) {
	t.Parallel()
	q := New[string](Options{Concurrency: 1, BatchSize: 1}, discardLogger())

	started := make(chan struct{})
	release := make(chan struct{})
	if _, err := q.Add(func(ctx context.Context) (string, error) {
		close(started)
		<-release
		return "ok", nil
	}, Meta{}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	var stops, completes int
	q.On(EventStop, func(Event) { stops++ })
	q.On(EventComplete, func(Event) { completes++ })

	done := make(chan []executor.Result[string], 1)
	go func() {
		res, _ := q.Run(context.Background())
		done <- res
	}()

	<-started
	q.Stop() // lands while the last batch is still draining
	close(release)

	res := <-done
	if !res[0].OK {
		t.Fatalf("dispatched task did not drain to completion: %+v", res[0])
	}
	if st := q.Status(); st.State != Stopped {
		t.Fatalf("state = %v, want stopped (terminal)", st.State)
	}
	if stops != 1 || completes != 0 {
		t.Fatalf("events stop=%d complete=%d, want 1/0", stops, completes)
	}
	if _, err := q.Add(ok("x"), Meta{}); !errors.Is(err, ErrStopped) {
		t.Fatalf("Add after stop = %v, want ErrStopped", err)
	}
}

func TestOnErrorPoliciesInertWhenUnbatched(t *testing.T) {
	t.Parallel()
	q := New[string](Options{Concurrency: 1, StopOnError: true, PauseOnError: true}, discardLogger())
	if _, err := q.Add(fail("boom"), Meta{}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := q.Add(ok("after"), Meta{}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	var stops, completes int
	q.On(EventStop, func(Event) { stops++ })
	q.On(EventComplete, func(Event) { completes++ })

	res, err := q.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res[0].OK || !res[1].OK {
		t.Fatalf("results = %+v, want [failure, success]", res)
	}
	if st := q.Status(); st.State != Completed {
		t.Fatalf("state = %v, want completed (no batch boundaries)", st.State)
	}
	if stops != 0 || completes != 1 {
		t.Fatalf("events stop=%d complete=%d, want 0/1", stops, completes)
	}
}

func TestStopWhilePaused(t *testing.T) {
	t.Parallel()
	q := New[string](Options{Concurrency: 1, BatchSize: 1, PauseOnError: true}, discardLogger())
	if _, err := q.Add(fail("boom"), Meta{}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := q.Add(ok("never"), Meta{}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	done := make(chan []executor.Result[string], 1)
	go func() {
		res, _ := q.Run(context.Background())
		done <- res
	}()

	waitFor(t, func() bool { return q.Status().Paused })
	q.Stop()

	res := <-done
	if res[1].Attempts != 0 {
		t.Fatalf("second task ran after stop while paused: %+v", res[1])
	}
	if st := q.Status(); st.State != Stopped {
		t.Fatalf("state = %v, want stopped", st.State)
	}
}

func TestProgressEvents(t *testing.T) {
	t.Parallel()
	q := New[string](Options{Concurrency: 3}, discardLogger())
	for i := 0; i < 7; i++ {
		if _, err := q.Add(ok("x"), Meta{}); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	var mu sync.Mutex
	var seen []ProgressData
	q.On(EventProgress, func(e Event) {
		mu.Lock()
		seen = append(seen, e.Data.(ProgressData))
		mu.Unlock()
	})

	if _, err := q.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(seen) != 7 {
		t.Fatalf("progress fired %d times, want 7", len(seen))
	}
	for _, p := range seen {
		if p.Total != 7 {
			t.Fatalf("progress total = %d, want 7", p.Total)
		}
		if p.Running > 3 {
			t.Fatalf("progress reported %d running, limit is 3", p.Running)
		}
	}
}

func TestHandlersFireInRegistrationOrder(t *testing.T) {
	t.Parallel()
	q := New[string](Options{}, discardLogger())
	if _, err := q.Add(ok("x"), Meta{}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	var order []int
	q.On(EventStart, func(Event) { order = append(order, 1) })
	q.On(EventStart, func(Event) { order = append(order, 2) })
	q.On(EventStart, func(Event) { order = append(order, 3) })

	if _, err := q.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Fatalf("handler order = %v, want [1 2 3]", order)
	}
}

func TestClearAndDefaults(t *testing.T) {
	t.Parallel()
	q := New[string](Options{}, discardLogger())
	idx, err := q.Add(ok("x"), Meta{Name: "first"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	meta, found := q.Meta(idx)
	if !found || meta.ID == "" {
		t.Fatalf("expected generated ID, got %+v found=%v", meta, found)
	}

	var cleared bool
	q.On(EventClear, func(Event) { cleared = true })
	if err := q.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if !cleared {
		t.Fatal("clear event not emitted")
	}
	if _, found := q.Meta(idx); found {
		t.Fatal("entry survived Clear")
	}
}

func TestRunIsOneShot(t *testing.T) {
	t.Parallel()
	q := New[string](Options{}, discardLogger())
	if _, err := q.Add(ok("x"), Meta{}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := q.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, err := q.Run(context.Background()); !errors.Is(err, ErrCompleted) {
		t.Fatalf("second Run = %v, want ErrCompleted", err)
	}
	if _, err := q.Add(ok("y"), Meta{}); !errors.Is(err, ErrCompleted) {
		t.Fatalf("Add after completion = %v, want ErrCompleted", err)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition never became true")
}
