package queue

import (
	"time"

	"golang.org/x/time/rate"

	"taskrun/internal/executor"
)

// State is the queue lifecycle phase.
type State int

const (
	Idle State = iota
	Running
	Paused
	Stopped
	Completed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Paused:
		return "paused"
	case Stopped:
		return "stopped"
	case Completed:
		return "completed"
	default:
		return "unknown"
	}
}

// Meta describes a queued task. All fields are optional; an empty ID is
// replaced with a fresh UUID at Add time.
type Meta struct {
	ID       string
	Name     string
	Priority int
	Batch    string
	Tags     []string
	Data     map[string]any
}

type entry[T any] struct {
	task  executor.Task[T]
	meta  Meta
	index int // submission index, permanent
}

// Options configure a Queue. Executor knobs are passed through per batch.
type Options struct {
	Concurrency        int
	Retries            int
	RetryDelay         time.Duration
	ExponentialBackoff bool
	MaxRetryDelay      time.Duration
	Timeout            time.Duration

	// RatePerSec optionally caps how fast tasks may start, across batches.
	RatePerSec float64

	// BatchSize > 0 splits pending entries into contiguous fixed-size
	// chunks; each chunk runs to completion before the next starts.
	// Zero hands the whole pending set to the executor in one call.
	BatchSize int

	// BatchDelay is a fixed wait between consecutive batches.
	BatchDelay time.Duration

	// Priority dispatches pending entries in descending priority order,
	// with insertion order as the stable tie-break.
	Priority bool

	// PauseOnError and StopOnError act at batch boundaries when any result
	// in the just-finished batch failed.
	PauseOnError bool
	StopOnError  bool
}

func (o Options) executorOptions(lim *rate.Limiter, onStart func(int), onDone func(int, bool)) executor.Options {
	return executor.Options{
		Concurrency:        o.Concurrency,
		Retries:            o.Retries,
		RetryDelay:         o.RetryDelay,
		ExponentialBackoff: o.ExponentialBackoff,
		MaxRetryDelay:      o.MaxRetryDelay,
		Timeout:            o.Timeout,
		StartLimit:         lim,
		OnTaskStart:        onStart,
		OnTaskDone:         onDone,
	}
}

// Status is a point-in-time view for diagnostics.
type Status struct {
	State     State
	Pending   int
	Running   int
	Completed int
	Failed    int
	Paused    bool
	Stopped   bool
}
