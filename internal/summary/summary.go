// Package summary aggregates executor results into run-level statistics and
// renders the human-readable report. It is a pure consumer of the results
// slice: computing the same summary twice yields identical values.
package summary

import (
	"fmt"
	"io"
	"sort"
	"time"

	"taskrun/internal/executor"
)

// Summary holds aggregate statistics for one finished run.
type Summary struct {
	Total     int
	Succeeded int
	Failed    int
	TimedOut  int

	// Attempts counts every body execution across all tasks, so
	// Attempts - Total is the number of retries the run needed.
	Attempts int

	// TaskTime sums per-task execution time (backoff excluded);
	// AvgTime is TaskTime / Total.
	TaskTime time.Duration
	AvgTime  time.Duration

	// Elapsed is wall-clock time between run start and end.
	Elapsed time.Duration
	Start   time.Time
	End     time.Time

	// Errors is the terminal-error frequency breakdown, sorted by
	// descending count with message as the deterministic tie-break.
	Errors []ErrorCount
}

// ErrorCount is one row of the error frequency breakdown.
type ErrorCount struct {
	Message string
	Count   int
}

// Compute aggregates results. Slots that were never dispatched (Attempts==0,
// possible after an early stop) count as neither succeeded nor failed.
func Compute[T any](results []executor.Result[T], start, end time.Time) Summary {
	s := Summary{
		Total:   len(results),
		Start:   start,
		End:     end,
		Elapsed: end.Sub(start),
	}

	freq := map[string]int{}
	for _, r := range results {
		s.Attempts += r.Attempts
		s.TaskTime += r.Duration
		switch {
		case r.OK:
			s.Succeeded++
		case r.Attempts > 0:
			s.Failed++
			if r.TimedOut {
				s.TimedOut++
			}
			if r.Err != nil {
				freq[r.Err.Error()]++
			}
		}
	}
	if s.Total > 0 {
		s.AvgTime = s.TaskTime / time.Duration(s.Total)
	}

	s.Errors = make([]ErrorCount, 0, len(freq))
	for msg, n := range freq {
		s.Errors = append(s.Errors, ErrorCount{Message: msg, Count: n})
	}
	sort.Slice(s.Errors, func(i, j int) bool {
		if s.Errors[i].Count != s.Errors[j].Count {
			return s.Errors[i].Count > s.Errors[j].Count
		}
		return s.Errors[i].Message < s.Errors[j].Message
	})
	return s
}

// WriteText renders the report consumed by the CLI.
func WriteText(w io.Writer, s Summary) error {
	var err error
	p := func(format string, args ...any) {
		if err == nil {
			_, err = fmt.Fprintf(w, format, args...)
		}
	}

	p("run summary\n")
	p("  tasks:      %d (%d succeeded, %d failed, %d timed out)\n", s.Total, s.Succeeded, s.Failed, s.TimedOut)
	p("  attempts:   %d (%d retries)\n", s.Attempts, s.Attempts-s.Total)
	p("  task time:  %s total, %s average\n", s.TaskTime.Round(time.Millisecond), s.AvgTime.Round(time.Millisecond))
	p("  elapsed:    %s\n", s.Elapsed.Round(time.Millisecond))
	if len(s.Errors) > 0 {
		p("  errors:\n")
		for _, e := range s.Errors {
			p("    %3dx %s\n", e.Count, e.Message)
		}
	}
	return err
}
