// Package taskdef turns declarative task definitions from the run-spec file
// into executable task bodies. The core is agnostic to what a task does; this
// package owns the only contract that matters to it: produce a nullary
// operation.
package taskdef

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"taskrun/internal/executor"
	"taskrun/internal/queue"
)

// Definition is one task entry in the run-spec file.
type Definition struct {
	ID       string   `json:"id,omitempty"`
	Name     string   `json:"name,omitempty"`
	Type     string   `json:"type"`
	Priority int      `json:"priority,omitempty"`
	Batch    string   `json:"batch,omitempty"`
	Tags     []string `json:"tags,omitempty"`

	// http
	URL          string            `json:"url,omitempty"`
	Method       string            `json:"method,omitempty"`
	Headers      map[string]string `json:"headers,omitempty"`
	ExpectStatus int               `json:"expect_status,omitempty"`

	// shell
	Command string `json:"command,omitempty"`
	Dir     string `json:"dir,omitempty"`

	// sleep
	Sleep     string `json:"sleep,omitempty"`      // Go duration
	FailFirst int    `json:"fail_first,omitempty"` // fail this many attempts before succeeding
	FailAll   bool   `json:"fail_all,omitempty"`
}

// Build produces the task body and queue metadata for one definition.
// The http.Client is shared across all HTTP tasks of a run.
func Build(def Definition, client *http.Client) (executor.Task[string], queue.Meta, error) {
	meta := queue.Meta{
		ID:       def.ID,
		Name:     def.Name,
		Priority: def.Priority,
		Batch:    def.Batch,
		Tags:     def.Tags,
	}
	if meta.Name == "" {
		meta.Name = fmt.Sprintf("%s task", def.Type)
	}

	switch strings.ToLower(strings.TrimSpace(def.Type)) {
	case "http":
		task, err := httpTask(def, client)
		return task, meta, err
	case "shell":
		task, err := shellTask(def)
		return task, meta, err
	case "sleep":
		task, err := sleepTask(def)
		return task, meta, err
	default:
		return nil, meta, fmt.Errorf("task %q: unknown type %q", meta.Name, def.Type)
	}
}

// BuildAll builds every definition, naming the offending task on error.
func BuildAll(defs []Definition, client *http.Client) ([]executor.Task[string], []queue.Meta, error) {
	tasks := make([]executor.Task[string], 0, len(defs))
	metas := make([]queue.Meta, 0, len(defs))
	for i, d := range defs {
		task, meta, err := Build(d, client)
		if err != nil {
			return nil, nil, fmt.Errorf("tasks[%d]: %w", i, err)
		}
		tasks = append(tasks, task)
		metas = append(metas, meta)
	}
	return tasks, metas, nil
}

func parseOptionalDuration(field, raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", field, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", field)
	}
	return d, nil
}
