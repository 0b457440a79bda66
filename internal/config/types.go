// Package config loads and validates the taskrun run-spec file. Files may be
// JSON or YAML; YAML is coerced to JSON bytes so both formats go through the
// same strict decoder.
package config

import (
	"fmt"
	"strings"
	"time"

	"taskrun/internal/queue"
	"taskrun/internal/taskdef"
)

// Config is the root of the run-spec file.
type Config struct {
	Runner   RunnerConfig         `json:"runner"`
	Tasks    []taskdef.Definition `json:"tasks"`
	Logging  LoggingConfig        `json:"logging"`
	Schedule string               `json:"schedule,omitempty"`
	History  HistoryConfig        `json:"history"`
	Metrics  MetricsConfig        `json:"metrics"`
}

// RunnerConfig carries the scheduling policy. Durations are Go duration
// strings ("500ms", "2s") so specs stay readable.
type RunnerConfig struct {
	Concurrency        int     `json:"concurrency,omitempty"`
	Retries            int     `json:"retries,omitempty"`
	RetryDelay         string  `json:"retry_delay,omitempty"`
	ExponentialBackoff bool    `json:"exponential_backoff,omitempty"`
	MaxRetryDelay      string  `json:"max_retry_delay,omitempty"`
	Timeout            string  `json:"timeout,omitempty"`
	RatePerSec         float64 `json:"rate_per_sec,omitempty"`
	BatchSize          int     `json:"batch_size,omitempty"`
	BatchDelay         string  `json:"batch_delay,omitempty"`
	PriorityQueue      bool    `json:"priority_queue,omitempty"`
	PauseOnError       bool    `json:"pause_on_error,omitempty"`
	StopOnError        bool    `json:"stop_on_error,omitempty"`
}

type LoggingConfig struct {
	Level   string `json:"level,omitempty"`
	Console bool   `json:"console,omitempty"`
	File    string `json:"file,omitempty"`
}

type HistoryConfig struct {
	Enabled     bool   `json:"enabled,omitempty"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled,omitempty"`
	Addr    string `json:"addr,omitempty"`
}

// QueueOptions translates the runner section into queue options, applying
// defaults and validating ranges.
func (r RunnerConfig) QueueOptions() (queue.Options, error) {
	opts := queue.Options{
		Concurrency:        r.Concurrency,
		Retries:            r.Retries,
		ExponentialBackoff: r.ExponentialBackoff,
		RatePerSec:         r.RatePerSec,
		BatchSize:          r.BatchSize,
		Priority:           r.PriorityQueue,
		PauseOnError:       r.PauseOnError,
		StopOnError:        r.StopOnError,
	}
	if opts.Concurrency == 0 {
		opts.Concurrency = 1
	}
	if opts.Concurrency < 0 {
		return opts, fmt.Errorf("runner.concurrency: must be >= 1")
	}
	if opts.Retries < 0 {
		return opts, fmt.Errorf("runner.retries: must be >= 0")
	}
	if opts.BatchSize < 0 {
		return opts, fmt.Errorf("runner.batch_size: must be >= 0")
	}
	if opts.RatePerSec < 0 {
		return opts, fmt.Errorf("runner.rate_per_sec: must be >= 0")
	}

	var err error
	if opts.RetryDelay, err = parseDuration("runner.retry_delay", r.RetryDelay); err != nil {
		return opts, err
	}
	if opts.MaxRetryDelay, err = parseDuration("runner.max_retry_delay", r.MaxRetryDelay); err != nil {
		return opts, err
	}
	if opts.Timeout, err = parseDuration("runner.timeout", r.Timeout); err != nil {
		return opts, err
	}
	if opts.BatchDelay, err = parseDuration("runner.batch_delay", r.BatchDelay); err != nil {
		return opts, err
	}
	return opts, nil
}

// BusyTimeoutDuration parses the sqlite busy timeout, defaulting to zero.
func (h HistoryConfig) BusyTimeoutDuration() (time.Duration, error) {
	return parseDuration("history.busy_timeout", h.BusyTimeout)
}

// Validate checks everything that can fail without running tasks.
func (c *Config) Validate() error {
	if _, err := c.Runner.QueueOptions(); err != nil {
		return err
	}
	if _, err := c.History.BusyTimeoutDuration(); err != nil {
		return err
	}
	if c.History.Enabled && strings.TrimSpace(c.History.Path) == "" {
		return fmt.Errorf("history.path: required when history is enabled")
	}
	if c.Metrics.Enabled && strings.TrimSpace(c.Metrics.Addr) == "" {
		return fmt.Errorf("metrics.addr: required when metrics are enabled")
	}
	for i, d := range c.Tasks {
		if strings.TrimSpace(d.Type) == "" {
			return fmt.Errorf("tasks[%d]: type is required", i)
		}
	}
	return nil
}

func parseDuration(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}
