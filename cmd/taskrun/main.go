// Command taskrun executes the tasks declared in a run-spec file under a
// bounded concurrency limit, with retries, timeouts, optional priority
// ordering and batching, and prints a summary report.
//
// With a schedule configured the process stays up and repeats the run on the
// schedule, reloading the spec file when it changes on disk.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"taskrun/internal/config"
	"taskrun/internal/history"
	"taskrun/internal/logging"
	"taskrun/internal/metrics"
	"taskrun/internal/queue"
	"taskrun/internal/schedule"
	"taskrun/internal/summary"
	"taskrun/internal/taskdef"
	"taskrun/pkg/logx"
)

func main() {
	var (
		cfgPath     string
		logLevel    string
		once        bool
		tail        int
		concurrency int
	)
	flag.StringVar(&cfgPath, "config", "./taskrun.yaml", "path to run-spec (json or yaml)")
	flag.StringVar(&logLevel, "log-level", "", "override logging.level from the spec")
	flag.BoolVar(&once, "once", false, "run once even when a schedule is configured")
	flag.IntVar(&tail, "tail", 0, "print the last N runs from history and exit")
	flag.IntVar(&concurrency, "concurrency", 0, "override runner.concurrency from the spec")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	boot := logx.New(logx.Config{Level: "info", Console: true})

	mgr := config.NewManager(cfgPath)
	mgr.SetLogger(boot)
	cfg, err := mgr.Load()
	if err != nil {
		boot.Error("config load failed", logx.String("path", cfgPath), logx.Err(err))
		os.Exit(1)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if concurrency > 0 {
		cfg.Runner.Concurrency = concurrency
	}

	log, logCloser, err := logging.New(logging.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File:    logging.FileConfig{Enabled: cfg.Logging.File != "", Path: cfg.Logging.File},
	})
	if err != nil {
		boot.Error("logger setup failed", logx.Err(err))
		os.Exit(1)
	}
	if logCloser != nil {
		defer logCloser.Close()
	}

	app := &app{mgr: mgr, log: log}

	if cfg.History.Enabled {
		busy, _ := cfg.History.BusyTimeoutDuration()
		store, err := history.Open(history.Config{Path: cfg.History.Path, BusyTimeout: busy}, log.With(slog.String("comp", "history")))
		if err != nil {
			log.Error("history open failed", slog.Any("err", err))
			os.Exit(1)
		}
		defer store.Close()
		app.store = store
	}

	if tail > 0 {
		if app.store == nil {
			fmt.Fprintln(os.Stderr, "history is not enabled in the spec")
			os.Exit(1)
		}
		if err := printTail(ctx, app.store, tail); err != nil {
			log.Error("history read failed", slog.Any("err", err))
			os.Exit(1)
		}
		return
	}

	if cfg.Metrics.Enabled {
		app.metrics = metrics.NewRecorder()
		srv := serveMetrics(cfg.Metrics.Addr, app.metrics, log)
		defer func() {
			shCtx, shCancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer shCancel()
			_ = srv.Shutdown(shCtx)
		}()
	}

	if cfg.Schedule == "" || once {
		failed, err := app.runOnce(ctx, cfg)
		if err != nil {
			log.Error("run failed", slog.Any("err", err))
			os.Exit(1)
		}
		if failed {
			os.Exit(1)
		}
		return
	}

	if err := app.runScheduled(ctx, cfg); err != nil {
		log.Error("scheduled mode failed", slog.Any("err", err))
		os.Exit(1)
	}
}

type app struct {
	mgr     *config.Manager
	log     *slog.Logger
	store   *history.Store
	metrics *metrics.Recorder
}

// runOnce executes one full pass over the spec's tasks. It reports whether
// any task failed; err covers setup problems only.
func (a *app) runOnce(ctx context.Context, cfg *config.Config) (failed bool, err error) {
	opts, err := cfg.Runner.QueueOptions()
	if err != nil {
		return false, err
	}
	tasks, metas, err := taskdef.BuildAll(cfg.Tasks, &http.Client{})
	if err != nil {
		return false, err
	}

	q := queue.New[string](opts, a.log.With(slog.String("comp", "queue")))
	for i, task := range tasks {
		if _, err := q.Add(task, metas[i]); err != nil {
			return false, err
		}
	}
	a.registerEventLogging(q)
	if a.metrics != nil {
		metrics.Attach(a.metrics, q)
	}

	start := time.Now()
	results, err := q.Run(ctx)
	if err != nil {
		return false, err
	}
	sum := summary.Compute(results, start, time.Now())

	if err := summary.WriteText(os.Stdout, sum); err != nil {
		return sum.Failed > 0, err
	}

	if a.store != nil {
		hCtx, hCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer hCancel()
		if err := a.store.AppendRun(hCtx, uuid.NewString(), sum, results, metas); err != nil {
			a.log.Warn("history append failed", slog.Any("err", err))
		}
	}
	return sum.Failed > 0, nil
}

// runScheduled repeats runOnce on the configured schedule until ctx is done,
// reloading the spec between runs when the file changes.
func (a *app) runScheduled(ctx context.Context, cfg *config.Config) error {
	spec, err := schedule.Parse(cfg.Schedule)
	if err != nil {
		return err
	}

	go func() {
		if err := a.mgr.Watch(ctx); err != nil {
			a.log.Warn("config watch stopped", slog.Any("err", err))
		}
	}()

	var running atomic.Bool
	c := cron.New()
	_, err = c.AddFunc(spec.CronExpr(), func() {
		// Skip a trigger if the previous run is still going.
		if !running.CompareAndSwap(false, true) {
			a.log.Warn("previous run still in progress; skipping trigger")
			return
		}
		defer running.Store(false)

		cur := a.mgr.Get()
		if cur == nil {
			cur = cfg
		}
		if _, err := a.runOnce(ctx, cur); err != nil {
			if !errors.Is(err, context.Canceled) {
				a.log.Error("scheduled run failed", slog.Any("err", err))
			}
		}
	})
	if err != nil {
		return fmt.Errorf("schedule %q: %w", cfg.Schedule, err)
	}

	a.log.Info("scheduled mode started", slog.String("schedule", spec.String()))
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

func (a *app) registerEventLogging(q *queue.Queue[string]) {
	log := a.log.With(slog.String("comp", "run"))

	q.On(queue.EventStart, func(e queue.Event) {
		d := e.Data.(queue.StartData)
		log.Info("run started", slog.Int("tasks", d.Total))
	})
	q.On(queue.EventBatchStart, func(e queue.Event) {
		d := e.Data.(queue.BatchStartData)
		log.Debug("batch started", slog.Int("batch", d.Number), slog.Int("size", d.Size))
	})
	q.On(queue.EventProgress, func(e queue.Event) {
		d := e.Data.(queue.ProgressData)
		log.Debug("progress", slog.Int("completed", d.Completed), slog.Int("total", d.Total), slog.Int("running", d.Running))
	})
	q.On(queue.EventPause, func(queue.Event) { log.Warn("run paused") })
	q.On(queue.EventResume, func(queue.Event) { log.Info("run resumed") })
	q.On(queue.EventStop, func(queue.Event) { log.Warn("run stopped") })
	q.On(queue.EventComplete, func(e queue.Event) {
		d := e.Data.(queue.CompleteData)
		log.Info("run complete",
			slog.Int("succeeded", d.Summary.Succeeded),
			slog.Int("failed", d.Summary.Failed),
			slog.Duration("elapsed", d.Summary.Elapsed))
	})
}

func serveMetrics(addr string, rec *metrics.Recorder, log *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", rec.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		log.Info("metrics listening", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn("metrics server stopped", slog.Any("err", err))
		}
	}()
	return srv
}

func printTail(ctx context.Context, store *history.Store, n int) error {
	rows, err := store.Tail(ctx, n)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Println("no recorded runs")
		return nil
	}
	for _, r := range rows {
		fmt.Printf("%s  %s  total=%d ok=%d failed=%d timed_out=%d elapsed=%s\n",
			r.Started.Format(time.RFC3339), r.ID, r.Total, r.Succeeded, r.Failed, r.TimedOut,
			r.Elapsed.Round(time.Millisecond))
	}
	return nil
}
