// Package history appends finished runs to a local sqlite database. It is an
// append-only journal of results; queue state is never persisted and nothing
// is replayed from it on startup.
package history

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"taskrun/internal/executor"
	"taskrun/internal/queue"
	"taskrun/internal/summary"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type Config struct {
	Path        string
	BusyTimeout time.Duration
}

// Store wraps the sqlite handle. Safe for concurrent use; sqlite itself is
// limited to a single writer, so the pool is capped at one connection.
type Store struct {
	db  *sql.DB
	log *slog.Logger
}

func Open(cfg Config, log *slog.Logger) (*Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("history: path is required")
	}
	if log == nil {
		log = slog.Default()
	}
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &Store{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *Store) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// AppendRun records one finished run and its per-task results in a single
// transaction.
func (s *Store) AppendRun(ctx context.Context, runID string, sum summary.Summary, results []executor.Result[string], metas []queue.Meta) error {
	if s == nil || s.db == nil {
		return errors.New("history: store closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs(id, started_at, finished_at, total, succeeded, failed, timed_out, attempts, task_ms, elapsed_ms)
		 VALUES(?,?,?,?,?,?,?,?,?,?)`,
		runID,
		sum.Start.Format(time.RFC3339Nano),
		sum.End.Format(time.RFC3339Nano),
		sum.Total, sum.Succeeded, sum.Failed, sum.TimedOut, sum.Attempts,
		sum.TaskTime.Milliseconds(), sum.Elapsed.Milliseconds(),
	)
	if err != nil {
		return err
	}

	for i, r := range results {
		var taskID, name string
		if i < len(metas) {
			taskID = metas[i].ID
			name = metas[i].Name
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO task_results(run_id, idx, task_id, name, ok, attempts, timed_out, took_ms, err)
			 VALUES(?,?,?,?,?,?,?,?,?)`,
			runID, r.Index, taskID, nullStr(name), r.OK, r.Attempts, r.TimedOut,
			r.Duration.Milliseconds(), nullErr(r.Err),
		)
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	s.log.Debug("run appended to history", slog.String("run", runID), slog.Int("tasks", len(results)))
	return nil
}

// RunRow is one journal entry as returned by Tail.
type RunRow struct {
	ID        string
	Started   time.Time
	Finished  time.Time
	Total     int
	Succeeded int
	Failed    int
	TimedOut  int
	Elapsed   time.Duration
}

// Tail returns the most recent runs, newest first.
func (s *Store) Tail(ctx context.Context, limit int) ([]RunRow, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("history: store closed")
	}
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, finished_at, total, succeeded, failed, timed_out, elapsed_ms
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunRow
	for rows.Next() {
		var r RunRow
		var started, finished string
		var elapsedMS int64
		if err := rows.Scan(&r.ID, &started, &finished, &r.Total, &r.Succeeded, &r.Failed, &r.TimedOut, &elapsedMS); err != nil {
			return nil, err
		}
		r.Started, _ = time.Parse(time.RFC3339Nano, started)
		r.Finished, _ = time.Parse(time.RFC3339Nano, finished)
		r.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		out = append(out, r)
	}
	return out, rows.Err()
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

func nullErr(err error) any {
	if err == nil {
		return nil
	}
	return err.Error()
}
