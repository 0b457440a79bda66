// Package logx is a small zerolog wrapper used for early-boot logging and by
// components that run before the service logger exists (the config manager).
// The zero Logger value is a safe no-op.
package logx

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type Config struct {
	Level   string
	Console bool
}

// Field mutates a zerolog event. This mirrors the ergonomics of slog.Attr
// without depending on slog; fields are applied in order, later keys win.
type Field func(e *zerolog.Event)

func String(k, v string) Field  { return func(e *zerolog.Event) { e.Str(k, v) } }
func Int(k string, v int) Field { return func(e *zerolog.Event) { e.Int(k, v) } }
func Bool(k string, v bool) Field {
	return func(e *zerolog.Event) { e.Bool(k, v) }
}
func Duration(k string, v time.Duration) Field {
	return func(e *zerolog.Event) { e.Dur(k, v) }
}
func Any(k string, v any) Field { return func(e *zerolog.Event) { e.Interface(k, v) } }
func Err(err error) Field {
	return func(e *zerolog.Event) {
		if err != nil {
			e.Err(err)
		}
	}
}

// Logger is a lightweight structured logger.
type Logger struct {
	base    zerolog.Logger
	hasBase bool
	fields  []Field
}

// New builds a logger writing to stderr, as console text or JSON lines.
func New(cfg Config) Logger {
	var w io.Writer = os.Stderr
	if cfg.Console {
		w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05.000"}
	}
	lvl := parseLevel(cfg.Level)
	l := zerolog.New(w).Level(lvl).With().Timestamp().Logger()
	return Logger{base: l, hasBase: true}
}

// Nop returns a logger that never writes anything.
func Nop() Logger {
	return Logger{base: zerolog.Nop(), hasBase: true}
}

// IsZero reports whether the logger was never initialized. A zero logger
// still accepts log calls and drops them.
func (l Logger) IsZero() bool { return !l.hasBase }

// With returns a derived logger with fixed fields. Fields are kept as-is and
// applied to every event, since zerolog contexts only take typed setters.
func (l Logger) With(fields ...Field) Logger {
	if !l.hasBase {
		return l
	}
	out := l
	out.fields = append(append([]Field(nil), l.fields...), fields...)
	return out
}

func (l Logger) Debug(msg string, fields ...Field) { l.log(l.base.Debug(), msg, fields) }
func (l Logger) Info(msg string, fields ...Field)  { l.log(l.base.Info(), msg, fields) }
func (l Logger) Warn(msg string, fields ...Field)  { l.log(l.base.Warn(), msg, fields) }
func (l Logger) Error(msg string, fields ...Field) { l.log(l.base.Error(), msg, fields) }

func (l Logger) log(e *zerolog.Event, msg string, fields []Field) {
	if !l.hasBase || e == nil {
		return
	}
	for _, f := range l.fields {
		f(e)
	}
	for _, f := range fields {
		f(e)
	}
	e.Msg(msg)
}

func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "", "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
