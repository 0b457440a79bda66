package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// PrettyHandler is a compact slog handler for console output.
//
// Format:
//
//	15:04:05.000 INF [component] message key=value ...
type PrettyHandler struct {
	w       io.Writer
	mu      *sync.Mutex
	level   slog.Level
	attrs   []slog.Attr
	timeFmt string
}

func NewPrettyHandler(w io.Writer, level slog.Level) *PrettyHandler {
	return &PrettyHandler{
		w:       w,
		mu:      &sync.Mutex{},
		level:   level,
		timeFmt: "15:04:05.000",
	}
}

func (h *PrettyHandler) Enabled(_ context.Context, lvl slog.Level) bool {
	return lvl >= h.level
}

func (h *PrettyHandler) Handle(_ context.Context, r slog.Record) error {
	comp := ""
	attrs := make([]slog.Attr, 0, len(h.attrs)+r.NumAttrs())
	attrs = append(attrs, h.attrs...)
	r.Attrs(func(a slog.Attr) bool {
		attrs = append(attrs, a)
		return true
	})

	kept := attrs[:0]
	for _, a := range attrs {
		if a.Key == "comp" || a.Key == "component" {
			comp = fmt.Sprint(a.Value.Any())
			continue
		}
		kept = append(kept, a)
	}

	var b strings.Builder
	b.WriteString(r.Time.Local().Format(h.timeFmt))
	b.WriteString(" ")
	b.WriteString(levelShort(r.Level))
	if comp != "" {
		b.WriteString(" [")
		b.WriteString(comp)
		b.WriteString("]")
	}
	b.WriteString(" ")
	b.WriteString(r.Message)
	for _, a := range kept {
		b.WriteString(" ")
		b.WriteString(a.Key)
		b.WriteString("=")
		b.WriteString(valString(a.Value))
	}
	b.WriteString("\n")

	h.mu.Lock()
	_, err := io.WriteString(h.w, b.String())
	h.mu.Unlock()
	return err
}

func (h *PrettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	cp := *h
	cp.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &cp
}

func (h *PrettyHandler) WithGroup(string) slog.Handler { return h }

func levelShort(l slog.Level) string {
	switch {
	case l >= slog.LevelError:
		return "ERR"
	case l >= slog.LevelWarn:
		return "WRN"
	case l >= slog.LevelInfo:
		return "INF"
	default:
		return "DBG"
	}
}

func valString(v slog.Value) string {
	v = v.Resolve()
	switch v.Kind() {
	case slog.KindDuration:
		return v.Duration().Round(time.Microsecond).String()
	case slog.KindTime:
		return v.Time().Format(time.RFC3339)
	case slog.KindString:
		s := v.String()
		if strings.ContainsAny(s, " \t") {
			return fmt.Sprintf("%q", s)
		}
		return s
	default:
		return fmt.Sprint(v.Any())
	}
}

// fanout duplicates records to multiple handlers.
type fanout struct{ hs []slog.Handler }

// Fanout returns a handler writing every record to each of h.
func Fanout(h ...slog.Handler) slog.Handler { return &fanout{hs: h} }

func (f *fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f.hs {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f *fanout) Handle(ctx context.Context, r slog.Record) error {
	for _, h := range f.hs {
		if h.Enabled(ctx, r.Level) {
			_ = h.Handle(ctx, r)
		}
	}
	return nil
}

func (f *fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	hs := make([]slog.Handler, len(f.hs))
	for i, h := range f.hs {
		hs[i] = h.WithAttrs(attrs)
	}
	return &fanout{hs: hs}
}

func (f *fanout) WithGroup(name string) slog.Handler {
	hs := make([]slog.Handler, len(f.hs))
	for i, h := range f.hs {
		hs[i] = h.WithGroup(name)
	}
	return &fanout{hs: hs}
}
