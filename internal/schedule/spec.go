// Package schedule parses the run-spec schedule string used by recurring
// mode. A schedule is either a cron expression (robfig/cron) or a fixed
// interval.
package schedule

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

type Kind int

const (
	KindCron Kind = iota
	KindInterval
)

// Spec is a parsed schedule.
//
// Supported forms:
//   - Cron: "*/5 * * * *", "@hourly", "@every 55m"
//   - Interval duration: "55m", "2h30m"
//   - Interval HH:MM: "00:50" (50 minutes), "02:30" (2h30m)
//
// The prefixes "cron:" and "every:" (alias "interval:") force an
// interpretation.
type Spec struct {
	Kind  Kind
	Cron  string
	Every time.Duration
}

// CronExpr renders the spec in the syntax robfig/cron accepts.
func (s Spec) CronExpr() string {
	if s.Kind == KindInterval {
		return "@every " + s.Every.String()
	}
	return s.Cron
}

func (s Spec) String() string { return s.CronExpr() }

var reHHMM = regexp.MustCompile(`^\s*(\d{1,3}):(\d{2})\s*$`)

// Parse normalizes a schedule string.
func Parse(raw string) (Spec, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Spec{}, fmt.Errorf("schedule required")
	}

	low := strings.ToLower(s)
	if rest, ok := strings.CutPrefix(low, "cron:"); ok {
		expr := strings.TrimSpace(s[len(s)-len(rest):])
		if expr == "" {
			return Spec{}, fmt.Errorf("cron expression required after 'cron:'")
		}
		return cronSpec(expr)
	}
	for _, prefix := range []string{"every:", "interval:"} {
		if rest, ok := strings.CutPrefix(low, prefix); ok {
			d, err := parseInterval(strings.TrimSpace(s[len(s)-len(rest):]))
			if err != nil {
				return Spec{}, err
			}
			return Spec{Kind: KindInterval, Every: d}, nil
		}
	}

	// Whitespace or a leading '@' means cron syntax.
	if strings.ContainsAny(s, " \t") || strings.HasPrefix(s, "@") {
		return cronSpec(s)
	}

	if reHHMM.MatchString(s) {
		d, err := parseHHMM(s)
		if err != nil {
			return Spec{}, err
		}
		return Spec{Kind: KindInterval, Every: d}, nil
	}

	if d, err := time.ParseDuration(s); err == nil {
		if d <= 0 {
			return Spec{}, fmt.Errorf("interval must be > 0")
		}
		return Spec{Kind: KindInterval, Every: d}, nil
	}

	return Spec{}, fmt.Errorf(
		"invalid schedule %q (use cron like '*/5 * * * *', HH:MM like '02:30', or a duration like '55m')", raw)
}

// cronSpec validates the expression with the same parser scheduled mode
// hands it to, so a bad spec fails at load time rather than at AddFunc.
func cronSpec(expr string) (Spec, error) {
	if _, err := cron.ParseStandard(expr); err != nil {
		return Spec{}, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return Spec{Kind: KindCron, Cron: expr}, nil
}

func parseInterval(v string) (time.Duration, error) {
	if v == "" {
		return 0, fmt.Errorf("interval required")
	}
	if reHHMM.MatchString(v) {
		return parseHHMM(v)
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid interval %q (use HH:MM or a Go duration)", v)
	}
	if d <= 0 {
		return 0, fmt.Errorf("interval must be > 0")
	}
	return d, nil
}

// parseHHMM reads "HH:MM" as a duration: hours and minutes, not a clock time.
func parseHHMM(v string) (time.Duration, error) {
	m := reHHMM.FindStringSubmatch(v)
	if m == nil {
		return 0, fmt.Errorf("invalid HH:MM interval %q", v)
	}
	var h, min int
	_, _ = fmt.Sscanf(m[1], "%d", &h)
	_, _ = fmt.Sscanf(m[2], "%d", &min)
	if min > 59 {
		return 0, fmt.Errorf("invalid minutes in %q", v)
	}
	d := time.Duration(h)*time.Hour + time.Duration(min)*time.Minute
	if d <= 0 {
		return 0, fmt.Errorf("interval must be > 0")
	}
	return d, nil
}
