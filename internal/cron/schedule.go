package cron

import (
	"fmt"
	"strings"
	"time"

	robfig "github.com/robfig/cron/v3"
)

// parser accepts standard 5-field expressions: minute, hour, day-of-month,
// month, day-of-week.
var parser = robfig.NewParser(
	robfig.Minute | robfig.Hour | robfig.Dom | robfig.Month | robfig.Dow,
)

// Schedule is a parsed cron expression.
type Schedule struct {
	Expr string
	spec robfig.Schedule
}

// Parse validates and compiles a cron expression. Jobs keep the raw
// expression; compiling happens once at registration so syntax errors
// surface there and not at tick time.
func Parse(expr string) (Schedule, error) {
	trimmed := strings.TrimSpace(expr)
	if trimmed == "" {
		return Schedule{}, fmt.Errorf("cron expression is empty")
	}
	spec, err := parser.Parse(trimmed)
	if err != nil {
		return Schedule{}, fmt.Errorf("invalid cron expression %q: %w", trimmed, err)
	}
	return Schedule{Expr: trimmed, spec: spec}, nil
}

// Matches reports whether the expression fires during the minute containing t.
func (s Schedule) Matches(t time.Time) bool {
	if s.spec == nil {
		return false
	}
	minute := t.Truncate(time.Minute)
	return s.spec.Next(minute.Add(-time.Second)).Equal(minute)
}

// Next returns the first firing strictly after t, or the zero time when the
// schedule never fires again.
func (s Schedule) Next(t time.Time) time.Time {
	if s.spec == nil {
		return time.Time{}
	}
	return s.spec.Next(t)
}
