// Package recurrence evaluates calendar repeat rules as a pure function of
// (rule, window), independent of storage and wall clocks.
package recurrence

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// maxOccurrences caps expansion so a long-idle schedule with a tight rule
// cannot produce an unbounded occurrence list.
const maxOccurrences = 1000

var parser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Rule is a parsed recurrence rule.
type Rule struct {
	expr     string
	schedule cron.Schedule
}

// Parse parses a cron expression, including @daily/@every descriptors.
func Parse(expr string) (Rule, error) {
	if expr == "" {
		return Rule{}, fmt.Errorf("empty recurrence rule")
	}
	schedule, err := parser.Parse(expr)
	if err != nil {
		return Rule{}, fmt.Errorf("parse recurrence rule %q: %w", expr, err)
	}
	return Rule{expr: expr, schedule: schedule}, nil
}

// String returns the original expression.
func (r Rule) String() string {
	return r.expr
}

// Next returns the first occurrence strictly after the given time.
func (r Rule) Next(after time.Time) time.Time {
	return r.schedule.Next(after)
}

// Window is a half-open evaluation window (Start, End].
type Window struct {
	Start time.Time
	End   time.Time
}

// Occurrences expands the rule over the window in chronological order.
// Expansion is capped at maxOccurrences.
func (r Rule) Occurrences(w Window) []time.Time {
	var occurrences []time.Time

	t := r.schedule.Next(w.Start)
	for !t.IsZero() && !t.After(w.End) {
		occurrences = append(occurrences, t)
		if len(occurrences) >= maxOccurrences {
			break
		}
		t = r.schedule.Next(t)
	}

	return occurrences
}

// Due reports whether the rule yields at least one occurrence in the window.
func (r Rule) Due(w Window) bool {
	t := r.schedule.Next(w.Start)
	return !t.IsZero() && !t.After(w.End)
}
