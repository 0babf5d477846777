// Package recurrence evaluates cron-style recurrence rules for the
// recurring-task generator. A malformed rule must never take a job run down:
// evaluation degrades to "do not generate" and the error is logged.
package recurrence

import (
	"time"

	"github.com/robfig/cron/v3"

	"taskpilot/pkg/logx"
)

// fallbackStep is returned by NextOccurrence when the rule cannot be
// parsed: one week past the reference instant.
const fallbackStep = 7 * 24 * time.Hour

const dayFormat = "2006-01-02"

// Evaluator parses standard 5-field cron expressions (plus @daily-style
// descriptors, which robfig accepts with the same parser).
type Evaluator struct {
	parser cron.Parser
	log    logx.Logger
}

func New(log logx.Logger) *Evaluator {
	return &Evaluator{
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		log:    log,
	}
}

// ShouldGenerateOn reports whether the rule fires on the calendar day of
// date. Exception dates (formatted "2006-01-02", or any prefix-matching
// timestamp string) suppress generation for that day. Malformed rules
// return false.
func (e *Evaluator) ShouldGenerateOn(rule string, date time.Time, exceptions []string) bool {
	day := date.Format(dayFormat)
	for _, ex := range exceptions {
		if len(ex) >= len(dayFormat) && ex[:len(dayFormat)] == day {
			return false
		}
	}

	sched, err := e.parser.Parse(rule)
	if err != nil {
		e.log.Warn("malformed recurrence rule; skipping generation",
			logx.String("rule", rule), logx.Err(err))
		return false
	}

	// Next fire at-or-after midnight of the reference day. cron.Next is
	// strictly-after, so step back one second from midnight.
	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	next := sched.Next(dayStart.Add(-time.Second))
	return next.Format(dayFormat) == day
}

// NextOccurrence returns the next fire time strictly after from. Malformed
// rules degrade to from + 7 days.
func (e *Evaluator) NextOccurrence(rule string, from time.Time) time.Time {
	sched, err := e.parser.Parse(rule)
	if err != nil {
		e.log.Warn("malformed recurrence rule; using fallback occurrence",
			logx.String("rule", rule), logx.Err(err))
		return from.Add(fallbackStep)
	}
	return sched.Next(from)
}
