// Package escalation is the pure policy mapping elapsed time past a
// deadline to active recipient tiers and a severity label. Thresholds are
// per-job data so the same policy covers task and timesheet escalation.
package escalation

import "time"

// Tier identifies an escalation level. Tiers accumulate: once a higher tier
// activates, all lower tiers keep being re-notified.
type Tier int

const (
	TierSelf     Tier = 1 // owner and task members
	TierManager  Tier = 2 // direct manager
	TierApprover Tier = 3 // org-level approvers (+ project approvers)
)

// Thresholds are day counts at which each tier activates. They must be
// strictly increasing.
type Thresholds struct {
	First  float64
	Second float64
	Third  float64
}

// TaskDefaults is the task-overdue ladder: day 1 / 3 / 7.
var TaskDefaults = Thresholds{First: 1, Second: 3, Third: 7}

// TimesheetDefaults is the missing-timesheet ladder: day 3 / 5 / 7.
var TimesheetDefaults = Thresholds{First: 3, Second: 5, Third: 7}

// SLA is the derived severity label.
type SLA string

const (
	SLAOnTrack  SLA = "ON_TRACK"
	SLAAtRisk   SLA = "AT_RISK"
	SLABreached SLA = "BREACHED"
)

// Tiers returns the active tiers, in ascending order, for the given elapsed
// days. Below the first threshold nothing is active yet.
func Tiers(daysElapsed float64, t Thresholds) []Tier {
	switch {
	case daysElapsed < t.First:
		return nil
	case daysElapsed < t.Second:
		return []Tier{TierSelf}
	case daysElapsed < t.Third:
		return []Tier{TierSelf, TierManager}
	default:
		return []Tier{TierSelf, TierManager, TierApprover}
	}
}

// Status derives the SLA label from elapsed days.
func Status(daysElapsed float64, t Thresholds) SLA {
	switch {
	case daysElapsed < t.Second:
		return SLAOnTrack
	case daysElapsed < t.Third:
		return SLAAtRisk
	default:
		return SLABreached
	}
}

// Critical reports whether the top tier is active.
func Critical(daysElapsed float64, t Thresholds) bool {
	return daysElapsed >= t.Third
}

// DaysSince is the elapsed time in fractional days, as a raw UTC delta.
// Deliberately no per-user timezone normalization: boundaries can land up
// to a day off for users far from UTC, matching the stored-timestamp math
// the rest of the system uses.
func DaysSince(past, now time.Time) float64 {
	return now.Sub(past).Hours() / 24
}
