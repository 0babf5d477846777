package jobs

import (
	"context"
	"fmt"
	"time"

	"taskpilot/internal/dispatch"
	"taskpilot/internal/escalation"
)

// weekStart normalizes t to the Monday 00:00 of its week, in t's location.
func weekStart(t time.Time) time.Time {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	offset := (int(day.Weekday()) + 6) % 7 // Monday=0
	return day.AddDate(0, 0, -offset)
}

// TimesheetOverdue escalates for users who never created a timesheet for
// last week. Escalation is computed fresh from daysSinceDue each run; there
// is no processed marker, and the candidate clears itself the moment the
// user files the sheet.
func (d Deps) TimesheetOverdue(ctx context.Context) (Result, error) {
	d = d.withDefaults()
	now := d.now()

	lastWeek := weekStart(now.AddDate(0, 0, -7))
	// The sheet for last week was due when this week started.
	dueAt := lastWeek.AddDate(0, 0, 7)

	users, err := d.Sheets.UsersMissingTimesheet(ctx, lastWeek, d.Cfg.PageSize)
	if err != nil {
		return Result{}, fmt.Errorf("find users missing timesheet: %w", err)
	}
	res := Result{Timestamp: now}

	daysSinceDue := escalation.DaysSince(dueAt, now)
	tiers := escalation.Tiers(daysSinceDue, d.Cfg.SheetEscalation)
	critical := escalation.Critical(daysSinceDue, d.Cfg.SheetEscalation)

	for _, u := range users {
		u := u
		cr := CandidateResult{ID: u.ID}
		d.candidateStep(u.ID, &cr, func() error {
			if len(tiers) == 0 {
				return nil
			}
			targets, err := d.escalationTargets(ctx, u.ID, nil, nil, tiers)
			if err != nil {
				return err
			}
			title := fmt.Sprintf("Missing timesheet: %s", u.Name)
			if critical {
				title = "CRITICAL " + title
			}
			d.dispatchAll(ctx, targets, dispatch.Event{
				Title:    title,
				Message:  fmt.Sprintf("%s has not submitted a timesheet for the week of %s (%d days overdue).", u.Name, lastWeek.Format("Jan 2"), int(daysSinceDue)),
				Type:     "TIMESHEET_OVERDUE",
				Link:     d.Cfg.BaseLink + "/timesheets",
				Critical: critical,
			}, &cr)
			return nil
		})
		res.Results = append(res.Results, cr)
		res.Processed++
	}
	return res, nil
}
