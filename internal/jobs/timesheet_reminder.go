package jobs

import (
	"context"
	"fmt"
	"time"

	"taskpilot/internal/dispatch"
	"taskpilot/internal/escalation"
)

// staleDraftAge is how long a timesheet may sit in DRAFT before the daily
// validation reminder starts firing.
const staleDraftAge = 3 * 24 * time.Hour

// TimesheetReminder nudges owners of timesheets stuck in DRAFT. Pure
// reminder: no marker is written, the job re-fires every day until the
// sheet leaves DRAFT and drops out of the candidate set.
func (d Deps) TimesheetReminder(ctx context.Context) (Result, error) {
	d = d.withDefaults()
	now := d.now()

	sheets, err := d.Sheets.StaleDraftTimesheets(ctx, now.Add(-staleDraftAge), d.Cfg.PageSize)
	if err != nil {
		return Result{}, fmt.Errorf("find stale drafts: %w", err)
	}
	res := Result{Timestamp: now}

	for _, sheet := range sheets {
		sheet := sheet
		cr := CandidateResult{ID: sheet.ID}
		d.candidateStep(sheet.ID, &cr, func() error {
			targets, err := d.escalationTargets(ctx, sheet.UserID, nil, nil, []escalation.Tier{escalation.TierSelf})
			if err != nil {
				return err
			}
			d.dispatchAll(ctx, targets, dispatch.Event{
				Title:   "Timesheet still in draft",
				Message: fmt.Sprintf("Your timesheet for the week of %s has been in draft for %d days. Submit it for validation.", sheet.WeekStart.Format("Jan 2"), int(escalation.DaysSince(sheet.CreatedAt, now))),
				Type:    "TIMESHEET_VALIDATION",
				Link:    d.Cfg.BaseLink + "/timesheets/" + sheet.ID,
			}, &cr)
			return nil
		})
		res.Results = append(res.Results, cr)
		res.Processed++
	}
	return res, nil
}
