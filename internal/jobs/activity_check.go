package jobs

import (
	"context"
	"fmt"

	"taskpilot/internal/dispatch"
	"taskpilot/internal/escalation"
)

// ActivityCheck flags suspicious hour totals while the parent sheet is
// still editable: activities above the cap, and sheets whose aggregate
// exceeds it directly. Only the owning user is notified; this is a
// data-quality nudge, not an escalation.
func (d Deps) ActivityCheck(ctx context.Context) (Result, error) {
	d = d.withDefaults()
	now := d.now()
	maxHours := d.Cfg.ActivityMaxHours
	res := Result{Timestamp: now}

	acts, err := d.Sheets.OverHourActivities(ctx, maxHours, d.Cfg.PageSize)
	if err != nil {
		return Result{}, fmt.Errorf("find over-hour activities: %w", err)
	}
	for _, a := range acts {
		a := a
		cr := CandidateResult{ID: a.ID}
		d.candidateStep(a.ID, &cr, func() error {
			targets, err := d.escalationTargets(ctx, a.UserID, nil, nil, []escalation.Tier{escalation.TierSelf})
			if err != nil {
				return err
			}
			d.dispatchAll(ctx, targets, dispatch.Event{
				Title:   "Check your logged hours",
				Message: fmt.Sprintf("Activity %q logs %.1f hours, above the %.0fh weekly cap. Please verify before submitting.", a.Type, a.TotalHours, maxHours),
				Type:    "ACTIVITY_VALIDATION",
				Link:    d.Cfg.BaseLink + "/timesheets/" + a.TimesheetID,
			}, &cr)
			return nil
		})
		res.Results = append(res.Results, cr)
		res.Processed++
	}

	sheets, err := d.Sheets.OverHourTimesheets(ctx, maxHours, d.Cfg.PageSize)
	if err != nil {
		return res, fmt.Errorf("find over-hour timesheets: %w", err)
	}
	for _, sheet := range sheets {
		sheet := sheet
		cr := CandidateResult{ID: sheet.ID}
		d.candidateStep(sheet.ID, &cr, func() error {
			targets, err := d.escalationTargets(ctx, sheet.UserID, nil, nil, []escalation.Tier{escalation.TierSelf})
			if err != nil {
				return err
			}
			d.dispatchAll(ctx, targets, dispatch.Event{
				Title:   "Check your timesheet total",
				Message: fmt.Sprintf("Your timesheet for the week of %s totals %.1f hours, above the %.0fh weekly cap.", sheet.WeekStart.Format("Jan 2"), sheet.TotalHours, maxHours),
				Type:    "ACTIVITY_VALIDATION",
				Link:    d.Cfg.BaseLink + "/timesheets/" + sheet.ID,
			}, &cr)
			return nil
		})
		res.Results = append(res.Results, cr)
		res.Processed++
	}
	return res, nil
}
