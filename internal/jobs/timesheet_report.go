package jobs

import (
	"context"
	"fmt"
	"time"

	"taskpilot/internal/dispatch"
	"taskpilot/internal/store"
)

// WeeklyReport aggregates one report window's timesheets.
type WeeklyReport struct {
	WeekStart  time.Time
	Total      int
	Draft      int
	Pending    int
	Approved   int
	Rejected   int
	TotalHours float64
}

// ComplianceRate is the share of sheets that made it out of DRAFT, as a
// percentage. Zero sheets means zero rate.
func (r WeeklyReport) ComplianceRate() float64 {
	if r.Total == 0 {
		return 0
	}
	return float64(r.Total-r.Draft) / float64(r.Total) * 100
}

// BuildWeeklyReport folds a window's sheets into the digest numbers.
func BuildWeeklyReport(weekStart time.Time, sheets []store.Timesheet) WeeklyReport {
	r := WeeklyReport{WeekStart: weekStart, Total: len(sheets)}
	for _, sheet := range sheets {
		r.TotalHours += sheet.TotalHours
		switch sheet.Status {
		case store.SheetDraft:
			r.Draft++
		case store.SheetPending:
			r.Pending++
		case store.SheetApproved:
			r.Approved++
		case store.SheetRejected:
			r.Rejected++
		}
	}
	return r
}

// TimesheetWeeklyReport emails the prior Mon-Sun digest to the org approver
// set (ADMIN/HR). This job aggregates rather than iterating candidates:
// Processed counts sheets in the window, Results carries one entry per
// recipient.
func (d Deps) TimesheetWeeklyReport(ctx context.Context) (Result, error) {
	d = d.withDefaults()
	now := d.now()

	from := weekStart(now.AddDate(0, 0, -7))
	to := from.AddDate(0, 0, 7)
	sheets, err := d.Sheets.TimesheetsInWindow(ctx, from, to)
	if err != nil {
		return Result{}, fmt.Errorf("load report window: %w", err)
	}
	report := BuildWeeklyReport(from, sheets)

	recipients, err := d.Directory.OrgApprovers(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("resolve report recipients: %w", err)
	}

	res := Result{Timestamp: now, Processed: report.Total}
	ev := dispatch.Event{
		Title: fmt.Sprintf("Weekly timesheet report - week of %s", from.Format("Jan 2")),
		Message: fmt.Sprintf(
			"Timesheets: %d total (%d draft, %d pending, %d approved, %d rejected). Hours logged: %.1f. Compliance: %.1f%%.",
			report.Total, report.Draft, report.Pending, report.Approved, report.Rejected,
			report.TotalHours, report.ComplianceRate()),
		Type: "TIMESHEET_REPORT",
		Link: d.Cfg.BaseLink + "/reports/timesheets",
	}
	for _, rcpt := range recipients {
		rcpt := rcpt
		cr := CandidateResult{ID: rcpt.ID}
		d.candidateStep(rcpt.ID, &cr, func() error {
			d.dispatchAll(ctx, []store.User{rcpt}, ev, &cr)
			return nil
		})
		res.Results = append(res.Results, cr)
	}
	return res, nil
}
