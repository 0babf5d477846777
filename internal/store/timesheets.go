package store

import (
	"context"
	"time"
)

// StaleDraftTimesheets returns DRAFT sheets created before cutoff. The job
// re-fires daily while the sheet stays in DRAFT; there is no processed
// marker by design.
func (s *Store) StaleDraftTimesheets(ctx context.Context, cutoff time.Time, limit int) ([]Timesheet, error) {
	var sheets []Timesheet
	err := s.db.WithContext(ctx).
		Where("status = ?", SheetDraft).
		Where("created_at < ?", cutoff).
		Order("created_at asc").
		Limit(limit).
		Find(&sheets).Error
	return sheets, err
}

// UsersMissingTimesheet returns active employees/managers with no timesheet
// row for the given week start.
func (s *Store) UsersMissingTimesheet(ctx context.Context, weekStart time.Time, limit int) ([]User, error) {
	var users []User
	err := s.db.WithContext(ctx).Raw(`
select u.* from users u
left join timesheets t on t.user_id = u.id and t.week_start = ?
where u.active = true and u.role in ('EMPLOYEE','MANAGER') and t.id is null
order by u.created_at asc
limit ?`, weekStart, limit).Scan(&users).Error
	return users, err
}

// TimesheetsInWindow returns every sheet whose week start falls in
// [from, to). Used by the weekly digest; no per-candidate cap because the
// window itself bounds the set.
func (s *Store) TimesheetsInWindow(ctx context.Context, from, to time.Time) ([]Timesheet, error) {
	var sheets []Timesheet
	err := s.db.WithContext(ctx).
		Where("week_start >= ? AND week_start < ?", from, to).
		Find(&sheets).Error
	return sheets, err
}

// OverHourActivities returns activities above maxHours whose parent sheet is
// still editable (DRAFT or PENDING).
func (s *Store) OverHourActivities(ctx context.Context, maxHours float64, limit int) ([]Activity, error) {
	var acts []Activity
	err := s.db.WithContext(ctx).Raw(`
select a.* from activities a
join timesheets t on t.id = a.timesheet_id
where a.total_hours > ? and t.status in ('DRAFT','PENDING')
order by a.total_hours desc
limit ?`, maxHours, limit).Scan(&acts).Error
	return acts, err
}

// OverHourTimesheets returns editable sheets whose aggregate hours exceed
// maxHours directly.
func (s *Store) OverHourTimesheets(ctx context.Context, maxHours float64, limit int) ([]Timesheet, error) {
	var sheets []Timesheet
	err := s.db.WithContext(ctx).
		Where("total_hours > ?", maxHours).
		Where("status IN ?", []TimesheetStatus{SheetDraft, SheetPending}).
		Order("total_hours desc").
		Limit(limit).
		Find(&sheets).Error
	return sheets, err
}
