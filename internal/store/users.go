package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// UserByID returns the user or nil when it does not exist.
func (s *Store) UserByID(ctx context.Context, id string) (*User, error) {
	var u User
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// ManagerOf resolves the direct manager of a user; nil when the user has
// none (top of the chain) or the user is unknown.
func (s *Store) ManagerOf(ctx context.Context, userID string) (*User, error) {
	u, err := s.UserByID(ctx, userID)
	if err != nil || u == nil || u.ManagerID == nil {
		return nil, err
	}
	return s.UserByID(ctx, *u.ManagerID)
}

// OrgApprovers returns the org-level escalation set: active ADMIN and HR
// users.
func (s *Store) OrgApprovers(ctx context.Context) ([]User, error) {
	var users []User
	err := s.db.WithContext(ctx).
		Where("active = true AND role IN ?", []Role{RoleAdmin, RoleHR}).
		Find(&users).Error
	return users, err
}

// ProjectApprovers returns the approvers attached to a project.
func (s *Store) ProjectApprovers(ctx context.Context, projectID string) ([]User, error) {
	var users []User
	err := s.db.WithContext(ctx).Raw(`
select u.* from users u
join project_approvers pa on pa.user_id = u.id
where pa.project_id = ? and u.active = true`, projectID).Scan(&users).Error
	return users, err
}

// DueReminderRules returns enabled rules matching the tick's HH:MM and
// weekday that have not fired within the last 23 hours. The 23h guard makes
// the minutely job idempotent against duplicate ticks.
func (s *Store) DueReminderRules(ctx context.Context, now time.Time, limit int) ([]ReminderRule, error) {
	hhmm := now.Format("15:04")
	weekday := int(now.Weekday())
	cutoff := now.Add(-23 * time.Hour)
	var rules []ReminderRule
	err := s.db.WithContext(ctx).Raw(`
select * from reminder_rules
where enabled = true
  and time_of_day = ?
  and ? = any(weekdays)
  and (last_fired_at is null or last_fired_at < ?)
limit ?`, hhmm, weekday, cutoff, limit).Scan(&rules).Error
	return rules, err
}

func (s *Store) MarkReminderRuleFired(ctx context.Context, ruleID string, at time.Time) error {
	return s.db.WithContext(ctx).Model(&ReminderRule{}).
		Where("id = ?", ruleID).
		Updates(map[string]any{"last_fired_at": at, "updated_at": at}).Error
}
