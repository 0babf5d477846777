package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// activeWorkStatuses are the task states overdue detection cares about.
var activeWorkStatuses = []TaskStatus{TaskTodo, TaskInProgress, TaskBlocked}

// DueReminderTasks returns tasks whose reminder instant has passed and whose
// cooldown window has elapsed (never notified, or notified before cutoff).
// Capped by limit to bound run duration.
func (s *Store) DueReminderTasks(ctx context.Context, now time.Time, cooldown time.Duration, limit int) ([]Task, error) {
	cutoff := now.Add(-cooldown)
	var tasks []Task
	err := s.db.WithContext(ctx).
		Where("archived = false AND is_recurring_template = false").
		Where("status IN ?", activeWorkStatuses).
		Where("reminder_date IS NOT NULL AND reminder_date <= ?", now).
		Where("reminder_notified_at IS NULL OR reminder_notified_at < ?", cutoff).
		Order("reminder_date asc").
		Limit(limit).
		Find(&tasks).Error
	return tasks, err
}

// MarkReminderNotified stamps the cooldown marker. Safe to repeat on retry.
func (s *Store) MarkReminderNotified(ctx context.Context, taskID string, at time.Time) error {
	return s.db.WithContext(ctx).Model(&Task{}).
		Where("id = ?", taskID).
		Updates(map[string]any{"reminder_notified_at": at, "updated_at": at}).Error
}

// OverdueTasks returns active tasks past their due date, oldest first.
func (s *Store) OverdueTasks(ctx context.Context, now time.Time, limit int) ([]Task, error) {
	var tasks []Task
	err := s.db.WithContext(ctx).
		Where("archived = false AND is_recurring_template = false").
		Where("status IN ?", activeWorkStatuses).
		Where("due_date IS NOT NULL AND due_date < ?", now).
		Order("due_date asc").
		Limit(limit).
		Find(&tasks).Error
	return tasks, err
}

// UpdateOverdueState writes the derived severity fields for one task.
// Values are recomputed each pass, so repeating the write is harmless.
func (s *Store) UpdateOverdueState(ctx context.Context, taskID string, overdueDays int, sla SLAStatus, at time.Time) error {
	return s.db.WithContext(ctx).Model(&Task{}).
		Where("id = ?", taskID).
		Updates(map[string]any{
			"overdue_days":        overdueDays,
			"sla_status":          sla,
			"overdue_notified_at": at,
			"updated_at":          at,
		}).Error
}

// RecurringTemplates returns active templates still within their end date.
func (s *Store) RecurringTemplates(ctx context.Context, now time.Time, limit int) ([]Task, error) {
	var tasks []Task
	err := s.db.WithContext(ctx).
		Where("is_recurring_template = true AND archived = false").
		Where("recurrence_rule IS NOT NULL").
		Where("recurrence_end IS NULL OR recurrence_end >= ?", now).
		Limit(limit).
		Find(&tasks).Error
	return tasks, err
}

// InstanceExistsOn reports whether the template already spawned an instance
// on the given calendar day. Preserves the original createdAt range scan;
// the unique index on (parent_id, instance_date) is the hard backstop.
func (s *Store) InstanceExistsOn(ctx context.Context, templateID string, day time.Time) (bool, error) {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	dayEnd := dayStart.AddDate(0, 0, 1)
	var n int64
	err := s.db.WithContext(ctx).Model(&Task{}).
		Where("parent_id = ?", templateID).
		Where("created_at >= ? AND created_at < ?", dayStart, dayEnd).
		Count(&n).Error
	return n > 0, err
}

// CreateTaskInstance spawns a dated instance from a template and copies its
// member list, atomically. Returns the new instance.
func (s *Store) CreateTaskInstance(ctx context.Context, tmpl Task, day time.Time, now time.Time) (Task, error) {
	instanceDate := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	inst := Task{
		ID:           uuid.NewString(),
		Title:        tmpl.Title,
		Description:  tmpl.Description,
		ProjectID:    tmpl.ProjectID,
		AssigneeID:   tmpl.AssigneeID,
		Status:       TaskTodo,
		DueDate:      tmpl.DueDate,
		ReminderDate: tmpl.ReminderDate,
		SLAStatus:    SLAOnTrack,
		ParentID:     &tmpl.ID,
		InstanceDate: &instanceDate,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&inst).Error; err != nil {
			return err
		}
		var members []TaskMember
		if err := tx.Where("task_id = ?", tmpl.ID).Find(&members).Error; err != nil {
			return err
		}
		for i := range members {
			members[i].TaskID = inst.ID
		}
		if len(members) > 0 {
			if err := tx.Create(&members).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Task{}, fmt.Errorf("create instance for template %s: %w", tmpl.ID, err)
	}
	return inst, nil
}

// TaskMemberIDs returns the user ids attached to a task.
func (s *Store) TaskMemberIDs(ctx context.Context, taskID string) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&TaskMember{}).
		Where("task_id = ?", taskID).
		Pluck("user_id", &ids).Error
	return ids, err
}
