package jobs

import (
	"context"
	"fmt"
	"time"

	"taskpilot/internal/scheduler"
)

// Handler is one workflow entry point.
type Handler func(d Deps, ctx context.Context) (Result, error)

// Descriptor is a static job definition handed to the runtime at startup.
type Descriptor struct {
	ID          string
	Name        string
	Schedules   []string // cron lines; most jobs have one
	RetryBudget int
	Timeout     time.Duration
	Handler     Handler
}

// Registry returns the static ordered list of job definitions. The runtime
// registers them once at process start; nothing else consults this list at
// runtime (it exists so ops tooling can introspect the job set).
func Registry() []Descriptor {
	return []Descriptor{
		{
			ID:          "task-reminder",
			Name:        "Task reminder",
			Schedules:   []string{"*/5 * * * *"},
			RetryBudget: 2,
			Timeout:     2 * time.Minute,
			Handler:     Deps.TaskReminder,
		},
		{
			ID:          "task-overdue",
			Name:        "Task overdue escalation",
			Schedules:   []string{"0 9 * * *"},
			RetryBudget: 3,
			Timeout:     5 * time.Minute,
			Handler:     Deps.TaskOverdue,
		},
		{
			ID:          "task-recurring",
			Name:        "Recurring task generator",
			Schedules:   []string{"0 0 * * *"},
			RetryBudget: 3,
			Timeout:     5 * time.Minute,
			Handler:     Deps.TaskRecurring,
		},
		{
			ID:          "timesheet-validation-reminder",
			Name:        "Timesheet validation reminder",
			Schedules:   []string{"0 17 * * *"},
			RetryBudget: 2,
			Timeout:     2 * time.Minute,
			Handler:     Deps.TimesheetReminder,
		},
		{
			ID:          "timesheet-overdue",
			Name:        "Timesheet overdue detection",
			Schedules:   []string{"0 18 * * *"},
			RetryBudget: 3,
			Timeout:     5 * time.Minute,
			Handler:     Deps.TimesheetOverdue,
		},
		{
			ID:          "timesheet-weekly-report",
			Name:        "Timesheet weekly report",
			Schedules:   []string{"0 8 * * 1"},
			RetryBudget: 3,
			Timeout:     5 * time.Minute,
			Handler:     Deps.TimesheetWeeklyReport,
		},
		{
			ID:          "activity-validation",
			Name:        "Activity hours validation",
			Schedules:   []string{"0 9 * * *", "0 14 * * *"},
			RetryBudget: 2,
			Timeout:     2 * time.Minute,
			Handler:     Deps.ActivityCheck,
		},
		{
			ID:          "user-reminders",
			Name:        "User custom reminders",
			Schedules:   []string{"* * * * *"},
			RetryBudget: 1,
			Timeout:     time.Minute,
			Handler:     Deps.UserReminders,
		},
	}
}

// Register wires every descriptor into the scheduler. Each handler is
// wrapped to publish its run summary; the returned error feeds the
// scheduler's retry budget.
func Register(s *scheduler.Service, deps Deps) error {
	for _, desc := range Registry() {
		desc := desc
		run := func(ctx context.Context) error {
			started := time.Now()
			res, err := desc.Handler(deps, ctx)
			deps.publishSummary(desc.ID, started, res, err)
			return err
		}
		opt := scheduler.JobOptions{RetryMax: desc.RetryBudget}
		for i, spec := range desc.Schedules {
			id := desc.ID
			if len(desc.Schedules) > 1 {
				id = fmt.Sprintf("%s#%d", desc.ID, i+1)
			}
			if err := s.AddCron(id, desc.Name, spec, desc.Timeout, opt, run); err != nil {
				return fmt.Errorf("register %s: %w", id, err)
			}
		}
	}
	return nil
}
