// Package jobs holds the scheduled workflows: candidate discovery,
// escalation, notification dispatch, and write-back of processed-state
// markers. Every job is a sequence of steps executed against one snapshot
// instant; per-candidate failures are recorded in the run result and never
// abort sibling candidates.
package jobs

import (
	"context"
	"time"

	"taskpilot/internal/dispatch"
	"taskpilot/internal/escalation"
	"taskpilot/internal/eventbus"
	"taskpilot/internal/recurrence"
	"taskpilot/internal/store"
	"taskpilot/pkg/logx"
)

// CandidateResult is one candidate's outcome within a run.
type CandidateResult struct {
	ID         string `json:"id"`
	Recipients int    `json:"recipients"`
	// Notified counts recipients for whom the in-app record was created.
	Notified int    `json:"notified"`
	Emails   int    `json:"emails"`
	Error    string `json:"error,omitempty"`
}

// Result is the structured summary a run returns for operational
// visibility. Results ordering is processing order and carries no meaning.
type Result struct {
	Processed int               `json:"processed"`
	Results   []CandidateResult `json:"results,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Summary is the bus payload published after every run attempt
// (event type "job.summary"); the run log persists these.
type Summary struct {
	JobID     string
	Started   time.Time
	Duration  time.Duration
	Processed int
	Error     string
}

// Dispatcher is what jobs need from the notification fan-out.
type Dispatcher interface {
	Dispatch(ctx context.Context, rcpt dispatch.Recipient, ev dispatch.Event) dispatch.Result
}

// TaskStore, TimesheetStore, and DirectoryStore are the narrow views of the
// relational store each workflow family reads from. *store.Store satisfies
// all of them; tests substitute fakes.
type TaskStore interface {
	DueReminderTasks(ctx context.Context, now time.Time, cooldown time.Duration, limit int) ([]store.Task, error)
	MarkReminderNotified(ctx context.Context, taskID string, at time.Time) error
	OverdueTasks(ctx context.Context, now time.Time, limit int) ([]store.Task, error)
	UpdateOverdueState(ctx context.Context, taskID string, overdueDays int, sla store.SLAStatus, at time.Time) error
	RecurringTemplates(ctx context.Context, now time.Time, limit int) ([]store.Task, error)
	InstanceExistsOn(ctx context.Context, templateID string, day time.Time) (bool, error)
	CreateTaskInstance(ctx context.Context, tmpl store.Task, day, now time.Time) (store.Task, error)
	TaskMemberIDs(ctx context.Context, taskID string) ([]string, error)
}

type TimesheetStore interface {
	StaleDraftTimesheets(ctx context.Context, cutoff time.Time, limit int) ([]store.Timesheet, error)
	UsersMissingTimesheet(ctx context.Context, weekStart time.Time, limit int) ([]store.User, error)
	TimesheetsInWindow(ctx context.Context, from, to time.Time) ([]store.Timesheet, error)
	OverHourActivities(ctx context.Context, maxHours float64, limit int) ([]store.Activity, error)
	OverHourTimesheets(ctx context.Context, maxHours float64, limit int) ([]store.Timesheet, error)
}

type DirectoryStore interface {
	UserByID(ctx context.Context, id string) (*store.User, error)
	ManagerOf(ctx context.Context, userID string) (*store.User, error)
	OrgApprovers(ctx context.Context) ([]store.User, error)
	ProjectApprovers(ctx context.Context, projectID string) ([]store.User, error)
	DueReminderRules(ctx context.Context, now time.Time, limit int) ([]store.ReminderRule, error)
	MarkReminderRuleFired(ctx context.Context, ruleID string, at time.Time) error
}

// Config is the per-job tuning, resolved from file config with defaults.
type Config struct {
	// PageSize caps every find-candidates step so a run's duration stays
	// bounded; overflow is picked up by the next tick.
	PageSize         int
	ReminderCooldown time.Duration
	TaskEscalation   escalation.Thresholds
	SheetEscalation  escalation.Thresholds
	ActivityMaxHours float64
	BaseLink         string // deep-link prefix for notifications
}

func (c Config) withDefaults() Config {
	if c.PageSize <= 0 {
		c.PageSize = 100
	}
	if c.ReminderCooldown <= 0 {
		c.ReminderCooldown = 24 * time.Hour
	}
	if c.TaskEscalation == (escalation.Thresholds{}) {
		c.TaskEscalation = escalation.TaskDefaults
	}
	if c.SheetEscalation == (escalation.Thresholds{}) {
		c.SheetEscalation = escalation.TimesheetDefaults
	}
	if c.ActivityMaxHours <= 0 {
		c.ActivityMaxHours = 56
	}
	return c
}

// Deps is constructed once at startup and shared by all job handlers.
type Deps struct {
	Tasks      TaskStore
	Sheets     TimesheetStore
	Directory  DirectoryStore
	Dispatcher Dispatcher
	Recurrence *recurrence.Evaluator
	Bus        eventbus.Bus
	Log        logx.Logger
	Cfg        Config

	// Now returns the run's snapshot instant; defaults to time.Now (UTC).
	// Tests pin it.
	Now func() time.Time
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now().UTC()
}

func (d Deps) withDefaults() Deps {
	d.Cfg = d.Cfg.withDefaults()
	return d
}
