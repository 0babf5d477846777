package jobs

import (
	"context"
	"errors"
	"time"

	"taskpilot/internal/dispatch"
	"taskpilot/internal/recurrence"
	"taskpilot/internal/store"
	"taskpilot/pkg/logx"
)

var errBoom = errors.New("boom")

type overdueUpdate struct {
	taskID string
	days   int
	sla    store.SLAStatus
}

type fakeTasks struct {
	reminderTasks []store.Task
	overdueTasks  []store.Task
	templates     []store.Task

	members    map[string][]string
	membersErr map[string]error
	existing   map[string]bool

	lastLimit      int
	marked         []string
	overdueUpdates []overdueUpdate
	created        []store.Task
}

func (f *fakeTasks) DueReminderTasks(_ context.Context, _ time.Time, _ time.Duration, limit int) ([]store.Task, error) {
	f.lastLimit = limit
	if limit < len(f.reminderTasks) {
		return f.reminderTasks[:limit], nil
	}
	return f.reminderTasks, nil
}

func (f *fakeTasks) MarkReminderNotified(_ context.Context, taskID string, _ time.Time) error {
	f.marked = append(f.marked, taskID)
	return nil
}

func (f *fakeTasks) OverdueTasks(_ context.Context, _ time.Time, limit int) ([]store.Task, error) {
	f.lastLimit = limit
	return f.overdueTasks, nil
}

func (f *fakeTasks) UpdateOverdueState(_ context.Context, taskID string, days int, sla store.SLAStatus, _ time.Time) error {
	f.overdueUpdates = append(f.overdueUpdates, overdueUpdate{taskID: taskID, days: days, sla: sla})
	return nil
}

func (f *fakeTasks) RecurringTemplates(_ context.Context, _ time.Time, limit int) ([]store.Task, error) {
	f.lastLimit = limit
	return f.templates, nil
}

func (f *fakeTasks) InstanceExistsOn(_ context.Context, templateID string, _ time.Time) (bool, error) {
	return f.existing[templateID], nil
}

func (f *fakeTasks) CreateTaskInstance(_ context.Context, tmpl store.Task, day, now time.Time) (store.Task, error) {
	inst := tmpl
	inst.ID = "inst-" + tmpl.ID
	inst.IsRecurringTemplate = false
	inst.ParentID = &tmpl.ID
	d := day
	inst.InstanceDate = &d
	inst.CreatedAt = now
	f.created = append(f.created, inst)
	if f.existing == nil {
		f.existing = map[string]bool{}
	}
	f.existing[tmpl.ID] = true
	return inst, nil
}

func (f *fakeTasks) TaskMemberIDs(_ context.Context, taskID string) ([]string, error) {
	if err := f.membersErr[taskID]; err != nil {
		return nil, err
	}
	return f.members[taskID], nil
}

type fakeSheets struct {
	staleDrafts []store.Timesheet
	missing     []store.User
	window      []store.Timesheet
	overActs    []store.Activity
	overSheets  []store.Timesheet

	lastLimit int
}

func (f *fakeSheets) StaleDraftTimesheets(_ context.Context, _ time.Time, limit int) ([]store.Timesheet, error) {
	f.lastLimit = limit
	return f.staleDrafts, nil
}

func (f *fakeSheets) UsersMissingTimesheet(_ context.Context, _ time.Time, limit int) ([]store.User, error) {
	f.lastLimit = limit
	return f.missing, nil
}

func (f *fakeSheets) TimesheetsInWindow(_ context.Context, _, _ time.Time) ([]store.Timesheet, error) {
	return f.window, nil
}

func (f *fakeSheets) OverHourActivities(_ context.Context, _ float64, limit int) ([]store.Activity, error) {
	f.lastLimit = limit
	return f.overActs, nil
}

func (f *fakeSheets) OverHourTimesheets(_ context.Context, _ float64, limit int) ([]store.Timesheet, error) {
	f.lastLimit = limit
	return f.overSheets, nil
}

type fakeDirectory struct {
	users     map[string]store.User
	managers  map[string]string // userID -> managerID
	approvers []store.User
	projApprv map[string][]store.User
	rules     []store.ReminderRule

	fired []string
}

func (f *fakeDirectory) UserByID(_ context.Context, id string) (*store.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (f *fakeDirectory) ManagerOf(_ context.Context, userID string) (*store.User, error) {
	mid, ok := f.managers[userID]
	if !ok {
		return nil, nil
	}
	u, ok := f.users[mid]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (f *fakeDirectory) OrgApprovers(context.Context) ([]store.User, error) {
	return f.approvers, nil
}

func (f *fakeDirectory) ProjectApprovers(_ context.Context, projectID string) ([]store.User, error) {
	return f.projApprv[projectID], nil
}

func (f *fakeDirectory) DueReminderRules(_ context.Context, _ time.Time, limit int) ([]store.ReminderRule, error) {
	_ = limit
	return f.rules, nil
}

func (f *fakeDirectory) MarkReminderRuleFired(_ context.Context, ruleID string, _ time.Time) error {
	f.fired = append(f.fired, ruleID)
	return nil
}

type sentEvent struct {
	userID string
	ev     dispatch.Event
}

type fakeDispatcher struct {
	sent []sentEvent
}

func (f *fakeDispatcher) Dispatch(_ context.Context, rcpt dispatch.Recipient, ev dispatch.Event) dispatch.Result {
	f.sent = append(f.sent, sentEvent{userID: rcpt.UserID, ev: ev})
	return dispatch.Result{NotificationCreated: true, EmailAttempted: rcpt.EmailsOn}
}

func (f *fakeDispatcher) sentTo(userID string) int {
	n := 0
	for _, s := range f.sent {
		if s.userID == userID {
			n++
		}
	}
	return n
}

func activeUser(id string) store.User {
	return store.User{ID: id, Email: id + "@example.com", Name: id, Role: store.RoleEmployee, Active: true, NotifyInApp: true}
}

type fixture struct {
	tasks *fakeTasks
	sheet *fakeSheets
	dir   *fakeDirectory
	disp  *fakeDispatcher
	deps  Deps
}

func newFixture(now time.Time) *fixture {
	f := &fixture{
		tasks: &fakeTasks{members: map[string][]string{}, membersErr: map[string]error{}, existing: map[string]bool{}},
		sheet: &fakeSheets{},
		dir:   &fakeDirectory{users: map[string]store.User{}, managers: map[string]string{}, projApprv: map[string][]store.User{}},
		disp:  &fakeDispatcher{},
	}
	f.deps = Deps{
		Tasks:      f.tasks,
		Sheets:     f.sheet,
		Directory:  f.dir,
		Dispatcher: f.disp,
		Recurrence: recurrence.New(logx.Nop()),
		Log:        logx.Nop(),
		Now:        func() time.Time { return now },
	}
	return f
}
