package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"taskpilot/pkg/logx"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{
		Logger:               gormlogger.Default.LogMode(gormlogger.Silent),
		DisableAutomaticPing: true,
	})
	require.NoError(t, err)
	return New(gdb, logx.Nop()), mock
}

func userColumns() []string {
	return []string{"id", "email", "name", "role", "manager_id", "active", "notify_in_app", "notify_email", "push_chat_id"}
}

func TestDueReminderTasksQuery(t *testing.T) {
	st, mock := newMockStore(t)
	now := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"id", "title", "assignee_id"}).
		AddRow("t1", "Prepare slides", "u1")
	mock.ExpectQuery(`SELECT \* FROM "tasks" WHERE .*reminder_date IS NOT NULL AND reminder_date <= .*reminder_notified_at IS NULL OR reminder_notified_at < .*LIMIT`).
		WithArgs(TaskTodo, TaskInProgress, TaskBlocked, now, now.Add(-24*time.Hour), 100).
		WillReturnRows(rows)

	tasks, err := st.DueReminderTasks(context.Background(), now, 24*time.Hour, 100)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "t1", tasks[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkReminderNotified(t *testing.T) {
	st, mock := newMockStore(t)
	at := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "tasks" SET .*reminder_notified_at.*updated_at.* WHERE id = `).
		WithArgs(at, at, "t1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, st.MarkReminderNotified(context.Background(), "t1", at))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateOverdueState(t *testing.T) {
	st, mock := newMockStore(t)
	at := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	// Map-based updates are applied in sorted key order.
	mock.ExpectExec(`UPDATE "tasks" SET "overdue_days"=.*"overdue_notified_at"=.*"sla_status"=.*"updated_at"=.* WHERE id = `).
		WithArgs(8, at, SLABreached, at, "t1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, st.UpdateOverdueState(context.Background(), "t1", 8, SLABreached, at))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInstanceExistsOn(t *testing.T) {
	st, mock := newMockStore(t)
	day := time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)
	dayStart := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT count\(\*\) FROM "tasks" WHERE parent_id = .*created_at >= .*created_at < `).
		WithArgs("tpl1", dayStart, dayStart.AddDate(0, 0, 1)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	exists, err := st.InstanceExistsOn(context.Background(), "tpl1", day)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateTaskInstanceRollsBackOnFailure(t *testing.T) {
	st, mock := newMockStore(t)
	now := time.Date(2026, 3, 2, 0, 5, 0, 0, time.UTC)
	tmpl := Task{ID: "tpl1", Title: "Standup notes", AssigneeID: "u1"}

	mock.ExpectBegin().WillReturnError(assert.AnError)

	_, err := st.CreateTaskInstance(context.Background(), tmpl, now, now)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tpl1")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUsersMissingTimesheet(t *testing.T) {
	st, mock := newMockStore(t)
	week := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`left join timesheets t on t\.user_id = u\.id and t\.week_start = .*t\.id is null`).
		WithArgs(week, 100).
		WillReturnRows(sqlmock.NewRows(userColumns()).
			AddRow("u1", "u1@example.com", "Ada", "EMPLOYEE", nil, true, true, true, 0))

	users, err := st.UsersMissingTimesheet(context.Background(), week, 100)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "u1", users[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOverHourActivities(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery(`join timesheets t on t\.id = a\.timesheet_id.*t\.status in \('DRAFT','PENDING'\)`).
		WithArgs(56.0, 100).
		WillReturnRows(sqlmock.NewRows([]string{"id", "timesheet_id", "user_id", "type", "total_hours"}).
			AddRow("a1", "ts1", "u1", "DEV", 70.5))

	acts, err := st.OverHourActivities(context.Background(), 56, 100)
	require.NoError(t, err)
	require.Len(t, acts, 1)
	assert.Equal(t, 70.5, acts[0].TotalHours)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrgApprovers(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT \* FROM "users" WHERE active = true AND role IN `).
		WithArgs(RoleAdmin, RoleHR).
		WillReturnRows(sqlmock.NewRows(userColumns()).
			AddRow("hr1", "hr@example.com", "HR", "HR", nil, true, true, true, 0))

	users, err := st.OrgApprovers(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, RoleHR, users[0].Role)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserByIDNotFound(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT \* FROM "users" WHERE id = .*LIMIT`).
		WithArgs("ghost", 1).
		WillReturnRows(sqlmock.NewRows(userColumns()))

	u, err := st.UserByID(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Nil(t, u)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestManagerOfFollowsChain(t *testing.T) {
	st, mock := newMockStore(t)
	mgrID := "mgr1"

	mock.ExpectQuery(`SELECT \* FROM "users" WHERE id = .*LIMIT`).
		WithArgs("u1", 1).
		WillReturnRows(sqlmock.NewRows(userColumns()).
			AddRow("u1", "u1@example.com", "Ada", "EMPLOYEE", mgrID, true, true, true, 0))
	mock.ExpectQuery(`SELECT \* FROM "users" WHERE id = .*LIMIT`).
		WithArgs(mgrID, 1).
		WillReturnRows(sqlmock.NewRows(userColumns()).
			AddRow(mgrID, "m@example.com", "Mgr", "MANAGER", nil, true, true, true, 0))

	u, err := st.ManagerOf(context.Background(), "u1")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, mgrID, u.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDueReminderRulesQuery(t *testing.T) {
	st, mock := newMockStore(t)
	// Wednesday 09:30; weekday 3, 23h idempotency cutoff.
	now := time.Date(2026, 3, 4, 9, 30, 0, 0, time.UTC)

	mock.ExpectQuery(`select \* from reminder_rules.*time_of_day = .*any\(weekdays\).*last_fired_at is null or last_fired_at < `).
		WithArgs("09:30", 3, now.Add(-23*time.Hour), 100).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "time_of_day", "activity_type", "enabled"}).
			AddRow("r1", "u1", "09:30", "DEV", true))

	rules, err := st.DueReminderRules(context.Background(), now, 100)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "r1", rules[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
