// Package store is the relational persistence layer the scheduled jobs read
// candidates from and write processed-state markers back to. Entity
// lifecycle (creating tasks, submitting timesheets) belongs to the
// application layer; this package only covers what the scheduler needs.
package store

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"taskpilot/pkg/logx"
)

type Store struct {
	db  *gorm.DB
	log logx.Logger
}

// Open connects to Postgres. The connection is established once at process
// start and shared by every job invocation.
func Open(dsn string, log logx.Logger) (*Store, error) {
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return &Store{db: gdb, log: log}, nil
}

// New wraps an existing gorm handle (used by tests with a mocked driver).
func New(db *gorm.DB, log logx.Logger) *Store {
	return &Store{db: db, log: log}
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Migrate creates tables and the supporting indexes.
func (s *Store) Migrate() error {
	if err := s.db.AutoMigrate(
		&User{},
		&Task{},
		&TaskMember{},
		&Timesheet{},
		&Activity{},
		&Notification{},
		&ReminderRule{},
		&ProjectApprover{},
	); err != nil {
		return err
	}

	stmts := []string{
		// One generated instance per template per calendar day. The
		// generator also checks before inserting; this closes the
		// concurrent-invocation window the scan alone leaves open.
		`create unique index if not exists uq_tasks_parent_instance_date
		 on tasks(parent_id, instance_date)
		 where parent_id is not null and instance_date is not null;`,
		`create index if not exists idx_tasks_due on tasks(status, due_date) where archived = false;`,
		`create index if not exists idx_tasks_reminder on tasks(reminder_date) where reminder_date is not null;`,
		`create unique index if not exists uq_timesheets_user_week on timesheets(user_id, week_start);`,
		`create index if not exists idx_timesheets_status_created on timesheets(status, created_at);`,
		`create index if not exists idx_notifications_user_created on notifications(user_id, created_at desc);`,
		`create index if not exists idx_reminder_rules_due on reminder_rules(enabled, time_of_day);`,
	}
	for _, stmt := range stmts {
		if err := s.db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("index exec failed: %w (sql=%s)", err, stmt)
		}
	}
	return nil
}
