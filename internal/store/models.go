package store

import (
	"time"

	"github.com/lib/pq"
)

type Role string

const (
	RoleEmployee Role = "EMPLOYEE"
	RoleManager  Role = "MANAGER"
	RoleHR       Role = "HR"
	RoleAdmin    Role = "ADMIN"
)

type TaskStatus string

const (
	TaskTodo       TaskStatus = "TODO"
	TaskInProgress TaskStatus = "IN_PROGRESS"
	TaskBlocked    TaskStatus = "BLOCKED"
	TaskDone       TaskStatus = "DONE"
	TaskCancelled  TaskStatus = "CANCELLED"
)

type SLAStatus string

const (
	SLAOnTrack  SLAStatus = "ON_TRACK"
	SLAAtRisk   SLAStatus = "AT_RISK"
	SLABreached SLAStatus = "BREACHED"
)

type TimesheetStatus string

const (
	SheetDraft    TimesheetStatus = "DRAFT"
	SheetPending  TimesheetStatus = "PENDING"
	SheetApproved TimesheetStatus = "APPROVED"
	SheetRejected TimesheetStatus = "REJECTED"
)

type User struct {
	ID        string  `gorm:"primaryKey;type:uuid"`
	Email     string  `gorm:"uniqueIndex;not null"`
	Name      string  `gorm:"not null"`
	Role      Role    `gorm:"index;not null;default:'EMPLOYEE'"`
	ManagerID *string `gorm:"index;type:uuid"`
	Active    bool    `gorm:"not null;default:true"`

	// Channel preferences. PushChatID links a Telegram chat; zero means the
	// user never connected the bot.
	NotifyInApp bool  `gorm:"not null;default:true"`
	NotifyEmail bool  `gorm:"not null;default:true"`
	PushChatID  int64 `gorm:"not null;default:0"`

	CreatedAt time.Time `gorm:"not null;default:now()"`
	UpdatedAt time.Time `gorm:"not null;default:now()"`
}

// Task doubles as a recurring template when IsRecurringTemplate is set; a
// template is never itself due, it only spawns dated instances linked back
// through ParentID.
type Task struct {
	ID          string     `gorm:"primaryKey;type:uuid"`
	Title       string     `gorm:"not null"`
	Description string     `gorm:"type:text;not null;default:''"`
	ProjectID   *string    `gorm:"index;type:uuid"`
	AssigneeID  string     `gorm:"index;type:uuid;not null"`
	Status      TaskStatus `gorm:"index;not null;default:'TODO'"`
	Archived    bool       `gorm:"not null;default:false"`

	DueDate      *time.Time `gorm:"type:timestamptz"`
	ReminderDate *time.Time `gorm:"index;type:timestamptz"`

	// Processed-state markers written back by the scheduled jobs.
	ReminderNotifiedAt *time.Time `gorm:"type:timestamptz"`
	OverdueNotifiedAt  *time.Time `gorm:"type:timestamptz"`
	OverdueDays        int        `gorm:"not null;default:0"`
	SLAStatus          SLAStatus  `gorm:"not null;default:'ON_TRACK'"`

	IsRecurringTemplate bool           `gorm:"index;not null;default:false"`
	RecurrenceRule      *string        `gorm:"type:text"`
	RecurrenceEnd       *time.Time     `gorm:"type:timestamptz"`
	ExceptionDates      pq.StringArray `gorm:"type:text[];not null;default:'{}'"`

	ParentID *string `gorm:"index;type:uuid"`
	// InstanceDate is the calendar day a generated instance belongs to,
	// backing the one-instance-per-template-per-day unique index.
	InstanceDate *time.Time `gorm:"type:date"`

	CreatedAt time.Time `gorm:"index;not null;default:now()"`
	UpdatedAt time.Time `gorm:"not null;default:now()"`
}

type TaskMember struct {
	TaskID string `gorm:"primaryKey;type:uuid"`
	UserID string `gorm:"primaryKey;type:uuid"`
}

type Timesheet struct {
	ID         string          `gorm:"primaryKey;type:uuid"`
	UserID     string          `gorm:"index;type:uuid;not null"`
	WeekStart  time.Time       `gorm:"index;type:date;not null"`
	Status     TimesheetStatus `gorm:"index;not null;default:'DRAFT'"`
	TotalHours float64         `gorm:"not null;default:0"`
	CreatedAt  time.Time       `gorm:"not null;default:now()"`
	UpdatedAt  time.Time       `gorm:"not null;default:now()"`
}

type Activity struct {
	ID          string    `gorm:"primaryKey;type:uuid"`
	TimesheetID string    `gorm:"index;type:uuid;not null"`
	UserID      string    `gorm:"index;type:uuid;not null"`
	Type        string    `gorm:"not null;default:''"`
	TotalHours  float64   `gorm:"not null;default:0"`
	CreatedAt   time.Time `gorm:"not null;default:now()"`
}

// Notification is create-once: read/dismiss state is owned by the
// application layer, the scheduler never updates rows here.
type Notification struct {
	ID        string    `gorm:"primaryKey;type:uuid"`
	UserID    string    `gorm:"index;type:uuid;not null"`
	Title     string    `gorm:"not null"`
	Message   string    `gorm:"type:text;not null;default:''"`
	Type      string    `gorm:"index;not null"`
	Link      string    `gorm:"not null;default:''"`
	Read      bool      `gorm:"not null;default:false"`
	CreatedAt time.Time `gorm:"not null;default:now()"`
}

// ReminderRule is a user-owned schedule evaluated every minute. The core
// only reads it and stamps LastFiredAt.
type ReminderRule struct {
	ID           string        `gorm:"primaryKey;type:uuid"`
	UserID       string        `gorm:"index;type:uuid;not null"`
	TimeOfDay    string        `gorm:"not null"` // "HH:MM", scheduler timezone
	Weekdays     pq.Int64Array `gorm:"type:integer[];not null;default:'{}'"` // 0=Sunday
	ActivityType string        `gorm:"not null;default:''"`
	Enabled      bool          `gorm:"index;not null;default:true"`
	LastFiredAt  *time.Time    `gorm:"type:timestamptz"`
	CreatedAt    time.Time     `gorm:"not null;default:now()"`
	UpdatedAt    time.Time     `gorm:"not null;default:now()"`
}

type ProjectApprover struct {
	ProjectID string `gorm:"primaryKey;type:uuid"`
	UserID    string `gorm:"primaryKey;type:uuid"`
}
