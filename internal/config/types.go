package config

import (
	"fmt"
	"strings"
	"time"

	"go.yaml.in/yaml/v3"

	"taskpilot/internal/escalation"
)

// Duration is a time.Duration that unmarshals from YAML strings like "5m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		*d = 0
		return nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	if v < 0 {
		return fmt.Errorf("duration must be >= 0, got %q", raw)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

// Or returns the duration, or def when unset.
func (d Duration) Or(def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return time.Duration(d)
}

type Config struct {
	Logging   LoggingConfig   `yaml:"logging"`
	Database  DatabaseConfig  `yaml:"database"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	RunLog    RunLogConfig    `yaml:"run_log"`
	SMTP      SMTPConfig      `yaml:"smtp"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	Jobs      JobsConfig      `yaml:"jobs"`
}

type LoggingConfig struct {
	Level   string      `yaml:"level"`
	Console bool        `yaml:"console"`
	File    LoggingFile `yaml:"file"`
}

type LoggingFile struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type DatabaseConfig struct {
	// DSN is a Postgres connection string.
	DSN string `yaml:"dsn"`
	// AutoMigrate runs schema migration at startup. Default true.
	AutoMigrate *bool `yaml:"auto_migrate,omitempty"`
}

// SchedulerConfig controls the trigger/execution service.
type SchedulerConfig struct {
	Workers        int      `yaml:"workers"`         // default 2
	DefaultTimeout Duration `yaml:"default_timeout"` // default 2m
	HistorySize    int      `yaml:"history_size"`    // default 200
	Timezone       string   `yaml:"timezone,omitempty"`
}

// RunLogConfig controls the sqlite run-history store.
type RunLogConfig struct {
	Enabled     bool     `yaml:"enabled"`
	Path        string   `yaml:"path"`
	BusyTimeout Duration `yaml:"busy_timeout,omitempty"`
	// Retention caps how long run rows are kept. Default 30 days.
	Retention Duration `yaml:"retention,omitempty"`
}

type SMTPConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

// TelegramConfig configures the push-delivery bot. Push is optional: with an
// empty token the dispatcher simply never attempts pushes.
type TelegramConfig struct {
	Token       string   `yaml:"token"`
	PollTimeout Duration `yaml:"poll_timeout,omitempty"`
}

// JobsConfig carries per-job tuning. Thresholds are day counts; zero values
// fall back to the defaults in the jobs package.
type JobsConfig struct {
	PageSize         int           `yaml:"page_size"`         // candidate cap per run, default 100
	ReminderCooldown Duration      `yaml:"reminder_cooldown"` // default 24h
	TaskEscalation   ThresholdsYML `yaml:"task_escalation"`
	SheetEscalation  ThresholdsYML `yaml:"timesheet_escalation"`
	ActivityMaxHours float64       `yaml:"activity_max_hours"` // default 56
	// BaseLink prefixes notification deep links, e.g. "https://app.example.com".
	BaseLink string `yaml:"base_link"`
}

type ThresholdsYML struct {
	First  float64 `yaml:"first"`
	Second float64 `yaml:"second"`
	Third  float64 `yaml:"third"`
}

// Thresholds converts to the escalation policy type. A zero value converts
// to zero; the jobs layer substitutes its defaults.
func (t ThresholdsYML) Thresholds() escalation.Thresholds {
	return escalation.Thresholds{First: t.First, Second: t.Second, Third: t.Third}
}
