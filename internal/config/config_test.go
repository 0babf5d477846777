package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const minimalYAML = `
database:
  dsn: "host=localhost dbname=taskpilot"
`

func TestParseMinimal(t *testing.T) {
	t.Parallel()
	cfg, err := Parse(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Database.DSN == "" {
		t.Fatal("dsn not decoded")
	}
	if !cfg.AutoMigrateEnabled() {
		t.Fatal("auto_migrate should default on")
	}
}

func TestParseFull(t *testing.T) {
	t.Parallel()
	cfg, err := Parse(writeConfig(t, `
logging:
  level: DEBUG
  console: true
database:
  dsn: "host=db dbname=taskpilot"
  auto_migrate: false
scheduler:
  workers: 4
  default_timeout: 2m
  timezone: UTC
run_log:
  enabled: true
  path: ./runs.db
  retention: 720h
jobs:
  page_size: 50
  reminder_cooldown: 12h
  task_escalation:
    first: 1
    second: 3
    third: 7
  base_link: "https://app.example.com"
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.AutoMigrateEnabled() {
		t.Fatal("auto_migrate: false not honored")
	}
	if got := cfg.Scheduler.DefaultTimeout.Std(); got != 2*time.Minute {
		t.Fatalf("default_timeout = %v", got)
	}
	if got := cfg.RunLog.Retention.Std(); got != 720*time.Hour {
		t.Fatalf("retention = %v", got)
	}
	if cfg.Jobs.ReminderCooldown.Std() != 12*time.Hour || cfg.Jobs.PageSize != 50 {
		t.Fatalf("jobs config not decoded: %+v", cfg.Jobs)
	}
	th := cfg.Jobs.TaskEscalation.Thresholds()
	if th.First != 1 || th.Second != 3 || th.Third != 7 {
		t.Fatalf("thresholds = %+v", th)
	}
}

func TestParseRejects(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "unknown key",
			yaml: "database:\n  dsn: x\nschedular:\n  workers: 2\n",
			want: "schedular",
		},
		{
			name: "missing dsn",
			yaml: "logging:\n  level: INFO\n",
			want: "database.dsn",
		},
		{
			name: "bad duration",
			yaml: "database:\n  dsn: x\nscheduler:\n  default_timeout: soon\n",
			want: "invalid duration",
		},
		{
			name: "negative duration",
			yaml: "database:\n  dsn: x\nscheduler:\n  default_timeout: -5m\n",
			want: "must be >= 0",
		},
		{
			name: "smtp enabled without host",
			yaml: "database:\n  dsn: x\nsmtp:\n  enabled: true\n  from: a@b\n",
			want: "smtp.host",
		},
		{
			name: "non-increasing thresholds",
			yaml: "database:\n  dsn: x\njobs:\n  task_escalation:\n    first: 3\n    second: 3\n    third: 7\n",
			want: "strictly increasing",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(writeConfig(t, tt.yaml))
			if err == nil {
				t.Fatal("expected parse error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestDurationOr(t *testing.T) {
	t.Parallel()
	var zero Duration
	if got := zero.Or(time.Minute); got != time.Minute {
		t.Fatalf("Or on zero = %v", got)
	}
	if got := Duration(time.Second).Or(time.Minute); got != time.Second {
		t.Fatalf("Or on set = %v", got)
	}
}
