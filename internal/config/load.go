package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"go.yaml.in/yaml/v3"
)

// Parse reads and decodes the YAML config at path. Unknown keys are
// rejected so typos surface at startup instead of silently defaulting.
func Parse(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	dec := yaml.NewDecoder(strings.NewReader(string(b)))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &cfg, nil
}

// Validate checks the fields the process cannot start without.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Database.DSN) == "" {
		return errors.New("database.dsn is required")
	}
	if c.SMTP.Enabled {
		if strings.TrimSpace(c.SMTP.Host) == "" {
			return errors.New("smtp.host is required when smtp.enabled")
		}
		if strings.TrimSpace(c.SMTP.From) == "" {
			return errors.New("smtp.from is required when smtp.enabled")
		}
	}
	j := c.Jobs
	for _, t := range []ThresholdsYML{j.TaskEscalation, j.SheetEscalation} {
		if t == (ThresholdsYML{}) {
			continue
		}
		if !(t.First < t.Second && t.Second < t.Third) {
			return fmt.Errorf("escalation thresholds must be strictly increasing, got %v/%v/%v", t.First, t.Second, t.Third)
		}
	}
	return nil
}

// AutoMigrateEnabled reports the database.auto_migrate flag, defaulting on.
func (c *Config) AutoMigrateEnabled() bool {
	if c.Database.AutoMigrate == nil {
		return true
	}
	return *c.Database.AutoMigrate
}
