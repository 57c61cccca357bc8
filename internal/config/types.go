// Package config provides configuration loading for rosterwatch.
package config

import (
	"fmt"
	"time"

	"github.com/rosterlabs/rosterwatch/internal/adapter"
	"github.com/rosterlabs/rosterwatch/internal/notify"
)

// TargetConfig holds datastore connection configuration.
type TargetConfig struct {
	Type string `koanf:"type"` // sqlite, duckdb, postgres

	// File-based databases (SQLite, DuckDB).
	Path string `koanf:"path"`

	// Network databases.
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`
	Database string `koanf:"database"`

	Schema string `koanf:"schema"`
}

// ToAdapterConfig converts the target section to an adapter config.
func (t *TargetConfig) ToAdapterConfig() adapter.Config {
	return adapter.Config{
		Type:     t.Type,
		Path:     t.Path,
		Host:     t.Host,
		Port:     t.Port,
		Database: t.Database,
		Username: t.User,
		Password: t.Password,
		Schema:   t.Schema,
	}
}

// MonitoringConfig tunes the snapshot-diff-notify pipeline.
type MonitoringConfig struct {
	// Interval is a Go duration string between scheduled runs ("168h").
	Interval string `koanf:"interval"`

	// KeepSnapshots bounds per-query snapshot history.
	KeepSnapshots int `koanf:"keep_snapshots"`

	// Recipients receive change reports.
	Recipients []notify.Recipient `koanf:"recipients"`
}

// IntervalDuration parses the configured interval, defaulting to weekly.
func (m *MonitoringConfig) IntervalDuration() (time.Duration, error) {
	if m == nil || m.Interval == "" {
		return 7 * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(m.Interval)
	if err != nil {
		return 0, fmt.Errorf("invalid monitoring interval %q: %w", m.Interval, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("monitoring interval must be positive, got %q", m.Interval)
	}
	return d, nil
}

// SMTPConfig configures the mail collaborator.
type SMTPConfig struct {
	Host     string `koanf:"host"`
	Port     string `koanf:"port"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
	From     string `koanf:"from"`
}

// Config holds all rosterwatch configuration.
type Config struct {
	StatePath  string            `koanf:"state_path"`
	Verbose    bool              `koanf:"verbose"`
	Target     *TargetConfig     `koanf:"target"`
	Monitoring *MonitoringConfig `koanf:"monitoring"`
	SMTP       *SMTPConfig       `koanf:"smtp"`
}

// ApplyDefaults fills unset fields with defaults.
func (c *Config) ApplyDefaults() {
	if c.StatePath == "" {
		c.StatePath = ".rosterwatch/state.db"
	}
	if c.Target == nil {
		c.Target = &TargetConfig{}
	}
	if c.Target.Type == "" {
		c.Target.Type = "sqlite"
	}
	if c.Monitoring == nil {
		c.Monitoring = &MonitoringConfig{}
	}
	if c.Monitoring.KeepSnapshots == 0 {
		c.Monitoring.KeepSnapshots = 10
	}
}
