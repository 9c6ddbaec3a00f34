// Package config provides layered configuration for bwsync.
// Priority: defaults < config file < environment < CLI flags.
// The loaded Config is immutable for the life of a run and is passed
// into each component's constructor, never held globally.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all bwsync configuration.
type Config struct {
	Brightwheel BrightwheelConfig `yaml:"brightwheel"`
	BabyBuddy   BabyBuddyConfig   `yaml:"babybuddy"`
	Media       MediaConfig       `yaml:"media"`
	Sync        SyncConfig        `yaml:"sync"`
	Logging     LoggingConfig     `yaml:"logging"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	Archive     ArchiveConfig     `yaml:"archive"`
}

// BrightwheelConfig identifies the source feed account.
type BrightwheelConfig struct {
	Email     string `yaml:"email"`
	Password  string `yaml:"password"`
	StudentID string `yaml:"student_id"`
	PageSize  int    `yaml:"page_size"`
}

// BabyBuddyConfig identifies the destination instance.
type BabyBuddyConfig struct {
	URL     string `yaml:"url"`
	Token   string `yaml:"token"`
	ChildID int    `yaml:"child_id"`
}

// MediaConfig controls asset downloads.
type MediaConfig struct {
	Directory string `yaml:"directory"`
}

// SyncConfig controls the batch pass.
type SyncConfig struct {
	Since        string `yaml:"since"`  // YYYY-MM-DD, inclusive lower bound
	Before       string `yaml:"before"` // YYYY-MM-DD, inclusive upper bound
	SkipExisting bool   `yaml:"skip_existing"`
	IgnoreErrors bool   `yaml:"ignore_errors"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // json | text
}

// TelemetryConfig controls optional OTLP trace export.
type TelemetryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
	Insecure bool   `yaml:"insecure"`
}

// ArchiveConfig controls the optional post-run S3 mirror.
type ArchiveConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Prefix          string `yaml:"prefix"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Concurrency     int    `yaml:"concurrency"`
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".bwsync", "config.yaml")
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Brightwheel: BrightwheelConfig{PageSize: 10},
		Media:       MediaConfig{Directory: "."},
		Logging:     LoggingConfig{Level: "info", Format: "text"},
		Telemetry:   TelemetryConfig{Endpoint: "localhost:4317", Insecure: true},
		Archive:     ArchiveConfig{Concurrency: 4},
	}
}

// Load builds a Config from defaults, then the YAML file at path (if
// it exists), then environment variables. An empty path means the
// default location; a missing file at the default location is fine,
// a missing file at an explicit path is an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config file %s: %w", path, err)
			}
		case os.IsNotExist(err) && !explicit:
			// No config file is a normal setup.
		default:
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	setString(&c.Brightwheel.Email, "BWSYNC_EMAIL")
	setString(&c.Brightwheel.Password, "BWSYNC_PASSWORD")
	setString(&c.Brightwheel.StudentID, "BWSYNC_STUDENT_ID")
	setString(&c.BabyBuddy.URL, "BABYBUDDY_URL")
	setString(&c.BabyBuddy.Token, "BABYBUDDY_TOKEN")
	setString(&c.Media.Directory, "BWSYNC_DIRECTORY")
	setString(&c.Logging.Level, "BWSYNC_LOG_LEVEL")
	setString(&c.Logging.Format, "BWSYNC_LOG_FORMAT")
	setString(&c.Telemetry.Endpoint, "BWSYNC_OTLP_ENDPOINT")

	if v := os.Getenv("BABYBUDDY_CHILD_ID"); v != "" {
		id, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid BABYBUDDY_CHILD_ID: %w", err)
		}
		c.BabyBuddy.ChildID = id
	}
	return nil
}

// ValidateLogin checks the fields any command that logs in requires.
func (c *Config) ValidateLogin() error {
	if c.Brightwheel.Email == "" {
		return fmt.Errorf("brightwheel email is required")
	}
	if c.Brightwheel.Password == "" {
		return fmt.Errorf("brightwheel password is required")
	}
	return nil
}

// ValidateSync checks everything a full sync run requires.
func (c *Config) ValidateSync() error {
	if err := c.ValidateLogin(); err != nil {
		return err
	}
	if c.Media.Directory == "" {
		return fmt.Errorf("media directory is required")
	}
	if c.BabyBuddy.URL == "" {
		return fmt.Errorf("babybuddy url is required")
	}
	if c.BabyBuddy.Token == "" {
		return fmt.Errorf("babybuddy token is required")
	}
	if c.BabyBuddy.ChildID == 0 {
		return fmt.Errorf("babybuddy child id is required")
	}
	if _, err := ParseDate(c.Sync.Since); err != nil {
		return fmt.Errorf("invalid since date: %w", err)
	}
	if _, err := ParseDate(c.Sync.Before); err != nil {
		return fmt.Errorf("invalid before date: %w", err)
	}
	if c.Archive.Enabled && c.Archive.Bucket == "" {
		return fmt.Errorf("archive bucket is required when archiving is enabled")
	}
	return nil
}

// ParseDate parses a YYYY-MM-DD bound. An empty string is the open
// bound and parses to the zero time.
func ParseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", s)
}
