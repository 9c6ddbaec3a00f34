package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validSync() *Config {
	cfg := Default()
	cfg.Brightwheel.Email = "parent@example.com"
	cfg.Brightwheel.Password = "pw"
	cfg.BabyBuddy.URL = "https://baby.example.com"
	cfg.BabyBuddy.Token = "tok"
	cfg.BabyBuddy.ChildID = 1
	return cfg
}

func TestLoad_ExplicitMissingPath(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "unused")); err == nil {
		t.Fatal("explicit missing path did not error")
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Brightwheel.PageSize != 10 {
		t.Errorf("default page size = %d, want 10", cfg.Brightwheel.PageSize)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "text" {
		t.Errorf("default logging = %s/%s", cfg.Logging.Level, cfg.Logging.Format)
	}
	if cfg.Archive.Concurrency != 4 {
		t.Errorf("default archive concurrency = %d, want 4", cfg.Archive.Concurrency)
	}
}

func TestLoad_FileAndEnvLayering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	contents := `
brightwheel:
  email: file@example.com
  password: filepw
babybuddy:
  url: https://baby.example.com
  token: filetok
  child_id: 3
sync:
  since: "2025-08-01"
  skip_existing: true
`
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("BWSYNC_EMAIL", "env@example.com")
	t.Setenv("BABYBUDDY_CHILD_ID", "9")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	// Env wins over file; file wins over defaults.
	if cfg.Brightwheel.Email != "env@example.com" {
		t.Errorf("email = %q, want the env override", cfg.Brightwheel.Email)
	}
	if cfg.Brightwheel.Password != "filepw" {
		t.Errorf("password = %q, want the file value", cfg.Brightwheel.Password)
	}
	if cfg.BabyBuddy.ChildID != 9 {
		t.Errorf("child id = %d, want the env override", cfg.BabyBuddy.ChildID)
	}
	if !cfg.Sync.SkipExisting || cfg.Sync.Since != "2025-08-01" {
		t.Errorf("sync section not loaded: %+v", cfg.Sync)
	}
	if cfg.Brightwheel.PageSize != 10 {
		t.Errorf("page size = %d, defaults lost during layering", cfg.Brightwheel.PageSize)
	}
}

func TestLoad_BadChildIDEnv(t *testing.T) {
	t.Setenv("BABYBUDDY_CHILD_ID", "not-a-number")
	if _, err := Load(""); err == nil {
		t.Fatal("invalid BABYBUDDY_CHILD_ID accepted")
	}
}

func TestValidateSync(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing email", func(c *Config) { c.Brightwheel.Email = "" }, "email"},
		{"missing password", func(c *Config) { c.Brightwheel.Password = "" }, "password"},
		{"missing directory", func(c *Config) { c.Media.Directory = "" }, "directory"},
		{"missing url", func(c *Config) { c.BabyBuddy.URL = "" }, "url"},
		{"missing token", func(c *Config) { c.BabyBuddy.Token = "" }, "token"},
		{"missing child", func(c *Config) { c.BabyBuddy.ChildID = 0 }, "child"},
		{"bad since", func(c *Config) { c.Sync.Since = "08/01/2025" }, "since"},
		{"bad before", func(c *Config) { c.Sync.Before = "yesterday" }, "before"},
		{"archive without bucket", func(c *Config) { c.Archive.Enabled = true }, "bucket"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validSync()
			tt.mutate(cfg)
			err := cfg.ValidateSync()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("ValidateSync: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("ValidateSync() = %v, want error mentioning %q", err, tt.wantErr)
			}
		})
	}
}

func TestParseDate(t *testing.T) {
	got, err := ParseDate("2025-08-04")
	if err != nil {
		t.Fatalf("ParseDate: %v", err)
	}
	if !got.Equal(time.Date(2025, 8, 4, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("ParseDate = %v", got)
	}

	zero, err := ParseDate("")
	if err != nil {
		t.Fatalf("ParseDate(empty): %v", err)
	}
	if !zero.IsZero() {
		t.Errorf("empty bound parsed as %v, want the zero time", zero)
	}

	if _, err := ParseDate("Aug 4"); err == nil {
		t.Error("malformed date accepted")
	}
}
