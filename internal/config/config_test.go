package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.WatchDir != "." {
		t.Errorf("WatchDir = %q, want .", cfg.WatchDir)
	}
	if cfg.Remote != "origin" || cfg.Branch != "main" {
		t.Errorf("remote/branch = %s/%s, want origin/main", cfg.Remote, cfg.Branch)
	}
	if cfg.CommitPrefix != "Force re-upload saves" {
		t.Errorf("CommitPrefix = %q", cfg.CommitPrefix)
	}
	if cfg.Watch.Extension != ".ps2" {
		t.Errorf("Watch.Extension = %q, want .ps2", cfg.Watch.Extension)
	}
	if !cfg.Watch.IgnoreInitial {
		t.Error("Watch.IgnoreInitial should default to true")
	}
	if cfg.Watch.StabilityThreshold != 3*time.Second {
		t.Errorf("StabilityThreshold = %v, want 3s", cfg.Watch.StabilityThreshold)
	}
	if cfg.Watch.SettlePoll != 100*time.Millisecond {
		t.Errorf("SettlePoll = %v, want 100ms", cfg.Watch.SettlePoll)
	}
	if cfg.Connectivity.Timeout != 30*time.Second {
		t.Errorf("Connectivity.Timeout = %v, want 30s", cfg.Connectivity.Timeout)
	}
	if cfg.Shutdown.Grace != time.Second {
		t.Errorf("Shutdown.Grace = %v, want 1s", cfg.Shutdown.Grace)
	}
	if cfg.BatchDelay != 0 {
		t.Errorf("BatchDelay = %v, want 0", cfg.BatchDelay)
	}
	if cfg.GitTimeout != 0 {
		t.Errorf("GitTimeout = %v, want 0", cfg.GitTimeout)
	}
	if !cfg.History.Enabled || !strings.HasSuffix(cfg.History.Path, "history.db") {
		t.Errorf("History = %+v", cfg.History)
	}
	if cfg.Dashboard.Addr != "" {
		t.Errorf("Dashboard.Addr = %q, want empty", cfg.Dashboard.Addr)
	}
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "savesync.toml")
	content := `
watch_dir = "/saves"
branch = "saves"

[watch]
use_polling = true
poll_interval = "500ms"
ignore = ["*.tmp"]

[connectivity]
skip = true
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.WatchDir != "/saves" || cfg.Branch != "saves" {
		t.Errorf("WatchDir/Branch = %s/%s", cfg.WatchDir, cfg.Branch)
	}
	if !cfg.Watch.UsePolling || cfg.Watch.PollInterval != 500*time.Millisecond {
		t.Errorf("Watch = %+v", cfg.Watch)
	}
	if !reflect.DeepEqual(cfg.Watch.Ignore, []string{"*.tmp"}) {
		t.Errorf("Watch.Ignore = %v", cfg.Watch.Ignore)
	}
	if !cfg.Connectivity.Skip {
		t.Error("Connectivity.Skip not read")
	}
	if cfg.Remote != "origin" {
		t.Errorf("Remote = %q, want default origin", cfg.Remote)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("SAVESYNC_BRANCH", "trunk")
	t.Setenv("SAVESYNC_WATCH_STABILITY_THRESHOLD", "5s")
	t.Setenv("SAVESYNC_LOG_LEVEL", "debug")
	t.Setenv("SAVESYNC_GIT_TIMEOUT", "2m")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Branch != "trunk" {
		t.Errorf("Branch = %q, want trunk", cfg.Branch)
	}
	if cfg.Watch.StabilityThreshold != 5*time.Second {
		t.Errorf("StabilityThreshold = %v, want 5s", cfg.Watch.StabilityThreshold)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}
	if cfg.GitTimeout != 2*time.Minute {
		t.Errorf("GitTimeout = %v, want 2m", cfg.GitTimeout)
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Error("Load() of missing explicit file should fail")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty remote", func(c *Config) { c.Remote = "" }},
		{"empty branch", func(c *Config) { c.Branch = "" }},
		{"empty extension", func(c *Config) { c.Watch.Extension = "" }},
		{"polling without interval", func(c *Config) { c.Watch.UsePolling = true; c.Watch.PollInterval = 0 }},
		{"negative grace", func(c *Config) { c.Shutdown.Grace = -time.Second }},
		{"negative git timeout", func(c *Config) { c.GitTimeout = -time.Second }},
		{"bad glob", func(c *Config) { c.Watch.Ignore = []string{"["} }},
		{"no probe url", func(c *Config) { c.Connectivity.URL = "" }},
	}

	if err := Defaults().Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
				t.Errorf("Validate() = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestWriteFile_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "savesync.toml")

	cfg := Defaults()
	cfg.WatchDir = "/home/me/memcards"
	cfg.Branch = "saves"
	cfg.Watch.StabilityThreshold = 5 * time.Second
	cfg.Watch.Ignore = []string{"*.bak"}
	cfg.Dashboard.Addr = "127.0.0.1:7777"

	if err := WriteFile(path, cfg, false); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read back: %v", err)
	}
	if !strings.Contains(string(data), `stability_threshold = "5s"`) {
		t.Errorf("durations should be written as strings:\n%s", data)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if got.WatchDir != cfg.WatchDir || got.Branch != cfg.Branch {
		t.Errorf("got %s/%s", got.WatchDir, got.Branch)
	}
	if got.Watch.StabilityThreshold != 5*time.Second {
		t.Errorf("StabilityThreshold = %v", got.Watch.StabilityThreshold)
	}
	if got.Dashboard.Addr != cfg.Dashboard.Addr {
		t.Errorf("Dashboard.Addr = %q", got.Dashboard.Addr)
	}
}

func TestWriteFile_NoClobber(t *testing.T) {
	path := filepath.Join(t.TempDir(), "savesync.toml")
	if err := os.WriteFile(path, []byte("branch = \"x\"\n"), 0o644); err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	if err := WriteFile(path, Defaults(), false); err == nil {
		t.Error("WriteFile() should refuse to overwrite")
	}
	if err := WriteFile(path, Defaults(), true); err != nil {
		t.Errorf("WriteFile(force) failed: %v", err)
	}
}
