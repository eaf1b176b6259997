package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"
)

// fileLayout is the on-disk shape written by WriteFile. Durations are kept
// as strings ("3s") so the file stays readable and viper decodes them back.
type fileLayout struct {
	WatchDir     string `toml:"watch_dir"`
	Remote       string `toml:"remote"`
	Branch       string `toml:"branch"`
	CommitPrefix string `toml:"commit_prefix"`
	BatchDelay   string `toml:"batch_delay"`
	GitTimeout   string `toml:"git_timeout"`

	Watch struct {
		Extension          string   `toml:"extension"`
		UsePolling         bool     `toml:"use_polling"`
		PollInterval       string   `toml:"poll_interval"`
		IgnoreInitial      bool     `toml:"ignore_initial"`
		Ignore             []string `toml:"ignore"`
		StabilityThreshold string   `toml:"stability_threshold"`
		SettlePoll         string   `toml:"settle_poll"`
	} `toml:"watch"`

	Connectivity struct {
		URL     string `toml:"url"`
		Timeout string `toml:"timeout"`
		Skip    bool   `toml:"skip"`
	} `toml:"connectivity"`

	Shutdown struct {
		Grace string `toml:"grace"`
	} `toml:"shutdown"`

	Log       LogConfig       `toml:"log"`
	History   HistoryConfig   `toml:"history"`
	Dashboard DashboardConfig `toml:"dashboard"`
}

func durationString(d time.Duration) string {
	return d.String()
}

func toLayout(c *Config) fileLayout {
	var f fileLayout
	f.WatchDir = c.WatchDir
	f.Remote = c.Remote
	f.Branch = c.Branch
	f.CommitPrefix = c.CommitPrefix
	f.BatchDelay = durationString(c.BatchDelay)
	f.GitTimeout = durationString(c.GitTimeout)

	f.Watch.Extension = c.Watch.Extension
	f.Watch.UsePolling = c.Watch.UsePolling
	f.Watch.PollInterval = durationString(c.Watch.PollInterval)
	f.Watch.IgnoreInitial = c.Watch.IgnoreInitial
	f.Watch.Ignore = c.Watch.Ignore
	if f.Watch.Ignore == nil {
		f.Watch.Ignore = []string{}
	}
	f.Watch.StabilityThreshold = durationString(c.Watch.StabilityThreshold)
	f.Watch.SettlePoll = durationString(c.Watch.SettlePoll)

	f.Connectivity.URL = c.Connectivity.URL
	f.Connectivity.Timeout = durationString(c.Connectivity.Timeout)
	f.Connectivity.Skip = c.Connectivity.Skip

	f.Shutdown.Grace = durationString(c.Shutdown.Grace)

	f.Log = c.Log
	f.History = c.History
	f.Dashboard = c.Dashboard
	return f
}

// Encode renders c as TOML.
func Encode(c *Config) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("# savesync configuration\n\n")
	if err := toml.NewEncoder(&buf).Encode(toLayout(c)); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteFile writes c to path. It refuses to overwrite an existing file
// unless force is set.
func WriteFile(path string, c *Config, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}

	data, err := Encode(c)
	if err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Defaults returns a Config holding only the built-in defaults.
func Defaults() *Config {
	v := viper.New()
	SetDefaults(v)
	var cfg Config
	// Defaults always decode.
	_ = v.Unmarshal(&cfg)
	return &cfg
}
