// Package config loads savesync settings.
//
// Values are layered, lowest precedence first: built-in defaults, the
// savesync.toml file, SAVESYNC_* environment variables, and command-line
// flags bound by the caller.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// FileName is the config file base name searched for by Load.
const FileName = "savesync"

// EnvPrefix is prepended to environment overrides, e.g. SAVESYNC_BRANCH.
const EnvPrefix = "SAVESYNC"

// ErrInvalid is wrapped by every Validate failure.
var ErrInvalid = errors.New("invalid configuration")

// Config is the decoded configuration.
type Config struct {
	WatchDir     string        `mapstructure:"watch_dir"`
	Remote       string        `mapstructure:"remote"`
	Branch       string        `mapstructure:"branch"`
	CommitPrefix string        `mapstructure:"commit_prefix"`
	BatchDelay   time.Duration `mapstructure:"batch_delay"`
	GitTimeout   time.Duration `mapstructure:"git_timeout"`

	Watch        WatchConfig        `mapstructure:"watch"`
	Connectivity ConnectivityConfig `mapstructure:"connectivity"`
	Shutdown     ShutdownConfig     `mapstructure:"shutdown"`
	Log          LogConfig          `mapstructure:"log"`
	History      HistoryConfig      `mapstructure:"history"`
	Dashboard    DashboardConfig    `mapstructure:"dashboard"`
}

// WatchConfig selects and tunes the file event source.
type WatchConfig struct {
	Extension          string        `mapstructure:"extension"`
	UsePolling         bool          `mapstructure:"use_polling"`
	PollInterval       time.Duration `mapstructure:"poll_interval"`
	IgnoreInitial      bool          `mapstructure:"ignore_initial"`
	Ignore             []string      `mapstructure:"ignore"`
	StabilityThreshold time.Duration `mapstructure:"stability_threshold"`
	SettlePoll         time.Duration `mapstructure:"settle_poll"`
}

// ConnectivityConfig controls the startup reachability probe.
type ConnectivityConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
	Skip    bool          `mapstructure:"skip"`
}

// ShutdownConfig controls the exit drain.
type ShutdownConfig struct {
	Grace time.Duration `mapstructure:"grace"`
}

// LogConfig controls logger construction.
type LogConfig struct {
	Level      string `mapstructure:"level" toml:"level"`
	Format     string `mapstructure:"format" toml:"format"`
	File       string `mapstructure:"file" toml:"file,omitempty"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" toml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" toml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" toml:"max_age_days"`
}

// HistoryConfig controls the attempt journal.
type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled" toml:"enabled"`
	Path    string `mapstructure:"path" toml:"path,omitempty"`
}

// DashboardConfig controls the optional live dashboard. An empty Addr
// disables it.
type DashboardConfig struct {
	Addr string `mapstructure:"addr" toml:"addr,omitempty"`
}

// Dir returns the per-user configuration directory for savesync.
func Dir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "savesync")
	}
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "savesync")
	}
	return ".savesync"
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("watch_dir", ".")
	v.SetDefault("remote", "origin")
	v.SetDefault("branch", "main")
	v.SetDefault("commit_prefix", "Force re-upload saves")
	v.SetDefault("batch_delay", time.Duration(0))
	v.SetDefault("git_timeout", time.Duration(0))

	v.SetDefault("watch.extension", ".ps2")
	v.SetDefault("watch.use_polling", false)
	v.SetDefault("watch.poll_interval", 2*time.Second)
	v.SetDefault("watch.ignore_initial", true)
	v.SetDefault("watch.ignore", []string{})
	v.SetDefault("watch.stability_threshold", 3*time.Second)
	v.SetDefault("watch.settle_poll", 100*time.Millisecond)

	v.SetDefault("connectivity.url", "https://www.google.com")
	v.SetDefault("connectivity.timeout", 30*time.Second)
	v.SetDefault("connectivity.skip", false)

	v.SetDefault("shutdown.grace", time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)

	v.SetDefault("history.enabled", true)
	v.SetDefault("history.path", filepath.Join(Dir(), "history.db"))

	v.SetDefault("dashboard.addr", "")
}

// New returns a viper instance with defaults, search paths and environment
// binding configured. If file is non-empty only that file is read.
func New(file string) *viper.Viper {
	v := viper.New()
	SetDefaults(v)

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		v.AddConfigPath(Dir())
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

// Read loads the config file into v. A missing file is not an error when
// it was found by searching; an explicitly named file must exist.
func Read(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to read config: %w", err)
	}
	return nil
}

// Decode unmarshals v into a Config and validates it.
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load is New, Read and Decode in one call, for callers without flags.
func Load(file string) (*Config, error) {
	v := New(file)
	if err := Read(v); err != nil {
		return nil, err
	}
	return Decode(v)
}

// Validate checks required fields and value ranges.
func (c *Config) Validate() error {
	var problems []string

	if c.WatchDir == "" {
		problems = append(problems, "watch_dir is required")
	}
	if c.Remote == "" {
		problems = append(problems, "remote is required")
	}
	if c.Branch == "" {
		problems = append(problems, "branch is required")
	}
	if c.Watch.Extension == "" {
		problems = append(problems, "watch.extension is required")
	}
	if c.Watch.UsePolling && c.Watch.PollInterval <= 0 {
		problems = append(problems, "watch.poll_interval must be positive when polling")
	}
	if c.Watch.StabilityThreshold < 0 {
		problems = append(problems, "watch.stability_threshold cannot be negative")
	}
	if c.BatchDelay < 0 {
		problems = append(problems, "batch_delay cannot be negative")
	}
	if c.GitTimeout < 0 {
		problems = append(problems, "git_timeout cannot be negative")
	}
	if c.Shutdown.Grace < 0 {
		problems = append(problems, "shutdown.grace cannot be negative")
	}
	if !c.Connectivity.Skip && c.Connectivity.URL == "" {
		problems = append(problems, "connectivity.url is required unless connectivity.skip is set")
	}
	for _, pattern := range c.Watch.Ignore {
		if _, err := filepath.Match(pattern, ""); err != nil {
			problems = append(problems, fmt.Sprintf("watch.ignore pattern %q: %v", pattern, err))
		}
	}
	if c.History.Enabled && c.History.Path == "" {
		problems = append(problems, "history.path is required when history is enabled")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}
