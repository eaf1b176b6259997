package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/savesync/savesync/internal/config"
)

// execute runs the root command with args and returns its stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		cfgFile = ""
	})

	err := rootCmd.Execute()
	return out.String(), err
}

func TestInitCommand_WritesConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "savesync.toml")

	out, err := execute(t, "init", "--yes", "--path", path, "--watch-dir", "/srv/memcards")
	if err != nil {
		t.Fatalf("init failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Wrote") {
		t.Errorf("output = %q", out)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("written config does not load: %v", err)
	}
	if cfg.WatchDir != "/srv/memcards" {
		t.Errorf("WatchDir = %q", cfg.WatchDir)
	}

	if _, err := execute(t, "init", "--yes", "--path", path); err == nil {
		t.Error("second init without --force should fail")
	}
}

func TestHistoryCommand_NoDatabase(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "savesync.toml")
	content := "[history]\npath = \"" + filepath.ToSlash(filepath.Join(dir, "missing.db")) + "\"\n"
	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	out, err := execute(t, "history", "--config", cfgPath)
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if !strings.Contains(out, "No history yet") {
		t.Errorf("output = %q", out)
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.HasPrefix(out, "savesync "+Version) {
		t.Errorf("output = %q", out)
	}
}
