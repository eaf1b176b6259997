package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"info", slog.LevelInfo, false},
		{"DEBUG", slog.LevelDebug, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}

	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNew_TextFiltersLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, closeFn, err := New(Options{Level: "warn", Stderr: &buf})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer closeFn()

	logger.Info("quiet")
	logger.Warn("loud", "file", "save1.ps2")

	out := buf.String()
	if strings.Contains(out, "quiet") {
		t.Errorf("info record written at warn level: %s", out)
	}
	if !strings.Contains(out, "loud") || !strings.Contains(out, "file=save1.ps2") {
		t.Errorf("warn record missing: %s", out)
	}
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger, closeFn, err := New(Options{Format: "json", Stderr: &buf})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer closeFn()

	logger.Info("pushed", "files", 2)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("output is not JSON: %v (%s)", err, buf.String())
	}
	if rec["msg"] != "pushed" {
		t.Errorf("msg = %v, want pushed", rec["msg"])
	}
}

func TestNew_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "savesync.log")

	var buf bytes.Buffer
	logger, closeFn, err := New(Options{File: path, MaxSizeMB: 1, Stderr: &buf})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	logger.Info("to both")
	if err := closeFn(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), "to both") {
		t.Errorf("log file missing record: %s", data)
	}
	if !strings.Contains(buf.String(), "to both") {
		t.Errorf("stderr missing record: %s", buf.String())
	}
}

func TestNew_BadOptions(t *testing.T) {
	if _, _, err := New(Options{Level: "loud"}); err == nil {
		t.Error("unknown level should fail")
	}
	if _, _, err := New(Options{Format: "xml"}); err == nil {
		t.Error("unknown format should fail")
	}
}
