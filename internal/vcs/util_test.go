package vcs

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParseLines(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"no output", "", nil},
		{"remote list", "origin\nbackup\n", []string{"origin", "backup"}},
		{"rev-parse with CRLF", "/home/me/memcards\r\n", []string{"/home/me/memcards"}},
		{"blank lines dropped", "origin\n\n\nbackup", []string{"origin", "backup"}},
		{"only whitespace", "  \n\t\n", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseLines(tt.in)
			if len(got) != len(tt.want) {
				t.Fatalf("ParseLines(%q) = %q, want %q", tt.in, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("ParseLines(%q)[%d] = %q, want %q", tt.in, i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestClassifyStderr(t *testing.T) {
	tests := []struct {
		name   string
		stderr string
		want   StderrKind
	}{
		{"empty", "", StderrNone},
		{"whitespace only", " \n\t", StderrNone},
		{"line ending warning", "warning: LF will be replaced by CRLF in save1.ps2", StderrWarning},
		{"uppercase warning", "WARNING: something odd", StderrWarning},
		{"push progress", "To github.com:me/saves.git\n   abc123..def456  main -> main", StderrError},
		{"fatal", "fatal: not a git repository", StderrError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyStderr(tt.stderr); got != tt.want {
				t.Errorf("ClassifyStderr(%q) = %v, want %v", tt.stderr, got, tt.want)
			}
		})
	}
}

func TestLogStderrSeverity(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	LogStderr(logger, "git add save1.ps2", "warning: LF will be replaced")
	if !strings.Contains(buf.String(), "level=INFO") {
		t.Errorf("warning text should log at INFO, got %q", buf.String())
	}

	buf.Reset()
	LogStderr(logger, "git push origin main", "To origin\n main -> main")
	if !strings.Contains(buf.String(), "level=WARN") {
		t.Errorf("non-warning text should log at WARN, got %q", buf.String())
	}

	buf.Reset()
	LogStderr(logger, "git commit", "")
	if buf.Len() != 0 {
		t.Errorf("empty stderr should not log, got %q", buf.String())
	}
}

func TestCommand(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"plain", []string{"push", "origin", "main"}, "git push origin main"},
		{"spaces quoted", []string{"commit", "-m", "Force re-upload saves: a.ps2"}, `git commit -m "Force re-upload saves: a.ps2"`},
		{"empty arg", []string{"add", ""}, `git add ""`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Command("git", tt.args...); got != tt.want {
				t.Errorf("Command() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExecContext(t *testing.T) {
	ctx := context.Background()

	out, err := ExecContext(ctx, 5*time.Second, t.TempDir(), "sh", "-c", "echo out; echo err 1>&2")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if TrimOutput(out.Stdout) != "out" {
		t.Errorf("Expected stdout 'out', got %q", out.Stdout)
	}
	if TrimOutput(out.Stderr) != "err" {
		t.Errorf("Expected stderr 'err', got %q", out.Stderr)
	}
	if out.ExitCode != 0 {
		t.Errorf("Expected exit code 0, got %d", out.ExitCode)
	}
}

func TestExecContextFailure(t *testing.T) {
	out, err := ExecContext(context.Background(), 5*time.Second, t.TempDir(), "sh", "-c", "echo partial; echo boom 1>&2; exit 3")
	if err == nil {
		t.Fatal("Expected error for non-zero exit")
	}

	if !errors.Is(err, ErrCommandFailed) {
		t.Errorf("Expected ErrCommandFailed, got %v", err)
	}
	if GetExitCode(err) != 3 {
		t.Errorf("Expected exit code 3, got %d", GetExitCode(err))
	}
	if out.ExitCode != 3 {
		t.Errorf("Output.ExitCode = %d, want 3", out.ExitCode)
	}
	if TrimOutput(out.Stdout) != "partial" || TrimOutput(out.Stderr) != "boom" {
		t.Errorf("Output not captured on failure: %+v", out)
	}
}

func TestExecContextTimeout(t *testing.T) {
	_, err := ExecContext(context.Background(), 100*time.Millisecond, t.TempDir(), "sleep", "2")
	if err == nil {
		t.Fatal("Expected timeout error")
	}
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("Expected ErrTimeout, got %v", err)
	}
}

func TestExecContextMissingBinary(t *testing.T) {
	_, err := ExecContext(context.Background(), 0, t.TempDir(), "savesync-no-such-binary")
	if !errors.Is(err, ErrVCSNotAvailable) {
		t.Errorf("Expected ErrVCSNotAvailable, got %v", err)
	}
	if !IsFatal(err) {
		t.Error("Missing binary should be fatal")
	}
}

func TestExecRunnerRun(t *testing.T) {
	r := NewExecRunner(discardLogger())

	out, err := r.Run(context.Background(), t.TempDir(), "sh", "-c", "echo hello")
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if TrimOutput(out.Stdout) != "hello" {
		t.Errorf("Expected 'hello', got %q", out.Stdout)
	}

	_, err = r.Run(context.Background(), t.TempDir(), "sh", "-c", "exit 1")
	if !IsExitError(err) {
		t.Errorf("Expected wrapped exit error, got %v", err)
	}
}

func TestIsExitError(t *testing.T) {
	if IsExitError(nil) {
		t.Error("Expected false for nil error")
	}

	err := exec.Command("echo", "test").Run()
	if IsExitError(err) {
		t.Error("Expected false for successful command")
	}

	err = exec.Command("sh", "-c", "exit 1").Run()
	if !IsExitError(err) {
		t.Error("Expected true for failed command")
	}
}

func TestGetExitCode(t *testing.T) {
	if code := GetExitCode(nil); code != 0 {
		t.Errorf("Expected exit code 0 for nil error, got %d", code)
	}

	err := exec.Command("sh", "-c", "exit 42").Run()
	if code := GetExitCode(err); code != 42 {
		t.Errorf("Expected exit code 42, got %d", code)
	}

	if code := GetExitCode(errors.New("plain")); code != -1 {
		t.Errorf("Expected -1 for non-exit error, got %d", code)
	}
}

func TestErrorPredicates(t *testing.T) {
	if !IsRetryable(ErrPushRejected) {
		t.Error("push rejection should be retryable")
	}
	if !IsRetryable(ErrLockBusy) {
		t.Error("busy lock should be retryable")
	}
	if IsRetryable(ErrNotInVCS) {
		t.Error("not-in-VCS should not be retryable")
	}
	if !IsFatal(ErrNotInVCS) {
		t.Error("not-in-VCS should be fatal")
	}
	if IsFatal(nil) || IsRetryable(nil) {
		t.Error("nil error should be neither fatal nor retryable")
	}
}
