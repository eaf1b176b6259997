package vcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// ===================
// Command Execution
// ===================

// ExecRunner runs commands with os/exec and logs each invocation.
type ExecRunner struct {
	// Timeout bounds a single command. Zero means no limit; the command is
	// expected to terminate on its own.
	Timeout time.Duration

	logger *slog.Logger
}

// NewExecRunner creates a Runner backed by os/exec.
func NewExecRunner(logger *slog.Logger) *ExecRunner {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExecRunner{logger: logger}
}

// Run executes name with args in dir.
//
// On a non-zero exit the returned error wraps both ErrCommandFailed and the
// underlying *exec.ExitError, and Output still carries whatever the command
// printed.
func (r *ExecRunner) Run(ctx context.Context, dir string, name string, args ...string) (Output, error) {
	line := Command(name, args...)
	r.logger.Info("executing command", "command", line, "dir", dir)

	out, err := ExecContext(ctx, r.Timeout, dir, name, args...)
	if err != nil {
		attrs := []any{"command", line, "error", err, "exit_code", out.ExitCode}
		if out.Stdout != "" {
			attrs = append(attrs, "stdout", strings.TrimSpace(out.Stdout))
		}
		if out.Stderr != "" {
			attrs = append(attrs, "stderr", strings.TrimSpace(out.Stderr))
		}
		r.logger.Error("command failed", attrs...)
		return out, err
	}

	if s := strings.TrimSpace(out.Stdout); s != "" {
		r.logger.Info("stdout", "command", line, "output", s)
	}
	LogStderr(r.logger, line, out.Stderr)

	return out, nil
}

// ExecContext executes a command with timeout and context support and
// captures stdout and stderr separately.
//
// Example:
//
//	out, err := ExecContext(ctx, 30*time.Second, repoRoot, "git", "status", "--porcelain")
func ExecContext(ctx context.Context, timeout time.Duration, workDir string, name string, args ...string) (Output, error) {
	// Create context with timeout if specified
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = workDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	out := Output{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: GetExitCode(err),
	}
	if err == nil {
		return out, nil
	}

	line := Command(name, args...)
	switch {
	case errors.Is(err, exec.ErrNotFound):
		return out, fmt.Errorf("%s: %w: %w", line, ErrVCSNotAvailable, err)
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return out, fmt.Errorf("%s: %w: %w", line, ErrTimeout, err)
	case IsExitError(err):
		return out, fmt.Errorf("%s: %w: %w", line, ErrCommandFailed, err)
	default:
		return out, fmt.Errorf("%s: %w", line, err)
	}
}

// ===================
// Stderr Classification
// ===================

// StderrKind describes what a command printed on stderr.
type StderrKind int

const (
	// StderrNone means nothing was printed.
	StderrNone StderrKind = iota
	// StderrWarning is informational text such as "warning: LF will be replaced".
	StderrWarning
	// StderrError is anything else.
	StderrError
)

// String returns a human-readable representation of the kind.
func (k StderrKind) String() string {
	switch k {
	case StderrNone:
		return "none"
	case StderrWarning:
		return "warning"
	case StderrError:
		return "error"
	default:
		return "unknown"
	}
}

// ClassifyStderr sorts stderr from a successful command by keyword.
// Git prints progress and advisory text on stderr, so only text without
// the word "warning" is treated as a possible problem.
func ClassifyStderr(stderr string) StderrKind {
	s := strings.TrimSpace(stderr)
	if s == "" {
		return StderrNone
	}
	if strings.Contains(strings.ToLower(s), "warning") {
		return StderrWarning
	}
	return StderrError
}

// LogStderr logs stderr from a successful command at a severity matching
// its classification. It never affects control flow.
func LogStderr(logger *slog.Logger, command, stderr string) {
	switch ClassifyStderr(stderr) {
	case StderrWarning:
		logger.Info("stderr (warning/info)", "command", command, "output", strings.TrimSpace(stderr))
	case StderrError:
		logger.Warn("stderr (non-warning)", "command", command, "output", strings.TrimSpace(stderr))
	}
}

// ===================
// Output Parsing Utilities
// ===================

// ParseLines returns the trimmed, non-blank lines of output.
func ParseLines(output string) []string {
	if output == "" {
		return nil
	}
	var lines []string
	for line := range strings.Lines(output) {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	if lines == nil {
		lines = []string{}
	}
	return lines
}

// TrimOutput trims whitespace and trailing newlines from command output.
func TrimOutput(output string) string {
	return strings.TrimSpace(output)
}

// ===================
// Error Utilities
// ===================

// IsExitError returns true if the error is, or wraps, an exit error with
// non-zero status.
func IsExitError(err error) bool {
	if err == nil {
		return false
	}
	var exitErr *exec.ExitError
	return errors.As(err, &exitErr)
}

// GetExitCode returns the exit code from an error, or -1 if not an exit error.
func GetExitCode(err error) int {
	if err == nil {
		return 0
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}

	return -1
}
