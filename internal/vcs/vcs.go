// Package vcs provides the subprocess layer savesync uses to drive a
// version control command-line tool.
//
// The package deliberately knows nothing about git itself. It runs a named
// binary in a working directory, captures standard output and standard error
// separately, and reports the exit status. The git package builds the
// synchronization commands on top of it.
//
// # Usage
//
//	r := vcs.NewExecRunner(logger)
//	out, err := r.Run(ctx, repoRoot, "git", "status", "--porcelain")
//	if err != nil {
//	    log.Printf("exit %d: %s", vcs.GetExitCode(err), out.Stderr)
//	}
//
// Tests replace the Runner with a fake that records invocations.
package vcs

import (
	"context"
	"strings"
)

// Runner executes a command in a working directory.
//
// Implementations must return the captured output even when the command
// fails, so callers can log what the tool printed before exiting.
type Runner interface {
	Run(ctx context.Context, dir string, name string, args ...string) (Output, error)
}

// Output holds what a finished command printed and how it exited.
type Output struct {
	// Stdout is the captured standard output.
	Stdout string

	// Stderr is the captured standard error.
	Stderr string

	// ExitCode is the process exit status, or -1 if the process never ran.
	ExitCode int
}

// Command returns a printable form of a command line, used in log lines.
func Command(name string, args ...string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, name)
	for _, a := range args {
		if a == "" || strings.ContainsAny(a, " \t\"'") {
			a = `"` + strings.ReplaceAll(a, `"`, `\"`) + `"`
		}
		parts = append(parts, a)
	}
	return strings.Join(parts, " ")
}
