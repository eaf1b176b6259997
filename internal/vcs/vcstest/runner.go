// Package vcstest provides a scriptable vcs.Runner for tests.
package vcstest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/savesync/savesync/internal/vcs"
)

// Call is one recorded invocation.
type Call struct {
	Dir  string
	Name string
	Args []string
}

// String renders the call as a command line without the working directory.
func (c Call) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Subcommand returns the first argument, e.g. "commit" for "git commit -m x".
func (c Call) Subcommand() string {
	if len(c.Args) == 0 {
		return ""
	}
	return c.Args[0]
}

// HandlerFunc decides the result of a call. Returning a nil error means the
// command exited successfully.
type HandlerFunc func(ctx context.Context, c Call) (vcs.Output, error)

// Runner records every call and answers through Handler. A nil Handler
// succeeds with empty output.
type Runner struct {
	Handler HandlerFunc

	mu    sync.Mutex
	calls []Call
}

// Run implements vcs.Runner.
func (r *Runner) Run(ctx context.Context, dir string, name string, args ...string) (vcs.Output, error) {
	c := Call{Dir: dir, Name: name, Args: append([]string(nil), args...)}

	r.mu.Lock()
	r.calls = append(r.calls, c)
	h := r.Handler
	r.mu.Unlock()

	if h == nil {
		return vcs.Output{}, nil
	}
	return h(ctx, c)
}

// Calls returns a copy of the recorded calls in order.
func (r *Runner) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// Count returns how many recorded calls used the given subcommand.
func (r *Runner) Count(subcommand string) int {
	n := 0
	for _, c := range r.Calls() {
		if c.Subcommand() == subcommand {
			n++
		}
	}
	return n
}

// Reset forgets all recorded calls.
func (r *Runner) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}

// FailOn returns a handler that fails every call whose subcommand matches,
// mimicking a command exiting with status 1.
func FailOn(subcommand string, stderr string) HandlerFunc {
	return func(ctx context.Context, c Call) (vcs.Output, error) {
		if c.Subcommand() != subcommand {
			return vcs.Output{}, nil
		}
		return vcs.Output{Stderr: stderr, ExitCode: 1},
			fmt.Errorf("%s: %w: exit status 1", c.String(), vcs.ErrCommandFailed)
	}
}
