package daemon

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrDrainFailed is returned by Run when the final push at shutdown failed.
// The process should exit with status 1.
var ErrDrainFailed = errors.New("final push before exit failed")

// Drain pushes pending files once before exit.
//
// With nothing pending it returns immediately. Otherwise it runs one
// attempt, waits ShutdownGrace, and returns nil on success or an error
// wrapping ErrDrainFailed. The attempt runs on a fresh context: shutdown
// has already been requested and must not cancel it.
func (d *Daemon) Drain() error {
	pending := d.coordinator.Queue().Len()
	if pending == 0 {
		d.logger.Info("no pending changes, exiting")
		return nil
	}

	d.logger.Info("pending changes detected, attempting final push before exiting", "pending", pending)
	a := d.coordinator.AttemptSync(context.Background())

	if d.config.ShutdownGrace > 0 {
		time.Sleep(d.config.ShutdownGrace)
	}

	if a.Outcome == OutcomeFailed {
		return fmt.Errorf("%w: %w", ErrDrainFailed, a.Err)
	}
	return nil
}
