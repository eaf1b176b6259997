// Package daemon watches a save directory and pushes changed files to git.
//
// # Architecture
//
// The daemon consists of several components:
//
//   - Watcher: fsnotify (or polling) source with a write-settle debounce
//   - ChangeQueue: deduplicating set of file names awaiting a push
//   - Coordinator: runs at most one sync attempt at a time
//   - Daemon: wires events to the queue, supervises goroutines, drains on exit
//
// # Sync Attempts
//
// Coordinator.AttemptSync claims the in-progress flag with a
// compare-and-swap, drains the queue, removes a stale .git/index.lock if one
// was left behind by a crashed git process, and then for each file runs
//
//	git rm --cached --ignore-unmatch -- <file>
//	git add -- <file>
//
// followed by a single commit listing every file and a push of the
// configured branch. The first failing step aborts the attempt. Files
// drained by a failed attempt are dropped, not re-queued; they are pushed
// again only when a new event queues them.
//
// A concurrent caller that loses the compare-and-swap gets an Attempt with
// OutcomeSkipped and leaves the queue alone.
//
// # Triggering
//
// Event handling never waits for git. HandleFileEvent enqueues the name and
// calls Trigger, a non-blocking send on a one-slot channel read by
// Coordinator.Run. A trigger that arrives during an attempt stays in the
// slot, so names queued meanwhile are picked up right after.
//
//	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
//	defer stop()
//
//	if err := d.Run(ctx); errors.Is(err, daemon.ErrDrainFailed) {
//	    os.Exit(1)
//	}
//
// # Shutdown
//
// When the Run context is cancelled the watcher is stopped first, then the
// coordinator loop finishes any attempt in flight, then Drain runs one last
// attempt if anything is pending and sleeps ShutdownGrace so logs reach
// their sinks.
//
// # Write Settling
//
// A memory card is rewritten in several chunks. Touched paths are held
// until size and modification time stay the same for StabilityThreshold,
// re-checked every SettlePoll. Paths that vanish while settling are dropped.
package daemon
