package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/savesync/savesync/internal/vcs"
	"github.com/savesync/savesync/internal/vcs/git"
)

// Outcome is how an attempt ended.
type Outcome string

const (
	// OutcomeSkipped means another attempt was running or nothing was pending.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeSucceeded means every step, including the push, completed.
	OutcomeSucceeded Outcome = "succeeded"
	// OutcomeFailed means a step failed and the remaining steps were not run.
	OutcomeFailed Outcome = "failed"
)

// Step names a phase of the sync protocol.
type Step string

const (
	StepLock    Step = "lock"
	StepUntrack Step = "untrack"
	StepAdd     Step = "add"
	StepCommit  Step = "commit"
	StepPush    Step = "push"
)

// Attempt is one run of the sync protocol over a snapshot of pending files.
type Attempt struct {
	// ID is assigned per process in start order. Skipped attempts have ID 0.
	ID uint64

	// Files is the sorted set drained from the queue for this attempt.
	Files []string

	StartedAt  time.Time
	FinishedAt time.Time

	Outcome Outcome

	// FailedStep is set when Outcome is OutcomeFailed.
	FailedStep Step

	// Err is the error that aborted the attempt.
	Err error

	// LockRemoved reports whether a stale index lock was deleted first.
	LockRemoved bool
}

// Duration returns how long the attempt ran.
func (a Attempt) Duration() time.Duration {
	if a.FinishedAt.IsZero() {
		return 0
	}
	return a.FinishedAt.Sub(a.StartedAt)
}

// Observer is notified about attempts that drained at least one file.
// Callbacks run synchronously on the attempting goroutine and must not
// block for long.
type Observer interface {
	AttemptStarted(a Attempt)
	AttemptFinished(a Attempt)
}

// Repository is the set of VCS operations an attempt performs.
// *git.Git satisfies it.
type Repository interface {
	RemoveStaleLock() (bool, error)
	Untrack(ctx context.Context, path string) error
	Add(ctx context.Context, path string) error
	Commit(ctx context.Context, message string) error
	Push(ctx context.Context, remote, branch string) error
}

var _ Repository = (*git.Git)(nil)

// CoordinatorConfig holds the push target and batching settings.
type CoordinatorConfig struct {
	// Remote and Branch are the push target (default origin/main).
	Remote string
	Branch string

	// CommitPrefix starts every commit message.
	CommitPrefix string

	// BatchDelay is how long the trigger loop waits after a trigger before
	// attempting, so a burst of events lands in one commit. Zero attempts
	// immediately.
	BatchDelay time.Duration

	Logger *slog.Logger
}

// Coordinator serializes sync attempts against one repository.
//
// At most one attempt runs at a time. AttemptSync may be called from any
// goroutine; callers that lose the race get a skipped Attempt and leave the
// queue untouched.
type Coordinator struct {
	queue  *ChangeQueue
	repo   Repository
	config CoordinatorConfig
	logger *slog.Logger

	inProgress atomic.Bool
	seq        atomic.Uint64

	// trigger has one slot; a trigger sent while an attempt runs is kept
	// so the loop attempts again once it finishes.
	trigger chan struct{}

	observersMu sync.RWMutex
	observers   []Observer
}

// NewCoordinator creates a Coordinator draining queue into repo.
func NewCoordinator(queue *ChangeQueue, repo Repository, config CoordinatorConfig) (*Coordinator, error) {
	if queue == nil {
		return nil, fmt.Errorf("queue cannot be nil")
	}
	if repo == nil {
		return nil, fmt.Errorf("repository cannot be nil")
	}
	if config.Remote == "" {
		config.Remote = "origin"
	}
	if config.Branch == "" {
		config.Branch = "main"
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &Coordinator{
		queue:   queue,
		repo:    repo,
		config:  config,
		logger:  config.Logger.With("component", "coordinator"),
		trigger: make(chan struct{}, 1),
	}, nil
}

// AddObserver registers o for attempt notifications.
func (c *Coordinator) AddObserver(o Observer) {
	c.observersMu.Lock()
	defer c.observersMu.Unlock()
	c.observers = append(c.observers, o)
}

// InProgress reports whether an attempt is currently running.
func (c *Coordinator) InProgress() bool {
	return c.inProgress.Load()
}

// Queue returns the queue the coordinator drains.
func (c *Coordinator) Queue() *ChangeQueue {
	return c.queue
}

// Trigger asks the Run loop for an attempt without waiting for it.
func (c *Coordinator) Trigger() {
	select {
	case c.trigger <- struct{}{}:
	default:
		// a trigger is already pending
	}
}

// Run services triggers until ctx is cancelled. An attempt that has started
// is never interrupted: it runs under a context detached from ctx, and Run
// returns only after it completes.
func (c *Coordinator) Run(ctx context.Context) error {
	attemptCtx := context.WithoutCancel(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-c.trigger:
			if c.config.BatchDelay > 0 {
				timer := time.NewTimer(c.config.BatchDelay)
				select {
				case <-ctx.Done():
					timer.Stop()
					return nil
				case <-timer.C:
				}
			}
			c.AttemptSync(attemptCtx)
		}
	}
}

// AttemptSync runs the sync protocol once over everything pending.
//
// Files drained by an attempt are never re-queued; if a step fails they are
// dropped and logged, and only a new file event queues them again.
func (c *Coordinator) AttemptSync(ctx context.Context) Attempt {
	if !c.inProgress.CompareAndSwap(false, true) {
		c.logger.Info("skipping push: another push operation is active")
		return Attempt{Outcome: OutcomeSkipped}
	}
	// The flag is released before observers hear AttemptFinished, so they
	// see the coordinator idle. The deferred release covers early returns
	// and panics and must not clear a flag a later attempt now holds.
	held := true
	release := func() {
		if held {
			held = false
			c.inProgress.Store(false)
		}
	}
	defer release()

	files := c.queue.DrainAll()
	if len(files) == 0 {
		c.logger.Info("skipping push: no changes to commit")
		return Attempt{Outcome: OutcomeSkipped}
	}

	a := Attempt{
		ID:        c.seq.Add(1),
		Files:     files,
		StartedAt: time.Now(),
	}
	log := c.logger.With("attempt", a.ID)
	log.Info("forcing re-push", "count", len(files), "files", strings.Join(files, ", "))
	c.notifyStarted(a)

	step, err := c.runSteps(ctx, log, &a)
	a.FinishedAt = time.Now()
	if err != nil {
		a.Outcome = OutcomeFailed
		a.FailedStep = step
		a.Err = err
		log.Error("push attempt failed",
			"step", step,
			"error", err,
			"transient", vcs.IsRetryable(err),
			"dropped", strings.Join(files, ", "))
	} else {
		a.Outcome = OutcomeSucceeded
		log.Info("force push complete", "files", strings.Join(files, ", "), "duration", a.Duration())
	}

	release()
	c.notifyFinished(a)
	return a
}

// runSteps performs lock recovery, per-file re-stage, commit and push,
// stopping at the first failure.
func (c *Coordinator) runSteps(ctx context.Context, log *slog.Logger, a *Attempt) (Step, error) {
	removed, err := c.repo.RemoveStaleLock()
	if err != nil {
		return StepLock, fmt.Errorf("failed to remove lock file: %w", err)
	}
	if removed {
		a.LockRemoved = true
		log.Info("git lock file removed")
	}

	for _, file := range a.Files {
		log.Info("untracking", "file", file)
		if err := c.repo.Untrack(ctx, file); err != nil {
			return StepUntrack, err
		}

		log.Info("re-adding", "file", file)
		if err := c.repo.Add(ctx, file); err != nil {
			return StepAdd, err
		}
	}

	message := git.CommitMessage(c.config.CommitPrefix, a.Files)
	log.Info("committing", "message", message)
	if err := c.repo.Commit(ctx, message); err != nil {
		return StepCommit, err
	}

	log.Info("pushing", "remote", c.config.Remote, "branch", c.config.Branch)
	if err := c.repo.Push(ctx, c.config.Remote, c.config.Branch); err != nil {
		return StepPush, err
	}

	return "", nil
}

func (c *Coordinator) snapshotObservers() []Observer {
	c.observersMu.RLock()
	defer c.observersMu.RUnlock()
	return append([]Observer(nil), c.observers...)
}

func (c *Coordinator) notifyStarted(a Attempt) {
	for _, o := range c.snapshotObservers() {
		o.AttemptStarted(a)
	}
}

func (c *Coordinator) notifyFinished(a Attempt) {
	for _, o := range c.snapshotObservers() {
		o.AttemptFinished(a)
	}
}
