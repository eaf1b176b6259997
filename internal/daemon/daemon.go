package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// EventSource delivers settled file events. *Watcher implements it.
type EventSource interface {
	Start(ctx context.Context) error
	Stop() error
	Events() <-chan FileEvent
	Errors() <-chan error
	// Ready is closed once the initial scan is done.
	Ready() <-chan struct{}
}

var _ EventSource = (*Watcher)(nil)

// State is the daemon lifecycle phase.
type State int32

const (
	// StateIdle means Run has not been called.
	StateIdle State = iota
	// StateRunning means file events are being handled.
	StateRunning
	// StateDraining means a termination signal arrived and pending files
	// are being pushed one last time.
	StateDraining
	// StateStopped means Run returned.
	StateStopped
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Config holds configuration for the daemon.
type Config struct {
	// Extension is the required file name suffix, e.g. ".ps2".
	Extension string

	// ShutdownGrace is how long to wait after the final drain attempt so
	// log output is flushed before the process exits.
	ShutdownGrace time.Duration

	// Logger for daemon activity
	Logger *slog.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Extension:     ".ps2",
		ShutdownGrace: time.Second,
		Logger:        slog.Default(),
	}
}

// Daemon wires an event source to the coordinator and owns shutdown.
type Daemon struct {
	config      Config
	source      EventSource
	coordinator *Coordinator
	logger      *slog.Logger

	services []func(ctx context.Context) error

	state atomic.Int32
}

// New creates a Daemon feeding source events into coordinator.
func New(source EventSource, coordinator *Coordinator, config Config) (*Daemon, error) {
	if source == nil {
		return nil, fmt.Errorf("event source cannot be nil")
	}
	if coordinator == nil {
		return nil, fmt.Errorf("coordinator cannot be nil")
	}
	if config.Extension == "" {
		return nil, fmt.Errorf("extension cannot be empty")
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &Daemon{
		config:      config,
		source:      source,
		coordinator: coordinator,
		logger:      config.Logger.With("component", "daemon"),
	}, nil
}

// AddService registers a function run alongside the daemon. It receives a
// context cancelled at shutdown; a returned error stops the daemon.
// Must be called before Run.
func (d *Daemon) AddService(svc func(ctx context.Context) error) {
	d.services = append(d.services, svc)
}

// State returns the current lifecycle phase.
func (d *Daemon) State() State {
	return State(d.state.Load())
}

// Coordinator returns the daemon's coordinator.
func (d *Daemon) Coordinator() *Coordinator {
	return d.coordinator
}

// Run handles file events until ctx is cancelled, then drains.
//
// Shutdown order: the event source is stopped so no further events are
// handled, the coordinator loop finishes any in-flight attempt, and Drain
// pushes whatever is still pending. A failed final attempt is reported as
// ErrDrainFailed.
func (d *Daemon) Run(ctx context.Context) error {
	if !d.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return fmt.Errorf("daemon already started")
	}
	defer d.state.Store(int32(StateStopped))

	g, gctx := errgroup.WithContext(ctx)

	if err := d.source.Start(gctx); err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	select {
	case <-d.source.Ready():
		d.logger.Info("starting save auto-push service", "extension", d.config.Extension)
	case <-gctx.Done():
	}

	g.Go(func() error {
		<-gctx.Done()
		d.logger.Info("shutting down")
		return d.source.Stop()
	})
	g.Go(func() error {
		return d.coordinator.Run(gctx)
	})
	g.Go(func() error {
		d.consume(gctx)
		return nil
	})
	for _, svc := range d.services {
		g.Go(func() error {
			return svc(gctx)
		})
	}

	runErr := g.Wait()
	if runErr != nil {
		d.logger.Error("daemon stopped with error", "error", runErr)
	}

	d.state.Store(int32(StateDraining))
	if err := d.Drain(); err != nil {
		if runErr != nil {
			return errors.Join(runErr, err)
		}
		return err
	}

	return runErr
}

// consume handles source events until ctx is cancelled or the source
// closes its channels.
func (d *Daemon) consume(ctx context.Context) {
	events := d.source.Events()
	errs := d.source.Errors()

	for events != nil {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			d.HandleFileEvent(ev)

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			d.logger.Warn("watcher error", "error", err)
		}
	}
}

// HandleFileEvent queues a settled event whose base name carries the
// configured extension and triggers an attempt without waiting for it.
// It reports whether the file was queued.
func (d *Daemon) HandleFileEvent(ev FileEvent) bool {
	name := filepath.Base(ev.Path)
	if !strings.HasSuffix(name, d.config.Extension) {
		d.logger.Debug("skipping file without extension", "file", name, "extension", d.config.Extension)
		return false
	}

	d.logger.Info("queuing and forcing re-push", "file", name, "op", ev.Op)
	d.coordinator.Queue().Enqueue(name)
	d.coordinator.Trigger()
	return true
}
