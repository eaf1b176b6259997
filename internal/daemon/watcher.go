package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// EventOp represents the type of file system operation.
type EventOp int

const (
	// OpAdd indicates a new file appeared.
	OpAdd EventOp = iota
	// OpChange indicates an existing file was modified.
	OpChange
)

// String returns a human-readable representation of the operation.
func (op EventOp) String() string {
	switch op {
	case OpAdd:
		return "add"
	case OpChange:
		return "change"
	default:
		return "unknown"
	}
}

// FileEvent is a settled add or change of a file under the watch root.
type FileEvent struct {
	// Path is the absolute path to the file that changed.
	Path string
	// Op is the operation that occurred.
	Op EventOp
}

// metadataDir is never watched or reported.
const metadataDir = ".git"

// WatcherConfig configures a Watcher.
type WatcherConfig struct {
	// Root is the directory to watch. Only its direct entries are reported.
	Root string

	// UsePolling replaces fsnotify with periodic directory listings, for
	// file systems that do not deliver notifications (network shares).
	UsePolling bool

	// PollInterval is how often the root is listed in polling mode.
	PollInterval time.Duration

	// IgnoreInitial suppresses add events for files present at start.
	IgnoreInitial bool

	// Ignore holds extra base-name globs to skip. The metadata directory
	// and hidden names are always skipped.
	Ignore []string

	// StabilityThreshold is how long size and mtime must stay unchanged
	// before an event is emitted. Zero emits immediately.
	StabilityThreshold time.Duration

	// SettlePoll is how often settling files are re-checked.
	SettlePoll time.Duration

	Logger *slog.Logger
}

// Watcher reports settled add and change events for files in one directory.
// Delete, rename and chmod events are not reported.
type Watcher struct {
	config  WatcherConfig
	logger  *slog.Logger
	settler *settler

	fsw *fsnotify.Watcher

	events chan FileEvent
	errors chan error
	ready  chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	running bool
	stopped bool
}

// NewWatcher creates a Watcher. It must be started with Start before it
// emits events.
func NewWatcher(config WatcherConfig) (*Watcher, error) {
	if config.Root == "" {
		return nil, fmt.Errorf("watch root cannot be empty")
	}
	for _, pattern := range config.Ignore {
		if _, err := filepath.Match(pattern, ""); err != nil {
			return nil, fmt.Errorf("invalid ignore pattern %q: %w", pattern, err)
		}
	}
	if config.PollInterval <= 0 {
		config.PollInterval = 2 * time.Second
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	w := &Watcher{
		config: config,
		logger: config.Logger.With("component", "watcher"),
		events: make(chan FileEvent, 100),
		errors: make(chan error, 10),
		ready:  make(chan struct{}),
	}
	w.settler = newSettler(config.StabilityThreshold, config.SettlePoll, w.emit)

	return w, nil
}

// Start begins watching. It returns once the root is registered and the
// initial scan is done; Ready is closed at that point.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("watcher already running")
	}
	if w.stopped {
		return fmt.Errorf("watcher already stopped")
	}

	info, err := os.Stat(w.config.Root)
	if err != nil {
		return fmt.Errorf("failed to stat watch root %s: %w", w.config.Root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("watch root %s is not a directory", w.config.Root)
	}

	w.ctx, w.cancel = context.WithCancel(ctx)

	initial, err := w.scan()
	if err != nil {
		w.cancel()
		return err
	}

	if !w.config.UsePolling {
		fsw, err := fsnotify.NewWatcher()
		if err != nil {
			w.cancel()
			return fmt.Errorf("failed to create fsnotify watcher: %w", err)
		}
		if err := fsw.Add(w.config.Root); err != nil {
			_ = fsw.Close()
			w.cancel()
			return fmt.Errorf("failed to watch directory %s: %w", w.config.Root, err)
		}
		w.fsw = fsw
	}

	w.running = true
	w.wg.Add(2)
	go func() {
		defer w.wg.Done()
		if !w.config.IgnoreInitial {
			for path := range initial {
				w.settler.touch(FileEvent{Path: path, Op: OpAdd})
			}
		}
		w.settler.run(w.ctx)
	}()
	if w.fsw != nil {
		go w.processEvents()
	} else {
		go w.pollLoop(initial)
	}

	mode := "fsnotify"
	if w.config.UsePolling {
		mode = "polling"
	}
	w.logger.Info("monitoring", "root", w.config.Root, "mode", mode, "initial_files", len(initial))
	close(w.ready)

	return nil
}

// Stop stops watching and closes the Events and Errors channels.
// It blocks until all watcher goroutines have exited.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.stopped = true
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.stopped = true
	w.mu.Unlock()

	w.cancel()

	var closeErr error
	if w.fsw != nil {
		if err := w.fsw.Close(); err != nil {
			closeErr = fmt.Errorf("failed to close watcher: %w", err)
		}
	}

	w.wg.Wait()

	close(w.events)
	close(w.errors)

	return closeErr
}

// Events returns the channel of settled file events.
// It is closed when the watcher is stopped.
func (w *Watcher) Events() <-chan FileEvent {
	return w.events
}

// Errors returns the channel of watch errors.
// It is closed when the watcher is stopped.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// Ready is closed once the initial scan completes.
func (w *Watcher) Ready() <-chan struct{} {
	return w.ready
}

// isRunning reports whether Start succeeded and Stop has not run.
func (w *Watcher) isRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Ignored reports whether a base name is excluded from watching.
func (w *Watcher) Ignored(name string) bool {
	if name == metadataDir || strings.HasPrefix(name, ".") {
		return true
	}
	for _, pattern := range w.config.Ignore {
		if ok, _ := filepath.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

// emit delivers a settled event unless the watcher is shutting down.
func (w *Watcher) emit(ev FileEvent) {
	select {
	case w.events <- ev:
	case <-w.ctx.Done():
	}
}

func (w *Watcher) reportError(err error) {
	select {
	case w.errors <- err:
	case <-w.ctx.Done():
	default:
		w.logger.Warn("watch error dropped", "error", err)
	}
}

// processEvents converts fsnotify events until the watcher stops.
func (w *Watcher) processEvents() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev, ok := w.convertEvent(event); ok {
				w.settler.touch(ev)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.reportError(err)
		}
	}
}

// convertEvent maps an fsnotify event to a FileEvent.
// Returns (FileEvent{}, false) for ignored names and operations.
func (w *Watcher) convertEvent(event fsnotify.Event) (FileEvent, bool) {
	if w.Ignored(filepath.Base(event.Name)) {
		return FileEvent{}, false
	}

	var op EventOp
	switch {
	case event.Has(fsnotify.Create):
		op = OpAdd
	case event.Has(fsnotify.Write):
		op = OpChange
	default:
		// Ignore remove, rename and chmod
		return FileEvent{}, false
	}

	return FileEvent{Path: event.Name, Op: op}, true
}

// scan lists regular, non-ignored files directly under the root.
func (w *Watcher) scan() (map[string]fileState, error) {
	entries, err := os.ReadDir(w.config.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", w.config.Root, err)
	}

	files := make(map[string]fileState, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || w.Ignored(entry.Name()) {
			continue
		}
		path := filepath.Join(w.config.Root, entry.Name())
		if st, ok := statFile(path); ok {
			files[path] = st
		}
	}

	return files, nil
}

// pollLoop diffs directory listings every PollInterval.
func (w *Watcher) pollLoop(previous map[string]fileState) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return

		case <-ticker.C:
			current, err := w.scan()
			if err != nil {
				w.reportError(err)
				continue
			}
			for _, ev := range diffScans(previous, current) {
				w.settler.touch(ev)
			}
			previous = current
		}
	}
}

// diffScans returns add events for new paths and change events for paths
// whose size or mtime moved. Removed paths produce nothing.
func diffScans(previous, current map[string]fileState) []FileEvent {
	var events []FileEvent
	for path, st := range current {
		old, existed := previous[path]
		switch {
		case !existed:
			events = append(events, FileEvent{Path: path, Op: OpAdd})
		case !old.same(st):
			events = append(events, FileEvent{Path: path, Op: OpChange})
		}
	}
	return events
}
