package daemon

import (
	"context"
	"os"
	"sync"
	"time"
)

// fileState is what the settler compares between polls.
type fileState struct {
	size    int64
	modTime time.Time
}

func (f fileState) same(o fileState) bool {
	return f.size == o.size && f.modTime.Equal(o.modTime)
}

func statFile(path string) (fileState, bool) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return fileState{}, false
	}
	return fileState{size: info.Size(), modTime: info.ModTime()}, true
}

// pendingWrite tracks a path until its writes stop.
type pendingWrite struct {
	op          EventOp
	state       fileState
	stableSince time.Time
}

// settler holds touched paths back until their size and modification time
// have not changed for threshold, so a half-written memory card is never
// committed.
type settler struct {
	threshold time.Duration
	interval  time.Duration
	emit      func(FileEvent)

	mu      sync.Mutex
	pending map[string]*pendingWrite
	now     func() time.Time
}

func newSettler(threshold, interval time.Duration, emit func(FileEvent)) *settler {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	return &settler{
		threshold: threshold,
		interval:  interval,
		emit:      emit,
		pending:   make(map[string]*pendingWrite),
		now:       time.Now,
	}
}

// touch records activity on path. A create followed by writes is still
// reported as a create.
func (s *settler) touch(ev FileEvent) {
	if s.threshold <= 0 {
		s.emit(ev)
		return
	}

	st, ok := statFile(ev.Path)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if p, exists := s.pending[ev.Path]; exists {
		p.state = st
		p.stableSince = s.now()
		return
	}
	s.pending[ev.Path] = &pendingWrite{op: ev.Op, state: st, stableSince: s.now()}
}

// run polls pending paths until ctx is cancelled.
func (s *settler) run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, ev := range s.poll() {
				s.emit(ev)
			}
		}
	}
}

// poll re-stats every pending path and returns the ones that settled.
// Paths that vanished are dropped.
func (s *settler) poll() []FileEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var ready []FileEvent

	for path, p := range s.pending {
		st, ok := statFile(path)
		if !ok {
			delete(s.pending, path)
			continue
		}

		if !st.same(p.state) {
			p.state = st
			p.stableSince = now
			continue
		}

		if now.Sub(p.stableSince) >= s.threshold {
			ready = append(ready, FileEvent{Path: path, Op: p.op})
			delete(s.pending, path)
		}
	}

	return ready
}

// pendingCount returns how many paths are still settling.
func (s *settler) pendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
