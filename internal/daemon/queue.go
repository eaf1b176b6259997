package daemon

import (
	"sort"
	"sync"
)

// ChangeQueue is the set of filenames waiting for the next sync attempt.
// Duplicate notifications for the same name collapse into one entry.
type ChangeQueue struct {
	mu      sync.Mutex
	pending map[string]struct{}
}

// NewChangeQueue creates an empty queue.
func NewChangeQueue() *ChangeQueue {
	return &ChangeQueue{pending: make(map[string]struct{})}
}

// Enqueue adds name to the pending set. Re-adding a pending name is a no-op.
func (q *ChangeQueue) Enqueue(name string) {
	if name == "" {
		return
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.pending[name] = struct{}{}
}

// DrainAll removes and returns every pending name, sorted, leaving the set
// empty. Names enqueued after the swap land in a fresh set and belong to
// the next drain.
func (q *ChangeQueue) DrainAll() []string {
	q.mu.Lock()
	drained := q.pending
	q.pending = make(map[string]struct{})
	q.mu.Unlock()

	if len(drained) == 0 {
		return nil
	}

	names := make([]string, 0, len(drained))
	for name := range drained {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// Len returns the number of pending names.
func (q *ChangeQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Snapshot returns the pending names, sorted, without removing them.
func (q *ChangeQueue) Snapshot() []string {
	q.mu.Lock()
	names := make([]string, 0, len(q.pending))
	for name := range q.pending {
		names = append(names, name)
	}
	q.mu.Unlock()

	sort.Strings(names)
	return names
}
