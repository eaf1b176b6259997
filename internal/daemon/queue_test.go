package daemon

import (
	"fmt"
	"reflect"
	"sync"
	"testing"
)

func TestChangeQueue_Dedup(t *testing.T) {
	q := NewChangeQueue()

	for _, name := range []string{"b.ps2", "a.ps2", "b.ps2", "a.ps2", "b.ps2", ""} {
		q.Enqueue(name)
	}

	if q.Len() != 2 {
		t.Errorf("Len() = %d, want 2", q.Len())
	}

	got := q.DrainAll()
	want := []string{"a.ps2", "b.ps2"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("DrainAll() = %v, want %v", got, want)
	}

	if q.Len() != 0 {
		t.Errorf("Len() after drain = %d, want 0", q.Len())
	}
	if got := q.DrainAll(); got != nil {
		t.Errorf("second DrainAll() = %v, want nil", got)
	}
}

func TestChangeQueue_Snapshot(t *testing.T) {
	q := NewChangeQueue()
	q.Enqueue("save2.ps2")
	q.Enqueue("save1.ps2")

	if got := q.Snapshot(); !reflect.DeepEqual(got, []string{"save1.ps2", "save2.ps2"}) {
		t.Errorf("Snapshot() = %v", got)
	}
	if q.Len() != 2 {
		t.Error("Snapshot() must not remove entries")
	}
}

// TestChangeQueue_ConcurrentDrain verifies that no name is lost or handed to
// two drains while producers keep enqueuing.
func TestChangeQueue_ConcurrentDrain(t *testing.T) {
	q := NewChangeQueue()

	const producers = 8
	const perProducer = 500

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Enqueue(fmt.Sprintf("p%d-%d.ps2", p, i))
			}
		}(p)
	}

	seen := make(map[string]int)
	var seenMu sync.Mutex
	done := make(chan struct{})
	var drainers sync.WaitGroup
	for d := 0; d < 3; d++ {
		drainers.Add(1)
		go func() {
			defer drainers.Done()
			for {
				batch := q.DrainAll()
				seenMu.Lock()
				for _, name := range batch {
					seen[name]++
				}
				seenMu.Unlock()

				select {
				case <-done:
					return
				default:
				}
			}
		}()
	}

	wg.Wait()
	close(done)
	drainers.Wait()

	for _, name := range q.DrainAll() {
		seen[name]++
	}

	if len(seen) != producers*perProducer {
		t.Errorf("saw %d distinct names, want %d", len(seen), producers*perProducer)
	}
	for name, n := range seen {
		if n != 1 {
			t.Errorf("%s drained %d times", name, n)
		}
	}
}
