// Package timerset implements the reactor's timer wheel: a priority queue of
// absolute-deadline callbacks, one-shot or periodic, backed by container/heap
// for O(log n) insertion and removal.
package timerset

import (
	"container/heap"
	"time"
)

// Timer is one entry: a stable id, the interval it re-arms to if persistent,
// its absolute deadline, and the callback to fire.
type Timer struct {
	ID         uint32
	Interval   time.Duration
	Deadline   time.Time
	Persistent bool
	Callback   func()

	index int // heap index, maintained by container/heap
}

// timerHeap orders by deadline ascending, ties broken by id.
type timerHeap []*Timer

func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool {
	if h[i].Deadline.Equal(h[j].Deadline) {
		return h[i].ID < h[j].ID
	}
	return h[i].Deadline.Before(h[j].Deadline)
}
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *timerHeap) Push(x any) {
	t := x.(*Timer)
	t.index = len(*h)
	*h = append(*h, t)
}
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}

// Set is a timer set. It is not safe for concurrent use — one reactor owns
// one Set and drives it from its single event-loop goroutine.
type Set struct {
	h      timerHeap
	byID   map[uint32]*Timer
	nextID uint32
}

// New returns an empty timer set.
func New() *Set {
	return &Set{byID: make(map[uint32]*Timer)}
}

// allocID picks the entry's id. The original C++ allocator could produce
// duplicate ids under certain insert/remove sequences (see the project's
// design notes); this is a strictly monotonic counter that only resets to
// zero when the set is empty at insertion time, which can never collide
// with a still-live id.
func (s *Set) allocID() uint32 {
	if len(s.byID) == 0 {
		s.nextID = 0
	}
	id := s.nextID
	s.nextID++
	return id
}

// SetTimer inserts a new entry with deadline = now + interval and returns
// its id.
func (s *Set) SetTimer(interval time.Duration, persistent bool, callback func()) uint32 {
	return s.setTimerAt(time.Now(), interval, persistent, callback)
}

func (s *Set) setTimerAt(now time.Time, interval time.Duration, persistent bool, callback func()) uint32 {
	t := &Timer{
		ID:         s.allocID(),
		Interval:   interval,
		Deadline:   now.Add(interval),
		Persistent: persistent,
		Callback:   callback,
	}
	heap.Push(&s.h, t)
	s.byID[t.ID] = t
	return t.ID
}

// Remove deletes the timer with the given id, if present. O(log n).
func (s *Set) Remove(id uint32) {
	t, ok := s.byID[id]
	if !ok {
		return
	}
	heap.Remove(&s.h, t.index)
	delete(s.byID, id)
}

// Len reports the number of live timers.
func (s *Set) Len() int { return len(s.h) }

// ShortestTimeoutMs returns max(0, earliest_deadline - now) in milliseconds,
// or -1 when the set is empty (signal the reactor to block indefinitely).
func (s *Set) ShortestTimeoutMs() int {
	if len(s.h) == 0 {
		return -1
	}
	d := time.Until(s.h[0].Deadline)
	if d <= 0 {
		return 0
	}
	ms := d.Milliseconds()
	if ms == 0 && d > 0 {
		ms = 1
	}
	return int(ms)
}

// Process pops and fires every entry whose deadline is <= now, in deadline
// order. Persistent entries are re-armed with deadline += interval based on
// now (not the original deadline), which allows drift under scheduling
// jitter by design rather than pile up a backlog of overdue fires.
func (s *Set) Process() int {
	now := time.Now()
	fired := 0
	// Re-armed entries are held out of the heap until every originally-due
	// timer has fired, so a zero-interval persistent timer can't refire
	// within the same Process call.
	var rearm []*Timer
	for len(s.h) > 0 && !s.h[0].Deadline.After(now) {
		t := heap.Pop(&s.h).(*Timer)
		delete(s.byID, t.ID)
		cb := t.Callback
		if t.Persistent {
			t.Deadline = now.Add(t.Interval)
			rearm = append(rearm, t)
		}
		if cb != nil {
			cb()
		}
		fired++
	}
	for _, t := range rearm {
		heap.Push(&s.h, t)
		s.byID[t.ID] = t
	}
	return fired
}
