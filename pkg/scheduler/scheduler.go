package scheduler

import (
	"sync"
	"time"
)

// Handle cancels a scheduled callback.
type Handle interface {
	// Stop prevents the callback from running. It returns false if the
	// callback already ran or was already stopped.
	Stop() bool
}

// Scheduler arms one-shot delayed callbacks.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) Handle
}

// Real schedules callbacks on Go runtime timers. Callbacks run on their own
// goroutine.
type Real struct{}

// AfterFunc calls fn in its own goroutine after d.
func (Real) AfterFunc(d time.Duration, fn func()) Handle {
	return time.AfterFunc(d, fn)
}

// Compile-time interface satisfaction checks.
var (
	_ Scheduler = Real{}
	_ Handle    = (*time.Timer)(nil)
)

// Group tracks the callbacks it armed so they can be stopped as a unit.
type Group struct {
	mu      sync.Mutex
	sched   Scheduler
	nextID  uint64
	pending map[uint64]Handle
}

// NewGroup creates a group on top of s. A nil s means Real.
func NewGroup(s Scheduler) *Group {
	if s == nil {
		s = Real{}
	}
	return &Group{
		sched:   s,
		pending: make(map[uint64]Handle),
	}
}

// AfterFunc arms fn after d and tracks it in the group.
func (g *Group) AfterFunc(d time.Duration, fn func()) Handle {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.nextID++
	id := g.nextID

	// Holding the lock while arming keeps an immediately-firing timer from
	// running before it is registered.
	h := g.sched.AfterFunc(d, func() {
		if !g.claim(id) {
			return
		}
		fn()
	})
	g.pending[id] = h

	return &groupHandle{group: g, id: id}
}

// claim removes id from the pending set and reports whether it was still there.
func (g *Group) claim(id uint64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.pending[id]; !ok {
		return false
	}
	delete(g.pending, id)
	return true
}

// StopAll stops every pending callback and returns how many were stopped.
func (g *Group) StopAll() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	n := len(g.pending)
	for id, h := range g.pending {
		h.Stop()
		delete(g.pending, id)
	}
	return n
}

// Len returns the number of callbacks armed but not yet run or stopped.
func (g *Group) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.pending)
}

type groupHandle struct {
	group *Group
	id    uint64
}

func (h *groupHandle) Stop() bool {
	h.group.mu.Lock()
	defer h.group.mu.Unlock()

	inner, ok := h.group.pending[h.id]
	if !ok {
		return false
	}
	delete(h.group.pending, h.id)
	inner.Stop()
	return true
}

// Compile-time interface satisfaction check.
var _ Scheduler = (*Group)(nil)
