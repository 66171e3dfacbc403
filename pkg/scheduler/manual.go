package scheduler

import (
	"sort"
	"sync"
	"time"
)

// Manual is a Scheduler driven by a virtual clock. Nothing fires until
// Advance moves the clock past a callback's deadline; callbacks then run
// synchronously on the goroutine calling Advance, in deadline order.
type Manual struct {
	mu     sync.Mutex
	now    time.Duration
	seq    uint64
	timers []*manualTimer
}

type manualTimer struct {
	m    *Manual
	at   time.Duration
	seq  uint64
	fn   func()
	done bool
}

// NewManual creates a manual scheduler with its clock at zero.
func NewManual() *Manual {
	return &Manual{}
}

// AfterFunc arms fn to run once the clock has advanced by d.
func (m *Manual) AfterFunc(d time.Duration, fn func()) Handle {
	if d < 0 {
		d = 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	t := &manualTimer{m: m, at: m.now + d, seq: m.seq, fn: fn}
	m.timers = append(m.timers, t)
	return t
}

// Now returns the virtual time elapsed since creation.
func (m *Manual) Now() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the clock forward by d and runs every callback that comes
// due, including callbacks armed by other callbacks within the window.
// It returns the number of callbacks run.
func (m *Manual) Advance(d time.Duration) int {
	m.mu.Lock()
	target := m.now + d
	m.mu.Unlock()

	fired := 0
	for {
		m.mu.Lock()
		t := m.popDue(target)
		if t == nil {
			m.now = target
			m.mu.Unlock()
			return fired
		}
		m.now = t.at
		m.mu.Unlock()

		t.fn()
		fired++
	}
}

// AdvanceToNext moves the clock to the earliest pending deadline and runs
// what is due there. It returns false if nothing is pending.
func (m *Manual) AdvanceToNext() bool {
	next, ok := m.Next()
	if !ok {
		return false
	}
	m.Advance(next)
	return true
}

// Next returns the time until the earliest pending callback.
func (m *Manual) Next() (time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.timers) == 0 {
		return 0, false
	}
	m.sortLocked()
	return m.timers[0].at - m.now, true
}

// Pending returns the remaining delay of every armed callback, soonest first.
func (m *Manual) Pending() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sortLocked()
	out := make([]time.Duration, len(m.timers))
	for i, t := range m.timers {
		out[i] = t.at - m.now
	}
	return out
}

// popDue removes and returns the earliest timer due at or before target.
func (m *Manual) popDue(target time.Duration) *manualTimer {
	if len(m.timers) == 0 {
		return nil
	}
	m.sortLocked()
	t := m.timers[0]
	if t.at > target {
		return nil
	}
	m.timers = m.timers[1:]
	t.done = true
	return t
}

func (m *Manual) sortLocked() {
	sort.Slice(m.timers, func(i, j int) bool {
		if m.timers[i].at != m.timers[j].at {
			return m.timers[i].at < m.timers[j].at
		}
		return m.timers[i].seq < m.timers[j].seq
	})
}

func (t *manualTimer) Stop() bool {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()

	if t.done {
		return false
	}
	t.done = true
	for i, other := range t.m.timers {
		if other == t {
			t.m.timers = append(t.m.timers[:i], t.m.timers[i+1:]...)
			break
		}
	}
	return true
}

// Compile-time interface satisfaction check.
var _ Scheduler = (*Manual)(nil)
