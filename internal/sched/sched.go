package sched

import (
	"sort"
	"sync"
	"time"
)

// Scheduler queues a function to run after a delay. It replaces ad-hoc
// timer callbacks so delayed continuations (scheduler passes, retry
// re-queues, wrap-up completion) are explicit, cancellable and testable
// without wall-clock waits.
type Scheduler interface {
	// AfterFunc runs fn on its own goroutine once d elapses.
	// The returned cancel stops the task if it has not fired yet.
	AfterFunc(d time.Duration, fn func()) (cancel func())
}

// Timers is the production Scheduler backed by time.AfterFunc.
type Timers struct{}

func NewTimers() Timers { return Timers{} }

func (Timers) AfterFunc(d time.Duration, fn func()) func() {
	t := time.AfterFunc(d, fn)
	return func() { t.Stop() }
}

// Manual is a deterministic Scheduler for tests: tasks fire only when the
// virtual clock is advanced past their deadline, synchronously on the
// caller's goroutine.
type Manual struct {
	mu    sync.Mutex
	now   time.Time
	seq   int
	tasks []*manualTask
}

type manualTask struct {
	at        time.Time
	seq       int
	fn        func()
	cancelled bool
}

func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

// Now returns the current virtual time.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) AfterFunc(d time.Duration, fn func()) func() {
	m.mu.Lock()
	t := &manualTask{at: m.now.Add(d), seq: m.seq, fn: fn}
	m.seq++
	m.tasks = append(m.tasks, t)
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		t.cancelled = true
		m.mu.Unlock()
	}
}

// Advance moves the virtual clock forward and runs every due task in
// deadline order. Tasks scheduled by a running task fire too if their
// deadline falls within the advanced window.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()

	for {
		t := m.popDue(target)
		if t == nil {
			break
		}
		t.fn()
	}

	m.mu.Lock()
	m.now = target
	m.mu.Unlock()
}

// Pending reports how many scheduled tasks have not fired or been cancelled.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.tasks {
		if !t.cancelled {
			n++
		}
	}
	return n
}

func (m *Manual) popDue(target time.Time) *manualTask {
	m.mu.Lock()
	defer m.mu.Unlock()

	sort.SliceStable(m.tasks, func(i, j int) bool {
		if m.tasks[i].at.Equal(m.tasks[j].at) {
			return m.tasks[i].seq < m.tasks[j].seq
		}
		return m.tasks[i].at.Before(m.tasks[j].at)
	})

	for i, t := range m.tasks {
		if t.cancelled {
			continue
		}
		if t.at.After(target) {
			break
		}
		m.tasks = append(m.tasks[:i], m.tasks[i+1:]...)
		if t.at.After(m.now) {
			m.now = t.at
		}
		return t
	}
	return nil
}
