package sched

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Manual is a hand-driven Scheduler for tests. Time only moves when Advance
// is called; due tasks run synchronously on the advancing goroutine, in due
// order, so tests observe every intermediate state deterministically.
type Manual struct {
	mu    sync.Mutex
	now   time.Time
	seq   int
	tasks []*manualTask
}

type manualTask struct {
	due      time.Time
	seq      int
	fn       func()
	canceled atomic.Bool
}

func (t *manualTask) Cancel() { t.canceled.Store(true) }

// NewManual creates a manual scheduler starting at the given time.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) Schedule(delay time.Duration, fn func()) Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	task := &manualTask{due: m.now.Add(delay), seq: m.seq, fn: fn}
	m.tasks = append(m.tasks, task)
	return task
}

// Advance moves the clock forward by d, running every task that falls due.
// Tasks scheduled by running tasks are honored within the same call when
// they fall inside the window, mirroring how chained 1-second ticks catch up
// after a long suspension.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()

	for {
		task := m.nextDue(target)
		if task == nil {
			break
		}
		task.fn()
	}

	m.mu.Lock()
	m.now = target
	m.mu.Unlock()
}

// nextDue pops the earliest pending task due at or before target, moving the
// clock to its due time. Returns nil when nothing further is due.
func (m *Manual) nextDue(target time.Time) *manualTask {
	m.mu.Lock()
	defer m.mu.Unlock()

	pending := m.tasks[:0]
	for _, t := range m.tasks {
		if !t.canceled.Load() {
			pending = append(pending, t)
		}
	}
	m.tasks = pending

	sort.SliceStable(m.tasks, func(i, j int) bool {
		if m.tasks[i].due.Equal(m.tasks[j].due) {
			return m.tasks[i].seq < m.tasks[j].seq
		}
		return m.tasks[i].due.Before(m.tasks[j].due)
	})

	for i, t := range m.tasks {
		if !t.due.After(target) {
			m.tasks = append(m.tasks[:i], m.tasks[i+1:]...)
			if t.due.After(m.now) {
				m.now = t.due
			}
			return t
		}
	}
	return nil
}

// Pending returns the number of scheduled, uncanceled tasks.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.tasks {
		if !t.canceled.Load() {
			n++
		}
	}
	return n
}
