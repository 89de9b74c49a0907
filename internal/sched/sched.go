// Package sched provides cancellable one-shot task scheduling with an
// injectable clock. The runner funnels every timer tick and retry through
// this port so teardown and terminal transitions can deterministically stop
// stale callbacks, and so tests can drive time by hand.
package sched

import (
	"sync"
	"time"
)

// Handle cancels a scheduled task. Cancel is idempotent; after it returns,
// a task that has not started will never run.
type Handle interface {
	Cancel()
}

// Scheduler schedules one-shot tasks and supplies the current time.
type Scheduler interface {
	// Schedule runs fn once after delay unless the handle is canceled first.
	Schedule(delay time.Duration, fn func()) Handle
	// Now returns the scheduler's current wall-clock time.
	Now() time.Time
}

// New returns the real scheduler backed by time.AfterFunc.
func New() Scheduler { return realScheduler{} }

type realScheduler struct{}

func (realScheduler) Schedule(delay time.Duration, fn func()) Handle {
	return &realHandle{timer: time.AfterFunc(delay, fn)}
}

func (realScheduler) Now() time.Time { return time.Now() }

type realHandle struct {
	once  sync.Once
	timer *time.Timer
}

func (h *realHandle) Cancel() {
	h.once.Do(func() { h.timer.Stop() })
}
