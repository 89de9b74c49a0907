package sched

import (
	"testing"
	"time"
)

func TestManualRunsTasksInDueOrder(t *testing.T) {
	m := NewManual(time.Unix(0, 0))

	var order []string
	m.Schedule(2*time.Second, func() { order = append(order, "b") })
	m.Schedule(time.Second, func() { order = append(order, "a") })
	m.Schedule(3*time.Second, func() { order = append(order, "c") })

	m.Advance(2 * time.Second)
	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Fatalf("order after 2s = %v", order)
	}
	if m.Pending() != 1 {
		t.Fatalf("pending = %d, want 1", m.Pending())
	}

	m.Advance(time.Second)
	if len(order) != 3 || order[2] != "c" {
		t.Fatalf("order after 3s = %v", order)
	}
}

func TestManualCancelPreventsRun(t *testing.T) {
	m := NewManual(time.Unix(0, 0))

	ran := false
	h := m.Schedule(time.Second, func() { ran = true })
	h.Cancel()
	h.Cancel() // idempotent

	m.Advance(5 * time.Second)
	if ran {
		t.Fatal("canceled task ran")
	}
}

func TestManualChainedTasksCatchUp(t *testing.T) {
	m := NewManual(time.Unix(0, 0))

	// A self-rescheduling 1s tick, the shape the countdown uses.
	ticks := 0
	var tick func()
	tick = func() {
		ticks++
		if ticks < 10 {
			m.Schedule(time.Second, tick)
		}
	}
	m.Schedule(time.Second, tick)

	// One big jump must run every intermediate tick.
	m.Advance(10 * time.Second)
	if ticks != 10 {
		t.Fatalf("ticks = %d, want 10", ticks)
	}
}

func TestManualClockMovesWithTasks(t *testing.T) {
	m := NewManual(time.Unix(100, 0))

	var seen time.Time
	m.Schedule(3*time.Second, func() { seen = m.Now() })
	m.Advance(5 * time.Second)

	if want := time.Unix(103, 0); !seen.Equal(want) {
		t.Fatalf("task saw clock %v, want %v", seen, want)
	}
	if want := time.Unix(105, 0); !m.Now().Equal(want) {
		t.Fatalf("clock = %v, want %v", m.Now(), want)
	}
}
