package runner

import (
	"context"
	"testing"
	"time"

	"github.com/autonex-ai/autonex-client/internal/session"
)

func TestTimerDegradesAndRecovers(t *testing.T) {
	server := newFakeServer(2, 60)
	server.infoFailures = 1
	h := newHarness(t, server, session.Snapshot{SessionID: "1", TotalQuestions: 2})

	h.runner.Start(context.Background())
	h.clock.Advance(0)

	// The timer is blind but the question interface is untouched.
	if !h.runner.TimerDegraded() {
		t.Fatal("timer not degraded after info failure")
	}
	if got := h.runner.Status(); got != session.StatusActive {
		t.Fatalf("status = %s, want active despite timer failure", got)
	}
	if q := h.runner.Question(); q == nil {
		t.Fatal("question not loaded while timer degraded")
	}

	// One retry at a fixed delay restores the countdown.
	h.clock.Advance(timerRetryDelay)
	if h.runner.TimerDegraded() {
		t.Fatal("timer still degraded after retry")
	}
	if got, want := h.runner.Remaining(), 60*time.Minute-timerRetryDelay; got != want {
		t.Fatalf("remaining = %v, want %v", got, want)
	}

	h.rec.mu.Lock()
	degraded := append([]bool(nil), h.rec.degraded...)
	h.rec.mu.Unlock()
	if len(degraded) != 2 || !degraded[0] || degraded[1] {
		t.Fatalf("degraded transitions = %v, want [true false]", degraded)
	}
}

func TestCompletedSessionInfoEndsAttempt(t *testing.T) {
	server := newFakeServer(2, 60)
	server.completed = true
	h := newHarness(t, server, session.Snapshot{SessionID: "1", TotalQuestions: 2})

	h.runner.Start(context.Background())
	h.clock.Advance(time.Minute)

	if got := h.runner.Status(); got != session.StatusCompleted {
		t.Fatalf("status = %s, want completed", got)
	}
	// The countdown never started and the question fetch was suppressed.
	h.rec.mu.Lock()
	ticks := len(h.rec.countdowns)
	h.rec.mu.Unlock()
	if ticks != 0 {
		t.Fatalf("countdown ticked %d times for a finished session", ticks)
	}
	if server.fetchCalls != 0 {
		t.Fatalf("fetch calls = %d, want 0", server.fetchCalls)
	}
}

func TestSessionGoneDuringInfoExpires(t *testing.T) {
	server := newFakeServer(2, 60)
	server.gone = true
	h := newHarness(t, server, session.Snapshot{SessionID: "1", TotalQuestions: 2})

	h.runner.Start(context.Background())
	h.clock.Advance(0)

	if got := h.runner.Status(); got != session.StatusSessionExpired {
		t.Fatalf("status = %s, want session_expired", got)
	}
	h.rec.mu.Lock()
	ticks := len(h.rec.countdowns)
	h.rec.mu.Unlock()
	if ticks != 0 {
		t.Fatalf("countdown ticked %d times for an expired session", ticks)
	}
}

func TestParseServerTime(t *testing.T) {
	want := time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)

	cases := []struct {
		name string
		raw  string
	}{
		{"rfc3339 utc", "2025-06-01T09:30:00Z"},
		{"rfc3339 offset", "2025-06-01T11:30:00+02:00"},
		{"naive", "2025-06-01T09:30:00"},
		{"naive with micros", "2025-06-01T09:30:00.000000"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseServerTime(tc.raw)
			if err != nil {
				t.Fatalf("parseServerTime(%q) error: %v", tc.raw, err)
			}
			if !got.Equal(want) {
				t.Fatalf("parseServerTime(%q) = %v, want %v", tc.raw, got, want)
			}
		})
	}

	if _, err := parseServerTime("yesterday at nine"); err == nil {
		t.Fatal("garbage timestamp accepted")
	}
}
