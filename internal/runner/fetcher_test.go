package runner

import (
	"context"
	"testing"
	"time"

	"github.com/autonex-ai/autonex-client/internal/session"
)

func TestRetryDelaySequence(t *testing.T) {
	want := []time.Duration{
		time.Second, 2 * time.Second, 4 * time.Second,
		8 * time.Second, 16 * time.Second,
	}
	for failed, expect := range want {
		if got := retryDelay(failed); got != expect {
			t.Errorf("retryDelay(%d) = %v, want %v", failed, got, expect)
		}
	}
	if got := retryDelay(10); got != retryMaxDelay {
		t.Errorf("retryDelay(10) = %v, want cap %v", got, retryMaxDelay)
	}
}

func TestFetchBackoffThenManualRetry(t *testing.T) {
	server := newFakeServer(2, 60)
	server.fetchFailures = 1000 // never recovers on its own
	h := newHarness(t, server, session.Snapshot{SessionID: "1", TotalQuestions: 2})

	h.runner.Start(context.Background())
	h.clock.Advance(0) // attempt 0, immediate

	if got := h.runner.Status(); got != session.StatusNetworkError {
		t.Fatalf("status = %s, want network_error", got)
	}
	if got := h.runner.RetryCount(); got != 1 {
		t.Fatalf("retry count after first failure = %d, want 1", got)
	}

	// Exactly [1s, 2s, 4s, 8s, 16s] between the five automatic retries.
	h.clock.Advance(time.Minute)
	h.rec.mu.Lock()
	delays := append([]time.Duration(nil), h.rec.retries...)
	h.rec.mu.Unlock()

	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second}
	if len(delays) != len(want) {
		t.Fatalf("scheduled %d retries (%v), want %d", len(delays), delays, len(want))
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Errorf("retry %d delay = %v, want %v", i+1, delays[i], want[i])
		}
	}

	if server.fetchCalls != 6 {
		t.Fatalf("fetch attempts = %d, want 6 (initial + 5 retries)", server.fetchCalls)
	}
	if got := h.runner.RetryCount(); got != maxAutoRetries+1 {
		t.Fatalf("retry count = %d, want %d consecutive failures", got, maxAutoRetries+1)
	}

	// No further automatic attempts, however long we wait.
	h.clock.Advance(10 * time.Minute)
	if server.fetchCalls != 6 {
		t.Fatalf("fetch attempts after waiting = %d, want still 6", server.fetchCalls)
	}

	// Manual retry re-enters at attempt 0 and recovers.
	server.mu.Lock()
	server.fetchFailures = 0
	server.mu.Unlock()

	h.runner.RetryNow()
	h.clock.Advance(0)

	if got := h.runner.Status(); got != session.StatusActive {
		t.Fatalf("status after manual retry = %s, want active", got)
	}
	if got := h.runner.RetryCount(); got != 0 {
		t.Fatalf("retry count after recovery = %d, want 0", got)
	}
}

func TestStaleFetchResponseIsDiscarded(t *testing.T) {
	server := newFakeServer(3, 60)
	h := newHarness(t, server, session.Snapshot{SessionID: "1", TotalQuestions: 3})

	h.runner.Start(context.Background())
	h.clock.Advance(0)
	if q := h.runner.Question(); q == nil || q.ID != 100 {
		t.Fatalf("expected question 100 loaded, got %+v", q)
	}

	// Hold the next fetch in flight, then advance the index underneath it
	// with a successful submit. The in-flight response was issued for the
	// old index and must be dropped on arrival.
	release := make(chan struct{})
	entered := make(chan struct{})
	server.mu.Lock()
	server.blockFetch = release
	server.fetchEntered = entered
	server.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.runner.RetryNow() // queues a fetch for the current (old) index
		h.clock.Advance(0)  // runs it; blocks inside the fake server
	}()

	<-entered // the old-index fetch is now in flight

	// Move the index forward underneath it.
	if err := h.runner.Submit(context.Background(), answer(StatusSuccess)); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	close(release)
	<-done // stale response arrived and the follow-up fetch ran

	if got := h.runner.Progress().CurrentIndex; got != 1 {
		t.Fatalf("index = %d, want 1", got)
	}
	if q := h.runner.Question(); q == nil || q.ID != 101 {
		t.Fatalf("current question = %+v, want id 101", q)
	}

	// The stale response never surfaced as a loaded question for index 0
	// after the advance.
	h.rec.mu.Lock()
	defer h.rec.mu.Unlock()
	for i := 1; i < len(h.rec.questions); i++ {
		if h.rec.questions[i] == 100 {
			t.Fatalf("stale question 100 re-delivered after advance: %v", h.rec.questions)
		}
	}
}

func TestNoQuestionsIsTerminal(t *testing.T) {
	server := newFakeServer(0, 60)
	h := newHarness(t, server, session.Snapshot{SessionID: "1"})

	h.runner.Start(context.Background())
	h.clock.Advance(0)

	if got := h.runner.Status(); got != session.StatusNoQuestions {
		t.Fatalf("status = %s, want no_questions", got)
	}
	h.clock.Advance(time.Minute)
	if server.fetchCalls != 1 {
		t.Fatalf("fetch attempts = %d, want 1 (terminal, no retry)", server.fetchCalls)
	}
}

func TestSessionGoneDuringFetchExpires(t *testing.T) {
	server := newFakeServer(2, 60)
	server.infoFailures = 1000 // keep the timer path out of the way
	server.gone = true
	h := newHarness(t, server, session.Snapshot{SessionID: "1", TotalQuestions: 2})

	h.runner.Start(context.Background())
	h.clock.Advance(0)

	if got := h.runner.Status(); got != session.StatusSessionExpired {
		t.Fatalf("status = %s, want session_expired", got)
	}

	if err := h.runner.Leave(context.Background()); err != nil {
		t.Fatalf("Leave failed: %v", err)
	}
	if got := h.sess.Snapshot(); got != (session.Snapshot{}) {
		t.Fatalf("mirror after Leave = %+v, want zero", got)
	}
}
