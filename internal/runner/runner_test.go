package runner

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/autonex-ai/autonex-client/internal/api"
	"github.com/autonex-ai/autonex-client/internal/sched"
	"github.com/autonex-ai/autonex-client/internal/session"
	"github.com/autonex-ai/autonex-client/internal/store"
)

var t0 = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

// fakeServer is an in-memory double of the backend's session endpoints. It
// follows the real server's rules: the question endpoint reports completion
// once the order is exhausted, submit rejects skewed question ids, and the
// whole attempt flips to completed when the last answer lands.
type fakeServer struct {
	mu sync.Mutex

	start     time.Time
	duration  int
	questions []*api.Question

	index     int
	completed bool
	gone      bool // session deleted server-side

	infoFailures  int // transient failures to inject before succeeding
	fetchFailures int
	submitErr     error // returned once, then cleared

	infoCalls   int
	fetchCalls  int
	submitCalls int
	submitted   []api.AnswerSubmit

	// When blockFetch is set, the next fetch closes fetchEntered (if set)
	// and then waits on blockFetch before answering. Lets tests hold a
	// response in flight deterministically.
	blockFetch   chan struct{}
	fetchEntered chan struct{}
}

func newFakeServer(questions int, durationMinutes int) *fakeServer {
	s := &fakeServer{start: t0, duration: durationMinutes}
	for i := 0; i < questions; i++ {
		s.questions = append(s.questions, &api.Question{
			ID:          int64(100 + i),
			Link:        fmt.Sprintf("https://tasks.example.com/%d", i),
			Description: fmt.Sprintf("Task %d", i),
		})
	}
	return s
}

func (s *fakeServer) SessionInfo(_ context.Context, _ string) (*api.SessionInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.infoCalls++
	if s.gone {
		return nil, &api.Error{Op: "info", StatusCode: http.StatusNotFound, Detail: "Session not found"}
	}
	if s.infoFailures > 0 {
		s.infoFailures--
		return nil, &api.Error{Op: "info", Err: errors.New("connection refused")}
	}
	return &api.SessionInfo{
		SessionID:       1,
		StartTime:       s.start.Format(time.RFC3339),
		DurationMinutes: s.duration,
		IsCompleted:     s.completed,
	}, nil
}

func (s *fakeServer) CurrentQuestion(_ context.Context, _ string) (*api.Question, error) {
	s.mu.Lock()
	block := s.blockFetch
	entered := s.fetchEntered
	s.blockFetch = nil
	s.fetchEntered = nil
	s.mu.Unlock()
	if block != nil {
		if entered != nil {
			close(entered)
		}
		<-block
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetchCalls++
	if s.gone {
		return nil, &api.Error{Op: "question", StatusCode: http.StatusNotFound, Detail: "Session not found"}
	}
	if s.fetchFailures > 0 {
		s.fetchFailures--
		return nil, &api.Error{Op: "question", Err: errors.New("connection refused")}
	}
	if s.completed {
		return nil, &api.Error{Op: "question", StatusCode: http.StatusBadRequest, Detail: "Test is already completed"}
	}
	if len(s.questions) == 0 {
		return nil, &api.Error{Op: "question", StatusCode: http.StatusBadRequest, Detail: "Question order is empty"}
	}
	if s.index >= len(s.questions) {
		s.completed = true
		return nil, &api.Error{Op: "question", StatusCode: http.StatusOK, Detail: "Test Completed"}
	}
	return s.questions[s.index], nil
}

func (s *fakeServer) SubmitAnswer(_ context.Context, _ string, sub api.AnswerSubmit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submitCalls++
	if err := s.submitErr; err != nil {
		s.submitErr = nil
		return err
	}
	if s.gone || s.completed {
		return &api.Error{Op: "submit", StatusCode: http.StatusBadRequest, Detail: "Invalid session"}
	}
	if sub.QuestionID != s.questions[s.index].ID {
		return &api.Error{Op: "submit", StatusCode: http.StatusBadRequest, Detail: "Sync Error. You are answering the wrong question."}
	}
	s.submitted = append(s.submitted, sub)
	s.index++
	if s.index >= len(s.questions) {
		s.completed = true
	}
	return nil
}

// recorder captures listener callbacks for assertions.
type recorder struct {
	mu         sync.Mutex
	statuses   []session.Status
	questions  []int64
	countdowns []time.Duration
	retries    []time.Duration
	notices    []string
	degraded   []bool
}

func (r *recorder) StatusChanged(s session.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, s)
}

func (r *recorder) QuestionLoaded(q *api.Question) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.questions = append(r.questions, q.ID)
}

func (r *recorder) Countdown(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.countdowns = append(r.countdowns, d)
}

func (r *recorder) TimerDegraded(on bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.degraded = append(r.degraded, on)
}

func (r *recorder) RetryScheduled(_ int, delay time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retries = append(r.retries, delay)
}

func (r *recorder) Notice(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, msg)
}

func (r *recorder) statusCount(want session.Status) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.statuses {
		if s == want {
			n++
		}
	}
	return n
}

// harness wires a runner over fakes with an attempt already started.
type harness struct {
	runner *Runner
	server *fakeServer
	clock  *sched.Manual
	rec    *recorder
	sess   *session.Store
}

func newHarness(t *testing.T, server *fakeServer, snap session.Snapshot) *harness {
	t.Helper()

	sess, err := session.NewStore(context.Background(), store.NewMemory(), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	if snap.SessionID != "" || snap.IsCompleted {
		if snap.IsCompleted {
			if err := sess.Complete(context.Background()); err != nil {
				t.Fatalf("Complete failed: %v", err)
			}
		} else if err := sess.Start(context.Background(), snap); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
	}

	clock := sched.NewManual(t0)
	rec := &recorder{}
	r := New(server, sess, clock, rec, zerolog.Nop())
	t.Cleanup(r.Close)

	return &harness{runner: r, server: server, clock: clock, rec: rec, sess: sess}
}

func answer(status string) Answer {
	return Answer{Status: status, Explanation: "The agent completed the task end to end."}
}

func TestSequentialSubmissionsAdvanceOneByOne(t *testing.T) {
	server := newFakeServer(3, 60)
	h := newHarness(t, server, session.Snapshot{SessionID: "1", TotalQuestions: 3})

	if got := h.runner.Start(context.Background()); got != session.StatusLoading {
		t.Fatalf("Start = %s, want loading", got)
	}
	h.clock.Advance(0) // deadline init + first fetch

	if got := h.runner.Status(); got != session.StatusActive {
		t.Fatalf("status = %s, want active", got)
	}

	for i := 0; i < 3; i++ {
		q := h.runner.Question()
		if q == nil {
			t.Fatalf("no question loaded at step %d", i)
		}
		if q.ID != int64(100+i) {
			t.Fatalf("question at step %d = %d, want %d", i, q.ID, 100+i)
		}
		if err := h.runner.Submit(context.Background(), answer(StatusSuccess)); err != nil {
			t.Fatalf("Submit %d failed: %v", i, err)
		}
		if i < 2 {
			if got := h.runner.Progress().CurrentIndex; got != i+1 {
				t.Fatalf("index after submit %d = %d, want %d", i, got, i+1)
			}
		}
		h.clock.Advance(0) // deliver the follow-up fetch
	}

	// The fetch after the last submit discovers completion.
	if got := h.runner.Status(); got != session.StatusCompleted {
		t.Fatalf("status = %s, want completed", got)
	}
	snap := h.runner.Progress()
	if !snap.IsCompleted || snap.SessionID != "" || snap.CurrentIndex != 0 {
		t.Fatalf("mirror after completion = %+v", snap)
	}

	// Answers carried the question id and the normalized critical error.
	if len(server.submitted) != 3 {
		t.Fatalf("server saw %d answers", len(server.submitted))
	}
	for i, sub := range server.submitted {
		if sub.QuestionID != int64(100+i) {
			t.Errorf("answer %d tagged question %d", i, sub.QuestionID)
		}
		if sub.CriticalError != "None" {
			t.Errorf("answer %d critical error = %q, want None", i, sub.CriticalError)
		}
	}
}

func TestCompletedAttemptIssuesNoCalls(t *testing.T) {
	server := newFakeServer(3, 60)
	h := newHarness(t, server, session.Snapshot{IsCompleted: true})

	if got := h.runner.Start(context.Background()); got != session.StatusCompleted {
		t.Fatalf("Start = %s, want completed", got)
	}
	h.clock.Advance(time.Minute)

	if server.infoCalls != 0 || server.fetchCalls != 0 || server.submitCalls != 0 {
		t.Fatalf("backend was called: info=%d fetch=%d submit=%d",
			server.infoCalls, server.fetchCalls, server.submitCalls)
	}
	if err := h.runner.Submit(context.Background(), answer(StatusSuccess)); !errors.Is(err, ErrNotReady) {
		t.Fatalf("Submit on completed attempt = %v, want ErrNotReady", err)
	}
}

func TestNoSessionIsInert(t *testing.T) {
	server := newFakeServer(1, 60)
	h := newHarness(t, server, session.Snapshot{})

	if got := h.runner.Start(context.Background()); got != session.StatusNoSession {
		t.Fatalf("Start = %s, want no_session", got)
	}
	h.clock.Advance(time.Minute)
	if server.infoCalls != 0 || server.fetchCalls != 0 {
		t.Fatal("backend was called without a session")
	}
}

func TestDeadlineIsAbsoluteAcrossMissedTicks(t *testing.T) {
	server := newFakeServer(3, 5) // 5 minute duration
	h := newHarness(t, server, session.Snapshot{SessionID: "1", TotalQuestions: 3})

	h.runner.Start(context.Background())
	h.clock.Advance(0)

	// Jump straight past the deadline in one step, as if the process was
	// suspended the whole time. Expiry must still land, exactly once.
	h.clock.Advance(6 * time.Minute)

	if got := h.runner.Status(); got != session.StatusTimeUp {
		t.Fatalf("status = %s, want time_up", got)
	}
	if got := h.rec.statusCount(session.StatusTimeUp); got != 1 {
		t.Fatalf("time_up fired %d times", got)
	}
	if got := h.runner.Remaining(); got != 0 {
		t.Fatalf("remaining = %v, want 0", got)
	}

	h.rec.mu.Lock()
	zeros := 0
	for _, d := range h.rec.countdowns {
		if d < 0 {
			t.Fatalf("countdown went negative: %v", d)
		}
		if d == 0 {
			zeros++
		}
	}
	h.rec.mu.Unlock()
	if zeros != 1 {
		t.Fatalf("countdown reported zero %d times, want once", zeros)
	}

	// Expiry behaves like completion: mirror retired, no further submits.
	if !h.runner.Progress().IsCompleted {
		t.Fatal("mirror not completed after expiry")
	}
	fetches := server.fetchCalls
	if err := h.runner.Submit(context.Background(), answer(StatusFailure)); !errors.Is(err, ErrNotReady) {
		t.Fatalf("Submit after expiry = %v, want ErrNotReady", err)
	}
	h.clock.Advance(time.Minute)
	if server.fetchCalls != fetches {
		t.Fatal("fetches continued after expiry")
	}
}

func TestLowTimeWarningFiresOnce(t *testing.T) {
	server := newFakeServer(1, 12)
	h := newHarness(t, server, session.Snapshot{SessionID: "1", TotalQuestions: 1})

	h.runner.Start(context.Background())
	h.clock.Advance(0)
	h.clock.Advance(4 * time.Minute)

	h.rec.mu.Lock()
	warned := 0
	for _, n := range h.rec.notices {
		if n == "Less than 10 minutes remaining" {
			warned++
		}
	}
	h.rec.mu.Unlock()
	if warned != 1 {
		t.Fatalf("low-time warning fired %d times, want once", warned)
	}
}
