// Package runner drives one timed test attempt against the backend: it keeps
// the persisted session mirror, the wall-clock deadline, question fetching
// with bounded retry, and answer submission in lockstep, and resolves them
// into a single user-facing status.
package runner

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/autonex-ai/autonex-client/internal/api"
	"github.com/autonex-ai/autonex-client/internal/sched"
	"github.com/autonex-ai/autonex-client/internal/session"
	"github.com/autonex-ai/autonex-client/internal/validate"
)

const (
	// Read-path retry: attempt 0 is immediate, then 1s doubling up to 5
	// scheduled retries. A sixth consecutive failure requires manual retry.
	maxAutoRetries = 5
	retryBaseDelay = time.Second
	retryMaxDelay  = 30 * time.Second

	// A failed deadline init is retried once per failure at a fixed delay;
	// the question interface keeps working meanwhile.
	timerRetryDelay = 5 * time.Second

	tickInterval     = time.Second
	lowTimeThreshold = 10 * time.Minute
)

// Backend is the slice of the API client the runner drives.
type Backend interface {
	SessionInfo(ctx context.Context, sessionID string) (*api.SessionInfo, error)
	CurrentQuestion(ctx context.Context, sessionID string) (*api.Question, error)
	SubmitAnswer(ctx context.Context, sessionID string, sub api.AnswerSubmit) error
}

// Listener receives runner state changes. Callbacks fire while the runner
// holds its lock; implementations must return quickly and must not call back
// into the runner.
type Listener interface {
	StatusChanged(status session.Status)
	QuestionLoaded(q *api.Question)
	Countdown(remaining time.Duration)
	TimerDegraded(degraded bool)
	RetryScheduled(attempt int, delay time.Duration)
	Notice(msg string)
}

// NopListener is a Listener that ignores everything. Embed it to implement
// only the callbacks of interest.
type NopListener struct{}

func (NopListener) StatusChanged(session.Status)      {}
func (NopListener) QuestionLoaded(*api.Question)      {}
func (NopListener) Countdown(time.Duration)           {}
func (NopListener) TimerDegraded(bool)                {}
func (NopListener) RetryScheduled(int, time.Duration) {}
func (NopListener) Notice(string)                     {}

// Runner owns one attempt. All state transitions — timer ticks, network
// completions, user actions — are serialized under one mutex, so no two
// handlers ever interleave mid-mutation. The only suspension points are the
// network calls themselves, made outside the lock.
type Runner struct {
	mu       sync.Mutex
	backend  Backend
	sess     *session.Store
	resolver *session.Resolver
	sched    sched.Scheduler
	listener Listener
	validate *validate.Validator
	log      zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	sessionID     string
	question      *api.Question
	deadline      time.Time
	timeLeft      time.Duration
	timerDegraded bool
	retryCount    int
	submitting    bool
	lowTimeWarned bool
	closed        bool

	tickHandle       sched.Handle
	timerRetryHandle sched.Handle
	fetchHandle      sched.Handle
}

// New creates a Runner over an already-loaded session store. The initial
// status is no_session without a session id, completed if the mirror says
// the attempt already finished, loading otherwise.
func New(backend Backend, sess *session.Store, scheduler sched.Scheduler, listener Listener, log zerolog.Logger) *Runner {
	if listener == nil {
		listener = NopListener{}
	}

	snap := sess.Snapshot()
	resolver := session.NewResolver(snap.SessionID != "" || snap.IsCompleted)
	if snap.IsCompleted {
		resolver.Apply(session.SignalCompleted)
	}

	return &Runner{
		backend:   backend,
		sess:      sess,
		resolver:  resolver,
		sched:     scheduler,
		listener:  listener,
		validate:  validate.New(),
		log:       log.With().Str("component", "runner").Logger(),
		sessionID: snap.SessionID,
	}
}

// Start begins the attempt: it kicks off the deadline tracker and the first
// question fetch, both through the scheduler. Returns the status as of the
// call; later changes arrive through the Listener.
func (r *Runner) Start(ctx context.Context) session.Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.ctx, r.cancel = context.WithCancel(ctx)

	status := r.resolver.Status()
	if status.Terminal() {
		return status
	}

	r.sched.Schedule(0, r.initDeadline)
	r.scheduleFetchLocked(0, 0)
	return status
}

// Status returns the current user-facing status.
func (r *Runner) Status() session.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resolver.Status()
}

// Question returns the currently loaded question, or nil.
func (r *Runner) Question() *api.Question {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.question
}

// Remaining returns the last computed time left. Never negative.
func (r *Runner) Remaining() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.timeLeft
}

// RetryCount returns the current consecutive read-failure count.
func (r *Runner) RetryCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.retryCount
}

// TimerDegraded reports whether the deadline tracker is running blind.
func (r *Runner) TimerDegraded() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.timerDegraded
}

// Progress returns the session mirror's view of position and size.
func (r *Runner) Progress() session.Snapshot {
	return r.sess.Snapshot()
}

// RetryNow is the manual retry: it abandons any pending automatic retry,
// re-fetches from attempt zero, and re-initializes the deadline tracker.
func (r *Runner) RetryNow() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed || r.resolver.Status().Terminal() {
		return
	}

	if r.fetchHandle != nil {
		r.fetchHandle.Cancel()
		r.fetchHandle = nil
	}
	if r.timerRetryHandle != nil {
		r.timerRetryHandle.Cancel()
		r.timerRetryHandle = nil
	}

	r.retryCount = 0
	r.scheduleFetchLocked(0, 0)
	r.sched.Schedule(0, r.initDeadline)
}

// Leave is the single exit action from a terminal state: tear everything
// down and clear the persisted session state.
func (r *Runner) Leave(ctx context.Context) error {
	r.Close()
	return r.sess.Reset(ctx)
}

// Close tears the runner down: no further ticks, retries, or fetch results
// will be applied.
func (r *Runner) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	r.closed = true
	r.teardownLocked()
	if r.cancel != nil {
		r.cancel()
	}
}

// completeLocked applies server-reported completion: terminal status, timers
// torn down, session mirror retired (completion flag kept).
func (r *Runner) completeLocked() {
	status, changed := r.resolver.Apply(session.SignalCompleted)
	if !changed {
		return
	}
	r.teardownLocked()
	if err := r.sess.Complete(r.ctx); err != nil {
		r.log.Error().Err(err).Msg("Failed to persist completion")
	}
	r.listener.StatusChanged(status)
}

// expireLocked applies the deadline tracker's one-shot expiry. Treated like
// completion for all further interaction.
func (r *Runner) expireLocked() {
	status, changed := r.resolver.Apply(session.SignalTimeUp)
	if !changed {
		return
	}
	r.teardownLocked()
	if err := r.sess.Complete(r.ctx); err != nil {
		r.log.Error().Err(err).Msg("Failed to persist completion on expiry")
	}
	r.listener.StatusChanged(status)
}

// terminalLocked applies a terminal signal that does not mark the attempt
// completed (no_questions, session_expired). The mirror is left for Leave.
func (r *Runner) terminalLocked(sig session.Signal) {
	status, changed := r.resolver.Apply(sig)
	if !changed {
		return
	}
	r.teardownLocked()
	r.listener.StatusChanged(status)
}

// teardownLocked cancels every scheduled task so nothing stale fires later.
func (r *Runner) teardownLocked() {
	for _, h := range []sched.Handle{r.tickHandle, r.timerRetryHandle, r.fetchHandle} {
		if h != nil {
			h.Cancel()
		}
	}
	r.tickHandle = nil
	r.timerRetryHandle = nil
	r.fetchHandle = nil
}
