package runner

import (
	"errors"
	"time"

	"github.com/autonex-ai/autonex-client/internal/api"
	"github.com/autonex-ai/autonex-client/internal/session"
)

// scheduleFetchLocked queues fetch attempt n after delay. The previous
// pending fetch task, if any, is superseded.
func (r *Runner) scheduleFetchLocked(attempt int, delay time.Duration) {
	if r.fetchHandle != nil {
		r.fetchHandle.Cancel()
	}
	r.fetchHandle = r.sched.Schedule(delay, func() {
		r.runFetch(attempt)
	})
}

// runFetch performs one question fetch. The progress index is sampled when
// the request goes out; a response arriving after the index moved on is
// stale and discarded rather than overwriting a newer question.
func (r *Runner) runFetch(attempt int) {
	r.mu.Lock()
	if r.closed || r.resolver.Status().Terminal() {
		r.mu.Unlock()
		return
	}
	sessionID := r.sessionID
	issuedAt := r.sess.Snapshot().CurrentIndex
	ctx := r.ctx
	r.mu.Unlock()

	q, err := r.backend.CurrentQuestion(ctx, sessionID)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || r.resolver.Status().Terminal() {
		return
	}
	if cur := r.sess.Snapshot().CurrentIndex; cur != issuedAt {
		r.log.Debug().
			Int("issued_at", issuedAt).
			Int("current", cur).
			Msg("Discarding stale question fetch")
		return
	}

	if err == nil {
		r.question = q
		r.retryCount = 0
		if status, changed := r.resolver.Apply(session.SignalQuestionReady); changed {
			r.listener.StatusChanged(status)
		}
		r.listener.QuestionLoaded(q)
		return
	}

	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.IsTestCompleted():
			r.completeLocked()
			return
		case apiErr.IsNoQuestions():
			r.terminalLocked(session.SignalNoQuestions)
			return
		case apiErr.IsSessionNotFound():
			r.terminalLocked(session.SignalSessionExpired)
			return
		}
	}

	// Transient: surface the banner and back off. The counter is the number
	// of consecutive failures, so the first one already reads as 1.
	r.retryCount = attempt + 1
	if status, changed := r.resolver.Apply(session.SignalNetworkError); changed {
		r.listener.StatusChanged(status)
	}

	if attempt >= maxAutoRetries {
		r.log.Warn().Int("attempt", attempt).Msg("Retry budget exhausted; waiting for manual retry")
		r.listener.Notice("Connection lost. Retry manually when you are back online.")
		return
	}

	delay := retryDelay(attempt)
	r.log.Warn().Err(err).
		Int("attempt", attempt).
		Dur("delay", delay).
		Msg("Question fetch failed; retrying")
	r.listener.RetryScheduled(attempt+1, delay)
	r.scheduleFetchLocked(attempt+1, delay)
}

// retryDelay returns the backoff before the attempt following failedAttempt:
// 1s, 2s, 4s, 8s, 16s, capped at 30s.
func retryDelay(failedAttempt int) time.Duration {
	delay := retryBaseDelay << failedAttempt
	if delay > retryMaxDelay {
		delay = retryMaxDelay
	}
	return delay
}
