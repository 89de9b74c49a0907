package runner

import (
	"errors"
	"fmt"
	"time"

	"github.com/autonex-ai/autonex-client/internal/api"
	"github.com/autonex-ai/autonex-client/internal/session"
)

// initDeadline fetches session timing from the server and starts the
// countdown. The deadline is absolute (server start time plus duration), so
// a reload or a long tab suspension re-derives the truth instead of trusting
// any locally accumulated counter.
func (r *Runner) initDeadline() {
	r.mu.Lock()
	if r.closed || r.resolver.Status().Terminal() {
		r.mu.Unlock()
		return
	}
	sessionID := r.sessionID
	ctx := r.ctx
	r.mu.Unlock()

	info, err := r.backend.SessionInfo(ctx, sessionID)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || r.resolver.Status().Terminal() {
		return
	}

	if err != nil {
		var apiErr *api.Error
		if errors.As(err, &apiErr) && apiErr.IsSessionNotFound() {
			r.log.Warn().Str("session_id", sessionID).Msg("Session not found; expiring")
			r.terminalLocked(session.SignalSessionExpired)
			return
		}
		r.degradeTimerLocked(err)
		return
	}

	// Never start a countdown for a finished session.
	if info.IsCompleted {
		r.completeLocked()
		return
	}

	start, err := parseServerTime(info.StartTime)
	if err != nil {
		r.degradeTimerLocked(fmt.Errorf("parse start time %q: %w", info.StartTime, err))
		return
	}

	r.deadline = start.Add(time.Duration(info.DurationMinutes) * time.Minute)
	r.lowTimeWarned = false
	if r.timerDegraded {
		r.timerDegraded = false
		r.listener.TimerDegraded(false)
	}

	r.log.Info().
		Str("session_id", sessionID).
		Time("deadline", r.deadline).
		Int("duration_minutes", info.DurationMinutes).
		Msg("Deadline established")

	if r.tickHandle != nil {
		r.tickHandle.Cancel()
	}
	r.tickLocked()
}

// degradeTimerLocked surfaces a non-fatal timer failure and schedules a
// single retry. The question interface is never blocked on timer health.
func (r *Runner) degradeTimerLocked(err error) {
	r.log.Warn().Err(err).Msg("Deadline init failed; timer degraded")
	if !r.timerDegraded {
		r.timerDegraded = true
		r.listener.TimerDegraded(true)
	}
	if r.timerRetryHandle != nil {
		r.timerRetryHandle.Cancel()
	}
	r.timerRetryHandle = r.sched.Schedule(timerRetryDelay, r.initDeadline)
}

// tickLocked recomputes remaining time against the absolute deadline and
// either reschedules itself or fires the one-shot expiry. Missed ticks don't
// matter: one late tick lands exactly on time_up.
func (r *Runner) tickLocked() {
	remaining := r.deadline.Sub(r.sched.Now())

	if remaining <= 0 {
		r.timeLeft = 0
		r.listener.Countdown(0)
		r.expireLocked()
		return
	}

	r.timeLeft = remaining
	r.listener.Countdown(remaining)

	if remaining <= lowTimeThreshold && !r.lowTimeWarned {
		r.lowTimeWarned = true
		r.listener.Notice(fmt.Sprintf("Less than %d minutes remaining", int(lowTimeThreshold.Minutes())))
	}

	r.tickHandle = r.sched.Schedule(tickInterval, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.closed || r.resolver.Status().Terminal() {
			return
		}
		r.tickLocked()
	})
}

// parseServerTime accepts the backend's ISO 8601 start_time, with or without
// a timezone offset. Offset-less timestamps are taken as UTC, matching the
// server's clock.
func parseServerTime(raw string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05.999999", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, errors.New("unrecognized timestamp format")
}
