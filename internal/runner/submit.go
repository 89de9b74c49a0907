package runner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/autonex-ai/autonex-client/internal/api"
)

// Answer status values. A closed set: the server accepts nothing else.
const (
	StatusSuccess = "Success"
	StatusFailure = "Failure"
)

// Answer is the user's evaluation of the current task.
type Answer struct {
	Status        string `json:"status" validate:"required,oneof=Success Failure"`
	Explanation   string `json:"explanation" validate:"required"`
	CriticalError string `json:"critical_error"`
}

// Submission flow errors.
var (
	// ErrNotReady means there is no question to answer (still loading, in a
	// network-error state, or the attempt already ended).
	ErrNotReady = errors.New("no question is ready for submission")
	// ErrSubmitInFlight rejects overlapping submissions; they are strictly
	// serialized with index advancement.
	ErrSubmitInFlight = errors.New("a submission is already in flight")
	// ErrOutOfSync means the server rejected the answer as being for the
	// wrong question. The runner re-fetches; the caller should discard its
	// draft, as the re-synced question may differ.
	ErrOutOfSync = errors.New("answer was for a stale question; re-syncing")
	// ErrSubmitRejected is a transient submit failure. Never auto-retried —
	// the write is not assumed idempotent — so the user must resubmit.
	ErrSubmitRejected = errors.New("submission failed; please resubmit")
)

// ValidationError reports locally rejected answer fields. No network call
// was made and no state changed.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+e.Fields[name])
	}
	return "invalid answer: " + strings.Join(parts, "; ")
}

// Submit validates and sends the answer for the currently loaded question.
// On success the progress index advances by exactly one and the next fetch
// is queued; this is the only path that moves progress forward, and there is
// no way back.
func (r *Runner) Submit(ctx context.Context, ans Answer) error {
	ans.Status = strings.TrimSpace(ans.Status)
	ans.Explanation = strings.TrimSpace(ans.Explanation)
	ans.CriticalError = strings.TrimSpace(ans.CriticalError)

	// Local precondition check: invalid answers never reach the network.
	if fields := r.validate.Struct(ans); fields != nil {
		return &ValidationError{Fields: fields}
	}

	r.mu.Lock()
	if r.closed || r.resolver.Status().Terminal() || r.question == nil {
		r.mu.Unlock()
		return ErrNotReady
	}
	if r.submitting {
		r.mu.Unlock()
		return ErrSubmitInFlight
	}
	r.submitting = true

	sessionID := r.sessionID
	issuedAt := r.sess.Snapshot().CurrentIndex
	sub := api.AnswerSubmit{
		// Tagged with the fetched question's identifier, not the index, so
		// the server can detect skew.
		QuestionID:    r.question.ID,
		Status:        ans.Status,
		Explanation:   ans.Explanation,
		CriticalError: ans.CriticalError,
	}
	if sub.CriticalError == "" {
		sub.CriticalError = "None"
	}
	r.mu.Unlock()

	err := r.backend.SubmitAnswer(ctx, sessionID, sub)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.submitting = false

	if r.closed {
		return ErrNotReady
	}
	// The attempt may have ended while the submit was in flight (deadline
	// expiry races a slow response). Terminal wins; the result is dropped.
	if r.resolver.Status().Terminal() {
		return nil
	}

	if err == nil {
		if aerr := r.sess.Advance(r.ctx, issuedAt+1); aerr != nil {
			return fmt.Errorf("advance index: %w", aerr)
		}
		r.question = nil
		r.retryCount = 0
		r.log.Info().Int("current_index", issuedAt+1).Msg("Answer saved")
		// The index change triggers exactly one fresh fetch, which either
		// loads the next question or discovers completion.
		r.scheduleFetchLocked(0, 0)
		return nil
	}

	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.IsWrongQuestion():
			// Two tabs racing on one session, or a stale cached question.
			// Re-sync from the server; no index change.
			r.log.Warn().Str("session_id", sessionID).Msg("Submit out of sync; re-fetching")
			r.listener.Notice("Question sync issue detected. Refreshing...")
			r.scheduleFetchLocked(0, 0)
			return ErrOutOfSync
		case apiErr.IsTestCompleted():
			r.completeLocked()
			return nil
		}
	}

	r.log.Warn().Err(err).Msg("Submit failed")
	return fmt.Errorf("%w: %v", ErrSubmitRejected, err)
}
