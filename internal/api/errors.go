package api

import (
	"fmt"
	"net/http"
	"strings"
)

// Backend detail strings the client keys decisions on. These are part of the
// wire contract and must match the server byte for byte.
const (
	detailTestCompleted        = "Test Completed"
	detailTestAlreadyCompleted = "Test is already completed"
	detailInvalidSession       = "Invalid session"
	detailWrongQuestion        = "Sync Error. You are answering the wrong question."
	detailNoQuestions          = "Test has no questions"
)

// Error is a failed exchange with the backend. StatusCode is zero when no
// response arrived at all (transport failure, timeout); Detail carries the
// backend's {"detail": ...} body when one was present.
type Error struct {
	Op         string
	StatusCode int
	Detail     string
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	case e.Detail != "":
		return fmt.Sprintf("%s: %s (status %d)", e.Op, e.Detail, e.StatusCode)
	default:
		return fmt.Sprintf("%s: status %d", e.Op, e.StatusCode)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// NoResponse reports whether the server never answered. The recovery action
// differs from a rejection: retry instead of resync or exit.
func (e *Error) NoResponse() bool { return e.StatusCode == 0 }

// IsSessionNotFound reports a 404 on a session-scoped call, which the client
// treats as a non-retryable expired session.
func (e *Error) IsSessionNotFound() bool { return e.StatusCode == http.StatusNotFound }

// IsTestCompleted reports the server-side completion signal. The original
// backend emits it both as a 200-with-detail quirk on the question endpoint
// and as a 400 on later calls, so classification keys on the detail text.
func (e *Error) IsTestCompleted() bool {
	return e.Detail == detailTestCompleted ||
		e.Detail == detailTestAlreadyCompleted ||
		e.Detail == detailInvalidSession
}

// IsNoQuestions reports a question set that is empty or an index the server
// cannot serve. Distinct from normal completion: the session should never
// have been entered. The start endpoint signals it as a 404 before any
// session exists, so callers must check this before IsSessionNotFound.
func (e *Error) IsNoQuestions() bool {
	if e.StatusCode == http.StatusNotFound {
		return e.Detail == detailNoQuestions
	}
	if e.StatusCode != http.StatusBadRequest {
		return false
	}
	return strings.Contains(e.Detail, "index") || strings.Contains(e.Detail, "empty")
}

// IsWrongQuestion reports the submit skew rejection: the answer named a
// question that is not the server's current one.
func (e *Error) IsWrongQuestion() bool { return e.Detail == detailWrongQuestion }
