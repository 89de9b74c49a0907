package session

// Status is the single tagged state of a test attempt as shown to the user.
// Exactly one status holds at a time; illegal combinations (completed and
// network_error at once) are unrepresentable.
type Status string

const (
	StatusNoSession      Status = "no_session"
	StatusLoading        Status = "loading"
	StatusActive         Status = "active"
	StatusCompleted      Status = "completed"
	StatusTimeUp         Status = "time_up"
	StatusNoQuestions    Status = "no_questions"
	StatusSessionExpired Status = "session_expired"
	StatusNetworkError   Status = "network_error"
)

// Terminal reports whether no further fetch or submit may be attempted from
// this status. Recovery from a terminal status means leaving the session.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusTimeUp, StatusNoQuestions, StatusSessionExpired, StatusNoSession:
		return true
	}
	return false
}

// Signal is an input to the status machine.
type Signal string

const (
	// SignalQuestionReady fires when a fetch delivered a question.
	SignalQuestionReady Signal = "question_ready"
	// SignalNetworkError fires on a transient read failure.
	SignalNetworkError Signal = "network_error"
	// SignalCompleted fires on any server-reported completion.
	SignalCompleted Signal = "completed"
	// SignalTimeUp fires only from the deadline tracker's expiry.
	SignalTimeUp Signal = "time_up"
	// SignalNoQuestions fires when the server has no questions to serve.
	SignalNoQuestions Signal = "no_questions"
	// SignalSessionExpired fires when the session is gone server-side.
	SignalSessionExpired Signal = "session_expired"
)

// Resolver holds the current status and applies signals through a single
// transition function. Terminal statuses absorb every later signal, which is
// what makes expiry and completion idempotent.
type Resolver struct {
	status Status
}

// NewResolver starts the machine: no_session when there is no session
// identifier to drive, loading otherwise.
func NewResolver(hasSession bool) *Resolver {
	if !hasSession {
		return &Resolver{status: StatusNoSession}
	}
	return &Resolver{status: StatusLoading}
}

// Status returns the current status.
func (r *Resolver) Status() Status { return r.status }

// Apply feeds a signal to the machine. It returns the resulting status and
// whether it changed. Signals against a terminal status never change it.
func (r *Resolver) Apply(sig Signal) (Status, bool) {
	next := transition(r.status, sig)
	if next == r.status {
		return r.status, false
	}
	r.status = next
	return next, true
}

func transition(cur Status, sig Signal) Status {
	if cur.Terminal() {
		return cur
	}

	switch sig {
	case SignalQuestionReady:
		return StatusActive
	case SignalNetworkError:
		return StatusNetworkError
	case SignalCompleted:
		return StatusCompleted
	case SignalTimeUp:
		return StatusTimeUp
	case SignalNoQuestions:
		return StatusNoQuestions
	case SignalSessionExpired:
		return StatusSessionExpired
	}
	return cur
}
