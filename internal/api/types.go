package api

// LoginRequest is the credential payload for POST /login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResult is the token and identity returned by a successful login.
type LoginResult struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	UserID      int64  `json:"user_id"`
	Username    string `json:"username"`
	IsAdmin     bool   `json:"is_admin"`
}

// SessionSnapshot is the server's view of one test attempt, returned by
// POST /start-test/{testId}/{userId}. Start is idempotent: an existing
// attempt is returned instead of creating a second one.
type SessionSnapshot struct {
	SessionID      int64 `json:"session_id"`
	CurrentIndex   int   `json:"current_index"`
	TotalQuestions int   `json:"total_questions"`
	IsCompleted    bool  `json:"is_completed"`
}

// SessionInfo carries the fields needed to derive the wall-clock deadline.
type SessionInfo struct {
	SessionID       int64  `json:"session_id"`
	StartTime       string `json:"start_time"` // ISO 8601, server clock
	DurationMinutes int    `json:"duration_minutes"`
	IsCompleted     bool   `json:"is_completed"`
}

// Question is the task served for the session's current index. It is never
// cached across index changes.
type Question struct {
	ID          int64   `json:"id"`
	TaskID      *string `json:"task_id,omitempty"`
	Link        string  `json:"link"`
	Description string  `json:"description"`
}

// AnswerSubmit is the payload for POST /session/{id}/submit. QuestionID is
// the identifier of the question the answer was written against, not the
// progress index, so the server can detect skew.
type AnswerSubmit struct {
	QuestionID    int64  `json:"question_id"`
	Status        string `json:"status"`
	Explanation   string `json:"explanation"`
	CriticalError string `json:"critical_error"`
}

// Test is an assessment definition as seen by the admin surface.
type Test struct {
	ID              int64  `json:"id"`
	Title           string `json:"title"`
	Description     string `json:"description,omitempty"`
	DurationMinutes int    `json:"duration_minutes,omitempty"`
	QuestionCount   int    `json:"question_count"`
	IsActive        bool   `json:"is_active,omitempty"`
}

// TestCreate is the payload for POST /admin/create-test.
type TestCreate struct {
	Title           string `json:"title"`
	DurationMinutes int    `json:"duration_minutes"`
	Description     string `json:"description"`
}

// QuestionCreate is the payload for POST /admin/test/{id}/add-question.
type QuestionCreate struct {
	TaskID      string `json:"task_id,omitempty"`
	Link        string `json:"link"`
	Description string `json:"description"`
}

// User is a platform account as listed by the admin surface.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	IsActive bool   `json:"is_active"`
	IsAdmin  bool   `json:"is_admin"`
}

// SessionResult is one row of a test's results listing.
type SessionResult struct {
	ID          int64  `json:"id"`
	UserID      int64  `json:"user_id"`
	Username    string `json:"username"`
	IsCompleted bool   `json:"is_completed"`
	Score       int    `json:"score"`
}

// ReportEntry is one graded answer inside a session report.
type ReportEntry struct {
	QuestionID    int64  `json:"question_id"`
	TaskID        string `json:"task_id,omitempty"`
	Link          string `json:"link"`
	Status        string `json:"status"`
	Explanation   string `json:"explanation"`
	CriticalError string `json:"critical_error"`
	Grade         string `json:"grade,omitempty"`
}

// Report is the per-session report returned by GET /admin/report/{id}.
type Report struct {
	SessionID int64         `json:"session_id"`
	Username  string        `json:"username"`
	Score     int           `json:"score"`
	Entries   []ReportEntry `json:"entries"`
}
