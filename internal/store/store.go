package store

import "context"

// Persisted field names. Each field is written under its own key so a partial
// read after a crash degrades to per-field defaults instead of discarding the
// whole state.
const (
	KeySessionID      = "session_id"
	KeyCurrentIndex   = "current_index"
	KeyTotalQuestions = "total_questions"
	KeyIsCompleted    = "is_completed"

	KeyToken    = "token"
	KeyUserID   = "user_id"
	KeyUsername = "username"
)

// KV is the named-field persistence port for client state. Get reports
// whether the key was present; a missing key is not an error.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
	Close() error
}
