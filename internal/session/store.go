package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/rs/zerolog"

	"github.com/autonex-ai/autonex-client/internal/store"
)

// ErrNonSequentialAdvance is returned when Advance is asked to move the
// index anywhere other than exactly one past the current position.
var ErrNonSequentialAdvance = errors.New("session: index must advance by exactly one")

// Snapshot is the client's view of one test attempt.
type Snapshot struct {
	SessionID      string
	CurrentIndex   int
	TotalQuestions int
	IsCompleted    bool
}

// Active reports whether the snapshot points at a resumable attempt.
func (s Snapshot) Active() bool { return s.SessionID != "" && !s.IsCompleted }

// Store is the single source of truth for "where am I" in a test attempt.
// Every field is persisted individually through the KV port, so a partial
// read after a crash degrades to per-field defaults instead of failing.
//
// The index moves only forward: Advance accepts exactly currentIndex+1, and
// Complete retires the progress fields so a completed attempt can never
// resume at a stale index.
type Store struct {
	mu   sync.Mutex
	kv   store.KV
	snap Snapshot
	log  zerolog.Logger
}

// NewStore loads the persisted session mirror. Missing or corrupt fields
// default (index/total to 0, completion to false, id to absent).
func NewStore(ctx context.Context, kv store.KV, log zerolog.Logger) (*Store, error) {
	s := &Store{kv: kv, log: log.With().Str("component", "session_store").Logger()}

	if id, ok, err := kv.Get(ctx, store.KeySessionID); err != nil {
		return nil, fmt.Errorf("load session id: %w", err)
	} else if ok {
		s.snap.SessionID = id
	}
	s.snap.CurrentIndex = loadInt(ctx, kv, store.KeyCurrentIndex)
	s.snap.TotalQuestions = loadInt(ctx, kv, store.KeyTotalQuestions)
	if raw, ok, _ := kv.Get(ctx, store.KeyIsCompleted); ok {
		s.snap.IsCompleted = raw == "true"
	}

	return s, nil
}

// Snapshot returns the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// Start mirrors a server-provided session snapshot, persisting each field.
func (s *Store) Start(ctx context.Context, snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.kv.Set(ctx, store.KeySessionID, snap.SessionID); err != nil {
		return fmt.Errorf("persist session id: %w", err)
	}
	if err := s.kv.Set(ctx, store.KeyCurrentIndex, strconv.Itoa(snap.CurrentIndex)); err != nil {
		return fmt.Errorf("persist index: %w", err)
	}
	if err := s.kv.Set(ctx, store.KeyTotalQuestions, strconv.Itoa(snap.TotalQuestions)); err != nil {
		return fmt.Errorf("persist total: %w", err)
	}
	if err := s.kv.Set(ctx, store.KeyIsCompleted, strconv.FormatBool(snap.IsCompleted)); err != nil {
		return fmt.Errorf("persist completion: %w", err)
	}

	s.snap = snap
	s.log.Info().
		Str("session_id", snap.SessionID).
		Int("current_index", snap.CurrentIndex).
		Int("total_questions", snap.TotalQuestions).
		Bool("is_completed", snap.IsCompleted).
		Msg("Session started")
	return nil
}

// Advance moves the progress index forward by one. newIndex must equal
// currentIndex+1; anything else is a caller bug and is rejected to keep the
// sequence strictly monotonic.
func (s *Store) Advance(ctx context.Context, newIndex int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.snap.IsCompleted {
		return errors.New("session: cannot advance a completed session")
	}
	if newIndex != s.snap.CurrentIndex+1 {
		return fmt.Errorf("%w: at %d, asked for %d", ErrNonSequentialAdvance, s.snap.CurrentIndex, newIndex)
	}

	if err := s.kv.Set(ctx, store.KeyCurrentIndex, strconv.Itoa(newIndex)); err != nil {
		return fmt.Errorf("persist index: %w", err)
	}
	s.snap.CurrentIndex = newIndex
	s.log.Debug().Int("current_index", newIndex).Msg("Index advanced")
	return nil
}

// Complete marks the attempt finished and retires the progress fields. Only
// the completion flag survives, so later reads cannot resume a stale index.
func (s *Store) Complete(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.kv.Set(ctx, store.KeyIsCompleted, "true"); err != nil {
		return fmt.Errorf("persist completion: %w", err)
	}
	for _, key := range []string{store.KeySessionID, store.KeyCurrentIndex, store.KeyTotalQuestions} {
		if err := s.kv.Remove(ctx, key); err != nil {
			return fmt.Errorf("retire %s: %w", key, err)
		}
	}

	s.snap = Snapshot{IsCompleted: true}
	s.log.Info().Msg("Session completed")
	return nil
}

// Reset clears every field, persisted and in-memory. Used for the explicit
// abandon-and-return-home action, not for normal completion.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := []string{
		store.KeySessionID, store.KeyCurrentIndex,
		store.KeyTotalQuestions, store.KeyIsCompleted,
	}
	for _, key := range keys {
		if err := s.kv.Remove(ctx, key); err != nil {
			return fmt.Errorf("clear %s: %w", key, err)
		}
	}

	s.snap = Snapshot{}
	s.log.Info().Msg("Session state reset")
	return nil
}

func loadInt(ctx context.Context, kv store.KV, key string) int {
	raw, ok, err := kv.Get(ctx, key)
	if err != nil || !ok {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return n
}
