package session

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/autonex-ai/autonex-client/internal/store"
)

func newTestStore(t *testing.T, kv store.KV) *Store {
	t.Helper()
	s, err := NewStore(context.Background(), kv, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	return s
}

func TestStartPersistsEveryField(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()
	s := newTestStore(t, kv)

	snap := Snapshot{SessionID: "7", CurrentIndex: 2, TotalQuestions: 5}
	if err := s.Start(ctx, snap); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// A fresh store over the same KV must see the same state (reload survival).
	s2 := newTestStore(t, kv)
	if got := s2.Snapshot(); got != snap {
		t.Fatalf("reloaded snapshot = %+v, want %+v", got, snap)
	}
}

func TestAdvanceIsStrictlySequential(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, store.NewMemory())
	if err := s.Start(ctx, Snapshot{SessionID: "1", TotalQuestions: 3}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	for _, bad := range []int{0, 2, 5, -1} {
		if err := s.Advance(ctx, bad); !errors.Is(err, ErrNonSequentialAdvance) {
			t.Errorf("Advance(%d) = %v, want ErrNonSequentialAdvance", bad, err)
		}
	}

	for want := 1; want <= 3; want++ {
		if err := s.Advance(ctx, want); err != nil {
			t.Fatalf("Advance(%d) failed: %v", want, err)
		}
		if got := s.Snapshot().CurrentIndex; got != want {
			t.Fatalf("index = %d, want %d", got, want)
		}
	}
}

func TestCompleteRetiresProgressButKeepsFlag(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()
	s := newTestStore(t, kv)
	if err := s.Start(ctx, Snapshot{SessionID: "9", CurrentIndex: 3, TotalQuestions: 3}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if err := s.Complete(ctx); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	snap := s.Snapshot()
	if !snap.IsCompleted || snap.SessionID != "" || snap.CurrentIndex != 0 {
		t.Fatalf("snapshot after Complete = %+v", snap)
	}
	if err := s.Advance(ctx, 1); err == nil {
		t.Fatal("Advance after Complete should fail")
	}

	// Reload: completion flag survives, progress does not.
	s2 := newTestStore(t, kv)
	if got := s2.Snapshot(); !got.IsCompleted || got.SessionID != "" {
		t.Fatalf("reloaded snapshot after Complete = %+v", got)
	}
}

func TestResetClearsEverything(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()
	s := newTestStore(t, kv)
	if err := s.Start(ctx, Snapshot{SessionID: "9", CurrentIndex: 1, TotalQuestions: 2}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := s.Complete(ctx); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	if err := s.Reset(ctx); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if got := s.Snapshot(); got != (Snapshot{}) {
		t.Fatalf("snapshot after Reset = %+v, want zero", got)
	}
	if got := newTestStore(t, kv).Snapshot(); got != (Snapshot{}) {
		t.Fatalf("reloaded snapshot after Reset = %+v, want zero", got)
	}
}

func TestPartialStateDefaults(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()

	// Only the session id survived; index and total are gone, completion
	// was corrupted to junk.
	_ = kv.Set(ctx, store.KeySessionID, "12")
	_ = kv.Set(ctx, store.KeyIsCompleted, "garbage")

	got := newTestStore(t, kv).Snapshot()
	want := Snapshot{SessionID: "12"}
	if got != want {
		t.Fatalf("partial snapshot = %+v, want %+v", got, want)
	}
}
