package auth

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/autonex-ai/autonex-client/internal/api"
	"github.com/autonex-ai/autonex-client/internal/store"
)

// Identity is the logged-in user as the client knows it.
type Identity struct {
	Token    string
	UserID   int64
	Username string
	IsAdmin  bool
}

// Manager owns the client's credential: it runs the login exchange, mirrors
// the result through the persistence port, and clears everything (including
// the test session mirror) on logout.
type Manager struct {
	kv  store.KV
	log zerolog.Logger
}

// NewManager creates a credential manager over the given store.
func NewManager(kv store.KV, log zerolog.Logger) *Manager {
	return &Manager{kv: kv, log: log.With().Str("component", "auth").Logger()}
}

// Current loads the persisted identity. Returns nil when no token is stored.
func (m *Manager) Current(ctx context.Context) (*Identity, error) {
	token, ok, err := m.kv.Get(ctx, store.KeyToken)
	if err != nil {
		return nil, fmt.Errorf("load token: %w", err)
	}
	if !ok || token == "" {
		return nil, nil
	}

	id := &Identity{Token: token}
	if raw, ok, _ := m.kv.Get(ctx, store.KeyUserID); ok {
		id.UserID, _ = strconv.ParseInt(raw, 10, 64)
	}
	if name, ok, _ := m.kv.Get(ctx, store.KeyUsername); ok {
		id.Username = name
	}
	return id, nil
}

// Login runs the credential exchange and persists the resulting identity.
func (m *Manager) Login(ctx context.Context, client *api.Client, username, password string) (*Identity, error) {
	res, err := client.Login(ctx, username, password)
	if err != nil {
		return nil, err
	}

	id := &Identity{
		Token:    res.AccessToken,
		UserID:   res.UserID,
		Username: res.Username,
		IsAdmin:  res.IsAdmin,
	}

	if err := m.kv.Set(ctx, store.KeyToken, id.Token); err != nil {
		return nil, fmt.Errorf("persist token: %w", err)
	}
	if err := m.kv.Set(ctx, store.KeyUserID, strconv.FormatInt(id.UserID, 10)); err != nil {
		return nil, fmt.Errorf("persist user id: %w", err)
	}
	if err := m.kv.Set(ctx, store.KeyUsername, id.Username); err != nil {
		return nil, fmt.Errorf("persist username: %w", err)
	}

	m.log.Info().Str("username", id.Username).Msg("Logged in")
	return id, nil
}

// Logout clears the credential and the test session mirror. A stale session
// pointer without its token would resume the wrong user's attempt.
func (m *Manager) Logout(ctx context.Context) error {
	keys := []string{
		store.KeyToken, store.KeyUserID, store.KeyUsername,
		store.KeySessionID, store.KeyCurrentIndex, store.KeyTotalQuestions,
		store.KeyIsCompleted,
	}
	for _, key := range keys {
		if err := m.kv.Remove(ctx, key); err != nil {
			return fmt.Errorf("clear %s: %w", key, err)
		}
	}
	m.log.Info().Msg("Logged out")
	return nil
}

// TokenExpiry inspects the bearer token's exp claim without verifying the
// signature (the client has no key and only needs the timestamp for a
// warning). Returns zero time for opaque or claim-less tokens.
func TokenExpiry(token string) time.Time {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}
