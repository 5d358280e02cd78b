package tuya

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// expiryMargin is how much remaining lifetime a cached token must have to be
// handed out without a refresh
const expiryMargin = 60 * time.Second

// AccessToken is a short-lived project token. Replaced wholesale on refresh,
// never mutated in place.
type AccessToken struct {
	Value     string
	ExpiresAt time.Time
}

// TokenSource fetches a fresh token from the vendor; implemented by Client
type TokenSource interface {
	FetchToken(ctx context.Context) (*AccessToken, error)
}

// TokenStore persists the token across process restarts so a warm start does
// not burn a token fetch. GetToken returns nil (no error) when nothing is
// stored.
type TokenStore interface {
	GetToken(ctx context.Context) (*AccessToken, error)
	SaveToken(ctx context.Context, token *AccessToken) error
	DeleteToken(ctx context.Context) error
}

// TokenManager owns the access-token cache. Callers that arrive during an
// in-flight refresh block on the same mutex and observe the refreshed cache,
// so the vendor sees at most one token fetch at a time.
type TokenManager struct {
	source TokenSource
	store  TokenStore // optional, may be nil
	logger *slog.Logger
	now    func() time.Time

	mu    sync.RWMutex
	token *AccessToken
}

// NewTokenManager creates a token manager. store may be nil to disable
// persistence.
func NewTokenManager(source TokenSource, store TokenStore, logger *slog.Logger) *TokenManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenManager{
		source: source,
		store:  store,
		logger: logger.With("component", "token-manager"),
		now:    time.Now,
	}
}

// Token returns an access token with at least expiryMargin of remaining
// lifetime, refreshing exactly once when the cache is cold or near expiry.
// Fetch failures propagate to the caller; retry policy lives upstream.
func (m *TokenManager) Token(ctx context.Context) (string, error) {
	m.mu.RLock()
	if m.valid() {
		value := m.token.Value
		m.mu.RUnlock()
		return value, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	// Another caller may have refreshed while we waited for the write lock
	if m.valid() {
		return m.token.Value, nil
	}

	// Cold start: a persisted token may still clear the margin
	if m.token == nil && m.store != nil {
		stored, err := m.store.GetToken(ctx)
		if err != nil {
			m.logger.Warn("failed to load stored token", "error", err)
		} else if stored != nil && stored.ExpiresAt.Sub(m.now()) > expiryMargin {
			m.logger.Debug("reusing persisted access token", "expires_at", stored.ExpiresAt)
			m.token = stored
			return stored.Value, nil
		}
	}

	token, err := m.source.FetchToken(ctx)
	if err != nil {
		return "", fmt.Errorf("token fetch failed: %w", err)
	}
	m.token = token

	if m.store != nil {
		if err := m.store.SaveToken(ctx, token); err != nil {
			// The token is usable from memory, so keep going
			m.logger.Warn("failed to persist token", "error", err)
		}
	}

	m.logger.Debug("access token refreshed", "expires_at", token.ExpiresAt)
	return token.Value, nil
}

// Invalidate drops the cached token, forcing the next Token call to refetch
func (m *TokenManager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = nil
	if m.store != nil {
		if err := m.store.DeleteToken(context.Background()); err != nil {
			m.logger.Warn("failed to delete stored token", "error", err)
		}
	}
}

// valid reports whether the cached token still clears the expiry margin.
// Callers must hold at least the read lock.
func (m *TokenManager) valid() bool {
	return m.token != nil && m.token.ExpiresAt.Sub(m.now()) > expiryMargin
}
