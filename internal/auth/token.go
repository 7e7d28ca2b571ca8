// Package auth manages the bearer credential for the metrics/incident API.
//
// The credential lives only in process memory, owned by Manager; it is never
// written to the cache or to disk. Consumers call EnsureValid before every
// use and get either a credential inside its validity window or a typed
// *TokenError.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/sync/singleflight"

	"github.com/opschat/opschat/internal/log"
)

// DefaultSafetyMargin is how long before expiry a credential is treated as
// stale and proactively refreshed.
const DefaultSafetyMargin = 30 * time.Second

// defaultLifetime applies when the token endpoint omits expires_in.
const defaultLifetime = time.Hour

// ErrNoCredential indicates no usable credential is held and the exchange
// failed.
var ErrNoCredential = errors.New("no valid credential")

// TokenError is the typed failure returned by EnsureValid. It never crosses
// the orchestrator boundary as a raw error; the orchestrator folds it into a
// formatted outcome.
type TokenError struct {
	Err error
}

func (e *TokenError) Error() string { return fmt.Sprintf("token exchange failed: %v", e.Err) }
func (e *TokenError) Unwrap() error { return e.Err }

// Credential is a bearer token with its absolute expiry.
type Credential struct {
	AccessToken string
	ExpiresAt   time.Time
}

// validAt reports whether the credential is usable at t given the margin.
func (c Credential) validAt(t time.Time, margin time.Duration) bool {
	return c.AccessToken != "" && t.Before(c.ExpiresAt.Add(-margin))
}

// Manager obtains and caches a credential from an OAuth2 client-credentials
// endpoint. Safe for concurrent use; concurrent refreshes collapse into one
// in-flight exchange that all waiters share.
type Manager struct {
	margin   time.Duration
	logger   log.Logger
	now      func() time.Time
	exchange func(ctx context.Context) (*oauth2.Token, error)

	mu    sync.Mutex
	cred  Credential
	group singleflight.Group
}

// NewManager creates a Manager for the given token endpoint and client
// credentials. A non-positive margin falls back to DefaultSafetyMargin.
func NewManager(tokenURL, clientID, clientSecret string, scopes []string, margin time.Duration, logger log.Logger) *Manager {
	if margin <= 0 {
		margin = DefaultSafetyMargin
	}

	conf := &clientcredentials.Config{
		TokenURL:     tokenURL,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Scopes:       scopes,
	}

	return &Manager{
		margin:   margin,
		logger:   logger,
		now:      time.Now,
		exchange: conf.Token,
	}
}

// EnsureValid returns a credential inside its validity window, performing at
// most one client-credentials exchange. No retry is layered here; callers
// decide whether to retry.
//
// On exchange failure the held credential is left untouched: a stale-but-
// valid credential is preferred over none.
func (m *Manager) EnsureValid(ctx context.Context) (Credential, error) {
	m.mu.Lock()
	cred := m.cred
	m.mu.Unlock()

	if cred.validAt(m.now(), m.margin) {
		return cred, nil
	}

	// Late callers attach to the in-flight exchange instead of re-triggering.
	v, err, _ := m.group.Do("refresh", func() (any, error) {
		m.mu.Lock()
		held := m.cred
		m.mu.Unlock()

		// Another waiter may have refreshed while we queued.
		if held.validAt(m.now(), m.margin) {
			return held, nil
		}

		tok, err := m.exchange(ctx)
		if err != nil {
			return Credential{}, err
		}

		expiry := tok.Expiry
		if expiry.IsZero() {
			expiry = m.now().Add(defaultLifetime)
		}
		fresh := Credential{AccessToken: tok.AccessToken, ExpiresAt: expiry}

		m.mu.Lock()
		m.cred = fresh
		m.mu.Unlock()

		m.logger.Debug("credential refreshed", "expires_at", fresh.ExpiresAt)
		return fresh, nil
	})
	if err != nil {
		m.logger.Warn("credential refresh failed", "error", err)
		return Credential{}, &TokenError{Err: err}
	}

	return v.(Credential), nil
}
