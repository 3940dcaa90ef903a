// Package token owns the DayBetter access credential: it serves a cached
// token while it is valid and exchanges the user code for a new one otherwise.
package token

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/dokzlo13/daybetterd/internal/daybetter"
	"github.com/dokzlo13/daybetterd/internal/ledger"
	"github.com/dokzlo13/daybetterd/internal/storage/kv"
)

const defaultExchangeTimeout = 30 * time.Second

// ReasonExchangeFailed is the AuthError reason for a failed code exchange.
const ReasonExchangeFailed = "exchange_failed"

// AuthError is returned when no usable credential can be obtained.
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err == nil {
		return "auth: " + e.Reason
	}
	return fmt.Sprintf("auth: %s: %v", e.Reason, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// Credential is the persisted form of an access token.
type Credential struct {
	AccessToken string `json:"access_token"`
	ExpiresAt   int64  `json:"expires_at,omitempty"` // Unix seconds
}

// Valid reports whether the credential can be used at now.
// A credential without an expiry is never valid.
func (c Credential) Valid(now time.Time) bool {
	if c.AccessToken == "" || c.ExpiresAt == 0 {
		return false
	}
	return time.Unix(c.ExpiresAt, 0).After(now)
}

// Exchanger trades a one-time user code for a credential.
type Exchanger interface {
	Integrate(ctx context.Context, userCode string) (*daybetter.Credential, error)
}

// Recorder receives an entry for every successful refresh.
type Recorder interface {
	Append(eventType ledger.EventType, commandID, device string, payload map[string]any) error
}

// Manager hands out access tokens for one integration instance.
type Manager struct {
	exchanger Exchanger
	slot      *kv.Typed[Credential]
	key       string
	userCode  string
	ttl       time.Duration
	timeout   time.Duration
	recorder  Recorder
	now       func() time.Time

	flight singleflight.Group

	mu     sync.RWMutex
	cached *Credential

	// writeMu gives a persistence write exclusive use of the slot.
	writeMu sync.Mutex
}

// Options configures a Manager.
type Options struct {
	Key      string        // Storage key of the credential slot (integration instance ID)
	UserCode string        // One-time code exchanged for a token
	TTL      time.Duration // Lifetime applied when the exchange reports no expiry
	Timeout  time.Duration // Bound on one code exchange, independent of any caller
	Recorder Recorder      // Optional
	Now      func() time.Time
}

// NewManager creates a token manager persisting into bucket.
func NewManager(exchanger Exchanger, bucket kv.Bucket, opts Options) *Manager {
	if opts.TTL == 0 {
		opts.TTL = 30 * 24 * time.Hour
	}
	if opts.Timeout == 0 {
		opts.Timeout = defaultExchangeTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Key == "" {
		opts.Key = "default"
	}

	return &Manager{
		exchanger: exchanger,
		slot:      kv.NewTyped[Credential](bucket),
		key:       opts.Key,
		userCode:  opts.UserCode,
		ttl:       opts.TTL,
		timeout:   opts.Timeout,
		recorder:  opts.Recorder,
		now:       opts.Now,
	}
}

// AccessToken returns a valid access token, exchanging the user code when
// the stored credential is absent or expired. Concurrent callers share a
// single exchange. The exchange outlives a caller that gives up waiting, so
// one cancelled request does not fail the others.
func (m *Manager) AccessToken(ctx context.Context) (string, error) {
	if cred, ok := m.current(); ok {
		return cred.AccessToken, nil
	}

	ch := m.flight.DoChan(m.key, func() (any, error) {
		// Another flight may have finished between the check above and now
		if cred, ok := m.current(); ok {
			return cred.AccessToken, nil
		}
		exchangeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.timeout)
		defer cancel()
		return m.refresh(exchangeCtx)
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		if res.Shared {
			log.Debug().Str("instance", m.key).Msg("Joined in-flight token exchange")
		}
		return res.Val.(string), nil
	}
}

// Invalidate drops the credential so the next AccessToken call exchanges again.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	m.cached = nil
	m.mu.Unlock()

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	if err := m.slot.Delete(m.key); err != nil {
		log.Warn().Err(err).Str("instance", m.key).Msg("Failed to delete stored credential")
	}
}

// current returns a valid credential from memory or storage.
func (m *Manager) current() (Credential, bool) {
	now := m.now()

	m.mu.RLock()
	cached := m.cached
	m.mu.RUnlock()
	if cached != nil && cached.Valid(now) {
		return *cached, true
	}

	stored, found, err := m.slot.Get(m.key)
	if err != nil {
		log.Warn().Err(err).Str("instance", m.key).Msg("Failed to load stored credential")
		return Credential{}, false
	}
	if !found || !stored.Valid(now) {
		return Credential{}, false
	}

	m.mu.Lock()
	m.cached = &stored
	m.mu.Unlock()
	return stored, true
}

func (m *Manager) refresh(ctx context.Context) (string, error) {
	log.Info().Str("instance", m.key).Msg("Exchanging user code for access token")

	fresh, err := m.exchanger.Integrate(ctx, m.userCode)
	if err != nil {
		return "", &AuthError{Reason: ReasonExchangeFailed, Err: err}
	}

	cred := Credential{AccessToken: fresh.Token, ExpiresAt: fresh.ExpiresAt}
	if cred.ExpiresAt == 0 {
		cred.ExpiresAt = m.now().Add(m.ttl).Unix()
	}

	m.mu.Lock()
	m.cached = &cred
	m.mu.Unlock()

	// A token that could not be persisted is still good for this process
	if err := m.persist(cred); err != nil {
		log.Error().Err(err).Str("instance", m.key).Msg("Failed to persist access token")
	}

	if m.recorder != nil {
		payload := map[string]any{"expires_at": cred.ExpiresAt}
		if err := m.recorder.Append(ledger.EventTokenRefreshed, "", "", payload); err != nil {
			log.Warn().Err(err).Msg("Failed to record token refresh")
		}
	}

	log.Info().
		Str("instance", m.key).
		Time("expires_at", time.Unix(cred.ExpiresAt, 0)).
		Msg("Access token refreshed")

	return cred.AccessToken, nil
}

// persist replaces the slot; the row expires with the credential.
func (m *Manager) persist(cred Credential) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	var opts *kv.StoreOptions
	if ttl := time.Unix(cred.ExpiresAt, 0).Sub(m.now()); ttl > 0 {
		opts = &kv.StoreOptions{TTL: ttl}
	}
	return m.slot.Bucket().Store(m.key, cred, opts)
}
