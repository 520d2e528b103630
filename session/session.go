// Package session manages the single admin session that guards every
// privileged operation.
package session

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/eringen/folio/apperr"
)

const (
	// DefaultTTL is how long a session stays valid after login.
	DefaultTTL = 12 * time.Hour

	tokenBytes = 32
)

// Record is the server-side view of the active session. Only the digest of
// the token is kept.
type Record struct {
	Digest    string
	ExpiresAt time.Time
}

// Manager issues, validates and revokes the admin session.
type Manager struct {
	store      Store
	ttl        time.Duration
	now        func() time.Time
	answer     []byte
	answerHash []byte

	mu     sync.RWMutex
	active *Record
}

// Option configures a Manager.
type Option func(*Manager)

// WithTTL sets the session lifetime.
func WithTTL(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.ttl = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithAnswer sets a plaintext challenge answer.
func WithAnswer(answer string) Option {
	return func(m *Manager) {
		if answer = strings.TrimSpace(answer); answer != "" {
			sum := sha256.Sum256([]byte(answer))
			m.answer = sum[:]
		}
	}
}

// WithAnswerHash sets a bcrypt hash of the challenge answer. It takes
// precedence over WithAnswer.
func WithAnswerHash(hash string) Option {
	return func(m *Manager) {
		if hash = strings.TrimSpace(hash); hash != "" {
			m.answerHash = []byte(hash)
		}
	}
}

// NewManager builds a Manager on top of store and restores any persisted
// session that has not expired yet. A nil store keeps the session in memory.
func NewManager(ctx context.Context, store Store, opts ...Option) (*Manager, error) {
	if store == nil {
		store = NewMemoryStore()
	}
	m := &Manager{
		store: store,
		ttl:   DefaultTTL,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.answerHash != nil {
		if _, err := bcrypt.Cost(m.answerHash); err != nil {
			return nil, fmt.Errorf("invalid answer hash: %w", err)
		}
	}

	rec, ok, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if ok {
		if m.now().Before(rec.ExpiresAt) {
			m.active = &rec
		} else if err := store.Clear(ctx); err != nil {
			return nil, fmt.Errorf("clear expired session: %w", err)
		}
	}
	return m, nil
}

// Configured reports whether a challenge answer is set.
func (m *Manager) Configured() bool {
	return m.answer != nil || m.answerHash != nil
}

// ValidateChallenge checks response against the configured answer in
// constant time. With no answer configured every response fails.
func (m *Manager) ValidateChallenge(response string) bool {
	response = strings.TrimSpace(response)
	if response == "" {
		return false
	}
	if m.answerHash != nil {
		return bcrypt.CompareHashAndPassword(m.answerHash, []byte(response)) == nil
	}
	if m.answer == nil {
		return false
	}
	sum := sha256.Sum256([]byte(response))
	return subtle.ConstantTimeCompare(sum[:], m.answer) == 1
}

// CreateSession issues a fresh token, replacing any previous session.
func (m *Manager) CreateSession(ctx context.Context) (string, time.Time, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", time.Time{}, apperr.Wrap(apperr.KindInternal, "generate session token", err)
	}
	token := hex.EncodeToString(buf)
	rec := Record{
		Digest:    digest(token),
		ExpiresAt: m.now().Add(m.ttl).UTC().Truncate(time.Second),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.store.Save(ctx, rec); err != nil {
		return "", time.Time{}, apperr.Wrap(apperr.KindInternal, "save session", err)
	}
	m.active = &rec
	return token, rec.ExpiresAt, nil
}

// ValidateSession reports whether token is the live session token. It never
// fails; missing, malformed, expired and revoked tokens are simply invalid.
func (m *Manager) ValidateSession(token string) bool {
	if !wellFormed(token) {
		return false
	}
	d := digest(token)

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.active == nil {
		return false
	}
	if subtle.ConstantTimeCompare([]byte(d), []byte(m.active.Digest)) != 1 {
		return false
	}
	return m.now().Before(m.active.ExpiresAt)
}

// Require fails with Unauthorized unless token is valid.
func (m *Manager) Require(token string) error {
	if !m.ValidateSession(token) {
		return apperr.Unauthorized("authentication required")
	}
	return nil
}

// EndSession revokes token. Unknown or already ended tokens are a no-op.
func (m *Manager) EndSession(ctx context.Context, token string) error {
	if !wellFormed(token) {
		return nil
	}
	d := digest(token)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil || subtle.ConstantTimeCompare([]byte(d), []byte(m.active.Digest)) != 1 {
		return nil
	}
	if err := m.store.Clear(ctx); err != nil {
		return apperr.Wrap(apperr.KindInternal, "clear session", err)
	}
	m.active = nil
	return nil
}

// HashAnswer returns a bcrypt hash suitable for WithAnswerHash.
func HashAnswer(answer string) (string, error) {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return "", apperr.Validation("answer is required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(answer), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func digest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func wellFormed(token string) bool {
	if len(token) != tokenBytes*2 {
		return false
	}
	_, err := hex.DecodeString(token)
	return err == nil
}

type ctxKey struct{}

// NewContext returns a copy of ctx carrying m.
func NewContext(ctx context.Context, m *Manager) context.Context {
	return context.WithValue(ctx, ctxKey{}, m)
}

// FromContext returns the Manager stored in ctx, if any.
func FromContext(ctx context.Context) (*Manager, bool) {
	m, ok := ctx.Value(ctxKey{}).(*Manager)
	return m, ok && m != nil
}
