// Package session persists authenticated console sessions keyed by an opaque
// cookie token.
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"eduadmin/internal/domain/account"
)

// MaxAge bounds a session's lifetime regardless of credential expiry.
const MaxAge = 24 * time.Hour

// ErrNotFound is returned for unknown, purged or over-age tokens.
var ErrNotFound = errors.New("session not found")

// Store persists sessions.
type Store interface {
	Create(ctx context.Context, sess account.Session) (string, error)
	Get(ctx context.Context, token string) (account.Session, error)
	Delete(ctx context.Context, token string) error
	Purge(ctx context.Context, now time.Time) (int, error)
}

// expired reports whether sess should no longer be served at now.
func expired(sess account.Session, now time.Time) bool {
	if now.Sub(sess.CreatedAt) > MaxAge {
		return true
	}
	return !sess.ExpiresAt.IsZero() && !now.Before(sess.ExpiresAt)
}

// MemoryStore is an in-process Store used in tests and single-shot tooling.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]account.Session
	now      func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]account.Session), now: time.Now}
}

// Create stores sess and returns its token.
// PRE: sess carries a role
// POST: Get(token) returns sess until it expires or is deleted
func (m *MemoryStore) Create(_ context.Context, sess account.Session) (string, error) {
	token, err := generateToken()
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[token] = sess
	return token, nil
}

// Get retrieves a live session by token.
func (m *MemoryStore) Get(_ context.Context, token string) (account.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[token]
	if !ok {
		return account.Session{}, ErrNotFound
	}
	if now := m.now(); now.Sub(sess.CreatedAt) > MaxAge {
		delete(m.sessions, token)
		return account.Session{}, ErrNotFound
	}
	return sess, nil
}

// Delete removes a session; deleting an unknown token is not an error.
func (m *MemoryStore) Delete(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, token)
	return nil
}

// Purge drops every session expired at now.
func (m *MemoryStore) Purge(_ context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for token, sess := range m.sessions {
		if expired(sess, now) {
			delete(m.sessions, token)
			n++
		}
	}
	return n, nil
}

func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
