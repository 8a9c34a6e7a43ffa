// Package session issues and verifies the signed tokens that stand in for
// the current authenticated identity.
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Gamma101/web-chat/internal/apperr"
)

// Session is the current identity: the auth subject id and its email.
type Session struct {
	UserID string
	Email  string
}

type claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Manager signs HS256 tokens and tracks signed-out ones. Auth-state
// listeners are notified with the new session on sign-in and nil on
// sign-out.
type Manager struct {
	secret []byte
	ttl    time.Duration

	mu        sync.Mutex
	revoked   map[string]struct{}
	listeners []func(*Session)
}

func NewManager(secret string, ttl time.Duration) *Manager {
	return &Manager{
		secret:  []byte(secret),
		ttl:     ttl,
		revoked: make(map[string]struct{}),
	}
}

func (m *Manager) IssueToken(userID, email string) (string, error) {
	now := time.Now()
	c := claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        fmt.Sprintf("%d", now.UnixNano()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", err
	}
	m.emit(&Session{UserID: userID, Email: email})
	return signed, nil
}

// Verify returns the session carried by the token, or ErrUnauthorized for
// invalid, expired or signed-out tokens.
func (m *Manager) Verify(tokenStr string) (*Session, error) {
	c := &claims{}
	token, err := jwt.ParseWithClaims(tokenStr, c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, apperr.ErrUnauthorized
	}
	m.mu.Lock()
	_, out := m.revoked[c.ID]
	m.mu.Unlock()
	if out {
		return nil, apperr.ErrUnauthorized
	}
	return &Session{UserID: c.Subject, Email: c.Email}, nil
}

// SignOut invalidates the token and notifies auth-state listeners.
func (m *Manager) SignOut(tokenStr string) error {
	c := &claims{}
	_, err := jwt.ParseWithClaims(tokenStr, c, func(t *jwt.Token) (any, error) {
		return m.secret, nil
	})
	if err != nil {
		return apperr.ErrUnauthorized
	}
	m.mu.Lock()
	m.revoked[c.ID] = struct{}{}
	m.mu.Unlock()
	m.emit(nil)
	return nil
}

// OnAuthStateChange registers a listener; it receives the session on
// sign-in and nil on sign-out.
func (m *Manager) OnAuthStateChange(fn func(*Session)) {
	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	m.mu.Unlock()
}

func (m *Manager) emit(s *Session) {
	m.mu.Lock()
	ls := make([]func(*Session), len(m.listeners))
	copy(ls, m.listeners)
	m.mu.Unlock()
	for _, fn := range ls {
		fn(s)
	}
}
