package auth

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// TokenSource supplies the current bearer token, if any.
type TokenSource interface {
	Token(ctx context.Context) (string, bool)
}

// Session is the only auth surface the room client depends on:
// the current token and a way to drop it when the server rejects it.
type Session struct {
	mu       sync.RWMutex
	token    string
	onExpire []func()
}

// NewSession creates a session seeded with token. An empty token means anonymous.
func NewSession(token string) *Session {
	return &Session{token: token}
}

// Token returns the bearer token, or false when the session is anonymous or expired.
func (s *Session) Token(ctx context.Context) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.token != ""
}

// SetToken replaces the bearer token.
func (s *Session) SetToken(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}

// OnExpire registers a hook that runs when the session dies.
func (s *Session) OnExpire(fn func()) {
	s.mu.Lock()
	s.onExpire = append(s.onExpire, fn)
	s.mu.Unlock()
}

// Expire clears the token and notifies hooks. Safe to call repeatedly.
func (s *Session) Expire() {
	s.mu.Lock()
	if s.token == "" {
		s.mu.Unlock()
		return
	}
	s.token = ""
	hooks := append([]func(){}, s.onExpire...)
	s.mu.Unlock()

	log.Warn().Msg("session expired, clearing credentials")
	for _, fn := range hooks {
		fn()
	}
}
