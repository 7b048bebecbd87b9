package identity

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ichi0g0y/spinwheel/internal/shared/logger"
	"go.uber.org/zap"
)

// User は認証済みユーザー
type User struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name,omitempty"`
}

// SessionInfo is the current sign-in state.
type SessionInfo struct {
	SessionID string    `json:"session_id,omitempty"`
	User      *User     `json:"user,omitempty"`
	SignedIn  time.Time `json:"signed_in_at"`
}

// Session holds the single signed-in user of this wheel instance and notifies
// subscribers on change.
type Session struct {
	verifier *TokenVerifier

	mu          sync.RWMutex
	info        SessionInfo
	subscribers map[int]func(*User)
	nextID      int
}

func NewSession(verifier *TokenVerifier) *Session {
	return &Session{
		verifier:    verifier,
		subscribers: make(map[int]func(*User)),
	}
}

// SetVerifier swaps the token verifier after the secret changed.
func (s *Session) SetVerifier(verifier *TokenVerifier) {
	s.mu.Lock()
	s.verifier = verifier
	s.mu.Unlock()
}

// CurrentUser returns the signed-in user or nil.
func (s *Session) CurrentUser() *User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.info.User == nil {
		return nil
	}
	u := *s.info.User
	return &u
}

// Info returns a copy of the session state.
func (s *Session) Info() SessionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	info := s.info
	if info.User != nil {
		u := *info.User
		info.User = &u
	}
	return info
}

// SignIn verifies token and makes its subject the current user.
func (s *Session) SignIn(token string) (SessionInfo, error) {
	s.mu.RLock()
	verifier := s.verifier
	s.mu.RUnlock()
	if verifier == nil {
		return SessionInfo{}, ErrNoSecret
	}

	user, err := verifier.Verify(token)
	if err != nil {
		logger.Warn("Sign-in rejected", zap.Error(err))
		return SessionInfo{}, err
	}
	return s.SetUser(user), nil
}

// SetUser replaces the current user without a token (trusted callers only).
func (s *Session) SetUser(user User) SessionInfo {
	s.mu.Lock()
	if s.info.User != nil && s.info.User.ID == user.ID {
		s.info.User.DisplayName = user.DisplayName
		info := s.info
		s.mu.Unlock()
		return info
	}
	u := user
	s.info = SessionInfo{
		SessionID: uuid.NewString(),
		User:      &u,
		SignedIn:  time.Now(),
	}
	info := s.info
	s.mu.Unlock()

	logger.Info("User signed in", zap.String("user_id", user.ID), zap.String("session_id", info.SessionID))
	s.publish(&u)
	return info
}

// SignOut clears the current user. No-op when nobody is signed in.
func (s *Session) SignOut() {
	s.mu.Lock()
	if s.info.User == nil {
		s.mu.Unlock()
		return
	}
	prev := s.info.User.ID
	s.info = SessionInfo{}
	s.mu.Unlock()

	logger.Info("User signed out", zap.String("user_id", prev))
	s.publish(nil)
}

// Subscribe calls fn with the current user and on every change until the
// returned function is called.
func (s *Session) Subscribe(fn func(*User)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subscribers[id] = fn
	var current *User
	if s.info.User != nil {
		u := *s.info.User
		current = &u
	}
	s.mu.Unlock()

	fn(current)

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subscribers, id)
			s.mu.Unlock()
		})
	}
}

func (s *Session) publish(user *User) {
	s.mu.RLock()
	subs := make([]func(*User), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		subs = append(subs, fn)
	}
	s.mu.RUnlock()

	for _, fn := range subs {
		if user == nil {
			fn(nil)
			continue
		}
		u := *user
		fn(&u)
	}
}
