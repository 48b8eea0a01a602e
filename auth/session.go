package auth

import (
	"sync"
	"time"
)

// Status is a position in the authorization state machine.
type Status string

const (
	StatusIdle             Status = "idle"
	StatusAwaitingCallback Status = "awaiting_callback"
	StatusExchanging       Status = "exchanging"
	StatusComplete         Status = "complete"
	StatusFailed           Status = "failed"
)

// Session is one authorization attempt. It lives for the duration of the
// attempt only; the caller keeps it until the redirect comes back.
type Session struct {
	State         string
	ClientID      string
	CodeVerifier  string // empty without PKCE
	CodeChallenge string
	RedirectURI   string
	Scopes        []string
	CreatedAt     time.Time

	mu     sync.Mutex
	status Status
}

// RestoreSession rebuilds a session handed back by a caller that could not
// keep the original value, e.g. a stateless plugin invocation.
func RestoreSession(state, clientID, codeVerifier, redirectURI string, scopes []string, createdAt time.Time) *Session {
	s := &Session{
		State:        state,
		ClientID:     clientID,
		CodeVerifier: codeVerifier,
		RedirectURI:  redirectURI,
		Scopes:       scopes,
		CreatedAt:    createdAt,
		status:       StatusAwaitingCallback,
	}
	if codeVerifier != "" {
		s.CodeChallenge = codeChallenge(codeVerifier)
	}
	return s
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == "" {
		return StatusIdle
	}
	return s.status
}

func (s *Session) UsesPKCE() bool {
	return s.CodeVerifier != ""
}

// Expired reports whether the session is older than lifetime at now.
func (s *Session) Expired(now time.Time, lifetime time.Duration) bool {
	return now.Sub(s.CreatedAt) > lifetime
}

// transition moves from one status to the next and reports whether the
// session was in the expected status.
func (s *Session) transition(from, to Status) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != from {
		return false
	}
	s.status = to
	return true
}

func (s *Session) setStatus(to Status) {
	s.mu.Lock()
	s.status = to
	s.mu.Unlock()
}
