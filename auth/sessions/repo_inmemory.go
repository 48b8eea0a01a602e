package sessions

import (
	"sync"
	"time"

	"github.com/jrsteele09/go-workflow-bridge/auth"
	bridgeerrors "github.com/jrsteele09/go-workflow-bridge/internal/errors"
	"github.com/pkg/errors"
)

var _ Repo = (*InMemoryRepo)(nil)

// InMemoryRepo is a thread-safe in-memory implementation of the Repo interface.
// Sessions older than lifetime are treated as absent and pruned lazily.
type InMemoryRepo struct {
	mu       sync.RWMutex
	sessions map[string]*auth.Session
	lifetime time.Duration
	nowTime  func() time.Time
}

// NewInMemoryRepo creates a new in-memory session repository
func NewInMemoryRepo(lifetime time.Duration, nowTime func() time.Time) *InMemoryRepo {
	if nowTime == nil {
		nowTime = time.Now
	}
	if lifetime <= 0 {
		lifetime = auth.DefaultSessionLifetime
	}
	return &InMemoryRepo{
		sessions: make(map[string]*auth.Session),
		lifetime: lifetime,
		nowTime:  nowTime,
	}
}

// Upsert stores or replaces a session under its state
func (r *InMemoryRepo) Upsert(session *auth.Session) error {
	if session == nil {
		return errors.New("[InMemoryRepo.Upsert] session cannot be nil")
	}
	if session.State == "" {
		return errors.New("[InMemoryRepo.Upsert] state cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.pruneLocked(r.nowTime(), 2*r.lifetime)
	r.sessions[session.State] = session
	return nil
}

// Get retrieves a session by state. Expired sessions are still returned so the
// caller can report SessionExpired rather than an unknown state.
func (r *InMemoryRepo) Get(state string) (*auth.Session, error) {
	if state == "" {
		return nil, errors.New("[InMemoryRepo.Get] state cannot be empty")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	session, exists := r.sessions[state]
	if !exists {
		return nil, errors.Wrap(bridgeerrors.ErrNotFound, "[InMemoryRepo.Get] state")
	}
	return session, nil
}

func (r *InMemoryRepo) Take(state string) (*auth.Session, error) {
	if state == "" {
		return nil, errors.New("[InMemoryRepo.Take] state cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	session, exists := r.sessions[state]
	if !exists {
		return nil, errors.Wrap(bridgeerrors.ErrNotFound, "[InMemoryRepo.Take] state")
	}
	delete(r.sessions, state)
	return session, nil
}

// Delete removes a session
func (r *InMemoryRepo) Delete(state string) error {
	if state == "" {
		return errors.New("[InMemoryRepo.Delete] state cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, state)
	return nil
}

// DeleteExpired drops every session past its lifetime and returns how many went.
func (r *InMemoryRepo) DeleteExpired(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pruneLocked(now, r.lifetime)
}

func (r *InMemoryRepo) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// pruneLocked removes sessions older than age. Upsert passes twice the
// lifetime so a late callback still finds its session and gets SessionExpired.
func (r *InMemoryRepo) pruneLocked(now time.Time, age time.Duration) int {
	removed := 0
	for state, s := range r.sessions {
		if s.Expired(now, age) {
			delete(r.sessions, state)
			removed++
		}
	}
	return removed
}
