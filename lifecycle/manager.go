package lifecycle

import (
	"context"
	"sync"
	"time"

	bridgeerrors "github.com/jrsteele09/go-workflow-bridge/internal/errors"
	"github.com/jrsteele09/go-workflow-bridge/internal/metrics"
	"github.com/jrsteele09/go-workflow-bridge/token"
	"github.com/jrsteele09/go-workflow-bridge/token/store"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Refresher runs a refresh grant. *auth.Flow implements it.
type Refresher interface {
	Refresh(ctx context.Context, rec token.Record) (token.Record, error)
}

// Manager owns zero or one token record and hands out a currently valid
// access token. One Manager is built per invocation from the persisted record
// and written back with Persist at the end.
type Manager struct {
	mu     sync.RWMutex
	record *token.Record
	// version is the store version the record was loaded at; it survives
	// clearing so a later Persist can still detect a concurrent writer.
	version int64
	dirty   bool

	refresher Refresher
	store     store.Store
	skew      time.Duration
	nowFunc   func() time.Time
	metrics   *metrics.Metrics
	logger    zerolog.Logger
	flight    singleflight.Group
}

type ManagerOption func(*Manager)

func WithNowFunc(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowFunc = now
	}
}

func WithSkew(skew time.Duration) ManagerOption {
	return func(m *Manager) {
		if skew >= 0 {
			m.skew = skew
		}
	}
}

func WithStore(s store.Store) ManagerOption {
	return func(m *Manager) {
		m.store = s
	}
}

func WithMetrics(mt *metrics.Metrics) ManagerOption {
	return func(m *Manager) {
		m.metrics = mt
	}
}

func WithLogger(logger zerolog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithRecord seeds the manager with a record the caller already holds.
func WithRecord(rec token.Record) ManagerOption {
	return func(m *Manager) {
		held := rec.Clone()
		m.record = &held
		m.version = rec.Version
	}
}

// NewManager returns a Manager. refresher may be nil when only personal
// tokens are in play.
func NewManager(refresher Refresher, options ...ManagerOption) *Manager {
	m := &Manager{
		refresher: refresher,
		skew:      token.DefaultRefreshSkew,
		nowFunc:   time.Now,
		logger:    zerolog.Nop(),
	}
	for _, opt := range options {
		opt(m)
	}
	return m
}

// AcquireValidToken returns an access token that is valid for at least the
// refresh skew. A valid record costs one read lock and no network call.
// Concurrent callers that find the record expired share a single refresh.
func (m *Manager) AcquireValidToken(ctx context.Context) (string, error) {
	m.mu.RLock()
	rec := m.record
	m.mu.RUnlock()

	if rec == nil {
		return "", errors.Wrap(bridgeerrors.ErrNoCredentials, "[Manager.AcquireValidToken]")
	}
	if rec.IsValid(m.nowFunc(), m.skew) {
		return rec.AccessToken, nil
	}
	if !rec.Refreshable() || m.refresher == nil {
		return "", errors.Wrapf(bridgeerrors.ErrCredentialsExpired, "[Manager.AcquireValidToken] %s token", rec.Type)
	}

	v, err, shared := m.flight.Do("refresh", func() (any, error) {
		return m.refresh(ctx)
	})
	if err != nil {
		return "", err
	}
	m.logger.Debug().Bool("shared", shared).Msg("refresh finished")
	return v.(string), nil
}

func (m *Manager) refresh(ctx context.Context) (string, error) {
	m.mu.RLock()
	current := m.record
	m.mu.RUnlock()

	// A flight that finished just before this one started may already have done the work.
	if current == nil {
		return "", errors.Wrap(bridgeerrors.ErrReauthorizationRequired, "[Manager.refresh] record was cleared")
	}
	if current.IsValid(m.nowFunc(), m.skew) {
		return current.AccessToken, nil
	}

	next, err := m.refresher.Refresh(ctx, *current)
	switch {
	case errors.Is(err, bridgeerrors.ErrReauthorizationRequired):
		m.metrics.RecordRefresh("reauthorize")
		m.logger.Warn().Msg("refresh token rejected, clearing stored credentials")
		m.mu.Lock()
		if m.record == current {
			m.record = nil
			m.dirty = true
		}
		m.mu.Unlock()
		return "", err
	case err != nil:
		m.metrics.RecordRefresh("failed")
		return "", errors.Wrap(err, "[Manager.refresh]")
	}

	m.metrics.RecordRefresh("ok")
	m.mu.Lock()
	next.Version = m.version
	m.record = &next
	m.dirty = true
	m.mu.Unlock()

	m.logger.Info().Object("token", next).Msg("token replaced after refresh")
	return next.AccessToken, nil
}

// Load replaces the in-memory record with the stored one. A store without a
// record leaves the manager empty.
func (m *Manager) Load(ctx context.Context) error {
	if m.store == nil {
		return errors.New("[Manager.Load] no store configured")
	}
	rec, err := m.store.Load(ctx)
	if errors.Is(err, store.ErrNotFound) {
		m.mu.Lock()
		m.record, m.version, m.dirty = nil, 0, false
		m.mu.Unlock()
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "[Manager.Load]")
	}
	if err := rec.Validate(); err != nil {
		return errors.Wrap(err, "[Manager.Load] stored record")
	}

	m.mu.Lock()
	m.record, m.version, m.dirty = &rec, rec.Version, false
	m.mu.Unlock()
	return nil
}

// Persist writes the record back when it changed since Load. A cleared record
// is deleted. store.ErrVersionConflict means another writer got there first.
func (m *Manager) Persist(ctx context.Context) error {
	if m.store == nil {
		return errors.New("[Manager.Persist] no store configured")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.dirty {
		return nil
	}
	if m.record == nil {
		if err := m.checkVersionLocked(ctx); err != nil {
			return err
		}
		if err := m.store.Delete(ctx); err != nil {
			return errors.Wrap(err, "[Manager.Persist]")
		}
		m.version, m.dirty = 0, false
		return nil
	}

	toSave := *m.record
	toSave.Version = m.version
	saved, err := m.store.Save(ctx, toSave)
	if err != nil {
		return errors.Wrap(err, "[Manager.Persist]")
	}
	m.record.Version = saved.Version
	m.version, m.dirty = saved.Version, false
	return nil
}

func (m *Manager) checkVersionLocked(ctx context.Context) error {
	stored, err := m.store.Load(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "[Manager.Persist]")
	}
	if stored.Version != m.version {
		return errors.Wrap(store.ErrVersionConflict, "[Manager.Persist]")
	}
	return nil
}

// SetRecord installs a new record, e.g. from a completed authorization or a
// personal token.
func (m *Manager) SetRecord(rec token.Record) error {
	if err := rec.Validate(); err != nil {
		return errors.Wrap(err, "[Manager.SetRecord]")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	held := rec.Clone()
	held.Version = m.version
	m.record = &held
	m.dirty = true
	return nil
}

// Revoke clears the record and, with a store configured, deletes it there too.
func (m *Manager) Revoke(ctx context.Context) error {
	m.mu.Lock()
	m.record = nil
	m.dirty = true
	m.mu.Unlock()

	if m.store == nil {
		return nil
	}
	return m.Persist(ctx)
}

// Record returns a deep copy of the held record.
func (m *Manager) Record() (token.Record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.record == nil {
		return token.Record{}, false
	}
	return m.record.Clone(), true
}

// Dirty reports whether the record changed since it was loaded or persisted.
func (m *Manager) Dirty() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dirty
}
