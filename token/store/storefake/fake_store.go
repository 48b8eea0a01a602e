package storefake

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-workflow-bridge/token"
	"github.com/jrsteele09/go-workflow-bridge/token/store"
)

var _ store.Store = (*FakeStore)(nil)

// FakeStore keeps the record in memory. Saves and loads are counted so tests
// can assert on write-back behaviour.
type FakeStore struct {
	lock   sync.RWMutex
	record *token.Record
	saves  int
	loads  int
}

func New() *FakeStore {
	return &FakeStore{}
}

// NewWithRecord returns a store already holding rec at version 1.
func NewWithRecord(rec token.Record) *FakeStore {
	rec.Version = 1
	return &FakeStore{record: &rec}
}

func (fs *FakeStore) Load(_ context.Context) (token.Record, error) {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	fs.loads++
	if fs.record == nil {
		return token.Record{}, store.ErrNotFound
	}
	return *fs.record, nil
}

func (fs *FakeStore) Save(_ context.Context, rec token.Record) (token.Record, error) {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	var current int64
	if fs.record != nil {
		current = fs.record.Version
	}
	if rec.Version != current {
		return token.Record{}, store.ErrVersionConflict
	}
	rec.Version = current + 1
	fs.record = &rec
	fs.saves++
	return rec, nil
}

func (fs *FakeStore) Delete(_ context.Context) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	fs.record = nil
	return nil
}

func (fs *FakeStore) Saves() int {
	fs.lock.RLock()
	defer fs.lock.RUnlock()
	return fs.saves
}

func (fs *FakeStore) Loads() int {
	fs.lock.RLock()
	defer fs.lock.RUnlock()
	return fs.loads
}
