package filestore

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/jrsteele09/go-workflow-bridge/token"
	"github.com/jrsteele09/go-workflow-bridge/token/store"
	"github.com/pkg/errors"
)

var _ store.Store = (*FileStore)(nil)

// FileStore keeps the record as one flat JSON object in a file. Writes go
// through a temp file and rename so a crash never leaves a half written record.
type FileStore struct {
	mu   sync.Mutex
	path string
}

func New(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Load(_ context.Context) (token.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

func (s *FileStore) Save(_ context.Context, rec token.Record) (token.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var current int64
	existing, err := s.read()
	switch {
	case err == nil:
		current = existing.Version
	case !errors.Is(err, store.ErrNotFound):
		return token.Record{}, err
	}
	if rec.Version != current {
		return token.Record{}, store.ErrVersionConflict
	}
	rec.Version = current + 1

	raw, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return token.Record{}, errors.Wrap(err, "[FileStore.Save] marshal")
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return token.Record{}, errors.Wrap(err, "[FileStore.Save] create dir")
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".token-*.json")
	if err != nil {
		return token.Record{}, errors.Wrap(err, "[FileStore.Save] create temp file")
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		return token.Record{}, errors.Wrap(err, "[FileStore.Save] write")
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return token.Record{}, errors.Wrap(err, "[FileStore.Save] chmod")
	}
	if err := tmp.Close(); err != nil {
		return token.Record{}, errors.Wrap(err, "[FileStore.Save] close")
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return token.Record{}, errors.Wrap(err, "[FileStore.Save] rename")
	}
	return rec, nil
}

func (s *FileStore) Delete(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "[FileStore.Delete]")
	}
	return nil
}

func (s *FileStore) read() (token.Record, error) {
	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return token.Record{}, store.ErrNotFound
	}
	if err != nil {
		return token.Record{}, errors.Wrap(err, "[FileStore.read]")
	}
	var rec token.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return token.Record{}, errors.Wrapf(err, "[FileStore.read] decode %s", s.path)
	}
	return rec, nil
}
