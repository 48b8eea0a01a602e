package store

import (
	"context"

	"github.com/jrsteele09/go-workflow-bridge/token"
	"github.com/pkg/errors"
)

var (
	ErrNotFound        = errors.New("token record not found")
	ErrVersionConflict = errors.New("token record was changed by another writer")
)

// Store persists a single token record. Save compares rec.Version with the
// stored version (zero when nothing is stored) and returns ErrVersionConflict
// on mismatch; on success the returned record carries the bumped version.
type Store interface {
	Load(ctx context.Context) (token.Record, error)
	Save(ctx context.Context, rec token.Record) (token.Record, error)
	Delete(ctx context.Context) error
}
