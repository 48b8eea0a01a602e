package redisstore

import (
	"context"
	"encoding/json"

	"github.com/jrsteele09/go-workflow-bridge/token"
	"github.com/jrsteele09/go-workflow-bridge/token/store"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

var _ store.Store = (*RedisStore)(nil)

// RedisStore keeps the record as JSON under a single key. Saves run inside
// WATCH/MULTI so two writers racing on the same version cannot both win.
type RedisStore struct {
	client redis.UniversalClient
	key    string
}

func New(client redis.UniversalClient, key string) *RedisStore {
	return &RedisStore{client: client, key: key}
}

func (s *RedisStore) Load(ctx context.Context) (token.Record, error) {
	return s.get(ctx, s.client)
}

func (s *RedisStore) Save(ctx context.Context, rec token.Record) (token.Record, error) {
	var saved token.Record
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		var current int64
		existing, err := s.get(ctx, tx)
		switch {
		case err == nil:
			current = existing.Version
		case !errors.Is(err, store.ErrNotFound):
			return err
		}
		if rec.Version != current {
			return store.ErrVersionConflict
		}

		next := rec
		next.Version = current + 1
		payload, err := json.Marshal(next)
		if err != nil {
			return errors.Wrap(err, "[RedisStore.Save] marshal")
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, s.key, payload, 0)
			return nil
		})
		if err != nil {
			return err
		}
		saved = next
		return nil
	}, s.key)

	if errors.Is(err, redis.TxFailedErr) {
		return token.Record{}, store.ErrVersionConflict
	}
	if err != nil {
		return token.Record{}, errors.Wrap(err, "[RedisStore.Save]")
	}
	return saved, nil
}

func (s *RedisStore) Delete(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil && err != redis.Nil {
		return errors.Wrap(err, "[RedisStore.Delete]")
	}
	return nil
}

func (s *RedisStore) get(ctx context.Context, c redis.Cmdable) (token.Record, error) {
	raw, err := c.Get(ctx, s.key).Bytes()
	if err == redis.Nil {
		return token.Record{}, store.ErrNotFound
	}
	if err != nil {
		return token.Record{}, errors.Wrap(err, "[RedisStore.get]")
	}
	var rec token.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return token.Record{}, errors.Wrap(err, "[RedisStore.get] decode")
	}
	return rec, nil
}
