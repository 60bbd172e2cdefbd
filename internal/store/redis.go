package store

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// updateRetries bounds the optimistic WATCH/EXEC loop.
const updateRetries = 16

// RedisStore backs records with an external Redis instance ("cache" backend).
type RedisStore struct {
	client *redis.Client
}

var _ Store = (*RedisStore)(nil)

// NewRedis wraps an existing Redis client.
func NewRedis(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	return s.client.Set(ctx, key, value, 0).Err()
}

func (s *RedisStore) Delete(ctx context.Context, key string) (bool, error) {
	removed, err := s.client.Del(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return removed > 0, nil
}

// Update runs fn under WATCH so a concurrent write to the same key aborts
// the transaction and the read-modify-write is retried.
func (s *RedisStore) Update(ctx context.Context, key string, fn UpdateFunc) error {
	txn := func(tx *redis.Tx) error {
		old, err := tx.Get(ctx, key).Bytes()
		found := true
		if errors.Is(err, redis.Nil) {
			old, found, err = nil, false, nil
		}
		if err != nil {
			return err
		}

		next, err := fn(old, found)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, next, 0)
			return nil
		})
		return err
	}

	for i := 0; i < updateRetries; i++ {
		err := s.client.Watch(ctx, txn, key)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return ErrTooMuchContention
}
