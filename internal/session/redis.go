package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"recibos/pkg/platform/sentinel"
)

const keyPrefix = "conv:"

// RedisStore keeps each session as JSON under conv:<phone> with a sliding
// TTL. Save runs inside WATCH so a concurrent write aborts the transaction.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedis(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Load(ctx context.Context, phone string) (*Session, error) {
	data, err := s.client.Get(ctx, keyPrefix+phone).Bytes()
	if errors.Is(err, redis.Nil) {
		return New(phone), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &sess, nil
}

func (s *RedisStore) Save(ctx context.Context, sess *Session) error {
	key := keyPrefix + sess.Phone
	saved := *sess
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := currentVersion(ctx, tx, key)
		if err != nil {
			return err
		}
		if current != sess.Version {
			return sentinel.ErrConflict
		}
		saved.Version = current + 1
		saved.UpdatedAt = time.Now().UTC()
		data, err := json.Marshal(saved)
		if err != nil {
			return fmt.Errorf("encode session: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttl)
			return nil
		})
		return err
	}, key)
	switch {
	case errors.Is(err, redis.TxFailedErr):
		return sentinel.ErrConflict
	case errors.Is(err, sentinel.ErrConflict):
		return err
	case err != nil:
		return fmt.Errorf("save session: %w", err)
	}
	sess.Version = saved.Version
	sess.UpdatedAt = saved.UpdatedAt
	return nil
}

func currentVersion(ctx context.Context, tx *redis.Tx, key string) (int64, error) {
	data, err := tx.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read session: %w", err)
	}
	var stored struct {
		Version int64 `json:"version"`
	}
	if err := json.Unmarshal(data, &stored); err != nil {
		return 0, fmt.Errorf("decode session: %w", err)
	}
	return stored.Version, nil
}
