package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// StateStore keeps resumable quiz state in Redis so several processes (or a
// restarted one) see the same answers, index and end time.
// Keys are stored as prefix + key, e.g. "quiz-runner:42:quiz_7_answers".
type StateStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewStateStore builds a store. ttl <= 0 keeps keys until deleted.
func NewStateStore(client *redis.Client, prefix string, ttl time.Duration) *StateStore {
	if ttl < 0 {
		ttl = 0
	}
	return &StateStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *StateStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, s.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *StateStore) Set(ctx context.Context, key, value string) error {
	return s.client.Set(ctx, s.prefix+key, value, s.ttl).Err()
}

func (s *StateStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.prefix + k
	}
	return s.client.Del(ctx, full...).Err()
}
