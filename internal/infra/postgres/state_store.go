package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// StateStore keeps resumable quiz state in the quiz_state table, one row per
// prefix + key.
type StateStore struct {
	pool   *pgxpool.Pool
	prefix string
}

func NewStateStore(pool *pgxpool.Pool, prefix string) *StateStore {
	return &StateStore{pool: pool, prefix: prefix}
}

func (s *StateStore) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.pool.QueryRow(ctx, `SELECT value FROM quiz_state WHERE key=$1`, s.prefix+key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("load state %s: %w", key, err)
	}
	return value, true, nil
}

func (s *StateStore) Set(ctx context.Context, key, value string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO quiz_state (key, value, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value=EXCLUDED.value, updated_at=EXCLUDED.updated_at`, s.prefix+key, value)
	if err != nil {
		return fmt.Errorf("save state %s: %w", key, err)
	}
	return nil
}

func (s *StateStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.prefix + k
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM quiz_state WHERE key = ANY($1)`, full); err != nil {
		return fmt.Errorf("delete state: %w", err)
	}
	return nil
}
