package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/cuongbtq/vaulty/internal/domain"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps one ledger as a Redis hash of key -> entry document
type RedisStore struct {
	client *redis.Client
	hash   string
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore returns a store backed by the hash <prefix>:<ledger>
func NewRedisStore(client *redis.Client, prefix, ledger string) *RedisStore {
	return &RedisStore{
		client: client,
		hash:   prefix + ":" + ledger,
	}
}

func (s *RedisStore) Get(ctx context.Context, key string) (*domain.Entry, error) {
	return s.get(ctx, s.client, key)
}

func (s *RedisStore) get(ctx context.Context, c redis.Cmdable, key string) (*domain.Entry, error) {
	raw, err := c.HGet(ctx, s.hash, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger entry: %w", err)
	}

	var e domain.Entry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return nil, fmt.Errorf("failed to decode ledger entry %s: %w", key, err)
	}
	return &e, nil
}

// update runs a WATCHed read-modify-write of one entry
func (s *RedisStore) update(ctx context.Context, key string, mutate func(e *domain.Entry) error) error {
	return s.client.Watch(ctx, func(tx *redis.Tx) error {
		e, err := s.get(ctx, tx, key)
		if errors.Is(err, domain.ErrEntryNotFound) {
			e = &domain.Entry{Key: key}
		} else if err != nil {
			return err
		}

		if err := mutate(e); err != nil {
			return err
		}

		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("failed to marshal ledger entry: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.HSet(ctx, s.hash, key, data)
			return nil
		})
		return err
	}, s.hash)
}

func (s *RedisStore) PutSuccess(ctx context.Context, key string, outcome domain.Outcome) error {
	if outcome.RecordedAt.IsZero() {
		outcome.RecordedAt = time.Now().UTC()
	}

	err := s.update(ctx, key, func(e *domain.Entry) error {
		if e.Succeeded() {
			return domain.ErrAlreadyTransferred
		}
		e.Response = &outcome
		return nil
	})
	if err != nil && !errors.Is(err, domain.ErrAlreadyTransferred) {
		return fmt.Errorf("failed to record ledger success: %w", err)
	}
	return err
}

func (s *RedisStore) RecordAttempt(ctx context.Context, key, source string) error {
	err := s.update(ctx, key, func(e *domain.Entry) error {
		if source != "" {
			e.Source = source
		}
		e.Attempts++
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record ledger attempt: %w", err)
	}
	return nil
}

// List sorts the hash keys client-side; ledgers hold one vault's items.
func (s *RedisStore) List(ctx context.Context, afterKey string, limit int) ([]domain.Entry, error) {
	keys, err := s.client.HKeys(ctx, s.hash).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger keys: %w", err)
	}

	selected := keys[:0]
	for _, k := range keys {
		if k > afterKey {
			selected = append(selected, k)
		}
	}
	sort.Strings(selected)
	if limit > 0 && len(selected) > limit {
		selected = selected[:limit]
	}
	if len(selected) == 0 {
		return nil, nil
	}

	values, err := s.client.HMGet(ctx, s.hash, selected...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}

	entries := make([]domain.Entry, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue // removed between HKEYS and HMGET
		}
		var e domain.Entry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, fmt.Errorf("failed to decode ledger entry %s: %w", selected[i], err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Close is a no-op; the client is shared between ledgers
func (s *RedisStore) Close() error { return nil }
