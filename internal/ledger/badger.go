package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cuongbtq/vaulty/internal/domain"
	"github.com/dgraph-io/badger/v3"
)

// BadgerStore keeps ledgers in an embedded key-value directory. Keys are
// stored as <ledger>/<key>.
type BadgerStore struct {
	db     *badger.DB
	prefix []byte
	owned  bool
}

var _ Store = (*BadgerStore)(nil)

// OpenBadger opens (or creates) the database directory
func OpenBadger(dir string) (*badger.DB, error) {
	db, err := badger.Open(badger.DefaultOptions(dir).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("failed to open badger ledger at %s: %w", dir, err)
	}
	return db, nil
}

// NewBadgerStore returns a store for one ledger inside db. When owned is
// true, Close closes db.
func NewBadgerStore(db *badger.DB, ledger string, owned bool) *BadgerStore {
	return &BadgerStore{
		db:     db,
		prefix: []byte(ledger + "/"),
		owned:  owned,
	}
}

func (s *BadgerStore) key(k string) []byte {
	return append(append([]byte{}, s.prefix...), k...)
}

func (s *BadgerStore) read(txn *badger.Txn, key string) (*domain.Entry, error) {
	item, err := txn.Get(s.key(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, domain.ErrEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger entry: %w", err)
	}

	raw, err := item.ValueCopy(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger entry: %w", err)
	}

	var e domain.Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("failed to decode ledger entry %s: %w", key, err)
	}
	return &e, nil
}

func (s *BadgerStore) write(txn *badger.Txn, e *domain.Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal ledger entry: %w", err)
	}
	return txn.Set(s.key(e.Key), data)
}

func (s *BadgerStore) Get(_ context.Context, key string) (*domain.Entry, error) {
	var e *domain.Entry
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		e, err = s.read(txn, key)
		return err
	})
	return e, err
}

func (s *BadgerStore) PutSuccess(_ context.Context, key string, outcome domain.Outcome) error {
	if outcome.RecordedAt.IsZero() {
		outcome.RecordedAt = time.Now().UTC()
	}

	return s.db.Update(func(txn *badger.Txn) error {
		e, err := s.read(txn, key)
		if errors.Is(err, domain.ErrEntryNotFound) {
			e = &domain.Entry{Key: key}
		} else if err != nil {
			return err
		}
		if e.Succeeded() {
			return domain.ErrAlreadyTransferred
		}
		e.Response = &outcome
		return s.write(txn, e)
	})
}

func (s *BadgerStore) RecordAttempt(_ context.Context, key, source string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		e, err := s.read(txn, key)
		if errors.Is(err, domain.ErrEntryNotFound) {
			e = &domain.Entry{Key: key}
		} else if err != nil {
			return err
		}
		if source != "" {
			e.Source = source
		}
		e.Attempts++
		return s.write(txn, e)
	})
}

func (s *BadgerStore) List(_ context.Context, afterKey string, limit int) ([]domain.Entry, error) {
	var entries []domain.Entry

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		start := s.prefix
		if afterKey != "" {
			// first key strictly greater than afterKey
			start = append(s.key(afterKey), 0)
		}

		for it.Seek(start); it.ValidForPrefix(s.prefix); it.Next() {
			if limit > 0 && len(entries) >= limit {
				break
			}

			raw, err := it.Item().ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("failed to read ledger entry: %w", err)
			}

			var e domain.Entry
			if err := json.Unmarshal(raw, &e); err != nil {
				return fmt.Errorf("failed to decode ledger entry: %w", err)
			}
			entries = append(entries, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *BadgerStore) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}
