// Package ledger records which items have been transferred to the archive
// service, so that re-running a backup skips everything already stored.
//
// A success is recorded at most once per key. There is no failed state: an
// item without a recorded success is eligible for upload on every run.
package ledger

import (
	"context"
	"errors"

	"github.com/cuongbtq/vaulty/internal/domain"
)

// Store persists ledger entries. Implementations must make PutSuccess
// atomic with respect to its own "already succeeded" check.
type Store interface {
	// Get returns the entry for key or domain.ErrEntryNotFound.
	Get(ctx context.Context, key string) (*domain.Entry, error)

	// PutSuccess records the outcome for key. It returns
	// domain.ErrAlreadyTransferred, leaving the stored outcome untouched,
	// when key already holds a success.
	PutSuccess(ctx context.Context, key string, outcome domain.Outcome) error

	// RecordAttempt counts one upload attempt for key.
	RecordAttempt(ctx context.Context, key, source string) error

	// List returns up to limit entries ordered by key, starting after afterKey.
	List(ctx context.Context, afterKey string, limit int) ([]domain.Entry, error)

	Close() error
}

// Has reports whether key holds a recorded success
func Has(ctx context.Context, s Store, key string) (bool, error) {
	entry, err := s.Get(ctx, key)
	if errors.Is(err, domain.ErrEntryNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return entry.Succeeded(), nil
}

// All pages through the whole store
func All(ctx context.Context, s Store) ([]domain.Entry, error) {
	const pageSize = 500

	var (
		entries []domain.Entry
		after   string
	)
	for {
		page, err := s.List(ctx, after, pageSize)
		if err != nil {
			return nil, err
		}
		entries = append(entries, page...)
		if len(page) < pageSize {
			return entries, nil
		}
		after = page[len(page)-1].Key
	}
}
