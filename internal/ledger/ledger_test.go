package ledger

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/cuongbtq/vaulty/internal/config"
	"github.com/cuongbtq/vaulty/internal/domain"
	"github.com/cuongbtq/vaulty/shared/logger"
	"github.com/dgraph-io/badger/v3"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBadgerDB(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client
}

// stores returns every backend that can run without external services
func stores(t *testing.T) map[string]func() Store {
	return map[string]func() Store{
		"memory": func() Store { return NewMemoryStore() },
		"redis": func() Store {
			return NewRedisStore(newRedisClient(t), "vaulty:ledger", "test_vault")
		},
		"badger": func() Store {
			return NewBadgerStore(newBadgerDB(t), "test_vault", false)
		},
	}
}

func TestStore_Contract(t *testing.T) {
	ctx := context.Background()

	for name, newStore := range stores(t) {
		t.Run(name, func(t *testing.T) {
			t.Run("missing entry", func(t *testing.T) {
				s := newStore()

				_, err := s.Get(ctx, "nope")
				assert.ErrorIs(t, err, domain.ErrEntryNotFound)

				ok, err := Has(ctx, s, "nope")
				require.NoError(t, err)
				assert.False(t, ok)
			})

			t.Run("attempts do not count as success", func(t *testing.T) {
				s := newStore()

				require.NoError(t, s.RecordAttempt(ctx, "k1", "photos/a.jpg"))
				require.NoError(t, s.RecordAttempt(ctx, "k1", ""))

				e, err := s.Get(ctx, "k1")
				require.NoError(t, err)
				assert.Equal(t, 2, e.Attempts)
				assert.Equal(t, "photos/a.jpg", e.Source)
				assert.False(t, e.Succeeded())

				ok, err := Has(ctx, s, "k1")
				require.NoError(t, err)
				assert.False(t, ok)
			})

			t.Run("success recorded at most once", func(t *testing.T) {
				s := newStore()
				require.NoError(t, s.RecordAttempt(ctx, "k1", "photos/a.jpg"))

				first := domain.Outcome{ArchiveID: "archive-1", Checksum: "c1"}
				require.NoError(t, s.PutSuccess(ctx, "k1", first))

				err := s.PutSuccess(ctx, "k1", domain.Outcome{ArchiveID: "archive-2"})
				assert.ErrorIs(t, err, domain.ErrAlreadyTransferred)

				e, err := s.Get(ctx, "k1")
				require.NoError(t, err)
				require.True(t, e.Succeeded())
				assert.Equal(t, "archive-1", e.Response.ArchiveID)
				assert.Equal(t, "c1", e.Response.Checksum)
				assert.False(t, e.Response.RecordedAt.IsZero())
				assert.Equal(t, 1, e.Attempts)
				assert.Equal(t, "photos/a.jpg", e.Source)
			})

			t.Run("success without prior attempt", func(t *testing.T) {
				s := newStore()
				require.NoError(t, s.PutSuccess(ctx, "a1", domain.Outcome{ArchiveID: "a1", Size: 42}))

				ok, err := Has(ctx, s, "a1")
				require.NoError(t, err)
				assert.True(t, ok)
			})

			t.Run("list pages in key order", func(t *testing.T) {
				s := newStore()
				for _, k := range []string{"c", "a", "e", "b", "d"} {
					require.NoError(t, s.RecordAttempt(ctx, k, "src-"+k))
				}

				page, err := s.List(ctx, "", 2)
				require.NoError(t, err)
				require.Len(t, page, 2)
				assert.Equal(t, "a", page[0].Key)
				assert.Equal(t, "b", page[1].Key)

				page, err = s.List(ctx, "b", 10)
				require.NoError(t, err)
				require.Len(t, page, 3)
				assert.Equal(t, []string{"c", "d", "e"}, []string{page[0].Key, page[1].Key, page[2].Key})

				page, err = s.List(ctx, "e", 10)
				require.NoError(t, err)
				assert.Empty(t, page)
			})

			require.NoError(t, newStore().Close())
		})
	}
}

func TestBadgerStore_LedgersAreIsolated(t *testing.T) {
	ctx := context.Background()
	db := newBadgerDB(t)

	a := NewBadgerStore(db, "vault_a", false)
	b := NewBadgerStore(db, "vault_b", false)

	require.NoError(t, a.PutSuccess(ctx, "k", domain.Outcome{ArchiveID: "x"}))

	_, err := b.Get(ctx, "k")
	assert.ErrorIs(t, err, domain.ErrEntryNotFound)

	entries, err := b.List(ctx, "", 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestAll(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	for i := 0; i < 1203; i++ {
		require.NoError(t, s.RecordAttempt(ctx, fmt.Sprintf("key-%05d", i), ""))
	}

	entries, err := All(ctx, s)
	require.NoError(t, err)
	assert.Len(t, entries, 1203)
	assert.Equal(t, "key-00000", entries[0].Key)
	assert.Equal(t, "key-01202", entries[1202].Key)
}

func TestSnapshot_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.RecordAttempt(ctx, "k2", "b.txt"))
	require.NoError(t, s.PutSuccess(ctx, "k2", domain.Outcome{ArchiveID: "arch-2"}))
	require.NoError(t, s.RecordAttempt(ctx, "k1", "a.txt"))
	require.NoError(t, s.PutSuccess(ctx, "k1", domain.Outcome{ArchiveID: "arch-1"}))
	require.NoError(t, s.RecordAttempt(ctx, "k3", "c.txt")) // failed item

	var buf bytes.Buffer
	n, err := WriteSnapshot(ctx, s, "photos_s3bucket_backup_12345", &buf)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	snap, err := ReadSnapshot(&buf)
	require.NoError(t, err)
	assert.Equal(t, "photos_s3bucket_backup_12345", snap.Ledger)
	assert.WithinDuration(t, time.Now(), snap.CreatedAt, time.Minute)
	assert.Equal(t, []string{"arch-1", "arch-2"}, snap.ArchiveIDs())

	restored := NewMemoryStoreFrom(snap.Entries)
	ok, err := Has(ctx, restored, "k1")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = Has(ctx, restored, "k3")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReadSnapshot_Malformed(t *testing.T) {
	_, err := ReadSnapshot(bytes.NewBufferString("{not json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read ledger snapshot")
}

func TestOpener(t *testing.T) {
	ctx := context.Background()
	log := logger.Discard()

	t.Run("memory ledgers are reused by name", func(t *testing.T) {
		o, err := NewOpener(&config.LedgerConfig{Backend: config.LedgerBackendMemory}, Backends{}, log)
		require.NoError(t, err)

		a, err := o.Open(ctx, "vault")
		require.NoError(t, err)
		require.NoError(t, a.PutSuccess(ctx, "k", domain.Outcome{ArchiveID: "x"}))

		b, err := o.Open(ctx, "vault")
		require.NoError(t, err)
		ok, err := Has(ctx, b, "k")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.NoError(t, o.Close())
	})

	t.Run("redis backend", func(t *testing.T) {
		o, err := NewOpener(&config.LedgerConfig{Backend: config.LedgerBackendRedis}, Backends{Redis: newRedisClient(t)}, log)
		require.NoError(t, err)

		s, err := o.Open(ctx, "vault")
		require.NoError(t, err)
		assert.IsType(t, &RedisStore{}, s)
	})

	t.Run("badger backend", func(t *testing.T) {
		o, err := NewOpener(&config.LedgerConfig{Backend: config.LedgerBackendBadger}, Backends{Badger: newBadgerDB(t)}, log)
		require.NoError(t, err)

		s, err := o.Open(ctx, "vault")
		require.NoError(t, err)
		assert.IsType(t, &BadgerStore{}, s)
	})

	t.Run("missing client", func(t *testing.T) {
		for _, backend := range []string{config.LedgerBackendPostgres, config.LedgerBackendRedis, config.LedgerBackendBadger} {
			_, err := NewOpener(&config.LedgerConfig{Backend: backend}, Backends{}, log)
			assert.Error(t, err, backend)
		}
	})

	t.Run("unknown backend", func(t *testing.T) {
		_, err := NewOpener(&config.LedgerConfig{Backend: "sqlite"}, Backends{}, log)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown ledger backend")
	})
}
