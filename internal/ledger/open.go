package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cuongbtq/vaulty/internal/config"
	"github.com/dgraph-io/badger/v3"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
)

// Opener hands out stores for named ledgers on the configured backend. It
// owns the backend connection; Close releases it.
type Opener struct {
	backend string
	prefix  string
	db      *sqlx.DB
	rdb     *redis.Client
	kv      *badger.DB
	logger  *slog.Logger

	mu          sync.Mutex
	mem         map[string]*MemoryStore
	schemaReady bool
}

// Backends carries the already-connected clients an Opener may use
type Backends struct {
	DB     *sqlx.DB
	Redis  *redis.Client
	Badger *badger.DB
}

// NewOpener validates that the client needed by cfg.Backend is present
func NewOpener(cfg *config.LedgerConfig, b Backends, logger *slog.Logger) (*Opener, error) {
	o := &Opener{
		backend: cfg.Backend,
		prefix:  cfg.Redis.KeyPrefix,
		db:      b.DB,
		rdb:     b.Redis,
		kv:      b.Badger,
		logger:  logger,
		mem:     make(map[string]*MemoryStore),
	}

	switch cfg.Backend {
	case config.LedgerBackendMemory:
	case config.LedgerBackendPostgres:
		if b.DB == nil {
			return nil, fmt.Errorf("ledger backend %s needs a database connection", cfg.Backend)
		}
	case config.LedgerBackendRedis:
		if b.Redis == nil {
			return nil, fmt.Errorf("ledger backend %s needs a redis client", cfg.Backend)
		}
		if o.prefix == "" {
			o.prefix = "vaulty:ledger"
		}
	case config.LedgerBackendBadger:
		if b.Badger == nil {
			return nil, fmt.Errorf("ledger backend %s needs a badger database", cfg.Backend)
		}
	default:
		return nil, fmt.Errorf("unknown ledger backend: %q", cfg.Backend)
	}

	return o, nil
}

// Open returns the store for the ledger called name
func (o *Opener) Open(ctx context.Context, name string) (Store, error) {
	o.logger.Debug("Opening ledger",
		slog.String("ledger", name),
		slog.String("backend", o.backend),
	)

	switch o.backend {
	case config.LedgerBackendPostgres:
		if err := o.ensureSchema(ctx); err != nil {
			return nil, err
		}
		return NewPostgresStore(o.db, name, o.logger), nil
	case config.LedgerBackendRedis:
		return NewRedisStore(o.rdb, o.prefix, name), nil
	case config.LedgerBackendBadger:
		return NewBadgerStore(o.kv, name, false), nil
	default:
		o.mu.Lock()
		defer o.mu.Unlock()
		s, ok := o.mem[name]
		if !ok {
			s = NewMemoryStore()
			o.mem[name] = s
		}
		return s, nil
	}
}

// ensureSchema creates the postgres table on the first successful call only
func (o *Opener) ensureSchema(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.schemaReady {
		return nil
	}
	if err := CreatePostgresSchema(ctx, o.db); err != nil {
		return err
	}
	o.schemaReady = true
	return nil
}

// Close closes the embedded database, if any
func (o *Opener) Close() error {
	if o.kv != nil {
		return o.kv.Close()
	}
	return nil
}
