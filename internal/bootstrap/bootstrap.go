// Package bootstrap builds the long-lived clients shared by the binaries
// from a loaded configuration.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/vaulty/internal/config"
	"github.com/cuongbtq/vaulty/internal/ledger"
	"github.com/cuongbtq/vaulty/internal/notifier"
	"github.com/cuongbtq/vaulty/shared/logger"
	"github.com/cuongbtq/vaulty/shared/postgresql"
	"github.com/cuongbtq/vaulty/shared/rabbitmq"
	"github.com/cuongbtq/vaulty/shared/redis"
	"github.com/dgraph-io/badger/v3"
)

// InitLogger initializes and configures the application logger
func InitLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	})
}

// Ledgers is an Opener together with the backend connections it uses
type Ledgers struct {
	*ledger.Opener

	health  func(ctx context.Context) error
	closers []func() error
}

// OpenLedgers connects to the configured ledger backend. readOnly opens an
// embedded database without taking the writer lock.
func OpenLedgers(ctx context.Context, cfg *config.LedgerConfig, readOnly bool, log *slog.Logger) (*Ledgers, error) {
	l := &Ledgers{}
	var backends ledger.Backends

	switch cfg.Backend {
	case config.LedgerBackendPostgres:
		db, err := postgresql.NewClient(ctx, &postgresql.Config{
			Host:            cfg.Database.Host,
			Port:            cfg.Database.Port,
			User:            cfg.Database.User,
			Password:        cfg.Database.Password,
			Database:        cfg.Database.Database,
			SSLMode:         cfg.Database.SSLMode,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		}, log)
		if err != nil {
			return nil, err
		}
		backends.DB = db.GetDB()
		l.health = db.HealthCheck
		l.closers = append(l.closers, db.Close)

	case config.LedgerBackendRedis:
		rdb, err := redis.NewClient(ctx, &redis.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, log)
		if err != nil {
			return nil, err
		}
		backends.Redis = rdb
		l.health = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
		l.closers = append(l.closers, rdb.Close)

	case config.LedgerBackendBadger:
		opts := badger.DefaultOptions(cfg.BadgerDir).
			WithLogger(nil).
			WithReadOnly(readOnly)
		kv, err := badger.Open(opts)
		if err != nil {
			return nil, fmt.Errorf("failed to open badger ledger at %s: %w", cfg.BadgerDir, err)
		}
		backends.Badger = kv
		log.Info("Badger ledger opened",
			slog.String("dir", cfg.BadgerDir),
			slog.Bool("read_only", readOnly),
		)
	}

	opener, err := ledger.NewOpener(cfg, backends, log)
	if err != nil {
		if backends.Badger != nil {
			backends.Badger.Close()
		}
		l.Close()
		return nil, err
	}
	l.Opener = opener
	return l, nil
}

// HealthCheck pings the backend server, if there is one
func (l *Ledgers) HealthCheck(ctx context.Context) error {
	if l.health == nil {
		return nil
	}
	return l.health(ctx)
}

// Close releases the embedded database and every connection
func (l *Ledgers) Close() error {
	var errs []error
	if l.Opener != nil {
		errs = append(errs, l.Opener.Close())
	}
	for _, c := range l.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

// InitNotifier combines the enabled notification channels. The returned
// close function releases the broker connection.
func InitNotifier(ctx context.Context, cfg *config.Config, log *slog.Logger) (notifier.Notifier, func() error, error) {
	var (
		channels notifier.Multi
		closer   = func() error { return nil }
	)

	if cfg.Mail.Enabled() {
		channels = append(channels, notifier.NewEmailNotifier(notifier.MailSettings{
			Host:     cfg.Mail.Host,
			Port:     cfg.Mail.Port,
			Sender:   cfg.Mail.Sender,
			Receiver: cfg.Mail.Receiver,
			Password: cfg.Mail.Password,
		}))
		log.Info("Mail notifications enabled", slog.String("receiver", cfg.Mail.Receiver))
	}

	if cfg.RabbitMQ.Enabled {
		client, err := InitRabbitMQ(ctx, &cfg.RabbitMQ, log)
		if err != nil {
			return nil, nil, err
		}
		channels = append(channels, notifier.NewAMQPNotifier(client))
		closer = client.Close
	}

	if len(channels) == 0 {
		return notifier.Nop{}, closer, nil
	}
	return channels, closer, nil
}

// InitRabbitMQ initializes the RabbitMQ client
func InitRabbitMQ(ctx context.Context, cfg *config.RabbitMQConfig, log *slog.Logger) (*rabbitmq.Client, error) {
	return rabbitmq.NewClient(ctx, &rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		QueueName:          cfg.Queue.Name,
		QueueDurable:       cfg.Queue.Durable,
		QueueAutoDelete:    cfg.Queue.AutoDelete,
		QueueExclusive:     cfg.Queue.Exclusive,
		RoutingKey:         cfg.RoutingKey,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		ConnectionTimeout:  cfg.Connection.ConnectionTimeout,
	}, log)
}
