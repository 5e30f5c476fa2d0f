package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cuongbtq/vaulty/internal/backup"
	"github.com/cuongbtq/vaulty/internal/bootstrap"
	"github.com/cuongbtq/vaulty/internal/config"
	"github.com/cuongbtq/vaulty/internal/listener"
	"github.com/cuongbtq/vaulty/internal/source"
	"github.com/cuongbtq/vaulty/internal/transfer"
	awsx "github.com/cuongbtq/vaulty/shared/aws"
	"github.com/maruel/subcommands"
)

// Exit codes
const (
	exitOK = iota
	exitFailed
	exitUsage
)

// baseRun holds the flags every command accepts
type baseRun struct {
	subcommands.CommandRunBase

	configPath string
	basePath   string
}

func (r *baseRun) registerBaseFlags() {
	defaultConfigPath := os.Getenv("VAULTY_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/vaulty/config.yaml"
	}
	r.Flags.StringVar(&r.configPath, "config", defaultConfigPath, "Path to configuration file.")
	r.Flags.StringVar(&r.basePath, "base-path", "", "Directory for snapshots and logfiles. Overrides base_path from the config.")
}

func (r *baseRun) usageErr(a subcommands.Application, format string, args ...any) int {
	fmt.Fprintf(a.GetErr(), "vaulty: "+format+"\n", args...)
	return exitUsage
}

// env is everything a command needs once configuration is loaded
type env struct {
	cfg     *config.Config
	logger  *slog.Logger
	service *backup.Service
	close   func()
}

// setup loads configuration and connects every client. Failures here abort
// the command.
func (r *baseRun) setup(ctx context.Context) (*env, error) {
	cfg, err := config.Load(r.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg.ApplyEnv(os.LookupEnv)
	if r.basePath != "" {
		cfg.BasePath = r.basePath
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := bootstrap.InitLogger(&cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	log := appLogger.Logger

	var closers []func() error
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				log.Warn("Failed to release resource", slog.Any("error", err))
			}
		}
		appLogger.Close()
	}
	fail := func(err error) (*env, error) {
		closeAll()
		return nil, err
	}

	if err := os.MkdirAll(cfg.BasePath, 0o755); err != nil {
		return fail(fmt.Errorf("failed to create base path: %w", err))
	}

	clients, err := awsx.NewClients(ctx, &awsx.Config{
		Region:          cfg.AWS.Region,
		AccessKeyID:     cfg.AWS.AccessKeyID,
		SecretAccessKey: cfg.AWS.SecretAccessKey,
		Endpoint:        cfg.AWS.Endpoint,
	}, log)
	if err != nil {
		return fail(err)
	}

	ledgers, err := bootstrap.OpenLedgers(ctx, &cfg.Ledger, false, log)
	if err != nil {
		return fail(fmt.Errorf("failed to open ledgers: %w", err))
	}
	closers = append(closers, ledgers.Close)

	notify, closeNotifier, err := bootstrap.InitNotifier(ctx, cfg, log)
	if err != nil {
		return fail(fmt.Errorf("failed to initialize notifier: %w", err))
	}
	closers = append(closers, closeNotifier)

	videos := func(ctx context.Context, platform string) (backup.VideoCatalog, error) {
		p, err := cfg.VimeoPlatform(platform, os.LookupEnv)
		if err != nil {
			return nil, err
		}
		return source.NewVideoSource(ctx, source.VideoSourceOptions{
			BaseURL:           cfg.Vimeo.BaseURL,
			AccessToken:       p.AccessToken,
			PerPage:           cfg.Vimeo.PerPage,
			RequestsPerSecond: cfg.Vimeo.RequestsPerSecond,
		}, log), nil
	}

	service := backup.NewService(backup.Deps{
		Vaults:   clients.Vault,
		Topics:   clients.Topics,
		Queues:   clients.Queues,
		Buckets:  clients.Buckets,
		Ledgers:  ledgers,
		Videos:   videos,
		Notifier: notify,
	}, backup.Options{
		InventoriesBucket: cfg.InventoriesBucket,
		BasePath:          cfg.BasePath,
		Transfer: transfer.Options{
			MaxAttempts: cfg.Transfer.MaxAttempts,
			Backoff:     cfg.Transfer.Backoff,
		},
		Listener: listener.Options{
			PollInterval:         cfg.Listener.PollInterval,
			Timeout:              cfg.Listener.Timeout,
			WaitForMatchingJobID: cfg.Listener.WaitForMatchingJobID,
		},
	}, log)

	return &env{cfg: cfg, logger: log, service: service, close: closeAll}, nil
}

// execute runs fn with a context canceled on SIGINT or SIGTERM and turns
// its error into an exit code
func (r *baseRun) execute(a subcommands.Application, fn func(ctx context.Context, e *env) error) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	e, err := r.setup(ctx)
	if err != nil {
		fmt.Fprintf(a.GetErr(), "vaulty: %s\n", err)
		return exitFailed
	}
	defer e.close()

	if err := fn(ctx, e); err != nil {
		if errors.Is(err, context.Canceled) {
			e.logger.Warn("Interrupted")
		} else {
			e.logger.Error("Command failed", slog.Any("error", err))
		}
		return exitFailed
	}
	return exitOK
}
