// Package backup implements the operator commands: backing up buckets and
// videos into vaults, reading vault inventories and deleting archives.
package backup

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/cuongbtq/vaulty/internal/domain"
	"github.com/cuongbtq/vaulty/internal/executor"
	"github.com/cuongbtq/vaulty/internal/initiator"
	"github.com/cuongbtq/vaulty/internal/ledger"
	"github.com/cuongbtq/vaulty/internal/listener"
	"github.com/cuongbtq/vaulty/internal/notifier"
	"github.com/cuongbtq/vaulty/internal/source"
	"github.com/cuongbtq/vaulty/internal/transfer"
	"github.com/google/uuid"
)

// Vaults is the archive service surface used by the commands
type Vaults interface {
	transfer.Archiver
	executor.VaultClient
	initiator.Vaults
	ListVaults(ctx context.Context) ([]domain.Vault, error)
	CreateVault(ctx context.Context, vault string) (string, error)
	ListJobs(ctx context.Context, vault string) ([]domain.JobDescription, error)
}

// Queues is the queue service surface used by the commands
type Queues interface {
	initiator.Queues
	listener.Queue
}

// Buckets is the object storage surface used by the commands
type Buckets interface {
	source.ObjectStore
	Exists(ctx context.Context, bucket string) (bool, error)
	EnsureBucket(ctx context.Context, bucket string) error
	PutFile(ctx context.Context, bucket, key, path string) error
	Download(ctx context.Context, bucket, key, path string) error
}

// Ledgers opens named ledgers
type Ledgers interface {
	Open(ctx context.Context, name string) (ledger.Store, error)
}

// VideoCatalog lists and downloads the videos of one platform
type VideoCatalog interface {
	Each(ctx context.Context, fn func(source.Video) error) error
	Download(ctx context.Context, v source.Video) (*source.Spool, error)
}

// Deps are the collaborators of a Service
type Deps struct {
	Vaults   Vaults
	Topics   initiator.Topics
	Queues   Queues
	Buckets  Buckets
	Ledgers  Ledgers
	Videos   func(ctx context.Context, platform string) (VideoCatalog, error)
	Notifier notifier.Notifier
}

// Options holds command settings
type Options struct {
	InventoriesBucket string
	BasePath          string
	TempDir           string
	Transfer          transfer.Options
	Listener          listener.Options
}

// Service runs the commands
type Service struct {
	deps      Deps
	opts      Options
	initiator *initiator.Initiator
	logger    *slog.Logger

	now   func() time.Time
	newID func() string
}

// NewService creates a Service
func NewService(deps Deps, opts Options, logger *slog.Logger) *Service {
	if deps.Notifier == nil {
		deps.Notifier = notifier.Nop{}
	}
	if opts.BasePath == "" {
		opts.BasePath = "."
	}

	return &Service{
		deps:      deps,
		opts:      opts,
		initiator: initiator.New(deps.Vaults, deps.Topics, deps.Queues, logger),
		logger:    logger,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// run wraps a command with start and completion events
func (s *Service) run(ctx context.Context, command, vault string, fn func(ctx context.Context) (string, error)) error {
	runID := s.newID()
	logger := s.logger.With(slog.String("run_id", runID), slog.String("command", command))

	s.notify(ctx, logger, notifier.Event{Kind: notifier.KindStarted, Command: command, Vault: vault, RunID: runID})

	start := s.now()
	summary, err := fn(ctx)
	if err != nil {
		summary = "failed: " + err.Error()
	}

	logger.Info("Command finished",
		slog.String("vault", vault),
		slog.String("summary", summary),
		slog.Duration("duration", s.now().Sub(start)),
	)
	s.notify(ctx, logger, notifier.Event{Kind: notifier.KindCompleted, Command: command, Vault: vault, RunID: runID, Summary: summary})

	return err
}

func (s *Service) notify(ctx context.Context, logger *slog.Logger, ev notifier.Event) {
	ev.Time = s.now().UTC()
	if err := s.deps.Notifier.Notify(ctx, ev); err != nil {
		logger.Warn("Failed to send notification",
			slog.String("kind", string(ev.Kind)),
			slog.String("error", err.Error()),
		)
	}
}

func (s *Service) vaultExists(ctx context.Context, vault string) (bool, error) {
	vaults, err := s.deps.Vaults.ListVaults(ctx)
	if err != nil {
		return false, err
	}
	for _, v := range vaults {
		if v.Name == vault {
			return true, nil
		}
	}
	return false, nil
}

func (s *Service) ensureVault(ctx context.Context, vault string) error {
	ok, err := s.vaultExists(ctx, vault)
	if err != nil || ok {
		return err
	}

	location, err := s.deps.Vaults.CreateVault(ctx, vault)
	if err != nil {
		return err
	}
	s.logger.Info("Vault created",
		slog.String("vault", vault),
		slog.String("location", location),
	)
	return nil
}

// writeSnapshot dumps a ledger into a JSON file under the base path
func (s *Service) writeSnapshot(ctx context.Context, store ledger.Store, name, file string) (string, error) {
	path := filepath.Join(s.opts.BasePath, file)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create snapshot %s: %w", path, err)
	}

	n, err := ledger.WriteSnapshot(ctx, store, name, f)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return "", fmt.Errorf("failed to write snapshot %s: %w", path, err)
	}

	s.logger.Info("Snapshot written",
		slog.String("path", path),
		slog.Int("entries", n),
	)
	return path, nil
}

// ListVaults returns every vault of the account
func (s *Service) ListVaults(ctx context.Context) ([]domain.Vault, error) {
	return s.deps.Vaults.ListVaults(ctx)
}

// ListJobs returns the jobs of a vault
func (s *Service) ListJobs(ctx context.Context, vault string) ([]domain.JobDescription, error) {
	return s.deps.Vaults.ListJobs(ctx, vault)
}

// GetJobOutput copies the output of a finished job to w
func (s *Service) GetJobOutput(ctx context.Context, vault, jobID string, w io.Writer) error {
	body, err := s.deps.Vaults.GetJobOutput(ctx, vault, jobID)
	if err != nil {
		return err
	}
	defer body.Close()

	if _, err := io.Copy(w, body); err != nil {
		return fmt.Errorf("failed to read output of job %s: %w", jobID, err)
	}
	return nil
}
