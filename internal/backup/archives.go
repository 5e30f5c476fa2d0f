package backup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/cuongbtq/vaulty/internal/domain"
	"github.com/cuongbtq/vaulty/internal/executor"
	"github.com/cuongbtq/vaulty/internal/ledger"
	"github.com/cuongbtq/vaulty/internal/listener"
)

// ArchiveDeletion describes one delete-archives run
type ArchiveDeletion struct {
	Vault string
	// Logfile names a backup snapshot. Its archive ids are deleted directly,
	// without waiting for an inventory job.
	Logfile     string
	DeleteVault bool
}

// DeleteArchives deletes the archives of a vault, either those recorded in
// a backup snapshot or, without one, every archive listed by a fresh
// inventory
func (s *Service) DeleteArchives(ctx context.Context, req ArchiveDeletion) (executor.Report, error) {
	var report executor.Report

	err := s.run(ctx, "delete-archives", req.Vault, func(ctx context.Context) (string, error) {
		exec, err := executor.New(s.deps.Vaults, executor.Options{
			Mode:        executor.ModeDelete,
			DeleteVault: req.DeleteVault,
		}, s.logger)
		if err != nil {
			return "", err
		}

		if req.Logfile != "" {
			report, err = s.deleteFromLogfile(ctx, exec, req.Vault, req.Logfile)
		} else {
			handler := exec.Handler(req.Vault)
			err = s.awaitInventory(ctx, req.Vault, handler)
			report = handler.Report
		}
		return reportSummary(report), err
	})
	return report, err
}

func (s *Service) deleteFromLogfile(ctx context.Context, exec *executor.Executor, vault, logfile string) (executor.Report, error) {
	path := logfile
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.opts.BasePath, logfile)
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		s.logger.Info("Fetching logfile from inventories bucket",
			slog.String("bucket", s.opts.InventoriesBucket),
			slog.String("logfile", logfile),
		)
		if err := s.deps.Buckets.Download(ctx, s.opts.InventoriesBucket, filepath.Base(logfile), path); err != nil {
			return executor.Report{}, err
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return executor.Report{}, fmt.Errorf("failed to open logfile: %w", err)
	}
	defer f.Close()

	snap, err := ledger.ReadSnapshot(f)
	if err != nil {
		return executor.Report{}, err
	}

	return exec.DeleteArchives(ctx, vault, snap.ArchiveIDs()), nil
}

// Inventory records every archive of a vault in the "<vault>_inventory"
// ledger and writes it to "<vault>_inventory.json" under the base path
func (s *Service) Inventory(ctx context.Context, vault string) (executor.Report, error) {
	var report executor.Report

	err := s.run(ctx, "get-vault-inventory", vault, func(ctx context.Context) (string, error) {
		name := vault + "_inventory"
		store, err := s.deps.Ledgers.Open(ctx, name)
		if err != nil {
			return "", err
		}
		defer store.Close()

		exec, err := executor.New(s.deps.Vaults, executor.Options{
			Mode:    executor.ModeInventory,
			Records: store,
		}, s.logger)
		if err != nil {
			return "", err
		}

		handler := exec.Handler(vault)
		err = s.awaitInventory(ctx, vault, handler)
		report = handler.Report
		if err != nil {
			return "", err
		}

		if _, err := s.writeSnapshot(ctx, store, name, name+".json"); err != nil {
			return "", err
		}
		return reportSummary(report), nil
	})
	return report, err
}

// awaitInventory starts an inventory job and blocks until its notification
// was handled
func (s *Service) awaitInventory(ctx context.Context, vault string, handler listener.Handler) error {
	path, err := s.initiator.PrepareNotificationPath(ctx, vault)
	if err != nil {
		return err
	}

	jobID, err := s.initiator.InitiateJob(ctx, vault, domain.JobParameters{
		Type:   domain.JobTypeInventoryRetrieval,
		Format: domain.JobFormatJSON,
	})
	if err != nil {
		return err
	}

	opts := s.opts.Listener
	opts.JobID = jobID
	l := listener.New(s.deps.Queues, opts, s.logger)

	return l.WaitForOne(ctx, path.QueueURL, handler)
}

func reportSummary(r executor.Report) string {
	s := fmt.Sprintf("%d archives: %d deleted, %d recorded, %d skipped, %d failed",
		r.Total, r.Deleted, r.Recorded, r.Skipped, r.Failed)
	if r.VaultDeleted {
		s += ", vault deleted"
	}
	return s
}
