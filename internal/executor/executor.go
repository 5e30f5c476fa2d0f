// Package executor acts on completed vault jobs: it deletes every archive of
// an inventory or records the inventory in a ledger.
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/cuongbtq/vaulty/internal/domain"
	"github.com/cuongbtq/vaulty/internal/ledger"
)

// Mode selects what happens to the archives of a finished inventory job
type Mode int

const (
	ModeDelete Mode = iota
	ModeInventory
)

func (m Mode) String() string {
	if m == ModeInventory {
		return "inventory"
	}
	return "delete"
}

// VaultClient is the archive service surface used by the executor
type VaultClient interface {
	GetJobOutput(ctx context.Context, vault, jobID string) (io.ReadCloser, error)
	DeleteArchive(ctx context.Context, vault, archiveID string) error
	DeleteVault(ctx context.Context, vault string) error
}

// Options configures an Executor
type Options struct {
	Mode Mode

	// Records receives one entry per archive in ModeInventory
	Records ledger.Store

	// DeleteVault removes the vault after a delete batch
	DeleteVault bool
}

// Report summarizes one executed job
type Report struct {
	JobID        string
	Total        int
	Deleted      int
	Recorded     int
	Skipped      int
	Failed       int
	VaultDeleted bool
}

// Executor runs the configured operation over job results
type Executor struct {
	vaults VaultClient
	opts   Options
	logger *slog.Logger
}

// New creates an Executor. ModeInventory requires opts.Records.
func New(vaults VaultClient, opts Options, logger *slog.Logger) (*Executor, error) {
	if opts.Mode == ModeInventory && opts.Records == nil {
		return nil, errors.New("inventory mode needs a record store")
	}
	return &Executor{vaults: vaults, opts: opts, logger: logger}, nil
}

// OnJobComplete fetches the inventory produced by the notified job and runs
// the configured operation over its archive list
func (e *Executor) OnJobComplete(ctx context.Context, vault string, n domain.JobNotification) (Report, error) {
	report := Report{JobID: n.JobID}

	if n.StatusCode == domain.JobStatusFailed {
		return report, fmt.Errorf("job %s failed: %s", n.JobID, n.StatusMessage)
	}

	inv, err := e.fetchInventory(ctx, vault, n.JobID)
	if err != nil {
		return report, err
	}

	e.logger.Info("Inventory retrieved",
		slog.String("vault", vault),
		slog.String("job_id", n.JobID),
		slog.String("inventory_date", inv.InventoryDate),
		slog.Int("archives", len(inv.ArchiveList)),
		slog.String("mode", e.opts.Mode.String()),
	)

	switch e.opts.Mode {
	case ModeInventory:
		r := e.record(ctx, vault, inv.ArchiveList)
		r.JobID = n.JobID
		return r, nil
	default:
		ids := make([]string, 0, len(inv.ArchiveList))
		for _, item := range inv.ArchiveList {
			ids = append(ids, item.ArchiveID)
		}
		r := e.DeleteArchives(ctx, vault, ids)
		r.JobID = n.JobID
		return r, nil
	}
}

func (e *Executor) fetchInventory(ctx context.Context, vault, jobID string) (*domain.Inventory, error) {
	body, err := e.vaults.GetJobOutput(ctx, vault, jobID)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var inv domain.Inventory
	if err := json.NewDecoder(body).Decode(&inv); err != nil {
		return nil, fmt.Errorf("failed to decode inventory of job %s: %w", jobID, err)
	}
	return &inv, nil
}

// DeleteArchives deletes ids in order. A failed delete is logged and the
// batch continues. When configured, the vault is removed afterwards.
func (e *Executor) DeleteArchives(ctx context.Context, vault string, ids []string) Report {
	report := Report{Total: len(ids)}

	for i, id := range ids {
		if err := e.vaults.DeleteArchive(ctx, vault, id); err != nil {
			report.Failed++
			e.logger.Error("Failed to delete archive",
				slog.String("vault", vault),
				slog.String("archive_id", id),
				slog.String("error", err.Error()),
			)
			continue
		}

		report.Deleted++
		e.logger.Info("Archive deleted",
			slog.String("vault", vault),
			slog.String("archive_id", id),
			slog.Int("index", i+1),
			slog.Int("total", len(ids)),
		)
	}

	if e.opts.DeleteVault {
		if err := e.vaults.DeleteVault(ctx, vault); err != nil {
			e.logger.Error("Failed to delete vault",
				slog.String("vault", vault),
				slog.String("error", err.Error()),
			)
		} else {
			report.VaultDeleted = true
			e.logger.Info("Vault deleted", slog.String("vault", vault))
		}
	}

	return report
}

// record writes one entry per archive. A failed write is logged and counted.
func (e *Executor) record(ctx context.Context, vault string, items []domain.ArchiveItem) Report {
	report := Report{Total: len(items)}

	for _, item := range items {
		outcome := domain.Outcome{
			ArchiveID: item.ArchiveID,
			Checksum:  item.SHA256TreeHash,
			Size:      item.Size,
			Metadata: map[string]string{
				"description":   item.ArchiveDescription,
				"creation_date": item.CreationDate,
			},
		}

		err := e.opts.Records.PutSuccess(ctx, item.ArchiveID, outcome)
		switch {
		case err == nil:
			report.Recorded++
		case errors.Is(err, domain.ErrAlreadyTransferred):
			report.Skipped++
		default:
			report.Failed++
			e.logger.Error("Failed to record archive",
				slog.String("vault", vault),
				slog.String("archive_id", item.ArchiveID),
				slog.String("error", err.Error()),
			)
		}
	}

	return report
}

// VaultHandler binds an executor to one vault so it can serve as a
// listener handler. Report holds the result of the last handled job.
type VaultHandler struct {
	executor *Executor
	vault    string
	Report   Report
}

// Handler returns a listener handler acting on vault
func (e *Executor) Handler(vault string) *VaultHandler {
	return &VaultHandler{executor: e, vault: vault}
}

func (h *VaultHandler) Handle(ctx context.Context, n domain.JobNotification) error {
	report, err := h.executor.OnJobComplete(ctx, h.vault, n)
	h.Report = report
	return err
}
