package backup

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"

	"github.com/cuongbtq/vaulty/internal/domain"
	"github.com/cuongbtq/vaulty/internal/initiator"
	"github.com/cuongbtq/vaulty/internal/ledger"
	"github.com/cuongbtq/vaulty/internal/source"
	"github.com/cuongbtq/vaulty/internal/transfer"
	awsx "github.com/cuongbtq/vaulty/shared/aws"
	"github.com/dustin/go-humanize"
)

// BucketBackup describes one bucket backup run
type BucketBackup struct {
	Bucket string
	// Vault defaults to a fresh "<bucket>_s3bucket_backup_<5 digits>" name
	Vault string
	// Resume continues an interrupted backup into an existing vault
	Resume bool
}

// BackupVaultName returns a new vault name for a bucket backup
func BackupVaultName(bucket string) string {
	return initiator.Sanitize(fmt.Sprintf("%s_s3bucket_backup_%d", bucket, 10000+rand.IntN(90000)))
}

// BackupBucket copies every object of a bucket into a vault. Objects are
// keyed by the MD5 fingerprint of their key. The resulting ledger is
// written as "<vault>_backup.json" and uploaded to the inventories bucket.
func (s *Service) BackupBucket(ctx context.Context, req BucketBackup) (transfer.Summary, error) {
	var summary transfer.Summary

	vault := req.Vault
	if vault == "" {
		vault = BackupVaultName(req.Bucket)
	}

	err := s.run(ctx, "backup-s3-bucket", vault, func(ctx context.Context) (string, error) {
		var err error
		summary, err = s.backupBucket(ctx, req.Bucket, vault, req.Resume)
		return summary.String(), err
	})
	return summary, err
}

func (s *Service) backupBucket(ctx context.Context, bucket, vault string, resume bool) (transfer.Summary, error) {
	var summary transfer.Summary

	ok, err := s.deps.Buckets.Exists(ctx, bucket)
	if err != nil {
		return summary, err
	}
	if !ok {
		return summary, fmt.Errorf("%w: %s", domain.ErrBucketNotFound, bucket)
	}

	if err := s.deps.Buckets.EnsureBucket(ctx, s.opts.InventoriesBucket); err != nil {
		return summary, err
	}

	exists, err := s.vaultExists(ctx, vault)
	if err != nil {
		return summary, err
	}
	switch {
	case exists && !resume:
		return summary, fmt.Errorf("%w: %s", domain.ErrVaultExists, vault)
	case !exists:
		if err := s.ensureVault(ctx, vault); err != nil {
			return summary, err
		}
	}

	store, err := s.deps.Ledgers.Open(ctx, vault)
	if err != nil {
		return summary, err
	}
	defer store.Close()

	client := transfer.NewClient(s.deps.Vaults, store, vault, s.opts.Transfer, s.logger)
	src := source.NewBucketSource(s.deps.Buckets, bucket, s.opts.TempDir)

	err = src.Each(ctx, func(obj awsx.Object) error {
		summary.Add(s.backupObject(ctx, client, store, src, obj))
		return ctx.Err()
	})
	if err != nil {
		return summary, err
	}

	file := vault + "_backup.json"
	path, err := s.writeSnapshot(ctx, store, vault, file)
	if err != nil {
		return summary, err
	}
	if err := s.deps.Buckets.PutFile(ctx, s.opts.InventoriesBucket, file, path); err != nil {
		return summary, err
	}

	s.logger.Info("Bucket backup finished",
		slog.String("bucket", bucket),
		slog.String("vault", vault),
		slog.String("summary", summary.String()),
		slog.String("transferred", humanize.Bytes(uint64(summary.Bytes))),
	)
	return summary, nil
}

func (s *Service) backupObject(ctx context.Context, client *transfer.Client, store ledger.Store, src *source.BucketSource, obj awsx.Object) transfer.Result {
	key := source.Fingerprint(obj.Key)

	// avoid downloading what the ledger already holds
	if done, err := ledger.Has(ctx, store, key); err == nil && done {
		s.logger.Debug("Object already archived", slog.String("object", obj.Key))
		return transfer.Result{Key: key, Status: transfer.StatusSkipped}
	}

	body, err := src.Fetch(ctx, obj.Key)
	if err != nil {
		s.logger.Error("Failed to fetch object",
			slog.String("object", obj.Key),
			slog.String("error", err.Error()),
		)
		return transfer.Result{Key: key, Status: transfer.StatusFailed, Err: err}
	}
	defer body.Close()

	return client.Upload(ctx, transfer.Request{
		Key:    key,
		Source: obj.Key,
		Body:   body,
		Metadata: map[string]string{
			"bucket": src.Bucket(),
			"key":    obj.Key,
			"etag":   obj.ETag,
		},
	})
}
