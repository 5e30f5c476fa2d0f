// Package transfer uploads items to the archive service with a bounded number
// of retries, consulting a ledger so that an item is stored at most once.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/cuongbtq/vaulty/internal/domain"
	"github.com/cuongbtq/vaulty/internal/ledger"
	"github.com/dustin/go-humanize"
)

const (
	DefaultMaxAttempts = 9
	DefaultBackoff     = time.Second
)

// ErrNilBody is returned for a request without a payload
var ErrNilBody = errors.New("item body must not be nil")

// Status is the terminal state of one upload
type Status string

const (
	StatusUploaded Status = "uploaded"
	StatusSkipped  Status = "skipped"
	StatusFailed   Status = "failed"
)

// Archiver stores one archive in a vault. Returned errors should be
// classified with domain.NewTransientError or domain.NewPermanentError;
// unclassified errors are treated as permanent.
type Archiver interface {
	UploadArchive(ctx context.Context, vault, description string, body io.ReadSeeker) (domain.Outcome, error)
}

// Request is one item to upload
type Request struct {
	Key         string
	Source      string
	Description string // defaults to Key
	Body        io.ReadSeeker
	Metadata    map[string]string
}

// Result reports what happened to one item. Err is set only when Status is
// StatusFailed.
type Result struct {
	Key      string
	Status   Status
	Outcome  *domain.Outcome
	Attempts int
	Err      error
}

// Options tunes the retry loop
type Options struct {
	MaxAttempts int
	Backoff     time.Duration

	// sleep is replaced in tests
	sleep func(ctx context.Context, d time.Duration) error
}

// Client uploads items into a single vault
type Client struct {
	archiver Archiver
	store    ledger.Store
	vault    string
	opts     Options
	logger   *slog.Logger
}

// NewClient creates a transfer client for vault. Zero or negative option
// values fall back to DefaultMaxAttempts and DefaultBackoff.
func NewClient(archiver Archiver, store ledger.Store, vault string, opts Options, logger *slog.Logger) *Client {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.Backoff <= 0 {
		opts.Backoff = DefaultBackoff
	}
	if opts.sleep == nil {
		opts.sleep = sleep
	}

	return &Client{
		archiver: archiver,
		store:    store,
		vault:    vault,
		opts:     opts,
		logger:   logger.With(slog.String("vault", vault)),
	}
}

// Vault returns the vault the client uploads into
func (c *Client) Vault() string {
	return c.vault
}

// Upload transfers one item unless the ledger already holds a success for
// its key. It never panics and reports every failure in the Result.
func (c *Client) Upload(ctx context.Context, req Request) Result {
	res := Result{Key: req.Key}

	if req.Key == "" {
		res.Status = StatusFailed
		res.Err = domain.ErrEmptyKey
		return res
	}
	if req.Body == nil {
		res.Status = StatusFailed
		res.Err = ErrNilBody
		return res
	}

	entry, err := c.store.Get(ctx, req.Key)
	switch {
	case err == nil && entry.Succeeded():
		c.logger.Info("Skipping already transferred item",
			slog.String("key", req.Key),
			slog.String("archive_id", entry.Response.ArchiveID),
		)
		res.Status = StatusSkipped
		res.Outcome = entry.Response
		return res
	case err != nil && !errors.Is(err, domain.ErrEntryNotFound):
		return c.fail(res, fmt.Errorf("failed to read ledger: %w", err))
	}

	description := req.Description
	if description == "" {
		description = req.Key
	}

	size, err := req.Body.Seek(0, io.SeekEnd)
	if err != nil {
		return c.fail(res, fmt.Errorf("failed to size body: %w", err))
	}

	attempts := 0
	for attempts < c.opts.MaxAttempts {
		attempts++
		res.Attempts = attempts

		if _, err := req.Body.Seek(0, io.SeekStart); err != nil {
			return c.fail(res, fmt.Errorf("failed to rewind body: %w", err))
		}
		if err := c.store.RecordAttempt(ctx, req.Key, req.Source); err != nil {
			c.logger.Warn("Failed to record attempt",
				slog.String("key", req.Key),
				slog.String("error", err.Error()),
			)
		}

		outcome, err := c.archiver.UploadArchive(ctx, c.vault, description, req.Body)
		if err == nil {
			outcome.Size = size
			outcome.Metadata = req.Metadata
			return c.succeed(ctx, res, outcome)
		}

		if domain.KindOf(err) == domain.KindPermanent {
			return c.fail(res, err)
		}

		c.logger.Warn("Upload attempt failed",
			slog.String("key", req.Key),
			slog.Int("attempt", attempts),
			slog.Int("max_attempts", c.opts.MaxAttempts),
			slog.String("error", err.Error()),
		)

		if attempts == c.opts.MaxAttempts {
			break
		}
		if err := c.opts.sleep(ctx, c.opts.Backoff); err != nil {
			return c.fail(res, err)
		}
	}

	return c.fail(res, fmt.Errorf("%w after %d attempts", domain.ErrRetriesExhausted, attempts))
}

func (c *Client) succeed(ctx context.Context, res Result, outcome domain.Outcome) Result {
	if err := c.store.PutSuccess(ctx, res.Key, outcome); err != nil {
		// The archive exists either way, the ledger just could not confirm it.
		c.logger.Error("Failed to record transfer",
			slog.String("key", res.Key),
			slog.String("archive_id", outcome.ArchiveID),
			slog.String("error", err.Error()),
		)
	}

	c.logger.Info("Item transferred",
		slog.String("key", res.Key),
		slog.String("archive_id", outcome.ArchiveID),
		slog.String("size", humanize.Bytes(uint64(outcome.Size))),
		slog.Int("attempts", res.Attempts),
	)

	res.Status = StatusUploaded
	res.Outcome = &outcome
	return res
}

func (c *Client) fail(res Result, err error) Result {
	c.logger.Error("Item transfer failed",
		slog.String("key", res.Key),
		slog.Int("attempts", res.Attempts),
		slog.String("kind", domain.KindOf(err).String()),
		slog.String("error", err.Error()),
	)

	res.Status = StatusFailed
	res.Err = err
	return res
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
