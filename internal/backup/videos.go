package backup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"

	"github.com/cuongbtq/vaulty/internal/domain"
	"github.com/cuongbtq/vaulty/internal/ledger"
	"github.com/cuongbtq/vaulty/internal/source"
	"github.com/cuongbtq/vaulty/internal/transfer"
)

// Platforms are the video platforms with a hosting account
var Platforms = []string{"openhpi", "opensap", "moochouse", "openwho"}

const snapshotTimeFormat = "2006-01-02-15-04-05"

// UploadVideos copies the largest rendition of every video of a platform
// into a vault. vault defaults to "videos_<platform>" and is created when
// missing. The chosen renditions are recorded in the "vimeo_<platform>" ledger.
func (s *Service) UploadVideos(ctx context.Context, platform, vault string) (transfer.Summary, error) {
	var summary transfer.Summary

	if !slices.Contains(Platforms, platform) {
		return summary, fmt.Errorf("unknown platform %q, expected one of %v", platform, Platforms)
	}
	if vault == "" {
		vault = "videos_" + platform
	}

	err := s.run(ctx, "upload-vimeo-videos", vault, func(ctx context.Context) (string, error) {
		var err error
		summary, err = s.uploadVideos(ctx, platform, vault)
		return summary.String(), err
	})
	return summary, err
}

func (s *Service) uploadVideos(ctx context.Context, platform, vault string) (transfer.Summary, error) {
	var summary transfer.Summary

	if s.deps.Videos == nil {
		return summary, errors.New("no video source configured")
	}
	videos, err := s.deps.Videos(ctx, platform)
	if err != nil {
		return summary, err
	}

	if err := s.ensureVault(ctx, vault); err != nil {
		return summary, err
	}

	store, err := s.deps.Ledgers.Open(ctx, vault)
	if err != nil {
		return summary, err
	}
	defer store.Close()

	catalogName := "vimeo_" + platform
	catalog, err := s.deps.Ledgers.Open(ctx, catalogName)
	if err != nil {
		return summary, err
	}
	defer catalog.Close()

	client := transfer.NewClient(s.deps.Vaults, store, vault, s.opts.Transfer, s.logger)

	err = videos.Each(ctx, func(v source.Video) error {
		s.catalog(ctx, catalog, v)
		summary.Add(s.uploadVideo(ctx, client, store, videos, v))
		return ctx.Err()
	})
	if err != nil {
		return summary, err
	}

	stamp := s.now().Format(snapshotTimeFormat)
	if _, err := s.writeSnapshot(ctx, store, vault, fmt.Sprintf("vault_%s_%s.json", vault, stamp)); err != nil {
		return summary, err
	}
	if _, err := s.writeSnapshot(ctx, catalog, catalogName, fmt.Sprintf("vimeo_%s_%s.json", platform, stamp)); err != nil {
		return summary, err
	}

	return summary, nil
}

func (s *Service) catalog(ctx context.Context, catalog ledger.Store, v source.Video) {
	err := catalog.PutSuccess(ctx, v.ID, domain.Outcome{
		Checksum: v.File.MD5,
		Location: v.File.Link,
		Size:     v.File.Size,
		Metadata: videoMetadata(v),
	})
	if err != nil && !errors.Is(err, domain.ErrAlreadyTransferred) {
		s.logger.Warn("Failed to record video",
			slog.String("video_id", v.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *Service) uploadVideo(ctx context.Context, client *transfer.Client, store ledger.Store, videos VideoCatalog, v source.Video) transfer.Result {
	if done, err := ledger.Has(ctx, store, v.ID); err == nil && done {
		return transfer.Result{Key: v.ID, Status: transfer.StatusSkipped}
	}

	body, err := videos.Download(ctx, v)
	if err != nil {
		s.logger.Error("Failed to download video",
			slog.String("video_id", v.ID),
			slog.String("error", err.Error()),
		)
		return transfer.Result{Key: v.ID, Status: transfer.StatusFailed, Err: err}
	}
	defer body.Close()

	return client.Upload(ctx, transfer.Request{
		Key:      v.ID,
		Source:   v.URI,
		Body:     body,
		Metadata: videoMetadata(v),
	})
}

func videoMetadata(v source.Video) map[string]string {
	return map[string]string{
		"uri":     v.URI,
		"quality": v.File.Quality,
		"type":    v.File.Type,
		"page":    strconv.Itoa(v.Page),
	}
}
