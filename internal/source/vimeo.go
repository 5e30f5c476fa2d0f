package source

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const vimeoAccept = "application/vnd.vimeo.*+json;version=3.4"

// VideoFile is one rendition of a video
type VideoFile struct {
	Quality string `json:"quality"`
	Type    string `json:"type"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	Link    string `json:"link"`
	Size    int64  `json:"size"`
	MD5     string `json:"md5"`
}

// Video is a hosted video with the rendition chosen for backup
type Video struct {
	ID   string
	URI  string
	Page int
	File VideoFile
}

type videoPage struct {
	Page   int `json:"page"`
	Paging struct {
		Next string `json:"next"`
	} `json:"paging"`
	Data []struct {
		URI   string      `json:"uri"`
		Files []VideoFile `json:"files"`
	} `json:"data"`
}

// VideoSourceOptions configures a VideoSource
type VideoSourceOptions struct {
	BaseURL           string
	AccessToken       string
	PerPage           int
	RequestsPerSecond float64
	TempDir           string

	// HTTPClient is the transport for API and download requests; nil uses
	// http.DefaultClient
	HTTPClient *http.Client
}

// VideoSource pages through the videos of a Vimeo account
type VideoSource struct {
	api      *http.Client
	download *http.Client
	baseURL  string
	perPage  int
	tmpDir   string
	limiter  *rate.Limiter
	logger   *slog.Logger
}

// NewVideoSource creates a source authenticated with a personal access token
func NewVideoSource(ctx context.Context, opts VideoSourceOptions, logger *slog.Logger) *VideoSource {
	base := opts.HTTPClient
	if base == nil {
		base = http.DefaultClient
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.AccessToken, TokenType: "bearer"})

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	perPage := opts.PerPage
	if perPage <= 0 {
		perPage = 25
	}

	return &VideoSource{
		api:      oauth2.NewClient(ctx, ts),
		download: base,
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		perPage:  perPage,
		tmpDir:   opts.TempDir,
		limiter:  rate.NewLimiter(limit, 1),
		logger:   logger,
	}
}

// Each calls fn for every video that has at least one file. The largest
// rendition is chosen.
func (s *VideoSource) Each(ctx context.Context, fn func(Video) error) error {
	next := "/me/videos?" + url.Values{
		"per_page": {strconv.Itoa(s.perPage)},
		"page":     {"1"},
		"fields":   {"files,uri"},
	}.Encode()

	for next != "" {
		page, err := s.fetchPage(ctx, next)
		if err != nil {
			return err
		}

		s.logger.Debug("Video page fetched",
			slog.Int("page", page.Page),
			slog.Int("videos", len(page.Data)),
		)

		for _, item := range page.Data {
			if len(item.Files) == 0 {
				continue
			}

			v := Video{
				ID:   path.Base(item.URI),
				URI:  item.URI,
				Page: page.Page,
				File: largest(item.Files),
			}
			if err := fn(v); err != nil {
				return err
			}
		}

		next = page.Paging.Next
	}
	return nil
}

func largest(files []VideoFile) VideoFile {
	best := files[0]
	for _, f := range files[1:] {
		if f.Size > best.Size {
			best = f
		}
	}
	return best
}

func (s *VideoSource) fetchPage(ctx context.Context, ref string) (*videoPage, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+ref, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", vimeoAccept)

	resp, err := s.api.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", ref, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch %s: unexpected status %s", ref, resp.Status)
	}

	var page videoPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", ref, err)
	}
	return &page, nil
}

// Download fetches the chosen rendition into a spool file
func (s *VideoSource) Download(ctx context.Context, v Video) (*Spool, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.File.Link, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.download.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download video %s: %w", v.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download video %s: unexpected status %s", v.ID, resp.Status)
	}

	return spool(s.tmpDir, resp.Body)
}
