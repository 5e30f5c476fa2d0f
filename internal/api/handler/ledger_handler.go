package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"github.com/cuongbtq/vaulty/internal/api/dto"
	"github.com/cuongbtq/vaulty/internal/domain"
	"github.com/cuongbtq/vaulty/internal/ledger"
	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

var ledgerNamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

func (h *LedgerHandler) openLedger(c *gin.Context) (ledger.Store, string, bool) {
	name := c.Param("ledger")
	if !ledgerNamePattern.MatchString(name) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "invalid ledger name",
		})
		return nil, name, false
	}

	store, err := h.ledgers.Open(c.Request.Context(), name)
	if err != nil {
		h.logger.Error("Failed to open ledger", slog.String("ledger", name), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to open ledger",
		})
		return nil, name, false
	}
	return store, name, true
}

// ListEntries handles GET /api/v1/ledgers/:ledger/entries
func (h *LedgerHandler) ListEntries(c *gin.Context) {
	var req dto.ListEntriesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = defaultPageSize
	}
	if req.PageSize > maxPageSize {
		req.PageSize = maxPageSize
	}

	after, err := DecodeCursor(req.Cursor)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid cursor",
		})
		return
	}

	store, name, ok := h.openLedger(c)
	if !ok {
		return
	}
	defer store.Close()

	// one extra entry tells whether another page exists
	entries, err := store.List(c.Request.Context(), after, req.PageSize+1)
	if err != nil {
		h.logger.Error("Failed to list entries", slog.String("ledger", name), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list entries",
		})
		return
	}

	hasMore := len(entries) > req.PageSize
	if hasMore {
		entries = entries[:req.PageSize]
	}

	resp := dto.ListEntriesResponse{
		Ledger:  name,
		Entries: make([]dto.EntryDTO, len(entries)),
	}
	for i := range entries {
		resp.Entries[i] = toEntryDTO(&entries[i])
	}
	if hasMore {
		resp.NextCursor = EncodeCursor(entries[len(entries)-1].Key)
	}

	c.JSON(http.StatusOK, resp)
}

// GetEntry handles GET /api/v1/ledgers/:ledger/entries/:key
func (h *LedgerHandler) GetEntry(c *gin.Context) {
	store, name, ok := h.openLedger(c)
	if !ok {
		return
	}
	defer store.Close()

	key := c.Param("key")
	entry, err := store.Get(c.Request.Context(), key)
	if errors.Is(err, domain.ErrEntryNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "entry not found",
			"key":   key,
		})
		return
	}
	if err != nil {
		h.logger.Error("Failed to get entry",
			slog.String("ledger", name),
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get entry",
		})
		return
	}

	c.JSON(http.StatusOK, toEntryDTO(entry))
}

func toEntryDTO(e *domain.Entry) dto.EntryDTO {
	out := dto.EntryDTO{
		Key:         e.Key,
		Source:      e.Source,
		Attempts:    e.Attempts,
		Transferred: e.Succeeded(),
	}
	if r := e.Response; r != nil {
		out.ArchiveID = r.ArchiveID
		out.Checksum = r.Checksum
		out.Location = r.Location
		out.Size = r.Size
		if r.Size > 0 {
			out.SizeHuman = humanize.Bytes(uint64(r.Size))
		}
		out.Metadata = r.Metadata
		if !r.RecordedAt.IsZero() {
			out.RecordedAt = r.RecordedAt.Format(time.RFC3339)
		}
	}
	return out
}
