package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/cuongbtq/vaulty/internal/domain"
)

// Snapshot is the portable form of a ledger, written at the end of a run
// and read back to delete the archives it lists.
type Snapshot struct {
	Ledger    string         `json:"ledger"`
	CreatedAt time.Time      `json:"createdAt"`
	Entries   []domain.Entry `json:"entries"`
}

// WriteSnapshot serializes every entry of s to w
func WriteSnapshot(ctx context.Context, s Store, name string, w io.Writer) (int, error) {
	entries, err := All(ctx, s)
	if err != nil {
		return 0, fmt.Errorf("failed to read ledger %s: %w", name, err)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	snap := Snapshot{
		Ledger:    name,
		CreatedAt: time.Now().UTC(),
		Entries:   entries,
	}
	if err := enc.Encode(snap); err != nil {
		return 0, fmt.Errorf("failed to write ledger snapshot: %w", err)
	}
	return len(entries), nil
}

// ReadSnapshot decodes a snapshot written by WriteSnapshot
func ReadSnapshot(r io.Reader) (*Snapshot, error) {
	var snap Snapshot
	if err := json.NewDecoder(r).Decode(&snap); err != nil {
		return nil, fmt.Errorf("failed to read ledger snapshot: %w", err)
	}
	return &snap, nil
}

// ArchiveIDs lists the archive ids of all successful entries, in key order
func (s *Snapshot) ArchiveIDs() []string {
	ids := make([]string, 0, len(s.Entries))
	for _, e := range s.Entries {
		if e.Succeeded() && e.Response.ArchiveID != "" {
			ids = append(ids, e.Response.ArchiveID)
		}
	}
	return ids
}
