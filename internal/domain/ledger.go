package domain

import "time"

// Outcome is the confirmed result of a transfer, as returned by the archive service
type Outcome struct {
	ArchiveID  string            `json:"archiveId,omitempty"`
	Checksum   string            `json:"checksum,omitempty"`
	Location   string            `json:"location,omitempty"`
	Size       int64             `json:"size,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	RecordedAt time.Time         `json:"recordedAt"`
}

// Entry is one ledger record. Response is nil until a success is recorded.
type Entry struct {
	Key      string   `json:"key"`
	Source   string   `json:"source,omitempty"`
	Attempts int      `json:"attempts"`
	Response *Outcome `json:"response,omitempty"`
}

// Succeeded reports whether the entry holds a recorded success
func (e *Entry) Succeeded() bool {
	return e != nil && e.Response != nil
}
