package dto

type ListEntriesRequest struct {
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type ListEntriesResponse struct {
	Ledger     string     `json:"ledger"`
	Entries    []EntryDTO `json:"entries"`
	NextCursor string     `json:"next_cursor,omitempty"`
}

type EntryDTO struct {
	Key         string            `json:"key"`
	Source      string            `json:"source,omitempty"`
	Attempts    int               `json:"attempts"`
	Transferred bool              `json:"transferred"`
	ArchiveID   string            `json:"archive_id,omitempty"`
	Checksum    string            `json:"checksum,omitempty"`
	Location    string            `json:"location,omitempty"`
	Size        int64             `json:"size,omitempty"`
	SizeHuman   string            `json:"size_human,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	RecordedAt  string            `json:"recorded_at,omitempty"`
}
