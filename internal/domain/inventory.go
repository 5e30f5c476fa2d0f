package domain

// ArchiveItem is one archive listed in an inventory job result
type ArchiveItem struct {
	ArchiveID          string `json:"ArchiveId"`
	ArchiveDescription string `json:"ArchiveDescription"`
	CreationDate       string `json:"CreationDate"`
	Size               int64  `json:"Size"`
	SHA256TreeHash     string `json:"SHA256TreeHash"`
}

// Inventory is the payload of an inventory-retrieval job
type Inventory struct {
	VaultARN      string        `json:"VaultARN"`
	InventoryDate string        `json:"InventoryDate"`
	ArchiveList   []ArchiveItem `json:"ArchiveList"`
}

// Vault is a container summary as listed by the archive service
type Vault struct {
	Name              string `json:"VaultName"`
	ARN               string `json:"VaultARN"`
	CreationDate      string `json:"CreationDate,omitempty"`
	LastInventoryDate string `json:"LastInventoryDate,omitempty"`
	NumberOfArchives  int64  `json:"NumberOfArchives"`
	SizeInBytes       int64  `json:"SizeInBytes"`
}
