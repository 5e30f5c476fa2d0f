package handler

import (
	"encoding/base64"
	"fmt"
)

// DecodeCursor returns the key a page starts after. An empty cursor starts
// at the beginning of the ledger.
func DecodeCursor(cursor string) (string, error) {
	if cursor == "" {
		return "", nil
	}

	decoded, err := base64.URLEncoding.DecodeString(cursor)
	if err != nil {
		return "", fmt.Errorf("invalid cursor: %w", err)
	}
	if len(decoded) == 0 {
		return "", fmt.Errorf("invalid cursor: empty key")
	}
	return string(decoded), nil
}

// EncodeCursor returns the cursor for the page after key
func EncodeCursor(key string) string {
	return base64.URLEncoding.EncodeToString([]byte(key))
}
