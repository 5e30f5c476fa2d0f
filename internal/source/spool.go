// Package source reads the items to back up: objects of a bucket and the
// video files of a hosting account.
package source

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// Spool is a downloaded item kept in a temporary file so it can be re-read
// on every upload attempt
type Spool struct {
	*os.File
	Size int64
}

// Close closes and removes the temporary file
func (s *Spool) Close() error {
	err := s.File.Close()
	if rmErr := os.Remove(s.Name()); rmErr != nil && err == nil {
		err = rmErr
	}
	return err
}

func spool(dir string, r io.Reader) (*Spool, error) {
	f, err := os.CreateTemp(dir, "vaulty-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create spool file: %w", err)
	}

	n, err := io.Copy(f, r)
	if err == nil {
		_, err = f.Seek(0, io.SeekStart)
	}
	if err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, fmt.Errorf("failed to spool item: %w", err)
	}

	return &Spool{File: f, Size: n}, nil
}

// Fingerprint derives a fixed-length ledger key from an object key
func Fingerprint(key string) string {
	sum := md5.Sum([]byte(key))
	return hex.EncodeToString(sum[:])
}
