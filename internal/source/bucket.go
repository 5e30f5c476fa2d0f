package source

import (
	"context"
	"io"

	awsx "github.com/cuongbtq/vaulty/shared/aws"
)

// ObjectStore lists and reads bucket objects
type ObjectStore interface {
	ListObjects(ctx context.Context, bucket string, fn func(awsx.Object) error) error
	Open(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}

// BucketSource yields the objects of one bucket
type BucketSource struct {
	store  ObjectStore
	bucket string
	tmpDir string
}

// NewBucketSource creates a source over bucket. Objects are spooled in
// tmpDir, or the system temp directory when it is empty.
func NewBucketSource(store ObjectStore, bucket, tmpDir string) *BucketSource {
	return &BucketSource{store: store, bucket: bucket, tmpDir: tmpDir}
}

// Bucket returns the source bucket name
func (s *BucketSource) Bucket() string {
	return s.bucket
}

// Each calls fn for every object in listing order
func (s *BucketSource) Each(ctx context.Context, fn func(awsx.Object) error) error {
	return s.store.ListObjects(ctx, s.bucket, fn)
}

// Fetch downloads one object into a spool file
func (s *BucketSource) Fetch(ctx context.Context, key string) (*Spool, error) {
	body, err := s.store.Open(ctx, s.bucket, key)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	return spool(s.tmpDir, body)
}
