package aws

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3API is the subset of the S3 client used by Buckets
type S3API interface {
	s3.ListObjectsV2APIClient
	ListBuckets(ctx context.Context, in *s3.ListBucketsInput, optFns ...func(*s3.Options)) (*s3.ListBucketsOutput, error)
	CreateBucket(ctx context.Context, in *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Object is a listed bucket object
type Object struct {
	Key  string
	Size int64
	ETag string
}

// Buckets reads and writes object storage
type Buckets struct {
	api    S3API
	region string
}

// NewBuckets wraps an S3 client. New buckets are created in region.
func NewBuckets(api S3API, region string) *Buckets {
	return &Buckets{api: api, region: region}
}

// Exists reports whether the account owns a bucket with this name
func (b *Buckets) Exists(ctx context.Context, bucket string) (bool, error) {
	out, err := b.api.ListBuckets(ctx, &s3.ListBucketsInput{})
	if err != nil {
		return false, fmt.Errorf("failed to list buckets: %w", err)
	}
	for _, bk := range out.Buckets {
		if aws.ToString(bk.Name) == bucket {
			return true, nil
		}
	}
	return false, nil
}

// Create creates a private bucket
func (b *Buckets) Create(ctx context.Context, bucket string) error {
	in := &s3.CreateBucketInput{
		Bucket: aws.String(bucket),
		ACL:    types.BucketCannedACLPrivate,
	}
	// us-east-1 rejects an explicit location constraint
	if b.region != "" && b.region != "us-east-1" {
		in.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(b.region),
		}
	}

	if _, err := b.api.CreateBucket(ctx, in); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
	}
	return nil
}

// EnsureBucket creates the bucket when it is missing
func (b *Buckets) EnsureBucket(ctx context.Context, bucket string) error {
	ok, err := b.Exists(ctx, bucket)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	return b.Create(ctx, bucket)
}

// ListObjects calls fn for every object of a bucket in listing order.
// Listing stops at the first error returned by fn.
func (b *Buckets) ListObjects(ctx context.Context, bucket string, fn func(Object) error) error {
	p := s3.NewListObjectsV2Paginator(b.api, &s3.ListObjectsV2Input{Bucket: aws.String(bucket)})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("failed to list objects of %s: %w", bucket, err)
		}
		for _, o := range page.Contents {
			obj := Object{
				Key:  aws.ToString(o.Key),
				Size: aws.ToInt64(o.Size),
				ETag: aws.ToString(o.ETag),
			}
			if err := fn(obj); err != nil {
				return err
			}
		}
	}
	return nil
}

// Open returns the body of an object. The caller closes it.
func (b *Buckets) Open(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	out, err := b.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get %s/%s: %w", bucket, key, err)
	}
	return out.Body, nil
}

// Put stores body under key
func (b *Buckets) Put(ctx context.Context, bucket, key string, body io.Reader) error {
	_, err := b.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   body,
	})
	if err != nil {
		return fmt.Errorf("failed to put %s/%s: %w", bucket, key, err)
	}
	return nil
}

// PutFile uploads a local file under key
func (b *Buckets) PutFile(ctx context.Context, bucket, key, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	return b.Put(ctx, bucket, key, f)
}

// Download writes an object into a local file
func (b *Buckets) Download(ctx context.Context, bucket, key, path string) error {
	body, err := b.Open(ctx, bucket, key)
	if err != nil {
		return err
	}
	defer body.Close()

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}

	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}
