package aws

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/glacier"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/aws/smithy-go"
	"github.com/cuongbtq/vaulty/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want domain.ErrorKind
	}{
		{
			name: "request timeout exception",
			err:  &smithy.GenericAPIError{Code: "RequestTimeoutException", Message: "timed out"},
			want: domain.KindTransient,
		},
		{
			name: "request timeout",
			err:  &smithy.GenericAPIError{Code: "RequestTimeout"},
			want: domain.KindTransient,
		},
		{
			name: "wrapped timeout",
			err:  fmt.Errorf("operation error: %w", &smithy.GenericAPIError{Code: "RequestTimeoutException"}),
			want: domain.KindTransient,
		},
		{
			name: "access denied",
			err:  &smithy.GenericAPIError{Code: "AccessDeniedException"},
			want: domain.KindPermanent,
		},
		{
			name: "plain error",
			err:  errors.New("boom"),
			want: domain.KindPermanent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify("upload archive", tt.err)
			require.Error(t, err)
			assert.Equal(t, tt.want, domain.KindOf(err))
			assert.ErrorIs(t, err, tt.err)
		})
	}

	assert.NoError(t, classify("noop", nil))
}

type fakeGlacier struct {
	GlacierAPI

	uploadErr error
	uploads   []*glacier.UploadArchiveInput
}

func (f *fakeGlacier) UploadArchive(_ context.Context, in *glacier.UploadArchiveInput, _ ...func(*glacier.Options)) (*glacier.UploadArchiveOutput, error) {
	f.uploads = append(f.uploads, in)
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	return &glacier.UploadArchiveOutput{
		ArchiveId: aws.String("archive-1"),
		Checksum:  aws.String("abc"),
		Location:  aws.String("/-/vaults/v/archives/archive-1"),
	}, nil
}

func TestVault_UploadArchive(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		api := &fakeGlacier{}
		v := NewVault(api)

		out, err := v.UploadArchive(context.Background(), "v", "photo.jpg", strings.NewReader("data"))
		require.NoError(t, err)

		assert.Equal(t, "archive-1", out.ArchiveID)
		assert.Equal(t, "abc", out.Checksum)
		require.Len(t, api.uploads, 1)
		assert.Equal(t, "-", aws.ToString(api.uploads[0].AccountId))
		assert.Equal(t, "photo.jpg", aws.ToString(api.uploads[0].ArchiveDescription))
	})

	t.Run("timeout is transient", func(t *testing.T) {
		v := NewVault(&fakeGlacier{uploadErr: &smithy.GenericAPIError{Code: "RequestTimeoutException"}})

		_, err := v.UploadArchive(context.Background(), "v", "k", strings.NewReader("data"))
		require.Error(t, err)
		assert.Equal(t, domain.KindTransient, domain.KindOf(err))
	})
}

type fakeSQS struct {
	SQSAPI

	created  *sqs.CreateQueueInput
	policy   map[string]string
	messages []sqstypes.Message
}

func (f *fakeSQS) CreateQueue(_ context.Context, in *sqs.CreateQueueInput, _ ...func(*sqs.Options)) (*sqs.CreateQueueOutput, error) {
	f.created = in
	return &sqs.CreateQueueOutput{QueueUrl: aws.String("https://sqs/q")}, nil
}

func (f *fakeSQS) GetQueueAttributes(_ context.Context, _ *sqs.GetQueueAttributesInput, _ ...func(*sqs.Options)) (*sqs.GetQueueAttributesOutput, error) {
	return &sqs.GetQueueAttributesOutput{
		Attributes: map[string]string{"QueueArn": "arn:aws:sqs:eu-central-1:1:q"},
	}, nil
}

func (f *fakeSQS) SetQueueAttributes(_ context.Context, in *sqs.SetQueueAttributesInput, _ ...func(*sqs.Options)) (*sqs.SetQueueAttributesOutput, error) {
	f.policy = in.Attributes
	return &sqs.SetQueueAttributesOutput{}, nil
}

func (f *fakeSQS) ReceiveMessage(_ context.Context, _ *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	return &sqs.ReceiveMessageOutput{Messages: f.messages}, nil
}

func TestQueues(t *testing.T) {
	api := &fakeSQS{
		messages: []sqstypes.Message{
			{MessageId: aws.String("m1"), Body: aws.String("{}"), ReceiptHandle: aws.String("r1")},
		},
	}
	q := NewQueues(api)
	ctx := context.Background()

	url, arn, err := q.CreateQueue(ctx, "vault", 0)
	require.NoError(t, err)
	assert.Equal(t, "https://sqs/q", url)
	assert.Equal(t, "arn:aws:sqs:eu-central-1:1:q", arn)
	assert.Equal(t, "0", api.created.Attributes["DelaySeconds"])

	require.NoError(t, q.SetPolicy(ctx, url, `{"Version":"2008-10-17"}`))
	assert.Equal(t, `{"Version":"2008-10-17"}`, api.policy["Policy"])

	msgs, err := q.Receive(ctx, url)
	require.NoError(t, err)
	assert.Equal(t, []Message{{ID: "m1", Body: "{}", ReceiptHandle: "r1"}}, msgs)
}

type fakeS3 struct {
	S3API

	buckets []string
	created []*s3.CreateBucketInput
	pages   [][]string
	puts    map[string]string
}

func (f *fakeS3) ListBuckets(_ context.Context, _ *s3.ListBucketsInput, _ ...func(*s3.Options)) (*s3.ListBucketsOutput, error) {
	out := &s3.ListBucketsOutput{}
	for _, b := range f.buckets {
		out.Buckets = append(out.Buckets, s3types.Bucket{Name: aws.String(b)})
	}
	return out, nil
}

func (f *fakeS3) CreateBucket(_ context.Context, in *s3.CreateBucketInput, _ ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	f.created = append(f.created, in)
	f.buckets = append(f.buckets, aws.ToString(in.Bucket))
	return &s3.CreateBucketOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	page := 0
	if in.ContinuationToken != nil {
		fmt.Sscanf(aws.ToString(in.ContinuationToken), "%d", &page)
	}

	out := &s3.ListObjectsV2Output{}
	for _, k := range f.pages[page] {
		out.Contents = append(out.Contents, s3types.Object{Key: aws.String(k), Size: aws.Int64(int64(len(k)))})
	}
	if page+1 < len(f.pages) {
		out.IsTruncated = aws.Bool(true)
		out.NextContinuationToken = aws.String(fmt.Sprint(page + 1))
	}
	return out, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, _ := io.ReadAll(in.Body)
	if f.puts == nil {
		f.puts = map[string]string{}
	}
	f.puts[aws.ToString(in.Key)] = string(data)
	return &s3.PutObjectOutput{}, nil
}

func TestBuckets_EnsureBucket(t *testing.T) {
	tests := []struct {
		name       string
		region     string
		existing   []string
		wantCreate bool
		wantLoc    string
	}{
		{name: "existing bucket", region: "eu-central-1", existing: []string{"inv"}},
		{name: "missing bucket", region: "eu-central-1", wantCreate: true, wantLoc: "eu-central-1"},
		{name: "missing bucket in us-east-1", region: "us-east-1", wantCreate: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeS3{buckets: tt.existing}
			b := NewBuckets(api, tt.region)

			require.NoError(t, b.EnsureBucket(context.Background(), "inv"))

			if !tt.wantCreate {
				assert.Empty(t, api.created)
				return
			}
			require.Len(t, api.created, 1)
			assert.Equal(t, s3types.BucketCannedACLPrivate, api.created[0].ACL)
			if tt.wantLoc == "" {
				assert.Nil(t, api.created[0].CreateBucketConfiguration)
			} else {
				assert.Equal(t, s3types.BucketLocationConstraint(tt.wantLoc), api.created[0].CreateBucketConfiguration.LocationConstraint)
			}
		})
	}
}

func TestBuckets_ListObjects(t *testing.T) {
	api := &fakeS3{pages: [][]string{{"a", "b"}, {"c"}}}
	b := NewBuckets(api, "eu-central-1")

	var keys []string
	err := b.ListObjects(context.Background(), "bucket", func(o Object) error {
		keys = append(keys, o.Key)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, keys)

	stop := errors.New("stop")
	err = b.ListObjects(context.Background(), "bucket", func(o Object) error { return stop })
	assert.ErrorIs(t, err, stop)
}

func TestBuckets_PutFile(t *testing.T) {
	path := t.TempDir() + "/log.json"
	require.NoError(t, writeFile(path, `{"ok":true}`))

	api := &fakeS3{}
	b := NewBuckets(api, "eu-central-1")

	require.NoError(t, b.PutFile(context.Background(), "inv", "v_backup.json", path))
	assert.Equal(t, `{"ok":true}`, api.puts["v_backup.json"])

	err := b.PutFile(context.Background(), "inv", "x", t.TempDir()+"/missing")
	assert.Error(t, err)
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}
