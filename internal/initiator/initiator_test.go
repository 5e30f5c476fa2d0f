package initiator

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/cuongbtq/vaulty/internal/domain"
	"github.com/cuongbtq/vaulty/shared/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeServices records calls in order and fails the step named in failAt
type fakeServices struct {
	failAt string
	calls  []string

	events  []string
	policy  string
	params  domain.JobParameters
	subArgs []string
}

func (f *fakeServices) step(name string) error {
	f.calls = append(f.calls, name)
	if f.failAt == name {
		return errors.New(name + " denied")
	}
	return nil
}

func (f *fakeServices) CreateTopic(_ context.Context, name string) (string, error) {
	return "arn:aws:sns:eu:1:" + name, f.step("CreateTopic")
}

func (f *fakeServices) Subscribe(_ context.Context, topicARN, protocol, endpoint string) (string, error) {
	f.subArgs = []string{topicARN, protocol, endpoint}
	return topicARN + ":sub", f.step("Subscribe")
}

func (f *fakeServices) SetNotifications(_ context.Context, _, _ string, events []string) error {
	f.events = events
	return f.step("SetNotifications")
}

func (f *fakeServices) InitiateJob(_ context.Context, _ string, params domain.JobParameters) (string, error) {
	f.params = params
	return "job-1", f.step("InitiateJob")
}

func (f *fakeServices) CreateQueue(_ context.Context, name string, _ int) (string, string, error) {
	return "https://sqs/" + name, "arn:aws:sqs:eu:1:" + name, f.step("CreateQueue")
}

func (f *fakeServices) SetPolicy(_ context.Context, _, policy string) error {
	f.policy = policy
	return f.step("SetPolicy")
}

func newTestInitiator(f *fakeServices) *Initiator {
	return New(f, f, f, logger.Discard())
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "my bucket!", want: "mybucket"},
		{in: "photos_s3bucket_backup_01234", want: "photos_s3bucket_backup_01234"},
		{in: "a.b/c-d", want: "abc-d"},
		{in: "ümlaut", want: "mlaut"},
		{in: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Sanitize(tt.in))
		})
	}
}

func TestPrepareNotificationPath(t *testing.T) {
	f := &fakeServices{}
	i := newTestInitiator(f)

	path, err := i.PrepareNotificationPath(context.Background(), "my vault")
	require.NoError(t, err)

	assert.Equal(t, []string{"CreateTopic", "SetNotifications", "CreateQueue", "SetPolicy", "Subscribe"}, f.calls)
	assert.Equal(t, NotificationPath{
		TopicARN:        "arn:aws:sns:eu:1:myvault",
		QueueURL:        "https://sqs/myvault",
		QueueARN:        "arn:aws:sqs:eu:1:myvault",
		SubscriptionARN: "arn:aws:sns:eu:1:myvault:sub",
	}, path)
	assert.Equal(t, []string{"ArchiveRetrievalCompleted", "InventoryRetrievalCompleted"}, f.events)
	assert.Equal(t, []string{path.TopicARN, "sqs", path.QueueARN}, f.subArgs)

	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(f.policy), &doc))
	assert.Equal(t, "2008-10-17", doc["Version"])
	assert.Equal(t, "arn:aws:sqs:eu:1:myvault/SQSDefaultPolicy", doc["Id"])

	stmts := doc["Statement"].([]any)
	require.Len(t, stmts, 1)
	stmt := stmts[0].(map[string]any)
	assert.Equal(t, "SNSNotification", stmt["Sid"])
	assert.Equal(t, "Allow", stmt["Effect"])
	assert.Equal(t, "*", stmt["Principal"])
	assert.Equal(t, []any{"SQS:SendMessage"}, stmt["Action"])
	assert.Equal(t, "arn:aws:sqs:eu:1:myvault", stmt["Resource"])
}

func TestPrepareNotificationPath_StepFailure(t *testing.T) {
	tests := []struct {
		failAt    string
		errString string
		wantCalls int
	}{
		{failAt: "CreateTopic", errString: "create topic", wantCalls: 1},
		{failAt: "SetNotifications", errString: "set vault notifications", wantCalls: 2},
		{failAt: "CreateQueue", errString: "create queue", wantCalls: 3},
		{failAt: "SetPolicy", errString: "set queue policy", wantCalls: 4},
		{failAt: "Subscribe", errString: "subscribe queue", wantCalls: 5},
	}

	for _, tt := range tests {
		t.Run(tt.failAt, func(t *testing.T) {
			f := &fakeServices{failAt: tt.failAt}
			i := newTestInitiator(f)

			_, err := i.PrepareNotificationPath(context.Background(), "v")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errString)
			assert.Len(t, f.calls, tt.wantCalls, "no step after the failing one may run")
		})
	}
}

func TestInitiateJob(t *testing.T) {
	t.Run("defaults to json inventory", func(t *testing.T) {
		f := &fakeServices{}
		jobID, err := newTestInitiator(f).InitiateJob(context.Background(), "v", domain.JobParameters{})
		require.NoError(t, err)

		assert.Equal(t, "job-1", jobID)
		assert.Equal(t, domain.JobTypeInventoryRetrieval, f.params.Type)
		assert.Equal(t, domain.JobFormatJSON, f.params.Format)
	})

	t.Run("error", func(t *testing.T) {
		f := &fakeServices{failAt: "InitiateJob"}
		_, err := newTestInitiator(f).InitiateJob(context.Background(), "v", domain.JobParameters{})
		assert.Error(t, err)
	})
}
