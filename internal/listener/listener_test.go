package listener

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cuongbtq/vaulty/internal/domain"
	awsx "github.com/cuongbtq/vaulty/shared/aws"
	"github.com/cuongbtq/vaulty/shared/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeQueue serves one batch per Receive call, then empty batches
type fakeQueue struct {
	mu       sync.Mutex
	batches  [][]awsx.Message
	errs     []error
	receives int
	deleted  []string
}

func (q *fakeQueue) Receive(_ context.Context, _ string) ([]awsx.Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.receives++
	if len(q.errs) > 0 {
		err := q.errs[0]
		q.errs = q.errs[1:]
		return nil, err
	}
	if len(q.batches) == 0 {
		return nil, nil
	}
	b := q.batches[0]
	q.batches = q.batches[1:]
	return b, nil
}

func (q *fakeQueue) Delete(_ context.Context, _, receiptHandle string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.deleted = append(q.deleted, receiptHandle)
	return nil
}

func envelope(t *testing.T, inner string) string {
	t.Helper()
	b, err := json.Marshal(map[string]string{"Type": "Notification", "Message": inner})
	require.NoError(t, err)
	return string(b)
}

func message(t *testing.T, id, jobID string) awsx.Message {
	return awsx.Message{
		ID:            id,
		Body:          envelope(t, `{"JobId":"`+jobID+`","StatusCode":"Succeeded"}`),
		ReceiptHandle: "rh-" + id,
	}
}

func newTestListener(q Queue, opts Options) *Listener {
	if opts.PollInterval == 0 {
		opts.PollInterval = time.Millisecond
	}
	return New(q, opts, logger.Discard())
}

// recorder collects dispatched notifications
type recorder struct {
	got []domain.JobNotification
	err error
}

func (r *recorder) Handle(_ context.Context, n domain.JobNotification) error {
	r.got = append(r.got, n)
	return r.err
}

func TestWaitForOne_UnwrapsEnvelope(t *testing.T) {
	q := &fakeQueue{batches: [][]awsx.Message{{{
		ID:            "m1",
		Body:          `{"Message": "{\"JobId\":\"abc\",\"Status\":\"Succeeded\"}"}`,
		ReceiptHandle: "rh-m1",
	}}}}
	rec := &recorder{}

	err := newTestListener(q, Options{}).WaitForOne(context.Background(), "url", rec)
	require.NoError(t, err)

	require.Len(t, rec.got, 1)
	assert.Equal(t, "abc", rec.got[0].JobID)
	assert.Equal(t, map[string]any{"JobId": "abc", "Status": "Succeeded"}, rec.got[0].Fields)
}

func TestWaitForOne_DispatchesOncePerCall(t *testing.T) {
	q := &fakeQueue{batches: [][]awsx.Message{{
		message(t, "m1", "j1"),
		message(t, "m2", "j2"),
		message(t, "m3", "j3"),
	}}}
	rec := &recorder{}

	err := newTestListener(q, Options{}).WaitForOne(context.Background(), "url", rec)
	require.NoError(t, err)

	require.Len(t, rec.got, 1)
	assert.Equal(t, "j1", rec.got[0].JobID)
	assert.Equal(t, []string{"rh-m1"}, q.deleted, "the rest of the batch stays on the queue")
}

func TestWaitForOne_PollsUntilMessage(t *testing.T) {
	q := &fakeQueue{
		batches: [][]awsx.Message{nil, nil, {message(t, "m1", "j1")}},
		errs:    []error{errors.New("throttled")},
	}
	rec := &recorder{}

	err := newTestListener(q, Options{}).WaitForOne(context.Background(), "url", rec)
	require.NoError(t, err)

	assert.Len(t, rec.got, 1)
	assert.Equal(t, 4, q.receives)
}

func TestWaitForOne_DropsUndecodable(t *testing.T) {
	q := &fakeQueue{batches: [][]awsx.Message{
		{
			{ID: "bad1", Body: "not json", ReceiptHandle: "rh-bad1"},
			{ID: "bad2", Body: `{"Message":"not json either"}`, ReceiptHandle: "rh-bad2"},
		},
		{message(t, "m1", "j1")},
	}}
	rec := &recorder{}

	err := newTestListener(q, Options{}).WaitForOne(context.Background(), "url", rec)
	require.NoError(t, err)

	require.Len(t, rec.got, 1)
	assert.Equal(t, "j1", rec.got[0].JobID)
	assert.Equal(t, []string{"rh-bad1", "rh-bad2", "rh-m1"}, q.deleted)
}

func TestWaitForOne_HandlerError(t *testing.T) {
	q := &fakeQueue{batches: [][]awsx.Message{{message(t, "m1", "j1")}}}
	boom := errors.New("boom")

	err := newTestListener(q, Options{}).WaitForOne(context.Background(), "url", &recorder{err: boom})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "j1")
}

func TestWaitForOne_Timeout(t *testing.T) {
	q := &fakeQueue{}
	rec := &recorder{}

	err := newTestListener(q, Options{Timeout: 20 * time.Millisecond}).WaitForOne(context.Background(), "url", rec)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Empty(t, rec.got)
}

func TestWaitForOne_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := newTestListener(&fakeQueue{}, Options{}).WaitForOne(ctx, "url", &recorder{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWaitForOne_MatchingJobID(t *testing.T) {
	q := &fakeQueue{batches: [][]awsx.Message{
		{message(t, "m1", "other"), {ID: "bad", Body: "{", ReceiptHandle: "rh-bad"}},
		{message(t, "m2", "mine"), message(t, "m3", "later")},
	}}
	rec := &recorder{}

	l := newTestListener(q, Options{WaitForMatchingJobID: true, JobID: "mine"})
	err := l.WaitForOne(context.Background(), "url", rec)
	require.NoError(t, err)

	require.Len(t, rec.got, 1)
	assert.Equal(t, "mine", rec.got[0].JobID)
	assert.Equal(t, []string{"rh-bad", "rh-m2"}, q.deleted, "notifications of other jobs are not deleted")
}

func TestHandlerFunc(t *testing.T) {
	called := false
	h := HandlerFunc(func(_ context.Context, n domain.JobNotification) error {
		called = n.JobID == "x"
		return nil
	})

	require.NoError(t, h.Handle(context.Background(), domain.JobNotification{JobID: "x"}))
	assert.True(t, called)
}
