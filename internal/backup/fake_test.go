package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/cuongbtq/vaulty/internal/domain"
	"github.com/cuongbtq/vaulty/internal/notifier"
	awsx "github.com/cuongbtq/vaulty/shared/aws"
)

// fakeCloud stands in for the archive, topic, queue and object services
type fakeCloud struct {
	mu sync.Mutex

	vaults   map[string][]string // vault -> archive ids in upload order
	archives map[string]string   // archive id -> body
	deleted  []string
	gone     []string
	jobs     map[string]string // job id -> vault
	nextID   int

	buckets map[string]map[string]string // bucket -> key -> body
	order   map[string][]string          // bucket -> keys in listing order

	queue []awsx.Message

	uploadErr error
}

func newFakeCloud() *fakeCloud {
	return &fakeCloud{
		vaults:   map[string][]string{},
		archives: map[string]string{},
		jobs:     map[string]string{},
		buckets:  map[string]map[string]string{},
		order:    map[string][]string{},
	}
}

func (f *fakeCloud) addObject(bucket, key, body string) {
	if f.buckets[bucket] == nil {
		f.buckets[bucket] = map[string]string{}
	}
	f.buckets[bucket][key] = body
	f.order[bucket] = append(f.order[bucket], key)
}

// Vaults

func (f *fakeCloud) UploadArchive(_ context.Context, vault, description string, body io.ReadSeeker) (domain.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.uploadErr != nil {
		return domain.Outcome{}, f.uploadErr
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return domain.Outcome{}, err
	}

	f.nextID++
	id := fmt.Sprintf("archive-%d", f.nextID)
	f.vaults[vault] = append(f.vaults[vault], id)
	f.archives[id] = string(data)
	return domain.Outcome{ArchiveID: id, Checksum: "sum-" + description}, nil
}

func (f *fakeCloud) GetJobOutput(_ context.Context, vault, jobID string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.jobs[jobID] != vault {
		return nil, errors.New("ResourceNotFoundException")
	}
	inv := domain.Inventory{VaultARN: "arn:aws:glacier:eu:1:vaults/" + vault}
	for _, id := range f.vaults[vault] {
		inv.ArchiveList = append(inv.ArchiveList, domain.ArchiveItem{
			ArchiveID:          id,
			ArchiveDescription: "desc-" + id,
			Size:               int64(len(f.archives[id])),
		})
	}
	b, _ := json.Marshal(inv)
	return io.NopCloser(strings.NewReader(string(b))), nil
}

func (f *fakeCloud) DeleteArchive(_ context.Context, _, archiveID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.deleted = append(f.deleted, archiveID)
	return nil
}

func (f *fakeCloud) DeleteVault(_ context.Context, vault string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.gone = append(f.gone, vault)
	return nil
}

func (f *fakeCloud) SetNotifications(context.Context, string, string, []string) error {
	return nil
}

// InitiateJob completes the job at once and queues its notification
func (f *fakeCloud) InitiateJob(_ context.Context, vault string, params domain.JobParameters) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextID++
	jobID := fmt.Sprintf("job-%d", f.nextID)
	f.jobs[jobID] = vault

	inner, _ := json.Marshal(map[string]any{
		"JobId":      jobID,
		"Action":     "InventoryRetrieval",
		"StatusCode": domain.JobStatusSucceeded,
		"Completed":  true,
	})
	body, _ := json.Marshal(domain.Envelope{Type: "Notification", Message: string(inner)})
	f.queue = append(f.queue, awsx.Message{ID: jobID, Body: string(body), ReceiptHandle: "rh-" + jobID})
	return jobID, nil
}

func (f *fakeCloud) ListVaults(context.Context) ([]domain.Vault, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []domain.Vault
	for name, ids := range f.vaults {
		out = append(out, domain.Vault{Name: name, NumberOfArchives: int64(len(ids))})
	}
	slices.SortFunc(out, func(a, b domain.Vault) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

func (f *fakeCloud) CreateVault(_ context.Context, vault string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.vaults[vault]; !ok {
		f.vaults[vault] = nil
	}
	return "/-/vaults/" + vault, nil
}

func (f *fakeCloud) ListJobs(_ context.Context, vault string) ([]domain.JobDescription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []domain.JobDescription
	for id, v := range f.jobs {
		if v == vault {
			out = append(out, domain.JobDescription{JobID: id, Action: "InventoryRetrieval", Completed: true})
		}
	}
	return out, nil
}

// Topics

func (f *fakeCloud) CreateTopic(_ context.Context, name string) (string, error) {
	return "arn:aws:sns:eu:1:" + name, nil
}

func (f *fakeCloud) Subscribe(_ context.Context, topicARN, _, _ string) (string, error) {
	return topicARN + ":sub", nil
}

// Queues

func (f *fakeCloud) CreateQueue(_ context.Context, name string, _ int) (string, string, error) {
	return "https://sqs/" + name, "arn:aws:sqs:eu:1:" + name, nil
}

func (f *fakeCloud) SetPolicy(context.Context, string, string) error {
	return nil
}

func (f *fakeCloud) Receive(context.Context, string) ([]awsx.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	msgs := f.queue
	f.queue = nil
	return msgs, nil
}

func (f *fakeCloud) Delete(context.Context, string, string) error {
	return nil
}

// Buckets

func (f *fakeCloud) ListObjects(_ context.Context, bucket string, fn func(awsx.Object) error) error {
	for _, k := range f.order[bucket] {
		if err := fn(awsx.Object{Key: k, Size: int64(len(f.buckets[bucket][k]))}); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeCloud) Open(_ context.Context, bucket, key string) (io.ReadCloser, error) {
	body, ok := f.buckets[bucket][key]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

func (f *fakeCloud) Exists(_ context.Context, bucket string) (bool, error) {
	_, ok := f.buckets[bucket]
	return ok, nil
}

func (f *fakeCloud) EnsureBucket(_ context.Context, bucket string) error {
	if _, ok := f.buckets[bucket]; !ok {
		f.buckets[bucket] = map[string]string{}
	}
	return nil
}

func (f *fakeCloud) PutFile(_ context.Context, bucket, key, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	f.addObject(bucket, key, string(data))
	return nil
}

func (f *fakeCloud) Download(_ context.Context, bucket, key, path string) error {
	body, ok := f.buckets[bucket][key]
	if !ok {
		return errors.New("NoSuchKey")
	}
	return os.WriteFile(path, []byte(body), 0o644)
}

// eventLog records notifier events
type eventLog struct {
	events []notifier.Event
}

func (l *eventLog) Notify(_ context.Context, ev notifier.Event) error {
	l.events = append(l.events, ev)
	return nil
}
