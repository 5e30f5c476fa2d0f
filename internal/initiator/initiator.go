// Package initiator builds the notification path from a vault to a queue and
// starts asynchronous vault jobs.
package initiator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/cuongbtq/vaulty/internal/domain"
)

// Vaults is the archive service surface used by the initiator
type Vaults interface {
	SetNotifications(ctx context.Context, vault, topicARN string, events []string) error
	InitiateJob(ctx context.Context, vault string, params domain.JobParameters) (string, error)
}

// Topics is the topic service surface used by the initiator
type Topics interface {
	CreateTopic(ctx context.Context, name string) (string, error)
	Subscribe(ctx context.Context, topicARN, protocol, endpoint string) (string, error)
}

// Queues is the queue service surface used by the initiator
type Queues interface {
	CreateQueue(ctx context.Context, name string, delaySeconds int) (url, arn string, err error)
	SetPolicy(ctx context.Context, url, policy string) error
}

// NotificationPath identifies the resources a vault job reports through
type NotificationPath struct {
	TopicARN        string
	QueueURL        string
	QueueARN        string
	SubscriptionARN string
}

// Initiator prepares notification paths and starts jobs
type Initiator struct {
	vaults Vaults
	topics Topics
	queues Queues
	logger *slog.Logger
}

// New creates an Initiator
func New(vaults Vaults, topics Topics, queues Queues, logger *slog.Logger) *Initiator {
	return &Initiator{
		vaults: vaults,
		topics: topics,
		queues: queues,
		logger: logger,
	}
}

var invalidNameChars = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// Sanitize strips every character that is not allowed in topic and queue names
func Sanitize(name string) string {
	return invalidNameChars.ReplaceAllString(name, "")
}

// PrepareNotificationPath wires vault → topic → queue. Creating the topic and
// queue is idempotent on the service side, so the path can be prepared again
// for the same vault. A failing step aborts; earlier steps are not undone.
func (i *Initiator) PrepareNotificationPath(ctx context.Context, vault string) (NotificationPath, error) {
	var path NotificationPath
	name := Sanitize(vault)

	topicARN, err := i.topics.CreateTopic(ctx, name)
	if err != nil {
		return path, fmt.Errorf("create topic: %w", err)
	}
	path.TopicARN = topicARN

	events := []string{domain.EventArchiveRetrievalCompleted, domain.EventInventoryRetrievalCompleted}
	if err := i.vaults.SetNotifications(ctx, vault, topicARN, events); err != nil {
		return path, fmt.Errorf("set vault notifications: %w", err)
	}

	url, arn, err := i.queues.CreateQueue(ctx, name, 0)
	if err != nil {
		return path, fmt.Errorf("create queue: %w", err)
	}
	path.QueueURL = url
	path.QueueARN = arn

	policy, err := QueuePolicy(arn)
	if err != nil {
		return path, fmt.Errorf("build queue policy: %w", err)
	}
	if err := i.queues.SetPolicy(ctx, url, policy); err != nil {
		return path, fmt.Errorf("set queue policy: %w", err)
	}

	subARN, err := i.topics.Subscribe(ctx, topicARN, "sqs", arn)
	if err != nil {
		return path, fmt.Errorf("subscribe queue: %w", err)
	}
	path.SubscriptionARN = subARN

	i.logger.Info("Notification path ready",
		slog.String("vault", vault),
		slog.String("topic_arn", topicARN),
		slog.String("queue_url", url),
	)

	return path, nil
}

// InitiateJob starts a job on vault and returns its id. Type defaults to an
// inventory retrieval and Format to JSON.
func (i *Initiator) InitiateJob(ctx context.Context, vault string, params domain.JobParameters) (string, error) {
	if params.Type == "" {
		params.Type = domain.JobTypeInventoryRetrieval
	}
	if params.Format == "" {
		params.Format = domain.JobFormatJSON
	}

	jobID, err := i.vaults.InitiateJob(ctx, vault, params)
	if err != nil {
		return "", err
	}

	i.logger.Info("Job initiated",
		slog.String("vault", vault),
		slog.String("job_id", jobID),
		slog.String("type", params.Type),
	)
	return jobID, nil
}

type policyStatement struct {
	Sid       string   `json:"Sid"`
	Effect    string   `json:"Effect"`
	Principal string   `json:"Principal"`
	Action    []string `json:"Action"`
	Resource  string   `json:"Resource"`
}

type policyDocument struct {
	Version   string            `json:"Version"`
	ID        string            `json:"Id"`
	Statement []policyStatement `json:"Statement"`
}

// QueuePolicy returns the access policy that lets the topic deliver into the queue
func QueuePolicy(queueARN string) (string, error) {
	doc := policyDocument{
		Version: "2008-10-17",
		ID:      queueARN + "/SQSDefaultPolicy",
		Statement: []policyStatement{{
			Sid:       "SNSNotification",
			Effect:    "Allow",
			Principal: "*",
			Action:    []string{"SQS:SendMessage"},
			Resource:  queueARN,
		}},
	}

	b, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
