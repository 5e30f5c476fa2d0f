package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

// SNSAPI is the subset of the SNS client used by Topics
type SNSAPI interface {
	CreateTopic(ctx context.Context, in *sns.CreateTopicInput, optFns ...func(*sns.Options)) (*sns.CreateTopicOutput, error)
	Subscribe(ctx context.Context, in *sns.SubscribeInput, optFns ...func(*sns.Options)) (*sns.SubscribeOutput, error)
}

// Topics manages notification topics
type Topics struct {
	api SNSAPI
}

// NewTopics wraps an SNS client
func NewTopics(api SNSAPI) *Topics {
	return &Topics{api: api}
}

// CreateTopic creates a topic or returns the existing one with the same name
func (t *Topics) CreateTopic(ctx context.Context, name string) (string, error) {
	out, err := t.api.CreateTopic(ctx, &sns.CreateTopicInput{Name: aws.String(name)})
	if err != nil {
		return "", fmt.Errorf("failed to create topic %s: %w", name, err)
	}
	return aws.ToString(out.TopicArn), nil
}

// Subscribe attaches an endpoint to a topic
func (t *Topics) Subscribe(ctx context.Context, topicARN, protocol, endpoint string) (string, error) {
	out, err := t.api.Subscribe(ctx, &sns.SubscribeInput{
		TopicArn: aws.String(topicARN),
		Protocol: aws.String(protocol),
		Endpoint: aws.String(endpoint),
	})
	if err != nil {
		return "", fmt.Errorf("failed to subscribe %s to %s: %w", endpoint, topicARN, err)
	}
	return aws.ToString(out.SubscriptionArn), nil
}
