package aws

import (
	"context"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// SQSAPI is the subset of the SQS client used by Queues
type SQSAPI interface {
	CreateQueue(ctx context.Context, in *sqs.CreateQueueInput, optFns ...func(*sqs.Options)) (*sqs.CreateQueueOutput, error)
	GetQueueAttributes(ctx context.Context, in *sqs.GetQueueAttributesInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueAttributesOutput, error)
	SetQueueAttributes(ctx context.Context, in *sqs.SetQueueAttributesInput, optFns ...func(*sqs.Options)) (*sqs.SetQueueAttributesOutput, error)
	ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// Message is one received queue message
type Message struct {
	ID            string
	Body          string
	ReceiptHandle string
}

// Queues manages and reads message queues
type Queues struct {
	api SQSAPI

	// MaxMessages bounds one receive call, the service allows at most 10
	MaxMessages int32
}

// NewQueues wraps an SQS client
func NewQueues(api SQSAPI) *Queues {
	return &Queues{api: api, MaxMessages: 10}
}

// CreateQueue creates a queue, or returns the existing one, and resolves its ARN
func (q *Queues) CreateQueue(ctx context.Context, name string, delaySeconds int) (url, arn string, err error) {
	out, err := q.api.CreateQueue(ctx, &sqs.CreateQueueInput{
		QueueName: aws.String(name),
		Attributes: map[string]string{
			string(types.QueueAttributeNameDelaySeconds): strconv.Itoa(delaySeconds),
		},
	})
	if err != nil {
		return "", "", fmt.Errorf("failed to create queue %s: %w", name, err)
	}
	url = aws.ToString(out.QueueUrl)

	attrs, err := q.api.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl:       aws.String(url),
		AttributeNames: []types.QueueAttributeName{types.QueueAttributeNameQueueArn},
	})
	if err != nil {
		return "", "", fmt.Errorf("failed to get arn of queue %s: %w", name, err)
	}

	arn = attrs.Attributes[string(types.QueueAttributeNameQueueArn)]
	if arn == "" {
		return "", "", fmt.Errorf("queue %s has no arn attribute", name)
	}
	return url, arn, nil
}

// SetPolicy replaces the access policy of a queue
func (q *Queues) SetPolicy(ctx context.Context, url, policy string) error {
	_, err := q.api.SetQueueAttributes(ctx, &sqs.SetQueueAttributesInput{
		QueueUrl: aws.String(url),
		Attributes: map[string]string{
			string(types.QueueAttributeNamePolicy): policy,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to set policy of queue %s: %w", url, err)
	}
	return nil
}

// Receive fetches the next batch of messages without waiting
func (q *Queues) Receive(ctx context.Context, url string) ([]Message, error) {
	out, err := q.api.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(url),
		MaxNumberOfMessages: q.MaxMessages,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to receive from %s: %w", url, err)
	}

	msgs := make([]Message, 0, len(out.Messages))
	for _, m := range out.Messages {
		msgs = append(msgs, Message{
			ID:            aws.ToString(m.MessageId),
			Body:          aws.ToString(m.Body),
			ReceiptHandle: aws.ToString(m.ReceiptHandle),
		})
	}
	return msgs, nil
}

// Delete removes a received message from the queue
func (q *Queues) Delete(ctx context.Context, url, receiptHandle string) error {
	_, err := q.api.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(url),
		ReceiptHandle: aws.String(receiptHandle),
	})
	if err != nil {
		return fmt.Errorf("failed to delete message from %s: %w", url, err)
	}
	return nil
}
