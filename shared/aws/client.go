// Package aws adapts the AWS SDK to the archive, topic, queue and object
// storage contracts used by vaulty.
package aws

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/glacier"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// Config holds AWS connection configuration
type Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string // optional, e.g. a localstack URL
}

// Clients bundles the service adapters built from one AWS configuration
type Clients struct {
	Vault   *Vault
	Topics  *Topics
	Queues  *Queues
	Buckets *Buckets
}

// NewClients loads AWS configuration and builds every adapter
func NewClients(ctx context.Context, cfg *Config, logger *slog.Logger) (*Clients, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	if cfg.Endpoint != "" {
		awsCfg.BaseEndpoint = aws.String(cfg.Endpoint)
	}

	logger.Info("AWS clients configured",
		slog.String("region", cfg.Region),
		slog.Bool("static_credentials", cfg.AccessKeyID != ""),
	)

	return &Clients{
		Vault:   NewVault(glacier.NewFromConfig(awsCfg)),
		Topics:  NewTopics(sns.NewFromConfig(awsCfg)),
		Queues:  NewQueues(sqs.NewFromConfig(awsCfg)),
		Buckets: NewBuckets(s3.NewFromConfig(awsCfg), cfg.Region),
	}, nil
}
