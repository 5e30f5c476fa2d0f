package aws

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/glacier"
	"github.com/aws/aws-sdk-go-v2/service/glacier/types"
	"github.com/cuongbtq/vaulty/internal/domain"
)

// accountID "-" selects the account owning the credentials
const accountID = "-"

// GlacierAPI is the subset of the Glacier client used by Vault
type GlacierAPI interface {
	UploadArchive(ctx context.Context, in *glacier.UploadArchiveInput, optFns ...func(*glacier.Options)) (*glacier.UploadArchiveOutput, error)
	DeleteArchive(ctx context.Context, in *glacier.DeleteArchiveInput, optFns ...func(*glacier.Options)) (*glacier.DeleteArchiveOutput, error)
	CreateVault(ctx context.Context, in *glacier.CreateVaultInput, optFns ...func(*glacier.Options)) (*glacier.CreateVaultOutput, error)
	DeleteVault(ctx context.Context, in *glacier.DeleteVaultInput, optFns ...func(*glacier.Options)) (*glacier.DeleteVaultOutput, error)
	ListVaults(ctx context.Context, in *glacier.ListVaultsInput, optFns ...func(*glacier.Options)) (*glacier.ListVaultsOutput, error)
	ListJobs(ctx context.Context, in *glacier.ListJobsInput, optFns ...func(*glacier.Options)) (*glacier.ListJobsOutput, error)
	InitiateJob(ctx context.Context, in *glacier.InitiateJobInput, optFns ...func(*glacier.Options)) (*glacier.InitiateJobOutput, error)
	GetJobOutput(ctx context.Context, in *glacier.GetJobOutputInput, optFns ...func(*glacier.Options)) (*glacier.GetJobOutputOutput, error)
	SetVaultNotifications(ctx context.Context, in *glacier.SetVaultNotificationsInput, optFns ...func(*glacier.Options)) (*glacier.SetVaultNotificationsOutput, error)
}

// Vault talks to the archive service
type Vault struct {
	api GlacierAPI
}

// NewVault wraps a Glacier client
func NewVault(api GlacierAPI) *Vault {
	return &Vault{api: api}
}

// UploadArchive stores body as one archive. Errors are classified as
// transient or permanent.
func (v *Vault) UploadArchive(ctx context.Context, vault, description string, body io.ReadSeeker) (domain.Outcome, error) {
	out, err := v.api.UploadArchive(ctx, &glacier.UploadArchiveInput{
		AccountId:          aws.String(accountID),
		VaultName:          aws.String(vault),
		ArchiveDescription: aws.String(description),
		Body:               body,
	})
	if err != nil {
		return domain.Outcome{}, classify("upload archive", err)
	}

	return domain.Outcome{
		ArchiveID: aws.ToString(out.ArchiveId),
		Checksum:  aws.ToString(out.Checksum),
		Location:  aws.ToString(out.Location),
	}, nil
}

// DeleteArchive removes one archive by id
func (v *Vault) DeleteArchive(ctx context.Context, vault, archiveID string) error {
	_, err := v.api.DeleteArchive(ctx, &glacier.DeleteArchiveInput{
		AccountId: aws.String(accountID),
		VaultName: aws.String(vault),
		ArchiveId: aws.String(archiveID),
	})
	return classify("delete archive", err)
}

// CreateVault creates a vault and returns its location
func (v *Vault) CreateVault(ctx context.Context, vault string) (string, error) {
	out, err := v.api.CreateVault(ctx, &glacier.CreateVaultInput{
		AccountId: aws.String(accountID),
		VaultName: aws.String(vault),
	})
	if err != nil {
		return "", fmt.Errorf("failed to create vault %s: %w", vault, err)
	}
	return aws.ToString(out.Location), nil
}

// DeleteVault removes an empty vault
func (v *Vault) DeleteVault(ctx context.Context, vault string) error {
	_, err := v.api.DeleteVault(ctx, &glacier.DeleteVaultInput{
		AccountId: aws.String(accountID),
		VaultName: aws.String(vault),
	})
	if err != nil {
		return fmt.Errorf("failed to delete vault %s: %w", vault, err)
	}
	return nil
}

// ListVaults returns every vault of the account
func (v *Vault) ListVaults(ctx context.Context) ([]domain.Vault, error) {
	var (
		vaults []domain.Vault
		marker *string
	)
	for {
		out, err := v.api.ListVaults(ctx, &glacier.ListVaultsInput{
			AccountId: aws.String(accountID),
			Marker:    marker,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list vaults: %w", err)
		}

		for _, d := range out.VaultList {
			vaults = append(vaults, domain.Vault{
				Name:              aws.ToString(d.VaultName),
				ARN:               aws.ToString(d.VaultARN),
				CreationDate:      aws.ToString(d.CreationDate),
				LastInventoryDate: aws.ToString(d.LastInventoryDate),
				NumberOfArchives:  d.NumberOfArchives,
				SizeInBytes:       d.SizeInBytes,
			})
		}

		if aws.ToString(out.Marker) == "" {
			return vaults, nil
		}
		marker = out.Marker
	}
}

// ListJobs returns the open and recently finished jobs of a vault
func (v *Vault) ListJobs(ctx context.Context, vault string) ([]domain.JobDescription, error) {
	var (
		jobs   []domain.JobDescription
		marker *string
	)
	for {
		out, err := v.api.ListJobs(ctx, &glacier.ListJobsInput{
			AccountId: aws.String(accountID),
			VaultName: aws.String(vault),
			Marker:    marker,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list jobs of vault %s: %w", vault, err)
		}

		for _, j := range out.JobList {
			jobs = append(jobs, describeJob(j))
		}

		if aws.ToString(out.Marker) == "" {
			return jobs, nil
		}
		marker = out.Marker
	}
}

func describeJob(j types.GlacierJobDescription) domain.JobDescription {
	return domain.JobDescription{
		JobID:          aws.ToString(j.JobId),
		Action:         string(j.Action),
		StatusCode:     string(j.StatusCode),
		StatusMessage:  aws.ToString(j.StatusMessage),
		Completed:      j.Completed,
		CreationDate:   aws.ToString(j.CreationDate),
		CompletionDate: aws.ToString(j.CompletionDate),
		VaultARN:       aws.ToString(j.VaultARN),
	}
}

// InitiateJob starts an asynchronous job and returns its id
func (v *Vault) InitiateJob(ctx context.Context, vault string, params domain.JobParameters) (string, error) {
	jp := &types.JobParameters{
		Type:   aws.String(params.Type),
		Format: aws.String(params.Format),
	}
	if params.Description != "" {
		jp.Description = aws.String(params.Description)
	}
	if params.ArchiveID != "" {
		jp.ArchiveId = aws.String(params.ArchiveID)
	}

	out, err := v.api.InitiateJob(ctx, &glacier.InitiateJobInput{
		AccountId:     aws.String(accountID),
		VaultName:     aws.String(vault),
		JobParameters: jp,
	})
	if err != nil {
		return "", fmt.Errorf("failed to initiate %s job on vault %s: %w", params.Type, vault, err)
	}
	return aws.ToString(out.JobId), nil
}

// GetJobOutput opens the result payload of a finished job. The caller closes it.
func (v *Vault) GetJobOutput(ctx context.Context, vault, jobID string) (io.ReadCloser, error) {
	out, err := v.api.GetJobOutput(ctx, &glacier.GetJobOutputInput{
		AccountId: aws.String(accountID),
		VaultName: aws.String(vault),
		JobId:     aws.String(jobID),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get output of job %s: %w", jobID, err)
	}
	return out.Body, nil
}

// SetNotifications makes the vault publish events to topicARN
func (v *Vault) SetNotifications(ctx context.Context, vault, topicARN string, events []string) error {
	_, err := v.api.SetVaultNotifications(ctx, &glacier.SetVaultNotificationsInput{
		AccountId: aws.String(accountID),
		VaultName: aws.String(vault),
		VaultNotificationConfig: &types.VaultNotificationConfig{
			SNSTopic: aws.String(topicARN),
			Events:   events,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to set notifications of vault %s: %w", vault, err)
	}
	return nil
}
