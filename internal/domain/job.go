package domain

import "encoding/json"

// Job types accepted by the archive service
const (
	JobTypeInventoryRetrieval = "inventory-retrieval"
	JobTypeArchiveRetrieval   = "archive-retrieval"
)

// Job output formats
const (
	JobFormatJSON = "JSON"
	JobFormatCSV  = "CSV"
)

// Vault events published to the notification topic
const (
	EventArchiveRetrievalCompleted   = "ArchiveRetrievalCompleted"
	EventInventoryRetrievalCompleted = "InventoryRetrievalCompleted"
)

// Job status codes reported in completion notifications
const (
	JobStatusInProgress = "InProgress"
	JobStatusSucceeded  = "Succeeded"
	JobStatusFailed     = "Failed"
)

// JobParameters describes a job to start
type JobParameters struct {
	Type        string
	Format      string
	Description string
	ArchiveID   string
}

// JobDescription is a job as listed by the archive service
type JobDescription struct {
	JobID          string `json:"JobId"`
	Action         string `json:"Action"`
	StatusCode     string `json:"StatusCode"`
	StatusMessage  string `json:"StatusMessage,omitempty"`
	Completed      bool   `json:"Completed"`
	CreationDate   string `json:"CreationDate,omitempty"`
	CompletionDate string `json:"CompletionDate,omitempty"`
	VaultARN       string `json:"VaultARN,omitempty"`
}

// Envelope is the topic delivery wrapper found in a queue message body.
// Message holds the serialized job notification.
type Envelope struct {
	Type      string `json:"Type"`
	MessageID string `json:"MessageId"`
	TopicARN  string `json:"TopicArn"`
	Message   string `json:"Message"`
	Timestamp string `json:"Timestamp"`
}

// JobNotification is the decoded job completion message. Fields carries the
// full inner object as decoded, including keys without a typed field.
type JobNotification struct {
	JobID          string `json:"JobId"`
	Action         string `json:"Action"`
	StatusCode     string `json:"StatusCode"`
	StatusMessage  string `json:"StatusMessage"`
	VaultARN       string `json:"VaultARN"`
	Completed      bool   `json:"Completed"`
	CreationDate   string `json:"CreationDate"`
	CompletionDate string `json:"CompletionDate"`

	Fields map[string]any `json:"-"`
}

// DecodeNotification unwraps both layers of a queue message body
func DecodeNotification(body []byte) (JobNotification, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return JobNotification{}, &decodeError{layer: "envelope", err: err}
	}

	var n JobNotification
	if err := json.Unmarshal([]byte(env.Message), &n); err != nil {
		return JobNotification{}, &decodeError{layer: "message", err: err}
	}
	if err := json.Unmarshal([]byte(env.Message), &n.Fields); err != nil {
		return JobNotification{}, &decodeError{layer: "message", err: err}
	}

	return n, nil
}

type decodeError struct {
	layer string
	err   error
}

func (e *decodeError) Error() string {
	return ErrInvalidNotification.Error() + ": " + e.layer + ": " + e.err.Error()
}

func (e *decodeError) Unwrap() []error {
	return []error{ErrInvalidNotification, e.err}
}
