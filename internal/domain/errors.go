package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrEntryNotFound is returned when a ledger has no entry for a key
	ErrEntryNotFound = errors.New("ledger entry not found")

	// ErrAlreadyTransferred is returned when recording a success for a key that already holds one
	ErrAlreadyTransferred = errors.New("item already transferred")

	// ErrEmptyKey is returned when an item is submitted without a ledger key
	ErrEmptyKey = errors.New("item key must not be empty")

	// ErrRetriesExhausted is returned when every transfer attempt failed transiently
	ErrRetriesExhausted = errors.New("transfer retries exhausted")

	// ErrBucketNotFound is returned when the source bucket does not exist
	ErrBucketNotFound = errors.New("bucket could not be found")

	// ErrVaultExists is returned when a backup would reuse an existing vault
	ErrVaultExists = errors.New("vault does already exist, delete the vault and its inventory to proceed")

	// ErrInvalidNotification is returned when a queue message cannot be decoded
	ErrInvalidNotification = errors.New("invalid job notification")
)

// ErrorKind classifies a remote failure for retry decisions.
type ErrorKind int

const (
	// KindPermanent failures abort the item immediately.
	KindPermanent ErrorKind = iota
	// KindTransient failures are retried with backoff.
	KindTransient
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	default:
		return "permanent"
	}
}

// TransferError is the failure half of a remote call result
type TransferError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("%s failed (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// NewTransientError wraps err as a retryable failure of op
func NewTransientError(op string, err error) error {
	return &TransferError{Kind: KindTransient, Op: op, Err: err}
}

// NewPermanentError wraps err as a non-retryable failure of op
func NewPermanentError(op string, err error) error {
	return &TransferError{Kind: KindPermanent, Op: op, Err: err}
}

// KindOf reports how err should be treated. Errors that were never
// classified are permanent.
func KindOf(err error) ErrorKind {
	var te *TransferError
	if errors.As(err, &te) {
		return te.Kind
	}
	return KindPermanent
}
