package aws

import (
	"errors"

	"github.com/aws/smithy-go"
	"github.com/cuongbtq/vaulty/internal/domain"
)

// transientCodes are the request-timeout-class error codes worth retrying
var transientCodes = map[string]bool{
	"RequestTimeoutException": true,
	"RequestTimeout":          true,
}

// IsTransient reports whether err is a request-timeout-class service error
func IsTransient(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return transientCodes[apiErr.ErrorCode()]
	}
	return false
}

// classify tags err with the retry kind the transfer client acts on
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsTransient(err) {
		return domain.NewTransientError(op, err)
	}
	return domain.NewPermanentError(op, err)
}
