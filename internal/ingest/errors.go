package ingest

import (
	"errors"
	"fmt"

	"github.com/roach88/aether/internal/schema"
)

// Batch-level error codes, as they appear in the "error" field of an
// HTTP error body.
const (
	// CodeSchemaInvalid means the request failed the request contract.
	// No event in the batch was applied.
	CodeSchemaInvalid = "SCHEMA_INVALID"

	// CodeResponseInvalid means the assembled response failed the response
	// contract. Events in the batch were applied; the response is withheld.
	CodeResponseInvalid = "SERVER_RESPONSE_INVALID"
)

// ErrStopped is returned by Submit once the ingestor has been stopped.
var ErrStopped = errors.New("ingestor stopped")

// BatchError rejects a whole batch.
type BatchError struct {
	Code    string
	Message string
	Details []schema.ValidationError
}

// Error implements the error interface.
func (e *BatchError) Error() string {
	if len(e.Details) == 0 {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s (%d violations, first: %s)", e.Code, e.Message, len(e.Details), e.Details[0].Error())
}

// IsRequestInvalid reports whether err rejects a batch for failing the
// request contract. Uses errors.As to handle wrapped errors.
func IsRequestInvalid(err error) bool {
	var be *BatchError
	if errors.As(err, &be) {
		return be.Code == CodeSchemaInvalid
	}
	return false
}

// IsContractBreach reports whether err is a response contract breach.
func IsContractBreach(err error) bool {
	var be *BatchError
	if errors.As(err, &be) {
		return be.Code == CodeResponseInvalid
	}
	return false
}

func newRequestError(details []schema.ValidationError) *BatchError {
	return &BatchError{
		Code:    CodeSchemaInvalid,
		Message: "request does not satisfy the batch contract",
		Details: details,
	}
}

func newBreachError(details []schema.ValidationError) *BatchError {
	return &BatchError{
		Code:    CodeResponseInvalid,
		Message: "assembled response does not satisfy the response contract",
		Details: details,
	}
}
