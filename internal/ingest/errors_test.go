package ingest

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/aether/internal/schema"
)

func TestBatchErrorHelpers(t *testing.T) {
	details := []schema.ValidationError{{Field: "/events", Message: "required", Code: schema.ErrContractViolation}}

	reqErr := fmt.Errorf("submit: %w", newRequestError(details))
	breach := fmt.Errorf("submit: %w", newBreachError(details))

	assert.True(t, IsRequestInvalid(reqErr))
	assert.False(t, IsContractBreach(reqErr))
	assert.True(t, IsContractBreach(breach))
	assert.False(t, IsRequestInvalid(breach))

	assert.False(t, IsRequestInvalid(errors.New("other")))
	assert.False(t, IsContractBreach(ErrStopped))
}

func TestBatchErrorMessage(t *testing.T) {
	withDetails := newRequestError([]schema.ValidationError{
		{Field: "/events", Message: "required", Code: schema.ErrContractViolation},
		{Field: "/seqStart", Message: "negative", Code: schema.ErrContractViolation},
	})
	assert.Equal(t,
		"SCHEMA_INVALID: request does not satisfy the batch contract (2 violations, first: [E201] /events: required)",
		withDetails.Error())

	bare := &BatchError{Code: CodeResponseInvalid, Message: "boom"}
	assert.Equal(t, "SERVER_RESPONSE_INVALID: boom", bare.Error())
}
