package schema

import "fmt"

// Validation error codes (E200-E209)
const (
	ErrMalformedJSON     = "E200" // document is not parseable JSON
	ErrContractViolation = "E201" // document violates the contract
	ErrContractLoad      = "E202" // contract itself failed to compile
)

// ValidationError represents one contract violation.
// Field is a slash-separated path into the document ("/" for the root).
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}
