// File: internal/scan/errors.go
package scan

import "fmt"

// ValidationError rejects a request before any external work starts. Unlike
// per-URL failures during scanning, a validation failure applies to the
// whole request: no partial results are produced.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// NewValidationError formats a request-shape rejection.
func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}
