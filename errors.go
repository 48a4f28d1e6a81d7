package invoiceflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Protocol errors. Callers compare with errors.Is.
var (
	ErrInstanceNotFound   = errors.New("invoiceflow: instance not found")
	ErrCheckpointNotFound = errors.New("invoiceflow: checkpoint not found")
	ErrAlreadyDecided     = errors.New("invoiceflow: checkpoint already decided")
	ErrCheckpointNotOpen  = errors.New("invoiceflow: checkpoint is not the instance's open checkpoint")
	ErrInstanceFailed     = errors.New("invoiceflow: instance has failed and accepts no further steps")
	ErrVersionConflict    = errors.New("invoiceflow: instance was modified concurrently")
)

// ErrorKind is the coarse classification used by the control surface.
type ErrorKind string

const (
	ErrorKindValidation ErrorKind = "validation"
	ErrorKindNotFound   ErrorKind = "not_found"
	ErrorKindConflict   ErrorKind = "conflict"
	ErrorKindTimeout    ErrorKind = "timeout"
	ErrorKindInternal   ErrorKind = "internal"
)

// ValidationError reports a malformed invoice payload or decision request.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
}

// NewValidationError creates a ValidationError for the named field.
func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// StageError records a stage failure on the instance. Its presence forces
// the instance into the FAILED status.
type StageError struct {
	Stage       string `json:"stage"`
	Message     string `json:"message"`
	Recoverable bool   `json:"recoverable,omitempty"`
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed: %s", e.Stage, e.Message)
}

// ClassifyError maps an error onto an ErrorKind.
func ClassifyError(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var validationErr *ValidationError
	switch {
	case errors.As(err, &validationErr):
		return ErrorKindValidation
	case errors.Is(err, ErrInstanceNotFound), errors.Is(err, ErrCheckpointNotFound):
		return ErrorKindNotFound
	case errors.Is(err, ErrAlreadyDecided),
		errors.Is(err, ErrCheckpointNotOpen),
		errors.Is(err, ErrInstanceFailed),
		errors.Is(err, ErrVersionConflict):
		return ErrorKindConflict
	case errors.Is(err, context.DeadlineExceeded),
		strings.Contains(strings.ToLower(err.Error()), "timeout"):
		return ErrorKindTimeout
	default:
		return ErrorKindInternal
	}
}
