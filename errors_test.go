package invoiceflow

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidationError(t *testing.T) {
	err := NewValidationError("amount", "must be positive, got %v", -1)
	require.Equal(t, "validation failed: amount: must be positive, got -1", err.Error())

	bare := &ValidationError{Message: "empty body"}
	require.Equal(t, "validation failed: empty body", bare.Error())
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"nil", nil, ""},
		{"validation", NewValidationError("invoice_id", "required"), ErrorKindValidation},
		{"joined validation", errors.Join(NewValidationError("a", "x"), NewValidationError("b", "y")), ErrorKindValidation},
		{"instance not found", fmt.Errorf("load: %w", ErrInstanceNotFound), ErrorKindNotFound},
		{"checkpoint not found", ErrCheckpointNotFound, ErrorKindNotFound},
		{"already decided", fmt.Errorf("attach: %w", ErrAlreadyDecided), ErrorKindConflict},
		{"not open", ErrCheckpointNotOpen, ErrorKindConflict},
		{"failed instance", ErrInstanceFailed, ErrorKindConflict},
		{"version conflict", ErrVersionConflict, ErrorKindConflict},
		{"deadline", context.DeadlineExceeded, ErrorKindTimeout},
		{"generic", errors.New("disk on fire"), ErrorKindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, ClassifyError(tt.err))
		})
	}
}

func TestStageErrorMessage(t *testing.T) {
	err := &StageError{Stage: StageRetrieve, Message: "erp unavailable"}
	require.Equal(t, "stage RETRIEVE failed: erp unavailable", err.Error())
}
