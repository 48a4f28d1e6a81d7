package invoiceflow

import (
	"context"
	"time"
)

// StageLogEntry records one stage execution.
type StageLogEntry struct {
	ID         string    `json:"id"`
	InstanceID string    `json:"instance_id"`
	Stage      string    `json:"stage"`
	Output     string    `json:"output,omitempty"`
	Route      string    `json:"route,omitempty"`
	Status     Status    `json:"status"`
	Error      string    `json:"error,omitempty"`
	StartTime  time.Time `json:"start_time"`
	Duration   float64   `json:"duration"`
}

// StageLogger keeps an audit trail of stage executions.
type StageLogger interface {
	// LogStage logs a completed stage
	LogStage(ctx context.Context, entry *StageLogEntry) error

	// GetStageHistory retrieves the stage log for an instance
	GetStageHistory(ctx context.Context, instanceID string) ([]*StageLogEntry, error)
}
