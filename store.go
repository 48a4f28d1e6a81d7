package invoiceflow

import (
	"context"
	"time"
)

// InstanceStore persists workflow instances.
//
// UpdateInstance is a compare-and-swap on Version: the write succeeds only
// if the stored version equals inst.Version, after which inst.Version is
// incremented. A mismatch returns ErrVersionConflict.
type InstanceStore interface {
	CreateInstance(ctx context.Context, inst *Instance) error
	GetInstance(ctx context.Context, id string) (*Instance, error)
	UpdateInstance(ctx context.Context, inst *Instance) error
	ListInstances(ctx context.Context, opts ListOptions) ([]*Instance, error)

	// CountInstances returns the number of instances with the given status,
	// or of all instances when status is empty.
	CountInstances(ctx context.Context, status Status) (int, error)
	DeleteInstance(ctx context.Context, id string) error
}

// CheckpointStore persists suspend checkpoints. It is the authoritative
// record of decisions.
type CheckpointStore interface {
	// PutCheckpoint inserts a checkpoint. Putting an id that already exists
	// leaves the stored record untouched.
	PutCheckpoint(ctx context.Context, cp *Checkpoint) error

	// GetCheckpoint returns ErrCheckpointNotFound for unknown ids.
	GetCheckpoint(ctx context.Context, id string) (*Checkpoint, error)

	// AttachDecision sets the decision exactly once. It returns
	// ErrAlreadyDecided if a decision is present and ErrCheckpointNotFound
	// if the id is unknown.
	AttachDecision(ctx context.Context, id string, d *Decision) (*Checkpoint, error)

	// ListCheckpoints returns an instance's checkpoints, oldest first.
	ListCheckpoints(ctx context.Context, instanceID string) ([]*Checkpoint, error)

	DeleteCheckpoints(ctx context.Context, instanceID string) error
}

// ReviewLedger is the log of checkpoints awaiting a human. It is an index
// derived from the checkpoint store and may lag behind it.
type ReviewLedger interface {
	// AppendReview adds an entry. Appending an existing checkpoint id is a
	// no-op.
	AppendReview(ctx context.Context, entry *ReviewEntry) error

	// ListUndecided returns entries without a decision, oldest first.
	ListUndecided(ctx context.Context) ([]*ReviewEntry, error)

	MarkDecided(ctx context.Context, checkpointID string, d *Decision) error
	DeleteReviews(ctx context.Context, instanceID string) error
}

// Store bundles the three stores. Backends usually implement all of them.
type Store interface {
	InstanceStore
	CheckpointStore
	ReviewLedger
}

// ListOptions filters ListInstances. Results are newest first.
type ListOptions struct {
	Status Status
	Limit  int
	Offset int
}

// InstanceSummary provides a summary view of an instance.
type InstanceSummary struct {
	InstanceID   string    `json:"instance_id"`
	InvoiceID    string    `json:"invoice_id"`
	VendorName   string    `json:"vendor_name"`
	Amount       float64   `json:"amount"`
	Status       Status    `json:"status"`
	CurrentStage string    `json:"current_stage"`
	Paused       bool      `json:"paused"`
	CheckpointID string    `json:"checkpoint_id,omitempty"`
	Error        string    `json:"error,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Summarize builds the summary view of inst.
func Summarize(inst *Instance) *InstanceSummary {
	s := &InstanceSummary{
		InstanceID:   inst.ID,
		InvoiceID:    inst.Invoice.InvoiceID,
		VendorName:   inst.Invoice.VendorName,
		Amount:       inst.Invoice.Amount,
		Status:       inst.Status,
		CurrentStage: inst.CurrentStage,
		Paused:       inst.Paused,
		CheckpointID: inst.PendingCheckpointID,
		CreatedAt:    inst.CreatedAt,
		UpdatedAt:    inst.UpdatedAt,
	}
	if inst.Error != nil {
		s.Error = inst.Error.Error()
	}
	return s
}

// paginate applies offset and limit to an already ordered slice.
func paginate[T any](items []T, opts ListOptions) []T {
	if opts.Offset > 0 {
		if opts.Offset >= len(items) {
			return []T{}
		}
		items = items[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(items) {
		items = items[:opts.Limit]
	}
	return items
}
