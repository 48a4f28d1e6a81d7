package invoiceflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"
)

// DecisionRequest is a reviewer's response to a checkpoint.
type DecisionRequest struct {
	CheckpointID string `json:"checkpoint_id"`
	Decision     string `json:"decision"`
	ReviewerID   string `json:"reviewer_id,omitempty"`
	Notes        string `json:"notes,omitempty"`
}

// DecisionResult reports the outcome of a submitted decision.
type DecisionResult struct {
	InstanceID   string        `json:"instance_id"`
	CheckpointID string        `json:"checkpoint_id"`
	Decision     DecisionValue `json:"decision"`
	ReviewerID   string        `json:"reviewer_id"`
	ResumeToken  string        `json:"resume_token"`
	NextStage    string        `json:"next_stage"`
	Status       Status        `json:"status"`
	Message      string        `json:"message"`
}

// ResumeToken identifies the resumption of an instance from a checkpoint.
func ResumeToken(instanceID, checkpointID string) string {
	return instanceID + ":" + checkpointID
}

// ReviewDeskOptions configures a ReviewDesk.
type ReviewDeskOptions struct {
	Driver      *Driver
	Instances   InstanceStore
	Checkpoints CheckpointStore
	Ledger      ReviewLedger
	Logger      *slog.Logger

	// Concurrency bounds the live-state lookups made by PendingReviews.
	Concurrency int
}

// ReviewDesk accepts human decisions and computes the pending review view.
// It owns the cache of decisions received but not yet merged, and installs
// it as the decision source of the driver's runtime.
type ReviewDesk struct {
	driver      *Driver
	instances   InstanceStore
	checkpoints CheckpointStore
	ledger      ReviewLedger
	cache       *DecisionCache
	logger      *slog.Logger
	concurrency int
}

// NewReviewDesk creates a review desk bound to the driver.
func NewReviewDesk(opts ReviewDeskOptions) (*ReviewDesk, error) {
	if opts.Driver == nil {
		return nil, fmt.Errorf("driver is required")
	}
	if opts.Instances == nil || opts.Checkpoints == nil || opts.Ledger == nil {
		return nil, fmt.Errorf("instance store, checkpoint store and review ledger are required")
	}
	if opts.Logger == nil {
		opts.Logger = discardLogger()
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 8
	}
	cache := NewDecisionCache()
	opts.Driver.runtime.Decisions = cache
	return &ReviewDesk{
		driver:      opts.Driver,
		instances:   opts.Instances,
		checkpoints: opts.Checkpoints,
		ledger:      opts.Ledger,
		cache:       cache,
		logger:      opts.Logger,
		concurrency: opts.Concurrency,
	}, nil
}

// Decisions returns the desk's cache of received decisions.
func (r *ReviewDesk) Decisions() *DecisionCache {
	return r.cache
}

// SubmitDecision attaches a decision to a checkpoint and resumes the
// instance that owns it.
//
// The checkpoint store is written first and is authoritative. The ledger is
// then marked, the decision is cached and merged into the instance's
// decision slot, and the instance is stepped.
func (r *ReviewDesk) SubmitDecision(ctx context.Context, req DecisionRequest) (*DecisionResult, error) {
	value, err := ParseDecisionValue(req.Decision)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.CheckpointID) == "" {
		return nil, NewValidationError("checkpoint_id", "missing required field")
	}
	if !IsCheckpointID(req.CheckpointID) {
		return nil, ErrCheckpointNotFound
	}

	cp, err := r.checkpoints.GetCheckpoint(ctx, req.CheckpointID)
	if err != nil {
		return nil, err
	}
	if cp.Decision != nil {
		return nil, ErrAlreadyDecided
	}
	inst, err := r.instances.GetInstance(ctx, cp.InstanceID)
	if err != nil {
		return nil, err
	}
	if inst.Status != StatusPaused || inst.PendingCheckpointID != cp.ID {
		return nil, ErrCheckpointNotOpen
	}

	reviewer := strings.TrimSpace(req.ReviewerID)
	if reviewer == "" {
		reviewer = NewReviewerID()
	}
	decision := &Decision{
		Value:      value,
		ReviewerID: reviewer,
		Notes:      req.Notes,
		DecidedAt:  r.driver.runtime.Now(),
	}
	attached, err := r.checkpoints.AttachDecision(ctx, cp.ID, decision)
	if err != nil {
		return nil, err
	}
	logger := r.logger.With("instance_id", inst.ID, "checkpoint_id", cp.ID)
	logger.Info("decision recorded", "decision", value, "reviewer_id", reviewer)

	if err := r.ledger.MarkDecided(ctx, cp.ID, attached.Decision); err != nil {
		logger.Warn("failed to mark review ledger entry decided", "error", err)
	}

	r.cache.Put(inst.ID, attached.Decision)
	defer r.cache.Forget(inst.ID)

	result, err := r.driver.Resume(ctx, inst.ID, func(live *Instance) (bool, error) {
		if live.Status != StatusPaused || live.PendingCheckpointID != cp.ID {
			return false, ErrCheckpointNotOpen
		}
		if live.Decision != nil {
			return false, nil
		}
		d := *attached.Decision
		live.Decision = &d
		return true, nil
	})
	if err != nil {
		return nil, fmt.Errorf("decision recorded but resume failed: %w", err)
	}

	next := NextStageFor(value)
	return &DecisionResult{
		InstanceID:   inst.ID,
		CheckpointID: cp.ID,
		Decision:     value,
		ReviewerID:   reviewer,
		ResumeToken:  ResumeToken(inst.ID, cp.ID),
		NextStage:    next,
		Status:       result.Status,
		Message:      fmt.Sprintf("decision %s recorded; workflow resumed at %s", value, next),
	}, nil
}

// PendingReviews returns the ledger entries that still need a human. An
// entry is kept only while its instance is PAUSED on that checkpoint with
// an empty decision slot. Entries whose instance cannot be read are dropped.
func (r *ReviewDesk) PendingReviews(ctx context.Context) ([]*ReviewEntry, error) {
	entries, err := r.ledger.ListUndecided(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list undecided reviews: %w", err)
	}

	keep := make([]bool, len(entries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, entry := range entries {
		g.Go(func() error {
			inst, err := r.instances.GetInstance(gctx, entry.InstanceID)
			if err != nil {
				r.logger.Debug("dropping review entry", "checkpoint_id", entry.CheckpointID, "error", err)
				return nil
			}
			keep[i] = isAwaitingDecision(inst, entry.CheckpointID)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pending := make([]*ReviewEntry, 0, len(entries))
	for i, entry := range entries {
		if keep[i] {
			pending = append(pending, entry)
		}
	}
	return pending, nil
}

func isAwaitingDecision(inst *Instance, checkpointID string) bool {
	return inst.Status == StatusPaused &&
		inst.Decision == nil &&
		inst.PendingCheckpointID == checkpointID
}
