package invoiceflow

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// SweeperReviewerID is the reviewer recorded on decisions made by Sweep.
const SweeperReviewerID = "system:sweeper"

// SweepResult lists the checkpoints rejected by a sweep.
type SweepResult struct {
	Rejected []string `json:"rejected"`
}

// Sweep rejects every pending checkpoint older than maxAge, as seen at now.
// It is a policy layered over SubmitDecision; failures on one checkpoint do
// not stop the others and are returned joined.
func (e *Engine) Sweep(ctx context.Context, maxAge time.Duration, now time.Time) (*SweepResult, error) {
	if maxAge <= 0 {
		return nil, fmt.Errorf("sweep max age must be positive")
	}
	pending, err := e.PendingReviews(ctx)
	if err != nil {
		return nil, err
	}
	result := &SweepResult{Rejected: []string{}}
	var errs []error
	for _, entry := range pending {
		if now.Sub(entry.CreatedAt) < maxAge {
			continue
		}
		_, err := e.SubmitDecision(ctx, DecisionRequest{
			CheckpointID: entry.CheckpointID,
			Decision:     string(DecisionReject),
			ReviewerID:   SweeperReviewerID,
			Notes:        fmt.Sprintf("auto-rejected after waiting more than %s", maxAge),
		})
		if err != nil {
			if errors.Is(err, ErrAlreadyDecided) || errors.Is(err, ErrCheckpointNotOpen) {
				continue
			}
			errs = append(errs, fmt.Errorf("checkpoint %s: %w", entry.CheckpointID, err))
			continue
		}
		result.Rejected = append(result.Rejected, entry.CheckpointID)
	}
	if len(result.Rejected) > 0 {
		e.logger.Info("sweep rejected stale checkpoints", "count", len(result.Rejected), "max_age", maxAge)
	}
	return result, errors.Join(errs...)
}
