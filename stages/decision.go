package stages

import (
	"context"

	"github.com/deepnoodle-ai/invoiceflow"
)

// DecisionStage waits for the reviewer. Without a decision it asks to stay
// paused; with one it records the review and releases the instance.
type DecisionStage struct{}

func NewDecisionStage() invoiceflow.Stage {
	return &DecisionStage{}
}

func (s *DecisionStage) Name() string {
	return invoiceflow.StageDecision
}

func (s *DecisionStage) Execute(ctx context.Context, inst *invoiceflow.Instance, rt *invoiceflow.Runtime) (*invoiceflow.Update, error) {
	checkpointID := inst.PendingCheckpointID
	reason := invoiceflow.ReasonMatchFailed
	if cp := inst.Outputs.Checkpoint; cp != nil {
		if checkpointID == "" {
			checkpointID = cp.CheckpointID
		}
		reason = cp.ReasonForHold
	}

	d := rt.Decision(inst)
	if d == nil {
		return invoiceflow.Pause(reason), nil
	}
	next := invoiceflow.NextStageFor(d.Value)
	invoiceflow.LoggerFromContext(ctx).Info("decision observed",
		"checkpoint_id", checkpointID,
		"decision", d.Value,
		"reviewer_id", d.ReviewerID,
		"next_stage", next)
	decision := *d
	return &invoiceflow.Update{
		Output: &invoiceflow.ReviewOutput{
			Decision:    d.Value,
			ReviewerID:  d.ReviewerID,
			Notes:       d.Notes,
			ResumeToken: invoiceflow.ResumeToken(inst.ID, checkpointID),
			NextStage:   next,
			DecidedAt:   d.DecidedAt,
		},
		Status:   invoiceflow.StatusInProgress,
		Paused:   invoiceflow.Unpause(),
		Decision: &decision,
	}, nil
}
