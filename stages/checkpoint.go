package stages

import (
	"context"

	"github.com/deepnoodle-ai/invoiceflow"
)

// CheckpointStage prepares the human review of a failed match. The
// checkpoint itself is stored by the driver when the instance suspends.
type CheckpointStage struct{}

func NewCheckpointStage() invoiceflow.Stage {
	return &CheckpointStage{}
}

func (s *CheckpointStage) Name() string {
	return invoiceflow.StageCheckpoint
}

func (s *CheckpointStage) Execute(ctx context.Context, inst *invoiceflow.Instance, rt *invoiceflow.Runtime) (*invoiceflow.Update, error) {
	id := invoiceflow.NewCheckpointID()
	out := &invoiceflow.CheckpointOutput{
		CheckpointID:   id,
		ReasonForHold:  invoiceflow.ReasonMatchFailed,
		MismatchDetail: MismatchDetail(inst.Outputs.Match),
		FailedStage:    invoiceflow.StageMatch,
		ReviewURL:      invoiceflow.ReviewURL(inst.Settings.ReviewURLPrefix, id),
		Queue:          inst.Settings.ReviewQueue,
		CreatedAt:      rt.Now(),
	}
	invoiceflow.LoggerFromContext(ctx).Info("checkpoint prepared",
		"checkpoint_id", id,
		"reason", out.ReasonForHold,
		"detail", out.MismatchDetail)
	return &invoiceflow.Update{Output: out}, nil
}
