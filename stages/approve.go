package stages

import (
	"context"
	"fmt"

	"github.com/deepnoodle-ai/invoiceflow"
	"github.com/deepnoodle-ai/invoiceflow/policy"
)

// SystemApprover is recorded on invoices approved by policy.
const SystemApprover = "system"

// ApproveStage applies the auto-approve policy. Invoices outside the policy
// are marked REQUIRES_APPROVAL and assigned to the configured approver; the
// pipeline does not wait for that approver.
type ApproveStage struct {
	policies *policy.Engine
}

func NewApproveStage(policies *policy.Engine) invoiceflow.Stage {
	return &ApproveStage{policies: policies}
}

func (s *ApproveStage) Name() string {
	return invoiceflow.StageApprove
}

func (s *ApproveStage) Execute(ctx context.Context, inst *invoiceflow.Instance, rt *invoiceflow.Runtime) (*invoiceflow.Update, error) {
	source := inst.Settings.AutoApprovePolicy
	facts := policy.Facts{
		Amount:   inst.Invoice.Amount,
		Vendor:   vendorName(inst),
		Currency: inst.Invoice.Currency,
	}
	if p := inst.Outputs.Prepare; p != nil {
		facts.RiskScore = p.RiskScore
	}
	approved, err := s.policies.Evaluate(ctx, source, facts)
	if err != nil {
		return nil, fmt.Errorf("approval policy: %w", err)
	}
	out := &invoiceflow.ApproveOutput{
		Status:    invoiceflow.ApprovalAutoApproved,
		Approver:  SystemApprover,
		Policy:    source,
		DecidedAt: rt.Now(),
	}
	if !approved {
		out.Status = invoiceflow.ApprovalRequiresApproval
		out.Approver = inst.Settings.ApproverID
	}
	invoiceflow.LoggerFromContext(ctx).Info("approval evaluated", "status", out.Status, "approver", out.Approver)
	return &invoiceflow.Update{Output: out}, nil
}
