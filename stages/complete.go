package stages

import (
	"context"
	"fmt"

	"github.com/deepnoodle-ai/invoiceflow"
)

// CompleteStage assembles the final payload and sets the terminal status.
type CompleteStage struct{}

func NewCompleteStage() invoiceflow.Stage {
	return &CompleteStage{}
}

func (s *CompleteStage) Name() string {
	return invoiceflow.StageComplete
}

func (s *CompleteStage) Execute(ctx context.Context, inst *invoiceflow.Instance, rt *invoiceflow.Runtime) (*invoiceflow.Update, error) {
	status := invoiceflow.StatusCompleted
	var decision invoiceflow.DecisionValue
	if r := inst.Outputs.Review; r != nil {
		decision = r.Decision
	}
	if decision == invoiceflow.DecisionReject {
		status = invoiceflow.StatusRequiresManualHandling
	}

	inv := &inst.Invoice
	payload := invoiceflow.FinalPayload{
		InvoiceID:       inv.InvoiceID,
		Vendor:          vendorName(inst),
		Amount:          inv.Amount,
		Currency:        inv.Currency,
		Status:          status,
		Decision:        decision,
		StagesCompleted: append(inst.Outputs.Stages(), invoiceflow.StageComplete),
	}
	if p := inst.Outputs.Posting; p != nil {
		payload.TransactionID = p.TransactionID
	}

	var audit []invoiceflow.AuditEvent
	for _, stage := range inst.Outputs.Stages() {
		audit = append(audit, invoiceflow.AuditEvent{Stage: stage, Detail: auditDetail(inst.Outputs.Get(stage))})
	}
	audit = append(audit, invoiceflow.AuditEvent{Stage: invoiceflow.StageComplete, Detail: "workflow finalized as " + string(status)})

	return &invoiceflow.Update{
		Output: &invoiceflow.CompleteOutput{
			FinalPayload: payload,
			AuditLog:     audit,
			CompletedAt:  rt.Now(),
		},
		Status: status,
	}, nil
}

func auditDetail(out invoiceflow.StageOutput) string {
	switch o := out.(type) {
	case *invoiceflow.IntakeOutput:
		return "accepted as " + o.RawID
	case *invoiceflow.UnderstandOutput:
		return fmt.Sprintf("%d line items, %d PO references", len(o.LineItems), len(o.POReferences))
	case *invoiceflow.PrepareOutput:
		return fmt.Sprintf("vendor %s, risk %.2f", o.NormalizedVendor, o.RiskScore)
	case *invoiceflow.RetrieveOutput:
		return fmt.Sprintf("%d purchase orders from %s", len(o.PurchaseOrders), o.Provider)
	case *invoiceflow.MatchOutput:
		return fmt.Sprintf("%s with score %.2f", o.Result, o.Score)
	case *invoiceflow.CheckpointOutput:
		return "held for review at " + o.CheckpointID
	case *invoiceflow.ReviewOutput:
		return fmt.Sprintf("%s by %s", o.Decision, o.ReviewerID)
	case *invoiceflow.ReconcileOutput:
		return fmt.Sprintf("%d journal entries", len(o.Entries))
	case *invoiceflow.ApproveOutput:
		return fmt.Sprintf("%s by %s", o.Status, o.Approver)
	case *invoiceflow.PostingOutput:
		return "posted as " + o.TransactionID
	case *invoiceflow.NotifyOutput:
		return fmt.Sprintf("%d notifications sent", len(o.Notifications))
	}
	return ""
}
