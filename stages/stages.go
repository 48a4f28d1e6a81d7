// Package stages implements the invoice pipeline stages.
package stages

import (
	"github.com/deepnoodle-ai/invoiceflow"
	"github.com/deepnoodle-ai/invoiceflow/policy"
)

// All returns one implementation of every stage in the invoice graph.
// Approval policies are compiled by policies, or a new engine when nil.
func All(policies *policy.Engine) []invoiceflow.Stage {
	if policies == nil {
		policies = policy.NewEngine()
	}
	return []invoiceflow.Stage{
		NewIntakeStage(),
		NewUnderstandStage(),
		NewPrepareStage(),
		NewRetrieveStage(),
		NewMatchStage(),
		NewCheckpointStage(),
		NewDecisionStage(),
		NewReconcileStage(),
		NewApproveStage(policies),
		NewPostingStage(),
		NewNotifyStage(),
		NewCompleteStage(),
	}
}

// invoiceLines returns the line items extracted by UNDERSTAND, falling back
// to the payload.
func invoiceLines(inst *invoiceflow.Instance) []invoiceflow.LineItem {
	if u := inst.Outputs.Understand; u != nil && len(u.LineItems) > 0 {
		return u.LineItems
	}
	return inst.Invoice.LineItems
}

func vendorName(inst *invoiceflow.Instance) string {
	if p := inst.Outputs.Prepare; p != nil && p.NormalizedVendor != "" {
		return p.NormalizedVendor
	}
	return inst.Invoice.VendorName
}

func dueDate(inst *invoiceflow.Instance) string {
	if u := inst.Outputs.Understand; u != nil && u.DueDate != "" {
		return u.DueDate
	}
	return inst.Invoice.DueDate
}
