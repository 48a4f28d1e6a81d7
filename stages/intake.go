package stages

import (
	"context"
	"fmt"

	"github.com/deepnoodle-ai/invoiceflow"
)

// IntakeStage validates the payload and stamps its ingestion.
type IntakeStage struct{}

func NewIntakeStage() invoiceflow.Stage {
	return &IntakeStage{}
}

func (s *IntakeStage) Name() string {
	return invoiceflow.StageIntake
}

func (s *IntakeStage) Execute(ctx context.Context, inst *invoiceflow.Instance, rt *invoiceflow.Runtime) (*invoiceflow.Update, error) {
	if err := invoiceflow.ValidateInvoice(&inst.Invoice); err != nil {
		return nil, err
	}
	now := rt.Now()
	out := &invoiceflow.IntakeOutput{
		RawID:     fmt.Sprintf("raw_%s_%d", inst.Invoice.InvoiceID, now.Unix()),
		IngestTS:  now,
		Validated: true,
	}
	invoiceflow.LoggerFromContext(ctx).Info("invoice accepted", "invoice_id", inst.Invoice.InvoiceID, "raw_id", out.RawID)
	return &invoiceflow.Update{Output: out}, nil
}
