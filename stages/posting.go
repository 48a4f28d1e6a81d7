package stages

import (
	"context"
	"fmt"
	"time"

	"github.com/deepnoodle-ai/invoiceflow"
)

// DefaultPaymentTerms applies when the invoice has no due date.
const DefaultPaymentTerms = 30 * 24 * time.Hour

// PostingStage posts the journal to the ERP and schedules payment.
type PostingStage struct{}

func NewPostingStage() invoiceflow.Stage {
	return &PostingStage{}
}

func (s *PostingStage) Name() string {
	return invoiceflow.StagePosting
}

func (s *PostingStage) Execute(ctx context.Context, inst *invoiceflow.Instance, rt *invoiceflow.Runtime) (*invoiceflow.Update, error) {
	if rt.ERP == nil {
		return nil, fmt.Errorf("no ERP connector configured")
	}
	var entries []invoiceflow.AccountingEntry
	if r := inst.Outputs.Reconcile; r != nil {
		entries = r.Entries
	}
	receipt, err := rt.ERP.PostJournal(ctx, &inst.Invoice, entries)
	if err != nil {
		return nil, fmt.Errorf("failed to post journal: %w", err)
	}
	due := dueDate(inst)
	if due == "" {
		due = rt.Now().Add(DefaultPaymentTerms).Format(time.DateOnly)
	}
	payment, err := rt.ERP.SchedulePayment(ctx, &inst.Invoice, due)
	if err != nil {
		return nil, fmt.Errorf("failed to schedule payment: %w", err)
	}
	invoiceflow.LoggerFromContext(ctx).Info("invoice posted",
		"transaction_id", receipt.TransactionID,
		"payment_id", payment.PaymentID,
		"scheduled_date", payment.ScheduledDate)
	return &invoiceflow.Update{Output: &invoiceflow.PostingOutput{
		TransactionID: receipt.TransactionID,
		Posted:        true,
		PaymentID:     payment.PaymentID,
		ScheduledDate: payment.ScheduledDate,
		PostedAt:      receipt.PostedAt,
	}}, nil
}
