package stages

import (
	"context"
	"fmt"
	"math"

	"github.com/deepnoodle-ai/invoiceflow"
)

// Ledger accounts used by RECONCILE.
const (
	AccountPayable = "Accounts Payable"
	AccountExpense = "Expense Account"
)

// ReconcileStage builds the journal entries for the invoice.
type ReconcileStage struct{}

func NewReconcileStage() invoiceflow.Stage {
	return &ReconcileStage{}
}

func (s *ReconcileStage) Name() string {
	return invoiceflow.StageReconcile
}

func (s *ReconcileStage) Execute(ctx context.Context, inst *invoiceflow.Instance, rt *invoiceflow.Runtime) (*invoiceflow.Update, error) {
	inv := &inst.Invoice
	entries := []invoiceflow.AccountingEntry{
		{
			Account:     AccountPayable,
			Credit:      inv.Amount,
			Description: fmt.Sprintf("Invoice %s - AP", inv.InvoiceID),
		},
		{
			Account:     AccountExpense,
			Debit:       inv.Amount,
			Description: fmt.Sprintf("Invoice %s - Expense", inv.InvoiceID),
		},
	}
	var debit, credit float64
	for _, e := range entries {
		debit += e.Debit
		credit += e.Credit
	}
	return &invoiceflow.Update{Output: &invoiceflow.ReconcileOutput{
		Entries:      entries,
		Balanced:     math.Abs(debit-credit) < 0.005,
		ReconciledAt: rt.Now(),
	}}, nil
}
