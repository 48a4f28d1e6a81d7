package stages

import (
	"context"
	"fmt"
	"strings"

	"github.com/deepnoodle-ai/invoiceflow"
)

// FinanceTeam receives a notification for every posted invoice.
const FinanceTeam = "finance-team"

// NotifyStage tells the vendor and the finance team about the posting.
type NotifyStage struct{}

func NewNotifyStage() invoiceflow.Stage {
	return &NotifyStage{}
}

func (s *NotifyStage) Name() string {
	return invoiceflow.StageNotify
}

func (s *NotifyStage) Execute(ctx context.Context, inst *invoiceflow.Instance, rt *invoiceflow.Runtime) (*invoiceflow.Update, error) {
	if rt.Email == nil {
		return nil, fmt.Errorf("no notifier configured")
	}
	inv := &inst.Invoice
	subject := fmt.Sprintf("Invoice %s processed", inv.InvoiceID)
	body := fmt.Sprintf("Invoice %s processed and posted.", inv.InvoiceID)
	if p := inst.Outputs.Posting; p != nil {
		body = fmt.Sprintf("Invoice %s processed and posted as %s. Payment %s is scheduled for %s.",
			inv.InvoiceID, p.TransactionID, p.PaymentID, p.ScheduledDate)
	}

	out := &invoiceflow.NotifyOutput{}
	for _, recipient := range []string{VendorEmail(inv.VendorName), FinanceTeam} {
		receipt, err := rt.Email.Notify(ctx, recipient, subject, body)
		if err != nil {
			return nil, fmt.Errorf("failed to notify %s: %w", recipient, err)
		}
		out.Notifications = append(out.Notifications, *receipt)
	}
	return &invoiceflow.Update{Output: out}, nil
}

// VendorEmail derives the notification address of a vendor.
func VendorEmail(vendor string) string {
	return "vendor@" + strings.ReplaceAll(strings.ToLower(vendor), " ", "") + ".com"
}
