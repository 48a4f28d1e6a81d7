package invoiceflow

import (
	"context"
	"log/slog"
	"time"
)

// TextExtractor turns invoice attachments into text.
type TextExtractor interface {
	Name() string
	ExtractText(ctx context.Context, attachments []string) (*ExtractedText, error)
}

// VendorEnricher looks up risk and credit data for a vendor.
type VendorEnricher interface {
	Name() string
	EnrichVendor(ctx context.Context, vendor, taxID string) (*VendorProfile, error)
}

// ERPConnector is the client for the system of record.
type ERPConnector interface {
	Name() string
	FetchPurchaseOrders(ctx context.Context, refs []string) ([]PurchaseOrder, error)
	FetchGoodsReceipts(ctx context.Context, poNumbers []string) ([]GoodsReceipt, error)
	FetchHistory(ctx context.Context, vendor string) ([]HistoricalInvoice, error)
	PostJournal(ctx context.Context, inv *Invoice, entries []AccountingEntry) (*PostingReceipt, error)
	SchedulePayment(ctx context.Context, inv *Invoice, dueDate string) (*PaymentSchedule, error)
}

// Notifier delivers notifications.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, recipient, subject, body string) (*NotificationReceipt, error)
}

// Collaborators are the external-system clients available to stages. They
// are resolved once at startup and shared read-only by every instance.
type Collaborators struct {
	OCR        TextExtractor
	Enrichment VendorEnricher
	ERP        ERPConnector
	Email      Notifier
}

// DecisionSource exposes decisions that have been received but possibly not
// yet merged into an instance.
type DecisionSource interface {
	Lookup(instanceID string) (*Decision, bool)
}

// Runtime is handed to every stage execution. Nothing in it is persisted
// with the instance.
type Runtime struct {
	Collaborators
	Decisions DecisionSource
	Logger    *slog.Logger
	Clock     func() time.Time
}

// Now returns the current time from the runtime clock.
func (rt *Runtime) Now() time.Time {
	if rt == nil || rt.Clock == nil {
		return time.Now().UTC()
	}
	return rt.Clock()
}

// Decision returns the decision for the instance, preferring one that has
// just been received over what the instance already carries.
func (rt *Runtime) Decision(inst *Instance) *Decision {
	if rt != nil && rt.Decisions != nil {
		if d, ok := rt.Decisions.Lookup(inst.ID); ok {
			return d
		}
	}
	return inst.Decision
}

func (rt *Runtime) logger() *slog.Logger {
	if rt == nil || rt.Logger == nil {
		return discardLogger()
	}
	return rt.Logger
}
