package tools

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/deepnoodle-ai/invoiceflow"
)

// DefaultPONumber is the reference fetched when an invoice names none.
const DefaultPONumber = "PO-2024-001"

// DefaultPurchaseOrders is the mock ERP catalog used when none is configured.
func DefaultPurchaseOrders() []invoiceflow.PurchaseOrder {
	return []invoiceflow.PurchaseOrder{{
		PONumber: DefaultPONumber,
		Vendor:   "Acme Corp",
		Total:    1000.00,
		Status:   "OPEN",
		LineItems: []invoiceflow.LineItem{
			{Description: "Widget A", Qty: 10, UnitPrice: 50.00, Total: 500.00},
			{Description: "Widget B", Qty: 5, UnitPrice: 100.00, Total: 500.00},
		},
	}}
}

// MockERP serves purchase orders from an in-memory catalog and records
// postings. A reference missing from the catalog is answered with a copy of
// the first catalog entry under the requested number.
type MockERP struct {
	clock func() time.Time

	mu       sync.Mutex
	catalog  map[string]invoiceflow.PurchaseOrder
	order    []string
	postings map[string][]invoiceflow.AccountingEntry
}

// NewMockERP creates a mock ERP over catalog, or the default catalog when
// catalog is empty.
func NewMockERP(catalog []invoiceflow.PurchaseOrder) *MockERP {
	if len(catalog) == 0 {
		catalog = DefaultPurchaseOrders()
	}
	erp := &MockERP{
		clock:    time.Now,
		catalog:  map[string]invoiceflow.PurchaseOrder{},
		postings: map[string][]invoiceflow.AccountingEntry{},
	}
	for _, po := range catalog {
		if po.Total == 0 {
			po.Total = invoiceflow.LineTotal(po.LineItems)
		}
		if _, ok := erp.catalog[po.PONumber]; !ok {
			erp.order = append(erp.order, po.PONumber)
		}
		erp.catalog[po.PONumber] = po
	}
	return erp
}

func (e *MockERP) Name() string { return "mock_erp" }

func (e *MockERP) FetchPurchaseOrders(ctx context.Context, refs []string) ([]invoiceflow.PurchaseOrder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(refs) == 0 {
		refs = []string{DefaultPONumber}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	pos := make([]invoiceflow.PurchaseOrder, 0, len(refs))
	for _, ref := range refs {
		po, ok := e.catalog[ref]
		if !ok {
			po = e.catalog[e.order[0]]
			po.PONumber = ref
		}
		po.LineItems = append([]invoiceflow.LineItem(nil), po.LineItems...)
		pos = append(pos, po)
	}
	return pos, nil
}

func (e *MockERP) FetchGoodsReceipts(ctx context.Context, poNumbers []string) ([]invoiceflow.GoodsReceipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	grns := make([]invoiceflow.GoodsReceipt, 0, len(poNumbers))
	for _, po := range poNumbers {
		grns = append(grns, invoiceflow.GoodsReceipt{
			GRNNumber:    "GRN-" + po,
			PONumber:     po,
			ReceivedDate: "2024-01-10",
			Status:       "RECEIVED",
		})
	}
	return grns, nil
}

func (e *MockERP) FetchHistory(ctx context.Context, vendor string) ([]invoiceflow.HistoricalInvoice, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return []invoiceflow.HistoricalInvoice{
		{InvoiceID: "INV-2023-001", Amount: 5000.00, Status: "PAID", PaidDate: "2023-12-01"},
	}, nil
}

func (e *MockERP) PostJournal(ctx context.Context, inv *invoiceflow.Invoice, entries []invoiceflow.AccountingEntry) (*invoiceflow.PostingReceipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := e.clock().UTC()
	txn := fmt.Sprintf("TXN-%s-%d", inv.InvoiceID, now.Unix())
	e.mu.Lock()
	e.postings[txn] = append([]invoiceflow.AccountingEntry(nil), entries...)
	e.mu.Unlock()
	return &invoiceflow.PostingReceipt{TransactionID: txn, PostedAt: now}, nil
}

func (e *MockERP) SchedulePayment(ctx context.Context, inv *invoiceflow.Invoice, dueDate string) (*invoiceflow.PaymentSchedule, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &invoiceflow.PaymentSchedule{
		PaymentID:     fmt.Sprintf("PAY-%s-%d", inv.InvoiceID, e.clock().Unix()),
		ScheduledDate: dueDate,
		Amount:        inv.Amount,
	}, nil
}

// Postings returns the journal entries recorded for a transaction.
func (e *MockERP) Postings(transactionID string) []invoiceflow.AccountingEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]invoiceflow.AccountingEntry(nil), e.postings[transactionID]...)
}
