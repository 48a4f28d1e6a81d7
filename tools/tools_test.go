package tools

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/deepnoodle-ai/invoiceflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelect(t *testing.T) {
	registry := NewRegistry(nil)

	tests := []struct {
		name       string
		capability string
		hints      []string
		want       string
		reason     string
	}{
		{"prefers mock", ERP, nil, "mock_erp", "prefer_demo_tool_mock_erp"},
		{"prefers local", Storage, nil, "local_fs", "prefer_demo_tool_local_fs"},
		{"prefers sqlite", DB, []string{"postgres", "sqlite"}, "sqlite", "prefer_demo_tool_sqlite"},
		{"first hinted", DB, []string{"postgres"}, "postgres", "first_available_postgres"},
		{"first available", Email, nil, "sendgrid", "first_available_sendgrid"},
		{"unknown hints fall back to pool", OCR, []string{"abbyy"}, "tesseract", "first_available_tesseract"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			choice, err := registry.Select(tt.capability, tt.hints...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, choice.Tool.Name)
			assert.Equal(t, tt.reason, choice.Reason)
		})
	}

	_, err := registry.Select("telepathy")
	require.Error(t, err)
}

func TestResolve(t *testing.T) {
	registry := NewRegistry(nil)

	c, selection, err := Resolve(registry, ResolveOptions{})
	require.NoError(t, err)
	assert.Equal(t, "tesseract", c.OCR.Name())
	assert.Equal(t, "vendor_db", c.Enrichment.Name())
	assert.Equal(t, "mock_erp", c.ERP.Name())
	assert.Equal(t, "sendgrid", c.Email.Name())
	assert.Equal(t, "sqlite", selection.Provider(DB))
	assert.Len(t, selection.Lines(), len(Capabilities))

	_, _, err = Resolve(registry, ResolveOptions{Hints: map[string][]string{ERP: {"netsuite"}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has no implementation")

	_, _, err = Resolve(registry, ResolveOptions{Hints: map[string][]string{"fax": {"x"}}})
	require.Error(t, err)
}

func TestMockERP(t *testing.T) {
	ctx := context.Background()
	erp := NewMockERP(nil)

	pos, err := erp.FetchPurchaseOrders(ctx, nil)
	require.NoError(t, err)
	require.Len(t, pos, 1)
	assert.Equal(t, DefaultPONumber, pos[0].PONumber)
	assert.Equal(t, 1000.0, invoiceflow.LineTotal(pos[0].LineItems))

	pos, err = erp.FetchPurchaseOrders(ctx, []string{"PO-9"})
	require.NoError(t, err)
	assert.Equal(t, "PO-9", pos[0].PONumber)
	assert.Len(t, pos[0].LineItems, 2)

	grns, err := erp.FetchGoodsReceipts(ctx, []string{"PO-9"})
	require.NoError(t, err)
	assert.Equal(t, "GRN-PO-9", grns[0].GRNNumber)

	inv := &invoiceflow.Invoice{InvoiceID: "INV-1", Amount: 100}
	entries := []invoiceflow.AccountingEntry{{Account: "AP", Credit: 100}}
	receipt, err := erp.PostJournal(ctx, inv, entries)
	require.NoError(t, err)
	assert.Contains(t, receipt.TransactionID, "TXN-INV-1-")
	assert.Equal(t, entries, erp.Postings(receipt.TransactionID))
}

func TestMockERPCatalog(t *testing.T) {
	erp := NewMockERP([]invoiceflow.PurchaseOrder{{
		PONumber:  "PO-7",
		LineItems: []invoiceflow.LineItem{{Description: "Bolt", Qty: 100, UnitPrice: 1, Total: 100}},
	}})
	pos, err := erp.FetchPurchaseOrders(context.Background(), []string{"PO-7"})
	require.NoError(t, err)
	assert.Equal(t, 100.0, pos[0].Total)
	assert.Equal(t, "Bolt", pos[0].LineItems[0].Description)
}

func TestTextOCR(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "inv.txt"), []byte("Line Item 1: Widget A"), 0o644))

	ocr := NewTextOCR("tesseract", NewLocalFS(dir))
	out, err := ocr.ExtractText(context.Background(), []string{"inv.txt", "missing.pdf"})
	require.NoError(t, err)
	assert.Equal(t, "tesseract", out.Provider)
	assert.Contains(t, out.Text, "Line Item 1: Widget A")
	assert.Contains(t, out.Text, "Invoice text extracted from missing.pdf using tesseract")
}
