package stages

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/deepnoodle-ai/invoiceflow"
)

var (
	lineItemPattern = regexp.MustCompile(`Line Item \d+: (.+?) - Qty: (\d+(?:\.\d+)?), Price: \$?([\d.,]+), Total: \$?([\d.,]+)`)
	poPattern       = regexp.MustCompile(`(?i)PO[-\s]?(\w+-?\d+)`)
	datePattern     = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)
)

// UnderstandStage extracts line items, PO references and dates from the
// invoice attachments. Without attachments the payload is used as is.
type UnderstandStage struct{}

func NewUnderstandStage() invoiceflow.Stage {
	return &UnderstandStage{}
}

func (s *UnderstandStage) Name() string {
	return invoiceflow.StageUnderstand
}

func (s *UnderstandStage) Execute(ctx context.Context, inst *invoiceflow.Instance, rt *invoiceflow.Runtime) (*invoiceflow.Update, error) {
	inv := &inst.Invoice
	var attachments []string
	for _, a := range inv.Attachments {
		if strings.TrimSpace(a) != "" {
			attachments = append(attachments, a)
		}
	}
	if len(attachments) == 0 {
		return &invoiceflow.Update{Output: &invoiceflow.UnderstandOutput{
			Text:         "No attachments provided - using invoice data directly",
			LineItems:    inv.LineItems,
			POReferences: inv.POReferences,
			InvoiceDate:  inv.InvoiceDate,
			DueDate:      inv.DueDate,
		}}, nil
	}

	if rt.OCR == nil {
		return nil, fmt.Errorf("no text extractor configured")
	}
	extracted, err := rt.OCR.ExtractText(ctx, attachments)
	if err != nil {
		return nil, fmt.Errorf("text extraction failed: %w", err)
	}

	out := &invoiceflow.UnderstandOutput{
		Text:         extracted.Text,
		LineItems:    parseLineItems(extracted.Text),
		POReferences: parsePOReferences(extracted.Text),
		Dates:        datePattern.FindAllString(extracted.Text, -1),
		InvoiceDate:  inv.InvoiceDate,
		DueDate:      inv.DueDate,
		Provider:     extracted.Provider,
	}
	if len(out.Dates) > 0 {
		out.InvoiceDate = out.Dates[0]
	}
	if len(out.Dates) > 1 {
		out.DueDate = out.Dates[1]
	}
	if len(out.LineItems) == 0 {
		out.LineItems = inv.LineItems
	}
	if len(out.POReferences) == 0 {
		out.POReferences = inv.POReferences
	}
	invoiceflow.LoggerFromContext(ctx).Info("attachments parsed",
		"provider", extracted.Provider,
		"line_items", len(out.LineItems),
		"po_references", out.POReferences)
	return &invoiceflow.Update{Output: out}, nil
}

func parseLineItems(text string) []invoiceflow.LineItem {
	var items []invoiceflow.LineItem
	for _, m := range lineItemPattern.FindAllStringSubmatch(text, -1) {
		items = append(items, invoiceflow.LineItem{
			Description: strings.TrimSpace(m[1]),
			Qty:         parseAmount(m[2]),
			UnitPrice:   parseAmount(m[3]),
			Total:       parseAmount(m[4]),
		})
	}
	return items
}

func parsePOReferences(text string) []string {
	var refs []string
	seen := map[string]bool{}
	for _, m := range poPattern.FindAllStringSubmatch(text, -1) {
		ref := m[1]
		if !strings.HasPrefix(strings.ToUpper(ref), "PO") {
			ref = "PO-" + ref
		}
		if !seen[ref] {
			seen[ref] = true
			refs = append(refs, ref)
		}
	}
	return refs
}

func parseAmount(s string) float64 {
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil {
		return 0
	}
	return v
}
