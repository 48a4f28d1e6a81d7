package invoiceflow

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
)

// Invoice is the payload submitted to start a workflow instance.
type Invoice struct {
	InvoiceID    string     `json:"invoice_id"`
	VendorName   string     `json:"vendor_name"`
	VendorTaxID  string     `json:"vendor_tax_id,omitempty"`
	InvoiceDate  string     `json:"invoice_date,omitempty"`
	DueDate      string     `json:"due_date,omitempty"`
	Amount       float64    `json:"amount"`
	Currency     string     `json:"currency,omitempty"`
	LineItems    []LineItem `json:"line_items"`
	POReferences []string   `json:"po_references,omitempty"`
	Attachments  []string   `json:"attachments,omitempty"`
}

// LineItem is one billed line on an invoice or purchase order.
type LineItem struct {
	Description string  `json:"desc" yaml:"desc"`
	Qty         float64 `json:"qty" yaml:"qty"`
	UnitPrice   float64 `json:"unit_price" yaml:"unit_price"`
	Total       float64 `json:"total" yaml:"total"`
}

// LineTotal sums the line item totals.
func LineTotal(items []LineItem) float64 {
	var total float64
	for _, item := range items {
		total += item.Total
	}
	return total
}

//go:embed invoice.cue
var invoiceSchemaSource string

// invoiceSchema holds the compiled #Invoice definition. A cue.Context is not
// safe for concurrent use, so every use goes through mu.
var invoiceSchema struct {
	once sync.Once
	mu   sync.Mutex
	ctx  *cue.Context
	def  cue.Value
	err  error
}

func loadInvoiceSchema() error {
	invoiceSchema.once.Do(func() {
		ctx := cuecontext.New()
		v := ctx.CompileString(invoiceSchemaSource, cue.Filename("invoice.cue"))
		if err := v.Err(); err != nil {
			invoiceSchema.err = fmt.Errorf("failed to compile invoice schema: %w", err)
			return
		}
		invoiceSchema.ctx = ctx
		invoiceSchema.def = v.LookupPath(cue.ParsePath("#Invoice"))
	})
	return invoiceSchema.err
}

// ValidateInvoice checks that the payload carries the required fields and
// conforms to the invoice schema. All problems are returned joined together,
// each as a *ValidationError.
func ValidateInvoice(inv *Invoice) error {
	if inv == nil {
		return NewValidationError("", "invoice payload is required")
	}
	var errs []error
	if strings.TrimSpace(inv.InvoiceID) == "" {
		errs = append(errs, NewValidationError("invoice_id", "missing required field"))
	}
	if strings.TrimSpace(inv.VendorName) == "" {
		errs = append(errs, NewValidationError("vendor_name", "missing required field"))
	}
	if inv.Amount == 0 {
		errs = append(errs, NewValidationError("amount", "missing required field"))
	}
	if len(inv.LineItems) == 0 {
		errs = append(errs, NewValidationError("line_items", "missing required field"))
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return validateInvoiceSchema(inv)
}

func validateInvoiceSchema(inv *Invoice) error {
	if err := loadInvoiceSchema(); err != nil {
		return err
	}
	invoiceSchema.mu.Lock()
	defer invoiceSchema.mu.Unlock()

	v := invoiceSchema.def.Unify(invoiceSchema.ctx.Encode(inv))
	err := v.Validate(cue.Concrete(true))
	if err == nil {
		return nil
	}
	var errs []error
	for _, e := range cueerrors.Errors(err) {
		format, args := e.Msg()
		errs = append(errs, &ValidationError{
			Field:   strings.Join(e.Path(), "."),
			Message: fmt.Sprintf(format, args...),
		})
	}
	return errors.Join(errs...)
}
