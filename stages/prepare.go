package stages

import (
	"context"
	"fmt"
	"math"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/deepnoodle-ai/invoiceflow"
)

// Missing-information flags raised by PREPARE.
const (
	FlagMissingTaxID       = "vendor_tax_id"
	FlagMissingLineItems   = "line_items"
	FlagMissingInvoiceDate = "invoice_date"
)

// PrepareStage normalizes the vendor, enriches its profile and scores risk.
type PrepareStage struct{}

func NewPrepareStage() invoiceflow.Stage {
	return &PrepareStage{}
}

func (s *PrepareStage) Name() string {
	return invoiceflow.StagePrepare
}

func (s *PrepareStage) Execute(ctx context.Context, inst *invoiceflow.Instance, rt *invoiceflow.Runtime) (*invoiceflow.Update, error) {
	if rt.Enrichment == nil {
		return nil, fmt.Errorf("no vendor enricher configured")
	}
	inv := &inst.Invoice
	vendor := NormalizeVendor(inv.VendorName)
	profile, err := rt.Enrichment.EnrichVendor(ctx, vendor, inv.VendorTaxID)
	if err != nil {
		return nil, fmt.Errorf("vendor enrichment failed: %w", err)
	}
	flags := missingInfo(inv)
	return &invoiceflow.Update{Output: &invoiceflow.PrepareOutput{
		NormalizedVendor: vendor,
		TaxID:            inv.VendorTaxID,
		Profile:          *profile,
		Flags:            flags,
		RiskScore:        RiskScore(len(flags), inv.Amount, profile.RiskScore),
	}}, nil
}

// NormalizeVendor trims, collapses whitespace and title-cases a vendor name.
func NormalizeVendor(name string) string {
	return cases.Title(language.English).String(strings.Join(strings.Fields(name), " "))
}

// RiskScore combines missing information, invoice size and vendor risk into
// a score in [0, 1].
func RiskScore(flags int, amount, vendorRisk float64) float64 {
	risk := float64(flags) * 0.1
	switch {
	case amount > 100000:
		risk += 0.2
	case amount > 50000:
		risk += 0.1
	}
	return math.Min(1.0, risk+vendorRisk*0.5)
}

func missingInfo(inv *invoiceflow.Invoice) []string {
	var flags []string
	if strings.TrimSpace(inv.VendorTaxID) == "" {
		flags = append(flags, FlagMissingTaxID)
	}
	if len(inv.LineItems) == 0 {
		flags = append(flags, FlagMissingLineItems)
	}
	if strings.TrimSpace(inv.InvoiceDate) == "" {
		flags = append(flags, FlagMissingInvoiceDate)
	}
	return flags
}
