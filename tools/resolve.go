package tools

import (
	"fmt"
	"log/slog"

	"github.com/deepnoodle-ai/invoiceflow"
)

// ResolveOptions configures the providers built by Resolve.
type ResolveOptions struct {
	// Hints maps capability to the preferred provider names.
	Hints map[string][]string

	// PurchaseOrders overrides the mock ERP catalog.
	PurchaseOrders []invoiceflow.PurchaseOrder

	// AttachmentRoot resolves relative attachment paths.
	AttachmentRoot string

	Logger *slog.Logger
}

// Resolve selects a provider for every capability and builds the
// collaborators. Selecting a provider that has no implementation is an
// error. The db choice is returned in the selection for the caller to open.
func Resolve(registry *Registry, opts ResolveOptions) (invoiceflow.Collaborators, Selection, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	for capability := range opts.Hints {
		if len(registry.Pool(capability)) == 0 {
			return invoiceflow.Collaborators{}, nil, fmt.Errorf("unknown capability %q in tool hints", capability)
		}
	}

	selection := Selection{}
	for _, capability := range Capabilities {
		choice, err := registry.Select(capability, opts.Hints[capability]...)
		if err != nil {
			return invoiceflow.Collaborators{}, nil, err
		}
		selection[capability] = choice
	}

	var blobs Blobs
	switch name := selection.Provider(Storage); name {
	case "local_fs":
		blobs = NewLocalFS(opts.AttachmentRoot)
	default:
		return invoiceflow.Collaborators{}, nil, unavailable(Storage, name)
	}

	var c invoiceflow.Collaborators
	switch name := selection.Provider(OCR); name {
	case "tesseract":
		c.OCR = NewTextOCR(name, blobs)
	default:
		return invoiceflow.Collaborators{}, nil, unavailable(OCR, name)
	}
	switch name := selection.Provider(Enrichment); name {
	case "vendor_db", "clearbit", "people_data_labs":
		c.Enrichment = NewVendorDB(name)
	default:
		return invoiceflow.Collaborators{}, nil, unavailable(Enrichment, name)
	}
	switch name := selection.Provider(ERP); name {
	case "mock_erp":
		c.ERP = NewMockERP(opts.PurchaseOrders)
	default:
		return invoiceflow.Collaborators{}, nil, unavailable(ERP, name)
	}
	switch name := selection.Provider(Email); name {
	case "sendgrid", "smartlead", "ses":
		c.Email = NewLogNotifier(name, logger)
	default:
		return invoiceflow.Collaborators{}, nil, unavailable(Email, name)
	}
	switch name := selection.Provider(DB); name {
	case "sqlite", "postgres":
	default:
		return invoiceflow.Collaborators{}, nil, unavailable(DB, name)
	}
	return c, selection, nil
}

func unavailable(capability, name string) error {
	return fmt.Errorf("provider %q for capability %q has no implementation", name, capability)
}
