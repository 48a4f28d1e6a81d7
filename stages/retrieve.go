package stages

import (
	"context"
	"fmt"

	"github.com/deepnoodle-ai/invoiceflow"
)

// RetrieveStage fetches the purchase orders, goods receipts and vendor
// history the match runs against.
type RetrieveStage struct{}

func NewRetrieveStage() invoiceflow.Stage {
	return &RetrieveStage{}
}

func (s *RetrieveStage) Name() string {
	return invoiceflow.StageRetrieve
}

func (s *RetrieveStage) Execute(ctx context.Context, inst *invoiceflow.Instance, rt *invoiceflow.Runtime) (*invoiceflow.Update, error) {
	if rt.ERP == nil {
		return nil, fmt.Errorf("no ERP connector configured")
	}
	refs := inst.Invoice.POReferences
	if u := inst.Outputs.Understand; u != nil && len(u.POReferences) > 0 {
		refs = u.POReferences
	}
	pos, err := rt.ERP.FetchPurchaseOrders(ctx, refs)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch purchase orders: %w", err)
	}
	numbers := make([]string, 0, len(pos))
	for _, po := range pos {
		numbers = append(numbers, po.PONumber)
	}
	grns, err := rt.ERP.FetchGoodsReceipts(ctx, numbers)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch goods receipts: %w", err)
	}
	history, err := rt.ERP.FetchHistory(ctx, vendorName(inst))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch vendor history: %w", err)
	}
	invoiceflow.LoggerFromContext(ctx).Info("purchase orders retrieved", "purchase_orders", numbers, "provider", rt.ERP.Name())
	return &invoiceflow.Update{Output: &invoiceflow.RetrieveOutput{
		PurchaseOrders: pos,
		GoodsReceipts:  grns,
		History:        history,
		Provider:       rt.ERP.Name(),
	}}, nil
}
