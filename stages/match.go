package stages

import (
	"context"
	"fmt"
	"math"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/deepnoodle-ai/invoiceflow"
)

// ReasonNoPO is the evidence reason recorded when there is nothing to match.
const ReasonNoPO = "No matching PO found"

// MatchStage scores the invoice against the retrieved purchase orders.
type MatchStage struct{}

func NewMatchStage() invoiceflow.Stage {
	return &MatchStage{}
}

func (s *MatchStage) Name() string {
	return invoiceflow.StageMatch
}

func (s *MatchStage) Execute(ctx context.Context, inst *invoiceflow.Instance, rt *invoiceflow.Runtime) (*invoiceflow.Update, error) {
	var poLines []invoiceflow.LineItem
	if r := inst.Outputs.Retrieve; r != nil {
		for _, po := range r.PurchaseOrders {
			poLines = append(poLines, po.LineItems...)
		}
	}
	out := ComputeMatch(MatchInput{
		InvoiceLines:  invoiceLines(inst),
		InvoiceAmount: inst.Invoice.Amount,
		POLines:       poLines,
		TolerancePct:  inst.Settings.TolerancePct,
		Threshold:     inst.Settings.MatchThreshold,
	})
	invoiceflow.LoggerFromContext(ctx).Info("two-way match computed",
		"score", out.Score,
		"result", out.Result,
		"amount_diff_pct", out.Evidence.AmountDiffPct)
	return &invoiceflow.Update{Output: out}, nil
}

// MatchInput is what the two-way match compares.
type MatchInput struct {
	InvoiceLines  []invoiceflow.LineItem
	InvoiceAmount float64
	POLines       []invoiceflow.LineItem
	TolerancePct  float64
	Threshold     float64
}

// ComputeMatch scores an invoice against PO lines. Half the score comes from
// the amount difference relative to the tolerance, half from the share of
// invoice lines whose description appears in a PO line.
func ComputeMatch(in MatchInput) *invoiceflow.MatchOutput {
	out := &invoiceflow.MatchOutput{
		TolerancePct: in.TolerancePct,
		Threshold:    in.Threshold,
		Result:       invoiceflow.MatchResultFailed,
	}
	ev := &out.Evidence
	ev.InvoiceLines = len(in.InvoiceLines)
	if len(in.POLines) == 0 {
		ev.Reason = ReasonNoPO
		ev.ToleranceExceeded = true
		return out
	}

	ev.InvoiceTotal = invoiceflow.LineTotal(in.InvoiceLines)
	if len(in.InvoiceLines) == 0 {
		ev.InvoiceTotal = in.InvoiceAmount
	}
	ev.POTotal = invoiceflow.LineTotal(in.POLines)
	ev.AmountDiff = math.Abs(ev.InvoiceTotal - ev.POTotal)
	if ev.POTotal > 0 {
		ev.AmountDiffPct = ev.AmountDiff / ev.POTotal * 100
	} else {
		ev.AmountDiffPct = 100
	}
	ev.ToleranceExceeded = ev.AmountDiffPct > in.TolerancePct

	for _, line := range in.InvoiceLines {
		desc := strings.ToLower(line.Description)
		for _, po := range in.POLines {
			if strings.Contains(strings.ToLower(po.Description), desc) {
				ev.Lines = append(ev.Lines, invoiceflow.LineMatch{
					InvoiceDesc: line.Description,
					PODesc:      po.Description,
					InvoiceQty:  line.Qty,
					POQty:       po.Qty,
					QtyMatch:    math.Abs(line.Qty-po.Qty) < 0.01,
				})
				break
			}
		}
	}
	ev.MatchedLines = len(ev.Lines)

	switch {
	case ev.ToleranceExceeded:
		ev.AmountScore = 0
	case in.TolerancePct > 0:
		ev.AmountScore = 1 - math.Min(1, ev.AmountDiffPct/in.TolerancePct)
	default:
		ev.AmountScore = 1
	}
	if ev.InvoiceLines > 0 {
		ev.LineScore = float64(ev.MatchedLines) / float64(ev.InvoiceLines)
	}
	out.Score = 0.5*ev.AmountScore + 0.5*ev.LineScore
	if out.Score >= in.Threshold {
		out.Result = invoiceflow.MatchResultMatched
	}
	return out
}

var printer = message.NewPrinter(language.English)

// MismatchDetail explains a failed match for the reviewer.
func MismatchDetail(m *invoiceflow.MatchOutput) string {
	if m == nil {
		return "Match failed - insufficient score"
	}
	ev := m.Evidence
	if ev.Reason == ReasonNoPO {
		return "No matching PO found for this invoice"
	}
	var reasons []string
	if ev.ToleranceExceeded {
		reasons = append(reasons, fmt.Sprintf("Amount difference: %s (%.1f%%) exceeds tolerance",
			printer.Sprintf("$%.2f", ev.AmountDiff), ev.AmountDiffPct))
	}
	if ev.InvoiceLines > 0 && ev.MatchedLines < ev.InvoiceLines {
		reasons = append(reasons, fmt.Sprintf("Line item mismatch: %d/%d items matched (%.1f%%)",
			ev.MatchedLines, ev.InvoiceLines, float64(ev.MatchedLines)/float64(ev.InvoiceLines)*100))
	}
	reasons = append(reasons, fmt.Sprintf("Match score: %.2f%% (threshold: %.0f%%)", m.Score*100, m.Threshold*100))
	return strings.Join(reasons, "; ")
}
