package stages

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepnoodle-ai/invoiceflow"
)

func widgetPO() []invoiceflow.LineItem {
	return []invoiceflow.LineItem{
		{Description: "Widget A", Qty: 10, UnitPrice: 50, Total: 500},
		{Description: "Widget B", Qty: 5, UnitPrice: 100, Total: 500},
	}
}

func TestComputeMatch(t *testing.T) {
	tests := []struct {
		name     string
		input    MatchInput
		score    float64
		result   invoiceflow.MatchResult
		exceeded bool
		matched  int
		noPO     bool
	}{
		{
			name: "exact match",
			input: MatchInput{
				InvoiceLines: widgetPO(),
				POLines:      widgetPO(),
			},
			score:   1.0,
			result:  invoiceflow.MatchResultMatched,
			matched: 2,
		},
		{
			name: "within tolerance but below threshold",
			input: MatchInput{
				InvoiceLines: []invoiceflow.LineItem{{Description: "widget", Qty: 1, Total: 1020}},
				POLines:      widgetPO(),
			},
			score:   0.8,
			result:  invoiceflow.MatchResultFailed,
			matched: 1,
		},
		{
			name: "amount far over tolerance",
			input: MatchInput{
				InvoiceLines: []invoiceflow.LineItem{{Description: "Unknown Item", Qty: 100, UnitPrice: 60, Total: 6000}},
				POLines:      widgetPO(),
			},
			score:    0,
			result:   invoiceflow.MatchResultFailed,
			exceeded: true,
		},
		{
			name: "no invoice lines uses payload amount",
			input: MatchInput{
				InvoiceAmount: 1000,
				POLines:       widgetPO(),
			},
			score:  0.5,
			result: invoiceflow.MatchResultFailed,
		},
		{
			name:     "no purchase order",
			input:    MatchInput{InvoiceLines: widgetPO()},
			score:    0,
			result:   invoiceflow.MatchResultFailed,
			exceeded: true,
			noPO:     true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.input.TolerancePct = 5.0
			tt.input.Threshold = 0.90
			out := ComputeMatch(tt.input)
			assert.InDelta(t, tt.score, out.Score, 1e-9)
			assert.Equal(t, tt.result, out.Result)
			assert.Equal(t, tt.exceeded, out.Evidence.ToleranceExceeded)
			assert.Equal(t, tt.matched, out.Evidence.MatchedLines)
			if tt.noPO {
				assert.Equal(t, ReasonNoPO, out.Evidence.Reason)
			}
		})
	}
}

func TestComputeMatchThresholdBoundary(t *testing.T) {
	tests := []struct {
		name   string
		total  float64
		score  float64
		result invoiceflow.MatchResult
		next   string
	}{
		{name: "score equal to threshold", total: 1020, score: 0.8, result: invoiceflow.MatchResultMatched, next: invoiceflow.StageReconcile},
		{name: "score just below threshold", total: 1021, score: 0.79, result: invoiceflow.MatchResultFailed, next: invoiceflow.StageCheckpoint},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := ComputeMatch(MatchInput{
				InvoiceLines: []invoiceflow.LineItem{{Description: "widget", Qty: 1, Total: tt.total}},
				POLines:      widgetPO(),
				TolerancePct: 5,
				Threshold:    0.8,
			})
			assert.Equal(t, tt.score, out.Score)
			assert.Equal(t, tt.result, out.Result)

			inst := &invoiceflow.Instance{}
			inst.Outputs.Match = out
			assert.Equal(t, invoiceflow.Next(tt.next), invoiceflow.PostMatchRouter(inst))
		})
	}
}

func TestComputeMatchQuantityEvidence(t *testing.T) {
	out := ComputeMatch(MatchInput{
		InvoiceLines: []invoiceflow.LineItem{{Description: "widget a", Qty: 9, Total: 450}},
		POLines:      widgetPO(),
		TolerancePct: 5,
		Threshold:    0.9,
	})
	require.Len(t, out.Evidence.Lines, 1)
	assert.Equal(t, "Widget A", out.Evidence.Lines[0].PODesc)
	assert.False(t, out.Evidence.Lines[0].QtyMatch)
}

func TestMismatchDetail(t *testing.T) {
	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"), goldie.WithNameSuffix(".golden"))

	t.Run("amount and lines", func(t *testing.T) {
		out := ComputeMatch(MatchInput{
			InvoiceLines: []invoiceflow.LineItem{{Description: "Unknown Item", Qty: 100, UnitPrice: 60, Total: 6000}},
			POLines:      widgetPO(),
			TolerancePct: 5,
			Threshold:    0.9,
		})
		g.Assert(t, "mismatch_amount_and_lines", []byte(MismatchDetail(out)))
	})

	t.Run("partial lines", func(t *testing.T) {
		out := ComputeMatch(MatchInput{
			InvoiceLines: []invoiceflow.LineItem{
				{Description: "Widget A", Qty: 10, UnitPrice: 50, Total: 500},
				{Description: "Widget C", Qty: 7, UnitPrice: 80, Total: 560},
			},
			POLines:      widgetPO(),
			TolerancePct: 5,
			Threshold:    0.9,
		})
		g.Assert(t, "mismatch_partial_lines", []byte(MismatchDetail(out)))
	})

	t.Run("no purchase order", func(t *testing.T) {
		out := ComputeMatch(MatchInput{InvoiceLines: widgetPO(), TolerancePct: 5, Threshold: 0.9})
		assert.Equal(t, "No matching PO found for this invoice", MismatchDetail(out))
	})
}
