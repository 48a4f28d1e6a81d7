package stages

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepnoodle-ai/invoiceflow"
	"github.com/deepnoodle-ai/invoiceflow/policy"
)

type staticOCR struct{ text string }

func (o staticOCR) Name() string { return "static" }

func (o staticOCR) ExtractText(ctx context.Context, attachments []string) (*invoiceflow.ExtractedText, error) {
	return &invoiceflow.ExtractedText{Text: o.text, Provider: "static"}, nil
}

var fixedNow = time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

func testRuntime() *invoiceflow.Runtime {
	return &invoiceflow.Runtime{Clock: func() time.Time { return fixedNow }}
}

func testInstance() *invoiceflow.Instance {
	return &invoiceflow.Instance{
		ID:       "inv_test",
		Status:   invoiceflow.StatusInProgress,
		Settings: invoiceflow.DefaultSettings(),
		Invoice: invoiceflow.Invoice{
			InvoiceID:  "INV-2024-001",
			VendorName: "Acme Corp",
			Amount:     1000,
			Currency:   "USD",
			LineItems:  widgetPO(),
		},
	}
}

func TestAllCoversGraph(t *testing.T) {
	p, err := invoiceflow.NewPipeline(All(nil)...)
	require.NoError(t, err)
	assert.Equal(t, invoiceflow.StageIntake, p.Start())
}

func TestIntakeStage(t *testing.T) {
	update, err := NewIntakeStage().Execute(context.Background(), testInstance(), testRuntime())
	require.NoError(t, err)
	out := update.Output.(*invoiceflow.IntakeOutput)
	assert.True(t, out.Validated)
	assert.Equal(t, "raw_INV-2024-001_1705320000", out.RawID)

	inst := testInstance()
	inst.Invoice.VendorName = ""
	_, err = NewIntakeStage().Execute(context.Background(), inst, testRuntime())
	require.Error(t, err)
}

func TestUnderstandStageParsesAttachments(t *testing.T) {
	text := `INVOICE
Invoice ID: INV-2024-001
Invoice Date: 2024-01-15
Due Date: 2024-02-15

Line Item 1: Widget A - Qty: 10, Price: $50.00, Total: $500.00
Line Item 2: Widget B - Qty: 5, Price: $100.00, Total: $500.00

PO Reference: PO-2024-001
Total: $1000.00`
	inst := testInstance()
	inst.Invoice.Attachments = []string{"invoice_001.pdf"}
	rt := testRuntime()
	rt.OCR = staticOCR{text: text}

	update, err := NewUnderstandStage().Execute(context.Background(), inst, rt)
	require.NoError(t, err)
	out := update.Output.(*invoiceflow.UnderstandOutput)
	assert.Equal(t, widgetPO(), out.LineItems)
	assert.Equal(t, []string{"PO-2024-001"}, out.POReferences)
	assert.Equal(t, "2024-01-15", out.InvoiceDate)
	assert.Equal(t, "2024-02-15", out.DueDate)
	assert.Equal(t, "static", out.Provider)
}

func TestUnderstandStageWithoutAttachments(t *testing.T) {
	inst := testInstance()
	inst.Invoice.POReferences = []string{"PO-7"}
	update, err := NewUnderstandStage().Execute(context.Background(), inst, testRuntime())
	require.NoError(t, err)
	out := update.Output.(*invoiceflow.UnderstandOutput)
	assert.Equal(t, inst.Invoice.LineItems, out.LineItems)
	assert.Equal(t, []string{"PO-7"}, out.POReferences)
}

func TestUnderstandStageRequiresExtractor(t *testing.T) {
	inst := testInstance()
	inst.Invoice.Attachments = []string{"scan.png"}
	_, err := NewUnderstandStage().Execute(context.Background(), inst, testRuntime())
	require.Error(t, err)
}

func TestNormalizeVendor(t *testing.T) {
	assert.Equal(t, "Acme Corp", NormalizeVendor("  acme   CORP "))
	assert.Equal(t, "Beta Industries", NormalizeVendor("beta industries"))
}

func TestRiskScore(t *testing.T) {
	assert.InDelta(t, 0.125, RiskScore(0, 1000, 0.25), 1e-9)
	assert.InDelta(t, 0.325, RiskScore(1, 60000, 0.25), 1e-9)
	assert.InDelta(t, 1.0, RiskScore(3, 200000, 1.0), 1e-9)
}

func TestDecisionStage(t *testing.T) {
	inst := testInstance()
	inst.PendingCheckpointID = "ckpt_1"
	stage := NewDecisionStage()

	update, err := stage.Execute(context.Background(), inst, testRuntime())
	require.NoError(t, err)
	assert.Nil(t, update.Output)
	require.NotNil(t, update.Paused)
	assert.True(t, *update.Paused)

	inst.Decision = &invoiceflow.Decision{Value: invoiceflow.DecisionReject, ReviewerID: "r1"}
	update, err = stage.Execute(context.Background(), inst, testRuntime())
	require.NoError(t, err)
	out := update.Output.(*invoiceflow.ReviewOutput)
	assert.Equal(t, "inv_test:ckpt_1", out.ResumeToken)
	assert.Equal(t, invoiceflow.StageComplete, out.NextStage)
	assert.Equal(t, invoiceflow.StatusInProgress, update.Status)
	assert.False(t, *update.Paused)
	assert.Equal(t, "r1", update.Decision.ReviewerID)
}

func TestApproveStage(t *testing.T) {
	stage := NewApproveStage(policy.NewEngine())

	update, err := stage.Execute(context.Background(), testInstance(), testRuntime())
	require.NoError(t, err)
	out := update.Output.(*invoiceflow.ApproveOutput)
	assert.Equal(t, invoiceflow.ApprovalAutoApproved, out.Status)
	assert.Equal(t, SystemApprover, out.Approver)

	inst := testInstance()
	inst.Invoice.Amount = 25000
	update, err = stage.Execute(context.Background(), inst, testRuntime())
	require.NoError(t, err)
	out = update.Output.(*invoiceflow.ApproveOutput)
	assert.Equal(t, invoiceflow.ApprovalRequiresApproval, out.Status)
	assert.Equal(t, "approver_001", out.Approver)
}

func TestReconcileStageBalances(t *testing.T) {
	update, err := NewReconcileStage().Execute(context.Background(), testInstance(), testRuntime())
	require.NoError(t, err)
	out := update.Output.(*invoiceflow.ReconcileOutput)
	require.Len(t, out.Entries, 2)
	assert.True(t, out.Balanced)
	assert.Equal(t, AccountPayable, out.Entries[0].Account)
	assert.Equal(t, 1000.0, out.Entries[0].Credit)
}

func TestCompleteStage(t *testing.T) {
	inst := testInstance()
	inst.Outputs.Intake = &invoiceflow.IntakeOutput{RawID: "raw_1"}
	update, err := NewCompleteStage().Execute(context.Background(), inst, testRuntime())
	require.NoError(t, err)
	assert.Equal(t, invoiceflow.StatusCompleted, update.Status)
	out := update.Output.(*invoiceflow.CompleteOutput)
	assert.Equal(t, []string{invoiceflow.StageIntake, invoiceflow.StageComplete}, out.FinalPayload.StagesCompleted)

	inst.Outputs.Review = &invoiceflow.ReviewOutput{Decision: invoiceflow.DecisionReject}
	update, err = NewCompleteStage().Execute(context.Background(), inst, testRuntime())
	require.NoError(t, err)
	assert.Equal(t, invoiceflow.StatusRequiresManualHandling, update.Status)
}

func TestVendorEmail(t *testing.T) {
	assert.Equal(t, "vendor@acmecorp.com", VendorEmail("Acme Corp"))
}
