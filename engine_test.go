package invoiceflow_test

import (
	"context"
	"testing"
	"time"

	"github.com/deepnoodle-ai/invoiceflow"
	"github.com/deepnoodle-ai/invoiceflow/stages"
	"github.com/deepnoodle-ai/invoiceflow/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var clock = time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

func newEngine(t *testing.T, store invoiceflow.Store, audit invoiceflow.StageLogger) *invoiceflow.Engine {
	t.Helper()
	collaborators, _, err := tools.Resolve(tools.NewRegistry(nil), tools.ResolveOptions{})
	require.NoError(t, err)
	engine, err := invoiceflow.NewEngine(invoiceflow.EngineOptions{
		Stages:        stages.All(nil),
		Instances:     store,
		Checkpoints:   store,
		Ledger:        store,
		Collaborators: collaborators,
		StageLogger:   audit,
		Clock:         func() time.Time { return clock },
	})
	require.NoError(t, err)
	return engine
}

func matchingInvoice() invoiceflow.Invoice {
	return invoiceflow.Invoice{
		InvoiceID:    "INV-2024-001",
		VendorName:   "Acme Corp",
		Amount:       1000,
		Currency:     "USD",
		POReferences: []string{"PO-2024-001"},
		LineItems: []invoiceflow.LineItem{
			{Description: "Widget A", Qty: 10, UnitPrice: 50, Total: 500},
			{Description: "Widget B", Qty: 5, UnitPrice: 100, Total: 500},
		},
	}
}

func mismatchedInvoice() invoiceflow.Invoice {
	return invoiceflow.Invoice{
		InvoiceID:    "INV-2024-002",
		VendorName:   "Acme Corp",
		Amount:       6000,
		Currency:     "USD",
		POReferences: []string{"PO-2024-001"},
		LineItems: []invoiceflow.LineItem{
			{Description: "Unknown Item", Qty: 100, UnitPrice: 60, Total: 6000},
		},
	}
}

func TestEngineMatchedInvoiceCompletes(t *testing.T) {
	ctx := context.Background()
	engine := newEngine(t, invoiceflow.NewMemoryStore(), nil)

	result, err := engine.Start(ctx, matchingInvoice())
	require.NoError(t, err)
	assert.Equal(t, invoiceflow.StatusCompleted, result.Status)
	assert.Empty(t, result.CheckpointID)
	assert.NotContains(t, result.StagesRun, invoiceflow.StageCheckpoint)

	inst, err := engine.Instance(ctx, result.InstanceID)
	require.NoError(t, err)
	require.NotNil(t, inst.Outputs.Match)
	assert.Equal(t, invoiceflow.MatchResultMatched, inst.Outputs.Match.Result)
	assert.Equal(t, 1.0, inst.Outputs.Match.Score)
	require.NotNil(t, inst.Outputs.Approve)
	assert.Equal(t, invoiceflow.ApprovalAutoApproved, inst.Outputs.Approve.Status)
	require.NotNil(t, inst.Outputs.Posting)
	assert.True(t, inst.Outputs.Posting.Posted)
	require.NotNil(t, inst.Outputs.Complete)
	assert.Equal(t, invoiceflow.StatusCompleted, inst.Outputs.Complete.FinalPayload.Status)

	pending, err := engine.PendingReviews(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	checkpoints, err := engine.Checkpoints(ctx, inst.ID)
	require.NoError(t, err)
	assert.Empty(t, checkpoints)
}

func TestEngineMismatchPausesForReview(t *testing.T) {
	ctx := context.Background()
	engine := newEngine(t, invoiceflow.NewMemoryStore(), nil)

	result, err := engine.Start(ctx, mismatchedInvoice())
	require.NoError(t, err)
	assert.Equal(t, invoiceflow.StatusPaused, result.Status)
	assert.Equal(t, invoiceflow.StageDecision, result.CurrentStage)
	require.NotEmpty(t, result.CheckpointID)
	assert.Equal(t, "/human-review/"+result.CheckpointID, result.ReviewURL)

	status, err := engine.Status(ctx, result.InstanceID)
	require.NoError(t, err)
	assert.True(t, status.Paused)
	assert.False(t, status.Complete)
	assert.Equal(t, result.CheckpointID, status.CheckpointID)

	pending, err := engine.PendingReviews(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	entry := pending[0]
	assert.Equal(t, result.CheckpointID, entry.CheckpointID)
	assert.Equal(t, "INV-2024-002", entry.InvoiceID)
	assert.Equal(t, 6000.0, entry.Amount)
	assert.Equal(t, invoiceflow.ReasonMatchFailed, entry.ReasonForHold)
	assert.Equal(t, "human-review-queue", entry.Queue)
	assert.Contains(t, entry.MismatchDetail, "Amount difference: $5,000.00 (500.0%) exceeds tolerance")

	cp, err := engine.Checkpoints(ctx, result.InstanceID)
	require.NoError(t, err)
	require.Len(t, cp, 1)
	assert.Equal(t, invoiceflow.StageMatch, cp[0].FailedStage)
	assert.NotEmpty(t, cp[0].StateSnapshot)

	// Stepping a paused instance without a decision changes nothing.
	again, err := engine.Step(ctx, result.InstanceID)
	require.NoError(t, err)
	assert.Equal(t, invoiceflow.StatusPaused, again.Status)
	assert.Empty(t, again.StagesRun)
	pending, err = engine.PendingReviews(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestEngineAcceptCompletes(t *testing.T) {
	ctx := context.Background()
	engine := newEngine(t, invoiceflow.NewMemoryStore(), nil)

	started, err := engine.Start(ctx, mismatchedInvoice())
	require.NoError(t, err)

	decided, err := engine.SubmitDecision(ctx, invoiceflow.DecisionRequest{
		CheckpointID: started.CheckpointID,
		Decision:     "ACCEPT",
		ReviewerID:   "r1",
	})
	require.NoError(t, err)
	assert.Equal(t, invoiceflow.StatusCompleted, decided.Status)
	assert.Equal(t, invoiceflow.StageReconcile, decided.NextStage)

	inst, err := engine.Instance(ctx, started.InstanceID)
	require.NoError(t, err)
	require.NotNil(t, inst.Decision)
	assert.Equal(t, "r1", inst.Decision.ReviewerID)
	require.NotNil(t, inst.Outputs.Review)
	assert.Equal(t, invoiceflow.DecisionAccept, inst.Outputs.Review.Decision)
	assert.True(t, inst.Outputs.Reconcile.Balanced)
	assert.Contains(t, inst.Outputs.Complete.FinalPayload.StagesCompleted, invoiceflow.StageCheckpoint)

	pending, err := engine.PendingReviews(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestEngineRejectRequiresManualHandling(t *testing.T) {
	ctx := context.Background()
	engine := newEngine(t, invoiceflow.NewMemoryStore(), nil)

	started, err := engine.Start(ctx, mismatchedInvoice())
	require.NoError(t, err)

	decided, err := engine.SubmitDecision(ctx, invoiceflow.DecisionRequest{
		CheckpointID: started.CheckpointID,
		Decision:     "REJECT",
		ReviewerID:   "r2",
		Notes:        "amount does not match the purchase order",
	})
	require.NoError(t, err)
	assert.Equal(t, invoiceflow.StatusRequiresManualHandling, decided.Status)

	inst, err := engine.Instance(ctx, started.InstanceID)
	require.NoError(t, err)
	assert.Nil(t, inst.Outputs.Reconcile)
	assert.Nil(t, inst.Outputs.Posting)
	assert.Equal(t, invoiceflow.StatusRequiresManualHandling, inst.Outputs.Complete.FinalPayload.Status)
}

func TestEngineResumeRecoversDecisionFromCheckpoint(t *testing.T) {
	ctx := context.Background()
	store := invoiceflow.NewMemoryStore()
	engine := newEngine(t, store, nil)

	started, err := engine.Start(ctx, mismatchedInvoice())
	require.NoError(t, err)

	// A decision reached the checkpoint store but the process stopped before
	// the instance was resumed.
	_, err = store.AttachDecision(ctx, started.CheckpointID, &invoiceflow.Decision{
		Value:      invoiceflow.DecisionAccept,
		ReviewerID: "r1",
		DecidedAt:  clock,
	})
	require.NoError(t, err)

	restarted := newEngine(t, store, nil)
	result, err := restarted.Resume(ctx, started.InstanceID)
	require.NoError(t, err)
	assert.Equal(t, invoiceflow.StatusCompleted, result.Status)
}

func TestEngineSurvivesRestartOnFileStore(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := invoiceflow.NewFileStore(dir)
	require.NoError(t, err)
	first := newEngine(t, store, invoiceflow.NewFileStageLogger(t.TempDir()))
	started, err := first.Start(ctx, mismatchedInvoice())
	require.NoError(t, err)
	require.Equal(t, invoiceflow.StatusPaused, started.Status)

	reopened, err := invoiceflow.NewFileStore(dir)
	require.NoError(t, err)
	second := newEngine(t, reopened, nil)

	pending, err := second.PendingReviews(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	decided, err := second.SubmitDecision(ctx, invoiceflow.DecisionRequest{CheckpointID: pending[0].CheckpointID, Decision: "ACCEPT", ReviewerID: "r1"})
	require.NoError(t, err)
	assert.Equal(t, invoiceflow.StatusCompleted, decided.Status)
}

func TestEngineStageHistory(t *testing.T) {
	ctx := context.Background()
	engine := newEngine(t, invoiceflow.NewMemoryStore(), invoiceflow.NewFileStageLogger(t.TempDir()))

	result, err := engine.Start(ctx, matchingInvoice())
	require.NoError(t, err)

	history, err := engine.StageHistory(ctx, result.InstanceID)
	require.NoError(t, err)
	require.Len(t, history, len(result.StagesRun))
	assert.Equal(t, invoiceflow.StageIntake, history[0].Stage)
	assert.Equal(t, invoiceflow.StageComplete, history[len(history)-1].Stage)
}

func TestEngineListAndDelete(t *testing.T) {
	ctx := context.Background()
	engine := newEngine(t, invoiceflow.NewMemoryStore(), nil)

	done, err := engine.Start(ctx, matchingInvoice())
	require.NoError(t, err)
	paused, err := engine.Start(ctx, mismatchedInvoice())
	require.NoError(t, err)

	all, err := engine.List(ctx, invoiceflow.ListOptions{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	onlyPaused, err := engine.List(ctx, invoiceflow.ListOptions{Status: invoiceflow.StatusPaused})
	require.NoError(t, err)
	require.Len(t, onlyPaused, 1)
	assert.Equal(t, paused.InstanceID, onlyPaused[0].InstanceID)
	assert.Equal(t, paused.CheckpointID, onlyPaused[0].CheckpointID)

	require.NoError(t, engine.Delete(ctx, paused.InstanceID))
	_, err = engine.Status(ctx, paused.InstanceID)
	require.ErrorIs(t, err, invoiceflow.ErrInstanceNotFound)

	checkpoints, err := engine.Checkpoints(ctx, paused.InstanceID)
	require.NoError(t, err)
	assert.Empty(t, checkpoints)
	pending, err := engine.PendingReviews(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	require.ErrorIs(t, engine.Delete(ctx, paused.InstanceID), invoiceflow.ErrInstanceNotFound)
	_, err = engine.Status(ctx, done.InstanceID)
	require.NoError(t, err)
}

func TestEngineSweep(t *testing.T) {
	ctx := context.Background()
	engine := newEngine(t, invoiceflow.NewMemoryStore(), nil)

	started, err := engine.Start(ctx, mismatchedInvoice())
	require.NoError(t, err)

	_, err = engine.Sweep(ctx, 0, clock)
	require.Error(t, err)

	fresh, err := engine.Sweep(ctx, 24*time.Hour, clock.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, fresh.Rejected)

	stale, err := engine.Sweep(ctx, 24*time.Hour, clock.Add(25*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []string{started.CheckpointID}, stale.Rejected)

	inst, err := engine.Instance(ctx, started.InstanceID)
	require.NoError(t, err)
	assert.Equal(t, invoiceflow.StatusRequiresManualHandling, inst.Status)
	assert.Equal(t, invoiceflow.SweeperReviewerID, inst.Decision.ReviewerID)
}

func TestEngineReviewURLWithTrailingSlashPrefix(t *testing.T) {
	ctx := context.Background()
	collaborators, _, err := tools.Resolve(tools.NewRegistry(nil), tools.ResolveOptions{})
	require.NoError(t, err)
	settings := invoiceflow.DefaultSettings()
	settings.ReviewURLPrefix = "/human-review/"
	store := invoiceflow.NewMemoryStore()
	engine, err := invoiceflow.NewEngine(invoiceflow.EngineOptions{
		Stages:        stages.All(nil),
		Instances:     store,
		Checkpoints:   store,
		Ledger:        store,
		Collaborators: collaborators,
		Settings:      settings,
		Clock:         func() time.Time { return clock },
	})
	require.NoError(t, err)

	result, err := engine.Start(ctx, mismatchedInvoice())
	require.NoError(t, err)
	assert.Equal(t, "/human-review/"+result.CheckpointID, result.ReviewURL)

	cp, err := store.GetCheckpoint(ctx, result.CheckpointID)
	require.NoError(t, err)
	assert.Equal(t, result.ReviewURL, cp.ReviewURL)
}
