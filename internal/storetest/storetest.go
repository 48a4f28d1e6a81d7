// Package storetest holds the behavioral tests every Store backend must
// pass.
package storetest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/deepnoodle-ai/invoiceflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns a new, empty store for one subtest.
type Factory func(t *testing.T) invoiceflow.Store

// Run exercises the instance, checkpoint and ledger contracts against
// stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("Instances", func(t *testing.T) { RunInstances(t, newStore) })
	t.Run("Checkpoints", func(t *testing.T) { RunCheckpoints(t, newStore) })
	t.Run("Ledger", func(t *testing.T) {
		RunLedger(t, func(t *testing.T) invoiceflow.ReviewLedger { return newStore(t) })
	})
}

var base = time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

// Instance returns a paused instance fixture.
func Instance(id string, created time.Time) *invoiceflow.Instance {
	return &invoiceflow.Instance{
		ID:           id,
		Status:       invoiceflow.StatusPending,
		CurrentStage: "",
		ResumeAt:     invoiceflow.StageIntake,
		Invoice: invoiceflow.Invoice{
			InvoiceID:  "INV-" + id,
			VendorName: "Acme Corp",
			Amount:     1000,
			Currency:   "USD",
			LineItems: []invoiceflow.LineItem{
				{Description: "Widget A", Qty: 10, UnitPrice: 50, Total: 500},
			},
		},
		Settings:  invoiceflow.DefaultSettings(),
		CreatedAt: created,
		UpdatedAt: created,
	}
}

// RunInstances checks create, get, compare-and-swap update, list and delete.
func RunInstances(t *testing.T, newStore Factory) {
	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		store := newStore(t)
		inst := Instance("inv_a", base)
		require.NoError(t, store.CreateInstance(ctx, inst))
		assert.Equal(t, int64(1), inst.Version)

		got, err := store.GetInstance(ctx, "inv_a")
		require.NoError(t, err)
		assert.Equal(t, "INV-inv_a", got.Invoice.InvoiceID)
		assert.Equal(t, int64(1), got.Version)
		assert.True(t, got.CreatedAt.Equal(base))

		require.Error(t, store.CreateInstance(ctx, Instance("inv_a", base)))
	})

	t.Run("get unknown", func(t *testing.T) {
		store := newStore(t)
		_, err := store.GetInstance(ctx, "missing")
		require.ErrorIs(t, err, invoiceflow.ErrInstanceNotFound)
	})

	t.Run("update is compare and swap", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.CreateInstance(ctx, Instance("inv_a", base)))

		first, err := store.GetInstance(ctx, "inv_a")
		require.NoError(t, err)
		second, err := store.GetInstance(ctx, "inv_a")
		require.NoError(t, err)

		first.Status = invoiceflow.StatusInProgress
		first.Outputs.Match = &invoiceflow.MatchOutput{Score: 0.25, Result: invoiceflow.MatchResultFailed}
		require.NoError(t, store.UpdateInstance(ctx, first))
		assert.Equal(t, int64(2), first.Version)

		second.Status = invoiceflow.StatusCompleted
		require.ErrorIs(t, store.UpdateInstance(ctx, second), invoiceflow.ErrVersionConflict)

		got, err := store.GetInstance(ctx, "inv_a")
		require.NoError(t, err)
		assert.Equal(t, invoiceflow.StatusInProgress, got.Status)
		assert.Equal(t, int64(2), got.Version)
		require.NotNil(t, got.Outputs.Match)
		assert.Equal(t, 0.25, got.Outputs.Match.Score)

		require.ErrorIs(t, store.UpdateInstance(ctx, Instance("missing", base)), invoiceflow.ErrInstanceNotFound)
	})

	t.Run("list newest first with filters", func(t *testing.T) {
		store := newStore(t)
		for i, id := range []string{"inv_1", "inv_2", "inv_3"} {
			inst := Instance(id, base.Add(time.Duration(i)*time.Minute))
			if id == "inv_2" {
				inst.Status = invoiceflow.StatusPaused
			}
			require.NoError(t, store.CreateInstance(ctx, inst))
		}

		all, err := store.ListInstances(ctx, invoiceflow.ListOptions{})
		require.NoError(t, err)
		assert.Equal(t, []string{"inv_3", "inv_2", "inv_1"}, ids(all))

		paused, err := store.ListInstances(ctx, invoiceflow.ListOptions{Status: invoiceflow.StatusPaused})
		require.NoError(t, err)
		assert.Equal(t, []string{"inv_2"}, ids(paused))

		page, err := store.ListInstances(ctx, invoiceflow.ListOptions{Limit: 1, Offset: 1})
		require.NoError(t, err)
		assert.Equal(t, []string{"inv_2"}, ids(page))

		empty, err := store.ListInstances(ctx, invoiceflow.ListOptions{Offset: 10})
		require.NoError(t, err)
		assert.Empty(t, empty)

		total, err := store.CountInstances(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, 3, total)
		pausedCount, err := store.CountInstances(ctx, invoiceflow.StatusPaused)
		require.NoError(t, err)
		assert.Equal(t, 1, pausedCount)
	})

	t.Run("delete", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.CreateInstance(ctx, Instance("inv_a", base)))
		require.NoError(t, store.DeleteInstance(ctx, "inv_a"))
		_, err := store.GetInstance(ctx, "inv_a")
		require.ErrorIs(t, err, invoiceflow.ErrInstanceNotFound)
		require.ErrorIs(t, store.DeleteInstance(ctx, "inv_a"), invoiceflow.ErrInstanceNotFound)
	})
}

func ids(items []*invoiceflow.Instance) []string {
	out := make([]string, 0, len(items))
	for _, inst := range items {
		out = append(out, inst.ID)
	}
	return out
}

// Checkpoint returns a checkpoint fixture owned by instanceID.
func Checkpoint(id, instanceID string, created time.Time) *invoiceflow.Checkpoint {
	return &invoiceflow.Checkpoint{
		ID:             id,
		InstanceID:     instanceID,
		CreatedAt:      created,
		ReasonForHold:  invoiceflow.ReasonMatchFailed,
		MismatchDetail: "Match score: 25.00% (threshold: 90%)",
		FailedStage:    invoiceflow.StageMatch,
		ReviewURL:      "/human-review/" + id,
		StateSnapshot:  json.RawMessage(`{"instance_id":"` + instanceID + `"}`),
	}
}

// RunCheckpoints checks put idempotency, attach-once and listing.
func RunCheckpoints(t *testing.T, newStore Factory) {
	ctx := context.Background()

	t.Run("put is idempotent", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.PutCheckpoint(ctx, Checkpoint("ckpt_1", "inv_a", base)))

		replaced := Checkpoint("ckpt_1", "inv_a", base)
		replaced.MismatchDetail = "changed"
		require.NoError(t, store.PutCheckpoint(ctx, replaced))

		got, err := store.GetCheckpoint(ctx, "ckpt_1")
		require.NoError(t, err)
		assert.Equal(t, "Match score: 25.00% (threshold: 90%)", got.MismatchDetail)
		assert.Nil(t, got.Decision)
		assert.JSONEq(t, `{"instance_id":"inv_a"}`, string(got.StateSnapshot))
	})

	t.Run("get unknown", func(t *testing.T) {
		store := newStore(t)
		_, err := store.GetCheckpoint(ctx, "missing")
		require.ErrorIs(t, err, invoiceflow.ErrCheckpointNotFound)
		_, err = store.AttachDecision(ctx, "missing", decision("r1", invoiceflow.DecisionAccept))
		require.ErrorIs(t, err, invoiceflow.ErrCheckpointNotFound)
	})

	t.Run("attach decision once", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.PutCheckpoint(ctx, Checkpoint("ckpt_1", "inv_a", base)))

		cp, err := store.AttachDecision(ctx, "ckpt_1", decision("r1", invoiceflow.DecisionAccept))
		require.NoError(t, err)
		require.NotNil(t, cp.Decision)
		assert.Equal(t, "r1", cp.Decision.ReviewerID)

		_, err = store.AttachDecision(ctx, "ckpt_1", decision("r2", invoiceflow.DecisionReject))
		require.ErrorIs(t, err, invoiceflow.ErrAlreadyDecided)

		got, err := store.GetCheckpoint(ctx, "ckpt_1")
		require.NoError(t, err)
		assert.Equal(t, invoiceflow.DecisionAccept, got.Decision.Value)
		assert.Equal(t, "r1", got.Decision.ReviewerID)
	})

	t.Run("concurrent attach has one winner", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.PutCheckpoint(ctx, Checkpoint("ckpt_1", "inv_a", base)))

		const n = 8
		var wg sync.WaitGroup
		errs := make([]error, n)
		for i := range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, errs[i] = store.AttachDecision(ctx, "ckpt_1", decision(fmt.Sprintf("r%d", i), invoiceflow.DecisionAccept))
			}()
		}
		wg.Wait()

		wins := 0
		for _, err := range errs {
			if err == nil {
				wins++
				continue
			}
			require.ErrorIs(t, err, invoiceflow.ErrAlreadyDecided)
		}
		assert.Equal(t, 1, wins)
	})

	t.Run("list and delete by instance", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.PutCheckpoint(ctx, Checkpoint("ckpt_2", "inv_a", base.Add(time.Minute))))
		require.NoError(t, store.PutCheckpoint(ctx, Checkpoint("ckpt_1", "inv_a", base)))
		require.NoError(t, store.PutCheckpoint(ctx, Checkpoint("ckpt_3", "inv_b", base)))

		list, err := store.ListCheckpoints(ctx, "inv_a")
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "ckpt_1", list[0].ID)
		assert.Equal(t, "ckpt_2", list[1].ID)

		require.NoError(t, store.DeleteCheckpoints(ctx, "inv_a"))
		list, err = store.ListCheckpoints(ctx, "inv_a")
		require.NoError(t, err)
		assert.Empty(t, list)

		_, err = store.GetCheckpoint(ctx, "ckpt_3")
		require.NoError(t, err)
	})
}

func decision(reviewer string, value invoiceflow.DecisionValue) *invoiceflow.Decision {
	return &invoiceflow.Decision{Value: value, ReviewerID: reviewer, DecidedAt: base}
}

// Entry returns a ledger entry fixture.
func Entry(checkpointID, instanceID string, created time.Time) *invoiceflow.ReviewEntry {
	return &invoiceflow.ReviewEntry{
		CheckpointID:   checkpointID,
		InstanceID:     instanceID,
		InvoiceID:      "INV-" + instanceID,
		VendorName:     "Acme Corp",
		Amount:         6000,
		Currency:       "USD",
		ReasonForHold:  invoiceflow.ReasonMatchFailed,
		MismatchDetail: "detail",
		ReviewURL:      "/human-review/" + checkpointID,
		Queue:          "human-review-queue",
		CreatedAt:      created,
		UpdatedAt:      created,
	}
}

// RunLedger checks the review ledger contract. It is separate from Run so
// ledger-only backends can use it.
func RunLedger(t *testing.T, newLedger func(t *testing.T) invoiceflow.ReviewLedger) {
	ctx := context.Background()

	t.Run("append is idempotent and ordered", func(t *testing.T) {
		ledger := newLedger(t)
		require.NoError(t, ledger.AppendReview(ctx, Entry("ckpt_2", "inv_b", base.Add(time.Minute))))
		require.NoError(t, ledger.AppendReview(ctx, Entry("ckpt_1", "inv_a", base)))

		dup := Entry("ckpt_1", "inv_a", base)
		dup.VendorName = "Other"
		require.NoError(t, ledger.AppendReview(ctx, dup))

		undecided, err := ledger.ListUndecided(ctx)
		require.NoError(t, err)
		require.Len(t, undecided, 2)
		assert.Equal(t, "ckpt_1", undecided[0].CheckpointID)
		assert.Equal(t, "Acme Corp", undecided[0].VendorName)
		assert.Equal(t, 6000.0, undecided[0].Amount)
		assert.Equal(t, "ckpt_2", undecided[1].CheckpointID)
	})

	t.Run("mark decided", func(t *testing.T) {
		ledger := newLedger(t)
		require.NoError(t, ledger.AppendReview(ctx, Entry("ckpt_1", "inv_a", base)))
		require.NoError(t, ledger.AppendReview(ctx, Entry("ckpt_2", "inv_b", base.Add(time.Minute))))

		require.NoError(t, ledger.MarkDecided(ctx, "ckpt_1", decision("r1", invoiceflow.DecisionReject)))
		undecided, err := ledger.ListUndecided(ctx)
		require.NoError(t, err)
		require.Len(t, undecided, 1)
		assert.Equal(t, "ckpt_2", undecided[0].CheckpointID)

		require.ErrorIs(t, ledger.MarkDecided(ctx, "missing", decision("r1", invoiceflow.DecisionAccept)), invoiceflow.ErrCheckpointNotFound)
	})

	t.Run("delete by instance", func(t *testing.T) {
		ledger := newLedger(t)
		require.NoError(t, ledger.AppendReview(ctx, Entry("ckpt_1", "inv_a", base)))
		require.NoError(t, ledger.AppendReview(ctx, Entry("ckpt_2", "inv_b", base)))
		require.NoError(t, ledger.DeleteReviews(ctx, "inv_a"))

		undecided, err := ledger.ListUndecided(ctx)
		require.NoError(t, err)
		require.Len(t, undecided, 1)
		assert.Equal(t, "inv_b", undecided[0].InstanceID)
	})
}
