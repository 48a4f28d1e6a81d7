package invoiceflow

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstanceApply(t *testing.T) {
	inst := newInstance("inv_1", testInvoice(), Settings{}, StageIntake, time.Now())
	assert.Equal(t, StatusPending, inst.Status)
	assert.Equal(t, DefaultSettings(), inst.Settings)

	inst.Apply(Pause("waiting"))
	assert.True(t, inst.Paused)
	assert.Equal(t, "waiting", inst.PausedReason)

	d := &Decision{Value: DecisionAccept, ReviewerID: "r1"}
	inst.Apply(&Update{
		Output:   &ReviewOutput{Decision: DecisionAccept},
		Status:   StatusInProgress,
		Paused:   Unpause(),
		Decision: d,
	})
	assert.False(t, inst.Paused)
	assert.Empty(t, inst.PausedReason)
	assert.Equal(t, StatusInProgress, inst.Status)
	require.NotNil(t, inst.Decision)
	assert.NotSame(t, d, inst.Decision)
	assert.True(t, inst.Outputs.Has(StageDecision))

	inst.Apply(nil)
	assert.True(t, inst.Outputs.Has(StageDecision))
}

func TestStageOutputsOrder(t *testing.T) {
	var outs StageOutputs
	assert.Empty(t, outs.Stages())
	assert.Nil(t, outs.Get(StageMatch))

	outs.set(&CompleteOutput{})
	outs.set(&IntakeOutput{})
	outs.set(&MatchOutput{Score: 0.5})
	assert.Equal(t, []string{StageIntake, StageMatch, StageComplete}, outs.Stages())
	assert.Equal(t, 0.5, outs.Get(StageMatch).(*MatchOutput).Score)
}

func TestInstanceCloneIsDeep(t *testing.T) {
	inst := newInstance("inv_1", testInvoice(), DefaultSettings(), StageIntake, time.Now())
	inst.Outputs.Match = &MatchOutput{Score: 0.4}

	clone := inst.Clone()
	clone.Outputs.Match.Score = 0.9
	clone.Invoice.LineItems[0].Description = "changed"

	assert.Equal(t, 0.4, inst.Outputs.Match.Score)
	assert.Equal(t, "Widget A", inst.Invoice.LineItems[0].Description)
}

func TestInstanceJSON(t *testing.T) {
	inst := newInstance("inv_1", testInvoice(), DefaultSettings(), StageIntake, time.Now())
	inst.Outputs.Match = &MatchOutput{Score: 0.4, Result: MatchResultFailed}

	data, err := json.Marshal(inst)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	outputs := raw["stage_outputs"].(map[string]any)
	match := outputs["match"].(map[string]any)
	assert.Equal(t, "FAILED", match["match_result"])
	assert.Equal(t, 0.4, match["match_score"])
}

func TestStatusIsTerminal(t *testing.T) {
	assert.False(t, StatusPending.IsTerminal())
	assert.False(t, StatusPaused.IsTerminal())
	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusRequiresManualHandling.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())
}

func TestParseDecisionValue(t *testing.T) {
	v, err := ParseDecisionValue(" accept ")
	require.NoError(t, err)
	assert.Equal(t, DecisionAccept, v)

	_, err = ParseDecisionValue("maybe")
	require.Error(t, err)
	assert.Equal(t, ErrorKindValidation, ClassifyError(err))
}

func TestIdentifiers(t *testing.T) {
	assert.True(t, IsInstanceID(NewInstanceID()))
	assert.True(t, IsCheckpointID(NewCheckpointID()))
	assert.False(t, IsInstanceID(NewCheckpointID()))
	assert.False(t, IsCheckpointID(NewInstanceID()))
	for _, id := range []string{"", "inv_a", "../../victim", "inv_01h455vb4pex5vsknk084sn02q/x"} {
		assert.False(t, IsInstanceID(id), id)
	}
}

func TestReviewURL(t *testing.T) {
	assert.Equal(t, "/human-review/ckpt_1", ReviewURL("/human-review", "ckpt_1"))
	assert.Equal(t, "/human-review/ckpt_1", ReviewURL("/human-review/", "ckpt_1"))
	assert.Equal(t, "/ckpt_1", ReviewURL("", "ckpt_1"))
}
