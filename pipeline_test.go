package invoiceflow

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipelineDescribe(t *testing.T) {
	p, err := NewPipeline(testStages(MatchResultMatched)...)
	require.NoError(t, err)

	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"), goldie.WithNameSuffix(".golden"))
	g.Assert(t, "invoice_graph", []byte(p.Describe()))
}

func TestPipelineValidation(t *testing.T) {
	noop := func(name string) Stage {
		return NewStageFunction(name, func(ctx context.Context, inst *Instance, rt *Runtime) (*Update, error) {
			return &Update{}, nil
		})
	}

	t.Run("missing implementation", func(t *testing.T) {
		_, err := NewPipeline(testStages(MatchResultMatched)[:11]...)
		require.Error(t, err)
		assert.Contains(t, err.Error(), `no implementation for stage "COMPLETE"`)
	})

	t.Run("duplicate stage", func(t *testing.T) {
		stages := append(testStages(MatchResultMatched), noop(StageIntake))
		_, err := NewPipeline(stages...)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "duplicate stage")
	})

	t.Run("stage outside graph", func(t *testing.T) {
		stages := append(testStages(MatchResultMatched), noop("AUDIT"))
		_, err := NewPipeline(stages...)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not part of the graph")
	})

	t.Run("edge to unknown stage", func(t *testing.T) {
		graph := []*Transition{{Stage: "A", Next: "B"}}
		_, err := NewPipelineWithGraph(graph, noop("A"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "edge A -> B not found")
	})

	t.Run("transition with next and end", func(t *testing.T) {
		graph := []*Transition{{Stage: "A", Next: "A", End: true}}
		_, err := NewPipelineWithGraph(graph, noop("A"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "exactly one of next, router or end")
	})
}

func TestRouters(t *testing.T) {
	inst := &Instance{}
	assert.Equal(t, Next(StageReconcile), PostMatchRouter(inst))

	inst.Outputs.Match = &MatchOutput{Result: MatchResultFailed}
	assert.Equal(t, Next(StageCheckpoint), PostMatchRouter(inst))

	inst.Outputs.Match.Result = MatchResultMatched
	assert.Equal(t, Next(StageReconcile), PostMatchRouter(inst))

	assert.Equal(t, Suspend, PostDecisionRouter(inst))
	inst.Decision = &Decision{Value: DecisionAccept}
	assert.Equal(t, Next(StageReconcile), PostDecisionRouter(inst))
	inst.Decision = &Decision{Value: DecisionReject}
	assert.Equal(t, Next(StageComplete), PostDecisionRouter(inst))
}

func TestPipelineRoute(t *testing.T) {
	p, err := NewPipeline(testStages(MatchResultMatched)...)
	require.NoError(t, err)

	route, err := p.Route(StageComplete, &Instance{})
	require.NoError(t, err)
	assert.Equal(t, Terminal, route)

	_, err = p.Route("NOPE", &Instance{})
	require.Error(t, err)
}
