package invoiceflow

import (
	"fmt"
	"strings"
)

// Pipeline binds stage implementations to the stage graph.
type Pipeline struct {
	stages      map[string]Stage
	transitions []*Transition
	byStage     map[string]*Transition
	start       string
}

// NewPipeline returns the invoice pipeline using the given stage
// implementations. Every stage of InvoiceGraph must be provided.
func NewPipeline(stages ...Stage) (*Pipeline, error) {
	return NewPipelineWithGraph(InvoiceGraph(), stages...)
}

// NewPipelineWithGraph is NewPipeline with an explicit graph. The first
// transition names the start stage.
func NewPipelineWithGraph(graph []*Transition, stages ...Stage) (*Pipeline, error) {
	if len(graph) == 0 {
		return nil, fmt.Errorf("pipeline graph must have at least one stage")
	}
	byName := make(map[string]Stage, len(stages))
	for _, stage := range stages {
		if stage == nil || stage.Name() == "" {
			return nil, fmt.Errorf("stage name required")
		}
		if _, dup := byName[stage.Name()]; dup {
			return nil, fmt.Errorf("duplicate stage %q", stage.Name())
		}
		byName[stage.Name()] = stage
	}
	byStage := make(map[string]*Transition, len(graph))
	for _, t := range graph {
		if err := t.validate(); err != nil {
			return nil, fmt.Errorf("pipeline validation failed: %w", err)
		}
		if _, ok := byName[t.Stage]; !ok {
			return nil, fmt.Errorf("pipeline validation failed: no implementation for stage %q", t.Stage)
		}
		byStage[t.Stage] = t
	}
	for _, t := range graph {
		for _, next := range t.successors() {
			if _, ok := byStage[next]; !ok {
				return nil, fmt.Errorf("pipeline validation failed: edge %s -> %s not found", t.Stage, next)
			}
		}
	}
	for name := range byName {
		if _, ok := byStage[name]; !ok {
			return nil, fmt.Errorf("pipeline validation failed: stage %q is not part of the graph", name)
		}
	}
	return &Pipeline{
		stages:      byName,
		transitions: graph,
		byStage:     byStage,
		start:       graph[0].Stage,
	}, nil
}

// Start returns the name of the first stage.
func (p *Pipeline) Start() string {
	return p.start
}

// Stage returns a stage by name.
func (p *Pipeline) Stage(name string) (Stage, bool) {
	stage, ok := p.stages[name]
	return stage, ok
}

// Route evaluates the transition out of the named stage.
func (p *Pipeline) Route(stage string, inst *Instance) (Route, error) {
	t, ok := p.byStage[stage]
	if !ok {
		return Route{}, fmt.Errorf("stage %q not found in pipeline", stage)
	}
	route := t.route(inst)
	if route.Kind == RouteNext {
		if _, ok := p.byStage[route.Next]; !ok {
			return Route{}, fmt.Errorf("stage %q routed to unknown stage %q", stage, route.Next)
		}
	}
	return route, nil
}

// Transitions returns the graph in declaration order.
func (p *Pipeline) Transitions() []*Transition {
	return p.transitions
}

// Describe renders the graph one transition per line, e.g.
// "MATCH_TWO_WAY -> CHECKPOINT_HITL | RECONCILE".
func (p *Pipeline) Describe() string {
	var b strings.Builder
	for _, t := range p.transitions {
		b.WriteString(t.Stage)
		b.WriteString(" -> ")
		switch {
		case t.End:
			b.WriteString("END")
		case t.Router != nil:
			b.WriteString(strings.Join(t.Targets, " | "))
			if t.Suspends {
				b.WriteString(" | SUSPEND")
			}
		default:
			b.WriteString(t.Next)
		}
		b.WriteString("\n")
	}
	return b.String()
}
