package invoiceflow

import "fmt"

// RouteKind distinguishes the three outcomes a router can choose.
type RouteKind int

const (
	RouteNext RouteKind = iota
	RouteSuspend
	RouteTerminal
)

// Route is the outcome of leaving a stage.
type Route struct {
	Kind RouteKind
	Next string
}

// Next routes to the named stage.
func Next(stage string) Route {
	return Route{Kind: RouteNext, Next: stage}
}

var (
	Suspend  = Route{Kind: RouteSuspend}
	Terminal = Route{Kind: RouteTerminal}
)

func (r Route) String() string {
	switch r.Kind {
	case RouteSuspend:
		return "SUSPEND"
	case RouteTerminal:
		return "TERMINAL"
	default:
		return r.Next
	}
}

// Router chooses how to leave a stage. Routers must be deterministic and
// must not modify the instance: the driver re-evaluates them on every
// resume.
type Router func(inst *Instance) Route

// PostMatchRouter sends a failed two-way match to the review checkpoint and
// everything else on to reconciliation.
func PostMatchRouter(inst *Instance) Route {
	if m := inst.Outputs.Match; m != nil && m.Result == MatchResultFailed {
		return Next(StageCheckpoint)
	}
	return Next(StageReconcile)
}

// PostDecisionRouter suspends until the decision slot is filled. ACCEPT
// continues to reconciliation; REJECT jumps to finalization.
func PostDecisionRouter(inst *Instance) Route {
	if inst.Decision == nil {
		return Suspend
	}
	switch inst.Decision.Value {
	case DecisionAccept:
		return Next(StageReconcile)
	case DecisionReject:
		return Next(StageComplete)
	}
	return Suspend
}

// NextStageFor reports the stage a decision resumes into.
func NextStageFor(d DecisionValue) string {
	if d == DecisionReject {
		return StageComplete
	}
	return StageReconcile
}

// Transition describes how the pipeline leaves one stage. Exactly one of
// Next, Router or End is set. Targets lists what Router may choose and is
// used for validation and rendering; Suspends marks a router that may also
// return Suspend.
type Transition struct {
	Stage    string
	Next     string
	Router   Router
	Targets  []string
	Suspends bool
	End      bool
}

// route evaluates the transition for inst.
func (t *Transition) route(inst *Instance) Route {
	switch {
	case t.End:
		return Terminal
	case t.Router != nil:
		return t.Router(inst)
	default:
		return Next(t.Next)
	}
}

func (t *Transition) successors() []string {
	if t.Router != nil {
		return t.Targets
	}
	if t.Next != "" {
		return []string{t.Next}
	}
	return nil
}

func (t *Transition) validate() error {
	set := 0
	if t.Next != "" {
		set++
	}
	if t.Router != nil {
		set++
	}
	if t.End {
		set++
	}
	if set != 1 {
		return fmt.Errorf("stage %q must have exactly one of next, router or end", t.Stage)
	}
	if t.Router != nil && len(t.Targets) == 0 {
		return fmt.Errorf("stage %q router has no targets", t.Stage)
	}
	return nil
}

// InvoiceGraph returns the fixed stage graph of the invoice pipeline.
func InvoiceGraph() []*Transition {
	return []*Transition{
		{Stage: StageIntake, Next: StageUnderstand},
		{Stage: StageUnderstand, Next: StagePrepare},
		{Stage: StagePrepare, Next: StageRetrieve},
		{Stage: StageRetrieve, Next: StageMatch},
		{Stage: StageMatch, Router: PostMatchRouter, Targets: []string{StageCheckpoint, StageReconcile}},
		{Stage: StageCheckpoint, Next: StageDecision},
		{Stage: StageDecision, Router: PostDecisionRouter, Targets: []string{StageReconcile, StageComplete}, Suspends: true},
		{Stage: StageReconcile, Next: StageApprove},
		{Stage: StageApprove, Next: StagePosting},
		{Stage: StagePosting, Next: StageNotify},
		{Stage: StageNotify, Next: StageComplete},
		{Stage: StageComplete, End: true},
	}
}
