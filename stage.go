package invoiceflow

import "context"

// Stage names, in pipeline order.
const (
	StageIntake     = "INTAKE"
	StageUnderstand = "UNDERSTAND"
	StagePrepare    = "PREPARE"
	StageRetrieve   = "RETRIEVE"
	StageMatch      = "MATCH_TWO_WAY"
	StageCheckpoint = "CHECKPOINT_HITL"
	StageDecision   = "HITL_DECISION"
	StageReconcile  = "RECONCILE"
	StageApprove    = "APPROVE"
	StagePosting    = "POSTING"
	StageNotify     = "NOTIFY"
	StageComplete   = "COMPLETE"
)

// StageNames lists every stage in pipeline order.
var StageNames = []string{
	StageIntake,
	StageUnderstand,
	StagePrepare,
	StageRetrieve,
	StageMatch,
	StageCheckpoint,
	StageDecision,
	StageReconcile,
	StageApprove,
	StagePosting,
	StageNotify,
	StageComplete,
}

// Stage is one named processing step of the pipeline.
type Stage interface {

	// Name returns the name of the Stage
	Name() string

	// Execute the Stage against a copy of the instance. Returning an error
	// fails the instance.
	Execute(ctx context.Context, inst *Instance, rt *Runtime) (*Update, error)
}

// Update is the partial state a stage asks the driver to merge. Zero fields
// leave the instance unchanged.
type Update struct {
	Output       StageOutput
	Status       Status
	Paused       *bool
	PausedReason string
	Decision     *Decision
}

// Pause returns an update that marks the instance paused for reason.
func Pause(reason string) *Update {
	paused := true
	return &Update{Paused: &paused, PausedReason: reason}
}

// Unpause returns a pointer suitable for Update.Paused that clears the flag.
func Unpause() *bool {
	paused := false
	return &paused
}

// ExecuteStageFunc is the signature of a function used as a Stage.
type ExecuteStageFunc func(ctx context.Context, inst *Instance, rt *Runtime) (*Update, error)

// StageFunction wraps a function for use as a Stage.
type StageFunction struct {
	name string
	fn   ExecuteStageFunc
}

// NewStageFunction returns a Stage for the given function.
func NewStageFunction(name string, fn ExecuteStageFunc) *StageFunction {
	return &StageFunction{name: name, fn: fn}
}

// Name of the Stage.
func (s *StageFunction) Name() string {
	return s.name
}

// Execute the Stage.
func (s *StageFunction) Execute(ctx context.Context, inst *Instance, rt *Runtime) (*Update, error) {
	return s.fn(ctx, inst, rt)
}

var _ Stage = (*StageFunction)(nil)
