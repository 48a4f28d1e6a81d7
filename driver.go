package invoiceflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/deepnoodle-ai/invoiceflow/retry"
)

// DriverOptions configures a Driver.
type DriverOptions struct {
	Pipeline    *Pipeline
	Instances   InstanceStore
	Checkpoints CheckpointStore
	Ledger      ReviewLedger
	Runtime     *Runtime
	StageLogger StageLogger
	Callbacks   Callbacks
	Logger      *slog.Logger
}

// RunResult reports where a start or step call left the instance.
type RunResult struct {
	InstanceID   string      `json:"instance_id"`
	Status       Status      `json:"status"`
	CurrentStage string      `json:"current_stage"`
	CheckpointID string      `json:"checkpoint_id,omitempty"`
	ReviewURL    string      `json:"review_url,omitempty"`
	StagesRun    []string    `json:"stages_run"`
	Error        *StageError `json:"error,omitempty"`
}

// Driver moves instances through the pipeline. Steps against the same
// instance are serialized in-process; stores additionally reject stale
// writes through the instance version.
type Driver struct {
	pipeline    *Pipeline
	instances   InstanceStore
	checkpoints CheckpointStore
	ledger      ReviewLedger
	runtime     *Runtime
	stageLogger StageLogger
	callbacks   Callbacks
	logger      *slog.Logger
	locks       *instanceLocks
}

// NewDriver creates a driver.
func NewDriver(opts DriverOptions) (*Driver, error) {
	if opts.Pipeline == nil {
		return nil, fmt.Errorf("pipeline is required")
	}
	if opts.Instances == nil {
		return nil, fmt.Errorf("instance store is required")
	}
	if opts.Checkpoints == nil {
		return nil, fmt.Errorf("checkpoint store is required")
	}
	if opts.Ledger == nil {
		return nil, fmt.Errorf("review ledger is required")
	}
	if opts.Logger == nil {
		opts.Logger = discardLogger()
	}
	if opts.Runtime == nil {
		opts.Runtime = &Runtime{}
	}
	if opts.Runtime.Logger == nil {
		opts.Runtime.Logger = opts.Logger
	}
	if opts.StageLogger == nil {
		opts.StageLogger = NewNullStageLogger()
	}
	if opts.Callbacks == nil {
		opts.Callbacks = BaseCallbacks{}
	}
	return &Driver{
		pipeline:    opts.Pipeline,
		instances:   opts.Instances,
		checkpoints: opts.Checkpoints,
		ledger:      opts.Ledger,
		runtime:     opts.Runtime,
		stageLogger: opts.StageLogger,
		callbacks:   opts.Callbacks,
		logger:      opts.Logger,
		locks:       newInstanceLocks(),
	}, nil
}

// Pipeline returns the pipeline the driver executes.
func (d *Driver) Pipeline() *Pipeline {
	return d.pipeline
}

// Start validates the invoice, allocates a PENDING instance and steps it
// until it suspends or finishes. Invalid payloads are rejected before
// anything is written.
func (d *Driver) Start(ctx context.Context, inv Invoice, settings Settings) (*RunResult, error) {
	if err := ValidateInvoice(&inv); err != nil {
		return nil, err
	}
	if inv.Currency == "" {
		inv.Currency = "USD"
	}
	inst := newInstance(NewInstanceID(), inv, settings, d.pipeline.Start(), d.runtime.Now())
	if err := d.instances.CreateInstance(ctx, inst); err != nil {
		return nil, fmt.Errorf("failed to create instance: %w", err)
	}
	d.logger.Info("instance created", "instance_id", inst.ID, "invoice_id", inv.InvoiceID)
	return d.Step(ctx, inst.ID)
}

// Step drives the instance from its resume point until it suspends or
// reaches a terminal status. Stepping a finished instance is a no-op;
// stepping a FAILED one returns ErrInstanceFailed.
func (d *Driver) Step(ctx context.Context, id string) (*RunResult, error) {
	return d.Resume(ctx, id, nil)
}

// MergeFunc modifies a loaded instance before it is stepped and reports
// whether anything changed.
type MergeFunc func(inst *Instance) (changed bool, err error)

// Resume is Step with a merge function applied to the loaded instance under
// the instance lock. The instance is persisted before any stage runs if the
// merge reports a change; a merge error aborts without writing.
func (d *Driver) Resume(ctx context.Context, id string, merge MergeFunc) (*RunResult, error) {
	unlock := d.locks.lock(id)
	defer unlock()

	inst, err := d.instances.GetInstance(ctx, id)
	if err != nil {
		return nil, err
	}
	switch {
	case inst.Status == StatusFailed:
		return nil, ErrInstanceFailed
	case inst.Status.IsTerminal():
		return d.result(inst, nil), nil
	}
	if merge != nil {
		changed, err := merge(inst)
		if err != nil {
			return nil, err
		}
		if changed {
			if err := d.persist(ctx, inst); err != nil {
				return nil, err
			}
		}
	}
	return d.drive(ctx, inst)
}

func (d *Driver) drive(ctx context.Context, inst *Instance) (*RunResult, error) {
	logger := d.logger.With("instance_id", inst.ID)
	ctx = WithInstanceID(ctx, inst.ID)
	resumedPaused := inst.Status == StatusPaused
	var ran []string

	for {
		if err := ctx.Err(); err != nil {
			return d.result(inst, ran), err
		}
		name := inst.ResumeAt
		stage, ok := d.pipeline.Stage(name)
		if !ok {
			return d.result(inst, ran), fmt.Errorf("instance %s is positioned at unknown stage %q", inst.ID, name)
		}
		if inst.Status == StatusPending {
			inst.Status = StatusInProgress
		}

		event := &StageEvent{InstanceID: inst.ID, Stage: name, Status: inst.Status, StartTime: time.Now()}
		d.callbacks.BeforeStage(ctx, event)

		stageCtx := WithLogger(ctx, logger.With("stage", name))
		update, stageErr := d.execute(stageCtx, stage, inst.Clone())

		var route Route
		if stageErr == nil {
			inst.Apply(update)
			route, stageErr = d.pipeline.Route(name, inst)
		}
		inst.CurrentStage = name
		event.EndTime = time.Now()
		event.Duration = event.EndTime.Sub(event.StartTime)

		if stageErr != nil {
			inst.fail(&StageError{
				Stage:       name,
				Message:     stageErr.Error(),
				Recoverable: retry.IsRecoverable(stageErr),
			})
			logger.Error("stage failed", "stage", name, "error", stageErr)
			if err := d.persist(ctx, inst); err != nil {
				return d.result(inst, ran), err
			}
			ran = append(ran, name)
			event.Status, event.Error = inst.Status, stageErr
			d.afterStage(ctx, event, inst)
			d.callbacks.InstanceFinished(ctx, d.instanceEvent(inst, ran))
			return d.result(inst, ran), nil
		}

		if update != nil {
			event.Output = update.Output
		}
		event.Route = route

		switch route.Kind {
		case RouteSuspend:
			inst.ResumeAt = name
			if resumedPaused && len(ran) == 0 && inst.PendingCheckpointID != "" {
				// Still waiting on the same checkpoint; nothing new to record.
				logger.Debug("instance still awaiting decision", "checkpoint_id", inst.PendingCheckpointID)
				return d.result(inst, ran), nil
			}
			if err := d.suspend(ctx, inst); err != nil {
				return d.result(inst, ran), err
			}
			ran = append(ran, name)
			event.Status = inst.Status
			d.afterStage(ctx, event, inst)
			logger.Info("instance suspended", "checkpoint_id", inst.PendingCheckpointID)
			d.callbacks.InstanceSuspended(ctx, d.instanceEvent(inst, ran))
			return d.result(inst, ran), nil

		case RouteTerminal:
			inst.ResumeAt = ""
			if !inst.Status.IsTerminal() {
				inst.Status = StatusCompleted
			}

		default:
			inst.ResumeAt = route.Next
			if inst.Status == StatusPaused {
				inst.Status = StatusInProgress
			}
		}
		if route.Kind != RouteSuspend && !inst.Paused {
			inst.PendingCheckpointID = ""
		}

		if err := d.persist(ctx, inst); err != nil {
			return d.result(inst, ran), err
		}
		ran = append(ran, name)
		event.Status = inst.Status
		d.afterStage(ctx, event, inst)

		if route.Kind == RouteTerminal {
			logger.Info("instance finished", "status", inst.Status)
			d.callbacks.InstanceFinished(ctx, d.instanceEvent(inst, ran))
			return d.result(inst, ran), nil
		}
	}
}

// execute runs a stage, turning a panic into an error.
func (d *Driver) execute(ctx context.Context, stage Stage, inst *Instance) (update *Update, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("stage panicked: %v", r)
		}
	}()
	return stage.Execute(ctx, inst, d.runtime)
}

// suspend records the open checkpoint and ledger entry, then persists the
// instance as PAUSED. The checkpoint and ledger writes are idempotent, so a
// suspend interrupted before the instance write is repeated safely by the
// next step.
func (d *Driver) suspend(ctx context.Context, inst *Instance) error {
	inst.Status = StatusPaused
	inst.Paused = true
	if inst.PendingCheckpointID == "" {
		cp, entry := d.checkpointFor(inst)
		inst.PendingCheckpointID = cp.ID
		snapshot, err := inst.Snapshot()
		if err != nil {
			return fmt.Errorf("failed to snapshot instance: %w", err)
		}
		cp.StateSnapshot = snapshot
		if err := d.checkpoints.PutCheckpoint(ctx, cp); err != nil {
			return fmt.Errorf("failed to save checkpoint: %w", err)
		}
		if err := d.ledger.AppendReview(ctx, entry); err != nil {
			return fmt.Errorf("failed to append review entry: %w", err)
		}
	}
	return d.persist(ctx, inst)
}

func (d *Driver) checkpointFor(inst *Instance) (*Checkpoint, *ReviewEntry) {
	now := d.runtime.Now()
	cp := &Checkpoint{InstanceID: inst.ID, CreatedAt: now, FailedStage: inst.CurrentStage}
	queue := inst.Settings.ReviewQueue
	if out := inst.Outputs.Checkpoint; out != nil {
		cp.ID = out.CheckpointID
		cp.ReasonForHold = out.ReasonForHold
		cp.MismatchDetail = out.MismatchDetail
		cp.FailedStage = out.FailedStage
		cp.ReviewURL = out.ReviewURL
		if !out.CreatedAt.IsZero() {
			cp.CreatedAt = out.CreatedAt
		}
		if out.Queue != "" {
			queue = out.Queue
		}
	}
	if cp.ID == "" {
		cp.ID = NewCheckpointID()
	}
	if cp.ReviewURL == "" {
		cp.ReviewURL = ReviewURL(inst.Settings.ReviewURLPrefix, cp.ID)
	}
	entry := &ReviewEntry{
		CheckpointID:   cp.ID,
		InstanceID:     inst.ID,
		InvoiceID:      inst.Invoice.InvoiceID,
		VendorName:     inst.Invoice.VendorName,
		Amount:         inst.Invoice.Amount,
		Currency:       inst.Invoice.Currency,
		ReasonForHold:  cp.ReasonForHold,
		MismatchDetail: cp.MismatchDetail,
		ReviewURL:      cp.ReviewURL,
		Queue:          queue,
		CreatedAt:      cp.CreatedAt,
		UpdatedAt:      cp.CreatedAt,
	}
	return cp, entry
}

func (d *Driver) persist(ctx context.Context, inst *Instance) error {
	inst.UpdatedAt = d.runtime.Now()
	if err := d.instances.UpdateInstance(ctx, inst); err != nil {
		if errors.Is(err, ErrVersionConflict) {
			return fmt.Errorf("instance %s: %w", inst.ID, err)
		}
		return fmt.Errorf("failed to persist instance %s: %w", inst.ID, err)
	}
	return nil
}

func (d *Driver) afterStage(ctx context.Context, event *StageEvent, inst *Instance) {
	entry := &StageLogEntry{
		ID:         newTypeID("run"),
		InstanceID: inst.ID,
		Stage:      event.Stage,
		Route:      event.Route.String(),
		Status:     inst.Status,
		StartTime:  event.StartTime,
		Duration:   event.Duration.Seconds(),
	}
	if event.Output != nil {
		entry.Output = event.Output.Stage()
	}
	if event.Error != nil {
		entry.Error = event.Error.Error()
		entry.Route = ""
	}
	if err := d.stageLogger.LogStage(ctx, entry); err != nil {
		d.logger.Warn("failed to write stage log", "instance_id", inst.ID, "stage", event.Stage, "error", err)
	}
	d.callbacks.AfterStage(ctx, event)
}

func (d *Driver) instanceEvent(inst *Instance, ran []string) *InstanceEvent {
	return &InstanceEvent{
		InstanceID:   inst.ID,
		Status:       inst.Status,
		CurrentStage: inst.CurrentStage,
		CheckpointID: inst.PendingCheckpointID,
		StagesRun:    append([]string(nil), ran...),
		Error:        inst.Error,
	}
}

func (d *Driver) result(inst *Instance, ran []string) *RunResult {
	r := &RunResult{
		InstanceID:   inst.ID,
		Status:       inst.Status,
		CurrentStage: inst.CurrentStage,
		StagesRun:    append([]string{}, ran...),
		Error:        inst.Error,
	}
	if inst.Status == StatusPaused {
		r.CheckpointID = inst.PendingCheckpointID
		if out := inst.Outputs.Checkpoint; out != nil && out.CheckpointID == inst.PendingCheckpointID {
			r.ReviewURL = out.ReviewURL
		}
	}
	return r
}

// instanceLocks hands out one mutex per instance id, dropping it once no
// caller holds or waits on it.
type instanceLocks struct {
	mu    sync.Mutex
	locks map[string]*instanceLock
}

type instanceLock struct {
	mu   sync.Mutex
	refs int
}

func newInstanceLocks() *instanceLocks {
	return &instanceLocks{locks: map[string]*instanceLock{}}
}

func (l *instanceLocks) lock(id string) func() {
	l.mu.Lock()
	lk, ok := l.locks[id]
	if !ok {
		lk = &instanceLock{}
		l.locks[id] = lk
	}
	lk.refs++
	l.mu.Unlock()

	lk.mu.Lock()
	return func() {
		lk.mu.Unlock()
		l.mu.Lock()
		lk.refs--
		if lk.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}
