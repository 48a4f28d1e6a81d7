package invoiceflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// EngineOptions configures an Engine.
type EngineOptions struct {
	// Stages implements every stage of the invoice graph.
	Stages []Stage

	Instances   InstanceStore
	Checkpoints CheckpointStore
	Ledger      ReviewLedger

	Collaborators Collaborators
	Settings      Settings
	StageLogger   StageLogger
	Callbacks     Callbacks
	Logger        *slog.Logger
	Clock         func() time.Time
}

// Engine is the entry point used by the control surface and the CLI.
type Engine struct {
	driver      *Driver
	desk        *ReviewDesk
	instances   InstanceStore
	checkpoints CheckpointStore
	ledger      ReviewLedger
	stageLogger StageLogger
	settings    Settings
	logger      *slog.Logger
}

// StatusView is the externally visible status of an instance.
type StatusView struct {
	InstanceID   string      `json:"instance_id"`
	Status       Status      `json:"status"`
	CurrentStage string      `json:"current_stage"`
	Paused       bool        `json:"paused"`
	Complete     bool        `json:"complete"`
	CheckpointID string      `json:"checkpoint_id,omitempty"`
	Error        *StageError `json:"error,omitempty"`
}

// NewEngine wires a pipeline, driver and review desk over the given stores.
func NewEngine(opts EngineOptions) (*Engine, error) {
	pipeline, err := NewPipeline(opts.Stages...)
	if err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = discardLogger()
	}
	if opts.StageLogger == nil {
		opts.StageLogger = NewNullStageLogger()
	}
	runtime := &Runtime{
		Collaborators: opts.Collaborators,
		Logger:        opts.Logger,
		Clock:         opts.Clock,
	}
	driver, err := NewDriver(DriverOptions{
		Pipeline:    pipeline,
		Instances:   opts.Instances,
		Checkpoints: opts.Checkpoints,
		Ledger:      opts.Ledger,
		Runtime:     runtime,
		StageLogger: opts.StageLogger,
		Callbacks:   opts.Callbacks,
		Logger:      opts.Logger,
	})
	if err != nil {
		return nil, err
	}
	desk, err := NewReviewDesk(ReviewDeskOptions{
		Driver:      driver,
		Instances:   opts.Instances,
		Checkpoints: opts.Checkpoints,
		Ledger:      opts.Ledger,
		Logger:      opts.Logger,
	})
	if err != nil {
		return nil, err
	}
	return &Engine{
		driver:      driver,
		desk:        desk,
		instances:   opts.Instances,
		checkpoints: opts.Checkpoints,
		ledger:      opts.Ledger,
		stageLogger: opts.StageLogger,
		settings:    opts.Settings.withDefaults(),
		logger:      opts.Logger,
	}, nil
}

// Driver returns the underlying driver.
func (e *Engine) Driver() *Driver {
	return e.driver
}

// Settings returns the settings applied to new instances.
func (e *Engine) Settings() Settings {
	return e.settings
}

// Start runs a new invoice through the pipeline with the engine settings.
func (e *Engine) Start(ctx context.Context, inv Invoice) (*RunResult, error) {
	return e.driver.Start(ctx, inv, e.settings)
}

// Step drives an existing instance.
func (e *Engine) Step(ctx context.Context, id string) (*RunResult, error) {
	if !IsInstanceID(id) {
		return nil, ErrInstanceNotFound
	}
	return e.driver.Step(ctx, id)
}

// Resume steps an instance after copying a decision from the checkpoint
// store into its decision slot if one was attached but never merged.
func (e *Engine) Resume(ctx context.Context, id string) (*RunResult, error) {
	if !IsInstanceID(id) {
		return nil, ErrInstanceNotFound
	}
	return e.driver.Resume(ctx, id, func(inst *Instance) (bool, error) {
		if inst.Status != StatusPaused || inst.Decision != nil || inst.PendingCheckpointID == "" {
			return false, nil
		}
		cp, err := e.checkpoints.GetCheckpoint(ctx, inst.PendingCheckpointID)
		if err != nil {
			if errors.Is(err, ErrCheckpointNotFound) {
				return false, nil
			}
			return false, err
		}
		if cp.Decision == nil {
			return false, nil
		}
		d := *cp.Decision
		inst.Decision = &d
		e.logger.Info("recovered decision from checkpoint", "instance_id", inst.ID, "checkpoint_id", cp.ID)
		return true, nil
	})
}

// SubmitDecision records a reviewer decision and resumes the instance.
func (e *Engine) SubmitDecision(ctx context.Context, req DecisionRequest) (*DecisionResult, error) {
	return e.desk.SubmitDecision(ctx, req)
}

// PendingReviews lists checkpoints that still await a human decision.
func (e *Engine) PendingReviews(ctx context.Context) ([]*ReviewEntry, error) {
	return e.desk.PendingReviews(ctx)
}

// Instance returns the full instance record.
func (e *Engine) Instance(ctx context.Context, id string) (*Instance, error) {
	if !IsInstanceID(id) {
		return nil, ErrInstanceNotFound
	}
	return e.instances.GetInstance(ctx, id)
}

// Status returns the status view of an instance.
func (e *Engine) Status(ctx context.Context, id string) (*StatusView, error) {
	if !IsInstanceID(id) {
		return nil, ErrInstanceNotFound
	}
	inst, err := e.instances.GetInstance(ctx, id)
	if err != nil {
		return nil, err
	}
	return &StatusView{
		InstanceID:   inst.ID,
		Status:       inst.Status,
		CurrentStage: inst.CurrentStage,
		Paused:       inst.Status == StatusPaused,
		Complete:     inst.Complete(),
		CheckpointID: inst.PendingCheckpointID,
		Error:        inst.Error,
	}, nil
}

// List returns instance summaries, newest first.
func (e *Engine) List(ctx context.Context, opts ListOptions) ([]*InstanceSummary, error) {
	instances, err := e.instances.ListInstances(ctx, opts)
	if err != nil {
		return nil, err
	}
	summaries := make([]*InstanceSummary, 0, len(instances))
	for _, inst := range instances {
		summaries = append(summaries, Summarize(inst))
	}
	return summaries, nil
}

// Count returns the number of instances with the given status, or of all
// instances when status is empty.
func (e *Engine) Count(ctx context.Context, status Status) (int, error) {
	return e.instances.CountInstances(ctx, status)
}

// Checkpoints returns the checkpoints recorded for an instance.
func (e *Engine) Checkpoints(ctx context.Context, id string) ([]*Checkpoint, error) {
	if !IsInstanceID(id) {
		return nil, ErrInstanceNotFound
	}
	return e.checkpoints.ListCheckpoints(ctx, id)
}

// StageHistory returns the stage audit log of an instance.
func (e *Engine) StageHistory(ctx context.Context, id string) ([]*StageLogEntry, error) {
	if !IsInstanceID(id) {
		return nil, ErrInstanceNotFound
	}
	return e.stageLogger.GetStageHistory(ctx, id)
}

// Delete removes an instance together with its checkpoints and review
// ledger entries.
func (e *Engine) Delete(ctx context.Context, id string) error {
	if !IsInstanceID(id) {
		return ErrInstanceNotFound
	}
	unlock := e.driver.locks.lock(id)
	defer unlock()

	if _, err := e.instances.GetInstance(ctx, id); err != nil {
		return err
	}
	if err := e.ledger.DeleteReviews(ctx, id); err != nil {
		return fmt.Errorf("failed to delete review entries: %w", err)
	}
	if err := e.checkpoints.DeleteCheckpoints(ctx, id); err != nil {
		return fmt.Errorf("failed to delete checkpoints: %w", err)
	}
	if err := e.instances.DeleteInstance(ctx, id); err != nil {
		return err
	}
	e.logger.Info("instance deleted", "instance_id", id)
	return nil
}
