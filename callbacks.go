package invoiceflow

import (
	"context"
	"time"
)

// Callbacks observes an instance as the driver moves it through stages.
// The driver calls them synchronously, once per transition.
type Callbacks interface {
	BeforeStage(ctx context.Context, event *StageEvent)
	AfterStage(ctx context.Context, event *StageEvent)
	InstanceSuspended(ctx context.Context, event *InstanceEvent)
	InstanceFinished(ctx context.Context, event *InstanceEvent)
}

// StageEvent describes one stage execution.
type StageEvent struct {
	InstanceID string
	Stage      string
	Status     Status
	Output     StageOutput
	Route      Route
	StartTime  time.Time
	EndTime    time.Time
	Duration   time.Duration
	Error      error
}

// InstanceEvent describes an instance suspending or reaching a terminal status.
type InstanceEvent struct {
	InstanceID   string
	Status       Status
	CurrentStage string
	CheckpointID string
	StagesRun    []string
	Error        *StageError
}

// BaseCallbacks provides a default implementation that does nothing.
// Embed it to implement only the callbacks you need.
type BaseCallbacks struct{}

func (BaseCallbacks) BeforeStage(ctx context.Context, event *StageEvent) {
	// noop
}

func (BaseCallbacks) AfterStage(ctx context.Context, event *StageEvent) {
	// noop
}

func (BaseCallbacks) InstanceSuspended(ctx context.Context, event *InstanceEvent) {
	// noop
}

func (BaseCallbacks) InstanceFinished(ctx context.Context, event *InstanceEvent) {
	// noop
}

// CallbackChain allows chaining multiple callback implementations
type CallbackChain struct {
	callbacks []Callbacks
}

// NewCallbackChain creates a new callback chain
func NewCallbackChain(callbacks ...Callbacks) *CallbackChain {
	return &CallbackChain{callbacks: callbacks}
}

// Add adds a callback to the chain
func (c *CallbackChain) Add(callback Callbacks) {
	c.callbacks = append(c.callbacks, callback)
}

func (c *CallbackChain) BeforeStage(ctx context.Context, event *StageEvent) {
	for _, callback := range c.callbacks {
		callback.BeforeStage(ctx, event)
	}
}

func (c *CallbackChain) AfterStage(ctx context.Context, event *StageEvent) {
	for _, callback := range c.callbacks {
		callback.AfterStage(ctx, event)
	}
}

func (c *CallbackChain) InstanceSuspended(ctx context.Context, event *InstanceEvent) {
	for _, callback := range c.callbacks {
		callback.InstanceSuspended(ctx, event)
	}
}

func (c *CallbackChain) InstanceFinished(ctx context.Context, event *InstanceEvent) {
	for _, callback := range c.callbacks {
		callback.InstanceFinished(ctx, event)
	}
}

// AfterStageFunc adapts a function into Callbacks that only observes AfterStage.
type AfterStageFunc func(ctx context.Context, event *StageEvent)

func (f AfterStageFunc) BeforeStage(ctx context.Context, event *StageEvent)          {}
func (f AfterStageFunc) AfterStage(ctx context.Context, event *StageEvent)           { f(ctx, event) }
func (f AfterStageFunc) InstanceSuspended(ctx context.Context, event *InstanceEvent) {}
func (f AfterStageFunc) InstanceFinished(ctx context.Context, event *InstanceEvent)  {}

var (
	_ Callbacks = BaseCallbacks{}
	_ Callbacks = (*CallbackChain)(nil)
	_ Callbacks = AfterStageFunc(nil)
)
