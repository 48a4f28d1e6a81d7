package invoiceflow

import (
	"encoding/json"
	"fmt"
	"time"
)

// Status of a workflow instance.
type Status string

const (
	StatusPending                Status = "PENDING"
	StatusInProgress             Status = "IN_PROGRESS"
	StatusPaused                 Status = "PAUSED"
	StatusCompleted              Status = "COMPLETED"
	StatusRequiresManualHandling Status = "REQUIRES_MANUAL_HANDLING"
	StatusFailed                 Status = "FAILED"
)

// IsTerminal reports whether no further stage will run for this status.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusRequiresManualHandling, StatusFailed:
		return true
	}
	return false
}

// Settings are the routing and policy knobs captured when an instance
// starts. A resumed instance keeps the settings it started with.
type Settings struct {
	MatchThreshold    float64 `json:"match_threshold" yaml:"match_threshold"`
	TolerancePct      float64 `json:"two_way_tolerance_pct" yaml:"two_way_tolerance_pct"`
	AutoApprovePolicy string  `json:"auto_approve_policy" yaml:"auto_approve_policy"`
	ApproverID        string  `json:"approver_id" yaml:"approver_id"`
	ReviewQueue       string  `json:"human_review_queue" yaml:"human_review_queue"`
	ReviewURLPrefix   string  `json:"review_url_prefix" yaml:"review_url_prefix"`
}

// DefaultSettings returns the settings used when none are configured.
func DefaultSettings() Settings {
	return Settings{
		MatchThreshold:    0.90,
		TolerancePct:      5.0,
		AutoApprovePolicy: "amount < 10000",
		ApproverID:        "approver_001",
		ReviewQueue:       "human-review-queue",
		ReviewURLPrefix:   "/human-review",
	}
}

// withDefaults fills zero fields from DefaultSettings.
func (s Settings) withDefaults() Settings {
	d := DefaultSettings()
	if s.MatchThreshold == 0 {
		s.MatchThreshold = d.MatchThreshold
	}
	if s.TolerancePct == 0 {
		s.TolerancePct = d.TolerancePct
	}
	if s.AutoApprovePolicy == "" {
		s.AutoApprovePolicy = d.AutoApprovePolicy
	}
	if s.ApproverID == "" {
		s.ApproverID = d.ApproverID
	}
	if s.ReviewQueue == "" {
		s.ReviewQueue = d.ReviewQueue
	}
	if s.ReviewURLPrefix == "" {
		s.ReviewURLPrefix = d.ReviewURLPrefix
	}
	return s
}

// Instance is the durable record of one invoice's run through the pipeline.
//
// ResumeAt is the stage the next step executes and is the only field the
// driver consults to resume. CurrentStage is the last stage entered and is
// informational. Decision is the instance's decision slot; the checkpoint
// store holds the authoritative copy.
type Instance struct {
	ID                  string       `json:"instance_id"`
	Status              Status       `json:"status"`
	CurrentStage        string       `json:"current_stage"`
	ResumeAt            string       `json:"resume_at,omitempty"`
	Invoice             Invoice      `json:"invoice"`
	Settings            Settings     `json:"settings"`
	Outputs             StageOutputs `json:"stage_outputs"`
	Decision            *Decision    `json:"decision,omitempty"`
	Paused              bool         `json:"paused"`
	PausedReason        string       `json:"paused_reason,omitempty"`
	PendingCheckpointID string       `json:"pending_checkpoint_id,omitempty"`
	Error               *StageError  `json:"error,omitempty"`
	Version             int64        `json:"version"`
	CreatedAt           time.Time    `json:"created_at"`
	UpdatedAt           time.Time    `json:"updated_at"`
}

// newInstance allocates a PENDING instance positioned at the first stage.
func newInstance(id string, inv Invoice, settings Settings, first string, now time.Time) *Instance {
	return &Instance{
		ID:        id,
		Status:    StatusPending,
		ResumeAt:  first,
		Invoice:   inv,
		Settings:  settings.withDefaults(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy of the instance.
func (i *Instance) Clone() *Instance {
	data, err := json.Marshal(i)
	if err != nil {
		panic(fmt.Sprintf("invoiceflow: instance %s is not serializable: %v", i.ID, err))
	}
	var clone Instance
	if err := json.Unmarshal(data, &clone); err != nil {
		panic(fmt.Sprintf("invoiceflow: instance %s failed to round trip: %v", i.ID, err))
	}
	return &clone
}

// Snapshot serializes the instance for storage in a checkpoint.
func (i *Instance) Snapshot() (json.RawMessage, error) {
	return json.Marshal(i)
}

// Complete reports whether the instance reached a terminal status.
func (i *Instance) Complete() bool {
	return i.Status.IsTerminal()
}

// Apply merges a stage update into the instance.
func (i *Instance) Apply(u *Update) {
	if u == nil {
		return
	}
	if u.Output != nil {
		i.Outputs.set(u.Output)
	}
	if u.Status != "" {
		i.Status = u.Status
	}
	if u.Paused != nil {
		i.Paused = *u.Paused
		if !i.Paused {
			i.PausedReason = ""
		}
	}
	if u.PausedReason != "" {
		i.PausedReason = u.PausedReason
	}
	if u.Decision != nil {
		d := *u.Decision
		i.Decision = &d
	}
}

// fail records a stage error and forces the FAILED status.
func (i *Instance) fail(err *StageError) {
	i.Error = err
	i.Status = StatusFailed
	i.ResumeAt = ""
}
