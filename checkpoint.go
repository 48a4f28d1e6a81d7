package invoiceflow

import (
	"encoding/json"
	"strings"
	"time"
)

// DecisionValue is a reviewer's verdict on a held instance.
type DecisionValue string

const (
	DecisionAccept DecisionValue = "ACCEPT"
	DecisionReject DecisionValue = "REJECT"
)

// ParseDecisionValue accepts "accept"/"reject" in any case.
func ParseDecisionValue(s string) (DecisionValue, error) {
	switch DecisionValue(strings.ToUpper(strings.TrimSpace(s))) {
	case DecisionAccept:
		return DecisionAccept, nil
	case DecisionReject:
		return DecisionReject, nil
	}
	return "", NewValidationError("decision", "must be ACCEPT or REJECT, got %q", s)
}

// ReasonMatchFailed is the hold reason used when the two-way match fails.
const ReasonMatchFailed = "MATCH_FAILED"

// Decision is a human verdict attached to a checkpoint. Once attached it is
// never replaced.
type Decision struct {
	Value      DecisionValue `json:"decision"`
	ReviewerID string        `json:"reviewer_id"`
	Notes      string        `json:"notes,omitempty"`
	DecidedAt  time.Time     `json:"decided_at"`
}

// Checkpoint records one suspend event of an instance.
type Checkpoint struct {
	ID             string          `json:"checkpoint_id"`
	InstanceID     string          `json:"instance_id"`
	CreatedAt      time.Time       `json:"created_at"`
	ReasonForHold  string          `json:"reason_for_hold"`
	MismatchDetail string          `json:"mismatch_detail"`
	FailedStage    string          `json:"failed_stage"`
	ReviewURL      string          `json:"review_url"`
	Decision       *Decision       `json:"decision,omitempty"`
	StateSnapshot  json.RawMessage `json:"state_snapshot,omitempty"`
}

// ReviewEntry is the human review ledger's summary of a checkpoint.
type ReviewEntry struct {
	CheckpointID   string    `json:"checkpoint_id"`
	InstanceID     string    `json:"instance_id"`
	InvoiceID      string    `json:"invoice_id"`
	VendorName     string    `json:"vendor_name"`
	Amount         float64   `json:"amount"`
	Currency       string    `json:"currency"`
	ReasonForHold  string    `json:"reason_for_hold"`
	MismatchDetail string    `json:"mismatch_detail"`
	ReviewURL      string    `json:"review_url"`
	Queue          string    `json:"queue"`
	CreatedAt      time.Time `json:"created_at"`
	Decision       *Decision `json:"decision,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ReviewURL joins the review URL prefix and a checkpoint id with exactly one
// slash between them.
func ReviewURL(prefix, checkpointID string) string {
	return strings.TrimRight(prefix, "/") + "/" + checkpointID
}
