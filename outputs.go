package invoiceflow

import "time"

// StageOutput is implemented only by the output records in this file. An
// update carries at most one of them and it is merged into the slot owned by
// the stage it names.
type StageOutput interface {
	Stage() string
	isStageOutput()
}

// MatchResult is the outcome of the two-way match.
type MatchResult string

const (
	MatchResultMatched MatchResult = "MATCHED"
	MatchResultFailed  MatchResult = "FAILED"
)

// ApprovalStatus is the outcome of the approval stage.
type ApprovalStatus string

const (
	ApprovalAutoApproved     ApprovalStatus = "AUTO_APPROVED"
	ApprovalRequiresApproval ApprovalStatus = "REQUIRES_APPROVAL"
)

type IntakeOutput struct {
	RawID     string    `json:"raw_id"`
	IngestTS  time.Time `json:"ingest_ts"`
	Validated bool      `json:"validated"`
}

type UnderstandOutput struct {
	Text         string     `json:"text,omitempty"`
	LineItems    []LineItem `json:"line_items"`
	POReferences []string   `json:"po_references"`
	Dates        []string   `json:"dates,omitempty"`
	InvoiceDate  string     `json:"invoice_date,omitempty"`
	DueDate      string     `json:"due_date,omitempty"`
	Provider     string     `json:"provider,omitempty"`
}

type PrepareOutput struct {
	NormalizedVendor string        `json:"normalized_vendor"`
	TaxID            string        `json:"tax_id,omitempty"`
	Profile          VendorProfile `json:"profile"`
	Flags            []string      `json:"flags,omitempty"`
	RiskScore        float64       `json:"risk_score"`
}

type RetrieveOutput struct {
	PurchaseOrders []PurchaseOrder     `json:"purchase_orders"`
	GoodsReceipts  []GoodsReceipt      `json:"goods_receipts"`
	History        []HistoricalInvoice `json:"history"`
	Provider       string              `json:"provider"`
}

// LineMatch pairs an invoice line with the PO line it matched.
type LineMatch struct {
	InvoiceDesc string  `json:"invoice_desc"`
	PODesc      string  `json:"po_desc"`
	InvoiceQty  float64 `json:"invoice_qty"`
	POQty       float64 `json:"po_qty"`
	QtyMatch    bool    `json:"qty_match"`
}

// MatchEvidence explains how the match score was reached.
type MatchEvidence struct {
	Reason            string      `json:"reason,omitempty"`
	InvoiceTotal      float64     `json:"invoice_total"`
	POTotal           float64     `json:"po_total"`
	AmountDiff        float64     `json:"amount_diff"`
	AmountDiffPct     float64     `json:"amount_diff_pct"`
	ToleranceExceeded bool        `json:"tolerance_exceeded"`
	AmountScore       float64     `json:"amount_score"`
	LineScore         float64     `json:"line_score"`
	MatchedLines      int         `json:"matched_lines"`
	InvoiceLines      int         `json:"invoice_lines"`
	Lines             []LineMatch `json:"lines,omitempty"`
}

type MatchOutput struct {
	Score        float64       `json:"match_score"`
	Result       MatchResult   `json:"match_result"`
	TolerancePct float64       `json:"tolerance_pct"`
	Threshold    float64       `json:"threshold"`
	Evidence     MatchEvidence `json:"evidence"`
}

type CheckpointOutput struct {
	CheckpointID   string    `json:"checkpoint_id"`
	ReasonForHold  string    `json:"reason_for_hold"`
	MismatchDetail string    `json:"mismatch_detail"`
	FailedStage    string    `json:"failed_stage"`
	ReviewURL      string    `json:"review_url"`
	Queue          string    `json:"queue"`
	CreatedAt      time.Time `json:"created_at"`
}

// ReviewOutput is written by the decision stage once a decision is observed.
type ReviewOutput struct {
	Decision    DecisionValue `json:"decision"`
	ReviewerID  string        `json:"reviewer_id"`
	Notes       string        `json:"notes,omitempty"`
	ResumeToken string        `json:"resume_token"`
	NextStage   string        `json:"next_stage"`
	DecidedAt   time.Time     `json:"decided_at"`
}

type ReconcileOutput struct {
	Entries      []AccountingEntry `json:"entries"`
	Balanced     bool              `json:"balanced"`
	ReconciledAt time.Time         `json:"reconciled_at"`
}

type ApproveOutput struct {
	Status    ApprovalStatus `json:"status"`
	Approver  string         `json:"approver"`
	Policy    string         `json:"policy"`
	DecidedAt time.Time      `json:"decided_at"`
}

type PostingOutput struct {
	TransactionID string    `json:"transaction_id"`
	Posted        bool      `json:"posted"`
	PaymentID     string    `json:"payment_id"`
	ScheduledDate string    `json:"scheduled_date"`
	PostedAt      time.Time `json:"posted_at"`
}

type NotifyOutput struct {
	Notifications []NotificationReceipt `json:"notifications"`
}

// FinalPayload summarizes a finished instance.
type FinalPayload struct {
	InvoiceID       string        `json:"invoice_id"`
	Vendor          string        `json:"vendor"`
	Amount          float64       `json:"amount"`
	Currency        string        `json:"currency"`
	Status          Status        `json:"status"`
	Decision        DecisionValue `json:"decision,omitempty"`
	TransactionID   string        `json:"transaction_id,omitempty"`
	StagesCompleted []string      `json:"stages_completed"`
}

// AuditEvent is one line of the audit trail attached to the final payload.
type AuditEvent struct {
	Stage  string `json:"stage"`
	Detail string `json:"detail"`
}

type CompleteOutput struct {
	FinalPayload FinalPayload `json:"final_payload"`
	AuditLog     []AuditEvent `json:"audit_log"`
	CompletedAt  time.Time    `json:"completed_at"`
}

func (*IntakeOutput) Stage() string     { return StageIntake }
func (*UnderstandOutput) Stage() string { return StageUnderstand }
func (*PrepareOutput) Stage() string    { return StagePrepare }
func (*RetrieveOutput) Stage() string   { return StageRetrieve }
func (*MatchOutput) Stage() string      { return StageMatch }
func (*CheckpointOutput) Stage() string { return StageCheckpoint }
func (*ReviewOutput) Stage() string     { return StageDecision }
func (*ReconcileOutput) Stage() string  { return StageReconcile }
func (*ApproveOutput) Stage() string    { return StageApprove }
func (*PostingOutput) Stage() string    { return StagePosting }
func (*NotifyOutput) Stage() string     { return StageNotify }
func (*CompleteOutput) Stage() string   { return StageComplete }

func (*IntakeOutput) isStageOutput()     {}
func (*UnderstandOutput) isStageOutput() {}
func (*PrepareOutput) isStageOutput()    {}
func (*RetrieveOutput) isStageOutput()   {}
func (*MatchOutput) isStageOutput()      {}
func (*CheckpointOutput) isStageOutput() {}
func (*ReviewOutput) isStageOutput()     {}
func (*ReconcileOutput) isStageOutput()  {}
func (*ApproveOutput) isStageOutput()    {}
func (*PostingOutput) isStageOutput()    {}
func (*NotifyOutput) isStageOutput()     {}
func (*CompleteOutput) isStageOutput()   {}

// StageOutputs holds one optional slot per stage.
type StageOutputs struct {
	Intake     *IntakeOutput     `json:"intake,omitempty"`
	Understand *UnderstandOutput `json:"understand,omitempty"`
	Prepare    *PrepareOutput    `json:"prepare,omitempty"`
	Retrieve   *RetrieveOutput   `json:"retrieve,omitempty"`
	Match      *MatchOutput      `json:"match,omitempty"`
	Checkpoint *CheckpointOutput `json:"checkpoint,omitempty"`
	Review     *ReviewOutput     `json:"hitl,omitempty"`
	Reconcile  *ReconcileOutput  `json:"reconcile,omitempty"`
	Approve    *ApproveOutput    `json:"approve,omitempty"`
	Posting    *PostingOutput    `json:"posting,omitempty"`
	Notify     *NotifyOutput     `json:"notify,omitempty"`
	Complete   *CompleteOutput   `json:"complete,omitempty"`
}

// set stores out in its own slot.
func (o *StageOutputs) set(out StageOutput) {
	switch v := out.(type) {
	case *IntakeOutput:
		o.Intake = v
	case *UnderstandOutput:
		o.Understand = v
	case *PrepareOutput:
		o.Prepare = v
	case *RetrieveOutput:
		o.Retrieve = v
	case *MatchOutput:
		o.Match = v
	case *CheckpointOutput:
		o.Checkpoint = v
	case *ReviewOutput:
		o.Review = v
	case *ReconcileOutput:
		o.Reconcile = v
	case *ApproveOutput:
		o.Approve = v
	case *PostingOutput:
		o.Posting = v
	case *NotifyOutput:
		o.Notify = v
	case *CompleteOutput:
		o.Complete = v
	}
}

// Get returns the output recorded for the named stage, or nil.
func (o *StageOutputs) Get(stage string) StageOutput {
	for _, out := range o.all() {
		if out != nil && out.Stage() == stage {
			return out
		}
	}
	return nil
}

// Has reports whether the named stage has recorded an output.
func (o *StageOutputs) Has(stage string) bool {
	return o.Get(stage) != nil
}

// Stages lists the stages with a recorded output, in pipeline order.
func (o *StageOutputs) Stages() []string {
	var names []string
	for _, out := range o.all() {
		if out != nil {
			names = append(names, out.Stage())
		}
	}
	return names
}

// all returns the present slots in pipeline order. Absent slots are nil
// interfaces, never typed nil pointers.
func (o *StageOutputs) all() []StageOutput {
	outs := make([]StageOutput, 0, 12)
	add := func(present bool, out StageOutput) {
		if present {
			outs = append(outs, out)
		} else {
			outs = append(outs, nil)
		}
	}
	add(o.Intake != nil, o.Intake)
	add(o.Understand != nil, o.Understand)
	add(o.Prepare != nil, o.Prepare)
	add(o.Retrieve != nil, o.Retrieve)
	add(o.Match != nil, o.Match)
	add(o.Checkpoint != nil, o.Checkpoint)
	add(o.Review != nil, o.Review)
	add(o.Reconcile != nil, o.Reconcile)
	add(o.Approve != nil, o.Approve)
	add(o.Posting != nil, o.Posting)
	add(o.Notify != nil, o.Notify)
	add(o.Complete != nil, o.Complete)
	return outs
}
