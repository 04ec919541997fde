package repository

import "time"

// ── Domain types for approval workflow ───────────────────────────────────────

// DocumentType identifies the business object under approval.
type DocumentType string

const (
	DocumentRequisition   DocumentType = "requisition"
	DocumentPurchaseOrder DocumentType = "purchase_order"
	DocumentInvoice       DocumentType = "invoice"
	DocumentContract      DocumentType = "contract"
)

// Valid reports whether t is a known document type.
func (t DocumentType) Valid() bool {
	switch t {
	case DocumentRequisition, DocumentPurchaseOrder, DocumentInvoice, DocumentContract:
		return true
	}
	return false
}

// WorkflowStatus is the lifecycle state of a workflow.
type WorkflowStatus string

const (
	WorkflowPending   WorkflowStatus = "pending"
	WorkflowApproved  WorkflowStatus = "approved"
	WorkflowRejected  WorkflowStatus = "rejected"
	WorkflowCancelled WorkflowStatus = "cancelled"
)

// Terminal reports whether no further transition is allowed.
func (s WorkflowStatus) Terminal() bool {
	return s != WorkflowPending
}

// StepStatus is the state of a single approval step.
type StepStatus string

const (
	StepPending  StepStatus = "pending"
	StepApproved StepStatus = "approved"
	StepRejected StepStatus = "rejected"
	StepSkipped  StepStatus = "skipped"
)

// Priority is informational and never affects routing.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// ApprovalStep is one approval gate within a workflow. It is bound either to
// a role or to a specific user.
type ApprovalStep struct {
	ID             string     `json:"id"`
	ApproverRole   string     `json:"approver_role,omitempty"`
	ApproverUserID string     `json:"approver_user_id,omitempty"`
	ApproverName   string     `json:"approver_name,omitempty"`
	ApprovedDate   *time.Time `json:"approved_date,omitempty"`
	Comments       string     `json:"comments,omitempty"`
	Status         StepStatus `json:"status"`
	Order          int        `json:"order"`
}

// ApprovalWorkflow is one approval process instance for a single document.
type ApprovalWorkflow struct {
	ID                    string          `json:"id"`
	DocumentID            string          `json:"document_id"`
	DocumentType          DocumentType    `json:"document_type"`
	RequestorID           string          `json:"requestor_id"`
	RequestorName         string          `json:"requestor_name"`
	TotalAmount           float64         `json:"total_amount"`
	Currency              string          `json:"currency"`
	CurrentStep           int             `json:"current_step"`
	Status                WorkflowStatus  `json:"status"`
	Steps                 []*ApprovalStep `json:"steps"`
	Priority              Priority        `json:"priority"`
	CreatedDate           time.Time       `json:"created_date"`
	CompletedDate         *time.Time      `json:"completed_date,omitempty"`
	BusinessJustification string          `json:"business_justification,omitempty"`
	// Version is bumped on every persisted change and used for optimistic
	// concurrency on Update.
	Version int `json:"version"`
}

// StepByID returns the step with the given id, or nil.
func (wf *ApprovalWorkflow) StepByID(id string) *ApprovalStep {
	for _, s := range wf.Steps {
		if s.ID == id {
			return s
		}
	}
	return nil
}

// ActiveStep returns the step awaiting action, or nil when the workflow is
// terminal or the pointer is out of range.
func (wf *ApprovalWorkflow) ActiveStep() *ApprovalStep {
	if wf.Status != WorkflowPending {
		return nil
	}
	if wf.CurrentStep < 0 || wf.CurrentStep >= len(wf.Steps) {
		return nil
	}
	return wf.Steps[wf.CurrentStep]
}

// Clone returns a deep copy so stores never share mutable state with callers.
func (wf *ApprovalWorkflow) Clone() *ApprovalWorkflow {
	if wf == nil {
		return nil
	}
	cp := *wf
	if wf.CompletedDate != nil {
		t := *wf.CompletedDate
		cp.CompletedDate = &t
	}
	cp.Steps = make([]*ApprovalStep, len(wf.Steps))
	for i, s := range wf.Steps {
		sc := *s
		if s.ApprovedDate != nil {
			t := *s.ApprovedDate
			sc.ApprovedDate = &t
		}
		cp.Steps[i] = &sc
	}
	return &cp
}

// AuditAction names a recorded workflow event.
type AuditAction string

const (
	AuditSubmitted AuditAction = "submitted"
	AuditApproved  AuditAction = "approved"
	AuditRejected  AuditAction = "rejected"
	AuditCancelled AuditAction = "cancelled"
	AuditDelegated AuditAction = "delegated"
)

// ApprovalAuditEntry is one immutable record in the audit log.
type ApprovalAuditEntry struct {
	ID           string                 `json:"id"`
	WorkflowID   string                 `json:"workflow_id"`
	DocumentID   string                 `json:"document_id"`
	StepID       *string                `json:"step_id,omitempty"`
	Action       AuditAction            `json:"action"`
	PerformedBy  string                 `json:"performed_by"`
	PerformedAt  time.Time              `json:"performed_at"`
	StatusBefore WorkflowStatus         `json:"status_before,omitempty"`
	StatusAfter  WorkflowStatus         `json:"status_after"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// WorkflowFilter narrows List results. Zero values match everything.
type WorkflowFilter struct {
	Status      WorkflowStatus
	RequestorID string
	DocumentID  string
}

// Matches reports whether wf satisfies the filter.
func (f WorkflowFilter) Matches(wf *ApprovalWorkflow) bool {
	if f.Status != "" && wf.Status != f.Status {
		return false
	}
	if f.RequestorID != "" && wf.RequestorID != f.RequestorID {
		return false
	}
	if f.DocumentID != "" && wf.DocumentID != f.DocumentID {
		return false
	}
	return true
}
