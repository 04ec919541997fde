package repository

import "context"

// WorkflowStore persists workflows together with their steps.
//
// Create fails with a CONFLICT error when a pending workflow already exists
// for the same document. Update applies only when the stored version equals
// expectedVersion, then stores wf with Version = expectedVersion+1; a
// mismatch is a CONFLICT error.
type WorkflowStore interface {
	Create(ctx context.Context, wf *ApprovalWorkflow) error
	GetByID(ctx context.Context, id string) (*ApprovalWorkflow, error)
	List(ctx context.Context, filter WorkflowFilter) ([]*ApprovalWorkflow, error)
	Update(ctx context.Context, wf *ApprovalWorkflow, expectedVersion int) error
}

// AuditStore appends and reads immutable audit entries.
type AuditStore interface {
	Append(ctx context.Context, entry *ApprovalAuditEntry) error
	GetByWorkflowID(ctx context.Context, workflowID string) ([]*ApprovalAuditEntry, error)
}

var (
	_ WorkflowStore = (*MemoryStore)(nil)
	_ AuditStore    = (*MemoryStore)(nil)
	_ WorkflowStore = (*ApprovalWorkflowRepository)(nil)
	_ AuditStore    = (*ApprovalAuditRepository)(nil)
)
