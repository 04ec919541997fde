package repository

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/pesio-ai/be-plt-approvals/internal/errors"
)

// MemoryStore is an in-process WorkflowStore and AuditStore. Workflows are
// kept in insertion order; callers always receive copies.
type MemoryStore struct {
	mu        sync.RWMutex
	workflows []*ApprovalWorkflow
	byID      map[string]int
	audit     map[string][]*ApprovalAuditEntry
}

// NewMemoryStore creates a store preloaded with seed workflows.
func NewMemoryStore(seed ...*ApprovalWorkflow) *MemoryStore {
	s := &MemoryStore{
		byID:  make(map[string]int),
		audit: make(map[string][]*ApprovalAuditEntry),
	}
	for _, wf := range seed {
		cp := wf.Clone()
		if cp.ID == "" {
			cp.ID = uuid.NewString()
		}
		s.byID[cp.ID] = len(s.workflows)
		s.workflows = append(s.workflows, cp)
	}
	return s
}

// Create stores a new workflow.
func (s *MemoryStore) Create(ctx context.Context, wf *ApprovalWorkflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if wf.ID == "" {
		wf.ID = uuid.NewString()
	}
	if _, exists := s.byID[wf.ID]; exists {
		return errors.New(errors.ErrCodeConflict, fmt.Sprintf("approval workflow %s already exists", wf.ID))
	}
	for _, existing := range s.workflows {
		if existing.DocumentID == wf.DocumentID && existing.Status == WorkflowPending {
			return errors.New(errors.ErrCodeConflict,
				fmt.Sprintf("document %s already has a pending approval workflow (%s)", wf.DocumentID, existing.ID))
		}
	}

	s.byID[wf.ID] = len(s.workflows)
	s.workflows = append(s.workflows, wf.Clone())
	return nil
}

// GetByID returns a copy of the workflow with the given id.
func (s *MemoryStore) GetByID(ctx context.Context, id string) (*ApprovalWorkflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, ok := s.byID[id]
	if !ok {
		return nil, errors.NotFound("approval_workflow", id)
	}
	return s.workflows[idx].Clone(), nil
}

// List returns copies of all workflows matching filter, oldest first.
func (s *MemoryStore) List(ctx context.Context, filter WorkflowFilter) ([]*ApprovalWorkflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*ApprovalWorkflow
	for _, wf := range s.workflows {
		if filter.Matches(wf) {
			out = append(out, wf.Clone())
		}
	}
	return out, nil
}

// Update replaces the stored workflow if its version still equals expectedVersion.
func (s *MemoryStore) Update(ctx context.Context, wf *ApprovalWorkflow, expectedVersion int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.byID[wf.ID]
	if !ok {
		return errors.NotFound("approval_workflow", wf.ID)
	}
	if current := s.workflows[idx].Version; current != expectedVersion {
		return errors.New(errors.ErrCodeConflict,
			fmt.Sprintf("approval workflow %s was modified concurrently (version %d, expected %d)", wf.ID, current, expectedVersion))
	}

	wf.Version = expectedVersion + 1
	s.workflows[idx] = wf.Clone()
	return nil
}

// Append records an audit entry.
func (s *MemoryStore) Append(ctx context.Context, entry *ApprovalAuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	cp := *entry
	s.audit[entry.WorkflowID] = append(s.audit[entry.WorkflowID], &cp)
	return nil
}

// GetByWorkflowID returns the audit trail for a workflow, oldest first.
func (s *MemoryStore) GetByWorkflowID(ctx context.Context, workflowID string) ([]*ApprovalAuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.audit[workflowID]
	out := make([]*ApprovalAuditEntry, 0, len(entries))
	for _, e := range entries {
		cp := *e
		out = append(out, &cp)
	}
	return out, nil
}
