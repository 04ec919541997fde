package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pesio-ai/be-plt-approvals/internal/errors"
	"github.com/pesio-ai/be-plt-approvals/internal/logger"
	"github.com/pesio-ai/be-plt-approvals/internal/repository"
)

// Notification event types.
const (
	EventApprovalRequired  = "approval_required"
	EventWorkflowApproved  = "workflow_approved"
	EventWorkflowRejected  = "workflow_rejected"
	EventWorkflowCancelled = "workflow_cancelled"
)

// Notifier publishes workflow events. Implementations must not fail the
// caller; delivery problems are theirs to log.
type Notifier interface {
	PublishWorkflowEvent(ctx context.Context, eventType string, wf *repository.ApprovalWorkflow, actorID string, recipients []string)
}

// CreateWorkflowRequest carries the document being submitted for approval.
type CreateWorkflowRequest struct {
	DocumentID            string                  `json:"document_id"`
	DocumentType          repository.DocumentType `json:"document_type"`
	TotalAmount           float64                 `json:"total_amount"`
	Currency              string                  `json:"currency"`
	Priority              repository.Priority     `json:"priority"`
	BusinessJustification string                  `json:"business_justification,omitempty"`
}

// Metrics aggregates workflow counts for a dashboard.
type Metrics struct {
	TotalPending       int `json:"total_pending"`
	TotalApproved      int `json:"total_approved"`
	TotalRejected      int `json:"total_rejected"`
	PendingMyApproval  int `json:"pending_my_approval"`
	MySubmittedPending int `json:"my_submitted_pending"`
}

// Option configures an ApprovalWorkflowService.
type Option func(*ApprovalWorkflowService)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *ApprovalWorkflowService) { s.now = now }
}

// WithStrictApprovers requires actors to match the step's role or user
// before approving or rejecting it.
func WithStrictApprovers(strict bool) Option {
	return func(s *ApprovalWorkflowService) { s.strictApprovers = strict }
}

// WithChainRules replaces DefaultChainRules.
func WithChainRules(rules []ChainRule) Option {
	return func(s *ApprovalWorkflowService) { s.rules = rules }
}

// ApprovalWorkflowService owns workflow creation, transitions and the
// approver/requestor scoped queries.
type ApprovalWorkflowService struct {
	workflows       repository.WorkflowStore
	audit           repository.AuditStore
	identity        IdentityClientInterface
	notifier        Notifier
	log             *logger.Logger
	now             func() time.Time
	rules           []ChainRule
	strictApprovers bool
}

// NewApprovalWorkflowService creates a new ApprovalWorkflowService. identity
// and notifier may be nil.
func NewApprovalWorkflowService(
	workflows repository.WorkflowStore,
	audit repository.AuditStore,
	identity IdentityClientInterface,
	notifier Notifier,
	log *logger.Logger,
	opts ...Option,
) *ApprovalWorkflowService {
	s := &ApprovalWorkflowService{
		workflows: workflows,
		audit:     audit,
		identity:  identity,
		notifier:  notifier,
		log:       log.Component("approval_engine"),
		now:       time.Now,
		rules:     DefaultChainRules,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DeriveApprovalChain returns step templates for a document using the
// service's routing table.
func (s *ApprovalWorkflowService) DeriveApprovalChain(documentType repository.DocumentType, totalAmount float64) []*repository.ApprovalStep {
	return deriveChain(s.rules, documentType, totalAmount)
}

// ── Workflow creation ─────────────────────────────────────────────────────────

// CreateWorkflow derives the approval chain for a document and stores a new
// pending workflow.
func (s *ApprovalWorkflowService) CreateWorkflow(
	ctx context.Context,
	req *CreateWorkflowRequest,
	requestor *Actor,
) (*repository.ApprovalWorkflow, error) {
	if !authenticated(requestor) {
		return nil, errors.Unauthenticated("a requestor is required to submit for approval")
	}
	if err := validateCreate(req); err != nil {
		return nil, err
	}

	priority := req.Priority
	if priority == "" {
		priority = repository.PriorityMedium
	}

	steps := s.DeriveApprovalChain(req.DocumentType, req.TotalAmount)
	for _, step := range steps {
		step.ID = uuid.NewString()
	}

	wf := &repository.ApprovalWorkflow{
		ID:                    uuid.NewString(),
		DocumentID:            req.DocumentID,
		DocumentType:          req.DocumentType,
		RequestorID:           requestor.ID,
		RequestorName:         requestor.FullName(),
		TotalAmount:           req.TotalAmount,
		Currency:              strings.ToUpper(req.Currency),
		CurrentStep:           0,
		Status:                repository.WorkflowPending,
		Steps:                 steps,
		Priority:              priority,
		CreatedDate:           s.now(),
		BusinessJustification: req.BusinessJustification,
	}

	if err := s.workflows.Create(ctx, wf); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("workflow_id", wf.ID).
		Str("document_id", wf.DocumentID).
		Str("document_type", string(wf.DocumentType)).
		Int("total_steps", len(wf.Steps)).
		Msg("Approval workflow created")

	s.appendAudit(ctx, &repository.ApprovalAuditEntry{
		WorkflowID:  wf.ID,
		DocumentID:  wf.DocumentID,
		Action:      repository.AuditSubmitted,
		PerformedBy: requestor.ID,
		StatusAfter: wf.Status,
		Metadata: map[string]interface{}{
			"total_amount": wf.TotalAmount,
			"currency":     wf.Currency,
			"total_steps":  len(wf.Steps),
		},
	})
	s.notifyApprovers(ctx, wf, requestor.ID)

	return wf, nil
}

func validateCreate(req *CreateWorkflowRequest) error {
	if req == nil {
		return errors.InvalidInput("request", "request is required")
	}
	if strings.TrimSpace(req.DocumentID) == "" {
		return errors.InvalidInput("document_id", "document id is required")
	}
	if !req.DocumentType.Valid() {
		return errors.InvalidInput("document_type", fmt.Sprintf("unknown document type %q", req.DocumentType))
	}
	if math.IsNaN(req.TotalAmount) || math.IsInf(req.TotalAmount, 0) {
		return errors.InvalidInput("total_amount", "total amount must be a finite number")
	}
	if req.TotalAmount < 0 {
		return errors.InvalidInput("total_amount", "total amount cannot be negative")
	}
	if len(req.Currency) != 3 {
		return errors.InvalidInput("currency", "currency must be 3-letter ISO code")
	}
	if req.Priority != "" && !req.Priority.Valid() {
		return errors.InvalidInput("priority", fmt.Sprintf("unknown priority %q", req.Priority))
	}
	return nil
}

// ── Approve ───────────────────────────────────────────────────────────────────

// ApproveStep approves the current step. The workflow advances to the next
// step, or becomes approved when this was the last one.
func (s *ApprovalWorkflowService) ApproveStep(
	ctx context.Context,
	workflowID, stepID string,
	actor *Actor,
	comments string,
) (*repository.ApprovalWorkflow, error) {
	if !authenticated(actor) {
		return nil, errors.Unauthenticated("an authenticated approver is required")
	}

	wf, step, err := s.loadActionable(ctx, workflowID, stepID, actor)
	if err != nil {
		return nil, err
	}
	version := wf.Version
	now := s.now()

	stamp(step, repository.StepApproved, actor, comments, now)

	isLastStep := wf.CurrentStep >= len(wf.Steps)-1
	if isLastStep {
		wf.Status = repository.WorkflowApproved
		wf.CompletedDate = &now
	} else {
		wf.CurrentStep++
	}

	if err := s.workflows.Update(ctx, wf, version); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("workflow_id", wf.ID).
		Str("step_id", step.ID).
		Str("actor_id", actor.ID).
		Bool("workflow_complete", isLastStep).
		Msg("Approval step approved")

	s.appendAudit(ctx, &repository.ApprovalAuditEntry{
		WorkflowID:   wf.ID,
		DocumentID:   wf.DocumentID,
		StepID:       &step.ID,
		Action:       repository.AuditApproved,
		PerformedBy:  actor.ID,
		StatusBefore: repository.WorkflowPending,
		StatusAfter:  wf.Status,
		Metadata:     map[string]interface{}{"step_order": step.Order, "comments": comments},
	})

	if isLastStep {
		s.publish(ctx, EventWorkflowApproved, wf, actor.ID, []string{wf.RequestorID})
	} else {
		s.notifyApprovers(ctx, wf, actor.ID)
	}

	return wf, nil
}

// ── Reject ────────────────────────────────────────────────────────────────────

// RejectWorkflow rejects the current step, which terminates the whole
// workflow. Steps that were still pending are marked skipped.
func (s *ApprovalWorkflowService) RejectWorkflow(
	ctx context.Context,
	workflowID, stepID string,
	actor *Actor,
	comments string,
) (*repository.ApprovalWorkflow, error) {
	if !authenticated(actor) {
		return nil, errors.Unauthenticated("an authenticated approver is required")
	}

	wf, step, err := s.loadActionable(ctx, workflowID, stepID, actor)
	if err != nil {
		return nil, err
	}
	version := wf.Version
	now := s.now()

	stamp(step, repository.StepRejected, actor, comments, now)
	skipPending(wf)
	wf.Status = repository.WorkflowRejected
	wf.CompletedDate = &now

	if err := s.workflows.Update(ctx, wf, version); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("workflow_id", wf.ID).
		Str("step_id", step.ID).
		Str("actor_id", actor.ID).
		Msg("Approval workflow rejected")

	s.appendAudit(ctx, &repository.ApprovalAuditEntry{
		WorkflowID:   wf.ID,
		DocumentID:   wf.DocumentID,
		StepID:       &step.ID,
		Action:       repository.AuditRejected,
		PerformedBy:  actor.ID,
		StatusBefore: repository.WorkflowPending,
		StatusAfter:  wf.Status,
		Metadata:     map[string]interface{}{"step_order": step.Order, "reason": comments},
	})
	s.publish(ctx, EventWorkflowRejected, wf, actor.ID, []string{wf.RequestorID})

	return wf, nil
}

// ── Cancel ────────────────────────────────────────────────────────────────────

// CancelWorkflow lets the original requestor withdraw a pending workflow.
func (s *ApprovalWorkflowService) CancelWorkflow(
	ctx context.Context,
	workflowID string,
	actor *Actor,
	reason string,
) (*repository.ApprovalWorkflow, error) {
	if !authenticated(actor) {
		return nil, errors.Unauthenticated("an authenticated requestor is required")
	}

	wf, err := s.workflows.GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if wf.RequestorID != actor.ID {
		return nil, errors.New(errors.ErrCodeForbidden, "only the requestor can cancel the workflow")
	}
	if wf.Status != repository.WorkflowPending {
		return nil, errors.InvalidTransition(
			fmt.Sprintf("workflow cannot be cancelled from status '%s'", wf.Status))
	}
	version := wf.Version
	now := s.now()

	recipients := s.approversFor(ctx, wf.ActiveStep())
	skipPending(wf)
	wf.Status = repository.WorkflowCancelled
	wf.CompletedDate = &now

	if err := s.workflows.Update(ctx, wf, version); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("workflow_id", wf.ID).
		Str("actor_id", actor.ID).
		Msg("Approval workflow cancelled")

	s.appendAudit(ctx, &repository.ApprovalAuditEntry{
		WorkflowID:   wf.ID,
		DocumentID:   wf.DocumentID,
		Action:       repository.AuditCancelled,
		PerformedBy:  actor.ID,
		StatusBefore: repository.WorkflowPending,
		StatusAfter:  wf.Status,
		Metadata:     map[string]interface{}{"reason": reason},
	})
	s.publish(ctx, EventWorkflowCancelled, wf, actor.ID, recipients)

	return wf, nil
}

// ── Delegate ──────────────────────────────────────────────────────────────────

// DelegateStep hands the current step to another user. The step becomes bound
// to that user alone and the workflow stays pending.
func (s *ApprovalWorkflowService) DelegateStep(
	ctx context.Context,
	workflowID, stepID string,
	actor *Actor,
	delegateTo, reason string,
) (*repository.ApprovalWorkflow, error) {
	if !authenticated(actor) {
		return nil, errors.Unauthenticated("an authenticated approver is required")
	}
	delegateTo = strings.TrimSpace(delegateTo)
	if delegateTo == "" {
		return nil, errors.InvalidInput("delegate_to", "a delegate is required")
	}
	if delegateTo == actor.ID {
		return nil, errors.InvalidInput("delegate_to", "cannot delegate a step to yourself")
	}
	if strings.TrimSpace(reason) == "" {
		return nil, errors.InvalidInput("reason", "delegation reason is required")
	}
	if s.identity != nil {
		if _, err := s.identity.GetUser(ctx, delegateTo); err != nil {
			if errors.Is(err, errors.ErrCodeNotFound) {
				return nil, errors.InvalidInput("delegate_to", fmt.Sprintf("unknown user %s", delegateTo))
			}
			return nil, err
		}
	}

	wf, step, err := s.loadActionable(ctx, workflowID, stepID, actor)
	if err != nil {
		return nil, err
	}
	version := wf.Version

	originalRole := step.ApproverRole
	previousUser := step.ApproverUserID
	step.ApproverRole = ""
	step.ApproverUserID = delegateTo

	if err := s.workflows.Update(ctx, wf, version); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("workflow_id", wf.ID).
		Str("step_id", step.ID).
		Str("actor_id", actor.ID).
		Str("delegate_to", delegateTo).
		Msg("Approval step delegated")

	s.appendAudit(ctx, &repository.ApprovalAuditEntry{
		WorkflowID:   wf.ID,
		DocumentID:   wf.DocumentID,
		StepID:       &step.ID,
		Action:       repository.AuditDelegated,
		PerformedBy:  actor.ID,
		StatusBefore: wf.Status,
		StatusAfter:  wf.Status,
		Metadata: map[string]interface{}{
			"step_order":    step.Order,
			"delegated_to":  delegateTo,
			"original_role": originalRole,
			"previous_user": previousUser,
			"reason":        reason,
		},
	})
	s.notifyApprovers(ctx, wf, actor.ID)

	return wf, nil
}

// ── Query helpers ─────────────────────────────────────────────────────────────

// GetWorkflow returns a workflow by id.
func (s *ApprovalWorkflowService) GetWorkflow(ctx context.Context, workflowID string) (*repository.ApprovalWorkflow, error) {
	return s.workflows.GetByID(ctx, workflowID)
}

// GetAuditTrail returns the audit entries of a workflow, oldest first.
func (s *ApprovalWorkflowService) GetAuditTrail(ctx context.Context, workflowID string) ([]*repository.ApprovalAuditEntry, error) {
	if _, err := s.workflows.GetByID(ctx, workflowID); err != nil {
		return nil, err
	}
	return s.audit.GetByWorkflowID(ctx, workflowID)
}

// WorkflowsAwaitingApprover returns pending workflows whose current step is
// bound to the actor's role or to the actor directly.
func (s *ApprovalWorkflowService) WorkflowsAwaitingApprover(ctx context.Context, actor *Actor) ([]*repository.ApprovalWorkflow, error) {
	if !authenticated(actor) {
		return []*repository.ApprovalWorkflow{}, nil
	}

	pending, err := s.workflows.List(ctx, repository.WorkflowFilter{Status: repository.WorkflowPending})
	if err != nil {
		return nil, err
	}

	out := make([]*repository.ApprovalWorkflow, 0, len(pending))
	for _, wf := range pending {
		if awaits(wf, actor) {
			out = append(out, wf)
		}
	}
	return out, nil
}

// WorkflowsSubmittedBy returns every workflow the actor submitted.
func (s *ApprovalWorkflowService) WorkflowsSubmittedBy(ctx context.Context, actor *Actor) ([]*repository.ApprovalWorkflow, error) {
	if !authenticated(actor) {
		return []*repository.ApprovalWorkflow{}, nil
	}

	workflows, err := s.workflows.List(ctx, repository.WorkflowFilter{RequestorID: actor.ID})
	if err != nil {
		return nil, err
	}
	if workflows == nil {
		workflows = []*repository.ApprovalWorkflow{}
	}
	return workflows, nil
}

// Metrics counts workflows by status plus the actor-scoped figures. An
// unauthenticated actor gets zero for the actor-scoped counts.
func (s *ApprovalWorkflowService) Metrics(ctx context.Context, actor *Actor) (*Metrics, error) {
	all, err := s.workflows.List(ctx, repository.WorkflowFilter{})
	if err != nil {
		return nil, err
	}

	m := &Metrics{}
	for _, wf := range all {
		switch wf.Status {
		case repository.WorkflowPending:
			m.TotalPending++
		case repository.WorkflowApproved:
			m.TotalApproved++
		case repository.WorkflowRejected:
			m.TotalRejected++
		}

		if !authenticated(actor) {
			continue
		}
		if awaits(wf, actor) {
			m.PendingMyApproval++
		}
		if wf.RequestorID == actor.ID && wf.Status == repository.WorkflowPending {
			m.MySubmittedPending++
		}
	}
	return m, nil
}

// ── Transition helpers ────────────────────────────────────────────────────────

// loadActionable fetches the workflow and checks that stepID is the step
// currently awaiting action.
func (s *ApprovalWorkflowService) loadActionable(
	ctx context.Context,
	workflowID, stepID string,
	actor *Actor,
) (*repository.ApprovalWorkflow, *repository.ApprovalStep, error) {
	wf, err := s.workflows.GetByID(ctx, workflowID)
	if err != nil {
		return nil, nil, err
	}

	step := wf.StepByID(stepID)
	if step == nil {
		return nil, nil, errors.NotFound("approval_step", stepID)
	}
	if wf.Status != repository.WorkflowPending {
		return nil, nil, errors.InvalidTransition(
			fmt.Sprintf("workflow is not pending (status: %s)", wf.Status))
	}
	if step.Order != wf.CurrentStep {
		return nil, nil, errors.InvalidTransition(
			fmt.Sprintf("step %d is not the current step (current: %d)", step.Order, wf.CurrentStep))
	}
	if step.Status != repository.StepPending {
		return nil, nil, errors.InvalidTransition(
			fmt.Sprintf("step %d is not pending (status: %s)", step.Order, step.Status))
	}
	if s.strictApprovers && !canAct(step, actor) {
		return nil, nil, errors.New(errors.ErrCodeForbidden,
			"user is not authorized to act on this approval step")
	}
	return wf, step, nil
}

// canAct reports whether the actor matches the step's role or bound user.
func canAct(step *repository.ApprovalStep, actor *Actor) bool {
	if step.ApproverRole != "" && step.ApproverRole == actor.Role {
		return true
	}
	return step.ApproverUserID != "" && step.ApproverUserID == actor.ID
}

// awaits reports whether wf is currently waiting on the actor.
func awaits(wf *repository.ApprovalWorkflow, actor *Actor) bool {
	step := wf.ActiveStep()
	if step == nil || step.Status != repository.StepPending || step.Order != wf.CurrentStep {
		return false
	}
	return canAct(step, actor)
}

func stamp(step *repository.ApprovalStep, status repository.StepStatus, actor *Actor, comments string, at time.Time) {
	step.Status = status
	step.ApproverUserID = actor.ID
	step.ApproverName = actor.FullName()
	step.ApprovedDate = &at
	step.Comments = comments
}

func skipPending(wf *repository.ApprovalWorkflow) {
	for _, step := range wf.Steps {
		if step.Status == repository.StepPending {
			step.Status = repository.StepSkipped
		}
	}
}

// ── Internal helpers ──────────────────────────────────────────────────────────

// appendAudit writes an audit entry and logs a warning on failure (never returns error).
func (s *ApprovalWorkflowService) appendAudit(ctx context.Context, entry *repository.ApprovalAuditEntry) {
	entry.PerformedAt = s.now()
	if err := s.audit.Append(ctx, entry); err != nil {
		s.log.Warn().Err(err).
			Str("workflow_id", entry.WorkflowID).
			Str("action", string(entry.Action)).
			Msg("Failed to write audit log entry")
	}
}

// notifyApprovers tells the holders of the active step that action is required.
func (s *ApprovalWorkflowService) notifyApprovers(ctx context.Context, wf *repository.ApprovalWorkflow, actorID string) {
	s.publish(ctx, EventApprovalRequired, wf, actorID, s.approversFor(ctx, wf.ActiveStep()))
}

func (s *ApprovalWorkflowService) approversFor(ctx context.Context, step *repository.ApprovalStep) []string {
	if step == nil {
		return nil
	}
	if step.ApproverUserID != "" {
		return []string{step.ApproverUserID}
	}
	if s.identity == nil {
		return nil
	}
	users, err := s.identity.GetUsersWithRole(ctx, step.ApproverRole)
	if err != nil {
		s.log.Warn().Err(err).Str("role", step.ApproverRole).Msg("Could not fetch users for role; no approvers notified")
		return nil
	}
	return users
}

func (s *ApprovalWorkflowService) publish(ctx context.Context, eventType string, wf *repository.ApprovalWorkflow, actorID string, recipients []string) {
	if s.notifier == nil {
		return
	}
	s.notifier.PublishWorkflowEvent(ctx, eventType, wf, actorID, recipients)
}
