package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/pesio-ai/be-plt-approvals/internal/errors"
	"github.com/pesio-ai/be-plt-approvals/internal/logger"
	"github.com/pesio-ai/be-plt-approvals/internal/repository"
	"github.com/pesio-ai/be-plt-approvals/internal/service"
)

// UserIDHeader identifies the acting user. It is resolved against the
// identity directory; there is no further authentication.
const UserIDHeader = "X-User-ID"

// HTTPHandler handles HTTP requests
type HTTPHandler struct {
	service  *service.ApprovalWorkflowService
	identity service.IdentityClientInterface
	log      *logger.Logger
}

// NewHTTPHandler creates a new HTTP handler
func NewHTTPHandler(svc *service.ApprovalWorkflowService, identity service.IdentityClientInterface, log *logger.Logger) *HTTPHandler {
	return &HTTPHandler{
		service:  svc,
		identity: identity,
		log:      log.Component("http"),
	}
}

// Register mounts all routes on mux.
func (h *HTTPHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})

	mux.HandleFunc("/api/v1/approvals/chain", h.PreviewChain)
	mux.HandleFunc("/api/v1/approvals/workflows", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			h.ListSubmitted(w, r)
		case http.MethodPost:
			h.CreateWorkflow(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/api/v1/approvals/workflows/get", h.GetWorkflow)
	mux.HandleFunc("/api/v1/approvals/workflows/approve", h.ApproveStep)
	mux.HandleFunc("/api/v1/approvals/workflows/reject", h.RejectWorkflow)
	mux.HandleFunc("/api/v1/approvals/workflows/cancel", h.CancelWorkflow)
	mux.HandleFunc("/api/v1/approvals/workflows/delegate", h.DelegateStep)
	mux.HandleFunc("/api/v1/approvals/workflows/audit", h.GetAuditTrail)
	mux.HandleFunc("/api/v1/approvals/pending", h.ListPending)
	mux.HandleFunc("/api/v1/approvals/metrics", h.GetMetrics)
}

// PreviewChain returns the approval chain a document would get.
func (h *HTTPHandler) PreviewChain(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		DocumentType repository.DocumentType `json:"document_type"`
		TotalAmount  float64                 `json:"total_amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if !req.DocumentType.Valid() {
		h.writeError(w, errors.InvalidInput("document_type", "unknown document type"))
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"steps": h.service.DeriveApprovalChain(req.DocumentType, req.TotalAmount),
	})
}

// CreateWorkflow submits a document for approval.
func (h *HTTPHandler) CreateWorkflow(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	actor, err := h.actor(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	var req service.CreateWorkflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	wf, err := h.service.CreateWorkflow(r.Context(), &req, actor)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, wf)
}

// GetWorkflow returns one workflow.
func (h *HTTPHandler) GetWorkflow(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "Workflow ID is required", http.StatusBadRequest)
		return
	}

	wf, err := h.service.GetWorkflow(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, wf)
}

type stepActionRequest struct {
	WorkflowID string `json:"workflow_id"`
	StepID     string `json:"step_id"`
	Comments   string `json:"comments"`
}

// ApproveStep approves the current step of a workflow.
func (h *HTTPHandler) ApproveStep(w http.ResponseWriter, r *http.Request) {
	h.stepAction(w, r, false)
}

// RejectWorkflow rejects a workflow at its current step. Comments are required.
func (h *HTTPHandler) RejectWorkflow(w http.ResponseWriter, r *http.Request) {
	h.stepAction(w, r, true)
}

func (h *HTTPHandler) stepAction(w http.ResponseWriter, r *http.Request, reject bool) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	actor, err := h.actor(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	var req stepActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.WorkflowID == "" || req.StepID == "" {
		h.writeError(w, errors.InvalidInput("workflow_id", "workflow_id and step_id are required"))
		return
	}

	var wf *repository.ApprovalWorkflow
	if reject {
		if strings.TrimSpace(req.Comments) == "" {
			h.writeError(w, errors.InvalidInput("comments", "a rejection reason is required"))
			return
		}
		wf, err = h.service.RejectWorkflow(r.Context(), req.WorkflowID, req.StepID, actor, req.Comments)
	} else {
		wf, err = h.service.ApproveStep(r.Context(), req.WorkflowID, req.StepID, actor, req.Comments)
	}
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, wf)
}

// CancelWorkflow withdraws a pending workflow.
func (h *HTTPHandler) CancelWorkflow(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	actor, err := h.actor(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	var req struct {
		WorkflowID string `json:"workflow_id"`
		Reason     string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	wf, err := h.service.CancelWorkflow(r.Context(), req.WorkflowID, actor, req.Reason)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, wf)
}

// DelegateStep hands the current step to another user.
func (h *HTTPHandler) DelegateStep(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	actor, err := h.actor(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	var req struct {
		WorkflowID string `json:"workflow_id"`
		StepID     string `json:"step_id"`
		DelegateTo string `json:"delegate_to"`
		Reason     string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.WorkflowID == "" || req.StepID == "" {
		h.writeError(w, errors.InvalidInput("workflow_id", "workflow_id and step_id are required"))
		return
	}

	wf, err := h.service.DelegateStep(r.Context(), req.WorkflowID, req.StepID, actor, req.DelegateTo, req.Reason)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, wf)
}

// GetAuditTrail returns the audit log of a workflow.
func (h *HTTPHandler) GetAuditTrail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "Workflow ID is required", http.StatusBadRequest)
		return
	}

	entries, err := h.service.GetAuditTrail(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}

// ListPending returns the workflows awaiting the caller's approval.
func (h *HTTPHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	h.listFor(w, r, h.service.WorkflowsAwaitingApprover)
}

// ListSubmitted returns the workflows the caller submitted.
func (h *HTTPHandler) ListSubmitted(w http.ResponseWriter, r *http.Request) {
	h.listFor(w, r, h.service.WorkflowsSubmittedBy)
}

func (h *HTTPHandler) listFor(
	w http.ResponseWriter,
	r *http.Request,
	query func(ctx context.Context, actor *service.Actor) ([]*repository.ApprovalWorkflow, error),
) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	actor, err := h.actor(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	workflows, err := query(r.Context(), actor)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"workflows": workflows,
		"total":     len(workflows),
	})
}

// GetMetrics returns dashboard counts. Without a user header only the
// global counts are populated.
func (h *HTTPHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var actor *service.Actor
	if r.Header.Get(UserIDHeader) != "" {
		a, err := h.actor(r)
		if err != nil {
			h.writeError(w, err)
			return
		}
		actor = a
	}

	m, err := h.service.Metrics(r.Context(), actor)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, m)
}

// actor resolves the calling user from the X-User-ID header.
func (h *HTTPHandler) actor(r *http.Request) (*service.Actor, error) {
	id := r.Header.Get(UserIDHeader)
	if id == "" {
		return nil, errors.Unauthenticated("missing " + UserIDHeader + " header")
	}
	actor, err := h.identity.GetUser(r.Context(), id)
	if err != nil {
		if errors.Is(err, errors.ErrCodeNotFound) {
			return nil, errors.Unauthenticated("unknown user " + id)
		}
		return nil, err
	}
	return actor, nil
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, err error) {
	status := errors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("Request failed")
	}

	body := map[string]string{
		"code":  string(errors.CodeOf(err)),
		"error": err.Error(),
	}
	h.writeJSON(w, status, body)
}

func (h *HTTPHandler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error().Err(err).Int("status", status).Msg("Failed to encode response")
	}
}
