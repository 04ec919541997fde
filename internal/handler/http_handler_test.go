package handler

import (
	"bytes"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-plt-approvals/internal/client"
	"github.com/pesio-ai/be-plt-approvals/internal/logger"
	"github.com/pesio-ai/be-plt-approvals/internal/repository"
	"github.com/pesio-ai/be-plt-approvals/internal/service"
)

const (
	procurementManagerID = "user-001"
	financeManagerID     = "user-002"
	employeeID           = "user-005"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	store := repository.NewMemoryStore()
	identity := client.NewStaticIdentityClient(client.DefaultUsers)
	svc := service.NewApprovalWorkflowService(store, store, identity, nil, logger.Nop(), service.WithStrictApprovers(true))

	mux := http.NewServeMux()
	NewHTTPHandler(svc, identity, logger.Nop()).Register(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path, userID string, body interface{}) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, srv.URL+path, &buf)
	require.NoError(t, err)
	if userID != "" {
		req.Header.Set(UserIDHeader, userID)
	}
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func submit(t *testing.T, srv *httptest.Server, documentID string, amount float64) *repository.ApprovalWorkflow {
	t.Helper()
	resp := do(t, srv, http.MethodPost, "/api/v1/approvals/workflows", employeeID, map[string]interface{}{
		"document_id":   documentID,
		"document_type": "requisition",
		"total_amount":  amount,
		"currency":      "USD",
		"priority":      "high",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var wf repository.ApprovalWorkflow
	decode(t, resp, &wf)
	return &wf
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)

	resp := do(t, srv, http.MethodGet, "/health", "", nil)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestPreviewChain(t *testing.T) {
	srv := newTestServer(t)

	resp := do(t, srv, http.MethodPost, "/api/v1/approvals/chain", "", map[string]interface{}{
		"document_type": "invoice",
		"total_amount":  25001,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Steps []repository.ApprovalStep `json:"steps"`
	}
	decode(t, resp, &body)
	require.Len(t, body.Steps, 2)
	assert.Equal(t, service.RoleFinanceManager, body.Steps[0].ApproverRole)
	assert.Equal(t, service.RoleSystemAdministrator, body.Steps[1].ApproverRole)

	resp = do(t, srv, http.MethodPost, "/api/v1/approvals/chain", "", map[string]interface{}{"document_type": "memo"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreateWorkflow_RequiresKnownUser(t *testing.T) {
	srv := newTestServer(t)
	body := map[string]interface{}{"document_id": "REQ-1", "document_type": "requisition", "total_amount": 10, "currency": "USD"}

	resp := do(t, srv, http.MethodPost, "/api/v1/approvals/workflows", "", body)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = do(t, srv, http.MethodPost, "/api/v1/approvals/workflows", "intruder", body)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWorkflowLifecycle(t *testing.T) {
	srv := newTestServer(t)
	wf := submit(t, srv, "REQ-2001", 6000)
	assert.Equal(t, repository.WorkflowPending, wf.Status)
	require.Len(t, wf.Steps, 2)

	// Only the procurement manager sees it first.
	var pending struct {
		Workflows []*repository.ApprovalWorkflow `json:"workflows"`
		Total     int                            `json:"total"`
	}
	decode(t, do(t, srv, http.MethodGet, "/api/v1/approvals/pending", procurementManagerID, nil), &pending)
	assert.Equal(t, 1, pending.Total)
	decode(t, do(t, srv, http.MethodGet, "/api/v1/approvals/pending", financeManagerID, nil), &pending)
	assert.Equal(t, 0, pending.Total)

	// Wrong role is forbidden under strict approvers.
	resp := do(t, srv, http.MethodPost, "/api/v1/approvals/workflows/approve", financeManagerID, map[string]string{
		"workflow_id": wf.ID, "step_id": wf.Steps[0].ID,
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// Out-of-order step is a conflict.
	resp = do(t, srv, http.MethodPost, "/api/v1/approvals/workflows/approve", financeManagerID, map[string]string{
		"workflow_id": wf.ID, "step_id": wf.Steps[1].ID,
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = do(t, srv, http.MethodPost, "/api/v1/approvals/workflows/approve", procurementManagerID, map[string]string{
		"workflow_id": wf.ID, "step_id": wf.Steps[0].ID, "comments": "ok",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, wf)
	assert.Equal(t, 1, wf.CurrentStep)

	// Rejection needs a reason.
	resp = do(t, srv, http.MethodPost, "/api/v1/approvals/workflows/reject", financeManagerID, map[string]string{
		"workflow_id": wf.ID, "step_id": wf.Steps[1].ID,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, srv, http.MethodPost, "/api/v1/approvals/workflows/reject", financeManagerID, map[string]string{
		"workflow_id": wf.ID, "step_id": wf.Steps[1].ID, "comments": "exceeds budget",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, wf)
	assert.Equal(t, repository.WorkflowRejected, wf.Status)
	assert.NotNil(t, wf.CompletedDate)

	var got repository.ApprovalWorkflow
	decode(t, do(t, srv, http.MethodGet, "/api/v1/approvals/workflows/get?id="+wf.ID, "", nil), &got)
	assert.Equal(t, repository.WorkflowRejected, got.Status)

	var audit struct {
		Entries []*repository.ApprovalAuditEntry `json:"entries"`
	}
	decode(t, do(t, srv, http.MethodGet, "/api/v1/approvals/workflows/audit?id="+wf.ID, "", nil), &audit)
	assert.Len(t, audit.Entries, 3)
}

func TestListSubmittedAndMetrics(t *testing.T) {
	srv := newTestServer(t)
	wf := submit(t, srv, "REQ-3001", 1500)
	submit(t, srv, "REQ-3002", 200)

	var mine struct {
		Workflows []*repository.ApprovalWorkflow `json:"workflows"`
		Total     int                            `json:"total"`
	}
	decode(t, do(t, srv, http.MethodGet, "/api/v1/approvals/workflows", employeeID, nil), &mine)
	assert.Equal(t, 2, mine.Total)
	assert.Equal(t, wf.ID, mine.Workflows[0].ID)

	var m service.Metrics
	decode(t, do(t, srv, http.MethodGet, "/api/v1/approvals/metrics", procurementManagerID, nil), &m)
	assert.Equal(t, service.Metrics{TotalPending: 2, PendingMyApproval: 2}, m)

	decode(t, do(t, srv, http.MethodGet, "/api/v1/approvals/metrics", employeeID, nil), &m)
	assert.Equal(t, 2, m.MySubmittedPending)
}

func TestCancelWorkflow(t *testing.T) {
	srv := newTestServer(t)
	wf := submit(t, srv, "REQ-4001", 1500)

	resp := do(t, srv, http.MethodPost, "/api/v1/approvals/workflows/cancel", procurementManagerID, map[string]string{"workflow_id": wf.ID})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = do(t, srv, http.MethodPost, "/api/v1/approvals/workflows/cancel", employeeID, map[string]string{"workflow_id": wf.ID, "reason": "typo"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, wf)
	assert.Equal(t, repository.WorkflowCancelled, wf.Status)
}

func TestErrors(t *testing.T) {
	srv := newTestServer(t)

	resp := do(t, srv, http.MethodGet, "/api/v1/approvals/workflows/get?id=missing", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	var body map[string]string
	decode(t, resp, &body)
	assert.Equal(t, "NOT_FOUND", body["code"])

	resp = do(t, srv, http.MethodGet, "/api/v1/approvals/workflows/approve", procurementManagerID, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp = do(t, srv, http.MethodDelete, "/api/v1/approvals/workflows", employeeID, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestDelegateStep(t *testing.T) {
	srv := newTestServer(t)
	wf := submit(t, srv, "REQ-5001", 1500)

	resp := do(t, srv, http.MethodPost, "/api/v1/approvals/workflows/delegate", procurementManagerID, map[string]string{
		"workflow_id": wf.ID, "step_id": wf.Steps[0].ID, "delegate_to": "user-003",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, srv, http.MethodPost, "/api/v1/approvals/workflows/delegate", procurementManagerID, map[string]string{
		"workflow_id": wf.ID, "step_id": wf.Steps[0].ID, "delegate_to": "user-003", "reason": "travelling",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, wf)
	assert.Equal(t, "user-003", wf.Steps[0].ApproverUserID)

	var pending struct {
		Total int `json:"total"`
	}
	decode(t, do(t, srv, http.MethodGet, "/api/v1/approvals/pending", "user-003", nil), &pending)
	assert.Equal(t, 1, pending.Total)
	decode(t, do(t, srv, http.MethodGet, "/api/v1/approvals/pending", procurementManagerID, nil), &pending)
	assert.Equal(t, 0, pending.Total)

	resp = do(t, srv, http.MethodPost, "/api/v1/approvals/workflows/approve", "user-003", map[string]string{
		"workflow_id": wf.ID, "step_id": wf.Steps[0].ID,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, wf)
	assert.Equal(t, repository.WorkflowApproved, wf.Status)
}

func TestWriteJSON_LogsEncodeFailure(t *testing.T) {
	var buf bytes.Buffer
	h := NewHTTPHandler(nil, nil, logger.New(logger.Config{Level: "info", Environment: "production", Output: &buf}))
	rec := httptest.NewRecorder()

	h.writeJSON(rec, http.StatusOK, map[string]float64{"total_amount": math.Inf(1)})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, buf.String(), "Failed to encode response")
}
