package repository

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/pesio-ai/be-plt-approvals/internal/database"
	"github.com/pesio-ai/be-plt-approvals/internal/errors"
)

const uniqueViolation = "23505"

// ApprovalWorkflowRepository is the Postgres WorkflowStore. Workflow and step
// writes always happen together in a single transaction.
type ApprovalWorkflowRepository struct {
	db database.Pool
}

// NewApprovalWorkflowRepository creates a new ApprovalWorkflowRepository.
func NewApprovalWorkflowRepository(db database.Pool) *ApprovalWorkflowRepository {
	return &ApprovalWorkflowRepository{db: db}
}

// Create inserts a workflow and its steps in one transaction.
func (r *ApprovalWorkflowRepository) Create(ctx context.Context, wf *ApprovalWorkflow) error {
	return database.InTx(ctx, r.db, func(tx pgx.Tx) error {
		wfQuery := `
			INSERT INTO approval_workflows
			    (id, document_id, document_type, requestor_id, requestor_name,
			     total_amount, currency, current_step, status, priority,
			     business_justification, created_date, completed_date, version)
			VALUES ($1, $2, $3, $4, $5,
			        $6, $7, $8, $9, $10,
			        NULLIF($11, ''), $12, $13, $14)
		`

		_, err := tx.Exec(ctx, wfQuery,
			wf.ID,
			wf.DocumentID,
			wf.DocumentType,
			wf.RequestorID,
			wf.RequestorName,
			wf.TotalAmount,
			wf.Currency,
			wf.CurrentStep,
			wf.Status,
			wf.Priority,
			wf.BusinessJustification,
			wf.CreatedDate,
			wf.CompletedDate,
			wf.Version,
		)
		if err != nil {
			var pgErr *pgconn.PgError
			if stderrors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
				return errors.New(errors.ErrCodeConflict,
					fmt.Sprintf("document %s already has a pending approval workflow", wf.DocumentID))
			}
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to create approval workflow")
		}

		stepQuery := `
			INSERT INTO approval_steps
			    (id, workflow_id, step_order, approver_role, approver_user_id,
			     approver_name, approved_date, comments, status)
			VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''),
			        NULLIF($6, ''), $7, NULLIF($8, ''), $9)
		`

		for _, step := range wf.Steps {
			_, err := tx.Exec(ctx, stepQuery,
				step.ID,
				wf.ID,
				step.Order,
				step.ApproverRole,
				step.ApproverUserID,
				step.ApproverName,
				step.ApprovedDate,
				step.Comments,
				step.Status,
			)
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeInternal, "failed to create approval step")
			}
		}

		return nil
	})
}

// GetByID retrieves a workflow and its steps.
// Ids that are not UUIDs cannot exist in the table and are reported as not found.
func (r *ApprovalWorkflowRepository) GetByID(ctx context.Context, id string) (*ApprovalWorkflow, error) {
	if !isUUID(id) {
		return nil, errors.NotFound("approval_workflow", id)
	}
	query := workflowSelect + ` WHERE id = $1`

	wf, err := scanWorkflow(r.db.QueryRow(ctx, query, id))
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NotFound("approval_workflow", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get approval workflow")
	}

	steps, err := r.stepsFor(ctx, []string{wf.ID})
	if err != nil {
		return nil, err
	}
	wf.Steps = steps[wf.ID]
	return wf, nil
}

// List returns workflows matching filter, oldest first.
func (r *ApprovalWorkflowRepository) List(ctx context.Context, filter WorkflowFilter) ([]*ApprovalWorkflow, error) {
	query := workflowSelect + `
		WHERE ($1 = '' OR status = $1)
		  AND ($2 = '' OR requestor_id = $2)
		  AND ($3 = '' OR document_id = $3)
		ORDER BY created_date ASC, id ASC
	`

	rows, err := r.db.Query(ctx, query, string(filter.Status), filter.RequestorID, filter.DocumentID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list approval workflows")
	}
	defer rows.Close()

	var (
		workflows []*ApprovalWorkflow
		ids       []string
	)
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan approval workflow")
		}
		workflows = append(workflows, wf)
		ids = append(ids, wf.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list approval workflows")
	}
	if len(ids) == 0 {
		return workflows, nil
	}

	steps, err := r.stepsFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, wf := range workflows {
		wf.Steps = steps[wf.ID]
	}
	return workflows, nil
}

// Update writes workflow state and all step outcomes, guarded by version.
func (r *ApprovalWorkflowRepository) Update(ctx context.Context, wf *ApprovalWorkflow, expectedVersion int) error {
	if !isUUID(wf.ID) {
		return errors.NotFound("approval_workflow", wf.ID)
	}
	return database.InTx(ctx, r.db, func(tx pgx.Tx) error {
		query := `
			UPDATE approval_workflows
			SET current_step   = $3,
			    status         = $4,
			    completed_date = $5,
			    version        = version + 1
			WHERE id = $1 AND version = $2
			RETURNING version
		`

		var newVersion int
		err := tx.QueryRow(ctx, query, wf.ID, expectedVersion, wf.CurrentStep, wf.Status, wf.CompletedDate).Scan(&newVersion)
		if stderrors.Is(err, pgx.ErrNoRows) {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM approval_workflows WHERE id = $1)`, wf.ID).Scan(&exists); err != nil {
				return errors.Wrap(err, errors.ErrCodeInternal, "failed to check approval workflow")
			}
			if !exists {
				return errors.NotFound("approval_workflow", wf.ID)
			}
			return errors.New(errors.ErrCodeConflict,
				fmt.Sprintf("approval workflow %s was modified concurrently", wf.ID))
		}
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to update approval workflow")
		}

		stepQuery := `
			UPDATE approval_steps
			SET approver_user_id = NULLIF($2, ''),
			    approver_name    = NULLIF($3, ''),
			    approved_date    = $4,
			    comments         = NULLIF($5, ''),
			    status           = $6,
			    approver_role    = NULLIF($7, '')
			WHERE id = $1
		`
		for _, step := range wf.Steps {
			if _, err := tx.Exec(ctx, stepQuery,
				step.ID,
				step.ApproverUserID,
				step.ApproverName,
				step.ApprovedDate,
				step.Comments,
				step.Status,
				step.ApproverRole,
			); err != nil {
				return errors.Wrap(err, errors.ErrCodeInternal, "failed to update approval step")
			}
		}

		wf.Version = newVersion
		return nil
	})
}

// ── scan helpers ──────────────────────────────────────────────────────────────

const workflowSelect = `
	SELECT id, document_id, document_type, requestor_id, requestor_name,
	       total_amount::float8, currency, current_step, status, priority,
	       COALESCE(business_justification, ''), created_date, completed_date, version
	FROM approval_workflows
`

func isUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkflow(row rowScanner) (*ApprovalWorkflow, error) {
	wf := &ApprovalWorkflow{}
	err := row.Scan(
		&wf.ID,
		&wf.DocumentID,
		&wf.DocumentType,
		&wf.RequestorID,
		&wf.RequestorName,
		&wf.TotalAmount,
		&wf.Currency,
		&wf.CurrentStep,
		&wf.Status,
		&wf.Priority,
		&wf.BusinessJustification,
		&wf.CreatedDate,
		&wf.CompletedDate,
		&wf.Version,
	)
	if err != nil {
		return nil, err
	}
	return wf, nil
}

// stepsFor loads the steps of several workflows, grouped by workflow id and
// ordered by step order.
func (r *ApprovalWorkflowRepository) stepsFor(ctx context.Context, workflowIDs []string) (map[string][]*ApprovalStep, error) {
	query := `
		SELECT workflow_id, id, step_order,
		       COALESCE(approver_role, ''), COALESCE(approver_user_id, ''),
		       COALESCE(approver_name, ''), approved_date,
		       COALESCE(comments, ''), status
		FROM approval_steps
		WHERE workflow_id = ANY($1::uuid[])
		ORDER BY workflow_id, step_order ASC
	`

	rows, err := r.db.Query(ctx, query, workflowIDs)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get approval steps")
	}
	defer rows.Close()

	out := make(map[string][]*ApprovalStep, len(workflowIDs))
	for rows.Next() {
		var workflowID string
		s := &ApprovalStep{}
		err := rows.Scan(
			&workflowID,
			&s.ID,
			&s.Order,
			&s.ApproverRole,
			&s.ApproverUserID,
			&s.ApproverName,
			&s.ApprovedDate,
			&s.Comments,
			&s.Status,
		)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan approval step")
		}
		out[workflowID] = append(out[workflowID], s)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get approval steps")
	}
	return out, nil
}
