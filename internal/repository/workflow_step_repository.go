package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/registry-api/internal/models"
)

const workflowStepColumns = `id, document_id, to_user_id, to_department_id, step_status, action, notes, completion_notes,
	created_by, created_at, completed_by, completed_at`

// WorkflowStepRepository persists routing branches.
type WorkflowStepRepository struct {
	db *sqlx.DB
}

// NewWorkflowStepRepository constructs the repository.
func NewWorkflowStepRepository(db *sqlx.DB) *WorkflowStepRepository {
	return &WorkflowStepRepository{db: db}
}

// Create inserts a pending step.
func (r *WorkflowStepRepository) Create(ctx context.Context, step *models.WorkflowStep) error {
	if step.ID == "" {
		step.ID = uuid.NewString()
	}
	if step.StepStatus == "" {
		step.StepStatus = models.StepStatusPending
	}
	if step.CreatedAt.IsZero() {
		step.CreatedAt = time.Now().UTC()
	}
	query := `INSERT INTO workflow_steps (` + workflowStepColumns + `)
	VALUES (:id, :document_id, :to_user_id, :to_department_id, :step_status, :action, :notes, :completion_notes,
	:created_by, :created_at, :completed_by, :completed_at)`
	if _, err := sqlx.NamedExecContext(ctx, executor(ctx, r.db), query, step); err != nil {
		return fmt.Errorf("create workflow step: %w", err)
	}
	return nil
}

// GetByID fetches a step.
func (r *WorkflowStepRepository) GetByID(ctx context.Context, id string) (*models.WorkflowStep, error) {
	query := "SELECT " + workflowStepColumns + " FROM workflow_steps WHERE id = $1"
	var step models.WorkflowStep
	if err := sqlx.GetContext(ctx, executor(ctx, r.db), &step, query, id); err != nil {
		return nil, err
	}
	return &step, nil
}

// ListByDocument returns all steps of a document in creation order.
func (r *WorkflowStepRepository) ListByDocument(ctx context.Context, documentID string) ([]models.WorkflowStep, error) {
	query := "SELECT " + workflowStepColumns + " FROM workflow_steps WHERE document_id = $1 ORDER BY created_at ASC, id ASC"
	var steps []models.WorkflowStep
	if err := sqlx.SelectContext(ctx, executor(ctx, r.db), &steps, query, documentID); err != nil {
		return nil, fmt.Errorf("list workflow steps: %w", err)
	}
	return steps, nil
}

// CompleteStepParams groups the columns written when a step terminates.
type CompleteStepParams struct {
	ID              string
	Action          models.StepAction
	CompletionNotes *string
	CompletedBy     string
	CompletedAt     time.Time
}

// Complete transitions a pending step. It returns sql.ErrNoRows when the step is
// no longer pending, which callers treat as a lost race.
func (r *WorkflowStepRepository) Complete(ctx context.Context, params CompleteStepParams) error {
	query := fmt.Sprintf(`UPDATE workflow_steps SET step_status = '%s', action = :action, completion_notes = :completion_notes,
	completed_by = :completed_by, completed_at = :completed_at WHERE id = :id AND step_status = '%s'`,
		models.StepStatusCompleted, models.StepStatusPending)
	res, err := sqlx.NamedExecContext(ctx, executor(ctx, r.db), query, map[string]interface{}{
		"id":               params.ID,
		"action":           params.Action,
		"completion_notes": params.CompletionNotes,
		"completed_by":     params.CompletedBy,
		"completed_at":     params.CompletedAt,
	})
	if err != nil {
		return fmt.Errorf("complete workflow step: %w", err)
	}
	return expectAffected(res)
}

// CancelPending cancels every pending step of the document and returns how many changed.
func (r *WorkflowStepRepository) CancelPending(ctx context.Context, documentID, cancelledBy string, notes *string, at time.Time) (int64, error) {
	query := fmt.Sprintf(`UPDATE workflow_steps SET step_status = '%s', action = '%s', completion_notes = $3,
	completed_by = $2, completed_at = $4 WHERE document_id = $1 AND step_status = '%s'`,
		models.StepStatusCompleted, models.StepActionCancelled, models.StepStatusPending)
	res, err := executor(ctx, r.db).ExecContext(ctx, query, documentID, cancelledBy, notes, at)
	if err != nil {
		return 0, fmt.Errorf("cancel pending steps: %w", err)
	}
	return res.RowsAffected()
}

// CancelPendingForUser cancels the pending steps addressed directly to the user.
func (r *WorkflowStepRepository) CancelPendingForUser(ctx context.Context, documentID, userID string, notes *string, at time.Time) (int64, error) {
	query := fmt.Sprintf(`UPDATE workflow_steps SET step_status = '%s', action = '%s', completion_notes = $3,
	completed_by = $2, completed_at = $4 WHERE document_id = $1 AND to_user_id = $2 AND step_status = '%s'`,
		models.StepStatusCompleted, models.StepActionCancelled, models.StepStatusPending)
	res, err := executor(ctx, r.db).ExecContext(ctx, query, documentID, userID, notes, at)
	if err != nil {
		return 0, fmt.Errorf("cancel own pending steps: %w", err)
	}
	return res.RowsAffected()
}

// CountPending returns the number of open branches of the document.
func (r *WorkflowStepRepository) CountPending(ctx context.Context, documentID string) (int, error) {
	var count int
	query := fmt.Sprintf("SELECT COUNT(*) FROM workflow_steps WHERE document_id = $1 AND step_status = '%s'", models.StepStatusPending)
	if err := sqlx.GetContext(ctx, executor(ctx, r.db), &count, query, documentID); err != nil {
		return 0, fmt.Errorf("count pending steps: %w", err)
	}
	return count, nil
}

// HasAny reports whether the document ever had a step.
func (r *WorkflowStepRepository) HasAny(ctx context.Context, documentID string) (bool, error) {
	var exists bool
	if err := sqlx.GetContext(ctx, executor(ctx, r.db), &exists,
		`SELECT EXISTS(SELECT 1 FROM workflow_steps WHERE document_id = $1)`, documentID); err != nil {
		return false, fmt.Errorf("check workflow steps: %w", err)
	}
	return exists, nil
}

// IsPendingRecipient reports whether the user holds an open step on the document,
// directly or through one of the given departments.
func (r *WorkflowStepRepository) IsPendingRecipient(ctx context.Context, documentID, userID string, departmentIDs []string) (bool, error) {
	args := []interface{}{documentID, models.StepStatusPending, userID}
	target := "to_user_id = $3"
	if len(departmentIDs) > 0 {
		placeholders := make([]string, len(departmentIDs))
		for i, id := range departmentIDs {
			args = append(args, id)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		target = fmt.Sprintf("(to_user_id = $3 OR to_department_id IN (%s))", strings.Join(placeholders, ","))
	}
	query := "SELECT EXISTS(SELECT 1 FROM workflow_steps WHERE document_id = $1 AND step_status = $2 AND " + target + ")"
	var exists bool
	if err := sqlx.GetContext(ctx, executor(ctx, r.db), &exists, query, args...); err != nil {
		return false, fmt.Errorf("check pending recipient: %w", err)
	}
	return exists, nil
}

// ListInbox returns pending steps addressed to the user or their departments, oldest first.
func (r *WorkflowStepRepository) ListInbox(ctx context.Context, filter models.InboxFilter) ([]models.WorkflowStep, error) {
	args := []interface{}{models.StepStatusPending, filter.UserID}
	target := "s.to_user_id = $2"
	if len(filter.DepartmentIDs) > 0 {
		placeholders := make([]string, len(filter.DepartmentIDs))
		for i, id := range filter.DepartmentIDs {
			args = append(args, id)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		target = fmt.Sprintf("(s.to_user_id = $2 OR s.to_department_id IN (%s))", strings.Join(placeholders, ","))
	}
	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	query := fmt.Sprintf(`SELECT s.id, s.document_id, s.to_user_id, s.to_department_id, s.step_status, s.action, s.notes,
	s.completion_notes, s.created_by, s.created_at, s.completed_by, s.completed_at
	FROM workflow_steps s JOIN documents d ON d.id = s.document_id AND d.deleted_at IS NULL
	WHERE s.step_status = $1 AND %s ORDER BY s.created_at ASC LIMIT %d OFFSET %d`, target, limit, offset)
	var steps []models.WorkflowStep
	if err := sqlx.SelectContext(ctx, executor(ctx, r.db), &steps, query, args...); err != nil {
		return nil, fmt.Errorf("list inbox: %w", err)
	}
	return steps, nil
}
