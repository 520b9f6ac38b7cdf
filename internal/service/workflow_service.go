package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/registry-api/internal/dto"
	"github.com/noah-isme/registry-api/internal/models"
	"github.com/noah-isme/registry-api/internal/repository"
	appErrors "github.com/noah-isme/registry-api/pkg/errors"
)

const auditResourceWorkflowStep = "workflow_step"

type workflowDocumentStore interface {
	GetByID(ctx context.Context, id string) (*models.Document, error)
	GetForUpdate(ctx context.Context, id string) (*models.Document, error)
	UpdateStatus(ctx context.Context, id string, status models.DocumentStatus, updatedBy string) error
	IsVisibleTo(ctx context.Context, id string, actor models.Actor) (bool, error)
}

type workflowStepStore interface {
	Create(ctx context.Context, step *models.WorkflowStep) error
	GetByID(ctx context.Context, id string) (*models.WorkflowStep, error)
	ListByDocument(ctx context.Context, documentID string) ([]models.WorkflowStep, error)
	Complete(ctx context.Context, params repository.CompleteStepParams) error
	CancelPending(ctx context.Context, documentID, cancelledBy string, notes *string, at time.Time) (int64, error)
	CancelPendingForUser(ctx context.Context, documentID, userID string, notes *string, at time.Time) (int64, error)
	IsPendingRecipient(ctx context.Context, documentID, userID string, departmentIDs []string) (bool, error)
	ListInbox(ctx context.Context, filter models.InboxFilter) ([]models.WorkflowStep, error)
}

type directoryLookup interface {
	DepartmentsOf(ctx context.Context, userID string) ([]string, error)
	IsMemberOfDepartment(ctx context.Context, userID, departmentID string) (bool, error)
	ValidateRecipient(ctx context.Context, userID, departmentID *string) error
}

// WorkflowService routes documents through branches of recipients, records step
// outcomes and keeps the document status in line with its branches.
type WorkflowService struct {
	documents workflowDocumentStore
	steps     workflowStepStore
	directory directoryLookup
	tx        txRunner
	audit     auditRecorder
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewWorkflowService constructs the service.
func NewWorkflowService(documents workflowDocumentStore, steps workflowStepStore, directory directoryLookup, tx txRunner, audit auditRecorder, metrics *MetricsService, logger *zap.Logger) *WorkflowService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if audit == nil {
		audit = noopAuditRecorder{}
	}
	return &WorkflowService{
		documents: documents,
		steps:     steps,
		directory: directory,
		tx:        tx,
		audit:     audit,
		metrics:   metrics,
		validator: newValidator(),
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Route creates one pending step per recipient.
func (s *WorkflowService) Route(ctx context.Context, documentID string, req dto.RouteDocumentRequest, actor models.Actor) (*dto.RouteResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid routing payload")
	}
	recipients := req.Recipients
	if req.ToUserID != nil || req.ToDepartmentID != nil {
		recipients = append([]dto.RecipientRequest{{ToUserID: req.ToUserID, ToDepartmentID: req.ToDepartmentID}}, recipients...)
	}
	if err := s.validateRecipients(ctx, recipients); err != nil {
		return nil, err
	}

	result := &dto.RouteResponse{DocumentID: documentID}
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		doc, err := s.lockVisible(ctx, documentID, actor)
		if err != nil {
			return err
		}
		if !doc.Status.Routable() {
			return appErrors.Clone(appErrors.ErrInvalidTransition, "document cannot be routed in status "+string(doc.Status))
		}
		if err := s.ensureCanRoute(ctx, doc, actor); err != nil {
			return err
		}
		steps, err := s.createSteps(ctx, doc.ID, recipients, req.Notes, actor)
		if err != nil {
			return err
		}
		status, err := s.recompute(ctx, doc, actor)
		if err != nil {
			return err
		}
		result.Steps = steps
		result.DocumentStatus = status
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, step := range result.Steps {
		s.audit.Record(ctx, newAuditEntry(actor, models.AuditActionStepRoute, auditResourceWorkflowStep, step.ID, nil, step))
	}
	return result, nil
}

// CompleteStep records the outcome of a pending step addressed to the actor.
func (s *WorkflowService) CompleteStep(ctx context.Context, stepID string, req dto.CompleteStepRequest, actor models.Actor) (*dto.StepTransitionResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid step completion payload")
	}
	action, ok := models.ParseStepAction(strings.ToLower(strings.TrimSpace(req.Action)))
	if !ok {
		return nil, appErrors.Validation("invalid step action", map[string]string{"action": "must be one of: sent, received, resolved, returned, approved, rejected"})
	}
	if action == models.StepActionCancelled {
		return nil, appErrors.Validation("invalid step action", map[string]string{"action": "use the cancel operation to cancel a branch"})
	}

	var result *dto.StepTransitionResponse
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		step, doc, err := s.lockStep(ctx, stepID, actor)
		if err != nil {
			return err
		}
		completed, err := s.complete(ctx, step, action, req.Notes, actor)
		if err != nil {
			return err
		}
		status, err := s.recompute(ctx, doc, actor)
		if err != nil {
			return err
		}
		result = &dto.StepTransitionResponse{Step: completed, DocumentStatus: status}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.RecordStepTransition(action)
	s.audit.Record(ctx, newAuditEntry(actor, models.AuditActionStepComplete, auditResourceWorkflowStep, stepID,
		map[string]models.StepStatus{"stepStatus": models.StepStatusPending}, result.Step))
	return result, nil
}

// Forward completes the actor's step as sent and routes the document onwards in
// the same transaction.
func (s *WorkflowService) Forward(ctx context.Context, stepID string, req dto.ForwardStepRequest, actor models.Actor) (*dto.RouteResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid forward payload")
	}
	if err := s.validateRecipients(ctx, req.Recipients); err != nil {
		return nil, err
	}

	var result *dto.RouteResponse
	var completed *models.WorkflowStep
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		step, doc, err := s.lockStep(ctx, stepID, actor)
		if err != nil {
			return err
		}
		if !doc.Status.Routable() {
			return appErrors.Clone(appErrors.ErrInvalidTransition, "document cannot be routed in status "+string(doc.Status))
		}
		completed, err = s.complete(ctx, step, models.StepActionSent, req.Notes, actor)
		if err != nil {
			return err
		}
		steps, err := s.createSteps(ctx, doc.ID, req.Recipients, req.Notes, actor)
		if err != nil {
			return err
		}
		status, err := s.recompute(ctx, doc, actor)
		if err != nil {
			return err
		}
		result = &dto.RouteResponse{DocumentID: doc.ID, Steps: steps, DocumentStatus: status}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.RecordStepTransition(models.StepActionSent)
	s.audit.Record(ctx, newAuditEntry(actor, models.AuditActionStepComplete, auditResourceWorkflowStep, stepID, nil, completed))
	for _, step := range result.Steps {
		s.audit.Record(ctx, newAuditEntry(actor, models.AuditActionStepRoute, auditResourceWorkflowStep, step.ID, nil, step))
	}
	return result, nil
}

// ListSteps returns every branch of a visible document.
func (s *WorkflowService) ListSteps(ctx context.Context, documentID string, actor models.Actor) ([]models.WorkflowStep, error) {
	doc, err := s.documents.GetByID(ctx, documentID)
	if err != nil {
		return nil, documentLoadError(err)
	}
	if err := ensureDocumentVisible(ctx, s.documents, doc, actor); err != nil {
		return nil, err
	}
	steps, err := s.steps.ListByDocument(ctx, documentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list workflow steps")
	}
	if steps == nil {
		steps = []models.WorkflowStep{}
	}
	return steps, nil
}

// Inbox lists pending steps addressed to the actor or to their departments.
func (s *WorkflowService) Inbox(ctx context.Context, query dto.InboxQuery, actor models.Actor) ([]models.WorkflowStep, error) {
	departments, err := s.directory.DepartmentsOf(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	steps, err := s.steps.ListInbox(ctx, models.InboxFilter{
		UserID:        actor.UserID,
		DepartmentIDs: departments,
		Limit:         query.Limit,
		Offset:        query.Offset,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load inbox")
	}
	if steps == nil {
		steps = []models.WorkflowStep{}
	}
	return steps, nil
}

// RecomputeDocumentStatus re-derives the status of a document from its steps.
func (s *WorkflowService) RecomputeDocumentStatus(ctx context.Context, documentID string, actor models.Actor) (models.DocumentStatus, error) {
	var status models.DocumentStatus
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		doc, err := s.documents.GetForUpdate(ctx, documentID)
		if err != nil {
			return documentLoadError(err)
		}
		status, err = s.recompute(ctx, doc, actor)
		return err
	})
	return status, err
}

// recompute must run inside the transaction that mutated the steps so the read
// observes the mutation.
func (s *WorkflowService) recompute(ctx context.Context, doc *models.Document, actor models.Actor) (models.DocumentStatus, error) {
	steps, err := s.steps.ListByDocument(ctx, doc.ID)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load workflow steps")
	}
	next := nextDocumentStatus(doc.Status, steps)
	if next == doc.Status {
		return next, nil
	}
	if err := s.documents.UpdateStatus(ctx, doc.ID, next, actor.UserID); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update document status")
	}
	s.logger.Debug("document status changed",
		zap.String("document_id", doc.ID),
		zap.String("from", string(doc.Status)),
		zap.String("to", string(next)),
	)
	s.metrics.RecordStatusChange(next)
	doc.Status = next
	return next, nil
}

// lockStep locks the owning document first so completion and cancellation on the
// same document serialize, then re-reads the step under that lock. Steps on
// documents the actor cannot see are reported as missing.
func (s *WorkflowService) lockStep(ctx context.Context, stepID string, actor models.Actor) (*models.WorkflowStep, *models.Document, error) {
	step, err := s.loadStep(ctx, stepID)
	if err != nil {
		return nil, nil, err
	}
	doc, err := s.lockVisible(ctx, step.DocumentID, actor)
	if err != nil {
		return nil, nil, err
	}
	if step, err = s.loadStep(ctx, stepID); err != nil {
		return nil, nil, err
	}
	if err := s.ensureRecipient(ctx, step, actor); err != nil {
		return nil, nil, err
	}
	if !step.Pending() {
		return nil, nil, appErrors.Clone(appErrors.ErrInvalidTransition, "step is already completed")
	}
	return step, doc, nil
}

func (s *WorkflowService) loadStep(ctx context.Context, stepID string) (*models.WorkflowStep, error) {
	step, err := s.steps.GetByID(ctx, stepID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load workflow step")
	}
	return step, nil
}

func (s *WorkflowService) complete(ctx context.Context, step *models.WorkflowStep, action models.StepAction, notes string, actor models.Actor) (*models.WorkflowStep, error) {
	now := s.now()
	params := repository.CompleteStepParams{
		ID:              step.ID,
		Action:          action,
		CompletionNotes: optionalString(notes),
		CompletedBy:     actor.UserID,
		CompletedAt:     now,
	}
	if err := s.steps.Complete(ctx, params); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "step is already completed")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to complete workflow step")
	}
	completedBy := actor.UserID
	step.StepStatus = models.StepStatusCompleted
	step.Action = &action
	step.CompletionNotes = params.CompletionNotes
	step.CompletedBy = &completedBy
	step.CompletedAt = &now
	return step, nil
}

func (s *WorkflowService) createSteps(ctx context.Context, documentID string, recipients []dto.RecipientRequest, notes string, actor models.Actor) ([]models.WorkflowStep, error) {
	steps := make([]models.WorkflowStep, 0, len(recipients))
	for _, recipient := range recipients {
		step := models.WorkflowStep{
			DocumentID:     documentID,
			ToUserID:       trimmedOrNil(recipient.ToUserID),
			ToDepartmentID: trimmedOrNil(recipient.ToDepartmentID),
			StepStatus:     models.StepStatusPending,
			Notes:          optionalString(notes),
			CreatedBy:      actor.UserID,
			CreatedAt:      s.now(),
		}
		if err := s.steps.Create(ctx, &step); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create workflow step")
		}
		steps = append(steps, step)
	}
	return steps, nil
}

func (s *WorkflowService) validateRecipients(ctx context.Context, recipients []dto.RecipientRequest) error {
	if len(recipients) == 0 {
		return appErrors.Validation("recipient is required", map[string]string{"toUserId": "either toUserId, toDepartmentId or recipients is required"})
	}
	for _, recipient := range recipients {
		if err := s.directory.ValidateRecipient(ctx, trimmedOrNil(recipient.ToUserID), trimmedOrNil(recipient.ToDepartmentID)); err != nil {
			return err
		}
	}
	return nil
}

// ensureCanRoute admits admins, the creator, members of the owning unit and the
// holders of a pending step on the document.
func (s *WorkflowService) ensureCanRoute(ctx context.Context, doc *models.Document, actor models.Actor) error {
	if canEdit(doc, actor) {
		return nil
	}
	departments, err := s.directory.DepartmentsOf(ctx, actor.UserID)
	if err != nil {
		return err
	}
	holder, err := s.steps.IsPendingRecipient(ctx, doc.ID, actor.UserID, departments)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check routing rights")
	}
	if !holder {
		return appErrors.Clone(appErrors.ErrForbidden, "not allowed to route this document")
	}
	return nil
}

func (s *WorkflowService) ensureRecipient(ctx context.Context, step *models.WorkflowStep, actor models.Actor) error {
	if step.AddressedTo(actor.UserID) {
		return nil
	}
	if step.ToDepartmentID != nil {
		member, err := s.directory.IsMemberOfDepartment(ctx, actor.UserID, *step.ToDepartmentID)
		if err != nil {
			return err
		}
		if member {
			return nil
		}
	}
	return appErrors.Clone(appErrors.ErrForbidden, "step is not addressed to you")
}

func (s *WorkflowService) lockVisible(ctx context.Context, documentID string, actor models.Actor) (*models.Document, error) {
	doc, err := s.documents.GetForUpdate(ctx, documentID)
	if err != nil {
		return nil, documentLoadError(err)
	}
	if err := ensureDocumentVisible(ctx, s.documents, doc, actor); err != nil {
		return nil, err
	}
	return doc, nil
}
