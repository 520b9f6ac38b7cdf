package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/noah-isme/registry-api/internal/dto"
	"github.com/noah-isme/registry-api/internal/models"
	appErrors "github.com/noah-isme/registry-api/pkg/errors"
)

// Cancel applies a cancellation to the whole document or to the actor's own branch.
func (s *WorkflowService) Cancel(ctx context.Context, documentID string, req dto.CancelDocumentRequest, actor models.Actor) (*dto.CancelResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid cancellation payload")
	}
	if req.CancelAll {
		return s.CancelAll(ctx, documentID, req.Notes, actor)
	}
	return s.CancelOwnBranch(ctx, documentID, req.Notes, actor)
}

// CancelAll closes every pending step as cancelled and forces the document to
// cancelled. Only the creator of the document may do this.
func (s *WorkflowService) CancelAll(ctx context.Context, documentID, notes string, actor models.Actor) (*dto.CancelResponse, error) {
	var cancelledSteps int64
	var previous models.DocumentStatus
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		doc, err := s.lockCancellable(ctx, documentID, actor)
		if err != nil {
			return err
		}
		if doc.CreatedBy != actor.UserID {
			return appErrors.Clone(appErrors.ErrForbidden, "only the creator can cancel the whole document")
		}
		cancelledSteps, err = s.steps.CancelPending(ctx, doc.ID, actor.UserID, optionalString(notes), s.now())
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel pending steps")
		}
		if err := s.documents.UpdateStatus(ctx, doc.ID, models.DocumentStatusCancelled, actor.UserID); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel document")
		}
		previous = doc.Status
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordStatusChange(models.DocumentStatusCancelled)
	s.logger.Info("document cancelled",
		zap.String("document_id", documentID),
		zap.String("user_id", actor.UserID),
		zap.Int64("cancelled_steps", cancelledSteps),
	)
	s.audit.Record(ctx, newAuditEntry(actor, models.AuditActionCancelAll, auditResourceDocument, documentID,
		map[string]models.DocumentStatus{"status": previous},
		map[string]interface{}{"status": models.DocumentStatusCancelled, "cancelledSteps": cancelledSteps}))
	return &dto.CancelResponse{DocumentID: documentID, CancelledAll: true, DocumentStatus: models.DocumentStatusCancelled}, nil
}

// CancelOwnBranch cancels the pending steps addressed directly to the actor and
// recomputes the document status.
func (s *WorkflowService) CancelOwnBranch(ctx context.Context, documentID, notes string, actor models.Actor) (*dto.CancelResponse, error) {
	var status models.DocumentStatus
	var cancelledSteps int64
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		doc, err := s.lockCancellable(ctx, documentID, actor)
		if err != nil {
			return err
		}
		cancelledSteps, err = s.steps.CancelPendingForUser(ctx, doc.ID, actor.UserID, optionalString(notes), s.now())
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel branch")
		}
		if cancelledSteps == 0 {
			return appErrors.ErrNoPendingSteps
		}
		status, err = s.recompute(ctx, doc, actor)
		return err
	})
	if err != nil {
		return nil, err
	}

	for i := int64(0); i < cancelledSteps; i++ {
		s.metrics.RecordStepTransition(models.StepActionCancelled)
	}
	s.audit.Record(ctx, newAuditEntry(actor, models.AuditActionCancelBranch, auditResourceDocument, documentID, nil,
		map[string]interface{}{"status": status, "cancelledSteps": cancelledSteps}))
	return &dto.CancelResponse{DocumentID: documentID, CancelledAll: false, DocumentStatus: status}, nil
}

func (s *WorkflowService) lockCancellable(ctx context.Context, documentID string, actor models.Actor) (*models.Document, error) {
	doc, err := s.lockVisible(ctx, documentID, actor)
	if err != nil {
		return nil, err
	}
	if doc.Status.Terminal() {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "document is already "+string(doc.Status))
	}
	return doc, nil
}
