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
	appErrors "github.com/noah-isme/registry-api/pkg/errors"
)

const auditResourceDocument = "document"

type documentStore interface {
	Create(ctx context.Context, doc *models.Document) error
	GetByID(ctx context.Context, id string) (*models.Document, error)
	GetForUpdate(ctx context.Context, id string) (*models.Document, error)
	Update(ctx context.Context, doc *models.Document) error
	UpdateStatus(ctx context.Context, id string, status models.DocumentStatus, updatedBy string) error
	SoftDelete(ctx context.Context, id, deletedBy string) error
	HardDelete(ctx context.Context, id string) error
	IsVisibleTo(ctx context.Context, id string, actor models.Actor) (bool, error)
}

type numberIssuer interface {
	Issue(ctx context.Context, configurationID string, year int, persist PersistFunc) (IssuedNumber, error)
}

type stepInspector interface {
	HasAny(ctx context.Context, documentID string) (bool, error)
	CountPending(ctx context.Context, documentID string) (int, error)
}

type auditTrail interface {
	auditRecorder
	History(ctx context.Context, resource, resourceID string, limit int) ([]models.AuditLog, error)
}

// DocumentService implements the document registry: registration, drafts,
// metadata edits, deletion and archiving.
type DocumentService struct {
	documents documentStore
	configs   configurationReader
	steps     stepInspector
	numbering numberIssuer
	tx        txRunner
	audit     auditTrail
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewDocumentService constructs the service.
func NewDocumentService(documents documentStore, configs configurationReader, steps stepInspector, numbering numberIssuer, tx txRunner, audit auditTrail, metrics *MetricsService, logger *zap.Logger) *DocumentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DocumentService{
		documents: documents,
		configs:   configs,
		steps:     steps,
		numbering: numbering,
		tx:        tx,
		audit:     audit,
		metrics:   metrics,
		validator: newValidator(),
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Register validates and numbers a document in one transaction. With Draft set
// the document is stored unnumbered instead.
func (s *DocumentService) Register(ctx context.Context, req dto.CreateDocumentRequest, actor models.Actor) (*models.Document, error) {
	doc, err := s.buildDocument(req, actor)
	if err != nil {
		return nil, err
	}
	if req.Draft {
		return s.createDraft(ctx, doc, actor)
	}

	_, err = s.numbering.Issue(ctx, doc.ConfigurationID, doc.RegistrationYear, func(ctx context.Context, issued IssuedNumber) error {
		if err := checkConfigurationScope(issued.Configuration, doc.UnitID); err != nil {
			return err
		}
		s.stampNumber(doc, issued)
		if err := s.documents.Create(ctx, doc); err != nil {
			return persistError(err, "failed to store document")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordStatusChange(models.DocumentStatusRegistered)
	s.logger.Info("document registered",
		zap.String("document_id", doc.ID),
		zap.String("configuration_id", doc.ConfigurationID),
		zap.Int64("number", *doc.RegistrationNumber),
		zap.Int("year", doc.RegistrationYear),
	)
	s.record(ctx, actor, models.AuditActionDocumentRegister, doc.ID, nil, doc)
	return doc, nil
}

// CreateDraft stores an unnumbered draft.
func (s *DocumentService) CreateDraft(ctx context.Context, req dto.CreateDocumentRequest, actor models.Actor) (*models.Document, error) {
	doc, err := s.buildDocument(req, actor)
	if err != nil {
		return nil, err
	}
	return s.createDraft(ctx, doc, actor)
}

func (s *DocumentService) createDraft(ctx context.Context, doc *models.Document, actor models.Actor) (*models.Document, error) {
	cfg, err := s.loadConfiguration(ctx, doc.ConfigurationID)
	if err != nil {
		return nil, err
	}
	if err := checkConfigurationScope(cfg, doc.UnitID); err != nil {
		return nil, err
	}
	doc.Status = models.DocumentStatusDraft
	if err := s.documents.Create(ctx, doc); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store draft")
	}
	s.record(ctx, actor, models.AuditActionDocumentDraft, doc.ID, nil, doc)
	return doc, nil
}

// RegisterDraft numbers an existing draft.
func (s *DocumentService) RegisterDraft(ctx context.Context, id string, actor models.Actor) (*models.Document, error) {
	draft, err := s.loadVisible(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	if draft.Status != models.DocumentStatusDraft {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "only drafts can be registered")
	}
	if !canEdit(draft, actor) {
		return nil, appErrors.ErrForbidden
	}

	var registered *models.Document
	_, err = s.numbering.Issue(ctx, draft.ConfigurationID, draft.RegistrationYear, func(ctx context.Context, issued IssuedNumber) error {
		doc, err := s.lock(ctx, id)
		if err != nil {
			return err
		}
		if doc.Status != models.DocumentStatusDraft {
			return appErrors.Clone(appErrors.ErrInvalidTransition, "only drafts can be registered")
		}
		if doc.ConfigurationID != draft.ConfigurationID || doc.RegistrationYear != draft.RegistrationYear {
			return appErrors.Clone(appErrors.ErrConflict, "draft changed while registering, retry the request")
		}
		if err := checkConfigurationScope(issued.Configuration, doc.UnitID); err != nil {
			return err
		}
		s.stampNumber(doc, issued)
		updatedBy := actor.UserID
		doc.UpdatedBy = &updatedBy
		if err := s.documents.Update(ctx, doc); err != nil {
			return persistError(err, "failed to register draft")
		}
		registered = doc
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordStatusChange(models.DocumentStatusRegistered)
	s.record(ctx, actor, models.AuditActionDocumentRegister, id, draft, registered)
	return registered, nil
}

// Get returns a document visible to the actor.
func (s *DocumentService) Get(ctx context.Context, id string, actor models.Actor) (*models.Document, error) {
	return s.loadVisible(ctx, id, actor)
}

// Update applies a partial metadata edit. Registration number and year never
// change once assigned.
func (s *DocumentService) Update(ctx context.Context, id string, req dto.UpdateDocumentRequest, actor models.Actor) (*models.Document, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid document payload")
	}

	var before, after models.Document
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		doc, err := s.lockVisible(ctx, id, actor)
		if err != nil {
			return err
		}
		if doc.Status.Terminal() {
			return appErrors.Clone(appErrors.ErrInvalidTransition, "archived or cancelled documents cannot be edited")
		}
		if !canEdit(doc, actor) {
			return appErrors.ErrForbidden
		}
		before = *doc
		if err := s.applyUpdate(ctx, doc, req); err != nil {
			return err
		}
		updatedBy := actor.UserID
		doc.UpdatedBy = &updatedBy
		if err := s.documents.Update(ctx, doc); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update document")
		}
		after = *doc
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.record(ctx, actor, models.AuditActionDocumentUpdate, id, before, after)
	return &after, nil
}

// Delete hard deletes drafts that never had steps and soft deletes everything
// else. It reports whether the row was removed.
func (s *DocumentService) Delete(ctx context.Context, id string, actor models.Actor) (bool, error) {
	hard := false
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		doc, err := s.lockVisible(ctx, id, actor)
		if err != nil {
			return err
		}
		if !canEdit(doc, actor) {
			return appErrors.ErrForbidden
		}
		if doc.Status == models.DocumentStatusDraft {
			hasSteps, err := s.steps.HasAny(ctx, id)
			if err != nil {
				return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to inspect workflow steps")
			}
			hard = !hasSteps
		}
		if hard {
			err = s.documents.HardDelete(ctx, id)
		} else {
			err = s.documents.SoftDelete(ctx, id, actor.UserID)
		}
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.ErrNotFound
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete document")
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	s.record(ctx, actor, models.AuditActionDocumentDelete, id, nil, map[string]bool{"hard": hard})
	return hard, nil
}

// Archive closes a registered or resolved document that has no open branches.
func (s *DocumentService) Archive(ctx context.Context, id string, actor models.Actor) (*models.Document, error) {
	var archived *models.Document
	var previous models.DocumentStatus
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		doc, err := s.lockVisible(ctx, id, actor)
		if err != nil {
			return err
		}
		if !canEdit(doc, actor) {
			return appErrors.ErrForbidden
		}
		if doc.Status != models.DocumentStatusResolved && doc.Status != models.DocumentStatusRegistered {
			return appErrors.Clone(appErrors.ErrInvalidTransition, "only registered or resolved documents can be archived")
		}
		pending, err := s.steps.CountPending(ctx, id)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to inspect workflow steps")
		}
		if pending > 0 {
			return appErrors.Clone(appErrors.ErrInvalidTransition, "document still has pending steps")
		}
		if err := s.documents.UpdateStatus(ctx, id, models.DocumentStatusArchived, actor.UserID); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to archive document")
		}
		previous = doc.Status
		doc.Status = models.DocumentStatusArchived
		archived = doc
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.RecordStatusChange(models.DocumentStatusArchived)
	s.record(ctx, actor, models.AuditActionDocumentArchive, id,
		map[string]models.DocumentStatus{"status": previous},
		map[string]models.DocumentStatus{"status": models.DocumentStatusArchived})
	return archived, nil
}

// History returns the audit trail of a visible document.
func (s *DocumentService) History(ctx context.Context, id string, actor models.Actor) ([]models.AuditLog, error) {
	if _, err := s.loadVisible(ctx, id, actor); err != nil {
		return nil, err
	}
	if s.audit == nil {
		return []models.AuditLog{}, nil
	}
	logs, err := s.audit.History(ctx, auditResourceDocument, id, 0)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load document history")
	}
	return logs, nil
}

func (s *DocumentService) buildDocument(req dto.CreateDocumentRequest, actor models.Actor) (*models.Document, error) {
	if strings.TrimSpace(req.UnitID) == "" {
		req.UnitID = actor.UnitID
	}
	req.Subject = strings.TrimSpace(req.Subject)
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid document payload")
	}
	if req.UnitID == "" {
		return nil, appErrors.Validation("invalid document payload", map[string]string{"unitId": "is required"})
	}
	if !actor.IsAdmin() && req.UnitID != actor.UnitID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "documents can only be created for your own unit")
	}

	year := req.RegistrationYear
	if year == 0 {
		year = s.now().Year()
	}
	priority := models.DocumentPriority(req.Priority)
	if priority == "" {
		priority = models.PriorityNormal
	}
	return &models.Document{
		UnitID:               req.UnitID,
		ConfigurationID:      req.ConfigurationID,
		DocumentType:         models.DocumentType(req.DocumentType),
		RegistrationYear:     year,
		Subject:              req.Subject,
		Content:              req.Content,
		Correspondent:        strings.TrimSpace(req.Correspondent),
		ExternalReference:    strings.TrimSpace(req.ExternalReference),
		Priority:             priority,
		DueDate:              req.DueDate,
		AssignedUserID:       trimmedOrNil(req.AssignedUserID),
		AssignedDepartmentID: trimmedOrNil(req.AssignedDepartmentID),
		CreatedBy:            actor.UserID,
	}, nil
}

func (s *DocumentService) applyUpdate(ctx context.Context, doc *models.Document, req dto.UpdateDocumentRequest) error {
	details := map[string]string{}
	if req.RegistrationNumber != nil && (doc.RegistrationNumber == nil || *req.RegistrationNumber != *doc.RegistrationNumber) {
		details["registrationNumber"] = "is immutable"
	}
	if req.RegistrationYear != nil && *req.RegistrationYear != doc.RegistrationYear && doc.Registered() {
		details["registrationYear"] = "is immutable once registered"
	}
	if req.ConfigurationID != nil && *req.ConfigurationID != doc.ConfigurationID && doc.Registered() {
		details["configurationId"] = "is immutable once registered"
	}
	if req.Subject != nil && strings.TrimSpace(*req.Subject) == "" {
		details["subject"] = "is required"
	}
	if len(details) > 0 {
		return appErrors.Validation("invalid document update", details)
	}

	if req.ConfigurationID != nil && *req.ConfigurationID != doc.ConfigurationID {
		cfg, err := s.loadConfiguration(ctx, *req.ConfigurationID)
		if err != nil {
			return err
		}
		if err := checkConfigurationScope(cfg, doc.UnitID); err != nil {
			return err
		}
		doc.ConfigurationID = cfg.ID
	}
	if req.RegistrationYear != nil {
		doc.RegistrationYear = *req.RegistrationYear
	}
	if req.DocumentType != nil {
		doc.DocumentType = models.DocumentType(*req.DocumentType)
	}
	if req.Subject != nil {
		doc.Subject = strings.TrimSpace(*req.Subject)
	}
	if req.Content != nil {
		doc.Content = *req.Content
	}
	if req.Correspondent != nil {
		doc.Correspondent = strings.TrimSpace(*req.Correspondent)
	}
	if req.ExternalReference != nil {
		doc.ExternalReference = strings.TrimSpace(*req.ExternalReference)
	}
	if req.Priority != nil {
		doc.Priority = models.DocumentPriority(*req.Priority)
	}
	if req.DueDate != nil {
		doc.DueDate = req.DueDate
	}
	if req.AssignedUserID != nil {
		doc.AssignedUserID = trimmedOrNil(req.AssignedUserID)
	}
	if req.AssignedDepartmentID != nil {
		doc.AssignedDepartmentID = trimmedOrNil(req.AssignedDepartmentID)
	}
	return nil
}

func (s *DocumentService) stampNumber(doc *models.Document, issued IssuedNumber) {
	number := issued.Number
	scope := issued.ScopeYear
	now := s.now()
	doc.RegistrationNumber = &number
	doc.NumberScopeYear = &scope
	doc.Status = models.DocumentStatusRegistered
	doc.RegisteredAt = &now
}

func (s *DocumentService) loadConfiguration(ctx context.Context, id string) (*models.RegisterConfiguration, error) {
	cfg, err := s.configs.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrConfigurationNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load register configuration")
	}
	if !cfg.Active {
		return nil, appErrors.Clone(appErrors.ErrConfigurationNotFound, "register configuration is inactive")
	}
	return cfg, nil
}

func (s *DocumentService) loadVisible(ctx context.Context, id string, actor models.Actor) (*models.Document, error) {
	doc, err := s.documents.GetByID(ctx, id)
	if err != nil {
		return nil, documentLoadError(err)
	}
	if err := s.ensureVisible(ctx, doc, actor); err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *DocumentService) lock(ctx context.Context, id string) (*models.Document, error) {
	doc, err := s.documents.GetForUpdate(ctx, id)
	if err != nil {
		return nil, documentLoadError(err)
	}
	return doc, nil
}

func (s *DocumentService) lockVisible(ctx context.Context, id string, actor models.Actor) (*models.Document, error) {
	doc, err := s.lock(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.ensureVisible(ctx, doc, actor); err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *DocumentService) ensureVisible(ctx context.Context, doc *models.Document, actor models.Actor) error {
	return ensureDocumentVisible(ctx, s.documents, doc, actor)
}

func (s *DocumentService) record(ctx context.Context, actor models.Actor, action, id string, oldValues, newValues interface{}) {
	if s.audit == nil {
		return
	}
	s.audit.Record(ctx, newAuditEntry(actor, action, auditResourceDocument, id, oldValues, newValues))
}

type visibilityChecker interface {
	IsVisibleTo(ctx context.Context, id string, actor models.Actor) (bool, error)
}

// ensureDocumentVisible hides documents the actor may not read behind NOT_FOUND.
func ensureDocumentVisible(ctx context.Context, checker visibilityChecker, doc *models.Document, actor models.Actor) error {
	if actor.IsAdmin() || doc.CreatedBy == actor.UserID || (actor.UnitID != "" && doc.UnitID == actor.UnitID) {
		return nil
	}
	visible, err := checker.IsVisibleTo(ctx, doc.ID, actor)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check document access")
	}
	if !visible {
		return appErrors.ErrNotFound
	}
	return nil
}

// canEdit reports whether the actor may change document metadata.
func canEdit(doc *models.Document, actor models.Actor) bool {
	return actor.IsAdmin() || doc.CreatedBy == actor.UserID || (actor.UnitID != "" && doc.UnitID == actor.UnitID)
}

func checkConfigurationScope(cfg *models.RegisterConfiguration, unitID string) error {
	if cfg.UnitID != nil && *cfg.UnitID != unitID {
		return appErrors.Validation("register belongs to another unit", map[string]string{"configurationId": "register is not available for this unit"})
	}
	return nil
}

func documentLoadError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.ErrNotFound
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load document")
}

// persistError keeps numbering conflicts raw so the registration can be retried.
func persistError(err error, message string) error {
	if isNumberingConflict(err) {
		return err
	}
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return err
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}
