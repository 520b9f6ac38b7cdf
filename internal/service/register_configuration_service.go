package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/registry-api/internal/dto"
	"github.com/noah-isme/registry-api/internal/models"
	appErrors "github.com/noah-isme/registry-api/pkg/errors"
)

const auditResourceRegisterConfiguration = "register_configuration"

type registerConfigurationStore interface {
	List(ctx context.Context, filter models.RegisterConfigurationFilter) ([]models.RegisterConfiguration, error)
	GetByID(ctx context.Context, id string) (*models.RegisterConfiguration, error)
	Create(ctx context.Context, cfg *models.RegisterConfiguration) error
	Update(ctx context.Context, cfg *models.RegisterConfiguration) error
	Deactivate(ctx context.Context, id, updatedBy string) error
	Delete(ctx context.Context, id string) error
	IsReferenced(ctx context.Context, id string) (bool, error)
}

type counterInspector interface {
	HasCounter(ctx context.Context, configurationID string) (bool, error)
}

type auditRecorder interface {
	Record(ctx context.Context, entry *models.AuditLog)
}

// RegisterConfigurationService manages the numbering policies documents register against.
type RegisterConfigurationService struct {
	repo      registerConfigurationStore
	counters  counterInspector
	tx        txRunner
	cache     *CacheService
	audit     auditRecorder
	validator *validator.Validate
	logger    *zap.Logger
}

// NewRegisterConfigurationService constructs the service.
func NewRegisterConfigurationService(repo registerConfigurationStore, counters counterInspector, tx txRunner, cache *CacheService, audit auditRecorder, logger *zap.Logger) *RegisterConfigurationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if audit == nil {
		audit = noopAuditRecorder{}
	}
	return &RegisterConfigurationService{
		repo:      repo,
		counters:  counters,
		tx:        tx,
		cache:     cache,
		audit:     audit,
		validator: newValidator(),
		logger:    logger,
	}
}

// List returns configurations. Non-admins see the active registers of their unit
// plus the organization wide ones.
func (s *RegisterConfigurationService) List(ctx context.Context, query dto.RegisterConfigurationQuery, actor models.Actor) ([]models.RegisterConfiguration, error) {
	filter := models.RegisterConfigurationFilter{UnitID: strings.TrimSpace(query.UnitID), ActiveOnly: query.ActiveOnly, IncludeGlobal: true}
	if !actor.IsAdmin() {
		filter.UnitID = actor.UnitID
		filter.ActiveOnly = true
	}

	key := registerConfigurationListKey(filter.UnitID, filter.ActiveOnly)
	var cached []models.RegisterConfiguration
	if s.cache.Get(ctx, key, &cached) {
		return cached, nil
	}
	items, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list register configurations")
	}
	if items == nil {
		items = []models.RegisterConfiguration{}
	}
	s.cache.Set(ctx, key, items, 0)
	return items, nil
}

// Get returns one configuration.
func (s *RegisterConfigurationService) Get(ctx context.Context, id string, actor models.Actor) (*models.RegisterConfiguration, error) {
	var cfg models.RegisterConfiguration
	if !s.cache.Get(ctx, registerConfigurationCacheKey(id), &cfg) {
		loaded, err := s.load(ctx, id)
		if err != nil {
			return nil, err
		}
		cfg = *loaded
		s.cache.Set(ctx, registerConfigurationCacheKey(id), cfg, 0)
	}
	if !actor.IsAdmin() && cfg.UnitID != nil && *cfg.UnitID != actor.UnitID {
		return nil, appErrors.ErrConfigurationNotFound
	}
	return &cfg, nil
}

// Create stores a new configuration.
func (s *RegisterConfigurationService) Create(ctx context.Context, req dto.CreateRegisterConfigurationRequest, actor models.Actor) (*models.RegisterConfiguration, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid register configuration payload")
	}
	startingNumber := req.StartingNumber
	if startingNumber == 0 {
		startingNumber = 1
	}
	cfg := &models.RegisterConfiguration{
		Name:           strings.TrimSpace(req.Name),
		UnitID:         trimmedOrNil(req.UnitID),
		Prefix:         strings.TrimSpace(req.Prefix),
		StartingNumber: startingNumber,
		ResetsAnnually: req.ResetsAnnually,
		Active:         true,
		CreatedBy:      actor.UserID,
	}
	if err := s.repo.Create(ctx, cfg); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create register configuration")
	}
	s.cache.InvalidatePattern(ctx, registerConfigurationListPattern())
	s.audit.Record(ctx, newAuditEntry(actor, models.AuditActionConfigCreate, auditResourceRegisterConfiguration, cfg.ID, nil, cfg))
	return cfg, nil
}

// Update replaces editable fields. The starting number is frozen once a number
// has been issued from the register.
func (s *RegisterConfigurationService) Update(ctx context.Context, id string, req dto.UpdateRegisterConfigurationRequest, actor models.Actor) (*models.RegisterConfiguration, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid register configuration payload")
	}
	var before, after models.RegisterConfiguration
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		cfg, err := s.load(ctx, id)
		if err != nil {
			return err
		}
		before = *cfg

		if req.StartingNumber != cfg.StartingNumber || req.ResetsAnnually != cfg.ResetsAnnually {
			issued, err := s.counters.HasCounter(ctx, id)
			if err != nil {
				return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to inspect register counters")
			}
			if issued {
				return appErrors.Validation("register already issued numbers", map[string]string{
					"startingNumber": "cannot change after numbers were issued",
					"resetsAnnually": "cannot change after numbers were issued",
				})
			}
		}

		cfg.Name = strings.TrimSpace(req.Name)
		cfg.UnitID = trimmedOrNil(req.UnitID)
		cfg.Prefix = strings.TrimSpace(req.Prefix)
		cfg.StartingNumber = req.StartingNumber
		cfg.ResetsAnnually = req.ResetsAnnually
		if req.Active != nil {
			cfg.Active = *req.Active
		}
		updatedBy := actor.UserID
		cfg.UpdatedBy = &updatedBy
		if err := s.repo.Update(ctx, cfg); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.ErrConfigurationNotFound
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update register configuration")
		}
		after = *cfg
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, id)
	s.audit.Record(ctx, newAuditEntry(actor, models.AuditActionConfigUpdate, auditResourceRegisterConfiguration, id, before, after))
	return &after, nil
}

// Delete removes an unreferenced configuration or deactivates a referenced one.
// It reports whether the row was removed.
func (s *RegisterConfigurationService) Delete(ctx context.Context, id string, actor models.Actor) (bool, error) {
	removed := false
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.load(ctx, id); err != nil {
			return err
		}
		referenced, err := s.repo.IsReferenced(ctx, id)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to inspect register usage")
		}
		if referenced {
			err = s.repo.Deactivate(ctx, id, actor.UserID)
		} else {
			err = s.repo.Delete(ctx, id)
			removed = err == nil
		}
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.ErrConfigurationNotFound
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete register configuration")
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	s.invalidate(ctx, id)
	s.audit.Record(ctx, newAuditEntry(actor, models.AuditActionConfigDelete, auditResourceRegisterConfiguration, id, nil, map[string]bool{"removed": removed}))
	return removed, nil
}

func (s *RegisterConfigurationService) load(ctx context.Context, id string) (*models.RegisterConfiguration, error) {
	cfg, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrConfigurationNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load register configuration")
	}
	return cfg, nil
}

func (s *RegisterConfigurationService) invalidate(ctx context.Context, id string) {
	s.cache.Invalidate(ctx, registerConfigurationCacheKey(id))
	s.cache.InvalidatePattern(ctx, registerConfigurationListPattern())
}

func trimmedOrNil(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func optionalString(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
