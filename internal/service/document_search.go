package service

import (
	"context"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/registry-api/internal/dto"
	"github.com/noah-isme/registry-api/internal/models"
	appErrors "github.com/noah-isme/registry-api/pkg/errors"
)

type documentSearcher interface {
	Search(ctx context.Context, filter models.DocumentFilter) ([]models.Document, error)
	Count(ctx context.Context, filter models.DocumentFilter) (int, error)
}

// SearchConfig caps pagination.
type SearchConfig struct {
	DefaultPageSize int
	MaxPageSize     int
}

// DocumentSearchService is the read side over registered documents.
type DocumentSearchService struct {
	repo      documentSearcher
	cfg       SearchConfig
	validator *validator.Validate
}

// NewDocumentSearchService constructs the service.
func NewDocumentSearchService(repo documentSearcher, cfg SearchConfig) *DocumentSearchService {
	if cfg.DefaultPageSize <= 0 {
		cfg.DefaultPageSize = 20
	}
	if cfg.MaxPageSize <= 0 {
		cfg.MaxPageSize = 100
	}
	if cfg.DefaultPageSize > cfg.MaxPageSize {
		cfg.DefaultPageSize = cfg.MaxPageSize
	}
	return &DocumentSearchService{repo: repo, cfg: cfg, validator: newValidator()}
}

// Search returns one page of matching documents visible to the actor and the total count.
func (s *DocumentSearchService) Search(ctx context.Context, req dto.SearchDocumentsRequest, actor models.Actor) ([]models.Document, *models.Pagination, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, nil, validationError(err, "invalid search filter")
	}
	if req.CreatedFrom != nil && req.CreatedTo != nil && req.CreatedTo.Before(*req.CreatedFrom) {
		return nil, nil, appErrors.Validation("invalid search filter", map[string]string{"createdTo": "must not be before createdFrom"})
	}
	filter := s.filterFrom(req, actor)

	var (
		docs  []models.Document
		total int
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		var err error
		docs, err = s.repo.Search(groupCtx, filter)
		return err
	})
	group.Go(func() error {
		var err error
		total, err = s.repo.Count(groupCtx, filter)
		return err
	})
	if err := group.Wait(); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to search documents")
	}
	if docs == nil {
		docs = []models.Document{}
	}
	return docs, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

func (s *DocumentSearchService) filterFrom(req dto.SearchDocumentsRequest, actor models.Actor) models.DocumentFilter {
	filter := models.DocumentFilter{
		UnitID:             req.UnitID,
		ConfigurationID:    req.ConfigurationID,
		RegistrationYear:   req.RegistrationYear,
		RegistrationNumber: req.RegistrationNumber,
		CreatedFrom:        req.CreatedFrom,
		CreatedTo:          req.CreatedTo,
		Text:               req.Text,
		Page:               req.Page,
		PageSize:           req.PageSize,
		SortBy:             req.SortBy,
		SortOrder:          req.SortOrder,
	}
	for _, t := range req.Types {
		filter.Types = append(filter.Types, models.DocumentType(t))
	}
	for _, st := range req.Statuses {
		filter.Statuses = append(filter.Statuses, models.DocumentStatus(st))
	}
	for _, p := range req.Priorities {
		filter.Priorities = append(filter.Priorities, models.DocumentPriority(p))
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 {
		filter.PageSize = s.cfg.DefaultPageSize
	}
	if filter.PageSize > s.cfg.MaxPageSize {
		filter.PageSize = s.cfg.MaxPageSize
	}
	if !actor.IsAdmin() {
		visibleTo := actor
		filter.VisibleTo = &visibleTo
	}
	return filter
}
