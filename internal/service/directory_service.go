package service

import (
	"context"

	"go.uber.org/zap"

	appErrors "github.com/noah-isme/registry-api/pkg/errors"
)

type directoryStore interface {
	IsMemberOfDepartment(ctx context.Context, userID, departmentID string) (bool, error)
	DepartmentsOf(ctx context.Context, userID string) ([]string, error)
	UserExists(ctx context.Context, userID string) (bool, error)
	DepartmentExists(ctx context.Context, departmentID string) (bool, error)
}

// DirectoryService answers membership and existence questions about the external
// user and department directory. Membership lists are cached.
type DirectoryService struct {
	store  directoryStore
	cache  *CacheService
	logger *zap.Logger
}

// NewDirectoryService constructs the service; cache may be nil.
func NewDirectoryService(store directoryStore, cache *CacheService, logger *zap.Logger) *DirectoryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DirectoryService{store: store, cache: cache, logger: logger}
}

// DepartmentsOf lists the departments of a user.
func (s *DirectoryService) DepartmentsOf(ctx context.Context, userID string) ([]string, error) {
	key := userDepartmentsCacheKey(userID)
	var cached []string
	if s.cache.Get(ctx, key, &cached) {
		return cached, nil
	}
	departments, err := s.store.DepartmentsOf(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve user departments")
	}
	s.cache.Set(ctx, key, departments, 0)
	return departments, nil
}

// IsMemberOfDepartment reports whether the user belongs to the department.
func (s *DirectoryService) IsMemberOfDepartment(ctx context.Context, userID, departmentID string) (bool, error) {
	if s.cache.Enabled() {
		departments, err := s.DepartmentsOf(ctx, userID)
		if err != nil {
			return false, err
		}
		for _, id := range departments {
			if id == departmentID {
				return true, nil
			}
		}
		return false, nil
	}
	member, err := s.store.IsMemberOfDepartment(ctx, userID, departmentID)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check department membership")
	}
	return member, nil
}

// ValidateRecipient checks that every id named by a routing target exists.
func (s *DirectoryService) ValidateRecipient(ctx context.Context, userID, departmentID *string) error {
	if userID == nil && departmentID == nil {
		return appErrors.Validation("recipient is required", map[string]string{"toUserId": "either toUserId or toDepartmentId is required"})
	}
	if userID != nil {
		ok, err := s.store.UserExists(ctx, *userID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve recipient")
		}
		if !ok {
			return appErrors.Validation("unknown recipient", map[string]string{"toUserId": "user does not exist"})
		}
	}
	if departmentID != nil {
		ok, err := s.store.DepartmentExists(ctx, *departmentID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve recipient")
		}
		if !ok {
			return appErrors.Validation("unknown recipient", map[string]string{"toDepartmentId": "department does not exist"})
		}
	}
	return nil
}
