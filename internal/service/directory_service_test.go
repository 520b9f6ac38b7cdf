package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/registry-api/pkg/errors"
)

type countingDirectory struct {
	memDirectory
	departmentLookups int
}

func (d *countingDirectory) DepartmentsOf(ctx context.Context, userID string) ([]string, error) {
	d.departmentLookups++
	return d.memDirectory.DepartmentsOf(ctx, userID)
}

func TestDirectoryServiceCachesDepartments(t *testing.T) {
	state := newMemState()
	state.departments["dept-legal"] = []string{"user-1"}
	state.departments["dept-hr"] = []string{"user-1", "user-2"}
	store := &countingDirectory{memDirectory: memDirectory{state}}
	cache := NewCacheService(newMemoryCache(), nil, time.Minute, nil, true)
	svc := NewDirectoryService(store, cache, nil)
	ctx := context.Background()

	departments, err := svc.DepartmentsOf(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, []string{"dept-hr", "dept-legal"}, departments)

	member, err := svc.IsMemberOfDepartment(ctx, "user-1", "dept-legal")
	require.NoError(t, err)
	require.True(t, member)
	member, err = svc.IsMemberOfDepartment(ctx, "user-1", "dept-finance")
	require.NoError(t, err)
	require.False(t, member)
	require.Equal(t, 1, store.departmentLookups)
}

func TestDirectoryServiceWithoutCacheAsksStore(t *testing.T) {
	state := newMemState()
	state.departments["dept-hr"] = []string{"user-2"}
	svc := NewDirectoryService(memDirectory{state}, nil, nil)

	member, err := svc.IsMemberOfDepartment(context.Background(), "user-2", "dept-hr")
	require.NoError(t, err)
	require.True(t, member)
}

func TestDirectoryServiceValidateRecipient(t *testing.T) {
	state := newMemState()
	state.users["user-1"] = true
	state.departments["dept-hr"] = nil
	svc := NewDirectoryService(memDirectory{state}, nil, nil)
	ctx := context.Background()

	require.NoError(t, svc.ValidateRecipient(ctx, strPtr("user-1"), nil))
	require.NoError(t, svc.ValidateRecipient(ctx, nil, strPtr("dept-hr")))
	require.NoError(t, svc.ValidateRecipient(ctx, strPtr("user-1"), strPtr("dept-hr")))

	err := svc.ValidateRecipient(ctx, nil, nil)
	require.ErrorIs(t, err, appErrors.ErrValidation)

	err = svc.ValidateRecipient(ctx, strPtr("ghost"), nil)
	require.ErrorIs(t, err, appErrors.ErrValidation)
	require.Contains(t, appErrors.FromError(err).Details, "toUserId")

	err = svc.ValidateRecipient(ctx, nil, strPtr("dept-none"))
	require.ErrorIs(t, err, appErrors.ErrValidation)
	require.Contains(t, appErrors.FromError(err).Details, "toDepartmentId")
}
