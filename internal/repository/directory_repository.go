package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// DirectoryRepository reads the department and user directory owned by other subsystems.
type DirectoryRepository struct {
	db *sqlx.DB
}

// NewDirectoryRepository constructs the repository.
func NewDirectoryRepository(db *sqlx.DB) *DirectoryRepository {
	return &DirectoryRepository{db: db}
}

// IsMemberOfDepartment reports whether the user belongs to the department.
func (r *DirectoryRepository) IsMemberOfDepartment(ctx context.Context, userID, departmentID string) (bool, error) {
	var member bool
	if err := sqlx.GetContext(ctx, executor(ctx, r.db), &member,
		`SELECT EXISTS(SELECT 1 FROM department_members WHERE user_id = $1 AND department_id = $2)`, userID, departmentID); err != nil {
		return false, fmt.Errorf("check department membership: %w", err)
	}
	return member, nil
}

// DepartmentsOf lists the department ids the user belongs to.
func (r *DirectoryRepository) DepartmentsOf(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	if err := sqlx.SelectContext(ctx, executor(ctx, r.db), &ids,
		`SELECT department_id FROM department_members WHERE user_id = $1 ORDER BY department_id`, userID); err != nil {
		return nil, fmt.Errorf("list user departments: %w", err)
	}
	return ids, nil
}

// UserExists reports whether an active user with the id exists.
func (r *DirectoryRepository) UserExists(ctx context.Context, userID string) (bool, error) {
	var exists bool
	if err := sqlx.GetContext(ctx, executor(ctx, r.db), &exists,
		`SELECT EXISTS(SELECT 1 FROM users WHERE id = $1 AND active = TRUE)`, userID); err != nil {
		return false, fmt.Errorf("check user: %w", err)
	}
	return exists, nil
}

// DepartmentExists reports whether an active department with the id exists.
func (r *DirectoryRepository) DepartmentExists(ctx context.Context, departmentID string) (bool, error) {
	var exists bool
	if err := sqlx.GetContext(ctx, executor(ctx, r.db), &exists,
		`SELECT EXISTS(SELECT 1 FROM departments WHERE id = $1 AND active = TRUE)`, departmentID); err != nil {
		return false, fmt.Errorf("check department: %w", err)
	}
	return exists, nil
}
