package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/registry-api/internal/models"
)

const registerConfigurationColumns = `id, name, unit_id, prefix, starting_number, resets_annually, active, created_by, updated_by, created_at, updated_at`

// RegisterConfigurationRepository persists register configurations.
type RegisterConfigurationRepository struct {
	db *sqlx.DB
}

// NewRegisterConfigurationRepository constructs the repository.
func NewRegisterConfigurationRepository(db *sqlx.DB) *RegisterConfigurationRepository {
	return &RegisterConfigurationRepository{db: db}
}

// List returns configurations ordered by name.
func (r *RegisterConfigurationRepository) List(ctx context.Context, filter models.RegisterConfigurationFilter) ([]models.RegisterConfiguration, error) {
	builder := strings.Builder{}
	builder.WriteString("SELECT " + registerConfigurationColumns + " FROM register_configurations")
	conditions := make([]string, 0, 2)
	args := make([]interface{}, 0, 1)
	if filter.UnitID != "" {
		args = append(args, filter.UnitID)
		if filter.IncludeGlobal {
			conditions = append(conditions, fmt.Sprintf("(unit_id = $%d OR unit_id IS NULL)", len(args)))
		} else {
			conditions = append(conditions, fmt.Sprintf("unit_id = $%d", len(args)))
		}
	}
	if filter.ActiveOnly {
		conditions = append(conditions, "active = TRUE")
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY name ASC, created_at ASC")

	var items []models.RegisterConfiguration
	if err := sqlx.SelectContext(ctx, executor(ctx, r.db), &items, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list register configurations: %w", err)
	}
	return items, nil
}

// GetByID fetches a configuration by identifier.
func (r *RegisterConfigurationRepository) GetByID(ctx context.Context, id string) (*models.RegisterConfiguration, error) {
	query := "SELECT " + registerConfigurationColumns + " FROM register_configurations WHERE id = $1"
	var cfg models.RegisterConfiguration
	if err := sqlx.GetContext(ctx, executor(ctx, r.db), &cfg, query, id); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Create inserts a configuration.
func (r *RegisterConfigurationRepository) Create(ctx context.Context, cfg *models.RegisterConfiguration) error {
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = now
	}
	cfg.UpdatedAt = now
	const query = `INSERT INTO register_configurations (` + registerConfigurationColumns + `)
	VALUES (:id, :name, :unit_id, :prefix, :starting_number, :resets_annually, :active, :created_by, :updated_by, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, executor(ctx, r.db), query, cfg); err != nil {
		return fmt.Errorf("create register configuration: %w", err)
	}
	return nil
}

// Update persists mutable columns.
func (r *RegisterConfigurationRepository) Update(ctx context.Context, cfg *models.RegisterConfiguration) error {
	cfg.UpdatedAt = time.Now().UTC()
	const query = `UPDATE register_configurations SET name = :name, unit_id = :unit_id, prefix = :prefix,
	starting_number = :starting_number, resets_annually = :resets_annually, active = :active,
	updated_by = :updated_by, updated_at = :updated_at WHERE id = :id`
	res, err := sqlx.NamedExecContext(ctx, executor(ctx, r.db), query, cfg)
	if err != nil {
		return fmt.Errorf("update register configuration: %w", err)
	}
	return expectAffected(res)
}

// Deactivate marks a configuration inactive so it stops issuing numbers.
func (r *RegisterConfigurationRepository) Deactivate(ctx context.Context, id, updatedBy string) error {
	const query = `UPDATE register_configurations SET active = FALSE, updated_by = $2, updated_at = NOW() WHERE id = $1`
	res, err := executor(ctx, r.db).ExecContext(ctx, query, id, updatedBy)
	if err != nil {
		return fmt.Errorf("deactivate register configuration: %w", err)
	}
	return expectAffected(res)
}

// Delete removes a configuration row.
func (r *RegisterConfigurationRepository) Delete(ctx context.Context, id string) error {
	res, err := executor(ctx, r.db).ExecContext(ctx, `DELETE FROM register_configurations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete register configuration: %w", err)
	}
	return expectAffected(res)
}

// IsReferenced reports whether any document, deleted or not, points at the configuration.
func (r *RegisterConfigurationRepository) IsReferenced(ctx context.Context, id string) (bool, error) {
	var exists bool
	if err := sqlx.GetContext(ctx, executor(ctx, r.db), &exists,
		`SELECT EXISTS(SELECT 1 FROM documents WHERE configuration_id = $1)`, id); err != nil {
		return false, fmt.Errorf("check configuration references: %w", err)
	}
	return exists, nil
}

func expectAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
