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

const documentColumns = `id, unit_id, configuration_id, document_type, registration_year, registration_number, number_scope_year,
	subject, content, correspondent, external_reference, priority, due_date, assigned_user_id, assigned_department_id,
	status, registered_at, created_by, updated_by, created_at, updated_at, deleted_at`

var documentSortColumns = map[string]string{
	"created_at":          "d.created_at",
	"registered_at":       "d.registered_at",
	"registration_number": "d.registration_number",
	"subject":             "d.subject",
	"priority":            "d.priority",
	"due_date":            "d.due_date",
	"status":              "d.status",
}

// DocumentRepository persists registered correspondence.
type DocumentRepository struct {
	db *sqlx.DB
}

// NewDocumentRepository constructs the repository.
func NewDocumentRepository(db *sqlx.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// Create inserts a document.
func (r *DocumentRepository) Create(ctx context.Context, doc *models.Document) error {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now
	query := `INSERT INTO documents (` + documentColumns + `)
	VALUES (:id, :unit_id, :configuration_id, :document_type, :registration_year, :registration_number, :number_scope_year,
	:subject, :content, :correspondent, :external_reference, :priority, :due_date, :assigned_user_id, :assigned_department_id,
	:status, :registered_at, :created_by, :updated_by, :created_at, :updated_at, :deleted_at)`
	if _, err := sqlx.NamedExecContext(ctx, executor(ctx, r.db), query, doc); err != nil {
		return fmt.Errorf("create document: %w", err)
	}
	return nil
}

// GetByID fetches a live (not soft deleted) document.
func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*models.Document, error) {
	query := "SELECT " + documentColumns + " FROM documents WHERE id = $1 AND deleted_at IS NULL"
	var doc models.Document
	if err := sqlx.GetContext(ctx, executor(ctx, r.db), &doc, query, id); err != nil {
		return nil, err
	}
	return &doc, nil
}

// GetForUpdate fetches a live document and locks its row for the surrounding transaction.
func (r *DocumentRepository) GetForUpdate(ctx context.Context, id string) (*models.Document, error) {
	query := "SELECT " + documentColumns + " FROM documents WHERE id = $1 AND deleted_at IS NULL FOR UPDATE"
	var doc models.Document
	if err := sqlx.GetContext(ctx, executor(ctx, r.db), &doc, query, id); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Update persists editable metadata and registration columns.
func (r *DocumentRepository) Update(ctx context.Context, doc *models.Document) error {
	doc.UpdatedAt = time.Now().UTC()
	const query = `UPDATE documents SET configuration_id = :configuration_id, document_type = :document_type,
	registration_year = :registration_year, registration_number = :registration_number, number_scope_year = :number_scope_year,
	subject = :subject, content = :content, correspondent = :correspondent, external_reference = :external_reference,
	priority = :priority, due_date = :due_date, assigned_user_id = :assigned_user_id,
	assigned_department_id = :assigned_department_id, status = :status, registered_at = :registered_at,
	updated_by = :updated_by, updated_at = :updated_at
	WHERE id = :id AND deleted_at IS NULL`
	res, err := sqlx.NamedExecContext(ctx, executor(ctx, r.db), query, doc)
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	return expectAffected(res)
}

// UpdateStatus changes only the aggregate status.
func (r *DocumentRepository) UpdateStatus(ctx context.Context, id string, status models.DocumentStatus, updatedBy string) error {
	const query = `UPDATE documents SET status = $2, updated_by = $3, updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL`
	res, err := executor(ctx, r.db).ExecContext(ctx, query, id, status, updatedBy)
	if err != nil {
		return fmt.Errorf("update document status: %w", err)
	}
	return expectAffected(res)
}

// SoftDelete hides a document while keeping its number reserved.
func (r *DocumentRepository) SoftDelete(ctx context.Context, id, deletedBy string) error {
	const query = `UPDATE documents SET deleted_at = NOW(), updated_by = $2, updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL`
	res, err := executor(ctx, r.db).ExecContext(ctx, query, id, deletedBy)
	if err != nil {
		return fmt.Errorf("soft delete document: %w", err)
	}
	return expectAffected(res)
}

// HardDelete removes a document row; steps cascade.
func (r *DocumentRepository) HardDelete(ctx context.Context, id string) error {
	res, err := executor(ctx, r.db).ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return expectAffected(res)
}

// IsVisibleTo reports whether the actor may read the document.
func (r *DocumentRepository) IsVisibleTo(ctx context.Context, id string, actor models.Actor) (bool, error) {
	if actor.IsAdmin() {
		return true, nil
	}
	args := []interface{}{id}
	clause := visibilityClause(actor, &args)
	query := "SELECT EXISTS(SELECT 1 FROM documents d WHERE d.id = $1 AND d.deleted_at IS NULL AND " + clause + ")"
	var visible bool
	if err := sqlx.GetContext(ctx, executor(ctx, r.db), &visible, query, args...); err != nil {
		return false, fmt.Errorf("check document visibility: %w", err)
	}
	return visible, nil
}

// Search lists documents matching the filter.
func (r *DocumentRepository) Search(ctx context.Context, filter models.DocumentFilter) ([]models.Document, error) {
	where, args := buildDocumentWhere(filter)
	sortColumn, ok := documentSortColumns[filter.SortBy]
	if !ok {
		sortColumn = "d.created_at"
	}
	sortOrder := strings.ToUpper(filter.SortOrder)
	if sortOrder != "ASC" {
		sortOrder = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size < 1 {
		size = 20
	}
	query := fmt.Sprintf("SELECT %s FROM documents d%s ORDER BY %s %s, d.id LIMIT %d OFFSET %d",
		prefixedDocumentColumns(), where, sortColumn, sortOrder, size, (page-1)*size)
	var docs []models.Document
	if err := sqlx.SelectContext(ctx, executor(ctx, r.db), &docs, query, args...); err != nil {
		return nil, fmt.Errorf("search documents: %w", err)
	}
	return docs, nil
}

// Count returns the total number of documents matching the filter.
func (r *DocumentRepository) Count(ctx context.Context, filter models.DocumentFilter) (int, error) {
	where, args := buildDocumentWhere(filter)
	var total int
	if err := sqlx.GetContext(ctx, executor(ctx, r.db), &total, "SELECT COUNT(*) FROM documents d"+where, args...); err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return total, nil
}

// ListForExport returns registered documents of a register ordered by number.
func (r *DocumentRepository) ListForExport(ctx context.Context, filter models.DocumentFilter, limit int) ([]models.Document, error) {
	filter.Statuses = nil
	where, args := buildDocumentWhere(filter)
	if where == "" {
		where = " WHERE d.registration_number IS NOT NULL"
	} else {
		where += " AND d.registration_number IS NOT NULL"
	}
	query := fmt.Sprintf("SELECT %s FROM documents d%s ORDER BY d.registration_year ASC, d.registration_number ASC LIMIT %d",
		prefixedDocumentColumns(), where, limit)
	var docs []models.Document
	if err := sqlx.SelectContext(ctx, executor(ctx, r.db), &docs, query, args...); err != nil {
		return nil, fmt.Errorf("list documents for export: %w", err)
	}
	return docs, nil
}

func prefixedDocumentColumns() string {
	parts := strings.Split(documentColumns, ",")
	for i, part := range parts {
		parts[i] = "d." + strings.TrimSpace(part)
	}
	return strings.Join(parts, ", ")
}

func buildDocumentWhere(filter models.DocumentFilter) (string, []interface{}) {
	args := make([]interface{}, 0, 8)
	conditions := []string{"d.deleted_at IS NULL"}

	addIn := func(column string, values []string) {
		if len(values) == 0 {
			return
		}
		placeholders := make([]string, len(values))
		for i, v := range values {
			args = append(args, v)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("%s IN (%s)", column, strings.Join(placeholders, ",")))
	}

	types := make([]string, len(filter.Types))
	for i, t := range filter.Types {
		types[i] = string(t)
	}
	addIn("d.document_type", types)
	statuses := make([]string, len(filter.Statuses))
	for i, s := range filter.Statuses {
		statuses[i] = string(s)
	}
	addIn("d.status", statuses)
	priorities := make([]string, len(filter.Priorities))
	for i, p := range filter.Priorities {
		priorities[i] = string(p)
	}
	addIn("d.priority", priorities)

	if filter.UnitID != "" {
		args = append(args, filter.UnitID)
		conditions = append(conditions, fmt.Sprintf("d.unit_id = $%d", len(args)))
	}
	if filter.ConfigurationID != "" {
		args = append(args, filter.ConfigurationID)
		conditions = append(conditions, fmt.Sprintf("d.configuration_id = $%d", len(args)))
	}
	if filter.RegistrationYear > 0 {
		args = append(args, filter.RegistrationYear)
		conditions = append(conditions, fmt.Sprintf("d.registration_year = $%d", len(args)))
	}
	if filter.RegistrationNumber > 0 {
		args = append(args, filter.RegistrationNumber)
		conditions = append(conditions, fmt.Sprintf("d.registration_number = $%d", len(args)))
	}
	if filter.CreatedFrom != nil {
		args = append(args, *filter.CreatedFrom)
		conditions = append(conditions, fmt.Sprintf("d.created_at >= $%d", len(args)))
	}
	if filter.CreatedTo != nil {
		args = append(args, *filter.CreatedTo)
		conditions = append(conditions, fmt.Sprintf("d.created_at <= $%d", len(args)))
	}
	if text := strings.TrimSpace(filter.Text); text != "" {
		args = append(args, "%"+escapeLike(text)+"%")
		n := len(args)
		conditions = append(conditions, fmt.Sprintf("(d.subject ILIKE $%d OR d.content ILIKE $%d OR d.correspondent ILIKE $%d)", n, n, n))
	}
	if filter.VisibleTo != nil && !filter.VisibleTo.IsAdmin() {
		conditions = append(conditions, visibilityClause(*filter.VisibleTo, &args))
	}

	return " WHERE " + strings.Join(conditions, " AND "), args
}

// visibilityClause restricts rows aliased d to the owning unit, the creator and any recipient.
func visibilityClause(actor models.Actor, args *[]interface{}) string {
	*args = append(*args, actor.UserID)
	user := len(*args)
	unitClause := ""
	if actor.UnitID != "" {
		*args = append(*args, actor.UnitID)
		unitClause = fmt.Sprintf("d.unit_id = $%d OR ", len(*args))
	}
	return fmt.Sprintf(`(%sd.created_by = $%d OR EXISTS (
		SELECT 1 FROM workflow_steps ws WHERE ws.document_id = d.id AND (ws.to_user_id = $%d
		OR ws.to_department_id IN (SELECT dm.department_id FROM department_members dm WHERE dm.user_id = $%d))))`,
		unitClause, user, user, user)
}

func escapeLike(raw string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(raw)
}
