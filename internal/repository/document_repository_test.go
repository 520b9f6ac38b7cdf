package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/registry-api/internal/models"
)

var documentRowColumns = []string{"id", "unit_id", "configuration_id", "document_type", "registration_year", "registration_number", "number_scope_year",
	"subject", "content", "correspondent", "external_reference", "priority", "due_date", "assigned_user_id", "assigned_department_id",
	"status", "registered_at", "created_by", "updated_by", "created_at", "updated_at", "deleted_at"}

func documentRow(rows *sqlmock.Rows, id string, number interface{}, status string) *sqlmock.Rows {
	now := time.Now()
	return rows.AddRow(id, "unit-1", "cfg-1", "incoming", 2025, number, 2025,
		"Subject", "", "Bishop", "", "normal", nil, nil, nil,
		status, now, "user-1", nil, now, now, nil)
}

func TestDocumentRepositoryCreateAndGetForUpdate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewDocumentRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO documents")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	doc := &models.Document{UnitID: "unit-1", ConfigurationID: "cfg-1", DocumentType: models.DocumentTypeIncoming, Subject: "Subject", Status: models.DocumentStatusDraft, CreatedBy: "user-1"}
	require.NoError(t, repo.Create(context.Background(), doc))
	require.NotEmpty(t, doc.ID)

	mock.ExpectQuery(regexp.QuoteMeta("FROM documents WHERE id = $1 AND deleted_at IS NULL FOR UPDATE")).
		WithArgs(doc.ID).
		WillReturnRows(documentRow(sqlmock.NewRows(documentRowColumns), doc.ID, int64(7), "registered"))

	locked, err := repo.GetForUpdate(context.Background(), doc.ID)
	require.NoError(t, err)
	require.Equal(t, int64(7), *locked.RegistrationNumber)
	require.Equal(t, models.DocumentStatusRegistered, locked.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentRepositoryUpdateStatusMissing(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewDocumentRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE documents SET status = $2")).
		WithArgs("doc-1", models.DocumentStatusInWork, "user-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateStatus(context.Background(), "doc-1", models.DocumentStatusInWork, "user-1")
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentRepositorySearchAppliesFiltersAndVisibility(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewDocumentRepository(db)
	actor := models.Actor{UserID: "user-2", UnitID: "unit-9", Role: models.RoleStaff}
	filter := models.DocumentFilter{
		Statuses:  []models.DocumentStatus{models.DocumentStatusInWork},
		Text:      "50%",
		VisibleTo: &actor,
		Page:      2,
		PageSize:  10,
		SortBy:    "registration_number",
		SortOrder: "asc",
	}

	mock.ExpectQuery(`FROM documents d WHERE d.deleted_at IS NULL AND d.status IN \(\$1\) AND \(d.subject ILIKE \$2 .*ORDER BY d.registration_number ASC, d.id LIMIT 10 OFFSET 10`).
		WithArgs("in_work", `%50\%%`, "user-2", "unit-9").
		WillReturnRows(documentRow(sqlmock.NewRows(documentRowColumns), "doc-1", int64(3), "in_work"))

	docs, err := repo.Search(context.Background(), filter)
	require.NoError(t, err)
	require.Len(t, docs, 1)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM documents d WHERE d.deleted_at IS NULL")).
		WithArgs("in_work", `%50\%%`, "user-2", "unit-9").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(11))

	total, err := repo.Count(context.Background(), filter)
	require.NoError(t, err)
	require.Equal(t, 11, total)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentRepositoryIsVisibleToAdminSkipsQuery(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewDocumentRepository(db)
	visible, err := repo.IsVisibleTo(context.Background(), "doc-1", models.Actor{UserID: "admin", Role: models.RoleAdmin})
	require.NoError(t, err)
	require.True(t, visible)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM documents d WHERE d.id = $1")).
		WithArgs("doc-1", "user-3").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	visible, err = repo.IsVisibleTo(context.Background(), "doc-1", models.Actor{UserID: "user-3", Role: models.RoleStaff})
	require.NoError(t, err)
	require.False(t, visible)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentRepositoryListForExportOrdersByNumber(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewDocumentRepository(db)
	mock.ExpectQuery(`d.configuration_id = \$1 AND d.registration_year = \$2 AND d.registration_number IS NOT NULL ORDER BY d.registration_year ASC, d.registration_number ASC LIMIT 500`).
		WithArgs("cfg-1", 2025).
		WillReturnRows(documentRow(sqlmock.NewRows(documentRowColumns), "doc-1", int64(1), "registered"))

	docs, err := repo.ListForExport(context.Background(), models.DocumentFilter{ConfigurationID: "cfg-1", RegistrationYear: 2025}, 500)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}
