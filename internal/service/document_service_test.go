package service

import (
	"context"
	"errors"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/registry-api/internal/dto"
	"github.com/noah-isme/registry-api/internal/models"
	appErrors "github.com/noah-isme/registry-api/pkg/errors"
)

func TestDocumentServiceRegisterNumbersSequentially(t *testing.T) {
	h := newRegistryHarness()
	ctx := context.Background()

	first := registerIncoming(t, h)
	second := registerIncoming(t, h)

	require.Equal(t, models.DocumentStatusRegistered, first.Status)
	require.EqualValues(t, 1, *first.RegistrationNumber)
	require.EqualValues(t, 2, *second.RegistrationNumber)
	require.Equal(t, "unit-1", first.UnitID)
	require.Equal(t, models.PriorityNormal, first.Priority)
	require.NotNil(t, first.RegisteredAt)
	require.Equal(t, "IN-2/2025", second.RegistrationLabel("IN"))

	next, err := h.documents.Register(ctx, dto.CreateDocumentRequest{
		ConfigurationID:  "cfg-annual",
		DocumentType:     "outgoing",
		Subject:          "New year circular",
		RegistrationYear: 2026,
	}, actorCreator)
	require.NoError(t, err)
	require.EqualValues(t, 1, *next.RegistrationNumber)
	require.Equal(t, []string{models.AuditActionDocumentRegister, models.AuditActionDocumentRegister, models.AuditActionDocumentRegister}, h.audit.actions())
}

func TestDocumentServiceRegisterValidation(t *testing.T) {
	h := newRegistryHarness()
	ctx := context.Background()

	_, err := h.documents.Register(ctx, dto.CreateDocumentRequest{ConfigurationID: "cfg-annual", DocumentType: "fax", Subject: "x"}, actorCreator)
	require.ErrorIs(t, err, appErrors.ErrValidation)
	require.Contains(t, appErrors.FromError(err).Details, "documentType")

	_, err = h.documents.Register(ctx, dto.CreateDocumentRequest{ConfigurationID: "cfg-annual", DocumentType: "incoming", Subject: "   "}, actorCreator)
	require.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = h.documents.Register(ctx, dto.CreateDocumentRequest{ConfigurationID: "missing", DocumentType: "incoming", Subject: "x"}, actorCreator)
	require.ErrorIs(t, err, appErrors.ErrConfigurationNotFound)

	_, err = h.documents.Register(ctx, dto.CreateDocumentRequest{UnitID: "unit-2", ConfigurationID: "cfg-annual", DocumentType: "incoming", Subject: "x"}, actorCreator)
	require.ErrorIs(t, err, appErrors.ErrForbidden)

	_, err = h.documents.Register(ctx, dto.CreateDocumentRequest{ConfigurationID: "cfg-unit7", DocumentType: "incoming", Subject: "x"}, actorCreator)
	require.ErrorIs(t, err, appErrors.ErrValidation)
	require.Empty(t, h.state.counters)
	require.Empty(t, h.state.documents)
}

func TestDocumentServiceFailedInsertDoesNotConsumeNumber(t *testing.T) {
	h := newRegistryHarness()
	ctx := context.Background()
	h.state.createErrs = []error{errors.New("disk full")}

	_, err := h.documents.Register(ctx, dto.CreateDocumentRequest{ConfigurationID: "cfg-annual", DocumentType: "incoming", Subject: "x", RegistrationYear: 2025}, actorCreator)
	require.ErrorIs(t, err, appErrors.ErrInternal)

	doc := registerIncoming(t, h)
	require.EqualValues(t, 1, *doc.RegistrationNumber)
}

func TestDocumentServiceRegisterRetriesDuplicateNumber(t *testing.T) {
	h := newRegistryHarness()
	h.state.createErrs = []error{&pq.Error{Code: "23505"}}

	doc := registerIncoming(t, h)
	require.EqualValues(t, 1, *doc.RegistrationNumber)
	require.Equal(t, 2, h.tx.calls)
}

func TestDocumentServiceDraftLifecycle(t *testing.T) {
	h := newRegistryHarness()
	ctx := context.Background()

	draft, err := h.documents.Register(ctx, dto.CreateDocumentRequest{
		ConfigurationID:  "cfg-annual",
		DocumentType:     "internal",
		Subject:          "Budget memo",
		RegistrationYear: 2025,
		Draft:            true,
	}, actorCreator)
	require.NoError(t, err)
	require.Equal(t, models.DocumentStatusDraft, draft.Status)
	require.Nil(t, draft.RegistrationNumber)
	require.Empty(t, h.state.counters)

	registerIncoming(t, h)

	registered, err := h.documents.RegisterDraft(ctx, draft.ID, actorCreator)
	require.NoError(t, err)
	require.Equal(t, models.DocumentStatusRegistered, registered.Status)
	require.EqualValues(t, 2, *registered.RegistrationNumber)

	_, err = h.documents.RegisterDraft(ctx, draft.ID, actorCreator)
	require.ErrorIs(t, err, appErrors.ErrInvalidTransition)
}

func TestDocumentServiceUpdateKeepsNumberImmutable(t *testing.T) {
	h := newRegistryHarness()
	ctx := context.Background()
	doc := registerIncoming(t, h)

	number := int64(42)
	_, err := h.documents.Update(ctx, doc.ID, dto.UpdateDocumentRequest{RegistrationNumber: &number}, actorCreator)
	require.ErrorIs(t, err, appErrors.ErrValidation)
	require.Contains(t, appErrors.FromError(err).Details, "registrationNumber")

	year := 2024
	_, err = h.documents.Update(ctx, doc.ID, dto.UpdateDocumentRequest{RegistrationYear: &year}, actorCreator)
	require.ErrorIs(t, err, appErrors.ErrValidation)

	same := *doc.RegistrationNumber
	subject := "Corrected subject"
	updated, err := h.documents.Update(ctx, doc.ID, dto.UpdateDocumentRequest{RegistrationNumber: &same, Subject: &subject}, actorCreator)
	require.NoError(t, err)
	require.Equal(t, subject, updated.Subject)
	require.EqualValues(t, 1, *updated.RegistrationNumber)
	require.Equal(t, 2025, updated.RegistrationYear)
}

func TestDocumentServiceUpdatePermissions(t *testing.T) {
	h := newRegistryHarness()
	ctx := context.Background()
	doc := registerIncoming(t, h)
	routeTo(t, h, doc.ID, "user-a")

	subject := "Hijacked"
	_, err := h.documents.Update(ctx, doc.ID, dto.UpdateDocumentRequest{Subject: &subject}, actorA)
	require.ErrorIs(t, err, appErrors.ErrForbidden)

	_, err = h.documents.Update(ctx, doc.ID, dto.UpdateDocumentRequest{Subject: &subject}, actorOutside)
	require.ErrorIs(t, err, appErrors.ErrNotFound)

	_, err = h.workflow.CancelAll(ctx, doc.ID, "", actorCreator)
	require.NoError(t, err)
	_, err = h.documents.Update(ctx, doc.ID, dto.UpdateDocumentRequest{Subject: &subject}, actorCreator)
	require.ErrorIs(t, err, appErrors.ErrInvalidTransition)
}

func TestDocumentServiceGetVisibility(t *testing.T) {
	h := newRegistryHarness()
	ctx := context.Background()
	doc := registerIncoming(t, h)

	_, err := h.documents.Get(ctx, doc.ID, actorA)
	require.ErrorIs(t, err, appErrors.ErrNotFound)

	routeTo(t, h, doc.ID, "user-a")
	got, err := h.documents.Get(ctx, doc.ID, actorA)
	require.NoError(t, err)
	require.Equal(t, doc.ID, got.ID)

	colleague := models.Actor{UserID: "someone", UnitID: "unit-1", Role: models.RoleStaff}
	_, err = h.documents.Get(ctx, doc.ID, colleague)
	require.NoError(t, err)

	_, err = h.documents.Get(ctx, doc.ID, actorAdmin)
	require.NoError(t, err)
}

func TestDocumentServiceDelete(t *testing.T) {
	h := newRegistryHarness()
	ctx := context.Background()

	draft, err := h.documents.CreateDraft(ctx, dto.CreateDocumentRequest{ConfigurationID: "cfg-annual", DocumentType: "internal", Subject: "scratch"}, actorCreator)
	require.NoError(t, err)
	hard, err := h.documents.Delete(ctx, draft.ID, actorCreator)
	require.NoError(t, err)
	require.True(t, hard)
	_, ok := h.state.documents[draft.ID]
	require.False(t, ok)

	doc := registerIncoming(t, h)
	_, err = h.documents.Delete(ctx, doc.ID, actorOutside)
	require.ErrorIs(t, err, appErrors.ErrNotFound)

	hard, err = h.documents.Delete(ctx, doc.ID, actorCreator)
	require.NoError(t, err)
	require.False(t, hard)
	require.NotNil(t, h.document(doc.ID).DeletedAt)

	_, err = h.documents.Get(ctx, doc.ID, actorCreator)
	require.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestDocumentServiceArchive(t *testing.T) {
	h := newRegistryHarness()
	ctx := context.Background()
	doc := registerIncoming(t, h)
	steps := routeTo(t, h, doc.ID, "user-a")

	_, err := h.documents.Archive(ctx, doc.ID, actorCreator)
	require.ErrorIs(t, err, appErrors.ErrInvalidTransition)

	_, err = h.workflow.CompleteStep(ctx, steps[0].ID, dto.CompleteStepRequest{Action: "resolved"}, actorA)
	require.NoError(t, err)

	archived, err := h.documents.Archive(ctx, doc.ID, actorCreator)
	require.NoError(t, err)
	require.Equal(t, models.DocumentStatusArchived, archived.Status)

	_, err = h.workflow.Route(ctx, doc.ID, dto.RouteDocumentRequest{ToUserID: strPtr("user-b")}, actorCreator)
	require.ErrorIs(t, err, appErrors.ErrInvalidTransition)
	_, err = h.workflow.CancelAll(ctx, doc.ID, "", actorCreator)
	require.ErrorIs(t, err, appErrors.ErrInvalidTransition)
}

func TestDocumentServiceHistory(t *testing.T) {
	h := newRegistryHarness()
	ctx := context.Background()
	doc := registerIncoming(t, h)
	subject := "Amended"
	_, err := h.documents.Update(ctx, doc.ID, dto.UpdateDocumentRequest{Subject: &subject}, actorCreator)
	require.NoError(t, err)

	logs, err := h.documents.History(ctx, doc.ID, actorCreator)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	require.Equal(t, models.AuditActionDocumentUpdate, logs[1].Action)
	require.Equal(t, "creator", *logs[1].UserID)

	_, err = h.documents.History(ctx, doc.ID, actorOutside)
	require.ErrorIs(t, err, appErrors.ErrNotFound)
}
