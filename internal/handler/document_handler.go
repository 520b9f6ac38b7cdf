package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/registry-api/internal/dto"
	"github.com/noah-isme/registry-api/internal/models"
	"github.com/noah-isme/registry-api/internal/service"
	"github.com/noah-isme/registry-api/pkg/response"
)

type documentService interface {
	Register(ctx context.Context, req dto.CreateDocumentRequest, actor models.Actor) (*models.Document, error)
	RegisterDraft(ctx context.Context, id string, actor models.Actor) (*models.Document, error)
	Get(ctx context.Context, id string, actor models.Actor) (*models.Document, error)
	Update(ctx context.Context, id string, req dto.UpdateDocumentRequest, actor models.Actor) (*models.Document, error)
	Delete(ctx context.Context, id string, actor models.Actor) (bool, error)
	Archive(ctx context.Context, id string, actor models.Actor) (*models.Document, error)
	History(ctx context.Context, id string, actor models.Actor) ([]models.AuditLog, error)
}

type documentSearchService interface {
	Search(ctx context.Context, req dto.SearchDocumentsRequest, actor models.Actor) ([]models.Document, *models.Pagination, error)
}

type registerExporter interface {
	ExportRegister(ctx context.Context, req dto.ExportRegisterRequest, actor models.Actor) (*service.ExportFile, error)
}

// DocumentHandler exposes the document registry and its read side.
type DocumentHandler struct {
	documents documentService
	search    documentSearchService
	export    registerExporter
}

// NewDocumentHandler builds a new handler.
func NewDocumentHandler(documents documentService, search documentSearchService, export registerExporter) *DocumentHandler {
	return &DocumentHandler{documents: documents, search: search, export: export}
}

// Create godoc
// @Summary Register a document
// @Description Allocates the next register number atomically. With draft=true the document is stored unnumbered.
// @Tags Documents
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param payload body dto.CreateDocumentRequest true "Document payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 503 {object} response.Envelope "Numbering conflict, retry"
// @Router /documents [post]
func (h *DocumentHandler) Create(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.CreateDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid document payload"))
		return
	}
	doc, err := h.documents.Register(c.Request.Context(), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, doc)
}

// RegisterDraft godoc
// @Summary Number a draft document
// @Tags Documents
// @Security BearerAuth
// @Produce json
// @Param id path string true "Document ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /documents/{id}/register [post]
func (h *DocumentHandler) RegisterDraft(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	doc, err := h.documents.RegisterDraft(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, doc, nil)
}

// Get godoc
// @Summary Get document
// @Tags Documents
// @Security BearerAuth
// @Produce json
// @Param id path string true "Document ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /documents/{id} [get]
func (h *DocumentHandler) Get(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	doc, err := h.documents.Get(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, doc, nil)
}

// Update godoc
// @Summary Update document metadata
// @Description Registration number and year cannot change once assigned.
// @Tags Documents
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "Document ID"
// @Param payload body dto.UpdateDocumentRequest true "Fields to change"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /documents/{id} [patch]
func (h *DocumentHandler) Update(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.UpdateDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid document payload"))
		return
	}
	doc, err := h.documents.Update(c.Request.Context(), c.Param("id"), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, doc, nil)
}

// Delete godoc
// @Summary Delete document
// @Description Drafts without steps are removed, everything else is soft deleted.
// @Tags Documents
// @Security BearerAuth
// @Param id path string true "Document ID"
// @Success 204
// @Router /documents/{id} [delete]
func (h *DocumentHandler) Delete(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	if _, err := h.documents.Delete(c.Request.Context(), c.Param("id"), actor); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Archive godoc
// @Summary Archive document
// @Tags Documents
// @Security BearerAuth
// @Produce json
// @Param id path string true "Document ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /documents/{id}/archive [post]
func (h *DocumentHandler) Archive(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	doc, err := h.documents.Archive(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, doc, nil)
}

// History godoc
// @Summary Document audit trail
// @Tags Documents
// @Security BearerAuth
// @Produce json
// @Param id path string true "Document ID"
// @Success 200 {object} response.Envelope
// @Router /documents/{id}/history [get]
func (h *DocumentHandler) History(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	logs, err := h.documents.History(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, logs, nil)
}

// Search godoc
// @Summary Search documents
// @Tags Documents
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param payload body dto.SearchDocumentsRequest true "Search filter"
// @Success 200 {object} response.Envelope
// @Router /documents/search [post]
func (h *DocumentHandler) Search(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.SearchDocumentsRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, bindError(err, "invalid search filter"))
			return
		}
	}
	docs, pagination, err := h.search.Search(c.Request.Context(), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, docs, pagination)
}

// Export godoc
// @Summary Export register journal
// @Tags Documents
// @Security BearerAuth
// @Produce text/csv
// @Produce application/pdf
// @Param configurationId query string true "Register configuration ID"
// @Param year query int false "Registration year, defaults to the current year"
// @Param format query string false "csv or pdf" Enums(csv, pdf)
// @Success 200 {file} file
// @Router /documents/export [get]
func (h *DocumentHandler) Export(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.ExportRegisterRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.Error(c, bindError(err, "invalid export parameters"))
		return
	}
	file, err := h.export.ExportRegister(c.Request.Context(), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Payload)
}
