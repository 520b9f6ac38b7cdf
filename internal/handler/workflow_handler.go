package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/registry-api/internal/dto"
	"github.com/noah-isme/registry-api/internal/models"
	"github.com/noah-isme/registry-api/pkg/response"
)

type workflowService interface {
	Route(ctx context.Context, documentID string, req dto.RouteDocumentRequest, actor models.Actor) (*dto.RouteResponse, error)
	ListSteps(ctx context.Context, documentID string, actor models.Actor) ([]models.WorkflowStep, error)
	CompleteStep(ctx context.Context, stepID string, req dto.CompleteStepRequest, actor models.Actor) (*dto.StepTransitionResponse, error)
	Forward(ctx context.Context, stepID string, req dto.ForwardStepRequest, actor models.Actor) (*dto.RouteResponse, error)
	Inbox(ctx context.Context, query dto.InboxQuery, actor models.Actor) ([]models.WorkflowStep, error)
	Cancel(ctx context.Context, documentID string, req dto.CancelDocumentRequest, actor models.Actor) (*dto.CancelResponse, error)
}

// WorkflowHandler exposes routing, step completion and cancellation.
type WorkflowHandler struct {
	service workflowService
}

// NewWorkflowHandler builds a new handler.
func NewWorkflowHandler(service workflowService) *WorkflowHandler {
	return &WorkflowHandler{service: service}
}

// Route godoc
// @Summary Route a document
// @Description Creates one pending step per recipient.
// @Tags Workflow
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "Document ID"
// @Param payload body dto.RouteDocumentRequest true "Recipients"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /documents/{id}/route [post]
func (h *WorkflowHandler) Route(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.RouteDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid routing payload"))
		return
	}
	result, err := h.service.Route(c.Request.Context(), c.Param("id"), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// ListSteps godoc
// @Summary List workflow steps of a document
// @Tags Workflow
// @Security BearerAuth
// @Produce json
// @Param id path string true "Document ID"
// @Success 200 {object} response.Envelope
// @Router /documents/{id}/steps [get]
func (h *WorkflowHandler) ListSteps(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	steps, err := h.service.ListSteps(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, steps, nil)
}

// Cancel godoc
// @Summary Cancel a document or the caller's branch
// @Description cancelAll=true is reserved to the document creator.
// @Tags Workflow
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "Document ID"
// @Param payload body dto.CancelDocumentRequest true "Cancellation"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /documents/{id}/cancel [post]
func (h *WorkflowHandler) Cancel(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.CancelDocumentRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, bindError(err, "invalid cancellation payload"))
			return
		}
	}
	result, err := h.service.Cancel(c.Request.Context(), c.Param("id"), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// CompleteStep godoc
// @Summary Complete a pending step
// @Tags Workflow
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "Step ID"
// @Param payload body dto.CompleteStepRequest true "Outcome"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /steps/{id}/complete [post]
func (h *WorkflowHandler) CompleteStep(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.CompleteStepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid step completion payload"))
		return
	}
	result, err := h.service.CompleteStep(c.Request.Context(), c.Param("id"), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Forward godoc
// @Summary Forward a pending step
// @Description Completes the caller's step as sent and routes the document to new recipients.
// @Tags Workflow
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "Step ID"
// @Param payload body dto.ForwardStepRequest true "Recipients"
// @Success 201 {object} response.Envelope
// @Router /steps/{id}/forward [post]
func (h *WorkflowHandler) Forward(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.ForwardStepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid forward payload"))
		return
	}
	result, err := h.service.Forward(c.Request.Context(), c.Param("id"), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Inbox godoc
// @Summary Pending steps addressed to the caller
// @Tags Workflow
// @Security BearerAuth
// @Produce json
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Router /steps/inbox [get]
func (h *WorkflowHandler) Inbox(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var query dto.InboxQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, bindError(err, "invalid query parameters"))
		return
	}
	steps, err := h.service.Inbox(c.Request.Context(), query, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, steps, nil)
}
