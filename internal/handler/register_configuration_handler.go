package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/registry-api/internal/dto"
	"github.com/noah-isme/registry-api/internal/models"
	"github.com/noah-isme/registry-api/pkg/response"
)

type registerConfigurationService interface {
	List(ctx context.Context, query dto.RegisterConfigurationQuery, actor models.Actor) ([]models.RegisterConfiguration, error)
	Get(ctx context.Context, id string, actor models.Actor) (*models.RegisterConfiguration, error)
	Create(ctx context.Context, req dto.CreateRegisterConfigurationRequest, actor models.Actor) (*models.RegisterConfiguration, error)
	Update(ctx context.Context, id string, req dto.UpdateRegisterConfigurationRequest, actor models.Actor) (*models.RegisterConfiguration, error)
	Delete(ctx context.Context, id string, actor models.Actor) (bool, error)
}

// RegisterConfigurationHandler exposes register configuration endpoints.
type RegisterConfigurationHandler struct {
	service registerConfigurationService
}

// NewRegisterConfigurationHandler builds a new handler.
func NewRegisterConfigurationHandler(service registerConfigurationService) *RegisterConfigurationHandler {
	return &RegisterConfigurationHandler{service: service}
}

// List godoc
// @Summary List register configurations
// @Tags RegisterConfigurations
// @Security BearerAuth
// @Produce json
// @Param unitId query string false "Unit filter (admins only)"
// @Param activeOnly query bool false "Only active registers"
// @Success 200 {object} response.Envelope
// @Router /register-configurations [get]
func (h *RegisterConfigurationHandler) List(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var query dto.RegisterConfigurationQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, bindError(err, "invalid query parameters"))
		return
	}
	items, err := h.service.List(c.Request.Context(), query, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Get godoc
// @Summary Get register configuration
// @Tags RegisterConfigurations
// @Security BearerAuth
// @Produce json
// @Param id path string true "Configuration ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /register-configurations/{id} [get]
func (h *RegisterConfigurationHandler) Get(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	cfg, err := h.service.Get(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, cfg, nil)
}

// Create godoc
// @Summary Create register configuration
// @Tags RegisterConfigurations
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param payload body dto.CreateRegisterConfigurationRequest true "Configuration payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /register-configurations [post]
func (h *RegisterConfigurationHandler) Create(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.CreateRegisterConfigurationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid register configuration payload"))
		return
	}
	cfg, err := h.service.Create(c.Request.Context(), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, cfg)
}

// Update godoc
// @Summary Update register configuration
// @Tags RegisterConfigurations
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "Configuration ID"
// @Param payload body dto.UpdateRegisterConfigurationRequest true "Configuration payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /register-configurations/{id} [put]
func (h *RegisterConfigurationHandler) Update(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.UpdateRegisterConfigurationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid register configuration payload"))
		return
	}
	cfg, err := h.service.Update(c.Request.Context(), c.Param("id"), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, cfg, nil)
}

// Delete godoc
// @Summary Delete or deactivate register configuration
// @Description Registers that numbered documents are deactivated instead of removed.
// @Tags RegisterConfigurations
// @Security BearerAuth
// @Produce json
// @Param id path string true "Configuration ID"
// @Success 200 {object} response.Envelope
// @Router /register-configurations/{id} [delete]
func (h *RegisterConfigurationHandler) Delete(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	removed, err := h.service.Delete(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"id": c.Param("id"), "removed": removed}, nil)
}
