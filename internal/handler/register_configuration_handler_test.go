package handler

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/registry-api/internal/dto"
	"github.com/noah-isme/registry-api/internal/models"
	appErrors "github.com/noah-isme/registry-api/pkg/errors"
)

var adminClaims = &models.JWTClaims{UserID: "admin", Role: models.RoleAdmin}

func TestRegisterConfigurationHandlerList(t *testing.T) {
	svc := &registerConfigurationServiceStub{items: []models.RegisterConfiguration{{ID: "cfg-annual", Name: "Incoming", Prefix: "IN", StartingNumber: 1, Active: true}}}
	handler := NewRegisterConfigurationHandler(svc)
	c, w := newTestContext(t, http.MethodGet, "/register-configurations?unitId=unit-1&activeOnly=true", nil, adminClaims)

	handler.List(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, dto.RegisterConfigurationQuery{UnitID: "unit-1", ActiveOnly: true}, svc.lastQuery)
	assert.Len(t, decodeEnvelope(t, w)["data"], 1)
}

func TestRegisterConfigurationHandlerCreate(t *testing.T) {
	svc := &registerConfigurationServiceStub{cfg: &models.RegisterConfiguration{ID: "cfg-new", Name: "Outgoing", Prefix: "OUT", StartingNumber: 100}}
	handler := NewRegisterConfigurationHandler(svc)
	c, w := newTestContext(t, http.MethodPost, "/register-configurations", dto.CreateRegisterConfigurationRequest{
		Name:           "Outgoing",
		Prefix:         "OUT",
		StartingNumber: 100,
		ResetsAnnually: true,
	}, adminClaims)

	handler.Create(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, int64(100), svc.lastReq.StartingNumber)
	assert.True(t, svc.lastReq.ResetsAnnually)
}

func TestRegisterConfigurationHandlerCreateInvalidBody(t *testing.T) {
	handler := NewRegisterConfigurationHandler(&registerConfigurationServiceStub{})
	c, w := newTestContext(t, http.MethodPost, "/register-configurations", `{"startingNumber":"one"}`, adminClaims)

	handler.Create(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, appErrors.ErrValidation.Code, errorCode(t, w))
}

func TestRegisterConfigurationHandlerGetMissing(t *testing.T) {
	svc := &registerConfigurationServiceStub{err: appErrors.ErrConfigurationNotFound}
	handler := NewRegisterConfigurationHandler(svc)
	c, w := newTestContext(t, http.MethodGet, "/register-configurations/nope", nil, registrarClaims)
	c.Params = gin.Params{{Key: "id", Value: "nope"}}

	handler.Get(c)

	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "CONFIGURATION_NOT_FOUND", errorCode(t, w))
	assert.Equal(t, "nope", svc.lastID)
}

func TestRegisterConfigurationHandlerUpdateFrozenNumbering(t *testing.T) {
	svc := &registerConfigurationServiceStub{err: appErrors.Clone(appErrors.ErrConflict, "numbering settings are frozen once numbers were issued")}
	handler := NewRegisterConfigurationHandler(svc)
	c, w := newTestContext(t, http.MethodPut, "/register-configurations/cfg-annual", dto.UpdateRegisterConfigurationRequest{Name: "Incoming", StartingNumber: 5}, adminClaims)
	c.Params = gin.Params{{Key: "id", Value: "cfg-annual"}}

	handler.Update(c)

	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "cfg-annual", svc.lastID)
}

func TestRegisterConfigurationHandlerDeleteReportsDeactivation(t *testing.T) {
	svc := &registerConfigurationServiceStub{removed: false}
	handler := NewRegisterConfigurationHandler(svc)
	c, w := newTestContext(t, http.MethodDelete, "/register-configurations/cfg-annual", nil, adminClaims)
	c.Params = gin.Params{{Key: "id", Value: "cfg-annual"}}

	handler.Delete(c)

	require.Equal(t, http.StatusOK, w.Code)
	data := decodeEnvelope(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "cfg-annual", data["id"])
	assert.Equal(t, false, data["removed"])
}
