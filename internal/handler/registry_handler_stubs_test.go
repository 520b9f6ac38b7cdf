package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/registry-api/internal/dto"
	"github.com/noah-isme/registry-api/internal/middleware"
	"github.com/noah-isme/registry-api/internal/models"
	"github.com/noah-isme/registry-api/internal/service"
	"github.com/noah-isme/registry-api/pkg/response"
)

var registrarClaims = &models.JWTClaims{UserID: "creator", UnitID: "unit-1", Role: models.RoleRegistrar}

func newTestContext(t *testing.T, method, target string, body interface{}, claims *models.JWTClaims) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	var reader io.Reader
	switch v := body.(type) {
	case nil:
	case string:
		reader = bytes.NewReader([]byte(v))
	default:
		payload, err := json.Marshal(v)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, target, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.Request = req
	if claims != nil {
		c.Set(middleware.ContextUserKey, claims)
	}
	return c, w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var envelope map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	return envelope
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var envelope response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.NotNil(t, envelope.Error)
	return envelope.Error.Code
}

type documentServiceStub struct {
	doc       *models.Document
	logs      []models.AuditLog
	err       error
	lastReq   dto.CreateDocumentRequest
	lastPatch dto.UpdateDocumentRequest
	lastID    string
	lastActor models.Actor
}

func (s *documentServiceStub) Register(ctx context.Context, req dto.CreateDocumentRequest, actor models.Actor) (*models.Document, error) {
	s.lastReq, s.lastActor = req, actor
	return s.doc, s.err
}

func (s *documentServiceStub) RegisterDraft(ctx context.Context, id string, actor models.Actor) (*models.Document, error) {
	s.lastID, s.lastActor = id, actor
	return s.doc, s.err
}

func (s *documentServiceStub) Get(ctx context.Context, id string, actor models.Actor) (*models.Document, error) {
	s.lastID, s.lastActor = id, actor
	return s.doc, s.err
}

func (s *documentServiceStub) Update(ctx context.Context, id string, req dto.UpdateDocumentRequest, actor models.Actor) (*models.Document, error) {
	s.lastID, s.lastPatch, s.lastActor = id, req, actor
	return s.doc, s.err
}

func (s *documentServiceStub) Delete(ctx context.Context, id string, actor models.Actor) (bool, error) {
	s.lastID, s.lastActor = id, actor
	return s.err == nil, s.err
}

func (s *documentServiceStub) Archive(ctx context.Context, id string, actor models.Actor) (*models.Document, error) {
	s.lastID, s.lastActor = id, actor
	return s.doc, s.err
}

func (s *documentServiceStub) History(ctx context.Context, id string, actor models.Actor) ([]models.AuditLog, error) {
	s.lastID, s.lastActor = id, actor
	return s.logs, s.err
}

type searchServiceStub struct {
	docs       []models.Document
	pagination *models.Pagination
	err        error
	lastReq    dto.SearchDocumentsRequest
}

func (s *searchServiceStub) Search(ctx context.Context, req dto.SearchDocumentsRequest, actor models.Actor) ([]models.Document, *models.Pagination, error) {
	s.lastReq = req
	return s.docs, s.pagination, s.err
}

type exporterStub struct {
	file    *service.ExportFile
	err     error
	lastReq dto.ExportRegisterRequest
}

func (s *exporterStub) ExportRegister(ctx context.Context, req dto.ExportRegisterRequest, actor models.Actor) (*service.ExportFile, error) {
	s.lastReq = req
	return s.file, s.err
}

type workflowServiceStub struct {
	route      *dto.RouteResponse
	transition *dto.StepTransitionResponse
	cancel     *dto.CancelResponse
	steps      []models.WorkflowStep
	err        error

	lastID       string
	lastRoute    dto.RouteDocumentRequest
	lastComplete dto.CompleteStepRequest
	lastForward  dto.ForwardStepRequest
	lastCancel   dto.CancelDocumentRequest
	lastInbox    dto.InboxQuery
	lastActor    models.Actor
}

func (s *workflowServiceStub) Route(ctx context.Context, documentID string, req dto.RouteDocumentRequest, actor models.Actor) (*dto.RouteResponse, error) {
	s.lastID, s.lastRoute, s.lastActor = documentID, req, actor
	return s.route, s.err
}

func (s *workflowServiceStub) ListSteps(ctx context.Context, documentID string, actor models.Actor) ([]models.WorkflowStep, error) {
	s.lastID, s.lastActor = documentID, actor
	return s.steps, s.err
}

func (s *workflowServiceStub) CompleteStep(ctx context.Context, stepID string, req dto.CompleteStepRequest, actor models.Actor) (*dto.StepTransitionResponse, error) {
	s.lastID, s.lastComplete, s.lastActor = stepID, req, actor
	return s.transition, s.err
}

func (s *workflowServiceStub) Forward(ctx context.Context, stepID string, req dto.ForwardStepRequest, actor models.Actor) (*dto.RouteResponse, error) {
	s.lastID, s.lastForward, s.lastActor = stepID, req, actor
	return s.route, s.err
}

func (s *workflowServiceStub) Inbox(ctx context.Context, query dto.InboxQuery, actor models.Actor) ([]models.WorkflowStep, error) {
	s.lastInbox, s.lastActor = query, actor
	return s.steps, s.err
}

func (s *workflowServiceStub) Cancel(ctx context.Context, documentID string, req dto.CancelDocumentRequest, actor models.Actor) (*dto.CancelResponse, error) {
	s.lastID, s.lastCancel, s.lastActor = documentID, req, actor
	return s.cancel, s.err
}

type registerConfigurationServiceStub struct {
	items     []models.RegisterConfiguration
	cfg       *models.RegisterConfiguration
	removed   bool
	err       error
	lastQuery dto.RegisterConfigurationQuery
	lastReq   dto.CreateRegisterConfigurationRequest
	lastID    string
}

func (s *registerConfigurationServiceStub) List(ctx context.Context, query dto.RegisterConfigurationQuery, actor models.Actor) ([]models.RegisterConfiguration, error) {
	s.lastQuery = query
	return s.items, s.err
}

func (s *registerConfigurationServiceStub) Get(ctx context.Context, id string, actor models.Actor) (*models.RegisterConfiguration, error) {
	s.lastID = id
	return s.cfg, s.err
}

func (s *registerConfigurationServiceStub) Create(ctx context.Context, req dto.CreateRegisterConfigurationRequest, actor models.Actor) (*models.RegisterConfiguration, error) {
	s.lastReq = req
	return s.cfg, s.err
}

func (s *registerConfigurationServiceStub) Update(ctx context.Context, id string, req dto.UpdateRegisterConfigurationRequest, actor models.Actor) (*models.RegisterConfiguration, error) {
	s.lastID = id
	return s.cfg, s.err
}

func (s *registerConfigurationServiceStub) Delete(ctx context.Context, id string, actor models.Actor) (bool, error) {
	s.lastID = id
	return s.removed, s.err
}
