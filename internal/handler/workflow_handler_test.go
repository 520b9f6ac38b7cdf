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

func pendingStep(id, userID string) models.WorkflowStep {
	return models.WorkflowStep{ID: id, DocumentID: "doc-1", ToUserID: &userID, StepStatus: models.StepStatusPending, CreatedBy: "creator"}
}

func TestWorkflowHandlerRouteFansOut(t *testing.T) {
	workflow := &workflowServiceStub{route: &dto.RouteResponse{
		DocumentID:     "doc-1",
		Steps:          []models.WorkflowStep{pendingStep("s1", "user-a"), pendingStep("s2", "user-b")},
		DocumentStatus: models.DocumentStatusInWork,
	}}
	handler := NewWorkflowHandler(workflow)
	c, w := newTestContext(t, http.MethodPost, "/documents/doc-1/route", map[string]interface{}{
		"recipients": []map[string]string{{"toUserId": "user-a"}, {"toUserId": "user-b"}},
		"notes":      "please review",
	}, registrarClaims)
	c.Params = gin.Params{{Key: "id", Value: "doc-1"}}

	handler.Route(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "doc-1", workflow.lastID)
	require.Len(t, workflow.lastRoute.Recipients, 2)
	assert.Equal(t, "user-b", *workflow.lastRoute.Recipients[1].ToUserID)
	data := decodeEnvelope(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "in_work", data["documentStatus"])
	assert.Len(t, data["steps"], 2)
}

func TestWorkflowHandlerRouteInvalidBody(t *testing.T) {
	workflow := &workflowServiceStub{}
	handler := NewWorkflowHandler(workflow)
	c, w := newTestContext(t, http.MethodPost, "/documents/doc-1/route", "[]", registrarClaims)
	c.Params = gin.Params{{Key: "id", Value: "doc-1"}}

	handler.Route(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, workflow.lastID)
}

func TestWorkflowHandlerCompleteStep(t *testing.T) {
	step := pendingStep("s1", "user-a")
	step.StepStatus = models.StepStatusCompleted
	action := models.StepActionResolved
	step.Action = &action
	workflow := &workflowServiceStub{transition: &dto.StepTransitionResponse{Step: &step, DocumentStatus: models.DocumentStatusResolved}}
	handler := NewWorkflowHandler(workflow)
	claims := &models.JWTClaims{UserID: "user-a", UnitID: "unit-2", Role: models.RoleStaff}
	c, w := newTestContext(t, http.MethodPost, "/steps/s1/complete", dto.CompleteStepRequest{Action: "resolved"}, claims)
	c.Params = gin.Params{{Key: "id", Value: "s1"}}

	handler.CompleteStep(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "s1", workflow.lastID)
	assert.Equal(t, "resolved", workflow.lastComplete.Action)
	assert.Equal(t, "user-a", workflow.lastActor.UserID)
	data := decodeEnvelope(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "resolved", data["documentStatus"])
	assert.Equal(t, "completed", data["step"].(map[string]interface{})["stepStatus"])
}

func TestWorkflowHandlerCompleteStepErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{name: "not recipient", err: appErrors.Clone(appErrors.ErrForbidden, "step is not addressed to the caller"), status: http.StatusForbidden, code: "FORBIDDEN"},
		{name: "already completed", err: appErrors.Clone(appErrors.ErrInvalidTransition, "step is not pending"), status: http.StatusConflict, code: "INVALID_TRANSITION"},
		{name: "missing", err: appErrors.Clone(appErrors.ErrNotFound, "step not found"), status: http.StatusNotFound, code: "NOT_FOUND"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := NewWorkflowHandler(&workflowServiceStub{err: tc.err})
			c, w := newTestContext(t, http.MethodPost, "/steps/s1/complete", dto.CompleteStepRequest{Action: "resolved"}, registrarClaims)
			c.Params = gin.Params{{Key: "id", Value: "s1"}}

			handler.CompleteStep(c)

			require.Equal(t, tc.status, w.Code)
			assert.Equal(t, tc.code, errorCode(t, w))
		})
	}
}

func TestWorkflowHandlerCancel(t *testing.T) {
	workflow := &workflowServiceStub{cancel: &dto.CancelResponse{DocumentID: "doc-1", CancelledAll: true, DocumentStatus: models.DocumentStatusCancelled}}
	handler := NewWorkflowHandler(workflow)
	c, w := newTestContext(t, http.MethodPost, "/documents/doc-1/cancel", dto.CancelDocumentRequest{CancelAll: true, Notes: "withdrawn"}, registrarClaims)
	c.Params = gin.Params{{Key: "id", Value: "doc-1"}}

	handler.Cancel(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, workflow.lastCancel.CancelAll)
	assert.Equal(t, "withdrawn", workflow.lastCancel.Notes)
	data := decodeEnvelope(t, w)["data"].(map[string]interface{})
	assert.Equal(t, true, data["cancelledAll"])
	assert.Equal(t, "cancelled", data["documentStatus"])
}

func TestWorkflowHandlerCancelWithoutBodyCancelsOwnBranch(t *testing.T) {
	workflow := &workflowServiceStub{cancel: &dto.CancelResponse{DocumentID: "doc-1", DocumentStatus: models.DocumentStatusInWork}}
	handler := NewWorkflowHandler(workflow)
	c, w := newTestContext(t, http.MethodPost, "/documents/doc-1/cancel", nil, registrarClaims)
	c.Params = gin.Params{{Key: "id", Value: "doc-1"}}

	handler.Cancel(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, workflow.lastCancel.CancelAll)
}

func TestWorkflowHandlerCancelForbidden(t *testing.T) {
	handler := NewWorkflowHandler(&workflowServiceStub{err: appErrors.Clone(appErrors.ErrForbidden, "only the creator can cancel the whole document")})
	claims := &models.JWTClaims{UserID: "user-a", UnitID: "unit-2", Role: models.RoleStaff}
	c, w := newTestContext(t, http.MethodPost, "/documents/doc-1/cancel", dto.CancelDocumentRequest{CancelAll: true}, claims)
	c.Params = gin.Params{{Key: "id", Value: "doc-1"}}

	handler.Cancel(c)

	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestWorkflowHandlerForward(t *testing.T) {
	workflow := &workflowServiceStub{route: &dto.RouteResponse{DocumentID: "doc-1", Steps: []models.WorkflowStep{pendingStep("s3", "user-c")}, DocumentStatus: models.DocumentStatusInWork}}
	handler := NewWorkflowHandler(workflow)
	c, w := newTestContext(t, http.MethodPost, "/steps/s1/forward", map[string]interface{}{
		"recipients": []map[string]string{{"toDepartmentId": "dept-finance"}},
	}, registrarClaims)
	c.Params = gin.Params{{Key: "id", Value: "s1"}}

	handler.Forward(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "s1", workflow.lastID)
	require.Len(t, workflow.lastForward.Recipients, 1)
	assert.Equal(t, "dept-finance", *workflow.lastForward.Recipients[0].ToDepartmentID)
}

func TestWorkflowHandlerListStepsAndInbox(t *testing.T) {
	workflow := &workflowServiceStub{steps: []models.WorkflowStep{pendingStep("s1", "creator")}}
	handler := NewWorkflowHandler(workflow)

	c, w := newTestContext(t, http.MethodGet, "/documents/doc-1/steps", nil, registrarClaims)
	c.Params = gin.Params{{Key: "id", Value: "doc-1"}}
	handler.ListSteps(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "doc-1", workflow.lastID)

	c, w = newTestContext(t, http.MethodGet, "/steps/inbox?limit=5&offset=10", nil, registrarClaims)
	handler.Inbox(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, dto.InboxQuery{Limit: 5, Offset: 10}, workflow.lastInbox)
	assert.Len(t, decodeEnvelope(t, w)["data"], 1)
}
