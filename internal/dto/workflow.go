package dto

import "github.com/noah-isme/registry-api/internal/models"

// RecipientRequest names a routing target; at least one id must be set.
type RecipientRequest struct {
	ToUserID       *string `json:"toUserId"`
	ToDepartmentID *string `json:"toDepartmentId"`
}

// RouteDocumentRequest routes a document to one recipient or fans out to several.
type RouteDocumentRequest struct {
	ToUserID       *string            `json:"toUserId"`
	ToDepartmentID *string            `json:"toDepartmentId"`
	Recipients     []RecipientRequest `json:"recipients" validate:"omitempty,max=50,dive"`
	Notes          string             `json:"notes" validate:"omitempty,max=2000"`
}

// CompleteStepRequest records the outcome of a pending step.
type CompleteStepRequest struct {
	Action string `json:"action" validate:"required"`
	Notes  string `json:"notes" validate:"omitempty,max=2000"`
}

// ForwardStepRequest completes the caller's step as sent and routes onwards.
type ForwardStepRequest struct {
	Recipients []RecipientRequest `json:"recipients" validate:"required,min=1,max=50,dive"`
	Notes      string             `json:"notes" validate:"omitempty,max=2000"`
}

// CancelDocumentRequest cancels the whole document or only the caller's branch.
type CancelDocumentRequest struct {
	CancelAll bool   `json:"cancelAll"`
	Notes     string `json:"notes" validate:"omitempty,max=2000"`
}

// InboxQuery pages the caller's pending steps.
type InboxQuery struct {
	Limit  int `form:"limit"`
	Offset int `form:"offset"`
}

// StepTransitionResponse is returned after completing a step.
type StepTransitionResponse struct {
	Step           *models.WorkflowStep  `json:"step"`
	DocumentStatus models.DocumentStatus `json:"documentStatus"`
}

// RouteResponse is returned after routing or forwarding.
type RouteResponse struct {
	DocumentID     string                `json:"documentId"`
	Steps          []models.WorkflowStep `json:"steps"`
	DocumentStatus models.DocumentStatus `json:"documentStatus"`
}

// CancelResponse describes the outcome of a cancellation.
type CancelResponse struct {
	DocumentID     string                `json:"documentId"`
	CancelledAll   bool                  `json:"cancelledAll"`
	DocumentStatus models.DocumentStatus `json:"documentStatus"`
}
