package models

import "time"

// StepStatus is the two state lifecycle of a routing branch.
type StepStatus string

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusCompleted StepStatus = "completed"
)

// StepAction is the terminal outcome recorded when a step completes.
type StepAction string

const (
	StepActionSent      StepAction = "sent"
	StepActionReceived  StepAction = "received"
	StepActionResolved  StepAction = "resolved"
	StepActionReturned  StepAction = "returned"
	StepActionApproved  StepAction = "approved"
	StepActionRejected  StepAction = "rejected"
	StepActionCancelled StepAction = "cancelled"
)

// ParseStepAction validates a raw action value.
func ParseStepAction(raw string) (StepAction, bool) {
	action := StepAction(raw)
	switch action {
	case StepActionSent, StepActionReceived, StepActionResolved, StepActionReturned,
		StepActionApproved, StepActionRejected, StepActionCancelled:
		return action, true
	}
	return "", false
}

// Positive reports whether the action closes the matter favourably.
func (a StepAction) Positive() bool {
	return a == StepActionResolved || a == StepActionApproved
}

// Negative reports whether the action sends the matter back unresolved.
func (a StepAction) Negative() bool {
	return a == StepActionRejected || a == StepActionReturned
}

// WorkflowStep is one routing assignment of a document to a recipient.
type WorkflowStep struct {
	ID              string      `db:"id" json:"id"`
	DocumentID      string      `db:"document_id" json:"documentId"`
	ToUserID        *string     `db:"to_user_id" json:"toUserId,omitempty"`
	ToDepartmentID  *string     `db:"to_department_id" json:"toDepartmentId,omitempty"`
	StepStatus      StepStatus  `db:"step_status" json:"stepStatus"`
	Action          *StepAction `db:"action" json:"action,omitempty"`
	Notes           *string     `db:"notes" json:"notes,omitempty"`
	CompletionNotes *string     `db:"completion_notes" json:"completionNotes,omitempty"`
	CreatedBy       string      `db:"created_by" json:"createdBy"`
	CreatedAt       time.Time   `db:"created_at" json:"createdAt"`
	CompletedBy     *string     `db:"completed_by" json:"completedBy,omitempty"`
	CompletedAt     *time.Time  `db:"completed_at" json:"completedAt,omitempty"`
}

// Pending reports whether the branch is still open.
func (s *WorkflowStep) Pending() bool {
	return s.StepStatus == StepStatusPending
}

// AddressedTo reports whether the step names the user directly.
func (s *WorkflowStep) AddressedTo(userID string) bool {
	return s.ToUserID != nil && *s.ToUserID == userID
}

// InboxFilter selects pending steps addressed to a user or their departments.
type InboxFilter struct {
	UserID        string
	DepartmentIDs []string
	Limit         int
	Offset        int
}
