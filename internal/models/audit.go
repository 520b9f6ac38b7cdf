package models

import "time"

// AuditAction constants represent registry operations recorded in the audit trail.
const (
	AuditActionDocumentRegister = "DOCUMENT_REGISTER"
	AuditActionDocumentDraft    = "DOCUMENT_DRAFT"
	AuditActionDocumentUpdate   = "DOCUMENT_UPDATE"
	AuditActionDocumentDelete   = "DOCUMENT_DELETE"
	AuditActionDocumentArchive  = "DOCUMENT_ARCHIVE"
	AuditActionStepRoute        = "STEP_ROUTE"
	AuditActionStepComplete     = "STEP_COMPLETE"
	AuditActionCancelAll        = "DOCUMENT_CANCEL_ALL"
	AuditActionCancelBranch     = "BRANCH_CANCEL"
	AuditActionConfigCreate     = "REGISTER_CONFIG_CREATE"
	AuditActionConfigUpdate     = "REGISTER_CONFIG_UPDATE"
	AuditActionConfigDelete     = "REGISTER_CONFIG_DELETE"
)

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	UserID     *string   `db:"user_id" json:"user_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	OldValues  []byte    `db:"old_values" json:"old_values,omitempty"`
	NewValues  []byte    `db:"new_values" json:"new_values,omitempty"`
	RequestID  string    `db:"request_id" json:"request_id,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
