package models

import (
	"fmt"
	"time"
)

// DocumentType enumerates correspondence directions.
type DocumentType string

const (
	DocumentTypeIncoming DocumentType = "incoming"
	DocumentTypeOutgoing DocumentType = "outgoing"
	DocumentTypeInternal DocumentType = "internal"
)

// Valid reports whether the type is one of the supported values.
func (t DocumentType) Valid() bool {
	switch t {
	case DocumentTypeIncoming, DocumentTypeOutgoing, DocumentTypeInternal:
		return true
	}
	return false
}

// DocumentStatus is the aggregate lifecycle state of a document.
type DocumentStatus string

const (
	DocumentStatusDraft      DocumentStatus = "draft"
	DocumentStatusRegistered DocumentStatus = "registered"
	DocumentStatusInWork     DocumentStatus = "in_work"
	DocumentStatusResolved   DocumentStatus = "resolved"
	DocumentStatusArchived   DocumentStatus = "archived"
	DocumentStatusCancelled  DocumentStatus = "cancelled"
)

// Terminal reports whether no further workflow transition is possible.
func (s DocumentStatus) Terminal() bool {
	return s == DocumentStatusArchived || s == DocumentStatusCancelled
}

// Routable reports whether new workflow steps may be attached.
func (s DocumentStatus) Routable() bool {
	switch s {
	case DocumentStatusRegistered, DocumentStatusInWork, DocumentStatusResolved:
		return true
	}
	return false
}

// DocumentPriority ranks handling urgency.
type DocumentPriority string

const (
	PriorityLow    DocumentPriority = "low"
	PriorityNormal DocumentPriority = "normal"
	PriorityHigh   DocumentPriority = "high"
	PriorityUrgent DocumentPriority = "urgent"
)

// Document is a piece of registered correspondence.
type Document struct {
	ID                   string           `db:"id" json:"id"`
	UnitID               string           `db:"unit_id" json:"unitId"`
	ConfigurationID      string           `db:"configuration_id" json:"configurationId"`
	DocumentType         DocumentType     `db:"document_type" json:"documentType"`
	RegistrationYear     int              `db:"registration_year" json:"registrationYear"`
	RegistrationNumber   *int64           `db:"registration_number" json:"registrationNumber,omitempty"`
	NumberScopeYear      *int             `db:"number_scope_year" json:"-"`
	Subject              string           `db:"subject" json:"subject"`
	Content              string           `db:"content" json:"content"`
	Correspondent        string           `db:"correspondent" json:"correspondent"`
	ExternalReference    string           `db:"external_reference" json:"externalReference"`
	Priority             DocumentPriority `db:"priority" json:"priority"`
	DueDate              *time.Time       `db:"due_date" json:"dueDate,omitempty"`
	AssignedUserID       *string          `db:"assigned_user_id" json:"assignedUserId,omitempty"`
	AssignedDepartmentID *string          `db:"assigned_department_id" json:"assignedDepartmentId,omitempty"`
	Status               DocumentStatus   `db:"status" json:"status"`
	RegisteredAt         *time.Time       `db:"registered_at" json:"registeredAt,omitempty"`
	CreatedBy            string           `db:"created_by" json:"createdBy"`
	UpdatedBy            *string          `db:"updated_by" json:"updatedBy,omitempty"`
	CreatedAt            time.Time        `db:"created_at" json:"createdAt"`
	UpdatedAt            time.Time        `db:"updated_at" json:"updatedAt"`
	DeletedAt            *time.Time       `db:"deleted_at" json:"-"`
}

// Registered reports whether a number has been stamped on the document.
func (d *Document) Registered() bool {
	return d != nil && d.RegistrationNumber != nil
}

// RegistrationLabel formats the number as printed on the register, e.g. "IN-12/2025".
func (d *Document) RegistrationLabel(prefix string) string {
	if !d.Registered() {
		return ""
	}
	if prefix == "" {
		return fmt.Sprintf("%d/%d", *d.RegistrationNumber, d.RegistrationYear)
	}
	return fmt.Sprintf("%s-%d/%d", prefix, *d.RegistrationNumber, d.RegistrationYear)
}

// DocumentFilter describes the read side search criteria.
type DocumentFilter struct {
	Types              []DocumentType
	Statuses           []DocumentStatus
	Priorities         []DocumentPriority
	UnitID             string
	ConfigurationID    string
	RegistrationYear   int
	RegistrationNumber int64
	CreatedFrom        *time.Time
	CreatedTo          *time.Time
	Text               string
	// VisibleTo restricts results to documents the user may read; empty means unrestricted.
	VisibleTo *Actor
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
