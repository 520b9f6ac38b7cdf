package dto

import "time"

// CreateDocumentRequest registers a document or, with Draft set, stores it unnumbered.
type CreateDocumentRequest struct {
	UnitID               string     `json:"unitId" validate:"omitempty,max=64"`
	ConfigurationID      string     `json:"configurationId" validate:"required"`
	DocumentType         string     `json:"documentType" validate:"required,oneof=incoming outgoing internal"`
	RegistrationYear     int        `json:"registrationYear" validate:"omitempty,min=1900,max=9999"`
	Subject              string     `json:"subject" validate:"required,max=500"`
	Content              string     `json:"content"`
	Correspondent        string     `json:"correspondent" validate:"omitempty,max=255"`
	ExternalReference    string     `json:"externalReference" validate:"omitempty,max=255"`
	Priority             string     `json:"priority" validate:"omitempty,oneof=low normal high urgent"`
	DueDate              *time.Time `json:"dueDate"`
	AssignedUserID       *string    `json:"assignedUserId"`
	AssignedDepartmentID *string    `json:"assignedDepartmentId"`
	Draft                bool       `json:"draft"`
}

// UpdateDocumentRequest is a partial update; nil fields are left untouched.
type UpdateDocumentRequest struct {
	ConfigurationID      *string    `json:"configurationId"`
	DocumentType         *string    `json:"documentType" validate:"omitempty,oneof=incoming outgoing internal"`
	RegistrationYear     *int       `json:"registrationYear" validate:"omitempty,min=1900,max=9999"`
	RegistrationNumber   *int64     `json:"registrationNumber"`
	Subject              *string    `json:"subject" validate:"omitempty,min=1,max=500"`
	Content              *string    `json:"content"`
	Correspondent        *string    `json:"correspondent" validate:"omitempty,max=255"`
	ExternalReference    *string    `json:"externalReference" validate:"omitempty,max=255"`
	Priority             *string    `json:"priority" validate:"omitempty,oneof=low normal high urgent"`
	DueDate              *time.Time `json:"dueDate"`
	AssignedUserID       *string    `json:"assignedUserId"`
	AssignedDepartmentID *string    `json:"assignedDepartmentId"`
}

// SearchDocumentsRequest is the search facade filter.
type SearchDocumentsRequest struct {
	Types              []string   `json:"types" validate:"omitempty,dive,oneof=incoming outgoing internal"`
	Statuses           []string   `json:"statuses" validate:"omitempty,dive,oneof=draft registered in_work resolved archived cancelled"`
	Priorities         []string   `json:"priorities" validate:"omitempty,dive,oneof=low normal high urgent"`
	UnitID             string     `json:"unitId"`
	ConfigurationID    string     `json:"configurationId"`
	RegistrationYear   int        `json:"registrationYear" validate:"omitempty,min=1900,max=9999"`
	RegistrationNumber int64      `json:"registrationNumber" validate:"omitempty,min=1"`
	CreatedFrom        *time.Time `json:"createdFrom"`
	CreatedTo          *time.Time `json:"createdTo"`
	Text               string     `json:"text" validate:"omitempty,max=200"`
	Page               int        `json:"page" validate:"omitempty,min=1,max=10000"`
	PageSize           int        `json:"pageSize" validate:"omitempty,min=1"`
	SortBy             string     `json:"sortBy" validate:"omitempty,oneof=created_at registered_at registration_number subject priority due_date status"`
	SortOrder          string     `json:"sortOrder" validate:"omitempty,oneof=asc desc ASC DESC"`
}

// ExportRegisterRequest selects the register journal to render.
type ExportRegisterRequest struct {
	Format          string `form:"format" validate:"omitempty,oneof=csv pdf"`
	ConfigurationID string `form:"configurationId" validate:"required"`
	Year            int    `form:"year" validate:"omitempty,min=1900,max=9999"`
}
