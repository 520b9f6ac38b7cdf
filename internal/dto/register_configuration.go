package dto

// CreateRegisterConfigurationRequest is the payload for creating a register.
type CreateRegisterConfigurationRequest struct {
	Name           string  `json:"name" validate:"required,max=120"`
	UnitID         *string `json:"unitId" validate:"omitempty,max=64"`
	Prefix         string  `json:"prefix" validate:"omitempty,max=16"`
	StartingNumber int64   `json:"startingNumber" validate:"omitempty,min=1"`
	ResetsAnnually bool    `json:"resetsAnnually"`
}

// UpdateRegisterConfigurationRequest carries a full replacement of editable fields.
type UpdateRegisterConfigurationRequest struct {
	Name           string  `json:"name" validate:"required,max=120"`
	UnitID         *string `json:"unitId" validate:"omitempty,max=64"`
	Prefix         string  `json:"prefix" validate:"omitempty,max=16"`
	StartingNumber int64   `json:"startingNumber" validate:"required,min=1"`
	ResetsAnnually bool    `json:"resetsAnnually"`
	Active         *bool   `json:"active"`
}

// RegisterConfigurationQuery filters configuration listings.
type RegisterConfigurationQuery struct {
	UnitID     string `form:"unitId"`
	ActiveOnly bool   `form:"activeOnly"`
}
