package models

import "time"

// RegisterConfiguration is a named numbering policy documents are numbered against.
// A nil UnitID marks an organization wide register.
type RegisterConfiguration struct {
	ID             string    `db:"id" json:"id"`
	Name           string    `db:"name" json:"name"`
	UnitID         *string   `db:"unit_id" json:"unitId,omitempty"`
	Prefix         string    `db:"prefix" json:"prefix"`
	StartingNumber int64     `db:"starting_number" json:"startingNumber"`
	ResetsAnnually bool      `db:"resets_annually" json:"resetsAnnually"`
	Active         bool      `db:"active" json:"active"`
	CreatedBy      string    `db:"created_by" json:"createdBy"`
	UpdatedBy      *string   `db:"updated_by" json:"updatedBy,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time `db:"updated_at" json:"updatedAt"`
}

// ScopeYear returns the counter partition for a registration year.
// Perpetual registers share a single counter stored under year 0.
func (c *RegisterConfiguration) ScopeYear(year int) int {
	if c == nil || !c.ResetsAnnually {
		return 0
	}
	return year
}

// RegisterConfigurationFilter constrains configuration listings.
type RegisterConfigurationFilter struct {
	UnitID        string
	IncludeGlobal bool
	ActiveOnly    bool
}
