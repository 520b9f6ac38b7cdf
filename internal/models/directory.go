package models

// Department is an organizational unit that can receive routed documents.
type Department struct {
	ID     string `db:"id" json:"id"`
	UnitID string `db:"unit_id" json:"unitId"`
	Name   string `db:"name" json:"name"`
	Active bool   `db:"active" json:"active"`
}
