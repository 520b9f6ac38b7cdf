package models

import "github.com/golang-jwt/jwt/v5"

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleSuperAdmin UserRole = "SUPERADMIN"
	RoleAdmin      UserRole = "ADMIN"
	RoleRegistrar  UserRole = "REGISTRAR"
	RoleStaff      UserRole = "STAFF"
)

// JWTClaims represents the JWT payload issued by the external identity provider.
type JWTClaims struct {
	UserID   string   `json:"user_id"`
	UnitID   string   `json:"unit_id"`
	Role     UserRole `json:"role"`
	Email    string   `json:"email,omitempty"`
	FullName string   `json:"full_name,omitempty"`
	jwt.RegisteredClaims
}

// IsAdmin reports whether the caller has organization wide rights.
func (c *JWTClaims) IsAdmin() bool {
	return c != nil && (c.Role == RoleSuperAdmin || c.Role == RoleAdmin)
}

// Actor is the minimal identity the registry services act on behalf of.
type Actor struct {
	UserID string
	UnitID string
	Role   UserRole
}

// IsAdmin reports whether the actor has organization wide rights.
func (a Actor) IsAdmin() bool {
	return a.Role == RoleSuperAdmin || a.Role == RoleAdmin
}

// ActorFromClaims converts token claims to an Actor.
func ActorFromClaims(c *JWTClaims) Actor {
	if c == nil {
		return Actor{}
	}
	return Actor{UserID: c.UserID, UnitID: c.UnitID, Role: c.Role}
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
