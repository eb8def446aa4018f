package models

// UserRole represents the roles an authenticated principal may carry.
type UserRole string

const (
	RoleClient       UserRole = "CLIENT"
	RolePhotographer UserRole = "PHOTOGRAPHER"
	RoleAdmin        UserRole = "ADMIN"
)

// Valid reports whether the role is one the API recognises.
func (r UserRole) Valid() bool {
	switch r {
	case RoleClient, RolePhotographer, RoleAdmin:
		return true
	}
	return false
}

// Principal is the authenticated caller resolved from the access token.
type Principal struct {
	UserID string
	Role   UserRole
}

// IsAdmin reports whether the caller holds the admin role.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
