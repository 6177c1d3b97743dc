package model

import "time"

// Role is the authorization role carried by a principal and embedded in its
// access token.
type Role string

const (
	RolePlatformAdmin  Role = "PLATFORM_ADMIN"  // operates the platform, not bound to a tenant
	RoleTenantAdmin    Role = "TENANT_ADMIN"    // agency owner, created at registration
	RoleTenantOperator Role = "TENANT_OPERATOR" // agency staff, created by a tenant admin
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RolePlatformAdmin, RoleTenantAdmin, RoleTenantOperator:
		return true
	}
	return false
}

// Principal mirrors the `principals` table.  One row per human user.
//
// Fields:
//
//	ID              – primary key.
//	Email           – login identity, stored lower-cased and globally unique.
//	Name            – display name.
//	PasswordHash    – bcrypt hash of the password.
//	Role            – one of the Role constants.
//	TenantID        – owning tenant; nil only for RolePlatformAdmin.
//	TokenGeneration – bumped on logout, deactivation or forced sign-out.  A
//	                  refresh token carrying an older generation is dead.
//	RefreshHash     – SHA-256 hex of the only refresh token that may be
//	                  rotated; empty when none is outstanding.
//	IsActive        – deactivated principals cannot log in or refresh.
//	LastLoginAt     – last successful login.
type Principal struct {
	ID              uint64
	Email           string
	Name            string
	PasswordHash    string
	Role            Role
	TenantID        *uint64
	TokenGeneration uint64
	RefreshHash     string
	IsActive        bool
	LastLoginAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// TenantRef returns the owning tenant id, or 0 when the principal is not
// bound to a tenant.
func (p Principal) TenantRef() uint64 {
	if p.TenantID == nil {
		return 0
	}
	return *p.TenantID
}
