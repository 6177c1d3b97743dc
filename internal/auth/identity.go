package auth

import (
	"github.com/iliyamo/agency-booking/internal/apperr"
	"github.com/iliyamo/agency-booking/internal/model"
)

// Identity is the authenticated caller as resolved from a verified access
// token.  TenantID is 0 for platform admins.
type Identity struct {
	PrincipalID uint64
	Email       string
	Role        model.Role
	TenantID    uint64
}

// IdentityFromClaims converts verified access claims.
func IdentityFromClaims(c *AccessClaims) (Identity, error) {
	id, err := c.PrincipalID()
	if err != nil {
		return Identity{}, errInvalidAccess
	}
	return Identity{PrincipalID: id, Email: c.Email, Role: c.Role, TenantID: c.TenantID}, nil
}

// IsPlatformAdmin reports whether the caller may cross tenant boundaries.
func (i Identity) IsPlatformAdmin() bool { return i.Role == model.RolePlatformAdmin }

// ResolveTenant returns the tenant a request operates on.  requested is a
// tenant id taken from the request (0 when absent).  Only platform admins
// may name a tenant other than their own; everybody else is pinned to the
// tenant in their token.
func (i Identity) ResolveTenant(requested uint64) (uint64, error) {
	if i.IsPlatformAdmin() {
		if requested == 0 {
			return 0, apperr.BadRequestf("tenant id required")
		}
		return requested, nil
	}
	if i.TenantID == 0 {
		return 0, apperr.Forbiddenf("principal not associated with any tenant")
	}
	if requested != 0 && requested != i.TenantID {
		return 0, apperr.Forbiddenf("access denied: cannot access other tenant data")
	}
	return i.TenantID, nil
}
