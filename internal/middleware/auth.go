package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/agency-booking/internal/apperr"
	"github.com/iliyamo/agency-booking/internal/auth"
	"github.com/iliyamo/agency-booking/internal/model"
)

const identityKey = "identity"

var errMissingBearer = apperr.Unauthenticatedf("missing bearer token")

// Authenticate validates a Bearer access token and stores the caller's
// auth.Identity in the context.  No store is consulted: an access token is
// trusted until it expires.
func Authenticate(tokens *auth.Manager) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			raw, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || strings.TrimSpace(raw) == "" {
				return apperr.Respond(c, errMissingBearer)
			}
			claims, err := tokens.Verify(strings.TrimSpace(raw))
			if err != nil {
				return apperr.Respond(c, err)
			}
			id, err := auth.IdentityFromClaims(claims)
			if err != nil {
				return apperr.Respond(c, err)
			}
			c.Set(identityKey, id)
			return next(c)
		}
	}
}

// IdentityFrom returns the caller stored by Authenticate.
func IdentityFrom(c echo.Context) (auth.Identity, bool) {
	id, ok := c.Get(identityKey).(auth.Identity)
	return id, ok
}

// RequireRole rejects callers whose role is not listed.  Platform admins
// pass every role check.
func RequireRole(roles ...model.Role) echo.MiddlewareFunc {
	allowed := make(map[model.Role]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, ok := IdentityFrom(c)
			if !ok {
				return apperr.Respond(c, errMissingBearer)
			}
			if !id.IsPlatformAdmin() && !allowed[id.Role] {
				return apperr.Respond(c, apperr.Forbiddenf("insufficient role"))
			}
			return next(c)
		}
	}
}
