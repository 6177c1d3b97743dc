package model

import "github.com/iliyamo/agency-booking/internal/apperr"

// Store errors returned by every persistence backend (MySQL repositories and
// the in-memory store) so that services can classify them without knowing
// which backend is wired.
var (
	ErrPrincipalNotFound = apperr.NotFoundf("principal not found")
	ErrTenantNotFound    = apperr.NotFoundf("tenant not found")
	ErrPlanNotFound      = apperr.NotFoundf("plan not found")
	ErrEmailExists       = apperr.Conflictf("email already registered")
)
