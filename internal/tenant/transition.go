package tenant

import (
	"time"

	"github.com/iliyamo/agency-booking/internal/apperr"
	"github.com/iliyamo/agency-booking/internal/model"
)

// allowed lists the explicit status changes.  trial -> expired only records
// history; the trial window already decides access on its own.
var allowed = map[model.TenantStatus][]model.TenantStatus{
	model.TenantTrial:     {model.TenantActive, model.TenantExpired},
	model.TenantExpired:   {model.TenantActive},
	model.TenantActive:    {model.TenantSuspended},
	model.TenantSuspended: {model.TenantActive},
}

// CanTransition reports whether from -> to is an explicit transition.
func CanTransition(from, to model.TenantStatus) bool {
	for _, s := range allowed[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition returns a copy of t moved to status to.  The trial expiry only
// survives in trial and expired status.
func Transition(t model.Tenant, to model.TenantStatus, now time.Time) (model.Tenant, error) {
	if !to.Valid() {
		return t, apperr.BadRequestf("unknown tenant status %q", to)
	}
	if !CanTransition(t.Status, to) {
		return t, apperr.BadRequestf("cannot change tenant status from %s to %s", t.Status, to)
	}
	next := t
	next.Status = to
	if to == model.TenantActive || to == model.TenantSuspended {
		next.TrialExpiresAt = nil
	}
	next.UpdatedAt = now.UTC()
	return next, nil
}
