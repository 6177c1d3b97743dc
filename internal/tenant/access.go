// Package tenant decides whether an agency may currently use the system.
//
// Every function here is pure: it takes the tenant record by value and the
// evaluation time, and never writes anything back.  The stored status is a
// hint; the trial expiry timestamp is what actually ends a trial, so no
// background job is needed to flip tenants to expired on schedule.
package tenant

import (
	"time"

	"github.com/iliyamo/agency-booking/internal/apperr"
	"github.com/iliyamo/agency-booking/internal/model"
)

// Denial reasons.
const (
	ReasonSuspended            = "account suspended"
	ReasonTrialExpired         = "trial expired"
	ReasonVerificationRequired = "verification required"
	ReasonUnknownStatus        = "account unavailable"
)

// Decision is the outcome of CanAccess.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// TrialExpired reports whether the tenant's trial window has closed at now.
// Only trial (and the historical expired) status are subject to the trial
// window; a trial without an expiry is treated as closed.
func TrialExpired(t model.Tenant, now time.Time) bool {
	if t.Status != model.TenantTrial && t.Status != model.TenantExpired {
		return false
	}
	if t.TrialExpiresAt == nil {
		return true
	}
	return now.After(*t.TrialExpiresAt)
}

// CanAccess evaluates the tenant at now.
func CanAccess(t model.Tenant, now time.Time) Decision {
	switch {
	case t.Status == model.TenantSuspended:
		return Decision{Reason: ReasonSuspended}
	case TrialExpired(t, now):
		return Decision{Reason: ReasonTrialExpired}
	case !t.Status.Valid():
		return Decision{Reason: ReasonUnknownStatus}
	}
	return Decision{Allowed: true}
}

// CheckAccess is CanAccess as an error: nil when allowed, Forbidden with the
// denial reason otherwise.
func CheckAccess(t model.Tenant, now time.Time) error {
	d := CanAccess(t, now)
	if d.Allowed {
		return nil
	}
	return apperr.Forbiddenf("%s", d.Reason)
}

// RequireEmailVerified guards subscription activation: the billing contact
// must have confirmed their address first, whatever the trial state.
func RequireEmailVerified(t model.Tenant) error {
	if !t.EmailVerified {
		return apperr.Forbiddenf("%s", ReasonVerificationRequired)
	}
	return nil
}
