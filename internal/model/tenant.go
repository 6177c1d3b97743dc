package model

import "time"

// TenantStatus is the stored lifecycle status of an agency.  It is a hint:
// whether the agency may use the system is always recomputed from the status
// and the trial expiry (see package tenant).
type TenantStatus string

const (
	TenantTrial     TenantStatus = "trial"
	TenantActive    TenantStatus = "active"
	TenantSuspended TenantStatus = "suspended"
	TenantExpired   TenantStatus = "expired" // history only, set after a trial ran out
)

// Valid reports whether s is a known status.
func (s TenantStatus) Valid() bool {
	switch s {
	case TenantTrial, TenantActive, TenantSuspended, TenantExpired:
		return true
	}
	return false
}

// Tenant mirrors the `tenants` table.  An agency is the unit of data
// isolation and subscription.  Usage counters are maintained by the quota
// gate; TripPeriod is the UTC month (YYYYMM) TripCount belongs to.
type Tenant struct {
	ID                    uint64
	Name                  string
	ContactEmail          string
	Phone                 string
	CountryCode           string
	PlanID                uint64
	Status                TenantStatus
	TrialExpiresAt        *time.Time
	EmailVerified         bool
	VerificationHash      string
	VerificationExpiresAt *time.Time
	VehicleCount          int
	OperatorCount         int
	TripCount             int
	TripPeriod            int
	CreatedAt             time.Time
	UpdatedAt             time.Time
}
