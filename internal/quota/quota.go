// Package quota ties a tenant's live resource counts to the ceilings of its
// subscribed plan.
//
// Check is a pure comparison used for fast rejection and for reporting.  The
// authoritative decision is Gate.Reserve, which performs the increment as a
// single conditional update in the store: two requests racing for the last
// free slot cannot both win.
package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/iliyamo/agency-booking/internal/apperr"
	"github.com/iliyamo/agency-booking/internal/model"
)

// Kind names a plan-limited resource.
type Kind string

const (
	Vehicles  Kind = "vehicles"
	Operators Kind = "operators"
	Trips     Kind = "trips"
)

// Valid reports whether k is a plan-limited resource.
func (k Kind) Valid() bool {
	switch k {
	case Vehicles, Operators, Trips:
		return true
	}
	return false
}

// Period returns the UTC calendar month (YYYYMM) trips are counted in.
func Period(t time.Time) int {
	u := t.UTC()
	return u.Year()*100 + int(u.Month())
}

// Limit returns the plan ceiling for k.
func Limit(p model.Plan, k Kind) int {
	switch k {
	case Vehicles:
		return p.MaxVehicles
	case Operators:
		return p.MaxOperators
	case Trips:
		return p.MaxTripsPerPeriod
	}
	return 0
}

// Usage returns the tenant's current count for k.  A trip counter recorded
// for an earlier period reads as zero.
func Usage(t model.Tenant, k Kind, now time.Time) int {
	switch k {
	case Vehicles:
		return t.VehicleCount
	case Operators:
		return t.OperatorCount
	case Trips:
		if t.TripPeriod != Period(now) {
			return 0
		}
		return t.TripCount
	}
	return 0
}

// Result is the outcome of a quota evaluation.
type Result struct {
	Kind    Kind `json:"kind"`
	Allowed bool `json:"allowed"`
	Usage   int  `json:"usage"`
	Limit   int  `json:"limit"`
}

// Err returns nil for an allowed result and a Forbidden error naming the
// resource and its ceiling otherwise.
func (r Result) Err() error {
	if r.Allowed {
		return nil
	}
	return apperr.Forbiddenf("plan limit exceeded: maximum %s allowed: %d", r.Kind, r.Limit)
}

// Check compares usage with the plan ceiling.  Creating one more resource is
// allowed while usage is strictly below the ceiling.
func Check(t model.Tenant, p model.Plan, k Kind, now time.Time) Result {
	limit := Limit(p, k)
	usage := Usage(t, k, now)
	return Result{Kind: k, Allowed: usage < limit, Usage: usage, Limit: limit}
}

// UsageStore performs the counter updates atomically.
type UsageStore interface {
	// ReserveUsage increments the counter for kind only if it is below
	// limit (for trips: or belongs to an older period, in which case it
	// restarts at one).  It reports whether the increment happened.
	ReserveUsage(ctx context.Context, tenantID uint64, kind Kind, limit, period int) (bool, error)
	// ReleaseUsage decrements the counter, never below zero.
	ReleaseUsage(ctx context.Context, tenantID uint64, kind Kind, period int) error
}

// PlanReader loads plans.
type PlanReader interface {
	GetByID(ctx context.Context, id uint64) (model.Plan, error)
}

// Gate admits resource creation against plan limits.
type Gate struct {
	plans PlanReader
	usage UsageStore
	now   func() time.Time
}

// NewGate builds a Gate.  now may be nil.
func NewGate(plans PlanReader, usage UsageStore, now func() time.Time) *Gate {
	if now == nil {
		now = time.Now
	}
	return &Gate{plans: plans, usage: usage, now: now}
}

// Reserve claims one unit of kind for the tenant.  On success the returned
// result reports usage after the increment.  A denied reservation returns
// the result together with its Forbidden error.
func (g *Gate) Reserve(ctx context.Context, t model.Tenant, kind Kind) (Result, error) {
	if !kind.Valid() {
		return Result{}, apperr.BadRequestf("unknown resource kind %q", kind)
	}
	plan, err := g.plans.GetByID(ctx, t.PlanID)
	if err != nil {
		return Result{}, apperr.Wrap(err, "load plan")
	}
	now := g.now()
	res := Check(t, plan, kind, now)
	if !res.Allowed {
		return res, res.Err()
	}
	ok, err := g.usage.ReserveUsage(ctx, t.ID, kind, res.Limit, Period(now))
	if err != nil {
		return Result{}, apperr.Wrap(err, fmt.Sprintf("reserve %s", kind))
	}
	if !ok {
		// lost the race for the last slot
		res = Result{Kind: kind, Allowed: false, Usage: res.Limit, Limit: res.Limit}
		return res, res.Err()
	}
	res.Usage++
	return res, nil
}

// Release gives back one unit of kind, for example when the creation that
// reserved it failed or the resource was removed.
func (g *Gate) Release(ctx context.Context, tenantID uint64, kind Kind) error {
	if !kind.Valid() {
		return apperr.BadRequestf("unknown resource kind %q", kind)
	}
	return apperr.Wrap(g.usage.ReleaseUsage(ctx, tenantID, kind, Period(g.now())), fmt.Sprintf("release %s", kind))
}
