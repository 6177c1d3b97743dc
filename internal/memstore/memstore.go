// Package memstore is an in-process implementation of the principal, tenant
// and plan stores.  It backs STORE_DRIVER=memory for local runs and the
// package tests.  Every mutation happens under one mutex, which gives it the
// same conditional-update semantics the MySQL repositories get from single
// UPDATE ... WHERE statements.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/iliyamo/agency-booking/internal/model"
	"github.com/iliyamo/agency-booking/internal/quota"
)

// Store holds all records.
type Store struct {
	mu            sync.Mutex
	nextPrincipal uint64
	nextTenant    uint64
	nextPlan      uint64
	principals    map[uint64]model.Principal
	byEmail       map[string]uint64
	tenants       map[uint64]model.Tenant
	plans         map[uint64]model.Plan
	now           func() time.Time
}

// New returns an empty store.  now may be nil.
func New(now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		principals: map[uint64]model.Principal{},
		byEmail:    map[string]uint64{},
		tenants:    map[uint64]model.Tenant{},
		plans:      map[uint64]model.Plan{},
		now:        now,
	}
}

func (s *Store) Principals() *Principals { return &Principals{s: s} }
func (s *Store) Tenants() *Tenants       { return &Tenants{s: s} }
func (s *Store) Plans() *Plans           { return &Plans{s: s} }

func normEmail(e string) string { return strings.ToLower(strings.TrimSpace(e)) }

// insertPrincipal requires s.mu held.
func (s *Store) insertPrincipal(p *model.Principal) error {
	p.Email = normEmail(p.Email)
	if _, taken := s.byEmail[p.Email]; taken {
		return model.ErrEmailExists
	}
	s.nextPrincipal++
	p.ID = s.nextPrincipal
	now := s.now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	s.principals[p.ID] = *p
	s.byEmail[p.Email] = p.ID
	return nil
}

// Principals implements the principal store.
type Principals struct{ s *Store }

func (r *Principals) Create(_ context.Context, p *model.Principal) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.insertPrincipal(p)
}

func (r *Principals) GetByID(_ context.Context, id uint64) (model.Principal, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.principals[id]
	if !ok {
		return model.Principal{}, model.ErrPrincipalNotFound
	}
	return p, nil
}

func (r *Principals) GetByEmail(_ context.Context, email string) (model.Principal, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	id, ok := r.s.byEmail[normEmail(email)]
	if !ok {
		return model.Principal{}, model.ErrPrincipalNotFound
	}
	return r.s.principals[id], nil
}

func (r *Principals) SetRefreshHash(_ context.Context, id uint64, hash string) error {
	return r.update(id, func(p *model.Principal) bool {
		p.RefreshHash = hash
		return true
	})
}

func (r *Principals) SwapRefreshHash(_ context.Context, id, gen uint64, oldHash, newHash string) (bool, error) {
	swapped := false
	err := r.update(id, func(p *model.Principal) bool {
		if !p.IsActive || p.TokenGeneration != gen || p.RefreshHash != oldHash {
			return false
		}
		p.RefreshHash = newHash
		swapped = true
		return true
	})
	return swapped, err
}

func (r *Principals) Invalidate(_ context.Context, id uint64) error {
	return r.update(id, func(p *model.Principal) bool {
		p.TokenGeneration++
		p.RefreshHash = ""
		return true
	})
}

func (r *Principals) TouchLastLogin(_ context.Context, id uint64, at time.Time) error {
	return r.update(id, func(p *model.Principal) bool {
		t := at.UTC()
		p.LastLoginAt = &t
		return true
	})
}

// Deactivate reports whether the principal was active before the call.
func (r *Principals) Deactivate(_ context.Context, id uint64) (bool, error) {
	changed := false
	err := r.update(id, func(p *model.Principal) bool {
		if !p.IsActive {
			return false
		}
		changed = true
		p.IsActive = false
		p.TokenGeneration++
		p.RefreshHash = ""
		return true
	})
	return changed, err
}

func (r *Principals) update(id uint64, fn func(p *model.Principal) bool) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.principals[id]
	if !ok {
		return model.ErrPrincipalNotFound
	}
	if fn(&p) {
		p.UpdatedAt = r.s.now().UTC()
		r.s.principals[id] = p
	}
	return nil
}

// Tenants implements the tenant store.
type Tenants struct{ s *Store }

// Register inserts the tenant and its first admin together.  Neither is
// stored when the admin email is taken.
func (r *Tenants) Register(_ context.Context, t *model.Tenant, admin *model.Principal) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, taken := r.s.byEmail[normEmail(admin.Email)]; taken {
		return model.ErrEmailExists
	}
	if _, ok := r.s.plans[t.PlanID]; !ok {
		return model.ErrPlanNotFound
	}
	r.s.nextTenant++
	t.ID = r.s.nextTenant
	t.ContactEmail = normEmail(t.ContactEmail)
	now := r.s.now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now
	r.s.tenants[t.ID] = *t

	tid := t.ID
	admin.TenantID = &tid
	return r.s.insertPrincipal(admin)
}

func (r *Tenants) GetByID(_ context.Context, id uint64) (model.Tenant, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tenants[id]
	if !ok {
		return model.Tenant{}, model.ErrTenantNotFound
	}
	return t, nil
}

func (r *Tenants) UpdateStatus(_ context.Context, id uint64, from, to model.TenantStatus, trialExpiresAt *time.Time) (bool, error) {
	updated := false
	err := r.update(id, func(t *model.Tenant) bool {
		if t.Status != from {
			return false
		}
		t.Status = to
		t.TrialExpiresAt = trialExpiresAt
		updated = true
		return true
	})
	return updated, err
}

func (r *Tenants) SetVerificationToken(_ context.Context, id uint64, hash string, expiresAt time.Time) error {
	return r.update(id, func(t *model.Tenant) bool {
		exp := expiresAt.UTC()
		t.VerificationHash = hash
		t.VerificationExpiresAt = &exp
		return true
	})
}

func (r *Tenants) ConsumeVerificationToken(_ context.Context, hash string, now time.Time) (uint64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, t := range r.s.tenants {
		if hash == "" || t.VerificationHash != hash || t.VerificationExpiresAt == nil || !t.VerificationExpiresAt.After(now) {
			continue
		}
		t.EmailVerified = true
		t.VerificationHash = ""
		t.VerificationExpiresAt = nil
		t.UpdatedAt = r.s.now().UTC()
		r.s.tenants[id] = t
		return id, nil
	}
	return 0, model.ErrTenantNotFound
}

func (r *Tenants) ReserveUsage(_ context.Context, tenantID uint64, kind quota.Kind, limit, period int) (bool, error) {
	reserved := false
	err := r.update(tenantID, func(t *model.Tenant) bool {
		if limit <= 0 {
			return false
		}
		switch kind {
		case quota.Vehicles:
			if t.VehicleCount >= limit {
				return false
			}
			t.VehicleCount++
		case quota.Operators:
			if t.OperatorCount >= limit {
				return false
			}
			t.OperatorCount++
		case quota.Trips:
			if t.TripPeriod != period {
				t.TripPeriod, t.TripCount = period, 1
			} else if t.TripCount >= limit {
				return false
			} else {
				t.TripCount++
			}
		default:
			return false
		}
		reserved = true
		return true
	})
	return reserved, err
}

func (r *Tenants) ReleaseUsage(_ context.Context, tenantID uint64, kind quota.Kind, period int) error {
	return r.update(tenantID, func(t *model.Tenant) bool {
		switch kind {
		case quota.Vehicles:
			if t.VehicleCount > 0 {
				t.VehicleCount--
			}
		case quota.Operators:
			if t.OperatorCount > 0 {
				t.OperatorCount--
			}
		case quota.Trips:
			if t.TripPeriod == period && t.TripCount > 0 {
				t.TripCount--
			}
		}
		return true
	})
}

func (r *Tenants) update(id uint64, fn func(t *model.Tenant) bool) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tenants[id]
	if !ok {
		return model.ErrTenantNotFound
	}
	if fn(&t) {
		t.UpdatedAt = r.s.now().UTC()
		r.s.tenants[id] = t
	}
	return nil
}

// Plans implements the plan store.
type Plans struct{ s *Store }

// Put inserts or replaces a plan.  A zero ID is assigned the next id.
func (r *Plans) Put(p model.Plan) model.Plan {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if p.ID == 0 {
		r.s.nextPlan++
		p.ID = r.s.nextPlan
	} else if p.ID > r.s.nextPlan {
		r.s.nextPlan = p.ID
	}
	r.s.plans[p.ID] = p
	return p
}

func (r *Plans) GetByID(_ context.Context, id uint64) (model.Plan, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.plans[id]
	if !ok {
		return model.Plan{}, model.ErrPlanNotFound
	}
	return p, nil
}

// List returns every plan ordered by id.
func (r *Plans) List(_ context.Context) ([]model.Plan, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]model.Plan, 0, len(r.s.plans))
	for _, p := range r.s.plans {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
