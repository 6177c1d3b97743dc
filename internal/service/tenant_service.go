package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/agency-booking/internal/apperr"
	"github.com/iliyamo/agency-booking/internal/auth"
	"github.com/iliyamo/agency-booking/internal/model"
	"github.com/iliyamo/agency-booking/internal/quota"
	"github.com/iliyamo/agency-booking/internal/tenant"
)

var errCrossTenant = apperr.Forbiddenf("access denied: cannot access other tenant data")

// TenantService covers the tenant-scoped operations behind the pipeline.
type TenantService struct {
	principals PrincipalStore
	tenants    TenantStore
	plans      quota.PlanReader
	gate       *quota.Gate
	bcryptCost int
	now        func() time.Time
	log        *zap.Logger
}

func NewTenantService(principals PrincipalStore, tenants TenantStore, plans quota.PlanReader,
	gate *quota.Gate, bcryptCost int, now func() time.Time, log *zap.Logger) *TenantService {
	if bcryptCost == 0 {
		bcryptCost = 12
	}
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &TenantService{
		principals: principals,
		tenants:    tenants,
		plans:      plans,
		gate:       gate,
		bcryptCost: bcryptCost,
		now:        now,
		log:        log,
	}
}

// Overview is what GET /v1/tenant returns.
type Overview struct {
	Tenant model.Tenant    `json:"tenant"`
	Plan   model.Plan      `json:"plan"`
	Access tenant.Decision `json:"access"`
	Usage  []quota.Result  `json:"usage"`
}

func (s *TenantService) Overview(ctx context.Context, tenantID uint64) (Overview, error) {
	t, err := s.tenants.GetByID(ctx, tenantID)
	if err != nil {
		return Overview{}, apperr.Wrap(err, "load tenant")
	}
	p, err := s.plans.GetByID(ctx, t.PlanID)
	if err != nil {
		return Overview{}, apperr.Wrap(err, "load plan")
	}
	now := s.now()
	ov := Overview{Tenant: t, Plan: p, Access: tenant.CanAccess(t, now)}
	for _, k := range []quota.Kind{quota.Vehicles, quota.Operators, quota.Trips} {
		ov.Usage = append(ov.Usage, quota.Check(t, p, k, now))
	}
	return ov, nil
}

// ActivateSubscription moves a trial (or lapsed trial) tenant to active.
// The contact email must be verified first.  Suspended tenants need a
// platform admin.
func (s *TenantService) ActivateSubscription(ctx context.Context, tenantID uint64) (model.Tenant, error) {
	t, err := s.tenants.GetByID(ctx, tenantID)
	if err != nil {
		return model.Tenant{}, apperr.Wrap(err, "load tenant")
	}
	switch t.Status {
	case model.TenantSuspended:
		return model.Tenant{}, apperr.Forbiddenf("%s", tenant.ReasonSuspended)
	case model.TenantActive:
		return t, nil
	}
	if err := tenant.RequireEmailVerified(t); err != nil {
		return model.Tenant{}, err
	}
	return s.transition(ctx, t, model.TenantActive)
}

// SetStatus is the platform admin override: suspend, reinstate or activate
// any tenant regardless of verification.
func (s *TenantService) SetStatus(ctx context.Context, tenantID uint64, to model.TenantStatus) (model.Tenant, error) {
	t, err := s.tenants.GetByID(ctx, tenantID)
	if err != nil {
		return model.Tenant{}, apperr.Wrap(err, "load tenant")
	}
	if t.Status == to {
		return t, nil
	}
	return s.transition(ctx, t, to)
}

func (s *TenantService) transition(ctx context.Context, t model.Tenant, to model.TenantStatus) (model.Tenant, error) {
	next, err := tenant.Transition(t, to, s.now())
	if err != nil {
		return model.Tenant{}, err
	}
	ok, err := s.tenants.UpdateStatus(ctx, t.ID, t.Status, next.Status, next.TrialExpiresAt)
	if err != nil {
		return model.Tenant{}, apperr.Wrap(err, "update tenant status")
	}
	if !ok {
		return model.Tenant{}, apperr.Conflictf("tenant status changed, retry")
	}
	s.log.Info("tenant status changed",
		zap.Uint64("tenant_id", t.ID),
		zap.String("from", string(t.Status)),
		zap.String("to", string(next.Status)))
	return next, nil
}

type OperatorInput struct {
	Email    string
	Name     string
	Password string
}

// CreateOperator adds a TENANT_OPERATOR to the tenant.  The operator slot
// has already been reserved by the quota stage.
func (s *TenantService) CreateOperator(ctx context.Context, tenantID uint64, in OperatorInput) (model.Principal, error) {
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return model.Principal{}, err
	}
	if len(in.Password) < minPasswordLen {
		return model.Principal{}, apperr.BadRequestf("password must be at least %d characters", minPasswordLen)
	}
	hash, err := auth.HashPassword(in.Password, s.bcryptCost)
	if err != nil {
		return model.Principal{}, apperr.Wrap(err, "hash password")
	}
	tid := tenantID
	p := model.Principal{
		Email:        email,
		Name:         strings.TrimSpace(in.Name),
		PasswordHash: hash,
		Role:         model.RoleTenantOperator,
		TenantID:     &tid,
		IsActive:     true,
	}
	if err := s.principals.Create(ctx, &p); err != nil {
		return model.Principal{}, apperr.Wrap(err, "create operator")
	}
	p.PasswordHash = ""
	return p, nil
}

// DeactivatePrincipal disables a principal and voids its credentials.
// Principals are never deleted.  An operator's slot goes back to the plan.
func (s *TenantService) DeactivatePrincipal(ctx context.Context, caller auth.Identity, principalID uint64) error {
	if caller.PrincipalID == principalID {
		return apperr.BadRequestf("cannot deactivate yourself")
	}
	target, err := s.principals.GetByID(ctx, principalID)
	if err != nil {
		// a tenant admin must not learn which ids exist elsewhere
		if !caller.IsPlatformAdmin() && apperr.KindOf(err) == apperr.NotFound {
			return errCrossTenant
		}
		return apperr.Wrap(err, "load principal")
	}
	if !caller.IsPlatformAdmin() {
		if target.Role == model.RolePlatformAdmin || target.TenantRef() != caller.TenantID {
			return errCrossTenant
		}
	}

	wasActive, err := s.principals.Deactivate(ctx, principalID)
	if err != nil {
		return apperr.Wrap(err, "deactivate principal")
	}
	if wasActive && target.Role == model.RoleTenantOperator && target.TenantID != nil {
		if err := s.gate.Release(ctx, *target.TenantID, quota.Operators); err != nil {
			s.log.Warn("operator slot not released", zap.Uint64("tenant_id", *target.TenantID), zap.Error(err))
		}
	}
	s.log.Info("principal deactivated",
		zap.Uint64("principal_id", principalID),
		zap.Uint64("by", caller.PrincipalID))
	return nil
}

// ReleaseUsage gives back one unit of kind when the external resource it
// admitted is removed.
func (s *TenantService) ReleaseUsage(ctx context.Context, tenantID uint64, kind quota.Kind) error {
	return s.gate.Release(ctx, tenantID, kind)
}
