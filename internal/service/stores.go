// Package service orchestrates the access-core operations exposed over HTTP:
// registration, login, refresh, logout, email verification, subscription
// activation and principal management.
package service

import (
	"context"
	"time"

	"github.com/iliyamo/agency-booking/internal/auth"
	"github.com/iliyamo/agency-booking/internal/model"
	"github.com/iliyamo/agency-booking/internal/quota"
	"github.com/iliyamo/agency-booking/internal/verification"
)

// PrincipalStore is implemented by repository.PrincipalRepo and
// memstore.Principals.
type PrincipalStore interface {
	auth.CredentialStore
	Create(ctx context.Context, p *model.Principal) error
	GetByEmail(ctx context.Context, email string) (model.Principal, error)
	TouchLastLogin(ctx context.Context, id uint64, at time.Time) error
	// Deactivate clears the active flag, bumps the token generation and
	// reports whether the principal was active before.
	Deactivate(ctx context.Context, id uint64) (bool, error)
}

// TenantStore is implemented by repository.TenantRepo and memstore.Tenants.
type TenantStore interface {
	verification.TenantStore
	quota.UsageStore
	// Register stores the tenant and its first admin atomically and sets
	// admin.TenantID.
	Register(ctx context.Context, t *model.Tenant, admin *model.Principal) error
	GetByID(ctx context.Context, id uint64) (model.Tenant, error)
	// UpdateStatus moves the tenant from -> to only if it is still in from.
	UpdateStatus(ctx context.Context, id uint64, from, to model.TenantStatus, trialExpiresAt *time.Time) (bool, error)
}
