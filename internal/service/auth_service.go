package service

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/agency-booking/internal/apperr"
	"github.com/iliyamo/agency-booking/internal/auth"
	"github.com/iliyamo/agency-booking/internal/metrics"
	"github.com/iliyamo/agency-booking/internal/model"
	"github.com/iliyamo/agency-booking/internal/quota"
	"github.com/iliyamo/agency-booking/internal/tenant"
	"github.com/iliyamo/agency-booking/internal/verification"
)

const (
	DefaultTrialPeriod = 7 * 24 * time.Hour
	minPasswordLen     = 8
)

var (
	errInvalidCredentials = apperr.Unauthenticatedf("invalid credentials")
	errAccountDisabled    = apperr.Forbiddenf("account disabled")
)

// AuthOptions tunes AuthService.
type AuthOptions struct {
	TrialPeriod time.Duration
	BcryptCost  int
	Now         func() time.Time
	Log         *zap.Logger
}

type AuthService struct {
	principals PrincipalStore
	tenants    TenantStore
	plans      quota.PlanReader
	tokens     *auth.Manager
	verifier   *verification.Service
	opts       AuthOptions
}

func NewAuthService(principals PrincipalStore, tenants TenantStore, plans quota.PlanReader,
	tokens *auth.Manager, verifier *verification.Service, opts AuthOptions) *AuthService {
	if opts.TrialPeriod <= 0 {
		opts.TrialPeriod = DefaultTrialPeriod
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = 12
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	return &AuthService{
		principals: principals,
		tenants:    tenants,
		plans:      plans,
		tokens:     tokens,
		verifier:   verifier,
		opts:       opts,
	}
}

type RegisterInput struct {
	TenantName  string
	Name        string
	Email       string
	Password    string
	Phone       string
	CountryCode string
	PlanID      uint64
}

type RegisterResult struct {
	Tenant    model.Tenant
	Principal model.Principal
	Pair      auth.Pair
}

// Register opens a trial tenant with its first TENANT_ADMIN and signs that
// admin in.  The verification mail is best effort: registration succeeds
// even if it cannot be queued, and the admin can ask for a resend.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (RegisterResult, error) {
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return RegisterResult{}, err
	}
	in.TenantName = strings.TrimSpace(in.TenantName)
	if in.TenantName == "" {
		return RegisterResult{}, apperr.BadRequestf("tenant name is required")
	}
	if len(in.Password) < minPasswordLen {
		return RegisterResult{}, apperr.BadRequestf("password must be at least %d characters", minPasswordLen)
	}
	if in.PlanID == 0 {
		return RegisterResult{}, apperr.BadRequestf("plan id is required")
	}
	if _, err := s.plans.GetByID(ctx, in.PlanID); err != nil {
		if apperr.KindOf(err) == apperr.NotFound {
			return RegisterResult{}, apperr.BadRequestf("unknown plan")
		}
		return RegisterResult{}, apperr.Wrap(err, "load plan")
	}

	hash, err := auth.HashPassword(in.Password, s.opts.BcryptCost)
	if err != nil {
		return RegisterResult{}, apperr.Wrap(err, "hash password")
	}

	now := s.opts.Now().UTC()
	trialEnds := now.Add(s.opts.TrialPeriod)
	t := model.Tenant{
		Name:           in.TenantName,
		ContactEmail:   email,
		Phone:          strings.TrimSpace(in.Phone),
		CountryCode:    strings.ToUpper(strings.TrimSpace(in.CountryCode)),
		PlanID:         in.PlanID,
		Status:         model.TenantTrial,
		TrialExpiresAt: &trialEnds,
	}
	admin := model.Principal{
		Email:        email,
		Name:         strings.TrimSpace(in.Name),
		PasswordHash: hash,
		Role:         model.RoleTenantAdmin,
		IsActive:     true,
	}
	if err := s.tenants.Register(ctx, &t, &admin); err != nil {
		if apperr.KindOf(err) == apperr.NotFound {
			return RegisterResult{}, apperr.BadRequestf("unknown plan")
		}
		return RegisterResult{}, apperr.Wrap(err, "register tenant")
	}
	metrics.RegisterCounter.Inc()

	if err := s.verifier.Issue(ctx, t); err != nil {
		s.opts.Log.Warn("verification not sent at registration",
			zap.Uint64("tenant_id", t.ID), zap.Error(err))
	}

	pair, err := s.tokens.Issue(ctx, admin)
	if err != nil {
		return RegisterResult{}, err
	}
	admin.PasswordHash = ""
	return RegisterResult{Tenant: t, Principal: admin, Pair: pair}, nil
}

type LoginResult struct {
	Principal model.Principal
	Tenant    *model.Tenant
	Pair      auth.Pair
}

// Login authenticates by email and password.  A tenant principal is only
// signed in while its tenant may access the system.
func (s *AuthService) Login(ctx context.Context, email, password string) (LoginResult, error) {
	p, err := s.principals.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if apperr.KindOf(err) == apperr.NotFound {
			auth.BurnPasswordCheck(password, s.opts.BcryptCost)
			metrics.LoginCounter.WithLabelValues("bad_credentials").Inc()
			return LoginResult{}, errInvalidCredentials
		}
		return LoginResult{}, apperr.Wrap(err, "load principal")
	}
	if !auth.VerifyPassword(p.PasswordHash, password) {
		metrics.LoginCounter.WithLabelValues("bad_credentials").Inc()
		return LoginResult{}, errInvalidCredentials
	}
	if !p.IsActive {
		metrics.LoginCounter.WithLabelValues("inactive").Inc()
		return LoginResult{}, errAccountDisabled
	}

	var tptr *model.Tenant
	if p.Role != model.RolePlatformAdmin {
		t, err := s.tenants.GetByID(ctx, p.TenantRef())
		if err != nil {
			return LoginResult{}, apperr.Wrap(err, "load tenant")
		}
		now := s.opts.Now()
		if d := tenant.CanAccess(t, now); !d.Allowed {
			metrics.LoginCounter.WithLabelValues("denied").Inc()
			metrics.AccessDeniedCounter.WithLabelValues(d.Reason).Inc()
			if d.Reason == tenant.ReasonTrialExpired {
				s.recordExpired(ctx, t, now)
			}
			return LoginResult{}, apperr.Forbiddenf("%s", d.Reason)
		}
		tptr = &t
	}

	pair, err := s.tokens.Issue(ctx, p)
	if err != nil {
		return LoginResult{}, err
	}
	if err := s.principals.TouchLastLogin(ctx, p.ID, s.opts.Now()); err != nil {
		s.opts.Log.Warn("last login not recorded", zap.Uint64("principal_id", p.ID), zap.Error(err))
	}
	metrics.LoginCounter.WithLabelValues("ok").Inc()
	p.PasswordHash = ""
	return LoginResult{Principal: p, Tenant: tptr, Pair: pair}, nil
}

// recordExpired writes the expired status as history.  The trial window is
// what denied access, so a failure here changes nothing.
func (s *AuthService) recordExpired(ctx context.Context, t model.Tenant, now time.Time) {
	if t.Status != model.TenantTrial {
		return
	}
	next, err := tenant.Transition(t, model.TenantExpired, now)
	if err != nil {
		return
	}
	if _, err := s.tenants.UpdateStatus(ctx, t.ID, t.Status, next.Status, next.TrialExpiresAt); err != nil {
		s.opts.Log.Warn("expired status not recorded", zap.Uint64("tenant_id", t.ID), zap.Error(err))
	}
}

// Refresh rotates a refresh token.  The principal's tenant is re-checked so
// a suspended or lapsed agency cannot keep a session alive by refreshing.
func (s *AuthService) Refresh(ctx context.Context, raw string) (auth.Pair, error) {
	if strings.TrimSpace(raw) == "" {
		return auth.Pair{}, apperr.BadRequestf("refresh token is required")
	}
	pair, _, err := s.tokens.Rotate(ctx, raw, s.tenantAllowed)
	if err != nil {
		metrics.RotationCounter.WithLabelValues(apperr.KindOf(err).String()).Inc()
		return auth.Pair{}, err
	}
	metrics.RotationCounter.WithLabelValues("ok").Inc()
	return pair, nil
}

func (s *AuthService) tenantAllowed(ctx context.Context, p model.Principal) error {
	if p.Role == model.RolePlatformAdmin {
		return nil
	}
	t, err := s.tenants.GetByID(ctx, p.TenantRef())
	if err != nil {
		return apperr.Wrap(err, "load tenant")
	}
	if err := tenant.CheckAccess(t, s.opts.Now()); err != nil {
		metrics.AccessDeniedCounter.WithLabelValues(apperr.Reason(err)).Inc()
		return err
	}
	return nil
}

// Logout voids every refresh token the principal holds.  Access tokens
// already handed out stay valid until they expire.
func (s *AuthService) Logout(ctx context.Context, principalID uint64) error {
	return s.tokens.Invalidate(ctx, principalID)
}

func (s *AuthService) Me(ctx context.Context, principalID uint64) (model.Principal, error) {
	p, err := s.principals.GetByID(ctx, principalID)
	if err != nil {
		return model.Principal{}, apperr.Wrap(err, "load principal")
	}
	p.PasswordHash = ""
	p.RefreshHash = ""
	return p, nil
}

func (s *AuthService) VerifyEmail(ctx context.Context, token string) (uint64, error) {
	return s.verifier.Consume(ctx, token)
}

// ResendVerification issues a new token for the tenant administered by
// email.  Unknown addresses succeed silently so the endpoint cannot be used
// to probe for accounts.
func (s *AuthService) ResendVerification(ctx context.Context, email string) error {
	p, err := s.principals.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if apperr.KindOf(err) == apperr.NotFound {
			return nil
		}
		return apperr.Wrap(err, "load principal")
	}
	if p.Role != model.RoleTenantAdmin || p.TenantID == nil {
		return nil
	}
	t, err := s.tenants.GetByID(ctx, *p.TenantID)
	if err != nil {
		return apperr.Wrap(err, "load tenant")
	}
	return s.verifier.Issue(ctx, t)
}

// EnsurePlatformAdmin creates the platform administrator if the email is
// not registered yet.  It reports whether a principal was created.
func (s *AuthService) EnsurePlatformAdmin(ctx context.Context, email, password string) (bool, error) {
	addr, err := normalizeEmail(email)
	if err != nil {
		return false, err
	}
	if _, err := s.principals.GetByEmail(ctx, addr); err == nil {
		return false, nil
	} else if apperr.KindOf(err) != apperr.NotFound {
		return false, apperr.Wrap(err, "load principal")
	}
	if len(password) < minPasswordLen {
		return false, apperr.BadRequestf("password must be at least %d characters", minPasswordLen)
	}
	hash, err := auth.HashPassword(password, s.opts.BcryptCost)
	if err != nil {
		return false, apperr.Wrap(err, "hash password")
	}
	p := model.Principal{
		Email:        addr,
		Name:         "Platform Admin",
		PasswordHash: hash,
		Role:         model.RolePlatformAdmin,
		IsActive:     true,
	}
	if err := s.principals.Create(ctx, &p); err != nil {
		if apperr.KindOf(err) == apperr.Conflict {
			return false, nil
		}
		return false, apperr.Wrap(err, "create platform admin")
	}
	return true, nil
}

func normalizeEmail(raw string) (string, error) {
	addr := strings.ToLower(strings.TrimSpace(raw))
	parsed, err := mail.ParseAddress(addr)
	if err != nil || parsed.Address != addr {
		return "", apperr.BadRequestf("invalid email")
	}
	return addr, nil
}
