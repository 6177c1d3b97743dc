package handler

import (
	"context"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/agency-booking/internal/apperr"
	"github.com/iliyamo/agency-booking/internal/logger"
	"github.com/iliyamo/agency-booking/internal/model"
)

// requestTimeout bounds the store work behind a single request.
const requestTimeout = 5 * time.Second

var errInvalidBody = apperr.BadRequestf("invalid body")

func withTimeout(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), requestTimeout)
}

// fail logs infrastructure failures (clients only see a generic message for
// those) and writes the error response.
func fail(c echo.Context, err error) error {
	if apperr.KindOf(err) == apperr.Transient {
		logger.FromEcho(c).Error("request failed", zap.String("path", c.Path()), zap.Error(err))
	}
	return apperr.Respond(c, err)
}

func idParam(c echo.Context, name string) (uint64, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, apperr.BadRequestf("invalid %s", name)
	}
	return id, nil
}

// ----- response views -----

type principalView struct {
	ID          uint64     `json:"id"`
	Email       string     `json:"email"`
	Name        string     `json:"name,omitempty"`
	Role        model.Role `json:"role"`
	TenantID    *uint64    `json:"tenant_id,omitempty"`
	IsActive    bool       `json:"is_active"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

func viewPrincipal(p model.Principal) principalView {
	return principalView{
		ID:          p.ID,
		Email:       p.Email,
		Name:        p.Name,
		Role:        p.Role,
		TenantID:    p.TenantID,
		IsActive:    p.IsActive,
		LastLoginAt: p.LastLoginAt,
		CreatedAt:   p.CreatedAt,
	}
}

type tenantView struct {
	ID             uint64             `json:"id"`
	Name           string             `json:"name"`
	ContactEmail   string             `json:"contact_email"`
	Phone          string             `json:"phone,omitempty"`
	CountryCode    string             `json:"country_code,omitempty"`
	PlanID         uint64             `json:"plan_id"`
	Status         model.TenantStatus `json:"status"`
	TrialExpiresAt *time.Time         `json:"trial_expires_at,omitempty"`
	EmailVerified  bool               `json:"email_verified"`
	CreatedAt      time.Time          `json:"created_at"`
}

func viewTenant(t model.Tenant) tenantView {
	return tenantView{
		ID:             t.ID,
		Name:           t.Name,
		ContactEmail:   t.ContactEmail,
		Phone:          t.Phone,
		CountryCode:    t.CountryCode,
		PlanID:         t.PlanID,
		Status:         t.Status,
		TrialExpiresAt: t.TrialExpiresAt,
		EmailVerified:  t.EmailVerified,
		CreatedAt:      t.CreatedAt,
	}
}
