package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/agency-booking/internal/apperr"
	"github.com/iliyamo/agency-booking/internal/auth"
	"github.com/iliyamo/agency-booking/internal/middleware"
	"github.com/iliyamo/agency-booking/internal/service"
)

// AuthHandler serves the /v1/auth endpoints and /v1/me.
type AuthHandler struct {
	Auth *service.AuthService
}

func NewAuthHandler(s *service.AuthService) *AuthHandler {
	return &AuthHandler{Auth: s}
}

// ----- DTOs -----

type registerReq struct {
	TenantName  string `json:"tenant_name"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	Phone       string `json:"phone"`
	CountryCode string `json:"country_code"`
	PlanID      uint64 `json:"plan_id"`
}
type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}
type tokenReq struct {
	Token string `json:"token"`
}
type emailReq struct {
	Email string `json:"email"`
}

type authResp struct {
	Principal principalView `json:"principal"`
	Tenant    *tenantView   `json:"tenant,omitempty"`
	Access    auth.Token    `json:"access"`
	Refresh   auth.Token    `json:"refresh"`
}

// Register opens a trial agency and signs its admin in.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return fail(c, errInvalidBody)
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	res, err := h.Auth.Register(ctx, service.RegisterInput{
		TenantName:  req.TenantName,
		Name:        req.Name,
		Email:       req.Email,
		Password:    req.Password,
		Phone:       req.Phone,
		CountryCode: req.CountryCode,
		PlanID:      req.PlanID,
	})
	if err != nil {
		return fail(c, err)
	}
	tv := viewTenant(res.Tenant)
	return c.JSON(http.StatusCreated, authResp{
		Principal: viewPrincipal(res.Principal),
		Tenant:    &tv,
		Access:    res.Pair.Access,
		Refresh:   res.Pair.Refresh,
	})
}

func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return fail(c, errInvalidBody)
	}
	if req.Email == "" || req.Password == "" {
		return fail(c, apperr.BadRequestf("email/password required"))
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	res, err := h.Auth.Login(ctx, req.Email, req.Password)
	if err != nil {
		return fail(c, err)
	}
	resp := authResp{Principal: viewPrincipal(res.Principal), Access: res.Pair.Access, Refresh: res.Pair.Refresh}
	if res.Tenant != nil {
		tv := viewTenant(*res.Tenant)
		resp.Tenant = &tv
	}
	return c.JSON(http.StatusOK, resp)
}

// Refresh exchanges a refresh token for a new pair.  The presented token is
// spent whether or not the client receives the response.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil {
		return fail(c, errInvalidBody)
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	pair, err := h.Auth.Refresh(ctx, req.RefreshToken)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, pair)
}

func (h *AuthHandler) Logout(c echo.Context) error {
	id, _ := middleware.IdentityFrom(c)
	ctx, cancel := withTimeout(c)
	defer cancel()

	if err := h.Auth.Logout(ctx, id.PrincipalID); err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *AuthHandler) VerifyEmail(c echo.Context) error {
	var req tokenReq
	if err := c.Bind(&req); err != nil {
		return fail(c, errInvalidBody)
	}
	if req.Token == "" {
		req.Token = c.QueryParam("token")
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	tenantID, err := h.Auth.VerifyEmail(ctx, req.Token)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"tenant_id": tenantID, "email_verified": true})
}

// ResendVerification answers 202 whether or not the address belongs to a
// tenant admin.  A tenant that is already verified gets 400 and a failed
// hand-off to the notifier gets 503.
func (h *AuthHandler) ResendVerification(c echo.Context) error {
	var req emailReq
	if err := c.Bind(&req); err != nil {
		return fail(c, errInvalidBody)
	}
	if req.Email == "" {
		return fail(c, apperr.BadRequestf("email required"))
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	if err := h.Auth.ResendVerification(ctx, req.Email); err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusAccepted, echo.Map{"status": "sent if the address is registered"})
}

func (h *AuthHandler) Me(c echo.Context) error {
	id, _ := middleware.IdentityFrom(c)
	ctx, cancel := withTimeout(c)
	defer cancel()

	p, err := h.Auth.Me(ctx, id.PrincipalID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, viewPrincipal(p))
}
