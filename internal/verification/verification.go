// Package verification issues and consumes the one-time tokens that prove a
// tenant controls its contact email.
package verification

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/agency-booking/internal/apperr"
	"github.com/iliyamo/agency-booking/internal/auth"
	"github.com/iliyamo/agency-booking/internal/metrics"
	"github.com/iliyamo/agency-booking/internal/model"
	"github.com/iliyamo/agency-booking/internal/notify"
)

const DefaultTTL = 30 * time.Minute

var (
	ErrInvalidToken    = apperr.BadRequestf("invalid or expired token")
	ErrAlreadyVerified = apperr.BadRequestf("email already verified")
)

// TenantStore is the verification slice of the tenant store.
type TenantStore interface {
	SetVerificationToken(ctx context.Context, tenantID uint64, hash string, expiresAt time.Time) error
	// ConsumeVerificationToken marks the tenant holding hash verified and
	// clears the token, provided it expires strictly after now.  It returns
	// model.ErrTenantNotFound when no such tenant exists.
	ConsumeVerificationToken(ctx context.Context, hash string, now time.Time) (uint64, error)
}

type Service struct {
	tenants  TenantStore
	notifier notify.Notifier
	ttl      time.Duration
	now      func() time.Time
	log      *zap.Logger
}

func NewService(tenants TenantStore, notifier notify.Notifier, ttl time.Duration, now func() time.Time, log *zap.Logger) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{tenants: tenants, notifier: notifier, ttl: ttl, now: now, log: log}
}

// Issue generates a fresh token for t, replacing any earlier one, and hands
// the plaintext to the notifier.  Only the hash is stored.  A notifier
// failure is returned after the token is stored, so the caller may treat it
// as best effort.
func (s *Service) Issue(ctx context.Context, t model.Tenant) error {
	if t.EmailVerified {
		return ErrAlreadyVerified
	}
	raw, err := newToken()
	if err != nil {
		return apperr.Wrap(err, "generate verification token")
	}
	now := s.now().UTC()
	expires := now.Add(s.ttl)
	if err := s.tenants.SetVerificationToken(ctx, t.ID, auth.HashToken(raw), expires); err != nil {
		return apperr.Wrap(err, "store verification token")
	}

	ev := notify.VerificationRequested{
		TenantID:    t.ID,
		TenantName:  t.Name,
		Email:       t.ContactEmail,
		Token:       raw,
		ExpiresAt:   expires,
		RequestedAt: now,
	}
	if err := s.notifier.NotifyVerification(ctx, ev); err != nil {
		metrics.VerificationCounter.WithLabelValues("failed").Inc()
		s.log.Warn("verification notification failed", zap.Uint64("tenant_id", t.ID), zap.Error(err))
		return apperr.Wrap(err, "send verification")
	}
	metrics.VerificationCounter.WithLabelValues("queued").Inc()
	return nil
}

// Consume redeems a plaintext token.  A token works once and only before it
// expires; every failure looks the same to the caller.
func (s *Service) Consume(ctx context.Context, raw string) (uint64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, ErrInvalidToken
	}
	id, err := s.tenants.ConsumeVerificationToken(ctx, auth.HashToken(raw), s.now().UTC())
	if err != nil {
		if apperr.KindOf(err) == apperr.NotFound {
			return 0, ErrInvalidToken
		}
		return 0, apperr.Wrap(err, "consume verification token")
	}
	metrics.VerificationCounter.WithLabelValues("verified").Inc()
	return id, nil
}

func newToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
