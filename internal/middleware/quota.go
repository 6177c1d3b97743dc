package middleware

import (
	"context"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/agency-booking/internal/apperr"
	"github.com/iliyamo/agency-booking/internal/logger"
	"github.com/iliyamo/agency-booking/internal/metrics"
	"github.com/iliyamo/agency-booking/internal/quota"
)

const quotaKey = "quota"

// Quota reserves one unit of kind before the handler runs.  When the
// handler fails the unit is given back, so only resources that were
// actually created count against the plan.
func Quota(gate *quota.Gate, kind quota.Kind) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			t, ok := TenantFrom(c)
			if !ok {
				return apperr.Respond(c, apperr.Forbiddenf("tenant not resolved"))
			}
			ctx := c.Request().Context()
			res, err := gate.Reserve(ctx, t, kind)
			if err != nil {
				if apperr.KindOf(err) == apperr.Forbidden {
					metrics.QuotaDeniedCounter.WithLabelValues(string(kind)).Inc()
				}
				return apperr.Respond(c, err)
			}
			c.Set(quotaKey, res)

			err = next(c)
			if err != nil || c.Response().Status >= 400 {
				// the request may already be cancelled
				rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
				defer cancel()
				if rerr := gate.Release(rctx, t.ID, kind); rerr != nil {
					logger.FromEcho(c).Warn("quota release failed",
						zap.Uint64("tenant_id", t.ID), zap.String("kind", string(kind)), zap.Error(rerr))
				}
			}
			return err
		}
	}
}

// QuotaFrom returns the reservation made by Quota.
func QuotaFrom(c echo.Context) (quota.Result, bool) {
	r, ok := c.Get(quotaKey).(quota.Result)
	return r, ok
}
