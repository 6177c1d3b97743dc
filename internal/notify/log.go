package notify

import (
	"context"

	"go.uber.org/zap"
)

// LogNotifier writes verification requests to the log instead of mailing
// them.  It is wired when AMQP_URL is unset, i.e. local development.
type LogNotifier struct {
	Log *zap.Logger
}

func (n LogNotifier) NotifyVerification(_ context.Context, ev VerificationRequested) error {
	n.Log.Info("verification requested",
		zap.Uint64("tenant_id", ev.TenantID),
		zap.String("email", ev.Email),
		zap.Time("expires_at", ev.ExpiresAt),
	)
	n.Log.Debug("verification token", zap.String("token", ev.Token))
	return nil
}
