// Package notify carries verification notifications from the request path to
// whatever delivers them: a RabbitMQ queue drained by the mailer worker, or
// the log when no broker is configured.
package notify

import (
	"context"
	"time"
)

// VerificationQueue is the durable queue verification requests travel on.
const VerificationQueue = "tenant.verification"

// VerificationRequested is published whenever a verification token is
// issued.  Token is the plaintext; it never touches the database.
type VerificationRequested struct {
	TenantID    uint64    `json:"tenant_id"`
	TenantName  string    `json:"tenant_name"`
	Email       string    `json:"email"`
	Token       string    `json:"token"`
	ExpiresAt   time.Time `json:"expires_at"`
	RequestedAt time.Time `json:"requested_at"`
}

// Notifier hands a verification request to a delivery channel.
type Notifier interface {
	NotifyVerification(ctx context.Context, ev VerificationRequested) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, ev VerificationRequested) error

func (f NotifierFunc) NotifyVerification(ctx context.Context, ev VerificationRequested) error {
	return f(ctx, ev)
}
