package config

import (
	"github.com/joho/godotenv"
)

// MailConfig is what the mailer worker needs: where to read verification
// requests from and how to deliver them.
type MailConfig struct {
	Env            string
	LogLevel       string
	AMQPURL        string
	SendGridAPIKey string
	FromName       string
	From           string
	VerifyURLBase  string
}

// LoadMail reads the mailer configuration.  Unlike Load it needs neither the
// database nor the signing secrets.
func LoadMail() (MailConfig, error) {
	_ = godotenv.Load()

	var l loader
	cfg := MailConfig{
		Env:            envStr("APP_ENV", "development"),
		LogLevel:       envStr("LOG_LEVEL", "info"),
		AMQPURL:        firstEnv("AMQP_URL", "RABBITMQ_URL"),
		SendGridAPIKey: l.must("SENDGRID_API_KEY"),
		FromName:       envStr("MAIL_FROM_NAME", "Agency Booking"),
		From:           envStr("MAIL_FROM", "no-reply@agency-booking.local"),
		VerifyURLBase:  envStr("VERIFY_URL_BASE", "http://localhost:8080/v1/auth/verify-email"),
	}
	if cfg.AMQPURL == "" {
		l.fail("missing required env var: AMQP_URL")
	}
	return cfg, l.err()
}
