// Package config loads application configuration from environment variables.
// A .env file in the working directory is read first when present.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration values.
type Config struct {
	Env      string // application environment (dev, production)
	Port     string // HTTP port to listen on
	LogLevel string

	// StoreDriver selects the persistence backend: "mysql" or "memory".
	StoreDriver string
	DBUser      string
	DBPass      string
	DBHost      string
	DBPort      string
	DBName      string

	JWTAccessSecret  string
	JWTRefreshSecret string
	JWTIssuer        string
	AccessTTL        time.Duration
	RefreshTTL       time.Duration
	BcryptCost       int

	TrialPeriod     time.Duration
	VerificationTTL time.Duration

	AMQPURL        string // empty: verification mail is only logged
	SendGridAPIKey string
	MailFromName   string
	MailFrom       string
	VerifyURLBase  string

	BootstrapAdminEmail    string
	BootstrapAdminPassword string
}

// Load reads the environment.  Every missing or malformed variable is
// reported in the returned error, not just the first one.
func Load() (Config, error) {
	_ = godotenv.Load()

	var l loader
	cfg := Config{
		Env:         l.must("APP_ENV"),
		Port:        l.must("APP_PORT"),
		LogLevel:    envStr("LOG_LEVEL", "info"),
		StoreDriver: strings.ToLower(envStr("STORE_DRIVER", "mysql")),

		JWTAccessSecret:  l.must("JWT_ACCESS_SECRET"),
		JWTRefreshSecret: l.must("JWT_REFRESH_SECRET"),
		JWTIssuer:        envStr("JWT_ISSUER", "agency-booking"),
		AccessTTL:        time.Duration(l.intOr("ACCESS_TOKEN_TTL_MIN", 15)) * time.Minute,
		RefreshTTL:       time.Duration(l.intOr("REFRESH_TOKEN_TTL_DAYS", 7)) * 24 * time.Hour,
		BcryptCost:       l.intOr("BCRYPT_COST", 12),

		TrialPeriod:     time.Duration(l.intOr("TRIAL_DAYS", 7)) * 24 * time.Hour,
		VerificationTTL: time.Duration(l.intOr("VERIFICATION_TTL_MIN", 30)) * time.Minute,

		AMQPURL:        firstEnv("AMQP_URL", "RABBITMQ_URL"),
		SendGridAPIKey: os.Getenv("SENDGRID_API_KEY"),
		MailFromName:   envStr("MAIL_FROM_NAME", "Agency Booking"),
		MailFrom:       envStr("MAIL_FROM", "no-reply@agency-booking.local"),
		VerifyURLBase:  envStr("VERIFY_URL_BASE", "http://localhost:8080/v1/auth/verify-email"),

		BootstrapAdminEmail:    os.Getenv("BOOTSTRAP_ADMIN_EMAIL"),
		BootstrapAdminPassword: os.Getenv("BOOTSTRAP_ADMIN_PASSWORD"),
	}

	switch cfg.StoreDriver {
	case "mysql":
		cfg.DBUser = l.must("DB_USER")
		cfg.DBPass = os.Getenv("DB_PASS") // empty allowed
		cfg.DBHost = l.must("DB_HOST")
		cfg.DBPort = l.must("DB_PORT")
		cfg.DBName = l.must("DB_NAME")
	case "memory":
	default:
		l.fail("STORE_DRIVER must be mysql or memory, got %q", cfg.StoreDriver)
	}

	if cfg.JWTAccessSecret != "" && cfg.JWTAccessSecret == cfg.JWTRefreshSecret {
		l.fail("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		l.fail("token lifetimes must be positive")
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		l.fail("BCRYPT_COST out of range: %d", cfg.BcryptCost)
	}
	if (cfg.BootstrapAdminEmail == "") != (cfg.BootstrapAdminPassword == "") {
		l.fail("BOOTSTRAP_ADMIN_EMAIL and BOOTSTRAP_ADMIN_PASSWORD must be set together")
	}

	return cfg, l.err()
}

// loader collects problems instead of exiting on the first one.
type loader struct{ errs []error }

func (l *loader) fail(format string, args ...any) {
	l.errs = append(l.errs, fmt.Errorf(format, args...))
}

// must retrieves a required environment variable.
func (l *loader) must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		l.fail("missing required env var: %s", key)
	}
	return v
}

// intOr parses an optional integer variable.
func (l *loader) intOr(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		l.fail("invalid int for %s: %q", key, s)
		return def
	}
	return n
}

func (l *loader) err() error { return errors.Join(l.errs...) }

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}
