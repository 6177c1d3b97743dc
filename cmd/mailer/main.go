// Command mailer drains the tenant verification queue and delivers each
// verification link through SendGrid.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/iliyamo/agency-booking/internal/config"
	"github.com/iliyamo/agency-booking/internal/logger"
	"github.com/iliyamo/agency-booking/internal/notify"
)

func main() {
	cfg, err := config.LoadMail()
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}
	log, err := logger.New(cfg.LogLevel, cfg.Env, "agency-mailer")
	if err != nil {
		os.Stderr.WriteString("logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mailer := notify.NewSendGridMailer(cfg.SendGridAPIKey, cfg.FromName, cfg.From, cfg.VerifyURLBase)
	consumer := &notify.Consumer{
		URL:    cfg.AMQPURL,
		Queue:  notify.VerificationQueue,
		Handle: mailer.SendVerification,
		Log:    log,
	}

	log.Info("mailer started", zap.String("queue", consumer.Queue))
	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal("consumer stopped", zap.Error(err))
	}
	log.Info("mailer stopped")
}
