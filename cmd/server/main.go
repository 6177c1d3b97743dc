package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/iliyamo/agency-booking/internal/auth"
	"github.com/iliyamo/agency-booking/internal/config"
	"github.com/iliyamo/agency-booking/internal/database"
	"github.com/iliyamo/agency-booking/internal/handler"
	"github.com/iliyamo/agency-booking/internal/logger"
	"github.com/iliyamo/agency-booking/internal/memstore"
	"github.com/iliyamo/agency-booking/internal/metrics"
	"github.com/iliyamo/agency-booking/internal/middleware"
	"github.com/iliyamo/agency-booking/internal/model"
	"github.com/iliyamo/agency-booking/internal/notify"
	"github.com/iliyamo/agency-booking/internal/quota"
	"github.com/iliyamo/agency-booking/internal/repository"
	"github.com/iliyamo/agency-booking/internal/router"
	"github.com/iliyamo/agency-booking/internal/service"
	"github.com/iliyamo/agency-booking/internal/verification"
)

type planStore interface {
	repository.PlanReader
	handler.PlanLister
}

// stores bundles whichever backend STORE_DRIVER selected.
type stores struct {
	principals service.PrincipalStore
	tenants    service.TenantStore
	plans      planStore
	checks     map[string]handler.Check
	close      func()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		// no logger yet
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}
	log, err := logger.New(cfg.LogLevel, cfg.Env, "agency-api")
	if err != nil {
		os.Stderr.WriteString("logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.Register(prometheus.DefaultRegisterer)

	st, err := openStores(ctx, cfg, log)
	if err != nil {
		log.Fatal("store unavailable", zap.String("driver", cfg.StoreDriver), zap.Error(err))
	}
	defer st.close()

	rdb := config.NewRedisClient(config.LoadRedisConfig())
	if rdb == nil {
		log.Warn("redis unavailable: rate limiting and plan cache disabled")
	} else {
		defer func() { _ = rdb.Close() }()
		st.checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}
	plans := repository.NewCachedPlans(st.plans, rdb, config.LoadCacheConfig(), log)

	var notifier notify.Notifier = notify.LogNotifier{Log: log}
	if cfg.AMQPURL != "" {
		notifier = notify.NewPublisher(cfg.AMQPURL, log)
	} else {
		log.Info("AMQP_URL not set: verification links are only logged")
	}

	tokens := auth.NewManager(auth.Config{
		AccessSecret:  cfg.JWTAccessSecret,
		RefreshSecret: cfg.JWTRefreshSecret,
		AccessTTL:     cfg.AccessTTL,
		RefreshTTL:    cfg.RefreshTTL,
		Issuer:        cfg.JWTIssuer,
	}, st.principals)
	verifier := verification.NewService(st.tenants, notifier, cfg.VerificationTTL, nil, log)
	gate := quota.NewGate(plans, st.tenants, nil)

	authSvc := service.NewAuthService(st.principals, st.tenants, plans, tokens, verifier, service.AuthOptions{
		TrialPeriod: cfg.TrialPeriod,
		BcryptCost:  cfg.BcryptCost,
		Log:         log,
	})
	tenantSvc := service.NewTenantService(st.principals, st.tenants, plans, gate, cfg.BcryptCost, nil, log)

	if cfg.BootstrapAdminEmail != "" {
		created, err := authSvc.EnsurePlatformAdmin(ctx, cfg.BootstrapAdminEmail, cfg.BootstrapAdminPassword)
		if err != nil {
			log.Fatal("bootstrap platform admin", zap.Error(err))
		}
		if created {
			log.Info("platform admin created", zap.String("email", cfg.BootstrapAdminEmail))
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(logger.RequestID(log))
	e.Use(logger.Middleware())
	e.Use(metrics.Middleware())

	router.RegisterOps(e, st.checks)
	router.Register(e, router.Routes(router.Handlers{
		Auth:   handler.NewAuthHandler(authSvc),
		Tenant: handler.NewTenantHandler(tenantSvc),
		Plans:  handler.NewPlanHandler(st.plans),
	}), router.Deps{
		Tokens:  tokens,
		Tenants: st.tenants,
		Gate:    gate,
		Limiter: middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb),
	})

	go func() {
		addr := ":" + cfg.Port
		log.Info("listening", zap.String("addr", addr), zap.String("store", cfg.StoreDriver))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server stopped", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown", zap.Error(err))
	}
}

func openStores(ctx context.Context, cfg config.Config, log *zap.Logger) (*stores, error) {
	if cfg.StoreDriver == "memory" {
		mem := memstore.New(nil)
		for _, p := range defaultPlans {
			mem.Plans().Put(p)
		}
		log.Warn("using the in-memory store; data is lost on restart")
		return &stores{
			principals: mem.Principals(),
			tenants:    mem.Tenants(),
			plans:      mem.Plans(),
			checks:     map[string]handler.Check{},
			close:      func() {},
		}, nil
	}

	db, err := database.Open(ctx, database.Options{
		User:     cfg.DBUser,
		Password: cfg.DBPass,
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		Name:     cfg.DBName,
	})
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &stores{
		principals: repository.NewPrincipalRepo(db),
		tenants:    repository.NewTenantRepo(db),
		plans:      repository.NewPlanRepo(db),
		checks:     map[string]handler.Check{"mysql": db.PingContext},
		close:      func() { _ = db.Close() },
	}, nil
}

// defaultPlans mirrors the rows Migrate seeds.
var defaultPlans = []model.Plan{
	{ID: 1, Name: "basic", DisplayName: "Basic", MaxVehicles: 5, MaxOperators: 3, MaxTripsPerPeriod: 100},
	{ID: 2, Name: "pro", DisplayName: "Professional", MaxVehicles: 25, MaxOperators: 15, MaxTripsPerPeriod: 1000},
	{ID: 3, Name: "enterprise", DisplayName: "Enterprise", MaxVehicles: 200, MaxOperators: 100, MaxTripsPerPeriod: 20000},
}
