package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/prodlens/prodlens-backend/api/routes"
	"github.com/prodlens/prodlens-backend/internal/auth"
	"github.com/prodlens/prodlens-backend/internal/billing"
	"github.com/prodlens/prodlens-backend/internal/checkout"
	"github.com/prodlens/prodlens-backend/internal/entitlements"
	"github.com/prodlens/prodlens-backend/internal/products"
	"github.com/prodlens/prodlens-backend/internal/users"
	"github.com/prodlens/prodlens-backend/pkg/config"
	"github.com/prodlens/prodlens-backend/pkg/db"
	"github.com/prodlens/prodlens-backend/pkg/logger"
	"github.com/prodlens/prodlens-backend/pkg/metrics"
	"github.com/prodlens/prodlens-backend/pkg/migrate"
	"github.com/prodlens/prodlens-backend/pkg/redis"
	pkgstripe "github.com/prodlens/prodlens-backend/pkg/stripe"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	stripeClient, err := pkgstripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap stripe client", err)
		os.Exit(1)
	}

	oracle, err := billing.NewStripeOracle(stripeClient)
	if err != nil {
		logg.Error(context.Background(), "failed to create billing oracle", err)
		os.Exit(1)
	}

	metricsRegistry := prometheus.NewRegistry()
	entitlementMetrics := metrics.NewEntitlementMetrics(metricsRegistry)

	entitlementRepo := entitlements.NewRepository(dbClient.DB())

	reconciler, err := billing.NewReconciler(billing.ReconcilerParams{
		Oracle:  oracle,
		Repo:    entitlementRepo,
		Logger:  logg,
		Metrics: entitlementMetrics,
		Timeout: cfg.Entitlements.OracleTimeout,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create billing reconciler", err)
		os.Exit(1)
	}

	entitlementService, err := entitlements.NewService(entitlements.ServiceParams{
		Cache:      entitlements.NewSnapshotCache(redisClient, cfg.Entitlements.SnapshotTTL),
		Reconciler: reconciler,
		Logger:     logg,
		Metrics:    entitlementMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create entitlement service", err)
		os.Exit(1)
	}

	authService, err := auth.NewService(auth.ServiceParams{
		UserRepo:       users.NewRepository(dbClient.DB()),
		JWTConfig:      cfg.JWT,
		PasswordConfig: cfg.Password,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create auth service", err)
		os.Exit(1)
	}

	checkoutService, err := checkout.NewService(checkout.ServiceParams{
		Oracle:       oracle,
		Repo:         entitlementRepo,
		Invalidator:  entitlementService,
		Entitlements: cfg.Entitlements,
		Stripe:       cfg.Stripe,
		Logger:       logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create checkout service", err)
		os.Exit(1)
	}

	productService, err := products.NewService(products.ServiceParams{
		Repo:      products.NewRepository(dbClient.DB()),
		Evaluator: entitlements.NewEvaluator(cfg.Entitlements.FreeTierCap),
		Logger:    logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create product service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			metricsRegistry,
			authService,
			entitlementService,
			checkoutService,
			productService,
		),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
