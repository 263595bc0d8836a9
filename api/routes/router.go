package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/prodlens/prodlens-backend/api/controllers"
	"github.com/prodlens/prodlens-backend/api/middleware"
	"github.com/prodlens/prodlens-backend/internal/auth"
	checkoutsvc "github.com/prodlens/prodlens-backend/internal/checkout"
	"github.com/prodlens/prodlens-backend/internal/entitlements"
	"github.com/prodlens/prodlens-backend/internal/products"
	"github.com/prodlens/prodlens-backend/pkg/config"
	"github.com/prodlens/prodlens-backend/pkg/db"
	"github.com/prodlens/prodlens-backend/pkg/logger"
	"github.com/prodlens/prodlens-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	metricsRegistry *prometheus.Registry,
	authService auth.Service,
	entitlementService entitlements.Service,
	checkoutService checkoutsvc.Service,
	productService products.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	loginPolicy := middleware.NewAuthRateLimitPolicy(
		"login",
		cfg.AuthRateLimit.LoginWindow,
		cfg.AuthRateLimit.LoginIPLimit,
		cfg.AuthRateLimit.LoginEmailLimit,
	)
	registerPolicy := middleware.NewAuthRateLimitPolicy(
		"register",
		cfg.AuthRateLimit.RegisterWindow,
		cfg.AuthRateLimit.RegisterIPLimit,
		cfg.AuthRateLimit.RegisterEmailLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisClient))
	})

	if metricsRegistry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(metricsRegistry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.With(middleware.AuthRateLimit(loginPolicy, redisClient, logg)).
			Post("/login", controllers.AuthLogin(authService, logg))
		r.With(
			middleware.AuthRateLimit(registerPolicy, redisClient, logg),
			middleware.Idempotency(redisClient, logg),
		).Post("/register", controllers.AuthRegister(authService, logg))
	})

	// Read surfaces stay open: anonymous viewers get the basic verdict and the
	// service layer decides what each tier can see.
	r.Route("/api/v1/entitlements", func(r chi.Router) {
		r.With(middleware.OptionalAuth(cfg.JWT, logg)).
			Get("/", controllers.EntitlementStatus(entitlementService, logg))
		r.With(middleware.Auth(cfg.JWT, logg)).
			Post("/refresh", controllers.EntitlementRefresh(entitlementService, logg))
	})

	r.Route("/api/v1/products", func(r chi.Router) {
		r.Use(middleware.OptionalAuth(cfg.JWT, logg))
		r.Get("/search", controllers.ProductSearch(productService, entitlementService, logg))
		r.Get("/categories", controllers.ProductCategories(productService, logg))
		r.Get("/categories/{category}", controllers.ProductCategory(productService, entitlementService, logg))
	})

	r.Route("/api/v1/checkout", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(redisClient, logg))
		r.Post("/session", controllers.CheckoutCreateSession(checkoutService, logg))
		r.Post("/verify", controllers.CheckoutVerify(checkoutService, logg))
	})

	return r
}
