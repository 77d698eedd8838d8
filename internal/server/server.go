package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"omega-store/internal/config"
	"omega-store/internal/database"
	"omega-store/internal/events"
	custommiddleware "omega-store/internal/middleware"
	"omega-store/internal/payment"
	"omega-store/internal/repository"
	"omega-store/internal/service"
	"omega-store/internal/transport"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Dependencies are the long-lived clients the server is built on
type Dependencies struct {
	Database  database.Service
	Redis     *redis.Client
	Bus       *events.Bus
	Processor payment.Processor
}

type Server struct {
	*http.Server
	config  *config.Config
	logger  *zap.Logger
	deps    Dependencies
	catalog service.CatalogService
}

func NewServer(cfg *config.Config, logger *zap.Logger, deps Dependencies) *Server {
	router := chi.NewRouter()

	for _, mw := range custommiddleware.DefaultMiddlewareStack() {
		router.Use(mw)
	}
	router.Use(custommiddleware.ErrorHandlingMiddleware(logger))
	router.Use(custommiddleware.LoggingMiddleware(logger))
	router.Use(custommiddleware.CORSMiddleware(cfg.Server.AllowedOrigins, cfg.Server.IsDevelopment()))

	s := &Server{config: cfg, logger: logger, deps: deps}
	router.Get("/health", s.health)

	db := deps.Database.DB()

	// Initialize repositories
	userRepo := repository.NewUserRepository(db)
	refreshTokenRepo := repository.NewRefreshTokenRepository(db)
	productRepo := repository.NewProductRepository(db)
	categoryRepo := repository.NewCategoryRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	reportRepo := repository.NewReportRepository(deps.Database.DBX())
	cartStore := repository.NewCartStore(deps.Redis, cfg.Store.CartTTL, logger)
	txManager := repository.NewTxManager(db)

	// Initialize services
	userService := service.NewUserService(userRepo, refreshTokenRepo, service.AuthConfig{
		JWTSecret:     cfg.JWT.Secret,
		AccessExpiry:  time.Duration(cfg.JWT.AccessExpiry) * time.Minute,
		RefreshExpiry: time.Duration(cfg.JWT.RefreshExpiry) * 24 * time.Hour,
		AdminEmail:    cfg.Store.AdminEmail,
	}, logger)
	catalogService := service.NewCatalogService(productRepo, categoryRepo, txManager, deps.Bus, logger)
	cartService := service.NewCartService(cartStore, productRepo, deps.Bus, logger)
	orderService := service.NewOrderService(orderRepo, catalogService, txManager, deps.Bus, logger)
	checkoutService := service.NewCheckoutService(cartStore, cartService, orderService, deps.Processor, service.CheckoutConfig{
		Currency:  cfg.Payment.Currency,
		ReturnURL: cfg.Payment.ReturnURL,
	}, logger)
	reportService := service.NewReportService(reportRepo, logger)
	s.catalog = catalogService

	// Auth middlewares
	authMiddleware := custommiddleware.AuthMiddleware(cfg.JWT.Secret, logger)
	optionalAuth := custommiddleware.OptionalAuthMiddleware(cfg.JWT.Secret, logger)
	adminMiddleware := custommiddleware.RequireAdmin(logger)

	// The change stream is long-lived and stays outside the request budget
	transport.NewEventsHandler(deps.Bus, logger).RegisterRoutes(router)

	limiter := custommiddleware.NewRateLimiter(deps.Redis, custommiddleware.DefaultRateLimitKeyPrefix, logger)
	if proxies, err := cfg.RateLimit.ProxyPrefixes(); err != nil {
		logger.Error("Ignoring trusted proxies", zap.Error(err))
	} else {
		limiter.TrustProxies(proxies)
	}
	credentialLimit := limiter.Limit("credentials", cfg.RateLimit.CredentialTries, cfg.RateLimit.CredentialWindow)

	router.Group(func(r chi.Router) {
		r.Use(limiter.Limit("api", cfg.RateLimit.Requests, cfg.RateLimit.Window))

		transport.NewUserHandler(userService, logger).RegisterRoutes(r, authMiddleware, credentialLimit)
		transport.NewProductHandler(catalogService, logger).RegisterRoutes(r, authMiddleware, adminMiddleware)
		transport.NewCategoryHandler(catalogService, logger).RegisterRoutes(r, authMiddleware, adminMiddleware)
		transport.NewCartHandler(cartService, checkoutService, logger).RegisterRoutes(r)
		transport.NewCheckoutHandler(checkoutService, logger).RegisterRoutes(r, optionalAuth)
		transport.NewOrderHandler(orderService, logger).RegisterRoutes(r, authMiddleware, adminMiddleware)
		transport.NewReportHandler(reportService, logger).RegisterRoutes(r, authMiddleware, adminMiddleware)
	})

	s.Server = &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return s
}

// health reports the database and Redis status
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	body := map[string]interface{}{"status": "ok"}

	dbHealth := s.deps.Database.Health()
	body["database"] = dbHealth
	if dbHealth["status"] != "up" {
		status = http.StatusServiceUnavailable
		body["status"] = "degraded"
	}

	ctx, cancel := context.WithTimeout(r.Context(), time.Second)
	defer cancel()
	if err := s.deps.Redis.Ping(ctx).Err(); err != nil {
		status = http.StatusServiceUnavailable
		body["status"] = "degraded"
		body["redis"] = "down"
	} else {
		body["redis"] = "up"
	}

	body["payments"] = s.deps.Processor.Configured()
	custommiddleware.RespondWithJSON(w, status, body)
}

// SeedCatalog loads the default catalog into an empty store
func (s *Server) SeedCatalog(ctx context.Context) error {
	seeded, err := s.catalog.SeedDefaults(ctx)
	if err != nil {
		return fmt.Errorf("failed to seed catalog: %w", err)
	}
	if seeded {
		s.logger.Info("Default catalog loaded")
	}
	return nil
}

func (s *Server) Close() error {
	s.logger.Info("Closing server resources")

	if s.deps.Redis != nil {
		if err := s.deps.Redis.Close(); err != nil {
			s.logger.Error("Failed to close redis client", zap.Error(err))
		}
	}

	if s.deps.Database != nil {
		if err := s.deps.Database.Close(); err != nil {
			s.logger.Error("Failed to close database connection", zap.Error(err))
		}
	}

	s.logger.Sync()
	return nil
}
