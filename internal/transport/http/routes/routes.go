package routes

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/omairakapasha/EventAI-sub001/internal/core/domain"
	"github.com/omairakapasha/EventAI-sub001/internal/core/port"
	"github.com/omairakapasha/EventAI-sub001/internal/infra/config"
	"github.com/omairakapasha/EventAI-sub001/internal/transport/http/handlers"
	"github.com/omairakapasha/EventAI-sub001/internal/transport/http/middleware"
)

// AuthService is the token lifecycle surface: login, bearer verification and session revocation.
type AuthService interface {
	handlers.AuthService
	handlers.SessionAdministrator
	middleware.Authenticator
}

// ServiceSet groups the services the HTTP layer depends on.
type ServiceSet struct {
	Auth      AuthService
	Accounts  handlers.AccountService
	TwoFactor handlers.TwoFactorService
	Keys      handlers.KeySetSource
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config      *config.AppConfig
	Logger      *zap.Logger
	RateLimiter *middleware.RateLimiter
	Metrics     *middleware.HTTPMetrics
	Services    ServiceSet
	Database    port.HealthChecker
	Cache       port.HealthChecker
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) *gin.Engine {
	if deps.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := gin.New()
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.EnrichContext())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.CORS(deps.Config.Auth.CORSOrigins))
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Handler())
	}

	healthOptions := make([]handlers.HealthOption, 0, 2)
	if deps.Database != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("postgres", deps.Database.HealthCheck))
	}
	if deps.Cache != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("redis", deps.Cache.HealthCheck))
	}
	healthHandler := handlers.NewHealthHandler(healthOptions...)

	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Readiness)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if deps.Services.Keys != nil {
		r.GET("/.well-known/jwks.json", handlers.NewJWKSHandler(deps.Services.Keys).Keys)
	}

	if deps.Services.Auth == nil {
		return r
	}

	requireAuth := middleware.RequireAuth(deps.Services.Auth, handlers.RespondError)
	limits := deps.Config.RateLimit

	authGroup := r.Group("/auth")

	handlers.NewAuthHandler(deps.Services.Auth).RegisterRoutes(
		authGroup,
		requireAuth,
		rateLimit(deps, "auth_login_ip", limits.LoginMaxAttempts, limits.WindowDuration),
		rateLimit(deps, "auth_refresh_ip", limits.RefreshMaxAttempts, limits.WindowDuration),
	)

	if deps.Services.Accounts != nil {
		handlers.NewAccountHandler(deps.Services.Accounts).RegisterRoutes(
			authGroup,
			requireAuth,
			rateLimit(deps, "auth_register_ip", limits.RegisterMaxAttempts, limits.WindowDuration),
			rateLimit(deps, "password_reset_ip", limits.PasswordResetMaxAttempts, time.Hour),
		)
	}

	if deps.Services.TwoFactor != nil {
		twoFactorGroup := authGroup.Group("/2fa")
		twoFactorGroup.Use(requireAuth)
		handlers.NewTwoFactorHandler(deps.Services.TwoFactor).RegisterRoutes(
			twoFactorGroup,
			rateLimit(deps, "password_confirm_ip", limits.PasswordConfirmMaxAttempts, limits.WindowDuration),
		)
	}

	adminGroup := r.Group("/admin")
	adminGroup.Use(requireAuth, middleware.RequirePermission(domain.PermSessionRevoke, handlers.RespondError))
	handlers.NewAdminHandler(deps.Services.Auth).RegisterRoutes(adminGroup)

	return r
}

// rateLimit builds a per-IP rule, or nothing when limiting is disabled for the route.
func rateLimit(deps Dependencies, name string, limit int, window time.Duration) []gin.HandlerFunc {
	if deps.RateLimiter == nil || limit <= 0 {
		return nil
	}
	if window <= 0 {
		window = time.Minute
	}

	rule := middleware.RateLimitRule{
		Name:       name,
		Limit:      limit,
		Window:     window,
		Identifier: middleware.ClientIPIdentifier(),
	}

	return []gin.HandlerFunc{deps.RateLimiter.RateLimit(rule)}
}
