package http

import (
	"context"
	"crypto"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/banking/refdata-service/internal/api/http/handlers"
	"github.com/banking/refdata-service/internal/api/http/middleware"
	"github.com/banking/refdata-service/internal/config"
	"github.com/banking/refdata-service/internal/pkg/health"
	"github.com/banking/refdata-service/internal/pkg/logger"
	"github.com/banking/refdata-service/internal/pkg/metrics"
	"github.com/banking/refdata-service/internal/pkg/validator"
	"github.com/banking/refdata-service/internal/resilience"
)

// Router holds the Echo instance and dependencies
type Router struct {
	echo        *echo.Echo
	cfg         *config.Config
	log         *logger.Logger
	health      *health.Health
	validator   *validator.CustomValidator
	rateLimiter *middleware.RateLimiter
}

// RouterDeps are the dependencies for the router. RedisClient,
// RedisBreaker, Metrics and AuthPublicKey may be nil.
type RouterDeps struct {
	Config        *config.Config
	Logger        *logger.Logger
	Health        *health.Health
	Metrics       *metrics.Metrics
	LeiService    handlers.LeiLookup
	IsinService   handlers.IsinLookup
	RedisClient   *redis.Client
	RedisBreaker  *resilience.CircuitBreaker
	AuthPublicKey crypto.PublicKey
}

// NewRouter creates a new HTTP router with all middleware and routes
func NewRouter(deps RouterDeps) *Router {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	v := validator.New()
	e.Validator = v

	router := &Router{
		echo:      e,
		cfg:       deps.Config,
		log:       deps.Logger,
		health:    deps.Health,
		validator: v,
		rateLimiter: middleware.NewRateLimiter(deps.RedisClient, deps.RedisBreaker, middleware.RateLimitConfig{
			PerClientPerMinute:     deps.Config.RateLimit.PerClientPerMinute,
			PerIPPerMinute:         deps.Config.RateLimit.PerIPPerMinute,
			BurstSize:              deps.Config.RateLimit.BurstSize,
			EnableInMemoryFallback: deps.Config.RateLimit.EnableInMemoryFallback,
		}, deps.Logger),
	}

	router.setupMiddleware(deps)
	router.setupRoutes(deps)

	return router
}

func (r *Router) setupMiddleware(deps RouterDeps) {
	// Recovery first so panics in later middleware are caught
	r.echo.Use(middleware.RecoveryLogging(deps.Logger))
	r.echo.Use(middleware.RequestID())
	r.echo.Use(middleware.Logging(deps.Logger))

	// Echo treats an empty origin list as "*", so CORS is only installed
	// when origins are configured
	if origins := deps.Config.GetCORSAllowedOrigins(); len(origins) > 0 {
		r.echo.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
			AllowOrigins:  origins,
			AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders:  []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, middleware.RequestIDHeader},
			ExposeHeaders: []string{middleware.RequestIDHeader, "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
			MaxAge:        3600,
		}))
	}

	r.echo.Use(echomiddleware.SecureWithConfig(echomiddleware.SecureConfig{
		XSSProtection:         "1; mode=block",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "DENY",
		HSTSMaxAge:            31536000,
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		ReferrerPolicy:        "no-referrer",
	}))

	// Request bodies are small validation payloads
	r.echo.Use(echomiddleware.BodyLimit("64K"))

	r.echo.Use(echomiddleware.TimeoutWithConfig(echomiddleware.TimeoutConfig{
		Timeout:      deps.Config.Server.RequestTimeout,
		ErrorMessage: "request timed out",
	}))
}

func (r *Router) setupRoutes(deps RouterDeps) {
	r.echo.GET("/health/live", echo.WrapHandler(deps.Health.LiveHandler()))
	r.echo.GET("/health/ready", echo.WrapHandler(deps.Health.ReadyHandler()))
	if deps.Config.Metrics.Enabled && deps.Metrics != nil {
		r.echo.GET(deps.Config.Metrics.Path, echo.WrapHandler(deps.Metrics.Handler()))
	}

	v1 := r.echo.Group("/api/v1")
	if deps.AuthPublicKey != nil {
		v1.Use(middleware.Auth(middleware.AuthConfig{
			PublicKey: deps.AuthPublicKey,
			Issuer:    deps.Config.Auth.JWTIssuer,
			Audiences: deps.Config.Auth.JWTAudience,
		}))
		v1.Use(middleware.RequireScopes(middleware.ScopeRead))
	}
	v1.Use(r.rateLimiter.RateLimit())

	// Offline validation
	idHandler := handlers.NewIdentifierHandler(r.validator, deps.Metrics)
	ids := v1.Group("/identifiers")
	{
		ids.GET("/countries", idHandler.Countries)
		ids.POST("/validate", idHandler.ValidateBody)
		ids.GET("/detect/:code", idHandler.Detect)
		ids.GET("/:kind/:code/validate", idHandler.Validate)
	}

	leiHandler := handlers.NewLeiHandler(deps.LeiService, deps.Logger)
	lei := v1.Group("/lei")
	{
		lei.GET("", leiHandler.GetByCodes)
		lei.POST("/batch", leiHandler.Batch)
		lei.GET("/search", leiHandler.Search)
		lei.GET("/by-isin/:isin", leiHandler.GetByIsin)
		lei.GET("/by-bic/:bic", leiHandler.GetByBic)
		lei.GET("/by-cusip/:cusip", leiHandler.GetByCusip)
		lei.GET("/by-sedol/:sedol", leiHandler.GetBySedol)
		lei.GET("/:code", leiHandler.GetByCode)
	}

	isinHandler := handlers.NewIsinHandler(deps.IsinService, deps.Logger)
	isin := v1.Group("/isin")
	{
		isin.GET("/by-cusip/:cusip", isinHandler.ByCusip)
		isin.GET("/by-sedol/:sedol", isinHandler.BySedol)
	}
}

// Start starts the HTTP server
func (r *Router) Start() error {
	addr := fmt.Sprintf("%s:%d", r.cfg.Server.Host, r.cfg.Server.Port)
	r.echo.Server.ReadTimeout = r.cfg.Server.ReadTimeout
	r.echo.Server.WriteTimeout = r.cfg.Server.WriteTimeout
	r.log.Info("Starting HTTP server", logger.Component("http"), logger.Operation("start"))
	return r.echo.Start(addr)
}

// Shutdown gracefully shuts down the server
func (r *Router) Shutdown(ctx context.Context) error {
	return r.echo.Shutdown(ctx)
}

// Echo returns the underlying Echo instance
func (r *Router) Echo() *echo.Echo {
	return r.echo
}
