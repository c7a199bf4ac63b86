// Package router assembles the HTTP surface of the portal.
package router

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/alumni-portal-api/internal/handler"
	"github.com/noah-isme/alumni-portal-api/internal/middleware"
	"github.com/noah-isme/alumni-portal-api/internal/models"
	"github.com/noah-isme/alumni-portal-api/internal/service"
	"github.com/noah-isme/alumni-portal-api/pkg/config"
	"github.com/noah-isme/alumni-portal-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/alumni-portal-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/alumni-portal-api/pkg/middleware/requestid"
)

// Dependencies carries everything the router wires together. Auth is nil
// when signup and password login are unavailable (identity provider mode).
type Dependencies struct {
	Config        *config.Config
	Logger        *zap.Logger
	Metrics       *service.MetricsService
	Limiter       middleware.RateLimiter
	Authenticator middleware.Authenticator
	Audit         middleware.AuditWriter

	AuthHandler    *handler.AuthHandler
	UserHandler    *handler.UserHandler
	AlumniHandler  *handler.AlumniHandler
	MetricsHandler *handler.MetricsHandler
}

// New builds the gin engine. Rate limiting runs before authentication so
// rejected bursts never reach the token verifier.
func New(deps Dependencies) *gin.Engine {
	cfg := deps.Config
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(deps.Logger))
	r.Use(middleware.Metrics(deps.Metrics))
	// Admission runs ahead of CORS so preflights and probes consume tokens too.
	if deps.Limiter != nil {
		r.Use(middleware.RateLimit(deps.Limiter, middleware.RateLimitOptions{
			TrustProxy: cfg.RateLimit.TrustProxy,
			Logger:     deps.Logger,
			Metrics:    deps.Metrics,
		}))
	}
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))

	r.GET("/health", deps.MetricsHandler.Health)
	r.GET("/ready", deps.MetricsHandler.Ready)
	r.GET("/metrics", deps.MetricsHandler.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	authenticated := middleware.Authenticate(deps.Authenticator, cfg.Auth.CookieName)

	auth := api.Group("/auth")
	auth.POST("/logout", deps.AuthHandler.Logout)
	auth.GET("/me", authenticated, deps.AuthHandler.Me)
	if cfg.Auth.Mode == config.AuthModeSession {
		auth.POST("/signup", deps.AuthHandler.Signup)
		auth.POST("/login", deps.AuthHandler.Login)
		auth.POST("/change-password", authenticated, deps.AuthHandler.ChangePassword)
	}

	alumni := api.Group("/alumni", authenticated)
	alumni.GET("", deps.AlumniHandler.List)
	alumni.GET("/:id", deps.AlumniHandler.Get)

	api.PATCH("/profile", authenticated, deps.UserHandler.UpdateProfile)

	admin := api.Group("/admin", authenticated, middleware.RequireRoles(models.RoleAdmin))
	users := admin.Group("/users")
	users.GET("", deps.UserHandler.List)
	users.GET("/:id", deps.UserHandler.Get)
	users.PATCH("/:id", deps.UserHandler.Update)
	users.DELETE("/:id", deps.UserHandler.Delete)

	adminAlumni := admin.Group("/alumni")
	adminAlumni.POST("/import", deps.AlumniHandler.Import)
	adminAlumni.POST("/reindex", deps.AlumniHandler.Reindex)
	adminAlumni.GET("/export",
		middleware.Audit(deps.Audit, deps.Logger, models.AuditActionAlumniExport, "alumni_profiles"),
		deps.AlumniHandler.Export)

	admin.GET("/rate-limit", deps.MetricsHandler.RateLimit)

	return r
}
