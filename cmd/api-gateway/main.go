package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	_ "github.com/noah-isme/alumni-portal-api/api/swagger"
	"github.com/noah-isme/alumni-portal-api/internal/alumni"
	"github.com/noah-isme/alumni-portal-api/internal/handler"
	"github.com/noah-isme/alumni-portal-api/internal/middleware"
	"github.com/noah-isme/alumni-portal-api/internal/models"
	"github.com/noah-isme/alumni-portal-api/internal/repository"
	"github.com/noah-isme/alumni-portal-api/internal/router"
	"github.com/noah-isme/alumni-portal-api/internal/scheduler"
	"github.com/noah-isme/alumni-portal-api/internal/service"
	"github.com/noah-isme/alumni-portal-api/pkg/cache"
	"github.com/noah-isme/alumni-portal-api/pkg/config"
	"github.com/noah-isme/alumni-portal-api/pkg/database"
	"github.com/noah-isme/alumni-portal-api/pkg/idp"
	"github.com/noah-isme/alumni-portal-api/pkg/jobs"
	"github.com/noah-isme/alumni-portal-api/pkg/logger"
	"github.com/noah-isme/alumni-portal-api/pkg/ratelimit"
)

// @title Alumni Portal API
// @version 1.0.0
// @description Alumni directory, accounts and admin console
// @BasePath /api/v1
// @schemes http https

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if err := run(cfg, logr); err != nil {
		logr.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logr *zap.Logger) error {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := alumni.ValidateBranchTable(alumni.DefaultBranchRules); err != nil {
		logr.Warn("branch table has overlapping keywords", zap.Error(err))
	}

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, continuing without cache", zap.Error(err))
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	metrics := service.NewMetricsService()
	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	alumniRepo := repository.NewAlumniRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, "alumni-portal:")
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Alumni.CacheTTL, logr, redisClient != nil)

	engine := alumni.NewFilterEngine(alumni.NewNormalizer(cfg.Alumni.InstitutionVariants, nil), nil)
	alumniSvc := service.NewAlumniService(alumniRepo, userRepo, engine, cacheSvc, metrics, validate, logr, service.AlumniConfig{
		DefaultPageSize: cfg.Alumni.DefaultPageSize,
		CacheTTL:        cfg.Alumni.CacheTTL,
	})

	importQueue := jobs.NewQueue[[]models.AlumniProfile]("alumni-import", alumniSvc.HandleImportJob, jobs.QueueConfig{
		Workers:    cfg.Import.Workers,
		BufferSize: cfg.Import.BufferSize,
		MaxRetries: cfg.Import.MaxRetries,
		RetryDelay: cfg.Import.RetryDelay,
		Logger:     logr,
	})
	importQueue.Start(ctx)
	defer importQueue.Stop()
	alumniSvc.UseQueue(importQueue)

	userSvc := service.NewUserService(userRepo, validate, logr)
	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})

	authenticator, err := newAuthenticator(cfg, authSvc, userRepo, metrics, logr)
	if err != nil {
		return err
	}

	var limiter *ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		limiter = newLimiter(cfg, redisClient)
	}

	reindex := scheduler.New(alumniSvc, cfg.Alumni.ReindexSchedule, logr)
	if err := reindex.Start(ctx); err != nil {
		return err
	}
	defer reindex.Stop()

	deps := router.Dependencies{
		Config:        cfg,
		Logger:        logr,
		Metrics:       metrics,
		Authenticator: authenticator,
		Audit:         userRepo,
		AuthHandler: handler.NewAuthHandler(authSvc, handler.CookieConfig{
			Name:   cfg.Auth.CookieName,
			Secure: cfg.Auth.CookieSecure,
			MaxAge: cfg.JWT.Expiration,
		}),
		UserHandler:    handler.NewUserHandler(userSvc),
		AlumniHandler:  handler.NewAlumniHandler(alumniSvc),
		MetricsHandler: handler.NewMetricsHandler(metrics, db, nil),
	}
	if limiter != nil {
		deps.Limiter = limiter
		deps.MetricsHandler = handler.NewMetricsHandler(metrics, db, limiter)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router.New(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env), zap.String("auth_mode", cfg.Auth.Mode))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newAuthenticator(cfg *config.Config, authSvc *service.AuthService, users *repository.UserRepository, metrics *service.MetricsService, logr *zap.Logger) (middleware.Authenticator, error) {
	if cfg.Auth.Mode != config.AuthModeIDP {
		return authSvc, nil
	}
	verifier, err := idp.NewVerifier(cfg.IDP)
	if err != nil {
		return nil, fmt.Errorf("configure identity provider: %w", err)
	}
	return service.NewIdentityService(users, verifier, idp.NewClient(cfg.IDP), metrics, logr), nil
}

func newLimiter(cfg *config.Config, redisClient *redis.Client) *ratelimit.Limiter {
	var opts []ratelimit.Option
	if cfg.RateLimit.Store == config.RateLimitStoreRedis && redisClient != nil {
		opts = append(opts, ratelimit.WithStore(ratelimit.NewRedisStore(redisClient, "alumni-portal:ratelimit:", cfg.RateLimit.BucketTTL)))
	}
	return ratelimit.New(cfg.RateLimit.Capacity, cfg.RateLimit.RefillRate, opts...)
}
