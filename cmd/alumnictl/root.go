package main

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/alumni-portal-api/internal/alumni"
	"github.com/noah-isme/alumni-portal-api/internal/repository"
	"github.com/noah-isme/alumni-portal-api/internal/service"
	"github.com/noah-isme/alumni-portal-api/pkg/config"
	"github.com/noah-isme/alumni-portal-api/pkg/database"
	"github.com/noah-isme/alumni-portal-api/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:           "alumnictl",
	Short:         "Maintenance commands for the alumni portal",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// app holds the services a maintenance command needs. Imports run
// synchronously because no queue is attached.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *sqlx.DB
	alumni *service.AlumniService
	users  *service.UserService
}

func bootstrap(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	validate := validator.New()
	userRepo := repository.NewUserRepository(db)
	engine := alumni.NewFilterEngine(alumni.NewNormalizer(cfg.Alumni.InstitutionVariants, nil), nil)

	return &app{
		cfg:    cfg,
		logger: logr,
		db:     db,
		alumni: service.NewAlumniService(repository.NewAlumniRepository(db), userRepo, engine, nil, nil, validate, logr, service.AlumniConfig{}),
		users:  service.NewUserService(userRepo, validate, logr),
	}, nil
}

func (a *app) Close() {
	_ = a.logger.Sync()
	_ = a.db.Close()
}
