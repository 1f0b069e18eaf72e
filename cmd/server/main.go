package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	"github.com/moxworks/auditflow/internal/bank"
	"github.com/moxworks/auditflow/internal/config"
	"github.com/moxworks/auditflow/internal/directory"
	httpiface "github.com/moxworks/auditflow/internal/interfaces/http"
	"github.com/moxworks/auditflow/internal/notification"
	"github.com/moxworks/auditflow/internal/repository"
	"github.com/moxworks/auditflow/internal/workflow"
	"github.com/moxworks/auditflow/pkg/database"
	"github.com/moxworks/auditflow/pkg/utils"
)

func main() {
	// Optional .env for local development overrides
	_ = gotenv.Load()

	configPath := os.Getenv("AUDITFLOW_CONFIG")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting AuditFlow",
		zap.String("config", configPath),
		zap.Int("port", cfg.Server.Port))

	// Initialize database
	db, err := database.New(database.Config{
		Path:            cfg.Database.Path,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	// Run migrations
	migrator := database.NewMigrator(db, logger)
	if err := migrator.RunMigrations(); err != nil {
		logger.Fatal("Failed to run database migrations", zap.Error(err))
	}

	// Initialize repositories
	departmentRepo := repository.NewDepartmentRepository(db.DB, logger)
	positionRepo := repository.NewPositionRepository(db.DB, logger)
	linkRepo := repository.NewLinkRepository(db.DB, logger)
	profileRepo := repository.NewProfileRepository(db.DB, logger)
	configRepo := repository.NewConfigRepository(db.DB, logger)
	activityRepo := repository.NewActivityRepository(db.DB, logger)
	stepRepo := repository.NewStepRepository(db.DB, logger)
	notificationRepo := repository.NewNotificationRepository(db.DB, logger)
	bankAccountRepo := repository.NewBankAccountRepository(db.DB, logger)

	notifier := notification.NewNotifier(notificationRepo, logger)
	accounts := bank.NewAccounts(bankAccountRepo, logger)

	// Initialize workflow engine
	engine := workflow.NewEngine(
		db,
		profileRepo,
		configRepo,
		activityRepo,
		stepRepo,
		notifier,
		accounts,
		cfg.Workflow.FinancialCategories,
		logger,
	)

	// The reconciler runs inside directory mutation transactions so that
	// workflow repairs commit atomically with the org change.
	reconciler := workflow.NewReconciler(
		configRepo,
		activityRepo,
		stepRepo,
		profileRepo,
		departmentRepo,
		positionRepo,
		linkRepo,
		logger,
	)

	directoryService := directory.NewService(
		db,
		departmentRepo,
		positionRepo,
		linkRepo,
		profileRepo,
		reconciler,
		logger,
	)

	templateService := workflow.NewTemplateService(
		db,
		configRepo,
		departmentRepo,
		positionRepo,
		logger,
	)

	// Initialize HTTP server
	handlers := httpiface.NewHandlers(engine, templateService, directoryService, notificationRepo, logger)
	server := httpiface.NewServer(httpiface.ServerConfig{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, handlers, logger)

	go func() {
		if err := server.Start(); err != nil {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Forced shutdown", zap.Error(err))
	}

	logger.Info("Shutdown complete")
}
