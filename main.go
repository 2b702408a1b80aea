package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"

	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver for migrations

	"github.com/assetlink-io/assetlink-engine/pkg/auth"
	"github.com/assetlink-io/assetlink-engine/pkg/config"
	"github.com/assetlink-io/assetlink-engine/pkg/database"
	"github.com/assetlink-io/assetlink-engine/pkg/handlers"
	"github.com/assetlink-io/assetlink-engine/pkg/locking"
	"github.com/assetlink-io/assetlink-engine/pkg/logging"
	"github.com/assetlink-io/assetlink-engine/pkg/repositories"
	"github.com/assetlink-io/assetlink-engine/pkg/services"

	"go.uber.org/zap"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("environment", cfg.Env),
		zap.String("version", cfg.Version),
		zap.Bool("auth_verification", cfg.Auth.EnableVerification),
		zap.String("database", cfg.Database.Host),
		zap.Bool("redis", cfg.Redis.Enabled()))

	ctx := context.Background()

	db, err := database.NewConnection(ctx, &database.Config{
		URL:            cfg.Database.ConnectionString(),
		MaxConnections: cfg.Database.MaxConnections,
	})
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	sqlDB, err := sql.Open("pgx", cfg.Database.ConnectionString())
	if err != nil {
		logger.Fatal("Failed to open migration connection", zap.Error(err))
	}
	if err := database.RunMigrations(sqlDB, cfg.Database.MigrationsPath, logger); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}
	_ = sqlDB.Close()

	redisClient, err := database.NewRedisClient(&cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	locker := locking.NewLocker(redisClient)

	// Repositories
	correlationRepo := repositories.NewCorrelationRepository(db)
	stagedRowRepo := repositories.NewStagedRowRepository(db)
	assetRepo := repositories.NewRFIDAssetRepository(db)
	metricRepo := repositories.NewQualityMetricRepository(db)
	auditRepo := repositories.NewAuditRepository(db)
	mappingRepo := repositories.NewMappingRepository(db)

	// Services
	auditService := services.NewAuditService(auditRepo, logger)
	confidenceService := services.NewConfidenceService(correlationRepo, metricRepo, mappingRepo, cfg.Thresholds)
	matchService := services.NewMatchService(db, correlationRepo, assetRepo, auditService, cfg.Thresholds, logger)
	qualityService := services.NewQualityService(correlationRepo, assetRepo, stagedRowRepo, metricRepo, cfg.Thresholds, logger)
	resolutionService := services.NewResolutionService(db, correlationRepo, assetRepo, stagedRowRepo, metricRepo, confidenceService, auditService, logger)
	duplicateService := services.NewDuplicateService(db, correlationRepo, stagedRowRepo, metricRepo, mappingRepo, confidenceService, auditService, locker, cfg.Thresholds, logger)
	batchService := services.NewBatchService(db, stagedRowRepo, matchService, qualityService, confidenceService, locker, logger)
	statusService := services.NewStatusService(correlationRepo, metricRepo, logger)

	// Auth
	jwksClient, err := auth.NewJWKSClient(cfg.Auth)
	if err != nil {
		logger.Fatal("Failed to create JWKS client", zap.Error(err))
	}
	authMiddleware := auth.NewMiddleware(jwksClient, logger)

	mux := http.NewServeMux()

	handlers.NewHealthHandler(cfg, logger).RegisterRoutes(mux)
	handlers.NewBatchHandler(batchService, logger).RegisterRoutes(mux, authMiddleware)
	handlers.NewCorrelationHandler(matchService, auditService, correlationRepo, logger).RegisterRoutes(mux, authMiddleware)
	handlers.NewQualityHandler(qualityService, resolutionService, logger).RegisterRoutes(mux, authMiddleware)
	handlers.NewDuplicateHandler(duplicateService, logger).RegisterRoutes(mux, authMiddleware)
	handlers.NewStatusHandler(statusService, logger).RegisterRoutes(mux, authMiddleware)

	addr := cfg.BindAddr + ":" + cfg.Port
	logger.Info("Starting assetlink-engine", zap.String("addr", addr), zap.String("version", cfg.Version))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}
