package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	_ "github.com/noah-isme/enrollee-api/api/swagger"
	"github.com/noah-isme/enrollee-api/internal/handler"
	"github.com/noah-isme/enrollee-api/internal/models"
	"github.com/noah-isme/enrollee-api/internal/repository"
	"github.com/noah-isme/enrollee-api/internal/service"
	"github.com/noah-isme/enrollee-api/pkg/cache"
	"github.com/noah-isme/enrollee-api/pkg/config"
	"github.com/noah-isme/enrollee-api/pkg/database"
	"github.com/noah-isme/enrollee-api/pkg/export"
	"github.com/noah-isme/enrollee-api/pkg/jobs"
	"github.com/noah-isme/enrollee-api/pkg/logger"
	"github.com/noah-isme/enrollee-api/pkg/storage"
)

// @title Enrollee API
// @version 1.0.0
// @description Enrollee records, bulk spreadsheet import and exports
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, caching disabled", zap.Error(err))
		redisClient = nil
	}

	validate := service.NewValidator()
	metrics := service.NewMetricsService()

	enrolleeRepo := repository.NewEnrolleeRepository(db)
	userRepo := repository.NewUserRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck

	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Import.CacheTTL, logr, redisClient != nil)
	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "enrollee-api",
	})
	userSvc := service.NewUserService(userRepo, validate, logr)
	enrolleeSvc := service.NewEnrolleeService(enrolleeRepo, userRepo, cacheSvc, metrics, validate, logr, cfg.Import.CacheTTL)

	archiveSvc, archiveQueue, err := newArchiver(cfg, logr)
	if err != nil {
		logr.Fatal("failed to prepare upload archive", zap.Error(err))
	}
	importSvc := service.NewImportService(enrolleeRepo, userRepo, cacheSvc, metrics, archiveSvc, logr, service.ImportConfig{
		AllowedMIMEs: cfg.Import.AllowedMIMEs,
		MaxFileSize:  cfg.Import.MaxFileSizeBytes,
	})

	exportStore, err := storage.NewLocalStorage(cfg.Export.StorageDir)
	if err != nil {
		logr.Fatal("failed to prepare export storage", zap.Error(err))
	}
	exportSvc := service.NewExportService(
		enrolleeRepo,
		exportStore,
		storage.NewSignedURLSigner(cfg.Export.SignedURLSecret, cfg.Export.SignedURLTTL),
		userRepo,
		service.ExportConfig{APIPrefix: cfg.APIPrefix, ResultTTL: cfg.Export.SignedURLTTL},
		logr,
		export.NewCSVExporter(),
		export.NewPDFExporter(),
	)

	if _, err := userSvc.EnsureAdmin(ctx, models.RegisterRequest{
		Username: cfg.Admin.Username,
		Email:    cfg.Admin.Email,
		Password: cfg.Admin.Password,
	}); err != nil {
		logr.Fatal("failed to bootstrap admin account", zap.Error(err))
	}

	router := newRouter(routerDeps{
		cfg:       cfg,
		logger:    logr,
		observer:  metrics,
		tokens:    authSvc,
		audit:     userRepo,
		auth:      handler.NewAuthHandler(authSvc, userSvc),
		enrollees: handler.NewEnrolleeHandler(enrolleeSvc),
		imports:   handler.NewImportHandler(importSvc),
		exports:   handler.NewExportHandler(exportSvc),
		users:     handler.NewUserHandler(userSvc),
		ops:       handler.NewMetricsHandler(metrics, readinessChecks(db, redisClient)),
	})

	if archiveQueue != nil {
		archiveQueue.Start(context.Background())
		defer archiveQueue.Stop()
	}
	go runCleanup(ctx, logr, cfg.Export.CleanupInterval, "exports", func() ([]string, error) {
		return exportSvc.Cleanup(cfg.Export.SignedURLTTL)
	})
	go runCleanup(ctx, logr, cfg.Export.CleanupInterval, "upload archive", archiveSvc.Cleanup)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	go func() {
		<-ctx.Done()
		logr.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logr.Error("shutdown error", zap.Error(err))
		}
	}()

	logr.Info("server starting", zap.String("addr", server.Addr), zap.String("env", cfg.Env))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logr.Error("server failed", zap.Error(err))
	}
}

// newArchiver wires upload archival. The queue is nil when archival is off.
func newArchiver(cfg *config.Config, logr *zap.Logger) (*service.ArchiveService, *jobs.Queue, error) {
	archiveCfg := service.ArchiveServiceConfig{
		Enabled:   cfg.Import.ArchiveEnabled,
		Retention: cfg.Import.ArchiveRetention,
	}
	if !archiveCfg.Enabled {
		return service.NewArchiveService(nil, logr, archiveCfg), nil, nil
	}

	store, err := storage.NewLocalStorage(cfg.Import.ArchiveDir)
	if err != nil {
		return nil, nil, err
	}
	svc := service.NewArchiveService(store, logr, archiveCfg)
	queue := jobs.NewQueue("upload-archive", svc.HandleJob, jobs.QueueConfig{
		Workers:    cfg.Import.WorkerConcurrency,
		MaxRetries: cfg.Import.WorkerRetries,
		RetryDelay: 2 * time.Second,
		Logger:     logr,
	})
	svc.AttachQueue(queue)
	return svc, queue, nil
}

func readinessChecks(db *sqlx.DB, client *redis.Client) map[string]handler.ReadinessCheck {
	checks := map[string]handler.ReadinessCheck{
		"postgres": db.PingContext,
	}
	if client != nil {
		checks["redis"] = func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}
	}
	return checks
}

func runCleanup(ctx context.Context, logr *zap.Logger, interval time.Duration, name string, cleanup func() ([]string, error)) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := cleanup()
			if err != nil {
				logr.Warn("cleanup failed", zap.String("target", name), zap.Error(err))
				continue
			}
			if len(removed) > 0 {
				logr.Info("cleanup removed files", zap.String("target", name), zap.Int("count", len(removed)))
			}
		}
	}
}
