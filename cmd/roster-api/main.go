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
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/sma-roster-sync/api/swagger"
	"github.com/noah-isme/sma-roster-sync/internal/handler"
	"github.com/noah-isme/sma-roster-sync/internal/importer"
	internalmiddleware "github.com/noah-isme/sma-roster-sync/internal/middleware"
	"github.com/noah-isme/sma-roster-sync/internal/repository"
	"github.com/noah-isme/sma-roster-sync/internal/service"
	"github.com/noah-isme/sma-roster-sync/pkg/cache"
	"github.com/noah-isme/sma-roster-sync/pkg/config"
	"github.com/noah-isme/sma-roster-sync/pkg/database"
	"github.com/noah-isme/sma-roster-sync/pkg/jobs"
	"github.com/noah-isme/sma-roster-sync/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-roster-sync/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-roster-sync/pkg/middleware/requestid"
	"github.com/noah-isme/sma-roster-sync/pkg/storage"
)

// @title Roster Sync API
// @version 1.0.0
// @description Spreadsheet imports and class lists for school rosters
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

const janitorInterval = 10 * time.Minute

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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := database.EnsureSchema(ctx, db, repository.Schema); err != nil {
		logr.Fatal("failed to prepare schema", zap.Error(err))
	}

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, continuing without cache", zap.Error(err))
		redisClient = nil
	}

	students := repository.NewStudentRepository(db)
	levels := repository.NewLevelRepository(db)
	sections := repository.NewSectionRepository(db)
	mobility := repository.NewMobilityRepository(db)
	health := repository.NewHealthRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck

	metricsSvc := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Import.ResultTTL, logr, cacheRepo.Enabled())

	coordinator := importer.NewCoordinator(importer.Stores{
		Students: students,
		Levels:   levels,
		Sections: sections,
		Mobility: mobility,
		Health:   health,
	},
		importer.WithLogger(logr),
		importer.WithBatching(cfg.Import.YieldEvery, cfg.Import.ProgressEvery),
		importer.WithObserver(metricsSvc),
	)

	uploads, err := storage.NewLocalStorage(cfg.Import.UploadDir)
	if err != nil {
		logr.Fatal("failed to prepare upload directory", zap.Error(err))
	}

	importSvc := service.NewImportService(coordinator, uploads, cacheSvc, metricsSvc, logr, service.ImportServiceConfig{
		MaxFiles:            cfg.Import.MaxFiles,
		MaxUploadBytes:      cfg.Import.MaxUploadBytes,
		DefaultAcademicYear: cfg.Import.DefaultAcademicYear,
		ResultTTL:           cfg.Import.ResultTTL,
	})
	queue := jobs.NewQueue("imports", importSvc.Process, jobs.QueueConfig{
		Workers:     cfg.Import.Workers,
		MaxRetries:  cfg.Import.Retries,
		RetryDelay:  5 * time.Second,
		OnExhausted: importSvc.MarkExhausted,
		Logger:      logr,
	})
	importSvc.AttachQueue(queue)
	queue.Start(ctx)
	defer queue.Stop()

	templateSvc := service.NewTemplateService()
	rosterSvc := service.NewRosterService(service.RosterStores{
		Students: students,
		Sections: sections,
		Levels:   levels,
		Mobility: mobility,
	}, cacheSvc, logr, service.RosterServiceConfig{Title: cfg.Reports.Title})
	authSvc := service.NewAuthService(service.AuthConfig{Secret: cfg.JWT.Secret, Issuer: cfg.JWT.Issuer})

	go runJanitor(ctx, importSvc, uploads, cfg.Import.ResultTTL, logr)

	importHandler := handler.NewImportHandler(importSvc, templateSvc, cfg.APIPrefix, cfg.Import.MaxUploadBytes)
	rosterHandler := handler.NewRosterHandler(rosterSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc, health)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.GET("/metrics/summary", metricsHandler.Snapshot)
	api.GET("/imports/variants", importHandler.Variants)
	api.GET("/imports/templates/:variant", importHandler.Template)
	api.GET("/imports/:id", importHandler.Status)
	api.POST("/imports/:variant", internalmiddleware.Auth(authSvc, cfg.JWT.Required), importHandler.Upload)
	api.GET("/levels", rosterHandler.Levels)
	api.GET("/sections/:id/students", rosterHandler.Students)
	api.GET("/students/:nationalId/mobility", rosterHandler.Mobility)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}

type expiringJobs interface {
	PruneExpired() int
}

type stagedUploads interface {
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

// runJanitor drops finished job snapshots and stale staged uploads.
func runJanitor(ctx context.Context, jobsSvc expiringJobs, uploads stagedUploads, ttl time.Duration, logr *zap.Logger) {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pruned := jobsSvc.PruneExpired()
			removed, err := uploads.CleanupOlderThan(2 * ttl)
			if err != nil {
				logr.Warn("upload cleanup failed", zap.Error(err))
			}
			if pruned > 0 || len(removed) > 0 {
				logr.Info("janitor pass", zap.Int("jobs_pruned", pruned), zap.Int("uploads_removed", len(removed)))
			}
		}
	}
}
