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

	_ "github.com/noah-isme/registry-api/api/swagger"
	"github.com/noah-isme/registry-api/internal/handler"
	"github.com/noah-isme/registry-api/internal/middleware"
	"github.com/noah-isme/registry-api/internal/repository"
	"github.com/noah-isme/registry-api/internal/service"
	"github.com/noah-isme/registry-api/pkg/cache"
	"github.com/noah-isme/registry-api/pkg/config"
	"github.com/noah-isme/registry-api/pkg/database"
	"github.com/noah-isme/registry-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/registry-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/registry-api/pkg/middleware/requestid"
)

// @title Correspondence Registry API
// @version 1.0.0
// @description Document registration with gap-free numbering, routing workflow and cancellation.
// @BasePath /api/v1
// @schemes http
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	metrics := service.NewMetricsService()

	var cacheRepo service.CacheRepository
	dependencies := map[string]handler.Pinger{"postgres": db}
	if cfg.Cache.Enabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, caching disabled", zap.Error(err))
		} else {
			repo := repository.NewCacheRepository(redisClient)
			defer repo.Close() //nolint:errcheck
			cacheRepo = repo
			dependencies["redis"] = handler.PingerFunc(func(ctx context.Context) error {
				return redisClient.Ping(ctx).Err()
			})
		}
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Cache.TTL, logr, cfg.Cache.Enabled)

	txManager := repository.NewTxManager(db)
	configRepo := repository.NewRegisterConfigurationRepository(db)
	counterRepo := repository.NewCounterRepository(db)
	documentRepo := repository.NewDocumentRepository(db)
	stepRepo := repository.NewWorkflowStepRepository(db)
	directoryRepo := repository.NewDirectoryRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	auditSvc := service.NewAuditService(auditRepo, metrics, logr, service.AuditConfig{
		Workers:    cfg.Audit.Workers,
		BufferSize: cfg.Audit.BufferSize,
		Retries:    cfg.Audit.Retries,
	})
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()
	auditSvc.Start(workerCtx)

	directorySvc := service.NewDirectoryService(directoryRepo, cacheSvc, logr)
	numberingSvc := service.NewNumberingService(configRepo, counterRepo, txManager, metrics, logr, service.NumberingConfig{
		MaxRetries:   cfg.Numbering.MaxRetries,
		RetryBackoff: cfg.Numbering.RetryBackoff,
	})
	configSvc := service.NewRegisterConfigurationService(configRepo, counterRepo, txManager, cacheSvc, auditSvc, logr)
	documentSvc := service.NewDocumentService(documentRepo, configRepo, stepRepo, numberingSvc, txManager, auditSvc, metrics, logr)
	workflowSvc := service.NewWorkflowService(documentRepo, stepRepo, directorySvc, txManager, auditSvc, metrics, logr)
	searchSvc := service.NewDocumentSearchService(documentRepo, service.SearchConfig{
		DefaultPageSize: cfg.Search.DefaultPageSize,
		MaxPageSize:     cfg.Search.MaxPageSize,
	})
	exportSvc := service.NewExportService(documentRepo, configRepo, cfg.Export.MaxRows, logr, nil, nil)
	tokenSvc := service.NewTokenService(service.TokenConfig{Secret: cfg.JWT.Secret, Issuer: cfg.JWT.Issuer})

	metricsHandler := handler.NewMetricsHandler(metrics, dependencies)
	configHandler := handler.NewRegisterConfigurationHandler(configSvc)
	documentHandler := handler.NewDocumentHandler(documentSvc, searchSvc, exportSvc)
	workflowHandler := handler.NewWorkflowHandler(workflowSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(tokenSvc))

	configs := api.Group("/register-configurations")
	configs.GET("", configHandler.List)
	configs.GET("/:id", configHandler.Get)
	configs.POST("", middleware.RequireAdmin(), configHandler.Create)
	configs.PUT("/:id", middleware.RequireAdmin(), configHandler.Update)
	configs.DELETE("/:id", middleware.RequireAdmin(), configHandler.Delete)

	documents := api.Group("/documents")
	documents.POST("", documentHandler.Create)
	documents.POST("/search", documentHandler.Search)
	documents.GET("/export", documentHandler.Export)
	documents.GET("/:id", documentHandler.Get)
	documents.PATCH("/:id", documentHandler.Update)
	documents.DELETE("/:id", documentHandler.Delete)
	documents.POST("/:id/register", documentHandler.RegisterDraft)
	documents.POST("/:id/archive", documentHandler.Archive)
	documents.GET("/:id/history", documentHandler.History)
	documents.POST("/:id/route", workflowHandler.Route)
	documents.GET("/:id/steps", workflowHandler.ListSteps)
	documents.POST("/:id/cancel", workflowHandler.Cancel)

	steps := api.Group("/steps")
	steps.GET("/inbox", workflowHandler.Inbox)
	steps.POST("/:id/complete", workflowHandler.CompleteStep)
	steps.POST("/:id/forward", workflowHandler.Forward)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
	auditSvc.Stop()
	logr.Info("server stopped")
}
