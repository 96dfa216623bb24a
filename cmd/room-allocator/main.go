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
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/room-assignment-api/api/swagger"
	"github.com/noah-isme/room-assignment-api/internal/allocator"
	"github.com/noah-isme/room-assignment-api/internal/handler"
	internalmiddleware "github.com/noah-isme/room-assignment-api/internal/middleware"
	"github.com/noah-isme/room-assignment-api/internal/repository"
	"github.com/noah-isme/room-assignment-api/internal/service"
	"github.com/noah-isme/room-assignment-api/pkg/cache"
	"github.com/noah-isme/room-assignment-api/pkg/config"
	"github.com/noah-isme/room-assignment-api/pkg/database"
	"github.com/noah-isme/room-assignment-api/pkg/logger"
	"github.com/noah-isme/room-assignment-api/pkg/messaging"
	corsmiddleware "github.com/noah-isme/room-assignment-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/room-assignment-api/pkg/middleware/requestid"
)

// @title Room Assignment API
// @version 1.0.0
// @description Allocates rooms to weekly class meetings per academic period and reconciles imported course data.
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	periods := service.NewPeriodService(cfg.Periods)
	if cfg.Database.RunMigrations {
		if err := database.RunMigrations(db.DB, logr); err != nil {
			logr.Fatal("failed to run migrations", zap.Error(err))
		}
	}
	if err := database.EnsurePeriodTables(ctx, db.DB, periods.Suffixes(), logr); err != nil {
		logr.Fatal("failed to prepare period tables", zap.Error(err))
	}

	var redisClient *redis.Client
	if cfg.Cache.Enabled {
		redisClient, err = cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, caching disabled", zap.Error(err))
			cfg.Cache.Enabled = false
		} else {
			defer redisClient.Close()
		}
	}

	events := messaging.NewDispatcher(messaging.New(cfg.Messaging.AMQPURL, cfg.Messaging.Queue, logr), messaging.DispatcherConfig{
		Workers:    cfg.Messaging.Workers,
		MaxRetries: cfg.Messaging.MaxRetries,
		RetryDelay: cfg.Messaging.RetryDelay,
		Logger:     logr,
	})
	events.Start(context.Background())
	defer events.Stop()

	router := buildRouter(cfg, logr, db, redisClient, periods, events)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "periods", len(cfg.Periods))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}

func buildRouter(cfg *config.Config, logr *zap.Logger, db *sqlx.DB, redisClient *redis.Client, periods *service.PeriodService, events messaging.Publisher) *gin.Engine {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	validate := validator.New()
	metrics := service.NewMetricsService()
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Cache.TTL, logr, cfg.Cache.Enabled)

	subjects := repository.NewSubjectRepository(db)
	groups := repository.NewGroupRepository(db)
	rooms := repository.NewRoomRepository(db)
	instructors := repository.NewInstructorRepository(db)
	assignments := repository.NewAssignmentRepository(db)
	tx := repository.NewTxManager(db)

	policy, err := allocator.ParsePolicy(cfg.Allocator.Policy)
	if err != nil {
		logr.Fatal("invalid allocator policy", zap.Error(err))
	}

	scopes := service.NewScopeSelector(subjects, groups, rooms, logr)
	assignmentSvc := service.NewAssignmentService(periods, scopes, assignments, tx, cacheSvc, metrics, events, validate, logr, service.AssignmentConfig{
		Policy:         policy,
		ShiftPartition: cfg.Allocator.ShiftPartition,
		AtomicReplace:  cfg.Allocator.AtomicReplace,
		ListCacheTTL:   cfg.Allocator.ListCacheTTL,
	})
	importSvc := service.NewImportService(periods, instructors, subjects, groups, tx, cacheSvc, metrics, validate, logr, service.ImportConfig{
		BatchTTL:        cfg.Imports.BatchTTL,
		DuplicateSuffix: cfg.Imports.DuplicateSuffix,
	})
	exportSvc := service.NewExportService(assignmentSvc, periods, logr)
	tokens := service.NewTokenService(service.TokenConfig{Secret: cfg.JWT.Secret, Issuer: cfg.JWT.Issuer})

	checks := map[string]handler.HealthCheck{"database": db.PingContext}
	if cfg.Cache.Enabled {
		checks["redis"] = cacheRepo.Ping
	}
	metricsHandler := handler.NewMetricsHandler(metrics, checks)
	assignmentHandler := handler.NewAssignmentHandler(assignmentSvc, exportSvc)
	importHandler := handler.NewImportHandler(importSvc)
	periodHandler := handler.NewPeriodHandler(periods)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metrics, "/health", "/ready", "/metrics", "/docs"))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(internalmiddleware.WithResponseMeta())
	secured := api.Group("", internalmiddleware.JWT(tokens))

	secured.GET("/periods", periodHandler.List)
	secured.GET("/assignments", assignmentHandler.List)
	secured.GET("/assignments/export", assignmentHandler.Export)
	secured.POST("/assignments/run", assignmentHandler.Run)
	secured.POST("/assignments/undo", assignmentHandler.Undo)
	imports := secured.Group("/imports", internalmiddleware.RequireImporter())
	imports.POST("/preview", importHandler.Preview)
	imports.POST("/confirm", importHandler.Confirm)
	secured.GET("/metrics/summary", internalmiddleware.RequireAdmin(), metricsHandler.Summary)

	return r
}
