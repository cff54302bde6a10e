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
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/edukita/classtrack-api/api/swagger"
	"github.com/edukita/classtrack-api/internal/authz"
	"github.com/edukita/classtrack-api/internal/handler"
	"github.com/edukita/classtrack-api/internal/middleware"
	"github.com/edukita/classtrack-api/internal/models"
	"github.com/edukita/classtrack-api/internal/repository"
	"github.com/edukita/classtrack-api/internal/service"
	"github.com/edukita/classtrack-api/pkg/cache"
	"github.com/edukita/classtrack-api/pkg/config"
	"github.com/edukita/classtrack-api/pkg/database"
	"github.com/edukita/classtrack-api/pkg/jobs"
	"github.com/edukita/classtrack-api/pkg/logger"
	corsmiddleware "github.com/edukita/classtrack-api/pkg/middleware/cors"
	reqidmiddleware "github.com/edukita/classtrack-api/pkg/middleware/requestid"
	"github.com/edukita/classtrack-api/pkg/storage"
)

// @title ClassTrack API
// @version 1.0.0
// @description Role-based academic record keeping: classes, enrollments, grades, attendance and async reports
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

	redisClient, err := cache.NewRedis(cfg.Redis)
	var cacheService *service.CacheService
	if err != nil {
		logr.Warn("redis unavailable, summary caching disabled", zap.Error(err))
		cacheService = service.NewCacheService(nil, metrics, cfg.Summary.CacheTTL, logr, false)
	} else {
		defer redisClient.Close()
		cacheRepo := repository.NewCacheRepository(redisClient, logr)
		cacheService = service.NewCacheService(cacheRepo, metrics, cfg.Summary.CacheTTL, logr, true)
	}

	profileRepo := repository.NewProfileRepository(db)
	classRepo := repository.NewClassRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	gradeRepo := repository.NewGradeRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	reportRepo := repository.NewReportRepository(db)
	relationRepo := repository.NewRelationRepository(db)

	engine := authz.NewEngine(relationRepo, logr)
	validate := validator.New()

	tokenService := service.NewTokenService(cfg.JWT, logr)
	profileService := service.NewProfileService(profileRepo, engine, validate, logr)
	classService := service.NewClassService(classRepo, profileRepo, profileRepo, engine, validate, logr)
	enrollmentService := service.NewEnrollmentService(enrollmentRepo, classRepo, gradeRepo, attendanceRepo, profileRepo, profileRepo, engine, cacheService, cfg.Summary.CacheTTL, logr)
	gradeService := service.NewGradeService(gradeRepo, engine, cacheService, validate, logr)
	attendanceService := service.NewAttendanceService(attendanceRepo, engine, cacheService, validate, logr)

	reportStorage, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
	if err != nil {
		logr.Fatal("failed to prepare report storage", zap.Error(err))
	}
	signer := storage.NewSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)
	exportService := service.NewExportService(profileRepo, enrollmentRepo, classRepo, gradeRepo, attendanceRepo, reportStorage, signer, service.ExportConfig{
		APIPrefix: cfg.APIPrefix,
		ResultTTL: cfg.Reports.SignedURLTTL,
	}, logr, nil, nil)

	reportWorker := service.NewReportWorker(reportRepo, exportService, metrics, cfg.Reports.WorkerRetries, logr)
	reportQueue := jobs.NewQueue("reports", reportWorker.Handle, jobs.QueueConfig{
		Workers:    cfg.Reports.WorkerConcurrency,
		MaxRetries: cfg.Reports.WorkerRetries,
		Logger:     logr,
	})
	reportService := service.NewReportService(reportRepo, engine, reportQueue, exportService, logr, service.ReportServiceConfig{
		ResultTTL:       cfg.Reports.SignedURLTTL,
		CleanupInterval: cfg.Reports.CleanupInterval,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reportQueue.Start(ctx)
	reportService.RecoverPendingJobs(ctx)
	reportService.StartCleanup(ctx)

	authHandler := handler.NewAuthHandler(profileService, tokenService)
	profileHandler := handler.NewProfileHandler(profileService)
	classHandler := handler.NewClassHandler(classService)
	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentService)
	gradeHandler := handler.NewGradeHandler(gradeService)
	attendanceHandler := handler.NewAttendanceHandler(attendanceService)
	reportHandler := handler.NewReportHandler(reportService)
	metricsHandler := handler.NewMetricsHandler(metrics, db)

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

	// Signed tokens carry their own authorization.
	api.GET("/export/:token", reportHandler.Download)

	if cfg.Env != config.EnvProduction {
		api.POST("/auth/token", authHandler.Token)
	}

	authed := api.Group("", middleware.Identity(tokenService, profileRepo))
	authed.POST("/auth/register", authHandler.Register)

	registered := authed.Group("", middleware.RequireRegistered())

	registered.GET("/profiles/me", profileHandler.Me)
	registered.GET("/profiles", middleware.RequireRoles(models.RoleAdmin), profileHandler.List)
	registered.POST("/profiles", middleware.RequireRoles(models.RoleAdmin), profileHandler.Create)
	registered.GET("/profiles/:id", profileHandler.Get)
	registered.PUT("/profiles/:id", profileHandler.Update)
	registered.DELETE("/profiles/:id", middleware.RequireRoles(models.RoleAdmin), profileHandler.Delete)

	registered.POST("/classes", middleware.RequireRoles(models.RoleTeacher, models.RoleAdmin), classHandler.Create)
	registered.GET("/classes", classHandler.List)
	registered.GET("/classes/:id", classHandler.Get)
	registered.PUT("/classes/:id", classHandler.Update)
	registered.DELETE("/classes/:id", classHandler.Deactivate)
	registered.POST("/classes/:id/rotate-code", classHandler.RotateCode)
	registered.GET("/classes/:id/roster", middleware.Audit(profileRepo, models.AuditActionRosterView, "class", logr), classHandler.Roster)

	registered.POST("/enrollments/join", middleware.RequireRoles(models.RoleStudent), enrollmentHandler.Join)
	registered.GET("/enrollments", enrollmentHandler.List)
	registered.GET("/enrollments/:id", enrollmentHandler.Get)
	registered.DELETE("/enrollments/:id", enrollmentHandler.Leave)
	registered.GET("/enrollments/:id/summary", enrollmentHandler.Summary)
	registered.GET("/students/:id/transcript", middleware.Audit(profileRepo, models.AuditActionTranscriptView, "profile", logr), enrollmentHandler.Transcript)

	registered.POST("/grades", middleware.RequireRoles(models.RoleTeacher), gradeHandler.Create)
	registered.GET("/grades", gradeHandler.List)
	registered.GET("/grades/:id", gradeHandler.Get)
	registered.PUT("/grades/:id", middleware.RequireRoles(models.RoleTeacher), gradeHandler.Update)
	registered.DELETE("/grades/:id", middleware.RequireRoles(models.RoleTeacher), gradeHandler.Delete)

	registered.POST("/attendance", middleware.RequireRoles(models.RoleTeacher), attendanceHandler.Mark)
	registered.GET("/attendance", attendanceHandler.List)
	registered.GET("/attendance/:id", attendanceHandler.Get)
	registered.PUT("/attendance/:id", middleware.RequireRoles(models.RoleTeacher), attendanceHandler.Update)
	registered.DELETE("/attendance/:id", middleware.RequireRoles(models.RoleTeacher), attendanceHandler.Delete)

	registered.POST("/reports", reportHandler.Create)
	registered.GET("/reports", reportHandler.List)
	registered.GET("/reports/:id", reportHandler.Get)

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logr.Warn("server shutdown incomplete", zap.Error(err))
	}
	reportQueue.Stop()
	logr.Info("server stopped")
}
