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
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/tkd-admin-api/api/swagger"
	"github.com/noah-isme/tkd-admin-api/internal/handler"
	internalmiddleware "github.com/noah-isme/tkd-admin-api/internal/middleware"
	"github.com/noah-isme/tkd-admin-api/internal/models"
	"github.com/noah-isme/tkd-admin-api/internal/repository"
	"github.com/noah-isme/tkd-admin-api/internal/service"
	"github.com/noah-isme/tkd-admin-api/pkg/cache"
	"github.com/noah-isme/tkd-admin-api/pkg/config"
	"github.com/noah-isme/tkd-admin-api/pkg/database"
	"github.com/noah-isme/tkd-admin-api/pkg/export"
	"github.com/noah-isme/tkd-admin-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/tkd-admin-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/tkd-admin-api/pkg/middleware/requestid"
)

// @title Taekwon-Do Admin API
// @version 1.0.0
// @description Fee ledger and payment reconciliation for a Taekwon-Do school
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

	ctx := context.Background()
	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(db.DB, cfg.Database.Migrations, logr); err != nil {
			logr.Fatal("failed to migrate schema", zap.Error(err))
		}
	}

	var redisClient *redis.Client
	if cfg.Fees.StatsCacheEnabled {
		redisClient, err = cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, fee statistics cache disabled", zap.Error(err))
			redisClient = nil
		}
	}

	validate := validator.New()
	metricsSvc := service.NewMetricsService()

	feeRepo := repository.NewFeeRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	userRepo := repository.NewUserRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck

	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Fees.StatsCacheTTL, logr, redisClient != nil)
	authSvc := service.NewAuthService(userRepo, auditRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
	})
	studentSvc := service.NewStudentService(studentRepo, validate, logr)
	feeSvc := service.NewFeeService(service.FeeServiceParams{
		Repo:      feeRepo,
		Students:  studentRepo,
		Cache:     cacheSvc,
		Metrics:   metricsSvc,
		Validator: validate,
		Logger:    logr,
		Config: service.FeeServiceConfig{
			PartialOverdue: cfg.Fees.PartialOverdue,
			MaxRetries:     cfg.Fees.PaymentMaxRetries,
			CacheTTL:       cfg.Fees.StatsCacheTTL,
		},
	})
	exportSvc := service.NewExportService(feeSvc, service.ExportConfig{SchoolName: cfg.SchoolName, Currency: cfg.Fees.Currency},
		logr, export.NewCSVExporter(export.WithSummaryRows(), export.WithUTF8BOM()), export.NewPDFExporter(cfg.SchoolName))

	checks := map[string]handler.Pinger{"postgres": handler.PingerFunc(db.PingContext)}
	if redisClient != nil {
		checks["redis"] = cacheRepo
	}

	authHandler := handler.NewAuthHandler(authSvc)
	feeHandler := handler.NewFeeHandler(feeSvc, exportSvc)
	studentHandler := handler.NewStudentHandler(studentSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc, checks)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(corsmiddleware.New(cfg.CORS))
	r.Use(logger.GinMiddleware(logr))
	r.Use(internalmiddleware.Metrics(metricsSvc))
	r.Use(internalmiddleware.WithResponseMeta())

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	var loginLimiter *internalmiddleware.ClientRateLimiter
	if cfg.Limits.LoginPerMinute > 0 {
		loginLimiter = internalmiddleware.NewClientRateLimiter(cfg.Limits.LoginPerMinute, cfg.Limits.LoginBurst)
	}

	auth := api.Group("/auth")
	auth.POST("/login", internalmiddleware.RateLimit(loginLimiter), authHandler.Login)
	auth.POST("/refresh", internalmiddleware.RateLimit(loginLimiter), authHandler.Refresh)
	auth.POST("/logout", internalmiddleware.JWT(authSvc), authHandler.Logout)

	secured := api.Group("")
	secured.Use(internalmiddleware.JWT(authSvc))

	feeManager := internalmiddleware.RequireFeeManager()
	audit := func(action, resource string) gin.HandlerFunc {
		return internalmiddleware.Audit(auditRepo, logr, action, resource)
	}

	fees := secured.Group("/fees")
	fees.GET("", feeManager, feeHandler.List)
	fees.POST("", feeManager, audit(models.AuditActionFeeCreate, "fee"), feeHandler.Create)
	fees.GET("/export", feeManager, feeHandler.Export)
	fees.GET("/:id", feeManager, feeHandler.Get)
	fees.GET("/:id/receipt", feeManager, feeHandler.Receipt)
	fees.POST("/:id/payments", feeManager, audit(models.AuditActionFeePayment, "fee"), feeHandler.RecordPayment)
	fees.DELETE("/:id", internalmiddleware.RequireAdmin(), audit(models.AuditActionFeeDelete, "fee"), feeHandler.Delete)

	students := secured.Group("/students")
	students.GET("", feeManager, studentHandler.List)
	students.POST("", feeManager, audit(models.AuditActionStudentCreate, "student"), studentHandler.Create)
	students.GET("/:id", feeManager, studentHandler.Get)
	students.GET("/:id/fees", feeManager, feeHandler.ListByStudent)

	secured.GET("/metrics/summary", internalmiddleware.RequireAdmin(), metricsHandler.Summary)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logr.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("server forced to shutdown", zap.Error(err))
	}
}
