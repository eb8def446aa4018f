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
	"github.com/shopspring/decimal"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/lensbook-api/api/swagger"
	"github.com/noah-isme/lensbook-api/internal/handler"
	"github.com/noah-isme/lensbook-api/internal/middleware"
	"github.com/noah-isme/lensbook-api/internal/repository"
	"github.com/noah-isme/lensbook-api/internal/service"
	"github.com/noah-isme/lensbook-api/pkg/cache"
	"github.com/noah-isme/lensbook-api/pkg/config"
	"github.com/noah-isme/lensbook-api/pkg/database"
	"github.com/noah-isme/lensbook-api/pkg/logger"
	"github.com/noah-isme/lensbook-api/pkg/messaging"
	corsmiddleware "github.com/noah-isme/lensbook-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/lensbook-api/pkg/middleware/requestid"
	timeoutmiddleware "github.com/noah-isme/lensbook-api/pkg/middleware/timeout"
)

// @title Lensbook Booking API
// @version 1.0.0
// @description Reservation lifecycle, change requests and reviews for the photography marketplace.
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		applied, err := database.Migrate(ctx, db)
		if err != nil {
			logr.Fatal("failed to apply migrations", zap.Error(err))
		}
		logr.Info("migrations applied", zap.Strings("files", applied))
	}

	metrics := service.NewMetricsService()
	checks := map[string]handler.ReadinessCheck{"postgres": db.PingContext}

	var cacheRepo service.CacheRepository
	if cfg.Ratings.CacheEnabled {
		redisClient, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, rating cache disabled", zap.Error(err))
		} else {
			defer redisClient.Close()
			repo := repository.NewCacheRepository(redisClient, "lensbook")
			cacheRepo = repo
			checks["redis"] = repo.Ping
		}
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Ratings.CacheTTL, logr, cacheRepo != nil)

	var publisher messaging.Publisher = messaging.NewLogPublisher(logr)
	if cfg.Notifications.Enabled {
		rabbit, err := messaging.NewRabbitPublisher(cfg.Notifications.RabbitURL, cfg.Notifications.Exchange, logr)
		if err != nil {
			logr.Warn("rabbitmq unavailable, notifications will be logged", zap.Error(err))
		} else {
			publisher = rabbit
		}
	}
	notifications := service.NewNotificationService(publisher, metrics, logr, service.NotificationConfig{
		Workers:    cfg.Notifications.Workers,
		BufferSize: cfg.Notifications.BufferSize,
		MaxRetries: cfg.Notifications.MaxRetries,
		RetryDelay: cfg.Notifications.RetryDelay,
	})
	notifications.Start(ctx)
	defer notifications.Stop()

	validate := validator.New()
	tx := repository.NewTransactor(db)
	auditRepo := repository.NewAuditRepository(db)
	reservationRepo := repository.NewReservationRepository(db)
	changeRequestRepo := repository.NewChangeRequestRepository(db)
	accountRepo := repository.NewClientAccountRepository(db)
	reviewRepo := repository.NewReviewRepository(db)
	catalogRepo := repository.NewCatalogRepository(db)
	location := cfg.Booking.Location()

	reservationSvc := service.NewReservationService(reservationRepo, catalogRepo, tx, auditRepo, validate, logr,
		service.ReservationConfig{
			MaxAmount:       decimal.NewFromFloat(cfg.Booking.MaxAmount),
			NotesMaxLength:  cfg.Booking.NotesMaxLength,
			DefaultCurrency: cfg.Booking.DefaultCurrency,
			CommissionRate:  decimal.NewFromFloat(cfg.Booking.CommissionRate),
			Location:        location,
		},
		service.WithReservationNotifier(notifications),
		service.WithReservationMetrics(metrics),
	)
	changeRequestSvc := service.NewChangeRequestService(changeRequestRepo, reservationRepo, accountRepo, tx, auditRepo, validate, logr,
		service.ChangeRequestConfig{
			SuspensionThreshold: cfg.Suspension.Threshold,
			SuspensionDuration:  cfg.Suspension.Duration,
			Location:            location,
		},
		service.WithChangeRequestNotifier(notifications),
		service.WithChangeRequestMetrics(metrics),
	)
	reviewOpts := []service.ReviewServiceOption{
		service.WithReviewNotifier(notifications),
		service.WithReviewMetrics(metrics),
	}
	if cacheSvc.Enabled() {
		reviewOpts = append(reviewOpts, service.WithRatingCache(cacheSvc, cfg.Ratings.CacheTTL))
	}
	reviewSvc := service.NewReviewService(reviewRepo, reservationRepo, catalogRepo, tx, auditRepo, validate, logr, reviewOpts...)
	exportSvc := service.NewExportService(reservationRepo, changeRequestRepo, nil, nil, logr)
	auditSvc := service.NewAuditService(auditRepo)
	authSvc := service.NewAuthService(logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		Issuer:            cfg.JWT.Issuer,
		Audience:          cfg.JWT.Audience,
	})

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(timeoutmiddleware.Middleware(cfg.RequestTimeout))
	r.Use(middleware.Metrics(metrics))

	ops := handler.NewMetricsHandler(metrics, checks)
	r.GET("/health", ops.Health)
	r.GET("/ready", ops.Ready)
	r.GET("/metrics", ops.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	handler.RegisterRoutes(r.Group(cfg.APIPrefix), handler.Handlers{
		Reservations:   handler.NewReservationHandler(reservationSvc),
		ChangeRequests: handler.NewChangeRequestHandler(changeRequestSvc),
		Reviews:        handler.NewReviewHandler(reviewSvc),
		Exports:        handler.NewExportHandler(exportSvc),
		Audit:          handler.NewAuditHandler(auditSvc),
	}, middleware.JWT(authSvc), middleware.RequireActiveClient(changeRequestSvc, nil))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Error("server failed", zap.Error(err))
			stop()
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
