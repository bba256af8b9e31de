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

	_ "github.com/noah-isme/tutor-scheduler-api/api/swagger"
	"github.com/noah-isme/tutor-scheduler-api/internal/handler"
	"github.com/noah-isme/tutor-scheduler-api/internal/middleware"
	"github.com/noah-isme/tutor-scheduler-api/internal/repository"
	"github.com/noah-isme/tutor-scheduler-api/internal/scheduler"
	"github.com/noah-isme/tutor-scheduler-api/internal/service"
	"github.com/noah-isme/tutor-scheduler-api/pkg/cache"
	"github.com/noah-isme/tutor-scheduler-api/pkg/clock"
	"github.com/noah-isme/tutor-scheduler-api/pkg/config"
	"github.com/noah-isme/tutor-scheduler-api/pkg/database"
	"github.com/noah-isme/tutor-scheduler-api/pkg/jobs"
	"github.com/noah-isme/tutor-scheduler-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/tutor-scheduler-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/tutor-scheduler-api/pkg/middleware/requestid"
)

// @title Tutor Scheduler API
// @version 1.0.0
// @description Availability, recurring lessons, DST re-anchoring and teacher search for a tutoring marketplace.
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Fatal("failed to connect redis", zap.Error(err))
	}

	clk := clock.Real()
	validate := validator.New()
	metrics := service.NewMetricsService()

	profileRepo := repository.NewTeacherProfileRepository(db)
	slotRepo := repository.NewAvailabilitySlotRepository(db)
	periodRepo := repository.NewUnavailabilityRepository(db)
	occurrenceRepo := repository.NewOccurrenceRepository(db)
	patternRepo := repository.NewRecurringPatternRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	leaseClient := redisClient
	if !cfg.Scheduler.LeaseEnabled {
		leaseClient = nil
	}
	leaseRepo := repository.NewLeaseRepository(leaseClient, leaseOwner(), logr)
	defer leaseRepo.Close() //nolint:errcheck

	notifications := service.NewNotificationService(notificationRepo, metrics, logr)
	notifyQueue := jobs.NewQueue("notifications", notifications.Handle, jobs.QueueConfig{
		Workers:    cfg.Notifications.Workers,
		BufferSize: cfg.Notifications.BufferSize,
		MaxRetries: cfg.Notifications.MaxRetries,
		RetryDelay: cfg.Notifications.RetryDelay,
		DeadLetter: notifications.DeadLetter,
		Logger:     logr,
	})
	notifications.UseQueue(notifyQueue)
	notifyQueue.Start(ctx)

	availabilitySvc := service.NewAvailabilityService(profileRepo, slotRepo, periodRepo, occurrenceRepo, metrics, logr)
	slotSvc := service.NewSlotService(slotRepo, profileRepo, validate, logr)
	periodSvc := service.NewUnavailabilityService(periodRepo, profileRepo, validate, logr)
	bookingSvc := service.NewBookingService(occurrenceRepo, availabilitySvc, notifications, validate, logr)
	recurrenceSvc := service.NewRecurrenceService(patternRepo, occurrenceRepo, leaseRepo, db, clk, metrics, logr, service.RecurrenceConfig{
		DefaultHorizonMonths: cfg.Scheduler.DefaultHorizonMonths,
		LeaseEnabled:         cfg.Scheduler.LeaseEnabled,
		LeaseTTL:             cfg.Scheduler.LeaseTTL,
	})
	dstSvc := service.NewDSTService(occurrenceRepo, notifications, clk, metrics, logr, service.DSTConfig{
		HeavyMonths: cfg.Scheduler.DSTHeavyMonths,
	})
	searchSvc := service.NewTeacherSearchService(profileRepo, slotRepo, availabilitySvc, clk, metrics, logr, service.SearchConfig{
		TeacherTimeout: cfg.Search.TeacherTimeout,
		Concurrency:    cfg.Search.Concurrency,
		MaxDays:        cfg.Search.MaxDays,
	})
	exportSvc := service.NewExportService(availabilitySvc, occurrenceRepo, profileRepo, service.ExportConfig{
		ProductID: "-//tutor-scheduler//lessons//EN",
	}, logr, nil, nil, nil)
	tokenSvc := service.NewTokenService(service.TokenConfig{Secret: cfg.JWT.Secret, Issuer: cfg.JWT.Issuer}, clk)

	schedLoc, err := time.LoadLocation(cfg.Scheduler.Timezone)
	if err != nil {
		logr.Fatal("invalid scheduler timezone", zap.String("timezone", cfg.Scheduler.Timezone), zap.Error(err))
	}
	sched := scheduler.New(scheduler.Config{Location: schedLoc, Timeout: 30 * time.Minute}, logr)
	if err := scheduler.RegisterSweeps(sched, cfg.Scheduler, recurrenceSvc, dstSvc); err != nil {
		logr.Fatal("failed to register sweeps", zap.Error(err))
	}
	if cfg.Scheduler.Enabled {
		sched.Start()
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr, "/health", "/ready", "/metrics"))
	r.Use(corsmiddleware.New(corsmiddleware.Options{AllowedOrigins: cfg.CORS.AllowedOrigins}))
	r.Use(middleware.Metrics(metrics, "/metrics"))

	probes := map[string]handler.ReadinessProbe{"postgres": database.Probe(db)}
	if redisClient != nil {
		probes["redis"] = cache.Probe(redisClient)
	}
	metricsHandler := handler.NewMetricsHandler(metrics, probes)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)
	r.GET("/metrics/summary", metricsHandler.Summary)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	handler.RegisterRoutes(r.Group(cfg.APIPrefix), handler.Handlers{
		Availability: handler.NewAvailabilityHandler(availabilitySvc, exportSvc),
		Slots:        handler.NewSlotHandler(slotSvc, periodSvc),
		Occurrences:  handler.NewOccurrenceHandler(bookingSvc, recurrenceSvc),
		DST:          handler.NewDSTHandler(dstSvc, sched),
		Search:       handler.NewSearchHandler(searchSvc),
	}, tokenSvc)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
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
		logr.Warn("http shutdown", zap.Error(err))
	}
	sched.Stop(shutdownCtx)
	notifyQueue.Stop()
}

func leaseOwner() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "api"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
