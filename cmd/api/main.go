// @title           Live Session Service API
// @version         1.0
// @description     Immediate live consultations between customers and designers
// @BasePath        /api/live

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/gorm"

	"live-session-service/internal/client"
	"live-session-service/internal/config"
	"live-session-service/internal/database"
	"live-session-service/internal/job"
	"live-session-service/internal/metrics"
	"live-session-service/internal/notification"
	"live-session-service/internal/repository"
	"live-session-service/internal/router"
	"live-session-service/internal/service"
)

const (
	dbConnectTimeout  = 2 * time.Minute
	dbRetryInterval   = 5 * time.Second
	migrateRetries    = 5
	statsInterval     = 15 * time.Second
	gaugeInterval     = 30 * time.Second
	shutdownTimeout   = 15 * time.Second
	readHeaderTimeout = 10 * time.Second
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := initLogger(cfg.Server.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting Live Session Service",
		zap.Int("port", cfg.Server.Port),
		zap.String("env", cfg.Server.Env),
		zap.String("base_path", cfg.Server.BasePath),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	db, err := connectDatabase(ctx, cfg, m, logger)
	if err != nil {
		logger.Fatal("Database unavailable", zap.Error(err))
	}
	defer database.Close(db)

	statsDone := database.StartDBStatsCollector(db, m, statsInterval)
	defer close(statsDone)

	gauges := metrics.NewSessionMetricsCollector(db, m, logger, gaugeInterval)
	gauges.Start()
	defer gauges.Stop()

	bus := notification.NewBus(cfg.Notify.DedupSize, cfg.Notify.DedupTTL, logger, m)

	// Without Redis the process still delivers through the change feed and
	// its own bus; only cross-instance broadcasts are lost.
	var redisClient *redis.Client
	var publisher notification.Publisher = notification.NewLocalPublisher(bus)
	if rc, err := database.NewRedis(ctx, cfg.Redis, logger); err != nil {
		logger.Warn("Redis unavailable, broadcasts stay in-process", zap.Error(err))
	} else {
		redisClient = rc
		defer redisClient.Close()

		relay := notification.NewRedisRelay(redisClient, logger, m)
		publisher = relay
		go func() {
			if err := relay.Run(ctx, bus); err != nil {
				logger.Error("Relay subscriber stopped", zap.Error(err))
			}
		}()
	}
	notifier := notification.NewNotifier(publisher, logger)

	sessionRepo := repository.NewSessionRepository(db)
	requestRepo := repository.NewRequestRepository(db)
	availabilityRepo := repository.NewAvailabilityRepository(db)
	presenceRepo := repository.NewPresenceRepository(db)
	bookingRepo := repository.NewBookingRepository(db)
	changeRepo := repository.NewChangeRepository(db)

	feed := notification.NewChangeFeed(changeRepo, bus, cfg.Notify.PollInterval, cfg.Notify.PollBatch, cfg.Notify.GapGrace, logger)
	if err := feed.Start(ctx); err != nil {
		logger.Fatal("Failed to position change feed", zap.Error(err))
	}
	go feed.Run(ctx)

	media := client.NewMediaClient(cfg.LiveKit, logger, m)
	retry := service.RetryPolicy{Attempts: cfg.Session.RetryAttempts, Backoff: cfg.Session.RetryBackoff}

	presenceService := service.NewPresenceService(presenceRepo, redisClient, notifier, cfg.Session.HeartbeatTimeout, logger)
	availabilityService := service.NewAvailabilityService(availabilityRepo, presenceService, cfg.Session, logger)
	registry := service.NewSessionRegistry(sessionRepo, bookingRepo, notifier, media, retry, cfg.Session.ActorIdleTimeout, m, logger)
	defer registry.Close()

	reaper := job.NewReaper(sessionRepo, requestRepo, registry, notifier, cfg.Session, m, logger)
	scheduler, err := reaper.Schedule(cfg.Session.ReaperSchedule)
	if err != nil {
		logger.Fatal("Invalid reaper schedule", zap.String("schedule", cfg.Session.ReaperSchedule), zap.Error(err))
	}
	defer func() { <-scheduler.Stop().Done() }()

	requestService := service.NewSessionRequestService(requestRepo, registry, availabilityService, notifier, media, reaper, cfg.Session.MaxSessionDuration, m, logger)
	liveSessionService := service.NewLiveSessionService(registry, media, cfg.Session.MaxSessionDuration, logger)

	r := router.Setup(router.Config{
		Server:       cfg.Server,
		JWTSecret:    cfg.Auth.SecretKey,
		RateLimit:    cfg.RateLimit,
		CORS:         cfg.CORS,
		DB:           db,
		Redis:        redisClient,
		Logger:       logger,
		Metrics:      m,
		Requests:     requestService,
		Availability: availabilityService,
		Presence:     presenceService,
		Sessions:     liveSessionService,
		Sweeper:      reaper,
		Bus:          bus,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           r,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		logger.Info("Live Session Service started", zap.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited gracefully")
}

func connectDatabase(ctx context.Context, cfg *config.Config, m *metrics.Metrics, logger *zap.Logger) (*gorm.DB, error) {
	connectCtx, cancel := context.WithTimeout(ctx, dbConnectTimeout)
	defer cancel()

	db, err := database.OpenWithRetry(connectCtx, cfg.Database, dbRetryInterval, logger)
	if err != nil {
		return nil, err
	}

	if err := database.RegisterMetricsCallbacks(db, m); err != nil {
		logger.Warn("Failed to register database metrics callbacks", zap.Error(err))
	}

	if cfg.Database.AutoMigrate {
		if err := database.SafeAutoMigrateWithRetry(db, logger, migrateRetries); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	return db, nil
}

func initLogger(level string) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	config := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      zapLevel == zapcore.DebugLevel,
		Encoding:         "json",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	return config.Build()
}
