package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"live-session-service/internal/config"
	"live-session-service/internal/handler"
	"live-session-service/internal/metrics"
	"live-session-service/internal/middleware"
	"live-session-service/internal/notification"
	"live-session-service/internal/service"
)

// Config carries everything the HTTP layer needs. Redis and Gatherer may be
// nil; a nil Gatherer serves the default registry.
type Config struct {
	Server    config.ServerConfig
	JWTSecret string
	RateLimit config.RateLimitConfig
	CORS      config.CORSConfig

	DB       *gorm.DB
	Redis    *redis.Client
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer

	Requests     service.SessionRequestService
	Availability service.AvailabilityService
	Presence     service.PresenceService
	Sessions     service.LiveSessionService
	Sweeper      service.Sweeper
	Bus          *notification.Bus
}

func Setup(cfg Config) *gin.Engine {
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.CORS(cfg.CORS.AllowedOrigins))
	if cfg.Metrics != nil {
		r.Use(middleware.Metrics(cfg.Metrics))
	}

	requestHandler := handler.NewSessionRequestHandler(cfg.Requests, cfg.Logger)
	availabilityHandler := handler.NewAvailabilityHandler(cfg.Availability, cfg.Logger)
	presenceHandler := handler.NewPresenceHandler(cfg.Presence, cfg.Logger)
	sessionHandler := handler.NewSessionHandler(cfg.Sessions, cfg.Logger)
	maintenanceHandler := handler.NewMaintenanceHandler(cfg.Sweeper, cfg.Logger)
	wsHandler := handler.NewWSHandler(cfg.Bus, cfg.Logger)
	healthHandler := handler.NewHealthHandler(cfg.DB, cfg.Redis)

	r.GET("/health", healthHandler.Health)
	r.GET("/ready", healthHandler.Ready)
	if cfg.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	} else {
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	limiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst)
	customer := middleware.RequireRole(middleware.RoleCustomer)
	designer := middleware.RequireRole(middleware.RoleDesigner)

	api := r.Group(cfg.Server.BasePath)
	{
		api.GET("/health", healthHandler.Health)
		api.GET("/ready", healthHandler.Ready)

		authenticated := api.Group("")
		authenticated.Use(middleware.Auth(cfg.JWTSecret))
		{
			authenticated.GET("/ws", wsHandler.HandleWebSocket)

			requests := authenticated.Group("/requests")
			{
				requests.POST("", customer, limiter.Limit(), requestHandler.CreateRequest)
				requests.GET("/pending", designer, requestHandler.ListPending)
				requests.GET("/mine", customer, requestHandler.ListMine)
				requests.GET("/:requestId", requestHandler.GetRequest)
				requests.POST("/:requestId/respond", designer, requestHandler.RespondToRequest)
			}

			designers := authenticated.Group("/designers/:designerId")
			{
				designers.GET("/busy", requestHandler.GetBusyState)
				designers.GET("/availability", availabilityHandler.IsBookable)
			}

			availability := authenticated.Group("/availability", designer)
			{
				availability.GET("", availabilityHandler.GetSchedule)
				availability.PUT("/windows", availabilityHandler.SetWeeklyWindow)
				availability.PUT("/overrides", availabilityHandler.SetOverride)
				availability.PUT("/settings", availabilityHandler.UpdateSettings)
			}

			presence := authenticated.Group("/presence", designer)
			{
				presence.POST("/heartbeat", presenceHandler.Heartbeat)
				presence.POST("/offline", presenceHandler.GoOffline)
			}

			sessions := authenticated.Group("/sessions/:sessionId")
			{
				sessions.POST("/release", sessionHandler.Release)
				sessions.POST("/activity", sessionHandler.RecordActivity)
				sessions.GET("/token", sessionHandler.JoinToken)
			}

			authenticated.POST("/maintenance/sweep", middleware.RequireRole(middleware.RoleAdmin), maintenanceHandler.Sweep)
		}
	}

	return r
}
