// Package server assembles the HTTP surface of the insights service.
package server

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/aidly/aidly-api/api/swagger"
	"github.com/aidly/aidly-api/internal/handler"
	"github.com/aidly/aidly-api/internal/middleware"
	"github.com/aidly/aidly-api/internal/service"
	"github.com/aidly/aidly-api/pkg/config"
	"github.com/aidly/aidly-api/pkg/logger"
	corsmiddleware "github.com/aidly/aidly-api/pkg/middleware/cors"
	reqidmiddleware "github.com/aidly/aidly-api/pkg/middleware/requestid"
)

// Handlers groups every HTTP handler mounted by the router. Nil handlers are skipped.
type Handlers struct {
	Notifications *handler.NotificationHandler
	Reports       *handler.ReportHandler
	Dashboard     *handler.DashboardHandler
	Analytics     *handler.AnalyticsHandler
	Realtime      *handler.RealtimeHandler
	Metrics       *handler.MetricsHandler
}

// Options configures cross-cutting middleware.
type Options struct {
	Config      *config.Config
	Logger      *zap.Logger
	Metrics     *service.MetricsService
	RateLimiter *middleware.RateLimiter
}

// NewRouter builds the gin engine with the API mounted under the configured prefix.
func NewRouter(opts Options, h Handlers) *gin.Engine {
	cfg := opts.Config
	if cfg == nil {
		cfg = &config.Config{}
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(log))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(opts.Metrics))

	if h.Metrics != nil {
		r.GET("/health", h.Metrics.Health)
		r.GET("/ready", h.Metrics.Ready)
		r.GET("/metrics", h.Metrics.Prometheus)
	}
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	prefix := cfg.APIPrefix
	if prefix == "" {
		prefix = "/api/v1"
	}
	api := r.Group(prefix)
	api.Use(middleware.WithResponseMeta(), middleware.Identity())
	if opts.RateLimiter != nil {
		api.Use(opts.RateLimiter.Middleware())
	}

	if n := h.Notifications; n != nil {
		notifications := api.Group("/notifications")
		notifications.GET("", n.List)
		notifications.POST("", n.Notify)
		notifications.GET("/unread-count", n.UnreadCount)
		notifications.POST("/fan-out", n.FanOut)
		notifications.POST("/mark-read", n.MarkManyRead)
		notifications.POST("/mark-all-read", n.MarkAllRead)
		notifications.POST("/:id/read", n.MarkRead)
		notifications.POST("/:id/unread", n.MarkUnread)
		notifications.DELETE("/:id", n.Delete)

		api.GET("/notification-preferences", n.GetPreferences)
		api.PUT("/notification-preferences", n.UpdatePreferences)
	}

	if rep := h.Reports; rep != nil {
		reports := api.Group("/reports", middleware.RequireAgent())
		reports.GET("/executions/:id", rep.Execution)
		reports.POST("/:id/execute", rep.Execute)
		reports.GET("/:id/executions", rep.Executions)
		reports.GET("/:id/schedule", rep.GetSchedule)
		reports.PUT("/:id/schedule", rep.SaveSchedule)
		reports.DELETE("/:id/schedule", rep.DeleteSchedule)

		api.POST("/exports/reports", middleware.RequireAgent(), rep.Export)
		api.GET("/export/:token", rep.Download)
	}

	if d := h.Dashboard; d != nil {
		api.GET("/dashboard/agent-queue", d.AgentQueue)
		api.GET("/dashboard/agent-stats", d.AgentStats)
	}

	if a := h.Analytics; a != nil {
		metrics := api.Group("/metrics")
		metrics.GET("/tickets", a.Tickets)
		metrics.GET("/sla", a.SLA)
		metrics.GET("/hourly", a.Hourly)
		metrics.GET("/clients", a.Clients)
		metrics.GET("/system", a.System)
		metrics.POST("/aggregate", middleware.RequireAgent(), a.Aggregate)
	}

	if rt := h.Realtime; rt != nil {
		realtime := api.Group("/realtime", middleware.RequireIdentity())
		realtime.POST("/auth", rt.Auth)
		realtime.GET("/ws", rt.WS)
	}

	return r
}
