package api

import (
    sentrygin "github.com/getsentry/sentry-go/gin"
    "github.com/gin-contrib/gzip"
    "github.com/gin-gonic/gin"
    swaggerFiles "github.com/swaggo/files"
    ginSwagger "github.com/swaggo/gin-swagger"
    "go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

    "github.com/d60-Lab/subscription-graph/config"
    "github.com/d60-Lab/subscription-graph/internal/api/handler"
    "github.com/d60-Lab/subscription-graph/internal/api/middleware"
)

// NewRouter 组装路由与中间件
func NewRouter(cfg *config.Config, h *handler.Handler) *gin.Engine {
    gin.SetMode(cfg.Server.Mode)
    r := gin.New()
    r.Use(gin.Recovery())
    r.Use(gzip.Gzip(gzip.DefaultCompression))
    r.Use(otelgin.Middleware("subscription-graph"))
    r.Use(middleware.RateLimit(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
    if cfg.Sentry.DSN != "" {
        r.Use(sentrygin.New(sentrygin.Options{Repanic: true}))
    }

    r.GET("/healthz", func(c *gin.Context) { c.String(200, "ok") })
    r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

    v1 := r.Group("/api/v1/subscriptions")
    {
        v1.POST("/subscribe", h.Subscribe)
        v1.POST("/unsubscribe", h.Unsubscribe)
        v1.GET("/:followee_id", h.GetSubscription)
        v1.GET("/:followee_id/subscribers", h.ListSubscribers)
        v1.DELETE("/:followee_id", h.DeleteSubscription)
    }
    return r
}
