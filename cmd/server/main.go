package main

import (
    "context"
    "time"

    "github.com/getsentry/sentry-go"
    "github.com/redis/go-redis/v9"
    "go.uber.org/zap"
    "gorm.io/gorm"

    "github.com/d60-Lab/subscription-graph/config"
    "github.com/d60-Lab/subscription-graph/internal/api"
    "github.com/d60-Lab/subscription-graph/internal/api/handler"
    "github.com/d60-Lab/subscription-graph/internal/cache"
    "github.com/d60-Lab/subscription-graph/internal/model"
    "github.com/d60-Lab/subscription-graph/internal/repository"
    "github.com/d60-Lab/subscription-graph/internal/service"
    "github.com/d60-Lab/subscription-graph/pkg/database"
    "github.com/d60-Lab/subscription-graph/pkg/logger"
    "github.com/d60-Lab/subscription-graph/pkg/telemetry"
)

func must[T any](v T, err error) T { if err != nil { panic(err) }; return v }

func main() {
    cfg := must(config.Load())
    logger.Init(cfg.Server.Mode)
    defer logger.Sync()

    ctx := context.Background()

    if cfg.Sentry.DSN != "" {
        must(0, sentry.Init(sentry.ClientOptions{Dsn: cfg.Sentry.DSN}))
        defer sentry.Flush(2 * time.Second)
    }
    shutdownTracer := must(telemetry.Init(ctx, "subscription-graph", cfg.Otel.Endpoint))
    defer func() { _ = shutdownTracer(ctx) }()

    rdb := redis.NewClient(&redis.Options{
        Addr:     cfg.Redis.Addr,
        Password: cfg.Redis.Password,
        DB:       cfg.Redis.DB,
    })

    var repo repository.SubscriptionRepository
    var publisher service.EventPublisher
    var db *gorm.DB

    switch cfg.Store.Backend {
    case "memory":
        repo = repository.NewMemorySubscriptionRepository()
    case "redis":
        repo = repository.NewRedisSubscriptionRepository(rdb)
    default:
        db = must(database.InitDB(cfg))
        must(0, db.AutoMigrate(&model.SubscriptionRow{}, &model.SubscriptionMember{}, &model.GraphEvent{}))
        repo = repository.NewSubscriptionRepository(db)
        publisher = service.NewOutboxPublisher(db)
    }

    engine := service.NewSubscriptionService(repo, publisher)
    if db != nil {
        pollInterval := must(time.ParseDuration(cfg.Relay.PollInterval))
        relay := service.NewOutboxRelay(db, rdb, engine, cfg.Relay.Stream, cfg.Relay.Workers, cfg.Relay.ClaimLimit, pollInterval)
        stopRelay := relay.Start()
        defer func() { _ = stopRelay(ctx) }()
    }

    ttl := must(time.ParseDuration(cfg.Cache.TTL))
    subCache := cache.NewSubscriberCache(repo, rdb, ttl)

    h := handler.New(engine, subCache)
    r := api.NewRouter(cfg, h)

    if err := r.Run(cfg.Server.Addr); err != nil {
        logger.Fatal("server exited", zap.Error(err))
    }
}
