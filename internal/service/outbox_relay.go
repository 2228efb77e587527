package service

import (
    "context"
    "time"

    "github.com/redis/go-redis/v9"
    "go.uber.org/zap"
    "gorm.io/gorm"

    "github.com/d60-Lab/subscription-graph/internal/model"
    "github.com/d60-Lab/subscription-graph/pkg/logger"
)

// OutboxRelay 轮询 graph_events 并投递到 redis stream（至少一次）。
// subscription_deleted 事件额外重放一次幂等回扫，清理与级联并发竞争留下的悬挂 id。
type OutboxRelay struct {
    db           *gorm.DB
    rdb          *redis.Client
    engine       SubscriptionService
    stream       string
    claimLimit   int
    pollInterval time.Duration
    reclaimAfter time.Duration // processing 停留超过该时长视为悬死，可被重新 claim
    workers      int
    metricsCh    chan time.Duration // created_at -> done 延迟
}

func NewOutboxRelay(db *gorm.DB, rdb *redis.Client, engine SubscriptionService, stream string, workers, claimLimit int, pollInterval time.Duration) *OutboxRelay {
    if stream == "" {
        stream = "graph-events"
    }
    if workers <= 0 {
        workers = 2
    }
    if claimLimit <= 0 {
        claimLimit = 128
    }
    if pollInterval <= 0 {
        pollInterval = 50 * time.Millisecond
    }
    return &OutboxRelay{db: db, rdb: rdb, engine: engine, stream: stream, workers: workers, claimLimit: claimLimit, pollInterval: pollInterval, reclaimAfter: time.Minute, metricsCh: make(chan time.Duration, 65536)}
}

func (r *OutboxRelay) Metrics() <-chan time.Duration { return r.metricsCh }

// Start 启动若干 worker 轮询处理 pending 事件；返回停止函数。
func (r *OutboxRelay) Start() func(context.Context) error {
    stop := make(chan struct{})
    for i := 0; i < r.workers; i++ {
        go r.loop(stop)
    }
    return func(ctx context.Context) error { close(stop); return nil }
}

func (r *OutboxRelay) loop(stop <-chan struct{}) {
    ticker := time.NewTicker(r.pollInterval)
    defer ticker.Stop()
    for {
        select {
        case <-stop:
            return
        case <-ticker.C:
            _ = r.ProcessOnce(context.Background())
        }
    }
}

// ProcessOnce claim 一批待投递事件（单实例轮询 claim）。
// 除 pending 外，还回捞停留超过 reclaimAfter 的 processing 事件，
// 投递失败或进程崩溃留下的残留由此重新进入投递。
func (r *OutboxRelay) ProcessOnce(ctx context.Context) error {
    var batch []model.GraphEvent
    err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
        cutoff := time.Now().Add(-r.reclaimAfter)
        err := tx.Where("status = ? OR (status = ? AND updated_at <= ?)",
            model.EventStatusPending, model.EventStatusProcessing, cutoff).
            Order("created_at").
            Limit(r.claimLimit).
            Find(&batch).Error
        if err != nil {
            return err
        }
        if len(batch) == 0 {
            return nil
        }
        ids := make([]string, len(batch))
        for i, e := range batch {
            ids[i] = e.ID
        }
        // claim 即计一次 attempt，毒事件靠该计数暴露
        return tx.Model(&model.GraphEvent{}).Where("id IN ?", ids).
            Updates(map[string]any{"status": model.EventStatusProcessing, "attempts": gorm.Expr("attempts + 1")}).Error
    })
    if err != nil {
        return err
    }
    if len(batch) == 0 {
        return nil
    }

    for _, e := range batch {
        if err := r.deliver(ctx, &e); err != nil {
            // 留在 processing，超过 reclaimAfter 后被下一轮重新 claim；投递本身可重放
            logger.Warn("relay deliver failed",
                zap.String("event", e.ID),
                zap.String("type", e.Type),
                zap.Error(err))
            continue
        }
        now := time.Now()
        _ = r.db.WithContext(ctx).Model(&model.GraphEvent{}).
            Where("id = ?", e.ID).
            Updates(map[string]any{"status": model.EventStatusDone, "processed_at": now}).Error
        if !e.CreatedAt.IsZero() {
            select {
            case r.metricsCh <- time.Since(e.CreatedAt):
            default:
            }
        }
    }
    return nil
}

func (r *OutboxRelay) deliver(ctx context.Context, e *model.GraphEvent) error {
    if r.rdb != nil {
        err := r.rdb.XAdd(ctx, &redis.XAddArgs{
            Stream: r.stream,
            Values: map[string]interface{}{
                "id":         e.ID,
                "type":       e.Type,
                "followee":   e.FolloweeID,
                "subscriber": e.SubscriberID,
            },
        }).Err()
        if err != nil {
            return err
        }
    }
    if e.Type == model.EventSubscriptionDeleted && r.engine != nil {
        scrubbed, err := r.engine.ScrubSubscriber(ctx, e.FolloweeID)
        if err != nil {
            return err
        }
        if scrubbed > 0 {
            logger.Info("relay scrubbed dangling subscriber",
                zap.String("subscriber", e.FolloweeID),
                zap.Int("records", scrubbed))
        }
    }
    return nil
}
