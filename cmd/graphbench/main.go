package main

import (
    "context"
    "fmt"
    "math"
    "os"
    "sort"
    "strconv"
    "time"

    "github.com/google/uuid"

    "github.com/d60-Lab/subscription-graph/config"
    "github.com/d60-Lab/subscription-graph/internal/model"
    "github.com/d60-Lab/subscription-graph/internal/repository"
    "github.com/d60-Lab/subscription-graph/internal/service"
    "github.com/d60-Lab/subscription-graph/pkg/database"
)

func must[T any](v T, err error) T { if err != nil { panic(err) }; return v }

func envInt(name string, def int) int {
    if s := os.Getenv(name); s != "" {
        if n, err := strconv.Atoi(s); err == nil && n > 0 { return n }
    }
    return def
}

func main() {
    cfg := must(config.Load())

    var repo repository.SubscriptionRepository
    if cfg.Store.Backend == "memory" {
        repo = repository.NewMemorySubscriptionRepository()
    } else {
        db := must(database.InitDB(cfg))
        must(0, db.AutoMigrate(&model.SubscriptionRow{}, &model.SubscriptionMember{}, &model.GraphEvent{}))
        repo = repository.NewSubscriptionRepository(db)
    }
    engine := service.NewSubscriptionService(repo, nil)
    ctx := context.Background()

    N := envInt("N", 10000)
    CONC := envInt("CONC", 8)
    FANOUT := envInt("FANOUT", 200)

    // 造号：celeb 的 N 个粉丝
    celeb := "u0"
    subscribers := make([]string, N)
    for i := range subscribers {
        subscribers[i] = uuid.New().String()
    }

    // add 路径（并发，同一 followee 上竞争分段锁）
    addRecs := make([]time.Duration, 0, N)
    addCh := make(chan time.Duration, N)
    feed := make(chan int, N)
    for i := 0; i < N; i++ { feed <- i }
    close(feed)
    workers := CONC
    if workers > N { workers = N }
    done := make(chan struct{}, workers)
    t0 := time.Now()
    for w := 0; w < workers; w++ {
        go func() {
            for i := range feed {
                st := time.Now()
                _, _ = engine.AddSubscriber(ctx, celeb, subscribers[i])
                addCh <- time.Since(st)
            }
            done <- struct{}{}
        }()
    }
    for w := 0; w < workers; w++ { <-done }
    close(addCh)
    for d := range addCh { addRecs = append(addRecs, d) }
    addDur := time.Since(t0)

    // 级联目标：victim 被 FANOUT 个 followee 计为粉丝
    victim := uuid.New().String()
    for i := 0; i < FANOUT; i++ {
        _, _ = engine.AddSubscriber(ctx, uuid.New().String(), victim)
    }
    _, _ = engine.AddSubscriber(ctx, victim, subscribers[0])

    t1 := time.Now()
    if _, err := engine.DeleteSubscription(ctx, victim); err != nil { panic(err) }
    cascadeDur := time.Since(t1)

    t2 := time.Now()
    _, _ = engine.GetSubscription(ctx, celeb)
    getDur := time.Since(t2)

    pct := func(vs []time.Duration, p float64) time.Duration {
        if len(vs) == 0 { return 0 }
        xs := append([]time.Duration(nil), vs...)
        sort.Slice(xs, func(i, j int) bool { return xs[i] < xs[j] })
        k := int(math.Ceil(p*float64(len(xs)))) - 1
        if k < 0 { k = 0 }
        if k >= len(xs) { k = len(xs)-1 }
        return xs[k]
    }

    fmt.Printf("N=%d, CONC=%d, FANOUT=%d, backend=%s\n", N, CONC, FANOUT, cfg.Store.Backend)
    fmt.Printf("AddSubscriber total: %v, per op: %v, p50: %v, p95: %v, p99: %v\n",
        addDur, addDur/time.Duration(N), pct(addRecs, 0.50), pct(addRecs, 0.95), pct(addRecs, 0.99))
    fmt.Printf("Cascade delete (%d dependents): %v\n", FANOUT, cascadeDur)
    fmt.Printf("GetSubscription(%d subscribers): %v\n", N, getDur)
}
