package service

import (
    "context"
    "fmt"
    "sync"
    "testing"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
    "gorm.io/driver/sqlite"
    "gorm.io/gorm"
    gormlogger "gorm.io/gorm/logger"

    "github.com/d60-Lab/subscription-graph/internal/model"
    "github.com/d60-Lab/subscription-graph/internal/repository"
)

type capturePublisher struct {
    mu     sync.Mutex
    events []*model.GraphEvent
}

func (p *capturePublisher) Publish(_ context.Context, e *model.GraphEvent) error {
    p.mu.Lock()
    defer p.mu.Unlock()
    p.events = append(p.events, e)
    return nil
}

func (p *capturePublisher) byType(t string) []*model.GraphEvent {
    p.mu.Lock()
    defer p.mu.Unlock()
    var out []*model.GraphEvent
    for _, e := range p.events {
        if e.Type == t {
            out = append(out, e)
        }
    }
    return out
}

func newGormRepo(t *testing.T) repository.SubscriptionRepository {
    db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
    require.NoError(t, err)
    require.NoError(t, db.AutoMigrate(&model.SubscriptionRow{}, &model.SubscriptionMember{}))
    return repository.NewSubscriptionRepository(db)
}

// 每种存储后端都要满足引擎语义
func backends(t *testing.T) map[string]repository.SubscriptionRepository {
    return map[string]repository.SubscriptionRepository{
        "memory": repository.NewMemorySubscriptionRepository(),
        "gorm":   newGormRepo(t),
    }
}

func TestAddSubscriberCreateOnWrite(t *testing.T) {
    for name, repo := range backends(t) {
        t.Run(name, func(t *testing.T) {
            svc := NewSubscriptionService(repo, nil)
            ctx := context.Background()

            sub, err := svc.AddSubscriber(ctx, "7", "3")
            require.NoError(t, err)
            assert.Equal(t, "7", sub.FolloweeID)
            assert.Equal(t, []string{"3"}, sub.SubscriberIDs)

            got, err := svc.GetSubscription(ctx, "7")
            require.NoError(t, err)
            assert.Equal(t, []string{"3"}, got.SubscriberIDs)
        })
    }
}

func TestAddSubscriberIdempotent(t *testing.T) {
    for name, repo := range backends(t) {
        t.Run(name, func(t *testing.T) {
            svc := NewSubscriptionService(repo, nil)
            ctx := context.Background()

            _, err := svc.AddSubscriber(ctx, "f", "s")
            require.NoError(t, err)
            sub, err := svc.AddSubscriber(ctx, "f", "s")
            require.NoError(t, err)
            assert.Equal(t, []string{"s"}, sub.SubscriberIDs)
        })
    }
}

func TestNoDuplicateMembership(t *testing.T) {
    for name, repo := range backends(t) {
        t.Run(name, func(t *testing.T) {
            svc := NewSubscriptionService(repo, nil)
            ctx := context.Background()

            for i := 0; i < 5; i++ {
                _, err := svc.AddSubscriber(ctx, "f", "s1")
                require.NoError(t, err)
            }
            _, err := svc.AddSubscriber(ctx, "f", "s2")
            require.NoError(t, err)

            got, err := svc.GetSubscription(ctx, "f")
            require.NoError(t, err)
            assert.Equal(t, []string{"s1", "s2"}, got.SubscriberIDs)
        })
    }
}

func TestRemoveSubscriber(t *testing.T) {
    for name, repo := range backends(t) {
        t.Run(name, func(t *testing.T) {
            svc := NewSubscriptionService(repo, nil)
            ctx := context.Background()

            _, err := svc.AddSubscriber(ctx, "f", "s1")
            require.NoError(t, err)
            _, err = svc.AddSubscriber(ctx, "f", "s2")
            require.NoError(t, err)

            sub, err := svc.RemoveSubscriber(ctx, "f", "s1")
            require.NoError(t, err)
            assert.Equal(t, []string{"s2"}, sub.SubscriberIDs)

            // 删除不存在的成员是 no-op，不报错
            sub, err = svc.RemoveSubscriber(ctx, "f", "s1")
            require.NoError(t, err)
            assert.Equal(t, []string{"s2"}, sub.SubscriberIDs)
        })
    }
}

func TestEmptySetPersistence(t *testing.T) {
    for name, repo := range backends(t) {
        t.Run(name, func(t *testing.T) {
            svc := NewSubscriptionService(repo, nil)
            ctx := context.Background()

            _, err := svc.AddSubscriber(ctx, "f", "s")
            require.NoError(t, err)
            sub, err := svc.RemoveSubscriber(ctx, "f", "s")
            require.NoError(t, err)
            assert.Empty(t, sub.SubscriberIDs)

            // 清空集合不等于删除记录
            got, err := svc.GetSubscription(ctx, "f")
            require.NoError(t, err)
            assert.Equal(t, "f", got.FolloweeID)
            assert.Empty(t, got.SubscriberIDs)
        })
    }
}

func TestNotFoundOnMissingRecord(t *testing.T) {
    for name, repo := range backends(t) {
        t.Run(name, func(t *testing.T) {
            svc := NewSubscriptionService(repo, nil)
            ctx := context.Background()

            _, err := svc.GetSubscription(ctx, "99")
            assert.ErrorIs(t, err, ErrSubscriptionNotFound)

            _, err = svc.RemoveSubscriber(ctx, "99", "1")
            assert.ErrorIs(t, err, ErrSubscriptionNotFound)
        })
    }
}

func TestSelfSubscriptionRejected(t *testing.T) {
    svc := NewSubscriptionService(repository.NewMemorySubscriptionRepository(), nil)
    _, err := svc.AddSubscriber(context.Background(), "f", "f")
    assert.ErrorIs(t, err, ErrSelfSubscription)
}

func TestDeleteSubscriptionCascade(t *testing.T) {
    for name, repo := range backends(t) {
        t.Run(name, func(t *testing.T) {
            svc := NewSubscriptionService(repo, nil)
            ctx := context.Background()

            // 记录 2 的粉丝是 {1,3}；1 自己也有记录
            _, err := svc.AddSubscriber(ctx, "2", "1")
            require.NoError(t, err)
            _, err = svc.AddSubscriber(ctx, "2", "3")
            require.NoError(t, err)
            _, err = svc.AddSubscriber(ctx, "1", "5")
            require.NoError(t, err)

            scrubbed, err := svc.DeleteSubscription(ctx, "1")
            require.NoError(t, err)
            assert.Equal(t, []string{"2"}, scrubbed)

            // 1 的锚点记录销毁
            _, err = svc.GetSubscription(ctx, "1")
            assert.ErrorIs(t, err, ErrSubscriptionNotFound)

            // 1 被从记录 2 的集合中清洗掉
            got, err := svc.GetSubscription(ctx, "2")
            require.NoError(t, err)
            assert.Equal(t, []string{"3"}, got.SubscriberIDs)
        })
    }
}

func TestDeleteSubscriptionNoFanout(t *testing.T) {
    for name, repo := range backends(t) {
        t.Run(name, func(t *testing.T) {
            svc := NewSubscriptionService(repo, nil)
            ctx := context.Background()

            _, err := svc.AddSubscriber(ctx, "solo", "x")
            require.NoError(t, err)
            _, err = svc.AddSubscriber(ctx, "other", "y")
            require.NoError(t, err)

            _, err = svc.DeleteSubscription(ctx, "solo")
            require.NoError(t, err)

            _, err = svc.GetSubscription(ctx, "solo")
            assert.ErrorIs(t, err, ErrSubscriptionNotFound)

            // 无关记录不受影响
            got, err := svc.GetSubscription(ctx, "other")
            require.NoError(t, err)
            assert.Equal(t, []string{"y"}, got.SubscriberIDs)
        })
    }
}

func TestDeleteSubscriptionMissingAnchorStillScrubs(t *testing.T) {
    for name, repo := range backends(t) {
        t.Run(name, func(t *testing.T) {
            svc := NewSubscriptionService(repo, nil)
            ctx := context.Background()

            // ghost 没有自己的记录，但出现在别人的集合里
            _, err := svc.AddSubscriber(ctx, "2", "ghost")
            require.NoError(t, err)

            scrubbed, err := svc.DeleteSubscription(ctx, "ghost")
            require.NoError(t, err)
            assert.Equal(t, []string{"2"}, scrubbed)

            got, err := svc.GetSubscription(ctx, "2")
            require.NoError(t, err)
            assert.Empty(t, got.SubscriberIDs)
        })
    }
}

func TestDeleteSubscriptionRetrySafe(t *testing.T) {
    svc := NewSubscriptionService(repository.NewMemorySubscriptionRepository(), nil)
    ctx := context.Background()

    _, err := svc.AddSubscriber(ctx, "2", "1")
    require.NoError(t, err)
    _, err = svc.DeleteSubscription(ctx, "1")
    require.NoError(t, err)
    // 整体重放幂等
    _, err = svc.DeleteSubscription(ctx, "1")
    require.NoError(t, err)

    got, err := svc.GetSubscription(ctx, "2")
    require.NoError(t, err)
    assert.Empty(t, got.SubscriberIDs)
}

// scatterHookRepo 在每次散射查询返回前触发回调，按调用序号模拟与级联
// 交错落地的并发写入（直写底层存储，绕开引擎锁）
type scatterHookRepo struct {
    repository.SubscriptionRepository
    calls     int
    onScatter func(n int)
}

func (r *scatterHookRepo) FindAllContaining(ctx context.Context, subscriberID string) ([]*model.Subscription, error) {
    r.calls++
    n := r.calls
    subs, err := r.SubscriptionRepository.FindAllContaining(ctx, subscriberID)
    if r.onScatter != nil {
        r.onScatter(n)
    }
    return subs, err
}

func TestDeleteSubscriptionLocksLateReferencingRecord(t *testing.T) {
    inner := repository.NewMemorySubscriptionRepository()
    hooked := &scatterHookRepo{SubscriptionRepository: inner}
    svc := NewSubscriptionService(hooked, nil)
    ctx := context.Background()

    _, err := svc.AddSubscriber(ctx, "1", "x")
    require.NoError(t, err)

    hooked.onScatter = func(n int) {
        switch n {
        case 1:
            // 散射探测之后才出现的引用记录，不在初始锁集内
            require.NoError(t, inner.Save(ctx, &model.Subscription{FolloweeID: "3", SubscriberIDs: []string{"1", "z"}}))
        case 2:
            // 批量回写前落地的无关成员，级联不得覆盖
            require.NoError(t, inner.Save(ctx, &model.Subscription{FolloweeID: "3", SubscriberIDs: []string{"1", "7", "z"}}))
        }
    }

    scrubbed, err := svc.DeleteSubscription(ctx, "1")
    require.NoError(t, err)
    assert.Equal(t, []string{"3"}, scrubbed)

    got, err := svc.GetSubscription(ctx, "3")
    require.NoError(t, err)
    assert.Equal(t, []string{"7", "z"}, got.SubscriberIDs)
}

func TestScrubSubscriberLocksLateReferencingRecord(t *testing.T) {
    inner := repository.NewMemorySubscriptionRepository()
    hooked := &scatterHookRepo{SubscriptionRepository: inner}
    svc := NewSubscriptionService(hooked, nil)
    ctx := context.Background()

    require.NoError(t, inner.Save(ctx, &model.Subscription{FolloweeID: "2", SubscriberIDs: []string{"gone"}}))

    hooked.onScatter = func(n int) {
        switch n {
        case 1:
            require.NoError(t, inner.Save(ctx, &model.Subscription{FolloweeID: "3", SubscriberIDs: []string{"gone", "z"}}))
        case 2:
            require.NoError(t, inner.Save(ctx, &model.Subscription{FolloweeID: "3", SubscriberIDs: []string{"7", "gone", "z"}}))
        }
    }

    n, err := svc.ScrubSubscriber(ctx, "gone")
    require.NoError(t, err)
    assert.Equal(t, 2, n)

    got, err := svc.GetSubscription(ctx, "3")
    require.NoError(t, err)
    assert.Equal(t, []string{"7", "z"}, got.SubscriberIDs)
}

func TestConcurrentAddsNoLostUpdate(t *testing.T) {
    svc := NewSubscriptionService(repository.NewMemorySubscriptionRepository(), nil)
    ctx := context.Background()

    const n = 64
    var wg sync.WaitGroup
    for i := 0; i < n; i++ {
        wg.Add(1)
        go func(i int) {
            defer wg.Done()
            _, err := svc.AddSubscriber(ctx, "celeb", fmt.Sprintf("s%03d", i))
            assert.NoError(t, err)
        }(i)
    }
    wg.Wait()

    got, err := svc.GetSubscription(ctx, "celeb")
    require.NoError(t, err)
    assert.Len(t, got.SubscriberIDs, n)
}

func TestEventsPublished(t *testing.T) {
    pub := &capturePublisher{}
    svc := NewSubscriptionService(repository.NewMemorySubscriptionRepository(), pub)
    ctx := context.Background()

    _, err := svc.AddSubscriber(ctx, "f", "s")
    require.NoError(t, err)
    // 重复 add 不产生事件
    _, err = svc.AddSubscriber(ctx, "f", "s")
    require.NoError(t, err)
    _, err = svc.RemoveSubscriber(ctx, "f", "s")
    require.NoError(t, err)
    _, err = svc.RemoveSubscriber(ctx, "f", "s")
    require.NoError(t, err)
    _, err = svc.DeleteSubscription(ctx, "f")
    require.NoError(t, err)

    assert.Len(t, pub.byType(model.EventSubscriberAdded), 1)
    assert.Len(t, pub.byType(model.EventSubscriberRemoved), 1)
    assert.Len(t, pub.byType(model.EventSubscriptionDeleted), 1)
}
