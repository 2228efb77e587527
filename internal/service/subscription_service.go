package service

import (
    "context"
    "errors"

    "go.uber.org/zap"

    "github.com/d60-Lab/subscription-graph/internal/model"
    "github.com/d60-Lab/subscription-graph/internal/repository"
    "github.com/d60-Lab/subscription-graph/pkg/logger"
)

var (
    ErrSubscriptionNotFound = errors.New("subscription not found")
    ErrSelfSubscription     = errors.New("cannot subscribe to self")
)

// EventPublisher 图变更事件出口（至少一次投递由下游保证）
type EventPublisher interface {
    Publish(ctx context.Context, event *model.GraphEvent) error
}

// SubscriptionService 反范式关注图一致性引擎
type SubscriptionService interface {
    GetSubscription(ctx context.Context, followeeID string) (*model.Subscription, error)
    AddSubscriber(ctx context.Context, followeeID, subscriberID string) (*model.Subscription, error)
    RemoveSubscriber(ctx context.Context, followeeID, subscriberID string) (*model.Subscription, error)
    // DeleteSubscription 级联删除，返回被清洗记录的 followee id（供上层失效缓存）
    DeleteSubscription(ctx context.Context, followeeID string) ([]string, error)
    // ScrubSubscriber 幂等回扫：把 subscriberID 从所有记录中清除，返回改动条数
    ScrubSubscriber(ctx context.Context, subscriberID string) (int, error)
}

type subscriptionService struct {
    repo      repository.SubscriptionRepository
    publisher EventPublisher
    locks     *keyMutex
}

func NewSubscriptionService(repo repository.SubscriptionRepository, publisher EventPublisher) SubscriptionService {
    return &subscriptionService{repo: repo, publisher: publisher, locks: newKeyMutex(256)}
}

func (s *subscriptionService) GetSubscription(ctx context.Context, followeeID string) (*model.Subscription, error) {
    sub, err := s.repo.Get(ctx, followeeID)
    if err != nil {
        return nil, err
    }
    if sub == nil {
        return nil, ErrSubscriptionNotFound
    }
    return sub, nil
}

func (s *subscriptionService) AddSubscriber(ctx context.Context, followeeID, subscriberID string) (*model.Subscription, error) {
    if followeeID == subscriberID {
        return nil, ErrSelfSubscription
    }
    unlock := s.locks.Lock(followeeID)
    defer unlock()

    sub, err := s.repo.Get(ctx, followeeID)
    if err != nil {
        return nil, err
    }
    if sub == nil {
        // 首个粉丝写入时惰性建记录
        sub = model.NewSubscription(followeeID)
    }
    changed := sub.Add(subscriberID)
    if err := s.repo.Save(ctx, sub); err != nil {
        return nil, err
    }
    if changed {
        s.publish(ctx, model.EventSubscriberAdded, followeeID, subscriberID)
    }
    return sub, nil
}

func (s *subscriptionService) RemoveSubscriber(ctx context.Context, followeeID, subscriberID string) (*model.Subscription, error) {
    unlock := s.locks.Lock(followeeID)
    defer unlock()

    sub, err := s.repo.Get(ctx, followeeID)
    if err != nil {
        return nil, err
    }
    if sub == nil {
        return nil, ErrSubscriptionNotFound
    }
    changed := sub.Remove(subscriberID)
    // 集合清空也保留记录，只有级联删除才销毁
    if err := s.repo.Save(ctx, sub); err != nil {
        return nil, err
    }
    if changed {
        s.publish(ctx, model.EventSubscriberRemoved, followeeID, subscriberID)
    }
    return sub, nil
}

// DeleteSubscription 级联删除：先改依赖记录，后删锚点记录。
// 中途失败时锚点仍在，整个操作可安全重放（各步均幂等）。
func (s *subscriptionService) DeleteSubscription(ctx context.Context, followeeID string) ([]string, error) {
    dependents, unlock, err := s.lockScatter(ctx, followeeID, followeeID)
    if err != nil {
        return nil, err
    }
    defer unlock()

    scrubbed := make([]string, 0, len(dependents))
    if len(dependents) > 0 {
        for _, sub := range dependents {
            sub.Remove(followeeID)
            scrubbed = append(scrubbed, sub.FolloweeID)
        }
        if err := s.repo.SaveAll(ctx, dependents); err != nil {
            return nil, err
        }
    }
    if err := s.repo.Delete(ctx, followeeID); err != nil {
        return nil, err
    }
    logger.Info("subscription cascade delete",
        zap.String("followee", followeeID),
        zap.Int("scrubbed", len(scrubbed)))
    s.publish(ctx, model.EventSubscriptionDeleted, followeeID, "")
    return scrubbed, nil
}

func (s *subscriptionService) ScrubSubscriber(ctx context.Context, subscriberID string) (int, error) {
    dependents, unlock, err := s.lockScatter(ctx, subscriberID)
    if err != nil {
        return 0, err
    }
    defer unlock()

    if len(dependents) == 0 {
        return 0, nil
    }
    for _, sub := range dependents {
        sub.Remove(subscriberID)
    }
    if err := s.repo.SaveAll(ctx, dependents); err != nil {
        return 0, err
    }
    return len(dependents), nil
}

// lockScatter 锁定 subscriberID 的散射集并重读，直到散射结果完全落在已持有的
// 分片锁内。加锁后才冒出来的引用记录会并入锁集重试，否则批量回写会覆盖掉
// 并发写入该记录的无关成员。
func (s *subscriptionService) lockScatter(ctx context.Context, subscriberID string, anchors ...string) ([]*model.Subscription, func(), error) {
    probe, err := s.repo.FindAllContaining(ctx, subscriberID)
    if err != nil {
        return nil, nil, err
    }
    keys := make([]string, 0, len(probe)+len(anchors))
    keys = append(keys, anchors...)
    for _, sub := range probe {
        keys = append(keys, sub.FolloweeID)
    }
    for {
        unlock := s.locks.LockMany(keys)
        dependents, err := s.repo.FindAllContaining(ctx, subscriberID)
        if err != nil {
            unlock()
            return nil, nil, err
        }
        held := make(map[int]bool, len(keys))
        for _, k := range keys {
            held[s.locks.shardOf(k)] = true
        }
        stable := true
        for _, sub := range dependents {
            if !held[s.locks.shardOf(sub.FolloweeID)] {
                keys = append(keys, sub.FolloweeID)
                stable = false
            }
        }
        if stable {
            return dependents, unlock, nil
        }
        unlock()
    }
}

func (s *subscriptionService) publish(ctx context.Context, eventType, followeeID, subscriberID string) {
    if s.publisher == nil {
        return
    }
    event := &model.GraphEvent{Type: eventType, FolloweeID: followeeID, SubscriberID: subscriberID}
    if err := s.publisher.Publish(ctx, event); err != nil {
        logger.Warn("publish graph event failed",
            zap.String("type", eventType),
            zap.String("followee", followeeID),
            zap.Error(err))
    }
}
