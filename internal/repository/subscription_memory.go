package repository

import (
    "context"
    "sync"

    "github.com/d60-Lab/subscription-graph/internal/model"
)

// MemorySubscriptionRepository 参考实现：RWMutex + map。
// bySubscriber 是 subscriber -> followee 集合的二级索引，FindAllContaining 走索引而非全表扫描。
type MemorySubscriptionRepository struct {
    mu           sync.RWMutex
    records      map[string]*model.Subscription
    bySubscriber map[string]map[string]bool
}

func NewMemorySubscriptionRepository() *MemorySubscriptionRepository {
    return &MemorySubscriptionRepository{
        records:      make(map[string]*model.Subscription),
        bySubscriber: make(map[string]map[string]bool),
    }
}

func (r *MemorySubscriptionRepository) Get(_ context.Context, followeeID string) (*model.Subscription, error) {
    r.mu.RLock()
    defer r.mu.RUnlock()
    sub, ok := r.records[followeeID]
    if !ok {
        return nil, nil
    }
    return sub.Clone(), nil
}

func (r *MemorySubscriptionRepository) FindAllContaining(_ context.Context, subscriberID string) ([]*model.Subscription, error) {
    r.mu.RLock()
    defer r.mu.RUnlock()
    res := []*model.Subscription{}
    for followeeID := range r.bySubscriber[subscriberID] {
        if sub, ok := r.records[followeeID]; ok {
            res = append(res, sub.Clone())
        }
    }
    return res, nil
}

func (r *MemorySubscriptionRepository) Save(_ context.Context, sub *model.Subscription) error {
    r.mu.Lock()
    defer r.mu.Unlock()
    r.saveLocked(sub)
    return nil
}

func (r *MemorySubscriptionRepository) SaveAll(_ context.Context, subs []*model.Subscription) error {
    r.mu.Lock()
    defer r.mu.Unlock()
    for _, sub := range subs {
        r.saveLocked(sub)
    }
    return nil
}

func (r *MemorySubscriptionRepository) Delete(_ context.Context, followeeID string) error {
    r.mu.Lock()
    defer r.mu.Unlock()
    old, ok := r.records[followeeID]
    if !ok {
        return nil
    }
    for _, id := range old.SubscriberIDs {
        r.unindexLocked(id, followeeID)
    }
    delete(r.records, followeeID)
    return nil
}

func (r *MemorySubscriptionRepository) saveLocked(sub *model.Subscription) {
    if old, ok := r.records[sub.FolloweeID]; ok {
        for _, id := range old.SubscriberIDs {
            r.unindexLocked(id, sub.FolloweeID)
        }
    }
    cp := sub.Clone()
    r.records[cp.FolloweeID] = cp
    for _, id := range cp.SubscriberIDs {
        set, ok := r.bySubscriber[id]
        if !ok {
            set = make(map[string]bool)
            r.bySubscriber[id] = set
        }
        set[cp.FolloweeID] = true
    }
}

func (r *MemorySubscriptionRepository) unindexLocked(subscriberID, followeeID string) {
    set, ok := r.bySubscriber[subscriberID]
    if !ok {
        return
    }
    delete(set, followeeID)
    if len(set) == 0 {
        delete(r.bySubscriber, subscriberID)
    }
}
