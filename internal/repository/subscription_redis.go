package repository

import (
    "context"
    "fmt"
    "sort"

    "github.com/redis/go-redis/v9"

    "github.com/d60-Lab/subscription-graph/internal/model"
)

// RedisSubscriptionRepository 基于 redis set 的存储：
//   sub:records            全部 followee 注册表（空集合记录也要可查）
//   sub:{followee}         记录成员集合
//   sub:rev:{subscriber}   subscriber -> followee 反向索引
type RedisSubscriptionRepository struct {
    rdb *redis.Client
}

func NewRedisSubscriptionRepository(rdb *redis.Client) *RedisSubscriptionRepository {
    return &RedisSubscriptionRepository{rdb: rdb}
}

const redisRecordsKey = "sub:records"

func redisSetKey(followeeID string) string   { return fmt.Sprintf("sub:%s", followeeID) }
func redisRevKey(subscriberID string) string { return fmt.Sprintf("sub:rev:%s", subscriberID) }

func (r *RedisSubscriptionRepository) Get(ctx context.Context, followeeID string) (*model.Subscription, error) {
    exists, err := r.rdb.SIsMember(ctx, redisRecordsKey, followeeID).Result()
    if err != nil {
        return nil, err
    }
    if !exists {
        return nil, nil
    }
    ids, err := r.rdb.SMembers(ctx, redisSetKey(followeeID)).Result()
    if err != nil {
        return nil, err
    }
    sort.Strings(ids)
    return &model.Subscription{FolloweeID: followeeID, SubscriberIDs: ids}, nil
}

func (r *RedisSubscriptionRepository) FindAllContaining(ctx context.Context, subscriberID string) ([]*model.Subscription, error) {
    followeeIDs, err := r.rdb.SMembers(ctx, redisRevKey(subscriberID)).Result()
    if err != nil {
        return nil, err
    }
    sort.Strings(followeeIDs)
    res := make([]*model.Subscription, 0, len(followeeIDs))
    for _, fid := range followeeIDs {
        ids, err := r.rdb.SMembers(ctx, redisSetKey(fid)).Result()
        if err != nil {
            return nil, err
        }
        sort.Strings(ids)
        res = append(res, &model.Subscription{FolloweeID: fid, SubscriberIDs: ids})
    }
    return res, nil
}

func (r *RedisSubscriptionRepository) Save(ctx context.Context, sub *model.Subscription) error {
    old, err := r.rdb.SMembers(ctx, redisSetKey(sub.FolloweeID)).Result()
    if err != nil {
        return err
    }
    want := make(map[string]bool, len(sub.SubscriberIDs))
    for _, id := range sub.SubscriberIDs {
        want[id] = true
    }

    pipe := r.rdb.TxPipeline()
    pipe.SAdd(ctx, redisRecordsKey, sub.FolloweeID)
    pipe.Del(ctx, redisSetKey(sub.FolloweeID))
    if len(sub.SubscriberIDs) > 0 {
        pipe.SAdd(ctx, redisSetKey(sub.FolloweeID), toAnySlice(sub.SubscriberIDs)...)
    }
    for _, id := range sub.SubscriberIDs {
        pipe.SAdd(ctx, redisRevKey(id), sub.FolloweeID)
    }
    for _, id := range old {
        if !want[id] {
            pipe.SRem(ctx, redisRevKey(id), sub.FolloweeID)
        }
    }
    _, err = pipe.Exec(ctx)
    return err
}

func (r *RedisSubscriptionRepository) SaveAll(ctx context.Context, subs []*model.Subscription) error {
    for _, sub := range subs {
        if err := r.Save(ctx, sub); err != nil {
            return err
        }
    }
    return nil
}

func (r *RedisSubscriptionRepository) Delete(ctx context.Context, followeeID string) error {
    old, err := r.rdb.SMembers(ctx, redisSetKey(followeeID)).Result()
    if err != nil {
        return err
    }
    pipe := r.rdb.TxPipeline()
    for _, id := range old {
        pipe.SRem(ctx, redisRevKey(id), followeeID)
    }
    pipe.Del(ctx, redisSetKey(followeeID))
    pipe.SRem(ctx, redisRecordsKey, followeeID)
    _, err = pipe.Exec(ctx)
    return err
}

func toAnySlice(strs []string) []interface{} {
    result := make([]interface{}, len(strs))
    for i, s := range strs {
        result[i] = s
    }
    return result
}
