package cache

import (
    "context"
    "errors"
    "fmt"
    "sync/atomic"
    "time"

    "github.com/redis/go-redis/v9"

    "github.com/d60-Lab/subscription-graph/internal/repository"
)

// ErrUnknownFollowee is returned when no subscription record exists for the id.
var ErrUnknownFollowee = errors.New("unknown followee")

// SubscriberCache serves paged subscriber-id reads through a redis list index,
// refilled from the record store on miss.
type SubscriberCache struct {
    repo  repository.SubscriptionRepository
    cache *redis.Client
    ttl   time.Duration

    pageHits   atomic.Int64
    indexLoads atomic.Int64
}

func NewSubscriberCache(repo repository.SubscriptionRepository, cache *redis.Client, ttl time.Duration) *SubscriberCache {
    if ttl <= 0 {
        ttl = time.Minute
    }
    return &SubscriberCache{repo: repo, cache: cache, ttl: ttl}
}

func indexKey(followeeID string) string { return fmt.Sprintf("subscribers:index:%s", followeeID) }

// emptyMarker is the sole list element cached for an empty subscriber set,
// since an empty redis list cannot exist. Subscriber ids never collide with it.
const emptyMarker = "\x00empty"

// FetchPage returns one page of subscriber ids for the followee.
func (s *SubscriberCache) FetchPage(ctx context.Context, followeeID string, page, size int) ([]string, error) {
    if page < 1 {
        page = 1
    }
    if size <= 0 {
        size = 20
    }
    start := (page - 1) * size
    end := start + size - 1

    key := indexKey(followeeID)
    exists, _ := s.cache.Exists(ctx, key).Result()
    if exists > 0 {
        ids, err := s.cache.LRange(ctx, key, int64(start), int64(end)).Result()
        if err == nil {
            s.pageHits.Add(1)
            if len(ids) == 1 && ids[0] == emptyMarker {
                return []string{}, nil
            }
            return ids, nil
        }
    }

    allIDs, err := s.loadAndCache(ctx, followeeID)
    if err != nil {
        return nil, err
    }
    if start >= len(allIDs) {
        return []string{}, nil
    }
    endIdx := start + size
    if endIdx > len(allIDs) {
        endIdx = len(allIDs)
    }
    return allIDs[start:endIdx], nil
}

// Invalidate drops the cached index after a graph mutation.
func (s *SubscriberCache) Invalidate(ctx context.Context, followeeID string) {
    _ = s.cache.Del(ctx, indexKey(followeeID)).Err()
}

func (s *SubscriberCache) loadAndCache(ctx context.Context, followeeID string) ([]string, error) {
    s.indexLoads.Add(1)

    sub, err := s.repo.Get(ctx, followeeID)
    if err != nil {
        return nil, err
    }
    if sub == nil {
        return nil, ErrUnknownFollowee
    }

    key := indexKey(followeeID)
    pipe := s.cache.Pipeline()
    pipe.Del(ctx, key)
    if len(sub.SubscriberIDs) > 0 {
        pipe.RPush(ctx, key, toAnySlice(sub.SubscriberIDs)...)
    } else {
        // empty sets are cached too, via the marker
        pipe.RPush(ctx, key, emptyMarker)
    }
    pipe.Expire(ctx, key, s.ttl)
    _, _ = pipe.Exec(ctx)
    return sub.SubscriberIDs, nil
}

func toAnySlice(strs []string) []interface{} {
    result := make([]interface{}, len(strs))
    for i, s := range strs {
        result[i] = s
    }
    return result
}

// Counters reports cache effectiveness during a run.
func (s *SubscriberCache) Counters() (pageHits, indexLoads int64) {
    return s.pageHits.Load(), s.indexLoads.Load()
}

// ResetCounters clears recorded counters.
func (s *SubscriberCache) ResetCounters() {
    s.pageHits.Store(0)
    s.indexLoads.Store(0)
}
