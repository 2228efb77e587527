package repository

import (
    "context"
    "testing"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/d60-Lab/subscription-graph/internal/model"
)

func TestMemoryIndexFollowsSaves(t *testing.T) {
    repo := NewMemorySubscriptionRepository()
    ctx := context.Background()

    require.NoError(t, repo.Save(ctx, &model.Subscription{FolloweeID: "a", SubscriberIDs: []string{"x"}}))
    require.NoError(t, repo.Save(ctx, &model.Subscription{FolloweeID: "b", SubscriberIDs: []string{"x"}}))

    subs, err := repo.FindAllContaining(ctx, "x")
    require.NoError(t, err)
    assert.Len(t, subs, 2)

    // 覆盖保存后旧成员必须从索引摘除
    require.NoError(t, repo.Save(ctx, &model.Subscription{FolloweeID: "a", SubscriberIDs: []string{"y"}}))
    subs, err = repo.FindAllContaining(ctx, "x")
    require.NoError(t, err)
    require.Len(t, subs, 1)
    assert.Equal(t, "b", subs[0].FolloweeID)

    require.NoError(t, repo.Delete(ctx, "b"))
    subs, err = repo.FindAllContaining(ctx, "x")
    require.NoError(t, err)
    assert.Empty(t, subs)
}

func TestMemoryReturnsCopies(t *testing.T) {
    repo := NewMemorySubscriptionRepository()
    ctx := context.Background()

    require.NoError(t, repo.Save(ctx, &model.Subscription{FolloweeID: "a", SubscriberIDs: []string{"x"}}))
    got, err := repo.Get(ctx, "a")
    require.NoError(t, err)

    // 改调用方拿到的副本不得穿透存储
    got.SubscriberIDs[0] = "mutated"
    again, err := repo.Get(ctx, "a")
    require.NoError(t, err)
    assert.Equal(t, []string{"x"}, again.SubscriberIDs)
}
