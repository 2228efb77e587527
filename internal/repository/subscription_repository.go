package repository

import (
    "context"
    "errors"

    "github.com/google/uuid"
    "gorm.io/gorm"
    "gorm.io/gorm/clause"

    "github.com/d60-Lab/subscription-graph/internal/model"
)

// SubscriptionRepository 图记录存储契约。
// Get 未命中返回 (nil, nil)；各调用之间不保证跨记录事务。
type SubscriptionRepository interface {
    Get(ctx context.Context, followeeID string) (*model.Subscription, error)
    // FindAllContaining 返回所有把 subscriberID 计入成员集合的记录
    FindAllContaining(ctx context.Context, subscriberID string) ([]*model.Subscription, error)
    Save(ctx context.Context, sub *model.Subscription) error
    SaveAll(ctx context.Context, subs []*model.Subscription) error
    Delete(ctx context.Context, followeeID string) error
}

type subscriptionRepository struct {
    db *gorm.DB
}

func NewSubscriptionRepository(db *gorm.DB) SubscriptionRepository {
    return &subscriptionRepository{db: db}
}

func (r *subscriptionRepository) Get(ctx context.Context, followeeID string) (*model.Subscription, error) {
    var row model.SubscriptionRow
    err := r.db.WithContext(ctx).Where("followee_id = ?", followeeID).First(&row).Error
    if errors.Is(err, gorm.ErrRecordNotFound) {
        return nil, nil
    }
    if err != nil {
        return nil, err
    }
    ids, err := r.memberIDs(ctx, r.db, followeeID)
    if err != nil {
        return nil, err
    }
    return &model.Subscription{FolloweeID: followeeID, SubscriberIDs: ids}, nil
}

func (r *subscriptionRepository) FindAllContaining(ctx context.Context, subscriberID string) ([]*model.Subscription, error) {
    var followeeIDs []string
    err := r.db.WithContext(ctx).
        Model(&model.SubscriptionMember{}).
        Distinct("followee_id").
        Where("subscriber_id = ?", subscriberID).
        Order("followee_id").
        Pluck("followee_id", &followeeIDs).Error
    if err != nil {
        return nil, err
    }
    if len(followeeIDs) == 0 {
        return []*model.Subscription{}, nil
    }

    var members []model.SubscriptionMember
    err = r.db.WithContext(ctx).
        Where("followee_id IN ?", followeeIDs).
        Order("followee_id, subscriber_id").
        Find(&members).Error
    if err != nil {
        return nil, err
    }

    byFollowee := make(map[string]*model.Subscription, len(followeeIDs))
    res := make([]*model.Subscription, 0, len(followeeIDs))
    for _, fid := range followeeIDs {
        sub := &model.Subscription{FolloweeID: fid, SubscriberIDs: []string{}}
        byFollowee[fid] = sub
        res = append(res, sub)
    }
    for _, m := range members {
        sub := byFollowee[m.FolloweeID]
        sub.SubscriberIDs = append(sub.SubscriberIDs, m.SubscriberID)
    }
    return res, nil
}

func (r *subscriptionRepository) Save(ctx context.Context, sub *model.Subscription) error {
    return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
        return r.saveTx(ctx, tx, sub)
    })
}

func (r *subscriptionRepository) SaveAll(ctx context.Context, subs []*model.Subscription) error {
    if len(subs) == 0 {
        return nil
    }
    return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
        for _, sub := range subs {
            if err := r.saveTx(ctx, tx, sub); err != nil {
                return err
            }
        }
        return nil
    })
}

func (r *subscriptionRepository) Delete(ctx context.Context, followeeID string) error {
    return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
        if err := tx.Where("followee_id = ?", followeeID).Delete(&model.SubscriptionMember{}).Error; err != nil {
            return err
        }
        return tx.Where("followee_id = ?", followeeID).Delete(&model.SubscriptionRow{}).Error
    })
}

// saveTx 按 followee 整记录 upsert：补齐缺失成员、删除多余成员
func (r *subscriptionRepository) saveTx(ctx context.Context, tx *gorm.DB, sub *model.Subscription) error {
    row := &model.SubscriptionRow{FolloweeID: sub.FolloweeID}
    if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(row).Error; err != nil {
        return err
    }

    existing, err := r.memberIDs(ctx, tx, sub.FolloweeID)
    if err != nil {
        return err
    }
    want := make(map[string]bool, len(sub.SubscriberIDs))
    for _, id := range sub.SubscriberIDs {
        want[id] = true
    }
    have := make(map[string]bool, len(existing))
    for _, id := range existing {
        have[id] = true
    }

    var toAdd []model.SubscriptionMember
    for id := range want {
        if !have[id] {
            toAdd = append(toAdd, model.SubscriptionMember{ID: uuid.New().String(), FolloweeID: sub.FolloweeID, SubscriberID: id})
        }
    }
    var toRemove []string
    for id := range have {
        if !want[id] {
            toRemove = append(toRemove, id)
        }
    }

    if len(toAdd) > 0 {
        // 幂等：并发补写同一成员不报错
        if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&toAdd).Error; err != nil {
            return err
        }
    }
    if len(toRemove) > 0 {
        err := tx.Where("followee_id = ? AND subscriber_id IN ?", sub.FolloweeID, toRemove).
            Delete(&model.SubscriptionMember{}).Error
        if err != nil {
            return err
        }
    }
    return nil
}

func (r *subscriptionRepository) memberIDs(ctx context.Context, tx *gorm.DB, followeeID string) ([]string, error) {
    ids := []string{}
    err := tx.WithContext(ctx).
        Model(&model.SubscriptionMember{}).
        Where("followee_id = ?", followeeID).
        Order("subscriber_id").
        Pluck("subscriber_id", &ids).Error
    return ids, err
}
