package model

import (
    "sort"
    "time"
)

// Subscription 关注关系的反范式记录：followee 持有其全部粉丝 id（集合语义）
type Subscription struct {
    FolloweeID    string   `json:"followee_id"`
    SubscriberIDs []string `json:"subscriber_ids"`
}

func NewSubscription(followeeID string) *Subscription {
    return &Subscription{FolloweeID: followeeID, SubscriberIDs: []string{}}
}

func (s *Subscription) Has(subscriberID string) bool {
    for _, id := range s.SubscriberIDs {
        if id == subscriberID {
            return true
        }
    }
    return false
}

// Add 幂等插入，返回集合是否变化
func (s *Subscription) Add(subscriberID string) bool {
    if s.Has(subscriberID) {
        return false
    }
    s.SubscriberIDs = append(s.SubscriberIDs, subscriberID)
    sort.Strings(s.SubscriberIDs)
    return true
}

// Remove 幂等删除，返回集合是否变化
func (s *Subscription) Remove(subscriberID string) bool {
    for i, id := range s.SubscriberIDs {
        if id == subscriberID {
            s.SubscriberIDs = append(s.SubscriberIDs[:i], s.SubscriberIDs[i+1:]...)
            return true
        }
    }
    return false
}

func (s *Subscription) Clone() *Subscription {
    ids := make([]string, len(s.SubscriberIDs))
    copy(ids, s.SubscriberIDs)
    return &Subscription{FolloweeID: s.FolloweeID, SubscriberIDs: ids}
}

// SubscriptionRow 记录锚点行（仅主键与时间戳；成员关系在 subscription_members）
type SubscriptionRow struct {
    FolloweeID string `gorm:"primaryKey;type:varchar(36)"`
    CreatedAt  time.Time
    UpdatedAt  time.Time
}

func (SubscriptionRow) TableName() string { return "subscriptions" }

// SubscriptionMember 集合成员行，冗余自 Subscription.SubscriberIDs
type SubscriptionMember struct {
    ID           string `gorm:"primaryKey;type:varchar(36)"`
    FolloweeID   string `gorm:"type:varchar(36);index:idx_member_followee;index:idx_member_pair,unique;not null"`
    SubscriberID string `gorm:"type:varchar(36);not null;index:idx_member_subscriber;index:idx_member_pair,unique"`
    // 复合唯一键，避免重复成员
    // idx_member_pair = (followee_id, subscriber_id)
    CreatedAt time.Time
    UpdatedAt time.Time
}

func (SubscriptionMember) TableName() string { return "subscription_members" }
