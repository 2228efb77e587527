package model

import "time"

// GraphEvent 图变更事件外发盒（至少一次投递）
type GraphEvent struct {
    ID           string    `gorm:"primaryKey;type:varchar(36)"`
    Type         string    `gorm:"type:varchar(32);index;not null"`
    FolloweeID   string    `gorm:"type:varchar(36);index:idx_event_followee;not null"`
    SubscriberID string    `gorm:"type:varchar(36)"` // subscription_deleted 事件为空
    CreatedAt    time.Time `gorm:"index"`
    UpdatedAt    time.Time `gorm:"index"` // 最近一次 claim / 状态变更时间，超时回捞依据
    Status       string    `gorm:"type:varchar(16);index"` // pending, processing, done
    ProcessedAt  *time.Time
    Attempts     int
}

func (GraphEvent) TableName() string { return "graph_events" }

// GraphEvent.Type 取值
const (
    EventSubscriberAdded     = "subscriber_added"
    EventSubscriberRemoved   = "subscriber_removed"
    EventSubscriptionDeleted = "subscription_deleted"
)

// GraphEvent.Status 取值
const (
    EventStatusPending    = "pending"
    EventStatusProcessing = "processing"
    EventStatusDone       = "done"
)
