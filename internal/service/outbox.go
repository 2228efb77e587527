package service

import (
    "context"
    "time"

    "github.com/google/uuid"
    "gorm.io/gorm"

    "github.com/d60-Lab/subscription-graph/internal/model"
)

// OutboxPublisher 把图事件落为 graph_events 行，投递交给 OutboxRelay
type OutboxPublisher struct {
    db *gorm.DB
}

func NewOutboxPublisher(db *gorm.DB) *OutboxPublisher { return &OutboxPublisher{db: db} }

func (p *OutboxPublisher) Publish(ctx context.Context, event *model.GraphEvent) error {
    event.ID = uuid.New().String()
    event.Status = model.EventStatusPending
    event.CreatedAt = time.Now()
    return p.db.WithContext(ctx).Create(event).Error
}
