package handler

import (
    "github.com/d60-Lab/subscription-graph/internal/cache"
    "github.com/d60-Lab/subscription-graph/internal/service"
)

type Handler struct {
    subService service.SubscriptionService
    subCache   *cache.SubscriberCache
}

func New(subService service.SubscriptionService, subCache *cache.SubscriberCache) *Handler {
    return &Handler{subService: subService, subCache: subCache}
}
