package handler

import (
    "errors"
    "strconv"

    "github.com/gin-gonic/gin"

    "github.com/d60-Lab/subscription-graph/internal/cache"
    "github.com/d60-Lab/subscription-graph/internal/service"
    "github.com/d60-Lab/subscription-graph/pkg/response"
)

type subscribeRequest struct {
    FolloweeID   string `json:"followee_id" binding:"required"`
    SubscriberID string `json:"subscriber_id" binding:"required"`
}

// GetSubscription 查询关注记录
// @Summary 查询某 followee 的关注记录
// @Tags 关注图
// @Produce json
// @Param followee_id path string true "被关注者ID"
// @Success 200 {object} response.Response{data=model.Subscription}
// @Failure 404 {object} response.Response
// @Failure 500 {object} response.Response
// @Router /api/v1/subscriptions/{followee_id} [get]
func (h *Handler) GetSubscription(c *gin.Context) {
    followeeID := c.Param("followee_id")
    sub, err := h.subService.GetSubscription(c.Request.Context(), followeeID)
    if err != nil {
        if errors.Is(err, service.ErrSubscriptionNotFound) {
            response.NotFound(c, "no such subscription")
            return
        }
        response.InternalError(c, err)
        return
    }
    response.Success(c, sub)
}

// ListSubscribers 分页查询粉丝 id（走缓存索引）
// @Summary 查询粉丝列表
// @Tags 关注图
// @Param followee_id path string true "被关注者ID"
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页数量" default(20)
// @Success 200 {object} response.Response{data=map[string]interface{}}
// @Failure 404 {object} response.Response
// @Router /api/v1/subscriptions/{followee_id}/subscribers [get]
func (h *Handler) ListSubscribers(c *gin.Context) {
    followeeID := c.Param("followee_id")
    page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
    pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
    ids, err := h.subCache.FetchPage(c.Request.Context(), followeeID, page, pageSize)
    if err != nil {
        if errors.Is(err, cache.ErrUnknownFollowee) {
            response.NotFound(c, "no such subscription")
            return
        }
        response.InternalError(c, err)
        return
    }
    response.Success(c, gin.H{"page": page, "page_size": pageSize, "list": ids})
}

// Subscribe 建立关注（惰性建记录，幂等）
// @Summary 关注用户
// @Tags 关注图
// @Accept json
// @Produce json
// @Param request body subscribeRequest true "关注信息"
// @Success 200 {object} response.Response{data=model.Subscription}
// @Failure 400 {object} response.Response
// @Failure 500 {object} response.Response
// @Router /api/v1/subscriptions/subscribe [post]
func (h *Handler) Subscribe(c *gin.Context) {
    var req subscribeRequest
    if err := c.ShouldBindJSON(&req); err != nil {
        response.BadRequest(c, err.Error())
        return
    }
    sub, err := h.subService.AddSubscriber(c.Request.Context(), req.FolloweeID, req.SubscriberID)
    if err != nil {
        if errors.Is(err, service.ErrSelfSubscription) {
            response.BadRequest(c, err.Error())
            return
        }
        response.InternalError(c, err)
        return
    }
    h.subCache.Invalidate(c.Request.Context(), req.FolloweeID)
    response.Success(c, sub)
}

// Unsubscribe 取消关注（幂等；记录不存在返回 404）
// @Summary 取消关注
// @Tags 关注图
// @Accept json
// @Produce json
// @Param request body subscribeRequest true "取消关注信息"
// @Success 200 {object} response.Response{data=model.Subscription}
// @Failure 404 {object} response.Response
// @Failure 500 {object} response.Response
// @Router /api/v1/subscriptions/unsubscribe [post]
func (h *Handler) Unsubscribe(c *gin.Context) {
    var req subscribeRequest
    if err := c.ShouldBindJSON(&req); err != nil {
        response.BadRequest(c, err.Error())
        return
    }
    sub, err := h.subService.RemoveSubscriber(c.Request.Context(), req.FolloweeID, req.SubscriberID)
    if err != nil {
        if errors.Is(err, service.ErrSubscriptionNotFound) {
            response.NotFound(c, "no such subscription")
            return
        }
        response.InternalError(c, err)
        return
    }
    h.subCache.Invalidate(c.Request.Context(), req.FolloweeID)
    response.Success(c, sub)
}

// DeleteSubscription 级联删除：销毁记录并清洗其它记录中的引用
// @Summary 删除用户的关注记录（账号注销触发）
// @Tags 关注图
// @Param followee_id path string true "被删除者ID"
// @Success 200 {object} response.Response
// @Failure 500 {object} response.Response
// @Router /api/v1/subscriptions/{followee_id} [delete]
func (h *Handler) DeleteSubscription(c *gin.Context) {
    followeeID := c.Param("followee_id")
    scrubbed, err := h.subService.DeleteSubscription(c.Request.Context(), followeeID)
    if err != nil {
        response.InternalError(c, err)
        return
    }
    // 被清洗的记录缓存页同样失效，否则 TTL 内仍会吐出已删除的 id
    h.subCache.Invalidate(c.Request.Context(), followeeID)
    for _, id := range scrubbed {
        h.subCache.Invalidate(c.Request.Context(), id)
    }
    response.Success(c, nil)
}
