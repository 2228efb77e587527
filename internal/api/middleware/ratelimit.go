package middleware

import (
    "github.com/gin-gonic/gin"
    "golang.org/x/time/rate"

    "github.com/d60-Lab/subscription-graph/pkg/response"
)

// RateLimit 全局令牌桶限流
func RateLimit(rps float64, burst int) gin.HandlerFunc {
    if rps <= 0 {
        rps = 200
    }
    if burst <= 0 {
        burst = int(rps) * 2
    }
    limiter := rate.NewLimiter(rate.Limit(rps), burst)
    return func(c *gin.Context) {
        if !limiter.Allow() {
            response.TooManyRequests(c)
            return
        }
        c.Next()
    }
}
