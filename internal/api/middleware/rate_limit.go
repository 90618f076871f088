package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"dm-chat-service/internal/models"
	"dm-chat-service/pkg/logger"
	"dm-chat-service/pkg/response"

	"github.com/gin-gonic/gin"
)

// RateLimiter counts hits in a sliding window
type RateLimiter interface {
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// RateLimitMiddleware is a no-op when no limiter is configured. A failing
// limiter lets the request through.
type RateLimitMiddleware struct {
	limiter RateLimiter
	logger  *logger.Logger
}

func NewRateLimitMiddleware(limiter RateLimiter, log *logger.Logger) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		limiter: limiter,
		logger:  log,
	}
}

// RateLimit limits authenticated callers per endpoint
func (rm *RateLimitMiddleware) RateLimit(requests int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, _ := GetUserID(c)
		rm.check(c, fmt.Sprintf("rate_limit:%s:%s", userID, c.FullPath()), requests, window)
	}
}

// RateLimitIP limits public routes, such as the socket upgrade, per client IP
func (rm *RateLimitMiddleware) RateLimitIP(requests int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		rm.check(c, fmt.Sprintf("rate_limit_ip:%s:%s", c.ClientIP(), c.FullPath()), requests, window)
	}
}

func (rm *RateLimitMiddleware) check(c *gin.Context, key string, requests int, window time.Duration) {
	if rm.limiter == nil {
		c.Next()
		return
	}

	allowed, err := rm.limiter.CheckRateLimit(c.Request.Context(), key, requests, window)
	if err != nil {
		rm.logger.Warn("Rate limit check failed", "key", key, "error", err)
		c.Next()
		return
	}

	if !allowed {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, models.ErrorResponse{
			Code:    response.ErrCodeRateLimited,
			Message: response.Msg(response.ErrCodeRateLimited),
			Details: fmt.Sprintf("Too many requests. Limit: %d per %v", requests, window),
		})
		return
	}

	c.Next()
}
