package middleware

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"time"

	"cafe_backend/pkg/utils"

	"github.com/gin-gonic/gin"
)

// Limiter counts hits per key within a window.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, time.Duration, error)
	Limit() int
}

// RateLimit throttles by client IP. When the counter store is unreachable the request
// is let through and the failure logged.
func RateLimit(limiter Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, retryAfter, err := limiter.Allow(c.Request.Context(), c.ClientIP())
		if err != nil {
			utils.LogError(err, "RateLimit: counter unavailable, allowing request")
			c.Next()
			return
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(limiter.Limit()))
		if !allowed {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
			utils.RespondWithError(c, utils.NewAPIError(http.StatusTooManyRequests, utils.ErrCodeTooManyRequests,
				"Too many requests. Please try again later.", "retry after "+retryAfter.Round(time.Second).String()))
			return
		}
		c.Next()
	}
}
