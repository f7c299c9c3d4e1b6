package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/tradeflow/tradeflow-engine/pkg"
)

// RateLimit rejects requests with 429 once the distributed intake limiter is
// exhausted. Applied to order submission only; reads are never throttled.
func RateLimit(limiter *pkg.DistributedLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow(c.Request.Context()) {
			c.AbortWithStatusJSON(pkg.ErrRateLimitedCode.Status, pkg.ErrorResponse{
				Code:    pkg.ErrRateLimitedCode.Code,
				Message: pkg.ErrRateLimitedCode.Message,
			})
			return
		}
		c.Next()
	}
}
