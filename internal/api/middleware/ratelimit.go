package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/qs3c/exam_prep_server/internal/pkg/ratelimit"
	"github.com/qs3c/exam_prep_server/internal/pkg/response"
)

// RateLimit 按用户限流，未认证请求按客户端 IP
func RateLimit(limiter *ratelimit.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "ip:" + c.ClientIP()
		if userID, ok := GetUserID(c); ok {
			key = "user:" + userID
		}

		if !limiter.Allow(key) {
			response.RateLimitError(c, "")
			c.Abort()
			return
		}
		c.Next()
	}
}
