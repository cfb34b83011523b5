package middleware

import (
	"context"
	"log/slog"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/exam_prep_server/internal/pkg/auth"
	"github.com/qs3c/exam_prep_server/internal/pkg/response"
	"github.com/qs3c/exam_prep_server/internal/pkg/sl"
)

const (
	UserIDKey   = "userID"
	IdentityKey = "identity"
)

// UserEnsurer 认证通过后确保本地用户存在
type UserEnsurer interface {
	EnsureUser(ctx context.Context, identity *auth.Identity) error
}

// Auth Bearer Token 认证中间件
func Auth(verifier auth.Verifier, ensurer UserEnsurer, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.AuthError(c, "missing authorization header")
			c.Abort()
			return
		}

		token, ok := bearerToken(authHeader)
		if !ok {
			response.AuthError(c, "invalid authorization header")
			c.Abort()
			return
		}

		identity, err := verifier.Verify(token)
		if err != nil {
			logger.Debug("token rejected", "path", c.Request.URL.Path, sl.Err(err))
			response.AuthError(c, "invalid or expired token")
			c.Abort()
			return
		}

		if ensurer != nil {
			if err := ensurer.EnsureUser(c.Request.Context(), identity); err != nil {
				logger.Error("failed to ensure user", "user_id", identity.UserID, sl.Err(err))
				response.ServerError(c, "")
				c.Abort()
				return
			}
		}

		c.Set(UserIDKey, identity.UserID)
		c.Set(IdentityKey, identity)
		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// GetUserID 从上下文获取用户 ID
func GetUserID(c *gin.Context) (string, bool) {
	userID, exists := c.Get(UserIDKey)
	if !exists {
		return "", false
	}
	id, ok := userID.(string)
	return id, ok && id != ""
}
