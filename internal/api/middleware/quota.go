package middleware

import (
	"context"
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/exam_prep_server/internal/model/dto"
	"github.com/qs3c/exam_prep_server/internal/pkg/response"
	"github.com/qs3c/exam_prep_server/internal/pkg/sl"
	"github.com/qs3c/exam_prep_server/internal/service"
)

// EntitlementChecker 只读的权益判断
type EntitlementChecker interface {
	CanCreateTest(ctx context.Context, userID string) (*dto.TestPermission, error)
	CanUploadFile(ctx context.Context, userID string) (*dto.UploadPermission, error)
}

// QuotaCheck 在读取请求体和调用生成服务前预检额度。
// 服务层在写入前会再次检查。
func QuotaCheck(checker EntitlementChecker, resource string, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := GetUserID(c)
		if !ok {
			response.AuthError(c, "")
			c.Abort()
			return
		}

		var (
			allowed bool
			reason  string
			data    dto.QuotaErrorData
		)
		switch resource {
		case service.ResourceUploads:
			perm, err := checker.CanUploadFile(c.Request.Context(), userID)
			if err != nil {
				logger.Error("quota check failed", "user_id", userID, "resource", resource, sl.Err(err))
				response.ServerError(c, "")
				c.Abort()
				return
			}
			allowed, reason = perm.Allowed, perm.Reason
			data = dto.QuotaErrorData{Resource: resource, Used: perm.UploadsUsed, Limit: int(perm.UploadsLimit)}
		default:
			perm, err := checker.CanCreateTest(c.Request.Context(), userID)
			if err != nil {
				logger.Error("quota check failed", "user_id", userID, "resource", resource, sl.Err(err))
				response.ServerError(c, "")
				c.Abort()
				return
			}
			allowed, reason = perm.Allowed, perm.Reason
			data = dto.QuotaErrorData{Resource: service.ResourceTests, Used: perm.TestsUsed, Limit: int(perm.TestsLimit)}
		}

		if !allowed {
			response.QuotaError(c, reason, data)
			c.Abort()
			return
		}
		c.Next()
	}
}
