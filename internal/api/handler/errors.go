package handler

import (
	"errors"
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/exam_prep_server/internal/model/dto"
	"github.com/qs3c/exam_prep_server/internal/pkg/billing"
	"github.com/qs3c/exam_prep_server/internal/pkg/response"
	"github.com/qs3c/exam_prep_server/internal/pkg/sl"
	"github.com/qs3c/exam_prep_server/internal/service"
)

// writeError 把服务层错误映射为业务错误码
func writeError(c *gin.Context, logger *slog.Logger, err error) {
	var (
		quotaErr     *service.QuotaError
		completedErr *service.CompletedError
	)

	switch {
	case errors.As(err, &quotaErr):
		response.QuotaError(c, quotaErr.Error(), dto.QuotaErrorData{
			Resource: quotaErr.Resource,
			Used:     quotaErr.Used,
			Limit:    quotaErr.Limit,
		})
	case errors.As(err, &completedErr):
		response.AlreadyCompletedError(c, "", dto.CompletedErrorData{
			TestID:      completedErr.TestID,
			Score:       completedErr.Score,
			CompletedAt: completedErr.CompletedAt,
		})
	case errors.Is(err, service.ErrUnauthorized):
		response.AuthError(c, "")
	case errors.Is(err, service.ErrNotFound):
		response.NotFoundError(c, "")
	case errors.Is(err, service.ErrInvalidScore),
		errors.Is(err, service.ErrInvalidChoice),
		errors.Is(err, service.ErrQuestionNotFound),
		errors.Is(err, service.ErrUploadTooLarge),
		errors.Is(err, service.ErrUploadFormat):
		response.ParamError(c, err.Error())
	case errors.Is(err, service.ErrNoBillingAccount):
		response.PermissionError(c, service.ErrNoBillingAccount.Error())
	case errors.Is(err, service.ErrGenerationFailed):
		response.GenerationError(c, "Could not generate questions right now. Please try again.")
	case errors.Is(err, service.ErrConflictingUpdates):
		response.ServerError(c, "Too many concurrent updates. Please retry.")
	case errors.Is(err, billing.ErrNotConfigured):
		response.ServerError(c, "Billing is not available.")
	default:
		logger.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), sl.Err(err))
		response.ServerError(c, "")
	}
}
