package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/exam_prep_server/internal/api/middleware"
	"github.com/qs3c/exam_prep_server/internal/model/dto"
	"github.com/qs3c/exam_prep_server/internal/pkg/billing"
	"github.com/qs3c/exam_prep_server/internal/pkg/response"
	"github.com/qs3c/exam_prep_server/internal/pkg/sl"
	"github.com/qs3c/exam_prep_server/internal/service"
)

const maxWebhookBytes = int64(65536)

type BillingHandler struct {
	subscriptionService *service.SubscriptionService
	logger              *slog.Logger
}

func NewBillingHandler(subscriptionService *service.SubscriptionService, logger *slog.Logger) *BillingHandler {
	return &BillingHandler{
		subscriptionService: subscriptionService,
		logger:              logger.With("component", "billing_handler"),
	}
}

// Checkout 发起订阅结账
// POST /api/v1/billing/checkout
func (h *BillingHandler) Checkout(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	url, err := h.subscriptionService.StartCheckout(c.Request.Context(), userID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	response.Success(c, dto.RedirectResponse{URL: url})
}

// Portal 打开账单门户
// POST /api/v1/billing/portal
func (h *BillingHandler) Portal(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	url, err := h.subscriptionService.OpenBillingPortal(c.Request.Context(), userID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	response.Success(c, dto.RedirectResponse{URL: url})
}

// Webhook 计费服务回调。
// 返回真实 HTTP 状态码：验签失败 400，处理失败 500（计费服务会重投），其余 200。
// POST /api/v1/webhooks/stripe
func (h *BillingHandler) Webhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBytes))
	if err != nil {
		h.logger.Warn("webhook read failed", sl.Err(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	err = h.subscriptionService.ProcessBillingEvent(c.Request.Context(), body, c.GetHeader("Stripe-Signature"))
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"received": true})
	case errors.Is(err, billing.ErrInvalidSignature):
		h.logger.Warn("webhook signature verification failed", sl.Err(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "signature verification failed"})
	case errors.Is(err, billing.ErrInvalidPayload):
		h.logger.Warn("webhook payload rejected", sl.Err(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
	default:
		h.logger.Error("webhook processing failed", sl.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "processing failed"})
	}
}
