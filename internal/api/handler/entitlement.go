package handler

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/exam_prep_server/internal/api/middleware"
	"github.com/qs3c/exam_prep_server/internal/pkg/response"
	"github.com/qs3c/exam_prep_server/internal/service"
)

type EntitlementHandler struct {
	entitlementService *service.EntitlementService
	logger             *slog.Logger
}

func NewEntitlementHandler(entitlementService *service.EntitlementService, logger *slog.Logger) *EntitlementHandler {
	return &EntitlementHandler{
		entitlementService: entitlementService,
		logger:             logger.With("component", "entitlement_handler"),
	}
}

// Get 当前用户权益快照
// GET /api/v1/entitlement
func (h *EntitlementHandler) Get(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	ent, err := h.entitlementService.GetEntitlement(c.Request.Context(), userID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	response.Success(c, ent)
}

// Tests 能否创建新测试
// GET /api/v1/entitlement/tests
func (h *EntitlementHandler) Tests(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	perm, err := h.entitlementService.CanCreateTest(c.Request.Context(), userID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	response.Success(c, perm)
}

// Uploads 能否上传文件
// GET /api/v1/entitlement/uploads
func (h *EntitlementHandler) Uploads(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	perm, err := h.entitlementService.CanUploadFile(c.Request.Context(), userID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	response.Success(c, perm)
}
