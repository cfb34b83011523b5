package handler

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/exam_prep_server/internal/api/middleware"
	"github.com/qs3c/exam_prep_server/internal/pkg/response"
	"github.com/qs3c/exam_prep_server/internal/service"
)

type StatsHandler struct {
	performanceService *service.PerformanceService
	logger             *slog.Logger
}

func NewStatsHandler(performanceService *service.PerformanceService, logger *slog.Logger) *StatsHandler {
	return &StatsHandler{
		performanceService: performanceService,
		logger:             logger.With("component", "stats_handler"),
	}
}

// Summary 学习统计
// GET /api/v1/stats
func (h *StatsHandler) Summary(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	stats, err := h.performanceService.GetUserStats(c.Request.Context(), userID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	response.Success(c, stats)
}

// Categories 分类表现
// GET /api/v1/stats/categories
func (h *StatsHandler) Categories(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	result, err := h.performanceService.GetCategoryPerformance(c.Request.Context(), userID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	response.Success(c, result)
}
