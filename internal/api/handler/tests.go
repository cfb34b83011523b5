package handler

import (
	"log/slog"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/exam_prep_server/internal/api/middleware"
	"github.com/qs3c/exam_prep_server/internal/model/dto"
	"github.com/qs3c/exam_prep_server/internal/pkg/response"
	"github.com/qs3c/exam_prep_server/internal/service"
)

type TestHandler struct {
	testService *service.TestService
	logger      *slog.Logger
}

func NewTestHandler(testService *service.TestService, logger *slog.Logger) *TestHandler {
	return &TestHandler{
		testService: testService,
		logger:      logger.With("component", "test_handler"),
	}
}

func parseTestID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.ParamError(c, "invalid test id")
		return 0, false
	}
	return id, true
}

// Create 生成题目并创建测试
// POST /api/v1/tests
func (h *TestHandler) Create(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	var req dto.StartTestRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.ParamError(c, err.Error())
			return
		}
	}

	resp, err := h.testService.StartTest(c.Request.Context(), userID, &req)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	response.SuccessWithMessage(c, "test created", resp)
}

// List 测试列表
// GET /api/v1/tests
func (h *TestHandler) List(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	resp, err := h.testService.ListTests(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	response.SuccessPage(c, resp.Total, resp.Page, resp.PageSize, resp.Tests)
}

// Get 测试详情
// GET /api/v1/tests/:id
func (h *TestHandler) Get(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}
	testID, ok := parseTestID(c)
	if !ok {
		return
	}

	resp, err := h.testService.GetTest(c.Request.Context(), userID, testID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	response.Success(c, resp)
}

// Answer 提交答案
// POST /api/v1/tests/:id/answers
func (h *TestHandler) Answer(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}
	testID, ok := parseTestID(c)
	if !ok {
		return
	}

	var req dto.RecordAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	resp, err := h.testService.RecordAnswer(c.Request.Context(), userID, testID, req.QuestionID, req.Choice)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	response.Success(c, resp)
}

// Complete 完成测试
// POST /api/v1/tests/:id/complete
func (h *TestHandler) Complete(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}
	testID, ok := parseTestID(c)
	if !ok {
		return
	}

	var req dto.CompleteTestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	resp, err := h.testService.CompleteTest(c.Request.Context(), userID, testID, *req.Score)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	finalized(c, resp)
}

// Abandon 放弃测试，按已作答题目计分
// POST /api/v1/tests/:id/abandon
func (h *TestHandler) Abandon(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}
	testID, ok := parseTestID(c)
	if !ok {
		return
	}

	resp, err := h.testService.AbandonTest(c.Request.Context(), userID, testID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	finalized(c, resp)
}

func finalized(c *gin.Context, resp *dto.FinalizeResponse) {
	if resp.AlreadyCompleted {
		response.SuccessWithMessage(c, "test already completed", resp)
		return
	}
	response.Success(c, resp)
}
