package handler

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/exam_prep_server/config"
	"github.com/qs3c/exam_prep_server/internal/api/middleware"
	"github.com/qs3c/exam_prep_server/internal/pkg/response"
	"github.com/qs3c/exam_prep_server/internal/service"
)

const defaultMaxUploadSize = 5 << 20

type UploadHandler struct {
	uploadService *service.UploadService
	cfg           *config.Config
	logger        *slog.Logger
}

func NewUploadHandler(uploadService *service.UploadService, cfg *config.Config, logger *slog.Logger) *UploadHandler {
	return &UploadHandler{
		uploadService: uploadService,
		cfg:           cfg,
		logger:        logger.With("component", "upload_handler"),
	}
}

func (h *UploadHandler) maxSize() int64 {
	if h.cfg.Upload.MaxSize > 0 {
		return h.cfg.Upload.MaxSize
	}
	return defaultMaxUploadSize
}

// Create 上传学习资料
// POST /api/v1/uploads
func (h *UploadHandler) Create(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	maxSize := h.maxSize()
	// 预留 multipart 头部的空间
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize+64<<10)

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		response.ParamError(c, "please upload a file in the \"file\" field")
		return
	}
	defer file.Close()

	if header.Size > maxSize {
		response.ParamError(c, fmt.Sprintf("file too large, max %d bytes", maxSize))
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, maxSize+1))
	if err != nil {
		response.ParamError(c, "failed to read uploaded file")
		return
	}

	resp, err := h.uploadService.CreateUpload(c.Request.Context(), userID, header.Filename, header.Header.Get("Content-Type"), data)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	response.SuccessWithMessage(c, "upload created", resp)
}

// List 未过期的上传
// GET /api/v1/uploads
func (h *UploadHandler) List(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	resp, err := h.uploadService.ListUploads(c.Request.Context(), userID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	response.Success(c, resp)
}

// Get 上传详情
// GET /api/v1/uploads/:id
func (h *UploadHandler) Get(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	resp, err := h.uploadService.GetUpload(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	response.Success(c, resp)
}
