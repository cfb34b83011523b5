package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/qs3c/exam_prep_server/config"
	"github.com/qs3c/exam_prep_server/internal/model"
	"github.com/qs3c/exam_prep_server/internal/model/dto"
	"github.com/qs3c/exam_prep_server/internal/pkg/metrics"
	"github.com/qs3c/exam_prep_server/internal/pkg/oss"
	"github.com/qs3c/exam_prep_server/internal/pkg/sl"
	"github.com/qs3c/exam_prep_server/internal/repository"
)

const (
	defaultUploadMaxSize = 5 << 20
	defaultUploadExpiry  = 720 * time.Hour
	expiredBatchSize     = 100
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// UploadService 学习资料上传：校验、抽取文本、存储、计入免费额度
type UploadService struct {
	uploadRepo  *repository.UploadRepository
	entitlement *EntitlementService
	store       oss.Store
	metrics     *metrics.Metrics
	cfg         *config.Config
	logger      *slog.Logger
	now         func() time.Time
}

func NewUploadService(
	uploadRepo *repository.UploadRepository,
	entitlement *EntitlementService,
	store oss.Store,
	m *metrics.Metrics,
	cfg *config.Config,
	logger *slog.Logger,
) *UploadService {
	return &UploadService{
		uploadRepo:  uploadRepo,
		entitlement: entitlement,
		store:       store,
		metrics:     m,
		cfg:         cfg,
		logger:      logger.With("component", "upload"),
		now:         time.Now,
	}
}

func (s *UploadService) SetClock(now func() time.Time) {
	s.now = now
}

func (s *UploadService) maxSize() int64 {
	if s.cfg.Upload.MaxSize > 0 {
		return s.cfg.Upload.MaxSize
	}
	return defaultUploadMaxSize
}

func (s *UploadService) expiry() time.Duration {
	if s.cfg.Upload.ExpireHours > 0 {
		return time.Duration(s.cfg.Upload.ExpireHours) * time.Hour
	}
	return defaultUploadExpiry
}

func (s *UploadService) allowed(ext string) bool {
	if len(s.cfg.Upload.AllowedExtensions) == 0 {
		return ext == ".txt" || ext == ".md" || ext == ".csv"
	}
	return slices.Contains(s.cfg.Upload.AllowedExtensions, ext)
}

// ExtractText 只接受 UTF-8 文本，去掉 BOM 后不能为空
func ExtractText(data []byte) (string, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: file is not valid UTF-8 text", ErrUploadFormat)
	}
	text := strings.TrimSpace(strings.ReplaceAll(string(data), "\r\n", "\n"))
	if text == "" {
		return "", fmt.Errorf("%w: file contains no text", ErrUploadFormat)
	}
	return text, nil
}

// CreateUpload 先占用额度，存储或落库失败时退还
func (s *UploadService) CreateUpload(ctx context.Context, userID, fileName, contentType string, data []byte) (*dto.UploadResponse, error) {
	const op = "upload.CreateUpload"

	if userID == "" {
		return nil, ErrUnauthorized
	}

	ext := strings.ToLower(filepath.Ext(fileName))
	if !s.allowed(ext) {
		return nil, fmt.Errorf("%w: %q", ErrUploadFormat, ext)
	}
	if int64(len(data)) > s.maxSize() {
		return nil, fmt.Errorf("%w: max %d bytes", ErrUploadTooLarge, s.maxSize())
	}
	text, err := ExtractText(data)
	if err != nil {
		return nil, err
	}

	counted, err := s.entitlement.ReserveUpload(ctx, userID)
	if err != nil {
		var qe *QuotaError
		if errors.As(err, &qe) {
			s.metrics.QuotaDenied.WithLabelValues(qe.Resource).Inc()
		}
		return nil, err
	}
	release := func() {
		if !counted {
			return
		}
		if err := s.entitlement.ReleaseUpload(ctx, userID); err != nil {
			s.logger.Error("failed to release upload quota", "user_id", userID, sl.Err(err))
		}
	}

	id := uuid.NewString()
	objectKey := fmt.Sprintf("uploads/%s/%s%s", userID, id, ext)
	if contentType == "" {
		contentType = "text/plain; charset=utf-8"
	}

	if err := s.store.Put(ctx, objectKey, data, contentType); err != nil {
		release()
		return nil, fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
	}

	now := s.now()
	upload := &model.Upload{
		ID:            id,
		UserID:        userID,
		FileName:      filepath.Base(fileName),
		ObjectKey:     objectKey,
		Size:          int64(len(data)),
		ContentType:   contentType,
		ExtractedText: text,
		ExpiresAt:     now.Add(s.expiry()),
		CreatedAt:     now,
	}
	if err := s.uploadRepo.Create(ctx, upload); err != nil {
		if delErr := s.store.Delete(ctx, objectKey); delErr != nil {
			s.logger.Warn("failed to remove orphaned object", "object_key", objectKey, sl.Err(delErr))
		}
		release()
		return nil, storeErr(op, err)
	}

	s.metrics.UploadsCreated.Inc()
	s.logger.Info("upload created", "user_id", userID, "upload_id", id, "size", upload.Size)

	resp := toUploadResponse(upload)
	if perm, err := s.entitlement.CanUploadFile(ctx, userID); err == nil {
		resp.UploadsUsed = perm.UploadsUsed
		resp.UploadsLimit = perm.UploadsLimit
	}
	return &resp, nil
}

// GetUpload 已过期的上传视为不存在
func (s *UploadService) GetUpload(ctx context.Context, userID, uploadID string) (*dto.UploadResponse, error) {
	upload, err := s.uploadRepo.GetByIDAndUser(ctx, uploadID, userID)
	if err != nil {
		return nil, storeErr("upload.GetUpload", err)
	}
	if !upload.ExpiresAt.After(s.now()) {
		return nil, ErrNotFound
	}
	resp := toUploadResponse(upload)
	return &resp, nil
}

func (s *UploadService) ListUploads(ctx context.Context, userID string) (*dto.UploadListResponse, error) {
	uploads, err := s.uploadRepo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, storeErr("upload.ListUploads", err)
	}

	now := s.now()
	items := make([]dto.UploadResponse, 0, len(uploads))
	for i := range uploads {
		if !uploads[i].ExpiresAt.After(now) {
			continue
		}
		items = append(items, toUploadResponse(&uploads[i]))
	}
	return &dto.UploadListResponse{Uploads: items}, nil
}

// DeleteExpired 删除过期上传的对象和记录，不退还额度。
// dryRun 时只统计第一批。
func (s *UploadService) DeleteExpired(ctx context.Context, now time.Time, dryRun bool) (int, error) {
	const op = "upload.DeleteExpired"

	deleted := 0
	for {
		batch, err := s.uploadRepo.ListExpired(ctx, now, expiredBatchSize)
		if err != nil {
			return deleted, storeErr(op, err)
		}

		progress := 0
		for i := range batch {
			u := &batch[i]
			if dryRun {
				s.logger.Info("would delete expired upload", "upload_id", u.ID, "user_id", u.UserID, "expires_at", u.ExpiresAt)
				progress++
				continue
			}
			if err := s.store.Delete(ctx, u.ObjectKey); err != nil {
				s.logger.Warn("failed to delete object", "upload_id", u.ID, "object_key", u.ObjectKey, sl.Err(err))
				continue
			}
			if err := s.uploadRepo.Delete(ctx, u.ID); err != nil {
				return deleted, storeErr(op, err)
			}
			s.metrics.UploadsExpired.Inc()
			progress++
		}
		deleted += progress

		if dryRun || len(batch) < expiredBatchSize || progress == 0 {
			return deleted, nil
		}
		if err := ctx.Err(); err != nil {
			return deleted, err
		}
	}
}

func toUploadResponse(u *model.Upload) dto.UploadResponse {
	return dto.UploadResponse{
		UploadID:    u.ID,
		FileName:    u.FileName,
		Size:        u.Size,
		ContentType: u.ContentType,
		TextLength:  utf8.RuneCountInString(u.ExtractedText),
		ExpiresAt:   u.ExpiresAt.UTC().Format(time.RFC3339),
		CreatedAt:   u.CreatedAt.UTC().Format(time.RFC3339),
	}
}
