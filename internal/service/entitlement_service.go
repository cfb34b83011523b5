package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/exam_prep_server/config"
	"github.com/qs3c/exam_prep_server/internal/model"
	"github.com/qs3c/exam_prep_server/internal/model/dto"
	"github.com/qs3c/exam_prep_server/internal/repository"
)

const (
	DefaultFreeTestLimit   = 2
	DefaultFreeUploadLimit = 5
)

// EntitlementService 根据订阅状态和免费额度判断用户能否创建测试或上传文件。
// Can* 方法只读，不修改任何计数。
type EntitlementService struct {
	userRepo   *repository.UserRepository
	testRepo   *repository.TestRepository
	uploadRepo *repository.UploadRepository
	cfg        *config.Config
	now        func() time.Time
}

func NewEntitlementService(
	userRepo *repository.UserRepository,
	testRepo *repository.TestRepository,
	uploadRepo *repository.UploadRepository,
	cfg *config.Config,
) *EntitlementService {
	return &EntitlementService{
		userRepo:   userRepo,
		testRepo:   testRepo,
		uploadRepo: uploadRepo,
		cfg:        cfg,
		now:        time.Now,
	}
}

func (s *EntitlementService) freeTestLimit() int {
	if s.cfg.Quota.FreeTestLimit > 0 {
		return s.cfg.Quota.FreeTestLimit
	}
	return DefaultFreeTestLimit
}

func (s *EntitlementService) freeUploadLimit() int {
	if s.cfg.Quota.FreeUploadLimit > 0 {
		return s.cfg.Quota.FreeUploadLimit
	}
	return DefaultFreeUploadLimit
}

func (s *EntitlementService) getUser(ctx context.Context, op, userID string) (*model.User, error) {
	if userID == "" {
		return nil, ErrUnauthorized
	}
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, storeErr(op, err)
	}
	return user, nil
}

// CanCreateTest 订阅用户不受限；免费用户按已有测试数（不区分状态）判断
func (s *EntitlementService) CanCreateTest(ctx context.Context, userID string) (*dto.TestPermission, error) {
	const op = "entitlement.CanCreateTest"

	user, err := s.getUser(ctx, op, userID)
	if err != nil {
		return nil, err
	}

	used, err := s.testRepo.CountByUserID(ctx, userID)
	if err != nil {
		return nil, storeErr(op, err)
	}

	if user.IsSubscribed() {
		return &dto.TestPermission{Allowed: true, TestsUsed: int(used), TestsLimit: dto.Unlimited}, nil
	}

	limit := s.freeTestLimit()
	perm := &dto.TestPermission{
		Allowed:    int(used) < limit,
		TestsUsed:  int(used),
		TestsLimit: dto.Limit(limit),
	}
	if !perm.Allowed {
		perm.Reason = (&QuotaError{Resource: ResourceTests, Used: int(used), Limit: limit}).Error()
	}
	return perm, nil
}

func (s *EntitlementService) uploadsUsed(ctx context.Context, userID string) (int, error) {
	quota, err := s.uploadRepo.GetQuota(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return quota.UploadsUsed, nil
}

// CanUploadFile 与 CanCreateTest 对称，计数来自 UploadQuota
func (s *EntitlementService) CanUploadFile(ctx context.Context, userID string) (*dto.UploadPermission, error) {
	const op = "entitlement.CanUploadFile"

	user, err := s.getUser(ctx, op, userID)
	if err != nil {
		return nil, err
	}

	used, err := s.uploadsUsed(ctx, userID)
	if err != nil {
		return nil, storeErr(op, err)
	}

	if user.IsSubscribed() {
		return &dto.UploadPermission{Allowed: true, UploadsUsed: used, UploadsLimit: dto.Unlimited}, nil
	}

	limit := s.freeUploadLimit()
	perm := &dto.UploadPermission{
		Allowed:      used < limit,
		UploadsUsed:  used,
		UploadsLimit: dto.Limit(limit),
	}
	if !perm.Allowed {
		perm.Reason = (&QuotaError{Resource: ResourceUploads, Used: used, Limit: limit}).Error()
	}
	return perm, nil
}

// GetEntitlement 权益快照
func (s *EntitlementService) GetEntitlement(ctx context.Context, userID string) (*dto.Entitlement, error) {
	tests, err := s.CanCreateTest(ctx, userID)
	if err != nil {
		return nil, err
	}
	uploads, err := s.CanUploadFile(ctx, userID)
	if err != nil {
		return nil, err
	}

	user, err := s.getUser(ctx, "entitlement.GetEntitlement", userID)
	if err != nil {
		return nil, err
	}

	return &dto.Entitlement{
		IsSubscribed:       user.IsSubscribed(),
		SubscriptionStatus: user.SubscriptionStatus,
		TestsUsed:          tests.TestsUsed,
		TestsLimit:         tests.TestsLimit,
		UploadsUsed:        uploads.UploadsUsed,
		UploadsLimit:       uploads.UploadsLimit,
	}, nil
}

// ReserveUpload 为免费用户占用一次上传额度（条件更新，不会超过上限）。
// 订阅用户不计数，返回 counted=false。
func (s *EntitlementService) ReserveUpload(ctx context.Context, userID string) (bool, error) {
	const op = "entitlement.ReserveUpload"

	user, err := s.getUser(ctx, op, userID)
	if err != nil {
		return false, err
	}
	if user.IsSubscribed() {
		return false, nil
	}

	if err := s.uploadRepo.EnsureQuota(ctx, userID, s.now()); err != nil {
		return false, storeErr(op, err)
	}

	limit := s.freeUploadLimit()
	ok, err := s.uploadRepo.IncrementIfBelow(ctx, userID, limit)
	if err != nil {
		return false, storeErr(op, err)
	}
	if !ok {
		used, err := s.uploadsUsed(ctx, userID)
		if err != nil {
			return false, storeErr(op, err)
		}
		return false, &QuotaError{Resource: ResourceUploads, Used: used, Limit: limit}
	}
	return true, nil
}

// ReleaseUpload 上传失败时退还额度
func (s *EntitlementService) ReleaseUpload(ctx context.Context, userID string) error {
	if err := s.uploadRepo.Decrement(ctx, userID); err != nil {
		return fmt.Errorf("entitlement.ReleaseUpload: %w: %w", ErrStoreUnavailable, err)
	}
	return nil
}
