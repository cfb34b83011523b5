package service

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

var (
	ErrUnauthorized       = errors.New("authentication required")
	ErrNotFound           = errors.New("not found")
	ErrQuotaExceeded      = errors.New("free plan limit reached")
	ErrAlreadyCompleted   = errors.New("test already completed")
	ErrGenerationFailed   = errors.New("question generation failed")
	ErrStoreUnavailable   = errors.New("store unavailable")
	ErrInvalidScore       = errors.New("score must be between 0 and 100")
	ErrInvalidChoice      = errors.New("choice is not an option of this question")
	ErrQuestionNotFound   = errors.New("question not found in this test")
	ErrUploadTooLarge     = errors.New("file too large")
	ErrUploadFormat       = errors.New("unsupported file format")
	ErrNoBillingAccount   = errors.New("no billing account for this user")
	ErrConflictingUpdates = errors.New("too many concurrent updates")
)

// 配额资源
const (
	ResourceTests   = "tests"
	ResourceUploads = "uploads"
)

// QuotaError 配额不足，携带用量信息供前端渲染升级提示
type QuotaError struct {
	Resource string
	Used     int
	Limit    int
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("Free plan allows %d %s and you have used %d. Upgrade to a subscription for unlimited %s.",
		e.Limit, e.Resource, e.Used, e.Resource)
}

func (e *QuotaError) Is(target error) bool {
	return target == ErrQuotaExceeded
}

// CompletedError 对已结束的测试执行写操作
type CompletedError struct {
	TestID      int64
	Score       int
	CompletedAt time.Time
}

func (e *CompletedError) Error() string {
	return fmt.Sprintf("test %d already completed with score %d", e.TestID, e.Score)
}

func (e *CompletedError) Is(target error) bool {
	return target == ErrAlreadyCompleted
}

// storeErr 把存储层错误映射到服务层错误
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}
