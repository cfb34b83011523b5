package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/qs3c/exam_prep_server/internal/model"
)

type UploadRepository struct {
	db *gorm.DB
}

func NewUploadRepository(db *gorm.DB) *UploadRepository {
	return &UploadRepository{db: db}
}

func (r *UploadRepository) Create(ctx context.Context, upload *model.Upload) error {
	return r.db.WithContext(ctx).Create(upload).Error
}

func (r *UploadRepository) GetByIDAndUser(ctx context.Context, id, userID string) (*model.Upload, error) {
	var upload model.Upload
	err := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&upload).Error
	if err != nil {
		return nil, err
	}
	return &upload, nil
}

func (r *UploadRepository) ListByUserID(ctx context.Context, userID string) ([]model.Upload, error) {
	var uploads []model.Upload
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC").Find(&uploads).Error
	return uploads, err
}

// ListExpired 返回在 before 之前过期的上传
func (r *UploadRepository) ListExpired(ctx context.Context, before time.Time, limit int) ([]model.Upload, error) {
	var uploads []model.Upload
	err := r.db.WithContext(ctx).Where("expires_at < ?", before).Order("expires_at").Limit(limit).Find(&uploads).Error
	return uploads, err
}

func (r *UploadRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Upload{}).Error
}

// GetQuota 读取上传配额，不存在时返回 gorm.ErrRecordNotFound
func (r *UploadRepository) GetQuota(ctx context.Context, userID string) (*model.UploadQuota, error) {
	var quota model.UploadQuota
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&quota).Error
	if err != nil {
		return nil, err
	}
	return &quota, nil
}

// EnsureQuota 惰性创建配额记录
func (r *UploadRepository) EnsureQuota(ctx context.Context, userID string, now time.Time) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(&model.UploadQuota{UserID: userID, LastResetAt: now}).Error
}

// IncrementIfBelow 仅在 uploads_used < limit 时加一，返回是否成功占用
func (r *UploadRepository) IncrementIfBelow(ctx context.Context, userID string, limit int) (bool, error) {
	result := r.db.WithContext(ctx).Model(&model.UploadQuota{}).
		Where("user_id = ? AND uploads_used < ?", userID, limit).
		Update("uploads_used", gorm.Expr("uploads_used + 1"))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// Decrement 退还一次上传配额，不会小于 0
func (r *UploadRepository) Decrement(ctx context.Context, userID string) error {
	return r.db.WithContext(ctx).Model(&model.UploadQuota{}).
		Where("user_id = ?", userID).
		Update("uploads_used", gorm.Expr("CASE WHEN uploads_used > 0 THEN uploads_used - 1 ELSE 0 END")).Error
}
