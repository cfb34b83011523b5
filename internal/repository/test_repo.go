package repository

import (
	"context"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/qs3c/exam_prep_server/internal/model"
)

type TestRepository struct {
	db *gorm.DB
}

func NewTestRepository(db *gorm.DB) *TestRepository {
	return &TestRepository{db: db}
}

func (r *TestRepository) Create(ctx context.Context, test *model.Test) error {
	return r.db.WithContext(ctx).Create(test).Error
}

// GetByIDAndUser 只返回属于该用户的测试
func (r *TestRepository) GetByIDAndUser(ctx context.Context, id int64, userID string) (*model.Test, error) {
	var test model.Test
	err := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&test).Error
	if err != nil {
		return nil, err
	}
	return &test, nil
}

// CountByUserID 统计用户的全部测试（不区分状态）
func (r *TestRepository) CountByUserID(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Test{}).Where("user_id = ?", userID).Count(&count).Error
	return count, err
}

func (r *TestRepository) ListByUserID(ctx context.Context, userID string, page, pageSize int) ([]model.Test, int64, error) {
	var tests []model.Test
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Test{}).Where("user_id = ?", userID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.Order("created_at DESC, id DESC").Offset(offset).Limit(pageSize).Find(&tests).Error
	return tests, total, err
}

// ListCompletedByUserID 返回用户所有已完成的测试
func (r *TestRepository) ListCompletedByUserID(ctx context.Context, userID string) ([]model.Test, error) {
	var tests []model.Test
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND completed_at IS NOT NULL", userID).
		Order("completed_at DESC").
		Find(&tests).Error
	return tests, err
}

// UpdateAnswers 乐观并发写入答案，版本不匹配或测试已完成时影响行数为 0
func (r *TestRepository) UpdateAnswers(ctx context.Context, id int64, version int, answers model.AnswerMap) (int64, error) {
	result := r.db.WithContext(ctx).Model(&model.Test{}).
		Where("id = ? AND version = ? AND completed_at IS NULL", id, version).
		Updates(map[string]interface{}{
			"answers": datatypes.NewJSONType(answers),
			"version": gorm.Expr("version + 1"),
		})
	return result.RowsAffected, result.Error
}

// Finalization 测试结束时一次性写入的数据
type Finalization struct {
	Version     int // 计分时读到的版本
	Score       int
	CompletedAt time.Time
	Abandoned   bool
	Records     []model.PerformanceRecord
}

// FinalizeWithRecords 在事务内写入分数与完成时间并插入分类记录。
// 测试已完成或版本已变化（计分后又写入了答案）时返回 false，不写入任何记录。
func (r *TestRepository) FinalizeWithRecords(ctx context.Context, id int64, userID string, f Finalization) (bool, error) {
	won := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&model.Test{}).
			Where("id = ? AND user_id = ? AND version = ? AND completed_at IS NULL", id, userID, f.Version).
			Updates(map[string]interface{}{
				"score":        f.Score,
				"completed_at": f.CompletedAt,
				"abandoned":    f.Abandoned,
				"version":      gorm.Expr("version + 1"),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}
		won = true

		return NewPerformanceRepository(tx).CreateBatch(ctx, f.Records)
	})
	if err != nil {
		return false, err
	}
	return won, nil
}
