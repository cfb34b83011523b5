package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/qs3c/exam_prep_server/internal/model"
)

type PerformanceRepository struct {
	db *gorm.DB
}

func NewPerformanceRepository(db *gorm.DB) *PerformanceRepository {
	return &PerformanceRepository{db: db}
}

func (r *PerformanceRepository) CreateBatch(ctx context.Context, records []model.PerformanceRecord) error {
	if len(records) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&records).Error
}

// CategoryTotal 按分类汇总后的答题数
type CategoryTotal struct {
	Category string
	Correct  int
	Total    int
}

// SumByCategory 汇总用户所有日期的分类记录
func (r *PerformanceRepository) SumByCategory(ctx context.Context, userID string) ([]CategoryTotal, error) {
	var totals []CategoryTotal
	err := r.db.WithContext(ctx).Model(&model.PerformanceRecord{}).
		Select("category, SUM(correct) AS correct, SUM(total) AS total").
		Where("user_id = ?", userID).
		Group("category").
		Order("category").
		Scan(&totals).Error
	return totals, err
}

func (r *PerformanceRepository) ListByTestID(ctx context.Context, testID int64) ([]model.PerformanceRecord, error) {
	var records []model.PerformanceRecord
	err := r.db.WithContext(ctx).Where("test_id = ?", testID).Order("category").Find(&records).Error
	return records, err
}
