package model

import "time"

// RecordDateLayout PerformanceRecord.RecordDate 的日期格式
const RecordDateLayout = "2006-01-02"

// PerformanceRecord 某次测试结束时单个分类的答题统计，写入后不再修改
type PerformanceRecord struct {
	ID         int64     `gorm:"primaryKey" json:"id"`
	UserID     string    `gorm:"size:128;index;not null" json:"user_id"`
	TestID     int64     `gorm:"index" json:"test_id"`
	Category   string    `gorm:"size:50;index;not null" json:"category"`
	Correct    int       `gorm:"not null" json:"correct"`
	Total      int       `gorm:"not null" json:"total"`
	RecordDate string    `gorm:"size:10;index;not null" json:"record_date"`
	CreatedAt  time.Time `json:"created_at"`
}

func (PerformanceRecord) TableName() string {
	return "performance_records"
}
