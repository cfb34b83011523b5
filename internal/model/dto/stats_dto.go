package dto

// CategoryPerformance 单个分类的累计表现
type CategoryPerformance struct {
	Category   string  `json:"category"`
	Correct    int     `json:"correct"`
	Total      int     `json:"total"`
	Percentage float64 `json:"percentage"`
}

// UserStats 用户学习统计，只统计已完成的测试
type UserStats struct {
	TotalTests      int     `json:"total_tests"`
	AverageScore    float64 `json:"average_score"`
	StudyStreakDays int     `json:"study_streak_days"`
	TotalStudyHours float64 `json:"total_study_hours"`
}
