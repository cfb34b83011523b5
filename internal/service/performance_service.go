package service

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/qs3c/exam_prep_server/config"
	"github.com/qs3c/exam_prep_server/internal/model"
	"github.com/qs3c/exam_prep_server/internal/model/dto"
	"github.com/qs3c/exam_prep_server/internal/pkg/cache"
	"github.com/qs3c/exam_prep_server/internal/pkg/sl"
	"github.com/qs3c/exam_prep_server/internal/repository"
)

const (
	defaultStatsTTL = 5 * time.Minute

	// 单次测试耗时在 (1 分钟, 6 小时) 之外时，按每题 72 秒估算
	minPlausibleDuration = time.Minute
	maxPlausibleDuration = 6 * time.Hour
	perQuestionEstimate  = 72 * time.Second
)

func StatsCacheKey(userID string) string {
	return "stats:" + userID
}

func PerformanceCacheKey(userID string) string {
	return "perf:" + userID
}

// PerformanceService 分类表现与学习统计
type PerformanceService struct {
	perfRepo *repository.PerformanceRepository
	testRepo *repository.TestRepository
	cache    cache.Cache
	ttl      time.Duration
	loc      *time.Location
	logger   *slog.Logger
	now      func() time.Time
}

func NewPerformanceService(
	perfRepo *repository.PerformanceRepository,
	testRepo *repository.TestRepository,
	c cache.Cache,
	cfg *config.Config,
	logger *slog.Logger,
) *PerformanceService {
	ttl := cfg.Stats.CacheTTL
	if ttl <= 0 {
		ttl = defaultStatsTTL
	}
	return &PerformanceService{
		perfRepo: perfRepo,
		testRepo: testRepo,
		cache:    c,
		ttl:      ttl,
		loc:      LoadLocation(cfg.Stats.Timezone),
		logger:   logger.With("component", "performance"),
		now:      time.Now,
	}
}

func (s *PerformanceService) SetClock(now func() time.Time) {
	s.now = now
}

func (s *PerformanceService) cached(ctx context.Context, key string, dest any) bool {
	hit, err := s.cache.Get(ctx, key, dest)
	if err != nil {
		s.logger.Warn("cache read failed", "key", key, sl.Err(err))
		return false
	}
	return hit
}

func (s *PerformanceService) store(ctx context.Context, key string, value any, ttl time.Duration) {
	if err := s.cache.Set(ctx, key, value, ttl); err != nil {
		s.logger.Warn("cache write failed", "key", key, sl.Err(err))
	}
}

// GetCategoryPerformance 按分类汇总所有历史记录，没有记录的分类不返回
func (s *PerformanceService) GetCategoryPerformance(ctx context.Context, userID string) ([]dto.CategoryPerformance, error) {
	if userID == "" {
		return nil, ErrUnauthorized
	}

	key := PerformanceCacheKey(userID)
	var result []dto.CategoryPerformance
	if s.cached(ctx, key, &result) {
		return result, nil
	}

	totals, err := s.perfRepo.SumByCategory(ctx, userID)
	if err != nil {
		return nil, storeErr("performance.GetCategoryPerformance", err)
	}

	result = BuildCategoryPerformance(totals)
	s.store(ctx, key, result, s.ttl)
	return result, nil
}

// BuildCategoryPerformance 计算百分比（保留两位小数），按固定分类顺序输出
func BuildCategoryPerformance(totals []repository.CategoryTotal) []dto.CategoryPerformance {
	result := make([]dto.CategoryPerformance, 0, len(totals))
	for _, t := range totals {
		if t.Total <= 0 {
			continue
		}
		result = append(result, dto.CategoryPerformance{
			Category:   t.Category,
			Correct:    t.Correct,
			Total:      t.Total,
			Percentage: round(100*float64(t.Correct)/float64(t.Total), 2),
		})
	}
	sort.SliceStable(result, func(i, j int) bool {
		return categoryOrder(result[i].Category) < categoryOrder(result[j].Category)
	})
	return result
}

// GetUserStats 基于已完成测试的汇总统计
func (s *PerformanceService) GetUserStats(ctx context.Context, userID string) (*dto.UserStats, error) {
	if userID == "" {
		return nil, ErrUnauthorized
	}

	key := StatsCacheKey(userID)
	var stats dto.UserStats
	if s.cached(ctx, key, &stats) {
		return &stats, nil
	}

	tests, err := s.testRepo.ListCompletedByUserID(ctx, userID)
	if err != nil {
		return nil, storeErr("performance.GetUserStats", err)
	}

	now := s.now()
	stats = ComputeStats(tests, now, s.loc)
	s.store(ctx, key, stats, TTLUntilMidnight(now, s.loc, s.ttl))
	return &stats, nil
}

// ComputeStats 纯函数：测试数、平均分、连续学习天数、学习时长
func ComputeStats(tests []model.Test, now time.Time, loc *time.Location) dto.UserStats {
	var (
		stats    dto.UserStats
		scoreSum int
		scored   int
		seconds  float64
	)
	days := make(map[int64]struct{})

	for i := range tests {
		t := &tests[i]
		if t.CompletedAt == nil {
			continue
		}
		stats.TotalTests++
		if t.Score != nil {
			scoreSum += *t.Score
			scored++
		}
		days[dayNumber(t.CompletedAt.In(loc))] = struct{}{}
		seconds += studyDuration(t).Seconds()
	}

	if scored > 0 {
		stats.AverageScore = round(float64(scoreSum)/float64(scored), 2)
	}
	stats.StudyStreakDays = streak(days, dayNumber(now.In(loc)))
	stats.TotalStudyHours = round(seconds/3600, 1)
	return stats
}

// TTLUntilMidnight 连续天数随日期变化，缓存不跨过本地零点
func TTLUntilMidnight(now time.Time, loc *time.Location, ttl time.Duration) time.Duration {
	local := now.In(loc)
	y, m, d := local.Date()
	untilMidnight := time.Date(y, m, d+1, 0, 0, 0, 0, loc).Sub(local)
	if untilMidnight < ttl {
		return untilMidnight
	}
	return ttl
}

func studyDuration(t *model.Test) time.Duration {
	d := t.CompletedAt.Sub(t.CreatedAt)
	if d > minPlausibleDuration && d < maxPlausibleDuration {
		return d
	}
	return time.Duration(len(t.Questions)) * perQuestionEstimate
}

// dayNumber 本地日历日期转为连续的天序号
func dayNumber(t time.Time) int64 {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / 86400
}

// streak 最近一次完成必须是今天或昨天，否则为 0
func streak(days map[int64]struct{}, today int64) int {
	if len(days) == 0 {
		return 0
	}
	latest := int64(math.MinInt64)
	for d := range days {
		if d > latest {
			latest = d
		}
	}
	if latest < today-1 {
		return 0
	}

	n := 0
	for d := latest; ; d-- {
		if _, ok := days[d]; !ok {
			break
		}
		n++
	}
	return n
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
