package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/qs3c/exam_prep_server/internal/model"
	"github.com/qs3c/exam_prep_server/internal/model/dto"
	"github.com/qs3c/exam_prep_server/internal/pkg/cache"
	"github.com/qs3c/exam_prep_server/internal/pkg/sl"
	"github.com/qs3c/exam_prep_server/internal/repository"
	"github.com/qs3c/exam_prep_server/internal/testutil"
)

func completedTest(score int, createdAt, completedAt time.Time, questions int) model.Test {
	return model.Test{
		Questions:   datatypes.NewJSONSlice(testutil.SampleQuestions(questions)),
		Score:       &score,
		CreatedAt:   createdAt,
		CompletedAt: &completedAt,
	}
}

func TestComputeStats_Empty(t *testing.T) {
	stats := ComputeStats(nil, fixedNow, time.UTC)
	assert.Equal(t, dto.UserStats{}, stats)
}

func TestComputeStats_StreakAndAverage(t *testing.T) {
	today := fixedNow
	yesterday := fixedNow.AddDate(0, 0, -1)

	stats := ComputeStats([]model.Test{
		completedTest(80, today.Add(-20*time.Minute), today, 10),
		completedTest(60, yesterday.Add(-20*time.Minute), yesterday, 10),
	}, fixedNow, time.UTC)

	assert.Equal(t, 2, stats.TotalTests)
	assert.Equal(t, 70.0, stats.AverageScore)
	assert.Equal(t, 2, stats.StudyStreakDays)
	assert.Equal(t, 0.7, stats.TotalStudyHours)
}

func TestComputeStats_Streak(t *testing.T) {
	day := func(offset int) time.Time { return fixedNow.AddDate(0, 0, offset) }

	tests := []struct {
		name string
		days []int
		want int
	}{
		{"only yesterday", []int{-1}, 1},
		{"two days ago breaks", []int{-2, -3}, 0},
		{"gap stops the count", []int{0, -1, -3, -4}, 2},
		{"same day counted once", []int{0, 0, -1}, 2},
		{"long run from yesterday", []int{-1, -2, -3, -4}, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var list []model.Test
			for _, d := range tt.days {
				list = append(list, completedTest(50, day(d).Add(-10*time.Minute), day(d), 5))
			}
			assert.Equal(t, tt.want, ComputeStats(list, fixedNow, time.UTC).StudyStreakDays)
		})
	}
}

func TestComputeStats_StreakUsesTimezone(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	// 03:00 UTC 在纽约仍是前一天
	now := time.Date(2024, 3, 15, 3, 0, 0, 0, time.UTC)
	completed := time.Date(2024, 3, 13, 23, 30, 0, 0, time.UTC)
	list := []model.Test{completedTest(90, completed.Add(-10*time.Minute), completed, 5)}

	assert.Equal(t, 0, ComputeStats(list, now, time.UTC).StudyStreakDays)
	assert.Equal(t, 1, ComputeStats(list, now, loc).StudyStreakDays)
}

func TestComputeStats_StudyTimeFallback(t *testing.T) {
	created := fixedNow.Add(-10 * time.Second)

	stats := ComputeStats([]model.Test{completedTest(50, created, fixedNow, 100)}, fixedNow, time.UTC)
	assert.Equal(t, 2.0, stats.TotalStudyHours)

	tooLong := fixedNow.Add(-7 * time.Hour)
	stats = ComputeStats([]model.Test{completedTest(50, tooLong, fixedNow, 50)}, fixedNow, time.UTC)
	assert.Equal(t, 1.0, stats.TotalStudyHours)

	plausible := fixedNow.Add(-90 * time.Minute)
	stats = ComputeStats([]model.Test{completedTest(50, plausible, fixedNow, 50)}, fixedNow, time.UTC)
	assert.Equal(t, 1.5, stats.TotalStudyHours)
}

func TestBuildCategoryPerformance(t *testing.T) {
	result := BuildCategoryPerformance([]repository.CategoryTotal{
		{Category: model.CategoryPhysiological, Correct: 10, Total: 15},
		{Category: model.CategoryPsychosocial, Correct: 0, Total: 0},
		{Category: model.CategorySafeCare, Correct: 1, Total: 3},
	})

	require.Len(t, result, 2)
	assert.Equal(t, model.CategorySafeCare, result[0].Category)
	assert.Equal(t, 33.33, result[0].Percentage)
	assert.Equal(t, model.CategoryPhysiological, result[1].Category)
	assert.Equal(t, 66.67, result[1].Percentage)
}

func TestPerformanceService_GetCategoryPerformance(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := testutil.TestUser(t, env.db)
	testutil.TestPerformanceRecord(t, env.db, user.ID, model.CategoryPhysiological, 4, 6, "2024-03-14")
	testutil.TestPerformanceRecord(t, env.db, user.ID, model.CategoryPhysiological, 6, 9, "2024-03-15")
	testutil.TestPerformanceRecord(t, env.db, user.ID, model.CategoryHealthPromotion, 2, 2, "2024-03-15")

	result, err := env.performance.GetCategoryPerformance(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, result, 2)
	assert.Equal(t, dto.CategoryPerformance{
		Category: model.CategoryHealthPromotion, Correct: 2, Total: 2, Percentage: 100,
	}, result[0])
	assert.Equal(t, dto.CategoryPerformance{
		Category: model.CategoryPhysiological, Correct: 10, Total: 15, Percentage: 66.67,
	}, result[1])

	// 第二次读取走缓存
	testutil.TestPerformanceRecord(t, env.db, user.ID, model.CategorySafeCare, 1, 1, "2024-03-15")
	cached, err := env.performance.GetCategoryPerformance(ctx, user.ID)
	require.NoError(t, err)
	assert.Len(t, cached, 2)
}

func TestPerformanceService_GetUserStats(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := testutil.TestUser(t, env.db)
	testutil.TestTest(t, env.db, user.ID, testutil.WithCompleted(80, fixedNow.Add(-30*time.Minute), fixedNow))
	testutil.TestTest(t, env.db, user.ID, testutil.WithCompleted(60, fixedNow.AddDate(0, 0, -1).Add(-30*time.Minute), fixedNow.AddDate(0, 0, -1)))
	testutil.TestTest(t, env.db, user.ID)

	stats, err := env.performance.GetUserStats(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalTests)
	assert.Equal(t, 70.0, stats.AverageScore)
	assert.Equal(t, 2, stats.StudyStreakDays)
	assert.Equal(t, 1.0, stats.TotalStudyHours)
}

func TestPerformanceService_RequiresUser(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.performance.GetUserStats(context.Background(), "")
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = env.performance.GetCategoryPerformance(context.Background(), "")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestTTLUntilMidnight(t *testing.T) {
	shanghai := time.FixedZone("UTC+8", 8*3600)

	tests := []struct {
		name string
		now  time.Time
		loc  *time.Location
		ttl  time.Duration
		want time.Duration
	}{
		{"midday keeps ttl", time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC), time.UTC, 5 * time.Minute, 5 * time.Minute},
		{"capped before midnight", time.Date(2024, 3, 15, 23, 59, 30, 0, time.UTC), time.UTC, 5 * time.Minute, 30 * time.Second},
		{"local midnight in other zone", time.Date(2024, 3, 15, 15, 58, 0, 0, time.UTC), shanghai, 5 * time.Minute, 2 * time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TTLUntilMidnight(tt.now, tt.loc, tt.ttl))
		})
	}
}

type ttlRecordingCache struct {
	cache.Cache
	ttls map[string]time.Duration
}

func (c *ttlRecordingCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	c.ttls[key] = ttl
	return c.Cache.Set(ctx, key, value, ttl)
}

func TestPerformanceService_StatsCacheExpiresAtMidnight(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := testutil.TestUser(t, env.db)

	recorder := &ttlRecordingCache{Cache: cache.NewMemoryCache(), ttls: map[string]time.Duration{}}
	svc := NewPerformanceService(env.perfRepo, env.testRepo, recorder, env.cfg, sl.Discard())
	lateNight := time.Date(2024, 3, 15, 23, 59, 50, 0, time.UTC)
	svc.SetClock(func() time.Time { return lateNight })

	testutil.TestTest(t, env.db, user.ID, testutil.WithCompleted(80, lateNight.Add(-30*time.Minute), lateNight.Add(-10*time.Minute)))

	stats, err := svc.GetUserStats(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.StudyStreakDays)
	assert.Equal(t, 10*time.Second, recorder.ttls[StatsCacheKey(user.ID)])

	_, err = svc.GetCategoryPerformance(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, env.cfg.Stats.CacheTTL, recorder.ttls[PerformanceCacheKey(user.ID)])
}
