package service

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"gorm.io/datatypes"

	"github.com/qs3c/exam_prep_server/config"
	"github.com/qs3c/exam_prep_server/internal/model"
	"github.com/qs3c/exam_prep_server/internal/model/dto"
	"github.com/qs3c/exam_prep_server/internal/pkg/cache"
	"github.com/qs3c/exam_prep_server/internal/pkg/generator"
	"github.com/qs3c/exam_prep_server/internal/pkg/metrics"
	"github.com/qs3c/exam_prep_server/internal/pkg/pubsub"
	"github.com/qs3c/exam_prep_server/internal/pkg/sl"
	"github.com/qs3c/exam_prep_server/internal/repository"
)

const (
	defaultQuestionCount = 10
	defaultMaxQuestions  = 150
	defaultGenTimeout    = 60 * time.Second
	answerRetries        = 5
)

// TestService 测试生命周期：创建、作答、完成/放弃、评分与分类记录
type TestService struct {
	testRepo    *repository.TestRepository
	uploadRepo  *repository.UploadRepository
	entitlement *EntitlementService
	generator   generator.Generator
	cache       cache.Cache
	notifier    pubsub.Notifier
	metrics     *metrics.Metrics
	cfg         *config.Config
	logger      *slog.Logger
	loc         *time.Location
	now         func() time.Time
}

func NewTestService(
	testRepo *repository.TestRepository,
	uploadRepo *repository.UploadRepository,
	entitlement *EntitlementService,
	gen generator.Generator,
	c cache.Cache,
	notifier pubsub.Notifier,
	m *metrics.Metrics,
	cfg *config.Config,
	logger *slog.Logger,
) *TestService {
	return &TestService{
		testRepo:    testRepo,
		uploadRepo:  uploadRepo,
		entitlement: entitlement,
		generator:   gen,
		cache:       c,
		notifier:    notifier,
		metrics:     m,
		cfg:         cfg,
		logger:      logger.With("component", "test_lifecycle"),
		loc:         LoadLocation(cfg.Stats.Timezone),
		now:         time.Now,
	}
}

// SetClock 替换时钟，测试用
func (s *TestService) SetClock(now func() time.Time) {
	s.now = now
}

// LoadLocation 解析时区，无效时回退到 UTC
func LoadLocation(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (s *TestService) questionCount(requested int) int {
	count := requested
	if count <= 0 {
		count = s.cfg.Generator.QuestionCount
	}
	if count <= 0 {
		count = defaultQuestionCount
	}
	maxCount := s.cfg.Generator.MaxQuestions
	if maxCount <= 0 {
		maxCount = defaultMaxQuestions
	}
	return min(count, maxCount)
}

func (s *TestService) generationTimeout() time.Duration {
	if s.cfg.Generator.Timeout > 0 {
		return s.cfg.Generator.Timeout
	}
	return defaultGenTimeout
}

// StartTest 检查额度后生成题目并创建测试。
// 额度检查与创建不在同一事务中，并发请求可能多创建一个免费测试。
func (s *TestService) StartTest(ctx context.Context, userID string, req *dto.StartTestRequest) (*dto.TestResponse, error) {
	const op = "test.StartTest"

	perm, err := s.entitlement.CanCreateTest(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !perm.Allowed {
		s.metrics.QuotaDenied.WithLabelValues(ResourceTests).Inc()
		return nil, &QuotaError{Resource: ResourceTests, Used: perm.TestsUsed, Limit: int(perm.TestsLimit)}
	}

	source := "generic"
	sourceText := ""
	var uploadID *string
	if req != nil && req.UploadID != nil && *req.UploadID != "" {
		upload, err := s.uploadRepo.GetByIDAndUser(ctx, *req.UploadID, userID)
		if err != nil {
			return nil, storeErr(op, err)
		}
		if !upload.ExpiresAt.After(s.now()) {
			return nil, fmt.Errorf("%s: upload expired: %w", op, ErrNotFound)
		}
		source = "upload"
		sourceText = upload.ExtractedText
		uploadID = &upload.ID
	}

	requested := 0
	if req != nil {
		requested = req.Count
	}
	count := s.questionCount(requested)

	questions, err := s.generate(ctx, sourceText, count)
	if err != nil {
		s.logger.Warn("question generation failed", "user_id", userID, "source", source, sl.Err(err))
		return nil, fmt.Errorf("%s: %w: %w", op, ErrGenerationFailed, err)
	}

	test := &model.Test{
		UserID:    userID,
		UploadID:  uploadID,
		Questions: datatypes.NewJSONSlice(questions),
		Answers:   datatypes.NewJSONType(model.AnswerMap{}),
	}
	if err := s.testRepo.Create(ctx, test); err != nil {
		return nil, storeErr(op, err)
	}

	s.metrics.TestsStarted.WithLabelValues(source).Inc()
	s.logger.Info("test started", "user_id", userID, "test_id", test.ID, "questions", len(questions), "source", source)

	return buildTestResponse(test), nil
}

func (s *TestService) generate(ctx context.Context, sourceText string, count int) ([]model.Question, error) {
	genCtx, cancel := context.WithTimeout(ctx, s.generationTimeout())
	defer cancel()

	start := time.Now()
	questions, err := s.generator.GenerateQuestions(genCtx, sourceText, count)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	s.metrics.GenerationDuration.WithLabelValues("questions", outcome).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}

	return generator.Sanitize(questions, count)
}

// RecordAnswer 记录答案（同一题后写覆盖），并请求解析。
// 答案先落库，解析失败只记录日志，返回空解析。
func (s *TestService) RecordAnswer(ctx context.Context, userID string, testID int64, questionID, choice string) (*dto.RecordAnswerResponse, error) {
	const op = "test.RecordAnswer"

	choice = strings.ToUpper(strings.TrimSpace(choice))

	var (
		test     *model.Test
		question model.Question
		saved    bool
	)
	for attempt := 0; attempt < answerRetries && !saved; attempt++ {
		var err error
		test, err = s.testRepo.GetByIDAndUser(ctx, testID, userID)
		if err != nil {
			return nil, storeErr(op, err)
		}
		if test.IsCompleted() {
			return nil, completedError(test)
		}

		var ok bool
		question, ok = test.FindQuestion(questionID)
		if !ok {
			return nil, ErrQuestionNotFound
		}
		if _, ok := question.Options[choice]; !ok {
			return nil, ErrInvalidChoice
		}

		answers := make(model.AnswerMap, len(test.AnswerSet())+1)
		for k, v := range test.AnswerSet() {
			answers[k] = v
		}
		answers[questionID] = choice

		rows, err := s.testRepo.UpdateAnswers(ctx, test.ID, test.Version, answers)
		if err != nil {
			return nil, storeErr(op, err)
		}
		saved = rows == 1
	}
	if !saved {
		return nil, fmt.Errorf("%s: %w", op, ErrConflictingUpdates)
	}

	s.metrics.AnswersRecorded.Inc()

	return &dto.RecordAnswerResponse{
		TestID:        test.ID,
		QuestionID:    questionID,
		Choice:        choice,
		Correct:       choice == question.CorrectAnswer,
		CorrectAnswer: question.CorrectAnswer,
		Rationale:     s.explain(ctx, test.ID, question, choice),
	}, nil
}

func (s *TestService) explain(ctx context.Context, testID int64, q model.Question, choice string) string {
	genCtx, cancel := context.WithTimeout(ctx, s.generationTimeout())
	defer cancel()

	start := time.Now()
	rationale, err := s.generator.ExplainAnswer(genCtx, q, choice)
	if err != nil {
		s.metrics.GenerationDuration.WithLabelValues("explain", "error").Observe(time.Since(start).Seconds())
		s.logger.Warn("rationale generation failed", "test_id", testID, "question_id", q.ID, sl.Err(err))
		return ""
	}
	s.metrics.GenerationDuration.WithLabelValues("explain", "ok").Observe(time.Since(start).Seconds())
	return rationale
}

// CompleteTest 以调用方给出的分数结束测试
func (s *TestService) CompleteTest(ctx context.Context, userID string, testID int64, score int) (*dto.FinalizeResponse, error) {
	if score < 0 || score > 100 {
		return nil, ErrInvalidScore
	}
	return s.finalizeTest(ctx, userID, testID, finalizeOptions{score: &score})
}

// AbandonTest 提前结束，分数按已作答题目计算
func (s *TestService) AbandonTest(ctx context.Context, userID string, testID int64) (*dto.FinalizeResponse, error) {
	return s.finalizeTest(ctx, userID, testID, finalizeOptions{abandon: true})
}

type finalizeOptions struct {
	abandon bool
	score   *int // 为空时按已作答题目计算
}

type categoryTally struct {
	correct int
	total   int
}

// tallyAnswers 只统计已作答的题目
func tallyAnswers(test *model.Test) (map[string]*categoryTally, int, int) {
	answers := test.AnswerSet()
	tallies := make(map[string]*categoryTally)
	correct, answered := 0, 0

	for _, q := range test.Questions {
		choice, ok := answers[q.ID]
		if !ok {
			continue
		}
		t := tallies[q.Category]
		if t == nil {
			t = &categoryTally{}
			tallies[q.Category] = t
		}
		t.total++
		answered++
		if choice == q.CorrectAnswer {
			t.correct++
			correct++
		}
	}
	return tallies, correct, answered
}

// ComputeScore round(100 × correct / answered)，未作答时为 0
func ComputeScore(correct, answered int) int {
	if answered == 0 {
		return 0
	}
	return int(math.Round(100 * float64(correct) / float64(answered)))
}

func categoryOrder(category string) int {
	for i, c := range model.CategoryDistribution {
		if c.Category == category {
			return i
		}
	}
	return len(model.CategoryDistribution)
}

func (s *TestService) finalizeTest(ctx context.Context, userID string, testID int64, opts finalizeOptions) (*dto.FinalizeResponse, error) {
	const op = "test.finalizeTest"

	// 计分期间若有新答案写入，版本变化导致写入失败，重新读取后再计分
	for attempt := 0; attempt < answerRetries; attempt++ {
		test, err := s.testRepo.GetByIDAndUser(ctx, testID, userID)
		if err != nil {
			return nil, storeErr(op, err)
		}
		if test.IsCompleted() {
			return alreadyCompleted(test), nil
		}

		now := s.now()
		result, records, answered := s.scoreTest(test, userID, opts, now)

		won, err := s.testRepo.FinalizeWithRecords(ctx, test.ID, userID, repository.Finalization{
			Version:     test.Version,
			Score:       result.Score,
			CompletedAt: now,
			Abandoned:   opts.abandon,
			Records:     records,
		})
		if err != nil {
			return nil, storeErr(op, err)
		}
		if !won {
			continue
		}

		s.finalized(ctx, test, result, answered)
		return result, nil
	}

	return nil, fmt.Errorf("%s: %w", op, ErrConflictingUpdates)
}

// scoreTest 按当前答案计算分数和分类记录
func (s *TestService) scoreTest(test *model.Test, userID string, opts finalizeOptions, now time.Time) (*dto.FinalizeResponse, []model.PerformanceRecord, int) {
	tallies, correct, answered := tallyAnswers(test)
	score := ComputeScore(correct, answered)
	if opts.score != nil {
		score = *opts.score
	}

	date := now.In(s.loc).Format(model.RecordDateLayout)

	categories := make([]dto.CategoryResult, 0, len(tallies))
	for category, t := range tallies {
		categories = append(categories, dto.CategoryResult{Category: category, Correct: t.correct, Total: t.total})
	}
	sort.Slice(categories, func(i, j int) bool {
		oi, oj := categoryOrder(categories[i].Category), categoryOrder(categories[j].Category)
		if oi != oj {
			return oi < oj
		}
		return categories[i].Category < categories[j].Category
	})

	records := make([]model.PerformanceRecord, 0, len(categories))
	for _, c := range categories {
		records = append(records, model.PerformanceRecord{
			UserID:     userID,
			TestID:     test.ID,
			Category:   c.Category,
			Correct:    c.Correct,
			Total:      c.Total,
			RecordDate: date,
		})
	}

	return &dto.FinalizeResponse{
		TestID:      test.ID,
		Score:       score,
		CompletedAt: now,
		Abandoned:   opts.abandon,
		Categories:  categories,
	}, records, answered
}

// finalized 完成后的指标、缓存失效和通知
func (s *TestService) finalized(ctx context.Context, test *model.Test, result *dto.FinalizeResponse, answered int) {
	userID := test.UserID

	mode := "complete"
	if result.Abandoned {
		mode = "abandon"
	}
	s.metrics.TestsFinalized.WithLabelValues(mode).Inc()
	s.logger.Info("test finalized", "user_id", userID, "test_id", test.ID, "mode", mode,
		"score", result.Score, "answered", answered, "questions", len(test.Questions))

	if err := s.cache.Delete(ctx, StatsCacheKey(userID), PerformanceCacheKey(userID)); err != nil {
		s.logger.Warn("failed to invalidate stats cache", "user_id", userID, sl.Err(err))
	}
	if err := s.notifier.Notify(ctx, &pubsub.Notification{
		Type:   pubsub.TypeTestFinalized,
		UserID: userID,
		Data:   map[string]interface{}{"test_id": test.ID, "score": result.Score, "abandoned": result.Abandoned},
	}); err != nil {
		s.logger.Warn("failed to publish test finalized", "user_id", userID, sl.Err(err))
	}
}

func completedError(test *model.Test) *CompletedError {
	e := &CompletedError{TestID: test.ID}
	if test.Score != nil {
		e.Score = *test.Score
	}
	if test.CompletedAt != nil {
		e.CompletedAt = *test.CompletedAt
	}
	return e
}

func alreadyCompleted(test *model.Test) *dto.FinalizeResponse {
	e := completedError(test)
	return &dto.FinalizeResponse{
		TestID:           test.ID,
		Score:            e.Score,
		CompletedAt:      e.CompletedAt,
		Abandoned:        test.Abandoned,
		AlreadyCompleted: true,
	}
}

// GetTest 测试详情，已作答或已结束的题目返回正确答案
func (s *TestService) GetTest(ctx context.Context, userID string, testID int64) (*dto.TestResponse, error) {
	test, err := s.testRepo.GetByIDAndUser(ctx, testID, userID)
	if err != nil {
		return nil, storeErr("test.GetTest", err)
	}
	return buildTestResponse(test), nil
}

// ListTests 按创建时间倒序分页
func (s *TestService) ListTests(ctx context.Context, userID string, page, pageSize int) (*dto.TestListResponse, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	tests, total, err := s.testRepo.ListByUserID(ctx, userID, page, pageSize)
	if err != nil {
		return nil, storeErr("test.ListTests", err)
	}

	items := make([]dto.TestSummary, 0, len(tests))
	for i := range tests {
		t := &tests[i]
		items = append(items, dto.TestSummary{
			ID:            t.ID,
			Status:        t.Status(),
			QuestionCount: len(t.Questions),
			AnsweredCount: len(t.AnswerSet()),
			Score:         t.Score,
			CompletedAt:   t.CompletedAt,
			CreatedAt:     t.CreatedAt,
		})
	}

	return &dto.TestListResponse{
		Total:    total,
		Page:     page,
		PageSize: pageSize,
		Tests:    items,
	}, nil
}

func buildTestResponse(test *model.Test) *dto.TestResponse {
	answers := test.AnswerSet()
	views := make([]dto.QuestionView, 0, len(test.Questions))
	for _, q := range test.Questions {
		v := dto.QuestionView{
			ID:       q.ID,
			Category: q.Category,
			Question: q.Question,
			Options:  q.Options,
		}
		if _, answered := answers[q.ID]; answered || test.IsCompleted() {
			v.CorrectAnswer = q.CorrectAnswer
			v.Explanation = q.Explanation
		}
		views = append(views, v)
	}

	return &dto.TestResponse{
		ID:          test.ID,
		Status:      test.Status(),
		UploadID:    test.UploadID,
		Questions:   views,
		Answers:     map[string]string(answers),
		Score:       test.Score,
		CompletedAt: test.CompletedAt,
		CreatedAt:   test.CreatedAt,
	}
}
