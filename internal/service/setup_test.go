package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/exam_prep_server/config"
	"github.com/qs3c/exam_prep_server/internal/model"
	"github.com/qs3c/exam_prep_server/internal/pkg/billing"
	"github.com/qs3c/exam_prep_server/internal/pkg/cache"
	"github.com/qs3c/exam_prep_server/internal/pkg/generator"
	"github.com/qs3c/exam_prep_server/internal/pkg/metrics"
	"github.com/qs3c/exam_prep_server/internal/pkg/oss"
	"github.com/qs3c/exam_prep_server/internal/pkg/pubsub"
	"github.com/qs3c/exam_prep_server/internal/pkg/sl"
	"github.com/qs3c/exam_prep_server/internal/repository"
	"github.com/qs3c/exam_prep_server/internal/testutil"
)

var fixedNow = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	db      *gorm.DB
	cfg     *config.Config
	cache   *cache.MemoryCache
	store   *oss.MemoryStore
	billing *billing.MockProvider
	metrics *metrics.Metrics

	mu    sync.Mutex
	notes []*pubsub.Notification

	userRepo   *repository.UserRepository
	testRepo   *repository.TestRepository
	perfRepo   *repository.PerformanceRepository
	uploadRepo *repository.UploadRepository

	entitlement  *EntitlementService
	subscription *SubscriptionService
	tests        *TestService
	performance  *PerformanceService
	uploads      *UploadService
	users        *UserService
}

func testConfig() *config.Config {
	return &config.Config{
		Quota: config.QuotaConfig{FreeTestLimit: 2, FreeUploadLimit: 5},
		Generator: config.GeneratorConfig{
			Provider:      "mock",
			Timeout:       5 * time.Second,
			QuestionCount: 10,
			MaxQuestions:  150,
		},
		Upload: config.UploadConfig{
			MaxSize:           1024,
			ExpireHours:       24,
			AllowedExtensions: []string{".txt", ".md", ".csv"},
		},
		Stats: config.StatsConfig{Timezone: "UTC", CacheTTL: time.Minute},
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithGenerator(t, generator.NewMockGenerator())
}

func newTestEnvWithGenerator(t *testing.T, gen generator.Generator) *testEnv {
	t.Helper()

	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.CleanupTestDB(t, db) })

	env := &testEnv{
		db:         db,
		cfg:        testConfig(),
		cache:      cache.NewMemoryCache(),
		store:      oss.NewMemoryStore(),
		billing:    billing.NewMockProvider("whsec_test", "http://localhost:3000"),
		metrics:    metrics.New(),
		userRepo:   repository.NewUserRepository(db),
		testRepo:   repository.NewTestRepository(db),
		perfRepo:   repository.NewPerformanceRepository(db),
		uploadRepo: repository.NewUploadRepository(db),
	}
	notifier := pubsub.NewLocalNotifier(func(n *pubsub.Notification) {
		env.mu.Lock()
		env.notes = append(env.notes, n)
		env.mu.Unlock()
	})
	logger := sl.Discard()

	env.entitlement = NewEntitlementService(env.userRepo, env.testRepo, env.uploadRepo, env.cfg)
	env.subscription = NewSubscriptionService(env.userRepo, env.billing, env.cache, notifier, env.metrics, logger)
	env.tests = NewTestService(env.testRepo, env.uploadRepo, env.entitlement, gen, env.cache, notifier, env.metrics, env.cfg, logger)
	env.performance = NewPerformanceService(env.perfRepo, env.testRepo, env.cache, env.cfg, logger)
	env.uploads = NewUploadService(env.uploadRepo, env.entitlement, env.store, env.metrics, env.cfg, logger)
	env.users = NewUserService(env.userRepo, env.entitlement)

	clock := func() time.Time { return fixedNow }
	env.entitlement.now = clock
	env.tests.SetClock(clock)
	env.performance.SetClock(clock)
	env.uploads.SetClock(clock)

	return env
}

func (e *testEnv) notifications(kind string) []*pubsub.Notification {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []*pubsub.Notification
	for _, n := range e.notes {
		if n.Type == kind {
			out = append(out, n)
		}
	}
	return out
}

func (e *testEnv) reloadUser(t *testing.T, id string) *model.User {
	t.Helper()
	user, err := e.userRepo.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("reload user %s: %v", id, err)
	}
	return user
}

// stubGenerator 可控的生成器
type stubGenerator struct {
	questions  []model.Question
	genErr     error
	explainErr error
}

func (g *stubGenerator) GenerateQuestions(ctx context.Context, _ string, _ int) ([]model.Question, error) {
	if g.genErr != nil {
		return nil, g.genErr
	}
	return g.questions, nil
}

func (g *stubGenerator) ExplainAnswer(ctx context.Context, _ model.Question, _ string) (string, error) {
	if g.explainErr != nil {
		return "", g.explainErr
	}
	return "because", nil
}

var errUpstream = errors.New("upstream unavailable")
