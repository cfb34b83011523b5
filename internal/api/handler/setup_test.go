package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/qs3c/exam_prep_server/config"
	"github.com/qs3c/exam_prep_server/internal/api/middleware"
	"github.com/qs3c/exam_prep_server/internal/pkg/billing"
	"github.com/qs3c/exam_prep_server/internal/pkg/cache"
	"github.com/qs3c/exam_prep_server/internal/pkg/generator"
	"github.com/qs3c/exam_prep_server/internal/pkg/metrics"
	"github.com/qs3c/exam_prep_server/internal/pkg/oss"
	"github.com/qs3c/exam_prep_server/internal/pkg/pubsub"
	"github.com/qs3c/exam_prep_server/internal/pkg/response"
	"github.com/qs3c/exam_prep_server/internal/pkg/sl"
	"github.com/qs3c/exam_prep_server/internal/repository"
	"github.com/qs3c/exam_prep_server/internal/service"
	"github.com/qs3c/exam_prep_server/internal/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testContext struct {
	DB           *gorm.DB
	Cfg          *config.Config
	Billing      *billing.MockProvider
	Entitlement  *service.EntitlementService
	Subscription *service.SubscriptionService
	Tests        *service.TestService
	Performance  *service.PerformanceService
	Uploads      *service.UploadService
	Users        *service.UserService
}

func setupServices(t *testing.T) *testContext {
	t.Helper()

	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.CleanupTestDB(t, db) })

	cfg := &config.Config{
		Quota:     config.QuotaConfig{FreeTestLimit: 2, FreeUploadLimit: 5},
		Generator: config.GeneratorConfig{Timeout: 5 * time.Second, QuestionCount: 4, MaxQuestions: 150},
		Upload:    config.UploadConfig{MaxSize: 1024, ExpireHours: 24, AllowedExtensions: []string{".txt", ".md", ".csv"}},
		Stats:     config.StatsConfig{Timezone: "UTC", CacheTTL: time.Minute},
	}

	userRepo := repository.NewUserRepository(db)
	testRepo := repository.NewTestRepository(db)
	perfRepo := repository.NewPerformanceRepository(db)
	uploadRepo := repository.NewUploadRepository(db)

	c := cache.NewMemoryCache()
	m := metrics.New()
	logger := sl.Discard()
	notifier := pubsub.NewLocalNotifier(func(*pubsub.Notification) {})
	provider := billing.NewMockProvider("whsec_test", "http://localhost:3000")

	entitlement := service.NewEntitlementService(userRepo, testRepo, uploadRepo, cfg)
	return &testContext{
		DB:           db,
		Cfg:          cfg,
		Billing:      provider,
		Entitlement:  entitlement,
		Subscription: service.NewSubscriptionService(userRepo, provider, c, notifier, m, logger),
		Tests:        service.NewTestService(testRepo, uploadRepo, entitlement, generator.NewMockGenerator(), c, notifier, m, cfg, logger),
		Performance:  service.NewPerformanceService(perfRepo, testRepo, c, cfg, logger),
		Uploads:      service.NewUploadService(uploadRepo, entitlement, oss.NewMemoryStore(), m, cfg, logger),
		Users:        service.NewUserService(userRepo, entitlement),
	}
}

func mockAuth(userID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.UserIDKey, userID)
		c.Next()
	}
}

func performRequest(r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(jsonBytes)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func parseResponse(t *testing.T, w *httptest.ResponseRecorder) response.Response {
	var resp response.Response
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	return resp
}

func dataMap(t *testing.T, resp response.Response) map[string]interface{} {
	t.Helper()
	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok, "response data is not an object: %#v", resp.Data)
	return data
}
