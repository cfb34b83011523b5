package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/exam_prep_server/config"
	"github.com/qs3c/exam_prep_server/internal/api/handler"
	"github.com/qs3c/exam_prep_server/internal/pkg/auth"
	"github.com/qs3c/exam_prep_server/internal/pkg/billing"
	"github.com/qs3c/exam_prep_server/internal/pkg/cache"
	"github.com/qs3c/exam_prep_server/internal/pkg/generator"
	"github.com/qs3c/exam_prep_server/internal/pkg/jwt"
	"github.com/qs3c/exam_prep_server/internal/pkg/metrics"
	"github.com/qs3c/exam_prep_server/internal/pkg/oss"
	"github.com/qs3c/exam_prep_server/internal/pkg/pubsub"
	"github.com/qs3c/exam_prep_server/internal/pkg/ratelimit"
	"github.com/qs3c/exam_prep_server/internal/pkg/response"
	"github.com/qs3c/exam_prep_server/internal/pkg/sl"
	"github.com/qs3c/exam_prep_server/internal/pkg/ws"
	"github.com/qs3c/exam_prep_server/internal/repository"
	"github.com/qs3c/exam_prep_server/internal/service"
	"github.com/qs3c/exam_prep_server/internal/testutil"
)

const routerSecret = "router-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

func setupRouter(t *testing.T) *gin.Engine {
	t.Helper()

	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.CleanupTestDB(t, db) })

	cfg := &config.Config{
		Quota:     config.QuotaConfig{FreeTestLimit: 2, FreeUploadLimit: 5},
		Generator: config.GeneratorConfig{Timeout: 5 * time.Second, QuestionCount: 3, MaxQuestions: 150},
		Upload:    config.UploadConfig{MaxSize: 1024, ExpireHours: 24, AllowedExtensions: []string{".txt"}},
		Stats:     config.StatsConfig{Timezone: "UTC", CacheTTL: time.Minute},
		RateLimit: config.RateLimitConfig{RequestsPerSecond: 100, Burst: 100},
	}

	userRepo := repository.NewUserRepository(db)
	testRepo := repository.NewTestRepository(db)
	perfRepo := repository.NewPerformanceRepository(db)
	uploadRepo := repository.NewUploadRepository(db)

	c := cache.NewMemoryCache()
	m := metrics.New()
	logger := sl.Discard()
	hub := ws.NewHub(logger)
	notifier := pubsub.NewLocalNotifier(func(*pubsub.Notification) {})
	provider := billing.NewMockProvider("whsec_test", "http://localhost:3000")
	verifier := auth.NewHS256Verifier(routerSecret)

	entitlement := service.NewEntitlementService(userRepo, testRepo, uploadRepo, cfg)
	subscription := service.NewSubscriptionService(userRepo, provider, c, notifier, m, logger)
	tests := service.NewTestService(testRepo, uploadRepo, entitlement, generator.NewMockGenerator(), c, notifier, m, cfg, logger)
	performance := service.NewPerformanceService(perfRepo, testRepo, c, cfg, logger)
	uploads := service.NewUploadService(uploadRepo, entitlement, oss.NewMemoryStore(), m, cfg, logger)
	users := service.NewUserService(userRepo, entitlement)

	handlers := Handlers{
		Entitlement: handler.NewEntitlementHandler(entitlement, logger),
		Test:        handler.NewTestHandler(tests, logger),
		Stats:       handler.NewStatsHandler(performance, logger),
		Upload:      handler.NewUploadHandler(uploads, cfg, logger),
		Billing:     handler.NewBillingHandler(subscription, logger),
		User:        handler.NewUserHandler(users, logger),
		WebSocket:   handler.NewWebSocketHandler(hub, verifier, nil, logger),
	}
	limiter := ratelimit.New(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)

	return NewRouter(handlers, verifier, subscription, entitlement, limiter, m, cfg, logger).Setup()
}

func bearer(t *testing.T, userID string) string {
	t.Helper()
	token, err := jwt.GenerateToken(userID, userID+"@example.com", routerSecret, 1)
	require.NoError(t, err)
	return "Bearer " + token
}

func do(router *gin.Engine, method, path, authHeader, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) response.Response {
	t.Helper()
	var resp response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestRouter_PublicEndpoints(t *testing.T) {
	router := setupRouter(t)

	w := do(router, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")

	w = do(router, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_RequiresAuth(t *testing.T) {
	router := setupRouter(t)

	for _, path := range []string{"/api/v1/entitlement", "/api/v1/tests", "/api/v1/stats", "/api/v1/user/profile"} {
		resp := decode(t, do(router, http.MethodGet, path, "", ""))
		assert.Equal(t, response.CodeAuthFailed, resp.Code, path)
	}

	resp := decode(t, do(router, http.MethodGet, "/api/v1/entitlement", "Bearer garbage", ""))
	assert.Equal(t, response.CodeAuthFailed, resp.Code)
}

func TestRouter_FreeUserTestQuota(t *testing.T) {
	router := setupRouter(t)
	authHeader := bearer(t, "user-router")

	for i := 0; i < 2; i++ {
		resp := decode(t, do(router, http.MethodPost, "/api/v1/tests", authHeader, ""))
		require.Equal(t, response.CodeSuccess, resp.Code, "attempt %d: %s", i, resp.Message)
	}

	resp := decode(t, do(router, http.MethodPost, "/api/v1/tests", authHeader, ""))
	assert.Equal(t, response.CodeQuotaExceeded, resp.Code)

	resp = decode(t, do(router, http.MethodGet, "/api/v1/entitlement/tests", authHeader, ""))
	require.Equal(t, response.CodeSuccess, resp.Code)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, false, data["allowed"])
}

func TestRouter_ProfileCreatedLazily(t *testing.T) {
	router := setupRouter(t)

	resp := decode(t, do(router, http.MethodGet, "/api/v1/user/profile", bearer(t, "user-lazy"), ""))
	require.Equal(t, response.CodeSuccess, resp.Code)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, "user-lazy", data["id"])
}
