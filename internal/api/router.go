package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/exam_prep_server/config"
	"github.com/qs3c/exam_prep_server/internal/api/handler"
	"github.com/qs3c/exam_prep_server/internal/api/middleware"
	"github.com/qs3c/exam_prep_server/internal/pkg/auth"
	"github.com/qs3c/exam_prep_server/internal/pkg/metrics"
	"github.com/qs3c/exam_prep_server/internal/pkg/ratelimit"
	"github.com/qs3c/exam_prep_server/internal/service"
)

// Handlers 路由用到的全部 handler
type Handlers struct {
	Entitlement *handler.EntitlementHandler
	Test        *handler.TestHandler
	Stats       *handler.StatsHandler
	Upload      *handler.UploadHandler
	Billing     *handler.BillingHandler
	User        *handler.UserHandler
	WebSocket   *handler.WebSocketHandler
}

type Router struct {
	handlers Handlers
	verifier auth.Verifier
	ensurer  middleware.UserEnsurer
	checker  middleware.EntitlementChecker
	limiter  *ratelimit.Limiter
	metrics  *metrics.Metrics
	cfg      *config.Config
	logger   *slog.Logger
}

func NewRouter(
	handlers Handlers,
	verifier auth.Verifier,
	ensurer middleware.UserEnsurer,
	checker middleware.EntitlementChecker,
	limiter *ratelimit.Limiter,
	m *metrics.Metrics,
	cfg *config.Config,
	logger *slog.Logger,
) *Router {
	return &Router{
		handlers: handlers,
		verifier: verifier,
		ensurer:  ensurer,
		checker:  checker,
		limiter:  limiter,
		metrics:  m,
		cfg:      cfg,
		logger:   logger,
	}
}

func (r *Router) Setup() *gin.Engine {
	if r.cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.CORS(r.cfg.CORS))

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.GET("/metrics", gin.WrapH(r.metrics.Handler()))

	h := r.handlers
	api := engine.Group("/api/v1")
	{
		// 公开接口，依赖签名校验
		api.POST("/webhooks/stripe", h.Billing.Webhook)

		// WebSocket 通过 query token 认证
		api.GET("/ws", h.WebSocket.Handle)

		authenticated := api.Group("")
		authenticated.Use(middleware.Auth(r.verifier, r.ensurer, r.logger))
		authenticated.Use(middleware.RateLimit(r.limiter))
		{
			// 权益
			entitlement := authenticated.Group("/entitlement")
			{
				entitlement.GET("", h.Entitlement.Get)
				entitlement.GET("/tests", h.Entitlement.Tests)
				entitlement.GET("/uploads", h.Entitlement.Uploads)
			}

			// 测试
			tests := authenticated.Group("/tests")
			{
				tests.POST("", middleware.QuotaCheck(r.checker, service.ResourceTests, r.logger), h.Test.Create)
				tests.GET("", h.Test.List)
				tests.GET("/:id", h.Test.Get)
				tests.POST("/:id/answers", h.Test.Answer)
				tests.POST("/:id/complete", h.Test.Complete)
				tests.POST("/:id/abandon", h.Test.Abandon)
			}

			// 统计
			stats := authenticated.Group("/stats")
			{
				stats.GET("", h.Stats.Summary)
				stats.GET("/categories", h.Stats.Categories)
			}

			// 上传
			uploads := authenticated.Group("/uploads")
			{
				uploads.POST("", middleware.QuotaCheck(r.checker, service.ResourceUploads, r.logger), h.Upload.Create)
				uploads.GET("", h.Upload.List)
				uploads.GET("/:id", h.Upload.Get)
			}

			// 订阅
			billing := authenticated.Group("/billing")
			{
				billing.POST("/checkout", h.Billing.Checkout)
				billing.POST("/portal", h.Billing.Portal)
			}

			// 用户
			user := authenticated.Group("/user")
			{
				user.GET("/profile", h.User.GetProfile)
				user.PUT("/profile", h.User.UpdateProfile)
			}
		}
	}

	return engine
}
