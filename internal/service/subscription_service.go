package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/exam_prep_server/internal/model"
	"github.com/qs3c/exam_prep_server/internal/pkg/auth"
	"github.com/qs3c/exam_prep_server/internal/pkg/billing"
	"github.com/qs3c/exam_prep_server/internal/pkg/cache"
	"github.com/qs3c/exam_prep_server/internal/pkg/metrics"
	"github.com/qs3c/exam_prep_server/internal/pkg/pubsub"
	"github.com/qs3c/exam_prep_server/internal/pkg/sl"
	"github.com/qs3c/exam_prep_server/internal/repository"
)

const (
	billingEventTTL = 24 * time.Hour
	ensuredUserTTL  = time.Hour
)

// 计费事件处理结果，用于日志和指标
const (
	outcomeApplied   = "applied"
	outcomeUnchanged = "unchanged"
	outcomeDropped   = "dropped"
	outcomeDuplicate = "duplicate"
	outcomeIgnored   = "ignored"
	outcomeFailed    = "failed"
)

// MapProviderStatus 计费服务的订阅状态到本地状态
func MapProviderStatus(raw string) string {
	switch raw {
	case "active", "trialing":
		return model.SubscriptionActive
	case "past_due":
		return model.SubscriptionPastDue
	case "canceled", "unpaid":
		return model.SubscriptionCancelled
	default:
		return model.SubscriptionInactive
	}
}

// SubscriptionService 订阅状态机，订阅状态的唯一写入方
type SubscriptionService struct {
	userRepo *repository.UserRepository
	provider billing.Provider
	cache    cache.Cache
	notifier pubsub.Notifier
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func NewSubscriptionService(
	userRepo *repository.UserRepository,
	provider billing.Provider,
	c cache.Cache,
	notifier pubsub.Notifier,
	m *metrics.Metrics,
	logger *slog.Logger,
) *SubscriptionService {
	return &SubscriptionService{
		userRepo: userRepo,
		provider: provider,
		cache:    c,
		notifier: notifier,
		metrics:  m,
		logger:   logger.With("component", "subscription"),
	}
}

// EnsureUser 幂等创建用户，登录事件丢失时在首次请求补建
func (s *SubscriptionService) EnsureUser(ctx context.Context, identity *auth.Identity) error {
	const op = "subscription.EnsureUser"

	if identity == nil || identity.UserID == "" {
		return ErrUnauthorized
	}

	key := "user:ensured:" + identity.UserID
	claimed, err := s.cache.SetNX(ctx, key, ensuredUserTTL)
	if err != nil {
		s.logger.Warn("ensure user cache unavailable", "user_id", identity.UserID, sl.Err(err))
		claimed = true
	}
	if !claimed {
		return nil
	}

	created, err := s.userRepo.EnsureExists(ctx, &model.User{
		ID:          identity.UserID,
		Email:       identity.Email,
		DisplayName: identity.Name,
	})
	if err != nil {
		_ = s.cache.Delete(ctx, key)
		return storeErr(op, err)
	}
	if created {
		s.logger.Info("user created", "user_id", identity.UserID)
	}
	return nil
}

// ProcessBillingEvent 验签、按事件 ID 去重后应用事件。
// 处理失败时释放去重标记，计费服务重投时会再次处理。
func (s *SubscriptionService) ProcessBillingEvent(ctx context.Context, payload []byte, signature string) error {
	event, err := s.provider.ParseWebhook(payload, signature)
	if err != nil {
		return err
	}
	if event == nil {
		s.metrics.BillingEvents.WithLabelValues("unhandled", outcomeIgnored).Inc()
		return nil
	}

	log := s.logger.With("event_id", event.ID, "kind", string(event.Kind))

	key := "billing:event:" + event.ID
	if event.ID != "" {
		claimed, err := s.cache.SetNX(ctx, key, billingEventTTL)
		if err != nil {
			log.Warn("billing event dedup unavailable", sl.Err(err))
			claimed = true
		}
		if !claimed {
			log.Info("duplicate billing event skipped")
			s.metrics.BillingEvents.WithLabelValues(string(event.Kind), outcomeDuplicate).Inc()
			return nil
		}
	}

	if err := s.ApplyBillingEvent(ctx, event); err != nil {
		if event.ID != "" {
			if delErr := s.cache.Delete(ctx, key); delErr != nil {
				log.Warn("failed to release billing event claim", sl.Err(delErr))
			}
		}
		return err
	}
	return nil
}

// ApplyBillingEvent 应用一次计费事件，重复应用结果相同。
// 找不到对应用户等业务不匹配只记日志；只有存储错误返回给调用方。
func (s *SubscriptionService) ApplyBillingEvent(ctx context.Context, event *billing.Event) error {
	outcome, err := s.apply(ctx, event)
	s.metrics.BillingEvents.WithLabelValues(string(event.Kind), outcome).Inc()
	return err
}

func (s *SubscriptionService) apply(ctx context.Context, event *billing.Event) (string, error) {
	const op = "subscription.ApplyBillingEvent"

	log := s.logger.With("event_id", event.ID, "kind", string(event.Kind), "billing_ref", event.BillingRef)

	if event.Kind == billing.EventCheckoutCompleted {
		return s.applyCheckout(ctx, event, log)
	}

	if event.BillingRef == "" {
		log.Warn("billing event without billing reference dropped")
		return outcomeDropped, nil
	}

	user, err := s.userRepo.GetByStripeCustomerID(ctx, event.BillingRef)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		log.Warn("billing event for unknown billing reference dropped")
		return outcomeDropped, nil
	}
	if err != nil {
		log.Error("failed to resolve billing reference", sl.Err(err))
		return outcomeFailed, storeErr(op, err)
	}

	var next string
	switch event.Kind {
	case billing.EventSubscriptionRenewed:
		next = MapProviderStatus(event.RawStatus)
	case billing.EventSubscriptionCanceled:
		next = model.SubscriptionCancelled
	case billing.EventPaymentFailed:
		// 只有有效或已逾期的订阅会进入逾期
		if user.SubscriptionStatus != model.SubscriptionActive && user.SubscriptionStatus != model.SubscriptionPastDue {
			log.Info("payment failure ignored for non-active subscription", "status", user.SubscriptionStatus)
			return outcomeUnchanged, nil
		}
		next = model.SubscriptionPastDue
	default:
		log.Warn("unknown billing event kind dropped")
		return outcomeDropped, nil
	}

	if user.SubscriptionStatus == next {
		return outcomeUnchanged, nil
	}

	if _, err := s.userRepo.UpdateSubscription(ctx, user.ID, next, nil); err != nil {
		log.Error("failed to update subscription", "user_id", user.ID, sl.Err(err))
		return outcomeFailed, storeErr(op, err)
	}

	s.changed(ctx, user.ID, user.SubscriptionStatus, next, log)
	return outcomeApplied, nil
}

func (s *SubscriptionService) applyCheckout(ctx context.Context, event *billing.Event, log *slog.Logger) (string, error) {
	const op = "subscription.applyCheckout"

	if event.UserID == "" || event.BillingRef == "" {
		log.Warn("checkout event missing user or billing reference dropped", "user_id", event.UserID)
		return outcomeDropped, nil
	}

	if _, err := s.userRepo.EnsureExists(ctx, &model.User{ID: event.UserID}); err != nil {
		log.Error("failed to ensure user for checkout", "user_id", event.UserID, sl.Err(err))
		return outcomeFailed, storeErr(op, err)
	}

	user, err := s.userRepo.GetByID(ctx, event.UserID)
	if err != nil {
		return outcomeFailed, storeErr(op, err)
	}

	sameRef := user.StripeCustomerID != nil && *user.StripeCustomerID == event.BillingRef
	if user.SubscriptionStatus == model.SubscriptionActive && sameRef {
		return outcomeUnchanged, nil
	}

	ref := event.BillingRef
	if _, err := s.userRepo.UpdateSubscription(ctx, user.ID, model.SubscriptionActive, &ref); err != nil {
		log.Error("failed to activate subscription", "user_id", user.ID, sl.Err(err))
		return outcomeFailed, storeErr(op, err)
	}

	s.changed(ctx, user.ID, user.SubscriptionStatus, model.SubscriptionActive, log)
	return outcomeApplied, nil
}

func (s *SubscriptionService) changed(ctx context.Context, userID, from, to string, log *slog.Logger) {
	log.Info("subscription status changed", "user_id", userID, "from", from, "to", to)
	s.metrics.SubscriptionStatus.WithLabelValues(to).Inc()

	err := s.notifier.Notify(ctx, &pubsub.Notification{
		Type:   pubsub.TypeSubscriptionChanged,
		UserID: userID,
		Data:   map[string]interface{}{"from": from, "status": to},
	})
	if err != nil {
		log.Warn("failed to publish subscription change", "user_id", userID, sl.Err(err))
	}
}

// StartCheckout 返回计费服务的结账页地址，结账会话携带用户 ID
func (s *SubscriptionService) StartCheckout(ctx context.Context, userID string) (string, error) {
	const op = "subscription.StartCheckout"

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return "", storeErr(op, err)
	}

	req := billing.CheckoutRequest{UserID: user.ID, Email: user.Email}
	if user.StripeCustomerID != nil {
		req.BillingRef = *user.StripeCustomerID
	}
	return s.provider.StartCheckout(ctx, req)
}

// OpenBillingPortal 返回账单门户地址，用户需已有账单引用
func (s *SubscriptionService) OpenBillingPortal(ctx context.Context, userID string) (string, error) {
	const op = "subscription.OpenBillingPortal"

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return "", storeErr(op, err)
	}
	if user.StripeCustomerID == nil || *user.StripeCustomerID == "" {
		return "", ErrNoBillingAccount
	}
	return s.provider.OpenBillingPortal(ctx, *user.StripeCustomerID)
}
