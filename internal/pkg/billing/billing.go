// Package billing 对接外部计费服务：结账、账单门户、webhook 事件解析
package billing

import (
	"context"
	"errors"
)

// EventKind 订阅状态机关心的计费事件类型
type EventKind string

const (
	EventCheckoutCompleted    EventKind = "checkout_completed"
	EventSubscriptionRenewed  EventKind = "subscription_renewed"
	EventSubscriptionCanceled EventKind = "subscription_canceled"
	EventPaymentFailed        EventKind = "payment_failed"
)

var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrInvalidPayload   = errors.New("invalid webhook payload")
	ErrNotConfigured    = errors.New("billing not configured")
)

// Event 已验签的计费事件。
// 除 checkout 外只携带 BillingRef，需要按引用反查用户。
type Event struct {
	ID         string    `json:"id"`
	Kind       EventKind `json:"kind"`
	UserID     string    `json:"user_id,omitempty"`
	BillingRef string    `json:"billing_ref"`
	RawStatus  string    `json:"raw_status,omitempty"`
}

// CheckoutRequest 发起结账所需信息，BillingRef 为空时由计费服务新建客户
type CheckoutRequest struct {
	UserID     string
	Email      string
	BillingRef string
}

type Provider interface {
	StartCheckout(ctx context.Context, req CheckoutRequest) (string, error)
	OpenBillingPortal(ctx context.Context, billingRef string) (string, error)
	// ParseWebhook 验签并解析事件，不关心的事件类型返回 nil, nil
	ParseWebhook(payload []byte, signature string) (*Event, error)
}
