package billing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
)

// MockProvider 确定性的本地实现，webhook 签名为 payload 的 HMAC-SHA256 十六进制值
type MockProvider struct {
	secret      string
	frontendURL string

	mu        sync.Mutex
	checkouts []CheckoutRequest
}

func NewMockProvider(secret, frontendURL string) *MockProvider {
	return &MockProvider{secret: secret, frontendURL: strings.TrimRight(frontendURL, "/")}
}

func (m *MockProvider) StartCheckout(_ context.Context, req CheckoutRequest) (string, error) {
	m.mu.Lock()
	m.checkouts = append(m.checkouts, req)
	m.mu.Unlock()

	return fmt.Sprintf("%s/billing/mock-checkout?user=%s", m.frontendURL, url.QueryEscape(req.UserID)), nil
}

func (m *MockProvider) OpenBillingPortal(_ context.Context, billingRef string) (string, error) {
	return fmt.Sprintf("%s/billing/mock-portal?customer=%s", m.frontendURL, url.QueryEscape(billingRef)), nil
}

// Checkouts 返回已发起的结账请求
func (m *MockProvider) Checkouts() []CheckoutRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]CheckoutRequest(nil), m.checkouts...)
}

// Sign 计算 payload 的签名，供测试和本地调试构造 webhook
func (m *MockProvider) Sign(payload []byte) string {
	mac := hmac.New(sha256.New, []byte(m.secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func (m *MockProvider) ParseWebhook(payload []byte, signature string) (*Event, error) {
	if !hmac.Equal([]byte(m.Sign(payload)), []byte(signature)) {
		return nil, ErrInvalidSignature
	}

	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	switch event.Kind {
	case EventCheckoutCompleted, EventSubscriptionRenewed, EventSubscriptionCanceled, EventPaymentFailed:
		return &event, nil
	default:
		return nil, nil
	}
}
