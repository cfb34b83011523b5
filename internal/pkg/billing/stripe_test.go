package billing

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79/webhook"
)

const testWebhookSecret = "whsec_test_secret"

func newTestStripeProvider(t *testing.T) *StripeProvider {
	t.Helper()

	p, err := NewStripeProvider(StripeConfig{
		SecretKey:     "sk_test_123",
		WebhookSecret: testWebhookSecret,
		PriceID:       "price_123",
		FrontendURL:   "http://localhost:3000/",
	})
	require.NoError(t, err)
	return p
}

func signed(payload string) *webhook.SignedPayload {
	return webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    testWebhookSecret,
		Timestamp: time.Now(),
	})
}

func TestNewStripeProvider_RequiresConfig(t *testing.T) {
	_, err := NewStripeProvider(StripeConfig{SecretKey: "sk_test"})
	assert.True(t, errors.Is(err, ErrNotConfigured))
}

func TestStripeProvider_ParseWebhook(t *testing.T) {
	p := newTestStripeProvider(t)

	tests := []struct {
		name    string
		payload string
		want    *Event
	}{
		{
			name: "checkout completed",
			payload: `{"id":"evt_1","object":"event","type":"checkout.session.completed",
				"data":{"object":{"id":"cs_1","object":"checkout.session","client_reference_id":"u1","customer":"c1"}}}`,
			want: &Event{ID: "evt_1", Kind: EventCheckoutCompleted, UserID: "u1", BillingRef: "c1"},
		},
		{
			name: "subscription updated past due",
			payload: `{"id":"evt_2","object":"event","type":"customer.subscription.updated",
				"data":{"object":{"id":"sub_1","object":"subscription","customer":"c1","status":"past_due"}}}`,
			want: &Event{ID: "evt_2", Kind: EventSubscriptionRenewed, BillingRef: "c1", RawStatus: "past_due"},
		},
		{
			name: "subscription deleted",
			payload: `{"id":"evt_3","object":"event","type":"customer.subscription.deleted",
				"data":{"object":{"id":"sub_1","object":"subscription","customer":"c1","status":"canceled"}}}`,
			want: &Event{ID: "evt_3", Kind: EventSubscriptionCanceled, BillingRef: "c1"},
		},
		{
			name: "invoice paid",
			payload: `{"id":"evt_4","object":"event","type":"invoice.payment_succeeded",
				"data":{"object":{"id":"in_1","object":"invoice","customer":"c1"}}}`,
			want: &Event{ID: "evt_4", Kind: EventSubscriptionRenewed, BillingRef: "c1", RawStatus: "active"},
		},
		{
			name: "invoice failed",
			payload: `{"id":"evt_5","object":"event","type":"invoice.payment_failed",
				"data":{"object":{"id":"in_2","object":"invoice","customer":"c1"}}}`,
			want: &Event{ID: "evt_5", Kind: EventPaymentFailed, BillingRef: "c1"},
		},
		{
			name: "ignored type",
			payload: `{"id":"evt_6","object":"event","type":"customer.created",
				"data":{"object":{"id":"c1","object":"customer"}}}`,
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sp := signed(tt.payload)

			got, err := p.ParseWebhook(sp.Payload, sp.Header)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStripeProvider_ParseWebhook_BadSignature(t *testing.T) {
	p := newTestStripeProvider(t)
	sp := signed(`{"id":"evt_1","object":"event","type":"invoice.paid","data":{"object":{"customer":"c1"}}}`)

	_, err := p.ParseWebhook(sp.Payload, "t=1,v1=deadbeef")
	assert.True(t, errors.Is(err, ErrInvalidSignature))
}

func TestStripeProvider_ParseWebhook_UnmatchedEventsStillParse(t *testing.T) {
	p := newTestStripeProvider(t)

	tests := []struct {
		name    string
		payload string
		want    *Event
	}{
		{
			name: "checkout without customer",
			payload: `{"id":"evt_1","object":"event","type":"checkout.session.completed",
				"data":{"object":{"id":"cs_1","object":"checkout.session","client_reference_id":"u1"}}}`,
			want: &Event{ID: "evt_1", Kind: EventCheckoutCompleted, UserID: "u1"},
		},
		{
			name: "checkout without client reference",
			payload: `{"id":"evt_2","object":"event","type":"checkout.session.completed",
				"data":{"object":{"id":"cs_2","object":"checkout.session","customer":"c9"}}}`,
			want: &Event{ID: "evt_2", Kind: EventCheckoutCompleted, BillingRef: "c9"},
		},
		{
			name: "invoice without customer",
			payload: `{"id":"evt_3","object":"event","type":"invoice.paid",
				"data":{"object":{"id":"in_1","object":"invoice"}}}`,
			want: &Event{ID: "evt_3", Kind: EventSubscriptionRenewed, RawStatus: "active"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sp := signed(tt.payload)

			got, err := p.ParseWebhook(sp.Payload, sp.Header)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStripeProvider_ParseWebhook_UndecodableObject(t *testing.T) {
	p := newTestStripeProvider(t)
	sp := signed(`{"id":"evt_1","object":"event","type":"checkout.session.completed",
		"data":{"object":{"id":"cs_1","object":"checkout.session","client_reference_id":42}}}`)

	_, err := p.ParseWebhook(sp.Payload, sp.Header)
	assert.True(t, errors.Is(err, ErrInvalidPayload))
}
