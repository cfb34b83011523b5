package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"github.com/stripe/stripe-go/v79/webhook"
)

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	PriceID       string
	FrontendURL   string
}

// StripeProvider 基于 Stripe Checkout / Billing Portal 的实现
type StripeProvider struct {
	api           *client.API
	webhookSecret string
	priceID       string
	frontendURL   string
}

func NewStripeProvider(cfg StripeConfig) (*StripeProvider, error) {
	if cfg.SecretKey == "" || cfg.WebhookSecret == "" || cfg.PriceID == "" {
		return nil, ErrNotConfigured
	}

	api := &client.API{}
	api.Init(cfg.SecretKey, nil)

	return &StripeProvider{
		api:           api,
		webhookSecret: cfg.WebhookSecret,
		priceID:       cfg.PriceID,
		frontendURL:   strings.TrimRight(cfg.FrontendURL, "/"),
	}, nil
}

func (p *StripeProvider) StartCheckout(ctx context.Context, req CheckoutRequest) (string, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		ClientReferenceID: stripe.String(req.UserID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(p.priceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(p.frontendURL + "/billing/success"),
		CancelURL:  stripe.String(p.frontendURL + "/billing/cancel"),
	}
	if req.BillingRef != "" {
		params.Customer = stripe.String(req.BillingRef)
	} else if req.Email != "" {
		params.CustomerEmail = stripe.String(req.Email)
	}
	params.AddMetadata("user_id", req.UserID)
	params.Context = ctx

	sess, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe checkout session: %w", err)
	}
	return sess.URL, nil
}

func (p *StripeProvider) OpenBillingPortal(ctx context.Context, billingRef string) (string, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(billingRef),
		ReturnURL: stripe.String(p.frontendURL + "/settings/billing"),
	}
	params.Context = ctx

	sess, err := p.api.BillingPortalSessions.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe portal session: %w", err)
	}
	return sess.URL, nil
}

func (p *StripeProvider) ParseWebhook(payload []byte, signature string) (*Event, error) {
	event, err := webhook.ConstructEventWithOptions(
		payload,
		signature,
		p.webhookSecret,
		webhook.ConstructEventOptions{
			IgnoreAPIVersionMismatch: true,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}
	return mapStripeEvent(event)
}

func mapStripeEvent(event stripe.Event) (*Event, error) {
	out := &Event{ID: event.ID}

	switch string(event.Type) {
	case "checkout.session.completed":
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
		}
		out.Kind = EventCheckoutCompleted
		out.UserID = sess.ClientReferenceID
		if out.UserID == "" {
			out.UserID = sess.Metadata["user_id"]
		}
		if sess.Customer != nil {
			out.BillingRef = sess.Customer.ID
		}

	case "customer.subscription.created", "customer.subscription.updated", "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
		}
		if sub.Customer != nil {
			out.BillingRef = sub.Customer.ID
		}
		if string(event.Type) == "customer.subscription.deleted" {
			out.Kind = EventSubscriptionCanceled
		} else {
			out.Kind = EventSubscriptionRenewed
			out.RawStatus = string(sub.Status)
		}

	case "invoice.payment_succeeded", "invoice.paid", "invoice.payment_failed":
		var inv stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
		}
		if inv.Customer != nil {
			out.BillingRef = inv.Customer.ID
		}
		if string(event.Type) == "invoice.payment_failed" {
			out.Kind = EventPaymentFailed
		} else {
			out.Kind = EventSubscriptionRenewed
			out.RawStatus = string(stripe.SubscriptionStatusActive)
		}

	default:
		return nil, nil
	}

	// 缺少用户或客户的事件照常返回，由订阅服务记录后丢弃
	return out, nil
}
