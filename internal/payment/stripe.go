// internal/payment/stripe.go
package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"coloring-pages/internal/apperr"

	"github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/client"
	"github.com/stripe/stripe-go/v72/webhook"
)

type Config struct {
	SecretKey  string
	PublicKey  string
	WebhookKey string
	Currency   string
}

type checkoutSessions interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

type subscriptions interface {
	Get(id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error)
	Update(id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error)
}

type StripeClient struct {
	publicKey     string
	webhookSecret string
	currency      string
	sessions      checkoutSessions
	subs          subscriptions
}

func NewStripeClient(cfg Config) *StripeClient {
	api := client.New(cfg.SecretKey, nil)
	return newStripeClient(cfg, api.CheckoutSessions, api.Subscriptions)
}

func newStripeClient(cfg Config, sessions checkoutSessions, subs subscriptions) *StripeClient {
	currency := cfg.Currency
	if currency == "" {
		currency = string(stripe.CurrencyUSD)
	}
	return &StripeClient{
		publicKey:     cfg.PublicKey,
		webhookSecret: cfg.WebhookKey,
		currency:      currency,
		sessions:      sessions,
		subs:          subs,
	}
}

func (s *StripeClient) PublicKey() string {
	return s.publicKey
}

// CheckoutRequest describes a single-line-item hosted checkout.
type CheckoutRequest struct {
	Subscription  bool
	CustomerEmail string
	ProductName   string
	Description   string
	UnitAmount    int64
	TrialDays     int64
	// Interval is the billing interval of a subscription, e.g. "month".
	Interval             string
	Metadata             map[string]string
	ProductMetadata      map[string]string
	SubscriptionMetadata map[string]string
	SuccessURL           string
	CancelURL            string
	ClientReferenceID    string
}

type CheckoutSession struct {
	ID  string
	URL string
}

func (s *StripeClient) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	priceData := &stripe.CheckoutSessionLineItemPriceDataParams{
		Currency:   stripe.String(s.currency),
		UnitAmount: stripe.Int64(req.UnitAmount),
		ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
			Name:     stripe.String(req.ProductName),
			Metadata: req.ProductMetadata,
		},
	}
	if req.Description != "" {
		priceData.ProductData.Description = stripe.String(req.Description)
	}

	params := &stripe.CheckoutSessionParams{
		PaymentMethodTypes: stripe.StringSlice([]string{
			"card",
		}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: priceData,
				Quantity:  stripe.Int64(1),
			},
		},
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
	}
	params.Context = ctx

	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	if req.ClientReferenceID != "" {
		params.ClientReferenceID = stripe.String(req.ClientReferenceID)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	if req.Subscription {
		interval := req.Interval
		if interval == "" {
			interval = "month"
		}
		params.Mode = stripe.String(string(stripe.CheckoutSessionModeSubscription))
		priceData.Recurring = &stripe.CheckoutSessionLineItemPriceDataRecurringParams{
			Interval: stripe.String(interval),
		}
		params.SubscriptionData = &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: req.SubscriptionMetadata,
		}
		if req.TrialDays > 0 {
			params.SubscriptionData.TrialPeriodDays = stripe.Int64(req.TrialDays)
		}
	}

	sess, err := s.sessions.New(params)
	if err != nil {
		return nil, stripeError("create checkout session", err)
	}
	return &CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

// VerifyWebhookSignature checks the Stripe-Signature header against the raw body.
func (s *StripeClient) VerifyWebhookSignature(payload []byte, sig string) (stripe.Event, error) {
	if s.webhookSecret == "" {
		return stripe.Event{}, fmt.Errorf("webhook secret is not configured")
	}
	return webhook.ConstructEvent(payload, sig, s.webhookSecret)
}

// SubscriptionMetadata returns the metadata stored on a subscription.
func (s *StripeClient) SubscriptionMetadata(ctx context.Context, subscriptionID string) (map[string]string, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	sub, err := s.subs.Get(subscriptionID, params)
	if err != nil {
		return nil, stripeError("get subscription", err)
	}
	return sub.Metadata, nil
}

// CancelAtPeriodEnd schedules cancellation and returns when access ends.
func (s *StripeClient) CancelAtPeriodEnd(ctx context.Context, subscriptionID string) (time.Time, error) {
	params := &stripe.SubscriptionParams{
		CancelAtPeriodEnd: stripe.Bool(true),
	}
	params.Context = ctx
	sub, err := s.subs.Update(subscriptionID, params)
	if err != nil {
		return time.Time{}, stripeError("cancel subscription", err)
	}
	return time.Unix(sub.CurrentPeriodEnd, 0).UTC(), nil
}

func stripeError(op string, err error) error {
	status := http.StatusBadGateway
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode != 0 {
		status = stripeErr.HTTPStatusCode
	}
	return apperr.Upstream(status, fmt.Errorf("%s: %w", op, err))
}
