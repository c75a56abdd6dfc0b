package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"coloring-pages/internal/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v72"
)

type fakeSessions struct {
	params *stripe.CheckoutSessionParams
	err    error
}

func (f *fakeSessions) New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	f.params = params
	if f.err != nil {
		return nil, f.err
	}
	return &stripe.CheckoutSession{ID: "cs_test_1", URL: "https://checkout.stripe.com/c/cs_test_1"}, nil
}

type fakeSubs struct {
	updated  string
	params   *stripe.SubscriptionParams
	metadata map[string]string
}

func (f *fakeSubs) Get(id string, _ *stripe.SubscriptionParams) (*stripe.Subscription, error) {
	if f.metadata == nil {
		return nil, &stripe.Error{HTTPStatusCode: http.StatusNotFound, Msg: "No such subscription"}
	}
	return &stripe.Subscription{ID: id, Metadata: f.metadata}, nil
}

func (f *fakeSubs) Update(id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error) {
	f.updated = id
	f.params = params
	return &stripe.Subscription{ID: id, CurrentPeriodEnd: 1767225600}, nil
}

func TestCreateCheckoutSessionOneTime(t *testing.T) {
	sessions := &fakeSessions{}
	c := newStripeClient(Config{}, sessions, &fakeSubs{})

	sess, err := c.CreateCheckoutSession(t.Context(), CheckoutRequest{
		CustomerEmail: "a@example.com",
		ProductName:   "Starter - 5 Credits",
		UnitAmount:    799,
		Metadata:      map[string]string{"userId": "u1", "credits": "5"},
		SuccessURL:    "https://app/purchase/success",
		CancelURL:     "https://app/",
	})
	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", sess.ID)

	p := sessions.params
	assert.Equal(t, string(stripe.CheckoutSessionModePayment), stripe.StringValue(p.Mode))
	assert.Nil(t, p.SubscriptionData)
	require.Len(t, p.LineItems, 1)
	assert.Equal(t, "usd", stripe.StringValue(p.LineItems[0].PriceData.Currency))
	assert.EqualValues(t, 799, stripe.Int64Value(p.LineItems[0].PriceData.UnitAmount))
	assert.Nil(t, p.LineItems[0].PriceData.Recurring)
	assert.Equal(t, "u1", p.Metadata["userId"])
	assert.Equal(t, "a@example.com", stripe.StringValue(p.CustomerEmail))
}

func TestCreateCheckoutSessionSubscription(t *testing.T) {
	sessions := &fakeSessions{}
	c := newStripeClient(Config{Currency: "eur"}, sessions, &fakeSubs{})

	_, err := c.CreateCheckoutSession(t.Context(), CheckoutRequest{
		Subscription:         true,
		TrialDays:            15,
		ProductName:          "Trial",
		UnitAmount:           799,
		SubscriptionMetadata: map[string]string{"recurring_credits": "10"},
	})
	require.NoError(t, err)

	p := sessions.params
	assert.Equal(t, string(stripe.CheckoutSessionModeSubscription), stripe.StringValue(p.Mode))
	require.NotNil(t, p.SubscriptionData)
	assert.EqualValues(t, 15, stripe.Int64Value(p.SubscriptionData.TrialPeriodDays))
	assert.Equal(t, "10", p.SubscriptionData.Metadata["recurring_credits"])
	assert.Equal(t, "month", stripe.StringValue(p.LineItems[0].PriceData.Recurring.Interval))
	assert.Equal(t, "eur", stripe.StringValue(p.LineItems[0].PriceData.Currency))
}

func TestCreateCheckoutSessionMapsStripeError(t *testing.T) {
	sessions := &fakeSessions{err: &stripe.Error{HTTPStatusCode: http.StatusPaymentRequired, Msg: "card declined"}}
	c := newStripeClient(Config{}, sessions, &fakeSubs{})

	_, err := c.CreateCheckoutSession(t.Context(), CheckoutRequest{ProductName: "x"})
	require.Error(t, err)
	assert.Equal(t, http.StatusPaymentRequired, apperr.StatusOf(err))

	sessions.err = errors.New("connection reset")
	_, err = c.CreateCheckoutSession(t.Context(), CheckoutRequest{ProductName: "x"})
	assert.Equal(t, http.StatusBadGateway, apperr.StatusOf(err))
}

func TestCancelAtPeriodEnd(t *testing.T) {
	subs := &fakeSubs{}
	c := newStripeClient(Config{}, &fakeSessions{}, subs)

	end, err := c.CancelAtPeriodEnd(t.Context(), "sub_1")
	require.NoError(t, err)
	assert.Equal(t, "sub_1", subs.updated)
	assert.True(t, stripe.BoolValue(subs.params.CancelAtPeriodEnd))
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), end)
}

func TestSubscriptionMetadata(t *testing.T) {
	subs := &fakeSubs{metadata: map[string]string{"recurring_credits": "12"}}
	c := newStripeClient(Config{}, &fakeSessions{}, subs)

	md, err := c.SubscriptionMetadata(t.Context(), "sub_1")
	require.NoError(t, err)
	assert.Equal(t, "12", md["recurring_credits"])

	subs.metadata = nil
	_, err = c.SubscriptionMetadata(t.Context(), "sub_missing")
	assert.Equal(t, http.StatusNotFound, apperr.StatusOf(err))
}

func signPayload(secret string, payload []byte, ts time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts.Unix(), payload)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func TestVerifyWebhookSignature(t *testing.T) {
	c := newStripeClient(Config{WebhookKey: "whsec_test"}, &fakeSessions{}, &fakeSubs{})
	payload := []byte(`{"id":"evt_1","object":"event","type":"checkout.session.completed","data":{"object":{"id":"cs_1"}}}`)

	event, err := c.VerifyWebhookSignature(payload, signPayload("whsec_test", payload, time.Now()))
	require.NoError(t, err)
	assert.Equal(t, "evt_1", event.ID)
	assert.Equal(t, "checkout.session.completed", event.Type)

	_, err = c.VerifyWebhookSignature(payload, signPayload("whsec_other", payload, time.Now()))
	assert.Error(t, err)

	unconfigured := newStripeClient(Config{}, &fakeSessions{}, &fakeSubs{})
	_, err = unconfigured.VerifyWebhookSignature(payload, "t=1,v1=00")
	assert.ErrorContains(t, err, "not configured")
}
