package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"coloring-pages/internal/apperr"
	"coloring-pages/internal/catalog"
	"coloring-pages/internal/db"
	"coloring-pages/internal/models"
	"coloring-pages/pkg/logger"

	"github.com/stripe/stripe-go/v72"
)

const (
	EventCheckoutCompleted = "checkout.session.completed"
	EventInvoicePaid       = "invoice.payment_succeeded"

	SourceStripe     = "stripe"
	SourceGrooveSell = "groovesell"
)

type SubscriptionReader interface {
	SubscriptionMetadata(ctx context.Context, subscriptionID string) (map[string]string, error)
}

// Outcome describes what a webhook delivery did to the ledger.
type Outcome struct {
	// Duplicate is set when the event was already applied earlier.
	Duplicate    bool
	Ignored      bool
	UserID       string
	CreditsAdded int
	NewBalance   int
	Message      string
}

// Reconciler applies payment notifications to profiles. It only ever adds
// credits, and every grant it issues carries the upstream event id.
type Reconciler struct {
	profiles db.ProfileStore
	subs     SubscriptionReader
	log      *logger.Logger
}

func NewReconciler(profiles db.ProfileStore, subs SubscriptionReader, log *logger.Logger) *Reconciler {
	if log == nil {
		log = logger.NewNop()
	}
	return &Reconciler{profiles: profiles, subs: subs, log: log}
}

// HandleStripeEvent processes a verified Stripe event.
func (r *Reconciler) HandleStripeEvent(ctx context.Context, event stripe.Event) (*Outcome, error) {
	log := r.log.With("event_id", event.ID, "event_type", event.Type)

	switch event.Type {
	case EventCheckoutCompleted:
		return r.checkoutCompleted(ctx, log, event)
	case EventInvoicePaid:
		return r.invoicePaid(ctx, log, event)
	default:
		log.Debugw("stripe event ignored")
		return &Outcome{Ignored: true, Message: "Event acknowledged"}, nil
	}
}

func (r *Reconciler) checkoutCompleted(ctx context.Context, log *logger.Logger, event stripe.Event) (*Outcome, error) {
	var sess stripe.CheckoutSession
	if err := decodeEventObject(event, &sess); err != nil {
		return nil, err
	}

	userID := strings.TrimSpace(sess.Metadata[MetaUserID])
	if userID == "" {
		log.Errorw("checkout session has no userId metadata", "session_id", sess.ID)
		return nil, apperr.Validation(apperr.CodeMissingMetadata, "Missing userId")
	}

	subscription := sess.Mode == stripe.CheckoutSessionModeSubscription
	raw := sess.Metadata[MetaCredits]
	if subscription && sess.Metadata[MetaTrialCredits] != "" {
		raw = sess.Metadata[MetaTrialCredits]
	}
	credits, err := positiveInt(raw)
	if err != nil {
		log.Errorw("checkout session has bad credit metadata", "session_id", sess.ID, "value", raw)
		return nil, apperr.Validation(apperr.CodeMissingMetadata, "Missing or invalid credits metadata")
	}

	grant := models.CreditGrant{
		IdempotencyKey: event.ID,
		Source:         SourceStripe,
		UserID:         userID,
		Credits:        credits,
	}
	if sess.Customer != nil {
		grant.CustomerID = sess.Customer.ID
	}
	if subscription {
		grant.Tier = models.TierPro
		if sess.Subscription != nil {
			grant.SubscriptionID = sess.Subscription.ID
		}
	}

	out, err := r.apply(ctx, log, grant)
	if err != nil {
		return nil, err
	}
	log.Infow("checkout credits applied",
		"session_id", sess.ID,
		"mode", sess.Mode,
		"user_id", userID,
		"credits", credits,
		"balance", out.NewBalance,
		"duplicate", out.Duplicate,
	)
	return out, nil
}

func (r *Reconciler) invoicePaid(ctx context.Context, log *logger.Logger, event stripe.Event) (*Outcome, error) {
	var inv stripe.Invoice
	if err := decodeEventObject(event, &inv); err != nil {
		return nil, err
	}

	customerID := ""
	if inv.Customer != nil {
		customerID = inv.Customer.ID
	}
	profile, err := r.profiles.FindByCustomerID(ctx, customerID)
	if errors.Is(err, db.ErrNotFound) {
		log.Errorw("no profile for stripe customer", "customer_id", customerID, "invoice_id", inv.ID)
		return nil, apperr.NotFound(apperr.CodeUserNotFound, "User not found")
	}
	if err != nil {
		return nil, fmt.Errorf("find profile by customer: %w", err)
	}

	credits := catalog.RecurringCreditsDefault
	if inv.Subscription != nil && inv.Subscription.ID != "" {
		md, err := r.subs.SubscriptionMetadata(ctx, inv.Subscription.ID)
		if err != nil {
			return nil, err
		}
		if n, err := positiveInt(md[MetaRecurringCredits]); err == nil {
			credits = n
		}
	}

	out, err := r.apply(ctx, log, models.CreditGrant{
		IdempotencyKey: event.ID,
		Source:         SourceStripe,
		UserID:         profile.ID,
		Credits:        credits,
	})
	if err != nil {
		return nil, err
	}
	log.Infow("recurring credits applied",
		"invoice_id", inv.ID,
		"amount_paid", inv.AmountPaid,
		"user_id", profile.ID,
		"credits", credits,
		"balance", out.NewBalance,
		"duplicate", out.Duplicate,
	)
	return out, nil
}

func (r *Reconciler) apply(ctx context.Context, log *logger.Logger, grant models.CreditGrant) (*Outcome, error) {
	if grant.IdempotencyKey == "" {
		log.Warnw("applying credit grant without idempotency key", "user_id", grant.UserID, "source", grant.Source)
	}
	balance, err := r.profiles.ApplyCreditGrant(ctx, grant)
	switch {
	case errors.Is(err, db.ErrAlreadyProcessed):
		return &Outcome{Duplicate: true, UserID: grant.UserID, Message: "Event already processed"}, nil
	case errors.Is(err, db.ErrNotFound):
		return nil, apperr.NotFound(apperr.CodeUserNotFound, "User not found")
	case err != nil:
		return nil, fmt.Errorf("apply credit grant: %w", err)
	}
	return &Outcome{
		UserID:       grant.UserID,
		CreditsAdded: grant.Credits,
		NewBalance:   balance,
	}, nil
}

func decodeEventObject(event stripe.Event, v any) error {
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return apperr.Validation(apperr.CodeInvalidParameter, "event has no data object")
	}
	if err := json.Unmarshal(event.Data.Raw, v); err != nil {
		return apperr.Validation(apperr.CodeInvalidParameter, fmt.Sprintf("malformed %s payload: %v", event.Type, err))
	}
	return nil
}

func positiveInt(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("must be positive, got %d", n)
	}
	return n, nil
}
