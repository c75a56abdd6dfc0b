package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"coloring-pages/internal/apperr"
	"coloring-pages/internal/db"
	"coloring-pages/pkg/logger"
)

type SubscriptionCanceller interface {
	CancelAtPeriodEnd(ctx context.Context, subscriptionID string) (time.Time, error)
}

type CancelResult struct {
	EndsAt time.Time
	// FormattedDate is EndsAt as shown to the user, e.g. "March 7, 2026".
	FormattedDate string
}

func (r CancelResult) Message() string {
	return "Subscription will be cancelled on " + r.FormattedDate
}

type Canceller struct {
	subs     SubscriptionCanceller
	profiles db.ProfileStore
	log      *logger.Logger
}

func NewCanceller(subs SubscriptionCanceller, profiles db.ProfileStore, log *logger.Logger) *Canceller {
	if log == nil {
		log = logger.NewNop()
	}
	return &Canceller{subs: subs, profiles: profiles, log: log}
}

// Cancel schedules the user's subscription to end with the current period.
// Access and credits stay until then.
func (c *Canceller) Cancel(ctx context.Context, userID string) (*CancelResult, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, apperr.MissingParameter("User ID is required")
	}

	profile, err := c.profiles.GetProfile(ctx, userID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, apperr.NotFound(apperr.CodeSubscriptionNotFound, "No active subscription found")
	}
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	if profile.StripeSubscriptionID == "" {
		c.log.Warnw("cancel requested without subscription", "user_id", userID, "customer_id", profile.StripeCustomerID)
		return nil, apperr.NotFound(apperr.CodeSubscriptionNotFound, "No active subscription found")
	}

	endsAt, err := c.subs.CancelAtPeriodEnd(ctx, profile.StripeSubscriptionID)
	if err != nil {
		c.log.Errorw("failed to cancel subscription", "user_id", userID, "subscription_id", profile.StripeSubscriptionID, "error", err)
		return nil, err
	}

	if err := c.profiles.MarkSubscriptionCancelling(ctx, userID, endsAt); err != nil {
		return nil, fmt.Errorf("mark subscription cancelling: %w", err)
	}

	c.log.Infow("subscription cancellation scheduled", "user_id", userID, "subscription_id", profile.StripeSubscriptionID, "ends_at", endsAt)
	return &CancelResult{EndsAt: endsAt, FormattedDate: endsAt.Format("January 2, 2006")}, nil
}
