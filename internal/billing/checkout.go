// Package billing turns catalog purchases into payment sessions and payment
// notifications into credit grants on user profiles.
package billing

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"coloring-pages/internal/apperr"
	"coloring-pages/internal/catalog"
	"coloring-pages/internal/db"
	"coloring-pages/internal/payment"
	"coloring-pages/pkg/logger"
)

// Metadata keys shared by the checkout builder and the webhook reconciler.
const (
	MetaUserID           = "userId"
	MetaCredits          = "credits"
	MetaPackageID        = "packageId"
	MetaPackageName      = "packageName"
	MetaIsSignup         = "isSignup"
	MetaTrialCredits     = "trial_credits"
	MetaRecurringCredits = "recurring_credits"
)

type CheckoutCreator interface {
	CreateCheckoutSession(ctx context.Context, req payment.CheckoutRequest) (*payment.CheckoutSession, error)
}

type CheckoutInput struct {
	UserID    string
	PackageID string
	// Origin is the scheme and host the buyer returns to.
	Origin string
}

type CheckoutResult struct {
	SessionID string
	URL       string
}

type CheckoutBuilder struct {
	payments CheckoutCreator
	profiles db.ProfileStore
	log      *logger.Logger
}

func NewCheckoutBuilder(payments CheckoutCreator, profiles db.ProfileStore, log *logger.Logger) *CheckoutBuilder {
	if log == nil {
		log = logger.NewNop()
	}
	return &CheckoutBuilder{payments: payments, profiles: profiles, log: log}
}

func (b *CheckoutBuilder) Build(ctx context.Context, in CheckoutInput) (*CheckoutResult, error) {
	userID := strings.TrimSpace(in.UserID)
	packageID := strings.TrimSpace(in.PackageID)
	if userID == "" {
		return nil, apperr.MissingParameter("User ID is required")
	}
	if packageID == "" {
		return nil, apperr.MissingParameter("Package ID is required")
	}

	pkg, ok := catalog.PackageByID(packageID)
	if !ok {
		b.log.Warnw("checkout for unknown package", "package_id", packageID, "user_id", userID)
		return nil, apperr.NotFound(apperr.CodePackageNotFound, "Invalid package selected")
	}

	profile, err := b.profiles.GetProfile(ctx, userID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, apperr.NotFound(apperr.CodeUserNotFound, "User not found")
	}
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}

	origin := strings.TrimRight(in.Origin, "/")
	credits := strconv.Itoa(pkg.Credits)
	req := payment.CheckoutRequest{
		CustomerEmail: profile.Email,
		UnitAmount:    pkg.PriceCents,
		SuccessURL:    origin + "/purchase/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:     origin + "/",
		Metadata: map[string]string{
			MetaUserID:      userID,
			MetaCredits:     credits,
			MetaPackageID:   pkg.ID,
			MetaPackageName: pkg.Name,
			MetaIsSignup:    "false",
		},
	}

	if pkg.IsTrialSubscription() {
		recurring := pkg.RecurringCredits
		if recurring <= 0 {
			recurring = catalog.RecurringCreditsDefault
		}
		recurringStr := strconv.Itoa(recurring)

		req.Subscription = true
		req.Interval = pkg.Interval
		req.TrialDays = pkg.TrialDays
		req.ProductName = pkg.Name + " - Subscription"
		req.Description = fmt.Sprintf("%s\n• %d credits to start\n• %d credits/month after trial", pkg.Description, pkg.Credits, recurring)
		req.Metadata[MetaTrialCredits] = credits
		req.Metadata[MetaRecurringCredits] = recurringStr
		req.ProductMetadata = map[string]string{
			MetaTrialCredits:     credits,
			MetaRecurringCredits: recurringStr,
		}
		req.SubscriptionMetadata = map[string]string{
			MetaUserID:           userID,
			MetaTrialCredits:     credits,
			MetaRecurringCredits: recurringStr,
		}
	} else {
		req.ProductName = fmt.Sprintf("%s - %d Credits", pkg.Name, pkg.Credits)
		req.Description = pkg.Description
	}

	sess, err := b.payments.CreateCheckoutSession(ctx, req)
	if err != nil {
		b.log.Errorw("failed to create checkout session", "user_id", userID, "package_id", pkg.ID, "error", err)
		return nil, err
	}

	b.log.Infow("checkout session created",
		"session_id", sess.ID,
		"user_id", userID,
		"package_id", pkg.ID,
		"subscription", req.Subscription,
	)
	return &CheckoutResult{SessionID: sess.ID, URL: sess.URL}, nil
}
