// Package catalog defines the purchasable credit packages and the
// sales-channel product grants. Entries are fixed at build time.
package catalog

import (
	"fmt"

	"coloring-pages/internal/models"
)

type PackageType string

const (
	TypeTrial        PackageType = "trial"
	TypeSubscription PackageType = "subscription"
	TypeUpgrade      PackageType = "upgrade"
)

// RecurringCreditsDefault is granted per paid renewal when the subscription
// carries no recurring_credits metadata.
const RecurringCreditsDefault = 10

type Package struct {
	ID               string      `json:"id"`
	Name             string      `json:"name"`
	Credits          int         `json:"credits"`
	PriceCents       int64       `json:"price"`
	PriceDisplay     string      `json:"priceDisplay"`
	Type             PackageType `json:"type"`
	Interval         string      `json:"interval,omitempty"`
	TrialDays        int64       `json:"trialDays,omitempty"`
	RecurringCredits int         `json:"recurringCredits,omitempty"`
	Description      string      `json:"description"`
	Features         []string    `json:"features,omitempty"`
}

// IsTrialSubscription reports whether checkout must start a recurring
// subscription with a trial period rather than take a one-time payment.
func (p Package) IsTrialSubscription() bool {
	return p.Type == TypeTrial && p.Interval == "month" && p.TrialDays > 0
}

var packages = []Package{
	{
		ID:               "trial-subscription",
		Name:             "Family Keepsake Trial",
		Credits:          5,
		PriceCents:       799,
		PriceDisplay:     "$7.99",
		Type:             TypeTrial,
		Interval:         "month",
		TrialDays:        15,
		RecurringCredits: RecurringCreditsDefault,
		Description:      "15-day trial, then $14.99/month",
		Features: []string{
			"5 coloring page credits to start",
			"15-day trial period",
			"After trial: $14.99/month for 10 credits",
			"Cancel anytime",
		},
	},
	{
		ID:           "credits-5",
		Name:         "Extra Credits",
		Credits:      5,
		PriceCents:   799,
		PriceDisplay: "$7.99",
		Type:         TypeTrial,
		Description:  "One-time purchase - 5 credits",
		Features: []string{
			"5 coloring page credits",
			"One-time payment",
			"No subscription",
			"Credits never expire",
		},
	},
}

// Packages returns a copy of the catalog in display order.
func Packages() []Package {
	out := make([]Package, len(packages))
	copy(out, packages)
	return out
}

func PackageByID(id string) (Package, bool) {
	for _, p := range packages {
		if p.ID == id {
			return p, true
		}
	}
	return Package{}, false
}

// PricePerCredit formats the per-credit price in dollars with two decimals.
func PricePerCredit(priceCents int64, credits int) string {
	if credits <= 0 {
		return "0.00"
	}
	return fmt.Sprintf("%.2f", float64(priceCents)/float64(credits)/100)
}

// Grant is what a sales-channel product entitles the buyer to.
type Grant struct {
	Credits int
	Tier    models.SubscriptionTier
}

var productGrants = map[string]Grant{
	"90143": {Credits: 5, Tier: models.TierTrial}, // Photo Coloring Pages - Family Keepsake
}

var (
	// DefaultPurchaseGrant applies to purchases of products missing from the
	// map so a real sale is never stranded by catalog drift.
	DefaultPurchaseGrant = Grant{Credits: 5, Tier: models.TierTrial}
	DefaultRenewalGrant  = Grant{Credits: RecurringCreditsDefault, Tier: models.TierPremium}
)

func ProductGrant(productID string) (Grant, bool) {
	g, ok := productGrants[productID]
	return g, ok
}

// ProductIDs lists the configured sales-channel product ids.
func ProductIDs() []string {
	ids := make([]string, 0, len(productGrants))
	for id := range productGrants {
		ids = append(ids, id)
	}
	return ids
}
