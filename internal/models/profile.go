// internal/models/profile.go
package models

import (
	"time"
)

type SubscriptionTier string

const (
	TierFree    SubscriptionTier = "free"
	TierTrial   SubscriptionTier = "trial"
	TierPremium SubscriptionTier = "premium"
	TierPro     SubscriptionTier = "pro"
)

// Valid reports whether t is one of the known tiers.
func (t SubscriptionTier) Valid() bool {
	switch t {
	case TierFree, TierTrial, TierPremium, TierPro:
		return true
	}
	return false
}

type Profile struct {
	ID                     string           `json:"id"`
	Email                  string           `json:"email"`
	FullName               string           `json:"full_name"`
	Credits                int              `json:"credits"`
	SubscriptionTier       SubscriptionTier `json:"subscription_tier"`
	StripeCustomerID       string           `json:"stripe_customer_id,omitempty"`
	StripeSubscriptionID   string           `json:"stripe_subscription_id,omitempty"`
	SubscriptionCancelling bool             `json:"subscription_cancelling"`
	SubscriptionEndDate    *time.Time       `json:"subscription_end_date,omitempty"`
	CreatedAt              time.Time        `json:"created_at"`
	UpdatedAt              time.Time        `json:"updated_at"`
}

// CreditGrant is an additive balance mutation produced by webhook reconciliation.
type CreditGrant struct {
	// IdempotencyKey identifies the upstream event; empty means unguarded.
	IdempotencyKey string
	Source         string
	UserID         string
	Credits        int
	// Tier, CustomerID and SubscriptionID are left untouched when empty.
	Tier           SubscriptionTier
	CustomerID     string
	SubscriptionID string
}
