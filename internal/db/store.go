package db

import (
	"context"
	"errors"
	"time"

	"coloring-pages/internal/models"
)

var (
	ErrNotFound = errors.New("profile not found")
	// ErrAlreadyProcessed is returned when a grant's idempotency key is
	// already in the ledger. Nothing was changed.
	ErrAlreadyProcessed = errors.New("event already processed")
)

// ProfileStore is the persistence surface the billing layer depends on.
type ProfileStore interface {
	GetProfile(ctx context.Context, id string) (*models.Profile, error)
	FindByCustomerID(ctx context.Context, customerID string) (*models.Profile, error)
	FindByEmail(ctx context.Context, email string) (*models.Profile, error)
	CreateProfile(ctx context.Context, p *models.Profile) error
	// ApplyCreditGrant adds grant.Credits atomically and records the
	// idempotency key in the same unit of work. It returns the new balance.
	ApplyCreditGrant(ctx context.Context, grant models.CreditGrant) (int, error)
	MarkSubscriptionCancelling(ctx context.Context, userID string, endsAt time.Time) error
	Ping(ctx context.Context) error
	Close() error
}
