package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"coloring-pages/internal/models"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	defaultProfilesCollection = "profiles"
	defaultLedgerCollection   = "processed_events"
	defaultMaxAttempts        = 5
)

type profileDocument struct {
	Email                  string     `firestore:"email"`
	FullName               string     `firestore:"full_name"`
	Credits                int64      `firestore:"credits"`
	SubscriptionTier       string     `firestore:"subscription_tier"`
	StripeCustomerID       string     `firestore:"stripe_customer_id,omitempty"`
	StripeSubscriptionID   string     `firestore:"stripe_subscription_id,omitempty"`
	SubscriptionCancelling bool       `firestore:"subscription_cancelling"`
	SubscriptionEndDate    *time.Time `firestore:"subscription_end_date,omitempty"`
	CreatedAt              time.Time  `firestore:"created_at"`
	UpdatedAt              time.Time  `firestore:"updated_at"`
}

type ledgerDocument struct {
	Source      string    `firestore:"source"`
	UserID      string    `firestore:"user_id"`
	Credits     int64     `firestore:"credits"`
	ProcessedAt time.Time `firestore:"processed_at"`
}

type FirestoreOption func(*FirestoreStore)

func WithProfilesCollection(name string) FirestoreOption {
	return func(s *FirestoreStore) {
		if name != "" {
			s.profiles = name
		}
	}
}

func WithLedgerCollection(name string) FirestoreOption {
	return func(s *FirestoreStore) {
		if name != "" {
			s.ledger = name
		}
	}
}

// FirestoreStore keeps profiles as documents keyed by user id. Grants run in
// a transaction that creates the ledger document and increments the balance.
type FirestoreStore struct {
	client      *firestore.Client
	profiles    string
	ledger      string
	maxAttempts int
	now         func() time.Time
}

// NewFirestoreClient connects with application default credentials, or with
// the given service account file when set.
func NewFirestoreClient(ctx context.Context, projectID, credentialsFile string) (*firestore.Client, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	return client, nil
}

func NewFirestoreStore(client *firestore.Client, opts ...FirestoreOption) *FirestoreStore {
	s := &FirestoreStore{
		client:      client,
		profiles:    defaultProfilesCollection,
		ledger:      defaultLedgerCollection,
		maxAttempts: defaultMaxAttempts,
		now:         time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *FirestoreStore) GetProfile(ctx context.Context, id string) (*models.Profile, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrNotFound
	}
	snap, err := s.client.Collection(s.profiles).Doc(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("firestore get profile %s: %w", id, err)
	}
	return decodeProfile(snap)
}

func (s *FirestoreStore) FindByCustomerID(ctx context.Context, customerID string) (*models.Profile, error) {
	if customerID == "" {
		return nil, ErrNotFound
	}
	return s.findOne(ctx, "stripe_customer_id", customerID)
}

func (s *FirestoreStore) FindByEmail(ctx context.Context, email string) (*models.Profile, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, ErrNotFound
	}
	return s.findOne(ctx, "email", email)
}

func (s *FirestoreStore) findOne(ctx context.Context, field, value string) (*models.Profile, error) {
	iter := s.client.Collection(s.profiles).Where(field, "==", value).Limit(1).Documents(ctx)
	defer iter.Stop()

	snap, err := iter.Next()
	if errors.Is(err, iterator.Done) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("firestore query profiles by %s: %w", field, err)
	}
	return decodeProfile(snap)
}

func (s *FirestoreStore) CreateProfile(ctx context.Context, p *models.Profile) error {
	now := s.now().UTC()
	if p.SubscriptionTier == "" {
		p.SubscriptionTier = models.TierFree
	}
	p.CreatedAt, p.UpdatedAt = now, now

	doc := profileDocument{
		Email:            p.Email,
		FullName:         p.FullName,
		Credits:          int64(p.Credits),
		SubscriptionTier: string(p.SubscriptionTier),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if _, err := s.client.Collection(s.profiles).Doc(p.ID).Create(ctx, doc); err != nil {
		return fmt.Errorf("firestore create profile %s: %w", p.ID, err)
	}
	return nil
}

func (s *FirestoreStore) ApplyCreditGrant(ctx context.Context, grant models.CreditGrant) (int, error) {
	profileRef := s.client.Collection(s.profiles).Doc(grant.UserID)
	var ledgerRef *firestore.DocumentRef
	if grant.IdempotencyKey != "" {
		ledgerRef = s.client.Collection(s.ledger).Doc(ledgerDocID(grant.IdempotencyKey))
	}

	now := s.now().UTC()
	var balance int

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if ledgerRef != nil {
			_, err := tx.Get(ledgerRef)
			switch status.Code(err) {
			case codes.NotFound:
			case codes.OK:
				return ErrAlreadyProcessed
			default:
				return err
			}
		}

		snap, err := tx.Get(profileRef)
		if status.Code(err) == codes.NotFound {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		var doc profileDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("firestore decode profile %s: %w", grant.UserID, err)
		}

		updates := []firestore.Update{
			{Path: "credits", Value: firestore.Increment(grant.Credits)},
			{Path: "updated_at", Value: now},
		}
		if grant.Tier != "" {
			updates = append(updates, firestore.Update{Path: "subscription_tier", Value: string(grant.Tier)})
		}
		if grant.CustomerID != "" && doc.StripeCustomerID == "" {
			updates = append(updates, firestore.Update{Path: "stripe_customer_id", Value: grant.CustomerID})
		}
		if grant.SubscriptionID != "" {
			updates = append(updates,
				firestore.Update{Path: "stripe_subscription_id", Value: grant.SubscriptionID},
				firestore.Update{Path: "subscription_cancelling", Value: false},
				firestore.Update{Path: "subscription_end_date", Value: firestore.Delete},
			)
		}

		if ledgerRef != nil {
			if err := tx.Create(ledgerRef, ledgerDocument{
				Source:      grant.Source,
				UserID:      grant.UserID,
				Credits:     int64(grant.Credits),
				ProcessedAt: now,
			}); err != nil {
				return err
			}
		}
		if err := tx.Update(profileRef, updates); err != nil {
			return err
		}
		balance = int(doc.Credits) + grant.Credits
		return nil
	}, firestore.MaxAttempts(s.maxAttempts))

	if errors.Is(err, ErrAlreadyProcessed) || errors.Is(err, ErrNotFound) {
		return 0, err
	}
	if err != nil {
		return 0, fmt.Errorf("firestore apply credit grant: %w", err)
	}
	return balance, nil
}

func (s *FirestoreStore) MarkSubscriptionCancelling(ctx context.Context, userID string, endsAt time.Time) error {
	_, err := s.client.Collection(s.profiles).Doc(userID).Update(ctx, []firestore.Update{
		{Path: "subscription_cancelling", Value: true},
		{Path: "subscription_end_date", Value: endsAt.UTC()},
		{Path: "updated_at", Value: s.now().UTC()},
	})
	if status.Code(err) == codes.NotFound {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("firestore mark cancelling %s: %w", userID, err)
	}
	return nil
}

// Ping reads a document that need not exist; only transport errors count.
func (s *FirestoreStore) Ping(ctx context.Context) error {
	_, err := s.client.Collection(s.profiles).Doc("_health").Get(ctx)
	if err != nil && status.Code(err) != codes.NotFound {
		return err
	}
	return nil
}

func (s *FirestoreStore) Close() error {
	return s.client.Close()
}

func decodeProfile(snap *firestore.DocumentSnapshot) (*models.Profile, error) {
	var doc profileDocument
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("firestore decode profile %s: %w", snap.Ref.ID, err)
	}
	return &models.Profile{
		ID:                     snap.Ref.ID,
		Email:                  doc.Email,
		FullName:               doc.FullName,
		Credits:                int(doc.Credits),
		SubscriptionTier:       models.SubscriptionTier(doc.SubscriptionTier),
		StripeCustomerID:       doc.StripeCustomerID,
		StripeSubscriptionID:   doc.StripeSubscriptionID,
		SubscriptionCancelling: doc.SubscriptionCancelling,
		SubscriptionEndDate:    doc.SubscriptionEndDate,
		CreatedAt:              doc.CreatedAt,
		UpdatedAt:              doc.UpdatedAt,
	}, nil
}

// ledgerDocID keeps keys valid as document ids, which may not contain '/'.
func ledgerDocID(key string) string {
	return strings.ReplaceAll(key, "/", "_")
}
