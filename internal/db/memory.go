package db

import (
	"context"
	"strings"
	"sync"
	"time"

	"coloring-pages/internal/models"
)

// MemoryStore keeps profiles in process. It backs local runs and tests.
type MemoryStore struct {
	mu        sync.Mutex
	profiles  map[string]*models.Profile
	processed map[string]struct{}
	now       func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		profiles:  make(map[string]*models.Profile),
		processed: make(map[string]struct{}),
		now:       time.Now,
	}
}

func (m *MemoryStore) GetProfile(_ context.Context, id string) (*models.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(p), nil
}

func (m *MemoryStore) FindByCustomerID(_ context.Context, customerID string) (*models.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if customerID == "" {
		return nil, ErrNotFound
	}
	for _, p := range m.profiles {
		if p.StripeCustomerID == customerID {
			return clone(p), nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) FindByEmail(_ context.Context, email string) (*models.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.profiles {
		if strings.EqualFold(p.Email, email) {
			return clone(p), nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) CreateProfile(_ context.Context, p *models.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	if p.SubscriptionTier == "" {
		p.SubscriptionTier = models.TierFree
	}
	m.profiles[p.ID] = clone(p)
	return nil
}

func (m *MemoryStore) ApplyCreditGrant(_ context.Context, grant models.CreditGrant) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.profiles[grant.UserID]
	if !ok {
		return 0, ErrNotFound
	}
	if grant.IdempotencyKey != "" {
		if _, seen := m.processed[grant.IdempotencyKey]; seen {
			return p.Credits, ErrAlreadyProcessed
		}
		m.processed[grant.IdempotencyKey] = struct{}{}
	}

	p.Credits += grant.Credits
	if grant.Tier != "" {
		p.SubscriptionTier = grant.Tier
	}
	if grant.CustomerID != "" && p.StripeCustomerID == "" {
		p.StripeCustomerID = grant.CustomerID
	}
	if grant.SubscriptionID != "" {
		p.StripeSubscriptionID = grant.SubscriptionID
		p.SubscriptionCancelling = false
		p.SubscriptionEndDate = nil
	}
	p.UpdatedAt = m.now().UTC()
	return p.Credits, nil
}

func (m *MemoryStore) MarkSubscriptionCancelling(_ context.Context, userID string, endsAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[userID]
	if !ok {
		return ErrNotFound
	}
	end := endsAt.UTC()
	p.SubscriptionCancelling = true
	p.SubscriptionEndDate = &end
	p.UpdatedAt = m.now().UTC()
	return nil
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }

func clone(p *models.Profile) *models.Profile {
	c := *p
	if p.SubscriptionEndDate != nil {
		end := *p.SubscriptionEndDate
		c.SubscriptionEndDate = &end
	}
	return &c
}
