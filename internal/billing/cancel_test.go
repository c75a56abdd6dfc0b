package billing

import (
	"context"
	"net/http"
	"testing"
	"time"

	"coloring-pages/internal/apperr"
	"coloring-pages/internal/db"
	"coloring-pages/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCanceller struct {
	cancelled []string
	endsAt    time.Time
	err       error
}

func (f *fakeCanceller) CancelAtPeriodEnd(_ context.Context, id string) (time.Time, error) {
	f.cancelled = append(f.cancelled, id)
	return f.endsAt, f.err
}

func TestCancelSchedulesEndOfPeriod(t *testing.T) {
	store := db.NewMemoryStore()
	seedProfile(t, store, models.Profile{ID: "u1", Credits: 7})
	_, err := store.ApplyCreditGrant(t.Context(), models.CreditGrant{UserID: "u1", SubscriptionID: "sub_1"})
	require.NoError(t, err)

	end := time.Date(2026, 3, 7, 0, 0, 0, 0, time.UTC)
	subs := &fakeCanceller{endsAt: end}
	c := NewCanceller(subs, store, nil)

	res, err := c.Cancel(t.Context(), "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"sub_1"}, subs.cancelled)
	assert.Equal(t, "March 7, 2026", res.FormattedDate)
	assert.Equal(t, "Subscription will be cancelled on March 7, 2026", res.Message())

	p, err := store.GetProfile(t.Context(), "u1")
	require.NoError(t, err)
	assert.True(t, p.SubscriptionCancelling)
	require.NotNil(t, p.SubscriptionEndDate)
	assert.True(t, end.Equal(*p.SubscriptionEndDate))
	assert.Equal(t, 7, p.Credits, "credits are kept")
}

func TestCancelWithoutSubscription(t *testing.T) {
	store := db.NewMemoryStore()
	seedProfile(t, store, models.Profile{ID: "u1"})
	subs := &fakeCanceller{}
	c := NewCanceller(subs, store, nil)

	_, err := c.Cancel(t.Context(), "u1")
	assert.Equal(t, apperr.CodeSubscriptionNotFound, apperr.CodeOf(err))

	_, err = c.Cancel(t.Context(), "ghost")
	assert.Equal(t, http.StatusNotFound, apperr.StatusOf(err))

	_, err = c.Cancel(t.Context(), " ")
	assert.Equal(t, http.StatusBadRequest, apperr.StatusOf(err))
	assert.Empty(t, subs.cancelled)
}

func TestCancelUpstreamFailureLeavesProfile(t *testing.T) {
	store := db.NewMemoryStore()
	seedProfile(t, store, models.Profile{ID: "u1"})
	_, err := store.ApplyCreditGrant(t.Context(), models.CreditGrant{UserID: "u1", SubscriptionID: "sub_1"})
	require.NoError(t, err)

	c := NewCanceller(&fakeCanceller{err: apperr.Upstream(http.StatusBadGateway, assert.AnError)}, store, nil)
	_, err = c.Cancel(t.Context(), "u1")
	assert.Equal(t, http.StatusBadGateway, apperr.StatusOf(err))

	p, _ := store.GetProfile(t.Context(), "u1")
	assert.False(t, p.SubscriptionCancelling)
}
