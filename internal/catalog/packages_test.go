package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coloring-pages/internal/models"
)

func TestPackageByID(t *testing.T) {
	pkg, ok := PackageByID("trial-subscription")
	require.True(t, ok)
	assert.True(t, pkg.IsTrialSubscription())
	assert.Equal(t, 5, pkg.Credits)
	assert.Equal(t, RecurringCreditsDefault, pkg.RecurringCredits)

	oneTime, ok := PackageByID("credits-5")
	require.True(t, ok)
	assert.False(t, oneTime.IsTrialSubscription(), "trial type without interval is a one-time purchase")

	_, ok = PackageByID("credits-500")
	assert.False(t, ok)
}

func TestCatalogInvariants(t *testing.T) {
	seen := map[string]bool{}
	for _, p := range Packages() {
		assert.False(t, seen[p.ID], "duplicate id %s", p.ID)
		seen[p.ID] = true
		assert.Positive(t, p.Credits, p.ID)
		assert.Positive(t, p.PriceCents, p.ID)
	}
}

func TestPackagesReturnsCopy(t *testing.T) {
	list := Packages()
	list[0].Credits = 999
	pkg, _ := PackageByID(list[0].ID)
	assert.NotEqual(t, 999, pkg.Credits)
}

func TestPricePerCredit(t *testing.T) {
	assert.Equal(t, "1.60", PricePerCredit(799, 5))
	assert.Equal(t, "0.00", PricePerCredit(799, 0))
}

func TestProductGrant(t *testing.T) {
	g, ok := ProductGrant("90143")
	require.True(t, ok)
	assert.Equal(t, Grant{Credits: 5, Tier: models.TierTrial}, g)

	_, ok = ProductGrant("nope")
	assert.False(t, ok)
	assert.Contains(t, ProductIDs(), "90143")
}
