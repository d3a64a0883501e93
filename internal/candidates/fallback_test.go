package candidates

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SensualOdin/ChickenTendies-sub000/internal/models"
)

func TestFallbackSetIsValid(t *testing.T) {
	all, err := Fallback()
	require.NoError(t, err)
	require.NotEmpty(t, all)

	seen := make(map[string]bool)
	for _, r := range all {
		assert.NotEmpty(t, r.ID)
		assert.NotEmpty(t, r.Name)
		assert.False(t, seen[r.ID], "duplicate id %s", r.ID)
		seen[r.ID] = true
		assert.True(t, r.PriceLevel >= 1 && r.PriceLevel <= 4, "price level of %s", r.ID)
	}
}

func TestFilter(t *testing.T) {
	all, err := Fallback()
	require.NoError(t, err)

	got := Filter(models.Preferences{PriceRange: []int{1}, Dietary: []string{"Vegan"}}, all)
	require.NotEmpty(t, got)
	for _, r := range got {
		assert.Equal(t, 1, r.PriceLevel)
		assert.Contains(t, r.Dietary, "vegan")
	}

	got = Filter(models.Preferences{Cuisines: []string{"Japanese"}}, all)
	require.NotEmpty(t, got)
	for _, r := range got {
		assert.Equal(t, "japanese", r.Cuisine)
	}
}

func TestFallbackForNeverEmpty(t *testing.T) {
	all, err := Fallback()
	require.NoError(t, err)

	nothingFits := &models.Preferences{Cuisines: []string{"martian"}}
	assert.Len(t, FallbackFor(nothingFits), len(all))
	assert.Len(t, FallbackFor(nil), len(all))
}

func TestFallbackReturnsCopies(t *testing.T) {
	first, err := Fallback()
	require.NoError(t, err)
	first[0].Name = "changed"

	second, err := Fallback()
	require.NoError(t, err)
	assert.NotEqual(t, "changed", second[0].Name)
}
