package candidates

import (
	_ "embed"
	"fmt"
	"slices"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/SensualOdin/ChickenTendies-sub000/internal/models"
)

//go:embed fallback.yaml
var fallbackYAML []byte

var (
	fallbackOnce sync.Once
	fallbackSet  []models.Restaurant
	fallbackErr  error
)

// Fallback returns the built-in restaurant set.
func Fallback() ([]models.Restaurant, error) {
	fallbackOnce.Do(func() {
		fallbackSet, fallbackErr = parseFallback(fallbackYAML)
	})
	return slices.Clone(fallbackSet), fallbackErr
}

func parseFallback(data []byte) ([]models.Restaurant, error) {
	var doc struct {
		Restaurants []models.Restaurant `yaml:"restaurants"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse fallback restaurants: %w", err)
	}
	if len(doc.Restaurants) == 0 {
		return nil, fmt.Errorf("fallback restaurant set is empty")
	}
	return doc.Restaurants, nil
}

// FallbackFor returns the built-in restaurants that fit prefs. When nothing
// fits, the whole set is returned so a group never ends up with no deck.
func FallbackFor(prefs *models.Preferences) []models.Restaurant {
	all, err := Fallback()
	if err != nil {
		// The embedded file is validated by tests; this only guards edits.
		return nil
	}
	if prefs == nil {
		return all
	}
	filtered := Filter(*prefs, all)
	if len(filtered) == 0 {
		return all
	}
	return filtered
}

// Filter keeps the restaurants matching the price, cuisine and dietary
// preferences, preserving order.
func Filter(prefs models.Preferences, restaurants []models.Restaurant) []models.Restaurant {
	var out []models.Restaurant
	for _, r := range restaurants {
		if !prefs.AllowsPrice(r.PriceLevel) {
			continue
		}
		if !prefs.AllowsCuisine(r.Cuisine) {
			continue
		}
		if !satisfiesDietary(prefs.Dietary, r.Dietary) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func satisfiesDietary(required, offered []string) bool {
	for _, need := range required {
		if !slices.ContainsFunc(offered, func(o string) bool { return strings.EqualFold(o, need) }) {
			return false
		}
	}
	return true
}
