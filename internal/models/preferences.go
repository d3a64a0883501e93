package models

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// MaxRadiusMiles bounds the search radius a group can request.
const MaxRadiusMiles = 25

var ErrInvalidPreferences = errors.New("invalid preferences")

// Coordinates is a precise location.
type Coordinates struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
}

// Preferences describes what a group is looking for in one swiping round.
// It is replaced as a whole; a new value starts a new round.
type Preferences struct {
	// Location is a free-form area ("Austin, TX" or a zip code).
	Location string `json:"location,omitempty"`

	// Coordinates take precedence over Location when set.
	Coordinates *Coordinates `json:"coordinates,omitempty"`

	RadiusMiles float64 `json:"radius"`

	// PriceRange holds price levels 1 ($) through 4 ($$$$).
	PriceRange []int `json:"priceRange,omitempty"`

	Cuisines []string `json:"cuisines,omitempty"`

	// Dietary holds restriction filters such as "vegetarian" or "gluten_free".
	Dietary []string `json:"dietary,omitempty"`

	TrySomethingNew bool `json:"trySomethingNew,omitempty"`
	ExcludeVisited  bool `json:"excludeVisited,omitempty"`
}

// Clone returns a deep copy.
func (p Preferences) Clone() Preferences {
	c := p
	if p.Coordinates != nil {
		coords := *p.Coordinates
		c.Coordinates = &coords
	}
	c.PriceRange = slices.Clone(p.PriceRange)
	c.Cuisines = slices.Clone(p.Cuisines)
	c.Dietary = slices.Clone(p.Dietary)
	return c
}

// Validate checks the preferences before they reach the session store.
func (p Preferences) Validate() error {
	if p.Location == "" && p.Coordinates == nil {
		return fmt.Errorf("%w: location or coordinates required", ErrInvalidPreferences)
	}
	if p.RadiusMiles <= 0 || p.RadiusMiles > MaxRadiusMiles {
		return fmt.Errorf("%w: radius must be in (0, %d] miles", ErrInvalidPreferences, MaxRadiusMiles)
	}
	for _, level := range p.PriceRange {
		if level < 1 || level > 4 {
			return fmt.Errorf("%w: price level %d out of range", ErrInvalidPreferences, level)
		}
	}
	if c := p.Coordinates; c != nil {
		if c.Latitude < -90 || c.Latitude > 90 || c.Longitude < -180 || c.Longitude > 180 {
			return fmt.Errorf("%w: coordinates out of range", ErrInvalidPreferences)
		}
	}
	return nil
}

// AllowsPrice reports whether a restaurant at the given price level fits.
// An empty range allows everything.
func (p Preferences) AllowsPrice(level int) bool {
	return len(p.PriceRange) == 0 || slices.Contains(p.PriceRange, level)
}

// AllowsCuisine reports whether cuisine fits, ignoring case. An empty set
// allows everything.
func (p Preferences) AllowsCuisine(cuisine string) bool {
	return len(p.Cuisines) == 0 || slices.ContainsFunc(p.Cuisines, func(c string) bool {
		return strings.EqualFold(c, cuisine)
	})
}
