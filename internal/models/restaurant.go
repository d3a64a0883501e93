package models

import "time"

// Restaurant is a candidate offered for swiping. Values are fetched from a
// candidate provider, cached per group and never mutated afterwards.
type Restaurant struct {
	ID          string   `json:"id" yaml:"id"`
	Name        string   `json:"name" yaml:"name"`
	Cuisine     string   `json:"cuisine" yaml:"cuisine"`
	PriceLevel  int      `json:"priceLevel" yaml:"price_level"`
	Rating      float64  `json:"rating" yaml:"rating"`
	ReviewCount int      `json:"reviewCount" yaml:"review_count"`
	ImageURL    string   `json:"imageUrl,omitempty" yaml:"image_url"`
	Address     string   `json:"address,omitempty" yaml:"address"`
	Latitude    float64  `json:"lat" yaml:"lat"`
	Longitude   float64  `json:"lng" yaml:"lng"`
	DistanceMi  float64  `json:"distance,omitempty" yaml:"-"`
	Dietary     []string `json:"dietary,omitempty" yaml:"dietary"`

	// Enrichment from the secondary ratings provider. Zero when unavailable.
	ExternalRating      float64 `json:"externalRating,omitempty" yaml:"-"`
	ExternalReviewCount int     `json:"externalReviewCount,omitempty" yaml:"-"`
	ExternalURL         string  `json:"externalUrl,omitempty" yaml:"-"`
}

// Swipe is one member's vote on one restaurant. A later swipe by the same
// member on the same restaurant supersedes the earlier one.
type Swipe struct {
	MemberID     string    `json:"memberId"`
	RestaurantID string    `json:"restaurantId"`
	Liked        bool      `json:"liked"`
	SuperLiked   bool      `json:"superLiked"`
	Timestamp    time.Time `json:"timestamp"`
}
