package candidates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/SensualOdin/ChickenTendies-sub000/internal/models"
)

const metersPerMile = 1609.344

// maxSearchRadiusMeters is the largest radius the places API accepts.
const maxSearchRadiusMeters = 40000

// Provider searches an external source for restaurants.
type Provider interface {
	// Search returns one page of restaurants starting at offset.
	Search(ctx context.Context, prefs models.Preferences, offset int) ([]models.Restaurant, error)
}

// ErrUpstream is returned by providers for any non-success upstream reply.
var ErrUpstream = errors.New("candidate provider unavailable")

// PlacesClient is a Provider backed by a business search HTTP API.
type PlacesClient struct {
	baseURL  string
	apiKey   string
	pageSize int
	client   *http.Client
}

// NewPlacesClient creates a PlacesClient. Each request is bounded by timeout.
func NewPlacesClient(baseURL, apiKey string, pageSize int, timeout time.Duration) *PlacesClient {
	return &PlacesClient{
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiKey:   apiKey,
		pageSize: pageSize,
		client:   &http.Client{Timeout: timeout},
	}
}

type placesResponse struct {
	Businesses []placesBusiness `json:"businesses"`
}

type placesBusiness struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Rating      float64 `json:"rating"`
	ReviewCount int     `json:"review_count"`
	Price       string  `json:"price"`
	ImageURL    string  `json:"image_url"`
	Distance    float64 `json:"distance"`
	Categories  []struct {
		Alias string `json:"alias"`
	} `json:"categories"`
	Coordinates struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"coordinates"`
	Location struct {
		DisplayAddress []string `json:"display_address"`
	} `json:"location"`
}

func (c *PlacesClient) Search(ctx context.Context, prefs models.Preferences, offset int) ([]models.Restaurant, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/businesses/search?"+c.query(prefs, offset).Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
	}

	var body placesResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrUpstream, err)
	}

	out := make([]models.Restaurant, 0, len(body.Businesses))
	for _, b := range body.Businesses {
		out = append(out, b.restaurant())
	}
	return out, nil
}

func (c *PlacesClient) query(prefs models.Preferences, offset int) url.Values {
	q := url.Values{}
	q.Set("term", "restaurants")
	if co := prefs.Coordinates; co != nil {
		q.Set("latitude", strconv.FormatFloat(co.Latitude, 'f', 6, 64))
		q.Set("longitude", strconv.FormatFloat(co.Longitude, 'f', 6, 64))
	} else {
		q.Set("location", prefs.Location)
	}
	q.Set("radius", strconv.Itoa(min(int(prefs.RadiusMiles*metersPerMile), maxSearchRadiusMeters)))
	if len(prefs.PriceRange) > 0 {
		levels := make([]string, len(prefs.PriceRange))
		for i, p := range prefs.PriceRange {
			levels[i] = strconv.Itoa(p)
		}
		q.Set("price", strings.Join(levels, ","))
	}
	if len(prefs.Cuisines) > 0 {
		q.Set("categories", strings.ToLower(strings.Join(prefs.Cuisines, ",")))
	}
	if c.pageSize > 0 {
		q.Set("limit", strconv.Itoa(c.pageSize))
	}
	q.Set("offset", strconv.Itoa(offset))
	return q
}

func (b placesBusiness) restaurant() models.Restaurant {
	r := models.Restaurant{
		ID:          b.ID,
		Name:        b.Name,
		PriceLevel:  len(b.Price),
		Rating:      b.Rating,
		ReviewCount: b.ReviewCount,
		ImageURL:    b.ImageURL,
		Address:     strings.Join(b.Location.DisplayAddress, ", "),
		Latitude:    b.Coordinates.Latitude,
		Longitude:   b.Coordinates.Longitude,
		DistanceMi:  b.Distance / metersPerMile,
	}
	if len(b.Categories) > 0 {
		r.Cuisine = b.Categories[0].Alias
	}
	return r
}
