package candidates

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/SensualOdin/ChickenTendies-sub000/internal/models"
)

// enrichConcurrency bounds parallel lookups against the ratings provider.
const enrichConcurrency = 4

// Rating is the secondary provider's view of one restaurant.
type Rating struct {
	Rating      float64 `json:"rating"`
	ReviewCount int     `json:"reviewCount"`
	URL         string  `json:"url"`
}

// RatingsSource looks up ratings for a restaurant.
type RatingsSource interface {
	Lookup(ctx context.Context, r models.Restaurant) (Rating, error)
}

// Enrich fills the External* fields of every restaurant it can. Lookups run
// concurrently; a failed lookup leaves that restaurant unenriched and the
// first failure is returned alongside the full result.
func Enrich(ctx context.Context, src RatingsSource, restaurants []models.Restaurant) ([]models.Restaurant, error) {
	if src == nil || len(restaurants) == 0 {
		return restaurants, nil
	}
	out := make([]models.Restaurant, len(restaurants))
	copy(out, restaurants)

	var g errgroup.Group
	g.SetLimit(enrichConcurrency)
	for i := range out {
		g.Go(func() error {
			rating, err := src.Lookup(ctx, out[i])
			if err != nil {
				slog.Debug("Ratings lookup failed", "restaurant_id", out[i].ID, "error", err)
				return fmt.Errorf("ratings lookup for %s: %w", out[i].ID, err)
			}
			out[i].ExternalRating = rating.Rating
			out[i].ExternalReviewCount = rating.ReviewCount
			out[i].ExternalURL = rating.URL
			return nil
		})
	}
	return out, g.Wait()
}

// RatingsClient is a RatingsSource backed by an HTTP API.
type RatingsClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewRatingsClient creates a RatingsClient. Each lookup is bounded by timeout.
func NewRatingsClient(baseURL, apiKey string, timeout time.Duration) *RatingsClient {
	return &RatingsClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *RatingsClient) Lookup(ctx context.Context, r models.Restaurant) (Rating, error) {
	q := url.Values{}
	q.Set("name", r.Name)
	q.Set("lat", strconv.FormatFloat(r.Latitude, 'f', 6, 64))
	q.Set("lng", strconv.FormatFloat(r.Longitude, 'f', 6, 64))
	q.Set("key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/ratings?"+q.Encode(), nil)
	if err != nil {
		return Rating{}, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return Rating{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Rating{}, fmt.Errorf("ratings lookup: status %d", resp.StatusCode)
	}
	var rating Rating
	if err := json.NewDecoder(resp.Body).Decode(&rating); err != nil {
		return Rating{}, fmt.Errorf("ratings lookup: %w", err)
	}
	return rating, nil
}
