// Package candidates sources restaurant decks for groups.
//
// Each group has one shared deck per swiping round. Concurrent requests for
// a group that has no deck yet share a single upstream fetch, so every
// member swipes through the same list in the same order. Upstream failures
// never surface to callers: the built-in fallback set is used instead.
package candidates

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/SensualOdin/ChickenTendies-sub000/internal/metrics"
	"github.com/SensualOdin/ChickenTendies-sub000/internal/models"
)

const defaultTimeout = 8 * time.Second

var errNoProvider = errors.New("no candidate provider configured")

// PreferenceSource returns the current preferences of a group, or nil when
// none are set.
type PreferenceSource interface {
	Preferences(ctx context.Context, groupID string) (*models.Preferences, error)
}

// Cache implements GetCandidates and LoadMore over a Provider.
type Cache struct {
	provider Provider
	ratings  RatingsSource
	decks    DeckStore
	prefs    PreferenceSource
	metrics  *metrics.Metrics
	timeout  time.Duration

	flights singleflight.Group

	// mu guards gens and orders deck saves against Invalidate.
	mu   sync.Mutex
	gens map[string]uint64
}

type Option func(*Cache)

// WithRatings enriches upstream results with a secondary ratings source.
func WithRatings(src RatingsSource) Option {
	return func(c *Cache) { c.ratings = src }
}

// WithDeckStore replaces the in-memory deck store.
func WithDeckStore(store DeckStore) Option {
	return func(c *Cache) { c.decks = store }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

// WithTimeout bounds one fetch, enrichment included.
func WithTimeout(d time.Duration) Option {
	return func(c *Cache) { c.timeout = d }
}

// NewCache creates a Cache. A nil provider serves the fallback set only.
func NewCache(provider Provider, prefs PreferenceSource, opts ...Option) *Cache {
	c := &Cache{
		provider: provider,
		prefs:    prefs,
		decks:    NewMemoryDecks(),
		timeout:  defaultTimeout,
		gens:     make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type flightResult struct {
	deck  Deck
	added int
}

// GetCandidates returns the group's deck, fetching it on first use. A group
// without preferences gets the unfiltered fallback set, which is not cached.
func (c *Cache) GetCandidates(ctx context.Context, groupID string) ([]models.Restaurant, error) {
	if deck, ok := c.load(ctx, groupID); ok {
		return deck.Restaurants, nil
	}

	// The generation is taken before the preferences are read, so a change
	// committed in between discards whatever this flight builds.
	gen := c.generation(groupID)
	prefs, err := c.prefs.Preferences(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if prefs == nil {
		return FallbackFor(nil), nil
	}

	res, err := c.share(ctx, flightKey("deck", groupID, gen), func(fctx context.Context) (flightResult, error) {
		if deck, ok := c.load(fctx, groupID); ok {
			return flightResult{deck: deck}, nil
		}
		page, err := c.search(fctx, *prefs, 0)
		deck := c.firstDeck(groupID, *prefs, page, err)
		c.save(fctx, groupID, gen, deck)
		return flightResult{deck: deck}, nil
	})
	if err != nil {
		return nil, err
	}
	return res.deck.Restaurants, nil
}

// LoadMore appends the next page to the group's deck. It returns the full
// deck and how many new candidates were added; zero means nothing new and
// the deck is unchanged.
func (c *Cache) LoadMore(ctx context.Context, groupID string) ([]models.Restaurant, int, error) {
	current, err := c.GetCandidates(ctx, groupID)
	if err != nil {
		return nil, 0, err
	}
	gen := c.generation(groupID)
	prefs, err := c.prefs.Preferences(ctx, groupID)
	if err != nil {
		return nil, 0, err
	}
	if prefs == nil {
		return current, 0, nil
	}

	res, err := c.share(ctx, flightKey("more", groupID, gen), func(fctx context.Context) (flightResult, error) {
		deck, ok := c.load(fctx, groupID)
		if !ok {
			// Invalidated since GetCandidates; the next round starts fresh.
			return flightResult{deck: Deck{Restaurants: current}}, nil
		}

		page, err := c.search(fctx, *prefs, deck.Offset)
		if err != nil {
			if !errors.Is(err, errNoProvider) {
				slog.Warn("Failed to load more candidates", "group_id", groupID, "offset", deck.Offset, "error", err)
			}
			return flightResult{deck: deck}, nil
		}
		if len(page) == 0 {
			return flightResult{deck: deck}, nil
		}
		c.metrics.CandidateFetch(metrics.FetchUpstream)

		var added int
		deck.Restaurants, added = appendNew(deck.Restaurants, page)
		deck.Offset += len(page)
		c.save(fctx, groupID, gen, deck)
		return flightResult{deck: deck, added: added}, nil
	})
	if err != nil {
		return nil, 0, err
	}
	if res.added > 0 {
		slog.Info("Loaded more candidates", "group_id", groupID, "added", res.added, "total", len(res.deck.Restaurants))
	}
	return res.deck.Restaurants, res.added, nil
}

// Invalidate drops the group's deck. Fetches already in flight for the old
// round complete for their callers but are not stored.
func (c *Cache) Invalidate(groupID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gens[groupID]++

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	if err := c.decks.Delete(ctx, groupID); err != nil {
		slog.Error("Failed to drop candidate deck", "group_id", groupID, "error", err)
	}
}

// share runs fn once per key across concurrent callers. fn runs detached
// from the caller's cancellation so one member leaving does not fail the
// fetch for the others; a caller that gives up stops waiting.
func (c *Cache) share(ctx context.Context, key string, fn func(context.Context) (flightResult, error)) (flightResult, error) {
	ch := c.flights.DoChan(key, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()
		return fn(fctx)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return flightResult{}, res.Err
		}
		if res.Shared {
			c.metrics.CandidateFetch(metrics.FetchShared)
		}
		r := res.Val.(flightResult)
		r.deck = r.deck.clone()
		return r, nil
	case <-ctx.Done():
		return flightResult{}, ctx.Err()
	}
}

// search asks the provider for one enriched page.
func (c *Cache) search(ctx context.Context, prefs models.Preferences, offset int) ([]models.Restaurant, error) {
	if c.provider == nil {
		return nil, errNoProvider
	}
	page, err := c.provider.Search(ctx, prefs, offset)
	if err != nil {
		return nil, err
	}
	page, err = Enrich(ctx, c.ratings, page)
	if err != nil {
		slog.Warn("Ratings enrichment incomplete", "error", err)
	}
	return page, nil
}

// firstDeck builds the opening deck of a round from the first upstream page,
// falling back to the built-in set when the page is missing or empty.
func (c *Cache) firstDeck(groupID string, prefs models.Preferences, page []models.Restaurant, err error) Deck {
	switch {
	case errors.Is(err, errNoProvider):
	case err != nil:
		slog.Warn("Candidate provider failed, using fallback", "group_id", groupID, "error", err)
	case len(page) == 0:
		slog.Info("Candidate provider returned nothing, using fallback", "group_id", groupID)
	default:
		c.metrics.CandidateFetch(metrics.FetchUpstream)
		return Deck{Restaurants: page, Offset: len(page)}
	}
	c.metrics.CandidateFetch(metrics.FetchFallback)
	return Deck{Restaurants: FallbackFor(&prefs)}
}

func (c *Cache) load(ctx context.Context, groupID string) (Deck, bool) {
	deck, ok, err := c.decks.Load(ctx, groupID)
	if err != nil {
		slog.Error("Failed to load candidate deck", "group_id", groupID, "error", err)
		return Deck{}, false
	}
	return deck, ok
}

// save stores deck unless the group was invalidated after gen was read.
func (c *Cache) save(ctx context.Context, groupID string, gen uint64, deck Deck) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gens[groupID] != gen {
		slog.Debug("Discarding deck from a previous round", "group_id", groupID)
		return
	}
	if err := c.decks.Save(ctx, groupID, deck); err != nil {
		slog.Error("Failed to save candidate deck", "group_id", groupID, "error", err)
	}
}

func (c *Cache) generation(groupID string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gens[groupID]
}

func flightKey(kind, groupID string, gen uint64) string {
	return fmt.Sprintf("%s:%s:%d", kind, groupID, gen)
}

// appendNew appends the restaurants of page whose IDs are not yet in deck.
func appendNew(deck, page []models.Restaurant) ([]models.Restaurant, int) {
	seen := make(map[string]bool, len(deck))
	for _, r := range deck {
		seen[r.ID] = true
	}
	out := deck
	added := 0
	for _, r := range page {
		if seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		out = append(out, r)
		added++
	}
	return out, added
}
