package candidates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/SensualOdin/ChickenTendies-sub000/internal/models"
)

// Deck is the shared candidate list of one group for the current round.
type Deck struct {
	Restaurants []models.Restaurant `json:"restaurants"`
	// Offset is the provider offset of the next page.
	Offset int `json:"offset"`
}

func (d Deck) clone() Deck {
	return Deck{Restaurants: slices.Clone(d.Restaurants), Offset: d.Offset}
}

// DeckStore persists decks between requests.
type DeckStore interface {
	Load(ctx context.Context, groupID string) (Deck, bool, error)
	Save(ctx context.Context, groupID string, deck Deck) error
	Delete(ctx context.Context, groupID string) error
}

// MemoryDecks keeps decks in process memory.
type MemoryDecks struct {
	mu    sync.RWMutex
	decks map[string]Deck
}

func NewMemoryDecks() *MemoryDecks {
	return &MemoryDecks{decks: make(map[string]Deck)}
}

func (m *MemoryDecks) Load(_ context.Context, groupID string) (Deck, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.decks[groupID]
	if !ok {
		return Deck{}, false, nil
	}
	return d.clone(), true, nil
}

func (m *MemoryDecks) Save(_ context.Context, groupID string, deck Deck) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decks[groupID] = deck.clone()
	return nil
}

func (m *MemoryDecks) Delete(_ context.Context, groupID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.decks, groupID)
	return nil
}

// RedisDecks keeps decks in Redis so several server instances serve one
// group the same deck.
type RedisDecks struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDecks stores decks under "deck:<groupID>", expiring after ttl.
func NewRedisDecks(client *redis.Client, ttl time.Duration) *RedisDecks {
	return &RedisDecks{client: client, ttl: ttl}
}

func deckKey(groupID string) string {
	return "deck:" + groupID
}

func (r *RedisDecks) Load(ctx context.Context, groupID string) (Deck, bool, error) {
	raw, err := r.client.Get(ctx, deckKey(groupID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Deck{}, false, nil
	}
	if err != nil {
		return Deck{}, false, fmt.Errorf("failed to load deck: %w", err)
	}
	var d Deck
	if err := json.Unmarshal(raw, &d); err != nil {
		return Deck{}, false, fmt.Errorf("failed to decode deck: %w", err)
	}
	return d, true, nil
}

func (r *RedisDecks) Save(ctx context.Context, groupID string, deck Deck) error {
	raw, err := json.Marshal(deck)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, deckKey(groupID), raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save deck: %w", err)
	}
	return nil
}

func (r *RedisDecks) Delete(ctx context.Context, groupID string) error {
	if err := r.client.Del(ctx, deckKey(groupID)).Err(); err != nil {
		return fmt.Errorf("failed to delete deck: %w", err)
	}
	return nil
}
