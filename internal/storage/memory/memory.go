// Package memory provides an in-memory implementation of the storage.Store interface.
package memory

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/SensualOdin/ChickenTendies-sub000/internal/models"
	"github.com/SensualOdin/ChickenTendies-sub000/internal/storage"
)

var _ storage.Store = (*Store)(nil)

type swipeKey struct {
	memberID     string
	restaurantID string
}

// Store keeps groups in process memory. Groups are copied on the way in and
// on the way out so callers never share state with the store.
type Store struct {
	mu     sync.RWMutex
	groups map[string]*models.Group
	codes  map[string]string // code -> group ID
	swipes map[string]map[swipeKey]models.Swipe
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		groups: make(map[string]*models.Group),
		codes:  make(map[string]string),
		swipes: make(map[string]map[swipeKey]models.Swipe),
	}
}

func (s *Store) CreateGroup(ctx context.Context, group *models.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.codes[group.Code]; taken {
		return storage.ErrCodeTaken
	}
	s.groups[group.ID] = group.Clone()
	s.codes[group.Code] = group.ID
	return nil
}

func (s *Store) GetGroup(ctx context.Context, groupID string) (*models.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.groups[groupID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return g.Clone(), nil
}

func (s *Store) GetGroupByCode(ctx context.Context, code string) (*models.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.codes[code]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return s.groups[id].Clone(), nil
}

func (s *Store) UpdateGroup(ctx context.Context, group *models.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.groups[group.ID]; !ok {
		return storage.ErrNotFound
	}
	s.groups[group.ID] = group.Clone()
	return nil
}

func (s *Store) PutSwipe(ctx context.Context, groupID string, swipe models.Swipe) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.groups[groupID]; !ok {
		return storage.ErrNotFound
	}
	bySwipe := s.swipes[groupID]
	if bySwipe == nil {
		bySwipe = make(map[swipeKey]models.Swipe)
		s.swipes[groupID] = bySwipe
	}
	bySwipe[swipeKey{swipe.MemberID, swipe.RestaurantID}] = swipe
	return nil
}

func (s *Store) ListSwipes(ctx context.Context, groupID string) ([]models.Swipe, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.groups[groupID]; !ok {
		return nil, storage.ErrNotFound
	}
	out := make([]models.Swipe, 0, len(s.swipes[groupID]))
	for _, sw := range s.swipes[groupID] {
		out = append(out, sw)
	}
	slices.SortFunc(out, func(a, b models.Swipe) int {
		return cmp.Or(
			a.Timestamp.Compare(b.Timestamp),
			strings.Compare(a.MemberID, b.MemberID),
			strings.Compare(a.RestaurantID, b.RestaurantID),
		)
	})
	return out, nil
}

func (s *Store) StartRound(ctx context.Context, group *models.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.groups[group.ID]; !ok {
		return storage.ErrNotFound
	}
	s.groups[group.ID] = group.Clone()
	delete(s.swipes, group.ID)
	return nil
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}
