// Package storagetest holds the behavior every storage.Store implementation
// must share. Implementation packages call Run from their own tests.
package storagetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/SensualOdin/ChickenTendies-sub000/internal/models"
	"github.com/SensualOdin/ChickenTendies-sub000/internal/storage"
)

var base = time.Date(2026, 10, 1, 18, 30, 0, 0, time.UTC)

// NewGroup returns a two-member group ready to be stored.
func NewGroup(id, code string) *models.Group {
	return &models.Group{
		ID:              id,
		Code:            code,
		Name:            "Friday Dinner",
		Status:          models.StatusWaiting,
		CreatedAt:       base,
		LeaderTokenHash: "hash-" + id,
		LeaderMemberID:  id + "-host",
		Members: []models.Member{
			{ID: id + "-host", Name: "Alice", IsHost: true, JoinedAt: base},
			{ID: id + "-guest", Name: "Bob", JoinedAt: base.Add(time.Minute)},
		},
	}
}

// Run exercises a fresh store returned by newStore.
func Run(t *testing.T, newStore func(t *testing.T) storage.Store) {
	ctx := context.Background()

	t.Run("CreateGroup and GetGroup round trip", func(t *testing.T) {
		store := newStore(t)
		group := NewGroup("g1", "ABC123")
		if err := store.CreateGroup(ctx, group); err != nil {
			t.Fatalf("CreateGroup failed: %v", err)
		}

		got, err := store.GetGroup(ctx, "g1")
		if err != nil {
			t.Fatalf("GetGroup failed: %v", err)
		}
		if got.Name != group.Name || got.Code != group.Code || got.Status != group.Status {
			t.Errorf("group mismatch: got %+v", got)
		}
		if got.LeaderTokenHash != group.LeaderTokenHash {
			t.Errorf("leader token hash not persisted")
		}
		if got.LeaderMemberID != group.LeaderMemberID {
			t.Errorf("leader member: got %q, want %q", got.LeaderMemberID, group.LeaderMemberID)
		}
		if !got.CreatedAt.Equal(group.CreatedAt) {
			t.Errorf("CreatedAt: got %v, want %v", got.CreatedAt, group.CreatedAt)
		}
		if len(got.Members) != 2 || got.Members[0].Name != "Alice" || got.Members[1].Name != "Bob" {
			t.Fatalf("members not in join order: %+v", got.Members)
		}
		if !got.Members[0].IsHost || got.Members[1].IsHost {
			t.Errorf("host flag mismatch: %+v", got.Members)
		}
		if got.Preferences != nil {
			t.Errorf("expected nil preferences, got %+v", got.Preferences)
		}
	})

	t.Run("GetGroupByCode", func(t *testing.T) {
		store := newStore(t)
		if err := store.CreateGroup(ctx, NewGroup("g1", "ABC123")); err != nil {
			t.Fatalf("CreateGroup failed: %v", err)
		}
		got, err := store.GetGroupByCode(ctx, "ABC123")
		if err != nil {
			t.Fatalf("GetGroupByCode failed: %v", err)
		}
		if got.ID != "g1" {
			t.Errorf("ID: got %s, want g1", got.ID)
		}
		if _, err := store.GetGroupByCode(ctx, "ZZZ999"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("duplicate code is rejected", func(t *testing.T) {
		store := newStore(t)
		if err := store.CreateGroup(ctx, NewGroup("g1", "ABC123")); err != nil {
			t.Fatalf("CreateGroup failed: %v", err)
		}
		err := store.CreateGroup(ctx, NewGroup("g2", "ABC123"))
		if !errors.Is(err, storage.ErrCodeTaken) {
			t.Errorf("expected ErrCodeTaken, got %v", err)
		}
	})

	t.Run("GetGroup returns ErrNotFound", func(t *testing.T) {
		store := newStore(t)
		if _, err := store.GetGroup(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("UpdateGroup replaces members and preferences", func(t *testing.T) {
		store := newStore(t)
		group := NewGroup("g1", "ABC123")
		if err := store.CreateGroup(ctx, group); err != nil {
			t.Fatalf("CreateGroup failed: %v", err)
		}

		group.Status = models.StatusSwiping
		group.Preferences = &models.Preferences{
			Location:    "Austin, TX",
			RadiusMiles: 5,
			PriceRange:  []int{1, 2},
			Cuisines:    []string{"thai"},
			Coordinates: &models.Coordinates{Latitude: 30.27, Longitude: -97.74},
		}
		group.Members = append(group.Members, models.Member{ID: "g1-late", Name: "Cara", JoinedAt: base.Add(time.Hour)})
		group.Members[1].DoneSwiping = true
		group.LeaderMemberID = "g1-late"
		if err := store.UpdateGroup(ctx, group); err != nil {
			t.Fatalf("UpdateGroup failed: %v", err)
		}

		got, err := store.GetGroup(ctx, "g1")
		if err != nil {
			t.Fatalf("GetGroup failed: %v", err)
		}
		if got.Status != models.StatusSwiping {
			t.Errorf("status: got %s", got.Status)
		}
		if got.Preferences == nil || got.Preferences.Location != "Austin, TX" || len(got.Preferences.PriceRange) != 2 {
			t.Fatalf("preferences not persisted: %+v", got.Preferences)
		}
		if got.Preferences.Coordinates == nil || got.Preferences.Coordinates.Latitude != 30.27 {
			t.Errorf("coordinates not persisted: %+v", got.Preferences.Coordinates)
		}
		if len(got.Members) != 3 || got.Members[2].Name != "Cara" {
			t.Fatalf("members: %+v", got.Members)
		}
		if !got.Members[1].DoneSwiping {
			t.Error("doneSwiping not persisted")
		}
		if got.LeaderMemberID != "g1-late" {
			t.Errorf("leader member not updated: %q", got.LeaderMemberID)
		}
	})

	t.Run("UpdateGroup on missing group", func(t *testing.T) {
		store := newStore(t)
		if err := store.UpdateGroup(ctx, NewGroup("nope", "QQQ111")); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("returned groups are snapshots", func(t *testing.T) {
		store := newStore(t)
		if err := store.CreateGroup(ctx, NewGroup("g1", "ABC123")); err != nil {
			t.Fatalf("CreateGroup failed: %v", err)
		}
		got, _ := store.GetGroup(ctx, "g1")
		got.Members[0].Name = "Mallory"
		again, _ := store.GetGroup(ctx, "g1")
		if again.Members[0].Name != "Alice" {
			t.Error("mutating a returned group leaked into the store")
		}
	})

	t.Run("PutSwipe keeps one swipe per member and restaurant", func(t *testing.T) {
		store := newStore(t)
		if err := store.CreateGroup(ctx, NewGroup("g1", "ABC123")); err != nil {
			t.Fatalf("CreateGroup failed: %v", err)
		}

		swipes := []models.Swipe{
			{MemberID: "m1", RestaurantID: "r1", Liked: true, Timestamp: base},
			{MemberID: "m2", RestaurantID: "r1", Liked: true, Timestamp: base.Add(time.Second)},
			{MemberID: "m1", RestaurantID: "r1", Liked: false, Timestamp: base.Add(2 * time.Second)},
			{MemberID: "m1", RestaurantID: "r2", Liked: true, SuperLiked: true, Timestamp: base.Add(3 * time.Second)},
		}
		for _, sw := range swipes {
			if err := store.PutSwipe(ctx, "g1", sw); err != nil {
				t.Fatalf("PutSwipe failed: %v", err)
			}
		}

		got, err := store.ListSwipes(ctx, "g1")
		if err != nil {
			t.Fatalf("ListSwipes failed: %v", err)
		}
		if len(got) != 3 {
			t.Fatalf("expected 3 active swipes, got %d: %+v", len(got), got)
		}
		if got[0].MemberID != "m2" {
			t.Errorf("expected swipes ordered by time, got %+v", got)
		}
		for _, sw := range got {
			if sw.MemberID == "m1" && sw.RestaurantID == "r1" && sw.Liked {
				t.Error("later dislike did not replace the like")
			}
			if sw.RestaurantID == "r2" && !sw.SuperLiked {
				t.Error("super-like flag not persisted")
			}
		}
	})

	t.Run("StartRound stores the group and clears its swipes", func(t *testing.T) {
		store := newStore(t)
		if err := store.CreateGroup(ctx, NewGroup("g1", "ABC123")); err != nil {
			t.Fatalf("CreateGroup failed: %v", err)
		}
		if err := store.CreateGroup(ctx, NewGroup("g2", "DEF456")); err != nil {
			t.Fatalf("CreateGroup failed: %v", err)
		}
		for _, id := range []string{"g1", "g2"} {
			if err := store.PutSwipe(ctx, id, models.Swipe{MemberID: "m", RestaurantID: "r", Liked: true, Timestamp: base}); err != nil {
				t.Fatalf("PutSwipe failed: %v", err)
			}
		}

		group := NewGroup("g1", "ABC123")
		group.Status = models.StatusSwiping
		if err := store.StartRound(ctx, group); err != nil {
			t.Fatalf("StartRound failed: %v", err)
		}
		got, err := store.GetGroup(ctx, "g1")
		if err != nil {
			t.Fatalf("GetGroup failed: %v", err)
		}
		if got.Status != models.StatusSwiping {
			t.Errorf("status not stored: %s", got.Status)
		}
		if got, _ := store.ListSwipes(ctx, "g1"); len(got) != 0 {
			t.Errorf("g1 swipes not cleared: %+v", got)
		}
		if got, _ := store.ListSwipes(ctx, "g2"); len(got) != 1 {
			t.Errorf("g2 swipes affected: %+v", got)
		}
	})

	t.Run("StartRound on missing group", func(t *testing.T) {
		store := newStore(t)
		if err := store.StartRound(ctx, NewGroup("nope", "QQQ111")); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("swipes on missing group", func(t *testing.T) {
		store := newStore(t)
		err := store.PutSwipe(ctx, "missing", models.Swipe{MemberID: "m", RestaurantID: "r", Timestamp: base})
		if !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("PutSwipe: expected ErrNotFound, got %v", err)
		}
		if _, err := store.ListSwipes(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("ListSwipes: expected ErrNotFound, got %v", err)
		}
	})
}
