package match

import (
	"math/rand"
	"testing"
	"time"

	"github.com/SensualOdin/ChickenTendies-sub000/internal/models"
)

var t0 = time.Date(2026, 10, 1, 19, 0, 0, 0, time.UTC)

func restaurants(ids ...string) []models.Restaurant {
	out := make([]models.Restaurant, len(ids))
	for i, id := range ids {
		out[i] = models.Restaurant{ID: id, Name: "Place " + id}
	}
	return out
}

func like(member, restaurant string, at int) models.Swipe {
	return models.Swipe{MemberID: member, RestaurantID: restaurant, Liked: true, Timestamp: t0.Add(time.Duration(at) * time.Second)}
}

func dislike(member, restaurant string, at int) models.Swipe {
	return models.Swipe{MemberID: member, RestaurantID: restaurant, Liked: false, Timestamp: t0.Add(time.Duration(at) * time.Second)}
}

func superLike(member, restaurant string, at int) models.Swipe {
	s := like(member, restaurant, at)
	s.SuperLiked = true
	return s
}

func ids(rs []models.Restaurant) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.ID
	}
	return out
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestUnanimous(t *testing.T) {
	tests := []struct {
		name    string
		members []string
		swipes  []models.Swipe
		want    []string
	}{
		{
			name:    "everyone liked r1",
			members: []string{"a", "b"},
			swipes:  []models.Swipe{like("a", "r1", 1), like("b", "r1", 2), like("a", "r2", 3)},
			want:    []string{"r1"},
		},
		{
			name:    "member without a vote blocks the match",
			members: []string{"a", "b", "c"},
			swipes:  []models.Swipe{like("a", "r1", 1), like("b", "r1", 2)},
			want:    nil,
		},
		{
			name:    "departed member no longer counts",
			members: []string{"a", "b"},
			swipes:  []models.Swipe{like("a", "r1", 1), like("b", "r1", 2), dislike("gone", "r1", 3)},
			want:    []string{"r1"},
		},
		{
			name:    "later dislike supersedes like",
			members: []string{"a", "b"},
			swipes:  []models.Swipe{like("a", "r1", 1), like("b", "r1", 2), dislike("a", "r1", 3)},
			want:    nil,
		},
		{
			name:    "latest timestamp wins regardless of slice order",
			members: []string{"a", "b"},
			swipes:  []models.Swipe{like("a", "r1", 5), like("b", "r1", 2), dislike("a", "r1", 3)},
			want:    []string{"r1"},
		},
		{
			name:    "output follows candidate order",
			members: []string{"a"},
			swipes:  []models.Swipe{like("a", "r3", 1), like("a", "r1", 2)},
			want:    []string{"r1", "r3"},
		},
		{
			name:    "no members means no matches",
			members: nil,
			swipes:  []models.Swipe{like("a", "r1", 1)},
			want:    nil,
		},
		{
			name:    "super-like alone does not break unanimity rule",
			members: []string{"a", "b", "c"},
			swipes:  []models.Swipe{superLike("a", "r1", 1), like("b", "r1", 2)},
			want:    nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ids(Unanimous(tt.members, restaurants("r1", "r2", "r3"), tt.swipes))
			if !equalIDs(got, tt.want) {
				t.Errorf("Unanimous() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWithSuperLikeBoost(t *testing.T) {
	five := []string{"a", "b", "c", "d", "e"}
	tests := []struct {
		name    string
		members []string
		swipes  []models.Swipe
		want    []string
	}{
		{
			name:    "5 members: super-like plus 2 likes is 60%",
			members: five,
			swipes:  []models.Swipe{superLike("a", "r1", 1), like("b", "r1", 2), like("c", "r1", 3)},
			want:    []string{"r1"},
		},
		{
			name:    "5 members: super-like plus 1 like is 40%",
			members: five,
			swipes:  []models.Swipe{superLike("a", "r1", 1), like("b", "r1", 2)},
			want:    nil,
		},
		{
			name:    "2 members: super-like alone is not enough",
			members: []string{"a", "b"},
			swipes:  []models.Swipe{superLike("a", "r1", 1)},
			want:    nil,
		},
		{
			name:    "3 members: super-like plus 1 like matches",
			members: []string{"a", "b", "c"},
			swipes:  []models.Swipe{superLike("a", "r1", 1), like("b", "r1", 2)},
			want:    []string{"r1"},
		},
		{
			name:    "3 likes of 5 without a super-like do not match",
			members: five,
			swipes:  []models.Swipe{like("a", "r1", 1), like("b", "r1", 2), like("c", "r1", 3)},
			want:    nil,
		},
		{
			name:    "withdrawn super-like no longer boosts",
			members: []string{"a", "b", "c"},
			swipes:  []models.Swipe{superLike("a", "r1", 1), like("b", "r1", 2), like("a", "r1", 3)},
			want:    nil,
		},
		{
			name:    "unanimous still matches",
			members: []string{"a", "b"},
			swipes:  []models.Swipe{like("a", "r2", 1), like("b", "r2", 2)},
			want:    []string{"r2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ids(WithSuperLikeBoost(tt.members, restaurants("r1", "r2", "r3"), tt.swipes))
			if !equalIDs(got, tt.want) {
				t.Errorf("WithSuperLikeBoost() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRequiredLikes(t *testing.T) {
	for n := 1; n <= 50; n++ {
		// smallest k with k/n >= 3/5
		want := 0
		for 5*want < 3*n {
			want++
		}
		if got := RequiredLikes(n); got != want {
			t.Errorf("RequiredLikes(%d) = %d, want %d", n, got, want)
		}
	}
	if RequiredLikes(2) != 2 || RequiredLikes(3) != 2 || RequiredLikes(5) != 3 {
		t.Error("threshold examples do not hold")
	}
}

func TestDuplicateCandidatesAreReportedOnce(t *testing.T) {
	candidates := restaurants("r1", "r2", "r1")
	got := ids(Unanimous([]string{"a"}, candidates, []models.Swipe{like("a", "r1", 1)}))
	if !equalIDs(got, []string{"r1"}) {
		t.Errorf("got %v, want [r1]", got)
	}
}

func TestRepeatedSwipeIsIdempotent(t *testing.T) {
	members := []string{"a", "b"}
	candidates := restaurants("r1", "r2")
	once := []models.Swipe{like("a", "r1", 1), like("b", "r1", 2)}
	twice := append(append([]models.Swipe{}, once...), like("a", "r1", 3))

	for _, rule := range []Rule{RuleUnanimous, RuleSuperLike} {
		a := ids(Find(rule, members, candidates, once))
		b := ids(Find(rule, members, candidates, twice))
		if !equalIDs(a, b) {
			t.Errorf("%s: once=%v twice=%v", rule, a, b)
		}
	}
}

// TestRandomizedProperties checks, over random inputs, that unanimous matches
// are a subset of the candidates, that the boosted rule returns a superset of
// the unanimous rule, and that a member with no like blocks unanimity.
func TestRandomizedProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	memberPool := []string{"a", "b", "c", "d", "e", "f"}
	candidates := restaurants("r1", "r2", "r3", "r4", "r5")

	for iter := 0; iter < 500; iter++ {
		members := memberPool[:1+rng.Intn(len(memberPool))]
		var swipes []models.Swipe
		for i := 0; i < rng.Intn(40); i++ {
			s := models.Swipe{
				MemberID:     memberPool[rng.Intn(len(memberPool))],
				RestaurantID: candidates[rng.Intn(len(candidates))].ID,
				Liked:        rng.Intn(3) > 0,
				Timestamp:    t0.Add(time.Duration(rng.Intn(100)) * time.Second),
			}
			s.SuperLiked = s.Liked && rng.Intn(4) == 0
			swipes = append(swipes, s)
		}

		unanimous := Unanimous(members, candidates, swipes)
		boosted := WithSuperLikeBoost(members, candidates, swipes)

		for _, r := range unanimous {
			if !Contains(candidates, r.ID) {
				t.Fatalf("iter %d: %s not a candidate", iter, r.ID)
			}
			if !Contains(boosted, r.ID) {
				t.Fatalf("iter %d: boosted result misses unanimous match %s", iter, r.ID)
			}
			for _, m := range members {
				if !hasActiveLike(m, r.ID, swipes) {
					t.Fatalf("iter %d: %s matched without a like from %s", iter, r.ID, m)
				}
			}
		}
	}
}

func hasActiveLike(member, restaurant string, swipes []models.Swipe) bool {
	idx := -1
	for i, s := range swipes {
		if s.MemberID != member || s.RestaurantID != restaurant {
			continue
		}
		if idx == -1 || !swipes[idx].Timestamp.After(s.Timestamp) {
			idx = i
		}
	}
	return idx >= 0 && (swipes[idx].Liked || swipes[idx].SuperLiked)
}

func TestPending(t *testing.T) {
	swipes := []models.Swipe{like("a", "r1", 1), dislike("c", "r1", 2), like("b", "r2", 3)}
	got := Pending([]string{"a", "b", "c", "d"}, "r1", swipes)
	if !equalIDs(got, []string{"b", "d"}) {
		t.Errorf("Pending() = %v, want [b d]", got)
	}
}

func TestParseRule(t *testing.T) {
	if r, err := ParseRule(""); err != nil || r != RuleSuperLike {
		t.Errorf("empty rule: got %q, %v", r, err)
	}
	if r, err := ParseRule("unanimous"); err != nil || r != RuleUnanimous {
		t.Errorf("unanimous: got %q, %v", r, err)
	}
	if _, err := ParseRule("majority"); err == nil {
		t.Error("expected error for unknown rule")
	}
}
