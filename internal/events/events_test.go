package events

import (
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SensualOdin/ChickenTendies-sub000/internal/models"
)

var t0 = time.Date(2026, 10, 1, 19, 0, 0, 0, time.UTC)

func newGoldie(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata"),
		goldie.WithNameSuffix(".golden"),
	)
}

func TestEventEncoding(t *testing.T) {
	tests := []struct {
		name  string
		event Event
	}{
		{
			name: "sync",
			event: Sync{
				Group: &models.Group{
					ID:   "g1",
					Code: "ABC123",
					Name: "Friday",
					Members: []models.Member{
						{ID: "m1", Name: "Alice", IsHost: true, JoinedAt: t0},
					},
					Preferences: &models.Preferences{Location: "Austin, TX", RadiusMiles: 5, PriceRange: []int{1, 2}},
					Status:      models.StatusSwiping,
					CreatedAt:   t0,
					// Must never reach clients.
					LeaderTokenHash: "$2a$10$secret",
				},
				Candidates: []models.Restaurant{{ID: "r1", Name: "Place r1"}},
				Matches:    []models.Restaurant{},
				MemberID:   "m1",
			},
		},
		{
			name:  "member_joined",
			event: MemberJoined{Member: models.Member{ID: "m2", Name: "Bob", JoinedAt: t0}},
		},
		{
			name:  "swipe_made",
			event: SwipeMade{RestaurantID: "r1", Votes: 2},
		},
		{
			name: "match_found",
			event: MatchFound{Restaurant: models.Restaurant{
				ID:          "r1",
				Name:        "Taqueria El Sol",
				Cuisine:     "mexican",
				PriceLevel:  1,
				Rating:      4.6,
				ReviewCount: 801,
				Latitude:    30.2668,
				Longitude:   -97.7389,
			}},
		},
		{
			name:  "nudge",
			event: Nudge{RestaurantID: "r1", FromMemberID: "m1", FromName: "Alice"},
		},
		{
			name:  "status_changed",
			event: StatusChanged{Status: models.StatusSwiping},
		},
	}

	g := newGoldie(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := Encode(tt.event)
			require.NoError(t, err)
			g.Assert(t, tt.name, raw)
		})
	}
}

func TestActionEncoding(t *testing.T) {
	g := newGoldie(t)

	raw, err := EncodeAction(Swipe{RestaurantID: "r1", Liked: true, SuperLiked: true})
	require.NoError(t, err)
	g.Assert(t, "action_swipe", raw)

	raw, err = EncodeAction(DoneSwiping{})
	require.NoError(t, err)
	g.Assert(t, "action_done_swiping", raw)
}

func TestDecodeRestoresConcreteType(t *testing.T) {
	raw, err := Encode(MemberDone{MemberID: "m2", AllDone: true})
	require.NoError(t, err)

	e, err := Decode(raw)
	require.NoError(t, err)
	done, ok := e.(MemberDone)
	require.True(t, ok, "got %T", e)
	assert.Equal(t, "m2", done.MemberID)
	assert.True(t, done.AllDone)
}

func TestDecodeErrors(t *testing.T) {
	_, err := Decode([]byte(`{"type":"teleport","data":{}}`))
	assert.ErrorIs(t, err, ErrUnknownType)

	_, err = Decode([]byte(`not json`))
	assert.Error(t, err)

	_, err = Decode([]byte(`{"type":"swipe_made","data":{"votes":"many"}}`))
	assert.Error(t, err)
}

func TestDecodeAction(t *testing.T) {
	tests := []struct {
		raw  string
		want Action
	}{
		{`{"type":"swipe","data":{"restaurantId":"r9","liked":false}}`, Swipe{RestaurantID: "r9"}},
		{`{"type":"done_swiping"}`, DoneSwiping{}},
		{`{"type":"nudge","data":{"restaurantId":"r2"}}`, NudgeMembers{RestaurantID: "r2"}},
		{`{"type":"reaction","data":{"emoji":"🔥"}}`, React{Emoji: "🔥"}},
		{`{"type":"resync","data":null}`, Resync{}},
	}
	for _, tt := range tests {
		got, err := DecodeAction([]byte(tt.raw))
		require.NoError(t, err, tt.raw)
		assert.Equal(t, tt.want, got)
	}

	_, err := DecodeAction([]byte(`{"type":"sync"}`))
	assert.ErrorIs(t, err, ErrUnknownType)
}
