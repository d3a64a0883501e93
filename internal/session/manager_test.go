package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/SensualOdin/ChickenTendies-sub000/internal/binding"
	"github.com/SensualOdin/ChickenTendies-sub000/internal/match"
	"github.com/SensualOdin/ChickenTendies-sub000/internal/models"
	"github.com/SensualOdin/ChickenTendies-sub000/internal/storage/memory"
)

type countingInvalidator struct {
	mu    sync.Mutex
	calls map[string]int
}

func (c *countingInvalidator) Invalidate(groupID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.calls == nil {
		c.calls = make(map[string]int)
	}
	c.calls[groupID]++
}

func (c *countingInvalidator) count(groupID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[groupID]
}

func fixedCode(code string) func() (string, error) {
	return func() (string, error) { return code, nil }
}

func newTestManager(t *testing.T, opts ...Option) *Manager {
	t.Helper()
	return NewManager(memory.New(), binding.NewLeaderTokens(bcrypt.MinCost), opts...)
}

func austin() models.Preferences {
	return models.Preferences{Location: "Austin, TX", RadiusMiles: 5, PriceRange: []int{1, 2}}
}

func TestCreateAndJoin(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, WithCodeGenerator(fixedCode("ABC123")))

	created, err := m.CreateGroup(ctx, "Friday", "Alice")
	require.NoError(t, err)
	assert.Equal(t, "ABC123", created.Group.Code)
	assert.Equal(t, models.StatusWaiting, created.Group.Status)
	assert.True(t, created.Host.IsHost)
	assert.NotEmpty(t, created.LeaderToken)
	assert.NotEqual(t, created.LeaderToken, created.Group.LeaderTokenHash)

	group, bob, err := m.JoinGroup(ctx, " abc123 ", "Bob")
	require.NoError(t, err)
	assert.False(t, bob.IsHost)
	assert.Len(t, group.Members, 2)
	assert.True(t, group.IsHost(created.Host.ID))

	_, _, err = m.JoinGroup(ctx, "ZZZZZZ", "Carol")
	assert.ErrorIs(t, err, ErrGroupNotFound)

	_, _, err = m.JoinGroup(ctx, "ABC", "Carol")
	assert.ErrorIs(t, err, ErrInvalidCode)

	_, _, err = m.JoinGroup(ctx, "ABC123", "   ")
	assert.ErrorIs(t, err, ErrInvalidName)
}

func TestCreateGroupRetriesTakenCodes(t *testing.T) {
	ctx := context.Background()
	codes := []string{"AAAAAA", "AAAAAA", "BBBBBB"}
	var i int
	m := newTestManager(t, WithCodeGenerator(func() (string, error) {
		code := codes[i]
		i++
		return code, nil
	}))

	first, err := m.CreateGroup(ctx, "", "Alice")
	require.NoError(t, err)
	assert.Equal(t, "Dinner", first.Group.Name)

	second, err := m.CreateGroup(ctx, "", "Bob")
	require.NoError(t, err)
	assert.Equal(t, "BBBBBB", second.Group.Code)
}

func TestCreateGroupGivesUpAfterRepeatedCollisions(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, WithCodeGenerator(fixedCode("AAAAAA")))

	_, err := m.CreateGroup(ctx, "", "Alice")
	require.NoError(t, err)
	_, err = m.CreateGroup(ctx, "", "Bob")
	assert.Error(t, err)
}

func TestEndToEndMatchThenNewRound(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, WithCodeGenerator(fixedCode("ABC123")))
	candidates := []models.Restaurant{{ID: "r1"}, {ID: "r2"}}

	created, err := m.CreateGroup(ctx, "Friday", "A")
	require.NoError(t, err)
	groupID := created.Group.ID
	_, b, err := m.JoinGroup(ctx, "ABC123", "B")
	require.NoError(t, err)

	_, err = m.StartSession(ctx, groupID, austin())
	require.NoError(t, err)

	_, err = m.RecordSwipe(ctx, groupID, models.Swipe{MemberID: created.Host.ID, RestaurantID: "r1", Liked: true})
	require.NoError(t, err)
	_, err = m.RecordSwipe(ctx, groupID, models.Swipe{MemberID: b.ID, RestaurantID: "r1", Liked: true})
	require.NoError(t, err)

	group, swipes, err := m.View(ctx, groupID)
	require.NoError(t, err)
	matches := match.Unanimous(group.MemberIDs(), candidates, swipes)
	require.Len(t, matches, 1)
	assert.Equal(t, "r1", matches[0].ID)

	_, allDone, err := m.MarkDoneSwiping(ctx, groupID, b.ID)
	require.NoError(t, err)
	assert.False(t, allDone)

	group, err = m.StartSession(ctx, groupID, austin())
	require.NoError(t, err)
	for _, mem := range group.Members {
		assert.False(t, mem.DoneSwiping)
	}
	group, swipes, err = m.View(ctx, groupID)
	require.NoError(t, err)
	assert.Empty(t, swipes)
	assert.Empty(t, match.Unanimous(group.MemberIDs(), candidates, swipes))
}

func TestMarkDoneSwipingReportsAllDone(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)
	created, err := m.CreateGroup(ctx, "", "A")
	require.NoError(t, err)
	groupID := created.Group.ID
	_, b, err := m.AddMember(ctx, groupID, "B")
	require.NoError(t, err)

	_, allDone, err := m.MarkDoneSwiping(ctx, groupID, created.Host.ID)
	require.NoError(t, err)
	assert.False(t, allDone)

	_, allDone, err = m.MarkDoneSwiping(ctx, groupID, b.ID)
	require.NoError(t, err)
	assert.True(t, allDone)

	_, _, err = m.MarkDoneSwiping(ctx, groupID, "nobody")
	assert.ErrorIs(t, err, ErrMemberNotFound)
}

func TestUpdatePreferences(t *testing.T) {
	ctx := context.Background()
	inv := &countingInvalidator{}
	m := newTestManager(t, WithCandidateInvalidator(inv))
	created, err := m.CreateGroup(ctx, "", "A")
	require.NoError(t, err)
	groupID := created.Group.ID

	_, _, err = m.MarkDoneSwiping(ctx, groupID, created.Host.ID)
	require.NoError(t, err)

	prefs := austin()
	group, err := m.UpdatePreferences(ctx, groupID, prefs)
	require.NoError(t, err)
	require.NotNil(t, group.Preferences)
	assert.Equal(t, "Austin, TX", group.Preferences.Location)
	assert.False(t, group.Members[0].DoneSwiping)
	assert.Equal(t, 1, inv.count(groupID))

	// The stored value must not alias the caller's slice.
	prefs.PriceRange[0] = 4
	got, err := m.Preferences(ctx, groupID)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, got.PriceRange)

	_, err = m.UpdatePreferences(ctx, groupID, models.Preferences{RadiusMiles: 5})
	assert.ErrorIs(t, err, models.ErrInvalidPreferences)
	_, err = m.UpdatePreferences(ctx, groupID, models.Preferences{Location: "x", RadiusMiles: 30})
	assert.ErrorIs(t, err, models.ErrInvalidPreferences)
}

func TestStatusTransitions(t *testing.T) {
	ctx := context.Background()
	inv := &countingInvalidator{}
	m := newTestManager(t, WithCandidateInvalidator(inv))
	created, err := m.CreateGroup(ctx, "", "A")
	require.NoError(t, err)
	groupID := created.Group.ID

	_, err = m.SetStatus(ctx, groupID, models.StatusCompleted)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	group, err := m.SetStatus(ctx, groupID, models.StatusConfiguring)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfiguring, group.Status)

	_, err = m.RecordSwipe(ctx, groupID, models.Swipe{MemberID: created.Host.ID, RestaurantID: "r1", Liked: true})
	require.NoError(t, err)

	group, err = m.SetStatus(ctx, groupID, models.StatusSwiping)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSwiping, group.Status)
	assert.Equal(t, 1, inv.count(groupID))
	swipes, err := m.Swipes(ctx, groupID)
	require.NoError(t, err)
	assert.Empty(t, swipes)

	_, err = m.SetStatus(ctx, groupID, models.StatusWaiting)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	group, err = m.SetStatus(ctx, groupID, models.StatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, group.Status)

	_, err = m.SetStatus(ctx, "missing", models.StatusSwiping)
	assert.ErrorIs(t, err, ErrGroupNotFound)
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to models.Status
		want     bool
	}{
		{models.StatusWaiting, models.StatusConfiguring, true},
		{models.StatusConfiguring, models.StatusWaiting, true},
		{models.StatusWaiting, models.StatusSwiping, true},
		{models.StatusCompleted, models.StatusSwiping, true},
		{models.StatusSwiping, models.StatusSwiping, true},
		{models.StatusSwiping, models.StatusCompleted, true},
		{models.StatusWaiting, models.StatusCompleted, false},
		{models.StatusCompleted, models.StatusWaiting, false},
		{models.StatusSwiping, models.StatusConfiguring, false},
		{models.StatusWaiting, models.Status("bogus"), false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s->%s", tt.from, tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestRemoveMember(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)
	created, err := m.CreateGroup(ctx, "", "A")
	require.NoError(t, err)
	groupID := created.Group.ID
	_, b, err := m.AddMember(ctx, groupID, "B")
	require.NoError(t, err)

	_, err = m.RemoveMember(ctx, groupID, created.Host.ID)
	assert.ErrorIs(t, err, ErrHostRemoval)

	group, err := m.RemoveMember(ctx, groupID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{created.Host.ID}, group.MemberIDs())

	_, err = m.RemoveMember(ctx, groupID, b.ID)
	assert.ErrorIs(t, err, ErrMemberNotFound)
}

func TestTransferHost(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)
	created, err := m.CreateGroup(ctx, "", "A")
	require.NoError(t, err)
	groupID := created.Group.ID
	_, b, err := m.AddMember(ctx, groupID, "B")
	require.NoError(t, err)

	_, err = m.TransferHost(ctx, groupID, b.ID, created.Host.ID)
	assert.ErrorIs(t, err, ErrNotHost)

	group, err := m.TransferHost(ctx, groupID, created.Host.ID, b.ID)
	require.NoError(t, err)
	assert.True(t, group.IsHost(b.ID))
	assert.False(t, group.IsHost(created.Host.ID))

	_, err = m.TransferHost(ctx, groupID, b.ID, "nobody")
	assert.ErrorIs(t, err, ErrMemberNotFound)

	// The former host can now be removed.
	_, err = m.RemoveMember(ctx, groupID, created.Host.ID)
	assert.NoError(t, err)
}

func TestRecordSwipe(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 10, 1, 19, 0, 0, 0, time.UTC)
	m := newTestManager(t, WithClock(func() time.Time { return now }))
	created, err := m.CreateGroup(ctx, "", "A")
	require.NoError(t, err)
	groupID := created.Group.ID

	sw, err := m.RecordSwipe(ctx, groupID, models.Swipe{MemberID: created.Host.ID, RestaurantID: "r1", SuperLiked: true})
	require.NoError(t, err)
	assert.True(t, sw.Liked)
	assert.True(t, sw.Timestamp.Equal(now))

	_, err = m.RecordSwipe(ctx, groupID, models.Swipe{MemberID: "stranger", RestaurantID: "r1", Liked: true})
	assert.ErrorIs(t, err, ErrMemberNotFound)

	_, err = m.RecordSwipe(ctx, groupID, models.Swipe{MemberID: created.Host.ID})
	assert.ErrorIs(t, err, ErrInvalidSwipe)

	_, err = m.RecordSwipe(ctx, "missing", models.Swipe{MemberID: created.Host.ID, RestaurantID: "r1"})
	assert.ErrorIs(t, err, ErrGroupNotFound)

	// Swiping the same restaurant again replaces the earlier vote.
	_, err = m.RecordSwipe(ctx, groupID, models.Swipe{MemberID: created.Host.ID, RestaurantID: "r1", Liked: false})
	require.NoError(t, err)
	swipes, err := m.Swipes(ctx, groupID)
	require.NoError(t, err)
	require.Len(t, swipes, 1)
	assert.False(t, swipes[0].Liked)
}

func TestConcurrentSwipesAreNotLost(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)
	created, err := m.CreateGroup(ctx, "", "A")
	require.NoError(t, err)
	groupID := created.Group.ID

	const members = 8
	const perMember = 10
	ids := []string{created.Host.ID}
	for i := 1; i < members; i++ {
		_, mem, err := m.AddMember(ctx, groupID, fmt.Sprintf("M%d", i))
		require.NoError(t, err)
		ids = append(ids, mem.ID)
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(memberID string) {
			defer wg.Done()
			for r := 0; r < perMember; r++ {
				_, err := m.RecordSwipe(ctx, groupID, models.Swipe{
					MemberID:     memberID,
					RestaurantID: fmt.Sprintf("r%d", r),
					Liked:        true,
				})
				assert.NoError(t, err)
			}
			_, _, err := m.MarkDoneSwiping(ctx, groupID, memberID)
			assert.NoError(t, err)
		}(id)
	}
	wg.Wait()

	group, swipes, err := m.View(ctx, groupID)
	require.NoError(t, err)
	assert.Len(t, swipes, members*perMember)
	assert.True(t, group.AllDoneSwiping())
	assert.Zero(t, m.locks.size())
}

func TestReclaimLeadership(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)
	created, err := m.CreateGroup(ctx, "", "Alice")
	require.NoError(t, err)
	groupID := created.Group.ID
	_, b, err := m.AddMember(ctx, groupID, "Bob")
	require.NoError(t, err)
	_, err = m.TransferHost(ctx, groupID, created.Host.ID, b.ID)
	require.NoError(t, err)

	t.Run("wrong token", func(t *testing.T) {
		_, _, err := m.ReclaimLeadership(ctx, groupID, created.LeaderToken+"x", "Alice")
		assert.ErrorIs(t, err, ErrLeaderTokenMismatch)
		_, _, err = m.ReclaimLeadership(ctx, groupID, "", "Alice")
		assert.ErrorIs(t, err, ErrLeaderTokenMismatch)
	})

	t.Run("existing member by name", func(t *testing.T) {
		group, host, err := m.ReclaimLeadership(ctx, groupID, created.LeaderToken, "alice")
		require.NoError(t, err)
		assert.Equal(t, created.Host.ID, host.ID)
		assert.True(t, group.IsHost(created.Host.ID))
		assert.False(t, group.IsHost(b.ID))
		assert.Len(t, group.Members, 2)
	})

	t.Run("unknown name adds a new host", func(t *testing.T) {
		group, host, err := m.ReclaimLeadership(ctx, groupID, created.LeaderToken, "Alice (phone)")
		require.NoError(t, err)
		assert.Len(t, group.Members, 3)
		assert.True(t, host.IsHost)
		hosts := 0
		for _, mem := range group.Members {
			if mem.IsHost {
				hosts++
			}
		}
		assert.Equal(t, 1, hosts)
	})

	t.Run("another member's name is not re-attached", func(t *testing.T) {
		group, host, err := m.ReclaimLeadership(ctx, groupID, created.LeaderToken, "bob")
		require.NoError(t, err)
		assert.NotEqual(t, b.ID, host.ID)
		assert.False(t, group.IsHost(b.ID))
		assert.Len(t, group.Members, 4)

		again, _, err := m.ReclaimLeadership(ctx, groupID, created.LeaderToken, "BOB")
		require.NoError(t, err)
		assert.True(t, again.IsHost(host.ID))
		assert.Len(t, again.Members, 4)
	})

	t.Run("unknown group", func(t *testing.T) {
		_, _, err := m.ReclaimLeadership(ctx, "missing", created.LeaderToken, "Alice")
		assert.ErrorIs(t, err, ErrGroupNotFound)
	})
}

func TestReclaimLeadershipIgnoresNamesakes(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)
	created, err := m.CreateGroup(ctx, "", "Alice")
	require.NoError(t, err)
	groupID := created.Group.ID
	_, b, err := m.AddMember(ctx, groupID, "Bob")
	require.NoError(t, err)

	group, host, err := m.ReclaimLeadership(ctx, groupID, created.LeaderToken, "Bob")
	require.NoError(t, err)
	assert.NotEqual(t, b.ID, host.ID)
	assert.False(t, group.IsHost(created.Host.ID))
	assert.False(t, group.IsHost(b.ID))
	assert.True(t, group.IsHost(host.ID))
	assert.Len(t, group.Members, 3)
}

// failingWrites rejects every group write.
type failingWrites struct {
	*memory.Store
	err error
}

func (f failingWrites) UpdateGroup(context.Context, *models.Group) error { return f.err }

func (f failingWrites) StartRound(context.Context, *models.Group) error { return f.err }

func TestFailedWriteLeavesRoundIntact(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	leaders := binding.NewLeaderTokens(bcrypt.MinCost)
	inv := &countingInvalidator{}
	m := NewManager(store, leaders, WithCandidateInvalidator(inv))
	created, err := m.CreateGroup(ctx, "", "Alice")
	require.NoError(t, err)
	groupID := created.Group.ID

	_, err = m.StartSession(ctx, groupID, austin())
	require.NoError(t, err)
	_, err = m.RecordSwipe(ctx, groupID, models.Swipe{MemberID: created.Host.ID, RestaurantID: "r1", Liked: true})
	require.NoError(t, err)
	_, err = m.SetStatus(ctx, groupID, models.StatusCompleted)
	require.NoError(t, err)
	require.Equal(t, 1, inv.count(groupID))

	diskFull := errors.New("disk full")
	broken := NewManager(failingWrites{Store: store, err: diskFull}, leaders, WithCandidateInvalidator(inv))

	_, err = broken.SetStatus(ctx, groupID, models.StatusSwiping)
	assert.ErrorIs(t, err, diskFull)
	_, err = broken.UpdatePreferences(ctx, groupID, models.Preferences{Location: "Denver, CO", RadiusMiles: 3})
	assert.ErrorIs(t, err, diskFull)

	group, swipes, err := m.View(ctx, groupID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, group.Status)
	assert.Equal(t, "Austin, TX", group.Preferences.Location)
	assert.Len(t, swipes, 1)
	assert.Equal(t, 1, inv.count(groupID))
}

func TestNormalizeCode(t *testing.T) {
	code, err := NormalizeCode("  xk7p2m ")
	require.NoError(t, err)
	assert.Equal(t, "XK7P2M", code)

	_, err = NormalizeCode("XK7P2")
	assert.ErrorIs(t, err, ErrInvalidCode)
}

func TestNewCode(t *testing.T) {
	for i := 0; i < 100; i++ {
		code, err := NewCode()
		require.NoError(t, err)
		require.Len(t, code, CodeLength)
		for _, c := range code {
			assert.Contains(t, codeAlphabet, string(c))
		}
	}
}

func TestAsHostIsCheckedAtWriteTime(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)
	created, err := m.CreateGroup(ctx, "Friday", "Alice")
	require.NoError(t, err)
	groupID, alice := created.Group.ID, created.Host.ID
	_, bob, err := m.AddMember(ctx, groupID, "Bob")
	require.NoError(t, err)

	_, err = m.UpdatePreferences(AsHost(ctx, bob.ID), groupID, austin())
	require.ErrorIs(t, err, ErrNotHost)
	group, err := m.GetGroup(ctx, groupID)
	require.NoError(t, err)
	assert.Nil(t, group.Preferences, "rejected update leaves no trace")

	_, err = m.StartSession(AsHost(ctx, alice), groupID, austin())
	require.NoError(t, err)

	_, err = m.TransferHost(ctx, groupID, alice, bob.ID)
	require.NoError(t, err)
	_, err = m.SetStatus(AsHost(ctx, alice), groupID, models.StatusCompleted)
	assert.ErrorIs(t, err, ErrNotHost, "a former host loses host actions")
	_, err = m.SetStatus(AsHost(ctx, bob.ID), groupID, models.StatusCompleted)
	assert.NoError(t, err)
}

func TestGetGroupByCode(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, WithCodeGenerator(fixedCode("XYZ789")))
	created, err := m.CreateGroup(ctx, "Friday", "Alice")
	require.NoError(t, err)

	group, err := m.GetGroupByCode(ctx, "xyz789")
	require.NoError(t, err)
	assert.Equal(t, created.Group.ID, group.ID)

	_, err = m.GetGroupByCode(ctx, "XYZ78")
	assert.ErrorIs(t, err, ErrInvalidCode)
	_, err = m.GetGroupByCode(ctx, "QQQQQQ")
	assert.ErrorIs(t, err, ErrGroupNotFound)
}
