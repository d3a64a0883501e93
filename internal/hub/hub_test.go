package hub

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SensualOdin/ChickenTendies-sub000/internal/events"
)

// readyConn returns a registered connection without a socket; tests read
// its queue directly.
func readyConn(t *testing.T, h *Hub, groupID, memberID string) *Conn {
	t.Helper()
	c := newConn(nil, groupID, memberID)
	h.Register(c)
	raw, err := events.Encode(events.Sync{MemberID: memberID})
	require.NoError(t, err)
	c.start(raw)
	<-c.send // drop the snapshot
	return c
}

func drain(c *Conn) []events.Event {
	var out []events.Event
	for {
		select {
		case raw, ok := <-c.send:
			if !ok {
				return out
			}
			e, err := events.Decode(raw)
			if err == nil {
				out = append(out, e)
			}
		default:
			return out
		}
	}
}

func TestBroadcastExcludesOrigin(t *testing.T) {
	h := New(nil)
	a := readyConn(t, h, "g1", "a")
	b := readyConn(t, h, "g1", "b")
	other := readyConn(t, h, "g2", "c")

	h.Broadcast("g1", events.SwipeMade{RestaurantID: "r1", Votes: 1}, "a")

	assert.Empty(t, drain(a))
	assert.Equal(t, []events.Event{events.SwipeMade{RestaurantID: "r1", Votes: 1}}, drain(b))
	assert.Empty(t, drain(other))

	h.Broadcast("g1", events.StatusChanged{Status: "swiping"}, "")
	assert.Len(t, drain(a), 1)
	assert.Len(t, drain(b), 1)
}

func TestSendToTargetsMembers(t *testing.T) {
	h := New(nil)
	a := readyConn(t, h, "g1", "a")
	b := readyConn(t, h, "g1", "b")
	c := readyConn(t, h, "g1", "c")

	h.SendTo("g1", []string{"b", "c"}, events.Nudge{RestaurantID: "r1", FromMemberID: "a"})
	assert.Empty(t, drain(a))
	assert.Len(t, drain(b), 1)
	assert.Len(t, drain(c), 1)

	h.SendTo("g1", nil, events.Nudge{RestaurantID: "r1"})
	assert.Empty(t, drain(b))
}

func TestUnregisterOnlyAffectsThatConnection(t *testing.T) {
	h := New(nil)
	a1 := readyConn(t, h, "g1", "a")
	a2 := readyConn(t, h, "g1", "a")
	b := readyConn(t, h, "g2", "b")

	h.Unregister(a1)
	h.Unregister(a1)
	assert.Equal(t, 1, h.Count("g1"))
	assert.Equal(t, []string{"a"}, h.Connected("g1"))
	assert.Equal(t, 1, h.Count("g2"))

	_, ok := <-a1.send
	assert.False(t, ok, "send queue closed")

	h.Broadcast("g1", events.MemberLeft{MemberID: "x"}, "")
	assert.Len(t, drain(a2), 1)
	assert.Empty(t, drain(b))

	h.Unregister(a2)
	assert.Zero(t, h.Count("g1"))
}

func TestSlowConnectionIsDropped(t *testing.T) {
	h := New(nil)
	readyConn(t, h, "g1", "slow")
	fast := readyConn(t, h, "g1", "fast")

	for i := 0; i <= sendBuffer; i++ {
		h.Broadcast("g1", events.SwipeMade{RestaurantID: "r1", Votes: i}, "fast")
		drain(fast)
	}
	h.Broadcast("g1", events.SwipeMade{RestaurantID: "r2"}, "")

	assert.Equal(t, []string{"fast"}, h.Connected("g1"))
	assert.Len(t, drain(fast), 1)
}

func TestEventsBeforeSnapshotAreHeld(t *testing.T) {
	h := New(nil)
	c := newConn(nil, "g1", "a")
	h.Register(c)

	h.Broadcast("g1", events.MemberJoined{}, "")
	select {
	case <-c.send:
		t.Fatal("event delivered before snapshot")
	default:
	}

	raw, err := events.Encode(events.Sync{MemberID: "a"})
	require.NoError(t, err)
	c.start(raw)

	got := drain(c)
	require.Len(t, got, 2)
	assert.IsType(t, events.Sync{}, got[0])
	assert.IsType(t, events.MemberJoined{}, got[1])
}

func TestDisconnectSendsThenCloses(t *testing.T) {
	h := New(nil)
	a := readyConn(t, h, "g1", "a")
	b := readyConn(t, h, "g1", "b")

	h.Disconnect("g1", "b", events.MemberRemoved{MemberID: "b"})

	got := drain(b)
	require.Len(t, got, 1)
	assert.Equal(t, events.MemberRemoved{MemberID: "b"}, got[0])
	assert.Equal(t, []string{"a"}, h.Connected("g1"))
	assert.Empty(t, drain(a))
}

func TestClose(t *testing.T) {
	h := New(nil)
	readyConn(t, h, "g1", "a")
	readyConn(t, h, "g2", "b")
	h.Close()
	assert.Zero(t, h.Count("g1"))
	assert.Zero(t, h.Count("g2"))
}
