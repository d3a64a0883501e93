package models

import "time"

// Status is the lifecycle state of a group.
type Status string

const (
	StatusWaiting     Status = "waiting"
	StatusConfiguring Status = "configuring"
	StatusSwiping     Status = "swiping"
	StatusCompleted   Status = "completed"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusWaiting, StatusConfiguring, StatusSwiping, StatusCompleted:
		return true
	}
	return false
}

// Group represents one dining session.
type Group struct {
	// ID is the unique identifier for the group (UUID format).
	ID string `json:"id"`

	// Code is the 6-character share code used to join.
	Code string `json:"code"`

	// Name is the display name of the group (e.g., "Friday Dinner").
	Name string `json:"name"`

	// Members in join order. Exactly one member has IsHost set at steady state.
	Members []Member `json:"members"`

	// Preferences is nil until the host configures the round.
	Preferences *Preferences `json:"preferences"`

	Status Status `json:"status"`

	CreatedAt time.Time `json:"createdAt"`

	// LeaderTokenHash is the bcrypt hash of the leader token issued at creation.
	// It never leaves the server.
	LeaderTokenHash string `json:"-"`

	// LeaderMemberID is the member the leader token belongs to: the creator,
	// or the member last minted by a reclaim.
	LeaderMemberID string `json:"-"`
}

// Member is one participant of a group.
type Member struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	IsHost      bool      `json:"isHost"`
	JoinedAt    time.Time `json:"joinedAt"`
	DoneSwiping bool      `json:"doneSwiping"`
}

// Clone returns a deep copy of the group.
func (g *Group) Clone() *Group {
	if g == nil {
		return nil
	}
	c := *g
	c.Members = append([]Member(nil), g.Members...)
	if g.Preferences != nil {
		p := g.Preferences.Clone()
		c.Preferences = &p
	}
	return &c
}

// Member returns the member with the given ID.
func (g *Group) Member(id string) (*Member, bool) {
	for i := range g.Members {
		if g.Members[i].ID == id {
			return &g.Members[i], true
		}
	}
	return nil, false
}

// Host returns the current host, if any.
func (g *Group) Host() (*Member, bool) {
	for i := range g.Members {
		if g.Members[i].IsHost {
			return &g.Members[i], true
		}
	}
	return nil, false
}

// IsHost reports whether memberID is a member of the group with host privileges.
func (g *Group) IsHost(memberID string) bool {
	m, ok := g.Member(memberID)
	return ok && m.IsHost
}

// MemberIDs returns the IDs of the current members in join order.
func (g *Group) MemberIDs() []string {
	ids := make([]string, len(g.Members))
	for i, m := range g.Members {
		ids[i] = m.ID
	}
	return ids
}

// AllDoneSwiping reports whether every member has marked themselves done.
// An empty group is never done.
func (g *Group) AllDoneSwiping() bool {
	if len(g.Members) == 0 {
		return false
	}
	for _, m := range g.Members {
		if !m.DoneSwiping {
			return false
		}
	}
	return true
}
