// Package events defines the messages exchanged over the group websocket.
//
// Server messages implement Event and client messages implement Action.
// Both travel as {"type": <kind>, "data": {...}} envelopes; consumers switch
// on the concrete type rather than on the tag.
package events

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/SensualOdin/ChickenTendies-sub000/internal/models"
)

var ErrUnknownType = errors.New("unknown message type")

// Kind tags a server event.
type Kind string

const (
	KindSync               Kind = "sync"
	KindMemberJoined       Kind = "member_joined"
	KindMemberRemoved      Kind = "member_removed"
	KindMemberLeft         Kind = "member_left"
	KindHostChanged        Kind = "host_changed"
	KindPreferencesUpdated Kind = "preferences_updated"
	KindStatusChanged      Kind = "status_changed"
	KindSwipeMade          Kind = "swipe_made"
	KindMatchFound         Kind = "match_found"
	KindNudge              Kind = "nudge"
	KindMemberDone         Kind = "member_done"
	KindReaction           Kind = "reaction"
	KindCandidatesUpdated  Kind = "candidates_updated"
	KindError              Kind = "error"
)

// Event is a server to client message.
type Event interface {
	Kind() Kind
	isEvent()
}

// Sync is the full snapshot sent on every (re)connect and on resync.
type Sync struct {
	Group      *models.Group       `json:"group"`
	Candidates []models.Restaurant `json:"candidates"`
	Matches    []models.Restaurant `json:"matches"`
	// MemberID echoes the identity the connection was accepted as.
	MemberID string `json:"memberId"`
}

type MemberJoined struct {
	Member models.Member `json:"member"`
}

type MemberRemoved struct {
	MemberID string `json:"memberId"`
}

type MemberLeft struct {
	MemberID string `json:"memberId"`
}

type HostChanged struct {
	HostID string `json:"hostId"`
}

type PreferencesUpdated struct {
	Preferences *models.Preferences `json:"preferences"`
}

type StatusChanged struct {
	Status models.Status `json:"status"`
}

// SwipeMade tells the group a vote happened on a restaurant without saying
// who voted or how.
type SwipeMade struct {
	RestaurantID string `json:"restaurantId"`
	Votes        int    `json:"votes"`
}

type MatchFound struct {
	Restaurant models.Restaurant `json:"restaurant"`
}

// Nudge asks its recipients to vote on a restaurant.
type Nudge struct {
	RestaurantID string `json:"restaurantId"`
	FromMemberID string `json:"fromMemberId"`
	FromName     string `json:"fromName"`
}

type MemberDone struct {
	MemberID string `json:"memberId"`
	AllDone  bool   `json:"allDone"`
}

// Reaction is a live emoji; it is relayed and never stored.
type Reaction struct {
	MemberID string `json:"memberId"`
	Emoji    string `json:"emoji"`
}

// CandidatesUpdated carries a deck that grew; clients reset their position.
type CandidatesUpdated struct {
	Candidates []models.Restaurant `json:"candidates"`
	Added      int                 `json:"added"`
}

type Error struct {
	Message string `json:"message"`
}

func (Sync) Kind() Kind               { return KindSync }
func (MemberJoined) Kind() Kind       { return KindMemberJoined }
func (MemberRemoved) Kind() Kind      { return KindMemberRemoved }
func (MemberLeft) Kind() Kind         { return KindMemberLeft }
func (HostChanged) Kind() Kind        { return KindHostChanged }
func (PreferencesUpdated) Kind() Kind { return KindPreferencesUpdated }
func (StatusChanged) Kind() Kind      { return KindStatusChanged }
func (SwipeMade) Kind() Kind          { return KindSwipeMade }
func (MatchFound) Kind() Kind         { return KindMatchFound }
func (Nudge) Kind() Kind              { return KindNudge }
func (MemberDone) Kind() Kind         { return KindMemberDone }
func (Reaction) Kind() Kind           { return KindReaction }
func (CandidatesUpdated) Kind() Kind  { return KindCandidatesUpdated }
func (Error) Kind() Kind              { return KindError }

func (Sync) isEvent()               {}
func (MemberJoined) isEvent()       {}
func (MemberRemoved) isEvent()      {}
func (MemberLeft) isEvent()         {}
func (HostChanged) isEvent()        {}
func (PreferencesUpdated) isEvent() {}
func (StatusChanged) isEvent()      {}
func (SwipeMade) isEvent()          {}
func (MatchFound) isEvent()         {}
func (Nudge) isEvent()              {}
func (MemberDone) isEvent()         {}
func (Reaction) isEvent()           {}
func (CandidatesUpdated) isEvent()  {}
func (Error) isEvent()              {}

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func encode(kind string, v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", kind, err)
	}
	return json.Marshal(envelope{Type: kind, Data: data})
}

// Encode wraps e in its envelope.
func Encode(e Event) ([]byte, error) {
	return encode(string(e.Kind()), e)
}

// Decode parses a server message.
func Decode(raw []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("failed to decode envelope: %w", err)
	}

	switch Kind(env.Type) {
	case KindSync:
		return as[Sync](env)
	case KindMemberJoined:
		return as[MemberJoined](env)
	case KindMemberRemoved:
		return as[MemberRemoved](env)
	case KindMemberLeft:
		return as[MemberLeft](env)
	case KindHostChanged:
		return as[HostChanged](env)
	case KindPreferencesUpdated:
		return as[PreferencesUpdated](env)
	case KindStatusChanged:
		return as[StatusChanged](env)
	case KindSwipeMade:
		return as[SwipeMade](env)
	case KindMatchFound:
		return as[MatchFound](env)
	case KindNudge:
		return as[Nudge](env)
	case KindMemberDone:
		return as[MemberDone](env)
	case KindReaction:
		return as[Reaction](env)
	case KindCandidatesUpdated:
		return as[CandidatesUpdated](env)
	case KindError:
		return as[Error](env)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
}

func as[T Event](env envelope) (Event, error) {
	v, err := decodeData[T](env)
	if err != nil {
		return nil, err
	}
	return v, nil
}

func decodeData[T any](env envelope) (T, error) {
	var v T
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return v, nil
	}
	if err := json.Unmarshal(env.Data, &v); err != nil {
		return v, fmt.Errorf("failed to decode %s: %w", env.Type, err)
	}
	return v, nil
}
