package events

import (
	"encoding/json"
	"fmt"
)

// ActionKind tags a client action.
type ActionKind string

const (
	ActionSwipe       ActionKind = "swipe"
	ActionDoneSwiping ActionKind = "done_swiping"
	ActionNudge       ActionKind = "nudge"
	ActionReaction    ActionKind = "reaction"
	ActionResync      ActionKind = "resync"
)

// Action is a client to server message. The acting member is always the
// one the connection was accepted as.
type Action interface {
	ActionKind() ActionKind
	isAction()
}

type Swipe struct {
	RestaurantID string `json:"restaurantId"`
	Liked        bool   `json:"liked"`
	SuperLiked   bool   `json:"superLiked,omitempty"`
}

type DoneSwiping struct{}

type NudgeMembers struct {
	RestaurantID string `json:"restaurantId"`
}

type React struct {
	Emoji string `json:"emoji"`
}

// Resync asks for a fresh Sync snapshot.
type Resync struct{}

func (Swipe) ActionKind() ActionKind        { return ActionSwipe }
func (DoneSwiping) ActionKind() ActionKind  { return ActionDoneSwiping }
func (NudgeMembers) ActionKind() ActionKind { return ActionNudge }
func (React) ActionKind() ActionKind        { return ActionReaction }
func (Resync) ActionKind() ActionKind       { return ActionResync }

func (Swipe) isAction()        {}
func (DoneSwiping) isAction()  {}
func (NudgeMembers) isAction() {}
func (React) isAction()        {}
func (Resync) isAction()       {}

// EncodeAction wraps a in its envelope.
func EncodeAction(a Action) ([]byte, error) {
	return encode(string(a.ActionKind()), a)
}

// DecodeAction parses a client message.
func DecodeAction(raw []byte) (Action, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("failed to decode envelope: %w", err)
	}

	switch ActionKind(env.Type) {
	case ActionSwipe:
		return asAction[Swipe](env)
	case ActionDoneSwiping:
		return DoneSwiping{}, nil
	case ActionNudge:
		return asAction[NudgeMembers](env)
	case ActionReaction:
		return asAction[React](env)
	case ActionResync:
		return Resync{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
}

func asAction[T Action](env envelope) (Action, error) {
	v, err := decodeData[T](env)
	if err != nil {
		return nil, err
	}
	return v, nil
}
