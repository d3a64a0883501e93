package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/SensualOdin/ChickenTendies-sub000/internal/events"
	"github.com/SensualOdin/ChickenTendies-sub000/internal/hub"
)

var _ hub.Session = (*Realtime)(nil)

// Realtime adapts SessionService to the websocket endpoint. Actions sent
// over a socket go through the same paths as their RPC counterparts.
type Realtime struct {
	svc *SessionService
}

// Realtime returns the websocket view of the service.
func (s *SessionService) Realtime() *Realtime {
	return &Realtime{svc: s}
}

// Authorize accepts a connection only for a current member holding a valid
// binding for that member.
func (r *Realtime) Authorize(ctx context.Context, groupID, memberID, token string) error {
	if err := r.svc.signer.Check(memberID, groupID, token); err != nil {
		return err
	}
	return r.svc.requireMember(ctx, groupID, memberID)
}

// Snapshot is the group, its deck and its current matches.
func (r *Realtime) Snapshot(ctx context.Context, groupID, memberID string) (events.Sync, error) {
	group, swipes, err := r.svc.sessions.View(ctx, groupID)
	if err != nil {
		return events.Sync{}, err
	}
	candidates, err := r.svc.candidates.GetCandidates(ctx, groupID)
	if err != nil {
		return events.Sync{}, err
	}
	matches, err := r.svc.matches(ctx, group, swipes)
	if err != nil {
		return events.Sync{}, err
	}
	return events.Sync{
		Group:      group,
		Candidates: candidates,
		Matches:    matches,
		MemberID:   memberID,
	}, nil
}

// HandleAction applies a websocket action for memberID.
func (r *Realtime) HandleAction(ctx context.Context, groupID, memberID string, action events.Action) error {
	var err error
	switch a := action.(type) {
	case events.Swipe:
		_, _, err = r.svc.swipe(ctx, groupID, memberID, a.RestaurantID, a.Liked, a.SuperLiked)
	case events.DoneSwiping:
		_, err = r.svc.doneSwiping(ctx, groupID, memberID)
	case events.NudgeMembers:
		_, err = r.svc.nudge(ctx, groupID, memberID, a.RestaurantID)
	case events.React:
		err = r.svc.react(groupID, memberID, a.Emoji)
	default:
		return fmt.Errorf("unsupported action %q", action.ActionKind())
	}
	if err != nil {
		return errors.New(publicMessage(err))
	}
	return nil
}
