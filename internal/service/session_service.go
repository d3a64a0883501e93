package service

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"connectrpc.com/connect"

	"github.com/SensualOdin/ChickenTendies-sub000/internal/binding"
	"github.com/SensualOdin/ChickenTendies-sub000/internal/events"
	"github.com/SensualOdin/ChickenTendies-sub000/internal/hub"
	"github.com/SensualOdin/ChickenTendies-sub000/internal/match"
	"github.com/SensualOdin/ChickenTendies-sub000/internal/metrics"
	"github.com/SensualOdin/ChickenTendies-sub000/internal/models"
	"github.com/SensualOdin/ChickenTendies-sub000/internal/notify"
	"github.com/SensualOdin/ChickenTendies-sub000/internal/ratelimit"
	"github.com/SensualOdin/ChickenTendies-sub000/internal/session"
)

const (
	notifyTimeout  = 10 * time.Second
	maxEmojiLength = 8

	// announceIdleTTL is how long a group's announced matches are kept
	// without any activity.
	announceIdleTTL = 6 * time.Hour
)

var (
	errMissingRestaurant = errors.New("restaurant required")
	errInvalidEmoji      = errors.New("reaction must be a short emoji")
	errMissingTarget     = errors.New("target member required")
)

// CandidateSource serves the shared candidate deck of a group.
type CandidateSource interface {
	GetCandidates(ctx context.Context, groupID string) ([]models.Restaurant, error)
	LoadMore(ctx context.Context, groupID string) ([]models.Restaurant, int, error)
}

// SessionService implements the Connect SessionService and the websocket
// session of the hub.
type SessionService struct {
	sessions   *session.Manager
	candidates CandidateSource
	hub        *hub.Hub
	signer     *binding.Signer

	rule          match.Rule
	notifier      notify.Notifier
	metrics       *metrics.Metrics
	nudges        *ratelimit.Limiter
	reactions     *ratelimit.Limiter
	bindingTTL    time.Duration
	secureCookies bool

	now       func() time.Time
	mu        sync.Mutex
	announced map[string]*announcement
	lastSweep time.Time
}

// announcement remembers which matches of a group were already broadcast.
type announcement struct {
	mu  sync.Mutex
	ids map[string]struct{}
	// lastUsed is guarded by SessionService.mu.
	lastUsed time.Time
}

// Option configures a SessionService.
type Option func(*SessionService)

// WithMatchRule selects the consensus rule.
func WithMatchRule(rule match.Rule) Option {
	return func(s *SessionService) { s.rule = rule }
}

// WithNotifier sets who is told when a whole group is done swiping.
func WithNotifier(n notify.Notifier) Option {
	return func(s *SessionService) { s.notifier = n }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *SessionService) { s.metrics = m }
}

// WithRateLimits overrides the per-member nudge and reaction limiters.
func WithRateLimits(nudges, reactions *ratelimit.Limiter) Option {
	return func(s *SessionService) {
		s.nudges = nudges
		s.reactions = reactions
	}
}

// WithBindingCookie sets the max age and Secure flag of the binding cookie.
func WithBindingCookie(ttl time.Duration, secure bool) Option {
	return func(s *SessionService) {
		s.bindingTTL = ttl
		s.secureCookies = secure
	}
}

// NewSessionService creates the service.
func NewSessionService(sessions *session.Manager, candidates CandidateSource, h *hub.Hub, signer *binding.Signer, opts ...Option) *SessionService {
	s := &SessionService{
		sessions:   sessions,
		candidates: candidates,
		hub:        h,
		signer:     signer,
		rule:       match.RuleSuperLike,
		notifier:   notify.LogNotifier{},
		nudges:     ratelimit.New(5, time.Minute, 3),
		reactions:  ratelimit.New(30, time.Minute, 10),
		announced:  make(map[string]*announcement),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateGroup creates a group and binds the caller as its host.
func (s *SessionService) CreateGroup(ctx context.Context, req *connect.Request[CreateGroupRequest]) (*connect.Response[CreateGroupResponse], error) {
	slog.Info("CreateGroup request received", "name", req.Msg.Name)

	created, err := s.sessions.CreateGroup(ctx, req.Msg.Name, req.Msg.HostName)
	if err != nil {
		return nil, toConnectError("CreateGroup", err)
	}
	s.metrics.GroupCreated()

	token, err := s.signer.Extend(binding.FromHeader(req.Header()), created.Group.ID, created.Host.ID)
	if err != nil {
		return nil, toConnectError("CreateGroup", err)
	}

	resp := connect.NewResponse(&CreateGroupResponse{
		Group:        created.Group,
		HostMemberID: created.Host.ID,
		LeaderToken:  created.LeaderToken,
		Binding:      token,
	})
	s.setBindingCookie(resp.Header(), token)
	return resp, nil
}

// JoinGroup adds the caller to the group with the given code.
func (s *SessionService) JoinGroup(ctx context.Context, req *connect.Request[JoinGroupRequest]) (*connect.Response[JoinGroupResponse], error) {
	slog.Info("JoinGroup request received", "code", req.Msg.Code)

	group, member, err := s.sessions.JoinGroup(ctx, req.Msg.Code, req.Msg.Name)
	if err != nil {
		return nil, toConnectError("JoinGroup", err)
	}

	token, err := s.signer.Extend(binding.FromHeader(req.Header()), group.ID, member.ID)
	if err != nil {
		return nil, toConnectError("JoinGroup", err)
	}

	s.hub.Broadcast(group.ID, events.MemberJoined{Member: member}, member.ID)

	resp := connect.NewResponse(&JoinGroupResponse{Group: group, MemberID: member.ID, Binding: token})
	s.setBindingCookie(resp.Header(), token)
	return resp, nil
}

// GetGroup returns a group. When a member is named, the caller must hold
// that member's binding and the member must still be in the group.
func (s *SessionService) GetGroup(ctx context.Context, req *connect.Request[GetGroupRequest]) (*connect.Response[GroupResponse], error) {
	groupID, memberID := req.Msg.GroupID, req.Msg.MemberID
	if groupID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("groupId required"))
	}
	if memberID != "" {
		if err := s.signer.Check(memberID, groupID, binding.FromHeader(req.Header())); err != nil {
			return nil, toConnectError("GetGroup", err)
		}
	}

	group, err := s.sessions.GetGroup(ctx, groupID)
	if err != nil {
		return nil, toConnectError("GetGroup", err)
	}
	if memberID != "" {
		if _, ok := group.Member(memberID); !ok {
			return nil, toConnectError("GetGroup", errNotMember)
		}
	}
	return connect.NewResponse(&GroupResponse{Group: group}), nil
}

// StartSession starts a fresh swiping round.
func (s *SessionService) StartSession(ctx context.Context, req *connect.Request[StartSessionRequest]) (*connect.Response[GroupResponse], error) {
	groupID, hostID := req.Msg.GroupID, req.Msg.MemberID
	slog.Info("StartSession request received", "group_id", groupID, "member_id", hostID)

	var (
		group *models.Group
		err   error
	)
	if prefs := req.Msg.Preferences; prefs != nil {
		group, err = s.sessions.StartSession(session.AsHost(ctx, hostID), groupID, *prefs)
	} else {
		group, err = s.sessions.SetStatus(session.AsHost(ctx, hostID), groupID, models.StatusSwiping)
	}
	if err != nil {
		return nil, toConnectError("StartSession", err)
	}

	s.resetMatches(groupID)
	if req.Msg.Preferences != nil {
		s.hub.Broadcast(groupID, events.PreferencesUpdated{Preferences: group.Preferences}, "")
	}
	s.hub.Broadcast(groupID, events.StatusChanged{Status: group.Status}, "")
	return connect.NewResponse(&GroupResponse{Group: group}), nil
}

// UpdatePreferences replaces the group's preferences.
func (s *SessionService) UpdatePreferences(ctx context.Context, req *connect.Request[UpdatePreferencesRequest]) (*connect.Response[GroupResponse], error) {
	groupID, hostID := req.Msg.GroupID, req.Msg.MemberID
	slog.Info("UpdatePreferences request received", "group_id", groupID, "member_id", hostID)

	group, err := s.sessions.UpdatePreferences(session.AsHost(ctx, hostID), groupID, req.Msg.Preferences)
	if err != nil {
		return nil, toConnectError("UpdatePreferences", err)
	}
	s.hub.Broadcast(groupID, events.PreferencesUpdated{Preferences: group.Preferences}, "")
	return connect.NewResponse(&GroupResponse{Group: group}), nil
}

// FinishSession ends the round.
func (s *SessionService) FinishSession(ctx context.Context, req *connect.Request[FinishSessionRequest]) (*connect.Response[GroupResponse], error) {
	groupID, hostID := req.Msg.GroupID, req.Msg.MemberID
	group, err := s.sessions.SetStatus(session.AsHost(ctx, hostID), groupID, models.StatusCompleted)
	if err != nil {
		return nil, toConnectError("FinishSession", err)
	}
	s.hub.Broadcast(groupID, events.StatusChanged{Status: group.Status}, "")
	return connect.NewResponse(&GroupResponse{Group: group}), nil
}

// Swipe records a vote.
func (s *SessionService) Swipe(ctx context.Context, req *connect.Request[SwipeRequest]) (*connect.Response[SwipeResponse], error) {
	msg := req.Msg
	swipe, found, err := s.swipe(ctx, msg.GroupID, msg.MemberID, msg.RestaurantID, msg.Liked, msg.SuperLiked)
	if err != nil {
		return nil, toConnectError("Swipe", err)
	}
	return connect.NewResponse(&SwipeResponse{Swipe: swipe, Match: found}), nil
}

// DoneSwiping marks the caller as finished.
func (s *SessionService) DoneSwiping(ctx context.Context, req *connect.Request[DoneSwipingRequest]) (*connect.Response[DoneSwipingResponse], error) {
	allDone, err := s.doneSwiping(ctx, req.Msg.GroupID, req.Msg.MemberID)
	if err != nil {
		return nil, toConnectError("DoneSwiping", err)
	}
	return connect.NewResponse(&DoneSwipingResponse{AllDone: allDone}), nil
}

// Nudge reminds the members who have not voted on a restaurant yet.
func (s *SessionService) Nudge(ctx context.Context, req *connect.Request[NudgeRequest]) (*connect.Response[NudgeResponse], error) {
	nudged, err := s.nudge(ctx, req.Msg.GroupID, req.Msg.MemberID, req.Msg.RestaurantID)
	if err != nil {
		return nil, toConnectError("Nudge", err)
	}
	return connect.NewResponse(&NudgeResponse{Nudged: nudged}), nil
}

// RemoveMember lets the host remove another member.
func (s *SessionService) RemoveMember(ctx context.Context, req *connect.Request[RemoveMemberRequest]) (*connect.Response[GroupResponse], error) {
	groupID, hostID, target := req.Msg.GroupID, req.Msg.MemberID, req.Msg.TargetMemberID
	slog.Info("RemoveMember request received", "group_id", groupID, "member_id", hostID, "target_id", target)
	if target == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errMissingTarget)
	}

	group, err := s.sessions.RemoveMember(session.AsHost(ctx, hostID), groupID, target)
	if err != nil {
		return nil, toConnectError("RemoveMember", err)
	}

	removed := events.MemberRemoved{MemberID: target}
	s.hub.Disconnect(groupID, target, removed)
	s.hub.Broadcast(groupID, removed, "")
	s.announce(ctx, groupID)
	return connect.NewResponse(&GroupResponse{Group: group}), nil
}

// LeaveGroup removes the caller. The host has to hand over first.
func (s *SessionService) LeaveGroup(ctx context.Context, req *connect.Request[LeaveGroupRequest]) (*connect.Response[LeaveGroupResponse], error) {
	groupID, memberID := req.Msg.GroupID, req.Msg.MemberID
	if _, err := s.sessions.RemoveMember(ctx, groupID, memberID); err != nil {
		return nil, toConnectError("LeaveGroup", err)
	}

	left := events.MemberLeft{MemberID: memberID}
	s.hub.Disconnect(groupID, memberID, left)
	s.hub.Broadcast(groupID, left, "")
	s.announce(ctx, groupID)
	return connect.NewResponse(&LeaveGroupResponse{}), nil
}

// TransferHost hands host privileges to another member.
func (s *SessionService) TransferHost(ctx context.Context, req *connect.Request[TransferHostRequest]) (*connect.Response[GroupResponse], error) {
	groupID, hostID, target := req.Msg.GroupID, req.Msg.MemberID, req.Msg.TargetMemberID
	if target == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errMissingTarget)
	}

	group, err := s.sessions.TransferHost(ctx, groupID, hostID, target)
	if err != nil {
		return nil, toConnectError("TransferHost", err)
	}
	s.hub.Broadcast(groupID, events.HostChanged{HostID: target}, "")
	return connect.NewResponse(&GroupResponse{Group: group}), nil
}

// ReclaimLeadership makes whoever holds the leader token host again and
// binds the caller to that host member.
func (s *SessionService) ReclaimLeadership(ctx context.Context, req *connect.Request[ReclaimLeadershipRequest]) (*connect.Response[ReclaimLeadershipResponse], error) {
	groupID := req.Msg.GroupID
	slog.Info("ReclaimLeadership request received", "group_id", groupID)
	if groupID == "" || req.Msg.LeaderToken == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("groupId and leaderToken are required"))
	}

	before, err := s.sessions.GetGroup(ctx, groupID)
	if err != nil {
		return nil, toConnectError("ReclaimLeadership", err)
	}
	group, host, err := s.sessions.ReclaimLeadership(ctx, groupID, req.Msg.LeaderToken, req.Msg.Name)
	if err != nil {
		return nil, toConnectError("ReclaimLeadership", err)
	}

	token, err := s.signer.Extend(binding.FromHeader(req.Header()), groupID, host.ID)
	if err != nil {
		return nil, toConnectError("ReclaimLeadership", err)
	}

	if _, existed := before.Member(host.ID); !existed {
		s.hub.Broadcast(groupID, events.MemberJoined{Member: host}, host.ID)
	}
	s.hub.Broadcast(groupID, events.HostChanged{HostID: host.ID}, "")

	resp := connect.NewResponse(&ReclaimLeadershipResponse{Group: group, HostMemberID: host.ID, Binding: token})
	s.setBindingCookie(resp.Header(), token)
	return resp, nil
}

// GetCandidates returns the group's deck.
func (s *SessionService) GetCandidates(ctx context.Context, req *connect.Request[GetCandidatesRequest]) (*connect.Response[CandidatesResponse], error) {
	groupID, memberID := req.Msg.GroupID, req.Msg.MemberID
	if err := s.requireMember(ctx, groupID, memberID); err != nil {
		return nil, toConnectError("GetCandidates", err)
	}
	list, err := s.candidates.GetCandidates(ctx, groupID)
	if err != nil {
		return nil, toConnectError("GetCandidates", err)
	}
	return connect.NewResponse(&CandidatesResponse{Candidates: list}), nil
}

// LoadMoreCandidates grows the deck by one page. Other members are told
// only when something was added.
func (s *SessionService) LoadMoreCandidates(ctx context.Context, req *connect.Request[LoadMoreCandidatesRequest]) (*connect.Response[CandidatesResponse], error) {
	groupID, memberID := req.Msg.GroupID, req.Msg.MemberID
	if err := s.requireMember(ctx, groupID, memberID); err != nil {
		return nil, toConnectError("LoadMoreCandidates", err)
	}
	list, added, err := s.candidates.LoadMore(ctx, groupID)
	if err != nil {
		return nil, toConnectError("LoadMoreCandidates", err)
	}
	if added > 0 {
		s.hub.Broadcast(groupID, events.CandidatesUpdated{Candidates: list, Added: added}, memberID)
	}
	return connect.NewResponse(&CandidatesResponse{Candidates: list, Added: added}), nil
}

// GetMatches returns the current matches.
func (s *SessionService) GetMatches(ctx context.Context, req *connect.Request[GetMatchesRequest]) (*connect.Response[MatchesResponse], error) {
	groupID, memberID := req.Msg.GroupID, req.Msg.MemberID
	group, swipes, err := s.sessions.View(ctx, groupID)
	if err != nil {
		return nil, toConnectError("GetMatches", err)
	}
	if _, ok := group.Member(memberID); !ok {
		return nil, toConnectError("GetMatches", errNotMember)
	}
	matches, err := s.matches(ctx, group, swipes)
	if err != nil {
		return nil, toConnectError("GetMatches", err)
	}
	return connect.NewResponse(&MatchesResponse{Matches: matches}), nil
}

func (s *SessionService) swipe(ctx context.Context, groupID, memberID, restaurantID string, liked, superLiked bool) (models.Swipe, *models.Restaurant, error) {
	swipe, err := s.sessions.RecordSwipe(ctx, groupID, models.Swipe{
		MemberID:     memberID,
		RestaurantID: restaurantID,
		Liked:        liked,
		SuperLiked:   superLiked,
	})
	if err != nil {
		return models.Swipe{}, nil, err
	}
	s.metrics.Swipe(swipe.Liked)

	group, swipes, fresh := s.announce(ctx, groupID)
	if group != nil {
		votes := len(group.Members) - len(match.Pending(group.MemberIDs(), restaurantID, swipes))
		s.hub.Broadcast(groupID, events.SwipeMade{RestaurantID: restaurantID, Votes: votes}, memberID)
	}

	for i := range fresh {
		if fresh[i].ID == restaurantID {
			return swipe, &fresh[i], nil
		}
	}
	return swipe, nil, nil
}

func (s *SessionService) doneSwiping(ctx context.Context, groupID, memberID string) (bool, error) {
	group, allDone, err := s.sessions.MarkDoneSwiping(ctx, groupID, memberID)
	if err != nil {
		return false, err
	}
	s.hub.Broadcast(groupID, events.MemberDone{MemberID: memberID, AllDone: allDone}, "")
	if allDone {
		go s.notifyAllDone(context.WithoutCancel(ctx), group)
	}
	return allDone, nil
}

func (s *SessionService) notifyAllDone(ctx context.Context, group *models.Group) {
	ctx, cancel := context.WithTimeout(ctx, notifyTimeout)
	defer cancel()

	_, swipes, err := s.sessions.View(ctx, group.ID)
	if err != nil {
		slog.Warn("Failed to load swipes for notification", "group_id", group.ID, "error", err)
	}
	matches, err := s.matches(ctx, group, swipes)
	if err != nil {
		slog.Warn("Failed to load matches for notification", "group_id", group.ID, "error", err)
	}

	err = s.notifier.AllDone(ctx, notify.AllDone{
		GroupID: group.ID,
		Code:    group.Code,
		Name:    group.Name,
		Members: len(group.Members),
		Matches: matches,
		At:      time.Now().UTC(),
	})
	if err != nil {
		slog.Warn("All-done notification failed", "group_id", group.ID, "error", err)
	}
}

func (s *SessionService) nudge(ctx context.Context, groupID, memberID, restaurantID string) ([]string, error) {
	if strings.TrimSpace(restaurantID) == "" {
		return nil, errMissingRestaurant
	}
	group, swipes, err := s.sessions.View(ctx, groupID)
	if err != nil {
		return nil, err
	}
	sender, ok := group.Member(memberID)
	if !ok {
		return nil, errNotMember
	}
	if !s.nudges.Allow(groupID + "/" + memberID) {
		return nil, errRateLimited
	}

	var targets []string
	for _, id := range match.Pending(group.MemberIDs(), restaurantID, swipes) {
		if id != memberID {
			targets = append(targets, id)
		}
	}
	s.hub.SendTo(groupID, targets, events.Nudge{
		RestaurantID: restaurantID,
		FromMemberID: memberID,
		FromName:     sender.Name,
	})
	slog.Debug("Nudge sent", "group_id", groupID, "member_id", memberID, "restaurant_id", restaurantID, "targets", len(targets))
	return targets, nil
}

func (s *SessionService) react(groupID, memberID, emoji string) error {
	emoji = strings.TrimSpace(emoji)
	if emoji == "" || utf8.RuneCountInString(emoji) > maxEmojiLength {
		return errInvalidEmoji
	}
	if !s.reactions.Allow(groupID + "/" + memberID) {
		return errRateLimited
	}
	s.hub.Broadcast(groupID, events.Reaction{MemberID: memberID, Emoji: emoji}, memberID)
	return nil
}

// announce recomputes the group's matches and broadcasts the ones not seen
// before. Reads and bookkeeping happen under the group's announcement lock,
// so each run sees state at least as new as the previous one.
func (s *SessionService) announce(ctx context.Context, groupID string) (*models.Group, []models.Swipe, []models.Restaurant) {
	a := s.announcement(groupID)
	a.mu.Lock()
	defer a.mu.Unlock()

	group, swipes, err := s.sessions.View(ctx, groupID)
	if err != nil {
		slog.Warn("Failed to load group for match check", "group_id", groupID, "error", err)
		return nil, nil, nil
	}
	current, err := s.matches(ctx, group, swipes)
	if err != nil {
		slog.Warn("Failed to compute matches", "group_id", groupID, "error", err)
		return group, swipes, nil
	}

	var fresh []models.Restaurant
	ids := make(map[string]struct{}, len(current))
	for _, r := range current {
		ids[r.ID] = struct{}{}
		if _, seen := a.ids[r.ID]; !seen {
			fresh = append(fresh, r)
		}
	}
	a.ids = ids

	for _, r := range fresh {
		slog.Info("Match found", "group_id", groupID, "restaurant_id", r.ID)
		s.hub.Broadcast(groupID, events.MatchFound{Restaurant: r}, "")
	}
	s.metrics.MatchesFound(len(fresh))
	return group, swipes, fresh
}

// resetMatches forgets the announced matches when a new round starts.
func (s *SessionService) resetMatches(groupID string) {
	a := s.announcement(groupID)
	a.mu.Lock()
	a.ids = nil
	a.mu.Unlock()
}

func (s *SessionService) announcement(groupID string) *announcement {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.sweepAnnouncements(now)
	a, ok := s.announced[groupID]
	if !ok {
		a = &announcement{}
		s.announced[groupID] = a
	}
	a.lastUsed = now
	return a
}

// sweepAnnouncements forgets groups idle for announceIdleTTL, at most once
// per announceIdleTTL. A forgotten group that resumes announces its current
// matches once more.
func (s *SessionService) sweepAnnouncements(now time.Time) {
	if now.Sub(s.lastSweep) < announceIdleTTL {
		return
	}
	s.lastSweep = now
	for groupID, a := range s.announced {
		if now.Sub(a.lastUsed) >= announceIdleTTL {
			delete(s.announced, groupID)
		}
	}
}

func (s *SessionService) matches(ctx context.Context, group *models.Group, swipes []models.Swipe) ([]models.Restaurant, error) {
	candidates, err := s.candidates.GetCandidates(ctx, group.ID)
	if err != nil {
		return nil, err
	}
	return match.Find(s.rule, group.MemberIDs(), candidates, swipes), nil
}

func (s *SessionService) requireMember(ctx context.Context, groupID, memberID string) error {
	group, err := s.sessions.GetGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if _, ok := group.Member(memberID); !ok {
		return errNotMember
	}
	return nil
}

func (s *SessionService) setBindingCookie(h http.Header, token string) {
	h.Add("Set-Cookie", binding.Cookie(token, s.bindingTTL, s.secureCookies).String())
}
