package service

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"
)

// SessionServiceName is the fully-qualified name of the session service.
const SessionServiceName = "dining.v1.SessionService"

// Procedure paths of the session service.
const (
	CreateGroupProcedure        = "/" + SessionServiceName + "/CreateGroup"
	JoinGroupProcedure          = "/" + SessionServiceName + "/JoinGroup"
	GetGroupProcedure           = "/" + SessionServiceName + "/GetGroup"
	StartSessionProcedure       = "/" + SessionServiceName + "/StartSession"
	UpdatePreferencesProcedure  = "/" + SessionServiceName + "/UpdatePreferences"
	FinishSessionProcedure      = "/" + SessionServiceName + "/FinishSession"
	SwipeProcedure              = "/" + SessionServiceName + "/Swipe"
	DoneSwipingProcedure        = "/" + SessionServiceName + "/DoneSwiping"
	NudgeProcedure              = "/" + SessionServiceName + "/Nudge"
	RemoveMemberProcedure       = "/" + SessionServiceName + "/RemoveMember"
	LeaveGroupProcedure         = "/" + SessionServiceName + "/LeaveGroup"
	TransferHostProcedure       = "/" + SessionServiceName + "/TransferHost"
	ReclaimLeadershipProcedure  = "/" + SessionServiceName + "/ReclaimLeadership"
	GetCandidatesProcedure      = "/" + SessionServiceName + "/GetCandidates"
	LoadMoreCandidatesProcedure = "/" + SessionServiceName + "/LoadMoreCandidates"
	GetMatchesProcedure         = "/" + SessionServiceName + "/GetMatches"
)

// SessionServiceHandler is implemented by SessionService.
type SessionServiceHandler interface {
	CreateGroup(context.Context, *connect.Request[CreateGroupRequest]) (*connect.Response[CreateGroupResponse], error)
	JoinGroup(context.Context, *connect.Request[JoinGroupRequest]) (*connect.Response[JoinGroupResponse], error)
	GetGroup(context.Context, *connect.Request[GetGroupRequest]) (*connect.Response[GroupResponse], error)
	StartSession(context.Context, *connect.Request[StartSessionRequest]) (*connect.Response[GroupResponse], error)
	UpdatePreferences(context.Context, *connect.Request[UpdatePreferencesRequest]) (*connect.Response[GroupResponse], error)
	FinishSession(context.Context, *connect.Request[FinishSessionRequest]) (*connect.Response[GroupResponse], error)
	Swipe(context.Context, *connect.Request[SwipeRequest]) (*connect.Response[SwipeResponse], error)
	DoneSwiping(context.Context, *connect.Request[DoneSwipingRequest]) (*connect.Response[DoneSwipingResponse], error)
	Nudge(context.Context, *connect.Request[NudgeRequest]) (*connect.Response[NudgeResponse], error)
	RemoveMember(context.Context, *connect.Request[RemoveMemberRequest]) (*connect.Response[GroupResponse], error)
	LeaveGroup(context.Context, *connect.Request[LeaveGroupRequest]) (*connect.Response[LeaveGroupResponse], error)
	TransferHost(context.Context, *connect.Request[TransferHostRequest]) (*connect.Response[GroupResponse], error)
	ReclaimLeadership(context.Context, *connect.Request[ReclaimLeadershipRequest]) (*connect.Response[ReclaimLeadershipResponse], error)
	GetCandidates(context.Context, *connect.Request[GetCandidatesRequest]) (*connect.Response[CandidatesResponse], error)
	LoadMoreCandidates(context.Context, *connect.Request[LoadMoreCandidatesRequest]) (*connect.Response[CandidatesResponse], error)
	GetMatches(context.Context, *connect.Request[GetMatchesRequest]) (*connect.Response[MatchesResponse], error)
}

// NewSessionServiceHandler builds an HTTP handler for every procedure of
// svc. It returns the path to mount it on.
func NewSessionServiceHandler(svc SessionServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(jsonCodec{})}, opts...)

	mux := http.NewServeMux()
	mux.Handle(CreateGroupProcedure, connect.NewUnaryHandler(CreateGroupProcedure, svc.CreateGroup, opts...))
	mux.Handle(JoinGroupProcedure, connect.NewUnaryHandler(JoinGroupProcedure, svc.JoinGroup, opts...))
	mux.Handle(GetGroupProcedure, connect.NewUnaryHandler(GetGroupProcedure, svc.GetGroup, opts...))
	mux.Handle(StartSessionProcedure, connect.NewUnaryHandler(StartSessionProcedure, svc.StartSession, opts...))
	mux.Handle(UpdatePreferencesProcedure, connect.NewUnaryHandler(UpdatePreferencesProcedure, svc.UpdatePreferences, opts...))
	mux.Handle(FinishSessionProcedure, connect.NewUnaryHandler(FinishSessionProcedure, svc.FinishSession, opts...))
	mux.Handle(SwipeProcedure, connect.NewUnaryHandler(SwipeProcedure, svc.Swipe, opts...))
	mux.Handle(DoneSwipingProcedure, connect.NewUnaryHandler(DoneSwipingProcedure, svc.DoneSwiping, opts...))
	mux.Handle(NudgeProcedure, connect.NewUnaryHandler(NudgeProcedure, svc.Nudge, opts...))
	mux.Handle(RemoveMemberProcedure, connect.NewUnaryHandler(RemoveMemberProcedure, svc.RemoveMember, opts...))
	mux.Handle(LeaveGroupProcedure, connect.NewUnaryHandler(LeaveGroupProcedure, svc.LeaveGroup, opts...))
	mux.Handle(TransferHostProcedure, connect.NewUnaryHandler(TransferHostProcedure, svc.TransferHost, opts...))
	mux.Handle(ReclaimLeadershipProcedure, connect.NewUnaryHandler(ReclaimLeadershipProcedure, svc.ReclaimLeadership, opts...))
	mux.Handle(GetCandidatesProcedure, connect.NewUnaryHandler(GetCandidatesProcedure, svc.GetCandidates, opts...))
	mux.Handle(LoadMoreCandidatesProcedure, connect.NewUnaryHandler(LoadMoreCandidatesProcedure, svc.LoadMoreCandidates, opts...))
	mux.Handle(GetMatchesProcedure, connect.NewUnaryHandler(GetMatchesProcedure, svc.GetMatches, opts...))

	return "/" + SessionServiceName + "/", mux
}

// SessionServiceClient calls the session service over HTTP.
type SessionServiceClient struct {
	createGroup        *connect.Client[CreateGroupRequest, CreateGroupResponse]
	joinGroup          *connect.Client[JoinGroupRequest, JoinGroupResponse]
	getGroup           *connect.Client[GetGroupRequest, GroupResponse]
	startSession       *connect.Client[StartSessionRequest, GroupResponse]
	updatePreferences  *connect.Client[UpdatePreferencesRequest, GroupResponse]
	finishSession      *connect.Client[FinishSessionRequest, GroupResponse]
	swipe              *connect.Client[SwipeRequest, SwipeResponse]
	doneSwiping        *connect.Client[DoneSwipingRequest, DoneSwipingResponse]
	nudge              *connect.Client[NudgeRequest, NudgeResponse]
	removeMember       *connect.Client[RemoveMemberRequest, GroupResponse]
	leaveGroup         *connect.Client[LeaveGroupRequest, LeaveGroupResponse]
	transferHost       *connect.Client[TransferHostRequest, GroupResponse]
	reclaimLeadership  *connect.Client[ReclaimLeadershipRequest, ReclaimLeadershipResponse]
	getCandidates      *connect.Client[GetCandidatesRequest, CandidatesResponse]
	loadMoreCandidates *connect.Client[LoadMoreCandidatesRequest, CandidatesResponse]
	getMatches         *connect.Client[GetMatchesRequest, MatchesResponse]
}

// NewSessionServiceClient creates a client for the service at baseURL.
func NewSessionServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *SessionServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(jsonCodec{})}, opts...)
	return &SessionServiceClient{
		createGroup:        connect.NewClient[CreateGroupRequest, CreateGroupResponse](httpClient, baseURL+CreateGroupProcedure, opts...),
		joinGroup:          connect.NewClient[JoinGroupRequest, JoinGroupResponse](httpClient, baseURL+JoinGroupProcedure, opts...),
		getGroup:           connect.NewClient[GetGroupRequest, GroupResponse](httpClient, baseURL+GetGroupProcedure, opts...),
		startSession:       connect.NewClient[StartSessionRequest, GroupResponse](httpClient, baseURL+StartSessionProcedure, opts...),
		updatePreferences:  connect.NewClient[UpdatePreferencesRequest, GroupResponse](httpClient, baseURL+UpdatePreferencesProcedure, opts...),
		finishSession:      connect.NewClient[FinishSessionRequest, GroupResponse](httpClient, baseURL+FinishSessionProcedure, opts...),
		swipe:              connect.NewClient[SwipeRequest, SwipeResponse](httpClient, baseURL+SwipeProcedure, opts...),
		doneSwiping:        connect.NewClient[DoneSwipingRequest, DoneSwipingResponse](httpClient, baseURL+DoneSwipingProcedure, opts...),
		nudge:              connect.NewClient[NudgeRequest, NudgeResponse](httpClient, baseURL+NudgeProcedure, opts...),
		removeMember:       connect.NewClient[RemoveMemberRequest, GroupResponse](httpClient, baseURL+RemoveMemberProcedure, opts...),
		leaveGroup:         connect.NewClient[LeaveGroupRequest, LeaveGroupResponse](httpClient, baseURL+LeaveGroupProcedure, opts...),
		transferHost:       connect.NewClient[TransferHostRequest, GroupResponse](httpClient, baseURL+TransferHostProcedure, opts...),
		reclaimLeadership:  connect.NewClient[ReclaimLeadershipRequest, ReclaimLeadershipResponse](httpClient, baseURL+ReclaimLeadershipProcedure, opts...),
		getCandidates:      connect.NewClient[GetCandidatesRequest, CandidatesResponse](httpClient, baseURL+GetCandidatesProcedure, opts...),
		loadMoreCandidates: connect.NewClient[LoadMoreCandidatesRequest, CandidatesResponse](httpClient, baseURL+LoadMoreCandidatesProcedure, opts...),
		getMatches:         connect.NewClient[GetMatchesRequest, MatchesResponse](httpClient, baseURL+GetMatchesProcedure, opts...),
	}
}

func (c *SessionServiceClient) CreateGroup(ctx context.Context, req *connect.Request[CreateGroupRequest]) (*connect.Response[CreateGroupResponse], error) {
	return c.createGroup.CallUnary(ctx, req)
}

func (c *SessionServiceClient) JoinGroup(ctx context.Context, req *connect.Request[JoinGroupRequest]) (*connect.Response[JoinGroupResponse], error) {
	return c.joinGroup.CallUnary(ctx, req)
}

func (c *SessionServiceClient) GetGroup(ctx context.Context, req *connect.Request[GetGroupRequest]) (*connect.Response[GroupResponse], error) {
	return c.getGroup.CallUnary(ctx, req)
}

func (c *SessionServiceClient) StartSession(ctx context.Context, req *connect.Request[StartSessionRequest]) (*connect.Response[GroupResponse], error) {
	return c.startSession.CallUnary(ctx, req)
}

func (c *SessionServiceClient) UpdatePreferences(ctx context.Context, req *connect.Request[UpdatePreferencesRequest]) (*connect.Response[GroupResponse], error) {
	return c.updatePreferences.CallUnary(ctx, req)
}

func (c *SessionServiceClient) FinishSession(ctx context.Context, req *connect.Request[FinishSessionRequest]) (*connect.Response[GroupResponse], error) {
	return c.finishSession.CallUnary(ctx, req)
}

func (c *SessionServiceClient) Swipe(ctx context.Context, req *connect.Request[SwipeRequest]) (*connect.Response[SwipeResponse], error) {
	return c.swipe.CallUnary(ctx, req)
}

func (c *SessionServiceClient) DoneSwiping(ctx context.Context, req *connect.Request[DoneSwipingRequest]) (*connect.Response[DoneSwipingResponse], error) {
	return c.doneSwiping.CallUnary(ctx, req)
}

func (c *SessionServiceClient) Nudge(ctx context.Context, req *connect.Request[NudgeRequest]) (*connect.Response[NudgeResponse], error) {
	return c.nudge.CallUnary(ctx, req)
}

func (c *SessionServiceClient) RemoveMember(ctx context.Context, req *connect.Request[RemoveMemberRequest]) (*connect.Response[GroupResponse], error) {
	return c.removeMember.CallUnary(ctx, req)
}

func (c *SessionServiceClient) LeaveGroup(ctx context.Context, req *connect.Request[LeaveGroupRequest]) (*connect.Response[LeaveGroupResponse], error) {
	return c.leaveGroup.CallUnary(ctx, req)
}

func (c *SessionServiceClient) TransferHost(ctx context.Context, req *connect.Request[TransferHostRequest]) (*connect.Response[GroupResponse], error) {
	return c.transferHost.CallUnary(ctx, req)
}

func (c *SessionServiceClient) ReclaimLeadership(ctx context.Context, req *connect.Request[ReclaimLeadershipRequest]) (*connect.Response[ReclaimLeadershipResponse], error) {
	return c.reclaimLeadership.CallUnary(ctx, req)
}

func (c *SessionServiceClient) GetCandidates(ctx context.Context, req *connect.Request[GetCandidatesRequest]) (*connect.Response[CandidatesResponse], error) {
	return c.getCandidates.CallUnary(ctx, req)
}

func (c *SessionServiceClient) LoadMoreCandidates(ctx context.Context, req *connect.Request[LoadMoreCandidatesRequest]) (*connect.Response[CandidatesResponse], error) {
	return c.loadMoreCandidates.CallUnary(ctx, req)
}

func (c *SessionServiceClient) GetMatches(ctx context.Context, req *connect.Request[GetMatchesRequest]) (*connect.Response[MatchesResponse], error) {
	return c.getMatches.CallUnary(ctx, req)
}
