package service

import "github.com/SensualOdin/ChickenTendies-sub000/internal/models"

// MemberRef names the acting member. Requests embedding it are verified
// against the caller's member binding before they reach the service.
type MemberRef struct {
	GroupID  string `json:"groupId"`
	MemberID string `json:"memberId"`
}

func (r MemberRef) GetGroupID() string  { return r.GroupID }
func (r MemberRef) GetMemberID() string { return r.MemberID }

type CreateGroupRequest struct {
	Name     string `json:"name"`
	HostName string `json:"hostName"`
}

type CreateGroupResponse struct {
	Group        *models.Group `json:"group"`
	HostMemberID string        `json:"hostMemberId"`
	// LeaderToken is shown once; keep it to reclaim host later.
	LeaderToken string `json:"leaderToken"`
	Binding     string `json:"binding"`
}

type JoinGroupRequest struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

type JoinGroupResponse struct {
	Group    *models.Group `json:"group"`
	MemberID string        `json:"memberId"`
	Binding  string        `json:"binding"`
}

// GetGroupRequest checks membership only when MemberID is set.
type GetGroupRequest struct {
	GroupID  string `json:"groupId"`
	MemberID string `json:"memberId,omitempty"`
}

type GroupResponse struct {
	Group *models.Group `json:"group"`
}

// StartSessionRequest starts a fresh round. Without preferences the current
// ones are kept.
type StartSessionRequest struct {
	MemberRef
	Preferences *models.Preferences `json:"preferences,omitempty"`
}

type UpdatePreferencesRequest struct {
	MemberRef
	Preferences models.Preferences `json:"preferences"`
}

type FinishSessionRequest struct {
	MemberRef
}

type SwipeRequest struct {
	MemberRef
	RestaurantID string `json:"restaurantId"`
	Liked        bool   `json:"liked"`
	SuperLiked   bool   `json:"superLiked,omitempty"`
}

type SwipeResponse struct {
	Swipe models.Swipe `json:"swipe"`
	// Match is set when this swipe completed a match.
	Match *models.Restaurant `json:"match,omitempty"`
}

type DoneSwipingRequest struct {
	MemberRef
}

type DoneSwipingResponse struct {
	AllDone bool `json:"allDone"`
}

type NudgeRequest struct {
	MemberRef
	RestaurantID string `json:"restaurantId"`
}

type NudgeResponse struct {
	// Nudged lists the members that had not voted yet.
	Nudged []string `json:"nudged"`
}

type RemoveMemberRequest struct {
	MemberRef
	TargetMemberID string `json:"targetMemberId"`
}

type LeaveGroupRequest struct {
	MemberRef
}

type LeaveGroupResponse struct{}

type TransferHostRequest struct {
	MemberRef
	TargetMemberID string `json:"targetMemberId"`
}

type ReclaimLeadershipRequest struct {
	GroupID     string `json:"groupId"`
	LeaderToken string `json:"leaderToken"`
	Name        string `json:"name"`
}

type ReclaimLeadershipResponse struct {
	Group        *models.Group `json:"group"`
	HostMemberID string        `json:"hostMemberId"`
	Binding      string        `json:"binding"`
}

type GetCandidatesRequest struct {
	MemberRef
}

type CandidatesResponse struct {
	Candidates []models.Restaurant `json:"candidates"`
	// Added is how many candidates a load-more appended.
	Added int `json:"added"`
}

type LoadMoreCandidatesRequest struct {
	MemberRef
}

type GetMatchesRequest struct {
	MemberRef
}

type MatchesResponse struct {
	Matches []models.Restaurant `json:"matches"`
}
