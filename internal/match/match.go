// Package match computes consensus restaurants from the swipes of a group.
//
// Every function here is pure. Matches are evaluated against the membership
// passed in, so a member who left stops counting and a member who joins later
// is simply one more required vote on the next evaluation.
package match

import (
	"fmt"
	"slices"

	"github.com/SensualOdin/ChickenTendies-sub000/internal/models"
)

// SuperLikeThreshold is the share of current members that must like a
// candidate for a super-liked candidate to match.
const SuperLikeThreshold = 0.6

// Rule selects the consensus rule.
type Rule string

const (
	// RuleUnanimous matches a candidate only when every member liked it.
	RuleUnanimous Rule = "unanimous"
	// RuleSuperLike also matches super-liked candidates that reach the threshold.
	RuleSuperLike Rule = "superlike"
)

// ParseRule converts a configuration value into a Rule.
func ParseRule(s string) (Rule, error) {
	switch Rule(s) {
	case RuleUnanimous, RuleSuperLike:
		return Rule(s), nil
	case "":
		return RuleSuperLike, nil
	}
	return "", fmt.Errorf("unknown match rule %q", s)
}

// Find applies the given rule.
func Find(rule Rule, memberIDs []string, candidates []models.Restaurant, swipes []models.Swipe) []models.Restaurant {
	if rule == RuleUnanimous {
		return Unanimous(memberIDs, candidates, swipes)
	}
	return WithSuperLikeBoost(memberIDs, candidates, swipes)
}

// vote is the active decision of one member on one restaurant.
type vote struct {
	liked      bool
	superLiked bool
}

type voteKey struct {
	member     string
	restaurant string
}

// tally holds the active votes per restaurant, restricted to current members.
type tally struct {
	votes map[string]map[string]vote // restaurant -> member -> vote
}

// activeVotes collapses swipes into one vote per (member, restaurant) pair.
// The swipe with the latest timestamp wins; on equal timestamps the later
// swipe in the slice wins. Swipes from non-members are ignored.
func activeVotes(members map[string]struct{}, swipes []models.Swipe) tally {
	latest := make(map[voteKey]int, len(swipes))
	for i, s := range swipes {
		if _, ok := members[s.MemberID]; !ok {
			continue
		}
		k := voteKey{s.MemberID, s.RestaurantID}
		if j, seen := latest[k]; seen && swipes[j].Timestamp.After(s.Timestamp) {
			continue
		}
		latest[k] = i
	}

	t := tally{votes: make(map[string]map[string]vote)}
	for k, i := range latest {
		s := swipes[i]
		byMember := t.votes[k.restaurant]
		if byMember == nil {
			byMember = make(map[string]vote)
			t.votes[k.restaurant] = byMember
		}
		byMember[k.member] = vote{liked: s.Liked || s.SuperLiked, superLiked: s.SuperLiked}
	}
	return t
}

// likes returns how many members like the restaurant and whether any of
// those likes is a super-like.
func (t tally) likes(restaurantID string) (count int, superLiked bool) {
	for _, v := range t.votes[restaurantID] {
		if v.liked {
			count++
		}
		if v.superLiked {
			superLiked = true
		}
	}
	return count, superLiked
}

func memberSet(memberIDs []string) map[string]struct{} {
	set := make(map[string]struct{}, len(memberIDs))
	for _, id := range memberIDs {
		set[id] = struct{}{}
	}
	return set
}

// Unanimous returns the candidates every current member has liked, in
// candidate order and without duplicates. No members means no matches.
func Unanimous(memberIDs []string, candidates []models.Restaurant, swipes []models.Swipe) []models.Restaurant {
	members := memberSet(memberIDs)
	if len(members) == 0 {
		return nil
	}
	t := activeVotes(members, swipes)
	return collect(candidates, func(id string) bool {
		count, _ := t.likes(id)
		return count == len(members)
	})
}

// WithSuperLikeBoost returns the unanimous matches plus every candidate that
// carries at least one super-like and is liked by at least
// ceil(0.6 × current member count) members.
func WithSuperLikeBoost(memberIDs []string, candidates []models.Restaurant, swipes []models.Swipe) []models.Restaurant {
	members := memberSet(memberIDs)
	if len(members) == 0 {
		return nil
	}
	need := RequiredLikes(len(members))
	t := activeVotes(members, swipes)
	return collect(candidates, func(id string) bool {
		count, superLiked := t.likes(id)
		if count == len(members) {
			return true
		}
		return superLiked && count >= need
	})
}

// RequiredLikes is the boosted threshold for a group of n members.
func RequiredLikes(n int) int {
	// Integer ceiling of 3n/5 avoids float rounding at exact multiples.
	return (3*n + 4) / 5
}

// Contains reports whether restaurantID is among the matches.
func Contains(matches []models.Restaurant, restaurantID string) bool {
	return slices.ContainsFunc(matches, func(r models.Restaurant) bool { return r.ID == restaurantID })
}

// Pending returns the members that have no active vote on restaurantID, in
// the order given.
func Pending(memberIDs []string, restaurantID string, swipes []models.Swipe) []string {
	voted := make(map[string]bool)
	for _, s := range swipes {
		if s.RestaurantID == restaurantID {
			voted[s.MemberID] = true
		}
	}
	var pending []string
	for _, id := range memberIDs {
		if !voted[id] {
			pending = append(pending, id)
		}
	}
	return pending
}

func collect(candidates []models.Restaurant, matches func(id string) bool) []models.Restaurant {
	var out []models.Restaurant
	seen := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		if seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		if matches(c.ID) {
			out = append(out, c)
		}
	}
	return out
}
