// Package session is the authoritative owner of group state.
//
// Every mutation of one group runs under that group's writer lock as a single
// load-modify-store sequence, so two swipes or a status change racing a
// preference update never lose each other's writes. Unrelated groups never
// contend. Reads take the group's reader lock so they see either all or none
// of a concurrent write.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/SensualOdin/ChickenTendies-sub000/internal/models"
	"github.com/SensualOdin/ChickenTendies-sub000/internal/storage"
)

const maxNameLength = 32

// codeAttempts bounds retries when a generated join code is already taken.
const codeAttempts = 10

// LeaderTokens issues and checks leader tokens.
type LeaderTokens interface {
	Issue() (token, hash string, err error)
	Matches(hash, token string) bool
}

// CandidateInvalidator drops cached candidates when a group starts a new round.
type CandidateInvalidator interface {
	Invalidate(groupID string)
}

type hostKey struct{}

// AsHost returns a context under which group updates fail with ErrNotHost
// unless memberID holds host privileges at the moment of the write.
func AsHost(ctx context.Context, memberID string) context.Context {
	return context.WithValue(ctx, hostKey{}, memberID)
}

// InvalidatorFunc adapts a function to CandidateInvalidator.
type InvalidatorFunc func(groupID string)

func (f InvalidatorFunc) Invalidate(groupID string) { f(groupID) }

// Created is the result of CreateGroup.
type Created struct {
	Group *models.Group
	Host  models.Member
	// LeaderToken is returned once, to the creating client only.
	LeaderToken string
}

// Manager implements the session store operations over a storage.Store.
type Manager struct {
	store       storage.Store
	leaders     LeaderTokens
	invalidator CandidateInvalidator
	locks       *groupLocks
	now         func() time.Time
	newCode     func() (string, error)
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithCodeGenerator overrides join code generation.
func WithCodeGenerator(gen func() (string, error)) Option {
	return func(m *Manager) { m.newCode = gen }
}

// WithCandidateInvalidator registers the cache to reset on each new round.
func WithCandidateInvalidator(inv CandidateInvalidator) Option {
	return func(m *Manager) { m.invalidator = inv }
}

// NewManager creates a Manager.
func NewManager(store storage.Store, leaders LeaderTokens, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		leaders: leaders,
		locks:   newGroupLocks(),
		now:     time.Now,
		newCode: NewCode,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CreateGroup creates a group hosted by hostName and issues its leader token.
func (m *Manager) CreateGroup(ctx context.Context, name, hostName string) (*Created, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "Dinner"
	}
	if utf8.RuneCountInString(name) > maxNameLength*2 {
		return nil, fmt.Errorf("%w: group name too long", ErrInvalidName)
	}
	hostName, err := cleanName(hostName)
	if err != nil {
		return nil, err
	}

	token, hash, err := m.leaders.Issue()
	if err != nil {
		return nil, err
	}

	now := m.now().UTC()
	host := models.Member{ID: uuid.NewString(), Name: hostName, IsHost: true, JoinedAt: now}
	group := &models.Group{
		ID:              uuid.NewString(),
		Name:            name,
		Members:         []models.Member{host},
		Status:          models.StatusWaiting,
		CreatedAt:       now,
		LeaderTokenHash: hash,
		LeaderMemberID:  host.ID,
	}

	for attempt := 0; ; attempt++ {
		code, err := m.newCode()
		if err != nil {
			return nil, err
		}
		group.Code = code

		err = m.store.CreateGroup(ctx, group)
		if err == nil {
			break
		}
		if !errors.Is(err, storage.ErrCodeTaken) || attempt+1 >= codeAttempts {
			return nil, fmt.Errorf("failed to create group: %w", err)
		}
		slog.Debug("Join code collision, retrying", "code", code, "attempt", attempt+1)
	}

	slog.Info("Group created", "group_id", group.ID, "code", group.Code, "host_id", host.ID)
	return &Created{Group: group.Clone(), Host: host, LeaderToken: token}, nil
}

// JoinGroup adds memberName to the group with the given join code.
func (m *Manager) JoinGroup(ctx context.Context, code, memberName string) (*models.Group, models.Member, error) {
	found, err := m.GetGroupByCode(ctx, code)
	if err != nil {
		return nil, models.Member{}, err
	}
	return m.AddMember(ctx, found.ID, memberName)
}

// AddMember appends a new non-host member.
func (m *Manager) AddMember(ctx context.Context, groupID, memberName string) (*models.Group, models.Member, error) {
	name, err := cleanName(memberName)
	if err != nil {
		return nil, models.Member{}, err
	}

	member := models.Member{ID: uuid.NewString(), Name: name, JoinedAt: m.now().UTC()}
	group, err := m.update(ctx, groupID, func(g *models.Group, _ *edit) error {
		g.Members = append(g.Members, member)
		return nil
	})
	if err != nil {
		return nil, models.Member{}, err
	}
	slog.Info("Member joined", "group_id", groupID, "member_id", member.ID)
	return group, member, nil
}

// GetGroup returns a snapshot of the group.
func (m *Manager) GetGroup(ctx context.Context, groupID string) (*models.Group, error) {
	unlock := m.locks.rlock(groupID)
	defer unlock()

	group, err := m.store.GetGroup(ctx, groupID)
	if err != nil {
		return nil, m.translate(err)
	}
	return group, nil
}

// GetGroupByCode returns the group with the given join code.
func (m *Manager) GetGroupByCode(ctx context.Context, code string) (*models.Group, error) {
	code, err := NormalizeCode(code)
	if err != nil {
		return nil, err
	}
	group, err := m.store.GetGroupByCode(ctx, code)
	if err != nil {
		return nil, m.translate(err)
	}
	return group, nil
}

// View returns the group and its active swipes as one consistent snapshot.
func (m *Manager) View(ctx context.Context, groupID string) (*models.Group, []models.Swipe, error) {
	unlock := m.locks.rlock(groupID)
	defer unlock()

	group, err := m.store.GetGroup(ctx, groupID)
	if err != nil {
		return nil, nil, m.translate(err)
	}
	swipes, err := m.store.ListSwipes(ctx, groupID)
	if err != nil {
		return nil, nil, m.translate(err)
	}
	return group, swipes, nil
}

// Preferences returns the group's current preferences, or nil.
func (m *Manager) Preferences(ctx context.Context, groupID string) (*models.Preferences, error) {
	group, err := m.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	return group.Preferences, nil
}

// UpdatePreferences replaces the preferences. Every member's doneSwiping is
// reset and the group's cached candidates are dropped.
func (m *Manager) UpdatePreferences(ctx context.Context, groupID string, prefs models.Preferences) (*models.Group, error) {
	if err := prefs.Validate(); err != nil {
		return nil, err
	}
	return m.update(ctx, groupID, func(g *models.Group, e *edit) error {
		applyPreferences(g, prefs, e)
		return nil
	})
}

// SetStatus moves the group to status. Entering StatusSwiping starts a fresh
// round: doneSwiping flags, swipes and cached candidates are all reset.
func (m *Manager) SetStatus(ctx context.Context, groupID string, status models.Status) (*models.Group, error) {
	return m.update(ctx, groupID, func(g *models.Group, e *edit) error {
		return transition(g, status, e)
	})
}

// StartSession sets the preferences and enters StatusSwiping in one step.
func (m *Manager) StartSession(ctx context.Context, groupID string, prefs models.Preferences) (*models.Group, error) {
	if err := prefs.Validate(); err != nil {
		return nil, err
	}
	return m.update(ctx, groupID, func(g *models.Group, e *edit) error {
		applyPreferences(g, prefs, e)
		return transition(g, models.StatusSwiping, e)
	})
}

// RemoveMember removes a non-host member.
func (m *Manager) RemoveMember(ctx context.Context, groupID, memberID string) (*models.Group, error) {
	return m.update(ctx, groupID, func(g *models.Group, _ *edit) error {
		idx := memberIndex(g, memberID)
		if idx < 0 {
			return ErrMemberNotFound
		}
		if g.Members[idx].IsHost {
			return ErrHostRemoval
		}
		g.Members = append(g.Members[:idx], g.Members[idx+1:]...)
		return nil
	})
}

// TransferHost hands host privileges from fromID to toID.
func (m *Manager) TransferHost(ctx context.Context, groupID, fromID, toID string) (*models.Group, error) {
	return m.update(ctx, groupID, func(g *models.Group, _ *edit) error {
		if !g.IsHost(fromID) {
			return ErrNotHost
		}
		if memberIndex(g, toID) < 0 {
			return ErrMemberNotFound
		}
		for i := range g.Members {
			g.Members[i].IsHost = g.Members[i].ID == toID
		}
		return nil
	})
}

// RecordSwipe stores a member's vote. A super-like counts as a like.
func (m *Manager) RecordSwipe(ctx context.Context, groupID string, swipe models.Swipe) (models.Swipe, error) {
	if strings.TrimSpace(swipe.RestaurantID) == "" || swipe.MemberID == "" {
		return models.Swipe{}, ErrInvalidSwipe
	}
	if swipe.SuperLiked {
		swipe.Liked = true
	}
	if swipe.Timestamp.IsZero() {
		swipe.Timestamp = m.now().UTC()
	}

	unlock := m.locks.lock(groupID)
	defer unlock()

	group, err := m.store.GetGroup(ctx, groupID)
	if err != nil {
		return models.Swipe{}, m.translate(err)
	}
	if _, ok := group.Member(swipe.MemberID); !ok {
		return models.Swipe{}, ErrMemberNotFound
	}
	if err := m.store.PutSwipe(ctx, groupID, swipe); err != nil {
		return models.Swipe{}, m.translate(err)
	}
	return swipe, nil
}

// MarkDoneSwiping flags the member as finished and reports whether every
// member is now done.
func (m *Manager) MarkDoneSwiping(ctx context.Context, groupID, memberID string) (*models.Group, bool, error) {
	group, err := m.update(ctx, groupID, func(g *models.Group, _ *edit) error {
		member, ok := g.Member(memberID)
		if !ok {
			return ErrMemberNotFound
		}
		member.DoneSwiping = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return group, group.AllDoneSwiping(), nil
}

// ReclaimLeadership restores host privileges to whoever presents the group's
// leader token. The member the token was last bound to becomes host again if
// it is still listed under memberName; otherwise every stray host flag is
// cleared and a new host member is added and bound to the token.
func (m *Manager) ReclaimLeadership(ctx context.Context, groupID, leaderToken, memberName string) (*models.Group, models.Member, error) {
	name, err := cleanName(memberName)
	if err != nil {
		return nil, models.Member{}, err
	}

	var host models.Member
	group, err := m.update(ctx, groupID, func(g *models.Group, _ *edit) error {
		if !m.leaders.Matches(g.LeaderTokenHash, leaderToken) {
			return ErrLeaderTokenMismatch
		}

		idx := memberIndex(g, g.LeaderMemberID)
		if idx >= 0 && !strings.EqualFold(g.Members[idx].Name, name) {
			idx = -1
		}
		for i := range g.Members {
			g.Members[i].IsHost = i == idx
		}
		if idx < 0 {
			g.Members = append(g.Members, models.Member{
				ID:       uuid.NewString(),
				Name:     name,
				IsHost:   true,
				JoinedAt: m.now().UTC(),
			})
			idx = len(g.Members) - 1
			g.LeaderMemberID = g.Members[idx].ID
		}
		host = g.Members[idx]
		return nil
	})
	if err != nil {
		return nil, models.Member{}, err
	}

	slog.Info("Leadership reclaimed", "group_id", groupID, "member_id", host.ID)
	return group, host, nil
}

// Swipes returns the active swipes of the group.
func (m *Manager) Swipes(ctx context.Context, groupID string) ([]models.Swipe, error) {
	_, swipes, err := m.View(ctx, groupID)
	return swipes, err
}

// edit collects what a mutation did to the group beyond its fields.
type edit struct {
	// newRound stores the group together with dropping its swipes.
	newRound bool
	// invalidate drops the cached candidates once the write is committed.
	invalidate bool
}

// update runs fn on a fresh copy of the group under the group's writer lock
// and stores the result if fn succeeds. Side effects recorded in the edit run
// only after the store accepted the write.
func (m *Manager) update(ctx context.Context, groupID string, fn func(g *models.Group, e *edit) error) (*models.Group, error) {
	unlock := m.locks.lock(groupID)
	defer unlock()

	group, err := m.store.GetGroup(ctx, groupID)
	if err != nil {
		return nil, m.translate(err)
	}
	if actor, ok := ctx.Value(hostKey{}).(string); ok && !group.IsHost(actor) {
		return nil, ErrNotHost
	}
	var e edit
	if err := fn(group, &e); err != nil {
		return nil, err
	}
	if e.newRound {
		err = m.store.StartRound(ctx, group)
	} else {
		err = m.store.UpdateGroup(ctx, group)
	}
	if err != nil {
		return nil, m.translate(err)
	}
	if e.invalidate && m.invalidator != nil {
		m.invalidator.Invalidate(groupID)
	}
	return group, nil
}

func applyPreferences(g *models.Group, prefs models.Preferences, e *edit) {
	p := prefs.Clone()
	g.Preferences = &p
	resetDone(g)
	e.invalidate = true
}

func transition(g *models.Group, to models.Status, e *edit) error {
	if !CanTransition(g.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, g.Status, to)
	}
	g.Status = to
	if to == models.StatusSwiping {
		resetDone(g)
		e.newRound = true
		e.invalidate = true
	}
	return nil
}

// translate maps storage errors onto session errors.
func (m *Manager) translate(err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return ErrGroupNotFound
	}
	return err
}

// CanTransition reports whether a group may move from one status to another.
func CanTransition(from, to models.Status) bool {
	switch to {
	case models.StatusSwiping:
		return true
	case models.StatusCompleted:
		return from == models.StatusSwiping
	case models.StatusWaiting, models.StatusConfiguring:
		return from == models.StatusWaiting || from == models.StatusConfiguring
	}
	return false
}

func resetDone(g *models.Group) {
	for i := range g.Members {
		g.Members[i].DoneSwiping = false
	}
}

func memberIndex(g *models.Group, memberID string) int {
	for i, mem := range g.Members {
		if mem.ID == memberID {
			return i
		}
	}
	return -1
}

func cleanName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > maxNameLength {
		return "", ErrInvalidName
	}
	return name, nil
}
