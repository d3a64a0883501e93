// Package storage provides abstractions for persistent group state.
package storage

import (
	"context"
	"errors"

	"github.com/SensualOdin/ChickenTendies-sub000/internal/models"
)

var (
	// ErrNotFound is returned when a group does not exist.
	ErrNotFound = errors.New("not found")

	// ErrCodeTaken is returned by CreateGroup when the join code is in use.
	ErrCodeTaken = errors.New("join code already in use")
)

// Store defines the interface for durable group storage.
// This abstraction allows swapping storage backends (in-memory, SQLite, ...)
// without changing the session layer. Implementations are safe for
// concurrent use; serializing read-modify-write sequences on one group is
// the caller's job.
type Store interface {
	// CreateGroup persists a new group with its members.
	// Returns ErrCodeTaken if another group already uses group.Code.
	CreateGroup(ctx context.Context, group *models.Group) error

	// GetGroup retrieves a group by ID. Returns ErrNotFound if absent.
	GetGroup(ctx context.Context, groupID string) (*models.Group, error)

	// GetGroupByCode retrieves a group by its join code. Returns ErrNotFound if absent.
	GetGroupByCode(ctx context.Context, code string) (*models.Group, error)

	// UpdateGroup replaces the stored group, members and preferences.
	// Returns ErrNotFound if the group does not exist.
	UpdateGroup(ctx context.Context, group *models.Group) error

	// PutSwipe stores a swipe, replacing any earlier swipe by the same member
	// on the same restaurant.
	PutSwipe(ctx context.Context, groupID string, swipe models.Swipe) error

	// ListSwipes returns the active swipes of a group ordered by timestamp.
	ListSwipes(ctx context.Context, groupID string) ([]models.Swipe, error)

	// StartRound replaces the stored group like UpdateGroup and removes every
	// swipe of the group. Both happen or neither does.
	StartRound(ctx context.Context, group *models.Group) error

	// Close releases any resources held by the store.
	Close() error
}
