package session

import "errors"

var (
	ErrGroupNotFound       = errors.New("group not found")
	ErrMemberNotFound      = errors.New("member not found")
	ErrHostRemoval         = errors.New("the host cannot be removed; transfer host first")
	ErrNotHost             = errors.New("only the host can do this")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrInvalidName         = errors.New("name must be 1-32 characters")
	ErrInvalidCode         = errors.New("join code must be 6 characters")
	ErrInvalidSwipe        = errors.New("swipe requires a restaurant")
	ErrLeaderTokenMismatch = errors.New("leader token does not match")
)
