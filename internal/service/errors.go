package service

import (
	"errors"
	"log/slog"

	"connectrpc.com/connect"

	"github.com/SensualOdin/ChickenTendies-sub000/internal/binding"
	"github.com/SensualOdin/ChickenTendies-sub000/internal/middleware"
	"github.com/SensualOdin/ChickenTendies-sub000/internal/models"
	"github.com/SensualOdin/ChickenTendies-sub000/internal/session"
)

var (
	errRateLimited = errors.New("slow down")
	errNotMember   = errors.New("not a member of this group")
	errInternal    = errors.New("internal error")
)

// toConnectError maps service errors onto connect codes. Anything unknown
// is logged and reported as a bare internal error.
func toConnectError(op string, err error) error {
	var connectErr *connect.Error
	if errors.As(err, &connectErr) {
		return connectErr
	}

	switch {
	case errors.Is(err, session.ErrGroupNotFound),
		errors.Is(err, session.ErrMemberNotFound):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, session.ErrNotHost),
		errors.Is(err, session.ErrLeaderTokenMismatch),
		errors.Is(err, errNotMember):
		return connect.NewError(connect.CodePermissionDenied, err)
	case errors.Is(err, binding.ErrMissingBinding),
		errors.Is(err, binding.ErrInvalidBinding),
		errors.Is(err, binding.ErrMismatch):
		return middleware.BindingError(err)
	case errors.Is(err, session.ErrInvalidName),
		errors.Is(err, session.ErrInvalidCode),
		errors.Is(err, session.ErrInvalidSwipe),
		errors.Is(err, models.ErrInvalidPreferences),
		errors.Is(err, errMissingRestaurant),
		errors.Is(err, errMissingTarget),
		errors.Is(err, errInvalidEmoji):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.Is(err, session.ErrInvalidTransition),
		errors.Is(err, session.ErrHostRemoval):
		return connect.NewError(connect.CodeFailedPrecondition, err)
	case errors.Is(err, errRateLimited):
		return connect.NewError(connect.CodeResourceExhausted, err)
	}

	slog.Error(op+" failed", "error", err)
	return connect.NewError(connect.CodeInternal, errInternal)
}

// publicMessage is the text a websocket client sees for err.
func publicMessage(err error) string {
	var connectErr *connect.Error
	if errors.As(toConnectError("websocket action", err), &connectErr) {
		return connectErr.Message()
	}
	return errInternal.Error()
}
