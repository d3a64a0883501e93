package middleware

import (
	"context"
	"errors"

	"connectrpc.com/connect"

	"github.com/SensualOdin/ChickenTendies-sub000/internal/binding"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// MemberIDKey is the context key for the verified member ID.
	MemberIDKey contextKey = "member_id"
	// GroupIDKey is the context key for the group the member was verified in.
	GroupIDKey contextKey = "group_id"
)

// MemberScoped is implemented by requests made on behalf of one member of
// one group.
type MemberScoped interface {
	GetGroupID() string
	GetMemberID() string
}

// GetMemberID extracts the verified member ID from the context.
// Returns empty string if not found.
func GetMemberID(ctx context.Context) string {
	memberID, _ := ctx.Value(MemberIDKey).(string)
	return memberID
}

// GetGroupID extracts the verified group ID from the context.
// Returns empty string if not found.
func GetGroupID(ctx context.Context) string {
	groupID, _ := ctx.Value(GroupIDKey).(string)
	return groupID
}

// WithMember returns ctx carrying a verified member.
func WithMember(ctx context.Context, groupID, memberID string) context.Context {
	ctx = context.WithValue(ctx, GroupIDKey, groupID)
	return context.WithValue(ctx, MemberIDKey, memberID)
}

// RequireBinding returns an interceptor that verifies the member binding of
// every MemberScoped request. The claimed member must be the one the binding
// holds for the claimed group. Other requests pass through untouched.
func RequireBinding(signer *binding.Signer) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			scoped, ok := req.Any().(MemberScoped)
			if !ok {
				return next(ctx, req)
			}

			groupID, memberID := scoped.GetGroupID(), scoped.GetMemberID()
			if groupID == "" || memberID == "" {
				return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("groupId and memberId are required"))
			}

			token := binding.FromHeader(req.Header())
			if err := signer.Check(memberID, groupID, token); err != nil {
				return nil, BindingError(err)
			}

			return next(WithMember(ctx, groupID, memberID), req)
		}
	}
}

// BindingError maps a binding failure onto a connect error: no usable token
// is unauthenticated, a token for someone else is permission denied.
func BindingError(err error) *connect.Error {
	if errors.Is(err, binding.ErrMismatch) {
		return connect.NewError(connect.CodePermissionDenied, err)
	}
	return connect.NewError(connect.CodeUnauthenticated, err)
}
