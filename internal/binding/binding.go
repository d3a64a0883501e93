// Package binding ties an anonymous caller to a member of a group.
//
// A binding is an HS256-signed token holding a groupId -> memberId map. The
// client keeps it (cookie or header) and replays it on every group-scoped
// request, so the server needs no session table. A binding only says "this
// caller may act as this member"; host privileges are always checked against
// the current group state.
package binding

import (
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingBinding = errors.New("member binding required")
	ErrInvalidBinding = errors.New("invalid member binding")
	ErrMismatch       = errors.New("member binding does not match member")
)

// Claims are the signed contents of a binding.
type Claims struct {
	// Members maps group ID to the caller's member ID in that group.
	Members map[string]string `json:"members"`
	jwt.RegisteredClaims
}

// Signer issues and checks bindings.
type Signer struct {
	secretKey []byte
	ttl       time.Duration
	now       func() time.Time
}

// NewSigner creates a signer. A zero ttl issues bindings that never expire.
func NewSigner(secretKey string, ttl time.Duration) *Signer {
	return &Signer{
		secretKey: []byte(secretKey),
		ttl:       ttl,
		now:       time.Now,
	}
}

// Bind issues a binding for a single group membership.
func (s *Signer) Bind(groupID, memberID string) (string, error) {
	return s.Extend("", groupID, memberID)
}

// Extend issues a binding that carries every entry of the existing token plus
// groupID -> memberID. An invalid or empty existing token is ignored.
func (s *Signer) Extend(existing, groupID, memberID string) (string, error) {
	if groupID == "" || memberID == "" {
		return "", fmt.Errorf("%w: group and member required", ErrInvalidBinding)
	}

	members := make(map[string]string)
	if existing != "" {
		if claims, err := s.parse(existing); err == nil {
			maps.Copy(members, claims.Members)
		}
	}
	members[groupID] = memberID

	now := s.now()
	claims := &Claims{
		Members: members,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if s.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(s.ttl))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secretKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign binding: %w", err)
	}
	return signed, nil
}

// Resolve returns the member the token binds for groupID. It fails closed:
// any parse or signature problem, or a missing group key, yields ("", false).
func (s *Signer) Resolve(token, groupID string) (string, bool) {
	if token == "" || groupID == "" {
		return "", false
	}
	claims, err := s.parse(token)
	if err != nil {
		return "", false
	}
	memberID, ok := claims.Members[groupID]
	if !ok || memberID == "" {
		return "", false
	}
	return memberID, true
}

// Verify reports whether token binds exactly claimedMemberID in groupID.
func (s *Signer) Verify(claimedMemberID, groupID, token string) bool {
	if claimedMemberID == "" {
		return false
	}
	memberID, ok := s.Resolve(token, groupID)
	return ok && memberID == claimedMemberID
}

// Check is Verify with an error describing why the binding was rejected.
func (s *Signer) Check(claimedMemberID, groupID, token string) error {
	if token == "" {
		return ErrMissingBinding
	}
	memberID, ok := s.Resolve(token, groupID)
	if !ok {
		return ErrInvalidBinding
	}
	if memberID != claimedMemberID {
		return ErrMismatch
	}
	return nil
}

func (s *Signer) parse(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(
		tokenString,
		&Claims{},
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return s.secretKey, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBinding, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidBinding
	}
	return claims, nil
}
