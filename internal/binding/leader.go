package binding

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// leaderTokenBytes is the entropy of a leader token before encoding.
const leaderTokenBytes = 32

// LeaderTokens issues the secret that lets a group's creator reclaim host
// privileges. Only a bcrypt hash is kept server side.
type LeaderTokens struct {
	cost int
}

// NewLeaderTokens creates an issuer hashing with the given bcrypt cost.
// A cost of 0 selects bcrypt.DefaultCost.
func NewLeaderTokens(cost int) *LeaderTokens {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &LeaderTokens{cost: cost}
}

// Issue returns a fresh token and the hash to store with the group.
func (l *LeaderTokens) Issue() (token, hash string, err error) {
	buf := make([]byte, leaderTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("failed to generate leader token: %w", err)
	}
	token = base64.RawURLEncoding.EncodeToString(buf)

	hashed, err := bcrypt.GenerateFromPassword([]byte(token), l.cost)
	if err != nil {
		return "", "", fmt.Errorf("failed to hash leader token: %w", err)
	}
	return token, string(hashed), nil
}

// Matches reports whether token is exactly the token that produced hash.
func (l *LeaderTokens) Matches(hash, token string) bool {
	if hash == "" || len(token) != base64.RawURLEncoding.EncodedLen(leaderTokenBytes) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)) == nil
}
