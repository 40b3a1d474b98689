// AngelaMos | 2026
// entity.go

package auth

import (
	"time"

	"github.com/carterperez-dev/templates/users-service/internal/core"
)

type AccessToken struct {
	Value     string
	TokenID   string
	ExpiresAt time.Time
}

// OpaqueToken is handed to the client as Value; only Digest is stored.
type OpaqueToken struct {
	Value  string
	Digest string
}

// TokenPair is the result of Login and Refresh.
type TokenPair struct {
	AccessToken  AccessToken
	RefreshToken string
}

// tokenLive reports whether presented matches the stored digest and the
// expiry is still in the future. A missing digest or expiry never matches.
func tokenLive(storedDigest *string, expiresAt *time.Time, presented string, now time.Time) bool {
	if storedDigest == nil || expiresAt == nil || presented == "" {
		return false
	}
	if !core.CompareTokenHash(presented, *storedDigest) {
		return false
	}
	return now.Before(*expiresAt)
}
