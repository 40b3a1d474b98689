// AngelaMos | 2026
// repository.go

package auth

import (
	"context"

	"github.com/carterperez-dev/templates/users-service/internal/user"
)

// UserStore is the slice of the credential store the auth commands use.
// Lookups return (nil, nil) when nothing matches. Update fails with
// core.ErrStaleRecord when another writer got there first.
type UserStore interface {
	Create(ctx context.Context, u *user.User) error
	GetByEmail(ctx context.Context, email string) (*user.User, error)
	GetByRefreshToken(ctx context.Context, digest string) (*user.User, error)
	Update(ctx context.Context, u *user.User) error
}

var _ UserStore = user.Repository(nil)
