// AngelaMos | 2026
// entity.go

package user

import (
	"time"
)

// User is the sole aggregate of the credential store. Token columns hold
// SHA-256 digests of the opaque tokens handed to clients, never the tokens.
type User struct {
	ID               string `db:"id"`
	Name             string `db:"name"`
	Email            string `db:"email"`
	PasswordHash     string `db:"password_hash"`
	Role             Role   `db:"role"`
	IsActive         bool   `db:"is_active"`
	IsEmailConfirmed bool   `db:"is_email_confirmed"`

	RefreshToken                    *string    `db:"refresh_token"`
	RefreshTokenExpiresAt           *time.Time `db:"refresh_token_expires_at"`
	ResetToken                      *string    `db:"reset_token"`
	ResetTokenExpiresAt             *time.Time `db:"reset_token_expires_at"`
	EmailConfirmationToken          *string    `db:"email_confirmation_token"`
	EmailConfirmationTokenExpiresAt *time.Time `db:"email_confirmation_token_expires_at"`

	Version   int64     `db:"version"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

func (u *User) SetRefreshToken(digest string, expiresAt time.Time) {
	u.RefreshToken = &digest
	u.RefreshTokenExpiresAt = &expiresAt
}

func (u *User) ClearRefreshToken() {
	u.RefreshToken = nil
	u.RefreshTokenExpiresAt = nil
}

func (u *User) SetResetToken(digest string, expiresAt time.Time) {
	u.ResetToken = &digest
	u.ResetTokenExpiresAt = &expiresAt
}

func (u *User) ClearResetToken() {
	u.ResetToken = nil
	u.ResetTokenExpiresAt = nil
}

func (u *User) SetEmailConfirmationToken(digest string, expiresAt time.Time) {
	u.EmailConfirmationToken = &digest
	u.EmailConfirmationTokenExpiresAt = &expiresAt
}

func (u *User) ClearEmailConfirmationToken() {
	u.EmailConfirmationToken = nil
	u.EmailConfirmationTokenExpiresAt = nil
}

// Clone returns a deep copy, so stores never share token pointers with callers.
func (u *User) Clone() *User {
	c := *u
	c.RefreshToken = cloneString(u.RefreshToken)
	c.RefreshTokenExpiresAt = cloneTime(u.RefreshTokenExpiresAt)
	c.ResetToken = cloneString(u.ResetToken)
	c.ResetTokenExpiresAt = cloneTime(u.ResetTokenExpiresAt)
	c.EmailConfirmationToken = cloneString(u.EmailConfirmationToken)
	c.EmailConfirmationTokenExpiresAt = cloneTime(u.EmailConfirmationTokenExpiresAt)
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// Stats is an aggregate snapshot of the users table.
type Stats struct {
	Total     int `db:"total"     json:"total"`
	Active    int `db:"active"    json:"active"`
	Confirmed int `db:"confirmed" json:"confirmed"`
	Admins    int `db:"admins"    json:"admins"`
}
