// AngelaMos | 2026
// dto_test.go

package user

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fixedTime() time.Time {
	return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
}

func TestListUsersParams_Normalize(t *testing.T) {
	p := ListUsersParams{Page: 0, PageSize: 500}
	p.Normalize()

	assert.Equal(t, 1, p.Page)
	assert.Equal(t, 100, p.PageSize)
	assert.Equal(t, 0, p.Offset())

	p = ListUsersParams{Page: 3, PageSize: 0}
	p.Normalize()
	assert.Equal(t, 20, p.PageSize)
	assert.Equal(t, 40, p.Offset())
}

func TestListUsersParams_HugePageKeepsOffsetNonNegative(t *testing.T) {
	for _, size := range []int{1, 20, 100, 500} {
		p := ListUsersParams{Page: math.MaxInt, PageSize: size}
		p.Normalize()

		assert.GreaterOrEqual(t, p.Offset(), 0, "page_size=%d", size)
		assert.Equal(t, maxPage, p.Page)
	}
}

func TestToUserResponse_OmitsSecrets(t *testing.T) {
	u := User{
		ID:           "u1",
		Name:         "Alice",
		Email:        "alice@example.com",
		PasswordHash: "hash",
		Role:         RoleUser,
		IsActive:     true,
	}
	u.SetRefreshToken("digest", fixedTime())

	resp := ToUserResponse(&u)
	assert.Equal(t, "u1", resp.ID)
	assert.Equal(t, RoleUser, resp.Role)

	list := ToUserResponseList([]User{u, u})
	assert.Len(t, list, 2)
}
