// AngelaMos | 2026
// role_test.go

package user

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRole_CodesAreStable(t *testing.T) {
	assert.Equal(t, 1, RoleMappingVersion)
	assert.Equal(t, Role(0), RoleNone)
	assert.Equal(t, Role(1), RoleUser)
	assert.Equal(t, Role(2), RoleAdmin)
}

func TestParseRole(t *testing.T) {
	tests := []struct {
		in      string
		want    Role
		wantErr bool
	}{
		{"None", RoleNone, false},
		{"user", RoleUser, false},
		{" ADMIN ", RoleAdmin, false},
		{"superuser", RoleNone, true},
		{"", RoleNone, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRole(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRole_JSONUsesName(t *testing.T) {
	data, err := json.Marshal(struct {
		Role Role `json:"role"`
	}{RoleAdmin})
	require.NoError(t, err)
	assert.JSONEq(t, `{"role":"Admin"}`, string(data))

	var decoded struct {
		Role Role `json:"role"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"role":"User"}`), &decoded))
	assert.Equal(t, RoleUser, decoded.Role)

	_, err = json.Marshal(struct {
		Role Role `json:"role"`
	}{Role(9)})
	assert.Error(t, err)
}

func TestRole_ValueAndScan(t *testing.T) {
	v, err := RoleAdmin.Value()
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)

	_, err = Role(7).Value()
	assert.Error(t, err)

	var r Role
	require.NoError(t, r.Scan(int64(1)))
	assert.Equal(t, RoleUser, r)

	require.NoError(t, r.Scan([]byte("2")))
	assert.Equal(t, RoleAdmin, r)

	assert.Error(t, r.Scan(int64(3)))
	assert.Error(t, r.Scan(int64(-1)))
	assert.Error(t, r.Scan(1.5))
}

func TestRole_String(t *testing.T) {
	assert.Equal(t, "Admin", RoleAdmin.String())
	assert.Equal(t, "Role(5)", Role(5).String())
}

func TestUser_CloneIsDeep(t *testing.T) {
	u := &User{ID: "u1"}
	u.SetRefreshToken("digest", fixedTime())

	c := u.Clone()
	*c.RefreshToken = "changed"

	assert.Equal(t, "digest", *u.RefreshToken)

	u.ClearRefreshToken()
	assert.Nil(t, u.RefreshToken)
	assert.Nil(t, u.RefreshTokenExpiresAt)
	assert.NotNil(t, c.RefreshTokenExpiresAt)
}
