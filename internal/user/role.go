// AngelaMos | 2026
// role.go

package user

import (
	"database/sql/driver"
	"fmt"
	"strings"
)

// Role is persisted as a smallint. The code table below is mapping
// version RoleMappingVersion: codes are append-only and never reused.
type Role int8

const RoleMappingVersion = 1

const (
	RoleNone  Role = 0
	RoleUser  Role = 1
	RoleAdmin Role = 2
)

var roleNames = map[Role]string{
	RoleNone:  "None",
	RoleUser:  "User",
	RoleAdmin: "Admin",
}

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return fmt.Sprintf("Role(%d)", int8(r))
}

func (r Role) Valid() bool {
	_, ok := roleNames[r]
	return ok
}

// ParseRole accepts a role name case-insensitively.
func ParseRole(s string) (Role, error) {
	for role, name := range roleNames {
		if strings.EqualFold(name, strings.TrimSpace(s)) {
			return role, nil
		}
	}
	return RoleNone, fmt.Errorf("unknown role %q", s)
}

func (r Role) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("marshal role: invalid code %d", int8(r))
	}
	return []byte(r.String()), nil
}

func (r *Role) UnmarshalText(text []byte) error {
	parsed, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

func (r Role) Value() (driver.Value, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("persist role: invalid code %d", int8(r))
	}
	return int64(r), nil
}

func (r *Role) Scan(src any) error {
	var code int64
	switch v := src.(type) {
	case int64:
		code = v
	case int32:
		code = int64(v)
	case int16:
		code = int64(v)
	case []byte:
		if _, err := fmt.Sscanf(string(v), "%d", &code); err != nil {
			return fmt.Errorf("scan role: %w", err)
		}
	case string:
		if _, err := fmt.Sscanf(v, "%d", &code); err != nil {
			return fmt.Errorf("scan role: %w", err)
		}
	default:
		return fmt.Errorf("scan role: unsupported type %T", src)
	}

	role := Role(code) //nolint:gosec // G115: range checked by Valid below
	if code < 0 || code > 127 || !role.Valid() {
		return fmt.Errorf("scan role: unknown code %d", code)
	}

	*r = role
	return nil
}
