// AngelaMos | 2026
// memory.go

// Package usertest provides an in-memory user.Repository with the same
// uniqueness and compare-and-set semantics as the Postgres store.
package usertest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/carterperez-dev/templates/users-service/internal/core"
	"github.com/carterperez-dev/templates/users-service/internal/user"
)

type MemoryRepository struct {
	mu    sync.Mutex
	users map[string]*user.User
	now   func() time.Time

	// FailNext, when set, is returned by the next call and then cleared.
	FailNext error
}

var _ user.Repository = (*MemoryRepository)(nil)

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		users: make(map[string]*user.User),
		now:   time.Now,
	}
}

func (m *MemoryRepository) takeFailure() error {
	err := m.FailNext
	m.FailNext = nil
	return err
}

func (m *MemoryRepository) Create(_ context.Context, u *user.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.takeFailure(); err != nil {
		return err
	}

	if _, exists := m.users[u.ID]; exists {
		return fmt.Errorf("create user: %w", core.ErrDuplicateKey)
	}
	if m.conflicts(u) {
		return fmt.Errorf("create user: %w", core.ErrDuplicateKey)
	}

	now := m.now()
	u.Version = 1
	u.CreatedAt = now
	u.UpdatedAt = now
	m.users[u.ID] = u.Clone()

	return nil
}

func (m *MemoryRepository) GetByID(_ context.Context, id string) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.takeFailure(); err != nil {
		return nil, err
	}

	if u, ok := m.users[id]; ok {
		return u.Clone(), nil
	}
	return nil, nil //nolint:nilnil // absence is not an error for lookups
}

func (m *MemoryRepository) GetByEmail(_ context.Context, email string) (*user.User, error) {
	return m.find(func(u *user.User) bool { return u.Email == email })
}

func (m *MemoryRepository) GetByRefreshToken(
	_ context.Context,
	digest string,
) (*user.User, error) {
	return m.find(func(u *user.User) bool {
		return u.RefreshToken != nil && *u.RefreshToken == digest
	})
}

func (m *MemoryRepository) find(match func(*user.User) bool) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.takeFailure(); err != nil {
		return nil, err
	}

	for _, u := range m.users {
		if match(u) {
			return u.Clone(), nil
		}
	}
	return nil, nil //nolint:nilnil // absence is not an error for lookups
}

func (m *MemoryRepository) Update(_ context.Context, u *user.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.takeFailure(); err != nil {
		return err
	}

	current, ok := m.users[u.ID]
	if !ok {
		return fmt.Errorf("update user: %w", core.ErrNotFound)
	}
	if current.Version != u.Version {
		return fmt.Errorf("update user: %w", core.ErrStaleRecord)
	}
	if m.conflicts(u) {
		return fmt.Errorf("update user: %w", core.ErrDuplicateKey)
	}

	u.Version++
	u.UpdatedAt = m.now()
	u.CreatedAt = current.CreatedAt
	m.users[u.ID] = u.Clone()

	return nil
}

// conflicts reports whether u would violate the email or refresh token
// unique indexes against any other row.
func (m *MemoryRepository) conflicts(u *user.User) bool {
	for id, other := range m.users {
		if id == u.ID {
			continue
		}
		if other.Email == u.Email {
			return true
		}
		if u.RefreshToken != nil && other.RefreshToken != nil &&
			*u.RefreshToken == *other.RefreshToken {
			return true
		}
	}
	return false
}

func (m *MemoryRepository) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.takeFailure(); err != nil {
		return err
	}

	if _, ok := m.users[id]; !ok {
		return fmt.Errorf("delete user: %w", core.ErrNotFound)
	}
	delete(m.users, id)
	return nil
}

func (m *MemoryRepository) List(
	_ context.Context,
	params user.ListUsersParams,
) ([]user.User, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.takeFailure(); err != nil {
		return nil, 0, err
	}

	params.Normalize()
	search := strings.ToLower(params.Search)

	matched := make([]user.User, 0, len(m.users))
	for _, u := range m.users {
		if search != "" &&
			!strings.Contains(strings.ToLower(u.Email), search) &&
			!strings.Contains(strings.ToLower(u.Name), search) {
			continue
		}
		if params.Role != nil && u.Role != *params.Role {
			continue
		}
		if params.IsActive != nil && u.IsActive != *params.IsActive {
			continue
		}
		matched = append(matched, *u.Clone())
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	start := min(params.Offset(), total)
	end := min(start+params.PageSize, total)

	return matched[start:end], total, nil
}

func (m *MemoryRepository) Stats(_ context.Context) (user.Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.takeFailure(); err != nil {
		return user.Stats{}, err
	}

	var stats user.Stats
	for _, u := range m.users {
		stats.Total++
		if u.IsActive {
			stats.Active++
		}
		if u.IsEmailConfirmed {
			stats.Confirmed++
		}
		if u.IsAdmin() {
			stats.Admins++
		}
	}
	return stats, nil
}

// Snapshot returns a copy of the stored record, bypassing FailNext.
func (m *MemoryRepository) Snapshot(id string) *user.User {
	m.mu.Lock()
	defer m.mu.Unlock()

	if u, ok := m.users[id]; ok {
		return u.Clone()
	}
	return nil
}

// Seed stores u directly, assigning version 1 when unset.
func (m *MemoryRepository) Seed(u *user.User) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if u.Version == 0 {
		u.Version = 1
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = m.now()
		u.UpdatedAt = u.CreatedAt
	}
	m.users[u.ID] = u.Clone()
}
