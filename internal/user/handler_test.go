// AngelaMos | 2026
// handler_test.go

package user_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carterperez-dev/templates/users-service/internal/middleware"
	"github.com/carterperez-dev/templates/users-service/internal/user"
	"github.com/carterperez-dev/templates/users-service/internal/user/usertest"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Meta *struct {
		Total int `json:"total"`
	} `json:"meta"`
}

// headerAuth trusts X-User-ID and X-User-Role so routes can be exercised
// without a token issuer.
func headerAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := &middleware.AccessTokenClaims{
			UserID: r.Header.Get("X-User-ID"),
			Role:   r.Header.Get("X-User-Role"),
		}
		next.ServeHTTP(w, r.WithContext(middleware.WithClaims(r.Context(), claims)))
	})
}

func newRouter(t *testing.T) (*chi.Mux, *usertest.MemoryRepository) {
	t.Helper()
	svc, repo, _ := newService(t)

	r := chi.NewRouter()
	user.NewHandler(svc).RegisterRoutes(r, headerAuth, middleware.RequireRole(user.RoleAdmin.String()))
	return r, repo
}

func call(
	t *testing.T,
	h http.Handler,
	method, target, body string,
	asID, asRole string,
) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", asID)
	req.Header.Set("X-User-Role", asRole)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env envelope
	if rec.Code != http.StatusNoContent {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec, env
}

func TestHandler_GetMe(t *testing.T) {
	r, repo := newRouter(t)
	repo.Seed(&user.User{ID: "u-1", Name: "Alice", Email: "alice@example.com", Role: user.RoleUser, IsActive: true})

	rec, body := call(t, r, http.MethodGet, "/users/me", "", "u-1", "User")
	require.Equal(t, http.StatusOK, rec.Code)

	var me user.UserResponse
	require.NoError(t, json.Unmarshal(body.Data, &me))
	assert.Equal(t, "alice@example.com", me.Email)
	assert.Equal(t, user.RoleUser, me.Role)
}

func TestHandler_AdminRoutesRequireAdmin(t *testing.T) {
	r, _ := newRouter(t)

	rec, _ := call(t, r, http.MethodGet, "/users/", "", "u-1", "User")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHandler_AdminCRUD(t *testing.T) {
	r, repo := newRouter(t)
	repo.Seed(&user.User{ID: "admin-1", Name: "Root", Email: "root@example.com", Role: user.RoleAdmin, IsActive: true})

	rec, body := call(t, r, http.MethodPost, "/users/",
		`{"name":"Bob","email":"BOB@example.com","password":"secret1"}`, "admin-1", "Admin")
	require.Equal(t, http.StatusCreated, rec.Code)

	var created user.UserResponse
	require.NoError(t, json.Unmarshal(body.Data, &created))
	assert.Equal(t, "bob@example.com", created.Email)

	rec, body = call(t, r, http.MethodGet, "/users/?page=1&page_size=10", "", "admin-1", "Admin")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, body.Meta)
	assert.Equal(t, 2, body.Meta.Total)

	rec, _ = call(t, r, http.MethodGet, "/users/?role=Root", "", "admin-1", "Admin")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = call(t, r, http.MethodPut, "/users/"+created.ID,
		`{"name":"Robert"}`, "admin-1", "Admin")
	require.Equal(t, http.StatusOK, rec.Code)
	var updated user.UserResponse
	require.NoError(t, json.Unmarshal(body.Data, &updated))
	assert.Equal(t, "Robert", updated.Name)

	rec, _ = call(t, r, http.MethodDelete, "/users/"+created.ID, "", "admin-1", "Admin")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec, body = call(t, r, http.MethodGet, "/users/"+created.ID, "", "admin-1", "Admin")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	require.NotNil(t, body.Error)
	assert.Equal(t, "user not found", body.Error.Message)
}

func TestHandler_CannotDeleteAnotherAdmin(t *testing.T) {
	r, repo := newRouter(t)
	first, second := uuid.NewString(), uuid.NewString()
	repo.Seed(&user.User{ID: first, Email: "a1@example.com", Role: user.RoleAdmin, IsActive: true})
	repo.Seed(&user.User{ID: second, Email: "a2@example.com", Role: user.RoleAdmin, IsActive: true})

	rec, _ := call(t, r, http.MethodDelete, "/users/"+second, "", first, "Admin")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.NotNil(t, repo.Snapshot(second))
}

func TestHandler_MalformedUserIDIsNotFound(t *testing.T) {
	r, repo := newRouter(t)
	repo.Seed(&user.User{ID: "admin-1", Email: "root@example.com", Role: user.RoleAdmin, IsActive: true})

	tests := []struct {
		method string
		body   string
	}{
		{method: http.MethodGet},
		{method: http.MethodPut, body: `{"name":"Mallory"}`},
		{method: http.MethodDelete},
	}

	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			rec, body := call(t, r, tt.method, "/users/abc", tt.body, "admin-1", "Admin")
			assert.Equal(t, http.StatusNotFound, rec.Code)
			require.NotNil(t, body.Error)
			assert.Equal(t, "user not found", body.Error.Message)
		})
	}
}
