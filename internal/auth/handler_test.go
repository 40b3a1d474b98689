// AngelaMos | 2026
// handler_test.go

package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func newTestRouter(t *testing.T) (*chi.Mux, *testEnv) {
	t.Helper()
	env := newTestEnv(t)
	r := chi.NewRouter()
	NewHandler(env.svc).RegisterRoutes(r, nil)
	return r, env
}

func do(t *testing.T, h http.Handler, method, target, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec, env
}

func TestHandler_RegisterAndLogin(t *testing.T) {
	r, _ := newTestRouter(t)

	rec, body := do(t, r, http.MethodPost, "/auth/register",
		`{"name":"Alice","email":"alice@example.com","password":"secret1"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var registered RegisterResponse
	require.NoError(t, json.Unmarshal(body.Data, &registered))
	assert.NotEmpty(t, registered.ID)

	rec, body = do(t, r, http.MethodPost, "/auth/register",
		`{"name":"Alice","email":"alice@example.com","password":"secret1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, body.Error)
	assert.Equal(t, "user with this email already exists", body.Error.Message)

	rec, body = do(t, r, http.MethodPost, "/auth/login",
		`{"email":"alice@example.com","password":"secret1"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var tokens TokenResponse
	require.NoError(t, json.Unmarshal(body.Data, &tokens))
	assert.NotEmpty(t, tokens.AccessToken)
	assert.NotEmpty(t, tokens.RefreshToken)
	assert.Equal(t, "Bearer", tokens.TokenType)
	assert.Equal(t, 900, tokens.ExpiresIn)

	rec, _ = do(t, r, http.MethodPost, "/auth/refresh",
		`{"refresh_token":"`+tokens.RefreshToken+`"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, body = do(t, r, http.MethodPost, "/auth/refresh",
		`{"refresh_token":"`+tokens.RefreshToken+`"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	require.NotNil(t, body.Error)
}

func TestHandler_LoginFailure(t *testing.T) {
	r, _ := newTestRouter(t)

	rec, body := do(t, r, http.MethodPost, "/auth/login",
		`{"email":"nobody@example.com","password":"secret1"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	require.NotNil(t, body.Error)
	assert.Equal(t, "UNAUTHORIZED", body.Error.Code)
	assert.Equal(t, "invalid email or password", body.Error.Message)
}

func TestHandler_RejectsBadInput(t *testing.T) {
	r, _ := newTestRouter(t)

	tests := []struct {
		name   string
		method string
		target string
		body   string
	}{
		{"malformed json", http.MethodPost, "/auth/login", `{"email":`},
		{"invalid email", http.MethodPost, "/auth/register", `{"name":"A","email":"nope","password":"secret1"}`},
		{"short password", http.MethodPost, "/auth/register", `{"name":"A","email":"a@example.com","password":"abc"}`},
		{"missing token", http.MethodPost, "/auth/reset-password", `{"email":"a@example.com","new_password":"secret2"}`},
		{"confirm without token", http.MethodGet, "/auth/confirm-email?email=a%40example.com", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := do(t, r, tt.method, tt.target, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.False(t, body.Success)
		})
	}
}

func TestHandler_ForgotAndReset(t *testing.T) {
	r, env := newTestRouter(t)

	rec, _ := do(t, r, http.MethodPost, "/auth/forgot-password", `{"email":"alice@example.com"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	env.register(t, "alice@example.com", "secret1")

	rec, _ = do(t, r, http.MethodPost, "/auth/forgot-password", `{"email":"alice@example.com"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	token := env.sender.resetToken(t)

	rec, _ = do(t, r, http.MethodPost, "/auth/reset-password",
		`{"email":"alice@example.com","token":"`+token+`","new_password":"secret2"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = do(t, r, http.MethodPost, "/auth/reset-password",
		`{"email":"alice@example.com","token":"`+token+`","new_password":"secret3"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_EmailConfirmation(t *testing.T) {
	r, env := newTestRouter(t)

	rec, _ := do(t, r, http.MethodPost, "/auth/send-email-confirmation", `{"email":"alice@example.com"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	env.register(t, "alice@example.com", "secret1")

	rec, _ = do(t, r, http.MethodPost, "/auth/send-email-confirmation", `{"email":"alice@example.com"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	token := env.sender.confirmationToken(t)

	query := url.Values{"email": {"alice@example.com"}, "token": {token}}
	rec, _ = do(t, r, http.MethodGet, "/auth/confirm-email?"+query.Encode(), "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = do(t, r, http.MethodGet, "/auth/confirm-email?"+query.Encode(), "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
