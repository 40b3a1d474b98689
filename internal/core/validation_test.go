// AngelaMos | 2026
// validation_test.go

package core

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type signupInput struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	Role     string `json:"role"     validate:"omitempty,oneof=User Admin"`
}

func TestDecodeAndValidate(t *testing.T) {
	v := NewValidator()

	tests := []struct {
		name    string
		body    string
		ok      bool
		message string
	}{
		{"valid", `{"email":"a@example.com","password":"secret1"}`, true, ""},
		{"malformed", `{"email":`, false, "invalid request body"},
		{"missing email", `{"password":"secret1"}`, false, "email is required"},
		{"bad email", `{"email":"nope","password":"secret1"}`, false, "email must be a valid email address"},
		{"short password", `{"email":"a@example.com","password":"abc"}`, false, "password must be at least 6 characters"},
		{"bad role", `{"email":"a@example.com","password":"secret1","role":"Root"}`, false, "role must be one of: User Admin"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()

			var dst signupInput
			ok := DecodeAndValidate(rec, req, v, &dst)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				return
			}

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			var body Response
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			require.NotNil(t, body.Error)
			assert.Equal(t, tt.message, body.Error.Message)
		})
	}
}
