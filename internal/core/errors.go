// AngelaMos | 2026
// errors.go

package core

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/samber/oops"
)

// Failure taxonomy. Every error leaving a service wraps exactly one of
// ErrValidation, ErrNotFound, ErrUnauthorized, ErrForbidden or ErrConflict.
var (
	ErrValidation   = errors.New("validation failed")
	ErrNotFound     = errors.New("resource not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrConflict     = errors.New("conflict")
)

// Store-level conditions, translated by services before they reach a handler.
var (
	ErrDuplicateKey = errors.New("duplicate key")
	ErrStaleRecord  = errors.New("stale record")
)

var (
	ErrTokenInvalid = errors.New("token invalid")
	ErrTokenExpired = errors.New("token expired")
)

const (
	KindValidation   = "validation"
	KindNotFound     = "not_found"
	KindUnauthorized = "unauthorized"
	KindForbidden    = "forbidden"
	KindConflict     = "conflict"
	KindInternal     = "internal"
)

// Kind classifies err into its taxonomy bucket. A nil error is "success".
func Kind(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrValidation), errors.Is(err, ErrDuplicateKey):
		return KindValidation
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, ErrTokenInvalid),
		errors.Is(err, ErrTokenExpired):
		return KindUnauthorized
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	case errors.Is(err, ErrConflict), errors.Is(err, ErrStaleRecord):
		return KindConflict
	default:
		return KindInternal
	}
}

type AppError struct {
	Err        error
	Message    string
	StatusCode int
	Code       string
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NewAppError(err error, message string, status int, code string) *AppError {
	return &AppError{
		Err:        err,
		Message:    message,
		StatusCode: status,
		Code:       code,
	}
}

func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

func ValidationError(message string) *AppError {
	return NewAppError(ErrValidation, message, http.StatusBadRequest, "VALIDATION_ERROR")
}

func NotFoundError(resource string) *AppError {
	return NewAppError(
		ErrNotFound,
		resource+" not found",
		http.StatusNotFound,
		"NOT_FOUND",
	)
}

func UnauthorizedError(message string) *AppError {
	if message == "" {
		message = "authentication required"
	}
	return NewAppError(ErrUnauthorized, message, http.StatusUnauthorized, "UNAUTHORIZED")
}

func ForbiddenError(message string) *AppError {
	return NewAppError(ErrForbidden, message, http.StatusForbidden, "FORBIDDEN")
}

func TokenExpiredError() *AppError {
	return NewAppError(
		ErrTokenExpired,
		"token has expired",
		http.StatusUnauthorized,
		"TOKEN_EXPIRED",
	)
}

func TokenInvalidError() *AppError {
	return NewAppError(
		ErrTokenInvalid,
		"token is invalid",
		http.StatusUnauthorized,
		"TOKEN_INVALID",
	)
}

func InternalError(err error) *AppError {
	return NewAppError(
		err,
		"internal server error",
		http.StatusInternalServerError,
		"INTERNAL_ERROR",
	)
}

// FromError maps any error onto the HTTP taxonomy. The client-facing message
// is the oops public message when one was attached, never the wrapped chain.
func FromError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	switch Kind(err) {
	case KindValidation:
		return NewAppError(err, oops.GetPublic(err, "request is invalid"),
			http.StatusBadRequest, "VALIDATION_ERROR")
	case KindNotFound:
		return NewAppError(err, oops.GetPublic(err, "resource not found"),
			http.StatusNotFound, "NOT_FOUND")
	case KindUnauthorized:
		return NewAppError(err, oops.GetPublic(err, "unauthorized"),
			http.StatusUnauthorized, "UNAUTHORIZED")
	case KindForbidden:
		return NewAppError(err, oops.GetPublic(err, "insufficient permissions"),
			http.StatusForbidden, "FORBIDDEN")
	case KindConflict:
		return NewAppError(err, oops.GetPublic(err, "resource was modified concurrently, retry"),
			http.StatusConflict, "CONFLICT")
	default:
		return InternalError(err)
	}
}

// LogError logs err with its oops code and context when present.
func LogError(logger *slog.Logger, msg string, err error) {
	if logger == nil {
		logger = slog.Default()
	}

	if oopsErr, ok := oops.AsOops(err); ok {
		attrs := []any{"error", oopsErr.Error(), "code", oopsErr.Code()}
		if ctx := oopsErr.Context(); len(ctx) > 0 {
			attrs = append(attrs, "context", ctx)
		}
		logger.Error(msg, attrs...)
		return
	}

	logger.Error(msg, "error", err)
}
