// AngelaMos | 2026
// service.go

package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel/attribute"

	"github.com/carterperez-dev/templates/users-service/internal/core"
	"github.com/carterperez-dev/templates/users-service/internal/notify"
	"github.com/carterperez-dev/templates/users-service/internal/user"
)

const (
	CommandRegister              = "register"
	CommandLogin                 = "login"
	CommandRefresh               = "refresh"
	CommandForgotPassword        = "forgot_password"
	CommandResetPassword         = "reset_password"
	CommandConfirmEmail          = "confirm_email"
	CommandSendEmailConfirmation = "send_email_confirmation"
)

// TokenIssuer mints the tokens handed out by Login and Refresh.
type TokenIssuer interface {
	IssueAccessToken(u *user.User) (AccessToken, error)
	IssueOpaqueToken() (OpaqueToken, error)
	RefreshTokenTTL() time.Duration
}

type CommandRecorder interface {
	RecordAuthCommand(command, outcome string, duration time.Duration)
}

type Settings struct {
	ResetTokenTTL        time.Duration
	ConfirmationTokenTTL time.Duration
	ConfirmationBaseURL  string
	ResetBaseURL         string
}

type ServiceConfig struct {
	Store    UserStore
	Hasher   PasswordHasher
	Tokens   TokenIssuer
	Sender   notify.Sender
	Settings Settings
	Metrics  CommandRecorder
	Logger   *slog.Logger
	Now      func() time.Time
}

// Service runs the credential lifecycle commands. Each command reads one
// user record, checks a credential or token, and persists every change in
// a single compare-and-set update.
type Service struct {
	store    UserStore
	hasher   PasswordHasher
	tokens   TokenIssuer
	sender   notify.Sender
	settings Settings
	metrics  CommandRecorder
	logger   *slog.Logger
	now      func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

func NewService(cfg ServiceConfig) *Service {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Service{
		store:    cfg.Store,
		hasher:   cfg.Hasher,
		tokens:   cfg.Tokens,
		sender:   cfg.Sender,
		settings: cfg.Settings,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
		now:      cfg.Now,
	}
}

func (s *Service) instrument(
	ctx context.Context,
	command string,
	fn func(ctx context.Context) error,
) error {
	start := time.Now()
	ctx, span := core.StartSpan(ctx, "auth."+command,
		attribute.String("auth.command", command),
	)

	err := fn(ctx)

	core.EndSpan(span, err)
	if s.metrics != nil {
		s.metrics.RecordAuthCommand(command, core.Kind(err), time.Since(start))
	}
	return err
}

func (s *Service) Register(
	ctx context.Context,
	name, email, password string,
) (string, error) {
	var id string
	err := s.instrument(ctx, CommandRegister, func(ctx context.Context) error {
		email = user.NormalizeEmail(email)

		existing, err := s.store.GetByEmail(ctx, email)
		if err != nil {
			return oops.Code("AUTH_REGISTER_FAILED").With("operation", "GetByEmail").Wrap(err)
		}
		if existing != nil {
			return errEmailTaken()
		}

		hash, err := s.hasher.Hash(password)
		if err != nil {
			return hashError("AUTH_REGISTER_FAILED", err)
		}

		confirmation, err := s.tokens.IssueOpaqueToken()
		if err != nil {
			return oops.Code("AUTH_REGISTER_FAILED").With("operation", "IssueOpaqueToken").Wrap(err)
		}

		u := &user.User{
			ID:           uuid.NewString(),
			Name:         strings.TrimSpace(name),
			Email:        email,
			PasswordHash: hash,
			Role:         user.RoleUser,
			IsActive:     true,
		}
		u.SetEmailConfirmationToken(
			confirmation.Digest,
			s.now().Add(s.settings.ConfirmationTokenTTL),
		)

		if err := s.store.Create(ctx, u); err != nil {
			if errors.Is(err, core.ErrDuplicateKey) {
				return errEmailTaken()
			}
			return oops.Code("AUTH_REGISTER_FAILED").With("operation", "Create").Wrap(err)
		}

		if err := s.dispatchConfirmation(ctx, u.Email, confirmation.Value); err != nil {
			return oops.Code("AUTH_REGISTER_DISPATCH_FAILED").With("user_id", u.ID).Wrap(err)
		}

		id = u.ID
		return nil
	})

	return id, err
}

// Login verifies the password and starts the single active session,
// replacing any refresh token issued before.
func (s *Service) Login(
	ctx context.Context,
	email, password string,
) (TokenPair, error) {
	var pair TokenPair
	err := s.instrument(ctx, CommandLogin, func(ctx context.Context) error {
		u, err := s.store.GetByEmail(ctx, user.NormalizeEmail(email))
		if err != nil {
			return oops.Code("AUTH_LOGIN_FAILED").With("operation", "GetByEmail").Wrap(err)
		}
		if u == nil {
			s.burnVerify(password)
			return errInvalidCredentials()
		}

		ok, err := s.hasher.Verify(password, u.PasswordHash)
		if err != nil {
			return oops.Code("AUTH_LOGIN_FAILED").
				With("operation", "Verify", "user_id", u.ID).
				Wrap(err)
		}
		if !ok {
			return errInvalidCredentials()
		}

		if s.hasher.NeedsRehash(u.PasswordHash) {
			if upgraded, hashErr := s.hasher.Hash(password); hashErr == nil {
				u.PasswordHash = upgraded
			} else {
				s.logger.WarnContext(ctx, "password rehash skipped",
					"user_id", u.ID,
					"error", hashErr,
				)
			}
		}

		pair, err = s.rotateSession(ctx, u)
		if err != nil {
			return sessionError("AUTH_LOGIN", u.ID, err)
		}
		return nil
	})

	return pair, err
}

// Refresh exchanges a live refresh token for a new pair. The presented
// token stops working as soon as the new one is persisted.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	var pair TokenPair
	err := s.instrument(ctx, CommandRefresh, func(ctx context.Context) error {
		if refreshToken == "" {
			return errInvalidRefreshToken()
		}

		u, err := s.store.GetByRefreshToken(ctx, core.HashToken(refreshToken))
		if err != nil {
			return oops.Code("AUTH_REFRESH_FAILED").With("operation", "GetByRefreshToken").Wrap(err)
		}
		if u == nil {
			return errInvalidRefreshToken()
		}

		if !tokenLive(u.RefreshToken, u.RefreshTokenExpiresAt, refreshToken, s.now()) {
			return oops.Code("AUTH_REFRESH_EXPIRED").
				With("user_id", u.ID).
				Public("refresh token is invalid or expired").
				Wrap(errors.Join(core.ErrUnauthorized, core.ErrTokenExpired))
		}

		pair, err = s.rotateSession(ctx, u)
		if err != nil {
			return sessionError("AUTH_REFRESH", u.ID, err)
		}
		return nil
	})

	return pair, err
}

// rotateSession issues a new pair, stores the refresh digest on u and
// persists u. The pair is only returned if the write won.
func (s *Service) rotateSession(ctx context.Context, u *user.User) (TokenPair, error) {
	access, err := s.tokens.IssueAccessToken(u)
	if err != nil {
		return TokenPair{}, oops.With("operation", "IssueAccessToken").Wrap(err)
	}

	refresh, err := s.tokens.IssueOpaqueToken()
	if err != nil {
		return TokenPair{}, oops.With("operation", "IssueOpaqueToken").Wrap(err)
	}

	u.SetRefreshToken(refresh.Digest, s.now().Add(s.tokens.RefreshTokenTTL()))

	if err := s.store.Update(ctx, u); err != nil {
		return TokenPair{}, err
	}

	return TokenPair{AccessToken: access, RefreshToken: refresh.Value}, nil
}

func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	return s.instrument(ctx, CommandForgotPassword, func(ctx context.Context) error {
		email = user.NormalizeEmail(email)

		u, err := s.store.GetByEmail(ctx, email)
		if err != nil {
			return oops.Code("AUTH_FORGOT_PASSWORD_FAILED").With("operation", "GetByEmail").Wrap(err)
		}
		if u == nil {
			return errUserNotFound()
		}

		reset, err := s.tokens.IssueOpaqueToken()
		if err != nil {
			return oops.Code("AUTH_FORGOT_PASSWORD_FAILED").With("operation", "IssueOpaqueToken").Wrap(err)
		}

		u.SetResetToken(reset.Digest, s.now().Add(s.settings.ResetTokenTTL))

		if err := s.store.Update(ctx, u); err != nil {
			return issueError("AUTH_FORGOT_PASSWORD", u.ID, err)
		}

		if err := s.dispatchReset(ctx, u.Email, reset.Value); err != nil {
			return oops.Code("AUTH_FORGOT_PASSWORD_DISPATCH_FAILED").With("user_id", u.ID).Wrap(err)
		}
		return nil
	})
}

// ResetPassword consumes the reset token. The same write ends the active
// session, since whoever held it may be the reason for the reset.
func (s *Service) ResetPassword(ctx context.Context, email, token, newPassword string) error {
	return s.instrument(ctx, CommandResetPassword, func(ctx context.Context) error {
		u, err := s.store.GetByEmail(ctx, user.NormalizeEmail(email))
		if err != nil {
			return oops.Code("AUTH_RESET_PASSWORD_FAILED").With("operation", "GetByEmail").Wrap(err)
		}
		if u == nil || !tokenLive(u.ResetToken, u.ResetTokenExpiresAt, token, s.now()) {
			return errInvalidResetToken()
		}

		hash, err := s.hasher.Hash(newPassword)
		if err != nil {
			return hashError("AUTH_RESET_PASSWORD_FAILED", err)
		}

		u.PasswordHash = hash
		u.ClearResetToken()
		u.ClearRefreshToken()

		if err := s.store.Update(ctx, u); err != nil {
			return consumeError("AUTH_RESET_PASSWORD", u.ID, err, errInvalidResetToken)
		}
		return nil
	})
}

func (s *Service) ConfirmEmail(ctx context.Context, email, token string) error {
	return s.instrument(ctx, CommandConfirmEmail, func(ctx context.Context) error {
		u, err := s.store.GetByEmail(ctx, user.NormalizeEmail(email))
		if err != nil {
			return oops.Code("AUTH_CONFIRM_EMAIL_FAILED").With("operation", "GetByEmail").Wrap(err)
		}
		if u == nil || !tokenLive(
			u.EmailConfirmationToken,
			u.EmailConfirmationTokenExpiresAt,
			token,
			s.now(),
		) {
			return errInvalidConfirmationToken()
		}

		u.IsEmailConfirmed = true
		u.ClearEmailConfirmationToken()

		if err := s.store.Update(ctx, u); err != nil {
			return consumeError("AUTH_CONFIRM_EMAIL", u.ID, err, errInvalidConfirmationToken)
		}
		return nil
	})
}

// SendEmailConfirmation issues a new confirmation token, superseding any
// earlier one, and mails the link.
func (s *Service) SendEmailConfirmation(ctx context.Context, email string) error {
	return s.instrument(ctx, CommandSendEmailConfirmation, func(ctx context.Context) error {
		u, err := s.store.GetByEmail(ctx, user.NormalizeEmail(email))
		if err != nil {
			return oops.Code("AUTH_SEND_CONFIRMATION_FAILED").With("operation", "GetByEmail").Wrap(err)
		}
		if u == nil {
			return errUserNotFound()
		}

		confirmation, err := s.tokens.IssueOpaqueToken()
		if err != nil {
			return oops.Code("AUTH_SEND_CONFIRMATION_FAILED").With("operation", "IssueOpaqueToken").Wrap(err)
		}

		u.SetEmailConfirmationToken(
			confirmation.Digest,
			s.now().Add(s.settings.ConfirmationTokenTTL),
		)

		if err := s.store.Update(ctx, u); err != nil {
			return issueError("AUTH_SEND_CONFIRMATION", u.ID, err)
		}

		if err := s.dispatchConfirmation(ctx, u.Email, confirmation.Value); err != nil {
			return oops.Code("AUTH_SEND_CONFIRMATION_DISPATCH_FAILED").With("user_id", u.ID).Wrap(err)
		}
		return nil
	})
}

func (s *Service) dispatchConfirmation(ctx context.Context, email, token string) error {
	link, err := notify.ConfirmationLink(s.settings.ConfirmationBaseURL, email, token)
	if err != nil {
		return err
	}
	return s.sender.Send(ctx, email, notify.ConfirmationSubject, notify.ConfirmationBody(link))
}

func (s *Service) dispatchReset(ctx context.Context, email, token string) error {
	var link string
	if s.settings.ResetBaseURL != "" {
		var err error
		link, err = notify.ConfirmationLink(s.settings.ResetBaseURL, email, token)
		if err != nil {
			return err
		}
	}
	return s.sender.Send(ctx, email, notify.ResetSubject, notify.ResetBody(token, link))
}

// burnVerify spends the same hashing work as a real verification so that
// unknown emails are not distinguishable by response time.
func (s *Service) burnVerify(password string) {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash("dummy_password_for_timing_equalization")
		if err != nil {
			s.logger.Warn("dummy hash unavailable", "error", err)
			return
		}
		s.dummyHash = hash
	})
	if s.dummyHash == "" {
		return
	}
	//nolint:errcheck // result is discarded
	_, _ = s.hasher.Verify(password, s.dummyHash)
}

func lostRace(err error) bool {
	return errors.Is(err, core.ErrStaleRecord) || errors.Is(err, core.ErrNotFound)
}

// sessionError maps a failed rotateSession. Losing the race is a retryable
// Unauthorized; the losing pair was never stored.
func sessionError(prefix, userID string, err error) error {
	if lostRace(err) {
		return oops.Code(prefix+"_CONFLICT").
			With("user_id", userID, "cause", err.Error()).
			Public("session changed concurrently, retry").
			Wrap(core.ErrUnauthorized)
	}
	return oops.Code(prefix+"_FAILED").With("user_id", userID).Wrap(err)
}

// issueError maps a failed token issuance write. Losing the race is a
// retryable Conflict; nothing was dispatched.
func issueError(prefix, userID string, err error) error {
	switch {
	case errors.Is(err, core.ErrStaleRecord):
		return oops.Code(prefix+"_CONFLICT").
			With("user_id", userID).
			Public("request raced with another change, retry").
			Wrap(errors.Join(core.ErrConflict, err))
	case errors.Is(err, core.ErrNotFound):
		return errUserNotFound()
	}
	return oops.Code(prefix+"_FAILED").With("user_id", userID, "operation", "Update").Wrap(err)
}

// consumeError maps a failed write that would have consumed a single-use
// token. A concurrent write leaves the outcome unknown, so the caller gets a
// retryable Conflict; the retry either succeeds or reports the token as
// spent. A vanished record means the token is gone with it.
func consumeError(prefix, userID string, err error, invalid func() error) error {
	switch {
	case errors.Is(err, core.ErrStaleRecord):
		return oops.Code(prefix+"_CONFLICT").
			With("user_id", userID).
			Public("request raced with another change, retry").
			Wrap(errors.Join(core.ErrConflict, err))
	case errors.Is(err, core.ErrNotFound):
		return invalid()
	}
	return oops.Code(prefix+"_FAILED").With("user_id", userID, "operation", "Update").Wrap(err)
}

func hashError(code string, err error) error {
	if errors.Is(err, ErrEmptyPassword) || errors.Is(err, ErrPasswordTooLong) {
		return oops.Code("AUTH_PASSWORD_REJECTED").
			Public(err.Error()).
			Wrap(errors.Join(core.ErrValidation, err))
	}
	return oops.Code(code).With("operation", "Hash").Wrap(err)
}

func errEmailTaken() error {
	return oops.Code("AUTH_EMAIL_TAKEN").
		Public("user with this email already exists").
		Wrap(core.ErrValidation)
}

func errInvalidCredentials() error {
	return oops.Code("AUTH_INVALID_CREDENTIALS").
		Public("invalid email or password").
		Wrap(core.ErrUnauthorized)
}

func errInvalidRefreshToken() error {
	return oops.Code("AUTH_REFRESH_INVALID").
		Public("refresh token is invalid or expired").
		Wrap(errors.Join(core.ErrUnauthorized, core.ErrTokenInvalid))
}

func errUserNotFound() error {
	return oops.Code("AUTH_USER_NOT_FOUND").
		Public("user not found").
		Wrap(core.ErrNotFound)
}

func errInvalidResetToken() error {
	return oops.Code("AUTH_RESET_TOKEN_INVALID").
		Public("invalid or expired reset token").
		Wrap(core.ErrValidation)
}

func errInvalidConfirmationToken() error {
	return oops.Code("AUTH_CONFIRMATION_TOKEN_INVALID").
		Public("invalid or expired confirmation token").
		Wrap(core.ErrValidation)
}
