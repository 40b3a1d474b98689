// AngelaMos | 2026
// jwt.go

package auth

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/lestrrat-go/jwx/v3/jwt"

	"github.com/carterperez-dev/templates/users-service/internal/config"
	"github.com/carterperez-dev/templates/users-service/internal/core"
	"github.com/carterperez-dev/templates/users-service/internal/middleware"
	"github.com/carterperez-dev/templates/users-service/internal/user"
)

const (
	tokenTypeAccess = "access"
	clockSkew       = 30 * time.Second
)

// JWTManager issues and verifies access tokens and mints opaque tokens.
// Access tokens are HS256 with a shared secret or ES256 with a key pair;
// only ES256 publishes a JWKS.
type JWTManager struct {
	alg        jwa.SignatureAlgorithm
	signingKey jwk.Key
	verifyKey  jwk.Key
	publicJWKS jwk.Set
	config     config.JWTConfig
	now        func() time.Time
}

type JWTOption func(*JWTManager)

// WithJWTClock overrides the clock used for iat/nbf/exp and validation.
func WithJWTClock(now func() time.Time) JWTOption {
	return func(m *JWTManager) {
		m.now = now
	}
}

func NewJWTManager(cfg config.JWTConfig, opts ...JWTOption) (*JWTManager, error) {
	m := &JWTManager{
		config: cfg,
		now:    time.Now,
	}

	var err error
	switch cfg.Algorithm {
	case "", config.AlgorithmHS256:
		err = m.loadSecret(cfg.Secret)
	case config.AlgorithmES256:
		err = m.loadKeyPair(cfg.PrivateKeyPath)
	default:
		err = fmt.Errorf("unsupported jwt algorithm %q", cfg.Algorithm)
	}
	if err != nil {
		return nil, err
	}

	for _, opt := range opts {
		opt(m)
	}

	return m, nil
}

func (m *JWTManager) loadSecret(secret string) error {
	if secret == "" {
		return fmt.Errorf("jwt secret is empty")
	}

	key, err := jwk.Import([]byte(secret))
	if err != nil {
		return fmt.Errorf("import secret: %w", err)
	}

	m.alg = jwa.HS256()
	m.signingKey = key
	m.verifyKey = key
	return nil
}

func (m *JWTManager) loadKeyPair(privateKeyPath string) error {
	privateKeyPEM, err := os.ReadFile(privateKeyPath)
	if err != nil {
		return fmt.Errorf("read private key: %w", err)
	}

	privateKey, err := jwk.ParseKey(privateKeyPEM, jwk.WithPEM(true))
	if err != nil {
		return fmt.Errorf("parse private key: %w", err)
	}

	if setErr := privateKey.Set(jwk.AlgorithmKey, jwa.ES256()); setErr != nil {
		return fmt.Errorf("set algorithm: %w", setErr)
	}

	keyID, err := thumbprintKeyID(privateKey)
	if err != nil {
		return err
	}
	if setErr := privateKey.Set(jwk.KeyIDKey, keyID); setErr != nil {
		return fmt.Errorf("set key id: %w", setErr)
	}

	publicKey, err := privateKey.PublicKey()
	if err != nil {
		return fmt.Errorf("derive public key: %w", err)
	}

	if setErr := publicKey.Set(jwk.KeyUsageKey, "sig"); setErr != nil {
		return fmt.Errorf("set key usage: %w", setErr)
	}

	publicJWKS := jwk.NewSet()
	if addErr := publicJWKS.AddKey(publicKey); addErr != nil {
		return fmt.Errorf("add key to set: %w", addErr)
	}

	m.alg = jwa.ES256()
	m.signingKey = privateKey
	m.verifyKey = publicKey
	m.publicJWKS = publicJWKS
	return nil
}

// thumbprintKeyID derives a kid that is stable across restarts.
func thumbprintKeyID(key jwk.Key) (string, error) {
	thumbprint, err := key.Thumbprint(crypto.SHA256)
	if err != nil {
		return "", fmt.Errorf("compute key thumbprint: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(thumbprint)[:16], nil
}

// GenerateKeyPair writes a fresh P-256 key pair as PEM files.
func GenerateKeyPair(privateKeyPath, publicKeyPath string) error {
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}

	jwkPrivate, err := jwk.Import(privateKey)
	if err != nil {
		return fmt.Errorf("import private key: %w", err)
	}

	if setErr := jwkPrivate.Set(jwk.AlgorithmKey, jwa.ES256()); setErr != nil {
		return fmt.Errorf("set algorithm: %w", setErr)
	}

	privatePEM, err := jwk.Pem(jwkPrivate)
	if err != nil {
		return fmt.Errorf("encode private key: %w", err)
	}

	if writeErr := os.WriteFile(privateKeyPath, privatePEM, 0o600); writeErr != nil {
		return fmt.Errorf("write private key: %w", writeErr)
	}

	jwkPublic, err := jwkPrivate.PublicKey()
	if err != nil {
		return fmt.Errorf("derive public key: %w", err)
	}

	publicPEM, err := jwk.Pem(jwkPublic)
	if err != nil {
		return fmt.Errorf("encode public key: %w", err)
	}

	//nolint:gosec // G306: public key is meant to be world-readable
	if writeErr := os.WriteFile(publicKeyPath, publicPEM, 0o644); writeErr != nil {
		return fmt.Errorf("write public key: %w", writeErr)
	}

	return nil
}

func (m *JWTManager) IssueAccessToken(u *user.User) (AccessToken, error) {
	now := m.now()
	expiresAt := now.Add(m.config.AccessTokenExpire)
	tokenID := uuid.NewString()

	token, err := jwt.NewBuilder().
		JwtID(tokenID).
		Issuer(m.config.Issuer).
		Audience([]string{m.config.Audience}).
		Subject(u.ID).
		IssuedAt(now).
		NotBefore(now).
		Expiration(expiresAt).
		Claim("email", u.Email).
		Claim("role", u.Role.String()).
		Claim("type", tokenTypeAccess).
		Build()
	if err != nil {
		return AccessToken{}, fmt.Errorf("build token: %w", err)
	}

	signed, err := jwt.Sign(token, jwt.WithKey(m.alg, m.signingKey))
	if err != nil {
		return AccessToken{}, fmt.Errorf("sign token: %w", err)
	}

	return AccessToken{
		Value:     string(signed),
		TokenID:   tokenID,
		ExpiresAt: expiresAt,
	}, nil
}

func (m *JWTManager) VerifyAccessToken(
	_ context.Context,
	tokenString string,
) (*middleware.AccessTokenClaims, error) {
	token, err := jwt.Parse(
		[]byte(tokenString),
		jwt.WithKey(m.alg, m.verifyKey),
		jwt.WithValidate(true),
		jwt.WithIssuer(m.config.Issuer),
		jwt.WithAudience(m.config.Audience),
		jwt.WithClock(jwt.ClockFunc(m.now)),
		jwt.WithAcceptableSkew(clockSkew),
	)
	if err != nil {
		if errors.Is(err, jwt.TokenExpiredError()) {
			return nil, fmt.Errorf("verify token: %w", core.ErrTokenExpired)
		}
		return nil, fmt.Errorf("verify token: %w", core.ErrTokenInvalid)
	}

	var tokenType string
	if err := token.Get("type", &tokenType); err != nil ||
		tokenType != tokenTypeAccess {
		return nil, fmt.Errorf(
			"verify token: invalid token type: %w",
			core.ErrTokenInvalid,
		)
	}

	subject, ok := token.Subject()
	if !ok || subject == "" {
		return nil, fmt.Errorf(
			"verify token: missing subject: %w",
			core.ErrTokenInvalid,
		)
	}

	var roleName string
	if err := token.Get("role", &roleName); err != nil {
		return nil, fmt.Errorf(
			"verify token: missing role claim: %w",
			core.ErrTokenInvalid,
		)
	}
	role, err := user.ParseRole(roleName)
	if err != nil {
		return nil, fmt.Errorf("verify token: %w", core.ErrTokenInvalid)
	}

	var email string
	//nolint:errcheck // email is informational; absence leaves it empty
	_ = token.Get("email", &email)

	tokenID, _ := token.JwtID()

	return &middleware.AccessTokenClaims{
		UserID:  subject,
		Email:   email,
		Role:    role.String(),
		TokenID: tokenID,
	}, nil
}

// IssueOpaqueToken returns a fresh 256-bit token and its storage digest.
func (m *JWTManager) IssueOpaqueToken() (OpaqueToken, error) {
	value, err := core.GenerateSecureToken(core.OpaqueTokenBytes)
	if err != nil {
		return OpaqueToken{}, fmt.Errorf("generate opaque token: %w", err)
	}

	return OpaqueToken{
		Value:  value,
		Digest: core.HashToken(value),
	}, nil
}

func (m *JWTManager) AccessTokenTTL() time.Duration {
	return m.config.AccessTokenExpire
}

func (m *JWTManager) RefreshTokenTTL() time.Duration {
	return m.config.RefreshTokenExpire
}

// PublishesJWKS reports whether verifiers can fetch a public key set.
func (m *JWTManager) PublishesJWKS() bool {
	return m.publicJWKS != nil
}

func (m *JWTManager) GetJWKSHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if m.publicJWKS == nil {
			core.NotFound(w, "key set")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "public, max-age=3600")

		if err := json.NewEncoder(w).Encode(m.publicJWKS); err != nil {
			http.Error(
				w,
				"Internal Server Error",
				http.StatusInternalServerError,
			)
			return
		}
	}
}

func (m *JWTManager) GetKeyID() string {
	var kid string
	//nolint:errcheck // HS256 keys carry no kid
	_ = m.signingKey.Get(jwk.KeyIDKey, &kid)
	return kid
}
