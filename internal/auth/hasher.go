// AngelaMos | 2026
// hasher.go

package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"

	"github.com/carterperez-dev/templates/users-service/internal/config"
)

var (
	ErrEmptyPassword   = errors.New("password must not be empty")
	ErrPasswordTooLong = errors.New("password exceeds hasher input limit")
	ErrUnknownHash     = errors.New("stored hash format not recognized")
)

// PasswordHasher produces and checks opaque password hashes. Verify
// reports a mismatch as (false, nil); an error means the stored hash
// could not be interpreted.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, encodedHash string) (bool, error)
	NeedsRehash(encodedHash string) bool
}

// ownedHasher is a PasswordHasher that can recognise its own output.
type ownedHasher interface {
	PasswordHasher
	Owns(encodedHash string) bool
}

type Argon2idParams struct {
	Memory     uint32
	Time       uint32
	Threads    uint8
	KeyLength  uint32
	SaltLength uint32
}

// DefaultArgon2idParams follows the OWASP minimum for argon2id.
var DefaultArgon2idParams = Argon2idParams{
	Memory:     64 * 1024,
	Time:       1,
	Threads:    4,
	KeyLength:  32,
	SaltLength: 16,
}

type Argon2idHasher struct {
	params Argon2idParams
}

func NewArgon2idHasher(params Argon2idParams) *Argon2idHasher {
	return &Argon2idHasher{params: params}
}

func (h *Argon2idHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}

	salt := make([]byte, h.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	hash := argon2.IDKey(
		[]byte(password),
		salt,
		h.params.Time,
		h.params.Memory,
		h.params.Threads,
		h.params.KeyLength,
	)

	encoded := fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.params.Memory,
		h.params.Time,
		h.params.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	)

	return encoded, nil
}

func (h *Argon2idHasher) Verify(password, encodedHash string) (bool, error) {
	params, salt, hash, err := decodeArgon2id(encodedHash)
	if err != nil {
		return false, err
	}

	otherHash := argon2.IDKey(
		[]byte(password),
		salt,
		params.Time,
		params.Memory,
		params.Threads,
		params.KeyLength,
	)

	return subtle.ConstantTimeCompare(hash, otherHash) == 1, nil
}

func (h *Argon2idHasher) NeedsRehash(encodedHash string) bool {
	params, _, _, err := decodeArgon2id(encodedHash)
	if err != nil {
		return true
	}

	return params.Memory != h.params.Memory ||
		params.Time != h.params.Time ||
		params.Threads != h.params.Threads ||
		params.KeyLength != h.params.KeyLength
}

func (h *Argon2idHasher) Owns(encodedHash string) bool {
	return strings.HasPrefix(encodedHash, "$argon2id$")
}

func decodeArgon2id(encodedHash string) (*Argon2idParams, []byte, []byte, error) {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 {
		return nil, nil, nil, fmt.Errorf("invalid hash format: %w", ErrUnknownHash)
	}

	if parts[1] != "argon2id" {
		return nil, nil, nil, fmt.Errorf("unsupported algorithm %q: %w", parts[1], ErrUnknownHash)
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return nil, nil, nil, fmt.Errorf("invalid version: %w", err)
	}

	if version != argon2.Version {
		return nil, nil, nil, fmt.Errorf("incompatible version: %d", version)
	}

	params := &Argon2idParams{}
	_, err := fmt.Sscanf(
		parts[3],
		"m=%d,t=%d,p=%d",
		&params.Memory,
		&params.Time,
		&params.Threads,
	)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("invalid params: %w", err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return nil, nil, nil, fmt.Errorf("decode salt: %w", err)
	}

	hash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return nil, nil, nil, fmt.Errorf("decode hash: %w", err)
	}

	//nolint:gosec // G115: argon2id output is always a few dozen bytes
	params.KeyLength = uint32(len(hash))
	//nolint:gosec // G115: salt length is always small
	params.SaltLength = uint32(len(salt))

	return params, salt, hash, nil
}

// bcryptMaxInput is the number of password bytes bcrypt actually reads.
const bcryptMaxInput = 72

type BcryptHasher struct {
	cost int
}

func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{cost: cost}
}

func (h *BcryptHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	if len(password) > bcryptMaxInput {
		return "", ErrPasswordTooLong
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("bcrypt hash: %w", err)
	}
	return string(hash), nil
}

func (h *BcryptHasher) Verify(password, encodedHash string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("bcrypt verify: %w", err)
	}
}

func (h *BcryptHasher) NeedsRehash(encodedHash string) bool {
	cost, err := bcrypt.Cost([]byte(encodedHash))
	if err != nil {
		return true
	}
	return cost != h.cost
}

func (h *BcryptHasher) Owns(encodedHash string) bool {
	return strings.HasPrefix(encodedHash, "$2a$") ||
		strings.HasPrefix(encodedHash, "$2b$") ||
		strings.HasPrefix(encodedHash, "$2y$")
}

// UpgradingHasher hashes with Primary and verifies with whichever hasher
// owns the stored format. Hashes owned by a legacy hasher always need a
// rehash, so switching algorithms migrates users as they log in.
type UpgradingHasher struct {
	primary ownedHasher
	legacy  []ownedHasher
}

func NewUpgradingHasher(primary ownedHasher, legacy ...ownedHasher) *UpgradingHasher {
	return &UpgradingHasher{primary: primary, legacy: legacy}
}

func (h *UpgradingHasher) Hash(password string) (string, error) {
	return h.primary.Hash(password)
}

func (h *UpgradingHasher) Verify(password, encodedHash string) (bool, error) {
	owner := h.owner(encodedHash)
	if owner == nil {
		return false, ErrUnknownHash
	}
	return owner.Verify(password, encodedHash)
}

func (h *UpgradingHasher) NeedsRehash(encodedHash string) bool {
	if h.primary.Owns(encodedHash) {
		return h.primary.NeedsRehash(encodedHash)
	}
	return true
}

func (h *UpgradingHasher) owner(encodedHash string) ownedHasher {
	if h.primary.Owns(encodedHash) {
		return h.primary
	}
	for _, legacy := range h.legacy {
		if legacy.Owns(encodedHash) {
			return legacy
		}
	}
	return nil
}

// NewPasswordHasher builds the configured hasher. The algorithm not
// selected is kept as a legacy verifier so existing hashes keep working.
func NewPasswordHasher(cfg config.PasswordConfig) (*UpgradingHasher, error) {
	argon := NewArgon2idHasher(DefaultArgon2idParams)
	bcryptHasher := NewBcryptHasher(cfg.BcryptCost)

	switch cfg.Algorithm {
	case "", config.PasswordArgon2id:
		return NewUpgradingHasher(argon, bcryptHasher), nil
	case config.PasswordBcrypt:
		return NewUpgradingHasher(bcryptHasher, argon), nil
	default:
		return nil, fmt.Errorf("unknown password algorithm %q", cfg.Algorithm)
	}
}
