package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Sentinel errors for token verification. Expiry is distinct from a
// bad signature so callers can prompt re-auth instead of rejecting
// outright.
var (
	// ErrTokenExpired is returned when a token's signature is valid but
	// its expiry has passed.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid is returned for malformed tokens, bad signatures,
	// and unexpected signing algorithms.
	ErrTokenInvalid = errors.New("invalid token")
)

// DefaultTokenExpiry applies when authentication.token_expiry is unset.
const DefaultTokenExpiry = time.Hour

// MinSecretLength is the minimum accepted signing secret size in bytes.
const MinSecretLength = 16

// ErrSecretTooShort is returned at construction for undersized secrets.
var ErrSecretTooShort = errors.New("signing secret too short")

// TokenClaims is the payload carried by signed tokens.
type TokenClaims struct {
	UserID string   `json:"user_id"`
	Roles  []string `json:"roles"`
	jwt.RegisteredClaims
}

// TokenService mints and verifies stateless HS256 tokens. Verification
// needs no server-side lookup; the process-owned secret is the only
// shared state. Safe for concurrent use.
type TokenService struct {
	secret []byte
	expiry time.Duration

	now func() time.Time // test hook
}

// NewTokenService creates a token service with the given secret and
// token lifetime. A non-positive expiry falls back to
// DefaultTokenExpiry.
func NewTokenService(secret []byte, expiry time.Duration) (*TokenService, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrSecretTooShort
	}
	if expiry <= 0 {
		expiry = DefaultTokenExpiry
	}
	return &TokenService{
		secret: secret,
		expiry: expiry,
		now:    time.Now,
	}, nil
}

// Create signs a token encoding the user's identity and roles.
// Claims: user_id, roles, iat (now), exp (now + expiry).
func (s *TokenService) Create(user *User) (string, error) {
	now := s.now().UTC()
	claims := TokenClaims{
		UserID: user.ID,
		Roles:  RoleStrings(user.Roles),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Verify checks signature and expiry and returns the decoded identity.
// Returns ErrTokenExpired for an otherwise valid but expired token and
// ErrTokenInvalid for everything else.
func (s *TokenService) Verify(raw string) (*User, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	token, err := parser.ParseWithClaims(raw, &TokenClaims{}, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	claims, ok := token.Claims.(*TokenClaims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}

	return &User{
		ID:              claims.UserID,
		Roles:           RolesFromStrings(claims.Roles),
		Metadata:        make(map[string]any),
		AuthenticatedAt: s.now().UTC(),
	}, nil
}
