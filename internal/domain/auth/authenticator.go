package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// DefaultStoreTimeout bounds credential store lookups so a slow store
// can never hang the pipeline.
const DefaultStoreTimeout = 5 * time.Second

// ErrUnknownMode is returned at construction for unrecognized
// authentication types.
var ErrUnknownMode = errors.New("unknown authentication type")

// Service authenticates callers according to the configured mode.
// All failures are returned as Result values, never as errors; the
// error path is reserved for construction-time misconfiguration.
type Service struct {
	enabled bool
	mode    Mode
	store   CredentialStore
	tokens  *TokenService
	timeout time.Duration
}

// NewService creates an authentication service. A credential store is
// required for basic mode and a token service for token mode; both may
// be nil otherwise.
func NewService(enabled bool, mode Mode, store CredentialStore, tokens *TokenService, storeTimeout time.Duration) (*Service, error) {
	if enabled && !mode.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
	if enabled && mode == ModeBasic && store == nil {
		return nil, errors.New("basic authentication requires a credential store")
	}
	if enabled && mode == ModeToken && tokens == nil {
		return nil, errors.New("token authentication requires a token service")
	}
	if storeTimeout <= 0 {
		storeTimeout = DefaultStoreTimeout
	}
	return &Service{
		enabled: enabled,
		mode:    mode,
		store:   store,
		tokens:  tokens,
		timeout: storeTimeout,
	}, nil
}

// Mode returns the configured authentication mode.
func (s *Service) Mode() Mode {
	return s.mode
}

// Authenticate turns supplied credentials into a verified identity.
// With security disabled every caller becomes the anonymous guest;
// mode none yields the fixed default user. Credential values are never
// logged.
func (s *Service) Authenticate(ctx context.Context, creds Credentials) Result {
	if !s.enabled {
		return Succeed(AnonymousUser())
	}

	switch s.mode {
	case ModeNone:
		return Succeed(DefaultUser())
	case ModeBasic:
		return s.authenticateBasic(ctx, creds)
	case ModeToken:
		return s.authenticateToken(creds)
	default:
		// NewService rejects unknown modes; fail closed regardless.
		return Fail(ReasonInvalidCredentials)
	}
}

func (s *Service) authenticateBasic(ctx context.Context, creds Credentials) Result {
	if creds.Username == "" || creds.Password == "" {
		return Fail(ReasonMissingBasic)
	}

	lookupCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cred, err := s.store.GetCredential(lookupCtx, creds.Username)
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		slog.Warn("credential store lookup timed out",
			"timeout", s.timeout)
		return Fail(ReasonTimeout)
	case errors.Is(err, ErrCredentialNotFound):
		// Unknown user and wrong password report the same reason.
		return Fail(ReasonInvalidCredentials)
	case err != nil:
		slog.Warn("credential store lookup failed", "error", err)
		return Fail(ReasonInvalidCredentials)
	}

	match, err := VerifyPasswordContext(ctx, creds.Password, cred.PasswordHash)
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return Fail(ReasonTimeout)
	case err != nil, !match:
		return Fail(ReasonInvalidCredentials)
	}

	return Succeed(NewUser(cred.Username, cred.Roles...))
}

func (s *Service) authenticateToken(creds Credentials) Result {
	if creds.Token == "" {
		return Fail(ReasonMissingToken)
	}

	user, err := s.tokens.Verify(creds.Token)
	switch {
	case errors.Is(err, ErrTokenExpired):
		return Fail(ReasonTokenExpired)
	case err != nil:
		return Fail(ReasonTokenInvalid)
	}

	return Succeed(user)
}

// CreateToken mints a signed token for the user. Requires a configured
// token service.
func (s *Service) CreateToken(user *User) (string, error) {
	if s.tokens == nil {
		return "", errors.New("token service not configured")
	}
	return s.tokens.Create(user)
}
