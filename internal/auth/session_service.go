// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/holomush/authcore/pkg/errutil"
)

// DefaultAccessTokenTTL is the access token lifetime when none is configured.
const DefaultAccessTokenTTL = 15 * time.Minute

var tracer = otel.Tracer("authcore/auth")

// Session is the credential pair handed to a client after authentication or refresh.
type Session struct {
	AccessToken      string   `json:"access_token"`
	RefreshToken     string   `json:"refresh_token"`
	ExpiresInSeconds int64    `json:"expires_in"`
	User             UserView `json:"user"`
}

// RegisterRequest holds the fields of a new account.
type RegisterRequest struct {
	Username  string
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// SessionServiceDeps are the collaborators of a SessionService.
type SessionServiceDeps struct {
	Users  UserRepository
	Tokens *RefreshTokenManager
	Codec  AccessTokenCodec
	Hasher PasswordHasher
	Tx     Transactor
	Logger *slog.Logger
}

// SessionServiceConfig holds SessionService settings.
type SessionServiceConfig struct {
	AccessTokenTTL time.Duration
	// Policy overrides DefaultPasswordPolicy when non-nil.
	Policy *PasswordPolicy
	// Now overrides the clock; defaults to time.Now.
	Now func() time.Time
}

// SessionService authenticates users and manages their sessions and accounts.
// It is the only entry point transports call.
type SessionService struct {
	users     UserRepository
	tokens    *RefreshTokenManager
	codec     AccessTokenCodec
	hasher    PasswordHasher
	tx        Transactor
	logger    *slog.Logger
	policy    PasswordPolicy
	accessTTL time.Duration
	now       func() time.Time
	dummyHash string
}

// NewSessionService creates a SessionService.
func NewSessionService(deps SessionServiceDeps, cfg SessionServiceConfig) (*SessionService, error) {
	switch {
	case deps.Users == nil:
		return nil, oops.Code("SESSION_SERVICE_INVALID_CONFIG").Errorf("user repository is required")
	case deps.Tokens == nil:
		return nil, oops.Code("SESSION_SERVICE_INVALID_CONFIG").Errorf("refresh token manager is required")
	case deps.Codec == nil:
		return nil, oops.Code("SESSION_SERVICE_INVALID_CONFIG").Errorf("token codec is required")
	case deps.Hasher == nil:
		return nil, oops.Code("SESSION_SERVICE_INVALID_CONFIG").Errorf("password hasher is required")
	case deps.Tx == nil:
		return nil, oops.Code("SESSION_SERVICE_INVALID_CONFIG").Errorf("transactor is required")
	}

	ttl := cfg.AccessTokenTTL
	if ttl == 0 {
		ttl = DefaultAccessTokenTTL
	}
	if ttl < time.Second {
		return nil, oops.Code("SESSION_SERVICE_INVALID_CONFIG").
			With("access_token_ttl", ttl).
			Errorf("access token ttl must be at least one second")
	}
	policy := DefaultPasswordPolicy()
	if cfg.Policy != nil {
		policy = *cfg.Policy
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// Unknown users are verified against a throwaway hash of the same cost so
	// response time does not reveal whether an email is registered.
	dummy, err := deps.Hasher.Hash(ulid.Make().String())
	if err != nil {
		return nil, oops.Code("SESSION_SERVICE_INIT_FAILED").With("operation", "hash dummy password").Wrap(err)
	}

	return &SessionService{
		users:     deps.Users,
		tokens:    deps.Tokens,
		codec:     deps.Codec,
		hasher:    deps.Hasher,
		tx:        deps.Tx,
		logger:    logger.With("component", "session_service"),
		policy:    policy,
		accessTTL: ttl,
		now:       now,
		dummyHash: dummy,
	}, nil
}

// begin opens a span for an operation. The returned func must be deferred with
// a pointer to the operation's named error result.
func (s *SessionService) begin(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(*error)) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "auth."+op, trace.WithAttributes(attrs...))
	return ctx, func(errp *error) {
		err := *errp
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, KindOf(err))
			if !IsExpected(err) {
				errutil.LogErrorContext(ctx, s.logger, op+" failed", err)
			}
		}
		span.End()
		recordOperation(op, start, err)
	}
}

// Register creates a new enabled account with the default role.
func (s *SessionService) Register(ctx context.Context, req RegisterRequest) (view *UserView, err error) {
	ctx, end := s.begin(ctx, "register")
	defer end(&err)

	if err := ValidateUsername(req.Username); err != nil {
		return nil, err
	}
	if err := ValidateEmail(req.Email); err != nil {
		return nil, err
	}

	exists, err := s.users.ExistsByEmail(ctx, req.Email)
	if err != nil {
		return nil, oops.Code("AUTH_REGISTER_FAILED").With("operation", "check email").Wrap(err)
	}
	if exists {
		return nil, oops.Code("AUTH_EMAIL_EXISTS").With("email", req.Email).Wrap(ErrEmailExists)
	}

	exists, err = s.users.ExistsByUsername(ctx, req.Username)
	if err != nil {
		return nil, oops.Code("AUTH_REGISTER_FAILED").With("operation", "check username").Wrap(err)
	}
	if exists {
		return nil, oops.Code("AUTH_USERNAME_EXISTS").With("username", req.Username).Wrap(ErrUsernameExists)
	}

	if err := s.policy.Validate(req.Password).Err(); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, oops.Code("AUTH_REGISTER_FAILED").With("operation", "hash password").Wrap(err)
	}

	user, err := NewUser(req.Username, req.Email, hash, req.FirstName, req.LastName, s.now())
	if err != nil {
		return nil, err
	}
	// uniqueness can still be lost to a concurrent registration; the store
	// reports that as ErrEmailExists or ErrUsernameExists
	if err := s.users.Create(ctx, user); err != nil {
		return nil, oops.Code("AUTH_REGISTER_FAILED").With("operation", "create user").Wrap(err)
	}

	s.logger.InfoContext(ctx, "user registered", "user_id", user.ID.String(), "username", user.Username)
	v := user.View()
	return &v, nil
}

// Authenticate exchanges an email and password for a new session.
//
// Unknown emails and wrong passwords both yield ErrInvalidCredentials. The
// enabled flag is checked only after the password matched, so
// ErrAccountDisabled never reveals an account to someone without its password.
func (s *SessionService) Authenticate(ctx context.Context, email, password string) (session *Session, err error) {
	ctx, end := s.begin(ctx, "authenticate")
	defer end(&err)

	user, lookupErr := s.users.GetByEmail(ctx, email)

	var targetHash string
	var userExists bool
	if lookupErr != nil {
		if !errors.Is(lookupErr, ErrNotFound) {
			return nil, oops.Code("AUTH_LOGIN_FAILED").
				With("operation", "get user by email").
				Wrap(lookupErr)
		}
		targetHash = s.dummyHash
	} else {
		targetHash = user.PasswordHash
		userExists = true
	}

	valid, verifyErr := s.hasher.Verify(password, targetHash)
	if verifyErr != nil {
		if !userExists {
			return nil, invalidCredentials()
		}
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "verify password").
			With("user_id", user.ID.String()).
			Wrap(verifyErr)
	}
	if !userExists || !valid {
		return nil, invalidCredentials()
	}

	if !user.Enabled {
		return nil, oops.Code("AUTH_ACCOUNT_DISABLED").
			With("user_id", user.ID.String()).
			Wrap(ErrAccountDisabled)
	}

	if s.hasher.NeedsUpgrade(user.PasswordHash) {
		s.upgradeHash(ctx, user, password)
	}

	session, err = s.issueSession(ctx, user, nil)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "user authenticated", "user_id", user.ID.String())
	return session, nil
}

// upgradeHash re-hashes with the current algorithm. Login succeeds regardless.
func (s *SessionService) upgradeHash(ctx context.Context, user *User, password string) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		errutil.LogWarnContext(ctx, s.logger, "password hash upgrade failed", err)
		return
	}
	user.PasswordHash = hash
	user.UpdatedAt = s.now()
	if err := s.users.Update(ctx, user); err != nil {
		errutil.LogWarnContext(ctx, s.logger, "password hash upgrade failed", err)
		return
	}
	s.logger.InfoContext(ctx, "password hash upgraded", "user_id", user.ID.String())
}

// Refresh redeems a refresh token for a new session. The presented token is
// consumed even if the rest of the operation fails. Roles are re-read so role
// changes apply from the next refresh.
//
// Besides ErrTokenNotFound, ErrTokenExpired and ErrTokenRevoked, Refresh
// returns ErrAccountDisabled when the owner was disabled after the token was
// issued. All of the owner's tokens are revoked in that case.
func (s *SessionService) Refresh(ctx context.Context, refreshToken string) (session *Session, err error) {
	ctx, end := s.begin(ctx, "refresh")
	defer end(&err)

	old, next, err := s.tokens.ValidateAndRotate(ctx, refreshToken)
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetByID(ctx, old.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.discardRefreshToken(ctx, next)
			return nil, oops.Code("TOKEN_NOT_FOUND").
				With("user_id", old.UserID.String()).
				Wrap(ErrTokenNotFound)
		}
		return nil, oops.Code("AUTH_REFRESH_FAILED").
			With("operation", "get user").
			With("user_id", old.UserID.String()).
			Wrap(err)
	}

	if !user.Enabled {
		n, rerr := s.tokens.RevokeAll(ctx, user.ID)
		if rerr != nil {
			return nil, oops.Code("AUTH_REFRESH_FAILED").
				With("operation", "revoke tokens of disabled user").
				With("user_id", user.ID.String()).
				Wrap(rerr)
		}
		recordRevoked(RevokeReasonDisabled, n)
		return nil, oops.Code("AUTH_ACCOUNT_DISABLED").
			With("user_id", user.ID.String()).
			Wrap(ErrAccountDisabled)
	}

	return s.issueSession(ctx, user, next)
}

// Logout revokes a refresh token. It always succeeds for the caller; storage
// failures are logged.
func (s *SessionService) Logout(ctx context.Context, refreshToken string) {
	var err error
	ctx, end := s.begin(ctx, "logout")
	defer end(&err)

	revoked, rerr := s.tokens.Revoke(ctx, refreshToken)
	if rerr != nil {
		errutil.LogWarnContext(ctx, s.logger, "logout revoke failed", rerr)
		return
	}
	if revoked {
		recordRevoked(RevokeReasonLogout, 1)
	}
}

// RevokeAllForUser revokes every refresh token of a user so no stale token can
// mint access tokens with old claims.
func (s *SessionService) RevokeAllForUser(ctx context.Context, userID ulid.ULID) (err error) {
	ctx, end := s.begin(ctx, "revoke_all", attribute.String("user.id", userID.String()))
	defer end(&err)

	if _, err := s.getUser(ctx, userID); err != nil {
		return err
	}
	n, err := s.tokens.RevokeAll(ctx, userID)
	if err != nil {
		return err
	}
	recordRevoked(RevokeReasonAdmin, n)
	s.logger.InfoContext(ctx, "refresh tokens revoked", "user_id", userID.String(), "count", n)
	return nil
}

// ValidateAccessToken verifies an access token and returns its claims.
// Access tokens are not checked against any revocation state.
func (s *SessionService) ValidateAccessToken(token string) (*Claims, error) {
	claims, err := s.codec.Decode(token)
	outcome := OutcomeSuccess
	if err != nil {
		outcome = KindOf(err)
	}
	OperationTotal.WithLabelValues("validate_access_token", outcome).Inc()
	return claims, err
}

// AccessTokenTTL returns the lifetime of issued access tokens.
func (s *SessionService) AccessTokenTTL() time.Duration {
	return s.accessTTL
}

// issueSession mints an access token and, unless refresh is given, a new
// refresh token for user. A given refresh token is revoked if no session can
// be built around it.
func (s *SessionService) issueSession(ctx context.Context, user *User, refresh *RefreshToken) (*Session, error) {
	access, err := s.codec.Encode(user.ID, user.Email, user.Roles, s.accessTTL)
	if err != nil {
		s.discardRefreshToken(ctx, refresh)
		return nil, oops.Code("AUTH_SESSION_FAILED").
			With("operation", "encode access token").
			With("user_id", user.ID.String()).
			Wrap(err)
	}

	if refresh == nil {
		refresh, err = s.tokens.Issue(ctx, user.ID)
		if err != nil {
			return nil, oops.Code("AUTH_SESSION_FAILED").
				With("operation", "issue refresh token").
				With("user_id", user.ID.String()).
				Wrap(err)
		}
	}

	return &Session{
		AccessToken:      access,
		RefreshToken:     refresh.Token,
		ExpiresInSeconds: int64(s.accessTTL / time.Second),
		User:             user.View(),
	}, nil
}

// discardRefreshToken revokes a rotated replacement that will never reach its
// owner.
func (s *SessionService) discardRefreshToken(ctx context.Context, token *RefreshToken) {
	if token == nil {
		return
	}
	if _, err := s.tokens.Revoke(ctx, token.Token); err != nil {
		errutil.LogWarnContext(ctx, s.logger, "revoke orphaned refresh token failed", err)
	}
}

func invalidCredentials() error {
	return oops.Code("AUTH_INVALID_CREDENTIALS").Wrap(ErrInvalidCredentials)
}
