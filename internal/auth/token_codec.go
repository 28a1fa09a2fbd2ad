// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// MinSigningSecretLength is the minimum HS256 key size in bytes.
const MinSigningSecretLength = 32

// Claims is the verified payload of an access token.
type Claims struct {
	UserID    ulid.ULID
	Email     string
	Roles     []string
	Issuer    string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// HasRole reports whether the claims carry role.
func (c *Claims) HasRole(role string) bool {
	return slices.Contains(c.Roles, role)
}

// accessClaims is the wire form of Claims.
type accessClaims struct {
	Email string `json:"email"`
	Roles string `json:"roles"`
	jwt.RegisteredClaims
}

// TokenCodecConfig configures a TokenCodec.
type TokenCodecConfig struct {
	Secret []byte
	Issuer string
	// Now overrides the clock; defaults to time.Now.
	Now func() time.Time
}

// AccessTokenCodec encodes and decodes access tokens.
type AccessTokenCodec interface {
	Encode(userID ulid.ULID, email string, roles []string, ttl time.Duration) (string, error)
	Decode(token string) (*Claims, error)
}

// TokenCodec signs and verifies HS256 access tokens.
type TokenCodec struct {
	secret []byte
	issuer string
	now    func() time.Time
	parser *jwt.Parser
}

// NewTokenCodec creates a TokenCodec. The secret must be at least
// MinSigningSecretLength bytes and the issuer non-empty.
func NewTokenCodec(cfg TokenCodecConfig) (*TokenCodec, error) {
	if len(cfg.Secret) < MinSigningSecretLength {
		return nil, oops.Code("TOKEN_CODEC_INVALID_SECRET").
			With("min_length", MinSigningSecretLength).
			With("length", len(cfg.Secret)).
			Errorf("signing secret must be at least %d bytes", MinSigningSecretLength)
	}
	if strings.TrimSpace(cfg.Issuer) == "" {
		return nil, oops.Code("TOKEN_CODEC_INVALID_ISSUER").Errorf("issuer cannot be empty")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &TokenCodec{
		secret: slices.Clone(cfg.Secret),
		issuer: cfg.Issuer,
		now:    now,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(cfg.Issuer),
			jwt.WithExpirationRequired(),
			jwt.WithTimeFunc(now),
		),
	}, nil
}

// Issuer returns the issuer stamped into every token.
func (c *TokenCodec) Issuer() string {
	return c.issuer
}

// Encode signs an access token for the user valid for ttl.
func (c *TokenCodec) Encode(userID ulid.ULID, email string, roles []string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", oops.Code("TOKEN_ENCODE_FAILED").With("ttl", ttl).Errorf("ttl must be positive")
	}
	now := c.now()
	claims := accessClaims{
		Email: email,
		Roles: joinRoles(roles),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", oops.Code("TOKEN_ENCODE_FAILED").With("user_id", userID.String()).Wrap(err)
	}
	return signed, nil
}

// Decode verifies the signature, algorithm, issuer and expiry of an access
// token and returns its claims. Expired tokens yield ErrTokenExpired; every
// other failure yields ErrTokenInvalid.
func (c *TokenCodec) Decode(token string) (*Claims, error) {
	var wire accessClaims
	_, err := c.parser.ParseWithClaims(token, &wire, func(*jwt.Token) (any, error) {
		return c.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, oops.Code("TOKEN_EXPIRED").Wrap(ErrTokenExpired)
		}
		return nil, oops.Code("TOKEN_INVALID").With("reason", err.Error()).Wrap(ErrTokenInvalid)
	}

	userID, err := ulid.Parse(wire.Subject)
	if err != nil {
		return nil, oops.Code("TOKEN_INVALID").With("reason", "malformed subject").Wrap(ErrTokenInvalid)
	}

	claims := &Claims{
		UserID: userID,
		Email:  wire.Email,
		Roles:  splitRoles(wire.Roles),
		Issuer: wire.Issuer,
	}
	if wire.IssuedAt != nil {
		claims.IssuedAt = wire.IssuedAt.Time
	}
	if wire.ExpiresAt != nil {
		claims.ExpiresAt = wire.ExpiresAt.Time
	}
	return claims, nil
}

func joinRoles(roles []string) string {
	sorted := slices.Clone(roles)
	slices.Sort(sorted)
	return strings.Join(slices.Compact(sorted), ",")
}

func splitRoles(s string) []string {
	if s == "" {
		return []string{}
	}
	return strings.Split(s, ",")
}
