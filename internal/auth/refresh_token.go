// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// RefreshToken is a stored refresh-token record.
//
// Token holds the bearer secret and is only populated on the value returned
// by Issue or ValidateAndRotate; repositories persist and look up TokenHash.
type RefreshToken struct {
	ID        ulid.ULID
	UserID    ulid.ULID
	Token     string
	TokenHash string
	ExpiresAt time.Time
	Revoked   bool
	CreatedAt time.Time
}

// IsValidAt reports whether the token can be redeemed at t.
func (t *RefreshToken) IsValidAt(now time.Time) bool {
	return !t.Revoked && now.Before(t.ExpiresAt)
}

// IsExpiredAt reports whether the token is expired at t. A token expires at
// exactly its ExpiresAt instant.
func (t *RefreshToken) IsExpiredAt(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// GenerateRefreshToken creates a random UUIDv4 bearer secret and its hash.
// Returns (plaintext_token, sha256_hash, error).
func GenerateRefreshToken() (token, hash string, err error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", "", oops.Code("TOKEN_GENERATE_FAILED").
			With("operation", "uuid.NewRandom").
			Wrap(err)
	}
	token = id.String()
	return token, HashRefreshToken(token), nil
}

// HashRefreshToken computes the SHA256 hash of a refresh token.
// This is what is stored and indexed in the database.
func HashRefreshToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// RefreshTokenRepository manages refresh token persistence.
type RefreshTokenRepository interface {
	// Create stores a new token. Returns ErrTokenCollision if the token hash
	// is already taken.
	Create(ctx context.Context, token *RefreshToken) error

	// GetByTokenHash retrieves a token by the hash of its bearer secret.
	// Returns ErrNotFound if absent.
	GetByTokenHash(ctx context.Context, tokenHash string) (*RefreshToken, error)

	// ListByUser returns every token for a user, revoked or not.
	ListByUser(ctx context.Context, userID ulid.ULID) ([]*RefreshToken, error)

	// ListValidByUser returns the user's tokens that are unrevoked and not
	// expired at now.
	ListValidByUser(ctx context.Context, userID ulid.ULID, now time.Time) ([]*RefreshToken, error)

	// Revoke flips revoked from false to true. Reports whether this call
	// performed the flip; false means it was already revoked or absent.
	Revoke(ctx context.Context, id ulid.ULID) (bool, error)

	// RevokeAllByUser revokes every unrevoked token for a user in one
	// set-based update and returns the number of tokens revoked.
	RevokeAllByUser(ctx context.Context, userID ulid.ULID) (int64, error)

	// DeleteByUser removes every token for a user and returns the count.
	DeleteByUser(ctx context.Context, userID ulid.ULID) (int64, error)
}
