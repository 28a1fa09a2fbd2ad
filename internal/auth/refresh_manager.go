// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// Refresh token defaults.
const (
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour
	// MaxTokenCollisionRetries bounds regeneration after a token hash collision.
	MaxTokenCollisionRetries = 3
)

// RefreshTokenManagerConfig configures a RefreshTokenManager.
type RefreshTokenManagerConfig struct {
	TTL time.Duration
	// Now overrides the clock; defaults to time.Now.
	Now func() time.Time
}

// RefreshTokenManager owns the refresh token lifecycle: issue, single-use
// rotation and revocation.
type RefreshTokenManager struct {
	tokens RefreshTokenRepository
	tx     Transactor
	ttl    time.Duration
	now    func() time.Time
}

// NewRefreshTokenManager creates a RefreshTokenManager.
func NewRefreshTokenManager(tokens RefreshTokenRepository, tx Transactor, cfg RefreshTokenManagerConfig) (*RefreshTokenManager, error) {
	if tokens == nil {
		return nil, oops.Code("REFRESH_MANAGER_INVALID_CONFIG").Errorf("refresh token repository is required")
	}
	if tx == nil {
		return nil, oops.Code("REFRESH_MANAGER_INVALID_CONFIG").Errorf("transactor is required")
	}
	ttl := cfg.TTL
	if ttl == 0 {
		ttl = DefaultRefreshTokenTTL
	}
	if ttl < 0 {
		return nil, oops.Code("REFRESH_MANAGER_INVALID_CONFIG").With("ttl", ttl).Errorf("ttl must be positive")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &RefreshTokenManager{tokens: tokens, tx: tx, ttl: ttl, now: now}, nil
}

// TTL returns the lifetime of newly issued tokens.
func (m *RefreshTokenManager) TTL() time.Duration {
	return m.ttl
}

// Issue creates and persists a new refresh token for the user. The returned
// record carries the plaintext bearer secret in Token.
func (m *RefreshTokenManager) Issue(ctx context.Context, userID ulid.ULID) (*RefreshToken, error) {
	var issued *RefreshToken
	backoff := retry.WithMaxRetries(MaxTokenCollisionRetries, retry.NewConstant(time.Millisecond))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		token, hash, err := GenerateRefreshToken()
		if err != nil {
			return err
		}
		now := m.now()
		record := &RefreshToken{
			ID:        ulid.Make(),
			UserID:    userID,
			Token:     token,
			TokenHash: hash,
			ExpiresAt: now.Add(m.ttl),
			CreatedAt: now,
		}
		if err := m.tokens.Create(ctx, record); err != nil {
			if errors.Is(err, ErrTokenCollision) {
				tokenCollisions.Inc()
				return retry.RetryableError(err)
			}
			return err
		}
		issued = record
		return nil
	})
	if err != nil {
		return nil, oops.Code("REFRESH_TOKEN_ISSUE_FAILED").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return issued, nil
}

// ValidateAndRotate redeems a refresh token. Lookup, checks, revocation of the
// presented token and issue of its replacement run in one transaction, and the
// revocation is conditional so concurrent redemptions of the same token cannot
// both succeed. Returns the redeemed record and its replacement.
func (m *RefreshTokenManager) ValidateAndRotate(ctx context.Context, token string) (old, replacement *RefreshToken, err error) {
	if token == "" {
		return nil, nil, oops.Code("TOKEN_NOT_FOUND").Wrap(ErrTokenNotFound)
	}
	hash := HashRefreshToken(token)

	err = m.tx.InTransaction(ctx, func(ctx context.Context) error {
		found, err := m.tokens.GetByTokenHash(ctx, hash)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return oops.Code("TOKEN_NOT_FOUND").Wrap(ErrTokenNotFound)
			}
			return oops.Code("REFRESH_TOKEN_LOOKUP_FAILED").Wrap(err)
		}
		if found.IsExpiredAt(m.now()) {
			return oops.Code("TOKEN_EXPIRED").
				With("token_id", found.ID.String()).
				With("expires_at", found.ExpiresAt).
				Wrap(ErrTokenExpired)
		}
		if found.Revoked {
			return oops.Code("TOKEN_REVOKED").With("token_id", found.ID.String()).Wrap(ErrTokenRevoked)
		}

		flipped, err := m.tokens.Revoke(ctx, found.ID)
		if err != nil {
			return oops.Code("REFRESH_TOKEN_REVOKE_FAILED").With("token_id", found.ID.String()).Wrap(err)
		}
		if !flipped {
			// another redemption won the race
			return oops.Code("TOKEN_REVOKED").With("token_id", found.ID.String()).Wrap(ErrTokenRevoked)
		}
		found.Revoked = true
		found.Token = token

		next, err := m.Issue(ctx, found.UserID)
		if err != nil {
			return err
		}
		old, replacement = found, next
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return old, replacement, nil
}

// Revoke revokes a refresh token and reports whether this call revoked it.
// Unknown or already revoked tokens are a no-op.
func (m *RefreshTokenManager) Revoke(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	found, err := m.tokens.GetByTokenHash(ctx, HashRefreshToken(token))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, oops.Code("REFRESH_TOKEN_LOOKUP_FAILED").Wrap(err)
	}
	if found.Revoked {
		return false, nil
	}
	flipped, err := m.tokens.Revoke(ctx, found.ID)
	if err != nil {
		return false, oops.Code("REFRESH_TOKEN_REVOKE_FAILED").With("token_id", found.ID.String()).Wrap(err)
	}
	return flipped, nil
}

// RevokeAll revokes every outstanding token for the user and returns how many
// were revoked.
func (m *RefreshTokenManager) RevokeAll(ctx context.Context, userID ulid.ULID) (int64, error) {
	n, err := m.tokens.RevokeAllByUser(ctx, userID)
	if err != nil {
		return 0, oops.Code("REFRESH_TOKEN_REVOKE_ALL_FAILED").With("user_id", userID.String()).Wrap(err)
	}
	return n, nil
}

// ActiveForUser returns the user's currently redeemable tokens.
func (m *RefreshTokenManager) ActiveForUser(ctx context.Context, userID ulid.ULID) ([]*RefreshToken, error) {
	tokens, err := m.tokens.ListValidByUser(ctx, userID, m.now())
	if err != nil {
		return nil, oops.Code("REFRESH_TOKEN_LIST_FAILED").With("user_id", userID.String()).Wrap(err)
	}
	return tokens, nil
}
