// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/authcore/internal/auth"
)

const refreshTokenColumns = `id, user_id, token_hash, expires_at, revoked, created_at`

// RefreshTokenRepository implements auth.RefreshTokenRepository using PostgreSQL.
// Only the token hash is persisted.
type RefreshTokenRepository struct {
	db DB
}

var _ auth.RefreshTokenRepository = (*RefreshTokenRepository)(nil)

// NewRefreshTokenRepository creates a new RefreshTokenRepository.
func NewRefreshTokenRepository(db DB) *RefreshTokenRepository {
	return &RefreshTokenRepository{db: db}
}

// Create stores a new token.
func (r *RefreshTokenRepository) Create(ctx context.Context, token *auth.RefreshToken) error {
	result, err := conn(ctx, r.db).Exec(ctx, `
		INSERT INTO refresh_tokens (`+refreshTokenColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (token_hash) DO NOTHING
	`,
		token.ID.String(),
		token.UserID.String(),
		token.TokenHash,
		token.ExpiresAt,
		token.Revoked,
		token.CreatedAt,
	)
	if err != nil {
		if constraint, ok := uniqueViolation(err); ok && constraint == constraintTokenHash {
			return oops.Code("REFRESH_TOKEN_COLLISION").Wrap(auth.ErrTokenCollision)
		}
		return storageError(oops.Code("REFRESH_TOKEN_CREATE_FAILED").
			With("operation", "insert refresh_token").
			With("user_id", token.UserID.String()), err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("REFRESH_TOKEN_COLLISION").Wrap(auth.ErrTokenCollision)
	}
	return nil
}

// GetByTokenHash retrieves a token by its hash.
func (r *RefreshTokenRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*auth.RefreshToken, error) {
	row := conn(ctx, r.db).QueryRow(ctx,
		`SELECT `+refreshTokenColumns+` FROM refresh_tokens WHERE token_hash = $1`, tokenHash)

	token, err := scanRefreshToken(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("REFRESH_TOKEN_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return token, nil
}

// ListByUser returns every token of the user ordered by creation time.
func (r *RefreshTokenRepository) ListByUser(ctx context.Context, userID ulid.ULID) ([]*auth.RefreshToken, error) {
	return r.list(ctx, `
		SELECT `+refreshTokenColumns+` FROM refresh_tokens
		WHERE user_id = $1
		ORDER BY created_at, id
	`, userID.String())
}

// ListValidByUser returns the user's unrevoked tokens that expire after now.
func (r *RefreshTokenRepository) ListValidByUser(ctx context.Context, userID ulid.ULID, now time.Time) ([]*auth.RefreshToken, error) {
	return r.list(ctx, `
		SELECT `+refreshTokenColumns+` FROM refresh_tokens
		WHERE user_id = $1 AND revoked = false AND expires_at > $2
		ORDER BY created_at, id
	`, userID.String(), now)
}

func (r *RefreshTokenRepository) list(ctx context.Context, query string, args ...any) ([]*auth.RefreshToken, error) {
	rows, err := conn(ctx, r.db).Query(ctx, query, args...)
	if err != nil {
		return nil, storageError(oops.Code("REFRESH_TOKEN_LIST_FAILED").
			With("operation", "list refresh_tokens"), err)
	}
	defer rows.Close()

	var tokens []*auth.RefreshToken
	for rows.Next() {
		token, err := scanRefreshToken(rows)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, token)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError(oops.Code("REFRESH_TOKEN_LIST_FAILED").
			With("operation", "iterate refresh_tokens"), err)
	}
	return tokens, nil
}

// Revoke flips the token's revoked flag if it is not already set.
func (r *RefreshTokenRepository) Revoke(ctx context.Context, id ulid.ULID) (bool, error) {
	result, err := conn(ctx, r.db).Exec(ctx,
		`UPDATE refresh_tokens SET revoked = true WHERE id = $1 AND revoked = false`, id.String())
	if err != nil {
		return false, storageError(oops.Code("REFRESH_TOKEN_REVOKE_FAILED").
			With("operation", "revoke refresh_token").
			With("token_id", id.String()), err)
	}
	return result.RowsAffected() == 1, nil
}

// RevokeAllByUser revokes every unrevoked token of the user.
func (r *RefreshTokenRepository) RevokeAllByUser(ctx context.Context, userID ulid.ULID) (int64, error) {
	result, err := conn(ctx, r.db).Exec(ctx,
		`UPDATE refresh_tokens SET revoked = true WHERE user_id = $1 AND revoked = false`, userID.String())
	if err != nil {
		return 0, storageError(oops.Code("REFRESH_TOKEN_REVOKE_ALL_FAILED").
			With("operation", "revoke user refresh_tokens").
			With("user_id", userID.String()), err)
	}
	return result.RowsAffected(), nil
}

// DeleteByUser removes every token of the user.
func (r *RefreshTokenRepository) DeleteByUser(ctx context.Context, userID ulid.ULID) (int64, error) {
	result, err := conn(ctx, r.db).Exec(ctx, `DELETE FROM refresh_tokens WHERE user_id = $1`, userID.String())
	if err != nil {
		return 0, storageError(oops.Code("REFRESH_TOKEN_DELETE_FAILED").
			With("operation", "delete user refresh_tokens").
			With("user_id", userID.String()), err)
	}
	return result.RowsAffected(), nil
}

func scanRefreshToken(row rowScanner) (*auth.RefreshToken, error) {
	var (
		token     auth.RefreshToken
		idStr     string
		userIDStr string
		expiresAt time.Time
		createdAt time.Time
	)
	err := row.Scan(&idStr, &userIDStr, &token.TokenHash, &expiresAt, &token.Revoked, &createdAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, storageError(oops.Code("REFRESH_TOKEN_SCAN_FAILED").
			With("operation", "scan refresh_token row"), err)
	}

	if token.ID, err = ulid.Parse(idStr); err != nil {
		return nil, oops.Code("REFRESH_TOKEN_INVALID_ID").With("id", idStr).Wrap(err)
	}
	if token.UserID, err = ulid.Parse(userIDStr); err != nil {
		return nil, oops.Code("REFRESH_TOKEN_INVALID_USER_ID").With("user_id", userIDStr).Wrap(err)
	}
	token.ExpiresAt = expiresAt.UTC()
	token.CreatedAt = createdAt.UTC()
	return &token, nil
}
