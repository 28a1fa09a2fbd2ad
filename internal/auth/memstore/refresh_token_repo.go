// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package memstore

import (
	"context"
	"slices"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/authcore/internal/auth"
)

// RefreshTokenRepository implements auth.RefreshTokenRepository on a Store.
type RefreshTokenRepository struct {
	s *Store
}

var _ auth.RefreshTokenRepository = (*RefreshTokenRepository)(nil)

// Create stores a new token. The plaintext secret is not retained.
func (r *RefreshTokenRepository) Create(ctx context.Context, token *auth.RefreshToken) error {
	defer r.s.lock(ctx)()

	if _, ok := r.s.byHash[token.TokenHash]; ok {
		return oops.Code("REFRESH_TOKEN_COLLISION").Wrap(auth.ErrTokenCollision)
	}
	if _, ok := r.s.users[token.UserID]; !ok {
		return oops.Code("REFRESH_TOKEN_CREATE_FAILED").
			With("user_id", token.UserID.String()).
			Errorf("user does not exist")
	}

	stored := cloneToken(token)
	stored.Token = ""
	r.s.tokens[token.ID] = stored
	r.s.byHash[token.TokenHash] = token.ID
	return nil
}

// GetByTokenHash retrieves a token by its hash.
func (r *RefreshTokenRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*auth.RefreshToken, error) {
	defer r.s.lock(ctx)()

	id, ok := r.s.byHash[tokenHash]
	if !ok {
		return nil, oops.Code("REFRESH_TOKEN_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	return cloneToken(r.s.tokens[id]), nil
}

// ListByUser returns every token of the user ordered by creation time.
func (r *RefreshTokenRepository) ListByUser(ctx context.Context, userID ulid.ULID) ([]*auth.RefreshToken, error) {
	defer r.s.lock(ctx)()
	return r.collect(func(t *auth.RefreshToken) bool { return t.UserID == userID }), nil
}

// ListValidByUser returns the user's tokens valid at now.
func (r *RefreshTokenRepository) ListValidByUser(ctx context.Context, userID ulid.ULID, now time.Time) ([]*auth.RefreshToken, error) {
	defer r.s.lock(ctx)()
	return r.collect(func(t *auth.RefreshToken) bool {
		return t.UserID == userID && t.IsValidAt(now)
	}), nil
}

// Revoke flips the token's revoked flag if it is not already set.
func (r *RefreshTokenRepository) Revoke(ctx context.Context, id ulid.ULID) (bool, error) {
	defer r.s.lock(ctx)()

	t, ok := r.s.tokens[id]
	if !ok || t.Revoked {
		return false, nil
	}
	t.Revoked = true
	return true, nil
}

// RevokeAllByUser revokes every unrevoked token of the user.
func (r *RefreshTokenRepository) RevokeAllByUser(ctx context.Context, userID ulid.ULID) (int64, error) {
	defer r.s.lock(ctx)()

	var n int64
	for _, t := range r.s.tokens {
		if t.UserID == userID && !t.Revoked {
			t.Revoked = true
			n++
		}
	}
	return n, nil
}

// DeleteByUser removes every token of the user.
func (r *RefreshTokenRepository) DeleteByUser(ctx context.Context, userID ulid.ULID) (int64, error) {
	defer r.s.lock(ctx)()

	var n int64
	for id, t := range r.s.tokens {
		if t.UserID == userID {
			delete(r.s.byHash, t.TokenHash)
			delete(r.s.tokens, id)
			n++
		}
	}
	return n, nil
}

func (r *RefreshTokenRepository) collect(match func(*auth.RefreshToken) bool) []*auth.RefreshToken {
	out := make([]*auth.RefreshToken, 0)
	for _, t := range r.s.tokens {
		if match(t) {
			out = append(out, cloneToken(t))
		}
	}
	slices.SortFunc(out, func(a, b *auth.RefreshToken) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return a.ID.Compare(b.ID)
	})
	return out
}
