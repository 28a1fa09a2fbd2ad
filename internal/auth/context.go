// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"

	"github.com/holomush/authcore/internal/logging"
)

type claimsKey struct{}

// WithClaims returns a context carrying the verified principal of a request.
// Log records written with the returned context include the user id.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	ctx = context.WithValue(ctx, claimsKey{}, claims)
	if claims != nil {
		ctx = logging.WithPrincipal(ctx, claims.UserID.String())
	}
	return ctx
}

// ClaimsFromContext returns the principal stored by WithClaims.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsKey{}).(*Claims)
	return claims, ok && claims != nil
}
