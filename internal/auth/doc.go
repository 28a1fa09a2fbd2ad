// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package auth provides the authentication and session core of authcore.
//
// # Domain Types
//
// Users should be created with NewUser, which validates the username, email
// and name fields and applies the default role. Refresh tokens are created
// only by RefreshTokenManager.Issue.
//
// A refresh token is valid iff it is unrevoked and now is before its expiry.
// Revocation is permanent; the revoked flag is the only field changed after
// creation.
//
// # Services
//
//   - TokenCodec - signs and verifies HS256 access tokens
//   - RefreshTokenManager - issue, single-use rotation, revocation
//   - SessionService - register, authenticate, refresh, logout, account admin
//
// # Errors
//
// Errors returned by SessionService wrap one of the Err* kinds declared in
// errors.go and carry an oops code. Use errors.Is or KindOf to classify them.
// Storage connectivity failures surface as ErrStorageUnavailable.
//
// Access tokens are self-contained and never consulted against storage:
// disabling a user or changing roles stops future refreshes but does not
// invalidate an access token that has already been issued.
package auth
