// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import "errors"

// ErrNotFound is returned by repositories when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrTokenCollision is returned by a RefreshTokenRepository when the token hash
// of a new record is already taken. The refresh manager regenerates and retries.
var ErrTokenCollision = errors.New("refresh token collision")

// Error kinds surfaced to callers of the session core. Every error returned by
// SessionService wraps at most one of these; match them with errors.Is.
var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountDisabled    = errors.New("account is disabled")
	ErrEmailExists        = errors.New("email is already registered")
	ErrUsernameExists     = errors.New("username is already taken")
	ErrWeakPassword       = errors.New("password does not meet strength requirements")
	ErrTokenNotFound      = errors.New("refresh token not found")
	ErrTokenExpired       = errors.New("token has expired")
	ErrTokenRevoked       = errors.New("refresh token has been revoked")
	ErrTokenInvalid       = errors.New("token is invalid")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidInput       = errors.New("invalid input")
)

var errorKinds = []struct {
	err  error
	name string
}{
	{ErrInvalidCredentials, "InvalidCredentials"},
	{ErrAccountDisabled, "AccountDisabled"},
	{ErrEmailExists, "EmailExists"},
	{ErrUsernameExists, "UsernameExists"},
	{ErrWeakPassword, "WeakPassword"},
	{ErrTokenNotFound, "TokenNotFound"},
	{ErrTokenExpired, "TokenExpired"},
	{ErrTokenRevoked, "TokenRevoked"},
	{ErrTokenInvalid, "TokenInvalid"},
	{ErrStorageUnavailable, "StorageUnavailable"},
	{ErrUserNotFound, "UserNotFound"},
	{ErrInvalidInput, "InvalidInput"},
}

// KindOf returns the name of the error kind wrapped by err, or an empty string
// when err is nil or carries no known kind.
func KindOf(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return ""
}

// IsExpected reports whether err is one of the typed outcomes a caller should
// map to a client error rather than a server failure.
func IsExpected(err error) bool {
	kind := KindOf(err)
	return kind != "" && kind != "StorageUnavailable"
}
