// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package postgres

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"

	"github.com/holomush/authcore/internal/auth"
)

// Unique constraint names created by the users migration.
const (
	constraintUserEmail    = "users_email_key"
	constraintUserUsername = "users_username_key"
	constraintTokenHash    = "refresh_tokens_token_hash_key"
)

// storageError wraps err with b. Connectivity failures additionally wrap
// auth.ErrStorageUnavailable.
func storageError(b oops.OopsErrorBuilder, err error) error {
	if isUnavailable(err) {
		return b.Wrap(fmt.Errorf("%w: %w", auth.ErrStorageUnavailable, err))
	}
	return b.Wrap(err)
}

// isUnavailable reports whether err means the database could not be reached
// or did not answer in time.
func isUnavailable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) {
		return true
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgerrcode.IsConnectionException(pgErr.Code) ||
			pgerrcode.IsInsufficientResources(pgErr.Code) ||
			pgerrcode.IsOperatorIntervention(pgErr.Code)
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// uniqueViolation returns the violated constraint name when err is a unique
// violation.
func uniqueViolation(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return pgErr.ConstraintName, true
	}
	return "", false
}

// userConflict maps a unique violation on users to the matching error kind.
func userConflict(err error, user *auth.User) error {
	constraint, ok := uniqueViolation(err)
	if !ok {
		return nil
	}
	switch constraint {
	case constraintUserEmail:
		return oops.Code("USER_EMAIL_EXISTS").With("email", user.Email).Wrap(auth.ErrEmailExists)
	case constraintUserUsername:
		return oops.Code("USER_USERNAME_EXISTS").With("username", user.Username).Wrap(auth.ErrUsernameExists)
	}
	return nil
}
