// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel/attribute"
)

// GetUser returns a user by id.
func (s *SessionService) GetUser(ctx context.Context, id ulid.ULID) (*UserView, error) {
	user, err := s.getUser(ctx, id)
	if err != nil {
		return nil, err
	}
	v := user.View()
	return &v, nil
}

// FindUser resolves ref as a user id, then an email address, then a username.
func (s *SessionService) FindUser(ctx context.Context, ref string) (*UserView, error) {
	ref = strings.TrimSpace(ref)
	if id, err := ulid.ParseStrict(ref); err == nil {
		return s.GetUser(ctx, id)
	}

	lookup, key := s.users.GetByUsername, "username"
	if strings.Contains(ref, "@") {
		lookup, key = s.users.GetByEmail, "email"
	}
	user, err := lookup(ctx, ref)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code("USER_NOT_FOUND").With(key, ref).Wrap(ErrUserNotFound)
		}
		return nil, oops.Code("USER_GET_FAILED").With(key, ref).Wrap(err)
	}
	v := user.View()
	return &v, nil
}

// ListUsers returns every user ordered by creation time.
func (s *SessionService) ListUsers(ctx context.Context) ([]UserView, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, oops.Code("USER_LIST_FAILED").Wrap(err)
	}
	views := make([]UserView, 0, len(users))
	for _, u := range users {
		views = append(views, u.View())
	}
	return views, nil
}

// ListActiveSessions returns the refresh tokens a user can still redeem.
// Token secrets are never included.
func (s *SessionService) ListActiveSessions(ctx context.Context, userID ulid.ULID) ([]*RefreshToken, error) {
	if _, err := s.getUser(ctx, userID); err != nil {
		return nil, err
	}
	return s.tokens.ActiveForUser(ctx, userID)
}

// UpdateProfile replaces the user's display name fields.
func (s *SessionService) UpdateProfile(ctx context.Context, id ulid.ULID, firstName, lastName string) (view *UserView, err error) {
	ctx, end := s.begin(ctx, "update_profile", attribute.String("user.id", id.String()))
	defer end(&err)

	if err := validateName("first_name", firstName); err != nil {
		return nil, err
	}
	if err := validateName("last_name", lastName); err != nil {
		return nil, err
	}

	user, err := s.getUser(ctx, id)
	if err != nil {
		return nil, err
	}
	user.FirstName = firstName
	user.LastName = lastName
	user.UpdatedAt = s.now()
	if err := s.users.Update(ctx, user); err != nil {
		return nil, oops.Code("USER_UPDATE_FAILED").With("user_id", id.String()).Wrap(err)
	}
	v := user.View()
	return &v, nil
}

// ChangePassword replaces the user's password after verifying the current
// one. All refresh tokens of the user are revoked.
func (s *SessionService) ChangePassword(ctx context.Context, id ulid.ULID, current, next string) (err error) {
	ctx, end := s.begin(ctx, "change_password", attribute.String("user.id", id.String()))
	defer end(&err)

	user, err := s.getUser(ctx, id)
	if err != nil {
		return err
	}

	valid, err := s.hasher.Verify(current, user.PasswordHash)
	if err != nil {
		return oops.Code("USER_PASSWORD_CHANGE_FAILED").
			With("operation", "verify password").
			With("user_id", id.String()).
			Wrap(err)
	}
	if !valid {
		return invalidCredentials()
	}

	if err := s.policy.Validate(next).Err(); err != nil {
		return err
	}

	hash, err := s.hasher.Hash(next)
	if err != nil {
		return oops.Code("USER_PASSWORD_CHANGE_FAILED").With("operation", "hash password").Wrap(err)
	}

	return s.mutateAndRevoke(ctx, id, RevokeReasonPasswordChange, func(u *User) {
		u.PasswordHash = hash
	})
}

// SetEnabled enables or disables a user. Disabling revokes all refresh tokens.
// Outstanding access tokens stay valid until they expire.
func (s *SessionService) SetEnabled(ctx context.Context, id ulid.ULID, enabled bool) (err error) {
	ctx, end := s.begin(ctx, "set_enabled",
		attribute.String("user.id", id.String()),
		attribute.Bool("user.enabled", enabled))
	defer end(&err)

	if enabled {
		user, err := s.getUser(ctx, id)
		if err != nil {
			return err
		}
		if user.Enabled {
			return nil
		}
		user.Enabled = true
		user.UpdatedAt = s.now()
		if err := s.users.Update(ctx, user); err != nil {
			return oops.Code("USER_UPDATE_FAILED").With("user_id", id.String()).Wrap(err)
		}
		return nil
	}

	return s.mutateAndRevoke(ctx, id, RevokeReasonDisabled, func(u *User) {
		u.Enabled = false
	})
}

// UpdateRoles replaces the user's role set and revokes all refresh tokens so
// the new roles take effect on the next login.
func (s *SessionService) UpdateRoles(ctx context.Context, id ulid.ULID, roles []string) (err error) {
	ctx, end := s.begin(ctx, "update_roles", attribute.String("user.id", id.String()))
	defer end(&err)

	normalized, err := NormalizeRoles(roles)
	if err != nil {
		return err
	}
	return s.mutateAndRevoke(ctx, id, RevokeReasonRoleChange, func(u *User) {
		u.Roles = normalized
	})
}

// DeleteUser revokes a user's refresh tokens and removes the user.
func (s *SessionService) DeleteUser(ctx context.Context, id ulid.ULID) (err error) {
	ctx, end := s.begin(ctx, "delete_user", attribute.String("user.id", id.String()))
	defer end(&err)

	var revoked int64
	err = s.tx.InTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.getUser(ctx, id); err != nil {
			return err
		}
		n, err := s.tokens.RevokeAll(ctx, id)
		if err != nil {
			return err
		}
		revoked = n
		if err := s.users.Delete(ctx, id); err != nil {
			if errors.Is(err, ErrNotFound) {
				return userNotFound(id)
			}
			return oops.Code("USER_DELETE_FAILED").With("user_id", id.String()).Wrap(err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	recordRevoked(RevokeReasonDeleted, revoked)
	s.logger.InfoContext(ctx, "user deleted", "user_id", id.String(), "revoked_tokens", revoked)
	return nil
}

// mutateAndRevoke applies fn to the user, persists it and revokes the user's
// refresh tokens in one transaction.
func (s *SessionService) mutateAndRevoke(ctx context.Context, id ulid.ULID, reason string, fn func(*User)) error {
	var revoked int64
	err := s.tx.InTransaction(ctx, func(ctx context.Context) error {
		user, err := s.getUser(ctx, id)
		if err != nil {
			return err
		}
		fn(user)
		user.UpdatedAt = s.now()
		if err := s.users.Update(ctx, user); err != nil {
			return oops.Code("USER_UPDATE_FAILED").With("user_id", id.String()).Wrap(err)
		}
		n, err := s.tokens.RevokeAll(ctx, id)
		if err != nil {
			return err
		}
		revoked = n
		return nil
	})
	if err != nil {
		return err
	}
	recordRevoked(reason, revoked)
	s.logger.InfoContext(ctx, "refresh tokens revoked",
		"user_id", id.String(),
		"reason", reason,
		"count", revoked)
	return nil
}

func (s *SessionService) getUser(ctx context.Context, id ulid.ULID) (*User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, userNotFound(id)
		}
		return nil, oops.Code("USER_GET_FAILED").With("user_id", id.String()).Wrap(err)
	}
	return user, nil
}

func userNotFound(id ulid.ULID) error {
	return oops.Code("USER_NOT_FOUND").With("user_id", id.String()).Wrap(ErrUserNotFound)
}
