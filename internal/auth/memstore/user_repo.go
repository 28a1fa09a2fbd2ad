// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package memstore

import (
	"context"
	"slices"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/authcore/internal/auth"
)

// UserRepository implements auth.UserRepository on a Store.
type UserRepository struct {
	s *Store
}

var _ auth.UserRepository = (*UserRepository)(nil)

// Create stores a new user.
func (r *UserRepository) Create(ctx context.Context, user *auth.User) error {
	defer r.s.lock(ctx)()

	if _, ok := r.s.users[user.ID]; ok {
		return oops.Code("USER_CREATE_FAILED").With("user_id", user.ID.String()).Errorf("user id already exists")
	}
	if err := r.checkUnique(user); err != nil {
		return err
	}
	r.s.users[user.ID] = cloneUser(user)
	return nil
}

// Update replaces an existing user.
func (r *UserRepository) Update(ctx context.Context, user *auth.User) error {
	defer r.s.lock(ctx)()

	if _, ok := r.s.users[user.ID]; !ok {
		return oops.Code("USER_NOT_FOUND").With("user_id", user.ID.String()).Wrap(auth.ErrNotFound)
	}
	if err := r.checkUnique(user); err != nil {
		return err
	}
	r.s.users[user.ID] = cloneUser(user)
	return nil
}

// checkUnique reports a conflict with any other user. Callers hold the lock.
func (r *UserRepository) checkUnique(user *auth.User) error {
	for id, u := range r.s.users {
		if id == user.ID {
			continue
		}
		if strings.EqualFold(u.Email, user.Email) {
			return oops.Code("USER_EMAIL_EXISTS").With("email", user.Email).Wrap(auth.ErrEmailExists)
		}
	}
	for id, u := range r.s.users {
		if id == user.ID {
			continue
		}
		if strings.EqualFold(u.Username, user.Username) {
			return oops.Code("USER_USERNAME_EXISTS").With("username", user.Username).Wrap(auth.ErrUsernameExists)
		}
	}
	return nil
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	defer r.s.lock(ctx)()

	u, ok := r.s.users[id]
	if !ok {
		return nil, oops.Code("USER_NOT_FOUND").With("user_id", id.String()).Wrap(auth.ErrNotFound)
	}
	return cloneUser(u), nil
}

// GetByEmail retrieves a user by email (case-insensitive).
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	defer r.s.lock(ctx)()

	if u := r.find(func(u *auth.User) bool { return strings.EqualFold(u.Email, email) }); u != nil {
		return cloneUser(u), nil
	}
	return nil, oops.Code("USER_NOT_FOUND").With("email", email).Wrap(auth.ErrNotFound)
}

// GetByUsername retrieves a user by username (case-insensitive).
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*auth.User, error) {
	defer r.s.lock(ctx)()

	if u := r.find(func(u *auth.User) bool { return strings.EqualFold(u.Username, username) }); u != nil {
		return cloneUser(u), nil
	}
	return nil, oops.Code("USER_NOT_FOUND").With("username", username).Wrap(auth.ErrNotFound)
}

// ExistsByEmail reports whether a user with the email exists.
func (r *UserRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	defer r.s.lock(ctx)()
	return r.find(func(u *auth.User) bool { return strings.EqualFold(u.Email, email) }) != nil, nil
}

// ExistsByUsername reports whether a user with the username exists.
func (r *UserRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	defer r.s.lock(ctx)()
	return r.find(func(u *auth.User) bool { return strings.EqualFold(u.Username, username) }) != nil, nil
}

// List returns all users ordered by creation time, then id.
func (r *UserRepository) List(ctx context.Context) ([]*auth.User, error) {
	defer r.s.lock(ctx)()

	users := make([]*auth.User, 0, len(r.s.users))
	for _, u := range r.s.users {
		users = append(users, cloneUser(u))
	}
	slices.SortFunc(users, func(a, b *auth.User) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return a.ID.Compare(b.ID)
	})
	return users, nil
}

// Delete removes a user and, like the foreign key in the SQL schema, every
// refresh token the user owns.
func (r *UserRepository) Delete(ctx context.Context, id ulid.ULID) error {
	defer r.s.lock(ctx)()

	if _, ok := r.s.users[id]; !ok {
		return oops.Code("USER_NOT_FOUND").With("user_id", id.String()).Wrap(auth.ErrNotFound)
	}
	delete(r.s.users, id)
	for tid, t := range r.s.tokens {
		if t.UserID == id {
			delete(r.s.byHash, t.TokenHash)
			delete(r.s.tokens, tid)
		}
	}
	return nil
}

func (r *UserRepository) find(match func(*auth.User) bool) *auth.User {
	for _, u := range r.s.users {
		if match(u) {
			return u
		}
	}
	return nil
}
