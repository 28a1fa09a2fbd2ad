// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/authcore/internal/auth"
	"github.com/holomush/authcore/pkg/errutil"
)

func TestUserRegister(t *testing.T) {
	h := newHarness(t)

	u := h.register(t, "alice")
	assert.Equal(t, "alice", u.Username)
	assert.Equal(t, "alice@example.com", u.Email)
	assert.Equal(t, "Test", u.FirstName)
	assert.Equal(t, []string{auth.RoleUser}, u.Roles)
	assert.True(t, u.Enabled)

	t.Run("duplicate email", func(t *testing.T) {
		h.passwords = []string{testPassword, testPassword}
		_, err := h.run("user", "register", "alice2", "ALICE@example.com")
		assert.ErrorIs(t, err, auth.ErrEmailExists)
		assert.Equal(t, 2, exitCode(err))
	})

	t.Run("password mismatch", func(t *testing.T) {
		h.passwords = []string{testPassword, "Other!Pass1"}
		_, err := h.run("user", "register", "bob", "bob@example.com")
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "PASSWORD_MISMATCH")
	})

	t.Run("password from stdin", func(t *testing.T) {
		out, err := h.runContext(t.Context(), testPassword+"\n", "user", "register", "carol", "carol@example.com", "--password-stdin")
		require.NoError(t, err)
		assert.Contains(t, out, "carol@example.com")
	})

	t.Run("weak password", func(t *testing.T) {
		h.passwords = []string{"weak", "weak"}
		_, err := h.run("user", "register", "dave", "dave@example.com")
		assert.ErrorIs(t, err, auth.ErrWeakPassword)
	})
}

func TestUserList(t *testing.T) {
	h := newHarness(t)
	h.register(t, "admin1")
	h.register(t, "alice")
	h.register(t, "bob")

	var all []auth.UserView
	h.runJSON(t, &all, "user", "list")
	require.Len(t, all, 3)
	assert.Equal(t, "admin1", all[0].Username)

	var matched []auth.UserView
	h.runJSON(t, &matched, "user", "list", "--match", "A*")
	require.Len(t, matched, 2)
	assert.Equal(t, "admin1", matched[0].Username)
	assert.Equal(t, "alice", matched[1].Username)

	h.runJSON(t, &matched, "user", "list", "--match", "bob@*.com")
	require.Len(t, matched, 1)
	assert.Equal(t, "bob", matched[0].Username)

	out, err := h.run("user", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "USERNAME")
	assert.Contains(t, out, "alice@example.com")

	_, err = h.run("user", "list", "--match", "[a")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "INVALID_PATTERN")
}

func TestUserShow(t *testing.T) {
	h := newHarness(t)
	u := h.register(t, "alice")

	for _, ref := range []string{u.ID.String(), "alice@example.com", "ALICE"} {
		var got auth.UserView
		h.runJSON(t, &got, "user", "show", ref)
		assert.Equal(t, u.ID, got.ID, ref)
	}

	out, err := h.run("user", "show", "alice", "-o", "yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "username: alice")
	assert.Contains(t, out, "first_name: Test")

	_, err = h.run("user", "show", "nobody")
	assert.ErrorIs(t, err, auth.ErrUserNotFound)
}

func TestUserProfile(t *testing.T) {
	h := newHarness(t)
	h.register(t, "alice")

	var got auth.UserView
	h.runJSON(t, &got, "user", "profile", "alice", "--last-name", "Liddell")
	assert.Equal(t, "Test", got.FirstName, "unchanged flags keep the current value")
	assert.Equal(t, "Liddell", got.LastName)
}

func TestUserPasswd(t *testing.T) {
	h := newHarness(t)
	h.register(t, "alice")
	const next = "N3w!Password"

	h.passwords = []string{"Wr0ng!password", next, next}
	_, err := h.run("user", "passwd", "alice")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

	h.passwords = []string{testPassword, next, next}
	out, err := h.run("user", "passwd", "alice")
	require.NoError(t, err)
	assert.Contains(t, out, "Password changed")

	h.passwords = []string{next}
	_, err = h.run("token", "issue", "alice@example.com")
	assert.NoError(t, err)
}

func TestUserEnableDisable(t *testing.T) {
	h := newHarness(t)
	h.register(t, "alice")

	out, err := h.run("user", "disable", "alice")
	require.NoError(t, err)
	assert.Contains(t, out, "Account disabled")

	h.passwords = []string{testPassword}
	_, err = h.run("token", "issue", "alice@example.com")
	assert.ErrorIs(t, err, auth.ErrAccountDisabled)

	_, err = h.run("user", "enable", "alice")
	require.NoError(t, err)

	h.passwords = []string{testPassword}
	_, err = h.run("token", "issue", "alice@example.com")
	assert.NoError(t, err)
}

func TestUserRoles(t *testing.T) {
	h := newHarness(t)
	h.register(t, "alice")

	var got auth.UserView
	h.runJSON(t, &got, "user", "roles", "alice", "admin", "user")
	assert.Equal(t, []string{auth.RoleAdmin, auth.RoleUser}, got.Roles)

	_, err := h.run("user", "roles", "alice", "root")
	assert.ErrorIs(t, err, auth.ErrInvalidInput)
}

func TestUserSessions(t *testing.T) {
	h := newHarness(t)
	u := h.register(t, "alice")

	for range 2 {
		h.passwords = []string{testPassword}
		_, err := h.run("token", "issue", "alice@example.com")
		require.NoError(t, err)
	}

	var sessions []sessionView
	h.runJSON(t, &sessions, "user", "sessions", "alice")
	require.Len(t, sessions, 2)
	assert.Equal(t, u.ID.String(), sessions[0].UserID)

	out, err := h.run("user", "revoke-sessions", "alice")
	require.NoError(t, err)
	assert.Contains(t, out, "Sessions revoked")

	h.runJSON(t, &sessions, "user", "sessions", "alice")
	assert.Empty(t, sessions)
}

func TestUserDelete(t *testing.T) {
	h := newHarness(t)
	h.register(t, "alice")

	_, err := h.run("user", "delete", "alice")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "CONFIRMATION_REQUIRED")

	out, err := h.run("user", "delete", "alice", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "Account deleted")

	_, err = h.run("user", "show", "alice")
	assert.ErrorIs(t, err, auth.ErrUserNotFound)
}
