// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"bytes"
	"errors"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/authcore/internal/auth"
	"github.com/holomush/authcore/pkg/errutil"
)

func TestRootCommand_HasExpectedSubcommands(t *testing.T) {
	cmd := NewRootCmd(nil)
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--help"})

	require.NoError(t, cmd.Execute())

	output := buf.String()
	for _, sub := range []string{"serve", "migrate", "user", "token", "config"} {
		assert.Contains(t, output, sub, "Help missing %q command", sub)
	}
}

func TestRootCommand_ConfigFlag(t *testing.T) {
	h := newHarness(t)

	_, err := h.run("user", "list", "--config", "/nonexistent/authcore.yaml")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "CONFIG_FILE_NOT_FOUND")
}

func TestRootCommand_RejectsUnknownOutput(t *testing.T) {
	h := newHarness(t)

	_, err := h.run("user", "list", "-o", "xml")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "OUTPUT_FORMAT_INVALID")
}

func TestRootCommand_RequiresSigningSecret(t *testing.T) {
	h := newHarness(t)
	delete(h.env, "AUTHCORE_SIGNING_SECRET")

	_, err := h.run("user", "list")
	require.Error(t, err)
	errutil.AssertErrorContext(t, err, "key", "token.signing_secret")
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 2, exitCode(oops.Code("TOKEN_REVOKED").Wrap(auth.ErrTokenRevoked)))
	assert.Equal(t, 2, exitCode(oops.Wrap(auth.ErrInvalidCredentials)))
	assert.Equal(t, 1, exitCode(oops.Wrap(auth.ErrStorageUnavailable)))
	assert.Equal(t, 1, exitCode(errors.New("flag parse error")))
}
