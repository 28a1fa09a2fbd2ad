// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"slices"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/holomush/authcore/internal/auth"
	"github.com/holomush/authcore/internal/auth/memstore"
	"github.com/holomush/authcore/internal/config"
)

const (
	testSecret   = "0123456789abcdef0123456789abcdef"
	testPassword = "Corr3ct!Horse"
)

// cheapFlags keep password hashing fast and select the in-memory store.
// They precede the arguments of each run so tests can override them.
var cheapFlags = []string{
	"--store=memory",
	"--argon2-time=1",
	"--argon2-memory=1024",
	"--argon2-threads=1",
	"--metrics-addr=127.0.0.1:0",
}

// harness runs CLI invocations against one shared in-memory store.
type harness struct {
	store     *memstore.Store
	env       map[string]string
	passwords []string
	deps      *Deps
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	h := &harness{
		store: memstore.New(),
		env:   map[string]string{config.EnvSigningSecret: testSecret},
	}
	h.deps = &Deps{
		OpenBackend: func(_ context.Context, _ *config.Config, _ *slog.Logger) (*Backend, error) {
			return &Backend{
				Users:  h.store.Users(),
				Tokens: h.store.RefreshTokens(),
				Tx:     h.store,
				Close:  func() {},
			}, nil
		},
		ReadPassword: func(_ *cobra.Command, _ string) (string, error) {
			if len(h.passwords) == 0 {
				return "", errors.New("no password queued")
			}
			p := h.passwords[0]
			h.passwords = h.passwords[1:]
			return p, nil
		},
		LookupEnv: func(key string) (string, bool) {
			v, ok := h.env[key]
			return v, ok
		},
		LogOutput: io.Discard,
	}
	return h
}

// run executes the CLI and returns combined stdout and stderr.
func (h *harness) run(args ...string) (string, error) {
	return h.runContext(context.Background(), "", args...)
}

func (h *harness) runContext(ctx context.Context, stdin string, args ...string) (string, error) {
	cmd := NewRootCmd(h.deps)
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetIn(bytes.NewBufferString(stdin))
	cmd.SetArgs(append(slices.Clone(cheapFlags), args...))
	err := cmd.ExecuteContext(ctx)
	return buf.String(), err
}

// runJSON executes the CLI with JSON output and decodes the result into v.
func (h *harness) runJSON(t *testing.T, v any, args ...string) {
	t.Helper()
	cmd := NewRootCmd(h.deps)
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append(append(slices.Clone(cheapFlags), args...), "-o", "json"))
	require.NoError(t, cmd.Execute())
	require.NoError(t, json.Unmarshal(out.Bytes(), v), out.String())
}

// register creates an account through the CLI.
func (h *harness) register(t *testing.T, username string) auth.UserView {
	t.Helper()
	h.passwords = []string{testPassword, testPassword}
	var u auth.UserView
	h.runJSON(t, &u, "user", "register", username, username+"@example.com", "--first-name", "Test")
	return u
}
