// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth_test

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/require"

	"github.com/holomush/authcore/internal/auth"
	"github.com/holomush/authcore/internal/auth/memstore"
)

const (
	testSecret   = "0123456789abcdef0123456789abcdef"
	testIssuer   = "authcore-test"
	testPassword = "Corr3ct!Horse"
)

// newTestHasher returns a hasher cheap enough for unit tests.
func newTestHasher() *auth.Argon2idHasher {
	return auth.NewArgon2idHasherWithParams(auth.Argon2Params{Time: 1, Memory: 64, Threads: 1})
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	store   *memstore.Store
	clock   *fakeClock
	codec   *auth.TokenCodec
	tokens  *auth.RefreshTokenManager
	svc     *auth.SessionService
	hasher  *auth.Argon2idHasher
	logs    *bytes.Buffer
	logger  *slog.Logger
	refresh time.Duration
	access  time.Duration
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithUsers(t, nil)
}

// newFixtureWithUsers builds a fixture whose service sees the user repository
// through wrap, for injecting storage failures.
func newFixtureWithUsers(t *testing.T, wrap func(auth.UserRepository) auth.UserRepository) *fixture {
	t.Helper()

	f := &fixture{
		store:   memstore.New(),
		clock:   newFakeClock(),
		hasher:  newTestHasher(),
		logs:    &bytes.Buffer{},
		refresh: 24 * time.Hour,
		access:  15 * time.Minute,
	}

	var err error
	f.codec, err = auth.NewTokenCodec(auth.TokenCodecConfig{
		Secret: []byte(testSecret),
		Issuer: testIssuer,
		Now:    f.clock.Now,
	})
	require.NoError(t, err)

	f.tokens, err = auth.NewRefreshTokenManager(f.store.RefreshTokens(), f.store, auth.RefreshTokenManagerConfig{
		TTL: f.refresh,
		Now: f.clock.Now,
	})
	require.NoError(t, err)

	f.logger = slog.New(slog.NewJSONHandler(f.logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	var users auth.UserRepository = f.store.Users()
	if wrap != nil {
		users = wrap(users)
	}
	f.svc, err = auth.NewSessionService(auth.SessionServiceDeps{
		Users:  users,
		Tokens: f.tokens,
		Codec:  f.codec,
		Hasher: f.hasher,
		Tx:     f.store,
		Logger: f.logger,
	}, auth.SessionServiceConfig{
		AccessTokenTTL: f.access,
		Now:            f.clock.Now,
	})
	require.NoError(t, err)

	return f
}

// register creates an account with testPassword and random profile data.
func (f *fixture) register(t *testing.T) *auth.UserView {
	t.Helper()
	username := "u" + strings.ReplaceAll(gofakeit.UUID(), "-", "")[:12]
	user, err := f.svc.Register(context.Background(), auth.RegisterRequest{
		Username:  username,
		Email:     username + "@example.com",
		Password:  testPassword,
		FirstName: gofakeit.FirstName(),
		LastName:  gofakeit.LastName(),
	})
	require.NoError(t, err)
	return user
}

// login registers a user and authenticates it.
func (f *fixture) login(t *testing.T) (*auth.UserView, *auth.Session) {
	t.Helper()
	user := f.register(t)
	session, err := f.svc.Authenticate(context.Background(), user.Email, testPassword)
	require.NoError(t, err)
	return user, session
}
