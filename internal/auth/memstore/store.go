// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package memstore provides an in-process implementation of the auth storage
// contracts. Transactions serialize on a single mutex and roll back by
// restoring a snapshot, which is enough to make rotation atomic.
package memstore

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/holomush/authcore/internal/auth"
)

// Store holds users and refresh tokens in memory.
type Store struct {
	mu     sync.Mutex
	users  map[ulid.ULID]*auth.User
	tokens map[ulid.ULID]*auth.RefreshToken
	byHash map[string]ulid.ULID
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		users:  make(map[ulid.ULID]*auth.User),
		tokens: make(map[ulid.ULID]*auth.RefreshToken),
		byHash: make(map[string]ulid.ULID),
	}
}

// Users returns the store's UserRepository.
func (s *Store) Users() *UserRepository {
	return &UserRepository{s: s}
}

// RefreshTokens returns the store's RefreshTokenRepository.
func (s *Store) RefreshTokens() *RefreshTokenRepository {
	return &RefreshTokenRepository{s: s}
}

type txKey struct{ s *Store }

// InTransaction runs fn holding the store lock. Changes made by fn are
// discarded if it returns an error. Nested calls join the outer transaction.
func (s *Store) InTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.inTx(ctx) {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	if err := fn(context.WithValue(ctx, txKey{s}, true)); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

func (s *Store) inTx(ctx context.Context) bool {
	v, _ := ctx.Value(txKey{s}).(bool)
	return v
}

// lock acquires the store lock unless ctx already holds it through a transaction.
func (s *Store) lock(ctx context.Context) func() {
	if s.inTx(ctx) {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

type snapshot struct {
	users  map[ulid.ULID]*auth.User
	tokens map[ulid.ULID]*auth.RefreshToken
	byHash map[string]ulid.ULID
}

func (s *Store) snapshot() snapshot {
	snap := snapshot{
		users:  make(map[ulid.ULID]*auth.User, len(s.users)),
		tokens: make(map[ulid.ULID]*auth.RefreshToken, len(s.tokens)),
		byHash: maps.Clone(s.byHash),
	}
	for id, u := range s.users {
		snap.users[id] = cloneUser(u)
	}
	for id, t := range s.tokens {
		snap.tokens[id] = cloneToken(t)
	}
	return snap
}

func (s *Store) restore(snap snapshot) {
	s.users = snap.users
	s.tokens = snap.tokens
	s.byHash = snap.byHash
}

func cloneUser(u *auth.User) *auth.User {
	c := *u
	c.Roles = slices.Clone(u.Roles)
	return &c
}

func cloneToken(t *auth.RefreshToken) *auth.RefreshToken {
	c := *t
	return &c
}

var _ auth.Transactor = (*Store)(nil)
