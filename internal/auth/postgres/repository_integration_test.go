// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package postgres_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/oklog/ulid/v2"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/holomush/authcore/internal/auth"
	"github.com/holomush/authcore/internal/auth/postgres"
)

func newUser(username string) *auth.User {
	now := time.Now().UTC().Truncate(time.Microsecond)
	user, err := auth.NewUser(username, username+"@example.com", "$argon2id$hash",
		gofakeit.FirstName(), gofakeit.LastName(), now)
	Expect(err).NotTo(HaveOccurred())
	return user
}

func newToken(userID ulid.ULID, ttl time.Duration) *auth.RefreshToken {
	plain, hash, err := auth.GenerateRefreshToken()
	Expect(err).NotTo(HaveOccurred())
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &auth.RefreshToken{
		ID:        ulid.Make(),
		UserID:    userID,
		Token:     plain,
		TokenHash: hash,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
}

var _ = Describe("UserRepository", func() {
	var (
		ctx   context.Context
		users *postgres.UserRepository
	)

	BeforeEach(func() {
		ctx = context.Background()
		users = postgres.NewUserRepository(testPool)
		truncate()
	})

	It("round-trips a user", func() {
		user := newUser("alice")
		Expect(users.Create(ctx, user)).To(Succeed())

		got, err := users.GetByID(ctx, user.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(Equal(user))
	})

	It("looks up email and username case-insensitively", func() {
		user := newUser("Alice")
		Expect(users.Create(ctx, user)).To(Succeed())

		got, err := users.GetByEmail(ctx, "ALICE@EXAMPLE.COM")
		Expect(err).NotTo(HaveOccurred())
		Expect(got.ID).To(Equal(user.ID))

		got, err = users.GetByUsername(ctx, "alice")
		Expect(err).NotTo(HaveOccurred())
		Expect(got.ID).To(Equal(user.ID))

		Expect(users.ExistsByEmail(ctx, "alice@example.COM")).To(BeTrue())
		Expect(users.ExistsByUsername(ctx, "bob")).To(BeFalse())
	})

	It("maps unique violations to error kinds", func() {
		Expect(users.Create(ctx, newUser("alice"))).To(Succeed())

		sameEmail := newUser("alice2")
		sameEmail.Email = "ALICE@example.com"
		Expect(errors.Is(users.Create(ctx, sameEmail), auth.ErrEmailExists)).To(BeTrue())

		sameName := newUser("ALICE")
		sameName.Email = "other@example.com"
		Expect(errors.Is(users.Create(ctx, sameName), auth.ErrUsernameExists)).To(BeTrue())
	})

	It("updates and deletes", func() {
		user := newUser("carol")
		Expect(users.Create(ctx, user)).To(Succeed())

		user.Enabled = false
		user.Roles = []string{auth.RoleAdmin, auth.RoleUser}
		user.UpdatedAt = user.UpdatedAt.Add(time.Minute)
		Expect(users.Update(ctx, user)).To(Succeed())

		got, err := users.GetByID(ctx, user.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Enabled).To(BeFalse())
		Expect(got.Roles).To(Equal([]string{auth.RoleAdmin, auth.RoleUser}))

		Expect(users.Delete(ctx, user.ID)).To(Succeed())
		Expect(errors.Is(users.Delete(ctx, user.ID), auth.ErrNotFound)).To(BeTrue())
		_, err = users.GetByID(ctx, user.ID)
		Expect(errors.Is(err, auth.ErrNotFound)).To(BeTrue())
	})

	It("lists in creation order", func() {
		first := newUser("first")
		second := newUser("second")
		second.CreatedAt = first.CreatedAt.Add(time.Second)
		Expect(users.Create(ctx, second)).To(Succeed())
		Expect(users.Create(ctx, first)).To(Succeed())

		list, err := users.List(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(list).To(HaveLen(2))
		Expect(list[0].ID).To(Equal(first.ID))
		Expect(list[1].ID).To(Equal(second.ID))
	})
})

var _ = Describe("RefreshTokenRepository", func() {
	var (
		ctx    context.Context
		users  *postgres.UserRepository
		tokens *postgres.RefreshTokenRepository
		owner  *auth.User
	)

	BeforeEach(func() {
		ctx = context.Background()
		users = postgres.NewUserRepository(testPool)
		tokens = postgres.NewRefreshTokenRepository(testPool)
		truncate()
		owner = newUser("owner")
		Expect(users.Create(ctx, owner)).To(Succeed())
	})

	It("stores only the hash", func() {
		tok := newToken(owner.ID, time.Hour)
		Expect(tokens.Create(ctx, tok)).To(Succeed())

		got, err := tokens.GetByTokenHash(ctx, tok.TokenHash)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.ID).To(Equal(tok.ID))
		Expect(got.Token).To(BeEmpty())

		var stored int
		Expect(testPool.QueryRow(ctx,
			`SELECT count(*) FROM refresh_tokens WHERE token_hash = $1`, tok.Token).Scan(&stored)).To(Succeed())
		Expect(stored).To(BeZero())
	})

	It("reports a hash collision", func() {
		tok := newToken(owner.ID, time.Hour)
		Expect(tokens.Create(ctx, tok)).To(Succeed())

		dup := newToken(owner.ID, time.Hour)
		dup.TokenHash = tok.TokenHash
		Expect(errors.Is(tokens.Create(ctx, dup), auth.ErrTokenCollision)).To(BeTrue())
	})

	It("filters valid tokens in the database", func() {
		live := newToken(owner.ID, time.Hour)
		expired := newToken(owner.ID, -time.Minute)
		revoked := newToken(owner.ID, time.Hour)
		for _, tok := range []*auth.RefreshToken{live, expired, revoked} {
			Expect(tokens.Create(ctx, tok)).To(Succeed())
		}
		Expect(tokens.Revoke(ctx, revoked.ID)).To(BeTrue())

		all, err := tokens.ListByUser(ctx, owner.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(all).To(HaveLen(3))

		valid, err := tokens.ListValidByUser(ctx, owner.ID, time.Now())
		Expect(err).NotTo(HaveOccurred())
		Expect(valid).To(HaveLen(1))
		Expect(valid[0].ID).To(Equal(live.ID))
	})

	It("lets exactly one concurrent revoke win", func() {
		tok := newToken(owner.ID, time.Hour)
		Expect(tokens.Create(ctx, tok)).To(Succeed())

		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			wins int
		)
		for range 8 {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				flipped, err := tokens.Revoke(ctx, tok.ID)
				Expect(err).NotTo(HaveOccurred())
				if flipped {
					mu.Lock()
					wins++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		Expect(wins).To(Equal(1))
	})

	It("revokes, deletes and cascades in bulk", func() {
		for range 3 {
			Expect(tokens.Create(ctx, newToken(owner.ID, time.Hour))).To(Succeed())
		}
		Expect(tokens.RevokeAllByUser(ctx, owner.ID)).To(Equal(int64(3)))
		Expect(tokens.RevokeAllByUser(ctx, owner.ID)).To(BeZero())
		Expect(tokens.DeleteByUser(ctx, owner.ID)).To(Equal(int64(3)))

		Expect(tokens.Create(ctx, newToken(owner.ID, time.Hour))).To(Succeed())
		Expect(users.Delete(ctx, owner.ID)).To(Succeed())
		all, err := tokens.ListByUser(ctx, owner.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(all).To(BeEmpty())
	})
})
