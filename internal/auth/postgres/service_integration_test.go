// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package postgres_test

import (
	"context"
	"errors"
	"sync"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/holomush/authcore/internal/auth"
	"github.com/holomush/authcore/internal/auth/postgres"
)

const password = "Corr3ct!Horse"

var _ = Describe("SessionService on PostgreSQL", func() {
	var (
		ctx context.Context
		svc *auth.SessionService
	)

	BeforeEach(func() {
		ctx = context.Background()
		truncate()

		tx := postgres.NewTransactor(testPool)
		tokens, err := auth.NewRefreshTokenManager(postgres.NewRefreshTokenRepository(testPool), tx, auth.RefreshTokenManagerConfig{})
		Expect(err).NotTo(HaveOccurred())
		codec, err := auth.NewTokenCodec(auth.TokenCodecConfig{
			Secret: []byte("integration-secret-0123456789abcdef"),
			Issuer: "authcore-it",
		})
		Expect(err).NotTo(HaveOccurred())

		svc, err = auth.NewSessionService(auth.SessionServiceDeps{
			Users:  postgres.NewUserRepository(testPool),
			Tokens: tokens,
			Codec:  codec,
			Hasher: auth.NewArgon2idHasherWithParams(auth.Argon2Params{Time: 1, Memory: 64, Threads: 1}),
			Tx:     tx,
		}, auth.SessionServiceConfig{})
		Expect(err).NotTo(HaveOccurred())

		_, err = svc.Register(ctx, auth.RegisterRequest{
			Username: "dana",
			Email:    "dana@example.com",
			Password: password,
		})
		Expect(err).NotTo(HaveOccurred())
	})

	It("rotates a refresh token exactly once under contention", func() {
		session, err := svc.Authenticate(ctx, "dana@example.com", password)
		Expect(err).NotTo(HaveOccurred())

		const callers = 6
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			successes int
			revoked   int
		)
		for range callers {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				_, err := svc.Refresh(ctx, session.RefreshToken)
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					successes++
				case errors.Is(err, auth.ErrTokenRevoked):
					revoked++
				default:
					Fail("unexpected refresh error: " + err.Error())
				}
			}()
		}
		wg.Wait()

		Expect(successes).To(Equal(1))
		Expect(revoked).To(Equal(callers - 1))
	})

	It("refuses tokens of a disabled account", func() {
		session, err := svc.Authenticate(ctx, "dana@example.com", password)
		Expect(err).NotTo(HaveOccurred())

		users, err := svc.ListUsers(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(svc.SetEnabled(ctx, users[0].ID, false)).To(Succeed())

		_, err = svc.Refresh(ctx, session.RefreshToken)
		Expect(errors.Is(err, auth.ErrTokenRevoked)).To(BeTrue())

		active, err := svc.ListActiveSessions(ctx, users[0].ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(active).To(BeEmpty())
	})

	It("deletes a user with its sessions", func() {
		session, err := svc.Authenticate(ctx, "dana@example.com", password)
		Expect(err).NotTo(HaveOccurred())
		claims, err := svc.ValidateAccessToken(session.AccessToken)
		Expect(err).NotTo(HaveOccurred())

		Expect(svc.DeleteUser(ctx, claims.UserID)).To(Succeed())

		_, err = svc.Refresh(ctx, session.RefreshToken)
		Expect(errors.Is(err, auth.ErrTokenNotFound)).To(BeTrue())
	})
})
