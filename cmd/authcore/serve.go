// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/authcore/internal/auth"
	"github.com/holomush/authcore/internal/observability"
)

const shutdownTimeout = 10 * time.Second

// introspectPath serves the claims of the bearer token.
const introspectPath = "/token/introspect"

// NewServeCmd creates the serve subcommand.
func NewServeCmd(opts *rootOptions, deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve health, metrics and token introspection over HTTP",
		Long: `Serve /healthz/liveness, /healthz/readiness, /metrics and
` + introspectPath + ` on the metrics address until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts, deps)
		},
	}
}

func runServe(cmd *cobra.Command, opts *rootOptions, deps *Deps) error {
	a, err := newApp(cmd, opts, deps)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.cfg.Metrics.Addr == "" {
		return oops.Code("CONFIG_INVALID").With("key", "metrics.addr").Errorf("serve requires a metrics address")
	}

	server := observability.NewServer(a.cfg.Metrics.Addr, version, a.backend.Ready, a.logger)
	auth.RegisterMetrics(server.Registry())
	if err := server.Handle(introspectPath, auth.RequireAccessToken(a.svc, a.logger)(introspectHandler(a.logger))); err != nil {
		return oops.Code("SERVER_SETUP_FAILED").Wrap(err)
	}

	errCh, err := server.Start()
	if err != nil {
		return oops.Code("SERVER_START_FAILED").With("addr", a.cfg.Metrics.Addr).Wrap(err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.logger.Info("authcore serving", "addr", server.Addr(), "store", a.cfg.Store)

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("received shutdown signal")
	case serveErr, ok := <-errCh:
		if ok && serveErr != nil {
			runErr = oops.Code("SERVER_FAILED").Wrap(serveErr)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		a.logger.Warn("shutdown incomplete", "error", err)
		if runErr == nil {
			runErr = oops.Code("SERVER_STOP_FAILED").Wrap(err)
		}
	}
	return runErr
}

// introspection is the JSON body returned for a valid access token.
type introspection struct {
	Active    bool      `json:"active"`
	Subject   string    `json:"sub"`
	Email     string    `json:"email"`
	Roles     []string  `json:"roles"`
	Issuer    string    `json:"iss"`
	IssuedAt  time.Time `json:"iat"`
	ExpiresAt time.Time `json:"exp"`
}

func newIntrospection(c *auth.Claims) introspection {
	return introspection{
		Active:    true,
		Subject:   c.UserID.String(),
		Email:     c.Email,
		Roles:     c.Roles,
		Issuer:    c.Issuer,
		IssuedAt:  c.IssuedAt,
		ExpiresAt: c.ExpiresAt,
	}
}

// introspectHandler writes the claims placed in the request context by
// auth.RequireAccessToken.
func introspectHandler(logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := auth.ClaimsFromContext(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		if err := json.NewEncoder(w).Encode(newIntrospection(claims)); err != nil {
			logger.WarnContext(r.Context(), "failed to write introspection", "error", err)
		}
	})
}
