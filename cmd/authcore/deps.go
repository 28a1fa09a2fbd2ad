// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/holomush/authcore/internal/auth"
	"github.com/holomush/authcore/internal/auth/memstore"
	"github.com/holomush/authcore/internal/auth/postgres"
	"github.com/holomush/authcore/internal/config"
	"github.com/holomush/authcore/internal/observability"
	"github.com/holomush/authcore/internal/store"
)

// Backend is an opened credential store.
type Backend struct {
	Users  auth.UserRepository
	Tokens auth.RefreshTokenRepository
	Tx     auth.Transactor
	// Ready backs the readiness probe. Nil means always ready.
	Ready observability.ReadinessChecker
	Close func()
}

// Migrator wraps the schema operations used by the migrate command.
type Migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Force(version int) error
	Status() (*store.MigrationStatus, error)
	Close() error
}

// Deps contains injectable dependencies for the CLI.
// All fields with nil values will use their default implementations.
type Deps struct {
	// OpenBackend opens the configured credential store.
	// Default: openBackend
	OpenBackend func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Backend, error)

	// NewMigrator creates a schema migrator for a database URL.
	// Default: store.NewMigrator
	NewMigrator func(databaseURL string) (Migrator, error)

	// ReadPassword prompts for a secret without echo.
	// Default: readPassword
	ReadPassword func(cmd *cobra.Command, prompt string) (string, error)

	// LookupEnv reads environment variables.
	// Default: os.LookupEnv
	LookupEnv func(key string) (string, bool)

	// LogOutput receives structured logs.
	// Default: os.Stderr
	LogOutput io.Writer
}

func (d *Deps) withDefaults() *Deps {
	out := Deps{}
	if d != nil {
		out = *d
	}
	if out.OpenBackend == nil {
		out.OpenBackend = openBackend
	}
	if out.NewMigrator == nil {
		out.NewMigrator = func(databaseURL string) (Migrator, error) {
			return store.NewMigrator(databaseURL)
		}
	}
	if out.ReadPassword == nil {
		out.ReadPassword = readPassword
	}
	if out.LookupEnv == nil {
		out.LookupEnv = os.LookupEnv
	}
	if out.LogOutput == nil {
		out.LogOutput = os.Stderr
	}
	return &out
}

// openBackend opens the store selected by cfg.Store.
func openBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Backend, error) {
	switch cfg.Store {
	case config.StoreMemory:
		s := memstore.New()
		logger.Warn("using in-memory store; data is lost on exit")
		return &Backend{Users: s.Users(), Tokens: s.RefreshTokens(), Tx: s, Close: func() {}}, nil
	case config.StorePostgres:
		pool, err := store.OpenPool(ctx, cfg.PoolConfig(), logger)
		if err != nil {
			return nil, err
		}
		return &Backend{
			Users:  postgres.NewUserRepository(pool),
			Tokens: postgres.NewRefreshTokenRepository(pool),
			Tx:     postgres.NewTransactor(pool),
			Ready:  pool.Ping,
			Close:  pool.Close,
		}, nil
	default:
		return nil, oops.Code("STORE_UNKNOWN").With("store", cfg.Store).Errorf("unknown store %q", cfg.Store)
	}
}

// readPassword reads from the terminal without echo, or a single line when
// stdin is not a terminal.
func readPassword(cmd *cobra.Command, prompt string) (string, error) {
	if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		cmd.PrintErr(prompt)
		b, err := term.ReadPassword(int(f.Fd()))
		cmd.PrintErrln()
		if err != nil {
			return "", oops.Code("PASSWORD_READ_FAILED").Wrap(err)
		}
		return string(b), nil
	}
	return readLine(cmd.InOrStdin())
}
