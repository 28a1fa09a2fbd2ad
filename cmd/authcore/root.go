// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"log/slog"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/authcore/internal/auth"
	"github.com/holomush/authcore/internal/config"
	"github.com/holomush/authcore/internal/logging"
)

// rootOptions holds the global flags shared by all subcommands.
type rootOptions struct {
	configFile string
	output     string
}

// NewRootCmd creates the root command for the authcore CLI.
func NewRootCmd(deps *Deps) *cobra.Command {
	deps = deps.withDefaults()
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "authcore",
		Short: "authcore - user accounts and token sessions",
		Long: `authcore manages user accounts, password credentials and
access/refresh token sessions backed by PostgreSQL.`,
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return validateOutput(opts.output)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file path (default $XDG_CONFIG_HOME/authcore/config.yaml)")
	cmd.PersistentFlags().StringVarP(&opts.output, "output", "o", outputText, "output format (text, json or yaml)")
	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(NewServeCmd(opts, deps))
	cmd.AddCommand(NewMigrateCmd(opts, deps))
	cmd.AddCommand(NewUserCmd(opts, deps))
	cmd.AddCommand(NewTokenCmd(opts, deps))
	cmd.AddCommand(NewConfigCmd(opts, deps))

	return cmd
}

// loadConfig loads the configuration visible to cmd.
func loadConfig(cmd *cobra.Command, opts *rootOptions, deps *Deps) (*config.Config, error) {
	cfg, err := config.Load(config.LoadOptions{
		Path:      opts.configFile,
		Flags:     cmd.Flags(),
		LookupEnv: deps.LookupEnv,
	})
	if err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").Wrap(err)
	}
	return cfg, nil
}

// app is a fully wired session service and the store behind it.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	backend *Backend
	svc     *auth.SessionService
}

// newApp loads configuration, opens the store and builds the session service.
// Callers must Close the result.
func newApp(cmd *cobra.Command, opts *rootOptions, deps *Deps) (*app, error) {
	cfg, err := loadConfig(cmd, opts, deps)
	if err != nil {
		return nil, err
	}
	logger := logging.Setup("authcore", version, cfg.Log.Format, logging.ParseLevel(cfg.Log.Level), deps.LogOutput)

	backend, err := deps.OpenBackend(cmd.Context(), cfg, logger)
	if err != nil {
		return nil, oops.Code("STORE_OPEN_FAILED").With("store", cfg.Store).Wrap(err)
	}

	svc, err := newSessionService(cfg, backend, logger)
	if err != nil {
		backend.Close()
		return nil, err
	}
	return &app{cfg: cfg, logger: logger, backend: backend, svc: svc}, nil
}

func (a *app) Close() {
	a.backend.Close()
}

func newSessionService(cfg *config.Config, backend *Backend, logger *slog.Logger) (*auth.SessionService, error) {
	codec, err := auth.NewTokenCodec(auth.TokenCodecConfig{
		Secret: []byte(cfg.Token.SigningSecret),
		Issuer: cfg.Token.Issuer,
	})
	if err != nil {
		return nil, err
	}
	tokens, err := auth.NewRefreshTokenManager(backend.Tokens, backend.Tx, auth.RefreshTokenManagerConfig{
		TTL: cfg.Token.RefreshTTL,
	})
	if err != nil {
		return nil, err
	}
	policy := cfg.PasswordPolicy()
	return auth.NewSessionService(auth.SessionServiceDeps{
		Users:  backend.Users,
		Tokens: tokens,
		Codec:  codec,
		Hasher: auth.NewArgon2idHasherWithParams(cfg.Argon2Params()),
		Tx:     backend.Tx,
		Logger: logger,
	}, auth.SessionServiceConfig{
		AccessTokenTTL: cfg.Token.AccessTTL,
		Policy:         &policy,
	})
}
