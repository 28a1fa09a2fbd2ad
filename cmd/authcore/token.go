// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/holomush/authcore/internal/auth"
)

// NewTokenCmd creates the token subcommand. TOKEN arguments given as "-" are
// read from stdin.
func NewTokenCmd(opts *rootOptions, deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue, verify, refresh and revoke session tokens",
	}
	cmd.AddCommand(
		newTokenIssueCmd(opts, deps),
		newTokenVerifyCmd(opts, deps),
		newTokenRefreshCmd(opts, deps),
		newTokenLogoutCmd(opts, deps),
	)
	return cmd
}

func tokenArg(cmd *cobra.Command, arg string) (string, error) {
	if arg == "-" {
		return readLine(cmd.InOrStdin())
	}
	return arg, nil
}

func renderSession(cmd *cobra.Command, opts *rootOptions, s *auth.Session) error {
	return render(cmd, opts.output, s, func(w io.Writer) error { return writeSession(w, s) })
}

func newTokenIssueCmd(opts *rootOptions, deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "issue EMAIL",
		Short: "Authenticate and print a new session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := deps.ReadPassword(cmd, "Password: ")
			if err != nil {
				return err
			}
			return withApp(cmd, opts, deps, func(a *app) error {
				session, err := a.svc.Authenticate(cmd.Context(), args[0], password)
				if err != nil {
					return err
				}
				return renderSession(cmd, opts, session)
			})
		},
	}
}

func newTokenVerifyCmd(opts *rootOptions, deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "verify TOKEN",
		Short: "Verify an access token and print its claims",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := tokenArg(cmd, args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, opts, deps, func(a *app) error {
				claims, err := a.svc.ValidateAccessToken(token)
				if err != nil {
					return err
				}
				view := newIntrospection(claims)
				return render(cmd, opts.output, view, func(w io.Writer) error { return writeIntrospection(w, view) })
			})
		},
	}
}

func newTokenRefreshCmd(opts *rootOptions, deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh TOKEN",
		Short: "Redeem a refresh token for a new session",
		Long:  `Redeem a refresh token. The token is revoked and replaced by the one printed.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := tokenArg(cmd, args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, opts, deps, func(a *app) error {
				session, err := a.svc.Refresh(cmd.Context(), token)
				if err != nil {
					return err
				}
				return renderSession(cmd, opts, session)
			})
		},
	}
}

func newTokenLogoutCmd(opts *rootOptions, deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "logout TOKEN",
		Short: "Revoke a refresh token",
		Long:  `Revoke a refresh token. Unknown or already revoked tokens are accepted silently.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := tokenArg(cmd, args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, opts, deps, func(a *app) error {
				a.svc.Logout(cmd.Context(), token)
				cmd.Println("Logged out")
				return nil
			})
		},
	}
}
