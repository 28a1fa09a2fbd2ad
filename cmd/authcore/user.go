// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"io"
	"strings"

	"github.com/gobwas/glob"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/authcore/internal/auth"
)

// NewUserCmd creates the user subcommand. USER arguments accept an id, an
// email address or a username.
func NewUserCmd(opts *rootOptions, deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user accounts",
	}
	cmd.AddCommand(
		newUserRegisterCmd(opts, deps),
		newUserListCmd(opts, deps),
		newUserShowCmd(opts, deps),
		newUserProfileCmd(opts, deps),
		newUserPasswdCmd(opts, deps),
		newUserEnableCmd(opts, deps, true),
		newUserEnableCmd(opts, deps, false),
		newUserRolesCmd(opts, deps),
		newUserSessionsCmd(opts, deps),
		newUserRevokeCmd(opts, deps),
		newUserDeleteCmd(opts, deps),
	)
	return cmd
}

// withApp builds the application for the duration of fn.
func withApp(cmd *cobra.Command, opts *rootOptions, deps *Deps, fn func(a *app) error) error {
	a, err := newApp(cmd, opts, deps)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

// withUser resolves the USER argument before calling fn.
func withUser(cmd *cobra.Command, opts *rootOptions, deps *Deps, ref string, fn func(a *app, u *auth.UserView) error) error {
	return withApp(cmd, opts, deps, func(a *app) error {
		u, err := a.svc.FindUser(cmd.Context(), ref)
		if err != nil {
			return err
		}
		return fn(a, u)
	})
}

func renderUser(cmd *cobra.Command, opts *rootOptions, u *auth.UserView) error {
	return render(cmd, opts.output, u, func(w io.Writer) error { return writeUser(w, u) })
}

func newUserRegisterCmd(opts *rootOptions, deps *Deps) *cobra.Command {
	var firstName, lastName string
	var passwordStdin bool
	cmd := &cobra.Command{
		Use:   "register USERNAME EMAIL",
		Short: "Create an account",
		Long: `Create an account. The password is prompted for twice, or read as a
single line from stdin with --password-stdin.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var password string
			var err error
			if passwordStdin {
				password, err = readLine(cmd.InOrStdin())
			} else {
				password, err = promptNewPassword(cmd, deps)
			}
			if err != nil {
				return err
			}
			return withApp(cmd, opts, deps, func(a *app) error {
				u, err := a.svc.Register(cmd.Context(), auth.RegisterRequest{
					Username:  args[0],
					Email:     args[1],
					Password:  password,
					FirstName: firstName,
					LastName:  lastName,
				})
				if err != nil {
					return err
				}
				return renderUser(cmd, opts, u)
			})
		},
	}
	cmd.Flags().StringVar(&firstName, "first-name", "", "first name")
	cmd.Flags().StringVar(&lastName, "last-name", "", "last name")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read the password from stdin")
	return cmd
}

func newUserListCmd(opts *rootOptions, deps *Deps) *cobra.Command {
	var match string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List accounts",
		Long: `List accounts in creation order. --match filters by a glob matched
case-insensitively against the username and the email address.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var matcher glob.Glob
			if match != "" {
				var err error
				if matcher, err = glob.Compile(strings.ToLower(match)); err != nil {
					return oops.Code("INVALID_PATTERN").With("pattern", match).Wrap(err)
				}
			}
			return withApp(cmd, opts, deps, func(a *app) error {
				users, err := a.svc.ListUsers(cmd.Context())
				if err != nil {
					return err
				}
				if matcher != nil {
					users = filterUsers(users, matcher)
				}
				return render(cmd, opts.output, users, func(w io.Writer) error { return writeUsers(w, users) })
			})
		},
	}
	cmd.Flags().StringVar(&match, "match", "", "glob pattern for username or email, e.g. 'adm*' or '*@example.com'")
	return cmd
}

func filterUsers(users []auth.UserView, matcher glob.Glob) []auth.UserView {
	out := make([]auth.UserView, 0, len(users))
	for _, u := range users {
		if matcher.Match(strings.ToLower(u.Username)) || matcher.Match(strings.ToLower(u.Email)) {
			out = append(out, u)
		}
	}
	return out
}

func newUserShowCmd(opts *rootOptions, deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "show USER",
		Short: "Show an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUser(cmd, opts, deps, args[0], func(_ *app, u *auth.UserView) error {
				return renderUser(cmd, opts, u)
			})
		},
	}
}

func newUserProfileCmd(opts *rootOptions, deps *Deps) *cobra.Command {
	var firstName, lastName string
	cmd := &cobra.Command{
		Use:   "profile USER",
		Short: "Change the display name of an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUser(cmd, opts, deps, args[0], func(a *app, u *auth.UserView) error {
				first, last := u.FirstName, u.LastName
				if cmd.Flags().Changed("first-name") {
					first = firstName
				}
				if cmd.Flags().Changed("last-name") {
					last = lastName
				}
				updated, err := a.svc.UpdateProfile(cmd.Context(), u.ID, first, last)
				if err != nil {
					return err
				}
				return renderUser(cmd, opts, updated)
			})
		},
	}
	cmd.Flags().StringVar(&firstName, "first-name", "", "new first name")
	cmd.Flags().StringVar(&lastName, "last-name", "", "new last name")
	return cmd
}

func newUserPasswdCmd(opts *rootOptions, deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "passwd USER",
		Short: "Change the password of an account",
		Long:  `Change the password of an account. Every session of the account is revoked.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			current, err := deps.ReadPassword(cmd, "Current password: ")
			if err != nil {
				return err
			}
			next, err := promptNewPassword(cmd, deps)
			if err != nil {
				return err
			}
			return withUser(cmd, opts, deps, args[0], func(a *app, u *auth.UserView) error {
				if err := a.svc.ChangePassword(cmd.Context(), u.ID, current, next); err != nil {
					return err
				}
				cmd.Println("Password changed; sessions revoked")
				return nil
			})
		},
	}
}

func newUserEnableCmd(opts *rootOptions, deps *Deps, enabled bool) *cobra.Command {
	use, short, done := "enable USER", "Enable an account", "Account enabled"
	if !enabled {
		use, short, done = "disable USER", "Disable an account and revoke its sessions", "Account disabled; sessions revoked"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUser(cmd, opts, deps, args[0], func(a *app, u *auth.UserView) error {
				if err := a.svc.SetEnabled(cmd.Context(), u.ID, enabled); err != nil {
					return err
				}
				cmd.Println(done)
				return nil
			})
		},
	}
}

func newUserRolesCmd(opts *rootOptions, deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "roles USER ROLE...",
		Short: "Replace the roles of an account",
		Long: `Replace the roles of an account with ROLE... (` + auth.RoleUser + ` or ` + auth.RoleAdmin + `).
Every session of the account is revoked.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUser(cmd, opts, deps, args[0], func(a *app, u *auth.UserView) error {
				if err := a.svc.UpdateRoles(cmd.Context(), u.ID, args[1:]); err != nil {
					return err
				}
				updated, err := a.svc.GetUser(cmd.Context(), u.ID)
				if err != nil {
					return err
				}
				return renderUser(cmd, opts, updated)
			})
		},
	}
}

func newUserSessionsCmd(opts *rootOptions, deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "sessions USER",
		Short: "List the active sessions of an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUser(cmd, opts, deps, args[0], func(a *app, u *auth.UserView) error {
				tokens, err := a.svc.ListActiveSessions(cmd.Context(), u.ID)
				if err != nil {
					return err
				}
				views := newSessionViews(tokens)
				return render(cmd, opts.output, views, func(w io.Writer) error { return writeSessions(w, views) })
			})
		},
	}
}

func newUserRevokeCmd(opts *rootOptions, deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "revoke-sessions USER",
		Short: "Revoke every session of an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUser(cmd, opts, deps, args[0], func(a *app, u *auth.UserView) error {
				if err := a.svc.RevokeAllForUser(cmd.Context(), u.ID); err != nil {
					return err
				}
				cmd.Println("Sessions revoked")
				return nil
			})
		},
	}
}

func newUserDeleteCmd(opts *rootOptions, deps *Deps) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete USER",
		Short: "Delete an account and its sessions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return oops.Code("CONFIRMATION_REQUIRED").Errorf("refusing to delete %s without --yes", args[0])
			}
			return withUser(cmd, opts, deps, args[0], func(a *app, u *auth.UserView) error {
				if err := a.svc.DeleteUser(cmd.Context(), u.ID); err != nil {
					return err
				}
				cmd.Println("Account deleted")
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm deletion")
	return cmd
}
