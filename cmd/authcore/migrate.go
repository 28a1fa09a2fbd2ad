// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/authcore/internal/config"
	"github.com/holomush/authcore/internal/store"
)

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd(opts *rootOptions, deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
		Long: `Apply or roll back the embedded schema migrations. The database is
read from the ` + config.EnvDatabaseURL + ` environment variable.`,
	}

	var upSteps int
	up := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, deps, func(m Migrator) error {
				if upSteps > 0 {
					return m.Steps(upSteps)
				}
				return m.Up()
			}, "Migrations applied")
		},
	}
	up.Flags().IntVar(&upSteps, "steps", 0, "apply at most this many migrations (0 = all)")

	var downSteps int
	var downAll bool
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Long:  `Roll back one migration, --steps migrations, or every migration with --all.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if downAll && cmd.Flags().Changed("steps") {
				return oops.Code("FLAGS_CONFLICT").Errorf("--all and --steps are mutually exclusive")
			}
			if downSteps < 1 {
				return oops.Code("INVALID_STEPS").Errorf("steps must be positive, got %d", downSteps)
			}
			return withMigrator(cmd, deps, func(m Migrator) error {
				if downAll {
					return m.Down()
				}
				return m.Steps(-downSteps)
			}, "Migrations rolled back")
		},
	}
	down.Flags().IntVar(&downSteps, "steps", 1, "number of migrations to roll back")
	down.Flags().BoolVar(&downAll, "all", false, "roll back every migration, dropping all data")

	status := &cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var st *store.MigrationStatus
			err := withMigrator(cmd, deps, func(m Migrator) error {
				var err error
				st, err = m.Status()
				return err
			}, "")
			if err != nil {
				return err
			}
			return render(cmd, opts.output, st, func(w io.Writer) error {
				return writeMigrationStatus(w, st)
			})
		},
	}

	force := &cobra.Command{
		Use:   "force VERSION",
		Short: "Set the schema version without running migrations",
		Long: `Record VERSION as the current schema version and clear the dirty flag.
Use only after repairing a failed migration by hand.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := strconv.Atoi(args[0])
			if err != nil {
				return oops.Code("INVALID_VERSION").With("version", args[0]).Wrap(err)
			}
			return withMigrator(cmd, deps, func(m Migrator) error {
				return m.Force(v)
			}, fmt.Sprintf("Schema version forced to %d", v))
		},
	}

	cmd.AddCommand(up, down, status, force)
	return cmd
}

// withMigrator opens a migrator, runs fn and prints done on success.
func withMigrator(cmd *cobra.Command, deps *Deps, fn func(Migrator) error, done string) error {
	databaseURL, ok := deps.LookupEnv(config.EnvDatabaseURL)
	if !ok || databaseURL == "" {
		return oops.Code("CONFIG_INVALID").Errorf("%s environment variable is required", config.EnvDatabaseURL)
	}

	m, err := deps.NewMigrator(databaseURL)
	if err != nil {
		return oops.Code("MIGRATOR_OPEN_FAILED").Wrap(err)
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil {
			cmd.PrintErrln("warning: closing migrator:", closeErr)
		}
	}()

	if err := fn(m); err != nil {
		return oops.Code("MIGRATION_FAILED").Wrap(err)
	}
	if done != "" {
		cmd.Println(done)
	}
	return nil
}

func writeMigrationStatus(w io.Writer, st *store.MigrationStatus) error {
	state := "clean"
	if st.Dirty {
		state = "dirty"
	}
	if err := writeFields(w, "version", strconv.FormatUint(uint64(st.Current), 10), "state", state); err != nil {
		return err
	}
	rows := make([][]string, 0, len(st.Applied)+len(st.Pending))
	for _, m := range st.Applied {
		rows = append(rows, []string{strconv.FormatUint(uint64(m.Version), 10), m.Name, "applied"})
	}
	for _, m := range st.Pending {
		rows = append(rows, []string{strconv.FormatUint(uint64(m.Version), 10), m.Name, "pending"})
	}
	return writeTable(w, []string{"VERSION", "NAME", "STATUS"}, rows)
}
