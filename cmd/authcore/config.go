// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"os"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/authcore/internal/config"
)

// NewConfigCmd creates the config subcommand.
func NewConfigCmd(opts *rootOptions, deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the configuration",
	}

	schema := &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON Schema of the config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := config.GenerateSchema()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(append(data, '\n'))
			return err
		},
	}

	validate := &cobra.Command{
		Use:   "validate [FILE]",
		Short: "Validate a config file, or the effective configuration",
		Long: `With FILE, check FILE against the config schema only. Without FILE,
load the effective configuration (file, environment and flags) and check it.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				data, err := os.ReadFile(args[0])
				if err != nil {
					return oops.Code("CONFIG_FILE_NOT_FOUND").With("path", args[0]).Wrap(err)
				}
				if err := config.ValidateDocument(data); err != nil {
					return oops.With("path", args[0]).Wrap(err)
				}
				cmd.Println("Config file is valid")
				return nil
			}
			if _, err := loadConfig(cmd, opts, deps); err != nil {
				return err
			}
			cmd.Println("Configuration is valid")
			return nil
		},
	}

	cmd.AddCommand(schema, validate)
	return cmd
}
