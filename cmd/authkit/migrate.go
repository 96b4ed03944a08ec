package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newMigrateCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back the postgres schema",
	}
	cmd.AddCommand(newMigrateStepCmd(g, "up", "Create the authkit tables"))
	cmd.AddCommand(newMigrateStepCmd(g, "down", "Drop the authkit tables"))
	return cmd
}

func newMigrateStepCmd(g *globalFlags, direction, short string) *cobra.Command {
	return &cobra.Command{
		Use:   direction,
		Short: short,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadConfig(g)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			store, err := openPostgres(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			var applied []string
			if direction == "up" {
				applied, err = store.Migrate(cmd.Context())
			} else {
				applied, err = store.MigrateDown(cmd.Context())
			}
			if err != nil {
				return err
			}
			for _, name := range applied {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}
