package main

import (
	"github.com/spf13/cobra"
)

func newMigrateCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the coordinator's own database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildAppContext(flags)
			if err != nil {
				return err
			}
			if err := app.store.AutoMigrate(); err != nil {
				return err
			}
			app.log.Info("database schema is up to date")
			return nil
		},
	}

	return cmd
}
