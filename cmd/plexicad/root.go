package main

import (
	"github.com/spf13/cobra"
)

type rootFlags struct {
	settingsPath string
	verbose      bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:           "plexicad",
		Short:         "Plexica coordinates plugin lifecycles across tenants",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.PersistentFlags().StringVarP(&flags.settingsPath, "settings", "s", "", "Path to settings file (defaults apply when omitted)")
	cmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "Enable verbose logging")

	cmd.AddCommand(newMigrateCmd(flags))
	cmd.AddCommand(newRegisterCmd(flags))
	cmd.AddCommand(newInstallCmd(flags))
	cmd.AddCommand(newActivateCmd(flags))
	cmd.AddCommand(newDeactivateCmd(flags))
	cmd.AddCommand(newUninstallCmd(flags))
	cmd.AddCommand(newVersionCmd())

	return cmd
}
