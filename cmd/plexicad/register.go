package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/plexica/plexica/internal/manifest"
)

type registerOptions struct {
	manifestPath string
	publish      bool
}

func newRegisterCmd(flags *rootFlags) *cobra.Command {
	opts := registerOptions{}

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a plugin from its manifest",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildAppContext(flags)
			if err != nil {
				return err
			}

			m, err := manifest.ParseFile(opts.manifestPath)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			plugin, err := app.coord.RegisterPlugin(ctx, m)
			if err != nil {
				return err
			}
			if opts.publish {
				if err := app.coord.PublishPlugin(ctx, plugin.ID); err != nil {
					return err
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "registered %s %s (published: %t)\n", plugin.ID, plugin.Version, opts.publish)
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.manifestPath, "manifest", "m", "", "Path to the plugin manifest")
	cmd.MarkFlagRequired("manifest") //nolint:errcheck
	cmd.Flags().BoolVar(&opts.publish, "publish", false, "Publish the plugin after registering it")

	return cmd
}
