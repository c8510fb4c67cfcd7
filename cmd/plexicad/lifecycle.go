package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

type tenantPluginOptions struct {
	tenantID string
	pluginID string
}

func addTenantPluginFlags(cmd *cobra.Command, opts *tenantPluginOptions) {
	cmd.Flags().StringVarP(&opts.tenantID, "tenant", "t", "", "Tenant identifier")
	cmd.MarkFlagRequired("tenant") //nolint:errcheck
	cmd.Flags().StringVarP(&opts.pluginID, "plugin", "p", "", "Plugin identifier")
	cmd.MarkFlagRequired("plugin") //nolint:errcheck
}

func newInstallCmd(flags *rootFlags) *cobra.Command {
	opts := tenantPluginOptions{}
	var configPath string

	cmd := &cobra.Command{
		Use:   "install",
		Short: "Install a published plugin for a tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildAppContext(flags)
			if err != nil {
				return err
			}

			var config map[string]any
			if configPath != "" {
				data, err := os.ReadFile(configPath)
				if err != nil {
					return err
				}
				if err := yaml.Unmarshal(data, &config); err != nil {
					return fmt.Errorf("failed to parse configuration file: %w", err)
				}
			}

			installation, err := app.coord.Install(cmd.Context(), opts.tenantID, opts.pluginID, config)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "installed %s for tenant %s (installation %s)\n", opts.pluginID, opts.tenantID, installation.ID)
			return nil
		},
	}

	addTenantPluginFlags(cmd, &opts)
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to a YAML file of configuration overrides")

	return cmd
}

func newActivateCmd(flags *rootFlags) *cobra.Command {
	opts := tenantPluginOptions{}

	cmd := &cobra.Command{
		Use:   "activate",
		Short: "Activate an installed plugin for a tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildAppContext(flags)
			if err != nil {
				return err
			}
			if err := app.coord.Activate(cmd.Context(), opts.tenantID, opts.pluginID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "activated %s for tenant %s\n", opts.pluginID, opts.tenantID)
			return nil
		},
	}

	addTenantPluginFlags(cmd, &opts)

	return cmd
}

func newDeactivateCmd(flags *rootFlags) *cobra.Command {
	opts := tenantPluginOptions{}

	cmd := &cobra.Command{
		Use:   "deactivate",
		Short: "Deactivate a plugin for a tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildAppContext(flags)
			if err != nil {
				return err
			}
			if err := app.coord.Deactivate(cmd.Context(), opts.tenantID, opts.pluginID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deactivated %s for tenant %s\n", opts.pluginID, opts.tenantID)
			return nil
		},
	}

	addTenantPluginFlags(cmd, &opts)

	return cmd
}

func newUninstallCmd(flags *rootFlags) *cobra.Command {
	opts := tenantPluginOptions{}

	cmd := &cobra.Command{
		Use:   "uninstall",
		Short: "Uninstall a plugin for a tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildAppContext(flags)
			if err != nil {
				return err
			}
			if err := app.coord.Uninstall(cmd.Context(), opts.tenantID, opts.pluginID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "uninstalled %s for tenant %s\n", opts.pluginID, opts.tenantID)
			return nil
		},
	}

	addTenantPluginFlags(cmd, &opts)

	return cmd
}
