// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/invowk/grab/internal/config"
)

// newConfigCommand creates the `grab config` command tree.
func newConfigCommand(app *App) *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage grab configuration",
		Long: `Manage grab configuration.

Configuration is stored in:
  - Linux: ~/.config/grab/config.cue
  - macOS: ~/Library/Application Support/grab/config.cue
  - Windows: %APPDATA%\grab\config.cue

Every setting can be overridden with a GRAB_ environment variable, for
example GRAB_AUTO_DOWNLOAD=false.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.fail(cmd, showConfig(cmd.Context(), app))
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.fail(cmd, initConfig(app))
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.fail(cmd, showConfigPath(app))
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "dump",
		Short: "Output the effective configuration as CUE",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.loadConfig(cmd.Context())
			if err != nil {
				return app.fail(cmd, err)
			}
			fmt.Fprint(app.stdout, config.GenerateCUE(cfg))
			return nil
		},
	})

	return cfgCmd
}

func showConfig(ctx context.Context, app *App) error {
	cfg, err := app.loadConfig(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintln(app.stdout, TitleStyle.Render("Configuration"))
	if app.flags.configPath != "" {
		fmt.Fprintln(app.stdout, SubtitleStyle.Render("file: "+app.flags.configPath))
	} else if path, err := config.ConfigFilePath(); err == nil {
		fmt.Fprintln(app.stdout, SubtitleStyle.Render("default file: "+path))
	}
	fmt.Fprintln(app.stdout)

	enc := yaml.NewEncoder(app.stdout)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("failed to render configuration: %w", err)
	}
	return enc.Close()
}

func initConfig(app *App) error {
	path, err := config.CreateDefaultConfig()
	if err != nil {
		return fmt.Errorf("failed to create config: %w", err)
	}
	fmt.Fprintf(app.stdout, "%s Configuration file: %s\n", successIcon, CmdStyle.Render(path))
	return nil
}

func showConfigPath(app *App) error {
	if app.flags.configPath != "" {
		fmt.Fprintln(app.stdout, app.flags.configPath)
		return nil
	}
	path, err := config.ConfigFilePath()
	if err != nil {
		return err
	}
	fmt.Fprintln(app.stdout, path)
	return nil
}
