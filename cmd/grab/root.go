// SPDX-License-Identifier: MPL-2.0

// Package cmd contains the grab CLI.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"
)

// NewRootCommand builds the command tree around app.
func NewRootCommand(app *App) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "grab",
		Short: "Fetch versioned artifacts and run scripts that declare them",
		Long: TitleStyle.Render("grab") + SubtitleStyle.Render(" - fetch versioned artifacts on demand") + `

grab resolves artifacts by group:module:version coordinates from git and
directory repositories, caches them, and loads them into an isolation
context. Scripts declare what they need in comment directives:

  #@repository(name='corp', root='https://git.example.com')
  #@dependency('org.example:lib:^1.2')

` + SubtitleStyle.Render("Examples:") + `
  grab get org.example:lib:1.2.0     Fetch and load an artifact
  grab resolve org.example:lib       Print where the newest version lives
  grab run deploy.sh prod            Run a script after grabbing its dependencies
  grab deps                          List everything grabbed so far`,
		SilenceUsage: true,
	}
	rootCmd.SetOut(app.stdout)
	rootCmd.SetErr(app.stderr)

	flags := rootCmd.PersistentFlags()
	flags.BoolVarP(&app.flags.verbose, "verbose", "v", false, "enable verbose output")
	flags.StringVar(&app.flags.configPath, "config", "", "config file (default is $XDG_CONFIG_HOME/grab/config.cue)")
	flags.BoolVar(&app.flags.noDownload, "no-download", false, "serve artifacts from the cache only")
	flags.BoolVar(&app.flags.disableChecksums, "disable-checksums", false, "skip lock file checksum verification")
	flags.BoolVar(&app.flags.disabled, "disabled", false, "turn dependency acquisition off")
	flags.StringArrayVar(&app.flags.repos, "repo", nil, "additional repository as name=root (repeatable)")

	rootCmd.AddCommand(
		newGetCommand(app),
		newResolveCommand(app),
		newDepsCommand(app),
		newListCommand(app),
		newRunCommand(app),
		newReposCommand(app),
		newConfigCommand(app),
		newSpecCommand(app),
	)
	return rootCmd
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// Execute runs the CLI. It is called by main.main().
func Execute() {
	app := NewApp(Dependencies{})
	if err := fang.Execute(
		context.Background(),
		NewRootCommand(app),
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
}
