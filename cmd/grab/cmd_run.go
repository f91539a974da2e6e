// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/invowk/grab/internal/issue"
	"github.com/invowk/grab/pkg/script"
)

func newRunCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <script> [args...]",
		Short: "Run a script after grabbing the dependencies it declares",
		Long: `Run a script after grabbing the dependencies it declares.

Lines of the form #@repository(...) and #@dependency(...) are removed from
the script body. Before the body runs, every repository is registered and
then every dependency is grabbed; the body does not run if any of them fails.
The script sees the local paths of its artifacts in $GRAB_PATH.

Shell scripts (.sh, .bash) run in an embedded POSIX shell and Go programs
(.go) in an embedded Go interpreter.`,
		Example: `  grab run deploy.sh production
  grab run --no-download report.go`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.fail(cmd, runScript(cmd.Context(), app, args[0], args[1:]))
		},
	}
	// everything after the script path belongs to the script
	cmd.Flags().SetInterspersed(false)
	return cmd
}

func runScript(ctx context.Context, app *App, path string, args []string) error {
	s, err := app.open(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	prepared, err := s.host.PrepareFile(path, args, s.directives)
	if err != nil {
		return issue.NewErrorContext().
			WithOperation("prepare script").
			WithResource(path).
			WithSuggestion("Check that the script exists and is readable").
			Wrap(err).
			BuildError()
	}

	return s.host.Run(ctx, prepared, script.RunOptions{
		IO: script.IO{
			Stdin:  os.Stdin,
			Stdout: app.stdout,
			Stderr: app.stderr,
		},
		Env: os.Environ(),
	})
}
