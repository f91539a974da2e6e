// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newReposCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "repos",
		Short: "List the repositories consulted, in order",
		Long: `List the repositories consulted, in order.

Repositories given with --repo come first (the last one given wins), then
those from the config file, then the built-in defaults. A name shadows any
later repository with the same name.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.fail(cmd, runRepos(cmd.Context(), app))
		},
	}
}

func runRepos(ctx context.Context, app *App) error {
	s, err := app.open(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	e, err := s.Engine()
	if err != nil {
		return err
	}
	t := newTable("#", "NAME", "TYPE", "ROOT")
	for i, r := range e.Repositories() {
		t.Row(strconv.Itoa(i+1), r.Name, string(r.Kind), r.Root)
	}
	fmt.Fprintln(app.stdout, t.Render())
	fmt.Fprintln(app.stdout, SubtitleStyle.Render("cache: "+e.CacheDir()))
	return nil
}
