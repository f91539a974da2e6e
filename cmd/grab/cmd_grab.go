// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/invowk/grab/internal/issue"
	"github.com/invowk/grab/pkg/argparse"
	"github.com/invowk/grab/pkg/depspec"
	"github.com/invowk/grab/pkg/resolver"
)

var (
	successIcon = SuccessStyle.Render("✓")
	warningIcon = WarningStyle.Render("!")
)

// batchFlags are shared by the commands that resolve dependencies.
type batchFlags struct {
	transitive bool
	conf       string
}

func (f *batchFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.transitive, "transitive", true, "also fetch the dependencies artifacts declare")
	cmd.Flags().StringVar(&f.conf, "conf", "", "configuration applied to dependencies that name none")
}

// options returns the batch options; keys are only set when they differ
// from the engine's defaults.
func (f *batchFlags) options() depspec.Spec {
	opts := depspec.Spec{}
	if !f.transitive {
		opts[depspec.KeyTransitive] = false
	}
	if f.conf != "" {
		opts[depspec.KeyConf] = f.conf
	}
	return opts
}

// parseDependencyArgs reads each argument as "group:module[:version[:conf]]"
// or as a directive argument list such as "(group='g', module='m')".
func parseDependencyArgs(args []string) ([]depspec.Spec, error) {
	specs := make([]depspec.Spec, 0, len(args))
	for _, arg := range args {
		var (
			spec depspec.Spec
			err  error
		)
		if strings.HasPrefix(strings.TrimSpace(arg), "(") {
			spec, err = argparse.ParseSpec(arg)
		} else {
			var coords depspec.Coordinates
			coords, err = depspec.ParseCoordinates(arg)
			spec = coords.Spec()
		}
		if err != nil {
			return nil, issue.WrapWithContext(err, "parse dependency", arg)
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func newGetCommand(app *App) *cobra.Command {
	var flags batchFlags
	cmd := &cobra.Command{
		Use:   "get <coordinates>...",
		Short: "Fetch artifacts and load them into the host context",
		Long: `Fetch artifacts and load them into the host context.

Each argument is either group:module[:version[:conf]] or a parenthesised
argument list as accepted by the #@dependency directive.`,
		Example: `  grab get org.example:lib:1.2.0
  grab get org.example:lib:^1.2 org.example:util
  grab get "(group='org.example', module='lib', transitive=false)"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.fail(cmd, runGet(cmd.Context(), app, args, flags.options()))
		},
	}
	flags.register(cmd)
	return cmd
}

func runGet(ctx context.Context, app *App, args []string, options depspec.Spec) error {
	specs, err := parseDependencyArgs(args)
	if err != nil {
		return err
	}
	s, err := app.open(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	if !s.service.Enabled() {
		fmt.Fprintf(app.stderr, "%s grabbing is disabled, nothing fetched\n", warningIcon)
		return nil
	}
	if err := s.service.GrabAll(ctx, options, specs...); err != nil {
		return err
	}
	s.warnIfUnavailable(app.stderr)

	loaded, err := s.service.ListDependencies(ctx, s.host.Context())
	if err != nil {
		return err
	}
	for _, spec := range loaded {
		coords, err := spec.Coordinates()
		if err != nil {
			return err
		}
		fmt.Fprintf(app.stdout, "%s %s\n", successIcon, CmdStyle.Render(coords.String()))
	}
	return nil
}

func newResolveCommand(app *App) *cobra.Command {
	var (
		flags    batchFlags
		withInfo bool
	)
	cmd := &cobra.Command{
		Use:   "resolve <coordinates>...",
		Short: "Fetch artifacts without loading them and print their locations",
		Example: `  grab resolve org.example:lib
  grab resolve --info org.example:lib:~1.2.0`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.fail(cmd, runResolve(cmd.Context(), app, args, flags.options(), withInfo))
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&withInfo, "info", false, "report the version and repository chosen for each artifact")
	return cmd
}

func runResolve(ctx context.Context, app *App, args []string, options depspec.Spec, withInfo bool) error {
	specs, err := parseDependencyArgs(args)
	if err != nil {
		return err
	}
	s, err := app.open(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	if !s.service.Enabled() {
		fmt.Fprintf(app.stderr, "%s grabbing is disabled, nothing resolved\n", warningIcon)
		return nil
	}
	var info *resolver.Diagnostics
	if withInfo {
		info = &resolver.Diagnostics{}
	}
	artifacts, err := s.service.ResolveWithInfo(ctx, options, info, specs...)
	if err != nil {
		return err
	}
	s.warnIfUnavailable(app.stderr)

	if withInfo {
		printDiagnostics(app.stdout, info)
		return nil
	}
	for _, a := range artifacts {
		if p, err := a.Path(); err == nil {
			fmt.Fprintln(app.stdout, p)
		} else {
			fmt.Fprintln(app.stdout, a)
		}
	}
	return nil
}

func printDiagnostics(w io.Writer, info *resolver.Diagnostics) {
	t := newTable("ARTIFACT", "REQUESTED", "REPOSITORY", "CACHED", "TRANSITIVE")
	for _, sel := range info.Selections() {
		t.Row(
			sel.Coordinates.WithVersion(sel.Version).String(),
			sel.Coordinates.Version,
			sel.Repository,
			strconv.FormatBool(sel.Cached),
			strconv.FormatBool(sel.Transitive),
		)
	}
	fmt.Fprintln(w, t.Render())
	for _, warning := range info.Warnings() {
		fmt.Fprintf(w, "%s %s\n", warningIcon, warning)
	}
}

func newListCommand(app *App) *cobra.Command {
	var with []string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the artifacts loaded into the host context",
		Long: `List the artifacts loaded into the host context during this run.

Each invocation starts with an empty context; use --with to grab artifacts
first and see what they pulled in.`,
		Example: `  grab list --with org.example:lib:1.2.0`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.fail(cmd, runList(cmd.Context(), app, with))
		},
	}
	cmd.Flags().StringArrayVar(&with, "with", nil, "grab these coordinates before listing (repeatable)")
	return cmd
}

func runList(ctx context.Context, app *App, with []string) error {
	specs, err := parseDependencyArgs(with)
	if err != nil {
		return err
	}
	s, err := app.open(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	if len(specs) > 0 {
		if err := s.service.GrabAll(ctx, nil, specs...); err != nil {
			return err
		}
	}
	loaded, err := s.service.ListDependencies(ctx, s.host.Context())
	if err != nil {
		return err
	}
	if len(loaded) == 0 {
		fmt.Fprintln(app.stdout, SubtitleStyle.Render("No artifacts loaded into "+s.host.Context().String()))
		return nil
	}

	t := newTable("GROUP", "MODULE", "VERSION")
	for _, spec := range loaded {
		coords, err := spec.Coordinates()
		if err != nil {
			return err
		}
		t.Row(coords.Group, coords.Module, coords.Version)
	}
	fmt.Fprintln(app.stdout, t.Render())
	return nil
}
