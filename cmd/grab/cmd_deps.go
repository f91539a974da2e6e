// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

// errUnknownFormat is returned for an unsupported --format value.
var errUnknownFormat = errors.New("unknown output format")

func newDepsCommand(app *App) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "deps",
		Short: "List every artifact version grabbed so far",
		Long: `List every artifact version grabbed so far, across runs, grouped by
resolution engine and module.`,
		Example: `  grab deps
  grab deps --format yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.fail(cmd, runDeps(cmd.Context(), app, format))
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", formatTable, "output format: table, json or yaml")
	return cmd
}

func runDeps(ctx context.Context, app *App, format string) error {
	switch format {
	case formatTable, formatJSON, formatYAML:
	default:
		return fmt.Errorf("%w %q (want table, json or yaml)", errUnknownFormat, format)
	}

	s, err := app.open(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	deps, err := s.service.Dependencies(ctx)
	if err != nil {
		return err
	}
	return writeDependencies(app.stdout, format, deps)
}

// writeDependencies renders {engine: {"group:module": versions}} in format.
func writeDependencies(w io.Writer, format string, deps map[string]map[string][]string) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(deps)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(deps); err != nil {
			return err
		}
		return enc.Close()
	}

	rows := 0
	t := newTable("ENGINE", "MODULE", "VERSIONS")
	for _, engineName := range slices.Sorted(maps.Keys(deps)) {
		modules := deps[engineName]
		for _, module := range slices.Sorted(maps.Keys(modules)) {
			t.Row(engineName, module, strings.Join(modules[module], ", "))
			rows++
		}
	}
	if rows == 0 {
		fmt.Fprintln(w, SubtitleStyle.Render("Nothing grabbed yet"))
		return nil
	}
	fmt.Fprintln(w, t.Render())
	return nil
}
