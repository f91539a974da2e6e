// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/invowk/grab/pkg/depspec"
)

func newSpecCommand(app *App) *cobra.Command {
	specCmd := &cobra.Command{
		Use:   "spec",
		Short: "Describe the dependency declaration format",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	specCmd.AddCommand(&cobra.Command{
		Use:   "schema",
		Short: "Print the JSON Schema of a dependency declaration",
		Long: `Print the JSON Schema of a dependency declaration.

The schema lists the canonical keys; the accepted synonyms of each key are
given in its description.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, err := depspec.JSONSchema()
			if err != nil {
				return app.fail(cmd, err)
			}
			fmt.Fprintln(app.stdout, string(schema))
			return nil
		},
	})

	return specCmd
}
