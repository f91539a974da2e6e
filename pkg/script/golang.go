// SPDX-License-Identifier: MPL-2.0

package script

import (
	"context"
	"fmt"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

// GoEngine interprets Go source with yaegi. The body must be a main package;
// its main function runs. The interpreter sees only the standard library and
// the environment passed in RunOptions.
type GoEngine struct{}

func (GoEngine) Language() string     { return "go" }
func (GoEngine) Extensions() []string { return []string{".go"} }

func (GoEngine) Run(ctx context.Context, p *Prepared, opts RunOptions) error {
	i := interp.New(interp.Options{
		Stdin:  opts.Stdin,
		Stdout: opts.Stdout,
		Stderr: opts.Stderr,
		Args:   append([]string{p.Info.Path}, p.Info.Args...),
		Env:    opts.Env,
	})
	if err := i.Use(stdlib.Symbols); err != nil {
		return fmt.Errorf("failed to load interpreter symbols: %w", err)
	}
	if _, err := i.EvalWithContext(ctx, p.Body); err != nil {
		return fmt.Errorf("interpret %s: %w", p.Info.Path, err)
	}
	return nil
}
