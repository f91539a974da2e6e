// SPDX-License-Identifier: MPL-2.0

package script

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
)

// ShellEngine runs POSIX shell scripts with the mvdan/sh interpreter.
type ShellEngine struct{}

func (ShellEngine) Language() string     { return "shell" }
func (ShellEngine) Extensions() []string { return []string{".sh", ".bash"} }

func (ShellEngine) Run(ctx context.Context, p *Prepared, opts RunOptions) error {
	prog, err := syntax.NewParser().Parse(strings.NewReader(p.Body), p.Info.Path)
	if err != nil {
		return fmt.Errorf("failed to parse script: %w", err)
	}

	runnerOpts := []interp.RunnerOption{
		interp.Env(expand.ListEnviron(opts.Env...)),
		interp.StdIO(opts.Stdin, opts.Stdout, opts.Stderr),
	}
	if opts.Dir != "" {
		runnerOpts = append(runnerOpts, interp.Dir(opts.Dir))
	}
	// "--" keeps arguments like "-v" from being read as shell options.
	if len(p.Info.Args) > 0 {
		runnerOpts = append(runnerOpts, interp.Params(append([]string{"--"}, p.Info.Args...)...))
	}

	runner, err := interp.New(runnerOpts...)
	if err != nil {
		return fmt.Errorf("failed to create interpreter: %w", err)
	}

	if err := runner.Run(ctx, prog); err != nil {
		var status interp.ExitStatus
		if errors.As(err, &status) {
			return &ExitError{Path: p.Info.Path, Code: int(status)}
		}
		return fmt.Errorf("script execution failed: %w", err)
	}
	return nil
}
