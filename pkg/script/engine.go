// SPDX-License-Identifier: MPL-2.0

package script

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// ErrScriptFailed is the sentinel wrapped by ExitError.
var ErrScriptFailed = errors.New("script failed")

type (
	// IO holds the standard streams of a script.
	IO struct {
		Stdin  io.Reader
		Stdout io.Writer
		Stderr io.Writer
	}

	// RunOptions configure one script run.
	RunOptions struct {
		IO
		// Env is the environment in KEY=value form.
		Env []string
		Dir string
	}

	// Engine runs a prepared script body.
	Engine interface {
		// Language names the engine, for example "shell".
		Language() string
		// Extensions lists the file extensions the engine claims, with dot.
		Extensions() []string
		Run(ctx context.Context, p *Prepared, opts RunOptions) error
	}

	// ExitError reports a script that exited with a non-zero status.
	ExitError struct {
		Path string
		Code int
	}
)

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s exited with status %d", e.Path, e.Code)
}

// Unwrap returns ErrScriptFailed for errors.Is() compatibility.
func (e *ExitError) Unwrap() error { return ErrScriptFailed }
