// SPDX-License-Identifier: MPL-2.0

// Package script prepares and runs scripts that declare their own
// dependencies.
//
// Running a script has two phases. Prepare feeds every source line through
// the registered Processors, which may elide lines and queue pending actions
// on the script's Info. Host.Run then executes those actions exactly once and
// only afterwards runs the prepared body.
package script

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/invowk/grab/pkg/isolation"
)

// ErrAlreadyExecuted is returned when the pending actions of a script are
// executed a second time.
var ErrAlreadyExecuted = errors.New("pending actions already executed")

type (
	// Action is work that must finish before a script body runs.
	Action func(ctx context.Context) error

	// Info describes one script instance.
	Info struct {
		Path     string
		Language string
		Args     []string
		// Context is the isolation context the script runs in.
		Context isolation.Context

		mu       sync.Mutex
		actions  []Action
		executed bool
	}

	// ActionError reports the pending action that failed.
	ActionError struct {
		Path  string
		Index int
		Err   error
	}
)

func (e *ActionError) Error() string {
	return fmt.Sprintf("preparing %s: action %d failed: %v", e.Path, e.Index+1, e.Err)
}

func (e *ActionError) Unwrap() error { return e.Err }

// AddAction queues a to run before the script body.
func (i *Info) AddAction(a Action) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.actions = append(i.actions, a)
}

// Pending returns the number of queued actions.
func (i *Info) Pending() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.actions)
}

// Executed reports whether Execute has been called.
func (i *Info) Executed() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.executed
}

// Execute runs the queued actions in order and stops at the first failure.
// It may be called once; later calls return ErrAlreadyExecuted.
func (i *Info) Execute(ctx context.Context) error {
	i.mu.Lock()
	if i.executed {
		i.mu.Unlock()
		return ErrAlreadyExecuted
	}
	i.executed = true
	actions := i.actions
	i.actions = nil
	i.mu.Unlock()

	for idx, a := range actions {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := a(ctx); err != nil {
			return &ActionError{Path: i.Path, Index: idx, Err: err}
		}
	}
	return nil
}
