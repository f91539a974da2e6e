// SPDX-License-Identifier: MPL-2.0

// Package resolvertest provides an in-memory resolver.Engine that records the
// calls it receives.
package resolvertest

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/invowk/grab/pkg/depspec"
	"github.com/invowk/grab/pkg/isolation"
	"github.com/invowk/grab/pkg/resolver"
)

type (
	// Call is one recorded engine invocation.
	Call struct {
		Op      string
		Options depspec.Spec
		Specs   []depspec.Spec
	}

	// Engine records calls and loads "file:///<group>/<module>/<version>"
	// into the bound context on Grab.
	Engine struct {
		// Err, when set, is returned by every operation.
		Err error

		mu     sync.Mutex
		calls  []Call
		loaded map[isolation.Context][]depspec.Spec
		repos  []depspec.Spec
	}
)

var _ resolver.Engine = (*Engine)(nil)

// New returns an empty recording engine.
func New() *Engine {
	return &Engine{loaded: make(map[isolation.Context][]depspec.Spec)}
}

func (e *Engine) Name() string { return "fake" }

func (e *Engine) Grab(_ context.Context, spec depspec.Spec) error {
	e.record("grab", nil, spec)
	if e.Err != nil {
		return e.Err
	}
	return e.load(spec, nil)
}

func (e *Engine) GrabAll(_ context.Context, options depspec.Spec, deps ...depspec.Spec) error {
	e.record("grabAll", options, deps...)
	if e.Err != nil {
		return e.Err
	}
	for _, d := range deps {
		if err := e.load(d, options); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) Resolve(_ context.Context, options depspec.Spec, info *resolver.Diagnostics, deps ...depspec.Spec) ([]resolver.Artifact, error) {
	e.record("resolve", options, deps...)
	if e.Err != nil {
		return nil, e.Err
	}
	out := make([]resolver.Artifact, 0, len(deps))
	for _, d := range deps {
		c, err := d.Coordinates()
		if err != nil {
			return nil, err
		}
		uri := artifactFor(c)
		info.Record(resolver.Selection{Coordinates: c, Version: c.Version, Repository: "fake", URI: uri})
		out = append(out, uri)
	}
	return out, nil
}

func (e *Engine) ListDependencies(_ context.Context, target isolation.Context) ([]depspec.Spec, error) {
	e.record("listDependencies", nil)
	if e.Err != nil {
		return nil, e.Err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.loaded[target]), nil
}

func (e *Engine) AddResolver(_ context.Context, spec depspec.Spec) error {
	e.record("addResolver", nil, spec)
	if e.Err != nil {
		return e.Err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.repos = append(e.repos, spec.Clone())
	return nil
}

func (e *Engine) Enumerate(_ context.Context) (map[string]map[string][]string, error) {
	e.record("enumerate", nil)
	if e.Err != nil {
		return nil, e.Err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	modules := make(map[string][]string)
	for _, specs := range e.loaded {
		for _, s := range specs {
			c, _ := s.Coordinates() //nolint:errcheck // only valid specs are stored
			if !slices.Contains(modules[c.Key()], c.Version) {
				modules[c.Key()] = append(modules[c.Key()], c.Version)
			}
		}
	}
	return map[string]map[string][]string{e.Name(): modules}, nil
}

// Calls returns a copy of every recorded call.
func (e *Engine) Calls() []Call {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.calls)
}

// Ops returns the operation names in call order.
func (e *Engine) Ops() []string {
	var ops []string
	for _, c := range e.Calls() {
		ops = append(ops, c.Op)
	}
	return ops
}

// Repositories returns the specs passed to AddResolver.
func (e *Engine) Repositories() []depspec.Spec {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.repos)
}

func (e *Engine) record(op string, options depspec.Spec, specs ...depspec.Spec) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c := Call{Op: op}
	if options != nil {
		c.Options = maps.Clone(options)
	}
	for _, s := range specs {
		c.Specs = append(c.Specs, maps.Clone(s))
	}
	e.calls = append(e.calls, c)
}

func (e *Engine) load(spec, options depspec.Spec) error {
	merged := spec.Clone()
	merged.Merge(options)
	target, err := isolation.Requested(merged)
	if err != nil {
		return err
	}
	if target == nil {
		return isolation.ErrNoSuitableContext
	}
	c, err := merged.Coordinates()
	if err != nil {
		return err
	}
	if err := target.Load(artifactFor(c).String()); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.loaded[target] = append(e.loaded[target], c.Spec())
	return nil
}

func artifactFor(c depspec.Coordinates) resolver.Artifact {
	return resolver.Artifact("file:///" + c.Group + "/" + c.Module + "/" + c.Version)
}
