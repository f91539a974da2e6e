// SPDX-License-Identifier: MPL-2.0

package resolver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/invowk/grab/pkg/depspec"
	"github.com/invowk/grab/pkg/isolation"
)

// ErrEngineUnavailable wraps the error an EngineFactory failed with. The
// grab service treats it as "resolution unavailable" rather than a failure.
var ErrEngineUnavailable = errors.New("resolution engine unavailable")

type (
	// EngineFactory builds the engine on first use.
	EngineFactory func() (Engine, error)

	// Adapter gives the grab service a lazily built engine and binds
	// code-injecting grabs to a plain isolation context.
	Adapter struct {
		engine func() (Engine, error)
		logger *log.Logger
	}

	// AdapterOption configures an Adapter.
	AdapterOption func(*Adapter)
)

// WithAdapterLogger sets the logger construction failures are reported to.
func WithAdapterLogger(l *log.Logger) AdapterOption {
	return func(a *Adapter) {
		if l != nil {
			a.logger = l
		}
	}
}

// NewAdapter returns an adapter over factory. The factory runs at most once,
// on the first call that needs the engine; concurrent first callers wait for
// that single construction.
func NewAdapter(factory EngineFactory, opts ...AdapterOption) *Adapter {
	a := &Adapter{logger: log.New(io.Discard)}
	for _, opt := range opts {
		opt(a)
	}
	a.engine = sync.OnceValues(func() (Engine, error) {
		if factory == nil {
			return nil, fmt.Errorf("%w: no engine factory configured", ErrEngineUnavailable)
		}
		e, err := factory()
		if err != nil {
			a.logger.Warn("dependency resolution disabled", "err", err)
			return nil, fmt.Errorf("%w: %w", ErrEngineUnavailable, err)
		}
		if e == nil {
			return nil, fmt.Errorf("%w: factory returned no engine", ErrEngineUnavailable)
		}
		a.logger.Debug("resolution engine ready", "engine", e.Name())
		return e, nil
	})
	return a
}

// Engine returns the shared engine, building it on first use.
func (a *Adapter) Engine() (Engine, error) {
	return a.engine()
}

// Prepare returns a normalized copy of spec carrying every key of defaults it
// does not set itself, synonyms included. spec is not modified.
func (a *Adapter) Prepare(spec, defaults depspec.Spec) (depspec.Spec, error) {
	out, err := spec.Normalize()
	if err != nil {
		return nil, err
	}
	out.Merge(defaults)
	return out, nil
}

// Grab binds spec to a plain context (fallback when spec names none) and
// grabs it.
func (a *Adapter) Grab(ctx context.Context, spec depspec.Spec, fallback isolation.Context) error {
	e, err := a.Engine()
	if err != nil {
		return err
	}
	bound, err := bind(spec, fallback)
	if err != nil {
		return err
	}
	return e.Grab(ctx, bound)
}

// GrabAll grabs deps. The options' context (fallback when options name none)
// is only a default: dependencies naming their own context are bound
// individually, and the batch fails only when a dependency has no context of
// its own and none can be inherited.
func (a *Adapter) GrabAll(ctx context.Context, options depspec.Spec, fallback isolation.Context, deps ...depspec.Spec) error {
	e, err := a.Engine()
	if err != nil {
		return err
	}
	boundOpts, optsErr := bind(options, fallback)
	if optsErr != nil {
		if !errors.Is(optsErr, isolation.ErrNoSuitableContext) {
			return optsErr
		}
		boundOpts = unbound(options)
	}
	boundDeps := make([]depspec.Spec, len(deps))
	for i, dep := range deps {
		if !dep.Has(depspec.KeyClassLoader) && dep[depspec.KeyRefObject] == nil {
			if optsErr != nil {
				return fmt.Errorf("grab %v: %w", dep, optsErr)
			}
			boundDeps[i] = dep.Clone()
			continue
		}
		if boundDeps[i], err = bind(dep, nil); err != nil {
			return err
		}
	}
	return e.GrabAll(ctx, boundOpts, boundDeps...)
}

func (a *Adapter) Resolve(ctx context.Context, options depspec.Spec, info *Diagnostics, deps ...depspec.Spec) ([]Artifact, error) {
	e, err := a.Engine()
	if err != nil {
		return nil, err
	}
	return e.Resolve(ctx, options, info, deps...)
}

func (a *Adapter) ListDependencies(ctx context.Context, target isolation.Context) ([]depspec.Spec, error) {
	e, err := a.Engine()
	if err != nil {
		return nil, err
	}
	return e.ListDependencies(ctx, target)
}

func (a *Adapter) AddResolver(ctx context.Context, spec depspec.Spec) error {
	e, err := a.Engine()
	if err != nil {
		return err
	}
	return e.AddResolver(ctx, spec)
}

func (a *Adapter) Enumerate(ctx context.Context) (map[string]map[string][]string, error) {
	e, err := a.Engine()
	if err != nil {
		return nil, err
	}
	return e.Enumerate(ctx)
}

// bind returns a copy of spec whose classLoader is the selected plain
// context. The context alias, refObject and calleeDepth are dropped.
func bind(spec depspec.Spec, fallback isolation.Context) (depspec.Spec, error) {
	target, err := isolation.SelectFor(spec, fallback)
	if err != nil {
		return nil, err
	}
	out := unbound(spec)
	out[depspec.KeyClassLoader] = target
	return out, nil
}

func unbound(spec depspec.Spec) depspec.Spec {
	out := spec.Clone()
	delete(out, depspec.KeyClassLoader)
	delete(out, depspec.KeyContext)
	delete(out, depspec.KeyRefObject)
	delete(out, depspec.KeyCalleeDepth)
	return out
}
