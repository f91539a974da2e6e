// SPDX-License-Identifier: MPL-2.0

package engine

import (
	"context"
	"fmt"
	"slices"

	"github.com/invowk/grab/internal/dag"
	"github.com/invowk/grab/pkg/depspec"
	"github.com/invowk/grab/pkg/resolver"
)

// walk resolves one batch of dependencies and their transitive closure.
// The first version resolved for a module wins for the rest of the batch.
type walk struct {
	engine     *Engine
	info       *resolver.Diagnostics
	visited    map[string]resolved
	inProgress map[string]bool
	// graph has an edge from each dependency to the module requiring it.
	graph *dag.Graph[string]
}

func (e *Engine) newWalk(info *resolver.Diagnostics) *walk {
	return &walk{
		engine:     e,
		info:       info,
		visited:    make(map[string]resolved),
		inProgress: make(map[string]bool),
		graph:      dag.New[string](),
	}
}

// top resolves a top-level spec and returns it with its transitive
// dependencies, each dependency ahead of the modules requiring it.
func (w *walk) top(ctx context.Context, spec depspec.Spec) ([]resolved, error) {
	coords, err := spec.Coordinates()
	if err != nil {
		return nil, err
	}
	pol, err := policyOf(spec)
	if err != nil {
		return nil, err
	}
	var out []resolved
	if err := w.visit(ctx, coords, pol, nil, &out); err != nil {
		return nil, err
	}
	return w.order(out)
}

// order sorts results so dependencies come first. Unrelated modules keep
// the order they were first visited in.
func (w *walk) order(results []resolved) ([]resolved, error) {
	idx, err := w.graph.Index()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDependencyCycle, err)
	}
	slices.SortStableFunc(results, func(a, b resolved) int {
		return idx[a.coords.Key()] - idx[b.coords.Key()]
	})
	return results, nil
}

func (w *walk) visit(ctx context.Context, coords depspec.Coordinates, pol policy, chain []string, out *[]resolved) error {
	key := coords.Key()
	if w.inProgress[key] {
		return &CycleError{Chain: append(slices.Clone(chain), key)}
	}
	if prev, ok := w.visited[key]; ok {
		if prev.coords.Version != coords.Version && prev.requested != coords.Version {
			w.info.Warn("%s requested as %q, keeping %s", key, coords.Version, prev.coords.Version)
		}
		*out = append(*out, prev)
		return nil
	}

	w.inProgress[key] = true
	defer delete(w.inProgress, key)
	w.graph.AddNode(key)

	r, err := w.engine.fetch(ctx, coords, pol)
	if err != nil {
		return err
	}
	r.transitive = len(chain) > 0
	w.visited[key] = r
	*out = append(*out, r)
	w.info.Record(resolver.Selection{
		Coordinates: coords,
		Version:     r.coords.Version,
		Repository:  r.repository,
		URI:         resolver.FileArtifact(r.dir),
		Transitive:  r.transitive,
		Cached:      r.cached,
	})

	if !pol.transitive {
		return nil
	}
	manifest, err := readManifest(r.dir)
	if err != nil {
		return fmt.Errorf("dependencies of %s: %w", r.coords, err)
	}
	if manifest == nil {
		return nil
	}
	deps, err := manifest.Coordinates()
	if err != nil {
		return fmt.Errorf("dependencies of %s: %w", r.coords, err)
	}
	next := append(slices.Clone(chain), key)
	for _, d := range deps {
		w.graph.AddEdge(d.Key(), key)
		if err := w.visit(ctx, d, pol, next, out); err != nil {
			return err
		}
	}
	return nil
}
