// SPDX-License-Identifier: MPL-2.0

// Package resolver defines the contract of a dependency resolution engine and
// the Adapter the grab service reaches it through. The Adapter builds the
// engine lazily, at most once, and picks the isolation context code-injecting
// grabs load into.
package resolver

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"slices"
	"sync"

	"github.com/invowk/grab/pkg/depspec"
	"github.com/invowk/grab/pkg/isolation"
)

type (
	// Artifact is the URI of a fetched artifact.
	Artifact string

	// Engine resolves and fetches artifacts. Implementations own version
	// selection, caching and transport.
	Engine interface {
		Name() string
		// Grab fetches one dependency and loads it into the context named by
		// the spec's classLoader key.
		Grab(ctx context.Context, spec depspec.Spec) error
		// GrabAll is the batch form of Grab. Keys of options apply to every
		// dependency that does not set them itself.
		GrabAll(ctx context.Context, options depspec.Spec, deps ...depspec.Spec) error
		// Resolve fetches without loading and returns artifact URIs. info may
		// be nil.
		Resolve(ctx context.Context, options depspec.Spec, info *Diagnostics, deps ...depspec.Spec) ([]Artifact, error)
		// ListDependencies returns the specs grabbed into target.
		ListDependencies(ctx context.Context, target isolation.Context) ([]depspec.Spec, error)
		// AddResolver registers an additional repository described by spec.
		AddResolver(ctx context.Context, spec depspec.Spec) error
		// Enumerate reports grabbed modules as {engine: {"group:module": versions}}.
		Enumerate(ctx context.Context) (map[string]map[string][]string, error)
	}

	// Selection records one resolved artifact.
	Selection struct {
		Coordinates depspec.Coordinates
		// Version is the concrete version chosen for Coordinates.Version.
		Version    string
		Repository string
		URI        Artifact
		// Transitive marks artifacts pulled in by another artifact.
		Transitive bool
		Cached     bool
	}

	// Diagnostics collects what a Resolve call did. The zero value is ready
	// to use and a nil *Diagnostics discards everything.
	Diagnostics struct {
		mu         sync.Mutex
		selections []Selection
		warnings   []string
	}
)

func (a Artifact) String() string { return string(a) }

// Path returns the local filesystem path of a file URI.
func (a Artifact) Path() (string, error) {
	u, err := url.Parse(string(a))
	if err != nil {
		return "", fmt.Errorf("invalid artifact URI %q: %w", a, err)
	}
	if u.Scheme != "file" {
		return "", fmt.Errorf("artifact %q is not a file URI", a)
	}
	return filepath.FromSlash(u.Path), nil
}

// FileArtifact builds the URI of a local path.
func FileArtifact(path string) Artifact {
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(path)}
	return Artifact(u.String())
}

// Record appends a selection.
func (d *Diagnostics) Record(s Selection) {
	if d == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.selections = append(d.selections, s)
}

// Warn appends a warning.
func (d *Diagnostics) Warn(format string, a ...any) {
	if d == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.warnings = append(d.warnings, fmt.Sprintf(format, a...))
}

func (d *Diagnostics) Selections() []Selection {
	if d == nil {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.selections)
}

func (d *Diagnostics) Warnings() []string {
	if d == nil {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.warnings)
}
