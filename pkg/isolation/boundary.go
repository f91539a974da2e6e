// SPDX-License-Identifier: MPL-2.0

package isolation

import (
	"errors"
	"slices"
	"sync"
)

// ErrEmptyArtifact is returned by Load for an empty artifact location.
var ErrEmptyArtifact = errors.New("empty artifact location")

// Boundary is the host-side Context implementation.
type Boundary struct {
	name   string
	parent Context
	plain  bool

	mu        sync.Mutex
	artifacts []string
}

// NewRoot creates a plain root context.
func NewRoot(name string) *Boundary {
	return &Boundary{name: name, plain: true}
}

// NewBoundary creates a context below parent. A nil parent makes a root.
func NewBoundary(name string, parent Context, plain bool) *Boundary {
	return &Boundary{name: name, parent: parent, plain: plain}
}

// NewChild creates a context below b. Specialized children are skipped by
// Select.
func (b *Boundary) NewChild(name string, specialized bool) *Boundary {
	return NewBoundary(name, b, !specialized)
}

func (b *Boundary) Name() string { return b.name }

func (b *Boundary) Parent() Context { return b.parent }

func (b *Boundary) Plain() bool { return b.plain }

// Load appends artifacts not already loaded here, keeping load order.
func (b *Boundary) Load(artifacts ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, a := range artifacts {
		if a == "" {
			return ErrEmptyArtifact
		}
		if !slices.Contains(b.artifacts, a) {
			b.artifacts = append(b.artifacts, a)
		}
	}
	return nil
}

func (b *Boundary) Artifacts() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.artifacts)
}

// IsolationContext lets a Boundary serve as its own refObject.
func (b *Boundary) IsolationContext() Context { return b }

func (b *Boundary) String() string { return Path(b) }
