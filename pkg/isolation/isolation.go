// SPDX-License-Identifier: MPL-2.0

// Package isolation models the loading boundaries a host process keeps for
// code fetched at run time, and selects the boundary a grab may safely load
// artifacts into.
package isolation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/invowk/grab/pkg/depspec"
)

// ErrNoSuitableContext is returned when no plain context exists on the
// requested context's ancestor chain.
var ErrNoSuitableContext = errors.New("no suitable isolation context")

type (
	// Context is a loading boundary owned by the host. Plain contexts are
	// unmodified defaults that artifacts can be shared through; specialized
	// contexts (filtering, sandboxed, script-private) are not.
	//
	// A typed nil Context is treated as absent. Parent chains must end at a
	// root; a chain that revisits a context is cut at the repeat.
	Context interface {
		Name() string
		// Parent returns the enclosing context, or nil at the root.
		Parent() Context
		Plain() bool
		// Load makes artifacts visible in this context and its descendants.
		Load(artifacts ...string) error
		// Artifacts returns the artifacts loaded directly into this context.
		Artifacts() []string
	}

	// Owner is implemented by values that know which context loaded them.
	// A spec's refObject is consulted through this interface.
	Owner interface {
		IsolationContext() Context
	}

	// SelectionError reports a failed selection.
	SelectionError struct {
		// Chain lists the context names walked, innermost first.
		Chain []string
		// Cyclic is set when the walk stopped at a context seen before.
		Cyclic bool
	}
)

func (e *SelectionError) Error() string {
	if len(e.Chain) == 0 {
		return "no suitable isolation context: none requested and no default configured"
	}
	if e.Cyclic {
		return fmt.Sprintf("no suitable isolation context: parent chain %s loops", strings.Join(e.Chain, " -> "))
	}
	return fmt.Sprintf("no suitable isolation context: walked %s", strings.Join(e.Chain, " -> "))
}

// Unwrap returns ErrNoSuitableContext for errors.Is() compatibility.
func (e *SelectionError) Unwrap() error { return ErrNoSuitableContext }

// Select returns the nearest plain context at or above requested. When
// requested is nil the fallback is used instead. Selection on a plain
// context returns it unchanged.
func Select(requested, fallback Context) (Context, error) {
	start := requested
	if isNil(start) {
		start = fallback
	}
	var (
		chain    []string
		selected Context
	)
	cyclic := walk(start, func(c Context) bool {
		if c.Plain() {
			selected = c
			return false
		}
		chain = append(chain, c.Name())
		return true
	})
	if selected == nil {
		return nil, &SelectionError{Chain: chain, Cyclic: cyclic}
	}
	return selected, nil
}

// SelectFor selects the context for spec. The spec's classLoader (or its
// "context" alias) wins; otherwise the context owning refObject; otherwise
// fallback.
func SelectFor(spec depspec.Spec, fallback Context) (Context, error) {
	requested, err := Requested(spec)
	if err != nil {
		return nil, err
	}
	return Select(requested, fallback)
}

// Requested returns the context a spec explicitly asks for, or nil.
func Requested(spec depspec.Spec) (Context, error) {
	v, ok, err := spec.Lookup(depspec.KeyClassLoader)
	if err != nil {
		return nil, err
	}
	if ok && v != nil {
		c, isCtx := v.(Context)
		if !isCtx {
			return nil, &depspec.InvalidSpecError{
				Field:  depspec.KeyClassLoader,
				Reason: fmt.Sprintf("must be an isolation context, got %T", v),
			}
		}
		return c, nil
	}
	if ref, ok := spec[depspec.KeyRefObject]; ok && ref != nil {
		owner, isOwner := ref.(Owner)
		if !isOwner {
			return nil, &depspec.InvalidSpecError{
				Field:  depspec.KeyRefObject,
				Reason: fmt.Sprintf("%T does not report its isolation context", ref),
			}
		}
		return owner.IsolationContext(), nil
	}
	return nil, nil
}

// Visible returns every artifact visible from c: ancestors' artifacts first,
// then c's own, without duplicates.
func Visible(c Context) []string {
	var chain []Context
	walk(c, func(cur Context) bool {
		chain = append(chain, cur)
		return true
	})
	seen := make(map[string]bool)
	var out []string
	for i := len(chain) - 1; i >= 0; i-- {
		for _, a := range chain[i].Artifacts() {
			if !seen[a] {
				seen[a] = true
				out = append(out, a)
			}
		}
	}
	return out
}

// Path renders the ancestry of c, root first ("system/host/script:x").
func Path(c Context) string {
	var names []string
	walk(c, func(cur Context) bool {
		names = append(names, cur.Name())
		return true
	})
	for i, j := 0, len(names)-1; i < j; i, j = i+1, j-1 {
		names[i], names[j] = names[j], names[i]
	}
	return strings.Join(names, "/")
}

// walk calls fn on c and then on each ancestor until fn returns false or
// the root is passed. It reports whether it stopped at a repeated context.
// Contexts whose dynamic type is not comparable cannot be tracked.
func walk(c Context, fn func(Context) bool) (cyclic bool) {
	seen := make(map[Context]bool)
	for cur := c; !isNil(cur); cur = cur.Parent() {
		if reflect.TypeOf(cur).Comparable() {
			if seen[cur] {
				return true
			}
			seen[cur] = true
		}
		if !fn(cur) {
			return false
		}
	}
	return false
}

// isNil also catches typed nil values stored in the interface.
func isNil(c Context) bool {
	if c == nil {
		return true
	}
	switch v := reflect.ValueOf(c); v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return v.IsNil()
	}
	return false
}
