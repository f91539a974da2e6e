// SPDX-License-Identifier: MPL-2.0

package isolation

import (
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/invowk/grab/pkg/depspec"
)

func TestSelect(t *testing.T) {
	t.Parallel()

	root := NewRoot("system")
	mid := root.NewChild("filter", true)
	leaf := mid.NewChild("script", true)
	plainChild := root.NewChild("app", false)
	orphan := NewBoundary("sandbox", nil, false)
	orphanLeaf := orphan.NewChild("inner", true)

	tests := []struct {
		name      string
		requested Context
		fallback  Context
		want      Context
		wantErr   bool
	}{
		{"plain context is returned unchanged", root, nil, root, false},
		{"plain child is returned unchanged", plainChild, root, plainChild, false},
		{"walks to the plain root", leaf, nil, root, false},
		{"walks one level", mid, nil, root, false},
		{"nil requested uses fallback", nil, leaf, root, false},
		{"no plain ancestor", orphanLeaf, root, nil, true},
		{"nothing at all", nil, nil, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Select(tt.requested, tt.fallback)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Select() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, ErrNoSuitableContext) {
					t.Errorf("errors.Is(err, ErrNoSuitableContext) = false for %v", err)
				}
				return
			}
			if got != tt.want {
				t.Errorf("Select() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSelectIdempotent(t *testing.T) {
	t.Parallel()

	leaf := NewRoot("system").NewChild("a", true).NewChild("b", true)
	first, err := Select(leaf, nil)
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	second, err := Select(first, nil)
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if first != second {
		t.Errorf("Select(Select(x)) = %v, want %v", second, first)
	}
}

func TestSelectionErrorMessage(t *testing.T) {
	t.Parallel()

	orphan := NewBoundary("sandbox", nil, false).NewChild("inner", true)
	_, err := Select(orphan, nil)

	var se *SelectionError
	if !errors.As(err, &se) {
		t.Fatalf("expected *SelectionError, got %T", err)
	}
	if !slices.Equal(se.Chain, []string{"inner", "sandbox"}) {
		t.Errorf("Chain = %v, want [inner sandbox]", se.Chain)
	}
	if !strings.Contains(err.Error(), "inner -> sandbox") {
		t.Errorf("Error() = %q, want chain rendered", err.Error())
	}
}

// loopContext is a hand-built Context whose parent can be rewired.
type loopContext struct {
	name   string
	parent *loopContext
	plain  bool
}

func (l *loopContext) Name() string { return l.name }

func (l *loopContext) Parent() Context {
	if l.parent == nil {
		return nil
	}
	return l.parent
}

func (l *loopContext) Plain() bool { return l.plain }
func (l *loopContext) Load(...string) error { return nil }
func (l *loopContext) Artifacts() []string { return []string{l.name + ".jar"} }

func TestSelectForeignContexts(t *testing.T) {
	t.Parallel()

	t.Run("typed nil falls back", func(t *testing.T) {
		t.Parallel()

		var missing *loopContext
		fallback := &loopContext{name: "host", plain: true}
		got, err := Select(missing, fallback)
		if err != nil || got != Context(fallback) {
			t.Errorf("Select(typed nil) = %v, %v; want the fallback", got, err)
		}
	})

	t.Run("parent cycle", func(t *testing.T) {
		t.Parallel()

		a := &loopContext{name: "a"}
		b := &loopContext{name: "b", parent: a}
		a.parent = b

		_, err := Select(a, nil)
		var se *SelectionError
		if !errors.As(err, &se) || !se.Cyclic {
			t.Fatalf("Select() error = %v, want a cyclic *SelectionError", err)
		}
		if !slices.Equal(se.Chain, []string{"a", "b"}) || !errors.Is(err, ErrNoSuitableContext) {
			t.Errorf("Chain = %v, err = %v", se.Chain, err)
		}
		if got := Path(a); got != "b/a" {
			t.Errorf("Path() = %q, want b/a", got)
		}
		if got := Visible(a); !slices.Equal(got, []string{"b.jar", "a.jar"}) {
			t.Errorf("Visible() = %v", got)
		}
	})
}

type owned struct{ ctx Context }

func (o owned) IsolationContext() Context { return o.ctx }

func TestSelectFor(t *testing.T) {
	t.Parallel()

	root := NewRoot("system")
	host := root.NewChild("host", false)
	script := host.NewChild("script", true)
	fallback := root.NewChild("fallback", false)

	tests := []struct {
		name    string
		spec    depspec.Spec
		want    Context
		wantErr error
	}{
		{"classLoader wins", depspec.Spec{"classLoader": script, "refObject": owned{fallback}}, host, nil},
		{"context alias", depspec.Spec{"context": script}, host, nil},
		{"refObject owner", depspec.Spec{"refObject": owned{script}}, host, nil},
		{"fallback", depspec.Spec{}, fallback, nil},
		{"wrong classLoader type", depspec.Spec{"classLoader": "system"}, nil, depspec.ErrInvalidSpec},
		{"refObject without owner", depspec.Spec{"refObject": 42}, nil, depspec.ErrInvalidSpec},
		{"conflicting aliases", depspec.Spec{"classLoader": host, "context": fallback}, nil, depspec.ErrConflictingKeys},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := SelectFor(tt.spec, fallback)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("SelectFor() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("SelectFor() unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("SelectFor() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBoundaryLoadAndVisible(t *testing.T) {
	t.Parallel()

	root := NewRoot("system")
	child := root.NewChild("script", true)

	if err := root.Load("file:///a", "file:///b", "file:///a"); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := child.Load("file:///c", "file:///b"); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := child.Load(""); !errors.Is(err, ErrEmptyArtifact) {
		t.Errorf("Load(\"\") error = %v, want ErrEmptyArtifact", err)
	}

	if got := root.Artifacts(); !slices.Equal(got, []string{"file:///a", "file:///b"}) {
		t.Errorf("root.Artifacts() = %v", got)
	}
	want := []string{"file:///a", "file:///b", "file:///c"}
	if got := Visible(child); !slices.Equal(got, want) {
		t.Errorf("Visible(child) = %v, want %v", got, want)
	}
	if got := Path(child); got != "system/script" {
		t.Errorf("Path(child) = %q, want %q", got, "system/script")
	}
}

func TestBoundaryConcurrentLoad(t *testing.T) {
	t.Parallel()

	root := NewRoot("system")
	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = root.Load("file:///shared", "file:///"+string(rune('a'+i)))
		}()
	}
	wg.Wait()

	if got := len(root.Artifacts()); got != 17 {
		t.Errorf("len(Artifacts()) = %d, want 17", got)
	}
}
