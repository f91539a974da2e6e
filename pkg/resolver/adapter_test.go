// SPDX-License-Identifier: MPL-2.0

package resolver_test

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/invowk/grab/pkg/depspec"
	"github.com/invowk/grab/pkg/isolation"
	"github.com/invowk/grab/pkg/resolver"
	"github.com/invowk/grab/pkg/resolver/resolvertest"
)

func TestAdapterBuildsEngineOnce(t *testing.T) {
	t.Parallel()

	var builds atomic.Int32
	fake := resolvertest.New()
	a := resolver.NewAdapter(func() (resolver.Engine, error) {
		builds.Add(1)
		return fake, nil
	})

	if builds.Load() != 0 {
		t.Fatal("engine built before first use")
	}

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := a.Engine(); err != nil {
				t.Errorf("Engine() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if got := builds.Load(); got != 1 {
		t.Errorf("factory ran %d times, want 1", got)
	}
}

func TestAdapterFactoryFailure(t *testing.T) {
	t.Parallel()

	cause := errors.New("no cache directory")
	var builds atomic.Int32
	a := resolver.NewAdapter(func() (resolver.Engine, error) {
		builds.Add(1)
		return nil, cause
	})

	ctx := context.Background()
	for range 2 {
		_, err := a.Resolve(ctx, nil, nil, depspec.Spec{"group": "g", "module": "m"})
		if !errors.Is(err, resolver.ErrEngineUnavailable) {
			t.Errorf("Resolve() error = %v, want ErrEngineUnavailable", err)
		}
		if !errors.Is(err, cause) {
			t.Errorf("Resolve() error = %v, want cause preserved", err)
		}
	}
	if got := builds.Load(); got != 1 {
		t.Errorf("factory ran %d times, want 1", got)
	}

	if _, err := resolver.NewAdapter(nil).Engine(); !errors.Is(err, resolver.ErrEngineUnavailable) {
		t.Errorf("nil factory error = %v, want ErrEngineUnavailable", err)
	}
}

func TestAdapterGrabBindsPlainContext(t *testing.T) {
	t.Parallel()

	root := isolation.NewRoot("system")
	script := root.NewChild("script", true)
	fake := resolvertest.New()
	a := resolver.NewAdapter(func() (resolver.Engine, error) { return fake, nil })

	spec := depspec.Spec{"group": "g", "module": "m", "version": "1.0", "context": script, "calleeDepth": 3}
	if err := a.Grab(context.Background(), spec, nil); err != nil {
		t.Fatalf("Grab() error = %v", err)
	}

	calls := fake.Calls()
	if len(calls) != 1 || calls[0].Op != "grab" {
		t.Fatalf("calls = %+v, want one grab", calls)
	}
	got := calls[0].Specs[0]
	if got["classLoader"] != isolation.Context(root) {
		t.Errorf("classLoader = %v, want root", got["classLoader"])
	}
	for _, k := range []string{"context", "calleeDepth"} {
		if _, ok := got[k]; ok {
			t.Errorf("bound spec still carries %q", k)
		}
	}
	if _, ok := spec["classLoader"]; ok {
		t.Error("caller's spec was mutated")
	}
	if !slices.Equal(root.Artifacts(), []string{"file:///g/m/1.0"}) {
		t.Errorf("root artifacts = %v", root.Artifacts())
	}
}

func TestAdapterGrabNoSuitableContext(t *testing.T) {
	t.Parallel()

	sandbox := isolation.NewBoundary("sandbox", nil, false)
	fake := resolvertest.New()
	a := resolver.NewAdapter(func() (resolver.Engine, error) { return fake, nil })

	err := a.Grab(context.Background(), depspec.Spec{"group": "g", "module": "m"}, sandbox)
	if !errors.Is(err, isolation.ErrNoSuitableContext) {
		t.Fatalf("Grab() error = %v, want ErrNoSuitableContext", err)
	}
	if len(fake.Calls()) != 0 {
		t.Error("engine called despite failed selection")
	}
}

func TestAdapterGrabAll(t *testing.T) {
	t.Parallel()

	root := isolation.NewRoot("system")
	other := isolation.NewRoot("other")
	fake := resolvertest.New()
	a := resolver.NewAdapter(func() (resolver.Engine, error) { return fake, nil })

	err := a.GrabAll(context.Background(), depspec.Spec{"autoDownload": true}, root,
		depspec.Spec{"group": "g", "module": "a"},
		depspec.Spec{"group": "g", "module": "b", "classLoader": other.NewChild("x", true)},
	)
	if err != nil {
		t.Fatalf("GrabAll() error = %v", err)
	}
	if !slices.Equal(root.Artifacts(), []string{"file:///g/a/*"}) {
		t.Errorf("root artifacts = %v", root.Artifacts())
	}
	if !slices.Equal(other.Artifacts(), []string{"file:///g/b/*"}) {
		t.Errorf("other artifacts = %v", other.Artifacts())
	}
}

func TestAdapterPassThrough(t *testing.T) {
	t.Parallel()

	root := isolation.NewRoot("system")
	fake := resolvertest.New()
	a := resolver.NewAdapter(func() (resolver.Engine, error) { return fake, nil })
	ctx := context.Background()

	if err := a.AddResolver(ctx, depspec.Spec{"name": "local", "root": "/tmp/repo"}); err != nil {
		t.Fatalf("AddResolver() error = %v", err)
	}
	if err := a.Grab(ctx, depspec.Spec{"group": "g", "module": "m", "version": "2"}, root); err != nil {
		t.Fatalf("Grab() error = %v", err)
	}
	deps, err := a.ListDependencies(ctx, root)
	if err != nil || len(deps) != 1 {
		t.Fatalf("ListDependencies() = %v, %v", deps, err)
	}
	modules, err := a.Enumerate(ctx)
	if err != nil {
		t.Fatalf("Enumerate() error = %v", err)
	}
	if got := modules["fake"]["g:m"]; !slices.Equal(got, []string{"2"}) {
		t.Errorf("Enumerate()[fake][g:m] = %v, want [2]", got)
	}

	info := &resolver.Diagnostics{}
	uris, err := a.Resolve(ctx, nil, info, depspec.Spec{"group": "g", "module": "m", "version": "3"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if len(uris) != 1 || len(info.Selections()) != 1 {
		t.Errorf("Resolve() = %v, selections = %v", uris, info.Selections())
	}

	want := []string{"addResolver", "grab", "listDependencies", "enumerate", "resolve"}
	if got := fake.Ops(); !slices.Equal(got, want) {
		t.Errorf("ops = %v, want %v", got, want)
	}
}

func TestArtifactPath(t *testing.T) {
	t.Parallel()

	a := resolver.FileArtifact("/var/cache/grab/g/m/1.0")
	if a.String() != "file:///var/cache/grab/g/m/1.0" {
		t.Errorf("FileArtifact() = %q", a)
	}
	p, err := a.Path()
	if err != nil {
		t.Fatalf("Path() error = %v", err)
	}
	if p != "/var/cache/grab/g/m/1.0" {
		t.Errorf("Path() = %q", p)
	}
	if _, err := resolver.Artifact("https://example.com/x").Path(); err == nil {
		t.Error("Path() on non-file URI should fail")
	}
}

func TestNilDiagnostics(t *testing.T) {
	t.Parallel()

	var d *resolver.Diagnostics
	d.Record(resolver.Selection{})
	d.Warn("ignored %d", 1)
	if d.Selections() != nil || d.Warnings() != nil {
		t.Error("nil Diagnostics should report nothing")
	}
}

func TestAdapterPrepare(t *testing.T) {
	t.Parallel()

	a := resolver.NewAdapter(nil)
	defaults := depspec.Spec{depspec.KeyAutoDownload: true, depspec.KeyDisableChecksums: false}

	tests := []struct {
		name     string
		spec     depspec.Spec
		wantAuto any
		wantErr  error
	}{
		{
			name:     "absent keys are filled",
			spec:     depspec.Spec{"groupId": "g", "artifactId": "m"},
			wantAuto: true,
		},
		{
			name:     "caller value wins",
			spec:     depspec.Spec{"group": "g", "module": "m", depspec.KeyAutoDownload: false},
			wantAuto: false,
		},
		{
			name:    "conflicting synonyms",
			spec:    depspec.Spec{"group": "a", "org": "b", "module": "m"},
			wantErr: depspec.ErrConflictingKeys,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			before := tt.spec.Clone()
			got, err := a.Prepare(tt.spec, defaults)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Prepare() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Prepare() error = %v", err)
			}
			if got[depspec.KeyAutoDownload] != tt.wantAuto {
				t.Errorf("autoDownload = %v, want %v", got[depspec.KeyAutoDownload], tt.wantAuto)
			}
			if got[depspec.KeyGroup] == nil {
				t.Errorf("Prepare() did not fold synonyms: %v", got)
			}
			if len(tt.spec) != len(before) {
				t.Errorf("Prepare() modified its input: %v", tt.spec)
			}
		})
	}
}
