// SPDX-License-Identifier: MPL-2.0

package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/invowk/grab/internal/testutil"
	"github.com/invowk/grab/pkg/depspec"
	"github.com/invowk/grab/pkg/isolation"
	"github.com/invowk/grab/pkg/resolver"
)

// writeArtifact creates <root>/<group>/<module>/<version>/ with the given files.
func writeArtifact(t *testing.T, root, group, module, version string, files map[string]string) {
	t.Helper()
	testutil.WriteArtifact(t, root, group, module, version, files)
}

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	base := []Option{
		WithCacheDir(t.TempDir()),
		WithHistoryPath(":memory:"),
		WithoutDefaultRepositories(),
		WithEnv(func(string) string { return "" }),
		WithClock(testutil.NewFakeClock(time.Time{}).Now),
	}
	e, err := New(context.Background(), append(base, opts...)...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	testutil.CloseOnCleanup(t, e)
	return e
}

func dirRepo(name, root string) Repository {
	return Repository{Name: name, Root: root, Kind: KindDir}
}

func TestAddResolverIsUsedByLaterResolve(t *testing.T) {
	t.Parallel()

	repo := t.TempDir()
	writeArtifact(t, repo, "org.example", "lib", "1.0.0", map[string]string{"lib.txt": "v1"})
	e := newTestEngine(t)
	ctx := context.Background()
	spec := depspec.Spec{"group": "org.example", "module": "lib", "version": "1.0.0"}

	if _, err := e.Resolve(ctx, nil, nil, spec); !errors.Is(err, ErrArtifactNotFound) {
		t.Fatalf("Resolve() before AddResolver error = %v, want ErrArtifactNotFound", err)
	}

	if err := e.AddResolver(ctx, depspec.Spec{"name": "local", "root": repo}); err != nil {
		t.Fatalf("AddResolver() error = %v", err)
	}
	uris, err := e.Resolve(ctx, nil, nil, spec)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if len(uris) != 1 {
		t.Fatalf("Resolve() = %v, want one artifact", uris)
	}
	path, err := uris[0].Path()
	if err != nil {
		t.Fatalf("Path() error = %v", err)
	}
	data, err := os.ReadFile(filepath.Join(path, "lib.txt"))
	if err != nil || string(data) != "v1" {
		t.Errorf("cached lib.txt = %q, %v", data, err)
	}
	if !strings.HasPrefix(path, e.CacheDir()) {
		t.Errorf("artifact %s is outside cache %s", path, e.CacheDir())
	}
}

func TestResolveSelectsNewestMatch(t *testing.T) {
	t.Parallel()

	repo := t.TempDir()
	for _, v := range []string{"1.0.0", "1.2.0", "1.10.1", "2.0.0", "2.1.0-rc1"} {
		writeArtifact(t, repo, "g", "m", v, map[string]string{"VERSION": v})
	}
	e := newTestEngine(t, WithRepositories(dirRepo("local", repo)))

	tests := []struct {
		constraint string
		want       string
	}{
		{"*", "2.0.0"},
		{"latest.integration", "2.1.0-rc1"},
		{"^1.0", "1.10.1"},
		{"~1.2.0", "1.2.0"},
		{"<2", "1.10.1"},
		{"1.0.0", "1.0.0"},
	}

	for _, tt := range tests {
		t.Run(tt.constraint, func(t *testing.T) {
			info := &resolver.Diagnostics{}
			_, err := e.Resolve(context.Background(), nil, info, depspec.Spec{"group": "g", "module": "m", "version": tt.constraint})
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			sel := info.Selections()
			if len(sel) != 1 || sel[0].Version != tt.want {
				t.Errorf("selected %+v, want version %s", sel, tt.want)
			}
		})
	}

	_, err := e.Resolve(context.Background(), nil, nil, depspec.Spec{"group": "g", "module": "m", "version": "^3"})
	var nm *NoMatchingVersionError
	if !errors.As(err, &nm) {
		t.Fatalf("Resolve(^3) error = %v, want *NoMatchingVersionError", err)
	}
	if len(nm.Available) != 5 || nm.Available[0] != "2.1.0-rc1" {
		t.Errorf("Available = %v", nm.Available)
	}
}

func TestRepositoryChainOrder(t *testing.T) {
	t.Parallel()

	older, newer, configured := t.TempDir(), t.TempDir(), t.TempDir()
	writeArtifact(t, configured, "g", "m", "1.0.0", map[string]string{"from": "configured"})
	writeArtifact(t, older, "g", "m", "1.0.0", map[string]string{"from": "older"})
	writeArtifact(t, newer, "g", "m", "1.0.0", map[string]string{"from": "newer"})

	e := newTestEngine(t, WithRepositories(dirRepo("configured", configured)))
	ctx := context.Background()
	for _, r := range []struct{ name, root string }{{"older", older}, {"newer", newer}} {
		if err := e.AddResolver(ctx, depspec.Spec{"name": r.name, "root": r.root}); err != nil {
			t.Fatalf("AddResolver(%s) error = %v", r.name, err)
		}
	}

	var names []string
	for _, r := range e.Repositories() {
		names = append(names, r.Name)
	}
	if want := []string{"newer", "older", "configured"}; !slices.Equal(names, want) {
		t.Errorf("Repositories() = %v, want %v", names, want)
	}

	info := &resolver.Diagnostics{}
	if _, err := e.Resolve(ctx, nil, info, depspec.Spec{"group": "g", "module": "m", "version": "*"}); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got := info.Selections()[0].Repository; got != "newer" {
		t.Errorf("resolved from %q, want newer", got)
	}

	// re-adding a name moves it to the front without duplicating it
	if err := e.AddResolver(ctx, depspec.Spec{"name": "older", "root": older}); err != nil {
		t.Fatalf("AddResolver() error = %v", err)
	}
	if got := e.Repositories(); len(got) != 3 || got[0].Name != "older" {
		t.Errorf("Repositories() = %v", got)
	}
}

func TestOfflineUsesCacheOnly(t *testing.T) {
	t.Parallel()

	repo := t.TempDir()
	writeArtifact(t, repo, "g", "m", "1.0.0", map[string]string{"a": "1"})
	e := newTestEngine(t, WithRepositories(dirRepo("local", repo)))
	ctx := context.Background()
	offline := depspec.Spec{"group": "g", "module": "m", "autoDownload": false}

	if _, err := e.Resolve(ctx, nil, nil, offline); !errors.Is(err, ErrOffline) {
		t.Fatalf("offline Resolve() error = %v, want ErrOffline", err)
	}
	if _, err := e.Resolve(ctx, nil, nil, depspec.Spec{"group": "g", "module": "m"}); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	info := &resolver.Diagnostics{}
	if _, err := e.Resolve(ctx, depspec.Spec{"autoDownload": false}, info, depspec.Spec{"group": "g", "module": "m"}); err != nil {
		t.Fatalf("offline Resolve() after download error = %v", err)
	}
	if sel := info.Selections(); len(sel) != 1 || !sel[0].Cached {
		t.Errorf("selections = %+v, want one cached", sel)
	}
}

func TestChecksumVerification(t *testing.T) {
	t.Parallel()

	repo := t.TempDir()
	writeArtifact(t, repo, "g", "m", "1.0.0", map[string]string{"a.txt": "original"})
	e := newTestEngine(t, WithRepositories(dirRepo("local", repo)))
	ctx := context.Background()
	spec := depspec.Spec{"group": "g", "module": "m", "version": "1.0.0"}

	uris, err := e.Resolve(ctx, nil, nil, spec)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if _, ok := e.lock.Lookup(depspec.Coordinates{Group: "g", Module: "m", Version: "1.0.0"}); !ok {
		t.Fatal("lock file has no entry after first resolve")
	}

	path, _ := uris[0].Path() //nolint:errcheck // checked by Resolve
	if err := os.WriteFile(filepath.Join(path, "a.txt"), []byte("tampered"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err = e.Resolve(ctx, nil, nil, spec)
	var cm *ChecksumMismatchError
	if !errors.As(err, &cm) {
		t.Fatalf("Resolve() error = %v, want *ChecksumMismatchError", err)
	}
	if cm.Expected == cm.Actual {
		t.Errorf("Expected and Actual both %s", cm.Actual)
	}

	if _, err := e.Resolve(ctx, depspec.Spec{"disableChecksums": true}, nil, spec); err != nil {
		t.Errorf("Resolve() with disableChecksums error = %v", err)
	}

	reloaded, err := LoadLockFile(filepath.Join(e.CacheDir(), LockFileName))
	if err != nil {
		t.Fatalf("LoadLockFile() error = %v", err)
	}
	entry, ok := reloaded.Artifacts["g:m:1.0.0"]
	if !ok || entry.Repository != "local" || !strings.HasPrefix(entry.Checksum, "sha256:") {
		t.Errorf("persisted entry = %+v, %v", entry, ok)
	}
	want := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	if !entry.FetchedAt.Equal(want) {
		t.Errorf("FetchedAt = %v, want the engine clock %v", entry.FetchedAt, want)
	}
	if !reloaded.Generated.Equal(want) {
		t.Errorf("Generated = %v, want the engine clock %v", reloaded.Generated, want)
	}
}

func TestTransitiveDependencies(t *testing.T) {
	t.Parallel()

	repo := t.TempDir()
	writeArtifact(t, repo, "g", "app", "1.0.0", map[string]string{
		ManifestFileName: `dependencies: [{group: "g", module: "util", version: "^1.0"}, {group: "g", module: "log"}]`,
	})
	writeArtifact(t, repo, "g", "util", "1.4.0", map[string]string{
		ManifestFileName: `dependencies: [{group: "g", module: "log", version: "1.0.0"}]`,
	})
	writeArtifact(t, repo, "g", "log", "1.0.0", map[string]string{"log.txt": "x"})
	e := newTestEngine(t, WithRepositories(dirRepo("local", repo)))
	ctx := context.Background()

	info := &resolver.Diagnostics{}
	uris, err := e.Resolve(ctx, nil, info, depspec.Spec{"group": "g", "module": "app"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if len(uris) != 3 {
		t.Fatalf("Resolve() = %v, want 3 artifacts", uris)
	}
	for i, want := range []string{"log", "util", "app"} {
		if !strings.Contains(string(uris[i]), "/g/"+want+"/") {
			t.Errorf("Resolve()[%d] = %s, want %s ahead of the modules requiring it", i, uris[i], want)
		}
	}
	var transitive int
	for _, s := range info.Selections() {
		if s.Transitive {
			transitive++
		}
	}
	if transitive != 2 {
		t.Errorf("transitive selections = %d, want 2", transitive)
	}

	info = &resolver.Diagnostics{}
	uris, err = e.Resolve(ctx, nil, info, depspec.Spec{"group": "g", "module": "app", "transitive": false})
	if err != nil {
		t.Fatalf("Resolve(transitive=false) error = %v", err)
	}
	if len(uris) != 1 {
		t.Errorf("Resolve(transitive=false) = %v, want 1 artifact", uris)
	}
}

func TestDependencyCycle(t *testing.T) {
	t.Parallel()

	repo := t.TempDir()
	writeArtifact(t, repo, "g", "a", "1.0.0", map[string]string{ManifestFileName: `dependencies: [{group: "g", module: "b"}]`})
	writeArtifact(t, repo, "g", "b", "1.0.0", map[string]string{ManifestFileName: `dependencies: [{group: "g", module: "a"}]`})
	e := newTestEngine(t, WithRepositories(dirRepo("local", repo)))

	_, err := e.Resolve(context.Background(), nil, nil, depspec.Spec{"group": "g", "module": "a"})
	var ce *CycleError
	if !errors.As(err, &ce) {
		t.Fatalf("Resolve() error = %v, want *CycleError", err)
	}
	if want := []string{"g:a", "g:b", "g:a"}; !slices.Equal(ce.Chain, want) {
		t.Errorf("Chain = %v, want %v", ce.Chain, want)
	}
}

func TestInvalidManifest(t *testing.T) {
	t.Parallel()

	repo := t.TempDir()
	writeArtifact(t, repo, "g", "bad", "1.0.0", map[string]string{ManifestFileName: `dependencies: [{module: 42}]`})
	e := newTestEngine(t, WithRepositories(dirRepo("local", repo)))

	if _, err := e.Resolve(context.Background(), nil, nil, depspec.Spec{"group": "g", "module": "bad"}); err == nil {
		t.Fatal("Resolve() succeeded with an invalid manifest")
	}
}

func TestGrabLoadsIntoContext(t *testing.T) {
	t.Parallel()

	repo := t.TempDir()
	writeArtifact(t, repo, "g", "m", "1.0.0", map[string]string{"a": "1"})
	writeArtifact(t, repo, "g", "n", "2.0.0", map[string]string{"b": "2"})
	e := newTestEngine(t, WithRepositories(dirRepo("local", repo)))
	ctx := context.Background()
	root := isolation.NewRoot("system")

	if err := e.Grab(ctx, depspec.Spec{"group": "g", "module": "m", "classLoader": root}); err != nil {
		t.Fatalf("Grab() error = %v", err)
	}
	if err := e.GrabAll(ctx, depspec.Spec{"classLoader": root}, depspec.Spec{"group": "g", "module": "n"}, depspec.Spec{"group": "g", "module": "m"}); err != nil {
		t.Fatalf("GrabAll() error = %v", err)
	}
	if got := len(root.Artifacts()); got != 2 {
		t.Errorf("root holds %d artifacts, want 2: %v", got, root.Artifacts())
	}

	deps, err := e.ListDependencies(ctx, root)
	if err != nil {
		t.Fatalf("ListDependencies() error = %v", err)
	}
	if len(deps) != 2 || deps[0]["module"] != "m" || deps[0]["version"] != "1.0.0" {
		t.Errorf("ListDependencies() = %v", deps)
	}
	other, err := e.ListDependencies(ctx, isolation.NewRoot("other"))
	if err != nil || len(other) != 0 {
		t.Errorf("ListDependencies(other) = %v, %v", other, err)
	}

	modules, err := e.Enumerate(ctx)
	if err != nil {
		t.Fatalf("Enumerate() error = %v", err)
	}
	if got := modules[Name]["g:n"]; !slices.Equal(got, []string{"2.0.0"}) {
		t.Errorf("Enumerate()[%s][g:n] = %v", Name, got)
	}

	if err := e.Grab(ctx, depspec.Spec{"group": "g", "module": "m"}); !errors.Is(err, isolation.ErrNoSuitableContext) {
		t.Errorf("Grab() without context error = %v, want ErrNoSuitableContext", err)
	}
}

func TestNewFailsOnUnusableCacheDir(t *testing.T) {
	t.Parallel()

	file := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := New(context.Background(), WithCacheDir(filepath.Join(file, "cache")), WithoutDefaultRepositories())
	if err == nil {
		t.Fatal("New() succeeded with a cache dir below a regular file")
	}
}

func TestDefaultCacheDirWith(t *testing.T) {
	t.Parallel()

	got, err := DefaultCacheDirWith(func(k string) string {
		if k == CacheDirEnv {
			return "/custom/cache"
		}
		return ""
	})
	if err != nil || got != "/custom/cache" {
		t.Errorf("DefaultCacheDirWith() = %q, %v", got, err)
	}

	got, err = DefaultCacheDirWith(func(string) string { return "" })
	if err != nil {
		t.Fatalf("DefaultCacheDirWith() error = %v", err)
	}
	if !strings.HasSuffix(got, filepath.Join(".grab", "cache")) {
		t.Errorf("DefaultCacheDirWith() = %q, want ~/.grab/cache", got)
	}
}
