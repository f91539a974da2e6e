// SPDX-License-Identifier: MPL-2.0

// Package engine is the bundled resolution engine. It reads artifacts from
// git and directory repositories into a local cache, pins their checksums in
// a lock file, follows the dependencies artifacts declare in their grab.cue,
// and indexes everything it resolved in a sqlite history.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/invowk/grab/pkg/depspec"
	"github.com/invowk/grab/pkg/isolation"
	"github.com/invowk/grab/pkg/resolver"
)

// Name identifies this engine in Enumerate results.
const Name = "grab"

type (
	// Engine implements resolver.Engine.
	Engine struct {
		cache   cache
		lock    *LockFile
		history *History
		creds   credentials
		logger  *log.Logger
		now     func() time.Time

		mu         sync.Mutex
		added      []Repository // newest first
		configured []Repository
		defaults   []Repository
		loaded     map[isolation.Context][]depspec.Spec
	}

	// Option configures New.
	Option func(*options)

	options struct {
		cacheDir     string
		historyPath  string
		repositories []Repository
		skipDefaults bool
		logger       *log.Logger
		getenv       func(string) string
		now          func() time.Time
	}

	// policy is the per-dependency behaviour read from spec keys.
	policy struct {
		autoDownload     bool
		disableChecksums bool
		transitive       bool
		force            bool
	}

	// resolved is one artifact placed in the cache.
	resolved struct {
		coords     depspec.Coordinates // concrete version
		requested  string
		dir        string
		repository string
		cached     bool
		transitive bool
	}
)

var _ resolver.Engine = (*Engine)(nil)

// WithCacheDir sets the cache directory. The default comes from
// DefaultCacheDir.
func WithCacheDir(dir string) Option {
	return func(o *options) { o.cacheDir = dir }
}

// WithHistoryPath overrides the sqlite index location; ":memory:" keeps it
// in memory.
func WithHistoryPath(path string) Option {
	return func(o *options) { o.historyPath = path }
}

// WithRepositories appends configured repositories. They rank after
// repositories added at run time and before the built-in defaults.
func WithRepositories(repos ...Repository) Option {
	return func(o *options) { o.repositories = append(o.repositories, repos...) }
}

// WithoutDefaultRepositories skips the built-in repository list.
func WithoutDefaultRepositories() Option {
	return func(o *options) { o.skipDefaults = true }
}

func WithLogger(l *log.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithEnv sets the environment lookup used for the cache directory and git
// credentials.
func WithEnv(getenv func(string) string) Option {
	return func(o *options) { o.getenv = getenv }
}

// WithClock sets the time source for lock file and history timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// New builds an engine. It fails when the cache directory, lock file or
// history index cannot be opened.
func New(ctx context.Context, opts ...Option) (*Engine, error) {
	o := options{getenv: os.Getenv, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = log.New(io.Discard)
	}

	if o.cacheDir == "" {
		dir, err := DefaultCacheDirWith(o.getenv)
		if err != nil {
			return nil, err
		}
		o.cacheDir = dir
	}
	if err := os.MkdirAll(o.cacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	lock, err := LoadLockFile(filepath.Join(o.cacheDir, LockFileName))
	if err != nil {
		return nil, err
	}
	lock.now = o.now

	if o.historyPath == "" {
		o.historyPath = filepath.Join(o.cacheDir, HistoryFileName)
	}
	history, err := OpenHistory(ctx, o.historyPath)
	if err != nil {
		return nil, err
	}

	configured := make([]Repository, 0, len(o.repositories))
	for _, r := range o.repositories {
		n, err := r.normalized()
		if err != nil {
			_ = history.Close()
			return nil, err
		}
		configured = append(configured, n)
	}

	e := &Engine{
		cache:      cache{dir: o.cacheDir},
		lock:       lock,
		history:    history,
		creds:      loadCredentials(o.getenv),
		logger:     o.logger,
		now:        o.now,
		configured: configured,
		loaded:     make(map[isolation.Context][]depspec.Spec),
	}
	if !o.skipDefaults {
		e.defaults = DefaultRepositories(o.logger, o.getenv)
	}
	return e, nil
}

func (e *Engine) Name() string { return Name }

// CacheDir returns the cache directory in use.
func (e *Engine) CacheDir() string { return e.cache.dir }

// Close releases the history index.
func (e *Engine) Close() error { return e.history.Close() }

// Repositories returns the resolver chain in the order it is consulted.
// A name shadows later repositories of the same name.
func (e *Engine) Repositories() []Repository {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []Repository
	seen := make(map[string]bool)
	for _, group := range [][]Repository{e.added, e.configured, e.defaults} {
		for _, r := range group {
			if !seen[r.Name] {
				seen[r.Name] = true
				out = append(out, r)
			}
		}
	}
	return out
}

// History returns the grab index.
func (e *Engine) History() *History { return e.history }

func (e *Engine) AddResolver(_ context.Context, spec depspec.Spec) error {
	r, err := RepositoryFromSpec(spec)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.added = slices.DeleteFunc(e.added, func(x Repository) bool { return x.Name == r.Name })
	e.added = slices.Insert(e.added, 0, r)
	e.logger.Info("added repository", "name", r.Name, "root", r.Root, "type", r.Kind)
	return nil
}

func (e *Engine) Grab(ctx context.Context, spec depspec.Spec) error {
	return e.GrabAll(ctx, nil, spec)
}

func (e *Engine) GrabAll(ctx context.Context, options depspec.Spec, deps ...depspec.Spec) error {
	w := e.newWalk(nil)
	for _, dep := range deps {
		merged := dep.Clone()
		merged.Merge(options)
		target, err := isolation.Requested(merged)
		if err != nil {
			return err
		}
		if target == nil {
			return fmt.Errorf("grab %v: %w", dep, isolation.ErrNoSuitableContext)
		}
		results, err := w.top(ctx, merged)
		if err != nil {
			return err
		}
		if err := e.load(target, results); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) Resolve(ctx context.Context, options depspec.Spec, info *resolver.Diagnostics, deps ...depspec.Spec) ([]resolver.Artifact, error) {
	w := e.newWalk(info)
	var all []resolved
	for _, dep := range deps {
		merged := dep.Clone()
		merged.Merge(options)
		results, err := w.top(ctx, merged)
		if err != nil {
			return nil, err
		}
		all = append(all, results...)
	}
	all, err := w.order(all)
	if err != nil {
		return nil, err
	}

	var out []resolver.Artifact
	for _, r := range all {
		uri := resolver.FileArtifact(r.dir)
		if !slices.Contains(out, uri) {
			out = append(out, uri)
		}
	}
	return out, nil
}

func (e *Engine) ListDependencies(_ context.Context, target isolation.Context) ([]depspec.Spec, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	specs := e.loaded[target]
	out := make([]depspec.Spec, len(specs))
	for i, s := range specs {
		out[i] = s.Clone()
	}
	return out, nil
}

func (e *Engine) Enumerate(ctx context.Context) (map[string]map[string][]string, error) {
	modules, err := e.history.Modules(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]map[string][]string{Name: modules}, nil
}

func (e *Engine) load(target isolation.Context, results []resolved) error {
	uris := make([]string, len(results))
	for i, r := range results {
		uris[i] = resolver.FileArtifact(r.dir).String()
	}
	if err := target.Load(uris...); err != nil {
		return fmt.Errorf("failed to load into %s: %w", isolation.Path(target), err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, r := range results {
		spec := r.coords.Spec()
		if r.transitive {
			spec[depspec.KeyTransitive] = true
		}
		dup := slices.ContainsFunc(e.loaded[target], func(s depspec.Spec) bool {
			return s[depspec.KeyGroup] == spec[depspec.KeyGroup] &&
				s[depspec.KeyModule] == spec[depspec.KeyModule] &&
				s[depspec.KeyVersion] == spec[depspec.KeyVersion]
		})
		if !dup {
			e.loaded[target] = append(e.loaded[target], spec)
		}
	}
	return nil
}

func policyOf(spec depspec.Spec) (policy, error) {
	var (
		p   policy
		err error
	)
	if p.autoDownload, err = spec.Bool(depspec.KeyAutoDownload, true); err != nil {
		return p, err
	}
	if p.disableChecksums, err = spec.Bool(depspec.KeyDisableChecksums, false); err != nil {
		return p, err
	}
	if p.transitive, err = spec.Bool(depspec.KeyTransitive, true); err != nil {
		return p, err
	}
	force, err := spec.Bool(depspec.KeyForce, false)
	if err != nil {
		return p, err
	}
	changing, err := spec.Bool(depspec.KeyChanging, false)
	if err != nil {
		return p, err
	}
	p.force = force || changing
	return p, nil
}

// fetch places one artifact in the cache and verifies it.
func (e *Engine) fetch(ctx context.Context, coords depspec.Coordinates, pol policy) (resolved, error) {
	cachedVersions, err := e.cache.versions(coords)
	if err != nil {
		return resolved{}, err
	}
	if !pol.force && (isExact(coords.Version) || !pol.autoDownload) {
		v, ok, err := selectVersion(coords.Version, cachedVersions)
		if err != nil {
			return resolved{}, err
		}
		if ok {
			return e.fromCache(ctx, coords, v, pol)
		}
	}
	if !pol.autoDownload {
		return resolved{}, &OfflineError{Coordinates: coords}
	}

	var (
		searched []string
		noMatch  *NoMatchingVersionError
		lastErr  error
	)
	for _, repo := range e.Repositories() {
		src := newSource(repo, e.creds)
		searched = append(searched, repo.Name)
		versions, err := src.versions(ctx, coords)
		if errors.Is(err, ErrArtifactNotFound) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return resolved{}, ctx.Err()
			}
			e.logger.Warn("repository failed", "repository", repo.Name, "module", coords.Key(), "err", err)
			lastErr = err
			continue
		}
		v, ok, err := selectVersion(coords.Version, versions)
		if err != nil {
			return resolved{}, err
		}
		if !ok {
			if noMatch == nil {
				noMatch = &NoMatchingVersionError{Coordinates: coords, Repository: repo.Name, Available: sortVersions(versions)}
			}
			continue
		}
		if !pol.force && e.cache.has(coords, v) {
			return e.fromCache(ctx, coords, v, pol)
		}
		return e.download(ctx, src, repo, coords, v, pol)
	}

	switch {
	case noMatch != nil:
		return resolved{}, noMatch
	case lastErr != nil:
		return resolved{}, fmt.Errorf("resolve %s: %w", coords, lastErr)
	default:
		return resolved{}, &ArtifactNotFoundError{Coordinates: coords, Repositories: searched}
	}
}

func (e *Engine) fromCache(ctx context.Context, coords depspec.Coordinates, version string, pol policy) (resolved, error) {
	concrete := coords.WithVersion(version)
	repo := "cache"
	if entry, ok := e.lock.Lookup(concrete); ok && entry.Repository != "" {
		repo = entry.Repository
	}
	r := resolved{
		coords:     concrete,
		requested:  coords.Version,
		dir:        e.cache.artifactDir(coords, version),
		repository: repo,
		cached:     true,
	}
	if err := e.verify(ctx, r, "", pol); err != nil {
		return resolved{}, err
	}
	return r, nil
}

func (e *Engine) download(ctx context.Context, src source, repo Repository, coords depspec.Coordinates, version string, pol policy) (resolved, error) {
	staged, err := e.cache.stagingDir(coords)
	if err != nil {
		return resolved{}, err
	}
	revision, err := src.fetch(ctx, coords, version, staged)
	if err != nil {
		_ = os.RemoveAll(staged) // best-effort cleanup
		return resolved{}, err
	}
	if pol.force {
		if err := os.RemoveAll(e.cache.artifactDir(coords, version)); err != nil {
			return resolved{}, fmt.Errorf("failed to replace cached %s: %w", coords.WithVersion(version), err)
		}
	}
	if err := e.cache.commit(staged, coords, version); err != nil {
		return resolved{}, err
	}
	e.logger.Info("downloaded", "module", coords.Key(), "version", version, "repository", repo.Name)

	r := resolved{
		coords:     coords.WithVersion(version),
		requested:  coords.Version,
		dir:        e.cache.artifactDir(coords, version),
		repository: repo.Name,
	}
	if err := e.verify(ctx, r, revision, pol); err != nil {
		return resolved{}, err
	}
	return r, nil
}

// verify compares the cached tree with the lock file, pinning it on first
// sight, and records the artifact in the history index.
func (e *Engine) verify(ctx context.Context, r resolved, revision string, pol policy) error {
	if !pol.disableChecksums {
		sum, err := treeChecksum(r.dir)
		if err != nil {
			return err
		}
		entry, ok := e.lock.Lookup(r.coords)
		switch {
		case ok && entry.Checksum != sum && !pol.force:
			return &ChecksumMismatchError{Coordinates: r.coords, Expected: entry.Checksum, Actual: sum}
		case !ok || entry.Checksum != sum:
			if err := e.lock.Put(r.coords, LockedArtifact{
				Repository: r.repository,
				Revision:   revision,
				Checksum:   sum,
				FetchedAt:  e.now().UTC(),
			}); err != nil {
				return err
			}
		}
	}
	return e.history.Record(ctx, HistoryEntry{
		Coordinates: r.coords,
		Repository:  r.repository,
		URI:         resolver.FileArtifact(r.dir).String(),
		GrabbedAt:   e.now(),
	})
}
