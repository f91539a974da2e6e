// SPDX-License-Identifier: MPL-2.0

package engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/invowk/grab/pkg/depspec"
)

// source reads one repository.
type source interface {
	// versions lists the versions of c's module. A missing module yields
	// ErrArtifactNotFound.
	versions(ctx context.Context, c depspec.Coordinates) ([]string, error)
	// fetch populates dest, which does not exist yet, with the given
	// version and returns the repository's revision identifier, if any.
	fetch(ctx context.Context, c depspec.Coordinates, version, dest string) (string, error)
}

func newSource(r Repository, creds credentials) source {
	if r.Kind == KindGit {
		return &gitSource{repo: r, creds: creds}
	}
	return &dirSource{repo: r}
}

// dirSource reads a local directory laid out as <root>/<group>/<module>/<version>/.
type dirSource struct {
	repo Repository
}

func (d *dirSource) moduleDir(c depspec.Coordinates) string {
	return filepath.Join(d.repo.Root, filepath.FromSlash(c.Group), c.Module)
}

func (d *dirSource) versions(_ context.Context, c depspec.Coordinates) ([]string, error) {
	entries, err := os.ReadDir(d.moduleDir(c))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrArtifactNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list %s in %s: %w", c.Key(), d.repo.Name, err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	if len(out) == 0 {
		return nil, ErrArtifactNotFound
	}
	return out, nil
}

func (d *dirSource) fetch(ctx context.Context, c depspec.Coordinates, version, dest string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	src := filepath.Join(d.moduleDir(c), version)
	if err := os.CopyFS(dest, os.DirFS(src)); err != nil {
		return "", fmt.Errorf("failed to copy %s from %s: %w", c.WithVersion(version), d.repo.Name, err)
	}
	return "", nil
}
