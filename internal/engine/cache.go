// SPDX-License-Identifier: MPL-2.0

package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/invowk/grab/pkg/depspec"
)

// CacheDirEnv overrides the default cache directory.
const CacheDirEnv = "GRAB_CACHE_DIR"

// DefaultCacheDir returns the cache directory, honouring GRAB_CACHE_DIR.
func DefaultCacheDir() (string, error) {
	return DefaultCacheDirWith(os.Getenv)
}

// DefaultCacheDirWith is DefaultCacheDir with an injected environment lookup.
func DefaultCacheDirWith(getenv func(string) string) (string, error) {
	if dir := getenv(CacheDirEnv); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, ".grab", "cache"), nil
}

// cache is the on-disk artifact store: <dir>/<group>/<module>/<version>/.
type cache struct {
	dir string
}

func (c cache) moduleDir(coords depspec.Coordinates) string {
	return filepath.Join(c.dir, filepath.FromSlash(coords.Group), coords.Module)
}

func (c cache) artifactDir(coords depspec.Coordinates, version string) string {
	return filepath.Join(c.moduleDir(coords), version)
}

// versions lists cached versions of coords' module.
func (c cache) versions(coords depspec.Coordinates) ([]string, error) {
	entries, err := os.ReadDir(c.moduleDir(coords))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache for %s: %w", coords.Key(), err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() && e.Name()[0] != '.' {
			out = append(out, e.Name())
		}
	}
	return out, nil
}

func (c cache) has(coords depspec.Coordinates, version string) bool {
	info, err := os.Stat(c.artifactDir(coords, version))
	return err == nil && info.IsDir()
}

// stagingDir returns a fresh, not yet existing directory next to the final
// artifact location, so a completed fetch can be renamed into place.
func (c cache) stagingDir(coords depspec.Coordinates) (string, error) {
	parent := c.moduleDir(coords)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return "", fmt.Errorf("failed to create cache directory: %w", err)
	}
	tmp, err := os.MkdirTemp(parent, ".fetch-*")
	if err != nil {
		return "", fmt.Errorf("failed to create staging directory: %w", err)
	}
	// sources expect to create dest themselves
	if err := os.Remove(tmp); err != nil {
		return "", fmt.Errorf("failed to prepare staging directory: %w", err)
	}
	return tmp, nil
}

// commit moves a staged fetch into its final place. A concurrent fetch that
// won the race leaves its copy in place and the staged one is dropped.
func (c cache) commit(staged string, coords depspec.Coordinates, version string) error {
	final := c.artifactDir(coords, version)
	if err := os.Rename(staged, final); err != nil {
		_ = os.RemoveAll(staged) // best-effort cleanup
		if c.has(coords, version) {
			return nil
		}
		return fmt.Errorf("failed to move %s into cache: %w", coords.WithVersion(version), err)
	}
	return nil
}

// treeChecksum hashes every regular file under dir together with its
// slash-separated relative path, in lexical walk order.
func treeChecksum(dir string) (string, error) {
	h := sha256.New()
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		fmt.Fprintf(h, "%s\x00", filepath.ToSlash(rel))
		if _, err := io.Copy(h, f); err != nil {
			return err
		}
		h.Write([]byte{0})
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to checksum %s: %w", dir, err)
	}
	return "sha256:" + hex.EncodeToString(h.Sum(nil)), nil
}
