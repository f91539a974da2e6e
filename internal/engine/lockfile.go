// SPDX-License-Identifier: MPL-2.0

package engine

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/invowk/grab/pkg/depspec"
)

const (
	// LockFileName is the lock file kept at the root of the cache directory.
	LockFileName = "grab.lock.toml"

	lockFileVersion = "1"
)

// ErrInvalidLockFile is returned when the lock file cannot be decoded.
var ErrInvalidLockFile = errors.New("invalid lock file")

type (
	// LockFile records the checksum of every artifact the cache holds.
	LockFile struct {
		Version   string                    `toml:"version"`
		Generated time.Time                 `toml:"generated"`
		Artifacts map[string]LockedArtifact `toml:"artifacts"`

		mu   sync.Mutex
		path string
		// now stamps Generated; nil means time.Now.
		now func() time.Time
	}

	// LockedArtifact is one lock file entry, keyed by "group:module:version".
	LockedArtifact struct {
		Repository string    `toml:"repository"`
		Revision   string    `toml:"revision,omitempty"`
		Checksum   string    `toml:"checksum"`
		FetchedAt  time.Time `toml:"fetched_at"`
	}
)

// LoadLockFile reads the lock file at path. A missing file yields an empty
// lock file that Save will create.
func LoadLockFile(path string) (*LockFile, error) {
	l := &LockFile{Version: lockFileVersion, Artifacts: make(map[string]LockedArtifact), path: path}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return l, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read lock file: %w", err)
	}
	if err := toml.Unmarshal(data, l); err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrInvalidLockFile, path, err)
	}
	if l.Artifacts == nil {
		l.Artifacts = make(map[string]LockedArtifact)
	}
	return l, nil
}

// Lookup returns the entry for coords, whose version must be concrete.
func (l *LockFile) Lookup(coords depspec.Coordinates) (LockedArtifact, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.Artifacts[coords.String()]
	return a, ok
}

// Put records an entry and writes the file.
func (l *LockFile) Put(coords depspec.Coordinates, a LockedArtifact) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Artifacts[coords.String()] = a
	return l.saveLocked()
}

// Save writes the lock file atomically through a temporary sibling.
func (l *LockFile) Save() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.saveLocked()
}

func (l *LockFile) saveLocked() error {
	if l.path == "" {
		return nil
	}
	now := l.now
	if now == nil {
		now = time.Now
	}
	l.Generated = now().UTC()
	data, err := toml.Marshal(l)
	if err != nil {
		return fmt.Errorf("failed to encode lock file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("failed to create lock file directory: %w", err)
	}
	tmpPath := l.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write lock file: %w", err)
	}
	if err := os.Rename(tmpPath, l.path); err != nil {
		_ = os.Remove(tmpPath) // best-effort cleanup of temp file
		return fmt.Errorf("failed to replace lock file: %w", err)
	}
	return nil
}
