// SPDX-License-Identifier: MPL-2.0

package engine

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/invowk/grab/pkg/cueutil"
	"github.com/invowk/grab/pkg/depspec"
)

// ManifestFileName is the optional file at an artifact's root that lists the
// artifact's own dependencies.
const ManifestFileName = "grab.cue"

//go:embed schema/manifest_schema.cue
var manifestSchema []byte

type (
	// Manifest is the decoded grab.cue of an artifact.
	Manifest struct {
		Description  string               `json:"description,omitempty"`
		Dependencies []ManifestDependency `json:"dependencies"`
	}

	// ManifestDependency is one declared dependency.
	ManifestDependency struct {
		Group   string `json:"group"`
		Module  string `json:"module"`
		Version string `json:"version"`
		Conf    string `json:"conf,omitempty"`
	}
)

// readManifest returns the manifest of the artifact at dir, or nil when it
// ships none.
func readManifest(dir string) (*Manifest, error) {
	path := filepath.Join(dir, ManifestFileName)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	result, err := cueutil.ParseAndDecode[Manifest](manifestSchema, data, "#Manifest", cueutil.WithFilename(path))
	if err != nil {
		return nil, err
	}
	return result.Value, nil
}

// Coordinates converts the declared dependencies.
func (m *Manifest) Coordinates() ([]depspec.Coordinates, error) {
	out := make([]depspec.Coordinates, 0, len(m.Dependencies))
	for _, d := range m.Dependencies {
		c := depspec.Coordinates{Group: d.Group, Module: d.Module, Version: d.Version, Conf: d.Conf}
		if c.Version == "" {
			c.Version = depspec.AnyVersion
		}
		if err := c.Validate(); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}
